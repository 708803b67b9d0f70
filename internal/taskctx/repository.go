package taskctx

import "context"

type Repository interface {
	Create(ctx context.Context, c *Context) error
	Get(ctx context.Context, id string) (*Context, error)
	// GetByName resolves a context by exact name within one user's contexts.
	GetByName(ctx context.Context, userID, name string) (*Context, error)
	List(ctx context.Context, userID string) ([]*Context, error)
	Update(ctx context.Context, c *Context) error
	Delete(ctx context.Context, id string) error
}
