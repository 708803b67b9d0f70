package project

import "context"

type Repository interface {
	Create(ctx context.Context, p *Project) error
	Get(ctx context.Context, id string) (*Project, error)
	// GetByName resolves a project by exact name within one user's projects.
	GetByName(ctx context.Context, userID, name string) (*Project, error)
	List(ctx context.Context, userID string) ([]*Project, error)
	Update(ctx context.Context, p *Project) error
	Delete(ctx context.Context, id string) error
}
