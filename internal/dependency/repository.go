package dependency

import "context"

type Repository interface {
	Create(ctx context.Context, e *Edge) error
	// Delete removes one edge; missing edges report NotFound.
	Delete(ctx context.Context, predecessorID, successorID string) error
	Exists(ctx context.Context, predecessorID, successorID string) (bool, error)
	// ListByPredecessor returns every edge leaving the given task.
	ListByPredecessor(ctx context.Context, predecessorID string) ([]*Edge, error)
	// ListBySuccessor returns every edge arriving at the given task.
	ListBySuccessor(ctx context.Context, successorID string) ([]*Edge, error)
}
