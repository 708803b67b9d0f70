package repositoryimpl

import (
	"context"
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/taskchain/taskchain/internal/dependency"
	"github.com/taskchain/taskchain/pkg/cerr"
	"github.com/taskchain/taskchain/pkg/storage"
)

const edgesPrefix = "dependencies"

type YAMLRepository struct {
	storage storage.Storage
}

func NewYAMLRepository(s storage.Storage) *YAMLRepository {
	return &YAMLRepository{storage: s}
}

// Task ids are ULIDs, so "--" can never appear inside either half of the key.
func path(predecessorID, successorID string) string {
	return fmt.Sprintf("%s/%s--%s.yaml", edgesPrefix, predecessorID, successorID)
}

func (r *YAMLRepository) Create(ctx context.Context, e *dependency.Edge) error {
	data, err := yaml.Marshal(e)
	if err != nil {
		return cerr.NewError(cerr.Internal, "server error", fmt.Errorf("failed to marshal edge: %w", err))
	}
	if err := r.storage.Write(ctx, path(e.PredecessorID, e.SuccessorID), data); err != nil {
		return cerr.WrapStorageWriteError("dependency", err)
	}
	return nil
}

func (r *YAMLRepository) Delete(ctx context.Context, predecessorID, successorID string) error {
	if err := r.storage.Delete(ctx, path(predecessorID, successorID)); err != nil {
		return cerr.WrapStorageDeleteError("dependency", err)
	}
	return nil
}

func (r *YAMLRepository) Exists(ctx context.Context, predecessorID, successorID string) (bool, error) {
	exists, err := r.storage.Exists(ctx, path(predecessorID, successorID))
	if err != nil {
		return false, cerr.WrapStorageReadError("dependency", err)
	}
	return exists, nil
}

func (r *YAMLRepository) ListByPredecessor(ctx context.Context, predecessorID string) ([]*dependency.Edge, error) {
	return r.list(ctx, func(e *dependency.Edge) bool {
		return e.PredecessorID == predecessorID
	})
}

func (r *YAMLRepository) ListBySuccessor(ctx context.Context, successorID string) ([]*dependency.Edge, error) {
	return r.list(ctx, func(e *dependency.Edge) bool {
		return e.SuccessorID == successorID
	})
}

func (r *YAMLRepository) list(ctx context.Context, keep func(*dependency.Edge) bool) ([]*dependency.Edge, error) {
	paths, err := r.storage.List(ctx, edgesPrefix)
	if err != nil {
		return nil, cerr.WrapStorageReadError("dependencies", err)
	}
	var edges []*dependency.Edge
	for _, p := range paths {
		data, err := r.storage.Read(ctx, p)
		if err != nil {
			continue
		}
		var e dependency.Edge
		if err := yaml.Unmarshal(data, &e); err != nil {
			continue
		}
		if keep(&e) {
			edges = append(edges, &e)
		}
	}
	return edges, nil
}
