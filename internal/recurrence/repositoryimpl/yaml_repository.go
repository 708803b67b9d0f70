package repositoryimpl

import (
	"context"
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/taskchain/taskchain/internal/recurrence"
	"github.com/taskchain/taskchain/pkg/cerr"
	"github.com/taskchain/taskchain/pkg/storage"
)

const recurrencesPrefix = "recurrences"

type YAMLRepository struct {
	storage storage.Storage
}

func NewYAMLRepository(s storage.Storage) *YAMLRepository {
	return &YAMLRepository{storage: s}
}

func path(id string) string {
	return fmt.Sprintf("%s/%s.yaml", recurrencesPrefix, id)
}

func (r *YAMLRepository) Create(ctx context.Context, t *recurrence.Template) error {
	exists, err := r.storage.Exists(ctx, path(t.ID))
	if err != nil {
		return cerr.WrapStorageWriteError("recurrence", err)
	}
	if exists {
		return cerr.NewError(cerr.AlreadyExists, "recurrence already exists", nil)
	}
	return r.write(ctx, t)
}

func (r *YAMLRepository) Get(ctx context.Context, id string) (*recurrence.Template, error) {
	data, err := r.storage.Read(ctx, path(id))
	if err != nil {
		return nil, cerr.WrapStorageReadError("recurrence", err)
	}
	var t recurrence.Template
	if err := yaml.Unmarshal(data, &t); err != nil {
		return nil, cerr.NewError(cerr.Internal, "server error", fmt.Errorf("failed to unmarshal recurrence: %w", err))
	}
	return &t, nil
}

func (r *YAMLRepository) List(ctx context.Context, userID string) ([]*recurrence.Template, error) {
	paths, err := r.storage.List(ctx, recurrencesPrefix)
	if err != nil {
		return nil, cerr.WrapStorageReadError("recurrences", err)
	}
	var all []*recurrence.Template
	for _, p := range paths {
		data, err := r.storage.Read(ctx, p)
		if err != nil {
			continue
		}
		var t recurrence.Template
		if err := yaml.Unmarshal(data, &t); err != nil {
			continue
		}
		if userID != "" && t.UserID != userID {
			continue
		}
		all = append(all, &t)
	}
	return all, nil
}

func (r *YAMLRepository) Update(ctx context.Context, t *recurrence.Template) error {
	exists, err := r.storage.Exists(ctx, path(t.ID))
	if err != nil {
		return cerr.WrapStorageWriteError("recurrence", err)
	}
	if !exists {
		return cerr.NewError(cerr.NotFound, "recurrence not found", nil)
	}
	return r.write(ctx, t)
}

func (r *YAMLRepository) Delete(ctx context.Context, id string) error {
	if err := r.storage.Delete(ctx, path(id)); err != nil {
		return cerr.WrapStorageDeleteError("recurrence", err)
	}
	return nil
}

func (r *YAMLRepository) write(ctx context.Context, t *recurrence.Template) error {
	data, err := yaml.Marshal(t)
	if err != nil {
		return cerr.NewError(cerr.Internal, "server error", fmt.Errorf("failed to marshal recurrence: %w", err))
	}
	if err := r.storage.Write(ctx, path(t.ID), data); err != nil {
		return cerr.WrapStorageWriteError("recurrence", err)
	}
	return nil
}
