package repositoryimpl

import (
	"context"
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/taskchain/taskchain/internal/taskctx"
	"github.com/taskchain/taskchain/pkg/cerr"
	"github.com/taskchain/taskchain/pkg/storage"
)

const contextsPrefix = "contexts"

type YAMLRepository struct {
	storage storage.Storage
}

func NewYAMLRepository(s storage.Storage) *YAMLRepository {
	return &YAMLRepository{storage: s}
}

func path(id string) string {
	return fmt.Sprintf("%s/%s.yaml", contextsPrefix, id)
}

func (r *YAMLRepository) Create(ctx context.Context, c *taskctx.Context) error {
	exists, err := r.storage.Exists(ctx, path(c.ID))
	if err != nil {
		return cerr.WrapStorageWriteError("context", err)
	}
	if exists {
		return cerr.NewError(cerr.AlreadyExists, "context already exists", nil)
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return cerr.NewError(cerr.Internal, "server error", fmt.Errorf("failed to marshal context: %w", err))
	}
	if err := r.storage.Write(ctx, path(c.ID), data); err != nil {
		return cerr.WrapStorageWriteError("context", err)
	}
	return nil
}

func (r *YAMLRepository) Get(ctx context.Context, id string) (*taskctx.Context, error) {
	data, err := r.storage.Read(ctx, path(id))
	if err != nil {
		return nil, cerr.WrapStorageReadError("context", err)
	}
	var c taskctx.Context
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, cerr.NewError(cerr.Internal, "server error", fmt.Errorf("failed to unmarshal context: %w", err))
	}
	return &c, nil
}

func (r *YAMLRepository) GetByName(ctx context.Context, userID, name string) (*taskctx.Context, error) {
	all, err := r.List(ctx, userID)
	if err != nil {
		return nil, err
	}
	for _, c := range all {
		if c.Name == name {
			return c, nil
		}
	}
	return nil, cerr.NewError(cerr.NotFound, fmt.Sprintf("context %q not found", name), nil)
}

func (r *YAMLRepository) List(ctx context.Context, userID string) ([]*taskctx.Context, error) {
	paths, err := r.storage.List(ctx, contextsPrefix)
	if err != nil {
		return nil, cerr.WrapStorageReadError("contexts", err)
	}
	var all []*taskctx.Context
	for _, p := range paths {
		data, err := r.storage.Read(ctx, p)
		if err != nil {
			continue
		}
		var c taskctx.Context
		if err := yaml.Unmarshal(data, &c); err != nil {
			continue
		}
		if userID != "" && c.UserID != userID {
			continue
		}
		all = append(all, &c)
	}
	return all, nil
}

func (r *YAMLRepository) Update(ctx context.Context, c *taskctx.Context) error {
	exists, err := r.storage.Exists(ctx, path(c.ID))
	if err != nil {
		return cerr.WrapStorageWriteError("context", err)
	}
	if !exists {
		return cerr.NewError(cerr.NotFound, "context not found", nil)
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return cerr.NewError(cerr.Internal, "server error", fmt.Errorf("failed to marshal context: %w", err))
	}
	if err := r.storage.Write(ctx, path(c.ID), data); err != nil {
		return cerr.WrapStorageWriteError("context", err)
	}
	return nil
}

func (r *YAMLRepository) Delete(ctx context.Context, id string) error {
	if err := r.storage.Delete(ctx, path(id)); err != nil {
		return cerr.WrapStorageDeleteError("context", err)
	}
	return nil
}
