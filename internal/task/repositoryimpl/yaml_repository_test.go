package repositoryimpl

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taskchain/taskchain/internal/task"
	"github.com/taskchain/taskchain/pkg/cerr"
	"github.com/taskchain/taskchain/pkg/storage"
)

func newRepo(t *testing.T) *YAMLRepository {
	t.Helper()
	s, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	return NewYAMLRepository(s)
}

func TestTaskRoundTrip(t *testing.T) {
	ctx := context.Background()
	r := newRepo(t)

	show := time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC)
	tk := &task.Task{
		ID:          "t1",
		UserID:      "u1",
		ContextID:   "c1",
		Description: "water plants",
		State:       task.StateDeferred,
		ShowFrom:    &show,
		CreatedAt:   time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC),
		UpdatedAt:   time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC),
	}
	require.NoError(t, r.Create(ctx, tk))

	got, err := r.Get(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, tk.Description, got.Description)
	assert.Equal(t, task.StateDeferred, got.State)
	require.NotNil(t, got.ShowFrom)
	assert.True(t, show.Equal(*got.ShowFrom))

	require.Error(t, r.Create(ctx, tk))
	assert.True(t, cerr.IsCode(r.Create(ctx, tk), cerr.AlreadyExists))
}

func TestTaskListFilter(t *testing.T) {
	ctx := context.Background()
	r := newRepo(t)

	mk := func(id, userID string, state task.State, recurrenceID string) {
		require.NoError(t, r.Create(ctx, &task.Task{
			ID: id, UserID: userID, ContextID: "c1",
			Description: "task " + id, State: state, RecurrenceID: recurrenceID,
		}))
	}
	mk("t1", "u1", task.StateActive, "")
	mk("t2", "u1", task.StatePending, "r1")
	mk("t3", "u2", task.StateActive, "")

	all, err := r.List(ctx, task.Filter{UserID: "u1"})
	require.NoError(t, err)
	assert.Len(t, all, 2)

	pending, err := r.List(ctx, task.Filter{UserID: "u1", State: task.StatePending})
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "t2", pending[0].ID)

	occ, err := r.List(ctx, task.Filter{RecurrenceID: "r1"})
	require.NoError(t, err)
	require.Len(t, occ, 1)
	assert.Equal(t, "t2", occ[0].ID)
}

func TestTaskUpdateMissing(t *testing.T) {
	ctx := context.Background()
	r := newRepo(t)
	err := r.Update(ctx, &task.Task{ID: "absent", UserID: "u1", ContextID: "c1", Description: "x", State: task.StateActive})
	assert.True(t, cerr.IsCode(err, cerr.NotFound))
}
