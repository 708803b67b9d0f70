package dependency_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taskchain/taskchain/internal/dependency"
	dependencyrepo "github.com/taskchain/taskchain/internal/dependency/repositoryimpl"
	"github.com/taskchain/taskchain/internal/task"
	taskrepo "github.com/taskchain/taskchain/internal/task/repositoryimpl"
	"github.com/taskchain/taskchain/pkg/storage"
)

func newGraph(t *testing.T) (*dependency.Graph, task.Repository) {
	t.Helper()
	s, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	tasks := taskrepo.NewYAMLRepository(s)
	return dependency.NewGraph(dependencyrepo.NewYAMLRepository(s), tasks), tasks
}

func seedTask(t *testing.T, tasks task.Repository, id string, state task.State) *task.Task {
	t.Helper()
	tk := &task.Task{
		ID:          id,
		UserID:      "u1",
		ContextID:   "c1",
		Description: "task " + id,
		State:       state,
		CreatedAt:   time.Now(),
		UpdatedAt:   time.Now(),
	}
	if state == task.StateCompleted {
		at := time.Now()
		tk.CompletedAt = &at
	}
	require.NoError(t, tasks.Create(context.Background(), tk))
	return tk
}

func TestGraphAddAndTraverse(t *testing.T) {
	ctx := context.Background()
	g, tasks := newGraph(t)
	seedTask(t, tasks, "a", task.StateCompleted)
	seedTask(t, tasks, "b", task.StateActive)
	seedTask(t, tasks, "c", task.StatePending)

	require.NoError(t, g.AddEdge(ctx, "a", "c"))
	require.NoError(t, g.AddEdge(ctx, "b", "c"))
	// Re-adding is a no-op.
	require.NoError(t, g.AddEdge(ctx, "a", "c"))

	preds, err := g.PredecessorsOf(ctx, "c")
	require.NoError(t, err)
	assert.Len(t, preds, 2)

	open, err := g.UncompletedPredecessorsOf(ctx, "c")
	require.NoError(t, err)
	require.Len(t, open, 1)
	assert.Equal(t, "b", open[0].ID)

	unblocked, err := g.Unblocked(ctx, "c")
	require.NoError(t, err)
	assert.False(t, unblocked)

	succs, err := g.SuccessorsOf(ctx, "a")
	require.NoError(t, err)
	require.Len(t, succs, 1)
	assert.Equal(t, "c", succs[0].ID)

	pending, err := g.PendingSuccessorsOf(ctx, "b")
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "c", pending[0].ID)
}

func TestGraphCycleRejection(t *testing.T) {
	ctx := context.Background()
	g, tasks := newGraph(t)
	seedTask(t, tasks, "a", task.StateActive)
	seedTask(t, tasks, "b", task.StateActive)
	seedTask(t, tasks, "c", task.StateActive)

	require.NoError(t, g.AddEdge(ctx, "a", "b"))
	require.NoError(t, g.AddEdge(ctx, "b", "c"))

	// c transitively depends on a, so a may not depend on c.
	err := g.AddEdge(ctx, "c", "a")
	var cycErr *dependency.CycleError
	require.ErrorAs(t, err, &cycErr)
	assert.Equal(t, "c", cycErr.PredecessorID)
	assert.Equal(t, "a", cycErr.SuccessorID)

	// Self-dependency is the degenerate cycle.
	err = g.AddEdge(ctx, "a", "a")
	require.ErrorAs(t, err, &cycErr)

	// A diamond is fine: b and c may both feed a fourth task.
	seedTask(t, tasks, "d", task.StateActive)
	require.NoError(t, g.AddEdge(ctx, "b", "d"))
	require.NoError(t, g.AddEdge(ctx, "c", "d"))
}

func TestGraphRemoveEdge(t *testing.T) {
	ctx := context.Background()
	g, tasks := newGraph(t)
	seedTask(t, tasks, "a", task.StateActive)
	seedTask(t, tasks, "b", task.StateActive)

	require.NoError(t, g.AddEdge(ctx, "a", "b"))
	require.NoError(t, g.RemoveEdge(ctx, "a", "b"))
	// Removing again is a no-op.
	require.NoError(t, g.RemoveEdge(ctx, "a", "b"))

	preds, err := g.PredecessorsOf(ctx, "b")
	require.NoError(t, err)
	assert.Empty(t, preds)
}

func TestGraphRemoveTaskEdges(t *testing.T) {
	ctx := context.Background()
	g, tasks := newGraph(t)
	seedTask(t, tasks, "a", task.StateActive)
	seedTask(t, tasks, "b", task.StateActive)
	seedTask(t, tasks, "c", task.StateActive)

	require.NoError(t, g.AddEdge(ctx, "a", "b"))
	require.NoError(t, g.AddEdge(ctx, "b", "c"))

	require.NoError(t, g.RemoveTaskEdges(ctx, "b"))

	succs, err := g.SuccessorsOf(ctx, "a")
	require.NoError(t, err)
	assert.Empty(t, succs)
	preds, err := g.PredecessorsOf(ctx, "c")
	require.NoError(t, err)
	assert.Empty(t, preds)
}

func TestGraphSkipsDanglingEdges(t *testing.T) {
	ctx := context.Background()
	g, tasks := newGraph(t)
	seedTask(t, tasks, "a", task.StateActive)
	seedTask(t, tasks, "b", task.StateActive)

	require.NoError(t, g.AddEdge(ctx, "a", "b"))
	require.NoError(t, tasks.Delete(ctx, "a"))

	preds, err := g.PredecessorsOf(ctx, "b")
	require.NoError(t, err)
	assert.Empty(t, preds)
}
