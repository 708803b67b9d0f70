package dependency

import (
	"context"
	"time"

	"github.com/taskchain/taskchain/internal/task"
	"github.com/taskchain/taskchain/pkg/cerr"
)

// Graph layers traversal and cycle prevention over the edge repository.
// AddEdge refuses anything that would close a loop, so the stored edge set
// stays acyclic. Traversals still carry visited sets in case the store was
// edited by hand.
type Graph struct {
	edges Repository
	tasks task.Repository
	clock func() time.Time
}

func NewGraph(edges Repository, tasks task.Repository) *Graph {
	return &Graph{edges: edges, tasks: tasks, clock: time.Now}
}

// PredecessorsOf loads the tasks the given task directly depends on. Edges
// whose task record is gone are skipped.
func (g *Graph) PredecessorsOf(ctx context.Context, taskID string) ([]*task.Task, error) {
	edges, err := g.edges.ListBySuccessor(ctx, taskID)
	if err != nil {
		return nil, err
	}
	return g.loadTasks(ctx, edges, func(e *Edge) string { return e.PredecessorID })
}

// SuccessorsOf loads the tasks directly depending on the given task.
func (g *Graph) SuccessorsOf(ctx context.Context, taskID string) ([]*task.Task, error) {
	edges, err := g.edges.ListByPredecessor(ctx, taskID)
	if err != nil {
		return nil, err
	}
	return g.loadTasks(ctx, edges, func(e *Edge) string { return e.SuccessorID })
}

// UncompletedPredecessorsOf returns the direct predecessors still standing
// in the way of the given task.
func (g *Graph) UncompletedPredecessorsOf(ctx context.Context, taskID string) ([]*task.Task, error) {
	preds, err := g.PredecessorsOf(ctx, taskID)
	if err != nil {
		return nil, err
	}
	var open []*task.Task
	for _, p := range preds {
		if p.State != task.StateCompleted {
			open = append(open, p)
		}
	}
	return open, nil
}

// Unblocked reports whether every direct predecessor is completed.
func (g *Graph) Unblocked(ctx context.Context, taskID string) (bool, error) {
	open, err := g.UncompletedPredecessorsOf(ctx, taskID)
	if err != nil {
		return false, err
	}
	return len(open) == 0, nil
}

// PendingSuccessorsOf returns the direct successors currently held in
// pending.
func (g *Graph) PendingSuccessorsOf(ctx context.Context, taskID string) ([]*task.Task, error) {
	succs, err := g.SuccessorsOf(ctx, taskID)
	if err != nil {
		return nil, err
	}
	var pending []*task.Task
	for _, s := range succs {
		if s.State == task.StatePending {
			pending = append(pending, s)
		}
	}
	return pending, nil
}

// WouldCreateCycle reports whether adding predecessorID -> successorID
// would close a cycle: true when the candidate predecessor is the task
// itself or is already reachable from it along successor edges. The visited
// set guarantees termination even on corrupt graph data.
func (g *Graph) WouldCreateCycle(ctx context.Context, predecessorID, successorID string) (bool, error) {
	if predecessorID == successorID {
		return true, nil
	}
	visited := map[string]bool{}
	stack := []string{successorID}
	for len(stack) > 0 {
		id := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if visited[id] {
			continue
		}
		visited[id] = true
		edges, err := g.edges.ListByPredecessor(ctx, id)
		if err != nil {
			return false, err
		}
		for _, e := range edges {
			if e.SuccessorID == predecessorID {
				return true, nil
			}
			if !visited[e.SuccessorID] {
				stack = append(stack, e.SuccessorID)
			}
		}
	}
	return false, nil
}

// AddEdge inserts predecessorID -> successorID after cycle screening.
// Adding an edge that already exists is a no-op.
func (g *Graph) AddEdge(ctx context.Context, predecessorID, successorID string) error {
	cycle, err := g.WouldCreateCycle(ctx, predecessorID, successorID)
	if err != nil {
		return err
	}
	if cycle {
		return &CycleError{PredecessorID: predecessorID, SuccessorID: successorID}
	}
	exists, err := g.edges.Exists(ctx, predecessorID, successorID)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}
	return g.edges.Create(ctx, &Edge{
		PredecessorID: predecessorID,
		SuccessorID:   successorID,
		CreatedAt:     g.clock(),
	})
}

// RemoveEdge deletes one edge. Removing an edge that does not exist is a
// no-op.
func (g *Graph) RemoveEdge(ctx context.Context, predecessorID, successorID string) error {
	err := g.edges.Delete(ctx, predecessorID, successorID)
	if err != nil && cerr.IsCode(err, cerr.NotFound) {
		return nil
	}
	return err
}

// RemoveTaskEdges deletes every edge touching the given task, in either
// direction. Used when a task is destroyed.
func (g *Graph) RemoveTaskEdges(ctx context.Context, taskID string) error {
	out, err := g.edges.ListByPredecessor(ctx, taskID)
	if err != nil {
		return err
	}
	in, err := g.edges.ListBySuccessor(ctx, taskID)
	if err != nil {
		return err
	}
	for _, e := range append(out, in...) {
		if err := g.RemoveEdge(ctx, e.PredecessorID, e.SuccessorID); err != nil {
			return err
		}
	}
	return nil
}

func (g *Graph) loadTasks(ctx context.Context, edges []*Edge, pick func(*Edge) string) ([]*task.Task, error) {
	var tasks []*task.Task
	for _, e := range edges {
		t, err := g.tasks.Get(ctx, pick(e))
		if err != nil {
			if cerr.IsCode(err, cerr.NotFound) {
				continue
			}
			return nil, err
		}
		tasks = append(tasks, t)
	}
	return tasks, nil
}
