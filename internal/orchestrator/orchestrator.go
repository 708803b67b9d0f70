// Package orchestrator coordinates every multi-record task operation:
// lifecycle changes, dependency cascades, project visibility and recurrence
// spawning. It is the single writer; repositories and the graph perform no
// cross-record coordination of their own.
package orchestrator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/taskchain/taskchain/internal/dependency"
	"github.com/taskchain/taskchain/internal/eventbus"
	"github.com/taskchain/taskchain/internal/project"
	"github.com/taskchain/taskchain/internal/task"
	"github.com/taskchain/taskchain/internal/taskctx"
	"github.com/taskchain/taskchain/internal/user"
	"github.com/taskchain/taskchain/pkg/cerr"
)

// Recurrer is the boundary to recurrence template logic. The orchestrator
// only ever asks these three questions.
type Recurrer interface {
	IsDue(ctx context.Context, templateID string, asOf time.Time) (bool, error)
	ActiveOccurrenceCount(ctx context.Context, templateID string) (int, error)
	Materialize(ctx context.Context, templateID string, asOf time.Time) (*task.Task, error)
}

// CascadeResult summarizes the ripple effects of one primary operation.
type CascadeResult struct {
	// Activated lists successors released by the primary operation.
	Activated []*task.Task
	// Blocked lists successors pushed back to pending.
	Blocked []*task.Task
	// FailedPredecessors lists staged predecessor references whose edge
	// could not be added; earlier removals and additions stay applied.
	FailedPredecessors []string
	// NewOccurrence is the recurrence task spawned by the operation, if any.
	NewOccurrence *task.Task
}

// Orchestrator serializes all writes behind one mutex. Reads taken outside
// an operation may briefly trail an in-flight cascade.
type Orchestrator struct {
	mu        sync.Mutex
	clock     func() time.Time
	users     user.Repository
	contexts  taskctx.Repository
	projects  project.Repository
	tasks     task.Repository
	graph     *dependency.Graph
	recurrer  Recurrer
	bus       *eventbus.Bus
}

type Option func(*Orchestrator)

// WithClock fixes the time source.
func WithClock(clock func() time.Time) Option {
	return func(o *Orchestrator) { o.clock = clock }
}

func New(
	users user.Repository,
	contexts taskctx.Repository,
	projects project.Repository,
	tasks task.Repository,
	graph *dependency.Graph,
	recurrer Recurrer,
	bus *eventbus.Bus,
	opts ...Option,
) *Orchestrator {
	o := &Orchestrator{
		clock:    time.Now,
		users:    users,
		contexts: contexts,
		projects: projects,
		tasks:    tasks,
		graph:    graph,
		recurrer: recurrer,
		bus:      bus,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// EnsureDefaultUser returns the first stored user, creating one when the
// store is empty.
func (o *Orchestrator) EnsureDefaultUser(ctx context.Context) (*user.User, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	users, err := o.users.List(ctx)
	if err != nil {
		return nil, err
	}
	if len(users) > 0 {
		return users[0], nil
	}
	now := o.clock()
	u := &user.User{
		ID:        ulid.Make().String(),
		Name:      "default",
		Timezone:  "UTC",
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := o.users.Create(ctx, u); err != nil {
		return nil, err
	}
	return u, nil
}

// taskOf loads a task and checks ownership. Another user's task is
// indistinguishable from a missing one.
func (o *Orchestrator) taskOf(ctx context.Context, userID, taskID string) (*task.Task, error) {
	t, err := o.tasks.Get(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if t.UserID != userID {
		return nil, cerr.NewError(cerr.NotFound, "task not found", nil)
	}
	return t, nil
}

// contextByName resolves a context by exact name, creating it on first use.
func (o *Orchestrator) contextByName(ctx context.Context, userID, name string) (*taskctx.Context, error) {
	c, err := o.contexts.GetByName(ctx, userID, name)
	if err == nil {
		return c, nil
	}
	if !cerr.IsCode(err, cerr.NotFound) {
		return nil, err
	}
	now := o.clock()
	c = &taskctx.Context{
		ID:        ulid.Make().String(),
		UserID:    userID,
		Name:      name,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := o.contexts.Create(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

// projectByName resolves a project by exact name, creating it on first use.
// The "(none)" sentinel and the empty string both resolve to the null
// project.
func (o *Orchestrator) projectByName(ctx context.Context, userID, name string) (*project.Project, error) {
	if name == "" || name == project.NoneName {
		return project.Null(), nil
	}
	p, err := o.projects.GetByName(ctx, userID, name)
	if err == nil {
		return p, nil
	}
	if !cerr.IsCode(err, cerr.NotFound) {
		return nil, err
	}
	now := o.clock()
	p = &project.Project{
		ID:        ulid.Make().String(),
		UserID:    userID,
		Name:      name,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := o.projects.Create(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

// specificationOf renders the textual reference for a task.
func (o *Orchestrator) specificationOf(ctx context.Context, t *task.Task) (string, error) {
	c, err := o.contexts.Get(ctx, t.ContextID)
	if err != nil {
		return "", err
	}
	p := project.Null()
	if t.ProjectID != "" {
		p, err = o.projects.Get(ctx, t.ProjectID)
		if err != nil {
			return "", err
		}
	}
	return task.Specification(t.Description, c.Name, p.Name), nil
}

// resolveSpec finds the task a reference names, scoped to one user. All
// three parts must match exactly; with duplicates the first listed task
// wins.
func (o *Orchestrator) resolveSpec(ctx context.Context, userID string, ref task.SpecRef) (*task.Task, error) {
	var projectID string
	if ref.ProjectName != project.NoneName {
		p, err := o.projects.GetByName(ctx, userID, ref.ProjectName)
		if err != nil {
			return nil, err
		}
		projectID = p.ID
	}
	c, err := o.contexts.GetByName(ctx, userID, ref.ContextName)
	if err != nil {
		return nil, err
	}
	candidates, err := o.tasks.List(ctx, task.Filter{
		UserID:    userID,
		ContextID: c.ID,
		ProjectID: projectID,
	})
	if err != nil {
		return nil, err
	}
	for _, t := range candidates {
		if t.Description == ref.Description && t.ProjectID == projectID {
			return t, nil
		}
	}
	return nil, cerr.NewError(cerr.NotFound, fmt.Sprintf("no task matches %q", ref.Description), nil)
}
