package orchestrator

import (
	"context"
	"strings"
	"time"

	"github.com/taskchain/taskchain/internal/eventbus"
	"github.com/taskchain/taskchain/internal/task"
	"github.com/taskchain/taskchain/internal/user"
)

// CreateTaskRequest carries everything a new task may start with. Context
// and project are named, not identified: unknown names are created on the
// fly.
type CreateTaskRequest struct {
	UserID          string
	Description     string
	Notes           string
	ContextName     string
	ProjectName     string
	ShowFrom        *time.Time
	Due             *time.Time
	State           task.State
	PredecessorList string
	RecurrenceID    string
}

// CreateTask validates, persists and wires up a new task, including any
// predecessor references embedded in the request.
func (o *Orchestrator) CreateTask(ctx context.Context, req CreateTaskRequest) (*task.Task, *CascadeResult, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	u, err := o.users.Get(ctx, req.UserID)
	if err != nil {
		return nil, nil, err
	}
	now := o.clock()
	today := u.Today(now)

	c, err := o.contextByName(ctx, req.UserID, req.ContextName)
	if err != nil {
		return nil, nil, err
	}
	p, err := o.projectByName(ctx, req.UserID, req.ProjectName)
	if err != nil {
		return nil, nil, err
	}
	projectID := ""
	if !p.IsNull() {
		projectID = p.ID
	}

	t := task.New(task.NewTaskParams{
		UserID:       req.UserID,
		ContextID:    c.ID,
		ProjectID:    projectID,
		RecurrenceID: req.RecurrenceID,
		Description:  req.Description,
		Notes:        req.Notes,
		State:        req.State,
		ShowFrom:     req.ShowFrom,
		Due:          req.Due,
		Now:          now,
		Today:        today,
	})
	if req.PredecessorList != "" {
		t.StagePredecessorList(req.PredecessorList)
	}

	verr := &task.ValidationError{}
	if req.ShowFrom != nil && req.ShowFrom.Before(today) {
		verr.Add("show_from", "must not be in the past")
	}
	if err := o.validate(ctx, t, verr); err != nil {
		return nil, nil, err
	}
	if !verr.Empty() {
		return nil, nil, verr
	}

	if !p.IsNull() && t.State != task.StateCompleted {
		// No edges exist yet, so the task counts as unblocked here.
		t.UpdateStateFromProject(p.Hidden, true)
	}

	if err := o.tasks.Create(ctx, t); err != nil {
		return nil, nil, err
	}

	res := &CascadeResult{}
	if err := o.applyPredecessorEdit(ctx, t, res); err != nil {
		return nil, nil, err
	}

	// A new task with open predecessors starts out held back.
	if err := o.blockIfObstructed(ctx, t, now); err != nil {
		return nil, nil, err
	}

	o.bus.PublishNew(eventbus.EventTaskCreated, t.ID, map[string]string{
		"user_id": t.UserID,
		"state":   t.State.String(),
	})
	return t, res, nil
}

// UpdateTaskRequest is a partial update: nil pointers leave the field
// alone. ShowFrom and Due carry explicit set flags so they can be cleared.
type UpdateTaskRequest struct {
	UserID string
	ID     string

	Description *string
	Notes       *string
	ContextName *string
	ProjectName *string
	Done        *bool

	ShowFrom    *time.Time
	SetShowFrom bool
	Due         *time.Time
	SetDue      bool

	PredecessorList *string
}

// UpdateTask applies a partial update and runs every cascade the changes
// call for: completion toggling, project visibility reconciliation, the
// ShowFrom state coupling and predecessor re-evaluation.
func (o *Orchestrator) UpdateTask(ctx context.Context, req UpdateTaskRequest) (*task.Task, *CascadeResult, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	u, err := o.users.Get(ctx, req.UserID)
	if err != nil {
		return nil, nil, err
	}
	t, err := o.taskOf(ctx, req.UserID, req.ID)
	if err != nil {
		return nil, nil, err
	}
	now := o.clock()
	today := u.Today(now)
	res := &CascadeResult{}

	beforeSpecs, err := o.predecessorSpecs(ctx, t)
	if err != nil {
		return nil, nil, err
	}

	if req.Done != nil {
		if err := o.applyDoneFlag(ctx, u, t, *req.Done, now, res); err != nil {
			return nil, nil, err
		}
	}

	if req.Description != nil {
		t.Description = *req.Description
	}
	if req.Notes != nil {
		t.Notes = *req.Notes
	}
	if req.SetDue {
		t.Due = req.Due
	}
	if req.ContextName != nil {
		c, err := o.contextByName(ctx, req.UserID, *req.ContextName)
		if err != nil {
			return nil, nil, err
		}
		t.ContextID = c.ID
	}
	if req.ProjectName != nil {
		if err := o.applyProjectChange(ctx, t, *req.ProjectName); err != nil {
			return nil, nil, err
		}
	}
	if req.SetShowFrom {
		unblocked, err := o.graph.Unblocked(ctx, t.ID)
		if err != nil {
			return nil, nil, err
		}
		if err := t.Reschedule(req.ShowFrom, task.Guards{Now: now, Unblocked: unblocked}, today); err != nil {
			return nil, nil, err
		}
	}
	if req.PredecessorList != nil {
		t.StagePredecessorList(*req.PredecessorList)
	}

	verr := &task.ValidationError{}
	if err := o.validate(ctx, t, verr); err != nil {
		return nil, nil, err
	}
	if !verr.Empty() {
		return nil, nil, verr
	}

	t.UpdatedAt = now
	if err := o.tasks.Update(ctx, t); err != nil {
		return nil, nil, err
	}
	if err := o.applyPredecessorEdit(ctx, t, res); err != nil {
		return nil, nil, err
	}

	// The task's own state is only re-evaluated when the textual
	// predecessor list actually changed.
	if req.PredecessorList != nil {
		afterSpecs, err := o.predecessorSpecs(ctx, t)
		if err != nil {
			return nil, nil, err
		}
		if strings.Join(beforeSpecs, ", ") != strings.Join(afterSpecs, ", ") {
			if err := o.reevaluateBlocking(ctx, t, now); err != nil {
				return nil, nil, err
			}
		}
	}

	o.bus.PublishNew(eventbus.EventTaskUpdated, t.ID, map[string]string{
		"user_id": t.UserID,
		"state":   t.State.String(),
	})
	return t, res, nil
}

func (o *Orchestrator) applyProjectChange(ctx context.Context, t *task.Task, projectName string) error {
	p, err := o.projectByName(ctx, t.UserID, projectName)
	if err != nil {
		return err
	}
	if p.ID == t.ProjectID {
		return nil
	}
	t.ProjectID = p.ID
	unblocked, err := o.graph.Unblocked(ctx, t.ID)
	if err != nil {
		return err
	}
	t.UpdateStateFromProject(p.Hidden, unblocked)
	return nil
}

// applyDoneFlag handles the done checkbox half of an update: the primary
// transition must succeed, then the usual completion cascades run.
func (o *Orchestrator) applyDoneFlag(ctx context.Context, u *user.User, t *task.Task, done bool, now time.Time, res *CascadeResult) error {
	if done == (t.State == task.StateCompleted) {
		return nil
	}
	g := task.Guards{Now: now}
	if done {
		if err := t.Fire(task.EventComplete, g); err != nil {
			return err
		}
		// Successor checks read the store, so the completion has to be
		// visible before the cascade runs.
		if err := o.tasks.Update(ctx, t); err != nil {
			return err
		}
		if err := o.activateUnblockedSuccessors(ctx, t, now, res); err != nil {
			return err
		}
		res.NewOccurrence = o.spawnNextOccurrence(ctx, u, t, now)
		return nil
	}
	if err := t.Fire(task.EventActivate, g); err != nil {
		return err
	}
	if err := o.tasks.Update(ctx, t); err != nil {
		return err
	}
	return o.blockOpenSuccessors(ctx, t, now, res)
}

// GetTask returns one task scoped to its owner.
func (o *Orchestrator) GetTask(ctx context.Context, userID, taskID string) (*task.Task, error) {
	return o.taskOf(ctx, userID, taskID)
}

// ListTasks returns the user's tasks matching the filter.
func (o *Orchestrator) ListTasks(ctx context.Context, userID string, f task.Filter) ([]*task.Task, error) {
	f.UserID = userID
	return o.tasks.List(ctx, f)
}

// PredecessorsOf exposes the stored predecessor references of a task.
func (o *Orchestrator) PredecessorsOf(ctx context.Context, userID, taskID string) ([]*task.Task, error) {
	if _, err := o.taskOf(ctx, userID, taskID); err != nil {
		return nil, err
	}
	return o.graph.PredecessorsOf(ctx, taskID)
}
