package orchestrator

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/taskchain/taskchain/internal/eventbus"
	"github.com/taskchain/taskchain/internal/task"
	"github.com/taskchain/taskchain/internal/user"
)

// ToggleCompletion flips the task's completion and ripples the change to
// its successors. Completing may also spawn the next recurrence occurrence.
func (o *Orchestrator) ToggleCompletion(ctx context.Context, userID, taskID string) (*task.Task, *CascadeResult, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	u, err := o.users.Get(ctx, userID)
	if err != nil {
		return nil, nil, err
	}
	t, err := o.taskOf(ctx, userID, taskID)
	if err != nil {
		return nil, nil, err
	}
	now := o.clock()

	wasCompleted := t.State == task.StateCompleted
	if err := t.ToggleCompletion(task.Guards{Now: now}); err != nil {
		return nil, nil, err
	}
	t.UpdatedAt = now
	if err := o.tasks.Update(ctx, t); err != nil {
		return nil, nil, err
	}

	res := &CascadeResult{}
	if wasCompleted {
		if err := o.blockOpenSuccessors(ctx, t, now, res); err != nil {
			return nil, nil, err
		}
		o.bus.PublishNew(eventbus.EventTaskReactivated, t.ID, map[string]string{"user_id": t.UserID})
	} else {
		if err := o.activateUnblockedSuccessors(ctx, t, now, res); err != nil {
			return nil, nil, err
		}
		res.NewOccurrence = o.spawnNextOccurrence(ctx, u, t, now)
		o.bus.PublishNew(eventbus.EventTaskCompleted, t.ID, map[string]string{"user_id": t.UserID})
	}
	return t, res, nil
}

// AddPredecessor wires one dependency edge and blocks the task when the new
// predecessor is still open.
func (o *Orchestrator) AddPredecessor(ctx context.Context, userID, taskID, predecessorID string) (*task.Task, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	t, err := o.taskOf(ctx, userID, taskID)
	if err != nil {
		return nil, err
	}
	pred, err := o.taskOf(ctx, userID, predecessorID)
	if err != nil {
		return nil, err
	}
	if err := o.graph.AddEdge(ctx, pred.ID, t.ID); err != nil {
		return nil, err
	}
	now := o.clock()
	if pred.State != task.StateCompleted {
		if err := t.Fire(task.EventBlock, task.Guards{Now: now}); err != nil {
			var terr *task.TransitionError
			if !errors.As(err, &terr) {
				return nil, err
			}
			// Already pending or hidden; the edge alone is enough.
		} else {
			t.UpdatedAt = now
			if err := o.tasks.Update(ctx, t); err != nil {
				return nil, err
			}
		}
	}
	o.bus.PublishNew(eventbus.EventTaskUpdated, t.ID, map[string]string{"user_id": t.UserID})
	return t, nil
}

// RemovePredecessor drops one dependency edge and then activates the task
// unconditionally. The activation is part of the primary operation, so a
// guard refusal surfaces to the caller; with a future ShowFrom the task
// lands in deferred rather than active.
func (o *Orchestrator) RemovePredecessor(ctx context.Context, userID, taskID, predecessorID string) (*task.Task, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	t, err := o.taskOf(ctx, userID, taskID)
	if err != nil {
		return nil, err
	}
	pred, err := o.taskOf(ctx, userID, predecessorID)
	if err != nil {
		return nil, err
	}
	if err := o.graph.RemoveEdge(ctx, pred.ID, t.ID); err != nil {
		return nil, err
	}
	now := o.clock()
	unblocked, err := o.graph.Unblocked(ctx, t.ID)
	if err != nil {
		return nil, err
	}
	// The activation is unconditional: a guard refusal is the caller's
	// problem, and a task with a future ShowFrom lands in deferred.
	if err := t.Fire(task.EventActivate, task.Guards{Now: now, Unblocked: unblocked}); err != nil {
		return nil, err
	}
	t.UpdatedAt = now
	if err := o.tasks.Update(ctx, t); err != nil {
		return nil, err
	}
	o.bus.PublishNew(eventbus.EventTaskUpdated, t.ID, map[string]string{"user_id": t.UserID})
	return t, nil
}

// DeleteTask removes a task, detaches its pending successors (activating
// those now unblocked), and may spawn the next recurrence occurrence.
// res.Activated reports how many successors were released.
func (o *Orchestrator) DeleteTask(ctx context.Context, userID, taskID string) (*CascadeResult, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	u, err := o.users.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	t, err := o.taskOf(ctx, userID, taskID)
	if err != nil {
		return nil, err
	}
	now := o.clock()
	res := &CascadeResult{}

	pending, err := o.graph.PendingSuccessorsOf(ctx, t.ID)
	if err != nil {
		return nil, err
	}
	for _, s := range pending {
		if err := o.graph.RemoveEdge(ctx, t.ID, s.ID); err != nil {
			return nil, err
		}
		unblocked, err := o.graph.Unblocked(ctx, s.ID)
		if err != nil {
			return nil, err
		}
		if !unblocked {
			continue
		}
		if err := s.Fire(task.EventActivate, task.Guards{Now: now, Unblocked: true}); err != nil {
			var terr *task.TransitionError
			if errors.As(err, &terr) {
				continue
			}
			return nil, err
		}
		s.UpdatedAt = now
		if err := o.tasks.Update(ctx, s); err != nil {
			return nil, err
		}
		res.Activated = append(res.Activated, s)
	}

	if err := o.graph.RemoveTaskEdges(ctx, t.ID); err != nil {
		return nil, err
	}
	if err := o.tasks.Delete(ctx, t.ID); err != nil {
		return nil, err
	}

	res.NewOccurrence = o.spawnNextOccurrence(ctx, u, t, now)
	o.bus.PublishNew(eventbus.EventTaskDeleted, t.ID, map[string]string{"user_id": t.UserID})
	return res, nil
}

// activateUnblockedSuccessors releases every successor whose predecessors
// are all completed. A successor refusing the transition keeps its state;
// the cascade moves on.
func (o *Orchestrator) activateUnblockedSuccessors(ctx context.Context, t *task.Task, now time.Time, res *CascadeResult) error {
	succs, err := o.graph.SuccessorsOf(ctx, t.ID)
	if err != nil {
		return err
	}
	for _, s := range succs {
		unblocked, err := o.graph.Unblocked(ctx, s.ID)
		if err != nil {
			return err
		}
		if !unblocked {
			continue
		}
		if err := s.Fire(task.EventActivate, task.Guards{Now: now, Unblocked: true}); err != nil {
			var terr *task.TransitionError
			if errors.As(err, &terr) {
				continue
			}
			return err
		}
		s.UpdatedAt = now
		if err := o.tasks.Update(ctx, s); err != nil {
			return err
		}
		res.Activated = append(res.Activated, s)
		o.bus.PublishNew(eventbus.EventTaskCascaded, s.ID, map[string]string{
			"cause": t.ID,
			"state": s.State.String(),
		})
	}
	return nil
}

// blockOpenSuccessors pushes every active or deferred successor back to
// pending after a completion was undone.
func (o *Orchestrator) blockOpenSuccessors(ctx context.Context, t *task.Task, now time.Time, res *CascadeResult) error {
	succs, err := o.graph.SuccessorsOf(ctx, t.ID)
	if err != nil {
		return err
	}
	for _, s := range succs {
		if s.State != task.StateActive && s.State != task.StateDeferred {
			continue
		}
		if err := s.Fire(task.EventBlock, task.Guards{Now: now}); err != nil {
			var terr *task.TransitionError
			if errors.As(err, &terr) {
				continue
			}
			return err
		}
		s.UpdatedAt = now
		if err := o.tasks.Update(ctx, s); err != nil {
			return err
		}
		res.Blocked = append(res.Blocked, s)
		o.bus.PublishNew(eventbus.EventTaskCascaded, s.ID, map[string]string{
			"cause": t.ID,
			"state": s.State.String(),
		})
	}
	return nil
}

// blockIfObstructed pushes a freshly created task to pending when it
// already has open predecessors.
func (o *Orchestrator) blockIfObstructed(ctx context.Context, t *task.Task, now time.Time) error {
	if t.State != task.StateActive && t.State != task.StateDeferred {
		return nil
	}
	unblocked, err := o.graph.Unblocked(ctx, t.ID)
	if err != nil {
		return err
	}
	if unblocked {
		return nil
	}
	if err := t.Fire(task.EventBlock, task.Guards{Now: now}); err != nil {
		return err
	}
	t.UpdatedAt = now
	return o.tasks.Update(ctx, t)
}

// reevaluateBlocking re-derives the task's own blocked state after its
// predecessor list changed.
func (o *Orchestrator) reevaluateBlocking(ctx context.Context, t *task.Task, now time.Time) error {
	unblocked, err := o.graph.Unblocked(ctx, t.ID)
	if err != nil {
		return err
	}
	var fired bool
	switch {
	case unblocked && t.State == task.StatePending:
		if err := t.Fire(task.EventActivate, task.Guards{Now: now, Unblocked: true}); err != nil {
			var terr *task.TransitionError
			if !errors.As(err, &terr) {
				return err
			}
		} else {
			fired = true
		}
	case !unblocked && t.State == task.StateActive:
		// Only an active task is pulled back to pending. A deferred task
		// keeps its date; its own activate guard re-checks predecessors.
		if err := t.Fire(task.EventBlock, task.Guards{Now: now}); err != nil {
			return err
		}
		fired = true
	}
	if !fired {
		return nil
	}
	t.UpdatedAt = now
	return o.tasks.Update(ctx, t)
}

// spawnNextOccurrence runs the recurrence check after a completion or
// deletion. The primary operation is already committed, so failures here
// are logged and swallowed; the check can be repeated later.
func (o *Orchestrator) spawnNextOccurrence(ctx context.Context, u *user.User, t *task.Task, now time.Time) *task.Task {
	if !t.FromRecurrence() || o.recurrer == nil {
		return nil
	}
	open, err := o.recurrer.ActiveOccurrenceCount(ctx, t.RecurrenceID)
	if err != nil {
		slog.WarnContext(ctx, "recurrence check failed", slog.String("recurrence_id", t.RecurrenceID), slog.Any("error", err))
		return nil
	}
	if open > 0 {
		return nil
	}

	ref := now
	if t.Due != nil {
		ref = *t.Due
	} else if t.ShowFrom != nil {
		ref = *t.ShowFrom
	}
	// A reference date in a past day would make the next occurrence
	// overdue on arrival; clamp it to yesterday so the spawned task lands
	// on or after today.
	today := u.Today(now)
	refDay := u.Today(ref)
	if refDay.Before(today) {
		ref = today.AddDate(0, 0, -1)
	} else {
		ref = refDay
	}

	due, err := o.recurrer.IsDue(ctx, t.RecurrenceID, ref)
	if err != nil {
		slog.WarnContext(ctx, "recurrence check failed", slog.String("recurrence_id", t.RecurrenceID), slog.Any("error", err))
		return nil
	}
	if !due {
		return nil
	}
	next, err := o.recurrer.Materialize(ctx, t.RecurrenceID, ref)
	if err != nil {
		slog.WarnContext(ctx, "recurrence spawn failed", slog.String("recurrence_id", t.RecurrenceID), slog.Any("error", err))
		return nil
	}
	o.bus.PublishNew(eventbus.EventOccurrenceSpawned, next.ID, map[string]string{
		"recurrence_id": t.RecurrenceID,
		"completed_id":  t.ID,
	})
	return next
}
