package orchestrator

import (
	"context"

	"github.com/taskchain/taskchain/internal/eventbus"
	"github.com/taskchain/taskchain/internal/task"
	"github.com/taskchain/taskchain/pkg/cerr"
)

// SetProjectHidden flips a project's visibility and reconciles every task
// assigned to it. Returns the tasks whose state changed.
func (o *Orchestrator) SetProjectHidden(ctx context.Context, userID, projectID string, hidden bool) ([]*task.Task, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	p, err := o.projects.Get(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if p.UserID != userID {
		return nil, cerr.NewError(cerr.NotFound, "project not found", nil)
	}
	now := o.clock()
	p.Hidden = hidden
	p.UpdatedAt = now
	if err := o.projects.Update(ctx, p); err != nil {
		return nil, err
	}

	assigned, err := o.tasks.List(ctx, task.Filter{UserID: userID, ProjectID: projectID})
	if err != nil {
		return nil, err
	}
	var changed []*task.Task
	for _, t := range assigned {
		unblocked, err := o.graph.Unblocked(ctx, t.ID)
		if err != nil {
			return nil, err
		}
		if !t.UpdateStateFromProject(hidden, unblocked) {
			continue
		}
		t.UpdatedAt = now
		if err := o.tasks.Update(ctx, t); err != nil {
			return nil, err
		}
		changed = append(changed, t)
		o.bus.PublishNew(eventbus.EventTaskCascaded, t.ID, map[string]string{
			"cause": "project:" + projectID,
			"state": t.State.String(),
		})
	}
	return changed, nil
}
