package recurrence

import (
	"context"
	"time"

	"github.com/taskchain/taskchain/internal/task"
	"github.com/taskchain/taskchain/internal/user"
	"github.com/taskchain/taskchain/pkg/cerr"
)

// Service answers due-ness questions and spawns occurrence tasks from
// templates. Callers decide when to ask; the service never watches the
// clock on its own.
type Service struct {
	templates Repository
	tasks     task.Repository
	users     user.Repository
	clock     func() time.Time
}

func NewService(templates Repository, tasks task.Repository, users user.Repository) *Service {
	return &Service{templates: templates, tasks: tasks, users: users, clock: time.Now}
}

// IsDue reports whether the template has a next occurrence when measured
// from asOf. Inactive templates are never due.
func (s *Service) IsDue(ctx context.Context, templateID string, asOf time.Time) (bool, error) {
	tpl, err := s.templates.Get(ctx, templateID)
	if err != nil {
		return false, err
	}
	if !tpl.Active {
		return false, nil
	}
	u, err := s.users.Get(ctx, tpl.UserID)
	if err != nil {
		return false, err
	}
	_, ok := tpl.NextOccurrence(asOf, u.Location())
	return ok, nil
}

// ActiveOccurrenceCount counts the template's not-completed occurrence
// tasks.
func (s *Service) ActiveOccurrenceCount(ctx context.Context, templateID string) (int, error) {
	occurrences, err := s.tasks.List(ctx, task.Filter{RecurrenceID: templateID})
	if err != nil {
		return 0, err
	}
	n := 0
	for _, t := range occurrences {
		if t.State != task.StateCompleted {
			n++
		}
	}
	return n, nil
}

// Materialize creates and persists the next occurrence task, due at the
// occurrence date following asOf.
func (s *Service) Materialize(ctx context.Context, templateID string, asOf time.Time) (*task.Task, error) {
	tpl, err := s.templates.Get(ctx, templateID)
	if err != nil {
		return nil, err
	}
	u, err := s.users.Get(ctx, tpl.UserID)
	if err != nil {
		return nil, err
	}
	due, ok := tpl.NextOccurrence(asOf, u.Location())
	if !ok {
		return nil, cerr.NewError(cerr.FailedPrecondition, "recurrence has ended", nil)
	}
	now := s.clock()
	t := task.New(task.NewTaskParams{
		UserID:       tpl.UserID,
		ContextID:    tpl.ContextID,
		ProjectID:    tpl.ProjectID,
		RecurrenceID: tpl.ID,
		Description:  tpl.Description,
		Notes:        tpl.Notes,
		Due:          &due,
		Now:          now,
		Today:        u.Today(now),
	})
	if err := s.tasks.Create(ctx, t); err != nil {
		return nil, err
	}
	return t, nil
}
