package task

import "context"

// Filter narrows List results. Zero-valued fields are ignored.
type Filter struct {
	UserID       string
	ContextID    string
	ProjectID    string
	RecurrenceID string
	State        State
}

func (f Filter) Match(t *Task) bool {
	if f.UserID != "" && t.UserID != f.UserID {
		return false
	}
	if f.ContextID != "" && t.ContextID != f.ContextID {
		return false
	}
	if f.ProjectID != "" && t.ProjectID != f.ProjectID {
		return false
	}
	if f.RecurrenceID != "" && t.RecurrenceID != f.RecurrenceID {
		return false
	}
	if f.State != "" && t.State != f.State {
		return false
	}
	return true
}

type Repository interface {
	Create(ctx context.Context, t *Task) error
	Get(ctx context.Context, id string) (*Task, error)
	List(ctx context.Context, f Filter) ([]*Task, error)
	Update(ctx context.Context, t *Task) error
	Delete(ctx context.Context, id string) error
}
