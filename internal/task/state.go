package task

import "time"

// State is the lifecycle position of a task.
type State string

const (
	StateActive        State = "active"
	StateDeferred      State = "deferred"
	StatePending       State = "pending"
	StateProjectHidden State = "project_hidden"
	StateCompleted     State = "completed"
)

func (s State) Valid() bool {
	switch s {
	case StateActive, StateDeferred, StatePending, StateProjectHidden, StateCompleted:
		return true
	}
	return false
}

func (s State) String() string {
	return string(s)
}

// Event names a requested lifecycle transition.
type Event string

const (
	EventDefer    Event = "defer"
	EventComplete Event = "complete"
	EventActivate Event = "activate"
	EventHide     Event = "hide"
	EventUnhide   Event = "unhide"
	EventBlock    Event = "block"
)

// Guards is the environment transition guards consult. Unblocked must be
// true when the task has no uncompleted predecessors.
type Guards struct {
	Now       time.Time
	Unblocked bool
}

type transition struct {
	from  State
	to    State
	guard func(t *Task, g Guards) bool
}

// transitions lists, per event, the candidate transitions in evaluation
// order. Fire takes the first candidate whose source state matches and whose
// guard passes.
var transitions = map[Event][]transition{
	EventDefer: {
		{from: StateActive, to: StateDeferred},
	},
	EventComplete: {
		{from: StateActive, to: StateCompleted},
		{from: StateProjectHidden, to: StateCompleted},
		{from: StateDeferred, to: StateCompleted},
	},
	EventActivate: {
		{from: StateProjectHidden, to: StateActive},
		{from: StateCompleted, to: StateActive},
		{from: StateDeferred, to: StateActive},
		// An unset ShowFrom short-circuits without re-checking
		// predecessors. Predecessor state only matters once a date is
		// involved.
		{from: StatePending, to: StateActive, guard: func(t *Task, g Guards) bool {
			return t.ShowFrom == nil || (g.Now.After(*t.ShowFrom) && g.Unblocked)
		}},
		{from: StatePending, to: StateDeferred, guard: func(t *Task, g Guards) bool {
			return g.Unblocked
		}},
	},
	EventHide: {
		{from: StateActive, to: StateProjectHidden},
		{from: StateDeferred, to: StateProjectHidden},
	},
	EventUnhide: {
		{from: StateProjectHidden, to: StateDeferred, guard: func(t *Task, g Guards) bool {
			return t.ShowFrom != nil
		}},
		{from: StateProjectHidden, to: StateActive},
	},
	EventBlock: {
		{from: StateActive, to: StatePending},
		{from: StateDeferred, to: StatePending},
	},
}

// Fire attempts the named event. When no candidate transition applies the
// task is left untouched and a TransitionError is returned.
func (t *Task) Fire(event Event, g Guards) error {
	for _, rule := range transitions[event] {
		if rule.from != t.State {
			continue
		}
		if rule.guard != nil && !rule.guard(t, g) {
			continue
		}
		t.applyTransition(rule.to, g)
		return nil
	}
	return &TransitionError{Event: event, From: t.State}
}

// ToggleCompletion completes the task, or reactivates it when already
// completed.
func (t *Task) ToggleCompletion(g Guards) error {
	if t.State == StateCompleted {
		return t.Fire(EventActivate, g)
	}
	return t.Fire(EventComplete, g)
}

func (t *Task) applyTransition(to State, g Guards) {
	if t.State == StateCompleted {
		t.CompletedAt = nil
	}
	t.State = to
	switch to {
	case StateCompleted:
		at := g.Now
		t.CompletedAt = &at
	case StateActive:
		// Entering active always clears the stamp, whichever state the
		// task arrived from. ShowFrom is deliberately left alone so a
		// later block/activate round trip keeps the date.
		t.CompletedAt = nil
	}
}
