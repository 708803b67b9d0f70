package task

import (
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
)

const (
	maxDescriptionBytes = 100
	maxNotesBytes       = 60000
)

// Task is a unit of work moving through the five-state lifecycle. It may
// depend on other tasks; the dependency edges themselves live in the
// dependency package.
type Task struct {
	ID           string     `yaml:"id"`
	UserID       string     `yaml:"user_id"`
	ContextID    string     `yaml:"context_id"`
	ProjectID    string     `yaml:"project_id,omitempty"`
	RecurrenceID string     `yaml:"recurrence_id,omitempty"`
	Description  string     `yaml:"description"`
	Notes        string     `yaml:"notes,omitempty"`
	State        State      `yaml:"state"`
	ShowFrom     *time.Time `yaml:"show_from,omitempty"`
	Due          *time.Time `yaml:"due,omitempty"`
	CompletedAt  *time.Time `yaml:"completed_at,omitempty"`
	CreatedAt    time.Time  `yaml:"created_at"`
	UpdatedAt    time.Time  `yaml:"updated_at"`

	// predecessorEdit holds a staged predecessor-list change. It is applied
	// by the orchestrator after the task itself has been saved, never on
	// assignment.
	predecessorEdit *PredecessorEdit
}

// PredecessorEdit is the staged target set of predecessor references.
type PredecessorEdit struct {
	Specs []string
}

// NewTaskParams carries everything needed to construct a task. Today must be
// the owning user's start of day; it drives initial-state derivation.
type NewTaskParams struct {
	UserID       string
	ContextID    string
	ProjectID    string
	RecurrenceID string
	Description  string
	Notes        string
	State        State // explicit override; empty means "derive"
	ShowFrom     *time.Time
	Due          *time.Time
	Now          time.Time
	Today        time.Time
}

// New constructs a task. State is settled before anything else because the
// rest of the record (completion bookkeeping in particular) keys off it: an
// explicit caller state wins, then a future ShowFrom means deferred, then
// active.
func New(p NewTaskParams) *Task {
	t := &Task{}
	switch {
	case p.State != "":
		t.State = p.State
	case p.ShowFrom != nil && p.ShowFrom.After(p.Today):
		t.State = StateDeferred
	default:
		t.State = StateActive
	}

	t.ID = ulid.Make().String()
	t.UserID = p.UserID
	t.ContextID = p.ContextID
	t.ProjectID = p.ProjectID
	t.RecurrenceID = p.RecurrenceID
	t.Description = p.Description
	t.Notes = p.Notes
	t.ShowFrom = p.ShowFrom
	t.Due = p.Due
	t.CreatedAt = p.Now
	t.UpdatedAt = p.Now
	if t.State == StateCompleted {
		at := p.Now
		t.CompletedAt = &at
	}
	return t
}

// StagePredecessorList extracts every reference from free text and stages it
// as the new target predecessor set. Returns the extracted references.
func (t *Task) StagePredecessorList(text string) []string {
	specs := ParseSpecStrings(text)
	t.predecessorEdit = &PredecessorEdit{Specs: specs}
	return specs
}

// StagePredecessorSpecs stages an explicit target set of references.
func (t *Task) StagePredecessorSpecs(specs []string) {
	t.predecessorEdit = &PredecessorEdit{Specs: specs}
}

// StagedPredecessorEdit returns the pending edit, or nil when the
// predecessor list has not been touched.
func (t *Task) StagedPredecessorEdit() *PredecessorEdit {
	return t.predecessorEdit
}

func (t *Task) ClearPredecessorEdit() {
	t.predecessorEdit = nil
}

// FromRecurrence reports whether the task was spawned from a recurrence
// template.
func (t *Task) FromRecurrence() bool {
	return t.RecurrenceID != ""
}

// CollectFieldViolations appends every violated field invariant to verr.
// Validation does not short-circuit: the caller gets the full list.
func (t *Task) CollectFieldViolations(verr *ValidationError) {
	if t.Description == "" {
		verr.Add("description", "must not be empty")
	}
	if len(t.Description) > maxDescriptionBytes {
		verr.Add("description", "must be at most 100 bytes")
	}
	if strings.Contains(t.Description, `"`) {
		verr.Add("description", `may not contain " characters`)
	}
	if len(t.Notes) > maxNotesBytes {
		verr.Add("notes", "must be at most 60000 bytes")
	}
	if t.ContextID == "" {
		verr.Add("context", "must be present")
	}
	if t.UserID == "" {
		verr.Add("user", "must be present")
	}
	if !t.State.Valid() {
		verr.Add("state", "unknown state")
	}
	if (t.CompletedAt != nil) != (t.State == StateCompleted) {
		verr.Add("completed_at", "must be set exactly when the task is completed")
	}
}

// Reschedule changes ShowFrom as one command: validation plus the coupled
// state transition. Clearing the date while deferred activates the task;
// setting a date past today while active defers it. A date before today is
// rejected here, at the moment of change; previously stored past dates are
// never re-validated.
func (t *Task) Reschedule(showFrom *time.Time, g Guards, today time.Time) error {
	if showFrom != nil && showFrom.Before(today) {
		verr := &ValidationError{}
		verr.Add("show_from", "must not be in the past")
		return verr
	}
	if t.State == StateDeferred && showFrom == nil && t.ShowFrom != nil {
		if err := t.Fire(EventActivate, g); err != nil {
			return err
		}
	}
	if t.State == StateActive && showFrom != nil && showFrom.After(today) {
		if err := t.Fire(EventDefer, g); err != nil {
			return err
		}
	}
	t.ShowFrom = showFrom
	return nil
}

// UpdateStateFromProject reconciles the task against its project's hidden
// flag. Callers must invoke it whenever the flag or the task's project
// assignment changes; nothing does so automatically. States are assigned
// directly, bypassing entry effects, matching how project visibility has
// always been reconciled.
func (t *Task) UpdateStateFromProject(projectHidden, unblocked bool) bool {
	switch {
	case t.State == StateProjectHidden && !projectHidden:
		if unblocked {
			t.State = StateActive
		} else {
			t.State = StatePending
		}
		return true
	case t.State == StateActive && projectHidden:
		t.State = StateProjectHidden
		return true
	}
	return false
}
