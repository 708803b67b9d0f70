package task

import (
	"fmt"
	"strings"
)

// Violation is a single failed field invariant.
type Violation struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationError carries every violation found in one validation pass.
type ValidationError struct {
	Violations []Violation
}

func (e *ValidationError) Add(field, message string) {
	e.Violations = append(e.Violations, Violation{Field: field, Message: message})
}

func (e *ValidationError) Empty() bool {
	return len(e.Violations) == 0
}

func (e *ValidationError) Error() string {
	if len(e.Violations) == 0 {
		return "validation failed"
	}
	parts := make([]string, 0, len(e.Violations))
	for _, v := range e.Violations {
		parts = append(parts, fmt.Sprintf("%s %s", v.Field, v.Message))
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// TransitionError reports an event that no transition accepted from the
// task's current state.
type TransitionError struct {
	Event Event
	From  State
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("event %q is not allowed from state %q", e.Event, e.From)
}
