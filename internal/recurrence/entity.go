package recurrence

import "time"

// Pattern is the repetition interval of a template.
type Pattern string

const (
	PatternDaily   Pattern = "daily"
	PatternWeekly  Pattern = "weekly"
	PatternMonthly Pattern = "monthly"
	PatternYearly  Pattern = "yearly"
)

func (p Pattern) Valid() bool {
	switch p {
	case PatternDaily, PatternWeekly, PatternMonthly, PatternYearly:
		return true
	}
	return false
}

// Template describes a repeating task. Each completed or deleted occurrence
// may spawn the next one; at most one not-completed occurrence per template
// exists at a time.
type Template struct {
	ID          string     `yaml:"id"`
	UserID      string     `yaml:"user_id"`
	ContextID   string     `yaml:"context_id"`
	ProjectID   string     `yaml:"project_id,omitempty"`
	Description string     `yaml:"description"`
	Notes       string     `yaml:"notes,omitempty"`
	Pattern     Pattern    `yaml:"pattern"`
	Every       int        `yaml:"every"`
	Active      bool       `yaml:"active"`
	Until       *time.Time `yaml:"until,omitempty"`
	CreatedAt   time.Time  `yaml:"created_at"`
	UpdatedAt   time.Time  `yaml:"updated_at"`
}

// NextOccurrence computes the start-of-day due date following the reference
// date. ok is false when the series has run past its end date.
func (t *Template) NextOccurrence(after time.Time, loc *time.Location) (time.Time, bool) {
	every := t.Every
	if every < 1 {
		every = 1
	}
	var next time.Time
	switch t.Pattern {
	case PatternWeekly:
		next = after.AddDate(0, 0, 7*every)
	case PatternMonthly:
		next = after.AddDate(0, every, 0)
	case PatternYearly:
		next = after.AddDate(every, 0, 0)
	default:
		next = after.AddDate(0, 0, every)
	}
	y, m, d := next.In(loc).Date()
	next = time.Date(y, m, d, 0, 0, 0, 0, loc)
	if t.Until != nil && next.After(*t.Until) {
		return time.Time{}, false
	}
	return next, true
}
