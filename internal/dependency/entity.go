package dependency

import "time"

// Edge is a directed dependency: the predecessor must complete before the
// successor becomes workable.
type Edge struct {
	PredecessorID string    `yaml:"predecessor_id"`
	SuccessorID   string    `yaml:"successor_id"`
	CreatedAt     time.Time `yaml:"created_at"`
}
