package project

import "time"

// NoneName is the display name of the no-project sentinel. It round-trips
// through task reference strings, so it must never collide with a real
// project name.
const NoneName = "(none)"

type Project struct {
	ID        string    `yaml:"id"`
	UserID    string    `yaml:"user_id"`
	Name      string    `yaml:"name"`
	Hidden    bool      `yaml:"hidden,omitempty"`
	CreatedAt time.Time `yaml:"created_at"`
	UpdatedAt time.Time `yaml:"updated_at"`
}

// Null returns the no-project sentinel. Tasks without a project resolve to
// it instead of nil so callers can read Name and Hidden unconditionally.
func Null() *Project {
	return &Project{Name: NoneName}
}

// IsNull reports whether p is the no-project sentinel.
func (p *Project) IsNull() bool {
	return p == nil || p.ID == ""
}
