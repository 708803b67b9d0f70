// Package taskctx holds the GTD context a task belongs to ("@home",
// "@errands"). Every task has exactly one.
package taskctx

import "time"

type Context struct {
	ID        string    `yaml:"id"`
	UserID    string    `yaml:"user_id"`
	Name      string    `yaml:"name"`
	Hidden    bool      `yaml:"hidden,omitempty"`
	CreatedAt time.Time `yaml:"created_at"`
	UpdatedAt time.Time `yaml:"updated_at"`
}
