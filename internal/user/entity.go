package user

import "time"

// User owns tasks, contexts and projects. Timezone drives every "today"
// calculation, so two users completing the same task at the same instant can
// land on different calendar days.
type User struct {
	ID        string    `yaml:"id"`
	Name      string    `yaml:"name"`
	Timezone  string    `yaml:"timezone"`
	CreatedAt time.Time `yaml:"created_at"`
	UpdatedAt time.Time `yaml:"updated_at"`
}

func (u *User) Location() *time.Location {
	if u == nil || u.Timezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(u.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// Today returns the start of the user's current calendar day.
func (u *User) Today(now time.Time) time.Time {
	loc := u.Location()
	y, m, d := now.In(loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, loc)
}
