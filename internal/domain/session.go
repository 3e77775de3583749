package domain

import (
	"time"
)

// Session is a caller-identified conversation and its history.
type Session struct {
	ID        string
	History   History
	CreatedAt time.Time
	UpdatedAt time.Time
}

// IdleFor returns how long the session has gone without an update.
func (s *Session) IdleFor(now time.Time) time.Duration {
	if s.UpdatedAt.IsZero() {
		return now.Sub(s.CreatedAt)
	}
	return now.Sub(s.UpdatedAt)
}
