package model

import (
	"time"
)

type Session struct {
	ID              string        `db:"id" json:"id"`
	TrainerID       string        `db:"trainer_id" json:"trainerId"`
	BootcampID      *string       `db:"bootcamp_id" json:"bootcampId,omitempty"`
	Title           string        `db:"title" json:"title"`
	Description     string        `db:"description" json:"description,omitempty"`
	StartAt         time.Time     `db:"start_at" json:"startAt"`
	EndAt           time.Time     `db:"end_at" json:"endAt"`
	DurationMinutes int           `db:"duration_minutes" json:"durationMinutes"`
	Location        string        `db:"location" json:"location,omitempty"`
	Format          SessionFormat `db:"format" json:"format"`
	Status          SessionStatus `db:"status" json:"status"`
	CreatedAt       time.Time     `db:"created_at" json:"createdAt"`
	UpdatedAt       time.Time     `db:"updated_at" json:"updatedAt"`
}

// Overlaps reports half-open interval intersection with [start, end):
// back-to-back sessions sharing an endpoint do not overlap.
func (s *Session) Overlaps(start, end time.Time) bool {
	return s.StartAt.Before(end) && s.EndAt.After(start)
}

type CreateSessionParams struct {
	TrainerID   string
	BootcampID  *string
	Title       string
	Description string
	StartAt     time.Time
	EndAt       time.Time
	Location    string
	Format      SessionFormat
}

// SessionPatch carries a partial update; nil fields are left untouched.
type SessionPatch struct {
	Title       *string
	Description *string
	StartAt     *time.Time
	EndAt       *time.Time
	Location    *string
	Format      *SessionFormat
}

// Temporal reports whether the patch moves the session in time, which
// requires re-running the conflict check.
func (p SessionPatch) Temporal() bool {
	return p.StartAt != nil || p.EndAt != nil
}

// DurationMinutes computes the derived duration of [start, end).
func DurationMinutes(start, end time.Time) int {
	return int(end.Sub(start) / time.Minute)
}
