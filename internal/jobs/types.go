package jobs

import (
	"encoding/json"
	"time"
)

type Status string

const (
	StatusInProgress Status = "in-progress"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// IsTerminal reports whether no further transition is allowed from s.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// ErrorKind classifies a job failure.
type ErrorKind string

const (
	// ErrorKindInput marks malformed caller input (e.g. an unparseable rule
	// specification). Never retried.
	ErrorKindInput ErrorKind = "input"
	// ErrorKindInfra marks engine crashes, storage write failures and other
	// environmental errors.
	ErrorKindInfra ErrorKind = "infrastructure"
)

// Error describes why a job failed.
type Error struct {
	Kind   ErrorKind `json:"kind"`
	Reason string    `json:"reason"`
	At     time.Time `json:"at"`
}

// Job is a tracked unit of background work. Records live for the process
// lifetime and are never deleted.
type Job struct {
	ID        string          `json:"id"`
	Status    Status          `json:"status"`
	Progress  int             `json:"progress"`
	Result    json.RawMessage `json:"result,omitempty"`
	Error     *Error          `json:"error,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// Update is a partial mutation applied to a job record. Nil fields are left
// untouched.
type Update struct {
	Status   *Status
	Progress *int
	Result   json.RawMessage
	Error    *Error
}
