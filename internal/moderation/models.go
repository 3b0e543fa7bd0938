package moderation

import (
	"time"

	"dutybot/internal/event"
	"dutybot/internal/notify"
)

// Status is a request's position in its lifecycle. A request leaves Pending
// exactly once.
type Status string

const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusRejected Status = "rejected"
)

// Request is one submitted item awaiting a single reviewer decision.
type Request struct {
	ID               uint64
	Kind             event.TargetKind
	SubmitterID      int64
	SubmitterDisplay string
	Fields           map[string]string
	Evidence         []string
	SubmittedAt      time.Time

	Status        Status
	DecidedBy     int64
	DecidedByName string
	DecideReason  string
	DecidedAt     time.Time

	// Deliveries maps reviewer id to the handle of that reviewer's copy of
	// the review card, so the decision can be written back onto every copy.
	Deliveries map[int64]notify.MessageHandle
}

// Decision is the reviewer's completed verdict.
type Decision struct {
	Outcome      event.ActionKind
	ReviewerID   int64
	ReviewerName string
	Reason       string
	At           time.Time
}

// Submission is the engine's hand-off of a completed form.
type Submission struct {
	Kind             event.TargetKind
	SubmitterID      int64
	SubmitterDisplay string
	Fields           map[string]string
	Evidence         []string
}
