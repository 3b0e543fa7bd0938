package audit

import "time"

// Entry is emitted from domain logic to capture key transitions. Append-only:
// the engine never mutates or deletes what it wrote.
type Entry struct {
	ID        string
	ActorID   int64
	Action    Action
	TargetID  string
	Details   string
	Timestamp time.Time
}

type Action string

const (
	ActionRequestSubmitted   Action = "request_submitted"
	ActionRequestApproved    Action = "request_approved"
	ActionRequestRejected    Action = "request_rejected"
	ActionDecisionRaceLost   Action = "decision_race_lost"
	ActionRateLimited        Action = "rate_limited"
	ActionValidationRepeated Action = "validation_repeated"
	ActionFormCanceled       Action = "form_canceled"
	ActionFormCompleted      Action = "form_completed"
	ActionProfileUpdated     Action = "profile_updated"
)
