package ratelimit

import "time"

// Kind separates event classes whose natural cadence differs: typed messages
// arrive slower than button presses.
type Kind string

const (
	KindMessage Kind = "message"
	KindAction  Kind = "action"
)

// Config holds the knobs for one event kind.
type Config struct {
	// Limit is the maximum number of admitted events per Window.
	Limit int
	// Window is the sliding range the limit applies to.
	Window time.Duration
	// MinInterval is the floor between two admitted events.
	MinInterval time.Duration
}

// Result is the outcome of a gate check. RetryAfter is positive whenever the
// event was rejected.
type Result struct {
	Allowed    bool
	RetryAfter time.Duration
}

// Violation is recorded (fire-and-forget) when an event is rejected, for
// later abuse analysis.
type Violation struct {
	ActorID    int64
	Kind       Kind
	RetryAfter time.Duration
	OccurredAt time.Time
}
