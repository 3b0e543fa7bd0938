package moderation

import (
	"context"

	"dutybot/internal/notify"
)

// Ledger is the authoritative pending-request state. Decide is the only
// mutation that races: implementations must make the pending-to-decided flip
// atomic so that of any number of concurrent decisions exactly one wins and
// the rest observe sentinel.ErrAlreadyDecided.
type Ledger interface {
	// Add assigns the next request id and stores the request as pending.
	Add(ctx context.Context, req *Request) (uint64, error)
	Get(ctx context.Context, id uint64) (*Request, error)
	// Decide atomically flips a pending request to its decided status. It
	// returns the decided snapshot in every case; when the request was
	// already decided the snapshot carries the winning decision alongside
	// sentinel.ErrAlreadyDecided.
	Decide(ctx context.Context, id uint64, d Decision) (*Request, error)
	// TrackDelivery records the handle of one reviewer's copy of the review
	// card.
	TrackDelivery(ctx context.Context, id uint64, reviewerID int64, handle notify.MessageHandle) error
	// Remove drops a request once its decision has been durably recorded.
	Remove(ctx context.Context, id uint64) error
	PendingCount(ctx context.Context) (int, error)
}
