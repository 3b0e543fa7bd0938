package ratelimit

import (
	"context"
	"log/slog"
)

// ViolationStore persists rejected-event records for abuse analysis.
type ViolationStore interface {
	RecordViolation(ctx context.Context, v Violation) error
}

// AsyncRecorder decouples violation persistence from the hot path: Record
// never blocks, and a full inbox drops the record rather than stalling the
// gate. Run drains the inbox until the context is canceled.
type AsyncRecorder struct {
	store  ViolationStore
	inbox  chan Violation
	logger *slog.Logger
}

func NewAsyncRecorder(store ViolationStore, buffer int, logger *slog.Logger) *AsyncRecorder {
	if logger == nil {
		logger = slog.Default()
	}
	return &AsyncRecorder{
		store:  store,
		inbox:  make(chan Violation, buffer),
		logger: logger,
	}
}

func (r *AsyncRecorder) Record(v Violation) {
	select {
	case r.inbox <- v:
	default:
		r.logger.Warn("violation inbox full, dropping record", "actor_id", v.ActorID)
	}
}

func (r *AsyncRecorder) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case v := <-r.inbox:
			if err := r.store.RecordViolation(ctx, v); err != nil {
				r.logger.Error("record violation failed", "actor_id", v.ActorID, "error", err)
			}
		}
	}
}
