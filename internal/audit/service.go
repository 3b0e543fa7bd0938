// Package audit records every meaningful state transition before any outbound
// side effect is attempted, so the durable record reflects intent even when
// delivery later fails.
package audit

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// Store persists entries. Append-only from the service's perspective.
type Store interface {
	Append(ctx context.Context, entry Entry) error
}

// Service fills in identity and time, then appends synchronously: callers
// rely on the entry existing before they fan anything out.
type Service struct {
	store  Store
	logger *slog.Logger
	now    func() time.Time
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func NewService(store Store, opts ...Option) *Service {
	s := &Service{store: store, logger: slog.Default(), now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Emit appends one entry. A store failure is logged through the audit path's
// own fallback and swallowed: audit trouble never rolls back the transition
// it records.
func (s *Service) Emit(ctx context.Context, entry Entry) {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = s.now()
	}
	if err := s.store.Append(ctx, entry); err != nil {
		s.logger.Error("audit append failed",
			"action", entry.Action,
			"actor_id", entry.ActorID,
			"target_id", entry.TargetID,
			"error", err,
		)
	}
}
