// Package profile keeps per-member service records: in-game identity, rank
// and department, refreshed by the profile form and by approved decisions.
package profile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"dutybot/pkg/platform/sentinel"
)

// Profile is one member's record. Zero-value fields mean "not filled in yet";
// updates are partial and never blank out a field that was set before.
type Profile struct {
	ActorID    int64
	InGameName string
	Rank       string
	Department string
	UpdatedAt  time.Time
}

// Store persists profiles keyed by actor id.
type Store interface {
	GetProfile(ctx context.Context, actorID int64) (*Profile, error)
	PutProfile(ctx context.Context, p *Profile) error
}

// Service applies partial updates over whatever record already exists.
type Service struct {
	store  Store
	logger *slog.Logger
	now    func() time.Time
}

type Option func(*Service)

func WithLogger(l *slog.Logger) Option {
	return func(s *Service) { s.logger = l }
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

// Get returns the actor's profile, or sentinel.ErrNotFound.
func (s *Service) Get(ctx context.Context, actorID int64) (*Profile, error) {
	return s.store.GetProfile(ctx, actorID)
}

// Upsert merges the given fields into the actor's record. Empty fields keep
// their stored value.
func (s *Service) Upsert(ctx context.Context, update Profile) (*Profile, error) {
	current, err := s.store.GetProfile(ctx, update.ActorID)
	if errors.Is(err, sentinel.ErrNotFound) {
		current = &Profile{ActorID: update.ActorID}
	} else if err != nil {
		return nil, fmt.Errorf("load profile %d: %w", update.ActorID, err)
	}

	if update.InGameName != "" {
		current.InGameName = update.InGameName
	}
	if update.Rank != "" {
		current.Rank = update.Rank
	}
	if update.Department != "" {
		current.Department = update.Department
	}
	current.UpdatedAt = s.now()

	if err := s.store.PutProfile(ctx, current); err != nil {
		return nil, fmt.Errorf("save profile %d: %w", update.ActorID, err)
	}
	return current, nil
}
