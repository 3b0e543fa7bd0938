// Package storage provides the durable backends behind the service-owned
// store interfaces: an in-memory set for tests and single-node runs, and a
// sqlite set in the sqlite subpackage.
package storage

import (
	"context"
	"sync"

	"dutybot/internal/audit"
	"dutybot/internal/moderation"
	"dutybot/internal/profile"
	"dutybot/internal/ratelimit"
	"dutybot/pkg/platform/sentinel"
)

// Memory bundles every in-memory store behind one constructor so wiring
// stays symmetric with the sqlite backend.
type Memory struct {
	AuditLog   *MemoryAuditLog
	Requests   *MemoryRequestStore
	Profiles   *MemoryProfileStore
	Violations *MemoryViolationStore
}

func NewMemory() *Memory {
	return &Memory{
		AuditLog:   NewMemoryAuditLog(),
		Requests:   NewMemoryRequestStore(),
		Profiles:   NewMemoryProfileStore(),
		Violations: NewMemoryViolationStore(),
	}
}

// MemoryAuditLog is an append-only in-memory audit trail.
type MemoryAuditLog struct {
	mu      sync.RWMutex
	entries []audit.Entry
}

func NewMemoryAuditLog() *MemoryAuditLog {
	return &MemoryAuditLog{}
}

func (s *MemoryAuditLog) Append(_ context.Context, entry audit.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, entry)
	return nil
}

func (s *MemoryAuditLog) ListByActor(_ context.Context, actorID int64) ([]audit.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []audit.Entry
	for _, e := range s.entries {
		if e.ActorID == actorID {
			out = append(out, e)
		}
	}
	return out, nil
}

// MemoryRequestStore keeps the durable request record in memory.
type MemoryRequestStore struct {
	mu       sync.RWMutex
	requests map[uint64]moderation.Request
}

func NewMemoryRequestStore() *MemoryRequestStore {
	return &MemoryRequestStore{requests: make(map[uint64]moderation.Request)}
}

func (s *MemoryRequestStore) RecordRequest(_ context.Context, req *moderation.Request) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests[req.ID] = *req
	return nil
}

func (s *MemoryRequestStore) RecordDecision(_ context.Context, req *moderation.Request) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests[req.ID] = *req
	return nil
}

func (s *MemoryRequestStore) FindRequest(_ context.Context, id uint64) (*moderation.Request, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	req, ok := s.requests[id]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return &req, nil
}

// MemoryProfileStore keeps member profiles in memory.
type MemoryProfileStore struct {
	mu       sync.RWMutex
	profiles map[int64]profile.Profile
}

func NewMemoryProfileStore() *MemoryProfileStore {
	return &MemoryProfileStore{profiles: make(map[int64]profile.Profile)}
}

func (s *MemoryProfileStore) GetProfile(_ context.Context, actorID int64) (*profile.Profile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.profiles[actorID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return &p, nil
}

func (s *MemoryProfileStore) PutProfile(_ context.Context, p *profile.Profile) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.profiles[p.ActorID] = *p
	return nil
}

// MemoryViolationStore keeps rate-limit violations in memory.
type MemoryViolationStore struct {
	mu         sync.RWMutex
	violations []ratelimit.Violation
}

func NewMemoryViolationStore() *MemoryViolationStore {
	return &MemoryViolationStore{}
}

func (s *MemoryViolationStore) RecordViolation(_ context.Context, v ratelimit.Violation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.violations = append(s.violations, v)
	return nil
}

func (s *MemoryViolationStore) ListViolations(_ context.Context, actorID int64) ([]ratelimit.Violation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []ratelimit.Violation
	for _, v := range s.violations {
		if v.ActorID == actorID {
			out = append(out, v)
		}
	}
	return out, nil
}
