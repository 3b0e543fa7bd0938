package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// WindowStore tracks admitted-event timestamps per key. Implementations must
// be safe for concurrent use per key; the limiter never locks above them.
type WindowStore interface {
	// Tap evicts entries older than cfg.Window, applies the min-interval and
	// count checks in that order, and records now when the event is admitted.
	Tap(ctx context.Context, key string, cfg Config, now time.Time) (Result, error)
}

/// MemoryWindows is the default single-process implementation: a sliding
// window of timestamps per key, cleaned up on every check.
type MemoryWindows struct {
	mu      sync.Mutex
	windows map[string]*slidingWindow
}

type slidingWindow struct {
	events    []time.Time
	lastEvent time.Time
}

func NewMemoryWindows() *MemoryWindows {
	return &MemoryWindows{windows: make(map[string]*slidingWindow)}
}

func (s *MemoryWindows) Tap(_ context.Context, key string, cfg Config, now time.Time) (Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	w := s.windows[key]
	if w == nil {
		w = &slidingWindow{}
		s.windows[key] = w
	}

	w.evict(now.Add(-cfg.Window))

	// Min interval is checked before the count so rapid-fire input gets the
	// shorter retry hint.
	if !w.lastEvent.IsZero() {
		if since := now.Sub(w.lastEvent); since < cfg.MinInterval {
			return Result{Allowed: false, RetryAfter: cfg.MinInterval - since}, nil
		}
	}
	if len(w.events) >= cfg.Limit {
		return Result{Allowed: false, RetryAfter: cfg.Window - now.Sub(w.events[0])}, nil
	}

	w.events = append(w.events, now)
	w.lastEvent = now
	return Result{Allowed: true}, nil
}

func (w *slidingWindow) evict(cutoff time.Time) {
	i := 0
	for ; i < len(w.events); i++ {
		if w.events[i].After(cutoff) {
			break
		}
	}
	w.events = w.events[i:]
}

// Key builds the per-(actor, kind) window key.
func Key(actorID int64, kind Kind) string {
	return fmt.Sprintf("rl:%s:%d", kind, actorID)
}
