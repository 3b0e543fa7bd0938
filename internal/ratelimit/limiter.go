// Package ratelimit implements the per-actor sliding-window gate consulted
// before any other component touches an inbound event. Privileged actors are
// exempted by the caller, never in here; exemption is a policy decision that
// belongs at the call site.
package ratelimit

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// ViolationRecorder receives rejected-event records. Implementations must not
// block the hot path; the engine wires an async recorder.
type ViolationRecorder interface {
	Record(v Violation)
}

type Limiter struct {
	windows  WindowStore
	configs  map[Kind]Config
	now      func() time.Time
	logger   *slog.Logger
	recorder ViolationRecorder

	warnMu   sync.Mutex
	lastWarn map[int64]time.Time
}

type Option func(*Limiter)

func WithLogger(logger *slog.Logger) Option {
	return func(l *Limiter) { l.logger = logger }
}

func WithClock(now func() time.Time) Option {
	return func(l *Limiter) { l.now = now }
}

func WithViolationRecorder(r ViolationRecorder) Option {
	return func(l *Limiter) { l.recorder = r }
}

func New(windows WindowStore, configs map[Kind]Config, opts ...Option) *Limiter {
	l := &Limiter{
		windows:  windows,
		configs:  configs,
		now:      time.Now,
		logger:   slog.Default(),
		lastWarn: make(map[int64]time.Time),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Check admits or rejects one event. A rejection is a hard short-circuit for
// the caller: nothing else may process the event.
func (l *Limiter) Check(ctx context.Context, actorID int64, kind Kind) Result {
	cfg, ok := l.configs[kind]
	if !ok {
		// Unconfigured kinds are not gated.
		return Result{Allowed: true}
	}

	now := l.now()
	res, err := l.windows.Tap(ctx, Key(actorID, kind), cfg, now)
	if err != nil {
		// A broken window backend must not take the engine down with it;
		// fail open and log.
		l.logger.Error("rate window store failed, admitting", "actor_id", actorID, "kind", kind, "error", err)
		return Result{Allowed: true}
	}

	if !res.Allowed && l.recorder != nil {
		l.recorder.Record(Violation{
			ActorID:    actorID,
			Kind:       kind,
			RetryAfter: res.RetryAfter,
			OccurredAt: now,
		})
	}
	return res
}

// ShouldWarn reports whether a "slow down" notice may be sent to the actor,
// at most once per cooldown, independent of the admit/reject decision.
func (l *Limiter) ShouldWarn(actorID int64, cooldown time.Duration) bool {
	now := l.now()
	l.warnMu.Lock()
	defer l.warnMu.Unlock()
	if last, ok := l.lastWarn[actorID]; ok && now.Sub(last) < cooldown {
		return false
	}
	l.lastWarn[actorID] = now
	return true
}
