package conversation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"dutybot/internal/catalog"
	"dutybot/internal/event"
	domainerrors "dutybot/pkg/domain-errors"
	"dutybot/pkg/platform/sentinel"
)

// failStreakThreshold is the number of consecutive validation failures on
// one step after which a reply is flagged for escalated handling.
const failStreakThreshold = 3

// Reply describes what the caller should render after an event was applied
// to a conversation.
type Reply struct {
	Form            FormKind
	Prompt          string
	Choices         []string
	ClearChoices    bool
	Invalid         bool
	RepeatedFailure bool
	Canceled        bool
	Submission      *Submission
}

// Machine drives multi-step form conversations: one active conversation per
// actor, advanced strictly step by step.
type Machine struct {
	store  Store
	flows  *flows
	logger *slog.Logger
	now    func() time.Time
}

type Option func(*Machine)

func WithLogger(l *slog.Logger) Option {
	return func(m *Machine) { m.logger = l }
}

func WithClock(now func() time.Time) Option {
	return func(m *Machine) { m.now = now }
}

func NewMachine(store Store, cat *catalog.Catalog, opts ...Option) *Machine {
	m := &Machine{
		store:  store,
		flows:  newFlows(cat),
		logger: slog.Default(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Start opens a form conversation for the actor, replacing any conversation
// already in progress. Seed values prefill fields before the first step runs
// (the reprimand issuer default comes in this way).
func (m *Machine) Start(ctx context.Context, actorID int64, form FormKind, seed map[Field]string) (Reply, error) {
	spec, ok := m.flows.spec(form)
	if !ok {
		return Reply{}, domainerrors.New(domainerrors.CodeInternal,
			fmt.Sprintf("unknown form kind %q", form))
	}
	st := &State{
		ActorID:   actorID,
		Form:      form,
		Step:      spec.entry,
		Fields:    make(map[Field]string, len(seed)),
		StartedAt: m.now(),
	}
	for k, v := range seed {
		st.Fields[k] = v
	}
	if err := m.store.Replace(ctx, st); err != nil {
		return Reply{}, fmt.Errorf("open conversation: %w", err)
	}
	return m.render(spec, st), nil
}

// Active reports whether the actor has a conversation in progress.
func (m *Machine) Active(ctx context.Context, actorID int64) (bool, error) {
	_, err := m.store.Get(ctx, actorID)
	if errors.Is(err, sentinel.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// Cancel abandons the actor's conversation, if any. It reports whether a
// conversation was open.
func (m *Machine) Cancel(ctx context.Context, actorID int64) (bool, error) {
	_, err := m.store.Get(ctx, actorID)
	if errors.Is(err, sentinel.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := m.store.Remove(ctx, actorID); err != nil {
		return false, err
	}
	return true, nil
}

// ActiveCount reports how many conversations are currently open.
func (m *Machine) ActiveCount(ctx context.Context) (int, error) {
	return m.store.Count(ctx)
}

// Advance applies one event to the actor's conversation. It returns
// sentinel.ErrNotFound when no conversation is open.
func (m *Machine) Advance(ctx context.Context, actorID int64, ev event.Event) (Reply, error) {
	st, err := m.store.Get(ctx, actorID)
	if err != nil {
		return Reply{}, err
	}
	if ev.Kind == event.KindCancel {
		if err := m.store.Remove(ctx, actorID); err != nil {
			return Reply{}, err
		}
		return Reply{Form: st.Form, Canceled: true}, nil
	}

	spec, ok := m.flows.spec(st.Form)
	if !ok {
		// State refers to a form this build no longer knows; drop it.
		m.logger.Warn("dropping conversation with unknown form",
			slog.Int64("actor_id", actorID), slog.String("form", string(st.Form)))
		_ = m.store.Remove(ctx, actorID)
		return Reply{Canceled: true}, nil
	}
	step, ok := spec.steps[st.Step]
	if !ok {
		m.logger.Warn("dropping conversation with unknown step",
			slog.Int64("actor_id", actorID), slog.String("step", string(st.Step)))
		_ = m.store.Remove(ctx, actorID)
		return Reply{Canceled: true}, nil
	}

	if err := step.handle(m.flows, st, ev); err != nil {
		if domainerrors.CodeOf(err) != domainerrors.CodeValidation {
			return Reply{}, err
		}
		st.FailStreak++
		if rerr := m.store.Replace(ctx, st); rerr != nil {
			return Reply{}, rerr
		}
		return Reply{
			Form:            st.Form,
			Prompt:          domainerrors.MessageOf(err),
			Invalid:         true,
			RepeatedFailure: st.FailStreak >= failStreakThreshold,
		}, nil
	}

	st.FailStreak = 0
	nxt := step.next(st)
	if nxt == stepDone {
		if err := m.store.Remove(ctx, actorID); err != nil {
			return Reply{}, err
		}
		return Reply{Form: st.Form, Submission: &Submission{
			ActorID:  actorID,
			Form:     st.Form,
			Fields:   st.Fields,
			Evidence: st.Evidence,
		}}, nil
	}
	st.Step = nxt
	if err := m.store.Replace(ctx, st); err != nil {
		return Reply{}, err
	}
	return m.render(spec, st), nil
}

func (m *Machine) render(spec formSpec, st *State) Reply {
	prompt, choices := spec.steps[st.Step].prompt(m.flows, st)
	return Reply{
		Form:         st.Form,
		Prompt:       prompt,
		Choices:      choices,
		ClearChoices: len(choices) == 0,
	}
}
