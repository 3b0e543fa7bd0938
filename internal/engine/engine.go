// Package engine is the dispatcher: it takes the ordered per-actor event
// stream from the transport, applies privilege and rate gates, and routes
// each event to the conversation machine, the moderation workflow, or the
// profile service.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"dutybot/internal/audit"
	"dutybot/internal/conversation"
	"dutybot/internal/event"
	"dutybot/internal/moderation"
	"dutybot/internal/notify"
	"dutybot/internal/platform/metrics"
	"dutybot/internal/profile"
	"dutybot/internal/ratelimit"
	domainerrors "dutybot/pkg/domain-errors"
	"dutybot/pkg/platform/sentinel"
)

// Config is the engine's deployment shape.
type Config struct {
	// Reviewers are privileged: they bypass rate limiting and may decide
	// requests.
	Reviewers []int64
	// WarnCooldown suppresses repeat slow-down warnings per actor.
	WarnCooldown time.Duration
}

// Engine wires the gates and the domain services into one event handler.
type Engine struct {
	limiter   *ratelimit.Limiter
	machine   *conversation.Machine
	workflow  *moderation.Workflow
	profiles  *profile.Service
	auditor   *audit.Service
	notifier  notify.Notifier
	logger    *slog.Logger
	metrics   *metrics.Metrics
	reviewers map[int64]bool
	cfg       Config
}

type Option func(*Engine)

func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

func New(limiter *ratelimit.Limiter, machine *conversation.Machine, workflow *moderation.Workflow, profiles *profile.Service, auditor *audit.Service, notifier notify.Notifier, cfg Config, opts ...Option) *Engine {
	e := &Engine{
		limiter:   limiter,
		machine:   machine,
		workflow:  workflow,
		profiles:  profiles,
		auditor:   auditor,
		notifier:  notifier,
		logger:    slog.Default(),
		reviewers: make(map[int64]bool, len(cfg.Reviewers)),
		cfg:       cfg,
	}
	for _, id := range cfg.Reviewers {
		e.reviewers[id] = true
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// IsReviewer reports whether the actor may decide requests.
func (e *Engine) IsReviewer(actorID int64) bool {
	return e.reviewers[actorID]
}

// HandleEvent processes one inbound event to completion. Events for the same
// actor must be handed in sequentially; events for different actors may run
// concurrently.
func (e *Engine) HandleEvent(ctx context.Context, ev event.Event) error {
	if e.metrics != nil {
		e.metrics.EventsInTotal.WithLabelValues(string(ev.Kind)).Inc()
	}
	if !e.admit(ctx, ev.ActorID, rateKind(ev.Kind)) {
		return nil
	}

	if ev.Kind == event.KindAction {
		return e.handleAction(ctx, ev)
	}

	if e.reviewers[ev.ActorID] && e.workflow.AwaitingAttestation(ev.ActorID) {
		return e.handleAttestation(ctx, ev)
	}

	return e.handleConversation(ctx, ev)
}

// StartForm opens a form for the actor and sends its first prompt. The
// reprimand form is reviewer-only and is seeded with the reviewer's stored
// in-game name (falling back to the platform display name) as default issuer.
func (e *Engine) StartForm(ctx context.Context, actorID int64, display string, form conversation.FormKind) error {
	if !e.admit(ctx, actorID, ratelimit.KindMessage) {
		return nil
	}
	var seed map[conversation.Field]string
	if form == conversation.FormReprimand {
		if !e.reviewers[actorID] {
			return e.send(ctx, actorID, notify.Content{Text: "⛔ Оформлення догани доступне лише рев'юерам."})
		}
		if issuer := e.issuerNameFor(ctx, actorID, display); issuer != "" {
			seed = map[conversation.Field]string{conversation.FieldIssuer: issuer}
		}
	}
	reply, err := e.machine.Start(ctx, actorID, form, seed)
	if err != nil {
		return fmt.Errorf("start %s form for %d: %w", form, actorID, err)
	}
	e.updateConversationsGauge(ctx)
	return e.send(ctx, actorID, replyContent(reply))
}

// AdminStats renders the operational summary for /admin. Reviewers only.
func (e *Engine) AdminStats(ctx context.Context, actorID int64) (string, error) {
	if !e.reviewers[actorID] {
		return "", domainerrors.New(domainerrors.CodeForbidden, "тільки для рев'юерів")
	}
	pending, err := e.workflow.PendingCount(ctx)
	if err != nil {
		return "", fmt.Errorf("pending count: %w", err)
	}
	active, err := e.machine.ActiveCount(ctx)
	if err != nil {
		return "", fmt.Errorf("active conversations: %w", err)
	}
	return fmt.Sprintf("📊 СТАН СИСТЕМИ\n\n⏳ Запитів на розгляді: %d\n📝 Відкритих форм: %d\n👮 Рев'юерів: %d",
		pending, active, len(e.reviewers)), nil
}

// MenuFor lists the forms the actor may start: non-members can only apply
// for access, members manage their own requests, reviewers get everything.
func (e *Engine) MenuFor(ctx context.Context, actorID int64) []conversation.FormKind {
	if e.reviewers[actorID] {
		return []conversation.FormKind{
			conversation.FormApplication,
			conversation.FormLeaveRequest,
			conversation.FormReprimand,
			conversation.FormPromotion,
			conversation.FormProfileRefill,
		}
	}
	if _, err := e.profiles.Get(ctx, actorID); err == nil {
		return []conversation.FormKind{
			conversation.FormLeaveRequest,
			conversation.FormPromotion,
			conversation.FormProfileRefill,
		}
	}
	return []conversation.FormKind{conversation.FormApplication, conversation.FormProfileRefill}
}

func (e *Engine) issuerNameFor(ctx context.Context, actorID int64, display string) string {
	if p, err := e.profiles.Get(ctx, actorID); err == nil && p.InGameName != "" {
		return p.InGameName
	}
	return display
}

// PendingCount reports requests awaiting a decision.
func (e *Engine) PendingCount(ctx context.Context) (int, error) {
	return e.workflow.PendingCount(ctx)
}

// ActiveConversations reports open forms.
func (e *Engine) ActiveConversations(ctx context.Context) (int, error) {
	return e.machine.ActiveCount(ctx)
}

// admit runs the rate gate. Reviewers bypass it entirely; rejected actors
// get at most one warning per cooldown.
func (e *Engine) admit(ctx context.Context, actorID int64, kind ratelimit.Kind) bool {
	if e.reviewers[actorID] {
		return true
	}
	res := e.limiter.Check(ctx, actorID, kind)
	if res.Allowed {
		return true
	}
	if e.metrics != nil {
		e.metrics.RateLimitRejections.WithLabelValues(string(kind)).Inc()
	}
	e.auditor.Emit(ctx, audit.Entry{
		ActorID:  actorID,
		Action:   audit.ActionRateLimited,
		TargetID: string(kind),
		Details:  fmt.Sprintf("retry after %s", res.RetryAfter),
	})
	if e.limiter.ShouldWarn(actorID, e.cfg.WarnCooldown) {
		_ = e.send(ctx, actorID, notify.Content{
			Text: fmt.Sprintf("⏳ Занадто швидко. Зачекайте %.1f с і спробуйте знову.",
				res.RetryAfter.Seconds()),
		})
	}
	return false
}

func (e *Engine) handleAction(ctx context.Context, ev event.Event) error {
	if !e.reviewers[ev.ActorID] {
		e.logger.Warn("action from non-reviewer ignored", "actor_id", ev.ActorID)
		return nil
	}
	res, err := e.workflow.HandleAction(ctx, ev.ActorID, ev.ActorDisplay, *ev.Action, notify.MessageHandle(ev.MessageHandle))
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return e.send(ctx, ev.ActorID, notify.Content{Text: "Запит уже оброблено або не знайдено."})
		}
		return err
	}
	return e.renderActionResult(ctx, ev.ActorID, res)
}

func (e *Engine) handleAttestation(ctx context.Context, ev event.Event) error {
	if ev.Kind == event.KindCancel {
		e.workflow.CancelAttestation(ev.ActorID)
		return e.send(ctx, ev.ActorID, notify.Content{Text: "Скасовано.", ClearChoices: true})
	}
	if ev.Kind != event.KindText {
		return e.send(ctx, ev.ActorID, notify.Content{Text: "✍️ Введіть ім'я та прізвище текстом:"})
	}
	res, err := e.workflow.CompleteAttestation(ctx, ev.ActorID, ev.Text)
	if err != nil {
		return err
	}
	return e.renderActionResult(ctx, ev.ActorID, res)
}

func (e *Engine) renderActionResult(ctx context.Context, reviewerID int64, res moderation.ActionResult) error {
	switch {
	case res.NeedsAttestation, res.Invalid:
		return e.send(ctx, reviewerID, notify.Content{Text: res.Prompt})
	case res.RaceLost:
		return e.send(ctx, reviewerID, notify.Content{
			Text: fmt.Sprintf("Запит уже вирішив(ла) %s.", res.Request.DecidedByName),
		})
	default:
		return nil
	}
}

func (e *Engine) handleConversation(ctx context.Context, ev event.Event) error {
	reply, err := e.machine.Advance(ctx, ev.ActorID, ev)
	if errors.Is(err, sentinel.ErrNotFound) {
		// No form open; a bare cancel still deserves an answer.
		if ev.Kind == event.KindCancel {
			return e.send(ctx, ev.ActorID, notify.Content{Text: "Немає активної форми.", ClearChoices: true})
		}
		return nil
	}
	if err != nil {
		return fmt.Errorf("advance conversation for %d: %w", ev.ActorID, err)
	}

	switch {
	case reply.Canceled:
		e.auditor.Emit(ctx, audit.Entry{ActorID: ev.ActorID, Action: audit.ActionFormCanceled})
		e.updateConversationsGauge(ctx)
		return e.send(ctx, ev.ActorID, notify.Content{Text: "❌ Скасовано.", ClearChoices: true})

	case reply.Invalid:
		return e.handleInvalid(ctx, ev, reply)

	case reply.Submission != nil:
		e.updateConversationsGauge(ctx)
		return e.completeForm(ctx, ev, reply.Submission)

	default:
		return e.send(ctx, ev.ActorID, replyContent(reply))
	}
}

func (e *Engine) handleInvalid(ctx context.Context, ev event.Event, reply conversation.Reply) error {
	if e.metrics != nil {
		e.metrics.ValidationFailures.WithLabelValues(string(reply.Form)).Inc()
	}
	if reply.RepeatedFailure {
		e.auditor.Emit(ctx, audit.Entry{
			ActorID: ev.ActorID,
			Action:  audit.ActionValidationRepeated,
		})
	}
	return e.send(ctx, ev.ActorID, notify.Content{Text: reply.Prompt})
}

// completeForm converts a finished conversation into its follow-on effect: a
// moderation request for the reviewed kinds, a profile write for the rest.
func (e *Engine) completeForm(ctx context.Context, ev event.Event, sub *conversation.Submission) error {
	e.auditor.Emit(ctx, audit.Entry{
		ActorID:  sub.ActorID,
		Action:   audit.ActionFormCompleted,
		TargetID: string(sub.Form),
	})

	if sub.Form == conversation.FormProfileRefill {
		return e.saveProfile(ctx, ev, sub)
	}

	target, ok := targetOf(sub.Form)
	if !ok {
		return fmt.Errorf("form %s has no moderation target", sub.Form)
	}
	fields := make(map[string]string, len(sub.Fields))
	for k, v := range sub.Fields {
		fields[string(k)] = v
	}
	req, err := e.workflow.Submit(ctx, moderation.Submission{
		Kind:             target,
		SubmitterID:      sub.ActorID,
		SubmitterDisplay: ev.ActorDisplay,
		Fields:           fields,
		Evidence:         sub.Evidence,
	})
	if err != nil {
		e.logger.Error("submit request", "actor_id", sub.ActorID, "form", sub.Form, "error", err)
		return e.send(ctx, sub.ActorID, notify.Content{
			Text:         "⚠️ Не вдалося зберегти заявку. Спробуйте пізніше.",
			ClearChoices: true,
		})
	}
	return e.send(ctx, sub.ActorID, notify.Content{
		Text:         fmt.Sprintf("✅ Заявку №%d надіслано на розгляд. Очікуйте на рішення.", req.ID),
		ClearChoices: true,
	})
}

func (e *Engine) saveProfile(ctx context.Context, ev event.Event, sub *conversation.Submission) error {
	p, err := e.profiles.Upsert(ctx, profile.Profile{
		ActorID:    sub.ActorID,
		InGameName: sub.Fields[conversation.FieldInGameName],
		Rank:       sub.Fields[conversation.FieldRank],
		Department: sub.Fields[conversation.FieldDepartment],
	})
	if err != nil {
		e.logger.Error("save profile", "actor_id", sub.ActorID, "error", err)
		return e.send(ctx, sub.ActorID, notify.Content{
			Text:         "⚠️ Не вдалося зберегти профіль. Спробуйте пізніше.",
			ClearChoices: true,
		})
	}
	e.auditor.Emit(ctx, audit.Entry{
		ActorID:  sub.ActorID,
		Action:   audit.ActionProfileUpdated,
		TargetID: p.InGameName,
	})
	return e.send(ctx, sub.ActorID, notify.Content{
		Text:         fmt.Sprintf("✅ Профіль збережено: %s, %s, %s.", p.InGameName, p.Rank, p.Department),
		ClearChoices: true,
	})
}

func (e *Engine) send(ctx context.Context, actorID int64, content notify.Content) error {
	if _, err := e.notifier.Send(ctx, actorID, content); err != nil {
		e.logger.Warn("reply delivery failed", "actor_id", actorID, "error", err)
		if e.metrics != nil {
			e.metrics.DeliveryFailures.Inc()
		}
	}
	return nil
}

func (e *Engine) updateConversationsGauge(ctx context.Context) {
	if e.metrics == nil {
		return
	}
	if n, err := e.machine.ActiveCount(ctx); err == nil {
		e.metrics.ConversationsActive.Set(float64(n))
	}
}

func replyContent(reply conversation.Reply) notify.Content {
	return notify.Content{
		Text:         reply.Prompt,
		Choices:      reply.Choices,
		ClearChoices: reply.ClearChoices,
	}
}

func rateKind(k event.Kind) ratelimit.Kind {
	switch k {
	case event.KindAction, event.KindSelection:
		return ratelimit.KindAction
	default:
		return ratelimit.KindMessage
	}
}

func targetOf(form conversation.FormKind) (event.TargetKind, bool) {
	switch form {
	case conversation.FormApplication:
		return event.TargetApplication, true
	case conversation.FormLeaveRequest:
		return event.TargetLeaveRequest, true
	case conversation.FormReprimand:
		return event.TargetReprimand, true
	case conversation.FormPromotion:
		return event.TargetPromotion, true
	default:
		return "", false
	}
}
