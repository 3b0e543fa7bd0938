// Package moderation owns the pending-request ledger and the decision
// workflow around it: fan-out to reviewers, race-free single decisions,
// reviewer attestation where the request kind demands it, and outcome
// delivery with per-recipient failure isolation.
package moderation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"dutybot/internal/audit"
	"dutybot/internal/event"
	"dutybot/internal/notify"
	"dutybot/internal/platform/metrics"
	"dutybot/internal/validate"
	domainerrors "dutybot/pkg/domain-errors"
	"dutybot/pkg/platform/sentinel"
)

// RequestStore is the durable record behind the in-memory ledger. Request
// creation is the state-defining write: when it fails the submission is
// rolled back. Decision recording is best-effort once the ledger has
// flipped.
type RequestStore interface {
	RecordRequest(ctx context.Context, req *Request) error
	RecordDecision(ctx context.Context, req *Request) error
}

// Config carries the deployment shape of the workflow: who reviews, and
// which group surfaces announcements land on.
type Config struct {
	Reviewers          []int64
	Warnings           notify.Surface
	Leave              notify.Surface
	FallbackInviteLink string
}

// ActionResult is what the dispatcher renders back to the acting reviewer.
type ActionResult struct {
	// NeedsAttestation means the decision is parked until the reviewer
	// types their name; Prompt carries the instruction.
	NeedsAttestation bool
	// Invalid means an attestation input failed validation; Prompt carries
	// the corrective message and the decision stays parked.
	Invalid bool
	// RaceLost means another reviewer decided first; Request carries the
	// winning decision.
	RaceLost bool
	Prompt   string
	Request  *Request
}

type pendingAttestation struct {
	action    event.Action
	handle    notify.MessageHandle
	startedAt time.Time
}

// Workflow coordinates submissions and decisions. Decisions race through
// Ledger.Decide; everything after the flip is outcome delivery and must not
// affect it.
type Workflow struct {
	ledger   Ledger
	store    RequestStore
	notifier notify.Notifier
	invites  notify.InviteIssuer
	auditor  *audit.Service
	cfg      Config
	logger   *slog.Logger
	metrics  *metrics.Metrics
	now      func() time.Time

	mu           sync.Mutex
	attestations map[int64]*pendingAttestation
}

type Option func(*Workflow)

func WithLogger(l *slog.Logger) Option {
	return func(w *Workflow) { w.logger = l }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(w *Workflow) { w.metrics = m }
}

func WithClock(now func() time.Time) Option {
	return func(w *Workflow) { w.now = now }
}

func NewWorkflow(ledger Ledger, store RequestStore, notifier notify.Notifier, invites notify.InviteIssuer, auditor *audit.Service, cfg Config, opts ...Option) *Workflow {
	w := &Workflow{
		ledger:       ledger,
		store:        store,
		notifier:     notifier,
		invites:      invites,
		auditor:      auditor,
		cfg:          cfg,
		logger:       slog.Default(),
		now:          time.Now,
		attestations: make(map[int64]*pendingAttestation),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Submit registers a completed form as a pending request and fans the review
// card out to every reviewer. Fan-out failures are isolated per reviewer;
// only a durable-store failure aborts the submission.
func (w *Workflow) Submit(ctx context.Context, sub Submission) (*Request, error) {
	req := &Request{
		Kind:             sub.Kind,
		SubmitterID:      sub.SubmitterID,
		SubmitterDisplay: sub.SubmitterDisplay,
		Fields:           sub.Fields,
		Evidence:         sub.Evidence,
		SubmittedAt:      w.now(),
	}
	id, err := w.ledger.Add(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("register request: %w", err)
	}
	if err := w.store.RecordRequest(ctx, req); err != nil {
		// Without the durable record the request must not exist anywhere.
		if rerr := w.ledger.Remove(ctx, id); rerr != nil {
			w.logger.Error("rollback after store failure", "request_id", id, "error", rerr)
		}
		return nil, fmt.Errorf("record request: %w", err)
	}

	w.auditor.Emit(ctx, audit.Entry{
		ActorID:  sub.SubmitterID,
		Action:   audit.ActionRequestSubmitted,
		TargetID: fmt.Sprintf("%s/%d", sub.Kind, id),
	})
	if w.metrics != nil {
		w.metrics.RequestsSubmitted.WithLabelValues(string(sub.Kind)).Inc()
	}

	card := reviewCard(req)
	var g errgroup.Group
	for _, reviewerID := range w.cfg.Reviewers {
		reviewerID := reviewerID
		g.Go(func() error {
			handle, err := w.notifier.Send(ctx, reviewerID, card)
			if err != nil {
				w.deliveryFailed("review card", reviewerID, err)
				return nil
			}
			if err := w.ledger.TrackDelivery(ctx, id, reviewerID, handle); err != nil {
				w.logger.Warn("track delivery", "request_id", id, "reviewer_id", reviewerID, "error", err)
			}
			return nil
		})
	}
	_ = g.Wait()

	return w.ledger.Get(ctx, id)
}

// HandleAction applies a reviewer's button press. Leave and promotion
// decisions require a typed-name attestation before they take effect; the
// other kinds decide immediately.
func (w *Workflow) HandleAction(ctx context.Context, reviewerID int64, reviewerName string, act event.Action, handle notify.MessageHandle) (ActionResult, error) {
	switch act.Target {
	case event.TargetLeaveRequest, event.TargetPromotion:
		w.mu.Lock()
		w.attestations[reviewerID] = &pendingAttestation{
			action:    act,
			handle:    handle,
			startedAt: w.now(),
		}
		w.mu.Unlock()
		return ActionResult{
			NeedsAttestation: true,
			Prompt:           attestationPrompt(act),
		}, nil
	default:
		return w.decide(ctx, act, Decision{
			Outcome:      act.Kind,
			ReviewerID:   reviewerID,
			ReviewerName: reviewerName,
		})
	}
}

// AwaitingAttestation reports whether the reviewer has a parked decision.
func (w *Workflow) AwaitingAttestation(reviewerID int64) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	_, ok := w.attestations[reviewerID]
	return ok
}

// CancelAttestation drops the reviewer's parked decision, if any.
func (w *Workflow) CancelAttestation(reviewerID int64) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, ok := w.attestations[reviewerID]; !ok {
		return false
	}
	delete(w.attestations, reviewerID)
	return true
}

// CompleteAttestation consumes the reviewer's typed confirmation. The first
// line must be the reviewer's name; on a rejection any further lines become
// the reason shown to the submitter. Invalid input keeps the decision parked.
func (w *Workflow) CompleteAttestation(ctx context.Context, reviewerID int64, text string) (ActionResult, error) {
	w.mu.Lock()
	pending, ok := w.attestations[reviewerID]
	w.mu.Unlock()
	if !ok {
		return ActionResult{}, sentinel.ErrInvalidState
	}

	lines := strings.SplitN(strings.TrimSpace(text), "\n", 2)
	name := strings.TrimSpace(lines[0])
	if err := validate.PersonName(name); err != nil {
		return ActionResult{Invalid: true, Prompt: domainerrors.MessageOf(err)}, nil
	}
	reason := ""
	if pending.action.Kind == event.ActionReject && len(lines) == 2 {
		reason = strings.TrimSpace(lines[1])
	}

	w.mu.Lock()
	delete(w.attestations, reviewerID)
	w.mu.Unlock()

	return w.decide(ctx, pending.action, Decision{
		Outcome:      pending.action.Kind,
		ReviewerID:   reviewerID,
		ReviewerName: name,
		Reason:       reason,
	})
}

// PendingCount reports how many requests await a decision.
func (w *Workflow) PendingCount(ctx context.Context) (int, error) {
	return w.ledger.PendingCount(ctx)
}

// decide is the single path from pending to decided. The ledger flip settles
// the race; everything after it is delivery and never unwinds the decision.
func (w *Workflow) decide(ctx context.Context, act event.Action, d Decision) (ActionResult, error) {
	d.At = w.now()
	snap, err := w.ledger.Decide(ctx, act.RequestID, d)
	if errors.Is(err, sentinel.ErrAlreadyDecided) {
		w.auditor.Emit(ctx, audit.Entry{
			ActorID:  d.ReviewerID,
			Action:   audit.ActionDecisionRaceLost,
			TargetID: fmt.Sprintf("%s/%d", act.Target, act.RequestID),
			Details:  fmt.Sprintf("won by %s", snap.DecidedByName),
		})
		if w.metrics != nil {
			w.metrics.DecisionRaceLost.Inc()
		}
		return ActionResult{RaceLost: true, Request: snap}, nil
	}
	if err != nil {
		return ActionResult{}, fmt.Errorf("decide request %d: %w", act.RequestID, err)
	}

	auditAction := audit.ActionRequestApproved
	if snap.Status == StatusRejected {
		auditAction = audit.ActionRequestRejected
	}
	w.auditor.Emit(ctx, audit.Entry{
		ActorID:  d.ReviewerID,
		Action:   auditAction,
		TargetID: fmt.Sprintf("%s/%d", snap.Kind, snap.ID),
		Details:  d.Reason,
	})
	if w.metrics != nil {
		w.metrics.DecisionsTotal.WithLabelValues(string(snap.Status)).Inc()
	}

	// The ledger already holds the truth; a durable-store failure here is
	// logged and the outcome still goes out.
	if err := w.store.RecordDecision(ctx, snap); err != nil {
		w.logger.Error("record decision", "request_id", snap.ID, "error", err)
	}
	if err := w.ledger.Remove(ctx, snap.ID); err != nil {
		w.logger.Warn("remove decided request", "request_id", snap.ID, "error", err)
	}

	w.deliverOutcome(ctx, snap)
	return ActionResult{Request: snap}, nil
}

// deliverOutcome writes the verdict onto every reviewer copy, notifies the
// submitter, and posts the group announcement. Each delivery fails alone.
func (w *Workflow) deliverOutcome(ctx context.Context, req *Request) {
	edited := decidedCard(req)
	for reviewerID, handle := range req.Deliveries {
		if err := w.notifier.EditOrReplace(ctx, reviewerID, handle, edited); err != nil {
			w.deliveryFailed("decision edit", reviewerID, err)
		}
	}

	invite := ""
	if req.Status == StatusApproved && req.Kind == event.TargetApplication {
		invite = w.inviteLink(ctx, req)
	}
	if _, err := w.notifier.Send(ctx, req.SubmitterID, submitterNotice(req, invite)); err != nil {
		w.deliveryFailed("submitter notice", req.SubmitterID, err)
	}

	if content, ok := broadcastNotice(req); ok {
		surface := w.cfg.Warnings
		if req.Kind == event.TargetLeaveRequest {
			surface = w.cfg.Leave
		}
		if err := w.notifier.Broadcast(ctx, surface, content); err != nil {
			w.deliveryFailed("group announcement", surface.ChatID, err)
		}
	}
}

func (w *Workflow) inviteLink(ctx context.Context, req *Request) string {
	link, err := w.invites.CreateInviteLink(ctx, req.Fields[fieldName])
	if err != nil {
		w.logger.Warn("create invite link, using fallback",
			"request_id", req.ID, "error", err)
		return w.cfg.FallbackInviteLink
	}
	return link
}

func (w *Workflow) deliveryFailed(what string, recipientID int64, err error) {
	w.logger.Warn("delivery failed", "what", what, "recipient_id", recipientID, "error", err)
	if w.metrics != nil {
		w.metrics.DeliveryFailures.Inc()
	}
}

func attestationPrompt(act event.Action) string {
	if act.Kind == event.ActionReject {
		return "✍️ Для підтвердження введіть ваше ім'я та прізвище.\n" +
			"З нового рядка можете вказати причину відмови."
	}
	return "✍️ Для підтвердження введіть ваше ім'я та прізвище:"
}
