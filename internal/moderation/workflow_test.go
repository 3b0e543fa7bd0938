package moderation

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"dutybot/internal/audit"
	"dutybot/internal/event"
	"dutybot/internal/notify"
	"dutybot/pkg/testutil"
)

type sentMessage struct {
	recipientID int64
	content     notify.Content
}

type editedMessage struct {
	recipientID int64
	handle      notify.MessageHandle
	content     notify.Content
}

type broadcastMessage struct {
	surface notify.Surface
	content notify.Content
}

// fakeNotifier records outbound traffic and fails on demand per recipient.
type fakeNotifier struct {
	mu         sync.Mutex
	sends      []sentMessage
	edits      []editedMessage
	broadcasts []broadcastMessage
	failFor    map[int64]error
	nextHandle int
}

func newFakeNotifier() *fakeNotifier {
	return &fakeNotifier{failFor: make(map[int64]error)}
}

func (f *fakeNotifier) Send(_ context.Context, recipientID int64, content notify.Content) (notify.MessageHandle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.failFor[recipientID]; err != nil {
		return "", err
	}
	f.nextHandle++
	f.sends = append(f.sends, sentMessage{recipientID: recipientID, content: content})
	return notify.MessageHandle(fmt.Sprintf("msg-%d", f.nextHandle)), nil
}

func (f *fakeNotifier) EditOrReplace(_ context.Context, recipientID int64, handle notify.MessageHandle, content notify.Content) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.failFor[recipientID]; err != nil {
		return err
	}
	f.edits = append(f.edits, editedMessage{recipientID: recipientID, handle: handle, content: content})
	return nil
}

func (f *fakeNotifier) Broadcast(_ context.Context, surface notify.Surface, content notify.Content) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.failFor[surface.ChatID]; err != nil {
		return err
	}
	f.broadcasts = append(f.broadcasts, broadcastMessage{surface: surface, content: content})
	return nil
}

func (f *fakeNotifier) sentTo(recipientID int64) []sentMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []sentMessage
	for _, s := range f.sends {
		if s.recipientID == recipientID {
			out = append(out, s)
		}
	}
	return out
}

type fakeInvites struct {
	link string
	err  error
}

func (f *fakeInvites) CreateInviteLink(context.Context, string) (string, error) {
	return f.link, f.err
}

// fakeRequestStore is the durable layer double; failCreate aborts Submit.
type fakeRequestStore struct {
	mu         sync.Mutex
	requests   []*Request
	decisions  []*Request
	failCreate error
}

func (f *fakeRequestStore) RecordRequest(_ context.Context, req *Request) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failCreate != nil {
		return f.failCreate
	}
	f.requests = append(f.requests, req)
	return nil
}

func (f *fakeRequestStore) RecordDecision(_ context.Context, req *Request) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.decisions = append(f.decisions, req)
	return nil
}

type fakeAuditStore struct {
	mu      sync.Mutex
	entries []audit.Entry
}

func (f *fakeAuditStore) Append(_ context.Context, entry audit.Entry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entries = append(f.entries, entry)
	return nil
}

func (f *fakeAuditStore) actions() []audit.Action {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]audit.Action, 0, len(f.entries))
	for _, e := range f.entries {
		out = append(out, e.Action)
	}
	return out
}

type WorkflowSuite struct {
	suite.Suite
	ctx      context.Context
	ledger   *MemoryLedger
	store    *fakeRequestStore
	notifier *fakeNotifier
	invites  *fakeInvites
	audits   *fakeAuditStore
	workflow *Workflow
}

const (
	reviewerAlice int64 = 100
	reviewerBob   int64 = 200
	submitter     int64 = 7
)

func TestWorkflowSuite(t *testing.T) {
	suite.Run(t, new(WorkflowSuite))
}

func (s *WorkflowSuite) SetupTest() {
	s.ctx = context.Background()
	s.ledger = NewMemoryLedger()
	s.store = &fakeRequestStore{}
	s.notifier = newFakeNotifier()
	s.invites = &fakeInvites{link: "https://t.me/+real"}
	s.audits = &fakeAuditStore{}
	s.workflow = NewWorkflow(
		s.ledger, s.store, s.notifier, s.invites,
		audit.NewService(s.audits),
		Config{
			Reviewers:          []int64{reviewerAlice, reviewerBob},
			Warnings:           notify.Surface{ChatID: -500, TopicID: 146},
			Leave:              notify.Surface{ChatID: -500, TopicID: 152},
			FallbackInviteLink: "https://t.me/+fallback",
		},
	)
}

func (s *WorkflowSuite) submitApplication() *Request {
	req, err := s.workflow.Submit(s.ctx, Submission{
		Kind:             event.TargetApplication,
		SubmitterID:      submitter,
		SubmitterDisplay: "Олександр Іваненко",
		Fields: map[string]string{
			"name":       "Олександр Іваненко",
			"department": "Управління НПУ в Дніпрі",
		},
		Evidence: []string{"https://i.imgur.com/a.png", "https://i.imgur.com/b.png"},
	})
	s.Require().NoError(err)
	return req
}

func (s *WorkflowSuite) submitLeave() *Request {
	req, err := s.workflow.Submit(s.ctx, Submission{
		Kind:             event.TargetLeaveRequest,
		SubmitterID:      submitter,
		SubmitterDisplay: "Олександр Іваненко",
		Fields: map[string]string{
			"recipient":  "Марія Коваленко",
			"duration":   "2 тижні",
			"department": "Управління НПУ в Дніпрі",
		},
	})
	s.Require().NoError(err)
	return req
}

func (s *WorkflowSuite) TestSubmitFansOutToEveryReviewer() {
	testutil.Given(s.T(), "two configured reviewers")
	req := s.submitApplication()

	testutil.Then(s.T(), "each reviewer holds a tracked copy of the card")
	s.Require().Len(s.notifier.sentTo(reviewerAlice), 1)
	s.Require().Len(s.notifier.sentTo(reviewerBob), 1)
	s.Require().Len(req.Deliveries, 2)
	s.Require().Equal(StatusPending, req.Status)
	s.Require().Equal(uint64(1), req.ID)
	s.Require().Contains(s.audits.actions(), audit.ActionRequestSubmitted)

	card := s.notifier.sentTo(reviewerAlice)[0].content
	s.Require().Contains(card.Text, "Олександр Іваненко")
	s.Require().Len(card.Buttons, 1)
	s.Require().Len(card.Buttons[0], 2)
}

func (s *WorkflowSuite) TestSubmitIsolatesUnreachableReviewer() {
	s.notifier.failFor[reviewerAlice] = errors.New("chat not started")

	req := s.submitApplication()

	s.Require().Empty(s.notifier.sentTo(reviewerAlice))
	s.Require().Len(s.notifier.sentTo(reviewerBob), 1)
	s.Require().Len(req.Deliveries, 1)
	s.Require().Equal(StatusPending, req.Status)
}

func (s *WorkflowSuite) TestSubmitRollsBackOnStoreFailure() {
	s.store.failCreate = errors.New("disk full")

	_, err := s.workflow.Submit(s.ctx, Submission{
		Kind:        event.TargetApplication,
		SubmitterID: submitter,
		Fields:      map[string]string{"name": "Олександр Іваненко"},
	})
	s.Require().Error(err)

	pending, perr := s.workflow.PendingCount(s.ctx)
	s.Require().NoError(perr)
	s.Require().Zero(pending)
	s.Require().Empty(s.notifier.sends)
}

func (s *WorkflowSuite) TestApplicationApprovalDecidesImmediately() {
	req := s.submitApplication()
	act := event.Action{Kind: event.ActionApprove, Target: event.TargetApplication, RequestID: req.ID}

	res, err := s.workflow.HandleAction(s.ctx, reviewerAlice, "Петро Шевченко", act, req.Deliveries[reviewerAlice])
	s.Require().NoError(err)
	s.Require().False(res.NeedsAttestation)
	s.Require().False(res.RaceLost)
	s.Require().Equal(StatusApproved, res.Request.Status)
	s.Require().Equal("Петро Шевченко", res.Request.DecidedByName)

	s.Run("every reviewer copy is edited with the verdict", func() {
		s.Require().Len(s.notifier.edits, 2)
		for _, e := range s.notifier.edits {
			s.Require().Contains(e.content.Text, "Схвалено")
			s.Require().Empty(e.content.Buttons)
		}
	})

	s.Run("the submitter receives the invite link", func() {
		notices := s.notifier.sentTo(submitter)
		s.Require().Len(notices, 1)
		s.Require().Contains(notices[0].content.Text, "https://t.me/+real")
	})

	s.Run("the ledger no longer holds the request", func() {
		pending, err := s.workflow.PendingCount(s.ctx)
		s.Require().NoError(err)
		s.Require().Zero(pending)
	})

	s.Run("the durable record carries the decision", func() {
		s.Require().Len(s.store.decisions, 1)
		s.Require().Equal(StatusApproved, s.store.decisions[0].Status)
	})
}

func (s *WorkflowSuite) TestInviteFallbackOnIssuerFailure() {
	s.invites.err = errors.New("rate limited upstream")
	req := s.submitApplication()
	act := event.Action{Kind: event.ActionApprove, Target: event.TargetApplication, RequestID: req.ID}

	_, err := s.workflow.HandleAction(s.ctx, reviewerAlice, "Петро Шевченко", act, req.Deliveries[reviewerAlice])
	s.Require().NoError(err)

	notices := s.notifier.sentTo(submitter)
	s.Require().Len(notices, 1)
	s.Require().Contains(notices[0].content.Text, "https://t.me/+fallback")
}

func (s *WorkflowSuite) TestConcurrentDecisionsExactlyOneWins() {
	req := s.submitApplication()

	approve := event.Action{Kind: event.ActionApprove, Target: event.TargetApplication, RequestID: req.ID}
	reject := event.Action{Kind: event.ActionReject, Target: event.TargetApplication, RequestID: req.ID}

	var wg sync.WaitGroup
	results := make([]ActionResult, 2)
	wg.Add(2)
	go func() {
		defer wg.Done()
		results[0], _ = s.workflow.HandleAction(s.ctx, reviewerAlice, "Петро Шевченко", approve, "")
	}()
	go func() {
		defer wg.Done()
		results[1], _ = s.workflow.HandleAction(s.ctx, reviewerBob, "Андрій Бондаренко", reject, "")
	}()
	wg.Wait()

	wins, losses := 0, 0
	for _, res := range results {
		if res.RaceLost {
			losses++
			s.Require().NotEqual(StatusPending, res.Request.Status)
		} else {
			wins++
		}
	}
	s.Require().Equal(1, wins)
	s.Require().Equal(1, losses)
	s.Require().Len(s.store.decisions, 1)
	s.Require().Contains(s.audits.actions(), audit.ActionDecisionRaceLost)
}

func (s *WorkflowSuite) TestLeaveApprovalRequiresAttestation() {
	req := s.submitLeave()
	act := event.Action{Kind: event.ActionApprove, Target: event.TargetLeaveRequest, RequestID: req.ID}

	testutil.Given(s.T(), "an approve press on a leave request")
	res, err := s.workflow.HandleAction(s.ctx, reviewerAlice, "alice", act, req.Deliveries[reviewerAlice])
	s.Require().NoError(err)
	s.Require().True(res.NeedsAttestation)
	s.Require().True(s.workflow.AwaitingAttestation(reviewerAlice))

	testutil.When(s.T(), "the reviewer types an invalid name")
	res, err = s.workflow.CompleteAttestation(s.ctx, reviewerAlice, "alice")
	s.Require().NoError(err)
	s.Require().True(res.Invalid)
	s.Require().True(s.workflow.AwaitingAttestation(reviewerAlice))

	testutil.When(s.T(), "the reviewer types a valid name")
	res, err = s.workflow.CompleteAttestation(s.ctx, reviewerAlice, "Петро Шевченко")
	s.Require().NoError(err)

	testutil.Then(s.T(), "the decision lands and the topic announcement goes out")
	s.Require().Equal(StatusApproved, res.Request.Status)
	s.Require().Equal("Петро Шевченко", res.Request.DecidedByName)
	s.Require().False(s.workflow.AwaitingAttestation(reviewerAlice))

	s.Require().Len(s.notifier.broadcasts, 1)
	s.Require().Equal(152, s.notifier.broadcasts[0].surface.TopicID)
	s.Require().Contains(s.notifier.broadcasts[0].content.Text, "Марія Коваленко")
}

func (s *WorkflowSuite) TestPromotionRejectionCarriesReason() {
	req, err := s.workflow.Submit(s.ctx, Submission{
		Kind:             event.TargetPromotion,
		SubmitterID:      submitter,
		SubmitterDisplay: "Олександр Іваненко",
		Fields: map[string]string{
			"candidate":      "Марія Коваленко",
			"candidate_rank": "Капітан",
			"requested_rank": "Майор",
			"department":     "Управління НПУ в Дніпрі",
			"justification":  "Зразкова служба",
		},
	})
	s.Require().NoError(err)

	act := event.Action{Kind: event.ActionReject, Target: event.TargetPromotion, RequestID: req.ID}
	res, err := s.workflow.HandleAction(s.ctx, reviewerBob, "bob", act, req.Deliveries[reviewerBob])
	s.Require().NoError(err)
	s.Require().True(res.NeedsAttestation)

	res, err = s.workflow.CompleteAttestation(s.ctx, reviewerBob, "Андрій Бондаренко\nНедостатній стаж")
	s.Require().NoError(err)
	s.Require().Equal(StatusRejected, res.Request.Status)
	s.Require().Equal("Недостатній стаж", res.Request.DecideReason)

	notices := s.notifier.sentTo(submitter)
	s.Require().Len(notices, 1)
	s.Require().Contains(notices[0].content.Text, "Недостатній стаж")
	s.Require().Empty(s.notifier.broadcasts)
}

func (s *WorkflowSuite) TestReprimandApprovalAnnouncesToWarningsTopic() {
	req, err := s.workflow.Submit(s.ctx, Submission{
		Kind:             event.TargetReprimand,
		SubmitterID:      submitter,
		SubmitterDisplay: "Петро Шевченко",
		Fields: map[string]string{
			"offender": "Іван Мельник",
			"offense":  "Невиконання наказу",
			"date":     "01.10.2025",
			"issuer":   "Петро Шевченко",
			"penalty":  "Догана",
		},
	})
	s.Require().NoError(err)

	act := event.Action{Kind: event.ActionApprove, Target: event.TargetReprimand, RequestID: req.ID}
	res, err := s.workflow.HandleAction(s.ctx, reviewerAlice, "Петро Шевченко", act, req.Deliveries[reviewerAlice])
	s.Require().NoError(err)
	s.Require().Equal(StatusApproved, res.Request.Status)

	s.Require().Len(s.notifier.broadcasts, 1)
	s.Require().Equal(146, s.notifier.broadcasts[0].surface.TopicID)
	s.Require().Contains(s.notifier.broadcasts[0].content.Text, "Іван Мельник")
}

func (s *WorkflowSuite) TestCancelAttestationDropsParkedDecision() {
	req := s.submitLeave()
	act := event.Action{Kind: event.ActionApprove, Target: event.TargetLeaveRequest, RequestID: req.ID}
	_, err := s.workflow.HandleAction(s.ctx, reviewerAlice, "alice", act, "")
	s.Require().NoError(err)

	s.Require().True(s.workflow.CancelAttestation(reviewerAlice))
	s.Require().False(s.workflow.AwaitingAttestation(reviewerAlice))

	// The request itself is untouched and still decidable.
	pending, err := s.workflow.PendingCount(s.ctx)
	s.Require().NoError(err)
	s.Require().Equal(1, pending)
}

func TestMemoryLedgerDecideIsAtomic(t *testing.T) {
	ctx := context.Background()
	ledger := NewMemoryLedger()
	id, err := ledger.Add(ctx, &Request{Kind: event.TargetApplication, SubmitterID: 1, Fields: map[string]string{}})
	require.NoError(t, err)

	const attempts = 16
	var wg sync.WaitGroup
	wins := make(chan int64, attempts)
	for i := 0; i < attempts; i++ {
		reviewerID := int64(1000 + i)
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := ledger.Decide(ctx, id, Decision{
				Outcome:      event.ActionApprove,
				ReviewerID:   reviewerID,
				ReviewerName: "Петро Шевченко",
			})
			if err == nil {
				wins <- reviewerID
			}
		}()
	}
	wg.Wait()
	close(wins)

	var winners []int64
	for w := range wins {
		winners = append(winners, w)
	}
	require.Len(t, winners, 1)

	snap, err := ledger.Get(ctx, id)
	require.NoError(t, err)
	require.Equal(t, winners[0], snap.DecidedBy)
}
