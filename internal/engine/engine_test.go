package engine

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"dutybot/internal/audit"
	"dutybot/internal/catalog"
	"dutybot/internal/conversation"
	"dutybot/internal/event"
	"dutybot/internal/moderation"
	"dutybot/internal/notify"
	"dutybot/internal/profile"
	"dutybot/internal/ratelimit"
	"dutybot/internal/storage"
	domainerrors "dutybot/pkg/domain-errors"
	"dutybot/pkg/testutil"
)

const (
	reviewerID  int64 = 100
	applicantID int64 = 7
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 10, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type sentMessage struct {
	recipientID int64
	content     notify.Content
}

type fakeNotifier struct {
	mu         sync.Mutex
	sends      []sentMessage
	broadcasts []notify.Surface
	nextHandle int
}

func (f *fakeNotifier) Send(_ context.Context, recipientID int64, content notify.Content) (notify.MessageHandle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextHandle++
	f.sends = append(f.sends, sentMessage{recipientID: recipientID, content: content})
	return notify.MessageHandle(fmt.Sprintf("msg-%d", f.nextHandle)), nil
}

func (f *fakeNotifier) EditOrReplace(_ context.Context, recipientID int64, _ notify.MessageHandle, content notify.Content) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sends = append(f.sends, sentMessage{recipientID: recipientID, content: content})
	return nil
}

func (f *fakeNotifier) Broadcast(_ context.Context, surface notify.Surface, _ notify.Content) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.broadcasts = append(f.broadcasts, surface)
	return nil
}

func (f *fakeNotifier) CreateInviteLink(context.Context, string) (string, error) {
	return "https://t.me/+invite", nil
}

func (f *fakeNotifier) sentTo(recipientID int64) []notify.Content {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []notify.Content
	for _, s := range f.sends {
		if s.recipientID == recipientID {
			out = append(out, s.content)
		}
	}
	return out
}

func (f *fakeNotifier) lastTo(t *testing.T, recipientID int64) notify.Content {
	t.Helper()
	msgs := f.sentTo(recipientID)
	require.NotEmpty(t, msgs)
	return msgs[len(msgs)-1]
}

type EngineSuite struct {
	suite.Suite
	ctx      context.Context
	clock    *fakeClock
	notifier *fakeNotifier
	stores   *storage.Memory
	engine   *Engine
}

func TestEngineSuite(t *testing.T) {
	suite.Run(t, new(EngineSuite))
}

func (s *EngineSuite) SetupTest() {
	s.ctx = context.Background()
	s.clock = newFakeClock()
	s.notifier = &fakeNotifier{}
	s.stores = storage.NewMemory()

	cat, err := catalog.Default()
	require.NoError(s.T(), err)

	auditor := audit.NewService(s.stores.AuditLog, audit.WithClock(s.clock.Now))
	limiter := ratelimit.New(ratelimit.NewMemoryWindows(), map[ratelimit.Kind]ratelimit.Config{
		ratelimit.KindMessage: {Limit: 5, Window: 5 * time.Second, MinInterval: 500 * time.Millisecond},
		ratelimit.KindAction:  {Limit: 10, Window: 10 * time.Second, MinInterval: 300 * time.Millisecond},
	}, ratelimit.WithClock(s.clock.Now))
	machine := conversation.NewMachine(conversation.NewMemoryStore(), cat,
		conversation.WithClock(s.clock.Now))
	workflow := moderation.NewWorkflow(
		moderation.NewMemoryLedger(), s.stores.Requests, s.notifier, s.notifier, auditor,
		moderation.Config{
			Reviewers: []int64{reviewerID},
			Warnings:  notify.Surface{ChatID: -500, TopicID: 146},
			Leave:     notify.Surface{ChatID: -500, TopicID: 152},
		},
		moderation.WithClock(s.clock.Now),
	)
	profiles := profile.NewService(s.stores.Profiles, profile.WithClock(s.clock.Now))

	s.engine = New(limiter, machine, workflow, profiles, auditor, s.notifier, Config{
		Reviewers:    []int64{reviewerID},
		WarnCooldown: 10 * time.Second,
	})
}

// step sends one actor event with enough spacing to stay under the gate.
func (s *EngineSuite) step(actorID int64, ev event.Event) {
	s.clock.Advance(600 * time.Millisecond)
	ev.ActorID = actorID
	s.Require().NoError(s.engine.HandleEvent(s.ctx, ev))
}

func (s *EngineSuite) auditActions(actorID int64) []audit.Action {
	entries, err := s.stores.AuditLog.ListByActor(s.ctx, actorID)
	s.Require().NoError(err)
	out := make([]audit.Action, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.Action)
	}
	return out
}

func (s *EngineSuite) TestLeaveRequestEndToEnd() {
	testutil.Given(s.T(), "an applicant who walks the leave form")
	s.Require().NoError(s.engine.StartForm(s.ctx, applicantID, "Олександр Іваненко", conversation.FormLeaveRequest))
	s.step(applicantID, event.Event{Kind: event.KindText, Text: "Марія Коваленко", ActorDisplay: "Олександр Іваненко"})
	s.step(applicantID, event.Event{Kind: event.KindText, Text: "2 тижні", ActorDisplay: "Олександр Іваненко"})
	s.step(applicantID, event.Event{Kind: event.KindSelection, Text: "Управління НПУ в Дніпрі", ActorDisplay: "Олександр Іваненко"})

	testutil.Then(s.T(), "the request is registered and fanned out to the reviewer")
	s.Require().Contains(s.notifier.lastTo(s.T(), applicantID).Text, "№1")
	reviewerMsgs := s.notifier.sentTo(reviewerID)
	s.Require().Len(reviewerMsgs, 1)
	s.Require().Len(reviewerMsgs[0].Buttons, 1)
	s.Require().Contains(s.auditActions(applicantID), audit.ActionRequestSubmitted)

	testutil.When(s.T(), "the reviewer approves with attestation")
	approve := event.Action{Kind: event.ActionApprove, Target: event.TargetLeaveRequest, RequestID: 1}
	s.step(reviewerID, event.Event{Kind: event.KindAction, Action: &approve, MessageHandle: "msg-1", ActorDisplay: "rev"})
	s.Require().Contains(s.notifier.lastTo(s.T(), reviewerID).Text, "ім'я та прізвище")
	s.step(reviewerID, event.Event{Kind: event.KindText, Text: "Петро Шевченко"})

	testutil.Then(s.T(), "the decision lands on the leave topic and the submitter is told")
	s.Require().Len(s.notifier.broadcasts, 1)
	s.Require().Equal(152, s.notifier.broadcasts[0].TopicID)
	s.Require().Contains(s.notifier.lastTo(s.T(), applicantID).Text, "схвалено")
	s.Require().Contains(s.auditActions(reviewerID), audit.ActionRequestApproved)

	req, err := s.stores.Requests.FindRequest(s.ctx, 1)
	s.Require().NoError(err)
	s.Require().Equal(moderation.StatusApproved, req.Status)
	s.Require().Equal("Петро Шевченко", req.DecidedByName)
}

func (s *EngineSuite) TestApplicationApprovalDeliversInvite() {
	s.Require().NoError(s.engine.StartForm(s.ctx, applicantID, "Олександр Іваненко", conversation.FormApplication))
	s.step(applicantID, event.Event{Kind: event.KindText, Text: "Олександр Іваненко", ActorDisplay: "Олександр Іваненко"})
	s.step(applicantID, event.Event{Kind: event.KindSelection, Text: "Управління НПУ в Дніпрі"})
	s.step(applicantID, event.Event{Kind: event.KindText, Text: "https://i.imgur.com/a.png\nhttps://i.imgur.com/b.png", ActorDisplay: "Олександр Іваненко"})

	approve := event.Action{Kind: event.ActionApprove, Target: event.TargetApplication, RequestID: 1}
	s.step(reviewerID, event.Event{Kind: event.KindAction, Action: &approve, ActorDisplay: "Петро Шевченко"})

	s.Require().Contains(s.notifier.lastTo(s.T(), applicantID).Text, "https://t.me/+invite")
}

func (s *EngineSuite) TestPrivilegedActorNeverRateLimited() {
	for i := 0; i < 100; i++ {
		err := s.engine.HandleEvent(s.ctx, event.Event{
			ActorID: reviewerID, Kind: event.KindText, Text: "ping",
		})
		s.Require().NoError(err)
	}
	for _, msg := range s.notifier.sentTo(reviewerID) {
		s.Require().NotContains(msg.Text, "Занадто швидко")
	}
	s.Require().NotContains(s.auditActions(reviewerID), audit.ActionRateLimited)
}

func (s *EngineSuite) TestRateGateWarnsOncePerCooldown() {
	s.Require().NoError(s.engine.StartForm(s.ctx, applicantID, "", conversation.FormLeaveRequest))

	testutil.When(s.T(), "the applicant floods faster than the minimum interval")
	for i := 0; i < 4; i++ {
		s.clock.Advance(50 * time.Millisecond)
		s.Require().NoError(s.engine.HandleEvent(s.ctx, event.Event{
			ActorID: applicantID, Kind: event.KindText, Text: "Марія Коваленко",
		}))
	}

	testutil.Then(s.T(), "one warning is sent and every rejection is audited")
	warned := 0
	for _, msg := range s.notifier.sentTo(applicantID) {
		if strings.Contains(msg.Text, "Занадто швидко") {
			warned++
		}
	}
	s.Require().Equal(1, warned)

	limited := 0
	for _, action := range s.auditActions(applicantID) {
		if action == audit.ActionRateLimited {
			limited++
		}
	}
	s.Require().Equal(4, limited)
}

func (s *EngineSuite) TestProfileRefillSavesProfile() {
	s.Require().NoError(s.engine.StartForm(s.ctx, applicantID, "", conversation.FormProfileRefill))
	s.step(applicantID, event.Event{Kind: event.KindText, Text: "Олена Ткаченко"})
	s.step(applicantID, event.Event{Kind: event.KindSelection, Text: "Лейтенант"})
	s.step(applicantID, event.Event{Kind: event.KindSelection, Text: "Управління НПУ в Києві"})

	p, err := s.stores.Profiles.GetProfile(s.ctx, applicantID)
	s.Require().NoError(err)
	s.Require().Equal("Олена Ткаченко", p.InGameName)
	s.Require().Equal("Лейтенант", p.Rank)
	s.Require().Contains(s.auditActions(applicantID), audit.ActionProfileUpdated)
}

func (s *EngineSuite) TestAdminStats() {
	s.Run("non-reviewers are refused", func() {
		_, err := s.engine.AdminStats(s.ctx, applicantID)
		s.Require().Equal(domainerrors.CodeForbidden, domainerrors.CodeOf(err))
	})

	s.Run("reviewers see pending and open counts", func() {
		s.Require().NoError(s.engine.StartForm(s.ctx, applicantID, "", conversation.FormLeaveRequest))
		text, err := s.engine.AdminStats(s.ctx, reviewerID)
		s.Require().NoError(err)
		s.Require().Contains(text, "Відкритих форм: 1")
	})
}

func (s *EngineSuite) TestMenuFollowsMembership() {
	s.Run("unknown actors may only apply", func() {
		forms := s.engine.MenuFor(s.ctx, applicantID)
		s.Require().Contains(forms, conversation.FormApplication)
		s.Require().NotContains(forms, conversation.FormReprimand)
	})

	s.Run("members get request forms", func() {
		_, err := s.engine.profiles.Upsert(s.ctx, profile.Profile{
			ActorID: applicantID, InGameName: "Олександр Іваненко",
		})
		s.Require().NoError(err)
		forms := s.engine.MenuFor(s.ctx, applicantID)
		s.Require().Contains(forms, conversation.FormLeaveRequest)
		s.Require().NotContains(forms, conversation.FormReprimand)
	})

	s.Run("reviewers get everything", func() {
		s.Require().Len(s.engine.MenuFor(s.ctx, reviewerID), 5)
	})
}

func (s *EngineSuite) TestReprimandIsReviewerOnly() {
	s.Require().NoError(s.engine.StartForm(s.ctx, applicantID, "Хтось Сторонній", conversation.FormReprimand))
	s.Require().Contains(s.notifier.lastTo(s.T(), applicantID).Text, "лише рев'юерам")

	active, err := s.engine.ActiveConversations(s.ctx)
	s.Require().NoError(err)
	s.Require().Zero(active)
}

func (s *EngineSuite) TestReprimandIssuerSeededFromProfile() {
	_, err := s.engine.profiles.Upsert(s.ctx, profile.Profile{
		ActorID: reviewerID, InGameName: "Петро Шевченко",
	})
	s.Require().NoError(err)

	s.Require().NoError(s.engine.StartForm(s.ctx, reviewerID, "petro_tg", conversation.FormReprimand))
	s.step(reviewerID, event.Event{Kind: event.KindText, Text: "Невиконання наказу"})
	s.step(reviewerID, event.Event{Kind: event.KindText, Text: "01.10.2025"})
	s.step(reviewerID, event.Event{Kind: event.KindText, Text: "Іван Мельник"})

	s.Require().Contains(s.notifier.lastTo(s.T(), reviewerID).Text, "Петро Шевченко")
}

func (s *EngineSuite) TestActionFromNonReviewerIgnored() {
	s.Require().NoError(s.engine.StartForm(s.ctx, applicantID, "Олександр Іваненко", conversation.FormLeaveRequest))
	s.step(applicantID, event.Event{Kind: event.KindText, Text: "Марія Коваленко"})
	s.step(applicantID, event.Event{Kind: event.KindText, Text: "2 тижні"})
	s.step(applicantID, event.Event{Kind: event.KindSelection, Text: "Управління НПУ в Дніпрі"})

	approve := event.Action{Kind: event.ActionApprove, Target: event.TargetLeaveRequest, RequestID: 1}
	outsider := int64(999)
	s.clock.Advance(time.Second)
	s.Require().NoError(s.engine.HandleEvent(s.ctx, event.Event{
		ActorID: outsider, Kind: event.KindAction, Action: &approve,
	}))

	req, err := s.stores.Requests.FindRequest(s.ctx, 1)
	s.Require().NoError(err)
	s.Require().Equal(moderation.StatusPending, req.Status)
}
