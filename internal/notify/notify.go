// Package notify defines the outbound notifier port. The engine treats every
// call as independently failable: one unreachable recipient never affects
// ledger state or the other recipients.
package notify

import "context"

// Button is one inline decision affordance. Data is decoded back into an
// action at the event boundary.
type Button struct {
	Label string
	Data  string
}

// Content is one outbound message. Buttons and Choices are mutually
// exclusive in practice: Buttons render inline, Choices as a one-time
// selection keyboard.
type Content struct {
	Text    string
	Buttons [][]Button
	Choices []string
	// ClearChoices removes any selection keyboard left from a prior prompt.
	ClearChoices bool
	// DisablePreview suppresses link previews (invite links, evidence URLs).
	DisablePreview bool
}

// Surface addresses a broadcast target: a chat and, optionally, a topic
// within it.
type Surface struct {
	ChatID  int64
	TopicID int
}

// MessageHandle identifies a sent message so it can later be edited with the
// decision outcome.
type MessageHandle string

// Notifier is implemented by the chat transport adapter and by test fakes.
type Notifier interface {
	Send(ctx context.Context, recipientID int64, content Content) (MessageHandle, error)
	EditOrReplace(ctx context.Context, recipientID int64, handle MessageHandle, content Content) error
	Broadcast(ctx context.Context, surface Surface, content Content) error
}

// InviteIssuer mints single-use invite links for approved applications.
// Kept separate from Notifier because only the application flow needs it.
type InviteIssuer interface {
	CreateInviteLink(ctx context.Context, displayName string) (string, error)
}
