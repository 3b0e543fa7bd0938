// Package event defines the inbound event vocabulary the engine consumes.
// The transport adapter translates platform updates into these shapes once,
// at the boundary; nothing downstream parses strings.
package event

import (
	"fmt"
	"strconv"
	"strings"
)

// Kind classifies an inbound event.
type Kind string

const (
	// KindText is free-form text typed by the actor.
	KindText Kind = "text"
	// KindSelection is a choice made from an offered set (button or reply keyboard).
	KindSelection Kind = "selection"
	// KindMediaItem is one submitted media item (photo, document).
	KindMediaItem Kind = "media_item"
	// KindCancel aborts whatever form is open for the actor.
	KindCancel Kind = "cancel"
	// KindAction is a decoded moderation action (approve/reject button).
	KindAction Kind = "action"
)

// Event is one inbound unit from the per-actor ordered stream.
type Event struct {
	ActorID int64
	// ActorDisplay is the platform display name, used for attribution on
	// submissions and decisions.
	ActorDisplay string
	Kind         Kind

	// Text carries the typed text for KindText and the selected value for
	// KindSelection.
	Text string
	// MediaRef identifies a submitted media item for KindMediaItem.
	MediaRef string
	// Action is set only for KindAction.
	Action *Action
	// MessageHandle identifies the message an action button lived on, so the
	// workflow can edit it with the outcome.
	MessageHandle string
}

// ActionKind is the reviewer's intent.
type ActionKind string

const (
	ActionApprove ActionKind = "approve"
	ActionReject  ActionKind = "reject"
)

// TargetKind names which ledger the action addresses.
type TargetKind string

const (
	TargetApplication  TargetKind = "application"
	TargetLeaveRequest TargetKind = "leave"
	TargetReprimand    TargetKind = "reprimand"
	TargetPromotion    TargetKind = "promotion"
)

// Action is the closed variant a moderation button decodes to.
type Action struct {
	Kind      ActionKind
	Target    TargetKind
	RequestID uint64
}

// Encode renders the action as callback data. The format is stable because
// buttons outlive process restarts.
func (a Action) Encode() string {
	return fmt.Sprintf("%s:%s:%d", a.Kind, a.Target, a.RequestID)
}

// DecodeAction parses callback data produced by Encode. It is the only place
// action strings are interpreted.
func DecodeAction(data string) (Action, error) {
	parts := strings.Split(data, ":")
	if len(parts) != 3 {
		return Action{}, fmt.Errorf("decode action %q: malformed", data)
	}
	id, err := strconv.ParseUint(parts[2], 10, 64)
	if err != nil {
		return Action{}, fmt.Errorf("decode action %q: bad request id", data)
	}
	a := Action{Kind: ActionKind(parts[0]), Target: TargetKind(parts[1]), RequestID: id}
	switch a.Kind {
	case ActionApprove, ActionReject:
	default:
		return Action{}, fmt.Errorf("decode action %q: unknown action kind", data)
	}
	switch a.Target {
	case TargetApplication, TargetLeaveRequest, TargetReprimand, TargetPromotion:
	default:
		return Action{}, fmt.Errorf("decode action %q: unknown target kind", data)
	}
	return a, nil
}
