package moderation

import (
	"fmt"
	"strings"

	"dutybot/internal/event"
	"dutybot/internal/notify"
)

// Field keys as the conversation layer writes them.
const (
	fieldName          = "name"
	fieldDepartment    = "department"
	fieldRecipient     = "recipient"
	fieldDuration      = "duration"
	fieldOffense       = "offense"
	fieldDate          = "date"
	fieldOffender      = "offender"
	fieldIssuer        = "issuer"
	fieldPenalty       = "penalty"
	fieldCandidate     = "candidate"
	fieldCandidateRank = "candidate_rank"
	fieldRequestedRank = "requested_rank"
	fieldJustification = "justification"
)

// reviewCard renders one reviewer's copy of a pending request, decision
// buttons attached.
func reviewCard(req *Request) notify.Content {
	return notify.Content{
		Text:           requestText(req),
		Buttons:        decisionButtons(req),
		DisablePreview: true,
	}
}

// decidedCard is what every reviewer copy is edited to after the decision:
// same body, outcome line appended, buttons gone.
func decidedCard(req *Request) notify.Content {
	return notify.Content{
		Text:           requestText(req) + "\n\n" + outcomeLine(req),
		DisablePreview: true,
	}
}

func decisionButtons(req *Request) [][]notify.Button {
	approve := event.Action{Kind: event.ActionApprove, Target: req.Kind, RequestID: req.ID}
	reject := event.Action{Kind: event.ActionReject, Target: req.Kind, RequestID: req.ID}
	return [][]notify.Button{{
		{Label: "✅ Схвалити", Data: approve.Encode()},
		{Label: "❌ Відхилити", Data: reject.Encode()},
	}}
}

func requestText(req *Request) string {
	var b strings.Builder
	switch req.Kind {
	case event.TargetApplication:
		fmt.Fprintf(&b, "🆕 НОВА ЗАЯВКА НА ДОСТУП №%d\n\n", req.ID)
		fmt.Fprintf(&b, "👤 Ім'я: %s\n", req.Fields[fieldName])
		fmt.Fprintf(&b, "🏢 Управління: %s\n", req.Fields[fieldDepartment])
		fmt.Fprintf(&b, "🆔 ID: %d\n", req.SubmitterID)
		b.WriteString("\n📎 Докази:\n")
		for _, ev := range req.Evidence {
			fmt.Fprintf(&b, "• %s\n", ev)
		}
	case event.TargetLeaveRequest:
		fmt.Fprintf(&b, "📋 ЗАЯВА НА НЕАКТИВ №%d\n\n", req.ID)
		fmt.Fprintf(&b, "👤 Кому: %s\n", req.Fields[fieldRecipient])
		fmt.Fprintf(&b, "⏳ Термін: %s\n", req.Fields[fieldDuration])
		fmt.Fprintf(&b, "🏢 Відділ: %s\n", req.Fields[fieldDepartment])
		fmt.Fprintf(&b, "✍️ Подав: %s (%d)\n", req.SubmitterDisplay, req.SubmitterID)
	case event.TargetReprimand:
		fmt.Fprintf(&b, "⚠️ ДОГАНА №%d\n\n", req.ID)
		fmt.Fprintf(&b, "👤 Порушник: %s\n", req.Fields[fieldOffender])
		fmt.Fprintf(&b, "📝 Порушення: %s\n", req.Fields[fieldOffense])
		fmt.Fprintf(&b, "📅 Дата: %s\n", req.Fields[fieldDate])
		fmt.Fprintf(&b, "👮 Видав: %s\n", req.Fields[fieldIssuer])
		fmt.Fprintf(&b, "📌 Покарання: %s\n", req.Fields[fieldPenalty])
	case event.TargetPromotion:
		fmt.Fprintf(&b, "⭐ ПОДАННЯ НА ПІДВИЩЕННЯ №%d\n\n", req.ID)
		candidate := req.Fields[fieldCandidate]
		if rank := req.Fields[fieldCandidateRank]; rank != "" {
			candidate = rank + " " + candidate
		}
		fmt.Fprintf(&b, "👤 Кандидат: %s\n", candidate)
		fmt.Fprintf(&b, "🏢 Підрозділ: %s\n", req.Fields[fieldDepartment])
		fmt.Fprintf(&b, "🎖 На звання: %s\n", req.Fields[fieldRequestedRank])
		fmt.Fprintf(&b, "📝 Обґрунтування: %s\n", req.Fields[fieldJustification])
		fmt.Fprintf(&b, "✍️ Подав: %s (%d)\n", req.SubmitterDisplay, req.SubmitterID)
	}
	return strings.TrimRight(b.String(), "\n")
}

func outcomeLine(req *Request) string {
	verdict := "✅ Схвалено"
	if req.Status == StatusRejected {
		verdict = "❌ Відхилено"
	}
	line := fmt.Sprintf("%s — %s", verdict, req.DecidedByName)
	if req.DecideReason != "" {
		line += "\nПричина: " + req.DecideReason
	}
	return line
}

// submitterNotice tells the submitter the outcome. The invite link is set
// only for an approved application.
func submitterNotice(req *Request, inviteLink string) notify.Content {
	var b strings.Builder
	if req.Status == StatusApproved {
		switch req.Kind {
		case event.TargetApplication:
			b.WriteString("✅ Вашу заявку схвалено!\n\n")
			fmt.Fprintf(&b, "Посилання для вступу: %s", inviteLink)
		case event.TargetLeaveRequest:
			b.WriteString("✅ Вашу заяву на неактив схвалено.")
		case event.TargetReprimand:
			b.WriteString("✅ Догану оформлено.")
		case event.TargetPromotion:
			b.WriteString("✅ Ваше подання на підвищення схвалено.")
		}
	} else {
		b.WriteString("❌ Вашу заявку відхилено.")
		if req.DecideReason != "" {
			fmt.Fprintf(&b, "\nПричина: %s", req.DecideReason)
		}
	}
	return notify.Content{Text: b.String()}
}

// broadcastNotice is the group-topic announcement for decisions that have
// one. Only approved leave requests and reprimands are announced.
func broadcastNotice(req *Request) (notify.Content, bool) {
	if req.Status != StatusApproved {
		return notify.Content{}, false
	}
	switch req.Kind {
	case event.TargetLeaveRequest:
		text := fmt.Sprintf("📋 НЕАКТИВ\n\n👤 %s\n⏳ Термін: %s\n🏢 Відділ: %s\n✅ Підтвердив: %s",
			req.Fields[fieldRecipient], req.Fields[fieldDuration],
			req.Fields[fieldDepartment], req.DecidedByName)
		return notify.Content{Text: text}, true
	case event.TargetReprimand:
		text := fmt.Sprintf("⚠️ %s\n\n👤 Порушник: %s\n📝 Порушення: %s\n📅 Дата: %s\n👮 Видав: %s",
			strings.ToUpper(req.Fields[fieldPenalty]), req.Fields[fieldOffender],
			req.Fields[fieldOffense], req.Fields[fieldDate], req.Fields[fieldIssuer])
		return notify.Content{Text: text}, true
	default:
		return notify.Content{}, false
	}
}
