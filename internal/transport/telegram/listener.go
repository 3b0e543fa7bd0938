package telegram

import (
	"context"
	"log/slog"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"dutybot/internal/conversation"
	"dutybot/internal/event"
	domainerrors "dutybot/pkg/domain-errors"
)

// Menu labels double as commands: pressing one on the reply keyboard opens
// the matching form.
const (
	menuApplication = "📝 Подати заявку"
	menuLeave       = "📋 Заява на неактив"
	menuReprimand   = "⚠️ Оформити догану"
	menuPromotion   = "⭐ Подання на підвищення"
	menuProfile     = "👤 Мій профіль"
)

var menuForms = map[string]conversation.FormKind{
	menuApplication: conversation.FormApplication,
	menuLeave:       conversation.FormLeaveRequest,
	menuReprimand:   conversation.FormReprimand,
	menuPromotion:   conversation.FormPromotion,
	menuProfile:     conversation.FormProfileRefill,
}

var menuLabels = map[conversation.FormKind]string{
	conversation.FormApplication:   menuApplication,
	conversation.FormLeaveRequest:  menuLeave,
	conversation.FormReprimand:     menuReprimand,
	conversation.FormPromotion:     menuPromotion,
	conversation.FormProfileRefill: menuProfile,
}

// Dispatcher is the engine surface the listener drives.
type Dispatcher interface {
	HandleEvent(ctx context.Context, ev event.Event) error
	StartForm(ctx context.Context, actorID int64, display string, form conversation.FormKind) error
	MenuFor(ctx context.Context, actorID int64) []conversation.FormKind
	AdminStats(ctx context.Context, actorID int64) (string, error)
}

// Listener polls updates and feeds them to the engine one at a time, which
// preserves per-actor ordering by construction.
type Listener struct {
	bot    *Bot
	engine Dispatcher
	logger *slog.Logger
}

func NewListener(bot *Bot, engine Dispatcher, logger *slog.Logger) *Listener {
	return &Listener{bot: bot, engine: engine, logger: logger}
}

// Run consumes updates until the context is canceled.
func (l *Listener) Run(ctx context.Context) error {
	cfg := tgbotapi.NewUpdate(0)
	cfg.Timeout = 30
	updates := l.bot.api.GetUpdatesChan(cfg)

	for {
		select {
		case <-ctx.Done():
			l.bot.api.StopReceivingUpdates()
			return ctx.Err()
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			l.handleUpdate(ctx, update)
		}
	}
}

func (l *Listener) handleUpdate(ctx context.Context, update tgbotapi.Update) {
	switch {
	case update.CallbackQuery != nil:
		l.handleCallback(ctx, update.CallbackQuery)
	case update.Message != nil:
		l.handleMessage(ctx, update.Message)
	}
}

func (l *Listener) handleCallback(ctx context.Context, cb *tgbotapi.CallbackQuery) {
	// Ack first so the client stops its spinner regardless of the outcome.
	if _, err := l.bot.api.Request(tgbotapi.NewCallback(cb.ID, "")); err != nil {
		l.logger.Warn("answer callback", "error", err)
	}

	act, err := event.DecodeAction(cb.Data)
	if err != nil {
		l.logger.Warn("unrecognized callback data", "data", cb.Data, "error", err)
		return
	}
	ev := event.Event{
		ActorID:      cb.From.ID,
		ActorDisplay: displayName(cb.From),
		Kind:         event.KindAction,
		Action:       &act,
	}
	if cb.Message != nil {
		ev.MessageHandle = strconv.Itoa(cb.Message.MessageID)
	}
	if err := l.engine.HandleEvent(ctx, ev); err != nil {
		l.logger.Error("handle action", "actor_id", ev.ActorID, "error", err)
	}
}

func (l *Listener) handleMessage(ctx context.Context, msg *tgbotapi.Message) {
	if msg.From == nil || !msg.Chat.IsPrivate() {
		return
	}
	actorID := msg.From.ID
	display := displayName(msg.From)

	if msg.IsCommand() {
		l.handleCommand(ctx, msg, actorID, display)
		return
	}

	if form, ok := menuForms[strings.TrimSpace(msg.Text)]; ok {
		if err := l.engine.StartForm(ctx, actorID, display, form); err != nil {
			l.logger.Error("start form", "actor_id", actorID, "form", form, "error", err)
		}
		return
	}

	ev := translateMessage(msg)
	ev.ActorID = actorID
	ev.ActorDisplay = display
	if err := l.engine.HandleEvent(ctx, ev); err != nil {
		l.logger.Error("handle message", "actor_id", actorID, "error", err)
	}
}

func (l *Listener) handleCommand(ctx context.Context, msg *tgbotapi.Message, actorID int64, display string) {
	switch msg.Command() {
	case "start":
		l.sendMenu(ctx, actorID)
	case "cancel":
		ev := event.Event{ActorID: actorID, ActorDisplay: display, Kind: event.KindCancel}
		if err := l.engine.HandleEvent(ctx, ev); err != nil {
			l.logger.Error("handle cancel", "actor_id", actorID, "error", err)
		}
	case "admin":
		text, err := l.engine.AdminStats(ctx, actorID)
		if err != nil {
			if domainerrors.CodeOf(err) != domainerrors.CodeForbidden {
				l.logger.Error("admin stats", "actor_id", actorID, "error", err)
			}
			return
		}
		l.reply(actorID, text)
	default:
		l.reply(actorID, "Невідома команда. Використайте /start.")
	}
}

func (l *Listener) sendMenu(ctx context.Context, actorID int64) {
	forms := l.engine.MenuFor(ctx, actorID)
	rows := make([][]tgbotapi.KeyboardButton, 0, len(forms))
	for _, form := range forms {
		rows = append(rows, tgbotapi.NewKeyboardButtonRow(tgbotapi.NewKeyboardButton(menuLabels[form])))
	}
	msg := tgbotapi.NewMessage(actorID, "👮 Оберіть дію:")
	msg.ReplyMarkup = tgbotapi.NewReplyKeyboard(rows...)
	if _, err := l.bot.api.Send(msg); err != nil {
		l.logger.Warn("send menu", "actor_id", actorID, "error", err)
	}
}

func (l *Listener) reply(actorID int64, text string) {
	if _, err := l.bot.api.Send(tgbotapi.NewMessage(actorID, text)); err != nil {
		l.logger.Warn("send reply", "actor_id", actorID, "error", err)
	}
}

// translateMessage maps a plain message to the inbound event vocabulary.
// Callers fill in actor identity.
func translateMessage(msg *tgbotapi.Message) event.Event {
	switch {
	case len(msg.Photo) > 0:
		// Telegram sends several sizes; the last is the largest.
		return event.Event{Kind: event.KindMediaItem, MediaRef: msg.Photo[len(msg.Photo)-1].FileID}
	case msg.Document != nil:
		return event.Event{Kind: event.KindMediaItem, MediaRef: msg.Document.FileID}
	default:
		return event.Event{Kind: event.KindText, Text: msg.Text}
	}
}

func displayName(u *tgbotapi.User) string {
	if u == nil {
		return ""
	}
	name := strings.TrimSpace(u.FirstName + " " + u.LastName)
	if name == "" {
		name = u.UserName
	}
	return name
}
