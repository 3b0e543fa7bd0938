// Package telegram adapts the Telegram Bot API to the notify and event
// ports. It is the only package that knows about chat ids, callback data or
// keyboards; everything inward speaks events and content.
package telegram

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"dutybot/internal/notify"
)

// Bot implements notify.Notifier and notify.InviteIssuer over one bot
// connection.
type Bot struct {
	api         *tgbotapi.BotAPI
	groupChatID int64
	logger      *slog.Logger
}

func NewBot(token string, groupChatID int64, logger *slog.Logger) (*Bot, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("connect bot: %w", err)
	}
	logger.Info("bot authorized", "username", api.Self.UserName)
	return &Bot{api: api, groupChatID: groupChatID, logger: logger}, nil
}

func (b *Bot) Send(_ context.Context, recipientID int64, content notify.Content) (notify.MessageHandle, error) {
	msg := tgbotapi.NewMessage(recipientID, content.Text)
	msg.ReplyMarkup = markupFor(content)
	msg.DisableWebPagePreview = content.DisablePreview
	sent, err := b.api.Send(msg)
	if err != nil {
		return "", fmt.Errorf("send to %d: %w", recipientID, err)
	}
	return notify.MessageHandle(strconv.Itoa(sent.MessageID)), nil
}

func (b *Bot) EditOrReplace(ctx context.Context, recipientID int64, handle notify.MessageHandle, content notify.Content) error {
	messageID, err := strconv.Atoi(string(handle))
	if err != nil {
		_, serr := b.Send(ctx, recipientID, content)
		return serr
	}
	edit := tgbotapi.NewEditMessageText(recipientID, messageID, content.Text)
	edit.DisableWebPagePreview = content.DisablePreview
	if kb, ok := inlineKeyboard(content.Buttons); ok {
		edit.ReplyMarkup = &kb
	}
	if _, err := b.api.Send(edit); err != nil {
		// The original may be too old to edit; fall back to a fresh message.
		b.logger.Warn("edit failed, sending replacement", "recipient_id", recipientID, "error", err)
		_, serr := b.Send(ctx, recipientID, content)
		return serr
	}
	return nil
}

func (b *Bot) Broadcast(_ context.Context, surface notify.Surface, content notify.Content) error {
	msg := tgbotapi.NewMessage(surface.ChatID, content.Text)
	msg.DisableWebPagePreview = content.DisablePreview
	// Forum topics are threads rooted at a service message; replying to that
	// root posts into the topic.
	if surface.TopicID != 0 {
		msg.ReplyToMessageID = surface.TopicID
	}
	if _, err := b.api.Send(msg); err != nil {
		return fmt.Errorf("broadcast to %d/%d: %w", surface.ChatID, surface.TopicID, err)
	}
	return nil
}

// CreateInviteLink mints a single-use invite into the group, labeled with
// the invitee so admins can tell links apart.
func (b *Bot) CreateInviteLink(_ context.Context, displayName string) (string, error) {
	resp, err := b.api.Request(tgbotapi.CreateChatInviteLinkConfig{
		ChatConfig:  tgbotapi.ChatConfig{ChatID: b.groupChatID},
		Name:        displayName,
		MemberLimit: 1,
	})
	if err != nil {
		return "", fmt.Errorf("create invite link: %w", err)
	}
	var link tgbotapi.ChatInviteLink
	if err := json.Unmarshal(resp.Result, &link); err != nil {
		return "", fmt.Errorf("decode invite link: %w", err)
	}
	return link.InviteLink, nil
}

func markupFor(content notify.Content) interface{} {
	if kb, ok := inlineKeyboard(content.Buttons); ok {
		return kb
	}
	if len(content.Choices) > 0 {
		rows := make([][]tgbotapi.KeyboardButton, 0, len(content.Choices))
		for _, choice := range content.Choices {
			rows = append(rows, tgbotapi.NewKeyboardButtonRow(tgbotapi.NewKeyboardButton(choice)))
		}
		kb := tgbotapi.NewReplyKeyboard(rows...)
		kb.OneTimeKeyboard = true
		kb.ResizeKeyboard = true
		return kb
	}
	if content.ClearChoices {
		return tgbotapi.NewRemoveKeyboard(false)
	}
	return nil
}

func inlineKeyboard(buttons [][]notify.Button) (tgbotapi.InlineKeyboardMarkup, bool) {
	if len(buttons) == 0 {
		return tgbotapi.InlineKeyboardMarkup{}, false
	}
	rows := make([][]tgbotapi.InlineKeyboardButton, 0, len(buttons))
	for _, row := range buttons {
		btns := make([]tgbotapi.InlineKeyboardButton, 0, len(row))
		for _, btn := range row {
			btns = append(btns, tgbotapi.NewInlineKeyboardButtonData(btn.Label, btn.Data))
		}
		rows = append(rows, btns)
	}
	return tgbotapi.NewInlineKeyboardMarkup(rows...), true
}
