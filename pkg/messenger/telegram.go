package messenger

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"gopkg.in/telebot.v3"
)

type TelegramSender struct {
	bot *telebot.Bot
}

func NewTelegramSender(botToken string) (*TelegramSender, error) {
	bot, err := telebot.NewBot(telebot.Settings{
		Token:   botToken,
		Offline: false,
	})
	if err != nil {
		// NewBot hits getMe, so failures here are the same class as
		// send failures: revoked token, rate limit, network.
		return nil, fmt.Errorf("failed to create telegram bot: %w", classifyTelegramError(err))
	}
	return &TelegramSender{bot: bot}, nil
}

// chatRecipient lets "@channelname" addresses pass through unchanged.
type chatRecipient string

func (c chatRecipient) Recipient() string { return string(c) }

func resolveRecipient(address string) (telebot.Recipient, error) {
	if strings.HasPrefix(address, "@") {
		return chatRecipient(address), nil
	}
	id, err := strconv.ParseInt(address, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: %q is neither a chat id nor a @channel", ErrInvalidTarget, address)
	}
	return telebot.ChatID(id), nil
}

func (t *TelegramSender) SendToChannel(ctx context.Context, address string, payload Payload) (*Receipt, error) {
	return t.send(address, payload)
}

// SendDirect on Telegram is a send to the user's private chat id.
func (t *TelegramSender) SendDirect(ctx context.Context, userID string, payload Payload) (*Receipt, error) {
	return t.send(userID, payload)
}

func (t *TelegramSender) Ping(ctx context.Context) error {
	// NewBot already performed getMe against the API.
	return nil
}

func (t *TelegramSender) send(address string, payload Payload) (*Receipt, error) {
	to, err := resolveRecipient(address)
	if err != nil {
		return nil, err
	}

	msg, err := t.bot.Send(to, renderHTML(payload), telebot.ModeHTML)
	if err != nil {
		return nil, classifyTelegramError(err)
	}
	return &Receipt{
		MessageID: strconv.Itoa(msg.ID),
		Channel:   address,
	}, nil
}

func renderHTML(payload Payload) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("<b>%s</b>\n", payload.Header))
	for _, section := range payload.Sections {
		if section.Body == "" {
			continue
		}
		sb.WriteString("\n")
		if section.Title != "" {
			sb.WriteString(fmt.Sprintf("<b>%s</b>\n", section.Title))
		}
		sb.WriteString(section.Body)
		sb.WriteString("\n")
	}
	if payload.Footer != "" {
		sb.WriteString(fmt.Sprintf("\n<i>%s</i>", payload.Footer))
	}
	return sb.String()
}

func classifyTelegramError(err error) error {
	var flood telebot.FloodError
	if errors.As(err, &flood) {
		return fmt.Errorf("%w: telegram flood limit, retry after %ds", ErrTransient, flood.RetryAfter)
	}

	switch {
	case errors.Is(err, telebot.ErrChatNotFound),
		errors.Is(err, telebot.ErrNotFound),
		errors.Is(err, telebot.ErrBlockedByUser),
		errors.Is(err, telebot.ErrUserIsDeactivated):
		return fmt.Errorf("%w: %s", ErrInvalidTarget, err.Error())
	case errors.Is(err, telebot.ErrUnauthorized):
		return fmt.Errorf("%w: %s", ErrCredentialRevoked, err.Error())
	}

	return err
}
