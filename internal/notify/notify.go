// Package notify delivers booking messages to users over external channels.
package notify

import (
	"context"
	"errors"
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
)

// Channel names recorded on booking notifications.
const (
	ChannelInApp    = "in_app"
	ChannelTelegram = "telegram"
	ChannelLog      = "log"
)

// ErrNoRecipient is returned when a message has no address for the channel.
var ErrNoRecipient = errors.New("no recipient for channel")

// Message is one outbound notification.
type Message struct {
	UserID         uint64
	TelegramChatID int64
	Text           string
}

// Sender delivers a message over one channel.
type Sender interface {
	Channel() string
	Send(ctx context.Context, m Message) error
}

// BotAPI is the part of tgbotapi.BotAPI used here.
type BotAPI interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// Telegram sends messages through a Telegram bot.
type Telegram struct {
	api BotAPI
	log zerolog.Logger
}

// NewTelegram logs into the bot API with token.
func NewTelegram(token string, log zerolog.Logger) (*Telegram, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("telegram login: %w", err)
	}
	log.Info().Str("bot", bot.Self.UserName).Msg("telegram bot authorized")
	return NewTelegramWithAPI(bot, log), nil
}

// NewTelegramWithAPI wraps an existing bot client.
func NewTelegramWithAPI(api BotAPI, log zerolog.Logger) *Telegram {
	return &Telegram{api: api, log: log.With().Str("component", "telegram").Logger()}
}

func (t *Telegram) Channel() string { return ChannelTelegram }

// Send posts m.Text to the user's chat. Users without a chat id get
// ErrNoRecipient.
func (t *Telegram) Send(ctx context.Context, m Message) error {
	if m.TelegramChatID == 0 {
		return ErrNoRecipient
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	msg := tgbotapi.NewMessage(m.TelegramChatID, m.Text)
	msg.DisableWebPagePreview = true
	if _, err := t.api.Send(msg); err != nil {
		return fmt.Errorf("failed to send message: %w", err)
	}
	t.log.Debug().Int64("chat_id", m.TelegramChatID).Int("text_length", len(m.Text)).Msg("message sent")
	return nil
}

// Log writes messages to the application log. It stands in for external
// channels in development.
type Log struct {
	log zerolog.Logger
}

func NewLog(log zerolog.Logger) *Log { return &Log{log: log} }

func (l *Log) Channel() string { return ChannelLog }

func (l *Log) Send(_ context.Context, m Message) error {
	l.log.Info().Uint64("user_id", m.UserID).Str("text", m.Text).Msg("notification")
	return nil
}
