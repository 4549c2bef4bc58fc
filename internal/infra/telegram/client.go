package telegram

import (
	"context"
	"encoding/json"
	"fmt"
	"html"

	"gopkg.in/telebot.v3"

	"tutor_booking_engine/internal/domain/notification"
)

// Messenger is the part of *telebot.Bot the sender needs.
type Messenger interface {
	Send(to telebot.Recipient, what interface{}, opts ...interface{}) (*telebot.Message, error)
}

// Sender delivers outbox messages as Telegram direct messages.
type Sender struct {
	bot Messenger
}

func NewSender(b Messenger) *Sender {
	return &Sender{bot: b}
}

func (s *Sender) Name() string { return "telegram" }

func (s *Sender) Send(ctx context.Context, to notification.Recipient, m *notification.Message) error {
	if !to.TelegramID.Valid {
		return notification.ErrNoChannel
	}
	options := &telebot.SendOptions{ParseMode: telebot.ModeHTML}
	if markup := replyMarkup(m); markup != nil {
		options.ReplyMarkup = markup
	}
	text := fmt.Sprintf("<b>%s</b>\n\n%s", html.EscapeString(m.Subject), html.EscapeString(m.Body))

	// telebot has no context support; give up waiting once ctx ends.
	done := make(chan error, 1)
	go func() {
		_, err := s.bot.Send(&telebot.User{ID: to.TelegramID.Int64}, text, options)
		done <- err
	}()
	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("telegram send to %d: %w", to.TelegramID.Int64, err)
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// replyMarkup attaches answer buttons to reschedule requests.
func replyMarkup(m *notification.Message) *telebot.ReplyMarkup {
	if m.Kind != notification.KindRescheduleRequested {
		return nil
	}
	var p notification.RescheduleRequested
	if err := json.Unmarshal(m.Payload, &p); err != nil {
		return nil
	}
	markup := &telebot.ReplyMarkup{}
	markup.Inline(markup.Row(
		markup.Data("Approve", approveUnique, fmt.Sprint(p.BookingID)),
		markup.Data("Reject", rejectUnique, fmt.Sprint(p.BookingID)),
	))
	return markup
}
