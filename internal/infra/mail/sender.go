package mail

import (
	"context"
	"fmt"

	"gopkg.in/gomail.v2"

	"tutor_booking_engine/internal/domain/notification"
)

// Dialer is satisfied by *gomail.Dialer.
type Dialer interface {
	DialAndSend(m ...*gomail.Message) error
}

// Sender emails outbox messages to recipients that have an address.
type Sender struct {
	dialer Dialer
	from   string
}

func NewSender(host string, port int, username, password, from string) *Sender {
	return &Sender{dialer: gomail.NewDialer(host, port, username, password), from: from}
}

func NewDialerSender(d Dialer, from string) *Sender {
	return &Sender{dialer: d, from: from}
}

func (s *Sender) Name() string { return "email" }

func (s *Sender) Send(ctx context.Context, to notification.Recipient, m *notification.Message) error {
	if !to.Email.Valid || to.Email.String == "" {
		return notification.ErrNoChannel
	}
	msg := gomail.NewMessage()
	msg.SetHeader("From", s.from)
	msg.SetAddressHeader("To", to.Email.String, to.FullName)
	msg.SetHeader("Subject", m.Subject)
	msg.SetHeader("X-Notification-ID", m.ID)
	msg.SetBody("text/plain", m.Body)

	// gomail has no context support; stop waiting once ctx ends.
	done := make(chan error, 1)
	go func() { done <- s.dialer.DialAndSend(msg) }()
	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("smtp send to %s: %w", to.Email.String, err)
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
