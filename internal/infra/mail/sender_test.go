package mail

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"strings"
	"testing"

	"gopkg.in/gomail.v2"

	"tutor_booking_engine/internal/domain/notification"
)

type recordingDialer struct {
	sent []*gomail.Message
	err  error
}

func (d *recordingDialer) DialAndSend(m ...*gomail.Message) error {
	d.sent = append(d.sent, m...)
	return d.err
}

func TestSendWithoutEmail(t *testing.T) {
	d := &recordingDialer{}
	s := NewDialerSender(d, "no-reply@example.com")
	err := s.Send(context.Background(), notification.Recipient{UserID: 1}, &notification.Message{ID: "m1"})
	if !errors.Is(err, notification.ErrNoChannel) {
		t.Fatalf("expected ErrNoChannel, got %v", err)
	}
	if len(d.sent) != 0 {
		t.Fatal("nothing should be sent")
	}
}

func TestSendComposesMessage(t *testing.T) {
	d := &recordingDialer{}
	s := NewDialerSender(d, "no-reply@example.com")
	to := notification.Recipient{UserID: 1, FullName: "Ann Lee", Email: sql.NullString{String: "ann@example.com", Valid: true}}
	m := &notification.Message{ID: "m1", Subject: "Session reminder", Body: "Your session starts in 1h"}

	if err := s.Send(context.Background(), to, m); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if len(d.sent) != 1 {
		t.Fatalf("sent %d messages, want 1", len(d.sent))
	}
	if got := d.sent[0].GetHeader("Subject"); len(got) != 1 || got[0] != "Session reminder" {
		t.Errorf("subject = %v", got)
	}
	var buf bytes.Buffer
	if _, err := d.sent[0].WriteTo(&buf); err != nil {
		t.Fatalf("WriteTo: %v", err)
	}
	if !strings.Contains(buf.String(), "ann@example.com") {
		t.Errorf("recipient missing from message:\n%s", buf.String())
	}
}

func TestSendPropagatesDialError(t *testing.T) {
	d := &recordingDialer{err: errors.New("connection refused")}
	s := NewDialerSender(d, "no-reply@example.com")
	to := notification.Recipient{Email: sql.NullString{String: "ann@example.com", Valid: true}}
	if err := s.Send(context.Background(), to, &notification.Message{ID: "m1"}); err == nil {
		t.Fatal("expected error")
	}
}
