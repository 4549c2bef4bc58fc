package telegram

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"gopkg.in/telebot.v3"

	"tutor_booking_engine/internal/domain/booking"
	"tutor_booking_engine/internal/domain/notification"
)

type fakeMessenger struct {
	mu    sync.Mutex
	to    []telebot.Recipient
	texts []string
	opts  []*telebot.SendOptions
	err   error
	block chan struct{}
}

func (f *fakeMessenger) Send(to telebot.Recipient, what interface{}, opts ...interface{}) (*telebot.Message, error) {
	if f.block != nil {
		<-f.block
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.to = append(f.to, to)
	f.texts = append(f.texts, fmt.Sprint(what))
	for _, o := range opts {
		if so, ok := o.(*telebot.SendOptions); ok {
			f.opts = append(f.opts, so)
		}
	}
	return &telebot.Message{}, f.err
}

func recipient() notification.Recipient {
	return notification.Recipient{UserID: 2, TelegramID: sql.NullInt64{Int64: 2001, Valid: true}}
}

func TestSendEscapesHTML(t *testing.T) {
	fake := &fakeMessenger{}
	m := &notification.Message{Kind: notification.KindBookingConfirmed, Subject: "Booking <confirmed>", Body: "Pay & go"}

	if err := NewSender(fake).Send(context.Background(), recipient(), m); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(fake.texts) != 1 {
		t.Fatalf("sent %d messages", len(fake.texts))
	}
	if want := "<b>Booking &lt;confirmed&gt;</b>\n\nPay &amp; go"; fake.texts[0] != want {
		t.Errorf("text = %q, want %q", fake.texts[0], want)
	}
	if fake.to[0].Recipient() != "2001" {
		t.Errorf("recipient = %s", fake.to[0].Recipient())
	}
	if fake.opts[0].ParseMode != telebot.ModeHTML || fake.opts[0].ReplyMarkup != nil {
		t.Errorf("options = %+v", fake.opts[0])
	}
}

func TestSendWithoutTelegramAccount(t *testing.T) {
	fake := &fakeMessenger{}
	err := NewSender(fake).Send(context.Background(), notification.Recipient{UserID: 3}, &notification.Message{})
	if !errors.Is(err, notification.ErrNoChannel) {
		t.Errorf("err = %v, want ErrNoChannel", err)
	}
	if len(fake.texts) != 0 {
		t.Error("message sent to a user without Telegram")
	}
}

func TestSendRescheduleRequestCarriesButtons(t *testing.T) {
	fake := &fakeMessenger{}
	m, err := notification.NewMessage(2, notification.RescheduleRequested{
		BookingID:     77,
		RequestedBy:   1,
		ProposedStart: time.Date(2026, 3, 2, 13, 0, 0, 0, time.UTC),
		ProposedEnd:   time.Date(2026, 3, 2, 14, 0, 0, 0, time.UTC),
	}, time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if err := NewSender(fake).Send(context.Background(), recipient(), m); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	markup := fake.opts[0].ReplyMarkup
	if markup == nil || len(markup.InlineKeyboard) != 1 || len(markup.InlineKeyboard[0]) != 2 {
		t.Fatalf("markup = %+v", markup)
	}
	approve, reject := markup.InlineKeyboard[0][0], markup.InlineKeyboard[0][1]
	if approve.Unique != approveUnique || reject.Unique != rejectUnique {
		t.Errorf("buttons = %q, %q", approve.Unique, reject.Unique)
	}
	if approve.Data != "77" || reject.Data != "77" {
		t.Errorf("button data = %q, %q", approve.Data, reject.Data)
	}
}

func TestSendHonoursContext(t *testing.T) {
	fake := &fakeMessenger{block: make(chan struct{})}
	defer close(fake.block)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := NewSender(fake).Send(ctx, recipient(), &notification.Message{Subject: "s", Body: "b"})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("err = %v, want DeadlineExceeded", err)
	}
}

func TestSendWrapsBotErrors(t *testing.T) {
	fake := &fakeMessenger{err: telebot.ErrBlockedByUser}
	err := NewSender(fake).Send(context.Background(), recipient(), &notification.Message{})
	if !errors.Is(err, telebot.ErrBlockedByUser) || !strings.Contains(err.Error(), "2001") {
		t.Errorf("err = %v", err)
	}
}

func TestRescheduleErrorText(t *testing.T) {
	tests := map[error]string{
		booking.ErrSlotUnavailable:                         "no longer available",
		fmt.Errorf("wrapped: %w", booking.ErrOwnReschedule): "other participant",
		booking.ErrNoReschedule:                            "no pending reschedule",
		errors.New("db down"):                              "db down",
	}
	for err, want := range tests {
		if got := rescheduleErrorText(err); !strings.Contains(got, want) {
			t.Errorf("rescheduleErrorText(%v) = %q, want it to contain %q", err, got, want)
		}
	}
}
