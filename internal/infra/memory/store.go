// Package memory is a Store kept in process memory. Transactions are
// serialised by one mutex and applied by swapping in a working copy on
// commit, so a failed unit of work leaves nothing behind.
package memory

import (
	"context"
	"sync"
	"time"

	"tutor_booking_engine/internal/domain/availability"
	"tutor_booking_engine/internal/domain/booking"
	"tutor_booking_engine/internal/domain/escrow"
	"tutor_booking_engine/internal/domain/notification"
	"tutor_booking_engine/internal/domain/payout"
	"tutor_booking_engine/internal/domain/reminder"
	"tutor_booking_engine/internal/domain/store"
	"tutor_booking_engine/internal/domain/teacher"
	"tutor_booking_engine/internal/domain/user"
	"tutor_booking_engine/internal/domain/wallet"
)

type Store struct {
	mu   sync.Mutex
	data *state
}

func NewStore() *Store {
	return &Store{data: newState()}
}

func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, tx store.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	work := s.data.clone()
	if err := fn(ctx, &memTx{st: work}); err != nil {
		return err
	}
	s.data = work
	return nil
}

type walletKey struct {
	userID   int64
	currency string
}

type reminderKey struct {
	bookingID int64
	kind      reminder.Type
}

type outboxRow struct {
	msg         notification.Message
	lockedUntil time.Time
}

type state struct {
	nextID    int64
	users     map[int64]user.User
	teachers  map[int64]teacher.Teacher
	slots     map[int64]availability.Slot
	bookings  map[int64]booking.Booking
	history   []booking.RescheduleHistory
	escrow    map[int64]escrow.Entry // keyed by booking ID
	balances  map[walletKey]int64
	walletTxs []wallet.Transaction
	reminders map[reminderKey]reminder.Record
	payouts   map[int64]payout.Request
	methods   map[int64]payout.PaymentMethod
	outbox    map[string]outboxRow
}

func newState() *state {
	return &state{
		users:     map[int64]user.User{},
		teachers:  map[int64]teacher.Teacher{},
		slots:     map[int64]availability.Slot{},
		bookings:  map[int64]booking.Booking{},
		escrow:    map[int64]escrow.Entry{},
		balances:  map[walletKey]int64{},
		reminders: map[reminderKey]reminder.Record{},
		payouts:   map[int64]payout.Request{},
		methods:   map[int64]payout.PaymentMethod{},
		outbox:    map[string]outboxRow{},
	}
}

func copyMap[K comparable, V any](m map[K]V) map[K]V {
	out := make(map[K]V, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// clone copies every table. Stored values hold no shared mutable state
// apart from message payloads, which are never mutated in place.
func (s *state) clone() *state {
	return &state{
		nextID:    s.nextID,
		users:     copyMap(s.users),
		teachers:  copyMap(s.teachers),
		slots:     copyMap(s.slots),
		bookings:  copyMap(s.bookings),
		history:   append([]booking.RescheduleHistory(nil), s.history...),
		escrow:    copyMap(s.escrow),
		balances:  copyMap(s.balances),
		walletTxs: append([]wallet.Transaction(nil), s.walletTxs...),
		reminders: copyMap(s.reminders),
		payouts:   copyMap(s.payouts),
		methods:   copyMap(s.methods),
		outbox:    copyMap(s.outbox),
	}
}

func (s *state) id() int64 {
	s.nextID++
	return s.nextID
}

type memTx struct {
	st *state
}

func (t *memTx) Users() user.Repository                  { return userRepo{t.st} }
func (t *memTx) Teachers() teacher.Repository            { return teacherRepo{t.st} }
func (t *memTx) Availability() availability.Repository   { return availabilityRepo{t.st} }
func (t *memTx) Bookings() booking.Repository            { return bookingRepo{t.st} }
func (t *memTx) Escrow() escrow.Repository               { return escrowRepo{t.st} }
func (t *memTx) Wallets() wallet.Repository              { return walletRepo{t.st} }
func (t *memTx) Reminders() reminder.Repository          { return reminderRepo{t.st} }
func (t *memTx) Payouts() payout.Repository              { return payoutRepo{t.st} }
func (t *memTx) PaymentMethods() payout.MethodRepository { return methodRepo{t.st} }
func (t *memTx) Outbox() notification.Outbox             { return outboxRepo{t.st} }
