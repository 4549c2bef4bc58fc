package memory

import (
	"context"
	"fmt"
	"sort"
	"time"

	"tutor_booking_engine/internal/domain/availability"
	"tutor_booking_engine/internal/domain/booking"
	"tutor_booking_engine/internal/domain/escrow"
	"tutor_booking_engine/internal/domain/notification"
	"tutor_booking_engine/internal/domain/payout"
	"tutor_booking_engine/internal/domain/reminder"
	"tutor_booking_engine/internal/domain/teacher"
	"tutor_booking_engine/internal/domain/user"
	"tutor_booking_engine/internal/domain/wallet"
)

var ErrDuplicateTelegramID = fmt.Errorf("user with this Telegram ID already exists")

type userRepo struct{ st *state }

func (r userRepo) Create(_ context.Context, u *user.User) error {
	if u.TelegramID.Valid {
		for _, existing := range r.st.users {
			if existing.TelegramID.Valid && existing.TelegramID.Int64 == u.TelegramID.Int64 {
				return ErrDuplicateTelegramID
			}
		}
	}
	u.ID = r.st.id()
	r.st.users[u.ID] = *u
	return nil
}

func (r userRepo) GetByID(_ context.Context, id int64) (*user.User, error) {
	u, ok := r.st.users[id]
	if !ok {
		return nil, user.ErrNotFound
	}
	return &u, nil
}

func (r userRepo) GetByTelegramID(_ context.Context, telegramID int64) (*user.User, error) {
	for _, u := range r.st.users {
		u := u
		if u.TelegramID.Valid && u.TelegramID.Int64 == telegramID {
			return &u, nil
		}
	}
	return nil, user.ErrNotFound
}

type teacherRepo struct{ st *state }

func (r teacherRepo) Create(_ context.Context, t *teacher.Teacher) error {
	if _, ok := r.st.users[t.UserID]; !ok {
		return user.ErrNotFound
	}
	r.st.teachers[t.UserID] = *t
	return nil
}

func (r teacherRepo) GetByID(_ context.Context, userID int64) (*teacher.Teacher, error) {
	t, ok := r.st.teachers[userID]
	if !ok {
		return nil, teacher.ErrNotFound
	}
	return &t, nil
}

func (r teacherRepo) GetForUpdate(ctx context.Context, userID int64) (*teacher.Teacher, error) {
	return r.GetByID(ctx, userID)
}

func (r teacherRepo) Update(_ context.Context, t *teacher.Teacher) error {
	if _, ok := r.st.teachers[t.UserID]; !ok {
		return teacher.ErrNotFound
	}
	r.st.teachers[t.UserID] = *t
	return nil
}

func (r teacherRepo) ListAutomaticPayouts(_ context.Context) ([]*teacher.Teacher, error) {
	out := make([]*teacher.Teacher, 0)
	for _, t := range r.st.teachers {
		t := t
		if t.AutomaticPayouts {
			out = append(out, &t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out, nil
}

type availabilityRepo struct{ st *state }

func (r availabilityRepo) Upsert(_ context.Context, s *availability.Slot) error {
	for id, existing := range r.st.slots {
		if existing.TeacherID == s.TeacherID && existing.DayOfWeek == s.DayOfWeek && existing.StartTime == s.StartTime {
			s.ID = id
			r.st.slots[id] = *s
			return nil
		}
	}
	s.ID = r.st.id()
	r.st.slots[s.ID] = *s
	return nil
}

func (r availabilityRepo) ListByTeacher(_ context.Context, teacherID int64) ([]availability.Slot, error) {
	return r.filter(func(s availability.Slot) bool { return s.TeacherID == teacherID }), nil
}

func (r availabilityRepo) ListEnabledForDay(_ context.Context, teacherID int64, day time.Weekday) ([]availability.Slot, error) {
	return r.filter(func(s availability.Slot) bool {
		return s.TeacherID == teacherID && s.DayOfWeek == day && s.IsAvailable
	}), nil
}

func (r availabilityRepo) filter(keep func(availability.Slot) bool) []availability.Slot {
	out := make([]availability.Slot, 0)
	for _, s := range r.st.slots {
		if keep(s) {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].DayOfWeek != out[j].DayOfWeek {
			return out[i].DayOfWeek < out[j].DayOfWeek
		}
		return out[i].StartTime < out[j].StartTime
	})
	return out
}

type bookingRepo struct{ st *state }

// overlapsActive mirrors the bookings_no_overlap exclusion constraint.
func (r bookingRepo) overlapsActive(b *booking.Booking) bool {
	if !b.Status.Active() {
		return false
	}
	for id, other := range r.st.bookings {
		other := other
		if id == b.ID || other.TeacherID != b.TeacherID || !other.Status.Active() {
			continue
		}
		if other.Interval().Overlaps(b.Interval()) {
			return true
		}
	}
	return false
}

func (r bookingRepo) Create(_ context.Context, b *booking.Booking) error {
	if !b.Interval().Valid() {
		return booking.ErrInvalidInterval
	}
	if r.overlapsActive(b) {
		return booking.ErrSlotUnavailable
	}
	b.ID = r.st.id()
	r.st.bookings[b.ID] = *b
	return nil
}

func (r bookingRepo) GetByID(_ context.Context, id int64) (*booking.Booking, error) {
	b, ok := r.st.bookings[id]
	if !ok {
		return nil, booking.ErrNotFound
	}
	return &b, nil
}

func (r bookingRepo) GetForUpdate(ctx context.Context, id int64) (*booking.Booking, error) {
	return r.GetByID(ctx, id)
}

func (r bookingRepo) Update(_ context.Context, b *booking.Booking) error {
	if _, ok := r.st.bookings[b.ID]; !ok {
		return booking.ErrNotFound
	}
	if r.overlapsActive(b) {
		return booking.ErrSlotUnavailable
	}
	r.st.bookings[b.ID] = *b
	return nil
}

func (r bookingRepo) filter(keep func(b booking.Booking) bool) []*booking.Booking {
	out := make([]*booking.Booking, 0)
	for _, b := range r.st.bookings {
		b := b
		if keep(b) {
			out = append(out, &b)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].StartTime.Equal(out[j].StartTime) {
			return out[i].StartTime.Before(out[j].StartTime)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func (r bookingRepo) ListActiveOverlapping(_ context.Context, teacherID int64, iv availability.Interval, excludeID int64) ([]*booking.Booking, error) {
	return r.filter(func(b booking.Booking) bool {
		return b.TeacherID == teacherID && b.ID != excludeID && b.Status.Active() && b.Interval().Overlaps(iv)
	}), nil
}

func (r bookingRepo) ListConfirmedStartingBetween(_ context.Context, from, to time.Time) ([]*booking.Booking, error) {
	return r.filter(func(b booking.Booking) bool {
		return b.Status == booking.StatusConfirmed && !b.StartTime.Before(from) && !b.StartTime.After(to)
	}), nil
}

func (r bookingRepo) ListNoShowWarningCandidates(_ context.Context, from, to time.Time) ([]*booking.Booking, error) {
	return r.filter(func(b booking.Booking) bool {
		return b.Status == booking.StatusConfirmed && !b.StartTime.Before(from) && !b.StartTime.After(to) &&
			!b.AttendanceComplete() && !b.NoShowWarningSentAt.Valid
	}), nil
}

func (r bookingRepo) ListNoShowCandidates(_ context.Context, startedBy time.Time) ([]*booking.Booking, error) {
	return r.filter(func(b booking.Booking) bool {
		return b.Status == booking.StatusConfirmed && b.PaymentStatus == booking.PaymentHeld &&
			!b.StartTime.After(startedBy) && !b.AttendanceComplete()
	}), nil
}

func (r bookingRepo) ListCompletable(_ context.Context, endedBy time.Time) ([]*booking.Booking, error) {
	return r.filter(func(b booking.Booking) bool {
		return b.Status == booking.StatusConfirmed && b.PaymentStatus == booking.PaymentHeld &&
			!b.EndTime.After(endedBy) && b.AttendanceComplete()
	}), nil
}

func (r bookingRepo) ListUnpaidStartedBy(_ context.Context, startedBy time.Time) ([]*booking.Booking, error) {
	return r.filter(func(b booking.Booking) bool {
		return (b.Status == booking.StatusPending || b.Status == booking.StatusAwaitingPayment) && !b.StartTime.After(startedBy)
	}), nil
}

func (r bookingRepo) AppendRescheduleHistory(_ context.Context, h *booking.RescheduleHistory) error {
	h.ID = r.st.id()
	r.st.history = append(r.st.history, *h)
	return nil
}

func (r bookingRepo) ListRescheduleHistory(_ context.Context, bookingID int64) ([]booking.RescheduleHistory, error) {
	out := make([]booking.RescheduleHistory, 0)
	for _, h := range r.st.history {
		if h.BookingID == bookingID {
			out = append(out, h)
		}
	}
	return out, nil
}

type escrowRepo struct{ st *state }

func (r escrowRepo) Create(_ context.Context, e *escrow.Entry) error {
	if _, ok := r.st.escrow[e.BookingID]; ok {
		return fmt.Errorf("escrow entry for booking %d already exists", e.BookingID)
	}
	e.ID = r.st.id()
	r.st.escrow[e.BookingID] = *e
	return nil
}

func (r escrowRepo) GetByBookingID(_ context.Context, bookingID int64) (*escrow.Entry, error) {
	e, ok := r.st.escrow[bookingID]
	if !ok {
		return nil, escrow.ErrNotFound
	}
	return &e, nil
}

func (r escrowRepo) GetForUpdate(ctx context.Context, bookingID int64) (*escrow.Entry, error) {
	return r.GetByBookingID(ctx, bookingID)
}

func (r escrowRepo) Update(_ context.Context, e *escrow.Entry) error {
	if _, ok := r.st.escrow[e.BookingID]; !ok {
		return escrow.ErrNotFound
	}
	if e.Status != escrow.StatusHeld && e.TeacherAmount+e.RefundedAmount != e.Amount {
		return fmt.Errorf("escrow entry %d does not conserve its amount", e.ID)
	}
	r.st.escrow[e.BookingID] = *e
	return nil
}

func (r escrowRepo) ListReleasable(_ context.Context, now time.Time, limit int) ([]int64, error) {
	var entries []escrow.Entry
	for _, e := range r.st.escrow {
		e := e
		if e.Releasable(now) {
			entries = append(entries, e)
		}
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].DisputeWindowEndsAt.Time.Before(entries[j].DisputeWindowEndsAt.Time)
	})
	ids := make([]int64, 0, len(entries))
	for i, e := range entries {
		if limit > 0 && i >= limit {
			break
		}
		ids = append(ids, e.BookingID)
	}
	return ids, nil
}

func (r escrowRepo) SumTeacherEarnings(_ context.Context, teacherID int64) (int64, error) {
	var total int64
	for _, e := range r.st.escrow {
		if e.TeacherID == teacherID && e.Status != escrow.StatusHeld {
			total += e.TeacherAmount
		}
	}
	return total, nil
}

type walletRepo struct{ st *state }

func (r walletRepo) Balance(_ context.Context, userID int64, currency string) (int64, error) {
	return r.st.balances[walletKey{userID, currency}], nil
}

func (r walletRepo) Debit(_ context.Context, tx wallet.Transaction) error {
	if tx.Amount == 0 {
		return nil
	}
	key := walletKey{tx.UserID, tx.Currency}
	if r.st.balances[key] < tx.Amount {
		return wallet.ErrInsufficientFunds
	}
	r.st.balances[key] -= tx.Amount
	tx.Direction = wallet.Debit
	r.record(tx)
	return nil
}

func (r walletRepo) Credit(_ context.Context, tx wallet.Transaction) error {
	if tx.Amount == 0 {
		return nil
	}
	r.st.balances[walletKey{tx.UserID, tx.Currency}] += tx.Amount
	tx.Direction = wallet.Credit
	r.record(tx)
	return nil
}

func (r walletRepo) record(tx wallet.Transaction) {
	tx.ID = r.st.id()
	r.st.walletTxs = append(r.st.walletTxs, tx)
}

func (r walletRepo) ListTransactions(_ context.Context, userID int64) ([]wallet.Transaction, error) {
	out := make([]wallet.Transaction, 0)
	for _, tx := range r.st.walletTxs {
		if tx.UserID == userID {
			out = append(out, tx)
		}
	}
	return out, nil
}

type reminderRepo struct{ st *state }

func (r reminderRepo) Insert(_ context.Context, rec reminder.Record) (bool, error) {
	key := reminderKey{rec.BookingID, rec.Type}
	if _, ok := r.st.reminders[key]; ok {
		return false, nil
	}
	r.st.reminders[key] = rec
	return true, nil
}

func (r reminderRepo) Exists(_ context.Context, bookingID int64, t reminder.Type) (bool, error) {
	_, ok := r.st.reminders[reminderKey{bookingID, t}]
	return ok, nil
}

func (r reminderRepo) DeleteForBooking(_ context.Context, bookingID int64) error {
	for key := range r.st.reminders {
		if key.bookingID == bookingID {
			delete(r.st.reminders, key)
		}
	}
	return nil
}

type payoutRepo struct{ st *state }

func (r payoutRepo) Create(_ context.Context, p *payout.Request) error {
	p.ID = r.st.id()
	r.st.payouts[p.ID] = *p
	return nil
}

func (r payoutRepo) GetByID(_ context.Context, id int64) (*payout.Request, error) {
	p, ok := r.st.payouts[id]
	if !ok {
		return nil, payout.ErrNotFound
	}
	return &p, nil
}

func (r payoutRepo) GetForUpdate(ctx context.Context, id int64) (*payout.Request, error) {
	return r.GetByID(ctx, id)
}

func (r payoutRepo) Update(_ context.Context, p *payout.Request) error {
	if _, ok := r.st.payouts[p.ID]; !ok {
		return payout.ErrNotFound
	}
	r.st.payouts[p.ID] = *p
	return nil
}

func (r payoutRepo) SumCommitted(_ context.Context, teacherID int64) (int64, error) {
	var total int64
	for _, p := range r.st.payouts {
		if p.TeacherID == teacherID && p.Status != payout.StatusFailed {
			total += p.Amount
		}
	}
	return total, nil
}

func (r payoutRepo) list(keep func(payout.Request) bool) []*payout.Request {
	out := make([]*payout.Request, 0)
	for _, p := range r.st.payouts {
		p := p
		if keep(p) {
			out = append(out, &p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (r payoutRepo) ListByStatus(_ context.Context, status payout.Status, limit int) ([]*payout.Request, error) {
	out := r.list(func(p payout.Request) bool { return p.Status == status })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r payoutRepo) ListByTeacher(_ context.Context, teacherID int64) ([]*payout.Request, error) {
	return r.list(func(p payout.Request) bool { return p.TeacherID == teacherID }), nil
}

type methodRepo struct{ st *state }

func (r methodRepo) Create(_ context.Context, m *payout.PaymentMethod) error {
	m.ID = r.st.id()
	r.st.methods[m.ID] = *m
	return nil
}

func (r methodRepo) GetByID(_ context.Context, id int64) (*payout.PaymentMethod, error) {
	m, ok := r.st.methods[id]
	if !ok {
		return nil, payout.ErrMethodNotFound
	}
	return &m, nil
}

func (r methodRepo) GetVerified(_ context.Context, teacherID int64) (*payout.PaymentMethod, error) {
	var best *payout.PaymentMethod
	for _, m := range r.st.methods {
		m := m
		if m.TeacherID == teacherID && m.Verified && (best == nil || m.ID > best.ID) {
			best = &m
		}
	}
	if best == nil {
		return nil, payout.ErrNoVerifiedMethod
	}
	return best, nil
}

type outboxRepo struct{ st *state }

func (r outboxRepo) Enqueue(_ context.Context, m *notification.Message) error {
	if _, ok := r.st.outbox[m.ID]; ok {
		return fmt.Errorf("notification %s already enqueued", m.ID)
	}
	r.st.outbox[m.ID] = outboxRow{msg: *m}
	return nil
}

func (r outboxRepo) ClaimDue(_ context.Context, now time.Time, lease time.Duration, limit int) ([]*notification.Message, error) {
	var due []outboxRow
	for _, row := range r.st.outbox {
		if row.msg.Status == notification.MessagePending && !row.msg.SendAfter.After(now) && !row.lockedUntil.After(now) {
			due = append(due, row)
		}
	}
	sort.Slice(due, func(i, j int) bool {
		if !due[i].msg.SendAfter.Equal(due[j].msg.SendAfter) {
			return due[i].msg.SendAfter.Before(due[j].msg.SendAfter)
		}
		return due[i].msg.ID < due[j].msg.ID
	})
	out := make([]*notification.Message, 0, len(due))
	for i, row := range due {
		if limit > 0 && i >= limit {
			break
		}
		row.lockedUntil = now.Add(lease)
		r.st.outbox[row.msg.ID] = row
		m := row.msg
		out = append(out, &m)
	}
	return out, nil
}

func (r outboxRepo) MarkDelivered(_ context.Context, id string, at time.Time) error {
	row, ok := r.st.outbox[id]
	if !ok {
		return fmt.Errorf("notification %s not found", id)
	}
	row.msg.Status = notification.MessageDelivered
	row.msg.DeliveredAt = at
	row.msg.Attempts++
	row.lockedUntil = time.Time{}
	r.st.outbox[id] = row
	return nil
}

func (r outboxRepo) MarkFailed(_ context.Context, id string, lastErr string, retryAt time.Time, dead bool) error {
	row, ok := r.st.outbox[id]
	if !ok {
		return fmt.Errorf("notification %s not found", id)
	}
	row.msg.Attempts++
	row.msg.LastError = lastErr
	row.msg.SendAfter = retryAt
	if dead {
		row.msg.Status = notification.MessageDead
	}
	row.lockedUntil = time.Time{}
	r.st.outbox[id] = row
	return nil
}

func (r outboxRepo) ListByRecipient(_ context.Context, userID int64) ([]*notification.Message, error) {
	out := make([]*notification.Message, 0)
	for _, row := range r.st.outbox {
		if row.msg.RecipientUserID == userID {
			m := row.msg
			out = append(out, &m)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}
