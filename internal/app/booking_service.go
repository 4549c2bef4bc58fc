package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"tutor_booking_engine/internal/domain/availability"
	"tutor_booking_engine/internal/domain/booking"
	"tutor_booking_engine/internal/domain/notification"
	"tutor_booking_engine/internal/domain/store"
)

var ErrInvalidRecurrence = fmt.Errorf("recurrence needs at least one occurrence and a positive interval")

// CreateBookingRequest describes a single session to reserve. PayerUserID
// defaults to the student.
type CreateBookingRequest struct {
	TeacherID     int64
	StudentUserID int64
	PayerUserID   int64
	SubjectID     int64
	Start         time.Time
	End           time.Time
	Notes         string
}

// OccurrenceResult reports the outcome of one occurrence of a recurring
// request. Booking is nil when Err is set.
type OccurrenceResult struct {
	Start   time.Time
	End     time.Time
	Booking *booking.Booking
	Err     error
}

// BookingService creates bookings and drives their lifecycle. Conflict
// checks and inserts happen inside one transaction holding the teacher
// lock, so two requests for overlapping intervals cannot both succeed.
type BookingService struct {
	store  store.Store
	policy Policy
	log    *logrus.Entry
}

func NewBookingService(s store.Store, policy Policy, log *logrus.Entry) *BookingService {
	return &BookingService{store: s, policy: policy, log: log.WithField("component", "booking")}
}

// IsAvailable answers whether the interval could be booked right now. The
// answer is advisory; CreateBooking re-checks under lock.
func (s *BookingService) IsAvailable(ctx context.Context, teacherID int64, start, end time.Time) (bool, error) {
	iv := availability.Interval{Start: start, End: end}
	if !iv.Valid() {
		return false, booking.ErrInvalidInterval
	}
	var free bool
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx store.Tx) error {
		t, err := tx.Teachers().GetByID(ctx, teacherID)
		if err != nil {
			return err
		}
		err = checkSlot(ctx, tx, t, iv, 0, s.policy)
		switch {
		case err == nil:
			free = true
			return nil
		case errors.Is(err, booking.ErrSlotUnavailable), errors.Is(err, availability.ErrHolidayMode):
			return nil
		default:
			return err
		}
	})
	if err != nil {
		return false, err
	}
	return free, nil
}

// CreateBooking reserves the interval and then tries to confirm payment.
// A booking whose payment cannot be taken stays pending or awaiting
// payment; the returned booking reflects that.
func (s *BookingService) CreateBooking(ctx context.Context, req CreateBookingRequest, now time.Time) (*booking.Booking, error) {
	b, err := s.reserve(ctx, req, sql.NullString{}, now)
	if err != nil {
		return nil, err
	}
	confirmed, err := s.ConfirmPayment(ctx, b.ID, now)
	if err != nil {
		s.log.WithError(err).WithField("booking_id", b.ID).Error("Payment confirmation failed, booking left pending")
		return b, nil
	}
	return confirmed, nil
}

func (s *BookingService) reserve(ctx context.Context, req CreateBookingRequest, seriesID sql.NullString, now time.Time) (*booking.Booking, error) {
	iv := availability.Interval{Start: req.Start, End: req.End}
	if !iv.Valid() {
		return nil, booking.ErrInvalidInterval
	}
	if !req.Start.After(now) {
		return nil, booking.ErrInPast
	}
	payer := req.PayerUserID
	if payer == 0 {
		payer = req.StudentUserID
	}

	var created *booking.Booking
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx store.Tx) error {
		t, err := tx.Teachers().GetForUpdate(ctx, req.TeacherID)
		if err != nil {
			return err
		}
		if err := checkSlot(ctx, tx, t, iv, 0, s.policy); err != nil {
			return err
		}
		b := &booking.Booking{
			SeriesID:      seriesID,
			TeacherID:     t.UserID,
			StudentUserID: req.StudentUserID,
			PayerUserID:   payer,
			SubjectID:     req.SubjectID,
			StartTime:     req.Start,
			EndTime:       req.End,
			Status:        booking.StatusPending,
			PaymentStatus: booking.PaymentAwaiting,
			Currency:      t.Currency,
			Amount:        t.PriceFor(iv.Duration()),
			Notes:         req.Notes,
			CreatedAt:     now,
			UpdatedAt:     now,
		}
		if err := tx.Bookings().Create(ctx, b); err != nil {
			return err
		}
		created = b
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.log.WithFields(logrus.Fields{
		"booking_id": created.ID,
		"teacher_id": created.TeacherID,
		"start":      created.StartTime,
		"end":        created.EndTime,
	}).Info("Booking reserved")
	return created, nil
}

// CreateRecurring books occurrences copies of req, each shifted by every.
// Each occurrence is checked and committed on its own; a conflict on one
// does not undo the others.
func (s *BookingService) CreateRecurring(ctx context.Context, req CreateBookingRequest, occurrences int, every time.Duration, now time.Time) ([]OccurrenceResult, error) {
	if occurrences < 1 || every <= 0 {
		return nil, ErrInvalidRecurrence
	}
	series := sql.NullString{String: uuid.NewString(), Valid: true}
	results := make([]OccurrenceResult, 0, occurrences)
	for i := 0; i < occurrences; i++ {
		occ := req
		occ.Start = req.Start.Add(time.Duration(i) * every)
		occ.End = req.End.Add(time.Duration(i) * every)
		res := OccurrenceResult{Start: occ.Start, End: occ.End}

		b, err := s.reserve(ctx, occ, series, now)
		if err != nil {
			res.Err = err
			results = append(results, res)
			continue
		}
		if confirmed, err := s.ConfirmPayment(ctx, b.ID, now); err != nil {
			s.log.WithError(err).WithField("booking_id", b.ID).Error("Payment confirmation failed for recurring occurrence")
		} else {
			b = confirmed
		}
		res.Booking = b
		results = append(results, res)
	}
	return results, nil
}

// ConfirmPayment holds the booking's price in escrow. Without sufficient
// funds the booking moves to awaiting payment and the payer is told so.
// Calling it on a confirmed booking is a no-op.
func (s *BookingService) ConfirmPayment(ctx context.Context, bookingID int64, now time.Time) (*booking.Booking, error) {
	var (
		result *booking.Booking
		held   bool
	)
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx store.Tx) error {
		b, err := tx.Bookings().GetForUpdate(ctx, bookingID)
		if err != nil {
			return err
		}
		result = b
		switch b.Status {
		case booking.StatusConfirmed:
			return nil
		case booking.StatusPending, booking.StatusAwaitingPayment:
		default:
			return fmt.Errorf("%w: cannot confirm payment of a %s booking", booking.ErrInvalidTransition, b.Status)
		}
		if !now.Before(b.StartTime) {
			return fmt.Errorf("%w: session already started", booking.ErrInvalidTransition)
		}

		balance, err := tx.Wallets().Balance(ctx, b.PayerUserID, b.Currency)
		if err != nil {
			return fmt.Errorf("failed to read balance of payer %d: %w", b.PayerUserID, err)
		}
		if balance < b.Amount {
			if b.Status == booking.StatusAwaitingPayment {
				return nil
			}
			if err := b.TransitionTo(booking.StatusAwaitingPayment, now); err != nil {
				return err
			}
			if err := tx.Bookings().Update(ctx, b); err != nil {
				return fmt.Errorf("failed to update booking %d: %w", b.ID, err)
			}
			return notify(ctx, tx, now, notification.PaymentRequired{
				BookingID: b.ID,
				Start:     b.StartTime,
				Amount:    b.Amount,
				Currency:  b.Currency,
			}, b.PayerUserID)
		}

		if _, err := holdFunds(ctx, tx, b, now); err != nil {
			return err
		}
		if err := b.TransitionTo(booking.StatusConfirmed, now); err != nil {
			return err
		}
		if err := b.AdvancePayment(booking.PaymentHeld); err != nil {
			return err
		}
		if err := tx.Bookings().Update(ctx, b); err != nil {
			return fmt.Errorf("failed to update booking %d: %w", b.ID, err)
		}
		held = true

		confirmed := notification.BookingConfirmed{
			BookingID: b.ID,
			Start:     b.StartTime,
			End:       b.EndTime,
			Amount:    b.Amount,
			Currency:  b.Currency,
		}
		if err := notify(ctx, tx, now, confirmed, b.StudentSide()...); err != nil {
			return err
		}
		return notify(ctx, tx, now.Add(s.policy.ConfirmationFollowupDelay), confirmed, b.TeacherID)
	})
	if err != nil {
		return nil, err
	}
	if held {
		s.log.WithFields(logrus.Fields{"booking_id": result.ID, "amount": result.Amount}).Info("Booking confirmed, funds held")
	}
	return result, nil
}

// Join records that userID entered the session. Joining is allowed from
// JoinEarlyWindow before start until the session ends.
func (s *BookingService) Join(ctx context.Context, bookingID, userID int64, now time.Time) (*booking.Booking, error) {
	var result *booking.Booking
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx store.Tx) error {
		b, err := tx.Bookings().GetForUpdate(ctx, bookingID)
		if err != nil {
			return err
		}
		if b.Status != booking.StatusConfirmed {
			return fmt.Errorf("%w: booking is %s", booking.ErrOutsideJoinWindow, b.Status)
		}
		if now.Before(b.StartTime.Add(-s.policy.JoinEarlyWindow)) || !now.Before(b.EndTime) {
			return booking.ErrOutsideJoinWindow
		}
		if err := b.MarkAttended(userID); err != nil {
			return err
		}
		b.UpdatedAt = now
		result = b
		return tx.Bookings().Update(ctx, b)
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// RequestReschedule stores a proposed interval for the counterpart to
// answer. The proposal is checked now, and again on approval.
func (s *BookingService) RequestReschedule(ctx context.Context, bookingID, actorID int64, start, end time.Time, now time.Time) (*booking.Booking, error) {
	iv := availability.Interval{Start: start, End: end}
	var result *booking.Booking
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx store.Tx) error {
		b, err := tx.Bookings().GetForUpdate(ctx, bookingID)
		if err != nil {
			return err
		}
		if err := b.RequestReschedule(actorID, iv, now); err != nil {
			return err
		}
		t, err := tx.Teachers().GetByID(ctx, b.TeacherID)
		if err != nil {
			return err
		}
		if err := checkSlot(ctx, tx, t, iv, b.ID, s.policy); err != nil {
			return err
		}
		if err := tx.Bookings().Update(ctx, b); err != nil {
			return fmt.Errorf("failed to update booking %d: %w", b.ID, err)
		}
		result = b
		return notify(ctx, tx, now, notification.RescheduleRequested{
			BookingID:     b.ID,
			RequestedBy:   actorID,
			ProposedStart: start,
			ProposedEnd:   end,
		}, b.Counterparts(actorID)...)
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// ApproveReschedule swaps in the proposed interval after re-running the
// conflict check under the teacher lock. On conflict nothing changes and
// the request stays pending. Reminders sent for the old time are forgotten.
func (s *BookingService) ApproveReschedule(ctx context.Context, bookingID, actorID int64, now time.Time) (*booking.Booking, error) {
	var result *booking.Booking
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx store.Tx) error {
		peek, err := tx.Bookings().GetByID(ctx, bookingID)
		if err != nil {
			return err
		}
		t, err := tx.Teachers().GetForUpdate(ctx, peek.TeacherID)
		if err != nil {
			return err
		}
		b, err := tx.Bookings().GetForUpdate(ctx, bookingID)
		if err != nil {
			return err
		}
		if err := b.CanAnswerReschedule(actorID); err != nil {
			return err
		}
		if !b.Status.Active() {
			return fmt.Errorf("%w: cannot reschedule a %s booking", booking.ErrInvalidTransition, b.Status)
		}
		proposed := b.ProposedInterval()
		if !proposed.Start.After(now) {
			return booking.ErrInPast
		}
		if err := checkSlot(ctx, tx, t, proposed, b.ID, s.policy); err != nil {
			return err
		}

		history := &booking.RescheduleHistory{
			BookingID:   b.ID,
			OldStart:    b.StartTime,
			OldEnd:      b.EndTime,
			NewStart:    proposed.Start,
			NewEnd:      proposed.End,
			RequestedBy: b.RescheduleRequestedBy.Int64,
			ApprovedBy:  actorID,
			CreatedAt:   now,
		}
		b.ApplyReschedule(now)
		if err := tx.Bookings().Update(ctx, b); err != nil {
			return err
		}
		if err := tx.Bookings().AppendRescheduleHistory(ctx, history); err != nil {
			return fmt.Errorf("failed to record reschedule of booking %d: %w", b.ID, err)
		}
		if err := tx.Reminders().DeleteForBooking(ctx, b.ID); err != nil {
			return fmt.Errorf("failed to reset reminders of booking %d: %w", b.ID, err)
		}
		result = b
		return notify(ctx, tx, now, notification.RescheduleAnswered{
			BookingID: b.ID,
			Approved:  true,
			Start:     b.StartTime,
			End:       b.EndTime,
		}, b.Counterparts(actorID)...)
	})
	if err != nil {
		return nil, err
	}
	s.log.WithFields(logrus.Fields{"booking_id": result.ID, "start": result.StartTime}).Info("Booking rescheduled")
	return result, nil
}

// RejectReschedule discards the pending proposal.
func (s *BookingService) RejectReschedule(ctx context.Context, bookingID, actorID int64, now time.Time) (*booking.Booking, error) {
	var result *booking.Booking
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx store.Tx) error {
		b, err := tx.Bookings().GetForUpdate(ctx, bookingID)
		if err != nil {
			return err
		}
		if err := b.CanAnswerReschedule(actorID); err != nil {
			return err
		}
		proposed := b.ProposedInterval()
		b.ClearReschedule(now)
		if err := tx.Bookings().Update(ctx, b); err != nil {
			return fmt.Errorf("failed to update booking %d: %w", b.ID, err)
		}
		result = b
		return notify(ctx, tx, now, notification.RescheduleAnswered{
			BookingID: b.ID,
			Approved:  false,
			Start:     proposed.Start,
			End:       proposed.End,
		}, b.Counterparts(actorID)...)
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// CancelBooking cancels a booking that has not started. Held funds go back to the
// payer in full.
func (s *BookingService) CancelBooking(ctx context.Context, bookingID, actorID int64, reason string, now time.Time) (*booking.Booking, error) {
	var result *booking.Booking
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx store.Tx) error {
		b, err := tx.Bookings().GetForUpdate(ctx, bookingID)
		if err != nil {
			return err
		}
		if !b.IsParticipant(actorID) {
			return booking.ErrNotParticipant
		}
		if !b.Status.Active() {
			return fmt.Errorf("%w: booking is already %s", booking.ErrInvalidTransition, b.Status)
		}
		if !now.Before(b.StartTime) {
			return fmt.Errorf("%w: session already started", booking.ErrInvalidTransition)
		}

		var refunded int64
		if b.PaymentStatus == booking.PaymentHeld {
			res, err := settle(ctx, tx, b.ID, 0, 0, "cancelled before start", now)
			if err != nil {
				return err
			}
			b = res.booking
			refunded = res.entry.RefundedAmount
		}
		if reason == "" {
			reason = "Cancelled by participant"
		}
		if err := b.Cancel(reason, now); err != nil {
			return err
		}
		if err := tx.Bookings().Update(ctx, b); err != nil {
			return fmt.Errorf("failed to update booking %d: %w", b.ID, err)
		}
		result = b
		return notify(ctx, tx, now, notification.BookingCancelled{
			BookingID:      b.ID,
			Reason:         reason,
			RefundedAmount: refunded,
			Currency:       b.Currency,
		}, append([]int64{b.TeacherID}, b.StudentSide()...)...)
	})
	if err != nil {
		return nil, err
	}
	s.log.WithFields(logrus.Fields{"booking_id": bookingID, "actor_id": actorID}).Info("Booking cancelled")
	return result, nil
}

func (s *BookingService) Get(ctx context.Context, bookingID int64) (*booking.Booking, error) {
	var b *booking.Booking
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx store.Tx) error {
		var err error
		b, err = tx.Bookings().GetByID(ctx, bookingID)
		return err
	})
	return b, err
}

func (s *BookingService) RescheduleHistory(ctx context.Context, bookingID int64) ([]booking.RescheduleHistory, error) {
	var history []booking.RescheduleHistory
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx store.Tx) error {
		if _, err := tx.Bookings().GetByID(ctx, bookingID); err != nil {
			return err
		}
		var err error
		history, err = tx.Bookings().ListRescheduleHistory(ctx, bookingID)
		return err
	})
	return history, err
}
