package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"tutor_booking_engine/internal/domain/booking"
	"tutor_booking_engine/internal/domain/escrow"
	"tutor_booking_engine/internal/domain/notification"
	"tutor_booking_engine/internal/domain/store"
	"tutor_booking_engine/internal/domain/wallet"
)

// EscrowService holds payer funds against bookings and settles them. Every
// mutation locks the booking row first and the escrow row second.
type EscrowService struct {
	store  store.Store
	policy Policy
	log    *logrus.Entry
}

func NewEscrowService(s store.Store, policy Policy, log *logrus.Entry) *EscrowService {
	return &EscrowService{store: s, policy: policy, log: log.WithField("component", "escrow")}
}

// Hold debits the booking's payer and records a held entry. Holding an
// already held booking returns the existing entry.
func (s *EscrowService) Hold(ctx context.Context, bookingID int64, now time.Time) (*escrow.Entry, error) {
	var entry *escrow.Entry
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx store.Tx) error {
		b, err := tx.Bookings().GetForUpdate(ctx, bookingID)
		if err != nil {
			return err
		}
		entry, err = holdFunds(ctx, tx, b, now)
		return err
	})
	if err != nil {
		return nil, err
	}
	return entry, nil
}

func holdFunds(ctx context.Context, tx store.Tx, b *booking.Booking, now time.Time) (*escrow.Entry, error) {
	existing, err := tx.Escrow().GetByBookingID(ctx, b.ID)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, escrow.ErrNotFound) {
		return nil, fmt.Errorf("failed to look up escrow for booking %d: %w", b.ID, err)
	}

	// Free sessions hold nothing; the entry still drives settlement.
	if b.Amount > 0 {
		err = tx.Wallets().Debit(ctx, wallet.Transaction{
			UserID:    b.PayerUserID,
			Direction: wallet.Debit,
			Amount:    b.Amount,
			Currency:  b.Currency,
			Reason:    "escrow hold",
			BookingID: sql.NullInt64{Int64: b.ID, Valid: true},
			CreatedAt: now,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to debit payer %d for booking %d: %w", b.PayerUserID, b.ID, err)
		}
	}

	entry := &escrow.Entry{
		BookingID:   b.ID,
		TeacherID:   b.TeacherID,
		PayerUserID: b.PayerUserID,
		Amount:      b.Amount,
		Currency:    b.Currency,
		Status:      escrow.StatusHeld,
		HeldAt:      now,
		UpdatedAt:   now,
	}
	if err := tx.Escrow().Create(ctx, entry); err != nil {
		return nil, fmt.Errorf("failed to create escrow entry for booking %d: %w", b.ID, err)
	}
	return entry, nil
}

// lockEntry takes the booking lock and then the escrow lock, the order
// every settlement uses.
func lockEntry(ctx context.Context, tx store.Tx, bookingID int64) (*escrow.Entry, error) {
	if _, err := tx.Bookings().GetForUpdate(ctx, bookingID); err != nil {
		return nil, err
	}
	return tx.Escrow().GetForUpdate(ctx, bookingID)
}

// settlement is the outcome of a settle call inside a transaction.
type settlement struct {
	booking *booking.Booking
	entry   *escrow.Entry
}

// settle pays teacherAmount to the teacher's earnings and refunds the rest
// to refundTo (the payer when zero). The caller owns the transaction.
func settle(ctx context.Context, tx store.Tx, bookingID, teacherAmount, refundTo int64, reason string, now time.Time) (settlement, error) {
	b, err := tx.Bookings().GetForUpdate(ctx, bookingID)
	if err != nil {
		return settlement{}, err
	}
	entry, err := tx.Escrow().GetForUpdate(ctx, bookingID)
	if err != nil {
		return settlement{}, err
	}
	if err := entry.Settle(teacherAmount, reason, now); err != nil {
		return settlement{}, err
	}

	if entry.RefundedAmount > 0 {
		if refundTo == 0 {
			refundTo = entry.PayerUserID
		}
		err = tx.Wallets().Credit(ctx, wallet.Transaction{
			UserID:    refundTo,
			Direction: wallet.Credit,
			Amount:    entry.RefundedAmount,
			Currency:  entry.Currency,
			Reason:    "escrow refund: " + reason,
			BookingID: sql.NullInt64{Int64: bookingID, Valid: true},
			CreatedAt: now,
		})
		if err != nil {
			return settlement{}, fmt.Errorf("failed to credit refund for booking %d: %w", bookingID, err)
		}
	}

	next := booking.PaymentReleased
	switch entry.Status {
	case escrow.StatusRefunded:
		next = booking.PaymentRefunded
	case escrow.StatusPartial:
		next = booking.PaymentPartiallyReleased
	}
	if err := b.AdvancePayment(next); err != nil {
		return settlement{}, err
	}
	b.UpdatedAt = now

	if err := tx.Escrow().Update(ctx, entry); err != nil {
		return settlement{}, fmt.Errorf("failed to update escrow for booking %d: %w", bookingID, err)
	}
	if err := tx.Bookings().Update(ctx, b); err != nil {
		return settlement{}, fmt.Errorf("failed to update booking %d: %w", bookingID, err)
	}
	return settlement{booking: b, entry: entry}, nil
}

// Release pays the full held amount to the teacher.
func (s *EscrowService) Release(ctx context.Context, bookingID int64, reason string, now time.Time) (*escrow.Entry, error) {
	var res settlement
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx store.Tx) error {
		entry, err := lockEntry(ctx, tx, bookingID)
		if err != nil {
			return err
		}
		res, err = settle(ctx, tx, bookingID, entry.Amount, 0, reason, now)
		if err != nil {
			return err
		}
		return notify(ctx, tx, now, notification.EscrowReleased{
			BookingID: bookingID,
			Amount:    res.entry.TeacherAmount,
			Currency:  res.entry.Currency,
		}, res.entry.TeacherID)
	})
	if err != nil {
		return nil, err
	}
	s.log.WithFields(logrus.Fields{"booking_id": bookingID, "amount": res.entry.TeacherAmount}).Info("Escrow released")
	return res.entry, nil
}

// Refund returns the full held amount to the payer, or to recipient when it
// is non-nil.
func (s *EscrowService) Refund(ctx context.Context, bookingID int64, recipient *int64, reason string, now time.Time) (*escrow.Entry, error) {
	var refundTo int64
	if recipient != nil {
		refundTo = *recipient
	}
	var res settlement
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx store.Tx) error {
		var err error
		res, err = settle(ctx, tx, bookingID, 0, refundTo, reason, now)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.log.WithFields(logrus.Fields{"booking_id": bookingID, "amount": res.entry.RefundedAmount}).Info("Escrow refunded")
	return res.entry, nil
}

// SplitNoShow settles a student no-show: the configured share goes to the
// teacher, the remainder back to the payer.
func (s *EscrowService) SplitNoShow(ctx context.Context, bookingID int64, now time.Time) (*escrow.Entry, error) {
	var res settlement
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx store.Tx) error {
		var err error
		res, err = s.splitNoShow(ctx, tx, bookingID, now)
		return err
	})
	if err != nil {
		return nil, err
	}
	return res.entry, nil
}

func (s *EscrowService) splitNoShow(ctx context.Context, tx store.Tx, bookingID int64, now time.Time) (settlement, error) {
	entry, err := lockEntry(ctx, tx, bookingID)
	if err != nil {
		return settlement{}, err
	}
	teacherShare, _, err := escrow.SplitAmounts(entry.Amount, s.policy.StudentNoShowTeacherPercent)
	if err != nil {
		return settlement{}, err
	}
	return settle(ctx, tx, bookingID, teacherShare, 0, booking.NoShowStudent.Reason(), now)
}

// ProcessEligibleReleases releases every held, undisputed entry whose
// dispute window has ended. Each entry settles in its own transaction.
func (s *EscrowService) ProcessEligibleReleases(ctx context.Context, now time.Time) SweepReport {
	report := newReport(SweepEscrowRelease, now)

	var ids []int64
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx store.Tx) error {
		var err error
		ids, err = tx.Escrow().ListReleasable(ctx, now, s.policy.SweepBatchSize)
		return err
	})
	if err != nil {
		report.failed("list releasable escrow: %v", err)
		return report.Result()
	}

	for _, id := range ids {
		id := id
		if ctx.Err() != nil {
			break
		}
		err := s.store.WithinTx(ctx, func(ctx context.Context, tx store.Tx) error {
			entry, err := lockEntry(ctx, tx, id)
			if err != nil {
				return err
			}
			// The entry may have been disputed or settled since it was listed.
			if !entry.Releasable(now) {
				return errSkip
			}
			res, err := settle(ctx, tx, id, entry.Amount, 0, "dispute window elapsed", now)
			if err != nil {
				return err
			}
			return notify(ctx, tx, now, notification.EscrowReleased{
				BookingID: id,
				Amount:    res.entry.TeacherAmount,
				Currency:  res.entry.Currency,
			}, res.entry.TeacherID)
		})
		switch {
		case err == nil:
			report.succeeded()
		case errors.Is(err, errSkip), errors.Is(err, escrow.ErrNotHeld):
			report.skipped()
		default:
			s.log.WithError(err).WithField("booking_id", id).Error("Failed to release escrow")
			report.failed("booking %d: %v", id, err)
		}
	}
	return report.Result()
}

// OpenDispute blocks automatic release of a completed booking until an
// administrator resolves it.
func (s *EscrowService) OpenDispute(ctx context.Context, bookingID, actorID int64, reason string, now time.Time) (*escrow.Entry, error) {
	var entry *escrow.Entry
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx store.Tx) error {
		b, err := tx.Bookings().GetForUpdate(ctx, bookingID)
		if err != nil {
			return err
		}
		if !b.IsParticipant(actorID) {
			return booking.ErrNotParticipant
		}
		// The dispute window only exists after completion; a session that
		// has not happened is cancelled, not disputed.
		if b.Status != booking.StatusCompleted {
			return fmt.Errorf("%w: cannot dispute a %s booking", booking.ErrInvalidTransition, b.Status)
		}
		entry, err = tx.Escrow().GetForUpdate(ctx, bookingID)
		if err != nil {
			return err
		}
		if err := entry.OpenDispute(actorID, reason, now); err != nil {
			return err
		}
		if err := tx.Escrow().Update(ctx, entry); err != nil {
			return fmt.Errorf("failed to update escrow for booking %d: %w", bookingID, err)
		}
		return notify(ctx, tx, now, notification.DisputeOpened{
			BookingID: bookingID,
			OpenedBy:  actorID,
			Reason:    reason,
		}, b.Counterparts(actorID)...)
	})
	if err != nil {
		return nil, err
	}
	s.log.WithFields(logrus.Fields{"booking_id": bookingID, "opened_by": actorID}).Warn("Escrow dispute opened")
	return entry, nil
}

// ResolveDispute settles a disputed entry with teacherPercent of the amount
// going to the teacher.
func (s *EscrowService) ResolveDispute(ctx context.Context, bookingID int64, teacherPercent int, reason string, now time.Time) (*escrow.Entry, error) {
	var res settlement
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx store.Tx) error {
		entry, err := lockEntry(ctx, tx, bookingID)
		if err != nil {
			return err
		}
		if !entry.Disputed {
			return escrow.ErrNotDisputed
		}
		teacherShare, _, err := escrow.SplitAmounts(entry.Amount, teacherPercent)
		if err != nil {
			return err
		}
		res, err = settle(ctx, tx, bookingID, teacherShare, 0, reason, now)
		if err != nil {
			return err
		}
		b := res.booking
		return notify(ctx, tx, now, notification.NoShowResolved{
			BookingID:      bookingID,
			Reason:         reason,
			TeacherAmount:  res.entry.TeacherAmount,
			RefundedAmount: res.entry.RefundedAmount,
			Currency:       res.entry.Currency,
		}, append([]int64{b.TeacherID}, b.StudentSide()...)...)
	})
	if err != nil {
		return nil, err
	}
	s.log.WithFields(logrus.Fields{"booking_id": bookingID, "teacher_percent": teacherPercent}).Info("Escrow dispute resolved")
	return res.entry, nil
}

// Get returns the escrow entry of a booking.
func (s *EscrowService) Get(ctx context.Context, bookingID int64) (*escrow.Entry, error) {
	var entry *escrow.Entry
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx store.Tx) error {
		var err error
		entry, err = tx.Escrow().GetByBookingID(ctx, bookingID)
		return err
	})
	return entry, err
}
