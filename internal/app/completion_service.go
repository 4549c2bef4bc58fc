package app

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"tutor_booking_engine/internal/domain/booking"
	"tutor_booking_engine/internal/domain/notification"
	"tutor_booking_engine/internal/domain/store"
)

// ReasonPaymentNotReceived is recorded on bookings whose start passed
// while payment was still outstanding.
const ReasonPaymentNotReceived = "Payment not received"

// CompletionService completes attended sessions once they end and expires
// bookings that were never paid.
type CompletionService struct {
	store  store.Store
	policy Policy
	log    *logrus.Entry
}

func NewCompletionService(s store.Store, policy Policy, log *logrus.Entry) *CompletionService {
	return &CompletionService{store: s, policy: policy, log: log.WithField("component", "completion")}
}

func (s *CompletionService) Run(ctx context.Context, now time.Time) SweepReport {
	report := newReport(SweepCompletion, now)
	s.complete(ctx, report, now)
	s.expireUnpaid(ctx, report, now)
	return report.Result()
}

// complete marks ended, fully attended sessions completed and starts the
// dispute window on their escrow.
func (s *CompletionService) complete(ctx context.Context, report *reportBuilder, now time.Time) {
	var candidates []*booking.Booking
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx store.Tx) error {
		var err error
		candidates, err = tx.Bookings().ListCompletable(ctx, now)
		return err
	})
	if err != nil {
		report.failed("list completable bookings: %v", err)
		return
	}

	for _, c := range candidates {
		c := c
		err := s.store.WithinTx(ctx, func(ctx context.Context, tx store.Tx) error {
			b, err := tx.Bookings().GetForUpdate(ctx, c.ID)
			if err != nil {
				return err
			}
			if b.Status != booking.StatusConfirmed || b.EndTime.After(now) || !b.AttendanceComplete() {
				return errSkip
			}
			entry, err := tx.Escrow().GetForUpdate(ctx, b.ID)
			if err != nil {
				return err
			}
			if err := b.TransitionTo(booking.StatusCompleted, now); err != nil {
				return err
			}
			entry.StartDisputeWindow(s.policy.DisputeWindow, now)
			if err := tx.Bookings().Update(ctx, b); err != nil {
				return fmt.Errorf("failed to complete booking %d: %w", b.ID, err)
			}
			if err := tx.Escrow().Update(ctx, entry); err != nil {
				return fmt.Errorf("failed to start dispute window for booking %d: %w", b.ID, err)
			}
			return notify(ctx, tx, now, notification.SessionCompleted{
				BookingID:           b.ID,
				DisputeWindowEndsAt: entry.DisputeWindowEndsAt.Time,
			}, append([]int64{b.TeacherID}, b.StudentSide()...)...)
		})
		tally(s.log, report, c.ID, err, "Failed to complete booking")
	}
}

func (s *CompletionService) expireUnpaid(ctx context.Context, report *reportBuilder, now time.Time) {
	var candidates []*booking.Booking
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx store.Tx) error {
		var err error
		candidates, err = tx.Bookings().ListUnpaidStartedBy(ctx, now)
		return err
	})
	if err != nil {
		report.failed("list unpaid bookings: %v", err)
		return
	}

	for _, c := range candidates {
		c := c
		err := s.store.WithinTx(ctx, func(ctx context.Context, tx store.Tx) error {
			b, err := tx.Bookings().GetForUpdate(ctx, c.ID)
			if err != nil {
				return err
			}
			if (b.Status != booking.StatusPending && b.Status != booking.StatusAwaitingPayment) || b.StartTime.After(now) {
				return errSkip
			}
			if err := b.Cancel(ReasonPaymentNotReceived, now); err != nil {
				return err
			}
			if err := tx.Bookings().Update(ctx, b); err != nil {
				return fmt.Errorf("failed to expire booking %d: %w", b.ID, err)
			}
			return notify(ctx, tx, now, notification.BookingCancelled{
				BookingID: b.ID,
				Reason:    ReasonPaymentNotReceived,
				Currency:  b.Currency,
			}, append([]int64{b.TeacherID}, b.StudentSide()...)...)
		})
		tally(s.log, report, c.ID, err, "Failed to expire unpaid booking")
	}
}
