package app

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"tutor_booking_engine/internal/domain/booking"
	"tutor_booking_engine/internal/domain/notification"
	"tutor_booking_engine/internal/domain/store"
)

// NoShowService warns absent parties shortly after start and resolves
// bookings whose grace period passed with attendance incomplete.
type NoShowService struct {
	store  store.Store
	escrow *EscrowService
	policy Policy
	log    *logrus.Entry
}

func NewNoShowService(s store.Store, escrow *EscrowService, policy Policy, log *logrus.Entry) *NoShowService {
	return &NoShowService{store: s, escrow: escrow, policy: policy, log: log.WithField("component", "no_show")}
}

// Run performs the warning phase and then the resolution phase.
func (s *NoShowService) Run(ctx context.Context, now time.Time) SweepReport {
	report := newReport(SweepNoShow, now)
	warnings := s.RunWarnings(ctx, now)
	resolutions := s.RunResolutions(ctx, now)
	report.merge(warnings)
	report.merge(resolutions)
	return report.Result()
}

// RunWarnings notifies absent parties of confirmed bookings that started
// between GracePeriod and NoShowWarningAfter ago. Each booking is warned
// at most once.
func (s *NoShowService) RunWarnings(ctx context.Context, now time.Time) SweepReport {
	report := newReport(SweepNoShow+".warning", now)
	from := now.Add(-s.policy.GracePeriod)
	to := now.Add(-s.policy.NoShowWarningAfter)

	var candidates []*booking.Booking
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx store.Tx) error {
		var err error
		candidates, err = tx.Bookings().ListNoShowWarningCandidates(ctx, from, to)
		return err
	})
	if err != nil {
		report.failed("list warning candidates: %v", err)
		return report.Result()
	}

	for _, c := range candidates {
		c := c
		if ctx.Err() != nil {
			break
		}
		err := s.store.WithinTx(ctx, func(ctx context.Context, tx store.Tx) error {
			b, err := tx.Bookings().GetForUpdate(ctx, c.ID)
			if err != nil {
				return err
			}
			if b.Status != booking.StatusConfirmed || b.NoShowWarningSentAt.Valid || b.AttendanceComplete() ||
				b.StartTime.Before(from) || b.StartTime.After(to) {
				return errSkip
			}
			b.NoShowWarningSentAt = sql.NullTime{Time: now, Valid: true}
			b.UpdatedAt = now
			if err := tx.Bookings().Update(ctx, b); err != nil {
				return fmt.Errorf("failed to stamp warning on booking %d: %w", b.ID, err)
			}
			return notify(ctx, tx, now, notification.NoShowWarning{
				BookingID:   b.ID,
				Start:       b.StartTime,
				MinutesLate: int(now.Sub(b.StartTime) / time.Minute),
			}, b.AbsentParties()...)
		})
		tally(s.log, report, c.ID, err, "Failed to send no-show warning")
	}
	return report.Result()
}

// RunResolutions settles confirmed, held bookings whose grace period ended
// without both parties joining. Attendance is re-read under the booking
// lock so a late join that committed first wins.
func (s *NoShowService) RunResolutions(ctx context.Context, now time.Time) SweepReport {
	report := newReport(SweepNoShow+".resolution", now)
	startedBy := now.Add(-s.policy.GracePeriod)

	var candidates []*booking.Booking
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx store.Tx) error {
		var err error
		candidates, err = tx.Bookings().ListNoShowCandidates(ctx, startedBy)
		return err
	})
	if err != nil {
		report.failed("list no-show candidates: %v", err)
		return report.Result()
	}

	for _, c := range candidates {
		c := c
		if ctx.Err() != nil {
			break
		}
		var outcome booking.NoShowOutcome
		err := s.store.WithinTx(ctx, func(ctx context.Context, tx store.Tx) error {
			var err error
			outcome, err = s.resolve(ctx, tx, c.ID, startedBy, now)
			return err
		})
		if err == nil {
			s.log.WithFields(logrus.Fields{"booking_id": c.ID, "outcome": string(outcome)}).Info("No-show resolved")
		}
		tally(s.log, report, c.ID, err, "Failed to resolve no-show")
	}
	return report.Result()
}

func (s *NoShowService) resolve(ctx context.Context, tx store.Tx, bookingID int64, startedBy, now time.Time) (booking.NoShowOutcome, error) {
	b, err := tx.Bookings().GetForUpdate(ctx, bookingID)
	if err != nil {
		return booking.NoShowNone, err
	}
	outcome := b.NoShowOutcome()
	if b.Status != booking.StatusConfirmed || b.PaymentStatus != booking.PaymentHeld ||
		b.StartTime.After(startedBy) || outcome == booking.NoShowNone {
		return booking.NoShowNone, errSkip
	}

	var res settlement
	switch outcome {
	case booking.NoShowStudent:
		res, err = s.escrow.splitNoShow(ctx, tx, b.ID, now)
	default:
		res, err = settle(ctx, tx, b.ID, 0, 0, outcome.Reason(), now)
	}
	if err != nil {
		return booking.NoShowNone, err
	}

	b = res.booking
	if err := b.Cancel(outcome.Reason(), now); err != nil {
		return booking.NoShowNone, err
	}
	if err := tx.Bookings().Update(ctx, b); err != nil {
		return booking.NoShowNone, fmt.Errorf("failed to cancel booking %d: %w", b.ID, err)
	}
	err = notify(ctx, tx, now, notification.NoShowResolved{
		BookingID:      b.ID,
		Reason:         outcome.Reason(),
		TeacherAmount:  res.entry.TeacherAmount,
		RefundedAmount: res.entry.RefundedAmount,
		Currency:       res.entry.Currency,
	}, append([]int64{b.TeacherID}, b.StudentSide()...)...)
	return outcome, err
}
