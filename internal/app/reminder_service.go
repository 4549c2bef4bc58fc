package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"tutor_booking_engine/internal/domain/booking"
	"tutor_booking_engine/internal/domain/notification"
	"tutor_booking_engine/internal/domain/reminder"
	"tutor_booking_engine/internal/domain/store"
)

// ReminderService sends the 24h, 1h and 15m session reminders. The
// reminder record and the outbox messages commit together, so a reminder
// is queued at most once per booking and type.
type ReminderService struct {
	store  store.Store
	policy Policy
	log    *logrus.Entry
}

func NewReminderService(s store.Store, policy Policy, log *logrus.Entry) *ReminderService {
	return &ReminderService{store: s, policy: policy, log: log.WithField("component", "reminders")}
}

func (s *ReminderService) Run(ctx context.Context, now time.Time) SweepReport {
	report := newReport(SweepReminders, now)
	for _, rt := range reminder.Types {
		if ctx.Err() != nil {
			break
		}
		s.runType(ctx, report, rt.Type, rt.Lead, now)
	}
	return report.Result()
}

func (s *ReminderService) runType(ctx context.Context, report *reportBuilder, t reminder.Type, lead time.Duration, now time.Time) {
	from := now.Add(lead - s.policy.ReminderTolerance)
	to := now.Add(lead + s.policy.ReminderTolerance)

	var candidates []*booking.Booking
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx store.Tx) error {
		var err error
		candidates, err = tx.Bookings().ListConfirmedStartingBetween(ctx, from, to)
		return err
	})
	if err != nil {
		report.failed("list %s reminder candidates: %v", t, err)
		return
	}

	for _, c := range candidates {
		c := c
		err := s.store.WithinTx(ctx, func(ctx context.Context, tx store.Tx) error {
			b, err := tx.Bookings().GetByID(ctx, c.ID)
			if err != nil {
				return err
			}
			if b.Status != booking.StatusConfirmed {
				return errSkip
			}
			inserted, err := tx.Reminders().Insert(ctx, reminder.Record{BookingID: b.ID, Type: t, SentAt: now})
			if err != nil {
				return fmt.Errorf("failed to record %s reminder: %w", t, err)
			}
			if !inserted {
				return errSkip
			}
			return notify(ctx, tx, now, notification.SessionReminder{
				BookingID: b.ID,
				Reminder:  t,
				Start:     b.StartTime,
			}, append([]int64{b.TeacherID}, b.StudentSide()...)...)
		})
		switch {
		case err == nil:
			report.succeeded()
		case errors.Is(err, errSkip):
			report.skipped()
		default:
			s.log.WithError(err).WithFields(logrus.Fields{"booking_id": c.ID, "reminder": string(t)}).Error("Failed to queue reminder")
			report.failed("booking %d %s: %v", c.ID, t, err)
		}
	}
}
