package app

import (
	"context"
	"errors"
	"fmt"

	"tutor_booking_engine/internal/domain/availability"
	"tutor_booking_engine/internal/domain/booking"
	"tutor_booking_engine/internal/domain/store"
	"tutor_booking_engine/internal/domain/teacher"
)

// checkSlot loads the teacher's slots and overlapping active bookings and
// runs the conflict check. Inside a transaction holding the teacher lock
// the answer is authoritative; elsewhere it is advisory.
func checkSlot(ctx context.Context, tx store.Tx, t *teacher.Teacher, iv availability.Interval, excludeBookingID int64, policy Policy) error {
	if !iv.Valid() {
		return fmt.Errorf("%w: %w", booking.ErrInvalidInterval, availability.ErrInvalidInterval)
	}
	loc, err := t.Location()
	if err != nil {
		return err
	}
	slots, err := tx.Availability().ListEnabledForDay(ctx, t.UserID, iv.Start.In(loc).Weekday())
	if err != nil {
		return fmt.Errorf("failed to load availability for teacher %d: %w", t.UserID, err)
	}
	active, err := tx.Bookings().ListActiveOverlapping(ctx, t.UserID, iv, excludeBookingID)
	if err != nil {
		return fmt.Errorf("failed to load bookings for teacher %d: %w", t.UserID, err)
	}
	busy := make([]availability.Interval, 0, len(active))
	for _, b := range active {
		busy = append(busy, b.Interval())
	}

	err = availability.Check(availability.CheckInput{
		Interval:    iv,
		Location:    loc,
		HolidayMode: t.HolidayMode,
		Slots:       slots,
		Busy:        busy,
		MaxSpan:     policy.MaxSlotLength,
	})
	switch {
	case err == nil:
		return nil
	case errors.Is(err, availability.ErrSlotConflict), errors.Is(err, availability.ErrOutsideAvailability):
		return fmt.Errorf("%w: %w", booking.ErrSlotUnavailable, err)
	case errors.Is(err, availability.ErrInvalidInterval):
		return fmt.Errorf("%w: %w", booking.ErrInvalidInterval, err)
	default:
		return err
	}
}
