package app

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"tutor_booking_engine/internal/domain/availability"
	"tutor_booking_engine/internal/domain/store"
	"tutor_booking_engine/internal/domain/teacher"
)

// AvailabilityService maintains teachers' weekly slots and holiday mode.
// Changes never touch existing bookings.
type AvailabilityService struct {
	store store.Store
	log   *logrus.Entry
}

func NewAvailabilityService(s store.Store, log *logrus.Entry) *AvailabilityService {
	return &AvailabilityService{store: s, log: log.WithField("component", "availability")}
}

// SetAvailability creates or updates the teacher's slot starting at the same day
// and time. Disabling is done through IsAvailable; slots are never removed.
func (s *AvailabilityService) SetAvailability(ctx context.Context, slot availability.Slot, now time.Time) (*availability.Slot, error) {
	if err := slot.Validate(); err != nil {
		return nil, err
	}
	slot.UpdatedAt = now
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx store.Tx) error {
		if _, err := tx.Teachers().GetForUpdate(ctx, slot.TeacherID); err != nil {
			return err
		}
		if err := tx.Availability().Upsert(ctx, &slot); err != nil {
			return fmt.Errorf("failed to save slot for teacher %d: %w", slot.TeacherID, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.log.WithFields(logrus.Fields{
		"teacher_id": slot.TeacherID,
		"day":        slot.DayOfWeek.String(),
		"start":      slot.StartTime.String(),
		"end":        slot.EndTime.String(),
		"available":  slot.IsAvailable,
	}).Info("Availability slot saved")
	return &slot, nil
}

func (s *AvailabilityService) Slots(ctx context.Context, teacherID int64) ([]availability.Slot, error) {
	var slots []availability.Slot
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx store.Tx) error {
		if _, err := tx.Teachers().GetByID(ctx, teacherID); err != nil {
			return err
		}
		var err error
		slots, err = tx.Availability().ListByTeacher(ctx, teacherID)
		return err
	})
	return slots, err
}

// SetHolidayMode blocks or unblocks new bookings for the teacher.
func (s *AvailabilityService) SetHolidayMode(ctx context.Context, teacherID int64, on bool, now time.Time) (*teacher.Teacher, error) {
	var t *teacher.Teacher
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx store.Tx) error {
		var err error
		t, err = tx.Teachers().GetForUpdate(ctx, teacherID)
		if err != nil {
			return err
		}
		t.HolidayMode = on
		t.UpdatedAt = now
		return tx.Teachers().Update(ctx, t)
	})
	if err != nil {
		return nil, err
	}
	s.log.WithFields(logrus.Fields{"teacher_id": teacherID, "holiday_mode": on}).Info("Holiday mode changed")
	return t, nil
}
