package booking

import (
	"context"
	"time"

	"tutor_booking_engine/internal/domain/availability"
)

// Repository defines persistence for bookings. List methods used by sweeps
// return candidates only; callers re-read with GetForUpdate before mutating.
type Repository interface {
	// Create inserts b. Implementations enforce that no other active
	// booking of the same teacher overlaps b and return ErrSlotUnavailable
	// otherwise.
	Create(ctx context.Context, b *Booking) error
	GetByID(ctx context.Context, id int64) (*Booking, error)
	GetForUpdate(ctx context.Context, id int64) (*Booking, error)
	Update(ctx context.Context, b *Booking) error

	// ListActiveOverlapping returns active bookings of teacherID overlapping
	// iv, skipping excludeID (0 skips nothing).
	ListActiveOverlapping(ctx context.Context, teacherID int64, iv availability.Interval, excludeID int64) ([]*Booking, error)
	ListConfirmedStartingBetween(ctx context.Context, from, to time.Time) ([]*Booking, error)
	// ListNoShowWarningCandidates: confirmed, start in [from, to], attendance
	// incomplete, no warning sent yet.
	ListNoShowWarningCandidates(ctx context.Context, from, to time.Time) ([]*Booking, error)
	// ListNoShowCandidates: confirmed, started at or before startedBy,
	// payment held, attendance incomplete.
	ListNoShowCandidates(ctx context.Context, startedBy time.Time) ([]*Booking, error)
	// ListCompletable: confirmed, ended at or before endedBy, both attended,
	// payment held.
	ListCompletable(ctx context.Context, endedBy time.Time) ([]*Booking, error)
	// ListUnpaidStartedBy: pending or awaiting payment with start at or
	// before startedBy.
	ListUnpaidStartedBy(ctx context.Context, startedBy time.Time) ([]*Booking, error)

	AppendRescheduleHistory(ctx context.Context, h *RescheduleHistory) error
	ListRescheduleHistory(ctx context.Context, bookingID int64) ([]RescheduleHistory, error)
}
