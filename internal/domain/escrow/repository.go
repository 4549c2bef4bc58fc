package escrow

import (
	"context"
	"time"
)

type Repository interface {
	Create(ctx context.Context, e *Entry) error
	GetByBookingID(ctx context.Context, bookingID int64) (*Entry, error)
	// GetForUpdate locks the entry row; every mutation of an entry goes
	// through it so Release, Refund and Split never interleave.
	GetForUpdate(ctx context.Context, bookingID int64) (*Entry, error)
	Update(ctx context.Context, e *Entry) error
	// ListReleasable returns booking IDs of held, undisputed entries whose
	// dispute window ended at or before now.
	ListReleasable(ctx context.Context, now time.Time, limit int) ([]int64, error)
	// SumTeacherEarnings totals the teacher share of every settled entry.
	SumTeacherEarnings(ctx context.Context, teacherID int64) (int64, error)
}
