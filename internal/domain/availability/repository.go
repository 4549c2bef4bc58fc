package availability

import (
	"context"
	"time"
)

type Repository interface {
	// Upsert inserts the slot or updates the existing one with the same
	// (teacher, day, start) key.
	Upsert(ctx context.Context, s *Slot) error
	ListByTeacher(ctx context.Context, teacherID int64) ([]Slot, error)
	ListEnabledForDay(ctx context.Context, teacherID int64, day time.Weekday) ([]Slot, error)
}
