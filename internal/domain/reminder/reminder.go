package reminder

import (
	"context"
	"time"
)

type Type string

const (
	Type24h Type = "24h"
	Type1h  Type = "1h"
	Type15m Type = "15m"
)

// Types lists every reminder with its lead time before session start.
var Types = []struct {
	Type Type
	Lead time.Duration
}{
	{Type24h, 24 * time.Hour},
	{Type1h, time.Hour},
	{Type15m, 15 * time.Minute},
}

// Record marks a reminder as sent. At most one exists per (booking, type).
type Record struct {
	BookingID int64
	Type      Type
	SentAt    time.Time
}

type Repository interface {
	// Insert stores r unless a record for the same booking and type exists.
	// It reports whether r was inserted.
	Insert(ctx context.Context, r Record) (bool, error)
	Exists(ctx context.Context, bookingID int64, t Type) (bool, error)
	// DeleteForBooking drops every record of the booking so a moved
	// session is reminded again at its new time.
	DeleteForBooking(ctx context.Context, bookingID int64) error
}
