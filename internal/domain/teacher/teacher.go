package teacher

import (
	"fmt"
	"time"
)

var ErrNotFound = fmt.Errorf("teacher not found")

// Teacher is the bookable side of the marketplace. UserID is shared with
// the user table.
type Teacher struct {
	UserID           int64
	Timezone         string
	HolidayMode      bool
	AutomaticPayouts bool
	HourlyRate       int64 // minor units per 60 minutes
	Currency         string
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// Location resolves the teacher's configured timezone, falling back to UTC
// when none is set.
func (t *Teacher) Location() (*time.Location, error) {
	if t.Timezone == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(t.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid timezone %q for teacher %d: %w", t.Timezone, t.UserID, err)
	}
	return loc, nil
}

// PriceFor returns the session price for the given duration, rounded down to
// the minor unit.
func (t *Teacher) PriceFor(d time.Duration) int64 {
	return t.HourlyRate * int64(d/time.Minute) / 60
}
