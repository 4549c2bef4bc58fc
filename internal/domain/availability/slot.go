package availability

import (
	"fmt"
	"time"
)

// TimeOfDay is a wall-clock time expressed as minutes since local midnight.
// EndOfDay (1440) is a valid slot end.
type TimeOfDay int

const EndOfDay TimeOfDay = 24 * 60

// ParseTimeOfDay accepts "HH:MM"; "24:00" is accepted as EndOfDay.
func ParseTimeOfDay(s string) (TimeOfDay, error) {
	var h, m int
	if _, err := fmt.Sscanf(s, "%d:%d", &h, &m); err != nil {
		return 0, fmt.Errorf("invalid time of day %q: %w", s, err)
	}
	if h < 0 || m < 0 || m > 59 || h > 24 || (h == 24 && m != 0) {
		return 0, fmt.Errorf("invalid time of day %q", s)
	}
	return TimeOfDay(h*60 + m), nil
}

func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d", int(t)/60, int(t)%60)
}

// Of returns the time of day of ts in its own location.
func Of(ts time.Time) TimeOfDay {
	return TimeOfDay(ts.Hour()*60 + ts.Minute())
}

// Slot is one recurring weekly window during which a teacher accepts
// bookings. Slots are never deleted, only toggled through IsAvailable.
type Slot struct {
	ID          int64
	TeacherID   int64
	DayOfWeek   time.Weekday
	StartTime   TimeOfDay
	EndTime     TimeOfDay
	IsAvailable bool
	UpdatedAt   time.Time
}

func (s Slot) Validate() error {
	if s.DayOfWeek < time.Sunday || s.DayOfWeek > time.Saturday {
		return fmt.Errorf("invalid day of week %d", s.DayOfWeek)
	}
	if s.StartTime < 0 || s.EndTime > EndOfDay || s.StartTime >= s.EndTime {
		return fmt.Errorf("%w: slot %s-%s", ErrInvalidInterval, s.StartTime, s.EndTime)
	}
	return nil
}

// Interval is a half-open [Start, End) time range.
type Interval struct {
	Start time.Time
	End   time.Time
}

func (i Interval) Valid() bool { return i.Start.Before(i.End) }

// Overlaps reports whether two half-open intervals share any instant.
// Back-to-back intervals do not overlap.
func (i Interval) Overlaps(o Interval) bool {
	return i.Start.Before(o.End) && o.Start.Before(i.End)
}

func (i Interval) Duration() time.Duration { return i.End.Sub(i.Start) }
