package availability

import (
	"fmt"
	"time"
)

var (
	ErrInvalidInterval     = fmt.Errorf("invalid interval")
	ErrHolidayMode         = fmt.Errorf("teacher is in holiday mode")
	ErrOutsideAvailability = fmt.Errorf("requested time is outside the teacher's availability")
	ErrSlotConflict        = fmt.Errorf("slot no longer available")
)

// CheckInput carries everything the conflict check needs. Callers load it
// from storage; Check itself performs no I/O.
type CheckInput struct {
	Interval    Interval
	Location    *time.Location
	HolidayMode bool
	// Slots are the teacher's slots; disabled slots and slots for other days
	// are ignored.
	Slots []Slot
	// Busy holds the intervals of the teacher's active bookings.
	Busy []Interval
	// MaxSpan bounds sessions that cross local midnight. Such a session only
	// needs its start covered by a slot on the start day.
	MaxSpan time.Duration
}

// Check decides whether Interval can be booked. It returns nil when the
// interval is free, or one of ErrInvalidInterval, ErrHolidayMode,
// ErrOutsideAvailability or ErrSlotConflict.
func Check(in CheckInput) error {
	if !in.Interval.Valid() {
		return ErrInvalidInterval
	}
	if in.HolidayMode {
		return ErrHolidayMode
	}

	loc := in.Location
	if loc == nil {
		loc = time.UTC
	}
	start := in.Interval.Start.In(loc)
	end := in.Interval.End.In(loc)
	if !coveredBySlot(start, end, in.Slots, in.MaxSpan) {
		return ErrOutsideAvailability
	}

	for _, b := range in.Busy {
		if in.Interval.Overlaps(b) {
			return ErrSlotConflict
		}
	}
	return nil
}

func coveredBySlot(start, end time.Time, slots []Slot, maxSpan time.Duration) bool {
	startTOD := Of(start)
	y1, m1, d1 := start.Date()
	y2, m2, d2 := end.Date()
	sameDay := y1 == y2 && m1 == m2 && d1 == d2

	endTOD := EndOfDay
	if sameDay {
		endTOD = Of(end)
		// Sub-minute precision is not bookable; round a partial minute up.
		if end.Second() != 0 || end.Nanosecond() != 0 {
			endTOD++
		}
	}
	crossesMidnightWithinSpan := !sameDay && maxSpan > 0 && end.Sub(start) <= maxSpan

	for _, s := range slots {
		if !s.IsAvailable || s.DayOfWeek != start.Weekday() {
			continue
		}
		if startTOD < s.StartTime || startTOD >= s.EndTime {
			continue
		}
		if crossesMidnightWithinSpan {
			return true
		}
		if endsWithinDay(start, end, sameDay) && endTOD <= s.EndTime {
			return true
		}
	}
	return false
}

// endsWithinDay is true when end falls on the start day, or exactly at the
// following midnight.
func endsWithinDay(start, end time.Time, sameDay bool) bool {
	if sameDay {
		return true
	}
	next := time.Date(start.Year(), start.Month(), start.Day()+1, 0, 0, 0, 0, start.Location())
	return end.Equal(next)
}
