package availability

import (
	"errors"
	"testing"
	"time"
)

func mustTOD(t *testing.T, s string) TimeOfDay {
	t.Helper()
	tod, err := ParseTimeOfDay(s)
	if err != nil {
		t.Fatalf("ParseTimeOfDay(%q): %v", s, err)
	}
	return tod
}

func TestParseTimeOfDay(t *testing.T) {
	tests := []struct {
		in      string
		want    TimeOfDay
		wantErr bool
	}{
		{in: "00:00", want: 0},
		{in: "09:30", want: 570},
		{in: "24:00", want: EndOfDay},
		{in: "24:01", wantErr: true},
		{in: "12:60", wantErr: true},
		{in: "noon", wantErr: true},
	}
	for _, tt := range tests {
		got, err := ParseTimeOfDay(tt.in)
		if tt.wantErr {
			if err == nil {
				t.Errorf("ParseTimeOfDay(%q) = %v, want error", tt.in, got)
			}
			continue
		}
		if err != nil || got != tt.want {
			t.Errorf("ParseTimeOfDay(%q) = %v, %v; want %v", tt.in, got, err, tt.want)
		}
	}
	if s := TimeOfDay(570).String(); s != "09:30" {
		t.Errorf("String() = %q", s)
	}
}

func TestIntervalOverlaps(t *testing.T) {
	at := func(h int) time.Time { return time.Date(2026, 3, 2, h, 0, 0, 0, time.UTC) }
	a := Interval{Start: at(10), End: at(11)}
	if a.Overlaps(Interval{Start: at(11), End: at(12)}) {
		t.Error("back-to-back intervals must not overlap")
	}
	if !a.Overlaps(Interval{Start: at(10), End: at(12)}) {
		t.Error("intervals sharing a start overlap")
	}
	if (Interval{Start: at(11), End: at(10)}).Valid() {
		t.Error("reversed interval is invalid")
	}
}

func TestCheck(t *testing.T) {
	bangkok, err := time.LoadLocation("Asia/Bangkok")
	if err != nil {
		t.Skipf("tzdata unavailable: %v", err)
	}
	// Monday 2 March 2026.
	local := func(h, m int) time.Time { return time.Date(2026, 3, 2, h, m, 0, 0, bangkok) }
	slots := []Slot{
		{DayOfWeek: time.Monday, StartTime: mustTOD(t, "09:00"), EndTime: mustTOD(t, "12:00"), IsAvailable: true},
		{DayOfWeek: time.Monday, StartTime: mustTOD(t, "14:00"), EndTime: mustTOD(t, "15:00"), IsAvailable: false},
		{DayOfWeek: time.Monday, StartTime: mustTOD(t, "23:00"), EndTime: EndOfDay, IsAvailable: true},
		{DayOfWeek: time.Tuesday, StartTime: mustTOD(t, "09:00"), EndTime: mustTOD(t, "12:00"), IsAvailable: true},
	}
	busy := []Interval{{Start: local(10, 0), End: local(11, 0)}}

	tests := []struct {
		name    string
		iv      Interval
		holiday bool
		want    error
	}{
		{name: "free inside slot", iv: Interval{Start: local(9, 0), End: local(10, 0)}},
		{name: "back to back with busy", iv: Interval{Start: local(11, 0), End: local(12, 0)}},
		{name: "overlaps busy", iv: Interval{Start: local(10, 30), End: local(11, 30)}, want: ErrSlotConflict},
		{name: "spills past slot end", iv: Interval{Start: local(11, 30), End: local(12, 30)}, want: ErrOutsideAvailability},
		{name: "disabled slot", iv: Interval{Start: local(14, 0), End: local(15, 0)}, want: ErrOutsideAvailability},
		{name: "ends at midnight", iv: Interval{Start: local(23, 0), End: local(24, 0)}},
		{name: "crosses midnight within span", iv: Interval{Start: local(23, 30), End: local(24, 30)}},
		{name: "crosses midnight beyond span", iv: Interval{Start: local(23, 0), End: local(25, 0)}, want: ErrOutsideAvailability},
		{name: "holiday mode", iv: Interval{Start: local(9, 0), End: local(10, 0)}, holiday: true, want: ErrHolidayMode},
		{name: "empty interval", iv: Interval{Start: local(9, 0), End: local(9, 0)}, want: ErrInvalidInterval},
		{
			name: "utc input evaluated in teacher zone",
			iv:   Interval{Start: time.Date(2026, 3, 2, 2, 0, 0, 0, time.UTC), End: time.Date(2026, 3, 2, 3, 0, 0, 0, time.UTC)},
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			err := Check(CheckInput{
				Interval:    tt.iv,
				Location:    bangkok,
				HolidayMode: tt.holiday,
				Slots:       slots,
				Busy:        busy,
				MaxSpan:     time.Hour,
			})
			if !errors.Is(err, tt.want) || (tt.want == nil && err != nil) {
				t.Errorf("Check() = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestSlotValidate(t *testing.T) {
	ok := Slot{DayOfWeek: time.Friday, StartTime: 60, EndTime: EndOfDay}
	if err := ok.Validate(); err != nil {
		t.Errorf("Validate() = %v", err)
	}
	bad := Slot{DayOfWeek: time.Friday, StartTime: 600, EndTime: 600}
	if err := bad.Validate(); !errors.Is(err, ErrInvalidInterval) {
		t.Errorf("Validate() = %v, want ErrInvalidInterval", err)
	}
}
