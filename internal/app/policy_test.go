package app

import (
	"sort"
	"testing"
	"time"
)

func TestPolicyValidate(t *testing.T) {
	if err := DefaultPolicy().Validate(); err != nil {
		t.Fatalf("default policy invalid: %v", err)
	}

	tests := map[string]func(p *Policy){
		"split above 100":          func(p *Policy) { p.StudentNoShowTeacherPercent = 120 },
		"warning after grace":      func(p *Policy) { p.NoShowWarningAfter = p.GracePeriod },
		"tolerance below a minute": func(p *Policy) { p.ReminderTolerance = 30 * time.Second },
		"no call timeout":          func(p *Policy) { p.ExternalCallTimeout = 0 },
		"zero parallelism":         func(p *Policy) { p.OutboxParallelism = 0 },
	}
	for name, mutate := range tests {
		mutate := mutate
		t.Run(name, func(t *testing.T) {
			p := DefaultPolicy()
			mutate(&p)
			if err := p.Validate(); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestSweepsRegistry(t *testing.T) {
	f := newFixture(t)
	sweeps := f.admin().sweeps

	names := sweeps.Names()
	if !sort.StringsAreSorted(names) {
		t.Errorf("names not sorted: %v", names)
	}
	for _, name := range names {
		if _, ok := sweeps.Get(name); !ok {
			t.Errorf("sweep %q listed but not registered", name)
		}
	}

	b := f.confirmedBooking()
	report, err := sweeps.Run(f.ctx, SweepReminders, b.StartTime.Add(-time.Hour))
	f.must(err)
	if report.Succeeded != 1 || !report.StartedAt.Equal(b.StartTime.Add(-time.Hour)) {
		t.Errorf("report = %+v", report)
	}
}
