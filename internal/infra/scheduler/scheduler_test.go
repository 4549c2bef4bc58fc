package scheduler

import (
	"errors"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"

	"tutor_booking_engine/internal/app"
	"tutor_booking_engine/internal/domain/payout"
	"tutor_booking_engine/internal/infra/gateway"
	"tutor_booking_engine/internal/infra/memory"
	"tutor_booking_engine/internal/infra/notify"
)

func newSweeps(log *logrus.Entry) *app.Sweeps {
	s := memory.NewStore()
	policy := app.DefaultPolicy()
	escrow := app.NewEscrowService(s, policy, log)
	var gw payout.Gateway = gateway.NewDev(log)
	return app.NewSweeps(
		app.NewNoShowService(s, escrow, policy, log),
		app.NewReminderService(s, policy, log),
		app.NewCompletionService(s, policy, log),
		escrow,
		app.NewPayoutService(s, gw, policy, log),
		app.NewNotificationRelay(s, notify.NewLogSender(log), policy, log),
	)
}

func TestStartRejectsBadSchedules(t *testing.T) {
	logger, _ := test.NewNullLogger()
	log := logrus.NewEntry(logger)

	s := NewSweepScheduler(newSweeps(log), map[string]string{"nightly_backup": "0 3 * * *"}, time.Minute, log)
	if err := s.Start(); !errors.Is(err, app.ErrUnknownSweep) {
		t.Errorf("err = %v, want ErrUnknownSweep", err)
	}

	s = NewSweepScheduler(newSweeps(log), map[string]string{app.SweepReminders: "every minute"}, time.Minute, log)
	if err := s.Start(); err == nil {
		t.Error("expected an invalid spec error")
	}
}

func TestStartSkipsEmptySpecs(t *testing.T) {
	logger, hook := test.NewNullLogger()
	log := logrus.NewEntry(logger)

	s := NewSweepScheduler(newSweeps(log), map[string]string{
		app.SweepReminders:  "",
		app.SweepCompletion: "*/5 * * * *",
	}, time.Minute, log)
	if err := s.Start(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer s.Stop()

	if n := len(s.cronEngine.Entries()); n != 1 {
		t.Errorf("cron entries = %d, want 1", n)
	}
	skipped := false
	for _, e := range hook.AllEntries() {
		if e.Message == "Sweep has no schedule, skipping" && e.Data["sweep"] == app.SweepReminders {
			skipped = true
		}
	}
	if !skipped {
		t.Error("empty spec not logged")
	}
}

func TestRunLogsReport(t *testing.T) {
	logger, hook := test.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)
	log := logrus.NewEntry(logger)

	s := NewSweepScheduler(newSweeps(log), nil, time.Minute, log)
	s.now = func() time.Time { return time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC) }
	s.run(app.SweepEscrowRelease)

	last := hook.LastEntry()
	if last == nil || last.Message != "Sweep finished, nothing to do" {
		t.Fatalf("last entry = %+v", last)
	}
	if last.Data["sweep"] != app.SweepEscrowRelease {
		t.Errorf("fields = %v", last.Data)
	}

	s.run("missing")
	if last := hook.LastEntry(); last.Level != logrus.ErrorLevel {
		t.Errorf("unknown sweep logged at %s", last.Level)
	}
}
