package app

import (
	"context"
	"fmt"
	"sort"
	"time"
)

const (
	SweepNoShow          = "no_show"
	SweepReminders       = "reminders"
	SweepCompletion      = "completion"
	SweepEscrowRelease   = "escrow_release"
	SweepAutoPayout      = "auto_payout"
	SweepPayoutReconcile = "payout_reconcile"
	SweepNotifications   = "notifications"
)

var ErrUnknownSweep = fmt.Errorf("unknown sweep")

// SweepFunc runs one pass of a periodic job at now.
type SweepFunc func(ctx context.Context, now time.Time) SweepReport

// Sweeps maps sweep names to their entry points. The scheduler, the HTTP
// trigger and the admin bot command all go through it.
type Sweeps struct {
	funcs map[string]SweepFunc
}

func NewSweeps(noShow *NoShowService, reminders *ReminderService, completion *CompletionService,
	escrow *EscrowService, payouts *PayoutService, relay *NotificationRelay) *Sweeps {
	return &Sweeps{funcs: map[string]SweepFunc{
		SweepNoShow:          noShow.Run,
		SweepReminders:       reminders.Run,
		SweepCompletion:      completion.Run,
		SweepEscrowRelease:   escrow.ProcessEligibleReleases,
		SweepAutoPayout:      payouts.RunAutomaticPayouts,
		SweepPayoutReconcile: payouts.ReconcileProcessing,
		SweepNotifications:   relay.Run,
	}}
}

func (s *Sweeps) Names() []string {
	names := make([]string, 0, len(s.funcs))
	for name := range s.funcs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (s *Sweeps) Get(name string) (SweepFunc, bool) {
	fn, ok := s.funcs[name]
	return fn, ok
}

func (s *Sweeps) Run(ctx context.Context, name string, now time.Time) (SweepReport, error) {
	fn, ok := s.funcs[name]
	if !ok {
		return SweepReport{}, fmt.Errorf("%w: %q", ErrUnknownSweep, name)
	}
	return fn(ctx, now), nil
}
