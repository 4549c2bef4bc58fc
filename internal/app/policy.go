package app

import (
	"fmt"
	"time"
)

// Policy holds the system-wide timing and money rules the services apply.
type Policy struct {
	GracePeriod                 time.Duration
	NoShowWarningAfter          time.Duration
	StudentNoShowTeacherPercent int
	DisputeWindow               time.Duration
	MaxSlotLength               time.Duration
	ReminderTolerance           time.Duration
	JoinEarlyWindow             time.Duration
	ConfirmationFollowupDelay   time.Duration
	MinAutoPayout               int64
	ExternalCallTimeout         time.Duration
	OutboxMaxAttempts           int
	OutboxBatchSize             int
	OutboxParallelism           int
	SweepBatchSize              int
}

func DefaultPolicy() Policy {
	return Policy{
		GracePeriod:                 15 * time.Minute,
		NoShowWarningAfter:          10 * time.Minute,
		StudentNoShowTeacherPercent: 50,
		DisputeWindow:               72 * time.Hour,
		MaxSlotLength:               60 * time.Minute,
		ReminderTolerance:           2 * time.Minute,
		JoinEarlyWindow:             10 * time.Minute,
		ConfirmationFollowupDelay:   10 * time.Second,
		MinAutoPayout:               500000,
		ExternalCallTimeout:         15 * time.Second,
		OutboxMaxAttempts:           5,
		OutboxBatchSize:             100,
		OutboxParallelism:           4,
		SweepBatchSize:              500,
	}
}

func (p Policy) Validate() error {
	if p.StudentNoShowTeacherPercent < 0 || p.StudentNoShowTeacherPercent > 100 {
		return fmt.Errorf("student no-show teacher percent %d outside 0..100", p.StudentNoShowTeacherPercent)
	}
	if p.NoShowWarningAfter >= p.GracePeriod {
		return fmt.Errorf("no-show warning (%s) must come before the grace period ends (%s)", p.NoShowWarningAfter, p.GracePeriod)
	}
	if p.ReminderTolerance < time.Minute {
		return fmt.Errorf("reminder tolerance %s is narrower than the one-minute sweep interval", p.ReminderTolerance)
	}
	if p.ExternalCallTimeout <= 0 {
		return fmt.Errorf("external call timeout must be positive")
	}
	if p.OutboxMaxAttempts < 1 || p.OutboxBatchSize < 1 || p.OutboxParallelism < 1 || p.SweepBatchSize < 1 {
		return fmt.Errorf("outbox and sweep limits must be positive")
	}
	return nil
}
