package escrow

import (
	"database/sql"
	"fmt"
	"time"
)

var (
	ErrNotFound     = fmt.Errorf("escrow entry not found")
	ErrNotHeld      = fmt.Errorf("escrow entry is not held")
	ErrDisputed     = fmt.Errorf("escrow entry is under dispute")
	ErrNotDisputed  = fmt.Errorf("escrow entry has no open dispute")
	ErrWindowClosed = fmt.Errorf("dispute window has closed")
	ErrInvalidSplit = fmt.Errorf("split percentage must be between 0 and 100")
)

type Status string

const (
	StatusHeld     Status = "held"
	StatusReleased Status = "released"
	StatusRefunded Status = "refunded"
	StatusPartial  Status = "partial"
)

// Entry holds a student's payment against one booking until the session
// resolves. Once it leaves StatusHeld, TeacherAmount+RefundedAmount equals
// Amount.
type Entry struct {
	ID                  int64
	BookingID           int64
	TeacherID           int64
	PayerUserID         int64
	Amount              int64 // minor units
	Currency            string
	Status              Status
	TeacherAmount       int64
	RefundedAmount      int64
	HeldAt              time.Time
	DisputeWindowEndsAt sql.NullTime
	ReleasedAt          sql.NullTime
	Disputed            bool
	DisputedBy          sql.NullInt64
	DisputeReason       string
	ResolutionReason    string
	UpdatedAt           time.Time
}

// Releasable reports whether the automatic release sweep may release the
// entry at now.
func (e *Entry) Releasable(now time.Time) bool {
	return e.Status == StatusHeld && !e.Disputed && e.DisputeWindowEndsAt.Valid &&
		!now.Before(e.DisputeWindowEndsAt.Time)
}

// Settle moves the held amount: teacherAmount to the teacher, the rest back
// to the payer. The status follows from the split.
func (e *Entry) Settle(teacherAmount int64, reason string, now time.Time) error {
	if e.Status != StatusHeld {
		return fmt.Errorf("%w: booking %d is %s", ErrNotHeld, e.BookingID, e.Status)
	}
	if teacherAmount < 0 || teacherAmount > e.Amount {
		return fmt.Errorf("teacher amount %d outside held amount %d", teacherAmount, e.Amount)
	}
	e.TeacherAmount = teacherAmount
	e.RefundedAmount = e.Amount - teacherAmount
	switch {
	case teacherAmount == e.Amount:
		e.Status = StatusReleased
	case teacherAmount == 0:
		e.Status = StatusRefunded
	default:
		e.Status = StatusPartial
	}
	e.ReleasedAt = sql.NullTime{Time: now, Valid: true}
	e.ResolutionReason = reason
	e.Disputed = false
	e.UpdatedAt = now
	return nil
}

// StartDisputeWindow stamps the deadline after which the entry is released
// automatically. An existing deadline is kept.
func (e *Entry) StartDisputeWindow(window time.Duration, now time.Time) {
	if e.DisputeWindowEndsAt.Valid {
		return
	}
	e.DisputeWindowEndsAt = sql.NullTime{Time: now.Add(window), Valid: true}
	e.UpdatedAt = now
}

func (e *Entry) OpenDispute(byUserID int64, reason string, now time.Time) error {
	if e.Status != StatusHeld {
		return ErrNotHeld
	}
	if e.Disputed {
		return ErrDisputed
	}
	if e.DisputeWindowEndsAt.Valid && !now.Before(e.DisputeWindowEndsAt.Time) {
		return ErrWindowClosed
	}
	e.Disputed = true
	e.DisputedBy = sql.NullInt64{Int64: byUserID, Valid: true}
	e.DisputeReason = reason
	e.UpdatedAt = now
	return nil
}

// SplitAmounts divides amount by a whole percentage for the teacher. The
// student share is the remainder so the two always sum to amount.
func SplitAmounts(amount int64, teacherPercent int) (teacherShare, studentShare int64, err error) {
	if teacherPercent < 0 || teacherPercent > 100 {
		return 0, 0, ErrInvalidSplit
	}
	teacherShare = amount * int64(teacherPercent) / 100
	return teacherShare, amount - teacherShare, nil
}
