package booking

import (
	"database/sql"
	"fmt"
	"time"

	"tutor_booking_engine/internal/domain/availability"
)

var (
	ErrNotFound          = fmt.Errorf("booking not found")
	ErrInvalidInterval   = fmt.Errorf("invalid booking interval")
	ErrInPast            = fmt.Errorf("booking must start in the future")
	ErrSlotUnavailable   = fmt.Errorf("slot no longer available, choose another slot")
	ErrInvalidTransition = fmt.Errorf("invalid booking status transition")
	ErrNotParticipant    = fmt.Errorf("user is not a participant of this booking")
	ErrReschedulePending = fmt.Errorf("a reschedule request is already pending")
	ErrNoReschedule      = fmt.Errorf("no reschedule request is pending")
	ErrOwnReschedule     = fmt.Errorf("a reschedule must be answered by the counterpart")
	ErrOutsideJoinWindow = fmt.Errorf("session cannot be joined at this time")
)

// Booking reserves a teacher's time for one student session. Recurring
// series share a SeriesID but are otherwise independent bookings.
type Booking struct {
	ID                  int64
	SeriesID            sql.NullString
	TeacherID           int64
	StudentUserID       int64
	PayerUserID         int64 // guardian or the student themselves
	SubjectID           int64
	StartTime           time.Time
	EndTime             time.Time
	Status              Status
	PaymentStatus       PaymentStatus
	Currency            string
	Amount              int64 // minor units
	Notes               string
	TeacherAttended     bool
	StudentAttended     bool
	NoShowWarningSentAt sql.NullTime
	CancellationReason  string

	RescheduleStart       sql.NullTime
	RescheduleEnd         sql.NullTime
	RescheduleRequestedBy sql.NullInt64

	CompletedAt sql.NullTime
	CancelledAt sql.NullTime
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

func (b *Booking) Interval() availability.Interval {
	return availability.Interval{Start: b.StartTime, End: b.EndTime}
}

// InProgress is the implicit state of a confirmed booking whose window
// contains now.
func (b *Booking) InProgress(now time.Time) bool {
	return b.Status == StatusConfirmed && !now.Before(b.StartTime) && now.Before(b.EndTime)
}

func (b *Booking) IsParticipant(userID int64) bool {
	return userID == b.TeacherID || userID == b.StudentUserID || userID == b.PayerUserID
}

// Counterparts returns the users on the other side of actorID. For the
// teacher that is the student (and the paying guardian, if different).
func (b *Booking) Counterparts(actorID int64) []int64 {
	if actorID == b.TeacherID {
		return b.StudentSide()
	}
	return []int64{b.TeacherID}
}

// StudentSide lists the student and, when distinct, the paying guardian.
func (b *Booking) StudentSide() []int64 {
	if b.PayerUserID != 0 && b.PayerUserID != b.StudentUserID {
		return []int64{b.StudentUserID, b.PayerUserID}
	}
	return []int64{b.StudentUserID}
}

func (b *Booking) TransitionTo(next Status, now time.Time) error {
	if !b.Status.CanTransitionTo(next) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, b.Status, next)
	}
	b.Status = next
	switch next {
	case StatusCompleted:
		b.CompletedAt = sql.NullTime{Time: now, Valid: true}
	case StatusCancelled:
		b.CancelledAt = sql.NullTime{Time: now, Valid: true}
	}
	b.UpdatedAt = now
	return nil
}

// Cancel moves the booking to cancelled and records why.
func (b *Booking) Cancel(reason string, now time.Time) error {
	if err := b.TransitionTo(StatusCancelled, now); err != nil {
		return err
	}
	b.CancellationReason = reason
	b.RescheduleStart = sql.NullTime{}
	b.RescheduleEnd = sql.NullTime{}
	b.RescheduleRequestedBy = sql.NullInt64{}
	return nil
}

func (b *Booking) AdvancePayment(next PaymentStatus) error {
	if next.rank() != b.PaymentStatus.rank()+1 {
		return fmt.Errorf("%w: payment %s -> %s", ErrInvalidTransition, b.PaymentStatus, next)
	}
	b.PaymentStatus = next
	return nil
}

// MarkAttended records that userID joined the session.
func (b *Booking) MarkAttended(userID int64) error {
	switch userID {
	case b.TeacherID:
		b.TeacherAttended = true
	case b.StudentUserID:
		b.StudentAttended = true
	default:
		return ErrNotParticipant
	}
	return nil
}

func (b *Booking) AttendanceComplete() bool {
	return b.TeacherAttended && b.StudentAttended
}

// AbsentParties lists the users to warn about a missed start. A guardian
// is warned alongside an absent student.
func (b *Booking) AbsentParties() []int64 {
	var absent []int64
	if !b.TeacherAttended {
		absent = append(absent, b.TeacherID)
	}
	if !b.StudentAttended {
		absent = append(absent, b.StudentSide()...)
	}
	return absent
}

// NoShowOutcome classifies a booking whose grace period has elapsed.
type NoShowOutcome string

const (
	NoShowNone    NoShowOutcome = ""
	NoShowBoth    NoShowOutcome = "both"
	NoShowTeacher NoShowOutcome = "teacher"
	NoShowStudent NoShowOutcome = "student"
)

func (b *Booking) NoShowOutcome() NoShowOutcome {
	switch {
	case !b.TeacherAttended && !b.StudentAttended:
		return NoShowBoth
	case !b.TeacherAttended:
		return NoShowTeacher
	case !b.StudentAttended:
		return NoShowStudent
	default:
		return NoShowNone
	}
}

func (o NoShowOutcome) Reason() string {
	switch o {
	case NoShowBoth:
		return "Both parties no-show"
	case NoShowTeacher:
		return "Teacher no-show"
	case NoShowStudent:
		return "Student no-show"
	default:
		return ""
	}
}

func (b *Booking) ReschedulePending() bool { return b.RescheduleRequestedBy.Valid }

func (b *Booking) ProposedInterval() availability.Interval {
	return availability.Interval{Start: b.RescheduleStart.Time, End: b.RescheduleEnd.Time}
}

// RequestReschedule stores a proposed interval awaiting the counterpart.
func (b *Booking) RequestReschedule(actorID int64, iv availability.Interval, now time.Time) error {
	if !b.IsParticipant(actorID) {
		return ErrNotParticipant
	}
	if b.Status != StatusPending && b.Status != StatusAwaitingPayment && b.Status != StatusConfirmed {
		return fmt.Errorf("%w: cannot reschedule a %s booking", ErrInvalidTransition, b.Status)
	}
	if b.ReschedulePending() {
		return ErrReschedulePending
	}
	if !iv.Valid() {
		return ErrInvalidInterval
	}
	if !iv.Start.After(now) {
		return ErrInPast
	}
	b.RescheduleStart = sql.NullTime{Time: iv.Start, Valid: true}
	b.RescheduleEnd = sql.NullTime{Time: iv.End, Valid: true}
	b.RescheduleRequestedBy = sql.NullInt64{Int64: actorID, Valid: true}
	b.UpdatedAt = now
	return nil
}

// CanAnswerReschedule checks that actorID sits on the other side from the
// requester.
func (b *Booking) CanAnswerReschedule(actorID int64) error {
	if !b.ReschedulePending() {
		return ErrNoReschedule
	}
	if !b.IsParticipant(actorID) {
		return ErrNotParticipant
	}
	requester := b.RescheduleRequestedBy.Int64
	requesterIsTeacher := requester == b.TeacherID
	actorIsTeacher := actorID == b.TeacherID
	if requesterIsTeacher == actorIsTeacher {
		return ErrOwnReschedule
	}
	return nil
}

// ApplyReschedule swaps in the proposed interval and clears the request.
// The caller must have re-run the conflict check for the new interval.
func (b *Booking) ApplyReschedule(now time.Time) {
	b.StartTime = b.RescheduleStart.Time
	b.EndTime = b.RescheduleEnd.Time
	b.NoShowWarningSentAt = sql.NullTime{}
	b.ClearReschedule(now)
}

func (b *Booking) ClearReschedule(now time.Time) {
	b.RescheduleStart = sql.NullTime{}
	b.RescheduleEnd = sql.NullTime{}
	b.RescheduleRequestedBy = sql.NullInt64{}
	b.UpdatedAt = now
}

// RescheduleHistory records one approved interval swap.
type RescheduleHistory struct {
	ID          int64
	BookingID   int64
	OldStart    time.Time
	OldEnd      time.Time
	NewStart    time.Time
	NewEnd      time.Time
	RequestedBy int64
	ApprovedBy  int64
	CreatedAt   time.Time
}
