package booking

import (
	"errors"
	"reflect"
	"testing"
	"time"

	"tutor_booking_engine/internal/domain/availability"
)

var now = time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)

func newBooking() *Booking {
	return &Booking{
		ID:            1,
		TeacherID:     10,
		StudentUserID: 20,
		PayerUserID:   30,
		StartTime:     now.Add(2 * time.Hour),
		EndTime:       now.Add(3 * time.Hour),
		Status:        StatusPending,
		PaymentStatus: PaymentAwaiting,
	}
}

func TestStatusTransitions(t *testing.T) {
	tests := []struct {
		from, to Status
		ok       bool
	}{
		{StatusPending, StatusAwaitingPayment, true},
		{StatusPending, StatusConfirmed, true},
		{StatusAwaitingPayment, StatusConfirmed, true},
		{StatusConfirmed, StatusCompleted, true},
		{StatusConfirmed, StatusCancelled, true},
		{StatusPending, StatusCompleted, false},
		{StatusCompleted, StatusCancelled, false},
		{StatusCancelled, StatusConfirmed, false},
	}
	for _, tt := range tests {
		b := newBooking()
		b.Status = tt.from
		err := b.TransitionTo(tt.to, now)
		if tt.ok && err != nil {
			t.Errorf("%s -> %s: unexpected error %v", tt.from, tt.to, err)
		}
		if !tt.ok && !errors.Is(err, ErrInvalidTransition) {
			t.Errorf("%s -> %s: got %v, want ErrInvalidTransition", tt.from, tt.to, err)
		}
	}
}

func TestTerminalTimestamps(t *testing.T) {
	b := newBooking()
	b.Status = StatusConfirmed
	if err := b.TransitionTo(StatusCompleted, now); err != nil {
		t.Fatal(err)
	}
	if !b.CompletedAt.Valid || !b.Status.Terminal() || b.Status.Active() {
		t.Errorf("completed booking not stamped: %+v", b)
	}

	b = newBooking()
	b.RescheduleRequestedBy.Valid = true
	if err := b.Cancel("Cancelled by participant", now); err != nil {
		t.Fatal(err)
	}
	if !b.CancelledAt.Valid || b.CancellationReason != "Cancelled by participant" || b.ReschedulePending() {
		t.Errorf("cancel did not record state: %+v", b)
	}
}

func TestAdvancePaymentOnlyForward(t *testing.T) {
	b := newBooking()
	if err := b.AdvancePayment(PaymentReleased); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("skip to released: %v", err)
	}
	if err := b.AdvancePayment(PaymentHeld); err != nil {
		t.Fatal(err)
	}
	if err := b.AdvancePayment(PaymentPartiallyReleased); err != nil {
		t.Fatal(err)
	}
	if !b.PaymentStatus.Settled() {
		t.Error("partially released is a settled state")
	}
	if err := b.AdvancePayment(PaymentRefunded); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("settled payment moved again: %v", err)
	}
}

func TestNoShowOutcome(t *testing.T) {
	tests := []struct {
		teacher, student bool
		want             NoShowOutcome
		absent           []int64
	}{
		{false, false, NoShowBoth, []int64{10, 20, 30}},
		{false, true, NoShowTeacher, []int64{10}},
		{true, false, NoShowStudent, []int64{20, 30}},
		{true, true, NoShowNone, nil},
	}
	for _, tt := range tests {
		b := newBooking()
		b.TeacherAttended, b.StudentAttended = tt.teacher, tt.student
		if got := b.NoShowOutcome(); got != tt.want {
			t.Errorf("outcome(%v,%v) = %q, want %q", tt.teacher, tt.student, got, tt.want)
		}
		if got := b.AbsentParties(); !reflect.DeepEqual(got, tt.absent) {
			t.Errorf("absent(%v,%v) = %v, want %v", tt.teacher, tt.student, got, tt.absent)
		}
	}
	if NoShowStudent.Reason() != "Student no-show" {
		t.Errorf("reason = %q", NoShowStudent.Reason())
	}
}

func TestMarkAttended(t *testing.T) {
	b := newBooking()
	if err := b.MarkAttended(99); !errors.Is(err, ErrNotParticipant) {
		t.Errorf("stranger joined: %v", err)
	}
	// The guardian pays but does not attend on the student's behalf.
	if err := b.MarkAttended(30); !errors.Is(err, ErrNotParticipant) {
		t.Errorf("guardian attendance: %v", err)
	}
	_ = b.MarkAttended(10)
	_ = b.MarkAttended(20)
	if !b.AttendanceComplete() {
		t.Error("both parties joined")
	}
}

func TestCounterparts(t *testing.T) {
	b := newBooking()
	if got := b.Counterparts(10); !reflect.DeepEqual(got, []int64{20, 30}) {
		t.Errorf("teacher counterparts = %v", got)
	}
	if got := b.Counterparts(30); !reflect.DeepEqual(got, []int64{10}) {
		t.Errorf("guardian counterparts = %v", got)
	}
	b.PayerUserID = b.StudentUserID
	if got := b.StudentSide(); !reflect.DeepEqual(got, []int64{20}) {
		t.Errorf("self-paying student side = %v", got)
	}
}

func TestRescheduleFlow(t *testing.T) {
	b := newBooking()
	b.Status = StatusConfirmed
	iv := availability.Interval{Start: now.Add(26 * time.Hour), End: now.Add(27 * time.Hour)}

	if err := b.RequestReschedule(99, iv, now); !errors.Is(err, ErrNotParticipant) {
		t.Fatalf("stranger request: %v", err)
	}
	past := availability.Interval{Start: now.Add(-time.Hour), End: now}
	if err := b.RequestReschedule(20, past, now); !errors.Is(err, ErrInPast) {
		t.Fatalf("past request: %v", err)
	}
	if err := b.RequestReschedule(20, iv, now); err != nil {
		t.Fatal(err)
	}
	if err := b.RequestReschedule(10, iv, now); !errors.Is(err, ErrReschedulePending) {
		t.Fatalf("second request: %v", err)
	}

	// The guardian sits on the requester's side.
	if err := b.CanAnswerReschedule(30); !errors.Is(err, ErrOwnReschedule) {
		t.Errorf("guardian answering student request: %v", err)
	}
	if err := b.CanAnswerReschedule(20); !errors.Is(err, ErrOwnReschedule) {
		t.Errorf("requester answering: %v", err)
	}
	if err := b.CanAnswerReschedule(10); err != nil {
		t.Fatalf("teacher answering: %v", err)
	}

	b.NoShowWarningSentAt.Valid = true
	b.ApplyReschedule(now)
	if !b.StartTime.Equal(iv.Start) || !b.EndTime.Equal(iv.End) {
		t.Errorf("interval not applied: %v-%v", b.StartTime, b.EndTime)
	}
	if b.ReschedulePending() || b.NoShowWarningSentAt.Valid {
		t.Error("reschedule state not cleared")
	}
	if err := b.CanAnswerReschedule(10); !errors.Is(err, ErrNoReschedule) {
		t.Errorf("answer without request: %v", err)
	}
}

func TestRescheduleRejectedForTerminal(t *testing.T) {
	b := newBooking()
	b.Status = StatusCompleted
	iv := availability.Interval{Start: now.Add(26 * time.Hour), End: now.Add(27 * time.Hour)}
	if err := b.RequestReschedule(10, iv, now); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("completed booking rescheduled: %v", err)
	}
}

func TestInProgress(t *testing.T) {
	b := newBooking()
	b.Status = StatusConfirmed
	if b.InProgress(now) {
		t.Error("not started yet")
	}
	if !b.InProgress(b.StartTime) {
		t.Error("in progress at start")
	}
	if b.InProgress(b.EndTime) {
		t.Error("over at end")
	}
}
