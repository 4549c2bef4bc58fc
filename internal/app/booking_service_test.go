package app

import (
	"errors"
	"sync"
	"testing"
	"time"

	"tutor_booking_engine/internal/domain/availability"
	"tutor_booking_engine/internal/domain/booking"
	"tutor_booking_engine/internal/domain/escrow"
	"tutor_booking_engine/internal/domain/notification"
)

func TestCreateBookingConfirmsAndHoldsFunds(t *testing.T) {
	f := newFixture(t)
	b := f.confirmedBooking()

	if b.PaymentStatus != booking.PaymentHeld {
		t.Errorf("payment status = %s, want held", b.PaymentStatus)
	}
	if b.Amount != hourlyRate || b.PayerUserID != f.guardianID {
		t.Errorf("amount = %d payer = %d", b.Amount, b.PayerUserID)
	}
	if got := f.balance(f.guardianID); got != 0 {
		t.Errorf("guardian balance = %d, want 0", got)
	}
	e := f.entry(b.ID)
	if e.Status != escrow.StatusHeld || e.Amount != hourlyRate {
		t.Errorf("escrow = %+v", e)
	}

	for _, id := range []int64{f.studentID, f.guardianID} {
		if n := f.countKind(id, notification.KindBookingConfirmed); n != 1 {
			t.Errorf("user %d got %d confirmations, want 1", id, n)
		}
	}
	teacherMsgs := f.messages(f.teacherID)
	if len(teacherMsgs) != 1 || teacherMsgs[0].Kind != notification.KindBookingConfirmed {
		t.Fatalf("teacher messages = %+v", teacherMsgs)
	}
	if want := sunday.Add(f.policy.ConfirmationFollowupDelay); !teacherMsgs[0].SendAfter.Equal(want) {
		t.Errorf("teacher confirmation send after = %s, want %s", teacherMsgs[0].SendAfter, want)
	}
}

func TestCreateBookingWithoutFundsAwaitsPayment(t *testing.T) {
	f := newFixture(t)

	b, err := f.bookings.CreateBooking(f.ctx, f.request(monday(10, 0), monday(11, 0)), sunday)
	f.must(err)
	if b.Status != booking.StatusAwaitingPayment || b.PaymentStatus != booking.PaymentAwaiting {
		t.Fatalf("booking = %s/%s, want awaiting_payment", b.Status, b.PaymentStatus)
	}
	if n := f.countKind(f.guardianID, notification.KindPaymentRequired); n != 1 {
		t.Errorf("payment required messages = %d, want 1", n)
	}
	if _, err := f.escrow.Get(f.ctx, b.ID); !errors.Is(err, escrow.ErrNotFound) {
		t.Errorf("escrow lookup err = %v, want ErrNotFound", err)
	}

	// A second attempt without funds does not repeat the notice.
	_, err = f.bookings.ConfirmPayment(f.ctx, b.ID, sunday.Add(time.Minute))
	f.must(err)
	if n := f.countKind(f.guardianID, notification.KindPaymentRequired); n != 1 {
		t.Errorf("payment required messages = %d after retry, want 1", n)
	}

	f.topUp(f.guardianID, hourlyRate)
	b, err = f.bookings.ConfirmPayment(f.ctx, b.ID, sunday.Add(time.Hour))
	f.must(err)
	if b.Status != booking.StatusConfirmed || b.PaymentStatus != booking.PaymentHeld {
		t.Fatalf("booking = %s/%s, want confirmed/held", b.Status, b.PaymentStatus)
	}

	// Confirming again is a no-op and does not double charge.
	f.topUp(f.guardianID, hourlyRate)
	_, err = f.bookings.ConfirmPayment(f.ctx, b.ID, sunday.Add(2*time.Hour))
	f.must(err)
	if got := f.balance(f.guardianID); got != hourlyRate {
		t.Errorf("guardian balance = %d, want %d", got, hourlyRate)
	}
}

func TestCreateBookingConcurrentRequestsOnlyOneWins(t *testing.T) {
	f := newFixture(t)
	f.topUp(f.guardianID, 10*hourlyRate)

	const workers = 8
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
		conflicts int
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.bookings.CreateBooking(f.ctx, f.request(monday(10, 0), monday(11, 0)), sunday)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				successes++
			case errors.Is(err, booking.ErrSlotUnavailable):
				conflicts++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	if successes != 1 || conflicts != workers-1 {
		t.Errorf("successes = %d conflicts = %d", successes, conflicts)
	}
	if got := f.balance(f.guardianID); got != 9*hourlyRate {
		t.Errorf("guardian balance = %d, want one session charged", got)
	}
}

func TestCreateBookingRejections(t *testing.T) {
	f := newFixture(t)
	f.topUp(f.guardianID, 5*hourlyRate)
	f.confirmedBooking()

	tests := []struct {
		name       string
		start, end time.Time
		now        time.Time
		want       error
	}{
		{"overlaps existing", monday(10, 30), monday(11, 30), sunday, booking.ErrSlotUnavailable},
		{"outside availability", monday(17, 0), monday(18, 0), sunday, booking.ErrSlotUnavailable},
		{"wrong weekday", monday(10, 0).AddDate(0, 0, 1), monday(11, 0).AddDate(0, 0, 1), sunday, booking.ErrSlotUnavailable},
		{"in the past", monday(12, 0), monday(13, 0), monday(12, 0), booking.ErrInPast},
		{"inverted", monday(13, 0), monday(12, 0), sunday, booking.ErrInvalidInterval},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.bookings.CreateBooking(f.ctx, f.request(tt.start, tt.end), tt.now)
			if !errors.Is(err, tt.want) {
				t.Errorf("err = %v, want %v", err, tt.want)
			}
		})
	}

	// Back to back with the existing booking is fine.
	b, err := f.bookings.CreateBooking(f.ctx, f.request(monday(11, 0), monday(12, 0)), sunday)
	f.must(err)
	if b.Status != booking.StatusConfirmed {
		t.Errorf("adjacent booking status = %s", b.Status)
	}
}

func TestHolidayModeBlocksBooking(t *testing.T) {
	f := newFixture(t)
	f.topUp(f.guardianID, hourlyRate)

	free, err := f.bookings.IsAvailable(f.ctx, f.teacherID, monday(10, 0), monday(11, 0))
	f.must(err)
	if !free {
		t.Fatal("slot should be free before holiday mode")
	}

	_, err = f.availability.SetHolidayMode(f.ctx, f.teacherID, true, sunday)
	f.must(err)

	free, err = f.bookings.IsAvailable(f.ctx, f.teacherID, monday(10, 0), monday(11, 0))
	f.must(err)
	if free {
		t.Error("slot reported free during holiday mode")
	}
	_, err = f.bookings.CreateBooking(f.ctx, f.request(monday(10, 0), monday(11, 0)), sunday)
	if !errors.Is(err, availability.ErrHolidayMode) {
		t.Errorf("err = %v, want ErrHolidayMode", err)
	}

	_, err = f.availability.SetHolidayMode(f.ctx, f.teacherID, false, sunday)
	f.must(err)
	f.confirmedBooking()
}

func TestDisabledSlotIsNotBookable(t *testing.T) {
	f := newFixture(t)
	slots, err := f.availability.Slots(f.ctx, f.teacherID)
	f.must(err)
	if len(slots) != 1 {
		t.Fatalf("slots = %+v", slots)
	}
	slot := slots[0]
	slot.IsAvailable = false
	_, err = f.availability.SetAvailability(f.ctx, slot, sunday)
	f.must(err)

	free, err := f.bookings.IsAvailable(f.ctx, f.teacherID, monday(10, 0), monday(11, 0))
	f.must(err)
	if free {
		t.Error("disabled slot reported free")
	}
}

func TestCreateRecurringKeepsNonConflictingOccurrences(t *testing.T) {
	f := newFixture(t)
	f.topUp(f.guardianID, 4*hourlyRate)
	week := 7 * 24 * time.Hour

	_, err := f.bookings.CreateBooking(f.ctx, f.request(monday(10, 0).Add(week), monday(11, 0).Add(week)), sunday)
	f.must(err)

	results, err := f.bookings.CreateRecurring(f.ctx, f.request(monday(10, 0), monday(11, 0)), 3, week, sunday)
	f.must(err)
	if len(results) != 3 {
		t.Fatalf("results = %d, want 3", len(results))
	}
	if results[0].Err != nil || results[2].Err != nil {
		t.Fatalf("unexpected errors: %v, %v", results[0].Err, results[2].Err)
	}
	if !errors.Is(results[1].Err, booking.ErrSlotUnavailable) || results[1].Booking != nil {
		t.Errorf("second occurrence = %+v, want slot conflict", results[1])
	}
	first, third := results[0].Booking, results[2].Booking
	if !first.SeriesID.Valid || first.SeriesID != third.SeriesID {
		t.Errorf("series ids = %v, %v", first.SeriesID, third.SeriesID)
	}
	if first.Status != booking.StatusConfirmed || third.Status != booking.StatusConfirmed {
		t.Errorf("statuses = %s, %s", first.Status, third.Status)
	}

	if _, err := f.bookings.CreateRecurring(f.ctx, f.request(monday(10, 0), monday(11, 0)), 0, week, sunday); !errors.Is(err, ErrInvalidRecurrence) {
		t.Errorf("err = %v, want ErrInvalidRecurrence", err)
	}
}

func TestRescheduleFlow(t *testing.T) {
	f := newFixture(t)
	b := f.confirmedBooking()

	other := f.request(monday(15, 0), monday(16, 0))
	other.PayerUserID = f.studentID
	f.topUp(f.studentID, hourlyRate)
	_, err := f.bookings.CreateBooking(f.ctx, other, sunday)
	f.must(err)

	_, err = f.bookings.RequestReschedule(f.ctx, b.ID, f.studentID, monday(15, 30), monday(16, 30), sunday)
	if !errors.Is(err, booking.ErrSlotUnavailable) {
		t.Fatalf("conflicting request err = %v, want ErrSlotUnavailable", err)
	}

	_, err = f.bookings.RequestReschedule(f.ctx, b.ID, f.studentID, monday(13, 0), monday(14, 0), sunday)
	f.must(err)
	if n := f.countKind(f.teacherID, notification.KindRescheduleRequested); n != 1 {
		t.Errorf("teacher reschedule requests = %d, want 1", n)
	}
	if _, err := f.bookings.RequestReschedule(f.ctx, b.ID, f.teacherID, monday(14, 0), monday(15, 0), sunday); !errors.Is(err, booking.ErrReschedulePending) {
		t.Errorf("second request err = %v, want ErrReschedulePending", err)
	}
	if _, err := f.bookings.ApproveReschedule(f.ctx, b.ID, f.guardianID, sunday); !errors.Is(err, booking.ErrOwnReschedule) {
		t.Errorf("student side approval err = %v, want ErrOwnReschedule", err)
	}

	approved, err := f.bookings.ApproveReschedule(f.ctx, b.ID, f.teacherID, sunday.Add(time.Minute))
	f.must(err)
	if !approved.StartTime.Equal(monday(13, 0)) || approved.ReschedulePending() {
		t.Errorf("approved booking = %+v", approved)
	}
	history, err := f.bookings.RescheduleHistory(f.ctx, b.ID)
	f.must(err)
	if len(history) != 1 || !history[0].OldStart.Equal(monday(10, 0)) || history[0].ApprovedBy != f.teacherID {
		t.Errorf("history = %+v", history)
	}
	if n := f.countKind(f.guardianID, notification.KindRescheduleAnswered); n != 1 {
		t.Errorf("guardian reschedule answers = %d, want 1", n)
	}

	// The old interval is free again.
	free, err := f.bookings.IsAvailable(f.ctx, f.teacherID, monday(10, 0), monday(11, 0))
	f.must(err)
	if !free {
		t.Error("old interval still blocked after reschedule")
	}
}

func TestApproveRescheduleRechecksConflicts(t *testing.T) {
	f := newFixture(t)
	b := f.confirmedBooking()

	_, err := f.bookings.RequestReschedule(f.ctx, b.ID, f.teacherID, monday(14, 0), monday(15, 0), sunday)
	f.must(err)

	// Someone takes the proposed interval before the student answers.
	other := f.request(monday(14, 0), monday(15, 0))
	other.PayerUserID = f.studentID
	f.topUp(f.studentID, hourlyRate)
	_, err = f.bookings.CreateBooking(f.ctx, other, sunday)
	f.must(err)

	_, err = f.bookings.ApproveReschedule(f.ctx, b.ID, f.studentID, sunday)
	if !errors.Is(err, booking.ErrSlotUnavailable) {
		t.Fatalf("approval err = %v, want ErrSlotUnavailable", err)
	}
	got := f.booking(b.ID)
	if !got.StartTime.Equal(monday(10, 0)) || !got.ReschedulePending() {
		t.Errorf("booking changed after failed approval: %+v", got)
	}

	rejected, err := f.bookings.RejectReschedule(f.ctx, b.ID, f.studentID, sunday)
	f.must(err)
	if rejected.ReschedulePending() {
		t.Error("reschedule still pending after rejection")
	}
}

func TestCancelBookingRefundsAndFreesSlot(t *testing.T) {
	f := newFixture(t)
	b := f.confirmedBooking()

	if _, err := f.bookings.CancelBooking(f.ctx, b.ID, 9999, "", sunday); !errors.Is(err, booking.ErrNotParticipant) {
		t.Errorf("outsider cancel err = %v, want ErrNotParticipant", err)
	}

	cancelled, err := f.bookings.CancelBooking(f.ctx, b.ID, f.studentID, "sick", sunday.Add(time.Hour))
	f.must(err)
	if cancelled.Status != booking.StatusCancelled || cancelled.PaymentStatus != booking.PaymentRefunded {
		t.Errorf("cancelled = %s/%s", cancelled.Status, cancelled.PaymentStatus)
	}
	if cancelled.CancellationReason != "sick" || !cancelled.CancelledAt.Valid {
		t.Errorf("cancellation not recorded: %+v", cancelled)
	}
	if got := f.balance(f.guardianID); got != hourlyRate {
		t.Errorf("guardian balance = %d, want full refund", got)
	}
	if e := f.entry(b.ID); e.Status != escrow.StatusRefunded || e.RefundedAmount != hourlyRate {
		t.Errorf("escrow = %+v", e)
	}
	if n := f.countKind(f.teacherID, notification.KindBookingCancelled); n != 1 {
		t.Errorf("teacher cancellations = %d, want 1", n)
	}

	if _, err := f.bookings.CancelBooking(f.ctx, b.ID, f.studentID, "", sunday.Add(time.Hour)); !errors.Is(err, booking.ErrInvalidTransition) {
		t.Errorf("second cancel err = %v, want ErrInvalidTransition", err)
	}

	again, err := f.bookings.CreateBooking(f.ctx, f.request(monday(10, 0), monday(11, 0)), sunday.Add(2*time.Hour))
	f.must(err)
	if again.Status != booking.StatusConfirmed {
		t.Errorf("rebooked status = %s", again.Status)
	}
}

func TestJoinWindow(t *testing.T) {
	f := newFixture(t)
	b := f.confirmedBooking()

	if _, err := f.bookings.Join(f.ctx, b.ID, f.studentID, b.StartTime.Add(-time.Hour)); !errors.Is(err, booking.ErrOutsideJoinWindow) {
		t.Errorf("early join err = %v", err)
	}
	if _, err := f.bookings.Join(f.ctx, b.ID, f.guardianID, b.StartTime); !errors.Is(err, booking.ErrNotParticipant) {
		t.Errorf("guardian join err = %v, want ErrNotParticipant", err)
	}
	joined, err := f.bookings.Join(f.ctx, b.ID, f.studentID, b.StartTime.Add(-5*time.Minute))
	f.must(err)
	if !joined.StudentAttended || joined.TeacherAttended {
		t.Errorf("attendance = teacher %v student %v", joined.TeacherAttended, joined.StudentAttended)
	}
	if _, err := f.bookings.Join(f.ctx, b.ID, f.teacherID, b.EndTime); !errors.Is(err, booking.ErrOutsideJoinWindow) {
		t.Errorf("join after end err = %v", err)
	}
}
