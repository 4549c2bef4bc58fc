package app

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"

	"tutor_booking_engine/internal/domain/availability"
	"tutor_booking_engine/internal/domain/booking"
	"tutor_booking_engine/internal/domain/escrow"
	"tutor_booking_engine/internal/domain/notification"
	"tutor_booking_engine/internal/domain/payout"
	"tutor_booking_engine/internal/domain/store"
	"tutor_booking_engine/internal/domain/teacher"
	"tutor_booking_engine/internal/domain/user"
	"tutor_booking_engine/internal/domain/wallet"
	"tutor_booking_engine/internal/infra/memory"
)

const (
	hourlyRate = 100000
	currency   = "THB"
)

// sunday is the fixture clock; sessions are booked on the following Monday.
var sunday = time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)

func monday(h, m int) time.Time {
	return time.Date(2026, 3, 2, h, m, 0, 0, time.UTC)
}

type fixture struct {
	t      *testing.T
	ctx    context.Context
	store  *memory.Store
	policy Policy
	log    *logrus.Entry

	accounts     *AccountService
	availability *AvailabilityService
	bookings     *BookingService
	escrow       *EscrowService
	noShow       *NoShowService
	reminders    *ReminderService
	completion   *CompletionService
	payouts      *PayoutService
	gateway      *fakeGateway

	teacherID  int64
	studentID  int64
	guardianID int64
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	logger, _ := test.NewNullLogger()
	policy := DefaultPolicy()
	policy.MinAutoPayout = 50000

	f := &fixture{
		t:       t,
		ctx:     context.Background(),
		store:   memory.NewStore(),
		policy:  policy,
		log:     logrus.NewEntry(logger),
		gateway: &fakeGateway{result: payout.TransferResult{State: payout.TransferPaid}},
	}
	f.accounts = NewAccountService(f.store, f.log)
	f.availability = NewAvailabilityService(f.store, f.log)
	f.bookings = NewBookingService(f.store, policy, f.log)
	f.escrow = NewEscrowService(f.store, policy, f.log)
	f.noShow = NewNoShowService(f.store, f.escrow, policy, f.log)
	f.reminders = NewReminderService(f.store, policy, f.log)
	f.completion = NewCompletionService(f.store, policy, f.log)
	f.payouts = NewPayoutService(f.store, f.gateway, policy, f.log)

	f.teacherID = f.newTeacher("Teacher", 1001)

	guardian := &user.User{Role: user.RoleGuardian, FullName: "Guardian"}
	f.must(f.accounts.RegisterUser(f.ctx, guardian, sunday))
	f.guardianID = guardian.ID

	student := &user.User{
		Role:       user.RoleStudent,
		FullName:   "Student",
		TelegramID: sql.NullInt64{Int64: 2001, Valid: true},
		GuardianID: sql.NullInt64{Int64: guardian.ID, Valid: true},
	}
	f.must(f.accounts.RegisterUser(f.ctx, student, sunday))
	f.studentID = student.ID
	return f
}

// newTeacher registers a UTC teacher available on Mondays 09:00-17:00.
func (f *fixture) newTeacher(name string, telegramID int64) int64 {
	f.t.Helper()
	return f.newTeacherWithRate(name, telegramID, hourlyRate)
}

func (f *fixture) newTeacherWithRate(name string, telegramID, rate int64) int64 {
	f.t.Helper()
	u := &user.User{FullName: name, TelegramID: sql.NullInt64{Int64: telegramID, Valid: true}}
	tch := &teacher.Teacher{Timezone: "UTC", HourlyRate: rate, Currency: currency, AutomaticPayouts: true}
	f.must(f.accounts.RegisterTeacher(f.ctx, u, tch, sunday))
	_, err := f.availability.SetAvailability(f.ctx, availability.Slot{
		TeacherID:   tch.UserID,
		DayOfWeek:   time.Monday,
		StartTime:   9 * 60,
		EndTime:     17 * 60,
		IsAvailable: true,
	}, sunday)
	f.must(err)
	return tch.UserID
}

func (f *fixture) must(err error) {
	f.t.Helper()
	if err != nil {
		f.t.Fatalf("unexpected error: %v", err)
	}
}

func (f *fixture) topUp(userID, amount int64) {
	f.t.Helper()
	f.must(f.accounts.TopUp(f.ctx, userID, amount, currency, sunday))
}

func (f *fixture) balance(userID int64) int64 {
	f.t.Helper()
	b, err := f.accounts.Balance(f.ctx, userID, currency)
	f.must(err)
	return b
}

func (f *fixture) request(start, end time.Time) CreateBookingRequest {
	return CreateBookingRequest{
		TeacherID:     f.teacherID,
		StudentUserID: f.studentID,
		PayerUserID:   f.guardianID,
		Start:         start,
		End:           end,
	}
}

// confirmedBooking books Monday 10:00-11:00 paid by the guardian.
func (f *fixture) confirmedBooking() *booking.Booking {
	f.t.Helper()
	f.topUp(f.guardianID, hourlyRate)
	b, err := f.bookings.CreateBooking(f.ctx, f.request(monday(10, 0), monday(11, 0)), sunday)
	f.must(err)
	if b.Status != booking.StatusConfirmed {
		f.t.Fatalf("booking status = %s, want confirmed", b.Status)
	}
	return b
}

func (f *fixture) booking(id int64) *booking.Booking {
	f.t.Helper()
	b, err := f.bookings.Get(f.ctx, id)
	f.must(err)
	return b
}

func (f *fixture) entry(bookingID int64) *escrow.Entry {
	f.t.Helper()
	e, err := f.escrow.Get(f.ctx, bookingID)
	f.must(err)
	return e
}

func (f *fixture) messages(userID int64) []*notification.Message {
	f.t.Helper()
	var out []*notification.Message
	f.must(f.store.WithinTx(f.ctx, func(ctx context.Context, tx store.Tx) error {
		var err error
		out, err = tx.Outbox().ListByRecipient(ctx, userID)
		return err
	}))
	return out
}

func (f *fixture) walletTxs(userID int64) []wallet.Transaction {
	f.t.Helper()
	var out []wallet.Transaction
	f.must(f.store.WithinTx(f.ctx, func(ctx context.Context, tx store.Tx) error {
		var err error
		out, err = tx.Wallets().ListTransactions(ctx, userID)
		return err
	}))
	return out
}

func (f *fixture) countKind(userID int64, kind notification.Kind) int {
	n := 0
	for _, m := range f.messages(userID) {
		if m.Kind == kind {
			n++
		}
	}
	return n
}

// completeSession has both parties join and runs completion at the end.
func (f *fixture) completeSession(b *booking.Booking) {
	f.t.Helper()
	_, err := f.bookings.Join(f.ctx, b.ID, f.teacherID, b.StartTime)
	f.must(err)
	_, err = f.bookings.Join(f.ctx, b.ID, f.studentID, b.StartTime)
	f.must(err)
	report := f.completion.Run(f.ctx, b.EndTime)
	if report.Succeeded != 1 {
		f.t.Fatalf("completion report = %+v", report)
	}
}

// addPaymentMethod registers a verified bank account and returns its ID.
func (f *fixture) addPaymentMethod(teacherID int64) int64 {
	f.t.Helper()
	return f.addMethod(teacherID, "recp_test", true)
}

func (f *fixture) addMethod(teacherID int64, ref string, verified bool) int64 {
	f.t.Helper()
	m := &payout.PaymentMethod{
		TeacherID:   teacherID,
		Kind:        "bank_account",
		ExternalRef: ref,
		Verified:    verified,
	}
	f.must(f.accounts.AddPaymentMethod(f.ctx, m, sunday))
	return m.ID
}

type fakeGateway struct {
	mu        sync.Mutex
	transfers []payout.TransferRequest
	result    payout.TransferResult
	err       error
	status    payout.TransferResult
}

func (g *fakeGateway) Transfer(_ context.Context, req payout.TransferRequest) (payout.TransferResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.transfers = append(g.transfers, req)
	if g.err != nil {
		return payout.TransferResult{}, g.err
	}
	res := g.result
	if res.Reference == "" {
		res.Reference = fmt.Sprintf("trsf_%d", len(g.transfers))
	}
	return res, nil
}

func (g *fakeGateway) Status(_ context.Context, reference string) (payout.TransferResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	res := g.status
	res.Reference = reference
	return res, nil
}
