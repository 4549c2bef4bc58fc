package app

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"tutor_booking_engine/internal/domain/notification"
	"tutor_booking_engine/internal/domain/payout"
	"tutor_booking_engine/internal/domain/store"
)

// earn releases one session's price to the teacher.
func (f *fixture) earn() {
	f.t.Helper()
	b := f.confirmedBooking()
	_, err := f.escrow.Release(f.ctx, b.ID, "session delivered", sunday)
	f.must(err)
}

func (f *fixture) payout(id int64) *payout.Request {
	f.t.Helper()
	history, err := f.payouts.History(f.ctx, f.teacherID)
	f.must(err)
	for _, p := range history {
		if p.ID == id {
			return p
		}
	}
	f.t.Fatalf("payout %d not found", id)
	return nil
}

func TestRequestPayoutChecks(t *testing.T) {
	f := newFixture(t)

	if _, err := f.payouts.RequestPayout(f.ctx, f.teacherID, 0, 0, sunday); !errors.Is(err, payout.ErrInvalidAmount) {
		t.Errorf("zero amount err = %v", err)
	}
	if _, err := f.payouts.RequestPayout(f.ctx, f.teacherID, 1000, 0, sunday); !errors.Is(err, payout.ErrMethodNotFound) {
		t.Errorf("no method err = %v", err)
	}
	method := f.addPaymentMethod(f.teacherID)
	if _, err := f.payouts.RequestPayout(f.ctx, f.teacherID, 1000, method, sunday); !errors.Is(err, payout.ErrInsufficientBalance) {
		t.Errorf("empty balance err = %v", err)
	}

	f.earn()
	req, err := f.payouts.RequestPayout(f.ctx, f.teacherID, 60000, method, sunday)
	f.must(err)
	if req.Status != payout.StatusRequested || !strings.HasPrefix(req.IdempotencyKey, "payout-") {
		t.Errorf("request = %+v", req)
	}
	available, err := f.payouts.CalculateAvailableBalance(f.ctx, f.teacherID)
	f.must(err)
	if available != 40000 {
		t.Errorf("available = %d, want 40000", available)
	}
	if _, err := f.payouts.RequestPayout(f.ctx, f.teacherID, 50000, method, sunday); !errors.Is(err, payout.ErrInsufficientBalance) {
		t.Errorf("overdraw err = %v", err)
	}

	pending, err := f.payouts.Pending(f.ctx)
	f.must(err)
	if len(pending) != 1 || pending[0].ID != req.ID {
		t.Errorf("pending = %+v", pending)
	}
}

func TestManualPayoutPaid(t *testing.T) {
	f := newFixture(t)
	method := f.addPaymentMethod(f.teacherID)
	f.earn()

	req, err := f.payouts.RequestPayout(f.ctx, f.teacherID, hourlyRate, method, sunday)
	f.must(err)
	if _, err := f.payouts.ProcessPayout(f.ctx, req.ID, sunday); !errors.Is(err, payout.ErrInvalidTransition) {
		t.Errorf("processing unapproved payout err = %v", err)
	}
	_, err = f.payouts.ApprovePayout(f.ctx, req.ID, 42, sunday)
	f.must(err)
	paid, err := f.payouts.ProcessPayout(f.ctx, req.ID, sunday)
	f.must(err)
	if paid.Status != payout.StatusPaid || paid.GatewayReference == "" || !paid.ProcessedAt.Valid {
		t.Errorf("payout = %+v", paid)
	}
	if len(f.gateway.transfers) != 1 || f.gateway.transfers[0].Destination.ExternalRef != "recp_test" {
		t.Errorf("transfers = %+v", f.gateway.transfers)
	}
	if n := f.countKind(f.teacherID, notification.KindPayoutStatusChanged); n != 2 {
		t.Errorf("payout status messages = %d, want approved and paid", n)
	}
}

func TestRequestPayoutToChosenMethod(t *testing.T) {
	f := newFixture(t)
	first := f.addMethod(f.teacherID, "recp_first", true)
	f.addMethod(f.teacherID, "recp_second", true)
	unverified := f.addMethod(f.teacherID, "recp_pending", false)
	foreign := f.addMethod(f.newTeacher("Other", 1002), "recp_other", true)
	f.earn()

	if _, err := f.payouts.RequestPayout(f.ctx, f.teacherID, 1000, unverified, sunday); !errors.Is(err, payout.ErrMethodNotVerified) {
		t.Errorf("unverified method err = %v", err)
	}
	if _, err := f.payouts.RequestPayout(f.ctx, f.teacherID, 1000, foreign, sunday); !errors.Is(err, payout.ErrMethodNotFound) {
		t.Errorf("foreign method err = %v", err)
	}

	req, err := f.payouts.RequestPayout(f.ctx, f.teacherID, hourlyRate, first, sunday)
	f.must(err)
	if req.PaymentMethodID != first {
		t.Fatalf("payout method = %d, want %d", req.PaymentMethodID, first)
	}
	_, err = f.payouts.ApprovePayout(f.ctx, req.ID, 42, sunday)
	f.must(err)
	_, err = f.payouts.ProcessPayout(f.ctx, req.ID, sunday)
	f.must(err)
	if len(f.gateway.transfers) != 1 || f.gateway.transfers[0].Destination.ExternalRef != "recp_first" {
		t.Errorf("transfers = %+v", f.gateway.transfers)
	}
}

func TestSystemApprovalReservedForAutomaticPayouts(t *testing.T) {
	f := newFixture(t)
	method := f.addPaymentMethod(f.teacherID)
	f.earn()

	req, err := f.payouts.RequestPayout(f.ctx, f.teacherID, 1000, method, sunday)
	f.must(err)
	if _, err := f.payouts.ApprovePayout(f.ctx, req.ID, payout.SystemApprover, sunday); !errors.Is(err, payout.ErrSystemApproval) {
		t.Errorf("manual system approval err = %v, want ErrSystemApproval", err)
	}
	// 1000 is below the automatic minimum, so the sweep path refuses it too.
	if _, err := f.payouts.approveAutomatic(f.ctx, req.ID, sunday); !errors.Is(err, payout.ErrSystemApproval) {
		t.Errorf("below-minimum system approval err = %v, want ErrSystemApproval", err)
	}
	pending, err := f.payouts.Pending(f.ctx)
	f.must(err)
	if len(pending) != 1 || pending[0].ID != req.ID || pending[0].ApprovedBy.Valid {
		t.Errorf("pending = %+v, want the request still unapproved", pending)
	}
}

func TestAutomaticPayouts(t *testing.T) {
	f := newFixture(t)
	f.earn()

	report := f.payouts.RunAutomaticPayouts(f.ctx, sunday)
	if report.Skipped != 1 || report.Succeeded != 0 {
		t.Fatalf("without a method: %+v", report)
	}

	f.addPaymentMethod(f.teacherID)
	report = f.payouts.RunAutomaticPayouts(f.ctx, sunday)
	if report.Succeeded != 1 {
		t.Fatalf("report = %+v", report)
	}
	if len(f.gateway.transfers) != 1 || f.gateway.transfers[0].Amount != hourlyRate {
		t.Fatalf("transfers = %+v", f.gateway.transfers)
	}
	history, err := f.payouts.History(f.ctx, f.teacherID)
	f.must(err)
	if len(history) != 1 || history[0].Status != payout.StatusPaid || !history[0].ApprovedBySystem() {
		t.Errorf("history = %+v", history)
	}

	report = f.payouts.RunAutomaticPayouts(f.ctx, sunday.Add(time.Hour))
	if report.Skipped != 1 || len(f.gateway.transfers) != 1 {
		t.Errorf("drained balance paid out again: %+v", report)
	}
}

func TestAutomaticPayoutBelowThresholdSkipped(t *testing.T) {
	f := newFixture(t)
	f.addPaymentMethod(f.teacherID)
	f.earn()

	policy := f.policy
	policy.MinAutoPayout = hourlyRate + 1
	strict := NewPayoutService(f.store, f.gateway, policy, f.log)

	report := strict.RunAutomaticPayouts(f.ctx, sunday)
	if report.Skipped != 1 || len(f.gateway.transfers) != 0 {
		t.Errorf("report = %+v, transfers = %d", report, len(f.gateway.transfers))
	}
}

func TestAutomaticPayoutsIgnoreManualTeachers(t *testing.T) {
	f := newFixture(t)
	manual := f.newTeacher("Manual", 1002)
	f.must(f.store.WithinTx(f.ctx, func(ctx context.Context, tx store.Tx) error {
		tch, err := tx.Teachers().GetForUpdate(ctx, manual)
		if err != nil {
			return err
		}
		tch.AutomaticPayouts = false
		return tx.Teachers().Update(ctx, tch)
	}))

	report := f.payouts.RunAutomaticPayouts(f.ctx, sunday)
	if report.Processed != 1 {
		t.Errorf("report = %+v, want only the automatic teacher", report)
	}
}

func TestPendingTransferReconciled(t *testing.T) {
	f := newFixture(t)
	f.addPaymentMethod(f.teacherID)
	f.earn()
	f.gateway.result = payout.TransferResult{State: payout.TransferPending, Reference: "trsf_pending"}

	f.payouts.RunAutomaticPayouts(f.ctx, sunday)
	history, err := f.payouts.History(f.ctx, f.teacherID)
	f.must(err)
	req := history[0]
	if req.Status != payout.StatusProcessing || req.GatewayReference != "trsf_pending" {
		t.Fatalf("payout = %+v", req)
	}

	f.gateway.status = payout.TransferResult{State: payout.TransferPending}
	if report := f.payouts.ReconcileProcessing(f.ctx, sunday.Add(time.Minute)); report.Skipped != 1 {
		t.Errorf("still pending report = %+v", report)
	}

	f.gateway.status = payout.TransferResult{State: payout.TransferPaid}
	report := f.payouts.ReconcileProcessing(f.ctx, sunday.Add(2*time.Minute))
	if report.Succeeded != 1 {
		t.Fatalf("report = %+v", report)
	}
	if got := f.payout(req.ID); got.Status != payout.StatusPaid {
		t.Errorf("status = %s, want paid", got.Status)
	}
}

func TestFailedTransferCallResubmittedWithSameKey(t *testing.T) {
	f := newFixture(t)
	f.addPaymentMethod(f.teacherID)
	f.earn()
	f.gateway.err = errors.New("gateway timeout")

	report := f.payouts.RunAutomaticPayouts(f.ctx, sunday)
	if report.Failed != 1 {
		t.Fatalf("report = %+v", report)
	}
	history, err := f.payouts.History(f.ctx, f.teacherID)
	f.must(err)
	req := history[0]
	if req.Status != payout.StatusProcessing || req.GatewayReference != "" {
		t.Fatalf("payout = %+v", req)
	}
	available, err := f.payouts.CalculateAvailableBalance(f.ctx, f.teacherID)
	f.must(err)
	if available != 0 {
		t.Errorf("processing payout not reserved, available = %d", available)
	}

	f.gateway.err = nil
	report = f.payouts.ReconcileProcessing(f.ctx, sunday.Add(time.Minute))
	if report.Succeeded != 1 {
		t.Fatalf("report = %+v", report)
	}
	if len(f.gateway.transfers) != 2 || f.gateway.transfers[0].IdempotencyKey != f.gateway.transfers[1].IdempotencyKey {
		t.Errorf("transfers = %+v", f.gateway.transfers)
	}
	if got := f.payout(req.ID); got.Status != payout.StatusPaid {
		t.Errorf("status = %s, want paid", got.Status)
	}
}

func TestFailedPayoutFreesBalance(t *testing.T) {
	f := newFixture(t)
	f.addPaymentMethod(f.teacherID)
	f.earn()
	f.gateway.result = payout.TransferResult{State: payout.TransferFailed, FailureReason: "invalid_recipient: closed account"}

	f.payouts.RunAutomaticPayouts(f.ctx, sunday)
	history, err := f.payouts.History(f.ctx, f.teacherID)
	f.must(err)
	if history[0].Status != payout.StatusFailed || history[0].FailureReason == "" {
		t.Fatalf("payout = %+v", history[0])
	}
	available, err := f.payouts.CalculateAvailableBalance(f.ctx, f.teacherID)
	f.must(err)
	if available != hourlyRate {
		t.Errorf("available = %d, want %d", available, hourlyRate)
	}
}
