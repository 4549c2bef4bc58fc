package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"tutor_booking_engine/internal/domain/notification"
	"tutor_booking_engine/internal/domain/payout"
	"tutor_booking_engine/internal/domain/store"
)

// PayoutService moves released earnings out to teachers. The available
// balance is always derived from escrow and payout rows, never stored.
type PayoutService struct {
	store   store.Store
	gateway payout.Gateway
	policy  Policy
	log     *logrus.Entry
}

func NewPayoutService(s store.Store, gateway payout.Gateway, policy Policy, log *logrus.Entry) *PayoutService {
	return &PayoutService{store: s, gateway: gateway, policy: policy, log: log.WithField("component", "payout")}
}

// CalculateAvailableBalance is released earnings minus every payout that
// is not failed.
func (s *PayoutService) CalculateAvailableBalance(ctx context.Context, teacherID int64) (int64, error) {
	var balance int64
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx store.Tx) error {
		if _, err := tx.Teachers().GetByID(ctx, teacherID); err != nil {
			return err
		}
		var err error
		balance, err = availableBalance(ctx, tx, teacherID)
		return err
	})
	return balance, err
}

func availableBalance(ctx context.Context, tx store.Tx, teacherID int64) (int64, error) {
	earned, err := tx.Escrow().SumTeacherEarnings(ctx, teacherID)
	if err != nil {
		return 0, fmt.Errorf("failed to sum earnings of teacher %d: %w", teacherID, err)
	}
	committed, err := tx.Payouts().SumCommitted(ctx, teacherID)
	if err != nil {
		return 0, fmt.Errorf("failed to sum payouts of teacher %d: %w", teacherID, err)
	}
	return earned - committed, nil
}

// RequestPayout records a payout of amount to one of the teacher's verified
// payment methods. The balance check and insert run under the teacher lock
// so two requests cannot both spend the same balance.
func (s *PayoutService) RequestPayout(ctx context.Context, teacherID, amount, paymentMethodID int64, now time.Time) (*payout.Request, error) {
	if amount <= 0 {
		return nil, payout.ErrInvalidAmount
	}
	var req *payout.Request
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx store.Tx) error {
		t, err := tx.Teachers().GetForUpdate(ctx, teacherID)
		if err != nil {
			return err
		}
		method, err := tx.PaymentMethods().GetByID(ctx, paymentMethodID)
		if err != nil {
			return err
		}
		if method.TeacherID != teacherID {
			return fmt.Errorf("%w: method %d belongs to another teacher", payout.ErrMethodNotFound, paymentMethodID)
		}
		if !method.Verified {
			return fmt.Errorf("%w: method %d", payout.ErrMethodNotVerified, paymentMethodID)
		}
		balance, err := availableBalance(ctx, tx, teacherID)
		if err != nil {
			return err
		}
		if amount > balance {
			return fmt.Errorf("%w: requested %d, available %d", payout.ErrInsufficientBalance, amount, balance)
		}
		req = &payout.Request{
			TeacherID:       teacherID,
			Amount:          amount,
			Currency:        t.Currency,
			PaymentMethodID: method.ID,
			Status:          payout.StatusRequested,
			IdempotencyKey:  "payout-" + uuid.NewString(),
			RequestedAt:     now,
			UpdatedAt:       now,
		}
		if err := tx.Payouts().Create(ctx, req); err != nil {
			return fmt.Errorf("failed to create payout for teacher %d: %w", teacherID, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.log.WithFields(logrus.Fields{"payout_id": req.ID, "teacher_id": teacherID, "amount": amount}).Info("Payout requested")
	return req, nil
}

// ApprovePayout approves a requested payout on behalf of a person.
// payout.SystemApprover is refused; only the automatic payout sweep
// approves as the system.
func (s *PayoutService) ApprovePayout(ctx context.Context, payoutID, approverID int64, now time.Time) (*payout.Request, error) {
	if approverID == payout.SystemApprover {
		return nil, payout.ErrSystemApproval
	}
	return s.approve(ctx, payoutID, approverID, now, nil)
}

// approveAutomatic approves as the system after re-checking, under lock,
// what makes a payout automatic: the teacher opted in, the amount meets
// MinAutoPayout and the destination is verified.
func (s *PayoutService) approveAutomatic(ctx context.Context, payoutID int64, now time.Time) (*payout.Request, error) {
	return s.approve(ctx, payoutID, payout.SystemApprover, now, func(ctx context.Context, tx store.Tx, req *payout.Request) error {
		t, err := tx.Teachers().GetByID(ctx, req.TeacherID)
		if err != nil {
			return err
		}
		if !t.AutomaticPayouts {
			return fmt.Errorf("%w: teacher %d has automatic payouts off", payout.ErrSystemApproval, req.TeacherID)
		}
		if req.Amount < s.policy.MinAutoPayout {
			return fmt.Errorf("%w: amount %d below minimum %d", payout.ErrSystemApproval, req.Amount, s.policy.MinAutoPayout)
		}
		method, err := tx.PaymentMethods().GetByID(ctx, req.PaymentMethodID)
		if err != nil {
			return err
		}
		if !method.Verified {
			return fmt.Errorf("%w: method %d is not verified", payout.ErrSystemApproval, method.ID)
		}
		return nil
	})
}

func (s *PayoutService) approve(ctx context.Context, payoutID, approverID int64, now time.Time, guard func(context.Context, store.Tx, *payout.Request) error) (*payout.Request, error) {
	var req *payout.Request
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx store.Tx) error {
		var err error
		req, err = tx.Payouts().GetForUpdate(ctx, payoutID)
		if err != nil {
			return err
		}
		if guard != nil {
			if err := guard(ctx, tx, req); err != nil {
				return err
			}
		}
		if err := req.Approve(approverID, now); err != nil {
			return err
		}
		if err := tx.Payouts().Update(ctx, req); err != nil {
			return err
		}
		return s.notifyStatus(ctx, tx, req, now)
	})
	if err != nil {
		return nil, err
	}
	s.log.WithFields(logrus.Fields{"payout_id": payoutID, "approved_by": approverID}).Info("Payout approved")
	return req, nil
}

// ProcessPayout moves an approved payout to processing and calls the
// gateway outside any transaction. A pending or failed call leaves the
// payout processing for ReconcileProcessing to finish.
func (s *PayoutService) ProcessPayout(ctx context.Context, payoutID int64, now time.Time) (*payout.Request, error) {
	var (
		req    *payout.Request
		method *payout.PaymentMethod
	)
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx store.Tx) error {
		var err error
		req, err = tx.Payouts().GetForUpdate(ctx, payoutID)
		if err != nil {
			return err
		}
		method, err = tx.PaymentMethods().GetByID(ctx, req.PaymentMethodID)
		if err != nil {
			return err
		}
		if err := req.StartProcessing(now); err != nil {
			return err
		}
		return tx.Payouts().Update(ctx, req)
	})
	if err != nil {
		return nil, err
	}
	return s.transfer(ctx, req, *method, now)
}

func (s *PayoutService) transfer(ctx context.Context, req *payout.Request, method payout.PaymentMethod, now time.Time) (*payout.Request, error) {
	callCtx, cancel := context.WithTimeout(ctx, s.policy.ExternalCallTimeout)
	defer cancel()
	res, err := s.gateway.Transfer(callCtx, payout.TransferRequest{
		PayoutID:       req.ID,
		Amount:         req.Amount,
		Currency:       req.Currency,
		Destination:    method,
		IdempotencyKey: req.IdempotencyKey,
	})
	if err != nil {
		s.log.WithError(err).WithField("payout_id", req.ID).Warn("Payout transfer did not complete, left processing")
		return req, fmt.Errorf("transfer for payout %d: %w", req.ID, err)
	}
	return s.applyResult(ctx, req.ID, res, now)
}

// applyResult records a gateway outcome on a processing payout.
func (s *PayoutService) applyResult(ctx context.Context, payoutID int64, res payout.TransferResult, now time.Time) (*payout.Request, error) {
	var req *payout.Request
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx store.Tx) error {
		var err error
		req, err = tx.Payouts().GetForUpdate(ctx, payoutID)
		if err != nil {
			return err
		}
		if req.Status != payout.StatusProcessing {
			return nil
		}
		switch res.State {
		case payout.TransferPaid:
			err = req.MarkPaid(res.Reference, now)
		case payout.TransferFailed:
			err = req.MarkFailed(res.FailureReason, now)
		default:
			if res.Reference == "" || req.GatewayReference == res.Reference {
				return nil
			}
			req.GatewayReference = res.Reference
			req.UpdatedAt = now
			return tx.Payouts().Update(ctx, req)
		}
		if err != nil {
			return err
		}
		if err := tx.Payouts().Update(ctx, req); err != nil {
			return err
		}
		return s.notifyStatus(ctx, tx, req, now)
	})
	if err != nil {
		return nil, err
	}
	s.log.WithFields(logrus.Fields{"payout_id": payoutID, "status": string(req.Status)}).Info("Payout transfer recorded")
	return req, nil
}

func (s *PayoutService) notifyStatus(ctx context.Context, tx store.Tx, req *payout.Request, now time.Time) error {
	return notify(ctx, tx, now, notification.PayoutStatusChanged{
		PayoutID:      req.ID,
		Status:        string(req.Status),
		Amount:        req.Amount,
		Currency:      req.Currency,
		FailureReason: req.FailureReason,
	}, req.TeacherID)
}

// RunAutomaticPayouts pays out the full available balance of every
// teacher with automatic payouts, a verified method and a balance of at
// least MinAutoPayout. One teacher's failure does not stop the others.
func (s *PayoutService) RunAutomaticPayouts(ctx context.Context, now time.Time) SweepReport {
	report := newReport(SweepAutoPayout, now)

	var teacherIDs []int64
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx store.Tx) error {
		teachers, err := tx.Teachers().ListAutomaticPayouts(ctx)
		if err != nil {
			return err
		}
		for _, t := range teachers {
			teacherIDs = append(teacherIDs, t.UserID)
		}
		return nil
	})
	if err != nil {
		report.failed("list automatic payout teachers: %v", err)
		return report.Result()
	}

	for _, teacherID := range teacherIDs {
		if ctx.Err() != nil {
			break
		}
		err := s.autoPayout(ctx, teacherID, now)
		switch {
		case err == nil:
			report.succeeded()
		case errors.Is(err, errSkip), errors.Is(err, payout.ErrNoVerifiedMethod):
			report.skipped()
		default:
			s.log.WithError(err).WithField("teacher_id", teacherID).Error("Automatic payout failed")
			report.failed("teacher %d: %v", teacherID, err)
		}
	}
	return report.Result()
}

func (s *PayoutService) autoPayout(ctx context.Context, teacherID int64, now time.Time) error {
	balance, err := s.CalculateAvailableBalance(ctx, teacherID)
	if err != nil {
		return err
	}
	if balance < s.policy.MinAutoPayout || balance <= 0 {
		return errSkip
	}
	var methodID int64
	err = s.store.WithinTx(ctx, func(ctx context.Context, tx store.Tx) error {
		method, err := tx.PaymentMethods().GetVerified(ctx, teacherID)
		if err != nil {
			return err
		}
		methodID = method.ID
		return nil
	})
	if err != nil {
		return err
	}
	req, err := s.RequestPayout(ctx, teacherID, balance, methodID, now)
	if err != nil {
		if errors.Is(err, payout.ErrInsufficientBalance) {
			return errSkip
		}
		return err
	}
	if _, err := s.approveAutomatic(ctx, req.ID, now); err != nil {
		return err
	}
	_, err = s.ProcessPayout(ctx, req.ID, now)
	return err
}

// ReconcileProcessing finishes payouts left processing by a timed out or
// pending transfer. Payouts without a gateway reference are resubmitted
// with their original idempotency key.
func (s *PayoutService) ReconcileProcessing(ctx context.Context, now time.Time) SweepReport {
	report := newReport(SweepPayoutReconcile, now)

	var pending []*payout.Request
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx store.Tx) error {
		var err error
		pending, err = tx.Payouts().ListByStatus(ctx, payout.StatusProcessing, s.policy.SweepBatchSize)
		return err
	})
	if err != nil {
		report.failed("list processing payouts: %v", err)
		return report.Result()
	}

	for _, req := range pending {
		if ctx.Err() != nil {
			break
		}
		updated, err := s.reconcile(ctx, req, now)
		switch {
		case err != nil:
			s.log.WithError(err).WithField("payout_id", req.ID).Error("Payout reconciliation failed")
			report.failed("payout %d: %v", req.ID, err)
		case updated.Status == payout.StatusProcessing:
			report.skipped()
		default:
			report.succeeded()
		}
	}
	return report.Result()
}

func (s *PayoutService) reconcile(ctx context.Context, req *payout.Request, now time.Time) (*payout.Request, error) {
	if req.GatewayReference == "" {
		var method *payout.PaymentMethod
		err := s.store.WithinTx(ctx, func(ctx context.Context, tx store.Tx) error {
			var err error
			method, err = tx.PaymentMethods().GetByID(ctx, req.PaymentMethodID)
			return err
		})
		if err != nil {
			return nil, err
		}
		return s.transfer(ctx, req, *method, now)
	}

	callCtx, cancel := context.WithTimeout(ctx, s.policy.ExternalCallTimeout)
	defer cancel()
	res, err := s.gateway.Status(callCtx, req.GatewayReference)
	if err != nil {
		return nil, fmt.Errorf("status of transfer %s: %w", req.GatewayReference, err)
	}
	return s.applyResult(ctx, req.ID, res, now)
}

// Pending lists payouts awaiting manual approval.
func (s *PayoutService) Pending(ctx context.Context) ([]*payout.Request, error) {
	var reqs []*payout.Request
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx store.Tx) error {
		var err error
		reqs, err = tx.Payouts().ListByStatus(ctx, payout.StatusRequested, s.policy.SweepBatchSize)
		return err
	})
	return reqs, err
}

func (s *PayoutService) History(ctx context.Context, teacherID int64) ([]*payout.Request, error) {
	var reqs []*payout.Request
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx store.Tx) error {
		var err error
		reqs, err = tx.Payouts().ListByTeacher(ctx, teacherID)
		return err
	})
	return reqs, err
}
