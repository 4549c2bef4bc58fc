package payout

import (
	"database/sql"
	"fmt"
	"time"
)

var (
	ErrNotFound            = fmt.Errorf("payout request not found")
	ErrInvalidTransition   = fmt.Errorf("invalid payout status transition")
	ErrInsufficientBalance = fmt.Errorf("requested amount exceeds available balance")
	ErrInvalidAmount       = fmt.Errorf("payout amount must be positive")
	ErrNoVerifiedMethod    = fmt.Errorf("no verified payment method")
	ErrMethodNotFound      = fmt.Errorf("payment method not found")
	ErrMethodNotVerified   = fmt.Errorf("payment method is not verified")
	ErrSystemApproval      = fmt.Errorf("system approval is reserved for automatic payouts")
)

// SystemApprover is the approver ID recorded for automatic payouts.
const SystemApprover int64 = 0

type Status string

const (
	StatusRequested  Status = "requested"
	StatusApproved   Status = "approved"
	StatusProcessing Status = "processing"
	StatusPaid       Status = "paid"
	StatusFailed     Status = "failed"
)

// CommittedStatuses count against a teacher's available balance.
var CommittedStatuses = []Status{StatusRequested, StatusApproved, StatusProcessing, StatusPaid}

// Request drains part of a teacher's released earnings to a payment method.
type Request struct {
	ID               int64
	TeacherID        int64
	Amount           int64
	Currency         string
	PaymentMethodID  int64
	Status           Status
	ApprovedBy       sql.NullInt64
	IdempotencyKey   string
	GatewayReference string
	FailureReason    string
	RequestedAt      time.Time
	ApprovedAt       sql.NullTime
	ProcessedAt      sql.NullTime
	UpdatedAt        time.Time
}

func (r *Request) move(from, to Status, now time.Time) error {
	if r.Status != from {
		return fmt.Errorf("%w: payout %d is %s, want %s", ErrInvalidTransition, r.ID, r.Status, from)
	}
	r.Status = to
	r.UpdatedAt = now
	return nil
}

func (r *Request) Approve(approverID int64, now time.Time) error {
	if err := r.move(StatusRequested, StatusApproved, now); err != nil {
		return err
	}
	r.ApprovedBy = sql.NullInt64{Int64: approverID, Valid: true}
	r.ApprovedAt = sql.NullTime{Time: now, Valid: true}
	return nil
}

// ApprovedBySystem is true for automatic payouts.
func (r *Request) ApprovedBySystem() bool {
	return r.ApprovedBy.Valid && r.ApprovedBy.Int64 == SystemApprover
}

func (r *Request) StartProcessing(now time.Time) error {
	return r.move(StatusApproved, StatusProcessing, now)
}

func (r *Request) MarkPaid(reference string, now time.Time) error {
	if err := r.move(StatusProcessing, StatusPaid, now); err != nil {
		return err
	}
	if reference != "" {
		r.GatewayReference = reference
	}
	r.ProcessedAt = sql.NullTime{Time: now, Valid: true}
	return nil
}

func (r *Request) MarkFailed(reason string, now time.Time) error {
	if err := r.move(StatusProcessing, StatusFailed, now); err != nil {
		return err
	}
	r.FailureReason = reason
	r.ProcessedAt = sql.NullTime{Time: now, Valid: true}
	return nil
}

// PaymentMethod is a destination a teacher registered for payouts.
// ExternalRef identifies it at the gateway (e.g. a recipient ID).
type PaymentMethod struct {
	ID          int64
	TeacherID   int64
	Kind        string
	ExternalRef string
	Verified    bool
	CreatedAt   time.Time
}
