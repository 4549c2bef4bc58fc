package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"tutor_booking_engine/internal/domain/escrow"
	"tutor_booking_engine/internal/domain/payout"
	"tutor_booking_engine/internal/domain/store"
	"tutor_booking_engine/internal/domain/user"
)

var ErrAdminNotAuthorized = fmt.Errorf("performing user is not authorized as an admin")

// AdminService gates operator actions behind the configured admin
// Telegram account.
type AdminService struct {
	store           store.Store
	payouts         *PayoutService
	escrow          *EscrowService
	sweeps          *Sweeps
	adminTelegramID int64
}

func NewAdminService(s store.Store, payouts *PayoutService, escrow *EscrowService, sweeps *Sweeps, adminID int64) *AdminService {
	return &AdminService{
		store:           s,
		payouts:         payouts,
		escrow:          escrow,
		sweeps:          sweeps,
		adminTelegramID: adminID,
	}
}

// adminUser resolves the admin's user row so approvals record a real
// approver ID.
func (s *AdminService) adminUser(ctx context.Context, performingTelegramID int64) (*user.User, error) {
	if performingTelegramID != s.adminTelegramID {
		return nil, ErrAdminNotAuthorized
	}
	var u *user.User
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx store.Tx) error {
		var err error
		u, err = tx.Users().GetByTelegramID(ctx, performingTelegramID)
		return err
	})
	if err != nil {
		if errors.Is(err, user.ErrNotFound) {
			return nil, fmt.Errorf("%w: admin telegram account has no user record", ErrAdminNotAuthorized)
		}
		return nil, fmt.Errorf("failed to look up admin user: %w", err)
	}
	if u.Role != user.RoleAdmin {
		return nil, ErrAdminNotAuthorized
	}
	return u, nil
}

// ApprovePayout approves a requested payout and submits it to the gateway.
func (s *AdminService) ApprovePayout(ctx context.Context, performingTelegramID, payoutID int64, now time.Time) (*payout.Request, error) {
	admin, err := s.adminUser(ctx, performingTelegramID)
	if err != nil {
		return nil, err
	}
	if _, err := s.payouts.ApprovePayout(ctx, payoutID, admin.ID, now); err != nil {
		return nil, err
	}
	return s.payouts.ProcessPayout(ctx, payoutID, now)
}

func (s *AdminService) PendingPayouts(ctx context.Context, performingTelegramID int64) ([]*payout.Request, error) {
	if _, err := s.adminUser(ctx, performingTelegramID); err != nil {
		return nil, err
	}
	return s.payouts.Pending(ctx)
}

// ResolveDispute settles a disputed booking with teacherPercent to the
// teacher and the rest refunded.
func (s *AdminService) ResolveDispute(ctx context.Context, performingTelegramID, bookingID int64, teacherPercent int, now time.Time) (*escrow.Entry, error) {
	if _, err := s.adminUser(ctx, performingTelegramID); err != nil {
		return nil, err
	}
	reason := fmt.Sprintf("Dispute resolved by admin: %d%% to teacher", teacherPercent)
	return s.escrow.ResolveDispute(ctx, bookingID, teacherPercent, reason, now)
}

func (s *AdminService) RunSweep(ctx context.Context, performingTelegramID int64, name string, now time.Time) (SweepReport, error) {
	if _, err := s.adminUser(ctx, performingTelegramID); err != nil {
		return SweepReport{}, err
	}
	return s.sweeps.Run(ctx, name, now)
}

func (s *AdminService) SweepNames() []string {
	return s.sweeps.Names()
}
