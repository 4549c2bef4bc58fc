package app

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"tutor_booking_engine/internal/domain/payout"
	"tutor_booking_engine/internal/domain/store"
	"tutor_booking_engine/internal/domain/teacher"
	"tutor_booking_engine/internal/domain/user"
	"tutor_booking_engine/internal/domain/wallet"
)

var ErrInvalidTopUp = fmt.Errorf("top-up amount must be positive")

// AccountService registers users, teachers and payment methods and funds
// wallets. It is the entry point for onboarding and dev seeding.
type AccountService struct {
	store store.Store
	log   *logrus.Entry
}

func NewAccountService(s store.Store, log *logrus.Entry) *AccountService {
	return &AccountService{store: s, log: log.WithField("component", "accounts")}
}

func (s *AccountService) RegisterUser(ctx context.Context, u *user.User, now time.Time) error {
	u.CreatedAt = now
	return s.store.WithinTx(ctx, func(ctx context.Context, tx store.Tx) error {
		if u.GuardianID.Valid {
			if _, err := tx.Users().GetByID(ctx, u.GuardianID.Int64); err != nil {
				return fmt.Errorf("guardian %d: %w", u.GuardianID.Int64, err)
			}
		}
		return tx.Users().Create(ctx, u)
	})
}

// RegisterTeacher creates the user row and the teacher profile together.
func (s *AccountService) RegisterTeacher(ctx context.Context, u *user.User, t *teacher.Teacher, now time.Time) error {
	if _, err := t.Location(); err != nil {
		return err
	}
	u.Role = user.RoleTeacher
	u.CreatedAt = now
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx store.Tx) error {
		if err := tx.Users().Create(ctx, u); err != nil {
			return err
		}
		t.UserID = u.ID
		t.CreatedAt = now
		t.UpdatedAt = now
		return tx.Teachers().Create(ctx, t)
	})
	if err != nil {
		return err
	}
	s.log.WithField("teacher_id", t.UserID).Info("Teacher registered")
	return nil
}

func (s *AccountService) AddPaymentMethod(ctx context.Context, m *payout.PaymentMethod, now time.Time) error {
	m.CreatedAt = now
	return s.store.WithinTx(ctx, func(ctx context.Context, tx store.Tx) error {
		if _, err := tx.Teachers().GetByID(ctx, m.TeacherID); err != nil {
			return err
		}
		return tx.PaymentMethods().Create(ctx, m)
	})
}

// TopUp credits a user's wallet with an external deposit.
func (s *AccountService) TopUp(ctx context.Context, userID, amount int64, currency string, now time.Time) error {
	if amount <= 0 {
		return ErrInvalidTopUp
	}
	return s.store.WithinTx(ctx, func(ctx context.Context, tx store.Tx) error {
		if _, err := tx.Users().GetByID(ctx, userID); err != nil {
			return err
		}
		return tx.Wallets().Credit(ctx, wallet.Transaction{
			UserID:    userID,
			Direction: wallet.Credit,
			Amount:    amount,
			Currency:  currency,
			Reason:    "top-up",
			BookingID: sql.NullInt64{},
			CreatedAt: now,
		})
	})
}

func (s *AccountService) Balance(ctx context.Context, userID int64, currency string) (int64, error) {
	var balance int64
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx store.Tx) error {
		var err error
		balance, err = tx.Wallets().Balance(ctx, userID, currency)
		return err
	})
	return balance, err
}

func (s *AccountService) UserByTelegramID(ctx context.Context, telegramID int64) (*user.User, error) {
	var u *user.User
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx store.Tx) error {
		var err error
		u, err = tx.Users().GetByTelegramID(ctx, telegramID)
		return err
	})
	return u, err
}
