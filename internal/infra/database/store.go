package database

import (
	"context"
	"database/sql"
	"fmt"

	"tutor_booking_engine/internal/domain/availability"
	"tutor_booking_engine/internal/domain/booking"
	"tutor_booking_engine/internal/domain/escrow"
	"tutor_booking_engine/internal/domain/notification"
	"tutor_booking_engine/internal/domain/payout"
	"tutor_booking_engine/internal/domain/reminder"
	"tutor_booking_engine/internal/domain/store"
	"tutor_booking_engine/internal/domain/teacher"
	"tutor_booking_engine/internal/domain/user"
	"tutor_booking_engine/internal/domain/wallet"
)

// Store runs units of work in Postgres transactions at READ COMMITTED.
// Serialisation comes from explicit row locks and the bookings exclusion
// constraint.
type Store struct {
	db *sql.DB
}

func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, tx store.Tx) error) error {
	txn, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer txn.Rollback() // no-op after Commit

	if err := fn(ctx, &pgTx{q: txn}); err != nil {
		return err
	}
	if err := txn.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

type pgTx struct {
	q querier
}

func (t *pgTx) Users() user.Repository                  { return &PostgresUserRepository{q: t.q} }
func (t *pgTx) Teachers() teacher.Repository            { return &PostgresTeacherRepository{q: t.q} }
func (t *pgTx) Availability() availability.Repository   { return &PostgresAvailabilityRepository{q: t.q} }
func (t *pgTx) Bookings() booking.Repository            { return &PostgresBookingRepository{q: t.q} }
func (t *pgTx) Escrow() escrow.Repository               { return &PostgresEscrowRepository{q: t.q} }
func (t *pgTx) Wallets() wallet.Repository              { return &PostgresWalletRepository{q: t.q} }
func (t *pgTx) Reminders() reminder.Repository          { return &PostgresReminderRepository{q: t.q} }
func (t *pgTx) Payouts() payout.Repository              { return &PostgresPayoutRepository{q: t.q} }
func (t *pgTx) PaymentMethods() payout.MethodRepository { return &PostgresPaymentMethodRepository{q: t.q} }
func (t *pgTx) Outbox() notification.Outbox             { return &PostgresOutboxRepository{q: t.q} }
