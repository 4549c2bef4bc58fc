package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"tutor_booking_engine/internal/domain/wallet"
)

// PostgresWalletRepository keeps a balance row per user and currency and
// appends a wallet_transactions row for every movement.
type PostgresWalletRepository struct {
	q querier
}

func (r *PostgresWalletRepository) Balance(ctx context.Context, userID int64, currency string) (int64, error) {
	var balance int64
	err := r.q.QueryRowContext(ctx, `SELECT balance FROM wallets WHERE user_id = $1 AND currency = $2`, userID, currency).Scan(&balance)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, nil
		}
		return 0, fmt.Errorf("error reading wallet balance: %w", err)
	}
	return balance, nil
}

func (r *PostgresWalletRepository) Debit(ctx context.Context, tx wallet.Transaction) error {
	if tx.Amount == 0 {
		return nil
	}
	var balance int64
	err := r.q.QueryRowContext(ctx, `UPDATE wallets SET balance = balance - $1
               WHERE user_id = $2 AND currency = $3 AND balance >= $1
               RETURNING balance`, tx.Amount, tx.UserID, tx.Currency).Scan(&balance)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return wallet.ErrInsufficientFunds
		}
		return fmt.Errorf("error debiting wallet: %w", err)
	}
	tx.Direction = wallet.Debit
	return r.record(ctx, tx)
}

func (r *PostgresWalletRepository) Credit(ctx context.Context, tx wallet.Transaction) error {
	if tx.Amount == 0 {
		return nil
	}
	_, err := r.q.ExecContext(ctx, `INSERT INTO wallets (user_id, currency, balance) VALUES ($1, $2, $3)
               ON CONFLICT (user_id, currency) DO UPDATE SET balance = wallets.balance + EXCLUDED.balance`,
		tx.UserID, tx.Currency, tx.Amount)
	if err != nil {
		return fmt.Errorf("error crediting wallet: %w", err)
	}
	tx.Direction = wallet.Credit
	return r.record(ctx, tx)
}

func (r *PostgresWalletRepository) record(ctx context.Context, tx wallet.Transaction) error {
	_, err := r.q.ExecContext(ctx, `INSERT INTO wallet_transactions (user_id, direction, amount, currency, reason, booking_id, created_at)
               VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		tx.UserID, tx.Direction, tx.Amount, tx.Currency, tx.Reason, tx.BookingID, tx.CreatedAt)
	if err != nil {
		return fmt.Errorf("error recording wallet transaction: %w", err)
	}
	return nil
}

func (r *PostgresWalletRepository) ListTransactions(ctx context.Context, userID int64) ([]wallet.Transaction, error) {
	rows, err := r.q.QueryContext(ctx, `SELECT id, user_id, direction, amount, currency, reason, booking_id, created_at
               FROM wallet_transactions WHERE user_id = $1 ORDER BY created_at, id`, userID)
	if err != nil {
		return nil, fmt.Errorf("error listing wallet transactions: %w", err)
	}
	defer rows.Close()

	txs := make([]wallet.Transaction, 0)
	for rows.Next() {
		var t wallet.Transaction
		if err := rows.Scan(&t.ID, &t.UserID, &t.Direction, &t.Amount, &t.Currency, &t.Reason, &t.BookingID, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("error scanning wallet transaction: %w", err)
		}
		txs = append(txs, t)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating wallet transactions: %w", err)
	}
	return txs, nil
}
