package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"tutor_booking_engine/internal/domain/escrow"
)

type PostgresEscrowRepository struct {
	q querier
}

const escrowColumns = `id, booking_id, teacher_id, payer_user_id, amount, currency, status,
       teacher_amount, refunded_amount, held_at, dispute_window_ends_at, released_at,
       disputed, disputed_by, dispute_reason, resolution_reason, updated_at`

func scanEscrow(row rowScanner) (*escrow.Entry, error) {
	e := &escrow.Entry{}
	err := row.Scan(
		&e.ID, &e.BookingID, &e.TeacherID, &e.PayerUserID, &e.Amount, &e.Currency, &e.Status,
		&e.TeacherAmount, &e.RefundedAmount, &e.HeldAt, &e.DisputeWindowEndsAt, &e.ReleasedAt,
		&e.Disputed, &e.DisputedBy, &e.DisputeReason, &e.ResolutionReason, &e.UpdatedAt,
	)
	return e, err
}

func (r *PostgresEscrowRepository) Create(ctx context.Context, e *escrow.Entry) error {
	query := `INSERT INTO escrow_entries (booking_id, teacher_id, payer_user_id, amount, currency, status, held_at, updated_at)
               VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
               RETURNING id`
	err := r.q.QueryRowContext(ctx, query, e.BookingID, e.TeacherID, e.PayerUserID, e.Amount, e.Currency, e.Status, e.HeldAt, e.UpdatedAt).Scan(&e.ID)
	if err != nil {
		return fmt.Errorf("error creating escrow entry: %w", err)
	}
	return nil
}

func (r *PostgresEscrowRepository) get(ctx context.Context, query string, bookingID int64) (*escrow.Entry, error) {
	e, err := scanEscrow(r.q.QueryRowContext(ctx, query, bookingID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, escrow.ErrNotFound
		}
		return nil, fmt.Errorf("error getting escrow for booking %d: %w", bookingID, err)
	}
	return e, nil
}

func (r *PostgresEscrowRepository) GetByBookingID(ctx context.Context, bookingID int64) (*escrow.Entry, error) {
	return r.get(ctx, `SELECT `+escrowColumns+` FROM escrow_entries WHERE booking_id = $1`, bookingID)
}

func (r *PostgresEscrowRepository) GetForUpdate(ctx context.Context, bookingID int64) (*escrow.Entry, error) {
	return r.get(ctx, `SELECT `+escrowColumns+` FROM escrow_entries WHERE booking_id = $1 FOR UPDATE`, bookingID)
}

func (r *PostgresEscrowRepository) Update(ctx context.Context, e *escrow.Entry) error {
	query := `UPDATE escrow_entries SET
                   status = $1, teacher_amount = $2, refunded_amount = $3, dispute_window_ends_at = $4,
                   released_at = $5, disputed = $6, disputed_by = $7, dispute_reason = $8,
                   resolution_reason = $9, updated_at = $10
               WHERE id = $11`
	res, err := r.q.ExecContext(ctx, query,
		e.Status, e.TeacherAmount, e.RefundedAmount, e.DisputeWindowEndsAt,
		e.ReleasedAt, e.Disputed, e.DisputedBy, e.DisputeReason,
		e.ResolutionReason, e.UpdatedAt, e.ID,
	)
	if err != nil {
		return fmt.Errorf("error updating escrow entry: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return escrow.ErrNotFound
	}
	return nil
}

func (r *PostgresEscrowRepository) ListReleasable(ctx context.Context, now time.Time, limit int) ([]int64, error) {
	rows, err := r.q.QueryContext(ctx, `SELECT booking_id FROM escrow_entries
               WHERE status = $1 AND NOT disputed AND dispute_window_ends_at <= $2
               ORDER BY dispute_window_ends_at, id
               LIMIT $3`, escrow.StatusHeld, now, limit)
	if err != nil {
		return nil, fmt.Errorf("error listing releasable escrow: %w", err)
	}
	defer rows.Close()

	ids := make([]int64, 0)
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("error scanning releasable escrow: %w", err)
		}
		ids = append(ids, id)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating releasable escrow: %w", err)
	}
	return ids, nil
}

func (r *PostgresEscrowRepository) SumTeacherEarnings(ctx context.Context, teacherID int64) (int64, error) {
	var total int64
	err := r.q.QueryRowContext(ctx, `SELECT COALESCE(SUM(teacher_amount), 0) FROM escrow_entries
               WHERE teacher_id = $1 AND status <> $2`, teacherID, escrow.StatusHeld).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("error summing teacher earnings: %w", err)
	}
	return total, nil
}
