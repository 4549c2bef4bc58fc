package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"tutor_booking_engine/internal/domain/payout"
)

type PostgresPayoutRepository struct {
	q querier
}

const payoutColumns = `id, teacher_id, amount, currency, payment_method_id, status, approved_by,
       idempotency_key, gateway_reference, failure_reason, requested_at, approved_at, processed_at, updated_at`

func scanPayout(row rowScanner) (*payout.Request, error) {
	p := &payout.Request{}
	err := row.Scan(
		&p.ID, &p.TeacherID, &p.Amount, &p.Currency, &p.PaymentMethodID, &p.Status, &p.ApprovedBy,
		&p.IdempotencyKey, &p.GatewayReference, &p.FailureReason, &p.RequestedAt, &p.ApprovedAt, &p.ProcessedAt, &p.UpdatedAt,
	)
	return p, err
}

func (r *PostgresPayoutRepository) Create(ctx context.Context, p *payout.Request) error {
	query := `INSERT INTO payout_requests (teacher_id, amount, currency, payment_method_id, status, idempotency_key, requested_at, updated_at)
               VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
               RETURNING id`
	err := r.q.QueryRowContext(ctx, query, p.TeacherID, p.Amount, p.Currency, p.PaymentMethodID, p.Status, p.IdempotencyKey, p.RequestedAt, p.UpdatedAt).Scan(&p.ID)
	if err != nil {
		return fmt.Errorf("error creating payout request: %w", err)
	}
	return nil
}

func (r *PostgresPayoutRepository) get(ctx context.Context, query string, id int64) (*payout.Request, error) {
	p, err := scanPayout(r.q.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, payout.ErrNotFound
		}
		return nil, fmt.Errorf("error getting payout %d: %w", id, err)
	}
	return p, nil
}

func (r *PostgresPayoutRepository) GetByID(ctx context.Context, id int64) (*payout.Request, error) {
	return r.get(ctx, `SELECT `+payoutColumns+` FROM payout_requests WHERE id = $1`, id)
}

func (r *PostgresPayoutRepository) GetForUpdate(ctx context.Context, id int64) (*payout.Request, error) {
	return r.get(ctx, `SELECT `+payoutColumns+` FROM payout_requests WHERE id = $1 FOR UPDATE`, id)
}

func (r *PostgresPayoutRepository) Update(ctx context.Context, p *payout.Request) error {
	query := `UPDATE payout_requests SET
                   status = $1, approved_by = $2, gateway_reference = $3, failure_reason = $4,
                   approved_at = $5, processed_at = $6, updated_at = $7
               WHERE id = $8`
	res, err := r.q.ExecContext(ctx, query,
		p.Status, p.ApprovedBy, p.GatewayReference, p.FailureReason,
		p.ApprovedAt, p.ProcessedAt, p.UpdatedAt, p.ID,
	)
	if err != nil {
		return fmt.Errorf("error updating payout request: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return payout.ErrNotFound
	}
	return nil
}

func (r *PostgresPayoutRepository) SumCommitted(ctx context.Context, teacherID int64) (int64, error) {
	var total int64
	err := r.q.QueryRowContext(ctx, `SELECT COALESCE(SUM(amount), 0) FROM payout_requests
               WHERE teacher_id = $1 AND status = ANY($2)`,
		teacherID, pq.Array(statusStrings(payout.CommittedStatuses))).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("error summing committed payouts: %w", err)
	}
	return total, nil
}

func (r *PostgresPayoutRepository) ListByStatus(ctx context.Context, status payout.Status, limit int) ([]*payout.Request, error) {
	return r.list(ctx, `SELECT `+payoutColumns+` FROM payout_requests
               WHERE status = $1 ORDER BY requested_at, id LIMIT $2`, status, limit)
}

func (r *PostgresPayoutRepository) ListByTeacher(ctx context.Context, teacherID int64) ([]*payout.Request, error) {
	return r.list(ctx, `SELECT `+payoutColumns+` FROM payout_requests
               WHERE teacher_id = $1 ORDER BY requested_at DESC, id DESC`, teacherID)
}

func (r *PostgresPayoutRepository) list(ctx context.Context, query string, args ...any) ([]*payout.Request, error) {
	rows, err := r.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("error listing payouts: %w", err)
	}
	defer rows.Close()

	reqs := make([]*payout.Request, 0)
	for rows.Next() {
		p, err := scanPayout(rows)
		if err != nil {
			return nil, fmt.Errorf("error scanning payout: %w", err)
		}
		reqs = append(reqs, p)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating payouts: %w", err)
	}
	return reqs, nil
}

type PostgresPaymentMethodRepository struct {
	q querier
}

const methodColumns = `id, teacher_id, kind, external_ref, verified, created_at`

func scanMethod(row rowScanner) (*payout.PaymentMethod, error) {
	m := &payout.PaymentMethod{}
	err := row.Scan(&m.ID, &m.TeacherID, &m.Kind, &m.ExternalRef, &m.Verified, &m.CreatedAt)
	return m, err
}

func (r *PostgresPaymentMethodRepository) Create(ctx context.Context, m *payout.PaymentMethod) error {
	err := r.q.QueryRowContext(ctx, `INSERT INTO payment_methods (teacher_id, kind, external_ref, verified)
               VALUES ($1, $2, $3, $4) RETURNING id, created_at`,
		m.TeacherID, m.Kind, m.ExternalRef, m.Verified).Scan(&m.ID, &m.CreatedAt)
	if err != nil {
		return fmt.Errorf("error creating payment method: %w", err)
	}
	return nil
}

func (r *PostgresPaymentMethodRepository) GetByID(ctx context.Context, id int64) (*payout.PaymentMethod, error) {
	m, err := scanMethod(r.q.QueryRowContext(ctx, `SELECT `+methodColumns+` FROM payment_methods WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, payout.ErrMethodNotFound
		}
		return nil, fmt.Errorf("error getting payment method: %w", err)
	}
	return m, nil
}

func (r *PostgresPaymentMethodRepository) GetVerified(ctx context.Context, teacherID int64) (*payout.PaymentMethod, error) {
	m, err := scanMethod(r.q.QueryRowContext(ctx, `SELECT `+methodColumns+` FROM payment_methods
               WHERE teacher_id = $1 AND verified = TRUE ORDER BY created_at DESC, id DESC LIMIT 1`, teacherID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, payout.ErrNoVerifiedMethod
		}
		return nil, fmt.Errorf("error getting verified payment method: %w", err)
	}
	return m, nil
}
