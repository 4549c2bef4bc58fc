package database

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"time"

	"tutor_booking_engine/internal/domain/notification"
)

// PostgresOutboxRepository stores notification_outbox rows. Claims use
// SKIP LOCKED plus a lease so concurrent relays never share a message.
type PostgresOutboxRepository struct {
	q querier
}

const outboxColumns = `id, recipient_user_id, kind, payload, subject, body, send_after,
       status, attempts, last_error, created_at, delivered_at`

func scanMessage(row rowScanner) (*notification.Message, error) {
	m := &notification.Message{}
	var (
		payload     []byte
		deliveredAt sql.NullTime
	)
	err := row.Scan(&m.ID, &m.RecipientUserID, &m.Kind, &payload, &m.Subject, &m.Body, &m.SendAfter,
		&m.Status, &m.Attempts, &m.LastError, &m.CreatedAt, &deliveredAt)
	if err != nil {
		return nil, err
	}
	m.Payload = payload
	if deliveredAt.Valid {
		m.DeliveredAt = deliveredAt.Time
	}
	return m, nil
}

func (r *PostgresOutboxRepository) Enqueue(ctx context.Context, m *notification.Message) error {
	_, err := r.q.ExecContext(ctx, `INSERT INTO notification_outbox
                   (id, recipient_user_id, kind, payload, subject, body, send_after, status, attempts, created_at)
               VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		m.ID, m.RecipientUserID, m.Kind, []byte(m.Payload), m.Subject, m.Body, m.SendAfter, m.Status, m.Attempts, m.CreatedAt)
	if err != nil {
		return fmt.Errorf("error enqueueing notification: %w", err)
	}
	return nil
}

func (r *PostgresOutboxRepository) ClaimDue(ctx context.Context, now time.Time, lease time.Duration, limit int) ([]*notification.Message, error) {
	rows, err := r.q.QueryContext(ctx, `UPDATE notification_outbox SET locked_until = $2
               WHERE id IN (
                   SELECT id FROM notification_outbox
                   WHERE status = $3 AND send_after <= $1 AND (locked_until IS NULL OR locked_until <= $1)
                   ORDER BY send_after, created_at
                   LIMIT $4
                   FOR UPDATE SKIP LOCKED
               )
               RETURNING `+outboxColumns,
		now, now.Add(lease), notification.MessagePending, limit)
	if err != nil {
		return nil, fmt.Errorf("error claiming notifications: %w", err)
	}
	defer rows.Close()

	msgs := make([]*notification.Message, 0)
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("error scanning notification: %w", err)
		}
		msgs = append(msgs, m)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating notifications: %w", err)
	}
	// RETURNING does not preserve the subquery order.
	sort.SliceStable(msgs, func(i, j int) bool { return msgs[i].SendAfter.Before(msgs[j].SendAfter) })
	return msgs, nil
}

func (r *PostgresOutboxRepository) MarkDelivered(ctx context.Context, id string, at time.Time) error {
	_, err := r.q.ExecContext(ctx, `UPDATE notification_outbox
               SET status = $1, delivered_at = $2, attempts = attempts + 1, locked_until = NULL
               WHERE id = $3`, notification.MessageDelivered, at, id)
	if err != nil {
		return fmt.Errorf("error marking notification delivered: %w", err)
	}
	return nil
}

func (r *PostgresOutboxRepository) MarkFailed(ctx context.Context, id string, lastErr string, retryAt time.Time, dead bool) error {
	status := notification.MessagePending
	if dead {
		status = notification.MessageDead
	}
	_, err := r.q.ExecContext(ctx, `UPDATE notification_outbox
               SET status = $1, attempts = attempts + 1, last_error = $2, send_after = $3, locked_until = NULL
               WHERE id = $4`, status, lastErr, retryAt, id)
	if err != nil {
		return fmt.Errorf("error marking notification failed: %w", err)
	}
	return nil
}

func (r *PostgresOutboxRepository) ListByRecipient(ctx context.Context, userID int64) ([]*notification.Message, error) {
	rows, err := r.q.QueryContext(ctx, `SELECT `+outboxColumns+` FROM notification_outbox
               WHERE recipient_user_id = $1 ORDER BY created_at, id`, userID)
	if err != nil {
		return nil, fmt.Errorf("error listing notifications: %w", err)
	}
	defer rows.Close()

	msgs := make([]*notification.Message, 0)
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("error scanning notification: %w", err)
		}
		msgs = append(msgs, m)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating notifications: %w", err)
	}
	return msgs, nil
}
