package database

import (
	"context"
	"fmt"

	"tutor_booking_engine/internal/domain/reminder"
)

type PostgresReminderRepository struct {
	q querier
}

// Insert relies on the (booking_id, reminder_type) primary key; a second
// insert for the same pair affects no rows.
func (r *PostgresReminderRepository) Insert(ctx context.Context, rec reminder.Record) (bool, error) {
	res, err := r.q.ExecContext(ctx, `INSERT INTO reminder_records (booking_id, reminder_type, sent_at)
               VALUES ($1, $2, $3)
               ON CONFLICT (booking_id, reminder_type) DO NOTHING`, rec.BookingID, rec.Type, rec.SentAt)
	if err != nil {
		if hasCode(err, codeUniqueViolation) {
			return false, nil
		}
		return false, fmt.Errorf("error inserting reminder record: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("error reading reminder insert result: %w", err)
	}
	return n == 1, nil
}

func (r *PostgresReminderRepository) Exists(ctx context.Context, bookingID int64, t reminder.Type) (bool, error) {
	var exists bool
	err := r.q.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM reminder_records WHERE booking_id = $1 AND reminder_type = $2)`,
		bookingID, t).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("error checking reminder record: %w", err)
	}
	return exists, nil
}

func (r *PostgresReminderRepository) DeleteForBooking(ctx context.Context, bookingID int64) error {
	if _, err := r.q.ExecContext(ctx, `DELETE FROM reminder_records WHERE booking_id = $1`, bookingID); err != nil {
		return fmt.Errorf("error deleting reminder records: %w", err)
	}
	return nil
}
