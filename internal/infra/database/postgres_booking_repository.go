package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"tutor_booking_engine/internal/domain/availability"
	"tutor_booking_engine/internal/domain/booking"
)

type PostgresBookingRepository struct {
	q querier
}

const bookingColumns = `id, series_id, teacher_id, student_user_id, payer_user_id, subject_id,
       start_time, end_time, status, payment_status, currency, amount, notes,
       teacher_attended, student_attended, no_show_warning_sent_at, cancellation_reason,
       reschedule_start, reschedule_end, reschedule_requested_by,
       completed_at, cancelled_at, created_at, updated_at`

func scanBooking(row rowScanner) (*booking.Booking, error) {
	b := &booking.Booking{}
	err := row.Scan(
		&b.ID, &b.SeriesID, &b.TeacherID, &b.StudentUserID, &b.PayerUserID, &b.SubjectID,
		&b.StartTime, &b.EndTime, &b.Status, &b.PaymentStatus, &b.Currency, &b.Amount, &b.Notes,
		&b.TeacherAttended, &b.StudentAttended, &b.NoShowWarningSentAt, &b.CancellationReason,
		&b.RescheduleStart, &b.RescheduleEnd, &b.RescheduleRequestedBy,
		&b.CompletedAt, &b.CancelledAt, &b.CreatedAt, &b.UpdatedAt,
	)
	return b, err
}

// mapWriteError turns an exclusion violation on bookings_no_overlap into
// the domain's slot-taken error.
func mapWriteError(err error, op string) error {
	if hasCode(err, codeExclusionViolation) {
		return fmt.Errorf("%w: %w", booking.ErrSlotUnavailable, err)
	}
	return fmt.Errorf("error %s booking: %w", op, err)
}

func (r *PostgresBookingRepository) Create(ctx context.Context, b *booking.Booking) error {
	query := `INSERT INTO bookings (series_id, teacher_id, student_user_id, payer_user_id, subject_id,
                   start_time, end_time, status, payment_status, currency, amount, notes, created_at, updated_at)
               VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
               RETURNING id`
	err := r.q.QueryRowContext(ctx, query,
		b.SeriesID, b.TeacherID, b.StudentUserID, b.PayerUserID, b.SubjectID,
		b.StartTime, b.EndTime, b.Status, b.PaymentStatus, b.Currency, b.Amount, b.Notes, b.CreatedAt, b.UpdatedAt,
	).Scan(&b.ID)
	if err != nil {
		return mapWriteError(err, "creating")
	}
	return nil
}

func (r *PostgresBookingRepository) get(ctx context.Context, query string, id int64) (*booking.Booking, error) {
	b, err := scanBooking(r.q.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, booking.ErrNotFound
		}
		return nil, fmt.Errorf("error getting booking %d: %w", id, err)
	}
	return b, nil
}

func (r *PostgresBookingRepository) GetByID(ctx context.Context, id int64) (*booking.Booking, error) {
	return r.get(ctx, `SELECT `+bookingColumns+` FROM bookings WHERE id = $1`, id)
}

func (r *PostgresBookingRepository) GetForUpdate(ctx context.Context, id int64) (*booking.Booking, error) {
	return r.get(ctx, `SELECT `+bookingColumns+` FROM bookings WHERE id = $1 FOR UPDATE`, id)
}

func (r *PostgresBookingRepository) Update(ctx context.Context, b *booking.Booking) error {
	query := `UPDATE bookings SET
                   start_time = $1, end_time = $2, status = $3, payment_status = $4,
                   teacher_attended = $5, student_attended = $6, no_show_warning_sent_at = $7,
                   cancellation_reason = $8, reschedule_start = $9, reschedule_end = $10,
                   reschedule_requested_by = $11, completed_at = $12, cancelled_at = $13, updated_at = $14
               WHERE id = $15`
	res, err := r.q.ExecContext(ctx, query,
		b.StartTime, b.EndTime, b.Status, b.PaymentStatus,
		b.TeacherAttended, b.StudentAttended, b.NoShowWarningSentAt,
		b.CancellationReason, b.RescheduleStart, b.RescheduleEnd,
		b.RescheduleRequestedBy, b.CompletedAt, b.CancelledAt, b.UpdatedAt,
		b.ID,
	)
	if err != nil {
		return mapWriteError(err, "updating")
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return booking.ErrNotFound
	}
	return nil
}

func (r *PostgresBookingRepository) ListActiveOverlapping(ctx context.Context, teacherID int64, iv availability.Interval, excludeID int64) ([]*booking.Booking, error) {
	return r.list(ctx, `SELECT `+bookingColumns+` FROM bookings
               WHERE teacher_id = $1 AND status = ANY($2) AND start_time < $4 AND end_time > $3 AND id <> $5
               ORDER BY start_time`,
		teacherID, pq.Array(statusStrings(booking.ActiveStatuses)), iv.Start, iv.End, excludeID)
}

func (r *PostgresBookingRepository) ListConfirmedStartingBetween(ctx context.Context, from, to time.Time) ([]*booking.Booking, error) {
	return r.list(ctx, `SELECT `+bookingColumns+` FROM bookings
               WHERE status = $1 AND start_time BETWEEN $2 AND $3
               ORDER BY start_time, id`,
		booking.StatusConfirmed, from, to)
}

func (r *PostgresBookingRepository) ListNoShowWarningCandidates(ctx context.Context, from, to time.Time) ([]*booking.Booking, error) {
	return r.list(ctx, `SELECT `+bookingColumns+` FROM bookings
               WHERE status = $1 AND start_time BETWEEN $2 AND $3
                 AND NOT (teacher_attended AND student_attended)
                 AND no_show_warning_sent_at IS NULL
               ORDER BY start_time, id`,
		booking.StatusConfirmed, from, to)
}

func (r *PostgresBookingRepository) ListNoShowCandidates(ctx context.Context, startedBy time.Time) ([]*booking.Booking, error) {
	return r.list(ctx, `SELECT `+bookingColumns+` FROM bookings
               WHERE status = $1 AND payment_status = $2 AND start_time <= $3
                 AND NOT (teacher_attended AND student_attended)
               ORDER BY start_time, id`,
		booking.StatusConfirmed, booking.PaymentHeld, startedBy)
}

func (r *PostgresBookingRepository) ListCompletable(ctx context.Context, endedBy time.Time) ([]*booking.Booking, error) {
	return r.list(ctx, `SELECT `+bookingColumns+` FROM bookings
               WHERE status = $1 AND payment_status = $2 AND end_time <= $3
                 AND teacher_attended AND student_attended
               ORDER BY end_time, id`,
		booking.StatusConfirmed, booking.PaymentHeld, endedBy)
}

func (r *PostgresBookingRepository) ListUnpaidStartedBy(ctx context.Context, startedBy time.Time) ([]*booking.Booking, error) {
	return r.list(ctx, `SELECT `+bookingColumns+` FROM bookings
               WHERE status IN ($1, $2) AND start_time <= $3
               ORDER BY start_time, id`,
		booking.StatusPending, booking.StatusAwaitingPayment, startedBy)
}

func (r *PostgresBookingRepository) list(ctx context.Context, query string, args ...any) ([]*booking.Booking, error) {
	rows, err := r.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("error listing bookings: %w", err)
	}
	defer rows.Close()

	bookings := make([]*booking.Booking, 0)
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, fmt.Errorf("error scanning booking: %w", err)
		}
		bookings = append(bookings, b)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating bookings: %w", err)
	}
	return bookings, nil
}

func (r *PostgresBookingRepository) AppendRescheduleHistory(ctx context.Context, h *booking.RescheduleHistory) error {
	query := `INSERT INTO booking_reschedules (booking_id, old_start, old_end, new_start, new_end, requested_by, approved_by, created_at)
               VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
               RETURNING id`
	err := r.q.QueryRowContext(ctx, query, h.BookingID, h.OldStart, h.OldEnd, h.NewStart, h.NewEnd, h.RequestedBy, h.ApprovedBy, h.CreatedAt).Scan(&h.ID)
	if err != nil {
		return fmt.Errorf("error recording reschedule: %w", err)
	}
	return nil
}

func (r *PostgresBookingRepository) ListRescheduleHistory(ctx context.Context, bookingID int64) ([]booking.RescheduleHistory, error) {
	rows, err := r.q.QueryContext(ctx, `SELECT id, booking_id, old_start, old_end, new_start, new_end, requested_by, approved_by, created_at
               FROM booking_reschedules WHERE booking_id = $1 ORDER BY created_at, id`, bookingID)
	if err != nil {
		return nil, fmt.Errorf("error listing reschedules: %w", err)
	}
	defer rows.Close()

	history := make([]booking.RescheduleHistory, 0)
	for rows.Next() {
		var h booking.RescheduleHistory
		if err := rows.Scan(&h.ID, &h.BookingID, &h.OldStart, &h.OldEnd, &h.NewStart, &h.NewEnd, &h.RequestedBy, &h.ApprovedBy, &h.CreatedAt); err != nil {
			return nil, fmt.Errorf("error scanning reschedule: %w", err)
		}
		history = append(history, h)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating reschedules: %w", err)
	}
	return history, nil
}
