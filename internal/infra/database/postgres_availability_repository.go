package database

import (
	"context"
	"fmt"
	"time"

	"tutor_booking_engine/internal/domain/availability"
)

type PostgresAvailabilityRepository struct {
	q querier
}

const slotColumns = `id, teacher_id, day_of_week, start_minute, end_minute, is_available, updated_at`

func (r *PostgresAvailabilityRepository) Upsert(ctx context.Context, s *availability.Slot) error {
	query := `INSERT INTO availability_slots (teacher_id, day_of_week, start_minute, end_minute, is_available, updated_at)
               VALUES ($1, $2, $3, $4, $5, $6)
               ON CONFLICT (teacher_id, day_of_week, start_minute)
               DO UPDATE SET end_minute = EXCLUDED.end_minute, is_available = EXCLUDED.is_available, updated_at = EXCLUDED.updated_at
               RETURNING id`
	err := r.q.QueryRowContext(ctx, query, s.TeacherID, int(s.DayOfWeek), int(s.StartTime), int(s.EndTime), s.IsAvailable, s.UpdatedAt).Scan(&s.ID)
	if err != nil {
		return fmt.Errorf("error upserting availability slot: %w", err)
	}
	return nil
}

func (r *PostgresAvailabilityRepository) ListByTeacher(ctx context.Context, teacherID int64) ([]availability.Slot, error) {
	return r.list(ctx, `SELECT `+slotColumns+` FROM availability_slots
               WHERE teacher_id = $1 ORDER BY day_of_week, start_minute`, teacherID)
}

func (r *PostgresAvailabilityRepository) ListEnabledForDay(ctx context.Context, teacherID int64, day time.Weekday) ([]availability.Slot, error) {
	return r.list(ctx, `SELECT `+slotColumns+` FROM availability_slots
               WHERE teacher_id = $1 AND day_of_week = $2 AND is_available = TRUE ORDER BY start_minute`, teacherID, int(day))
}

func (r *PostgresAvailabilityRepository) list(ctx context.Context, query string, args ...any) ([]availability.Slot, error) {
	rows, err := r.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("error listing availability slots: %w", err)
	}
	defer rows.Close()

	slots := make([]availability.Slot, 0)
	for rows.Next() {
		var (
			s                     availability.Slot
			day, startMin, endMin int
		)
		if err := rows.Scan(&s.ID, &s.TeacherID, &day, &startMin, &endMin, &s.IsAvailable, &s.UpdatedAt); err != nil {
			return nil, fmt.Errorf("error scanning availability slot: %w", err)
		}
		s.DayOfWeek = time.Weekday(day)
		s.StartTime = availability.TimeOfDay(startMin)
		s.EndTime = availability.TimeOfDay(endMin)
		slots = append(slots, s)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating availability slots: %w", err)
	}
	return slots, nil
}
