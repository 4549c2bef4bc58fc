package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"tutor_booking_engine/internal/domain/teacher"
)

type PostgresTeacherRepository struct {
	q querier
}

const teacherColumns = `user_id, timezone, holiday_mode, automatic_payouts, hourly_rate, currency, created_at, updated_at`

func scanTeacher(row rowScanner) (*teacher.Teacher, error) {
	t := &teacher.Teacher{}
	err := row.Scan(&t.UserID, &t.Timezone, &t.HolidayMode, &t.AutomaticPayouts, &t.HourlyRate, &t.Currency, &t.CreatedAt, &t.UpdatedAt)
	return t, err
}

func (r *PostgresTeacherRepository) Create(ctx context.Context, t *teacher.Teacher) error {
	query := `INSERT INTO teachers (user_id, timezone, holiday_mode, automatic_payouts, hourly_rate, currency)
               VALUES ($1, $2, $3, $4, $5, $6)
               RETURNING created_at, updated_at`
	err := r.q.QueryRowContext(ctx, query, t.UserID, t.Timezone, t.HolidayMode, t.AutomaticPayouts, t.HourlyRate, t.Currency).
		Scan(&t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return fmt.Errorf("error creating teacher: %w", err)
	}
	return nil
}

func (r *PostgresTeacherRepository) get(ctx context.Context, query string, userID int64) (*teacher.Teacher, error) {
	t, err := scanTeacher(r.q.QueryRowContext(ctx, query, userID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, teacher.ErrNotFound
		}
		return nil, fmt.Errorf("error getting teacher %d: %w", userID, err)
	}
	return t, nil
}

func (r *PostgresTeacherRepository) GetByID(ctx context.Context, userID int64) (*teacher.Teacher, error) {
	return r.get(ctx, `SELECT `+teacherColumns+` FROM teachers WHERE user_id = $1`, userID)
}

func (r *PostgresTeacherRepository) GetForUpdate(ctx context.Context, userID int64) (*teacher.Teacher, error) {
	return r.get(ctx, `SELECT `+teacherColumns+` FROM teachers WHERE user_id = $1 FOR UPDATE`, userID)
}

func (r *PostgresTeacherRepository) Update(ctx context.Context, t *teacher.Teacher) error {
	query := `UPDATE teachers
               SET timezone = $1, holiday_mode = $2, automatic_payouts = $3, hourly_rate = $4, currency = $5, updated_at = NOW()
               WHERE user_id = $6
               RETURNING updated_at`
	err := r.q.QueryRowContext(ctx, query, t.Timezone, t.HolidayMode, t.AutomaticPayouts, t.HourlyRate, t.Currency, t.UserID).Scan(&t.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return teacher.ErrNotFound
		}
		return fmt.Errorf("error updating teacher: %w", err)
	}
	return nil
}

func (r *PostgresTeacherRepository) ListAutomaticPayouts(ctx context.Context) ([]*teacher.Teacher, error) {
	rows, err := r.q.QueryContext(ctx, `SELECT `+teacherColumns+` FROM teachers WHERE automatic_payouts = TRUE ORDER BY user_id`)
	if err != nil {
		return nil, fmt.Errorf("error listing automatic payout teachers: %w", err)
	}
	defer rows.Close()

	teachers := make([]*teacher.Teacher, 0)
	for rows.Next() {
		t, err := scanTeacher(rows)
		if err != nil {
			return nil, fmt.Errorf("error scanning teacher: %w", err)
		}
		teachers = append(teachers, t)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating teachers: %w", err)
	}
	return teachers, nil
}
