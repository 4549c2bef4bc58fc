package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"tutor_booking_engine/internal/domain/user"
)

var ErrDuplicateTelegramID = fmt.Errorf("user with this Telegram ID already exists")

type PostgresUserRepository struct {
	q querier
}

const userColumns = `id, role, full_name, email, telegram_id, guardian_id, created_at`

func scanUser(row rowScanner) (*user.User, error) {
	u := &user.User{}
	err := row.Scan(&u.ID, &u.Role, &u.FullName, &u.Email, &u.TelegramID, &u.GuardianID, &u.CreatedAt)
	return u, err
}

func (r *PostgresUserRepository) Create(ctx context.Context, u *user.User) error {
	query := `INSERT INTO users (role, full_name, email, telegram_id, guardian_id)
               VALUES ($1, $2, $3, $4, $5)
               RETURNING id, created_at`
	err := r.q.QueryRowContext(ctx, query, u.Role, u.FullName, u.Email, u.TelegramID, u.GuardianID).Scan(&u.ID, &u.CreatedAt)
	if err != nil {
		if hasCode(err, codeUniqueViolation) {
			return ErrDuplicateTelegramID
		}
		return fmt.Errorf("error creating user: %w", err)
	}
	return nil
}

func (r *PostgresUserRepository) GetByID(ctx context.Context, id int64) (*user.User, error) {
	u, err := scanUser(r.q.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, user.ErrNotFound
		}
		return nil, fmt.Errorf("error getting user by ID: %w", err)
	}
	return u, nil
}

func (r *PostgresUserRepository) GetByTelegramID(ctx context.Context, telegramID int64) (*user.User, error) {
	u, err := scanUser(r.q.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE telegram_id = $1`, telegramID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, user.ErrNotFound
		}
		return nil, fmt.Errorf("error getting user by Telegram ID: %w", err)
	}
	return u, nil
}
