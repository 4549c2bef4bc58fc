package user

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

var ErrNotFound = fmt.Errorf("user not found")

// Role is the part a user plays on the marketplace.
type Role string

const (
	RoleStudent  Role = "student"
	RoleGuardian Role = "guardian"
	RoleTeacher  Role = "teacher"
	RoleAdmin    Role = "admin"
)

// User is anyone who books, pays for, teaches or administers sessions.
// A guardian pays on behalf of student sub-accounts linked through GuardianID.
type User struct {
	ID         int64
	Role       Role
	FullName   string
	Email      sql.NullString
	TelegramID sql.NullInt64
	GuardianID sql.NullInt64
	CreatedAt  time.Time
}

type Repository interface {
	Create(ctx context.Context, u *User) error
	GetByID(ctx context.Context, id int64) (*User, error)
	GetByTelegramID(ctx context.Context, telegramID int64) (*User, error)
}
