package payout

import (
	"context"
)

type Repository interface {
	Create(ctx context.Context, r *Request) error
	GetByID(ctx context.Context, id int64) (*Request, error)
	GetForUpdate(ctx context.Context, id int64) (*Request, error)
	Update(ctx context.Context, r *Request) error
	// SumCommitted totals the teacher's payouts in CommittedStatuses.
	SumCommitted(ctx context.Context, teacherID int64) (int64, error)
	ListByStatus(ctx context.Context, status Status, limit int) ([]*Request, error)
	ListByTeacher(ctx context.Context, teacherID int64) ([]*Request, error)
}

type MethodRepository interface {
	Create(ctx context.Context, m *PaymentMethod) error
	GetByID(ctx context.Context, id int64) (*PaymentMethod, error)
	// GetVerified returns the teacher's verified method or ErrNoVerifiedMethod.
	GetVerified(ctx context.Context, teacherID int64) (*PaymentMethod, error)
}
