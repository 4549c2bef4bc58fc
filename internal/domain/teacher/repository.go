package teacher

import (
	"context"
)

// Repository defines the operations for persisting and retrieving Teacher entities.
type Repository interface {
	Create(ctx context.Context, t *Teacher) error
	GetByID(ctx context.Context, userID int64) (*Teacher, error)
	// GetForUpdate reads the teacher and holds a row lock until the
	// enclosing transaction ends. Booking creation and payout requests
	// for one teacher serialise on this lock.
	GetForUpdate(ctx context.Context, userID int64) (*Teacher, error)
	Update(ctx context.Context, t *Teacher) error
	ListAutomaticPayouts(ctx context.Context) ([]*Teacher, error)
}
