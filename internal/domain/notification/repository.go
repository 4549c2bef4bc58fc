package notification

import (
	"context"
	"time"
)

// Outbox stores messages written in the same transaction as the state
// change that triggered them. Delivery happens later, outside that
// transaction, so a failed send never undoes the change.
type Outbox interface {
	Enqueue(ctx context.Context, m *Message) error
	// ClaimDue returns pending messages with SendAfter at or before now,
	// oldest first, and hides them from other claimers until now+lease.
	ClaimDue(ctx context.Context, now time.Time, lease time.Duration, limit int) ([]*Message, error)
	MarkDelivered(ctx context.Context, id string, at time.Time) error
	// MarkFailed records a failed attempt and reschedules the message at
	// retryAt, or marks it dead.
	MarkFailed(ctx context.Context, id string, lastErr string, retryAt time.Time, dead bool) error
	ListByRecipient(ctx context.Context, userID int64) ([]*Message, error)
}
