package app

import (
	"context"
	"fmt"
	"time"

	"tutor_booking_engine/internal/domain/notification"
	"tutor_booking_engine/internal/domain/store"
)

// notify writes one outbox message per distinct recipient inside tx.
// Delivery happens later through NotificationRelay.
func notify(ctx context.Context, tx store.Tx, sendAfter time.Time, p notification.Payload, recipients ...int64) error {
	seen := make(map[int64]bool, len(recipients))
	for _, userID := range recipients {
		if userID == 0 || seen[userID] {
			continue
		}
		seen[userID] = true
		m, err := notification.NewMessage(userID, p, sendAfter)
		if err != nil {
			return err
		}
		if err := tx.Outbox().Enqueue(ctx, m); err != nil {
			return fmt.Errorf("enqueue %s for user %d: %w", p.Kind(), userID, err)
		}
	}
	return nil
}
