// Package store defines the unit of work every service runs its reads and
// writes through.
package store

import (
	"context"

	"tutor_booking_engine/internal/domain/availability"
	"tutor_booking_engine/internal/domain/booking"
	"tutor_booking_engine/internal/domain/escrow"
	"tutor_booking_engine/internal/domain/notification"
	"tutor_booking_engine/internal/domain/payout"
	"tutor_booking_engine/internal/domain/reminder"
	"tutor_booking_engine/internal/domain/teacher"
	"tutor_booking_engine/internal/domain/user"
	"tutor_booking_engine/internal/domain/wallet"
)

// Tx exposes every repository bound to a single transaction.
type Tx interface {
	Users() user.Repository
	Teachers() teacher.Repository
	Availability() availability.Repository
	Bookings() booking.Repository
	Escrow() escrow.Repository
	Wallets() wallet.Repository
	Reminders() reminder.Repository
	Payouts() payout.Repository
	PaymentMethods() payout.MethodRepository
	Outbox() notification.Outbox
}

// Store runs fn in a transaction. fn's error rolls everything back; a nil
// return commits. Row locks taken through GetForUpdate are held until then.
type Store interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}
