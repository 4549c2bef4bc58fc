package wallet

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

var ErrInsufficientFunds = fmt.Errorf("insufficient wallet funds")

type Direction string

const (
	Debit  Direction = "debit"
	Credit Direction = "credit"
)

// Transaction is an append-only record of one wallet movement. Balances
// are never edited without a matching transaction row.
type Transaction struct {
	ID        int64
	UserID    int64
	Direction Direction
	Amount    int64
	Currency  string
	Reason    string
	BookingID sql.NullInt64
	CreatedAt time.Time
}

// Repository is the wallet collaborator the escrow ledger debits and
// credits. Debit fails with ErrInsufficientFunds and leaves the balance
// untouched when the balance is below amount. Zero amounts move nothing
// and record nothing.
type Repository interface {
	Balance(ctx context.Context, userID int64, currency string) (int64, error)
	Debit(ctx context.Context, tx Transaction) error
	Credit(ctx context.Context, tx Transaction) error
	ListTransactions(ctx context.Context, userID int64) ([]Transaction, error)
}
