package notification

import (
	"context"
	"database/sql"
	"fmt"
)

var ErrNoChannel = fmt.Errorf("recipient has no reachable notification channel")

// Recipient carries the contact handles a channel may use.
type Recipient struct {
	UserID     int64
	FullName   string
	Email      sql.NullString
	TelegramID sql.NullInt64
}

// Sender delivers one message over one channel. A channel that cannot reach
// the recipient returns ErrNoChannel.
type Sender interface {
	Name() string
	Send(ctx context.Context, to Recipient, m *Message) error
}
