package notification

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

type MessageStatus string

const (
	MessagePending   MessageStatus = "pending"
	MessageDelivered MessageStatus = "delivered"
	MessageDead      MessageStatus = "dead"
)

// Message is one outbox row: a rendered notification for one recipient,
// deliverable at or after SendAfter.
type Message struct {
	ID              string
	RecipientUserID int64
	Kind            Kind
	Payload         json.RawMessage
	Subject         string
	Body            string
	SendAfter       time.Time
	Status          MessageStatus
	Attempts        int
	LastError       string
	CreatedAt       time.Time
	DeliveredAt     time.Time
}

// NewMessage renders p for recipientID, deliverable from sendAfter.
func NewMessage(recipientID int64, p Payload, sendAfter time.Time) (*Message, error) {
	raw, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("encode %s payload: %w", p.Kind(), err)
	}
	subject, body := Render(p)
	return &Message{
		ID:              uuid.NewString(),
		RecipientUserID: recipientID,
		Kind:            p.Kind(),
		Payload:         raw,
		Subject:         subject,
		Body:            body,
		SendAfter:       sendAfter,
		Status:          MessagePending,
		CreatedAt:       sendAfter,
	}, nil
}
