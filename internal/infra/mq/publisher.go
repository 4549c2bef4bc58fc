package mq

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"tutor_booking_engine/internal/domain/notification"
)

// Channel is the part of *amqp.Channel the publisher uses.
type Channel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// Publisher is a notification.Sender that publishes every outbox message as
// a JSON event on a topic exchange, routed by "notification.<kind>".
type Publisher struct {
	conn     *amqp.Connection
	ch       Channel
	exchange string
}

func NewPublisher(url, exchange string) (*Publisher, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("dial rabbitmq: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}
	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("declare exchange: %w", err)
	}
	return &Publisher{conn: conn, ch: ch, exchange: exchange}, nil
}

// NewChannelPublisher publishes over an already opened channel.
func NewChannelPublisher(ch Channel, exchange string) *Publisher {
	return &Publisher{ch: ch, exchange: exchange}
}

// Event is the wire form of a delivered notification.
type Event struct {
	ID              string          `json:"id"`
	Kind            string          `json:"kind"`
	RecipientUserID int64           `json:"recipient_user_id"`
	Subject         string          `json:"subject"`
	Body            string          `json:"body"`
	Payload         json.RawMessage `json:"payload"`
	SendAfter       time.Time       `json:"send_after"`
}

func RoutingKey(kind notification.Kind) string {
	return "notification." + string(kind)
}

func (p *Publisher) Name() string { return "rabbitmq" }

func (p *Publisher) Send(ctx context.Context, to notification.Recipient, m *notification.Message) error {
	b, err := json.Marshal(Event{
		ID:              m.ID,
		Kind:            string(m.Kind),
		RecipientUserID: to.UserID,
		Subject:         m.Subject,
		Body:            m.Body,
		Payload:         m.Payload,
		SendAfter:       m.SendAfter,
	})
	if err != nil {
		return err
	}
	err = p.ch.PublishWithContext(ctx, p.exchange, RoutingKey(m.Kind), false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    m.ID,
		Timestamp:    m.SendAfter,
		Body:         b,
	})
	if err != nil {
		return fmt.Errorf("publish %s: %w", m.ID, err)
	}
	return nil
}

func (p *Publisher) Close() error {
	if p.ch != nil {
		_ = p.ch.Close()
	}
	if p.conn != nil {
		return p.conn.Close()
	}
	return nil
}
