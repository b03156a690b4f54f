package events

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"
)

// Event names published by the evaluation pipeline.
const (
	TaskEvaluated = "tasks.evaluated"
	TaskUnlocked  = "tasks.unlocked"
)

// Envelope is the wire format of every published event.
type Envelope struct {
	Type       string      `json:"type"`
	OccurredAt time.Time   `json:"occurred_at"`
	Payload    interface{} `json:"payload"`
}

// TaskEvaluatedPayload describes a freshly evaluated task.
type TaskEvaluatedPayload struct {
	TaskID   string `json:"task_id"`
	OwnerID  string `json:"owner_id"`
	Language string `json:"language"`
	Score    int    `json:"score"`
}

// TaskUnlockedPayload describes the unlock of a task's premium report.
type TaskUnlockedPayload struct {
	TaskID    string `json:"task_id"`
	OwnerID   string `json:"owner_id"`
	OrderID   string `json:"order_id"`
	PaymentID string `json:"payment_id"`
}

// Publisher emits domain events. Delivery is best-effort.
type Publisher interface {
	Publish(ctx context.Context, eventType string, payload interface{}) error
}

// NopPublisher discards every event.
type NopPublisher struct{}

// Publish implements Publisher.
func (NopPublisher) Publish(context.Context, string, interface{}) error { return nil }

// NATSPublisher publishes events on "<prefix>.<eventType>" subjects.
type NATSPublisher struct {
	conn   *nats.Conn
	prefix string
	logger zerolog.Logger
	now    func() time.Time
}

// NewNATSPublisher wraps an established NATS connection.
func NewNATSPublisher(conn *nats.Conn, prefix string, logger zerolog.Logger) *NATSPublisher {
	return &NATSPublisher{
		conn:   conn,
		prefix: strings.Trim(strings.ReplaceAll(prefix, ":", "."), "."),
		logger: logger.With().Str("component", "nats_publisher").Logger(),
		now:    time.Now,
	}
}

// Subject returns the NATS subject used for eventType.
func (p *NATSPublisher) Subject(eventType string) string {
	if p.prefix == "" {
		return eventType
	}
	return p.prefix + "." + eventType
}

// Publish implements Publisher.
func (p *NATSPublisher) Publish(ctx context.Context, eventType string, payload interface{}) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	body, err := json.Marshal(Envelope{Type: eventType, OccurredAt: p.now().UTC(), Payload: payload})
	if err != nil {
		return fmt.Errorf("encode %s event: %w", eventType, err)
	}

	subject := p.Subject(eventType)
	if err := p.conn.Publish(subject, body); err != nil {
		return fmt.Errorf("publish %s: %w", subject, err)
	}

	p.logger.Debug().Str("subject", subject).Msg("event published")
	return nil
}
