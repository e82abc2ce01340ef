package services

import (
	"context"
	"time"
)

// Order event types emitted on lifecycle changes.
const (
	OrderEventCreated       = "order.created"
	OrderEventPaid          = "order.paid"
	OrderEventPaymentFailed = "order.payment_failed"
	OrderEventStatusChanged = "order.status_changed"
)

// OrderEventMessage is the payload published to the order events topic.
type OrderEventMessage struct {
	EventType     string    `json:"eventType"`
	OrderID       string    `json:"orderId"`
	UserID        string    `json:"userId"`
	Status        string    `json:"status"`
	PaymentStatus string    `json:"paymentStatus"`
	TransactionID string    `json:"transactionId,omitempty"`
	Amount        int64     `json:"amount"`
	OccurredAt    time.Time `json:"occurredAt"`
}

// OrderEventPublisher delivers order lifecycle events to interested consumers.
type OrderEventPublisher interface {
	PublishOrderEvent(ctx context.Context, message OrderEventMessage) (string, error)
}

// NoopOrderEventPublisher discards events. Used when no topic is configured.
type NoopOrderEventPublisher struct{}

// PublishOrderEvent implements OrderEventPublisher as a no-op.
func (NoopOrderEventPublisher) PublishOrderEvent(context.Context, OrderEventMessage) (string, error) {
	return "", nil
}
