package usecase

import (
	"context"
	"time"

	"checkout/internal/domain/model"
)

type OrderEventType string

const (
	EventOrderCreated     OrderEventType = "order.created"
	EventPaymentRequested OrderEventType = "payment.requested"
	EventPaymentConfirmed OrderEventType = "payment.confirmed"
	EventPaymentFailed    OrderEventType = "payment.failed"
	EventPaymentCanceled  OrderEventType = "payment.canceled"
)

// 注文のライフサイクル変化を外に通知する
type OrderEvent struct {
	Type          OrderEventType `json:"type"`
	OrderID       string         `json:"order_id"`
	Status        string         `json:"status"`
	TransactionID string         `json:"transaction_id,omitempty"`
	Amount        int64          `json:"amount"`
	Currency      string         `json:"currency"`
	OccurredAt    time.Time      `json:"occurred_at"`
}

type EventPublisher interface {
	Publish(ctx context.Context, ev OrderEvent) error
}

func newOrderEvent(t OrderEventType, o model.Order, now time.Time) OrderEvent {
	return OrderEvent{
		Type:          t,
		OrderID:       o.ID,
		Status:        string(o.Status),
		TransactionID: o.TransactionID,
		Amount:        o.Amount,
		Currency:      o.Currency,
		OccurredAt:    now,
	}
}
