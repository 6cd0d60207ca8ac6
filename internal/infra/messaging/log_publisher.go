package messaging

import (
	"context"
	"log/slog"

	"checkout/internal/usecase"
)

// AMQP_URL が無いときはログに出すだけ
type LogPublisher struct {
	logger *slog.Logger
}

func NewLogPublisher(logger *slog.Logger) *LogPublisher {
	return &LogPublisher{logger: logger}
}

func (p *LogPublisher) Publish(ctx context.Context, ev usecase.OrderEvent) error {
	p.logger.InfoContext(ctx, "order event",
		"type", ev.Type,
		"order_id", ev.OrderID,
		"status", ev.Status,
		"transaction_id", ev.TransactionID,
	)
	return nil
}
