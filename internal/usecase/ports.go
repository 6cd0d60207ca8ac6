package usecase

import (
	"context"
	"time"

	"checkout/internal/domain/model"
	"checkout/internal/linepay"
)

// usecaseに渡す部品
type IDGenerator interface {
	NewID() string
}

type Clock interface {
	Now() time.Time
}

// 決済ゲートウェイ（linepay.Client が実装）
type PaymentGateway interface {
	RequestPayment(ctx context.Context, o model.Order) (linepay.PaymentRequest, error)
	ConfirmPayment(ctx context.Context, o model.Order, transactionID string) (linepay.ConfirmResult, error)
}

// 完了画面を見るためのトークン
type ReceiptIssuer interface {
	Issue(orderID string, now time.Time) (string, error)
	Verify(token string, orderID string, now time.Time) error
}
