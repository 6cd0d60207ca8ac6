package repository

import (
	"context"
	"errors"

	"checkout/internal/domain/model"
)

var ErrNotFound = errors.New("not found")

// 決済状態の更新内容
type PaymentUpdate struct {
	Status        model.OrderStatus
	TransactionID string
}

// 注文ストア。実装はメモリ版とGORM版
type OrderRepository interface {
	Create(ctx context.Context, order model.Order) error
	FindByID(ctx context.Context, orderID string) (model.Order, error)
	//status と transactionId だけを書き換える（空のTransactionIDは既存値を保持）
	UpdatePayment(ctx context.Context, orderID string, u PaymentUpdate) error
}
