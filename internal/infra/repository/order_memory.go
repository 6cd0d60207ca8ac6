package repository

import (
	"context"
	"fmt"
	"sync"

	"checkout/internal/domain/model"
	repo "checkout/internal/repository"
)

// OrderMemoryRepository はプロセス内のmapに注文を持つ。
// 出し入れは常にClone（呼び出し側と明細スライスを共有しない）
type OrderMemoryRepository struct {
	mu     sync.RWMutex
	orders map[string]model.Order
}

func NewOrderMemoryRepository() *OrderMemoryRepository {
	return &OrderMemoryRepository{orders: make(map[string]model.Order)}
}

func (r *OrderMemoryRepository) Create(ctx context.Context, order model.Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.orders[order.ID]; ok {
		return fmt.Errorf("order %s already exists", order.ID)
	}
	r.orders[order.ID] = order.Clone()
	return nil
}

func (r *OrderMemoryRepository) FindByID(ctx context.Context, orderID string) (model.Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	o, ok := r.orders[orderID]
	if !ok {
		return model.Order{}, repo.ErrNotFound
	}
	return o.Clone(), nil
}

func (r *OrderMemoryRepository) UpdatePayment(ctx context.Context, orderID string, u repo.PaymentUpdate) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	o, ok := r.orders[orderID]
	if !ok {
		return repo.ErrNotFound
	}
	o.Status = u.Status
	if u.TransactionID != "" {
		o.TransactionID = u.TransactionID
	}
	r.orders[orderID] = o
	return nil
}
