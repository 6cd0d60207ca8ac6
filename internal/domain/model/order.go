package model

import (
	"errors"
	"fmt"
	"math"
	"time"
)

type OrderStatus string

const (
	OrderStatusCreated              OrderStatus = "CREATED"
	OrderStatusPaymentRequested     OrderStatus = "PAYMENT_REQUESTED"
	OrderStatusAwaitingConfirmation OrderStatus = "AWAITING_CONFIRMATION"
	OrderStatusConfirmed            OrderStatus = "CONFIRMED"
	OrderStatusFailed               OrderStatus = "FAILED"
	OrderStatusCanceled             OrderStatus = "CANCELED"
)

// 注文の金額・明細が壊れている
var ErrInvalidOrder = errors.New("invalid order")

// 商品1行（name / quantity / price）
type Product struct {
	Name     string `json:"name"`
	Quantity int64  `json:"quantity"`
	Price    int64  `json:"price"`
}

// 決済ゲートウェイに渡す明細のまとまり
type Package struct {
	ID       string    `json:"id"`
	Amount   int64     `json:"amount"`
	Products []Product `json:"products"`
}

type Order struct {
	ID            string      `json:"id"`
	TemplateID    string      `json:"template_id"`
	Amount        int64       `json:"amount"`
	Currency      string      `json:"currency"`
	Packages      []Package   `json:"packages"`
	TransactionID string      `json:"transaction_id,omitempty"`
	Status        OrderStatus `json:"status"`
	CreatedAt     time.Time   `json:"created_at"`
	UpdatedAt     time.Time   `json:"updated_at"`
}

// Validate は金額の整合性をチェックする。
// package.amount == Σ(price*quantity)、order.amount == Σ(package.amount)
func (o Order) Validate() error {
	if o.Amount <= 0 {
		return fmt.Errorf("%w: amount must be positive", ErrInvalidOrder)
	}
	if len(o.Currency) != 3 {
		return fmt.Errorf("%w: currency must be a 3-letter code", ErrInvalidOrder)
	}
	if len(o.Packages) == 0 {
		return fmt.Errorf("%w: at least one package is required", ErrInvalidOrder)
	}

	var total int64
	for _, p := range o.Packages {
		if p.ID == "" {
			return fmt.Errorf("%w: package id is required", ErrInvalidOrder)
		}
		if len(p.Products) == 0 {
			return fmt.Errorf("%w: package %s has no products", ErrInvalidOrder, p.ID)
		}

		var sum int64
		for _, pr := range p.Products {
			if pr.Name == "" {
				return fmt.Errorf("%w: product name is required", ErrInvalidOrder)
			}
			if pr.Quantity < 1 {
				return fmt.Errorf("%w: product %s quantity must be >= 1", ErrInvalidOrder, pr.Name)
			}
			if pr.Price < 0 {
				return fmt.Errorf("%w: product %s price must be >= 0", ErrInvalidOrder, pr.Name)
			}
			if pr.Price > (math.MaxInt64-sum)/pr.Quantity {
				return fmt.Errorf("%w: package %s total overflows", ErrInvalidOrder, p.ID)
			}
			sum += pr.Price * pr.Quantity
		}
		if sum != p.Amount {
			return fmt.Errorf("%w: package %s amount %d != products total %d", ErrInvalidOrder, p.ID, p.Amount, sum)
		}
		if p.Amount > math.MaxInt64-total {
			return fmt.Errorf("%w: order total overflows", ErrInvalidOrder)
		}
		total += p.Amount
	}

	if total != o.Amount {
		return fmt.Errorf("%w: order amount %d != packages total %d", ErrInvalidOrder, o.Amount, total)
	}
	return nil
}

// Clone は明細まで含めたコピーを返す（ストアの中身と共有しない）
func (o Order) Clone() Order {
	c := o
	c.Packages = ClonePackages(o.Packages)
	return c
}

func ClonePackages(src []Package) []Package {
	if src == nil {
		return nil
	}
	out := make([]Package, 0, len(src))
	for _, p := range src {
		cp := p
		cp.Products = append([]Product(nil), p.Products...)
		out = append(out, cp)
	}
	return out
}
