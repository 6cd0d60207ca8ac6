package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"checkout/internal/domain/model"
	"checkout/internal/linepay"
	repo "checkout/internal/repository"
)

type CheckoutUsecase struct {
	orders   repo.OrderRepository
	catalog  repo.CatalogRepository
	gateway  PaymentGateway
	events   EventPublisher
	receipts ReceiptIssuer
	idGen    IDGenerator
	clock    Clock
	logger   *slog.Logger
	locks    *orderLocks
}

// DI
func NewCheckoutUsecase(
	orders repo.OrderRepository,
	catalog repo.CatalogRepository,
	gateway PaymentGateway,
	events EventPublisher,
	receipts ReceiptIssuer,
	idGen IDGenerator,
	clock Clock,
	logger *slog.Logger,
) *CheckoutUsecase {
	if logger == nil {
		logger = slog.Default()
	}
	return &CheckoutUsecase{
		orders:   orders,
		catalog:  catalog,
		gateway:  gateway,
		events:   events,
		receipts: receipts,
		idGen:    idGen,
		clock:    clock,
		logger:   logger,
		locks:    newOrderLocks(),
	}
}

type ProductOutput struct {
	Name     string `json:"name"`
	Quantity int64  `json:"quantity"`
	Price    int64  `json:"price"`
}

type PackageOutput struct {
	ID       string          `json:"id"`
	Amount   int64           `json:"amount"`
	Products []ProductOutput `json:"products"`
}

type OrderOutput struct {
	ID            string          `json:"id"`
	Status        string          `json:"status"`
	Amount        int64           `json:"amount"`
	Currency      string          `json:"currency"`
	TransactionID string          `json:"transaction_id,omitempty"`
	Packages      []PackageOutput `json:"packages"`
	CreatedAt     time.Time       `json:"created_at"`
}

// CreateOrder はカタログのひな形をコピーして新しい注文を作る
func (u *CheckoutUsecase) CreateOrder(ctx context.Context, templateID string) (OrderOutput, error) {
	templateID = strings.TrimSpace(templateID)
	if templateID == "" {
		return OrderOutput{}, NewHTTPError(http.StatusBadRequest, "invalid id")
	}

	tpl, err := u.catalog.FindTemplate(ctx, templateID)
	if errors.Is(err, repo.ErrNotFound) {
		return OrderOutput{}, NewHTTPError(http.StatusNotFound, "not found")
	}
	if err != nil {
		return OrderOutput{}, WrapHTTPError(http.StatusInternalServerError, "internal error", err)
	}

	now := u.clock.Now()
	o := model.Order{
		ID:         u.idGen.NewID(),
		TemplateID: tpl.ID,
		Amount:     tpl.Amount,
		Currency:   tpl.Currency,
		Packages:   model.ClonePackages(tpl.Packages),
		Status:     model.OrderStatusCreated,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := o.Validate(); err != nil {
		return OrderOutput{}, WrapHTTPError(http.StatusUnprocessableEntity, "invalid order", err)
	}

	if err := u.orders.Create(ctx, o); err != nil {
		return OrderOutput{}, WrapHTTPError(http.StatusInternalServerError, "internal error", err)
	}

	u.publish(ctx, EventOrderCreated, o)
	return toOrderOutput(o), nil
}

func (u *CheckoutUsecase) GetOrder(ctx context.Context, orderID string) (OrderOutput, error) {
	o, err := u.findOrder(ctx, orderID)
	if err != nil {
		return OrderOutput{}, err
	}
	return toOrderOutput(o), nil
}

// Checkout は決済リクエストを送り、リダイレクト先の決済ページURLを返す
func (u *CheckoutUsecase) Checkout(ctx context.Context, orderID string) (string, error) {
	unlock := u.locks.lock(orderID)
	defer unlock()

	o, err := u.findOrder(ctx, orderID)
	if err != nil {
		return "", err
	}
	if o.Status != model.OrderStatusCreated {
		return "", NewHTTPError(http.StatusConflict, "payment already requested")
	}

	res, err := u.gateway.RequestPayment(ctx, o)
	if err != nil {
		u.logger.WarnContext(ctx, "payment request failed", "order_id", o.ID, "error", err)
		return "", gatewayHTTPError(err)
	}

	if err := u.orders.UpdatePayment(ctx, o.ID, repo.PaymentUpdate{
		Status:        model.OrderStatusPaymentRequested,
		TransactionID: res.TransactionID,
	}); err != nil {
		return "", WrapHTTPError(http.StatusInternalServerError, "internal error", err)
	}

	o.Status = model.OrderStatusPaymentRequested
	if res.TransactionID != "" {
		o.TransactionID = res.TransactionID
	}
	u.publish(ctx, EventPaymentRequested, o)

	return res.PaymentURL, nil
}

// Confirm はゲートウェイからのリダイレクト（transactionId, orderId）で決済を確定する。
// 確定済みなら何もせず同じ完了URLを返す
func (u *CheckoutUsecase) Confirm(ctx context.Context, orderID string, transactionID string) (string, error) {
	transactionID = strings.TrimSpace(transactionID)
	if strings.TrimSpace(orderID) == "" || !linepay.ValidTransactionID(transactionID) {
		return "", NewHTTPError(http.StatusBadRequest, "invalid callback")
	}

	unlock := u.locks.lock(orderID)
	defer unlock()

	o, err := u.findOrder(ctx, orderID)
	if err != nil {
		return "", err
	}
	if o.TransactionID != "" && o.TransactionID != transactionID {
		return "", NewHTTPError(http.StatusBadRequest, "transaction mismatch")
	}

	switch o.Status {
	case model.OrderStatusConfirmed:
		return u.successPath(o.ID)
	case model.OrderStatusPaymentRequested:
	default:
		return "", NewHTTPError(http.StatusConflict, "order is not awaiting payment")
	}

	if err := u.orders.UpdatePayment(ctx, o.ID, repo.PaymentUpdate{
		Status:        model.OrderStatusAwaitingConfirmation,
		TransactionID: transactionID,
	}); err != nil {
		return "", WrapHTTPError(http.StatusInternalServerError, "internal error", err)
	}
	o.TransactionID = transactionID

	res, err := u.gateway.ConfirmPayment(ctx, o, transactionID)
	if err == nil && (res.OrderID != o.ID || res.TransactionID != transactionID) {
		//別の注文・取引を確定したと返ってきたら成功扱いにしない
		err = &linepay.GatewayError{
			Message: fmt.Sprintf("confirm result mismatch: order %s transaction %s", res.OrderID, res.TransactionID),
		}
	}
	if err != nil {
		u.logger.WarnContext(ctx, "payment confirm failed", "order_id", o.ID, "transaction_id", transactionID, "error", err)

		//タイムアウト後でも状態は戻す
		next := model.OrderStatusPaymentRequested
		if ge, ok := linepay.AsGatewayError(err); ok && ge.TransactionClosed() {
			next = model.OrderStatusFailed
		}
		if uerr := u.orders.UpdatePayment(context.WithoutCancel(ctx), o.ID, repo.PaymentUpdate{Status: next}); uerr != nil {
			u.logger.ErrorContext(ctx, "failed to restore order status", "order_id", o.ID, "error", uerr)
		}
		if next == model.OrderStatusFailed {
			o.Status = next
			u.publish(ctx, EventPaymentFailed, o)
		}
		return "", gatewayHTTPError(err)
	}

	if err := u.orders.UpdatePayment(context.WithoutCancel(ctx), o.ID, repo.PaymentUpdate{
		Status: model.OrderStatusConfirmed,
	}); err != nil {
		return "", WrapHTTPError(http.StatusInternalServerError, "internal error", err)
	}
	o.Status = model.OrderStatusConfirmed
	u.publish(ctx, EventPaymentConfirmed, o)

	return u.successPath(o.ID)
}

// Cancel はゲートウェイの cancelUrl から戻ってきたとき
func (u *CheckoutUsecase) Cancel(ctx context.Context, orderID string) (OrderOutput, error) {
	unlock := u.locks.lock(orderID)
	defer unlock()

	o, err := u.findOrder(ctx, orderID)
	if err != nil {
		return OrderOutput{}, err
	}

	switch o.Status {
	case model.OrderStatusCanceled:
		return toOrderOutput(o), nil
	case model.OrderStatusPaymentRequested:
	default:
		return OrderOutput{}, NewHTTPError(http.StatusConflict, "order cannot be canceled")
	}

	if err := u.orders.UpdatePayment(ctx, o.ID, repo.PaymentUpdate{Status: model.OrderStatusCanceled}); err != nil {
		return OrderOutput{}, WrapHTTPError(http.StatusInternalServerError, "internal error", err)
	}
	o.Status = model.OrderStatusCanceled
	u.publish(ctx, EventPaymentCanceled, o)

	return toOrderOutput(o), nil
}

// Success は完了画面用。receiptトークンが無い・違う注文なら403
func (u *CheckoutUsecase) Success(ctx context.Context, orderID string, receipt string) (OrderOutput, error) {
	if receipt == "" {
		return OrderOutput{}, NewHTTPError(http.StatusForbidden, "forbidden")
	}
	if err := u.receipts.Verify(receipt, orderID, u.clock.Now()); err != nil {
		return OrderOutput{}, WrapHTTPError(http.StatusForbidden, "forbidden", err)
	}

	o, err := u.findOrder(ctx, orderID)
	if err != nil {
		return OrderOutput{}, err
	}
	if o.Status != model.OrderStatusConfirmed {
		return OrderOutput{}, NewHTTPError(http.StatusNotFound, "not found")
	}
	return toOrderOutput(o), nil
}

func (u *CheckoutUsecase) findOrder(ctx context.Context, orderID string) (model.Order, error) {
	if strings.TrimSpace(orderID) == "" {
		return model.Order{}, NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	o, err := u.orders.FindByID(ctx, orderID)
	if errors.Is(err, repo.ErrNotFound) {
		return model.Order{}, NewHTTPError(http.StatusNotFound, "order not found")
	}
	if err != nil {
		return model.Order{}, WrapHTTPError(http.StatusInternalServerError, "internal error", err)
	}
	return o, nil
}

func (u *CheckoutUsecase) successPath(orderID string) (string, error) {
	token, err := u.receipts.Issue(orderID, u.clock.Now())
	if err != nil {
		return "", WrapHTTPError(http.StatusInternalServerError, "internal error", err)
	}
	return fmt.Sprintf("/success/%s?receipt=%s", url.PathEscape(orderID), url.QueryEscape(token)), nil
}

// 通知の失敗で決済結果は変えない
func (u *CheckoutUsecase) publish(ctx context.Context, t OrderEventType, o model.Order) {
	if u.events == nil {
		return
	}
	ev := newOrderEvent(t, o, u.clock.Now())
	if err := u.events.Publish(ctx, ev); err != nil {
		u.logger.ErrorContext(ctx, "failed to publish order event", "type", t, "order_id", o.ID, "error", err)
	}
}

// ゲートウェイ由来のエラーをレスポンス用に変換する（生レスポンスは返さない）
func gatewayHTTPError(err error) error {
	if ge, ok := linepay.AsGatewayError(err); ok {
		if ge.Retryable() {
			return &HTTPError{Status: http.StatusServiceUnavailable, Message: "payment gateway temporarily unavailable", Code: ge.Code, Err: err}
		}
		return &HTTPError{Status: http.StatusBadRequest, Message: "order not found or invalid: " + ge.Description(), Code: ge.Code, Err: err}
	}
	if _, ok := linepay.AsTransportError(err); ok {
		return WrapHTTPError(http.StatusBadGateway, "payment gateway unavailable", err)
	}
	return WrapHTTPError(http.StatusInternalServerError, "internal error", err)
}

func toOrderOutput(o model.Order) OrderOutput {
	pkgs := make([]PackageOutput, 0, len(o.Packages))
	for _, p := range o.Packages {
		products := make([]ProductOutput, 0, len(p.Products))
		for _, pr := range p.Products {
			products = append(products, ProductOutput{
				Name:     pr.Name,
				Quantity: pr.Quantity,
				Price:    pr.Price,
			})
		}
		pkgs = append(pkgs, PackageOutput{ID: p.ID, Amount: p.Amount, Products: products})
	}

	return OrderOutput{
		ID:            o.ID,
		Status:        string(o.Status),
		Amount:        o.Amount,
		Currency:      o.Currency,
		TransactionID: o.TransactionID,
		Packages:      pkgs,
		CreatedAt:     o.CreatedAt,
	}
}
