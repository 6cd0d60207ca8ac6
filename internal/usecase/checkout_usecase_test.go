package usecase_test

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"checkout/internal/domain/model"
	infraRepo "checkout/internal/infra/repository"
	"checkout/internal/infra/token"
	"checkout/internal/linepay"
	repo "checkout/internal/repository"
	"checkout/internal/usecase"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// =====================
// mocks
// =====================

type GatewayMock struct{ mock.Mock }

func (m *GatewayMock) RequestPayment(ctx context.Context, o model.Order) (linepay.PaymentRequest, error) {
	args := m.Called(ctx, o)
	res, _ := args.Get(0).(linepay.PaymentRequest)
	return res, args.Error(1)
}

func (m *GatewayMock) ConfirmPayment(ctx context.Context, o model.Order, transactionID string) (linepay.ConfirmResult, error) {
	args := m.Called(ctx, o, transactionID)
	res, _ := args.Get(0).(linepay.ConfirmResult)
	return res, args.Error(1)
}

type PublisherMock struct{ mock.Mock }

func (m *PublisherMock) Publish(ctx context.Context, ev usecase.OrderEvent) error {
	args := m.Called(ctx, ev)
	return args.Error(0)
}

type seqIDs struct {
	mu sync.Mutex
	n  int
}

func (g *seqIDs) NewID() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n++
	return "order-" + strconv.Itoa(g.n)
}

type fixedClock struct{ now time.Time }

func (c fixedClock) Now() time.Time { return c.now }

type fixture struct {
	uc      *usecase.CheckoutUsecase
	orders  *infraRepo.OrderMemoryRepository
	gateway *GatewayMock
	events  *PublisherMock
}

func newFixture(t *testing.T) fixture {
	t.Helper()

	orders := infraRepo.NewOrderMemoryRepository()
	catalog := infraRepo.NewCatalogMemoryRepository(model.SampleTemplates())
	gw := new(GatewayMock)
	events := new(PublisherMock)
	events.On("Publish", mock.Anything, mock.Anything).Return(nil)

	clock := fixedClock{now: time.Date(2026, 10, 15, 12, 0, 0, 0, time.UTC)}
	receipts := token.NewReceiptJWT("receipt-secret", time.Hour)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	uc := usecase.NewCheckoutUsecase(orders, catalog, gw, events, receipts, &seqIDs{}, clock, logger)
	return fixture{uc: uc, orders: orders, gateway: gw, events: events}
}

func (f fixture) createOrder(t *testing.T, templateID string) usecase.OrderOutput {
	t.Helper()
	out, err := f.uc.CreateOrder(context.Background(), templateID)
	require.NoError(t, err)
	return out
}

func (f fixture) status(t *testing.T, orderID string) model.OrderStatus {
	t.Helper()
	o, err := f.orders.FindByID(context.Background(), orderID)
	require.NoError(t, err)
	return o.Status
}

// 注文を PAYMENT_REQUESTED まで進める
func (f fixture) requestPayment(t *testing.T, orderID string, transactionID string) {
	t.Helper()
	f.gateway.On("RequestPayment", mock.Anything, mock.MatchedBy(func(o model.Order) bool { return o.ID == orderID })).
		Return(linepay.PaymentRequest{PaymentURL: "https://pay.example/abc", TransactionID: transactionID}, nil).Once()

	_, err := f.uc.Checkout(context.Background(), orderID)
	require.NoError(t, err)
}

func httpStatus(t *testing.T, err error) int {
	t.Helper()
	he, ok := usecase.AsHTTPError(err)
	require.True(t, ok, "err=%v", err)
	return he.Status
}

// =====================
// CreateOrder / GetOrder
// =====================

func TestCreateOrder_ClonesTemplate(t *testing.T) {
	f := newFixture(t)

	out := f.createOrder(t, "1")

	assert.Equal(t, "order-1", out.ID)
	assert.Equal(t, int64(1000), out.Amount)
	assert.Equal(t, "TWD", out.Currency)
	assert.Equal(t, string(model.OrderStatusCreated), out.Status)
	require.Len(t, out.Packages, 1)

	//2回目は別のID
	second := f.createOrder(t, "1")
	assert.NotEqual(t, out.ID, second.ID)

	f.events.AssertCalled(t, "Publish", mock.Anything, mock.MatchedBy(func(ev usecase.OrderEvent) bool {
		return ev.Type == usecase.EventOrderCreated && ev.OrderID == "order-1"
	}))
}

func TestCreateOrder_UnknownTemplate(t *testing.T) {
	f := newFixture(t)

	_, err := f.uc.CreateOrder(context.Background(), "999")

	assert.Equal(t, http.StatusNotFound, httpStatus(t, err))
}

func TestGetOrder_NotFound(t *testing.T) {
	f := newFixture(t)

	_, err := f.uc.GetOrder(context.Background(), "nope")

	assert.Equal(t, http.StatusNotFound, httpStatus(t, err))
}

// =====================
// Checkout
// =====================

// Test: 0000 → 決済URLへ、状態は PAYMENT_REQUESTED
func TestCheckout_Success(t *testing.T) {
	f := newFixture(t)
	o := f.createOrder(t, "1")

	f.gateway.On("RequestPayment", mock.Anything, mock.MatchedBy(func(m model.Order) bool {
		return m.ID == o.ID && m.Amount == 1000 && m.Currency == "TWD"
	})).Return(linepay.PaymentRequest{PaymentURL: "https://pay.example/abc", TransactionID: "2024121200123456789"}, nil).Once()

	paymentURL, err := f.uc.Checkout(context.Background(), o.ID)
	require.NoError(t, err)

	assert.Equal(t, "https://pay.example/abc", paymentURL)
	stored, err := f.orders.FindByID(context.Background(), o.ID)
	require.NoError(t, err)
	assert.Equal(t, model.OrderStatusPaymentRequested, stored.Status)
	assert.Equal(t, "2024121200123456789", stored.TransactionID)
	f.gateway.AssertExpectations(t)
}

// Test: 0000以外はリダイレクトせずエラー、生レスポンスはメッセージに出さない
func TestCheckout_GatewayError(t *testing.T) {
	f := newFixture(t)
	o := f.createOrder(t, "1")

	gwErr := &linepay.GatewayError{Code: "1104", Message: "Merchant not found.", Raw: []byte(`{"returnCode":"1104","internal":"x"}`)}
	f.gateway.On("RequestPayment", mock.Anything, mock.Anything).Return(linepay.PaymentRequest{}, gwErr).Once()

	paymentURL, err := f.uc.Checkout(context.Background(), o.ID)

	assert.Empty(t, paymentURL)
	he, ok := usecase.AsHTTPError(err)
	require.True(t, ok)
	assert.Equal(t, http.StatusBadRequest, he.Status)
	assert.Equal(t, "1104", he.Code)
	assert.True(t, strings.HasPrefix(he.Message, "order not found or invalid"))
	assert.NotContains(t, he.Message, "internal")

	ge, ok := linepay.AsGatewayError(err)
	require.True(t, ok)
	assert.Equal(t, "1104", ge.Code)

	assert.Equal(t, model.OrderStatusCreated, f.status(t, o.ID))
}

func TestCheckout_RetryableGatewayError(t *testing.T) {
	f := newFixture(t)
	o := f.createOrder(t, "1")

	f.gateway.On("RequestPayment", mock.Anything, mock.Anything).
		Return(linepay.PaymentRequest{}, &linepay.GatewayError{Code: "9000"}).Once()

	_, err := f.uc.Checkout(context.Background(), o.ID)

	assert.Equal(t, http.StatusServiceUnavailable, httpStatus(t, err))
	assert.Equal(t, model.OrderStatusCreated, f.status(t, o.ID))
}

// Test: 通信エラーは握りつぶさず502
func TestCheckout_TransportError(t *testing.T) {
	f := newFixture(t)
	o := f.createOrder(t, "1")

	f.gateway.On("RequestPayment", mock.Anything, mock.Anything).
		Return(linepay.PaymentRequest{}, &linepay.TransportError{Op: "request", Err: context.DeadlineExceeded}).Once()

	_, err := f.uc.Checkout(context.Background(), o.ID)

	assert.Equal(t, http.StatusBadGateway, httpStatus(t, err))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, model.OrderStatusCreated, f.status(t, o.ID))
}

func TestCheckout_UnknownOrder(t *testing.T) {
	f := newFixture(t)

	_, err := f.uc.Checkout(context.Background(), "missing")

	assert.Equal(t, http.StatusNotFound, httpStatus(t, err))
	f.gateway.AssertNotCalled(t, "RequestPayment", mock.Anything, mock.Anything)
}

// Test: 2回目のcheckoutはゲートウェイを呼ばない
func TestCheckout_AlreadyRequested(t *testing.T) {
	f := newFixture(t)
	o := f.createOrder(t, "1")
	f.requestPayment(t, o.ID, "2024121200000000001")

	_, err := f.uc.Checkout(context.Background(), o.ID)

	assert.Equal(t, http.StatusConflict, httpStatus(t, err))
	f.gateway.AssertNumberOfCalls(t, "RequestPayment", 1)
}

// =====================
// Confirm
// =====================

func TestConfirm_Success(t *testing.T) {
	f := newFixture(t)
	o := f.createOrder(t, "1")
	f.requestPayment(t, o.ID, "2024121200000000001")

	f.gateway.On("ConfirmPayment", mock.Anything, mock.MatchedBy(func(m model.Order) bool {
		return m.ID == o.ID && m.Amount == 1000 && m.Currency == "TWD"
	}), "2024121200000000001").Return(linepay.ConfirmResult{OrderID: o.ID, TransactionID: "2024121200000000001"}, nil).Once()

	next, err := f.uc.Confirm(context.Background(), o.ID, "2024121200000000001")
	require.NoError(t, err)

	u, err := url.Parse(next)
	require.NoError(t, err)
	assert.Equal(t, "/success/"+o.ID, u.Path)
	assert.NotEmpty(t, u.Query().Get("receipt"))
	assert.Equal(t, model.OrderStatusConfirmed, f.status(t, o.ID))

	//完了画面はreceiptで見られる
	out, err := f.uc.Success(context.Background(), o.ID, u.Query().Get("receipt"))
	require.NoError(t, err)
	assert.Equal(t, string(model.OrderStatusConfirmed), out.Status)

	f.events.AssertCalled(t, "Publish", mock.Anything, mock.MatchedBy(func(ev usecase.OrderEvent) bool {
		return ev.Type == usecase.EventPaymentConfirmed && ev.OrderID == o.ID && ev.TransactionID == "2024121200000000001"
	}))
}

// Test: 確定済みなら再確定しない（ゲートウェイを呼ばずに同じ遷移先）
func TestConfirm_AlreadyConfirmedIsNoop(t *testing.T) {
	f := newFixture(t)
	o := f.createOrder(t, "1")
	f.requestPayment(t, o.ID, "2024121200000000001")
	f.gateway.On("ConfirmPayment", mock.Anything, mock.Anything, "2024121200000000001").
		Return(linepay.ConfirmResult{OrderID: o.ID, TransactionID: "2024121200000000001"}, nil).Once()

	first, err := f.uc.Confirm(context.Background(), o.ID, "2024121200000000001")
	require.NoError(t, err)
	second, err := f.uc.Confirm(context.Background(), o.ID, "2024121200000000001")
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(second, "/success/"+o.ID))
	assert.True(t, strings.HasPrefix(first, "/success/"+o.ID))
	f.gateway.AssertNumberOfCalls(t, "ConfirmPayment", 1)
	assert.Equal(t, model.OrderStatusConfirmed, f.status(t, o.ID))
}

// Test: 1124（金額不一致）→ GatewayError、状態は PAYMENT_REQUESTED のまま
func TestConfirm_GatewayErrorKeepsPaymentRequested(t *testing.T) {
	f := newFixture(t)
	o := f.createOrder(t, "1")
	f.requestPayment(t, o.ID, "2024121200000000001")

	f.gateway.On("ConfirmPayment", mock.Anything, mock.Anything, "2024121200000000001").
		Return(linepay.ConfirmResult{}, &linepay.GatewayError{Code: "1124", Raw: []byte(`{"returnCode":"1124"}`)}).Once()

	next, err := f.uc.Confirm(context.Background(), o.ID, "2024121200000000001")

	assert.Empty(t, next)
	ge, ok := linepay.AsGatewayError(err)
	require.True(t, ok)
	assert.Equal(t, "1124", ge.Code)
	assert.Equal(t, http.StatusBadRequest, httpStatus(t, err))
	assert.Equal(t, model.OrderStatusPaymentRequested, f.status(t, o.ID))
}

// Test: 取引がもう無い（1150）→ FAILED
func TestConfirm_TransactionClosedFails(t *testing.T) {
	f := newFixture(t)
	o := f.createOrder(t, "1")
	f.requestPayment(t, o.ID, "2024121200000000001")

	f.gateway.On("ConfirmPayment", mock.Anything, mock.Anything, "2024121200000000001").
		Return(linepay.ConfirmResult{}, &linepay.GatewayError{Code: "1150"}).Once()

	_, err := f.uc.Confirm(context.Background(), o.ID, "2024121200000000001")

	assert.Error(t, err)
	assert.Equal(t, model.OrderStatusFailed, f.status(t, o.ID))
	f.events.AssertCalled(t, "Publish", mock.Anything, mock.MatchedBy(func(ev usecase.OrderEvent) bool {
		return ev.Type == usecase.EventPaymentFailed && ev.OrderID == o.ID
	}))
}

func TestConfirm_TransportErrorKeepsPaymentRequested(t *testing.T) {
	f := newFixture(t)
	o := f.createOrder(t, "1")
	f.requestPayment(t, o.ID, "2024121200000000001")

	f.gateway.On("ConfirmPayment", mock.Anything, mock.Anything, "2024121200000000001").
		Return(linepay.ConfirmResult{}, &linepay.TransportError{Op: "confirm", Err: context.DeadlineExceeded}).Once()

	_, err := f.uc.Confirm(context.Background(), o.ID, "2024121200000000001")

	assert.Equal(t, http.StatusBadGateway, httpStatus(t, err))
	assert.Equal(t, model.OrderStatusPaymentRequested, f.status(t, o.ID))
}

// Test: 別の取引IDでのコールバックは拒否
func TestConfirm_TransactionMismatch(t *testing.T) {
	f := newFixture(t)
	o := f.createOrder(t, "1")
	f.requestPayment(t, o.ID, "2024121200000000001")

	_, err := f.uc.Confirm(context.Background(), o.ID, "2024121200000000099")

	assert.Equal(t, http.StatusBadRequest, httpStatus(t, err))
	f.gateway.AssertNotCalled(t, "ConfirmPayment", mock.Anything, mock.Anything, mock.Anything)
}

// Test: 取引IDが保存されていない注文でも、数字以外の取引IDはゲートウェイに渡さない
func TestConfirm_RejectsNonNumericTransactionID(t *testing.T) {
	f := newFixture(t)
	o := f.createOrder(t, "1")
	f.requestPayment(t, o.ID, "")

	for _, id := range []string{"999/refund?x=", "../refund", "12a"} {
		_, err := f.uc.Confirm(context.Background(), o.ID, id)

		assert.Equal(t, http.StatusBadRequest, httpStatus(t, err), id)
	}
	f.gateway.AssertNotCalled(t, "ConfirmPayment", mock.Anything, mock.Anything, mock.Anything)
	assert.Equal(t, model.OrderStatusPaymentRequested, f.status(t, o.ID))
}

// Test: ゲートウェイが別の注文を確定したと返したら CONFIRMED にしない
func TestConfirm_ResultMismatchKeepsPaymentRequested(t *testing.T) {
	f := newFixture(t)
	o := f.createOrder(t, "1")
	f.requestPayment(t, o.ID, "2024121200000000001")

	f.gateway.On("ConfirmPayment", mock.Anything, mock.Anything, "2024121200000000001").
		Return(linepay.ConfirmResult{OrderID: "order-other", TransactionID: "2024121200000000001"}, nil).Once()

	next, err := f.uc.Confirm(context.Background(), o.ID, "2024121200000000001")

	assert.Empty(t, next)
	_, ok := linepay.AsGatewayError(err)
	assert.True(t, ok, "err=%v", err)
	assert.Equal(t, http.StatusBadRequest, httpStatus(t, err))
	assert.Equal(t, model.OrderStatusPaymentRequested, f.status(t, o.ID))
	f.events.AssertNotCalled(t, "Publish", mock.Anything, mock.MatchedBy(func(ev usecase.OrderEvent) bool {
		return ev.Type == usecase.EventPaymentConfirmed
	}))
}

func TestConfirm_ResultTransactionMismatch(t *testing.T) {
	f := newFixture(t)
	o := f.createOrder(t, "1")
	f.requestPayment(t, o.ID, "2024121200000000001")

	f.gateway.On("ConfirmPayment", mock.Anything, mock.Anything, "2024121200000000001").
		Return(linepay.ConfirmResult{OrderID: o.ID, TransactionID: "2024121200000000099"}, nil).Once()

	_, err := f.uc.Confirm(context.Background(), o.ID, "2024121200000000001")

	assert.Error(t, err)
	assert.Equal(t, model.OrderStatusPaymentRequested, f.status(t, o.ID))
}

func TestConfirm_BeforeRequest(t *testing.T) {
	f := newFixture(t)
	o := f.createOrder(t, "1")

	_, err := f.uc.Confirm(context.Background(), o.ID, "2024121200000000001")

	assert.Equal(t, http.StatusConflict, httpStatus(t, err))
}

func TestConfirm_InvalidCallback(t *testing.T) {
	f := newFixture(t)

	_, err := f.uc.Confirm(context.Background(), "", "2024121200000000001")
	assert.Equal(t, http.StatusBadRequest, httpStatus(t, err))

	_, err = f.uc.Confirm(context.Background(), "order-1", " ")
	assert.Equal(t, http.StatusBadRequest, httpStatus(t, err))
}

func TestConfirm_UnknownOrder(t *testing.T) {
	f := newFixture(t)

	_, err := f.uc.Confirm(context.Background(), "missing", "2024121200000000001")

	assert.Equal(t, http.StatusNotFound, httpStatus(t, err))
}

// Test: 同じ注文への並行confirmでもゲートウェイは1回だけ
func TestConfirm_ConcurrentSameOrder(t *testing.T) {
	f := newFixture(t)
	o := f.createOrder(t, "1")
	f.requestPayment(t, o.ID, "2024121200000000001")

	f.gateway.On("ConfirmPayment", mock.Anything, mock.Anything, "2024121200000000001").
		Run(func(mock.Arguments) { time.Sleep(5 * time.Millisecond) }).
		Return(linepay.ConfirmResult{OrderID: o.ID, TransactionID: "2024121200000000001"}, nil)

	var wg sync.WaitGroup
	errs := make([]error, 8)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.uc.Confirm(context.Background(), o.ID, "2024121200000000001")
		}(i)
	}
	wg.Wait()

	for _, err := range errs {
		assert.NoError(t, err)
	}
	f.gateway.AssertNumberOfCalls(t, "ConfirmPayment", 1)
	assert.Equal(t, model.OrderStatusConfirmed, f.status(t, o.ID))
}

// =====================
// Cancel / Success
// =====================

func TestCancel(t *testing.T) {
	f := newFixture(t)
	o := f.createOrder(t, "1")
	f.requestPayment(t, o.ID, "2024121200000000001")

	out, err := f.uc.Cancel(context.Background(), o.ID)
	require.NoError(t, err)
	assert.Equal(t, string(model.OrderStatusCanceled), out.Status)

	//2回目も同じ結果
	_, err = f.uc.Cancel(context.Background(), o.ID)
	assert.NoError(t, err)

	//キャンセル後のconfirmは受け付けない
	_, err = f.uc.Confirm(context.Background(), o.ID, "2024121200000000001")
	assert.Equal(t, http.StatusConflict, httpStatus(t, err))
}

func TestCancel_NotRequested(t *testing.T) {
	f := newFixture(t)
	o := f.createOrder(t, "1")

	_, err := f.uc.Cancel(context.Background(), o.ID)

	assert.Equal(t, http.StatusConflict, httpStatus(t, err))
}

func TestSuccess_RequiresReceipt(t *testing.T) {
	f := newFixture(t)
	o := f.createOrder(t, "1")

	_, err := f.uc.Success(context.Background(), o.ID, "")
	assert.Equal(t, http.StatusForbidden, httpStatus(t, err))

	_, err = f.uc.Success(context.Background(), o.ID, "not-a-token")
	assert.Equal(t, http.StatusForbidden, httpStatus(t, err))
}

// Test: 別の注文のreceiptは使えない
func TestSuccess_ReceiptBoundToOrder(t *testing.T) {
	f := newFixture(t)
	a := f.createOrder(t, "1")
	b := f.createOrder(t, "2")
	f.requestPayment(t, a.ID, "2024121200000000002")
	f.gateway.On("ConfirmPayment", mock.Anything, mock.Anything, "2024121200000000002").
		Return(linepay.ConfirmResult{OrderID: a.ID, TransactionID: "2024121200000000002"}, nil).Once()

	next, err := f.uc.Confirm(context.Background(), a.ID, "2024121200000000002")
	require.NoError(t, err)
	u, err := url.Parse(next)
	require.NoError(t, err)

	_, err = f.uc.Success(context.Background(), b.ID, u.Query().Get("receipt"))
	assert.Equal(t, http.StatusForbidden, httpStatus(t, err))
}

// Test: 通知に失敗しても決済結果は変わらない
func TestPublishFailureDoesNotFailCheckout(t *testing.T) {
	orders := infraRepo.NewOrderMemoryRepository()
	catalog := infraRepo.NewCatalogMemoryRepository(model.SampleTemplates())
	gw := new(GatewayMock)
	events := new(PublisherMock)
	events.On("Publish", mock.Anything, mock.Anything).Return(assert.AnError)

	uc := usecase.NewCheckoutUsecase(orders, catalog, gw, events,
		token.NewReceiptJWT("s", time.Hour), &seqIDs{}, fixedClock{now: time.Now()},
		slog.New(slog.NewTextHandler(io.Discard, nil)))

	o, err := uc.CreateOrder(context.Background(), "1")
	require.NoError(t, err)

	gw.On("RequestPayment", mock.Anything, mock.Anything).
		Return(linepay.PaymentRequest{PaymentURL: "https://pay.example/abc"}, nil).Once()

	paymentURL, err := uc.Checkout(context.Background(), o.ID)
	require.NoError(t, err)
	assert.Equal(t, "https://pay.example/abc", paymentURL)

	stored, err := orders.FindByID(context.Background(), o.ID)
	require.NoError(t, err)
	assert.Equal(t, model.OrderStatusPaymentRequested, stored.Status)
	assert.Empty(t, stored.TransactionID)
}

var _ repo.OrderRepository = (*infraRepo.OrderMemoryRepository)(nil)
