package handler

import (
	"net/http"

	"checkout/internal/usecase"

	"github.com/labstack/echo/v4"
)

// チェックアウトとLINE Payのコールバック
type CheckoutHandler struct {
	uc          *usecase.CheckoutUsecase
	confirmPath string
	cancelPath  string
}

// DI
func NewCheckoutHandler(uc *usecase.CheckoutUsecase, confirmPath string, cancelPath string) *CheckoutHandler {
	return &CheckoutHandler{uc: uc, confirmPath: confirmPath, cancelPath: cancelPath}
}

func (h *CheckoutHandler) RegisterRoutes(e *echo.Echo) {
	e.GET("/checkout/:id", h.checkout)
	e.GET("/orders/:id", h.detail)
	e.GET("/success/:id", h.success)

	e.POST("/linePay/:orderId", h.requestPayment)
	//ゲートウェイからのリダイレクト先
	e.GET(h.confirmPath, h.confirm)
	e.GET(h.cancelPath, h.cancel)
}

// ひな形IDから注文を作る
func (h *CheckoutHandler) checkout(c echo.Context) error {
	out, err := h.uc.CreateOrder(c.Request().Context(), c.Param("id"))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, out)
}

func (h *CheckoutHandler) detail(c echo.Context) error {
	out, err := h.uc.GetOrder(c.Request().Context(), c.Param("id"))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, out)
}

// 決済ページへリダイレクト
func (h *CheckoutHandler) requestPayment(c echo.Context) error {
	paymentURL, err := h.uc.Checkout(c.Request().Context(), c.Param("orderId"))
	if err != nil {
		return writeError(c, err)
	}
	return c.Redirect(http.StatusFound, paymentURL)
}

// GET ?transactionId=...&orderId=...
func (h *CheckoutHandler) confirm(c echo.Context) error {
	next, err := h.uc.Confirm(c.Request().Context(), c.QueryParam("orderId"), c.QueryParam("transactionId"))
	if err != nil {
		return writeError(c, err)
	}
	return c.Redirect(http.StatusFound, next)
}

func (h *CheckoutHandler) cancel(c echo.Context) error {
	out, err := h.uc.Cancel(c.Request().Context(), c.QueryParam("orderId"))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, out)
}

func (h *CheckoutHandler) success(c echo.Context) error {
	out, err := h.uc.Success(c.Request().Context(), c.Param("id"), c.QueryParam("receipt"))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, out)
}
