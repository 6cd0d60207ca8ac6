package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"checkout/internal/handler"
	"checkout/internal/middleware"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
)

// New はルートとミドルウェアを登録した echo を返す
func New(logger *slog.Logger, checkoutH *handler.CheckoutHandler) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(echomw.Recover())
	e.Use(echomw.RequestID())
	e.Use(middleware.RequestLogger(logger))

	RegisterRoutes(e, checkoutH)
	return e
}

func RegisterRoutes(e *echo.Echo, checkoutH *handler.CheckoutHandler) {
	e.GET("/healthz", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})
	checkoutH.RegisterRoutes(e)
}

// Start はctxがキャンセルされるまで待ち、graceful shutdownする
func Start(ctx context.Context, addr string, e *echo.Echo) error {
	errCh := make(chan error, 1)
	go func() {
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return e.Shutdown(shutdownCtx)
}
