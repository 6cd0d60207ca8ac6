package main

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"checkout/internal/config"
	"checkout/internal/domain/model"
	"checkout/internal/handler"
	"checkout/internal/infra/db"
	"checkout/internal/infra/messaging"
	infraRepo "checkout/internal/infra/repository"
	"checkout/internal/infra/token"
	"checkout/internal/linepay"
	repo "checkout/internal/repository"
	"checkout/internal/server"
	"checkout/internal/usecase"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
)

type uuidGenerator struct{}

func (g *uuidGenerator) NewID() string {
	return uuid.NewString()
}

type realClock struct{}

func (c *realClock) Now() time.Time {
	return time.Now()
}

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	// .env が無い環境（コンテナ等）は環境変数だけで動かす
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		fatal(logger, "failed to load .env", err)
	}

	cfg, err := config.Load()
	if err != nil {
		fatal(logger, "invalid configuration", err)
	}

	//注文ストア
	var orders repo.OrderRepository
	switch cfg.OrderStore {
	case "postgres":
		gormDB, err := db.Connect(cfg.DatabaseURL)
		if err != nil {
			fatal(logger, "failed to connect database", err)
		}
		gormRepo := infraRepo.NewOrderGormRepository(gormDB)
		if err := gormRepo.AutoMigrate(); err != nil {
			fatal(logger, "failed to migrate", err)
		}
		orders = gormRepo
	default:
		orders = infraRepo.NewOrderMemoryRepository()
	}
	catalog := infraRepo.NewCatalogMemoryRepository(model.SampleTemplates())

	//注文イベント
	var events usecase.EventPublisher = messaging.NewLogPublisher(logger)
	if cfg.AMQPURL != "" {
		pub, err := messaging.DialAMQPPublisher(cfg.AMQPURL, cfg.AMQPQueue)
		if err != nil {
			fatal(logger, "failed to connect rabbitmq", err)
		}
		defer pub.Close()
		events = pub
	}

	//LINE Pay client
	gateway := linepay.NewClient(linepay.Options{
		Credentials: linepay.Credentials{
			ChannelID: cfg.LinePay.ChannelID,
			SecretKey: cfg.LinePay.SecretKey,
			Version:   cfg.LinePay.Version,
		},
		Site:     cfg.LinePay.Site,
		Redirect: linepay.NewRedirectURLs(cfg.LinePay.ReturnHost, cfg.LinePay.ConfirmURL, cfg.LinePay.CancelURL),
		Timeout:  cfg.LinePay.Timeout,
		Logger:   logger,
	})

	receipts := token.NewReceiptJWT(cfg.ReceiptSecret, cfg.ReceiptTTL)

	//Usecase / Handler生成
	checkoutUC := usecase.NewCheckoutUsecase(orders, catalog, gateway, events, receipts, &uuidGenerator{}, &realClock{}, logger)
	checkoutH := handler.NewCheckoutHandler(checkoutUC, cfg.LinePay.ConfirmURL, cfg.LinePay.CancelURL)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	//Server起動
	e := server.New(logger, checkoutH)
	logger.Info("server starting", "addr", cfg.Addr(), "order_store", cfg.OrderStore)
	if err := server.Start(ctx, cfg.Addr(), e); err != nil {
		fatal(logger, "server stopped", err)
	}
}

func fatal(logger *slog.Logger, msg string, err error) {
	logger.Error(msg, "error", err)
	os.Exit(1)
}
