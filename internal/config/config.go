package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"
)

// ErrMissing は必須の設定が無いときのエラー（起動時に落とす）
var ErrMissing = errors.New("configuration error")

// LINE Pay チャネル設定
type LinePay struct {
	ChannelID  string // X-LINE-ChannelId
	SecretKey  string // HMAC署名キー
	Site       string // https://sandbox-api-pay.line.me
	Version    string // v3
	ReturnHost string // 決済後に戻ってくるホスト
	ConfirmURL string // /linePay/confirm
	CancelURL  string // /linePay/cancel
	Timeout    time.Duration
}

// Configはアプリ全体の設定
type Config struct {
	Port string // サーバーポート（8080）

	LinePay LinePay

	OrderStore  string // memory / postgres
	DatabaseURL string // ORDER_STORE=postgres のときのみ使う

	AMQPURL   string // 空なら注文イベントはログ出力のみ
	AMQPQueue string

	ReceiptSecret string // 完了画面トークンの署名シークレット
	ReceiptTTL    time.Duration
}

// Loadは環境変数
func Load() (Config, error) {
	timeout, err := durationOr("GATEWAY_TIMEOUT", 10*time.Second)
	if err != nil {
		return Config{}, err
	}
	receiptTTL, err := durationOr("RECEIPT_TTL", 30*time.Minute)
	if err != nil {
		return Config{}, err
	}

	cfg := Config{
		Port: getenv("PORT", "8080"),

		LinePay: LinePay{
			ChannelID:  os.Getenv("LINEPAY_CHANNEL_ID"),
			SecretKey:  os.Getenv("LINEPAY_CHANNEL_SECRET_KEY"),
			Site:       strings.TrimRight(os.Getenv("LINEPAY_SITE"), "/"),
			Version:    os.Getenv("LINEPAY_VERSION"),
			ReturnHost: strings.TrimRight(os.Getenv("LINEPAY_RETURN_HOST"), "/"),
			ConfirmURL: os.Getenv("LINEPAY_RETURN_CONFIRM_URL"),
			CancelURL:  os.Getenv("LINEPAY_RETURN_CANCEL_URL"),
			Timeout:    timeout,
		},

		OrderStore:  getenv("ORDER_STORE", "memory"),
		DatabaseURL: databaseURL(),

		AMQPURL:   os.Getenv("AMQP_URL"),
		AMQPQueue: getenv("AMQP_QUEUE", "order_events"),

		ReceiptSecret: os.Getenv("RECEIPT_SECRET"),
		ReceiptTTL:    receiptTTL,
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate は必須チェック
func (c Config) Validate() error {
	required := []struct {
		key string
		val string
	}{
		{"LINEPAY_CHANNEL_ID", c.LinePay.ChannelID},
		{"LINEPAY_CHANNEL_SECRET_KEY", c.LinePay.SecretKey},
		{"LINEPAY_SITE", c.LinePay.Site},
		{"LINEPAY_VERSION", c.LinePay.Version},
		{"LINEPAY_RETURN_HOST", c.LinePay.ReturnHost},
		{"LINEPAY_RETURN_CONFIRM_URL", c.LinePay.ConfirmURL},
		{"LINEPAY_RETURN_CANCEL_URL", c.LinePay.CancelURL},
		{"RECEIPT_SECRET", c.ReceiptSecret},
	}
	for _, r := range required {
		if strings.TrimSpace(r.val) == "" {
			return fmt.Errorf("%w: %s is required", ErrMissing, r.key)
		}
	}

	if _, err := url.ParseRequestURI(c.LinePay.Site); err != nil {
		return fmt.Errorf("%w: LINEPAY_SITE must be an absolute URL", ErrMissing)
	}
	if _, err := url.ParseRequestURI(c.LinePay.ReturnHost); err != nil {
		return fmt.Errorf("%w: LINEPAY_RETURN_HOST must be an absolute URL", ErrMissing)
	}
	if c.LinePay.Timeout <= 0 {
		return fmt.Errorf("%w: GATEWAY_TIMEOUT must be positive", ErrMissing)
	}

	switch c.OrderStore {
	case "memory":
	case "postgres":
		if c.DatabaseURL == "" {
			return fmt.Errorf("%w: DATABASE_URL is required when ORDER_STORE=postgres", ErrMissing)
		}
	default:
		return fmt.Errorf("%w: ORDER_STORE must be memory or postgres", ErrMissing)
	}
	return nil
}

// Addr は ":8080" 形式のlisten先
func (c Config) Addr() string {
	if strings.HasPrefix(c.Port, ":") {
		return c.Port
	}
	return ":" + c.Port
}

// DATABASE_URL があれば最優先で使う
func databaseURL() string {
	if dsn := os.Getenv("DATABASE_URL"); dsn != "" {
		return dsn
	}
	if os.Getenv("POSTGRES_HOST") == "" {
		return ""
	}

	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		os.Getenv("POSTGRES_HOST"),
		getenv("POSTGRES_PORT", "5432"),
		getenv("POSTGRES_USER", "postgres"),
		getenv("POSTGRES_PASSWORD", "postgres"),
		getenv("POSTGRES_DB", "app"),
		getenv("POSTGRES_SSLMODE", "disable"),
	)
}

func durationOr(key string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%w: %s must be a duration: %v", ErrMissing, key, err)
	}
	return d, nil
}

func getenv(key string, def string) string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	return v
}
