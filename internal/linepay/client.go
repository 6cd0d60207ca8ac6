package linepay

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"checkout/internal/domain/model"
)

const (
	requestURI       = "/payments/request"
	maxResponseBytes = 1 << 20
	defaultTimeout   = 10 * time.Second
)

// Options は Client の設定
type Options struct {
	Credentials Credentials
	Site        string // https://sandbox-api-pay.line.me
	Redirect    RedirectURLs
	Timeout     time.Duration

	HTTPClient *http.Client // nil なら Timeout 付きで作る
	Nonce      NonceSource  // nil なら MonotonicNonce
	Logger     *slog.Logger
}

// Client は LINE Pay の request / confirm API を署名付きで呼ぶ
type Client struct {
	creds    Credentials
	site     string
	redirect RedirectURLs
	timeout  time.Duration
	http     *http.Client
	nonce    NonceSource
	logger   *slog.Logger
}

func NewClient(opts Options) *Client {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	hc := opts.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: timeout}
	}
	nonce := opts.Nonce
	if nonce == nil {
		nonce = NewMonotonicNonce(time.Now)
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Client{
		creds:    opts.Credentials,
		site:     opts.Site,
		redirect: opts.Redirect,
		timeout:  timeout,
		http:     hc,
		nonce:    nonce,
		logger:   logger,
	}
}

// PaymentRequest は決済リクエストの結果
type PaymentRequest struct {
	PaymentURL    string
	TransactionID string
}

// ConfirmResult は決済確定の結果
type ConfirmResult struct {
	OrderID       string
	TransactionID string
}

type apiResponse struct {
	ReturnCode    string          `json:"returnCode"`
	ReturnMessage string          `json:"returnMessage"`
	Info          json.RawMessage `json:"info"`
}

type requestInfo struct {
	PaymentURL struct {
		Web string `json:"web"`
		App string `json:"app"`
	} `json:"paymentUrl"`
	// 19桁になるので数値のまま受ける
	TransactionID json.Number `json:"transactionId"`
}

type confirmInfo struct {
	OrderID       string      `json:"orderId"`
	TransactionID json.Number `json:"transactionId"`
}

// RequestPayment は決済ページのURLを取得する
func (c *Client) RequestPayment(ctx context.Context, o model.Order) (PaymentRequest, error) {
	body := BuildRequestBody(o, c.redirect)

	res, raw, err := c.post(ctx, "request", requestURI, body)
	if err != nil {
		return PaymentRequest{}, err
	}

	var info requestInfo
	if len(res.Info) > 0 {
		if err := json.Unmarshal(res.Info, &info); err != nil {
			return PaymentRequest{}, &GatewayError{Code: res.ReturnCode, Message: "malformed info: " + err.Error(), Raw: raw}
		}
	}
	if info.PaymentURL.Web == "" {
		return PaymentRequest{}, &GatewayError{Code: res.ReturnCode, Message: "response has no info.paymentUrl.web", Raw: raw}
	}

	txID := info.TransactionID.String()
	if txID != "" && !ValidTransactionID(txID) {
		return PaymentRequest{}, &GatewayError{Code: res.ReturnCode, Message: "malformed info.transactionId", Raw: raw}
	}

	return PaymentRequest{
		PaymentURL:    info.PaymentURL.Web,
		TransactionID: txID,
	}, nil
}

// ConfirmPayment は決済を確定する。金額と通貨はゲートウェイ側で照合される
func (c *Client) ConfirmPayment(ctx context.Context, o model.Order, transactionID string) (ConfirmResult, error) {
	if !ValidTransactionID(transactionID) {
		return ConfirmResult{}, ErrInvalidTransactionID
	}

	uri := fmt.Sprintf("/payments/%s/confirm", url.PathEscape(transactionID))
	res, _, err := c.post(ctx, "confirm", uri, BuildConfirmBody(o))
	if err != nil {
		return ConfirmResult{}, err
	}

	out := ConfirmResult{OrderID: o.ID, TransactionID: transactionID}

	var info confirmInfo
	if len(res.Info) > 0 && json.Unmarshal(res.Info, &info) == nil {
		if info.OrderID != "" {
			out.OrderID = info.OrderID
		}
		if info.TransactionID != "" {
			out.TransactionID = info.TransactionID.String()
		}
	}
	return out, nil
}

func (c *Client) post(ctx context.Context, op string, uri string, payload interface{}) (apiResponse, []byte, error) {
	body, err := CanonicalJSON(payload)
	if err != nil {
		return apiResponse{}, nil, fmt.Errorf("linepay: encode %s body: %w", op, err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	endpoint := c.site + "/" + c.creds.Version + uri
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return apiResponse{}, nil, fmt.Errorf("linepay: build %s request: %w", op, err)
	}
	// nonceは呼び出しごとに新しく取る
	req.Header = SignedHeaders(c.creds, uri, body, c.nonce.Next())

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.logger.WarnContext(ctx, "linepay call failed", "op", op, "uri", uri, "error", err, "elapsed", time.Since(start))
		return apiResponse{}, nil, &TransportError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return apiResponse{}, nil, &TransportError{Op: op, StatusCode: resp.StatusCode, Err: err}
	}

	var res apiResponse
	if err := json.Unmarshal(raw, &res); err != nil || res.ReturnCode == "" {
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return apiResponse{}, raw, &TransportError{Op: op, StatusCode: resp.StatusCode, Err: errors.New("unexpected gateway response")}
		}
		return apiResponse{}, raw, &GatewayError{Message: "malformed gateway response", Raw: raw}
	}

	c.logger.InfoContext(ctx, "linepay call",
		"op", op,
		"uri", uri,
		"http_status", resp.StatusCode,
		"return_code", res.ReturnCode,
		"elapsed", time.Since(start),
	)

	if res.ReturnCode != ReturnCodeSuccess {
		return res, raw, &GatewayError{Code: res.ReturnCode, Message: res.ReturnMessage, Raw: raw}
	}
	return res, raw, nil
}
