package linepay

import (
	"errors"
	"fmt"
)

// ReturnCodeSuccess はゲートウェイの唯一の成功コード
const ReturnCodeSuccess = "0000"

// ErrInvalidTransactionID は transactionId が数字列でないとき。署名付きURLに入るので必ず弾く
var ErrInvalidTransactionID = errors.New("linepay: invalid transaction id")

// ValidTransactionID はゲートウェイの取引ID（数字のみ）かどうか
func ValidTransactionID(id string) bool {
	if id == "" {
		return false
	}
	for i := 0; i < len(id); i++ {
		if id[i] < '0' || id[i] > '9' {
			return false
		}
	}
	return true
}

// GatewayError は returnCode が 0000 以外、またはレスポンス形式が壊れているとき。
// Raw は生のレスポンス（ログ用。利用者には返さない）
type GatewayError struct {
	Code    string
	Message string
	Raw     []byte
}

func (e *GatewayError) Error() string {
	return fmt.Sprintf("linepay: gateway returned %s: %s", e.Code, e.Message)
}

// Retryable は一時的なエラーかどうか
func (e *GatewayError) Retryable() bool {
	return isRetryableCode(e.Code)
}

// TransactionClosed はこの取引がもう確定できない状態か
func (e *GatewayError) TransactionClosed() bool {
	return isTransactionClosedCode(e.Code)
}

// Description は利用者に見せてよい説明
func (e *GatewayError) Description() string {
	return describeCode(e.Code)
}

// TransportError は通信失敗・タイムアウト・解釈できない非2xx
type TransportError struct {
	Op         string
	StatusCode int
	Err        error
}

func (e *TransportError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("linepay: %s: http %d: %v", e.Op, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("linepay: %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

func AsGatewayError(err error) (*GatewayError, bool) {
	var ge *GatewayError
	ok := errors.As(err, &ge)
	return ge, ok
}

func AsTransportError(err error) (*TransportError, bool) {
	var te *TransportError
	ok := errors.As(err, &te)
	return te, ok
}
