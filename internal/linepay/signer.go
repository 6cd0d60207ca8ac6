package linepay

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"net/http"
)

const (
	HeaderChannelID     = "X-LINE-ChannelId"
	HeaderNonce         = "X-LINE-Authorization-Nonce"
	HeaderAuthorization = "X-LINE-Authorization"
)

// Credentials はチャネルごとの署名情報
type Credentials struct {
	ChannelID string
	SecretKey string
	Version   string
}

// CanonicalJSON は署名対象かつ送信するバイト列を作る。
// キー順は struct のフィールド宣言順（mapならソート順）、空白なし、HTMLエスケープなし、末尾改行なし。
// ゲートウェイはこのバイト列そのものを検証するので、送信時も必ずこの戻り値を使う。
func CanonicalJSON(v interface{}) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

// Sign は base64(HMAC-SHA256(secretKey, secretKey + "/" + version + uri + body + nonce))
func Sign(secretKey, version, uri string, body []byte, nonce string) string {
	mac := hmac.New(sha256.New, []byte(secretKey))
	mac.Write([]byte(secretKey + "/" + version + uri))
	mac.Write(body)
	mac.Write([]byte(nonce))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

// SignedHeaders はリクエストに付ける認証ヘッダを返す
func SignedHeaders(c Credentials, uri string, body []byte, nonce string) http.Header {
	h := make(http.Header, 4)
	h.Set(HeaderChannelID, c.ChannelID)
	h.Set("Content-Type", "application/json")
	h.Set(HeaderNonce, nonce)
	h.Set(HeaderAuthorization, Sign(c.SecretKey, c.Version, uri, body, nonce))
	return h
}
