package token

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const receiptIssuer = "checkout"

// ReceiptJWT は完了画面のトークン（sub=注文ID）をHS256で発行・検証する
type ReceiptJWT struct {
	secret []byte
	ttl    time.Duration
}

func NewReceiptJWT(secret string, ttl time.Duration) *ReceiptJWT {
	return &ReceiptJWT{secret: []byte(secret), ttl: ttl}
}

func (r *ReceiptJWT) Issue(orderID string, now time.Time) (string, error) {
	claims := jwt.RegisteredClaims{
		Issuer:    receiptIssuer,
		Subject:   orderID,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(r.ttl)),
	}

	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return tok.SignedString(r.secret)
}

func (r *ReceiptJWT) Verify(raw string, orderID string, now time.Time) error {
	token, err := jwt.ParseWithClaims(raw, &jwt.RegisteredClaims{},
		func(t *jwt.Token) (interface{}, error) {
			return r.secret, nil
		},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(receiptIssuer),
		jwt.WithSubject(orderID),
		jwt.WithTimeFunc(func() time.Time { return now }),
	)
	if err != nil {
		return fmt.Errorf("invalid receipt: %w", err)
	}
	if !token.Valid {
		return errors.New("invalid receipt")
	}
	return nil
}
