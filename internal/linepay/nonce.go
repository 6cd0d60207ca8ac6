package linepay

import (
	"strconv"
	"sync/atomic"
	"time"
)

// NonceSource はリクエストごとに一意なnonceを返す
type NonceSource interface {
	Next() string
}

// MonotonicNonce はミリ秒時刻ベースで、同一ミリ秒に複数呼ばれても必ず増加する
type MonotonicNonce struct {
	now  func() time.Time
	last atomic.Int64
}

func NewMonotonicNonce(now func() time.Time) *MonotonicNonce {
	if now == nil {
		now = time.Now
	}
	return &MonotonicNonce{now: now}
}

func (n *MonotonicNonce) Next() string {
	for {
		prev := n.last.Load()
		next := n.now().UnixMilli()
		if next <= prev {
			next = prev + 1
		}
		if n.last.CompareAndSwap(prev, next) {
			return strconv.FormatInt(next, 10)
		}
	}
}
