package usecase

import "sync"

// 注文IDごとのロック。同じ注文の request / confirm / cancel を直列にする
type orderLocks struct {
	mu    sync.Mutex
	locks map[string]*orderLock
}

type orderLock struct {
	mu   sync.Mutex
	refs int
}

func newOrderLocks() *orderLocks {
	return &orderLocks{locks: make(map[string]*orderLock)}
}

// lock は解放関数を返す。使われなくなったエントリは消す
func (l *orderLocks) lock(orderID string) func() {
	l.mu.Lock()
	e, ok := l.locks[orderID]
	if !ok {
		e = &orderLock{}
		l.locks[orderID] = e
	}
	e.refs++
	l.mu.Unlock()

	e.mu.Lock()
	return func() {
		e.mu.Unlock()

		l.mu.Lock()
		e.refs--
		if e.refs == 0 {
			delete(l.locks, orderID)
		}
		l.mu.Unlock()
	}
}

func (l *orderLocks) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}
