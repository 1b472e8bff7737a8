package infrastructure

import (
	"context"
	"sync"
)

// MemoryLocker 进程内的按商品互斥锁，等待时可被 ctx 取消
type MemoryLocker struct {
	mu    sync.Mutex
	locks map[string]chan struct{}
}

func NewMemoryLocker() *MemoryLocker {
	return &MemoryLocker{locks: make(map[string]chan struct{})}
}

func (l *MemoryLocker) Lock(ctx context.Context, productName string) (func(), error) {
	l.mu.Lock()
	ch, ok := l.locks[productName]
	if !ok {
		ch = make(chan struct{}, 1)
		l.locks[productName] = ch
	}
	l.mu.Unlock()

	select {
	case ch <- struct{}{}:
		var once sync.Once
		return func() { once.Do(func() { <-ch }) }, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
