package resilience

import (
	"context"
	"sync"

	"golang.org/x/sync/semaphore"
)

// KeyedLimiter bounds concurrent operations per key, independently of
// any global bound. Waiters for a key are admitted in FIFO order. The
// bound for a key is fixed by the first call that uses it.
type KeyedLimiter struct {
	mu   sync.Mutex
	sems map[string]*semaphore.Weighted
}

// NewKeyedLimiter returns an empty limiter.
func NewKeyedLimiter() *KeyedLimiter {
	return &KeyedLimiter{sems: make(map[string]*semaphore.Weighted)}
}

// Run executes fn once a slot for key is free and returns fn's error.
// Cancelling ctx while waiting gives up the caller's place in line;
// once admitted, fn owns its own cancellation.
func (l *KeyedLimiter) Run(ctx context.Context, key string, limit int, fn func() error) error {
	sem := l.sem(key, limit)
	if err := sem.Acquire(ctx, 1); err != nil {
		return err
	}
	defer sem.Release(1)
	return fn()
}

func (l *KeyedLimiter) sem(key string, limit int) *semaphore.Weighted {
	if limit < 1 {
		limit = 1
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if s, ok := l.sems[key]; ok {
		return s
	}
	s := semaphore.NewWeighted(int64(limit))
	l.sems[key] = s
	return s
}
