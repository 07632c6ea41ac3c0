package planboard

import (
	"context"
	"sync"
	"time"

	"github.com/kilianp07/planboard/core/model"
)

type lockKey struct {
	group  string
	period time.Time
}

type lockEntry struct {
	ch   chan struct{}
	refs int
}

// KeyedLock serializes work per (connection group, period). Entries are
// dropped once no goroutine holds or waits for them.
type KeyedLock struct {
	mu      sync.Mutex
	entries map[lockKey]*lockEntry
}

// NewKeyedLock returns an empty lock table.
func NewKeyedLock() *KeyedLock {
	return &KeyedLock{entries: map[lockKey]*lockEntry{}}
}

// WithLock runs fn while holding the lock of (group, period). It returns
// ctx.Err() without running fn when ctx ends while waiting.
func (l *KeyedLock) WithLock(ctx context.Context, group string, period time.Time, fn func() error) error {
	k := lockKey{group: group, period: model.Day(period)}
	l.mu.Lock()
	e, ok := l.entries[k]
	if !ok {
		e = &lockEntry{ch: make(chan struct{}, 1)}
		l.entries[k] = e
	}
	e.refs++
	l.mu.Unlock()

	defer l.release(k, e)
	select {
	case e.ch <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}
	defer func() { <-e.ch }()
	return fn()
}

func (l *KeyedLock) release(k lockKey, e *lockEntry) {
	l.mu.Lock()
	e.refs--
	if e.refs == 0 {
		delete(l.entries, k)
	}
	l.mu.Unlock()
}

// Len returns the number of live entries.
func (l *KeyedLock) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}
