package planboard

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/kilianp07/planboard/core/model"
)

func TestKeyedLockSerializesSameKey(t *testing.T) {
	l := NewKeyedLock()
	var active, maxActive atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = l.WithLock(context.Background(), "cp1", tomorrow, func() error {
				n := active.Add(1)
				for {
					m := maxActive.Load()
					if n <= m || maxActive.CompareAndSwap(m, n) {
						break
					}
				}
				time.Sleep(time.Millisecond)
				active.Add(-1)
				return nil
			})
		}()
	}
	wg.Wait()
	if maxActive.Load() != 1 {
		t.Fatalf("expected exclusive access, saw %d concurrent holders", maxActive.Load())
	}
	if l.Len() != 0 {
		t.Fatalf("expected entries to be released, got %d", l.Len())
	}
}

func TestKeyedLockDifferentKeysDoNotBlock(t *testing.T) {
	l := NewKeyedLock()
	done := make(chan struct{})
	err := l.WithLock(context.Background(), "cp1", tomorrow, func() error {
		go func() {
			_ = l.WithLock(context.Background(), "cp2", tomorrow, func() error { return nil })
			_ = l.WithLock(context.Background(), "cp1", model.DateOf(2026, 6, 3), func() error { return nil })
			close(done)
		}()
		select {
		case <-done:
			return nil
		case <-time.After(time.Second):
			return errors.New("blocked by unrelated key")
		}
	})
	if err != nil {
		t.Fatal(err)
	}
}

func TestKeyedLockHonoursContext(t *testing.T) {
	l := NewKeyedLock()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	err := l.WithLock(context.Background(), "cp1", tomorrow, func() error {
		return l.WithLock(ctx, "cp1", tomorrow, func() error { return nil })
	})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline error, got %v", err)
	}
}
