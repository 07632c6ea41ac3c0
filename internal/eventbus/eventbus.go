package eventbus

import (
	"sort"
	"sync"
)

// Handler consumes one event of type T.
type Handler[T any] func(T) error

// Table is a registered-callback table. Handlers are invoked synchronously
// in registration order; an error from one handler does not prevent the
// others from running.
type Table[T any] struct {
	mu       sync.RWMutex
	next     int
	handlers map[int]Handler[T]
}

// NewTable creates an empty Table.
func NewTable[T any]() *Table[T] { return &Table[T]{handlers: map[int]Handler[T]{}} }

// Register adds h and returns the function removing it again.
func (t *Table[T]) Register(h Handler[T]) (unregister func()) {
	t.mu.Lock()
	id := t.next
	t.next++
	t.handlers[id] = h
	t.mu.Unlock()
	return func() {
		t.mu.Lock()
		delete(t.handlers, id)
		t.mu.Unlock()
	}
}

// Len returns the number of registered handlers.
func (t *Table[T]) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.handlers)
}

// Dispatch calls every handler with e and returns the errors they reported.
// A panicking handler is reported through onPanic and skipped.
func (t *Table[T]) Dispatch(e T, onPanic func(any)) []error {
	t.mu.RLock()
	ids := make([]int, 0, len(t.handlers))
	for id := range t.handlers {
		ids = append(ids, id)
	}
	hs := make([]Handler[T], 0, len(ids))
	sort.Ints(ids)
	for _, id := range ids {
		hs = append(hs, t.handlers[id])
	}
	t.mu.RUnlock()

	var errs []error
	for _, h := range hs {
		if err := call(h, e, onPanic); err != nil {
			errs = append(errs, err)
		}
	}
	return errs
}

func call[T any](h Handler[T], e T, onPanic func(any)) (err error) {
	defer func() {
		if r := recover(); r != nil {
			if onPanic != nil {
				onPanic(r)
			}
		}
	}()
	return h(e)
}
