// Package attempts counts how many times a message has been handled.
package attempts

import (
	"container/list"
	"context"
	"sync"
	"sync/atomic"
)

const defaultMaxSize = 10000

// Tracker records handling attempts per message key.
type Tracker interface {
	// Record increments the attempt count of key and returns the new value.
	Record(ctx context.Context, key string) int

	// Forget drops key once its message is settled for good.
	Forget(ctx context.Context, key string)

	Size() int64
}

type entry struct {
	key   string
	count int
}

// inMemoryTracker keeps at most maxSize keys and evicts the least recently
// touched one. maxSize <= 0 disables eviction.
type inMemoryTracker struct {
	mu      sync.Mutex
	entries map[string]*list.Element
	order   *list.List // front is most recently touched
	maxSize int
	size    atomic.Int64
}

// NewInMemoryTracker creates a tracker with configuration options.
func NewInMemoryTracker(opts ...Option) Tracker {
	t := &inMemoryTracker{
		maxSize: defaultMaxSize,
		entries: make(map[string]*list.Element),
		order:   list.New(),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

func (t *inMemoryTracker) Record(_ context.Context, key string) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	if el, ok := t.entries[key]; ok {
		e := el.Value.(*entry)
		e.count++
		t.order.MoveToFront(el)
		return e.count
	}

	if t.maxSize > 0 && len(t.entries) >= t.maxSize {
		t.evictOldest()
	}
	t.entries[key] = t.order.PushFront(&entry{key: key, count: 1})
	t.size.Add(1)
	return 1
}

func (t *inMemoryTracker) Forget(_ context.Context, key string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if el, ok := t.entries[key]; ok {
		t.order.Remove(el)
		delete(t.entries, key)
		t.size.Add(-1)
	}
}

// evictOldest must be called with t.mu held.
func (t *inMemoryTracker) evictOldest() {
	el := t.order.Back()
	if el == nil {
		return
	}
	t.order.Remove(el)
	delete(t.entries, el.Value.(*entry).key)
	t.size.Add(-1)
}

func (t *inMemoryTracker) Size() int64 {
	return t.size.Load()
}
