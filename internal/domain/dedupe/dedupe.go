// Package dedupe tracks tick ids so that every tick is applied at most once.
package dedupe

import (
	"context"
	"sync"
	"sync/atomic"
)

// Deduper records seen tick IDs to ensure at-most-once processing.
type Deduper interface {
	// SeenAndRecord atomically checks if id was seen and records it if not.
	// Returns true if id was already seen, false if it was newly recorded.
	SeenAndRecord(ctx context.Context, id string) bool

	// Unrecord forgets id so it can be retried. Used when a tick was recorded
	// but could not be queued.
	Unrecord(ctx context.Context, id string)

	Size() int64
}

// node is an entry of the recency list.
type node struct {
	id         string
	prev, next *node
}

func (n *node) reset() {
	n.id = ""
	n.prev = nil
	n.next = nil
}

// inMemoryDeduper keeps ids in a map plus a doubly linked list ordered by
// insertion. In bounded mode (maxSize > 0) the oldest id is evicted first;
// every operation is O(1). In unbounded mode only the map is used.
type inMemoryDeduper struct {
	mu       sync.Mutex
	seen     map[string]*node
	head     *node // newest
	tail     *node // oldest
	maxSize  int
	size     atomic.Int64
	nodePool sync.Pool
}

// NewInMemoryDeduper creates a new in-memory deduper with configuration options.
func NewInMemoryDeduper(opts ...Option) Deduper {
	d := &inMemoryDeduper{
		maxSize: 50000,
	}
	for _, opt := range opts {
		opt(d)
	}
	d.seen = make(map[string]*node)
	d.nodePool = sync.Pool{
		New: func() any { return &node{} },
	}
	return d
}

// SeenAndRecord implements Deduper.
func (d *inMemoryDeduper) SeenAndRecord(ctx context.Context, id string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, exists := d.seen[id]; exists {
		return true
	}

	if d.maxSize <= 0 {
		d.seen[id] = nil
		d.size.Add(1)
		return false
	}

	if len(d.seen) >= d.maxSize {
		d.evictOldest()
	}
	n := d.nodePool.Get().(*node)
	n.id = id
	n.next = d.head
	if d.head != nil {
		d.head.prev = n
	}
	d.head = n
	if d.tail == nil {
		d.tail = n
	}
	d.seen[id] = n
	d.size.Add(1)
	return false
}

// Unrecord implements Deduper.
func (d *inMemoryDeduper) Unrecord(ctx context.Context, id string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	n, exists := d.seen[id]
	if !exists {
		return
	}
	delete(d.seen, id)
	d.size.Add(-1)
	if n != nil {
		d.unlink(n)
	}
}

// unlink removes n from the list and returns it to the pool.
// Must be called with d.mu held.
func (d *inMemoryDeduper) unlink(n *node) {
	if n.prev != nil {
		n.prev.next = n.next
	} else {
		d.head = n.next
	}
	if n.next != nil {
		n.next.prev = n.prev
	} else {
		d.tail = n.prev
	}
	n.reset()
	d.nodePool.Put(n)
}

// evictOldest drops the tail. Must be called with d.mu held.
func (d *inMemoryDeduper) evictOldest() {
	if d.tail == nil {
		return
	}
	delete(d.seen, d.tail.id)
	d.size.Add(-1)
	d.unlink(d.tail)
}

// Size returns the current number of entries in the deduper.
func (d *inMemoryDeduper) Size() int64 {
	return d.size.Load()
}
