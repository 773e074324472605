// Package queue buffers market-cap ticks between intake (HTTP, Kafka) and
// the worker pool.
package queue

import (
	"context"
	"sync"

	"github.com/okian/capboard/internal/domain/model"
	"github.com/okian/capboard/pkg/metrics"
)

const defaultQueueCapacity = 100000

// Tick is the payload type flowing through the queue.
type Tick = model.Tick

// Queue provides non-blocking enqueue and channel-based dequeue semantics.
type Queue interface {
	// Enqueue adds a tick to the queue.
	// Returns false if the queue is full or closed and the tick was not enqueued.
	Enqueue(ctx context.Context, t Tick) bool
	// Dequeue returns a channel that receives ticks as they become available.
	// The channel is closed when the queue is closed and drained, or when ctx is done.
	Dequeue(ctx context.Context) <-chan Tick
	// Len returns the current number of queued ticks.
	Len(ctx context.Context) int
	// Capacity returns the maximum number of queued ticks.
	Capacity() int
	// Close stops intake; queued ticks can still be drained.
	Close() error
	// IsClosed returns true if the queue has been closed.
	IsClosed() bool
}

// InMemoryQueue implements Queue using a buffered channel.
type InMemoryQueue struct {
	ticks    chan Tick
	capacity int

	mu     sync.RWMutex
	closed bool
}

// NewInMemoryQueue creates a new in-memory queue with configuration options.
func NewInMemoryQueue(opts ...Option) *InMemoryQueue {
	q := &InMemoryQueue{
		capacity: defaultQueueCapacity,
	}
	for _, opt := range opts {
		opt(q)
	}
	q.ticks = make(chan Tick, q.capacity)

	metrics.UpdateQueueCapacity(q.capacity)
	metrics.UpdateQueueSize(0)
	metrics.UpdateQueueUtilization(0.0)

	return q
}

// Enqueue adds a tick to the queue without blocking.
func (q *InMemoryQueue) Enqueue(ctx context.Context, t Tick) bool {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed || ctx.Err() != nil {
		metrics.RecordQueueEnqueueError()
		return false
	}

	select {
	case q.ticks <- t:
		metrics.RecordQueueEnqueue()
		q.updateGauges()
		return true
	default:
		metrics.RecordQueueEnqueueError()
		return false
	}
}

// Dequeue returns a channel that receives ticks as they become available.
func (q *InMemoryQueue) Dequeue(ctx context.Context) <-chan Tick {
	out := make(chan Tick)
	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case t, ok := <-q.ticks:
				if !ok {
					return
				}
				select {
				case out <- t:
					metrics.RecordQueueDequeue()
					q.updateGauges()
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out
}

// Len returns the current number of queued ticks.
func (q *InMemoryQueue) Len(ctx context.Context) int {
	return len(q.ticks)
}

// Capacity returns the maximum number of queued ticks.
func (q *InMemoryQueue) Capacity() int {
	return q.capacity
}

func (q *InMemoryQueue) updateGauges() {
	size := len(q.ticks)
	metrics.UpdateQueueSize(size)
	metrics.UpdateQueueUtilization(float64(size) / float64(q.capacity))
}

// Close stops intake. Consumers drain what is left and then see their
// channel closed.
func (q *InMemoryQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return nil
	}
	close(q.ticks)
	q.closed = true
	return nil
}

// IsClosed returns true if the queue has been closed.
func (q *InMemoryQueue) IsClosed() bool {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.closed
}
