package worker_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/smartystreets/goconvey/convey"

	queue "github.com/okian/capboard/internal/adapters/mq/queue"
	worker "github.com/okian/capboard/internal/adapters/mq/worker"
	model "github.com/okian/capboard/internal/domain/model"
	logging "github.com/okian/capboard/pkg/logger"
)

// mockQueue hands out a single channel the test writes to.
type mockQueue struct {
	ticks chan model.Tick
	once  sync.Once
}

func newMockQueue() *mockQueue {
	return &mockQueue{ticks: make(chan model.Tick, 10)}
}

func (mq *mockQueue) Dequeue(ctx context.Context) <-chan model.Tick {
	return mq.ticks
}

func (mq *mockQueue) Close() error {
	mq.once.Do(func() { close(mq.ticks) })
	return nil
}

// mockUpdater accumulates deltas per symbol.
type mockUpdater struct {
	mu     sync.Mutex
	caps   map[string]decimal.Decimal
	errors map[string]error
	calls  int
}

func newMockUpdater() *mockUpdater {
	return &mockUpdater{caps: make(map[string]decimal.Decimal), errors: make(map[string]error)}
}

func (mu *mockUpdater) IncrementScore(ctx context.Context, symbol string, delta decimal.Decimal) (decimal.Decimal, error) {
	mu.mu.Lock()
	defer mu.mu.Unlock()
	mu.calls++
	if err, ok := mu.errors[symbol]; ok {
		return decimal.Zero, err
	}
	mu.caps[symbol] = mu.caps[symbol].Add(delta)
	return mu.caps[symbol], nil
}

func (mu *mockUpdater) setError(symbol string, err error) {
	mu.mu.Lock()
	defer mu.mu.Unlock()
	mu.errors[symbol] = err
}

func (mu *mockUpdater) capOf(symbol string) decimal.Decimal {
	mu.mu.Lock()
	defer mu.mu.Unlock()
	return mu.caps[symbol]
}

func (mu *mockUpdater) callCount() int {
	mu.mu.Lock()
	defer mu.mu.Unlock()
	return mu.calls
}

func tick(id, symbol string, amount string) model.Tick {
	return model.Tick{TickID: id, Symbol: symbol, Amount: decimal.RequireFromString(amount), TS: time.Now()}
}

func TestInMemoryWorker(t *testing.T) {
	convey.Convey("Given a new InMemoryWorker", t, func() {
		q := newMockQueue()
		u := newMockUpdater()
		w := worker.NewInMemoryWorker(q, u, worker.WithName("test-worker"), worker.WithLogger(logging.Nop()))
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		go w.Run(ctx)

		convey.Convey("When ticks are queued", func() {
			q.ticks <- tick("t1", "aapl", "10.5")
			q.ticks <- tick("t2", "aapl", "-0.5")

			convey.Convey("Then the deltas are applied in order", func() {
				convey.So(waitFor(func() bool { return u.callCount() == 2 }), convey.ShouldBeTrue)
				convey.So(u.capOf("aapl").String(), convey.ShouldEqual, "10")
			})
		})

		convey.Convey("When the updater fails", func() {
			u.setError("gone", errors.New("company not found"))
			q.ticks <- tick("t1", "gone", "1")
			q.ticks <- tick("t2", "msft", "2")

			convey.Convey("Then the worker keeps going", func() {
				convey.So(waitFor(func() bool { return u.callCount() == 2 }), convey.ShouldBeTrue)
				convey.So(u.capOf("msft").String(), convey.ShouldEqual, "2")
			})
		})

		convey.Convey("When shutting down", func() {
			err := w.Shutdown(context.Background())

			convey.Convey("Then the loop exits", func() {
				convey.So(err, convey.ShouldBeNil)
				<-w.Done()
				convey.So(w.Shutdown(context.Background()), convey.ShouldBeNil)
			})
		})

		convey.Convey("When the queue closes", func() {
			_ = q.Close()

			convey.Convey("Then the worker stops", func() {
				stopped := waitFor(func() bool {
					select {
					case <-w.Done():
						return true
					default:
						return false
					}
				})
				convey.So(stopped, convey.ShouldBeTrue)
			})
		})
	})
}

func TestWorkerPool(t *testing.T) {
	convey.Convey("Given a worker pool on a real queue", t, func() {
		q := queue.NewInMemoryQueue(queue.WithCapacity(1000))
		u := newMockUpdater()

		convey.Convey("When created with a non-positive count", func() {
			p := worker.NewPool(0, q, u, nil)

			convey.Convey("Then it sizes itself from the CPU count", func() {
				convey.So(p.Size(), convey.ShouldBeGreaterThan, 0)
			})
		})

		convey.Convey("When many ticks are processed concurrently", func() {
			p := worker.NewPool(4, q, u, logging.Nop())
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()
			p.Start(ctx)

			const n = 200
			for i := 0; i < n; i++ {
				sym := fmt.Sprintf("s%d", i%5)
				for !q.Enqueue(ctx, tick(fmt.Sprintf("t%d", i), sym, "1")) {
					time.Sleep(time.Millisecond)
				}
			}

			convey.Convey("Then every tick is applied exactly once", func() {
				convey.So(waitFor(func() bool { return p.Processed() == n }), convey.ShouldBeTrue)
				total := decimal.Zero
				for i := 0; i < 5; i++ {
					total = total.Add(u.capOf(fmt.Sprintf("s%d", i)))
				}
				convey.So(total.IntPart(), convey.ShouldEqual, n)
				convey.So(p.Shutdown(context.Background()), convey.ShouldBeNil)
				convey.So(q.IsClosed(), convey.ShouldBeTrue)
			})
		})

		convey.Convey("When shutting down with ticks still queued", func() {
			p := worker.NewPool(2, q, u, logging.Nop())
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()
			for i := 0; i < 20; i++ {
				q.Enqueue(ctx, tick(fmt.Sprintf("t%d", i), "aapl", "1"))
			}
			p.Start(ctx)
			err := p.Shutdown(context.Background())

			convey.Convey("Then the queue is drained before the workers exit", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(u.capOf("aapl").IntPart(), convey.ShouldEqual, 20)
			})
		})
	})
}

func waitFor(cond func() bool) bool {
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(5 * time.Millisecond)
	}
	return cond()
}
