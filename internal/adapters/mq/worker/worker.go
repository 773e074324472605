package worker

import (
	"context"
	"fmt"
	"runtime"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"

	"github.com/okian/capboard/internal/domain/model"
	"github.com/okian/capboard/pkg/logger"
	"github.com/okian/capboard/pkg/metrics"
)

// Default worker configuration constants.
const (
	defaultWorkerMultiplier = 4 // multiplier for runtime.NumCPU()
	defaultTickTimeout      = 5 * time.Second
	poolShutdownTimeout     = 30 * time.Second
)

// Tick abstracts what workers read off the queue.
type Tick = model.Tick

// Updater applies a market-cap delta to a ranked company.
type Updater interface {
	IncrementScore(ctx context.Context, symbol string, delta decimal.Decimal) (decimal.Decimal, error)
}

// Queue defines how workers receive ticks.
type Queue interface {
	Dequeue(ctx context.Context) <-chan Tick
}

// Worker processes ticks and writes score updates using the provided interfaces.
type Worker interface {
	// Run starts the worker loop until ctx is canceled or the queue closes.
	Run(ctx context.Context)

	// Shutdown stops the worker after the tick in flight.
	Shutdown(ctx context.Context) error
}

// InMemoryWorker implements Worker.
type InMemoryWorker struct {
	queue       Queue
	updater     Updater
	name        string
	tickTimeout time.Duration
	processed   *atomic.Int64

	shutdown     chan struct{}
	shutdownOnce sync.Once
	done         chan struct{}

	logger logger.Logger
}

// NewInMemoryWorker creates a new worker with configuration options.
func NewInMemoryWorker(q Queue, updater Updater, opts ...Option) *InMemoryWorker {
	w := &InMemoryWorker{
		queue:       q,
		updater:     updater,
		name:        "worker",
		tickTimeout: defaultTickTimeout,
		processed:   new(atomic.Int64),
		shutdown:    make(chan struct{}),
		done:        make(chan struct{}),
		logger:      logger.Nop(),
	}
	for _, opt := range opts {
		opt(w)
	}
	w.logger = w.logger.Named(w.name)
	return w
}

// Run starts the worker loop.
func (w *InMemoryWorker) Run(ctx context.Context) {
	defer close(w.done)

	ticks := w.queue.Dequeue(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.shutdown:
			return
		case t, ok := <-ticks:
			if !ok {
				return
			}
			if err := w.processTick(ctx, t); err != nil {
				w.logger.Warn(ctx, "tick not applied", logger.String("tick_id", t.TickID), logger.Error(err))
			}
		}
	}
}

// Shutdown stops the worker and waits for its loop to exit.
func (w *InMemoryWorker) Shutdown(ctx context.Context) error {
	w.shutdownOnce.Do(func() { close(w.shutdown) })

	select {
	case <-w.done:
		return nil
	case <-ctx.Done():
		w.logger.Warn(ctx, "shutdown timed out")
		return fmt.Errorf("shutdown timed out: %w", ctx.Err())
	}
}

// Done is closed once Run has returned.
func (w *InMemoryWorker) Done() <-chan struct{} {
	return w.done
}

// processTick applies a single tick.
func (w *InMemoryWorker) processTick(ctx context.Context, t Tick) error {
	start := time.Now()
	defer func() {
		metrics.RecordWorkerProcessingLatency(float64(time.Since(start).Microseconds()) / 1000)
	}()

	tctx, cancel := context.WithTimeout(ctx, w.tickTimeout)
	defer cancel()

	next, err := w.updater.IncrementScore(tctx, t.Symbol, t.Amount)
	if err != nil {
		metrics.RecordWorkerError()
		metrics.RecordTickRejected()
		return fmt.Errorf("apply tick %s to %q: %w", t.TickID, t.Symbol, err)
	}

	w.processed.Add(1)
	metrics.RecordTickProcessed()
	w.logger.Debug(ctx, "tick applied",
		logger.String("tick_id", t.TickID),
		logger.String("symbol", t.Symbol),
		logger.Decimal("market_cap", next),
	)
	return nil
}

// Pool manages multiple workers reading one queue.
type Pool struct {
	workers []*InMemoryWorker
	queue   Queue

	shutdown     chan struct{}
	shutdownOnce sync.Once

	processed         atomic.Int64
	lastProcessed     int64
	lastProcessedTime time.Time

	logger logger.Logger
}

// NewPool creates a pool of workerCount workers. A count below one selects
// a multiple of the CPU count. Options are applied to every worker; the
// workers log through l unless an option says otherwise.
func NewPool(workerCount int, q Queue, updater Updater, l logger.Logger, opts ...Option) *Pool {
	if l == nil {
		l = logger.Nop()
	}
	if workerCount < 1 {
		workerCount = runtime.NumCPU() * defaultWorkerMultiplier
	}

	p := &Pool{
		workers:           make([]*InMemoryWorker, workerCount),
		queue:             q,
		shutdown:          make(chan struct{}),
		lastProcessedTime: time.Now(),
		logger:            l.Named("worker-pool"),
	}

	for i := 0; i < workerCount; i++ {
		wopts := append([]Option{WithLogger(l)}, opts...)
		wopts = append(wopts, WithName("worker-"+strconv.Itoa(i)))
		w := NewInMemoryWorker(q, updater, wopts...)
		w.processed = &p.processed
		p.workers[i] = w
	}

	metrics.UpdateWorkerCount(workerCount)
	metrics.UpdateWorkerMessagesPerSecond(0.0)

	return p
}

// Size returns the number of workers.
func (p *Pool) Size() int {
	return len(p.workers)
}

// Processed returns the number of ticks applied since the pool was created.
func (p *Pool) Processed() int64 {
	return p.processed.Load()
}

// Start starts all workers in the pool.
func (p *Pool) Start(ctx context.Context) {
	for _, w := range p.workers {
		go w.Run(ctx)
	}
	go p.startMetricsUpdater(ctx)
}

// startMetricsUpdater periodically publishes the processing rate.
func (p *Pool) startMetricsUpdater(ctx context.Context) {
	ticker := time.NewTicker(metrics.Refresh())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-p.shutdown:
			return
		case <-ticker.C:
			p.updateMetrics()
		}
	}
}

func (p *Pool) updateMetrics() {
	now := time.Now()
	total := p.processed.Load()
	if secs := now.Sub(p.lastProcessedTime).Seconds(); secs > 0 {
		metrics.UpdateWorkerMessagesPerSecond(float64(total-p.lastProcessed) / secs)
	}
	p.lastProcessed = total
	p.lastProcessedTime = now
}

// Shutdown closes the queue, lets the workers drain what is left and waits
// for them up to ctx's deadline (30s at most).
func (p *Pool) Shutdown(ctx context.Context) error {
	if closer, ok := p.queue.(interface{ Close() error }); ok {
		if err := closer.Close(); err != nil {
			p.logger.Error(ctx, "error closing queue", logger.Error(err))
		}
	}
	p.shutdownOnce.Do(func() { close(p.shutdown) })

	shutdownCtx, cancel := context.WithTimeout(ctx, poolShutdownTimeout)
	defer cancel()

	var timedOut int
	for i, w := range p.workers {
		select {
		case <-w.done:
		case <-shutdownCtx.Done():
			timedOut++
			p.logger.Warn(ctx, "worker shutdown timed out", logger.Int("worker_id", i))
		}
	}
	metrics.UpdateWorkerCount(0)
	if timedOut > 0 {
		return fmt.Errorf("%d workers did not stop: %w", timedOut, shutdownCtx.Err())
	}
	return nil
}
