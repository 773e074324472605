// Package service provides the leaderboard service used by the HTTP API and
// the tick consumers.
package service

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"time"

	eventqueue "github.com/okian/capboard/internal/adapters/mq/queue"
	workerpool "github.com/okian/capboard/internal/adapters/mq/worker"
	"github.com/okian/capboard/internal/adapters/repository"
	"github.com/okian/capboard/internal/domain/dedupe"
	"github.com/okian/capboard/internal/domain/model"
	"github.com/okian/capboard/pkg/logger"
	"github.com/okian/capboard/pkg/metrics"
)

// Default service configuration.
const (
	defaultRankLimit  = 10
	defaultQueueSize  = 100000
	defaultDedupeSize = 50000
	stopTimeout       = 30 * time.Second
)

// Service implements the leaderboard operations and the tick intake.
type Service struct {
	mu sync.RWMutex

	// Core components
	store      repository.Store
	deduper    dedupe.Deduper
	tickQueue  eventqueue.Queue
	workerPool *workerpool.Pool

	// Configuration
	rankLimit   int
	workerCount int
	queueSize   int
	dedupeSize  int

	// State
	started bool
	cancel  context.CancelFunc

	logger logger.Logger
}

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithStore sets the leaderboard backend. Without it Start opens an
// in-memory store.
func WithStore(store repository.Store) Option {
	return func(s *Service) {
		if store != nil {
			s.store = store
		}
	}
}

// WithRankLimit sets N for the top and bottom modes.
func WithRankLimit(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.rankLimit = n
		}
	}
}

// WithWorkerCount sets the number of tick workers.
func WithWorkerCount(count int) Option {
	return func(s *Service) {
		if count > 0 {
			s.workerCount = count
		}
	}
}

// WithQueueSize sets the capacity of the tick queue.
func WithQueueSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.queueSize = size
		}
	}
}

// WithDedupeSize sets how many tick ids are remembered. Zero keeps every id;
// negative sizes are ignored.
func WithDedupeSize(size int) Option {
	return func(s *Service) {
		if size >= 0 {
			s.dedupeSize = size
		}
	}
}

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// New constructs a new Service with default configuration.
func New(opts ...Option) *Service {
	s := &Service{
		rankLimit:   defaultRankLimit,
		workerCount: runtime.NumCPU() * 2,
		queueSize:   defaultQueueSize,
		dedupeSize:  defaultDedupeSize,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start builds the intake pipeline and starts the workers.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}
	if s.logger == nil {
		s.logger = logger.Get().Named("service")
	}
	s.logger.Info(ctx, "starting leaderboard service")

	if s.store == nil {
		store, err := repository.NewMemoryStore(ctx, repository.WithLogger(s.logger))
		if err != nil {
			return fmt.Errorf("open memory store: %w", err)
		}
		s.store = store
		s.logger.Info(ctx, "using in-memory store")
	}

	s.deduper = dedupe.NewInMemoryDeduper(dedupe.WithMaxSize(s.dedupeSize))
	q := eventqueue.NewInMemoryQueue(eventqueue.WithCapacity(s.queueSize))
	s.tickQueue = q

	// Workers outlive the caller's ctx; Stop ends them.
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	s.cancel = cancel
	s.workerPool = workerpool.NewPool(s.workerCount, q, s.store, s.logger)
	s.workerPool.Start(runCtx)

	s.started = true
	s.logger.Info(ctx, "leaderboard service started",
		logger.Int("workers", s.workerPool.Size()),
		logger.Int("queue_size", s.queueSize),
		logger.Int("dedupe_size", s.dedupeSize),
		logger.Int("rank_limit", s.rankLimit),
	)
	return nil
}

// Stop drains the tick queue and closes the store.
func (s *Service) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return nil
	}
	s.logger.Info(ctx, "stopping leaderboard service")

	var firstErr error
	stopCtx, cancel := context.WithTimeout(ctx, stopTimeout)
	defer cancel()
	if err := s.workerPool.Shutdown(stopCtx); err != nil {
		s.logger.Error(ctx, "worker pool shutdown", logger.Error(err))
		firstErr = err
	}
	s.cancel()

	if err := s.store.Close(); err != nil {
		s.logger.Error(ctx, "closing store", logger.Error(err))
		if firstErr == nil {
			firstErr = fmt.Errorf("close store: %w", err)
		}
	}

	s.started = false
	s.logger.Info(ctx, "leaderboard service stopped",
		logger.Any("ticks_applied", s.workerPool.Processed()),
	)
	return firstErr
}

// backend returns the store once the service has started.
func (s *Service) backend() (repository.Store, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.started {
		return nil, ErrNotStarted
	}
	return s.store, nil
}

// SeenAndRecord atomically checks if a tick id was seen and records it if
// not. Returns true for a duplicate.
func (s *Service) SeenAndRecord(ctx context.Context, id string) bool {
	s.mu.RLock()
	d := s.deduper
	s.mu.RUnlock()
	if d == nil {
		return false
	}
	seen := d.SeenAndRecord(ctx, id)
	if seen {
		metrics.RecordTickDuplicate()
	}
	return seen
}

// Unrecord forgets a tick id so the tick can be retried.
func (s *Service) Unrecord(ctx context.Context, id string) {
	s.mu.RLock()
	d := s.deduper
	s.mu.RUnlock()
	if d != nil {
		d.Unrecord(ctx, id)
	}
}

// Enqueue submits a tick for asynchronous processing. It returns false when
// the queue is full or the service is not running.
func (s *Service) Enqueue(ctx context.Context, t model.Tick) bool {
	s.mu.RLock()
	q := s.tickQueue
	started := s.started
	s.mu.RUnlock()
	if !started {
		return false
	}

	t.Symbol = model.NormalizeSymbol(t.Symbol)
	ok := q.Enqueue(ctx, t)
	if !ok {
		s.logger.Debug(ctx, "tick rejected by queue", logger.String("tick_id", t.TickID))
	}
	return ok
}

// Health reports whether the store answers.
func (s *Service) Health(ctx context.Context) error {
	store, err := s.backend()
	if err != nil {
		return err
	}
	return store.Ping(ctx)
}

// GetStats returns service statistics for monitoring.
func (s *Service) GetStats(ctx context.Context) map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := map[string]any{
		"started":     s.started,
		"rankLimit":   s.RankLimit(),
		"workerCount": s.workerCount,
		"queueSize":   s.queueSize,
		"dedupeSize":  s.dedupeSize,
	}
	if !s.started {
		return stats
	}

	queueLen := s.tickQueue.Len(ctx)
	stats["queueLength"] = queueLen
	stats["ticksApplied"] = s.workerPool.Processed()
	stats["dedupeEntries"] = s.deduper.Size()
	metrics.UpdateQueueSize(queueLen)

	if n, err := s.store.Count(ctx); err == nil {
		stats["totalCompanies"] = n
		metrics.UpdateCompaniesTotal(n)
	} else {
		stats["storeError"] = err.Error()
	}
	return stats
}

// RankLimit returns N for the top and bottom modes.
func (s *Service) RankLimit() int {
	return s.rankLimit
}
