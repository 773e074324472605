package repository

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/okian/capboard/internal/domain/model"
	"github.com/okian/capboard/internal/domain/ranking"
	"github.com/okian/capboard/pkg/logger"
	"github.com/okian/capboard/pkg/metrics"
)

const memoryBackend = "memory"

// MemoryStore is the in-process Store. One RW mutex guards the ordered
// index and the metadata map together, so every read observes a single
// consistent snapshot.
type MemoryStore struct {
	mu     sync.RWMutex
	index  *ranking.Index
	byID   map[string]model.Company
	dirty  map[string]struct{} // symbols changed since the last journal flush
	closed bool

	journal               Journal
	flushMu               sync.Mutex // serializes flushes
	flushInterval         time.Duration
	metricsUpdateInterval time.Duration
	logger                logger.Logger

	wg        sync.WaitGroup
	stopChan  chan struct{}
	closeOnce sync.Once
	closeErr  error
}

// NewMemoryStore constructs a memory store. With a journal configured the
// saved records are restored before the store is returned.
func NewMemoryStore(ctx context.Context, opts ...Option) (*MemoryStore, error) {
	s := &MemoryStore{
		index:                 ranking.NewIndex(),
		byID:                  make(map[string]model.Company),
		dirty:                 make(map[string]struct{}),
		flushInterval:         time.Second,
		metricsUpdateInterval: 5 * time.Second,
		logger:                logger.Nop(),
		stopChan:              make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}

	if s.journal != nil {
		if err := s.restore(ctx); err != nil {
			return nil, err
		}
		s.startPeriodicFlush(ctx)
	}
	s.startMetricsUpdater(ctx)

	return s, nil
}

func (s *MemoryStore) restore(ctx context.Context) error {
	saved, err := s.journal.Load(ctx)
	if err != nil {
		return fmt.Errorf("restore journal: %w", err)
	}
	s.mu.Lock()
	for _, c := range saved {
		s.index.Insert(c.Symbol, c.MarketCap)
		s.byID[c.Symbol] = c
	}
	s.mu.Unlock()
	s.logger.Info(ctx, "restored leaderboard from journal", logger.Int("companies", len(saved)))
	metrics.UpdateCompaniesTotal(len(saved))
	return nil
}

// Insert implements Store.Insert in O(log n) expected time.
func (s *MemoryStore) Insert(ctx context.Context, c model.Company) error {
	defer observe(memoryBackend, "insert", time.Now())

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return fmt.Errorf("insert %q: %w", c.Symbol, ErrClosed)
	}
	s.index.Insert(c.Symbol, c.MarketCap)
	s.byID[c.Symbol] = c
	s.markDirty(c.Symbol)
	return nil
}

// IncrementScore implements Store.IncrementScore in O(log n) expected time.
func (s *MemoryStore) IncrementScore(ctx context.Context, symbol string, delta decimal.Decimal) (decimal.Decimal, error) {
	defer observe(memoryBackend, "increment", time.Now())

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return decimal.Zero, fmt.Errorf("increment %q: %w", symbol, ErrClosed)
	}

	c, ok := s.byID[symbol]
	if !ok {
		return decimal.Zero, fmt.Errorf("increment %q: %w", symbol, ErrNotFound)
	}
	c.MarketCap = s.index.IncrementScore(symbol, delta)
	s.byID[symbol] = c
	s.markDirty(symbol)
	return c.MarketCap, nil
}

// Remove implements Store.Remove.
func (s *MemoryStore) Remove(ctx context.Context, symbol string) error {
	defer observe(memoryBackend, "remove", time.Now())

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return fmt.Errorf("remove %q: %w", symbol, ErrClosed)
	}
	if s.index.Remove(symbol) {
		delete(s.byID, symbol)
		s.markDirty(symbol)
	}
	return nil
}

// Range implements Store.Range in O(log n + k) under the read lock.
func (s *MemoryStore) Range(ctx context.Context, start, stop int, descending bool) (Page, error) {
	defer observe(memoryBackend, "range", time.Now())

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return Page{}, fmt.Errorf("range: %w", ErrClosed)
	}

	members := s.index.RangeByRank(start, stop, descending)
	out := make([]model.Company, len(members))
	for i, m := range members {
		out[i] = s.byID[m.Symbol]
	}
	return Page{Companies: out, Total: s.index.Len()}, nil
}

// Lookup implements Store.Lookup.
func (s *MemoryStore) Lookup(ctx context.Context, symbols []string) (map[string]model.Company, error) {
	defer observe(memoryBackend, "lookup", time.Now())

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, fmt.Errorf("lookup: %w", ErrClosed)
	}

	out := make(map[string]model.Company, len(symbols))
	for _, sym := range symbols {
		if c, ok := s.byID[sym]; ok {
			out[sym] = c
		}
	}
	return out, nil
}

// Position implements Store.Position in O(log n) under the read lock.
func (s *MemoryStore) Position(ctx context.Context, symbol string) (model.Company, int, error) {
	defer observe(memoryBackend, "position", time.Now())

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return model.Company{}, 0, fmt.Errorf("position: %w", ErrClosed)
	}
	pos, ok := s.index.Position(symbol)
	if !ok {
		return model.Company{}, 0, fmt.Errorf("position %q: %w", symbol, ErrNotFound)
	}
	return s.byID[symbol], pos, nil
}

// Count returns the number of ranked companies.
func (s *MemoryStore) Count(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return 0, fmt.Errorf("count: %w", ErrClosed)
	}
	return s.index.Len(), nil
}

// Ping fails only once the store is closed.
func (s *MemoryStore) Ping(ctx context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrClosed
	}
	return nil
}

// Close stops the background goroutines and performs a final flush. Every
// later call returns ErrClosed.
func (s *MemoryStore) Close() error {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.closed = true
		s.mu.Unlock()
		close(s.stopChan)
		s.wg.Wait()
		if s.journal != nil {
			s.closeErr = s.Flush(context.Background())
		}
	})
	return s.closeErr
}

// markDirty must be called with the write lock held.
func (s *MemoryStore) markDirty(symbol string) {
	if s.journal != nil {
		s.dirty[symbol] = struct{}{}
	}
}

// Flush writes every record changed since the last flush to the journal.
// The store lock is held only while the dirty set is swapped out.
func (s *MemoryStore) Flush(ctx context.Context) error {
	if s.journal == nil {
		return nil
	}
	s.flushMu.Lock()
	defer s.flushMu.Unlock()

	s.mu.Lock()
	if len(s.dirty) == 0 {
		s.mu.Unlock()
		return nil
	}
	dirty := s.dirty
	s.dirty = make(map[string]struct{})
	puts := make([]model.Company, 0, len(dirty))
	var deletes []string
	for sym := range dirty {
		if c, ok := s.byID[sym]; ok {
			puts = append(puts, c)
		} else {
			deletes = append(deletes, sym)
		}
	}
	s.mu.Unlock()

	start := time.Now()
	if err := s.journal.Save(ctx, puts, deletes); err != nil {
		// put the symbols back so the next flush retries them
		s.mu.Lock()
		for sym := range dirty {
			s.dirty[sym] = struct{}{}
		}
		s.mu.Unlock()
		metrics.RecordStoreError(memoryBackend, "flush")
		return fmt.Errorf("flush journal: %w", err)
	}
	metrics.RecordJournalFlush(float64(time.Since(start).Microseconds())/1000, len(puts)+len(deletes))
	return nil
}

// startPeriodicFlush starts a background goroutine that flushes the journal.
func (s *MemoryStore) startPeriodicFlush(ctx context.Context) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(s.flushInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-s.stopChan:
				return
			case <-ticker.C:
				if err := s.Flush(ctx); err != nil {
					s.logger.Error(ctx, "journal flush failed", logger.Error(err))
				}
			}
		}
	}()
}

// startMetricsUpdater starts a background goroutine that updates store metrics.
func (s *MemoryStore) startMetricsUpdater(ctx context.Context) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(s.metricsUpdateInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-s.stopChan:
				return
			case <-ticker.C:
				s.updateMetrics()
			}
		}
	}()
}

func (s *MemoryStore) updateMetrics() {
	s.mu.RLock()
	n := s.index.Len()
	s.mu.RUnlock()
	metrics.UpdateCompaniesTotal(n)

	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	metrics.UpdateSystemMemoryUsage(ms.HeapInuse)
	metrics.UpdateSystemGoroutineCount(runtime.NumGoroutine())
}

// observe records the latency of one store call; use with defer.
func observe(backend, op string, start time.Time) {
	metrics.RecordStoreLatency(backend, op, float64(time.Since(start).Microseconds())/1000)
}
