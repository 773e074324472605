package loadgen

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"

	"github.com/okian/capboard/internal/domain/model"
	"github.com/okian/capboard/pkg/logger"
)

// Runner configuration constants.
const (
	retryDelay      = 10 * time.Millisecond
	pollInterval    = 100 * time.Millisecond
	lookupBatchSize = 100
	replayCount     = 10
)

// Run executes a complete load run against cfg.BaseURL.
func Run(ctx context.Context, cfg *Config, log logger.Logger, r *rand.Rand) (*Stats, error) {
	if log == nil {
		log = logger.Nop()
	}
	stats := &Stats{StartTime: time.Now()}
	client := NewClient(cfg.BaseURL, cfg.Timeout)

	log.Info(ctx, "starting capboard load run",
		logger.String("base_url", cfg.BaseURL),
		logger.Int("companies", cfg.Companies),
		logger.Int("ticks", cfg.Ticks),
		logger.Int("workers", cfg.Workers),
		logger.String("transport", cfg.Transport),
	)

	if err := client.Health(ctx); err != nil {
		return stats, fmt.Errorf("service health check failed: %w", err)
	}

	plan := NewPlan(cfg.Companies, cfg.Ticks, r)
	for _, rec := range plan.Companies {
		if err := client.CreateCompany(ctx, rec); err != nil {
			return stats, err
		}
		stats.CompaniesCreated++
	}
	log.Info(ctx, "companies created", logger.Int("count", stats.CompaniesCreated))

	sink := newSink(cfg, client)
	defer func() {
		if err := sink.Close(); err != nil {
			log.Warn(ctx, "closing tick sink", logger.Error(err))
		}
	}()

	if err := submitTicks(ctx, cfg, sink, plan.Ticks, stats, log); err != nil {
		return stats, err
	}
	// Replayed ids must not move any market cap.
	replay := plan.Ticks[:min(replayCount, len(plan.Ticks))]
	if err := submitTicks(ctx, cfg, sink, replay, stats, log); err != nil {
		return stats, err
	}

	if err := awaitExpected(ctx, cfg, client, plan); err != nil {
		return stats, err
	}
	if err := verifyOrdering(ctx, client); err != nil {
		return stats, err
	}

	stats.Duration = time.Since(stats.StartTime)
	displayFinalStats(ctx, log, stats)
	return stats, nil
}

// submitTicks sends ticks through sink with cfg.Workers goroutines,
// retrying on backpressure.
func submitTicks(ctx context.Context, cfg *Config, sink TickSink, ticks []model.Tick, stats *Stats, log logger.Logger) error {
	var accepted, duplicate, failed atomic.Int64

	ch := make(chan model.Tick, cfg.Workers*2)
	var wg sync.WaitGroup
	for i := 0; i < max(cfg.Workers, 1); i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for t := range ch {
				for {
					out, err := sink.Submit(ctx, t)
					if err != nil {
						failed.Add(1)
						if cfg.Verbose {
							log.Warn(ctx, "tick failed", logger.String("tick_id", t.TickID), logger.Error(err))
						}
						break
					}
					if out == Accepted {
						accepted.Add(1)
						break
					}
					if out == Duplicate {
						duplicate.Add(1)
						break
					}
					select {
					case <-ctx.Done():
						failed.Add(1)
						return
					case <-time.After(retryDelay):
					}
				}
			}
		}()
	}

	go func() {
		defer close(ch)
		for _, t := range ticks {
			select {
			case <-ctx.Done():
				return
			case ch <- t:
			}
		}
	}()
	wg.Wait()

	stats.TicksSubmitted += len(ticks)
	stats.TicksAccepted += int(accepted.Load())
	stats.TicksDuplicate += int(duplicate.Load())
	stats.TicksFailed += int(failed.Load())
	log.Info(ctx, "ticks submitted",
		logger.Int("count", len(ticks)),
		logger.Any("accepted", accepted.Load()),
		logger.Any("duplicate", duplicate.Load()),
		logger.Any("failed", failed.Load()),
	)
	if n := failed.Load(); n > 0 {
		return fmt.Errorf("%d ticks could not be submitted", n)
	}
	return ctx.Err()
}

// awaitExpected polls the service until every company shows its expected
// market cap or cfg.Settle runs out.
func awaitExpected(ctx context.Context, cfg *Config, client *Client, plan Plan) error {
	deadline := time.Now().Add(cfg.Settle)
	symbols := plan.Symbols()
	for {
		mismatch, err := firstMismatch(ctx, client, symbols, plan.Expected)
		if err != nil {
			return err
		}
		if mismatch == "" {
			return nil
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("%w: %s", ErrVerification, mismatch)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(pollInterval):
		}
	}
}

func firstMismatch(ctx context.Context, client *Client, symbols []string, expected map[string]decimal.Decimal) (string, error) {
	for start := 0; start < len(symbols); start += lookupBatchSize {
		batch := symbols[start:min(start+lookupBatchSize, len(symbols))]
		rows, err := client.BySymbols(ctx, batch)
		if err != nil {
			return "", err
		}
		if len(rows) != len(batch) {
			return fmt.Sprintf("expected %d companies, got %d", len(batch), len(rows)), nil
		}
		for i, row := range rows {
			if row.Rank != i+1 {
				return fmt.Sprintf("%s has rank %d, want %d", row.Symbol, row.Rank, i+1), nil
			}
			got, err := decimal.NewFromString(row.MarketCap)
			if err != nil {
				return "", fmt.Errorf("%s: %w", row.Symbol, err)
			}
			if want := expected[row.Symbol]; !got.Equal(want) {
				return fmt.Sprintf("%s market cap %s, want %s", row.Symbol, got, want), nil
			}
		}
	}
	return "", nil
}

// verifyOrdering checks the three ranked views against each other.
func verifyOrdering(ctx context.Context, client *Client) error {
	all, err := client.Ranked(ctx, "all")
	if err != nil {
		return err
	}
	var errs []error
	for i, row := range all {
		if row.Rank != i+1 {
			errs = append(errs, fmt.Errorf("all: %s at position %d has rank %d", row.Symbol, i, row.Rank))
		}
		if i > 0 && decimal.RequireFromString(row.MarketCap).GreaterThan(decimal.RequireFromString(all[i-1].MarketCap)) {
			errs = append(errs, fmt.Errorf("all: %s out of order", row.Symbol))
		}
	}

	top, err := client.Ranked(ctx, "top")
	if err != nil {
		return err
	}
	for i, row := range top {
		if i >= len(all) || all[i].Symbol != row.Symbol {
			errs = append(errs, fmt.Errorf("top: position %d is %s, all disagrees", i, row.Symbol))
		}
	}

	bottom, err := client.Ranked(ctx, "bottom")
	if err != nil {
		return err
	}
	for i, row := range bottom {
		if want := len(all) - i; row.Rank != want {
			errs = append(errs, fmt.Errorf("bottom: %s has rank %d, want %d", row.Symbol, row.Rank, want))
		}
	}

	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("%w: %w", ErrVerification, err)
	}
	return nil
}

// displayFinalStats logs the final run statistics.
func displayFinalStats(ctx context.Context, log logger.Logger, stats *Stats) {
	var ticksPerSecond float64
	if stats.Duration > 0 {
		ticksPerSecond = float64(stats.TicksSubmitted) / stats.Duration.Seconds()
	}
	log.Info(ctx, "final statistics",
		logger.Int("companies_created", stats.CompaniesCreated),
		logger.Int("ticks_submitted", stats.TicksSubmitted),
		logger.Int("ticks_accepted", stats.TicksAccepted),
		logger.Int("ticks_duplicate", stats.TicksDuplicate),
		logger.Int("ticks_failed", stats.TicksFailed),
		logger.Duration("duration", stats.Duration),
		logger.Float64("ticks_per_second", ticksPerSecond),
	)
}
