package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"

	"github.com/okian/capboard/internal/adapters/repository"
	"github.com/okian/capboard/internal/domain/model"
	"github.com/okian/capboard/internal/domain/ranking"
	"github.com/okian/capboard/internal/domain/types"
	"github.com/okian/capboard/internal/tracing"
	"github.com/okian/capboard/pkg/logger"
	"github.com/okian/capboard/pkg/metrics"
)

// errorKind labels err for the leaderboard error counter.
func errorKind(err error) string {
	switch {
	case errors.Is(err, ErrInvalidSymbol):
		return "invalid_symbol"
	case errors.Is(err, ranking.ErrInvalidMode):
		return "invalid_mode"
	case errors.Is(err, repository.ErrNotFound):
		return "not_found"
	case errors.Is(err, repository.ErrBackendUnavailable):
		return "backend_unavailable"
	case errors.Is(err, repository.ErrClosed):
		return "closed"
	case errors.Is(err, ErrNotStarted):
		return "not_started"
	}
	return "internal"
}

func (s *Service) fail(op string, err error) error {
	metrics.RecordLeaderboardError(op, errorKind(err))
	return err
}

// Insert writes the full record for c, replacing any previous one.
func (s *Service) Insert(ctx context.Context, c model.Company) (err error) {
	ctx, span := tracing.StartSpan(ctx, "leaderboard.Insert", attribute.String("symbol", c.Symbol))
	defer func() { tracing.End(span, err) }()

	c.Symbol = model.NormalizeSymbol(c.Symbol)
	if c.Symbol == "" {
		return s.fail("insert", ErrInvalidSymbol)
	}
	store, err := s.backend()
	if err != nil {
		return s.fail("insert", err)
	}
	if err := store.Insert(ctx, c); err != nil {
		return s.fail("insert", fmt.Errorf("insert %q: %w", c.Symbol, err))
	}
	metrics.RecordMutation("insert")
	return nil
}

// IncrementScore adds delta to the market cap of a known symbol and returns
// the new value. Unknown symbols return repository.ErrNotFound and nothing
// is created.
func (s *Service) IncrementScore(ctx context.Context, symbol string, delta decimal.Decimal) (next decimal.Decimal, err error) {
	ctx, span := tracing.StartSpan(ctx, "leaderboard.IncrementScore", attribute.String("symbol", symbol))
	defer func() { tracing.End(span, err) }()

	symbol = model.NormalizeSymbol(symbol)
	if symbol == "" {
		return decimal.Zero, s.fail("increment", ErrInvalidSymbol)
	}
	store, err := s.backend()
	if err != nil {
		return decimal.Zero, s.fail("increment", err)
	}
	next, err = store.IncrementScore(ctx, symbol, delta)
	if err != nil {
		return decimal.Zero, s.fail("increment", fmt.Errorf("increment %q: %w", symbol, err))
	}
	metrics.RecordMutation("increment")
	return next, nil
}

// Remove deletes a company. Removing an unknown symbol is not an error.
func (s *Service) Remove(ctx context.Context, symbol string) (err error) {
	ctx, span := tracing.StartSpan(ctx, "leaderboard.Remove", attribute.String("symbol", symbol))
	defer func() { tracing.End(span, err) }()

	symbol = model.NormalizeSymbol(symbol)
	if symbol == "" {
		return s.fail("remove", ErrInvalidSymbol)
	}
	store, err := s.backend()
	if err != nil {
		return s.fail("remove", err)
	}
	if err := store.Remove(ctx, symbol); err != nil {
		return s.fail("remove", fmt.Errorf("remove %q: %w", symbol, err))
	}
	metrics.RecordMutation("remove")
	return nil
}

// GetRanked returns the slice of the leaderboard selected by mode, every
// row annotated with its rank. Ranks and the total come from one snapshot.
func (s *Service) GetRanked(ctx context.Context, mode ranking.Mode) (out []types.Ranked, err error) {
	ctx, span := tracing.StartSpan(ctx, "leaderboard.GetRanked", attribute.String("mode", string(mode)))
	defer func() { tracing.End(span, err) }()

	w, err := mode.Window(s.rankLimit)
	if err != nil {
		return nil, s.fail("ranked", err)
	}
	store, err := s.backend()
	if err != nil {
		return nil, s.fail("ranked", err)
	}
	page, err := store.Range(ctx, w.Start, w.Stop, w.Descending)
	if err != nil {
		return nil, s.fail("ranked", fmt.Errorf("read %s: %w", mode, err))
	}

	out = make([]types.Ranked, len(page.Companies))
	for i, c := range page.Companies {
		out[i] = types.NewRanked(c, w.RankAt(i, page.Total))
	}
	metrics.RecordRead(string(mode))
	metrics.UpdateCompaniesTotal(page.Total)
	span.SetAttributes(attribute.Int("rows", len(out)), attribute.Int("total", page.Total))
	return out, nil
}

// GetRank returns one company with its 1-based position on the full
// descending leaderboard.
func (s *Service) GetRank(ctx context.Context, symbol string) (out types.Ranked, err error) {
	ctx, span := tracing.StartSpan(ctx, "leaderboard.GetRank", attribute.String("symbol", symbol))
	defer func() { tracing.End(span, err) }()

	symbol = model.NormalizeSymbol(symbol)
	if symbol == "" {
		return types.Ranked{}, s.fail("rank", ErrInvalidSymbol)
	}
	store, err := s.backend()
	if err != nil {
		return types.Ranked{}, s.fail("rank", err)
	}
	c, pos, err := store.Position(ctx, symbol)
	if err != nil {
		return types.Ranked{}, s.fail("rank", fmt.Errorf("rank of %q: %w", symbol, err))
	}
	metrics.RecordRead("symbol")
	return types.NewRanked(c, pos+1), nil
}

// GetBySymbols returns the requested companies in request order. The rank
// of a row is its 1-based position in symbols; unknown symbols are left out
// and do not shift the ranks of the others.
func (s *Service) GetBySymbols(ctx context.Context, symbols []string) (out []types.Ranked, err error) {
	ctx, span := tracing.StartSpan(ctx, "leaderboard.GetBySymbols", attribute.Int("symbols", len(symbols)))
	defer func() { tracing.End(span, err) }()

	store, err := s.backend()
	if err != nil {
		return nil, s.fail("lookup", err)
	}
	normalized := make([]string, len(symbols))
	for i, sym := range symbols {
		normalized[i] = model.NormalizeSymbol(sym)
	}
	found, err := store.Lookup(ctx, normalized)
	if err != nil {
		return nil, s.fail("lookup", fmt.Errorf("lookup: %w", err))
	}

	out = make([]types.Ranked, 0, len(found))
	for i, sym := range normalized {
		c, ok := found[sym]
		if !ok {
			continue
		}
		out = append(out, types.NewRanked(c, i+1))
	}
	metrics.RecordRead("symbols")
	return out, nil
}

// Seed inserts companies in bulk, typically at startup. Records with an
// empty symbol are skipped and counted.
func (s *Service) Seed(ctx context.Context, companies []model.Company) (err error) {
	ctx, span := tracing.StartSpan(ctx, "leaderboard.Seed", attribute.Int("companies", len(companies)))
	defer func() { tracing.End(span, err) }()

	store, err := s.backend()
	if err != nil {
		return s.fail("seed", err)
	}
	loaded, skipped := 0, 0
	for _, c := range companies {
		c.Symbol = model.NormalizeSymbol(c.Symbol)
		if c.Symbol == "" {
			skipped++
			continue
		}
		if err := store.Insert(ctx, c); err != nil {
			metrics.RecordSeed(loaded, skipped)
			return s.fail("seed", fmt.Errorf("seed %q: %w", c.Symbol, err))
		}
		loaded++
	}
	metrics.RecordSeed(loaded, skipped)
	s.logger.Info(ctx, "leaderboard seeded", logger.Int("loaded", loaded), logger.Int("skipped", skipped))
	return nil
}
