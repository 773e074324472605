// Package repository holds the leaderboard state behind the Store interface.
// The memory backend keeps an ordered index plus metadata under one lock; the
// Redis backend keeps a sorted set plus one hash per company.
package repository

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/okian/capboard/internal/domain/model"
)

// Page is one ranked slice of the leaderboard together with the total count
// observed in the same snapshot.
type Page struct {
	Companies []model.Company
	Total     int
}

// Store provides read/write access to the leaderboard state. Every method
// sees or changes whole company records: a score is never visible without
// its metadata.
type Store interface {
	// Insert creates or overwrites the record for c.Symbol.
	Insert(ctx context.Context, c model.Company) error
	// IncrementScore adds delta to an existing record and returns the new
	// score. Returns ErrNotFound if the symbol is unknown.
	IncrementScore(ctx context.Context, symbol string, delta decimal.Decimal) (decimal.Decimal, error)
	// Remove deletes the record. Removing an unknown symbol is not an error.
	Remove(ctx context.Context, symbol string) error

	// Range returns the records between the inclusive rank positions start
	// and stop. Negative positions count from the end; out-of-range bounds
	// are clamped. Descending walks from the highest score.
	Range(ctx context.Context, start, stop int, descending bool) (Page, error)
	// Lookup returns the records found for symbols, read from one snapshot.
	// Unknown symbols are absent from the map.
	Lookup(ctx context.Context, symbols []string) (map[string]model.Company, error)
	// Position returns the record for symbol and its 0-based position in
	// descending order. Returns ErrNotFound if the symbol is unknown.
	Position(ctx context.Context, symbol string) (model.Company, int, error)
	// Count returns the number of ranked companies.
	Count(ctx context.Context) (int, error)

	// Ping reports whether the backend is reachable.
	Ping(ctx context.Context) error
	// Close flushes and releases the backend.
	Close() error
}

// Journal is a durable copy of a memory store.
type Journal interface {
	// Save writes puts and deletes in one batch.
	Save(ctx context.Context, puts []model.Company, deletes []string) error
	// Load returns every saved record.
	Load(ctx context.Context) ([]model.Company, error)
}
