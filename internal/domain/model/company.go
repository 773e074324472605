// Package model contains domain models passed between layers.
package model

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Company is the single entity record of the leaderboard: the score and
// its metadata always travel together.
type Company struct {
	Symbol    string          // normalized symbol, see NormalizeSymbol
	MarketCap decimal.Decimal // score used for ordering
	Name      string          // company name, opaque metadata
	Country   string          // country, opaque metadata
}

// Tick is an idempotent market-cap delta submitted by clients or read
// from the tick feed.
type Tick struct {
	TickID string          // unique id for idempotency
	Symbol string          // normalized symbol
	Amount decimal.Decimal // signed delta applied to the market cap
	TS     time.Time       // producer timestamp
}

// NormalizeSymbol trims and lower-cases a symbol the way the seed data and
// the HTTP layer store it.
func NormalizeSymbol(symbol string) string {
	return strings.ToLower(strings.TrimSpace(symbol))
}
