// Package types contains the read shapes returned by leaderboard queries.
package types

import "github.com/okian/capboard/internal/domain/model"

// Ranked is a rank-annotated company as returned to callers.
// MarketCap is the exact decimal rendering of the score.
type Ranked struct {
	Company   string `json:"company"`
	Country   string `json:"country"`
	MarketCap string `json:"marketCap"`
	Rank      int    `json:"rank"`
	Symbol    string `json:"symbol"`
}

// NewRanked builds the read shape for c at the given rank.
func NewRanked(c model.Company, rank int) Ranked {
	return Ranked{
		Company:   c.Name,
		Country:   c.Country,
		MarketCap: c.MarketCap.String(),
		Rank:      rank,
		Symbol:    c.Symbol,
	}
}
