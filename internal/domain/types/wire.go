package types

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/okian/capboard/internal/domain/model"
)

// CompanyRecord is the wire shape of a company in the seed file and in
// POST /companies. MarketCap accepts a JSON number or a numeric string.
type CompanyRecord struct {
	Symbol    string              `json:"symbol"`
	MarketCap decimal.NullDecimal `json:"marketCap"`
	Company   string              `json:"company"`
	Country   string              `json:"country"`
}

// ToCompany validates the record and returns it with a normalized symbol.
func (r CompanyRecord) ToCompany() (model.Company, error) {
	sym := model.NormalizeSymbol(r.Symbol)
	if sym == "" {
		return model.Company{}, fmt.Errorf("%w: empty symbol", ErrInvalidCompany)
	}
	if !r.MarketCap.Valid {
		return model.Company{}, fmt.Errorf("%w: %q has no marketCap", ErrInvalidCompany, sym)
	}
	return model.Company{
		Symbol:    sym,
		MarketCap: r.MarketCap.Decimal,
		Name:      r.Company,
		Country:   r.Country,
	}, nil
}

// TickMessage is the wire shape of a tick on POST /ticks and on the Kafka
// topic. A missing timestamp means "now".
type TickMessage struct {
	TickID string              `json:"tick_id"`
	Symbol string              `json:"symbol"`
	Amount decimal.NullDecimal `json:"amount"`
	TS     time.Time           `json:"ts"`
}

// NewTickMessage renders t for the wire.
func NewTickMessage(t model.Tick) TickMessage {
	return TickMessage{
		TickID: t.TickID,
		Symbol: t.Symbol,
		Amount: decimal.NewNullDecimal(t.Amount),
		TS:     t.TS,
	}
}

// Tick validates the message and returns the domain tick.
func (m TickMessage) Tick(now time.Time) (model.Tick, error) {
	if m.TickID == "" {
		return model.Tick{}, fmt.Errorf("%w: missing tick_id", ErrInvalidTick)
	}
	sym := model.NormalizeSymbol(m.Symbol)
	if sym == "" {
		return model.Tick{}, fmt.Errorf("%w: missing symbol", ErrInvalidTick)
	}
	if !m.Amount.Valid {
		return model.Tick{}, fmt.Errorf("%w: missing amount", ErrInvalidTick)
	}
	ts := m.TS
	if ts.IsZero() {
		ts = now
	}
	return model.Tick{TickID: m.TickID, Symbol: sym, Amount: m.Amount.Decimal, TS: ts}, nil
}
