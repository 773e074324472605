package loadgen

import (
	"fmt"
	"math/rand/v2"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/okian/capboard/internal/domain/model"
	"github.com/okian/capboard/internal/domain/types"
)

// Market caps are generated in millions with two decimals, so expected
// totals are exact.
const (
	minCapMillions   = 1_000
	capRangeMillions = 3_000_000
	maxTickMillions  = 5_000
)

var million = decimal.NewFromInt(1_000_000)

// Plan is the generated workload and the market caps it should produce.
type Plan struct {
	Companies []types.CompanyRecord
	Ticks     []model.Tick
	Expected  map[string]decimal.Decimal
}

// NewPlan generates companies companies and ticks ticks spread over them.
// Every tick carries a fresh uuid as its id.
func NewPlan(companies, ticks int, r *rand.Rand) Plan {
	p := Plan{
		Companies: make([]types.CompanyRecord, companies),
		Ticks:     make([]model.Tick, 0, ticks),
		Expected:  make(map[string]decimal.Decimal, companies),
	}
	for i := range p.Companies {
		symbol := fmt.Sprintf("lg%05d", i)
		capital := decimal.NewFromInt(minCapMillions + r.Int64N(capRangeMillions)).Mul(million)
		p.Companies[i] = types.CompanyRecord{
			Symbol:    symbol,
			MarketCap: decimal.NewNullDecimal(capital),
			Company:   "Loadgen " + symbol,
			Country:   "Nowhere",
		}
		p.Expected[symbol] = capital
	}
	if companies == 0 {
		return p
	}
	for i := 0; i < ticks; i++ {
		symbol := p.Companies[r.IntN(companies)].Symbol
		// Signed delta in hundredths of a million.
		amount := decimal.New(r.Int64N(2*maxTickMillions*100)-maxTickMillions*100, -2).Mul(million)
		p.Ticks = append(p.Ticks, model.Tick{TickID: uuid.NewString(), Symbol: symbol, Amount: amount})
		p.Expected[symbol] = p.Expected[symbol].Add(amount)
	}
	return p
}

// Symbols returns the symbols of the plan in creation order.
func (p Plan) Symbols() []string {
	out := make([]string, len(p.Companies))
	for i, c := range p.Companies {
		out[i] = c.Symbol
	}
	return out
}
