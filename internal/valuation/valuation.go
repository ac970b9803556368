// Package valuation derives holdings value and total equity from a portfolio
// and the price cache. It performs no I/O.
package valuation

import (
	"github.com/shopspring/decimal"

	"github.com/Arushi221/got-trading-bot/internal/model"
)

// Line is the valuation of one holding.
type Line struct {
	Symbol   string
	Quantity int
	Price    decimal.Decimal // zero when unknown
	// PriceKnown is false when the symbol is not cached or its price is null.
	// Such lines contribute zero but are unknown, not worthless.
	PriceKnown bool
	Value      decimal.Decimal
}

// Valuation is the exact value of a portfolio at the cached prices.
type Valuation struct {
	Cash          decimal.Decimal
	HoldingsValue decimal.Decimal
	Total         decimal.Decimal
	Lines         []Line // ordered by symbol
}

// Compute values p at the prices in c.
func Compute(p model.PortfolioState, c model.PriceCache) Valuation {
	v := Valuation{
		Cash:          decimal.NewFromFloat(p.Cash),
		HoldingsValue: decimal.Zero,
	}

	for _, h := range p.SortedHoldings() {
		line := Line{Symbol: h.Symbol, Quantity: h.Quantity, Price: decimal.Zero, Value: decimal.Zero}
		if price, ok := c.Price(h.Symbol); ok {
			line.Price = decimal.NewFromFloat(price)
			line.PriceKnown = true
			line.Value = line.Price.Mul(decimal.NewFromInt(int64(h.Quantity)))
		}
		v.HoldingsValue = v.HoldingsValue.Add(line.Value)
		v.Lines = append(v.Lines, line)
	}

	v.Total = v.Cash.Add(v.HoldingsValue)
	return v
}

// Unpriced returns the symbols held with a non-zero quantity whose price is unknown.
func (v Valuation) Unpriced() []string {
	var out []string
	for _, l := range v.Lines {
		if !l.PriceKnown && l.Quantity > 0 {
			out = append(out, l.Symbol)
		}
	}
	return out
}

// Line returns the line for symbol.
func (v Valuation) Line(symbol string) (Line, bool) {
	for _, l := range v.Lines {
		if l.Symbol == symbol {
			return l, true
		}
	}
	return Line{}, false
}
