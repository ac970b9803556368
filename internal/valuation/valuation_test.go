package valuation

import (
	"math/rand"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Arushi221/got-trading-bot/internal/model"
)

func price(v float64) *float64 { return &v }

func TestComputeScenario(t *testing.T) {
	prices := model.PriceCache{"HOUSE_A": {Symbol: "HOUSE_A", Price: price(100), Change: 2, ChangePercent: 2}}
	p := model.PortfolioState{Cash: 1000, Holdings: map[string]int{"HOUSE_A": 5}}

	v := Compute(p, prices)
	assert.True(t, v.HoldingsValue.Equal(decimal.NewFromInt(500)), v.HoldingsValue.String())
	assert.True(t, v.Total.Equal(decimal.NewFromInt(1500)), v.Total.String())
	require.Len(t, v.Lines, 1)
	assert.True(t, v.Lines[0].PriceKnown)
}

func TestComputeMissingAndNullPrices(t *testing.T) {
	tests := []struct {
		name   string
		prices model.PriceCache
	}{
		{"symbol not cached", model.PriceCache{}},
		{"null price", model.PriceCache{"B": {Symbol: "B"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := model.PortfolioState{Cash: 10, Holdings: map[string]int{"B": 3}}
			v := Compute(p, tt.prices)

			assert.True(t, v.HoldingsValue.IsZero())
			assert.True(t, v.Total.Equal(decimal.NewFromInt(10)))
			line, ok := v.Line("B")
			require.True(t, ok)
			assert.False(t, line.PriceKnown, "unknown is not worthless")
			assert.Equal(t, []string{"B"}, v.Unpriced())
		})
	}
}

func TestComputeZeroQuantityHolding(t *testing.T) {
	p := model.PortfolioState{Cash: 1, Holdings: map[string]int{"A": 0}}
	v := Compute(p, model.PriceCache{})
	require.Len(t, v.Lines, 1)
	assert.Empty(t, v.Unpriced())
	assert.True(t, v.Total.Equal(decimal.NewFromInt(1)))
}

func TestComputeIsExact(t *testing.T) {
	p := model.PortfolioState{Cash: 0.1, Holdings: map[string]int{"A": 3}}
	v := Compute(p, model.PriceCache{"A": {Price: price(0.1)}})

	assert.Equal(t, "0.3", v.HoldingsValue.String())
	assert.Equal(t, "0.4", v.Total.String())
}

func TestTotalEquityProperty(t *testing.T) {
	r := rand.New(rand.NewSource(7))
	symbols := []string{"A", "B", "C", "D", "E"}

	for i := 0; i < 200; i++ {
		p := model.PortfolioState{Cash: float64(r.Intn(100000)) / 100, Holdings: map[string]int{}}
		c := model.PriceCache{}
		want := decimal.NewFromFloat(p.Cash)
		for _, s := range symbols {
			if r.Intn(3) == 0 {
				continue
			}
			q := r.Intn(50)
			p.Holdings[s] = q
			switch r.Intn(3) {
			case 0: // not cached
			case 1:
				c[s] = model.PriceRecord{Symbol: s}
			default:
				px := float64(r.Intn(100000)) / 100
				c[s] = model.PriceRecord{Symbol: s, Price: price(px)}
				want = want.Add(decimal.NewFromFloat(px).Mul(decimal.NewFromInt(int64(q))))
			}
		}

		v := Compute(p, c)
		require.True(t, v.Total.Equal(want), "iteration %d: got %s want %s", i, v.Total, want)
		require.True(t, v.Total.Equal(v.Cash.Add(v.HoldingsValue)))
	}
}

func TestHoldingsValueMonotonicInQuantity(t *testing.T) {
	c := model.PriceCache{"A": {Price: price(12.5)}, "B": {Price: price(0)}, "C": {}}
	p := model.PortfolioState{Holdings: map[string]int{"A": 1, "B": 1, "C": 1}}

	prev := Compute(p, c).HoldingsValue
	for i := 0; i < 30; i++ {
		sym := []string{"A", "B", "C"}[i%3]
		p.Holdings[sym]++
		cur := Compute(p, c).HoldingsValue
		assert.False(t, cur.LessThan(prev), "holdings value decreased after adding %s", sym)
		prev = cur
	}
}
