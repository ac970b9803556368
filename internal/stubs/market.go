package stubs

import (
	"fmt"
	"math/rand"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

var (
	minPrice = decimal.RequireFromString("0.01")
	hundred  = decimal.NewFromInt(100)
)

type quote struct {
	inst     Instrument
	open     decimal.Decimal
	last     decimal.Decimal
	high     decimal.Decimal
	low      decimal.Decimal
	volume   int64
	updated  time.Time
	unpriced bool
}

// Market random-walks a fixed set of instruments. Prices are kept to the cent.
type Market struct {
	mu      sync.Mutex
	rng     *rand.Rand
	vol     float64
	quotes  map[string]*quote
	symbols []string
	now     func() time.Time
}

// NewMarket opens every instrument at its base price. The same seed replays the
// same walk.
func NewMarket(instruments []Instrument, seed int64) *Market {
	m := &Market{
		rng:    rand.New(rand.NewSource(seed)),
		vol:    0.01,
		quotes: make(map[string]*quote, len(instruments)),
		now:    time.Now,
	}
	start := m.now()
	for _, inst := range instruments {
		p := decimal.NewFromFloat(inst.Base).Round(2)
		m.quotes[inst.Symbol] = &quote{inst: inst, open: p, last: p, high: p, low: p, updated: start}
		m.symbols = append(m.symbols, inst.Symbol)
	}
	sort.Strings(m.symbols)
	return m
}

// Step moves every priced instrument by a normally distributed return.
func (m *Market) Step() {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	for _, sym := range m.symbols {
		q := m.quotes[sym]
		if q.unpriced {
			continue
		}
		ret := decimal.NewFromFloat(m.rng.NormFloat64() * m.vol)
		next := q.last.Mul(decimal.NewFromInt(1).Add(ret)).Round(2)
		if next.LessThan(minPrice) {
			next = minPrice
		}
		q.last = next
		if next.GreaterThan(q.high) {
			q.high = next
		}
		if next.LessThan(q.low) {
			q.low = next
		}
		q.volume += int64(m.rng.Intn(5000))
		q.updated = now
	}
}

// SetPrice pins the last price of symbol.
func (m *Market) SetPrice(symbol string, price float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	q, ok := m.quotes[symbol]
	if !ok {
		return fmt.Errorf("unknown symbol %q", symbol)
	}
	q.last = decimal.NewFromFloat(price).Round(2)
	q.high = decimal.Max(q.high, q.last)
	q.low = decimal.Min(q.low, q.last)
	q.unpriced = false
	q.updated = m.now()
	return nil
}

// SetUnpriced makes symbol report a null price until SetPrice is called.
func (m *Market) SetUnpriced(symbol string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	q, ok := m.quotes[symbol]
	if !ok {
		return fmt.Errorf("unknown symbol %q", symbol)
	}
	q.unpriced = true
	return nil
}

// Lookup resolves symbol case-insensitively.
func (m *Market) Lookup(symbol string) (string, bool) {
	sym := strings.ToUpper(strings.TrimSpace(symbol))
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.quotes[sym]
	return sym, ok
}

// Price returns the last price of symbol. ok is false when the symbol is
// unknown or unpriced.
func (m *Market) Price(symbol string) (decimal.Decimal, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	q, ok := m.quotes[symbol]
	if !ok || q.unpriced {
		return decimal.Zero, false
	}
	return q.last, true
}

// ChangePercent is the move since open, in percent.
func (m *Market) ChangePercent(symbol string) (float64, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	q, ok := m.quotes[symbol]
	if !ok || q.unpriced {
		return 0, false
	}
	return changePercent(q), true
}

func changePercent(q *quote) float64 {
	if q.open.IsZero() {
		return 0
	}
	return q.last.Sub(q.open).Div(q.open).Mul(hundred).Round(2).InexactFloat64()
}

func (m *Market) snapshot() map[string]priceWire {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make(map[string]priceWire, len(m.quotes))
	for sym, q := range m.quotes {
		w := priceWire{
			Name:        q.inst.Name,
			Motto:       q.inst.Motto,
			High:        q.high.InexactFloat64(),
			Low:         q.low.InexactFloat64(),
			Volume:      q.volume,
			LastUpdated: q.updated.Format(wireTime),
		}
		if !q.unpriced {
			last := q.last.InexactFloat64()
			w.Price = &last
			w.Change = q.last.Sub(q.open).InexactFloat64()
			w.ChangePercent = changePercent(q)
		}
		out[sym] = w
	}
	return out
}

// signals labels each priced instrument from its session move.
func (m *Market) signals() []signalWire {
	snap := m.snapshot()
	out := make([]signalWire, 0, len(snap))
	for _, sym := range m.symbols {
		p := snap[sym]
		if p.Price == nil {
			continue
		}
		momentum, reversion := "HOLD", "HOLD"
		switch {
		case p.ChangePercent > 2:
			momentum, reversion = "BUY", "SELL"
		case p.ChangePercent < -2:
			momentum, reversion = "SELL", "BUY"
		}

		sig := signalWire{
			Symbol: sym,
			Signal: momentum,
			Reason: fmt.Sprintf("%s moved %.2f%% since open", p.Name, p.ChangePercent),
			Strategies: map[string]strategyWire{
				"momentum":       {Signal: momentum, Detail: fmt.Sprintf("change %.2f%%", p.ChangePercent)},
				"mean_reversion": {Signal: reversion, Detail: fmt.Sprintf("last %.2f", *p.Price)},
			},
		}
		if momentum != "HOLD" {
			sig.Strength = "STRONG"
		}
		out = append(out, sig)
	}
	return out
}

func (m *Market) rngFloat() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.rng.Float64()
}
