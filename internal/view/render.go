// Package view renders store snapshots as plain text.
package view

import (
	"fmt"
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/Arushi221/got-trading-bot/internal/automation"
	"github.com/Arushi221/got-trading-bot/internal/model"
	"github.com/Arushi221/got-trading-bot/internal/notify"
	"github.com/Arushi221/got-trading-bot/internal/portfolio"
	"github.com/Arushi221/got-trading-bot/internal/valuation"
)

// Placeholder is shown wherever a price is unknown.
const Placeholder = "--"

// Loading is shown for a store the backend has not confirmed yet.
const Loading = "Loading..."

const timeLayout = "2006-01-02 15:04:05"

func money(d decimal.Decimal) string {
	return "$" + d.StringFixed(2)
}

func moneyFloat(f float64) string {
	return money(decimal.NewFromFloat(f))
}

func signed(f float64) string {
	d := decimal.NewFromFloat(f)
	if d.IsNegative() {
		return d.StringFixed(2)
	}
	return "+" + d.StringFixed(2)
}

// RenderPrices renders one line per cached symbol.
func RenderPrices(c model.PriceCache) string {
	if len(c) == 0 {
		return "No prices yet.\n"
	}
	var b strings.Builder
	for _, sym := range c.Symbols() {
		rec := c[sym]
		label := sym
		if rec.Name != "" {
			label = fmt.Sprintf("%s (%s)", sym, rec.Name)
		}
		if !rec.Known() {
			fmt.Fprintf(&b, "%-24s %12s\n", label, Placeholder)
			continue
		}
		fmt.Fprintf(&b, "%-24s %12s %8s (%s%%)", label, moneyFloat(*rec.Price), signed(rec.Change), signed(rec.ChangePercent))
		if rec.High != nil && rec.Low != nil {
			fmt.Fprintf(&b, "  H %s L %s", moneyFloat(*rec.High), moneyFloat(*rec.Low))
		}
		b.WriteString("\n")
	}
	return b.String()
}

// RenderPortfolio renders cash, holdings and totals valued at the cached
// prices. Holdings without a known price read "unknown", never $0.00. Until
// loaded every figure is a placeholder.
func RenderPortfolio(p model.PortfolioState, c model.PriceCache, loaded bool) string {
	var b strings.Builder
	if !loaded {
		fmt.Fprintf(&b, "Cash:           %s\n", Placeholder)
		fmt.Fprintf(&b, "Holdings value: %s\n", Placeholder)
		fmt.Fprintf(&b, "Total:          %s\n", Placeholder)
		b.WriteString("Portfolio " + Loading + "\n")
		return b.String()
	}

	v := valuation.Compute(p, c)
	fmt.Fprintf(&b, "Cash:           %s\n", money(v.Cash))
	fmt.Fprintf(&b, "Holdings value: %s", money(v.HoldingsValue))
	if unpriced := v.Unpriced(); len(unpriced) > 0 {
		fmt.Fprintf(&b, " (excludes unpriced %s)", strings.Join(unpriced, ", "))
	}
	b.WriteString("\n")
	fmt.Fprintf(&b, "Total:          %s\n", money(v.Total))

	if len(v.Lines) == 0 {
		b.WriteString("No holdings.\n")
		return b.String()
	}
	for _, l := range v.Lines {
		if !l.PriceKnown {
			fmt.Fprintf(&b, "  %-12s %6d x %10s = unknown\n", l.Symbol, l.Quantity, Placeholder)
			continue
		}
		fmt.Fprintf(&b, "  %-12s %6d x %10s = %s\n", l.Symbol, l.Quantity, money(l.Price), money(l.Value))
	}
	return b.String()
}

// RenderHistory renders at most limit transactions, most recent first.
func RenderHistory(history []model.Transaction, limit int) string {
	recent := portfolio.Recent(history, limit)
	if len(recent) == 0 {
		return "No transactions yet.\n"
	}
	var b strings.Builder
	for _, t := range recent {
		fmt.Fprintf(&b, "%s  %-9s %-12s %5d @ %s", t.Time.UTC().Format(timeLayout), t.Action, t.Symbol, t.Qty, moneyFloat(t.Price))
		if t.Reason != "" {
			fmt.Fprintf(&b, "  (%s)", t.Reason)
		}
		b.WriteString("\n")
	}
	return b.String()
}

// RenderSignals renders the backend's consensus label as given, followed by
// the per-strategy breakdown when present.
func RenderSignals(signals map[string]model.Signal) string {
	if len(signals) == 0 {
		return "No signals yet.\n"
	}
	syms := make([]string, 0, len(signals))
	for s := range signals {
		syms = append(syms, s)
	}
	sort.Strings(syms)

	var b strings.Builder
	for _, sym := range syms {
		sig := signals[sym]
		fmt.Fprintf(&b, "%-12s %-4s", sym, sig.Signal)
		if sig.Strength != "" {
			fmt.Fprintf(&b, " [%s]", sig.Strength)
		}
		if sig.Reason != "" {
			fmt.Fprintf(&b, "  %s", sig.Reason)
		}
		b.WriteString("\n")
		for _, name := range sig.StrategyNames() {
			st := sig.Strategies[name]
			fmt.Fprintf(&b, "    %-10s %-4s %s\n", name+":", st.Signal, st.Detail)
		}
	}
	return b.String()
}

// RenderBotStatus renders the last confirmed bot status. Running is shown only
// when the same payload also reported enabled. Nothing is claimed before the
// first confirmed read.
func RenderBotStatus(st model.AutomationStatus, confirmed bool) string {
	var b strings.Builder
	if !confirmed {
		for _, label := range []string{"Bot:     ", "Enabled: ", "Running: ", "VIX:     ", "Interval:", "Market:  "} {
			fmt.Fprintf(&b, "%s %s\n", label, Placeholder)
		}
		b.WriteString("Bot status " + Loading + "\n")
		return b.String()
	}

	state := automation.StateOf(st)
	fmt.Fprintf(&b, "Bot:      %s\n", strings.ToUpper(state.String()))
	fmt.Fprintf(&b, "Enabled:  %s\n", yesNo(st.Enabled))
	fmt.Fprintf(&b, "Running:  %s\n", yesNo(state == automation.Active))
	vix := Placeholder
	if st.VIX != nil {
		vix = decimal.NewFromFloat(*st.VIX).StringFixed(2)
	}
	fmt.Fprintf(&b, "VIX:      %s\n", vix)
	fmt.Fprintf(&b, "Interval: %ds\n", st.CheckIntervalSeconds)

	market := "CLOSED"
	if st.Market.IsOpen {
		market = "OPEN"
	}
	if st.Market.Status != "" {
		market = st.Market.Status
	}
	if st.Market.CurrentTime != "" {
		market += " (" + st.Market.CurrentTime + ")"
	}
	fmt.Fprintf(&b, "Market:   %s\n", market)
	return b.String()
}

// RenderStrategies renders strategy metadata ordered by key.
func RenderStrategies(strategies map[string]model.StrategyInfo) string {
	if len(strategies) == 0 {
		return "No strategies.\n"
	}
	keys := make([]string, 0, len(strategies))
	for k := range strategies {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, k := range keys {
		s := strategies[k]
		name := s.Name
		if name == "" {
			name = k
		}
		fmt.Fprintf(&b, "%s\n", name)
		if s.Description != "" {
			fmt.Fprintf(&b, "  %s\n", s.Description)
		}
		if len(s.Indicators) > 0 {
			fmt.Fprintf(&b, "  Indicators: %s\n", strings.Join(s.Indicators, ", "))
		}
	}
	return b.String()
}

// RenderNotices renders active toasts and the pending trade form message.
func RenderNotices(notices []notify.Notice, inline string) string {
	var b strings.Builder
	for _, n := range notices {
		fmt.Fprintf(&b, "[%s] %s\n", n.Level, n.Text)
	}
	if inline != "" {
		fmt.Fprintf(&b, "! %s\n", inline)
	}
	return b.String()
}

func yesNo(v bool) string {
	if v {
		return "yes"
	}
	return "no"
}
