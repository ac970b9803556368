package view

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Arushi221/got-trading-bot/internal/model"
	"github.com/Arushi221/got-trading-bot/internal/notify"
)

func price(v float64) *float64 { return &v }

func TestRenderPrices(t *testing.T) {
	out := RenderPrices(model.PriceCache{
		"HOUSE_A": {Symbol: "HOUSE_A", Price: price(100), Change: 2, ChangePercent: 2.0},
		"HOUSE_B": {Symbol: "HOUSE_B", Change: -1},
		"STARK":   {Symbol: "STARK", Name: "House Stark", Price: price(190.5), Change: -1.25, ChangePercent: -0.65, High: price(192), Low: price(188)},
	})
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 3)

	assert.Contains(t, lines[0], "$100.00")
	assert.Contains(t, lines[0], "+2.00 (+2.00%)")
	assert.Contains(t, lines[1], Placeholder)
	assert.NotContains(t, lines[1], "$0.00", "unknown price never renders as zero")
	assert.Contains(t, lines[2], "House Stark")
	assert.Contains(t, lines[2], "-1.25 (-0.65%)")
	assert.Contains(t, lines[2], "H $192.00 L $188.00")

	assert.Equal(t, "No prices yet.\n", RenderPrices(nil))
}

func TestRenderPortfolioScenario(t *testing.T) {
	prices := model.PriceCache{"HOUSE_A": {Symbol: "HOUSE_A", Price: price(100), Change: 2, ChangePercent: 2.0}}
	p := model.PortfolioState{Cash: 1000, Holdings: map[string]int{"HOUSE_A": 5}}

	out := RenderPortfolio(p, prices, true)
	assert.Contains(t, out, "Cash:           $1000.00")
	assert.Contains(t, out, "Holdings value: $500.00")
	assert.Contains(t, out, "Total:          $1500.00")
	assert.Equal(t, "No transactions yet.\n", RenderHistory(p.History, 10))
}

func TestRenderPortfolioUnknownPrice(t *testing.T) {
	p := model.PortfolioState{Cash: 10, Holdings: map[string]int{"LANNISTER": 2, "TULLY": 0}}
	out := RenderPortfolio(p, model.PriceCache{"LANNISTER": {Symbol: "LANNISTER"}}, true)

	assert.Contains(t, out, "= unknown")
	assert.Contains(t, out, "excludes unpriced LANNISTER")
	assert.Contains(t, out, "TULLY", "zero holdings still render")
	assert.Contains(t, out, "Total:          $10.00")
}

func TestRenderBeforeFirstConfirmedRead(t *testing.T) {
	tests := []struct {
		name     string
		out      string
		loading  string
		mustSkip []string
	}{
		{
			name:     "portfolio",
			out:      RenderPortfolio(model.PortfolioState{}, model.PriceCache{}, false),
			loading:  "Portfolio Loading...",
			mustSkip: []string{"$0.00", "No holdings."},
		},
		{
			name:     "bot status",
			out:      RenderBotStatus(model.AutomationStatus{}, false),
			loading:  "Bot status Loading...",
			mustSkip: []string{"INACTIVE", "Enabled:  no", "CLOSED"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Contains(t, tt.out, tt.loading)
			assert.Contains(t, tt.out, Placeholder)
			for _, s := range tt.mustSkip {
				assert.NotContains(t, tt.out, s)
			}
		})
	}
}

func TestRenderHistoryLimitAndOrder(t *testing.T) {
	base := time.Date(2025, 1, 2, 10, 0, 0, 0, time.UTC)
	var hist []model.Transaction
	for i := 0; i < 12; i++ {
		hist = append(hist, model.Transaction{Time: base.Add(time.Duration(i) * time.Hour), Action: model.ActionAutoBuy, Symbol: fmt.Sprintf("S%02d", i), Qty: 1, Price: 5, Reason: "RSI oversold"})
	}

	out := RenderHistory(hist, 10)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 10)
	assert.Contains(t, lines[0], "S11")
	assert.Contains(t, lines[0], "2025-01-02 21:00:00")
	assert.Contains(t, lines[0], "AUTO_BUY")
	assert.Contains(t, lines[0], "(RSI oversold)")
	assert.Contains(t, lines[9], "S02")
}

func TestRenderSignalsKeepsTopLevelLabel(t *testing.T) {
	out := RenderSignals(map[string]model.Signal{
		"STARK": {Symbol: "STARK", Signal: model.SignalBuy, Reason: "consensus", Strength: "STRONG", Strategies: map[string]model.StrategySignal{
			"rsi":  {Signal: model.SignalSell, Detail: "RSI 75"},
			"macd": {Signal: model.SignalSell, Detail: "cross down"},
		}},
		"ARRYN": {Symbol: "ARRYN", Signal: model.SignalHold},
	})
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 4)
	assert.True(t, strings.HasPrefix(lines[0], "ARRYN"))
	assert.Contains(t, lines[1], "STARK        BUY  [STRONG]  consensus")
	assert.Contains(t, lines[2], "macd:")
	assert.Contains(t, lines[3], "rsi:")
	assert.Contains(t, lines[3], "SELL")
}

func TestRenderBotStatusNeverShowsRunningWithoutEnabled(t *testing.T) {
	tests := []struct {
		name        string
		status      model.AutomationStatus
		wantBot     string
		wantRunning string
	}{
		{"inactive", model.AutomationStatus{}, "INACTIVE", "no"},
		{"starting", model.AutomationStatus{Enabled: true}, "STARTING", "no"},
		{"active", model.AutomationStatus{Enabled: true, Running: true}, "ACTIVE", "yes"},
		{"inconsistent", model.AutomationStatus{Running: true}, "INACTIVE", "no"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := RenderBotStatus(tt.status, true)
			assert.Contains(t, out, "Bot:      "+tt.wantBot+"\n")
			assert.Contains(t, out, "Running:  "+tt.wantRunning+"\n")
		})
	}
}

func TestRenderBotStatusMarket(t *testing.T) {
	vix := 21.456
	out := RenderBotStatus(model.AutomationStatus{Enabled: true, VIX: &vix, CheckIntervalSeconds: 60,
		Market: model.MarketStatus{IsOpen: true, CurrentTime: "10:30 AM ET"}}, true)
	assert.Contains(t, out, "VIX:      21.46")
	assert.Contains(t, out, "Market:   OPEN (10:30 AM ET)")
	assert.Contains(t, RenderBotStatus(model.AutomationStatus{}, true), "VIX:      --")
}

func TestRenderStrategiesAndNotices(t *testing.T) {
	out := RenderStrategies(map[string]model.StrategyInfo{
		"rsi": {Name: "RSI Strategy", Description: "Momentum", Indicators: []string{"RSI(14)", "SMA(20)"}},
	})
	assert.Contains(t, out, "RSI Strategy\n  Momentum\n  Indicators: RSI(14), SMA(20)\n")

	n := RenderNotices([]notify.Notice{{Level: notify.LevelError, Text: "Insufficient gold"}}, "Insufficient gold")
	assert.Equal(t, "[error] Insufficient gold\n! Insufficient gold\n", n)
}
