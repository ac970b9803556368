package portfolio

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Arushi221/got-trading-bot/internal/adapters"
	"github.com/Arushi221/got-trading-bot/internal/model"
)

var t0 = time.Date(2025, 3, 1, 9, 30, 0, 0, time.UTC)

func tx(minute int, sym string) model.Transaction {
	return model.Transaction{Time: t0.Add(time.Duration(minute) * time.Minute), Action: model.ActionBuy, Symbol: sym, Qty: 1, Price: 10}
}

func TestRefreshAdoptsBackendState(t *testing.T) {
	mock := adapters.NewMockBackend()
	mock.SetPortfolio(model.PortfolioState{Cash: 1000, Holdings: map[string]int{"HOUSE_A": 5}}, nil)
	s := NewStore(mock, "ned")
	assert.False(t, s.Loaded())

	var notified []model.PortfolioState
	s.Subscribe(func(p model.PortfolioState) { notified = append(notified, p) })

	p, err := s.Refresh(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1000.0, p.Cash)
	assert.Equal(t, 5, p.Holdings["HOUSE_A"])
	assert.NotNil(t, p.History)
	assert.True(t, s.Loaded())
	assert.Equal(t, int64(1), s.Version())
	assert.Len(t, notified, 1)
}

func TestRefreshFailureRetainsPrevious(t *testing.T) {
	tests := []struct {
		name string
		err  error
	}{
		{"unreachable", errors.New("dial tcp: connection refused")},
		{"malformed", model.Malformed("decode portfolio", "cash: missing")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock := adapters.NewMockBackend()
			mock.SetPortfolio(model.PortfolioState{Cash: 42, Holdings: map[string]int{"A": 1}}, nil)
			s := NewStore(mock, "ned")
			_, err := s.Refresh(context.Background())
			require.NoError(t, err)

			mock.SetPortfolio(model.PortfolioState{}, tt.err)
			p, err := s.Refresh(context.Background())
			require.Error(t, err)
			assert.True(t, errors.Is(err, model.ErrPortfolioUnavailable))
			assert.Equal(t, 42.0, p.Cash)
			assert.Equal(t, 42.0, s.Snapshot().Cash)
			assert.Equal(t, int64(1), s.Version())
		})
	}
}

func TestApplyTradeResultAdoptsInlinePortfolio(t *testing.T) {
	mock := adapters.NewMockBackend()
	s := NewStore(mock, "ned")

	echo := model.PortfolioState{Cash: 700, Holdings: map[string]int{"HOUSE_A": 8}, History: []model.Transaction{tx(0, "HOUSE_A")}}
	p, adopted, err := s.ApplyTradeResult(context.Background(), model.TradeResult{Success: true, Portfolio: &echo})
	require.NoError(t, err)
	assert.True(t, adopted)
	assert.Equal(t, 700.0, p.Cash)
	assert.Equal(t, 8, p.Holdings["HOUSE_A"])
	assert.Equal(t, 0, mock.Calls("portfolio"), "inline portfolio must not trigger a fetch")

	echo.Holdings["HOUSE_A"] = 99
	assert.Equal(t, 8, s.Snapshot().Holdings["HOUSE_A"], "store keeps its own copy")
}

func TestApplyTradeResultFallsBackToRefresh(t *testing.T) {
	mock := adapters.NewMockBackend()
	mock.SetPortfolio(model.PortfolioState{Cash: 5}, nil)
	s := NewStore(mock, "ned")

	p, adopted, err := s.ApplyTradeResult(context.Background(), model.TradeResult{Success: true})
	require.NoError(t, err)
	assert.False(t, adopted)
	assert.Equal(t, 5.0, p.Cash)
	assert.Equal(t, 1, mock.Calls("portfolio"))
}

func TestRecentHistory(t *testing.T) {
	var hist []model.Transaction
	for i := 0; i < 15; i++ {
		hist = append(hist, tx(i, fmt.Sprintf("S%02d", i)))
	}
	// Out-of-order delivery must not change display order.
	hist[3], hist[12] = hist[12], hist[3]

	mock := adapters.NewMockBackend()
	mock.SetPortfolio(model.PortfolioState{Cash: 1, History: hist}, nil)
	s := NewStore(mock, "ned")
	_, err := s.Refresh(context.Background())
	require.NoError(t, err)

	recent := s.RecentHistory(10)
	require.Len(t, recent, 10)
	assert.Equal(t, "S14", recent[0].Symbol)
	assert.Equal(t, "S05", recent[9].Symbol)
	for i := 1; i < len(recent); i++ {
		assert.False(t, recent[i].Time.After(recent[i-1].Time), "most recent first")
	}

	assert.Len(t, s.Snapshot().History, 15, "store never discards entries")
	assert.Empty(t, s.RecentHistory(0))
}

func TestRecentKeepsOrderForEqualTimes(t *testing.T) {
	a, b := tx(1, "A"), tx(1, "B")
	got := Recent([]model.Transaction{a, b, tx(0, "C")}, 10)
	require.Len(t, got, 3)
	assert.Equal(t, []string{"B", "A", "C"}, []string{got[0].Symbol, got[1].Symbol, got[2].Symbol})
}

func TestRecentEmpty(t *testing.T) {
	assert.Empty(t, Recent(nil, 10))
	assert.Nil(t, Recent([]model.Transaction{tx(0, "A")}, -1))
}
