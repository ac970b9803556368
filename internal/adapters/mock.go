package adapters

import (
	"context"
	"sync"

	"github.com/Arushi221/got-trading-bot/internal/model"
)

// MockBackend is a scripted in-memory Backend for tests. Each endpoint returns
// whatever was last set for it and counts its calls.
type MockBackend struct {
	mu sync.Mutex

	prices    model.PriceCache
	pricesErr error

	portfolio    model.PortfolioState
	portfolioErr error

	tradeResult model.TradeResult
	tradeErr    error
	trades      []model.TradeRequest

	signals    map[string]model.Signal
	signalsErr error

	botStatus    model.AutomationStatus
	botStatusErr error

	toggleResult model.ToggleResult
	toggleErr    error
	toggles      []bool

	strategies    map[string]model.StrategyInfo
	strategiesErr error

	calls map[string]int
}

// NewMockBackend creates a mock with an empty portfolio and no prices.
func NewMockBackend() *MockBackend {
	return &MockBackend{
		prices:    model.PriceCache{},
		portfolio: model.PortfolioState{Holdings: map[string]int{}, History: []model.Transaction{}},
		signals:   map[string]model.Signal{},
		botStatus: model.AutomationStatus{CheckIntervalSeconds: DefaultCheckIntervalSeconds},
		calls:     map[string]int{},
	}
}

func (m *MockBackend) SetPrices(c model.PriceCache, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.prices, m.pricesErr = c, err
}

func (m *MockBackend) SetPortfolio(p model.PortfolioState, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.portfolio, m.portfolioErr = p, err
}

func (m *MockBackend) SetTradeResult(r model.TradeResult, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tradeResult, m.tradeErr = r, err
}

func (m *MockBackend) SetSignals(s map[string]model.Signal, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.signals, m.signalsErr = s, err
}

func (m *MockBackend) SetBotStatus(s model.AutomationStatus, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.botStatus, m.botStatusErr = s, err
}

func (m *MockBackend) SetToggleResult(r model.ToggleResult, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.toggleResult, m.toggleErr = r, err
}

func (m *MockBackend) SetStrategies(s map[string]model.StrategyInfo, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.strategies, m.strategiesErr = s, err
}

// Calls returns how many times endpoint was hit. Endpoints are named
// prices, portfolio, trade, signals, bot_status, toggle_bot and strategies.
func (m *MockBackend) Calls(endpoint string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[endpoint]
}

// Trades returns every submitted trade request in order.
func (m *MockBackend) Trades() []model.TradeRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]model.TradeRequest(nil), m.trades...)
}

// Toggles returns every requested enabled value in order.
func (m *MockBackend) Toggles() []bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]bool(nil), m.toggles...)
}

func (m *MockBackend) GetPrices(ctx context.Context) (model.PriceCache, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls["prices"]++
	if m.pricesErr != nil {
		return nil, m.pricesErr
	}
	return m.prices.Clone(), nil
}

func (m *MockBackend) GetPortfolio(ctx context.Context, userID string) (model.PortfolioState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls["portfolio"]++
	if m.portfolioErr != nil {
		return model.PortfolioState{}, m.portfolioErr
	}
	return m.portfolio.Clone(), nil
}

func (m *MockBackend) SubmitTrade(ctx context.Context, userID string, req model.TradeRequest) (model.TradeResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls["trade"]++
	m.trades = append(m.trades, req)
	if m.tradeErr != nil {
		return model.TradeResult{}, m.tradeErr
	}
	return m.tradeResult, nil
}

func (m *MockBackend) GetSignals(ctx context.Context) (map[string]model.Signal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls["signals"]++
	if m.signalsErr != nil {
		return nil, m.signalsErr
	}
	out := make(map[string]model.Signal, len(m.signals))
	for k, v := range m.signals {
		out[k] = v
	}
	return out, nil
}

func (m *MockBackend) GetBotStatus(ctx context.Context) (model.AutomationStatus, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls["bot_status"]++
	if m.botStatusErr != nil {
		return model.AutomationStatus{}, m.botStatusErr
	}
	return m.botStatus, nil
}

func (m *MockBackend) ToggleBot(ctx context.Context, enabled bool) (model.ToggleResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls["toggle_bot"]++
	m.toggles = append(m.toggles, enabled)
	if m.toggleErr != nil {
		return model.ToggleResult{}, m.toggleErr
	}
	return m.toggleResult, nil
}

func (m *MockBackend) GetStrategies(ctx context.Context) (map[string]model.StrategyInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls["strategies"]++
	if m.strategiesErr != nil {
		return nil, m.strategiesErr
	}
	out := make(map[string]model.StrategyInfo, len(m.strategies))
	for k, v := range m.strategies {
		out[k] = v
	}
	return out, nil
}
