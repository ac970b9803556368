package adapters

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/Arushi221/got-trading-bot/internal/config"
	"github.com/Arushi221/got-trading-bot/internal/model"
	"github.com/Arushi221/got-trading-bot/internal/observ"
)

// Backend is the trading backend as seen by the sync core. Every method returns
// canonical model values; dialect differences never leak past this interface.
type Backend interface {
	GetPrices(ctx context.Context) (model.PriceCache, error)
	GetPortfolio(ctx context.Context, userID string) (model.PortfolioState, error)
	SubmitTrade(ctx context.Context, userID string, req model.TradeRequest) (model.TradeResult, error)
	GetSignals(ctx context.Context) (map[string]model.Signal, error)
	GetBotStatus(ctx context.Context) (model.AutomationStatus, error)
	ToggleBot(ctx context.Context, enabled bool) (model.ToggleResult, error)
	GetStrategies(ctx context.Context) (map[string]model.StrategyInfo, error)
}

// HTTPBackend talks to the backend REST API.
type HTTPBackend struct {
	baseURL    string
	dialect    Dialect
	httpClient *http.Client
	limiter    *rate.Limiter // reads only; user-initiated mutations are never delayed
}

// NewHTTPBackend creates a REST client from configuration.
func NewHTTPBackend(cfg config.Backend) *HTTPBackend {
	limit := rate.Inf
	if cfg.RateLimitPerSecond > 0 {
		limit = rate.Limit(cfg.RateLimitPerSecond)
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}

	portfolioPathUser := true
	if cfg.Dialect.PortfolioPathUser != nil {
		portfolioPathUser = *cfg.Dialect.PortfolioPathUser
	}
	pricesPath := cfg.Dialect.PricesPath
	if pricesPath == "" {
		pricesPath = "/api/prices"
	}

	return &HTTPBackend{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		dialect: Dialect{
			SymbolField:       cfg.Dialect.SymbolField,
			ActionCase:        cfg.Dialect.ActionCase,
			PortfolioPathUser: portfolioPathUser,
			PricesPath:        pricesPath,
		},
		// Timeout 0 means none: a hung request only delays its own component.
		httpClient: &http.Client{Timeout: time.Duration(cfg.TimeoutMs) * time.Millisecond},
		limiter:    rate.NewLimiter(limit, burst),
	}
}

// SetHTTPClient replaces the underlying HTTP client.
func (b *HTTPBackend) SetHTTPClient(c *http.Client) {
	b.httpClient = c
}

func (b *HTTPBackend) GetPrices(ctx context.Context) (model.PriceCache, error) {
	body, err := b.get(ctx, "prices", b.dialect.PricesPath)
	if err != nil {
		return nil, err
	}
	return DecodePrices(body)
}

func (b *HTTPBackend) GetPortfolio(ctx context.Context, userID string) (model.PortfolioState, error) {
	body, err := b.get(ctx, "portfolio", b.dialect.PortfolioPath(userID))
	if err != nil {
		return model.PortfolioState{}, err
	}
	return DecodePortfolio(body)
}

// SubmitTrade posts a trade. Backend rejections (including non-2xx answers that
// carry a JSON error) come back as a result with Success=false, not as an error.
func (b *HTTPBackend) SubmitTrade(ctx context.Context, userID string, req model.TradeRequest) (model.TradeResult, error) {
	status, body, err := b.post(ctx, "trade", "/api/trade", b.dialect.TradeBody(userID, req))
	if err != nil {
		return model.TradeResult{}, err
	}

	res, decodeErr := DecodeTradeResult(body)
	if decodeErr != nil {
		if status/100 != 2 {
			return model.TradeResult{}, fmt.Errorf("POST /api/trade: unexpected status %d", status)
		}
		return model.TradeResult{}, decodeErr
	}
	if status/100 != 2 {
		res.Success = false
		if res.Error == "" {
			res.Error = res.Message
		}
	}
	return res, nil
}

func (b *HTTPBackend) GetSignals(ctx context.Context) (map[string]model.Signal, error) {
	body, err := b.get(ctx, "signals", "/api/signals")
	if err != nil {
		return nil, err
	}
	return DecodeSignals(body)
}

func (b *HTTPBackend) GetBotStatus(ctx context.Context) (model.AutomationStatus, error) {
	body, err := b.get(ctx, "bot_status", "/api/bot-status")
	if err != nil {
		return model.AutomationStatus{}, err
	}
	return DecodeBotStatus(body)
}

func (b *HTTPBackend) ToggleBot(ctx context.Context, enabled bool) (model.ToggleResult, error) {
	status, body, err := b.post(ctx, "toggle_bot", "/api/toggle-bot", map[string]any{"enabled": enabled})
	if err != nil {
		return model.ToggleResult{}, err
	}

	res, decodeErr := DecodeToggleResult(body)
	if decodeErr != nil {
		if status/100 != 2 {
			return model.ToggleResult{}, fmt.Errorf("POST /api/toggle-bot: unexpected status %d", status)
		}
		return model.ToggleResult{}, decodeErr
	}
	if status/100 != 2 {
		res.Success = false
	}
	return res, nil
}

func (b *HTTPBackend) GetStrategies(ctx context.Context) (map[string]model.StrategyInfo, error) {
	body, err := b.get(ctx, "strategies", "/api/strategies")
	if err != nil {
		return nil, err
	}
	return DecodeStrategies(body)
}

func (b *HTTPBackend) get(ctx context.Context, endpoint, path string) ([]byte, error) {
	if err := b.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("GET %s: rate limiter: %w", path, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, b.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	status, body, err := b.do(endpoint, req)
	if err != nil {
		return nil, fmt.Errorf("GET %s: %w", path, err)
	}
	if status != http.StatusOK {
		observ.IncCounter("backend_requests_total", map[string]string{"endpoint": endpoint, "result": "error"})
		return nil, fmt.Errorf("GET %s: unexpected status %d", path, status)
	}
	observ.IncCounter("backend_requests_total", map[string]string{"endpoint": endpoint, "result": "ok"})
	return body, nil
}

func (b *HTTPBackend) post(ctx context.Context, endpoint, path string, payload any) (int, []byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return 0, nil, fmt.Errorf("marshal %s body: %w", endpoint, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return 0, nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	status, body, err := b.do(endpoint, req)
	if err != nil {
		return 0, nil, fmt.Errorf("POST %s: %w", path, err)
	}
	result := "ok"
	if status/100 != 2 {
		result = "rejected"
	}
	observ.IncCounter("backend_requests_total", map[string]string{"endpoint": endpoint, "result": result})
	return status, body, nil
}

func (b *HTTPBackend) do(endpoint string, req *http.Request) (int, []byte, error) {
	req.Header.Set("X-Request-ID", uuid.New().String())

	start := time.Now()
	resp, err := b.httpClient.Do(req)
	observ.RecordDuration("backend_request", time.Since(start), map[string]string{"endpoint": endpoint})
	if err != nil {
		observ.IncCounter("backend_requests_total", map[string]string{"endpoint": endpoint, "result": "error"})
		return 0, nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		observ.IncCounter("backend_requests_total", map[string]string{"endpoint": endpoint, "result": "error"})
		return 0, nil, fmt.Errorf("read body: %w", err)
	}
	return resp.StatusCode, body, nil
}
