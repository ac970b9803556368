package stubs

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"sync"
	"time"

	"github.com/Arushi221/got-trading-bot/internal/observ"
)

// Options configures a stub Server.
type Options struct {
	Instruments  []Instrument
	Seed         int64
	TickInterval time.Duration // Run steps the market at this pace
	Heartbeat    time.Duration
	// OmitToggleStatus leaves the status echo out of toggle answers, forcing
	// clients to read /api/bot-status.
	OmitToggleStatus bool
}

// Server is an in-memory trading backend.
type Server struct {
	opts   Options
	market *Market
	book   *Book
	stream *Stream
	mux    *http.ServeMux

	mu      sync.Mutex
	enabled bool
	vix     float64
	failing map[string]bool
	now     func() time.Time
}

// NewServer builds a stub backend with every route registered.
func NewServer(opts Options) *Server {
	if len(opts.Instruments) == 0 {
		opts.Instruments = DefaultInstruments
	}
	if opts.TickInterval <= 0 {
		opts.TickInterval = 5 * time.Second
	}

	s := &Server{
		opts:    opts,
		market:  NewMarket(opts.Instruments, opts.Seed),
		book:    NewBook(),
		stream:  NewStream(opts.Heartbeat),
		mux:     http.NewServeMux(),
		vix:     18.5,
		failing: map[string]bool{},
		now:     time.Now,
	}

	s.handle("GET /health", "health", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("ok"))
	})
	s.handle("GET /api/prices", "prices", s.servePrices)
	s.handle("GET /api/houses", "prices", s.servePrices)
	s.handle("GET /api/portfolio", "portfolio", s.servePortfolio)
	s.handle("GET /api/portfolio/{user}", "portfolio", s.servePortfolio)
	s.handle("POST /api/trade", "trade", s.serveTrade)
	s.handle("GET /api/signals", "signals", s.serveSignals)
	s.handle("GET /api/bot-status", "bot_status", s.serveBotStatus)
	s.handle("POST /api/toggle-bot", "toggle_bot", s.serveToggle)
	s.handle("GET /api/strategies", "strategies", s.serveStrategies)
	s.handle("GET /api/stream", "stream", s.stream.ServeSSE)
	s.handle("GET /socket", "stream", s.stream.ServeWS)
	return s
}

func (s *Server) handle(pattern, endpoint string, fn http.HandlerFunc) {
	s.mux.HandleFunc(pattern, func(w http.ResponseWriter, r *http.Request) {
		if s.isFailing(endpoint) {
			observ.IncCounter("stub_requests_total", map[string]string{"endpoint": endpoint, "result": "injected_failure"})
			http.Error(w, "injected failure", http.StatusServiceUnavailable)
			return
		}
		observ.IncCounter("stub_requests_total", map[string]string{"endpoint": endpoint, "result": "served"})
		fn(w, r)
	})
}

// Handler returns the HTTP handler for every route.
func (s *Server) Handler() http.Handler { return s.mux }

func (s *Server) Market() *Market { return s.market }
func (s *Server) Stream() *Stream { return s.stream }

// Fail makes endpoint answer 503 until called again with on=false. Endpoint
// names match the dashboard's: prices, portfolio, trade, signals, bot_status,
// toggle_bot, strategies.
func (s *Server) Fail(endpoint string, on bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failing[endpoint] = on
}

func (s *Server) isFailing(endpoint string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.failing[endpoint]
}

// Tick steps the market and pushes the new prices to stream subscribers.
func (s *Server) Tick() WireEvent {
	s.market.Step()
	s.mu.Lock()
	s.vix = math.Max(9, s.vix+(s.market.rngFloat()-0.5))
	s.mu.Unlock()
	return s.stream.Broadcast("price_update", s.market.snapshot())
}

// Run ticks the market until ctx is done.
func (s *Server) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.opts.TickInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			s.Tick()
		}
	}
}

func (s *Server) servePrices(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.market.snapshot())
}

func (s *Server) servePortfolio(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.book.portfolio(r.PathValue("user")))
}

func (s *Server) serveTrade(w http.ResponseWriter, r *http.Request) {
	var req tradeRequestWire
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "Invalid request body"})
		return
	}
	if req.Symbol == "" {
		req.Symbol = req.House
	}

	sym, ok := s.market.Lookup(req.Symbol)
	if !ok {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "Unknown symbol " + req.Symbol})
		return
	}
	if req.Quantity <= 0 {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "Quantity must be positive"})
		return
	}
	price, ok := s.market.Price(sym)
	if !ok {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "Unable to fetch current price"})
		return
	}

	portfolio, tx, err := s.book.execute(req.UserID, sym, req.Action, req.Quantity, price)
	var rej rejection
	if errors.As(err, &rej) {
		observ.Log("stub_trade_rejected", map[string]any{"user": req.UserID, "symbol": sym, "reason": rej.Error()})
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": rej.Error()})
		return
	}

	observ.Log("stub_trade_filled", map[string]any{"user": req.UserID, "symbol": sym, "action": tx.Action, "qty": tx.Qty, "price": tx.Price})
	writeJSON(w, http.StatusOK, map[string]any{
		"success":     true,
		"portfolio":   portfolio,
		"transaction": tx,
	})
}

func (s *Server) serveSignals(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.market.signals())
}

func (s *Server) serveStrategies(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, strategyCatalog)
}

func (s *Server) status() botStatusWire {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now().UTC()
	open := marketOpen(now)
	label := "closed"
	if open {
		label = "open"
	}
	vix := math.Round(s.vix*100) / 100
	return botStatusWire{
		Enabled:              s.enabled,
		Running:              s.enabled,
		VIX:                  &vix,
		CheckIntervalSeconds: 60,
		MarketStatus:         marketStatusWire{IsOpen: open, CurrentTime: now.Format(wireTime), Status: label},
	}
}

// marketOpen approximates the US cash session in UTC.
func marketOpen(t time.Time) bool {
	if t.Weekday() == time.Saturday || t.Weekday() == time.Sunday {
		return false
	}
	minutes := t.Hour()*60 + t.Minute()
	return minutes >= 14*60+30 && minutes < 21*60
}

func (s *Server) serveBotStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.status())
}

func (s *Server) serveToggle(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Enabled *bool `json:"enabled"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Enabled == nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"success": false, "message": "enabled is required"})
		return
	}

	s.mu.Lock()
	s.enabled = *body.Enabled
	s.mu.Unlock()

	msg := "Bot disabled"
	if *body.Enabled {
		msg = "Bot enabled"
	}
	observ.Log("stub_bot_toggled", map[string]any{"enabled": *body.Enabled})

	resp := map[string]any{"success": true, "message": msg}
	if !s.opts.OmitToggleStatus {
		resp["status"] = s.status()
	}
	writeJSON(w, http.StatusOK, resp)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		observ.LogError("stub_write_failed", err, nil)
	}
}
