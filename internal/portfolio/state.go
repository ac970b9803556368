// Package portfolio holds the user's cash, holdings and trade history as last
// confirmed by the backend.
package portfolio

import (
	"context"
	"sort"
	"sync"

	"github.com/Arushi221/got-trading-bot/internal/adapters"
	"github.com/Arushi221/got-trading-bot/internal/model"
	"github.com/Arushi221/got-trading-bot/internal/observ"
	"github.com/Arushi221/got-trading-bot/internal/pubsub"
)

// Store owns the PortfolioState for one user. It is replaced wholesale on each
// successful read and kept as-is on every failure.
type Store struct {
	backend adapters.Backend
	userID  string

	mu      sync.RWMutex
	state   model.PortfolioState
	version int64 // bumped on every adopted state
	loaded  bool

	subs pubsub.Subscribers[model.PortfolioState]
}

// NewStore creates an empty store for userID.
func NewStore(backend adapters.Backend, userID string) *Store {
	return &Store{
		backend: backend,
		userID:  userID,
		state:   model.PortfolioState{Holdings: map[string]int{}, History: []model.Transaction{}},
	}
}

// UserID returns the user this store tracks.
func (s *Store) UserID() string {
	return s.userID
}

// Refresh reads the portfolio from the backend. On failure the previous state
// is kept and a PortfolioUnavailable error is returned.
func (s *Store) Refresh(ctx context.Context) (model.PortfolioState, error) {
	p, err := s.backend.GetPortfolio(ctx, s.userID)
	if err != nil {
		observ.LogError("portfolio_refresh_failed", err, map[string]any{"user_id": s.userID})
		return s.Snapshot(), model.NewError(model.KindPortfolioUnavailable, "GET /api/portfolio", "", err)
	}
	return s.adopt(p, "refresh"), nil
}

// ApplyTradeResult adopts the post-trade portfolio echoed by the backend, or
// falls back to a full Refresh when the result carries none. adopted reports
// whether the inline portfolio was used.
func (s *Store) ApplyTradeResult(ctx context.Context, res model.TradeResult) (state model.PortfolioState, adopted bool, err error) {
	if res.Portfolio != nil {
		return s.adopt(res.Portfolio.Clone(), "trade_echo"), true, nil
	}
	state, err = s.Refresh(ctx)
	return state, false, err
}

func (s *Store) adopt(p model.PortfolioState, source string) model.PortfolioState {
	if p.Holdings == nil {
		p.Holdings = map[string]int{}
	}
	if p.History == nil {
		p.History = []model.Transaction{}
	}

	s.mu.Lock()
	s.state = p
	s.version++
	s.loaded = true
	version := s.version
	snap := p.Clone()
	s.mu.Unlock()

	observ.IncCounter("portfolio_updates_total", map[string]string{"source": source})
	observ.SetGauge("portfolio_version", float64(version), nil)
	s.subs.Publish(snap)
	return snap
}

// Snapshot returns a copy of the current state.
func (s *Store) Snapshot() model.PortfolioState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.Clone()
}

// Loaded reports whether any backend state has been adopted yet.
func (s *Store) Loaded() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loaded
}

// Version returns how many states have been adopted.
func (s *Store) Version() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.version
}

// RecentHistory returns at most n transactions, most recent first. Entries
// with equal times keep their received order relative to each other. The
// stored history is never truncated.
func (s *Store) RecentHistory(n int) []model.Transaction {
	s.mu.RLock()
	hist := append([]model.Transaction(nil), s.state.History...)
	s.mu.RUnlock()
	return Recent(hist, n)
}

// Recent orders history chronologically and returns the last n, newest first.
func Recent(history []model.Transaction, n int) []model.Transaction {
	if n <= 0 {
		return nil
	}
	hist := append([]model.Transaction(nil), history...)
	sort.SliceStable(hist, func(i, j int) bool { return hist[i].Time.Before(hist[j].Time) })
	if len(hist) > n {
		hist = hist[len(hist)-n:]
	}
	out := make([]model.Transaction, len(hist))
	for i := range hist {
		out[i] = hist[len(hist)-1-i]
	}
	return out
}

// Subscribe registers fn to receive every adopted state.
func (s *Store) Subscribe(fn func(model.PortfolioState)) (unsubscribe func()) {
	return s.subs.Subscribe(fn)
}
