// Package signals holds the per-instrument consensus signals and strategy
// metadata reported by the backend.
package signals

import (
	"context"
	"sort"
	"sync"

	"github.com/Arushi221/got-trading-bot/internal/adapters"
	"github.com/Arushi221/got-trading-bot/internal/model"
	"github.com/Arushi221/got-trading-bot/internal/observ"
	"github.com/Arushi221/got-trading-bot/internal/pubsub"
)

// Aggregator keeps the latest signal set. The backend's top-level label is
// authoritative; breakdowns are exposed alongside it, never used to
// recompute it.
type Aggregator struct {
	backend adapters.Backend

	mu         sync.RWMutex
	signals    map[string]model.Signal
	strategies map[string]model.StrategyInfo

	subs pubsub.Subscribers[map[string]model.Signal]
}

func NewAggregator(backend adapters.Backend) *Aggregator {
	return &Aggregator{
		backend:    backend,
		signals:    map[string]model.Signal{},
		strategies: map[string]model.StrategyInfo{},
	}
}

// Refresh replaces the signal set from the backend. Prior signals are kept
// on failure.
func (a *Aggregator) Refresh(ctx context.Context) (map[string]model.Signal, error) {
	next, err := a.backend.GetSignals(ctx)
	if err != nil {
		observ.LogError("signals_refresh_failed", err, nil)
		return a.Snapshot(), model.NewError(model.KindSignalsUnavailable, "GET /api/signals", "", err)
	}

	clean := make(map[string]model.Signal, len(next))
	for sym, sig := range next {
		clean[sym] = complete(sig)
	}

	a.mu.Lock()
	a.signals = clean
	a.mu.Unlock()

	observ.SetGauge("signals_count", float64(len(clean)), nil)
	snap := a.Snapshot()
	a.subs.Publish(snap)
	return snap, nil
}

// complete guarantees the breakdown is either whole or absent.
func complete(sig model.Signal) model.Signal {
	if len(sig.Strategies) == 0 {
		sig.Strategies = nil
		return sig
	}
	for name, s := range sig.Strategies {
		if _, ok := model.ParseSignalType(string(s.Signal)); !ok {
			observ.Log("signal_breakdown_dropped", map[string]any{"symbol": sig.Symbol, "strategy": name})
			sig.Strategies = nil
			return sig
		}
	}
	return cloneSignal(sig)
}

// cloneSignal copies the breakdown so callers never share store-owned maps.
func cloneSignal(sig model.Signal) model.Signal {
	if sig.Strategies == nil {
		return sig
	}
	out := make(map[string]model.StrategySignal, len(sig.Strategies))
	for k, v := range sig.Strategies {
		out[k] = v
	}
	sig.Strategies = out
	return sig
}

// Snapshot returns a copy of the current signal set.
func (a *Aggregator) Snapshot() map[string]model.Signal {
	a.mu.RLock()
	defer a.mu.RUnlock()
	out := make(map[string]model.Signal, len(a.signals))
	for k, v := range a.signals {
		out[k] = cloneSignal(v)
	}
	return out
}

// Sorted returns the current signals ordered by symbol.
func (a *Aggregator) Sorted() []model.Signal {
	snap := a.Snapshot()
	out := make([]model.Signal, 0, len(snap))
	for _, s := range snap {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out
}

// Get returns the signal for symbol.
func (a *Aggregator) Get(symbol string) (model.Signal, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	s, ok := a.signals[symbol]
	return cloneSignal(s), ok
}

// RefreshStrategies loads strategy metadata. It is descriptive only and kept
// on failure like the signals.
func (a *Aggregator) RefreshStrategies(ctx context.Context) (map[string]model.StrategyInfo, error) {
	next, err := a.backend.GetStrategies(ctx)
	if err != nil {
		observ.LogError("strategies_refresh_failed", err, nil)
		return a.Strategies(), model.NewError(model.KindSignalsUnavailable, "GET /api/strategies", "", err)
	}
	a.mu.Lock()
	a.strategies = next
	a.mu.Unlock()
	return a.Strategies(), nil
}

// Strategies returns a copy of the strategy metadata.
func (a *Aggregator) Strategies() map[string]model.StrategyInfo {
	a.mu.RLock()
	defer a.mu.RUnlock()
	out := make(map[string]model.StrategyInfo, len(a.strategies))
	for k, v := range a.strategies {
		out[k] = v
	}
	return out
}

// Subscribe registers fn to receive every refreshed signal set.
func (a *Aggregator) Subscribe(fn func(map[string]model.Signal)) (unsubscribe func()) {
	return a.subs.Subscribe(fn)
}
