// Package scheduler decides which data sources refresh, and when. Prices
// refresh on every tick; every other source refreshes only while its view is
// active, and once immediately when the view is activated.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/Arushi221/got-trading-bot/internal/config"
	"github.com/Arushi221/got-trading-bot/internal/observ"
)

type View string

const (
	ViewDashboard  View = "dashboard"
	ViewPortfolio  View = "portfolio"
	ViewSignals    View = "signals"
	ViewAutomation View = "automation"
)

// ParseView accepts the configured view names.
func ParseView(s string) (View, error) {
	switch v := View(s); v {
	case ViewDashboard, ViewPortfolio, ViewSignals, ViewAutomation:
		return v, nil
	}
	return "", fmt.Errorf("unknown view %q", s)
}

type Source string

const (
	SourcePrices    Source = "prices"
	SourcePortfolio Source = "portfolio"
	SourceSignals   Source = "signals"
	SourceBotStatus Source = "bot_status"
)

// owners are the views that display a source. Prices have none and always
// refresh. The dashboard draws the portfolio summary, so it owns the
// portfolio alongside the portfolio view.
var owners = map[Source][]View{
	SourcePortfolio: {ViewDashboard, ViewPortfolio},
	SourceSignals:   {ViewSignals},
	SourceBotStatus: {ViewAutomation},
}

// viewSources lists what a view displays, refreshed on activation.
var viewSources = map[View][]Source{
	ViewDashboard:  {SourcePrices, SourcePortfolio},
	ViewPortfolio:  {SourcePortfolio},
	ViewSignals:    {SourceSignals},
	ViewAutomation: {SourceBotStatus},
}

// RefreshFunc refreshes one source. Errors are already logged by the owning
// component; the scheduler only counts them.
type RefreshFunc func(ctx context.Context) error

// Intervals maps each source to its tick period.
type Intervals map[Source]time.Duration

// IntervalsFrom converts configured intervals.
func IntervalsFrom(c config.Intervals) Intervals {
	ms := func(v int) time.Duration { return time.Duration(v) * time.Millisecond }
	return Intervals{
		SourcePrices:    ms(c.PricesMs),
		SourcePortfolio: ms(c.PortfolioMs),
		SourceSignals:   ms(c.SignalsMs),
		SourceBotStatus: ms(c.BotStatusMs),
	}
}

type Scheduler struct {
	intervals  Intervals
	refreshers map[Source]RefreshFunc
	dispatch   func(func())

	mu      sync.RWMutex
	active  View
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	started bool
}

// New creates a scheduler with initial as the active view. Refreshes run on
// their own goroutine so a hung request never delays another source.
func New(intervals Intervals, refreshers map[Source]RefreshFunc, initial View) *Scheduler {
	return &Scheduler{
		intervals:  intervals,
		refreshers: refreshers,
		dispatch:   func(f func()) { go f() },
		active:     initial,
		ctx:        context.Background(),
	}
}

// SetDispatcher replaces how refreshes are run. Tests pass a synchronous one.
func (s *Scheduler) SetDispatcher(d func(func())) {
	s.dispatch = d
}

// Start launches one ticker per configured source and refreshes the initial
// view immediately.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return fmt.Errorf("scheduler already started")
	}
	s.started = true
	s.ctx, s.cancel = context.WithCancel(ctx)
	runCtx := s.ctx
	initial := s.active
	s.mu.Unlock()

	for src, every := range s.intervals {
		if every <= 0 || s.refreshers[src] == nil {
			continue
		}
		s.wg.Add(1)
		go s.tickLoop(runCtx, src, every)
	}

	s.refreshView(initial, "start")
	return nil
}

func (s *Scheduler) tickLoop(ctx context.Context, src Source, every time.Duration) {
	defer s.wg.Done()
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.onTick(src)
		}
	}
}

// onTick refreshes src if it is due: prices always, others only while a view
// that displays them is active.
func (s *Scheduler) onTick(src Source) {
	if !s.due(src) {
		observ.IncCounter("scheduler_skipped_total", map[string]string{"source": string(src)})
		return
	}
	s.refresh(src, "tick")
}

func (s *Scheduler) due(src Source) bool {
	views, owned := owners[src]
	if !owned {
		return true
	}
	active := s.Active()
	for _, v := range views {
		if v == active {
			return true
		}
	}
	return false
}

// Activate makes view the active one and refreshes its data immediately,
// even when it was already active.
func (s *Scheduler) Activate(view View) error {
	if _, ok := viewSources[view]; !ok {
		return fmt.Errorf("unknown view %q", view)
	}
	s.mu.Lock()
	prev := s.active
	s.active = view
	s.mu.Unlock()

	observ.Log("view_activated", map[string]any{"view": view, "previous": prev})
	s.refreshView(view, "activation")
	return nil
}

func (s *Scheduler) refreshView(view View, trigger string) {
	for _, src := range viewSources[view] {
		s.refresh(src, trigger)
	}
}

func (s *Scheduler) refresh(src Source, trigger string) {
	fn := s.refreshers[src]
	if fn == nil {
		return
	}
	s.mu.RLock()
	ctx := s.ctx
	s.mu.RUnlock()

	observ.IncCounter("scheduler_refresh_total", map[string]string{"source": string(src), "trigger": trigger})
	s.dispatch(func() {
		if err := fn(ctx); err != nil {
			observ.IncCounter("scheduler_refresh_failed_total", map[string]string{"source": string(src)})
		}
	})
}

// Active returns the active view.
func (s *Scheduler) Active() View {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.active
}

// Stop cancels the tickers and waits for them. In-flight refreshes are
// cancelled through their context.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	cancel := s.cancel
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	s.wg.Wait()
}
