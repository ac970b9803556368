// Package dashboard wires every sync component for one user.
package dashboard

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/Arushi221/got-trading-bot/internal/adapters"
	"github.com/Arushi221/got-trading-bot/internal/automation"
	"github.com/Arushi221/got-trading-bot/internal/config"
	"github.com/Arushi221/got-trading-bot/internal/feed"
	"github.com/Arushi221/got-trading-bot/internal/model"
	"github.com/Arushi221/got-trading-bot/internal/notify"
	"github.com/Arushi221/got-trading-bot/internal/observ"
	"github.com/Arushi221/got-trading-bot/internal/portfolio"
	"github.com/Arushi221/got-trading-bot/internal/pubsub"
	"github.com/Arushi221/got-trading-bot/internal/scheduler"
	"github.com/Arushi221/got-trading-bot/internal/signals"
	"github.com/Arushi221/got-trading-bot/internal/trade"
	"github.com/Arushi221/got-trading-bot/internal/transport"
	"github.com/Arushi221/got-trading-bot/internal/valuation"
	"github.com/Arushi221/got-trading-bot/internal/view"
)

// Session owns the stores for one user and the machinery that keeps them in
// step with the backend.
type Session struct {
	cfg     config.Root
	backend adapters.Backend

	Prices     *feed.Cache
	Feed       *feed.Client
	Portfolio  *portfolio.Store
	Signals    *signals.Aggregator
	Automation *automation.Machine
	Trades     *trade.Coordinator
	Scheduler  *scheduler.Scheduler
	Toasts     *notify.Toasts

	slack   *notify.Slack
	changes pubsub.Subscribers[scheduler.Source]
	unsubs  []func()

	mu      sync.Mutex
	cancel  context.CancelFunc
	stopped chan struct{}
}

// Options adjusts how a Session is built. Zero values use the configuration.
type Options struct {
	Backend  adapters.Backend // default: HTTP backend from cfg.Backend
	Push     transport.Client // default: from cfg.Push when enabled
	Notifier notify.Notifier  // extra sink, e.g. a test recorder
}

// New builds a session from configuration.
func New(cfg config.Root, opts Options) (*Session, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	initial, err := scheduler.ParseView(cfg.View.Initial)
	if err != nil {
		return nil, err
	}

	backend := opts.Backend
	if backend == nil {
		backend = adapters.NewHTTPBackend(cfg.Backend)
	}

	push := opts.Push
	if push == nil && cfg.Push.Enabled {
		push, err = transport.NewClient(transport.FromPush(cfg.Backend.BaseURL, cfg.Push))
		if err != nil {
			return nil, err
		}
	}

	s := &Session{
		cfg:     cfg,
		backend: backend,
		Toasts:  notify.NewToasts(time.Duration(cfg.Notify.ToastMs) * time.Millisecond),
	}

	sinks := notify.Multi{s.Toasts, notify.LogNotifier{}}
	if cfg.Notify.SlackWebhookURL != "" {
		s.slack = notify.NewSlack(cfg.Notify.SlackWebhookURL)
		sinks = append(sinks, s.slack)
	}
	if opts.Notifier != nil {
		sinks = append(sinks, opts.Notifier)
	}

	s.Prices = feed.NewCache()
	// The scheduler owns the poll cadence, so the feed client only polls on request.
	s.Feed = feed.NewClient(backend, s.Prices, push, feed.Config{PushEvent: cfg.Push.Event})
	s.Portfolio = portfolio.NewStore(backend, cfg.UserID)
	s.Signals = signals.NewAggregator(backend)
	s.Automation = automation.NewMachine(backend)
	s.Trades = trade.NewCoordinator(backend, s.Portfolio, s.Feed, sinks)

	s.unsubs = append(s.unsubs,
		s.Prices.Subscribe(func(model.PriceCache) { s.changes.Publish(scheduler.SourcePrices) }),
		s.Portfolio.Subscribe(func(model.PortfolioState) { s.changes.Publish(scheduler.SourcePortfolio) }),
		s.Signals.Subscribe(func(map[string]model.Signal) { s.changes.Publish(scheduler.SourceSignals) }),
		s.Automation.Subscribe(func(model.AutomationStatus) { s.changes.Publish(scheduler.SourceBotStatus) }),
	)

	s.Scheduler = scheduler.New(scheduler.IntervalsFrom(cfg.Intervals), map[scheduler.Source]scheduler.RefreshFunc{
		scheduler.SourcePrices: func(ctx context.Context) error {
			_, err := s.Feed.Refresh(ctx)
			return s.surface(err, "Failed to load prices.")
		},
		scheduler.SourcePortfolio: func(ctx context.Context) error {
			_, err := s.Portfolio.Refresh(ctx)
			return s.surface(err, "Failed to load portfolio.")
		},
		scheduler.SourceSignals: func(ctx context.Context) error {
			_, err := s.Signals.Refresh(ctx)
			return s.surface(err, "Failed to load signals.")
		},
		scheduler.SourceBotStatus: func(ctx context.Context) error {
			_, err := s.Automation.Refresh(ctx)
			return s.surface(err, "Failed to load bot status.")
		},
	}, initial)

	return s, nil
}

// surface raises a transient error notice for a failed background refresh.
// The store has already kept its last good value.
func (s *Session) surface(err error, text string) error {
	if err == nil {
		return nil
	}
	s.Toasts.Notify(notify.Notice{Level: notify.LevelError, Text: text, Source: "sync"})
	return err
}

// Config returns the configuration the session was built from.
func (s *Session) Config() config.Root {
	return s.cfg
}

// Start launches the scheduler and the push consumer. It returns immediately.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return nil
	}
	ctx, s.cancel = context.WithCancel(ctx)
	s.stopped = make(chan struct{})

	if err := s.Scheduler.Start(ctx); err != nil {
		s.cancel()
		return err
	}
	go func() {
		defer close(s.stopped)
		if err := s.Feed.Run(ctx); err != nil {
			observ.LogError("push_start_failed", err, nil)
		}
	}()

	// Strategy metadata is static; load it once.
	go func() {
		_, _ = s.Signals.RefreshStrategies(ctx)
	}()

	observ.Log("session_started", map[string]any{"user_id": s.cfg.UserID, "view": s.Scheduler.Active(), "push": s.cfg.Push.Enabled})
	return nil
}

// Close stops background work and releases sinks.
func (s *Session) Close() {
	s.mu.Lock()
	cancel, stopped := s.cancel, s.stopped
	s.cancel = nil
	s.mu.Unlock()

	if cancel != nil {
		cancel()
		s.Scheduler.Stop()
		<-stopped
	}
	for _, u := range s.unsubs {
		u()
	}
	s.unsubs = nil
	if s.slack != nil {
		s.slack.Close()
	}
}

// OnChange registers fn to be told which source changed.
func (s *Session) OnChange(fn func(scheduler.Source)) (unsubscribe func()) {
	return s.changes.Subscribe(fn)
}

// Valuation values the current portfolio at the current prices.
func (s *Session) Valuation() valuation.Valuation {
	return valuation.Compute(s.Portfolio.Snapshot(), s.Prices.Snapshot())
}

// Render draws the active view followed by active notices.
func (s *Session) Render() string {
	return s.RenderView(s.Scheduler.Active())
}

// RenderView draws v from the current snapshots.
func (s *Session) RenderView(v scheduler.View) string {
	var b strings.Builder
	switch v {
	case scheduler.ViewDashboard:
		b.WriteString(view.RenderPrices(s.Prices.Snapshot()))
		b.WriteString("\n")
		b.WriteString(view.RenderPortfolio(s.Portfolio.Snapshot(), s.Prices.Snapshot(), s.Portfolio.Loaded()))
	case scheduler.ViewPortfolio:
		p, loaded := s.Portfolio.Snapshot(), s.Portfolio.Loaded()
		b.WriteString(view.RenderPortfolio(p, s.Prices.Snapshot(), loaded))
		if loaded {
			b.WriteString("\n")
			b.WriteString(view.RenderHistory(p.History, s.cfg.View.HistoryLimit))
		}
	case scheduler.ViewSignals:
		b.WriteString(view.RenderSignals(s.Signals.Snapshot()))
	case scheduler.ViewAutomation:
		b.WriteString(view.RenderBotStatus(s.Automation.Status(), s.Automation.Confirmed()))
	}
	if notices := view.RenderNotices(s.Toasts.Active(), s.Trades.Form().InlineMessage); notices != "" {
		b.WriteString("\n")
		b.WriteString(notices)
	}
	return b.String()
}

// viewKeys maps the live view's number keys to views.
var viewKeys = map[string]scheduler.View{
	"1": scheduler.ViewDashboard,
	"2": scheduler.ViewPortfolio,
	"3": scheduler.ViewSignals,
	"4": scheduler.ViewAutomation,
}

// ErrQuit is returned by HandleCommand when the user asks to leave.
var ErrQuit = errors.New("quit")

// HandleCommand applies one line of live-view input:
//
//	1-4                     switch view
//	buy|sell SYMBOL QTY     submit a manual trade
//	bot on|off              toggle the trading bot
//	q                       quit
//
// Failures are already surfaced as notices; the returned error is for the
// caller's log.
func (s *Session) HandleCommand(ctx context.Context, line string) error {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return nil
	}
	if v, ok := viewKeys[fields[0]]; ok && len(fields) == 1 {
		return s.Scheduler.Activate(v)
	}

	switch strings.ToLower(fields[0]) {
	case "q", "quit":
		return ErrQuit
	case "buy", "sell":
		if len(fields) != 3 {
			return s.badInput(line)
		}
		s.Trades.SetForm(fields[1], fields[0], fields[2])
		if out := s.Trades.SubmitForm(ctx); !out.Success {
			return out.Err
		}
		return nil
	case "bot":
		if len(fields) != 2 || (fields[1] != "on" && fields[1] != "off") {
			return s.badInput(line)
		}
		st, err := s.Automation.Toggle(ctx, fields[1] == "on")
		if err != nil {
			s.Toasts.Notify(notify.Notice{Level: notify.LevelError, Text: model.UserMessage(err, "Failed to toggle bot."), Source: "bot"})
			return err
		}
		text := "Bot disabled."
		if st.Enabled {
			text = "Bot enabled."
		}
		s.Toasts.Notify(notify.Notice{Level: notify.LevelSuccess, Text: text, Source: "bot"})
		return nil
	}
	return s.badInput(line)
}

func (s *Session) badInput(line string) error {
	s.Toasts.Notify(notify.Notice{Level: notify.LevelInfo, Text: "Keys: 1-4 views, buy|sell SYMBOL QTY, bot on|off, q", Source: "input"})
	return fmt.Errorf("unrecognized input %q", line)
}
