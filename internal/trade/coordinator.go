// Package trade submits manual trade orders and reconciles the stores with
// the backend's answer.
package trade

import (
	"context"
	"strconv"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/Arushi221/got-trading-bot/internal/adapters"
	"github.com/Arushi221/got-trading-bot/internal/model"
	"github.com/Arushi221/got-trading-bot/internal/notify"
	"github.com/Arushi221/got-trading-bot/internal/observ"
	"github.com/Arushi221/got-trading-bot/internal/portfolio"
)

const (
	successText  = "Trade successful!"
	fallbackText = "Trade failed."
	inFlightText = "A trade is already being submitted."
)

// PriceRefresher is the part of the feed client the coordinator needs.
type PriceRefresher interface {
	Refresh(ctx context.Context) (model.PriceCache, error)
}

// Form is the pending trade input. InlineMessage holds the last rejection
// text until the user corrects the form or a trade succeeds.
type Form struct {
	Symbol        string
	Action        string
	Quantity      string
	InlineMessage string
}

// Outcome is the result of one submission.
type Outcome struct {
	ID          string // correlation id, also logged
	Request     model.TradeRequest
	Success     bool
	Message     string // confirmation, or the backend's rejection text verbatim
	Err         error  // TradeRejected on failure
	Adopted     bool   // the inline portfolio was adopted without a fetch
	Portfolio   model.PortfolioState
	Transaction *model.Transaction
}

// Coordinator submits trades one at a time. Nothing is ever retried.
type Coordinator struct {
	backend   adapters.Backend
	portfolio *portfolio.Store
	prices    PriceRefresher
	notifier  notify.Notifier

	mu       sync.Mutex
	form     Form
	inFlight bool
}

func NewCoordinator(backend adapters.Backend, store *portfolio.Store, prices PriceRefresher, notifier notify.Notifier) *Coordinator {
	if notifier == nil {
		notifier = notify.LogNotifier{}
	}
	return &Coordinator{backend: backend, portfolio: store, prices: prices, notifier: notifier}
}

// ParseRequest builds a request from raw form input, checking structure only.
func ParseRequest(symbol, action, quantity string) (model.TradeRequest, error) {
	req := model.TradeRequest{Symbol: strings.TrimSpace(symbol)}
	if a, ok := model.ParseAction(action); ok && a.Manual() {
		req.Action = a
	}
	if q, err := strconv.Atoi(strings.TrimSpace(quantity)); err == nil {
		req.Quantity = q
	}
	if err := req.Validate(); err != nil {
		return req, err
	}
	return req, nil
}

// Form returns the pending input.
func (c *Coordinator) Form() Form {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.form
}

// SetForm replaces the pending input. Editing the form clears the inline message.
func (c *Coordinator) SetForm(symbol, action, quantity string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.form = Form{Symbol: symbol, Action: action, Quantity: quantity}
}

// SubmitForm parses the pending input and submits it.
func (c *Coordinator) SubmitForm(ctx context.Context) Outcome {
	f := c.Form()
	req, err := ParseRequest(f.Symbol, f.Action, f.Quantity)
	if err != nil {
		return c.reject(Outcome{ID: uuid.New().String(), Request: req}, "invalid", err)
	}
	return c.Submit(ctx, req)
}

// Submit sends req to the backend. On success the pending input is cleared,
// the portfolio is reconciled and prices are refreshed. On failure the
// backend's text is kept inline and no store is refreshed.
func (c *Coordinator) Submit(ctx context.Context, req model.TradeRequest) Outcome {
	out := Outcome{ID: uuid.New().String(), Request: req}

	if err := req.Validate(); err != nil {
		return c.reject(out, "invalid", err)
	}

	c.mu.Lock()
	if c.inFlight {
		c.mu.Unlock()
		out.Message = inFlightText
		out.Err = model.NewError(model.KindTradeRejected, "submit", inFlightText, nil)
		observ.IncCounter("trade_submissions_total", map[string]string{"result": "in_flight"})
		return out
	}
	c.inFlight = true
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		c.inFlight = false
		c.mu.Unlock()
	}()

	observ.Log("trade_submitted", map[string]any{
		"id": out.ID, "symbol": req.Symbol, "action": req.Action, "quantity": req.Quantity,
	})

	res, err := c.backend.SubmitTrade(ctx, c.portfolio.UserID(), req)
	if err != nil {
		return c.reject(out, "error", model.NewError(model.KindTradeRejected, "POST /api/trade", fallbackText, err))
	}
	if !res.Success {
		msg := res.Error
		if msg == "" {
			msg = res.Message
		}
		if msg == "" {
			msg = fallbackText
		}
		return c.reject(out, "rejected", model.NewError(model.KindTradeRejected, "POST /api/trade", msg, nil))
	}

	c.mu.Lock()
	c.form = Form{}
	c.mu.Unlock()

	out.Success = true
	out.Message = successText
	out.Transaction = res.Transaction

	state, adopted, err := c.portfolio.ApplyTradeResult(ctx, res)
	out.Portfolio, out.Adopted = state, adopted
	if err != nil {
		observ.LogError("trade_portfolio_refresh_failed", err, map[string]any{"id": out.ID})
	}
	if c.prices != nil {
		if _, err := c.prices.Refresh(ctx); err != nil {
			observ.LogError("trade_price_refresh_failed", err, map[string]any{"id": out.ID})
		}
	}

	observ.Log("trade_confirmed", map[string]any{"id": out.ID, "adopted": adopted, "message": res.Message})
	observ.IncCounter("trade_submissions_total", map[string]string{"result": "ok"})
	c.notifier.Notify(notify.Notice{Level: notify.LevelSuccess, Text: successText, Source: "trade"})
	return out
}

func (c *Coordinator) reject(out Outcome, result string, err error) Outcome {
	msg := model.UserMessage(err, fallbackText)
	out.Success = false
	out.Message = msg
	out.Err = err

	c.mu.Lock()
	c.form.InlineMessage = msg
	c.mu.Unlock()

	observ.LogError("trade_rejected", err, map[string]any{"id": out.ID, "result": result})
	observ.IncCounter("trade_submissions_total", map[string]string{"result": result})
	c.notifier.Notify(notify.Notice{Level: notify.LevelError, Text: msg, Source: "trade"})
	return out
}
