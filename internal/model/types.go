package model

import (
	"sort"
	"strings"
	"time"
)

// PriceRecord is the latest known price of one instrument.
// A nil Price means the backend could not price the instrument; it is not zero.
type PriceRecord struct {
	Symbol        string    `json:"symbol"`
	Price         *float64  `json:"price"`
	Change        float64   `json:"change"`         // signed delta vs prior close
	ChangePercent float64   `json:"change_percent"` // signed percent vs prior close
	High          *float64  `json:"high,omitempty"`
	Low           *float64  `json:"low,omitempty"`
	Volume        *int64    `json:"volume,omitempty"`
	LastUpdated   time.Time `json:"last_updated,omitempty"`
	Name          string    `json:"name,omitempty"`
	Motto         string    `json:"motto,omitempty"`
}

// Known reports whether the record carries a price.
func (r PriceRecord) Known() bool {
	return r.Price != nil
}

// PriceCache maps symbol to its latest PriceRecord.
type PriceCache map[string]PriceRecord

// Clone returns an independent copy.
func (c PriceCache) Clone() PriceCache {
	out := make(PriceCache, len(c))
	for k, v := range c {
		out[k] = v
	}
	return out
}

// Price returns the known price of symbol. ok is false when the symbol is
// missing or its price is unknown.
func (c PriceCache) Price(symbol string) (price float64, ok bool) {
	rec, exists := c[symbol]
	if !exists || rec.Price == nil {
		return 0, false
	}
	return *rec.Price, true
}

// Symbols returns the cached symbols in sorted order.
func (c PriceCache) Symbols() []string {
	out := make([]string, 0, len(c))
	for k := range c {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Action is what a transaction did.
type Action string

const (
	ActionBuy      Action = "BUY"
	ActionSell     Action = "SELL"
	ActionAutoBuy  Action = "AUTO_BUY"
	ActionAutoSell Action = "AUTO_SELL"
)

// ParseAction accepts any letter case and hyphen or underscore separators.
func ParseAction(s string) (Action, bool) {
	a := Action(strings.ReplaceAll(strings.ToUpper(strings.TrimSpace(s)), "-", "_"))
	switch a {
	case ActionBuy, ActionSell, ActionAutoBuy, ActionAutoSell:
		return a, true
	}
	return "", false
}

// Manual reports whether the action is one a user may submit.
func (a Action) Manual() bool {
	return a == ActionBuy || a == ActionSell
}

// Transaction is one immutable trade record as reported by the backend.
type Transaction struct {
	Time   time.Time `json:"time"`
	Action Action    `json:"action"`
	Symbol string    `json:"symbol"`
	Qty    int       `json:"qty"`
	Price  float64   `json:"price"`
	Reason string    `json:"reason,omitempty"`
}

// Holding is one instrument position.
type Holding struct {
	Symbol   string `json:"symbol"`
	Quantity int    `json:"quantity"`
}

// PortfolioState is the user's cash, holdings and chronological trade history.
type PortfolioState struct {
	Cash     float64        `json:"cash"`
	Holdings map[string]int `json:"holdings"`
	History  []Transaction  `json:"history"`
}

// Clone returns a deep copy.
func (p PortfolioState) Clone() PortfolioState {
	out := PortfolioState{
		Cash:     p.Cash,
		Holdings: make(map[string]int, len(p.Holdings)),
		History:  make([]Transaction, len(p.History)),
	}
	for k, v := range p.Holdings {
		out.Holdings[k] = v
	}
	copy(out.History, p.History)
	return out
}

// SortedHoldings returns holdings ordered by symbol, zero quantities included.
func (p PortfolioState) SortedHoldings() []Holding {
	out := make([]Holding, 0, len(p.Holdings))
	for sym, qty := range p.Holdings {
		out = append(out, Holding{Symbol: sym, Quantity: qty})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out
}

// SignalType is a consensus or per-strategy label.
type SignalType string

const (
	SignalBuy  SignalType = "BUY"
	SignalSell SignalType = "SELL"
	SignalHold SignalType = "HOLD"
)

// ParseSignalType accepts any letter case.
func ParseSignalType(s string) (SignalType, bool) {
	t := SignalType(strings.ToUpper(strings.TrimSpace(s)))
	switch t {
	case SignalBuy, SignalSell, SignalHold:
		return t, true
	}
	return "", false
}

// StrategySignal is one strategy's output for an instrument.
type StrategySignal struct {
	Signal SignalType `json:"signal"`
	Detail string     `json:"detail"`
}

// Signal is the consensus label for one instrument. Strategies is either nil
// or a complete breakdown.
type Signal struct {
	Symbol     string                    `json:"symbol"`
	Signal     SignalType                `json:"signal"`
	Reason     string                    `json:"reason"`
	Strength   string                    `json:"strength,omitempty"`
	Strategies map[string]StrategySignal `json:"strategies,omitempty"`
}

// HasBreakdown reports whether per-strategy detail is attached.
func (s Signal) HasBreakdown() bool {
	return len(s.Strategies) > 0
}

// StrategyNames returns the breakdown keys in sorted order.
func (s Signal) StrategyNames() []string {
	out := make([]string, 0, len(s.Strategies))
	for k := range s.Strategies {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// StrategyInfo is descriptive metadata about a trading strategy.
type StrategyInfo struct {
	Key         string   `json:"key"`
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Indicators  []string `json:"indicators"`
}

// MarketStatus is the backend-reported market session.
type MarketStatus struct {
	IsOpen      bool   `json:"is_open"`
	CurrentTime string `json:"current_time"`
	Status      string `json:"status"`
}

// AutomationStatus is the bot state as last reported by the backend.
type AutomationStatus struct {
	Enabled              bool         `json:"enabled"`
	Running              bool         `json:"running"`
	VIX                  *float64     `json:"vix"`
	CheckIntervalSeconds int          `json:"check_interval_seconds"`
	Market               MarketStatus `json:"market_status"`
}

// TradeRequest is a single manual order intent.
type TradeRequest struct {
	Symbol   string `json:"symbol"`
	Action   Action `json:"action"`
	Quantity int    `json:"quantity"`
}

// Validate checks structural completeness only. Business rules belong to the backend.
func (r TradeRequest) Validate() error {
	switch {
	case strings.TrimSpace(r.Symbol) == "":
		return NewError(KindTradeRejected, "validate", "Please choose a symbol.", nil)
	case !r.Action.Manual():
		return NewError(KindTradeRejected, "validate", "Please choose BUY or SELL.", nil)
	case r.Quantity <= 0:
		return NewError(KindTradeRejected, "validate", "Quantity must be a positive whole number.", nil)
	}
	return nil
}

// TradeResult is the backend's answer to a trade submission.
type TradeResult struct {
	Success     bool            `json:"success"`
	Error       string          `json:"error,omitempty"`
	Message     string          `json:"message,omitempty"`
	Portfolio   *PortfolioState `json:"portfolio,omitempty"`
	Transaction *Transaction    `json:"transaction,omitempty"`
}

// ToggleResult is the backend's answer to a bot toggle.
type ToggleResult struct {
	Success bool              `json:"success"`
	Message string            `json:"message,omitempty"`
	Status  *AutomationStatus `json:"status,omitempty"`
}
