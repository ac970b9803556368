// Package stubs is an in-memory trading backend for local runs and tests.
// It serves the REST endpoints the dashboard polls and streams price
// snapshots over SSE and WebSocket.
package stubs

import "time"

// Instrument is one tradable symbol served by the stub.
type Instrument struct {
	Symbol string
	Name   string
	Motto  string
	Base   float64 // opening price
}

// DefaultInstruments are the houses the stub trades.
var DefaultInstruments = []Instrument{
	{Symbol: "STARK", Name: "House Stark", Motto: "Winter is Coming", Base: 182.50},
	{Symbol: "LANNISTER", Name: "House Lannister", Motto: "Hear Me Roar", Base: 415.20},
	{Symbol: "TARGARYEN", Name: "House Targaryen", Motto: "Fire and Blood", Base: 141.80},
	{Symbol: "BARATHEON", Name: "House Baratheon", Motto: "Ours is the Fury", Base: 178.35},
	{Symbol: "TYRELL", Name: "House Tyrell", Motto: "Growing Strong", Base: 242.10},
	{Symbol: "GREYJOY", Name: "House Greyjoy", Motto: "We Do Not Sow", Base: 875.60},
}

// StartingCash is the balance of a portfolio on first access.
const StartingCash = 10000

// DefaultUser owns trades that name no user.
const DefaultUser = "default_user"

// wireTime is the timestamp layout the stub emits.
const wireTime = "2006-01-02 15:04:05"

// WireEvent is one streamed event.
type WireEvent struct {
	Type    string
	ID      string
	At      time.Time
	Payload any
}

type priceWire struct {
	Price         *float64 `json:"price"`
	Change        float64  `json:"change"`
	ChangePercent float64  `json:"change_percent"`
	High          float64  `json:"high"`
	Low           float64  `json:"low"`
	Volume        int64    `json:"volume"`
	Name          string   `json:"name"`
	Motto         string   `json:"motto"`
	LastUpdated   string   `json:"last_updated"`
}

type transactionWire struct {
	Time   string  `json:"time"`
	Action string  `json:"action"`
	Symbol string  `json:"symbol"`
	Qty    int     `json:"qty"`
	Price  float64 `json:"price"`
	Total  float64 `json:"total"`
	Reason string  `json:"reason,omitempty"`
}

type portfolioWire struct {
	Cash     float64           `json:"cash"`
	Holdings map[string]int    `json:"holdings"`
	History  []transactionWire `json:"history"`
}

type tradeRequestWire struct {
	UserID   string `json:"user_id"`
	Symbol   string `json:"symbol"`
	House    string `json:"house"`
	Action   string `json:"action"`
	Quantity int    `json:"quantity"`
}

type strategyWire struct {
	Signal string `json:"signal"`
	Detail string `json:"detail"`
}

type signalWire struct {
	Symbol     string                  `json:"symbol"`
	Signal     string                  `json:"signal"`
	Strength   string                  `json:"strength,omitempty"`
	Reason     string                  `json:"reason"`
	Strategies map[string]strategyWire `json:"strategies,omitempty"`
}

type marketStatusWire struct {
	IsOpen      bool   `json:"is_open"`
	CurrentTime string `json:"current_time"`
	Status      string `json:"status"`
}

type botStatusWire struct {
	Enabled              bool             `json:"enabled"`
	Running              bool             `json:"running"`
	VIX                  *float64         `json:"vix"`
	CheckIntervalSeconds int              `json:"check_interval_seconds"`
	MarketStatus         marketStatusWire `json:"market_status"`
}

type strategyInfoWire struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Indicators  []string `json:"indicators"`
}

// strategyCatalog lists the strategies the stub reports signals for.
var strategyCatalog = map[string]strategyInfoWire{
	"momentum": {
		Name:        "Momentum",
		Description: "Follows the session move once it exceeds two percent.",
		Indicators:  []string{"change_percent"},
	},
	"mean_reversion": {
		Name:        "Mean Reversion",
		Description: "Fades prices that stretch far from the session open.",
		Indicators:  []string{"open", "last"},
	},
}
