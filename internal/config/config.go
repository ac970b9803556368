package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

type Dialect struct {
	SymbolField       string `yaml:"symbol_field"` // symbol | house | both
	ActionCase        string `yaml:"action_case"`  // lower | upper
	PortfolioPathUser *bool  `yaml:"portfolio_path_user"`
	PricesPath        string `yaml:"prices_path"`
}

type Backend struct {
	BaseURL            string  `yaml:"base_url"`
	TimeoutMs          int     `yaml:"timeout_ms"` // 0 = no client timeout
	RateLimitPerSecond float64 `yaml:"rate_limit_per_second"`
	Burst              int     `yaml:"burst"`
	Dialect            Dialect `yaml:"dialect"`
}

type Reconnect struct {
	InitialDelayMs int `yaml:"initial_delay_ms"`
	MaxDelayMs     int `yaml:"max_delay_ms"`
	JitterMs       int `yaml:"jitter_ms"`
}

type Push struct {
	Enabled   bool      `yaml:"enabled"`
	Transport string    `yaml:"transport"` // sse | ws
	Path      string    `yaml:"path"`
	Event     string    `yaml:"event"`
	Reconnect Reconnect `yaml:"reconnect"`
}

type Intervals struct {
	PricesMs    int `yaml:"prices_ms"`
	PortfolioMs int `yaml:"portfolio_ms"`
	SignalsMs   int `yaml:"signals_ms"`
	BotStatusMs int `yaml:"bot_status_ms"`
}

type View struct {
	Initial      string `yaml:"initial"`
	HistoryLimit int    `yaml:"history_limit"`
}

type Notify struct {
	ToastMs         int    `yaml:"toast_ms"`
	SlackWebhookURL string `yaml:"slack_webhook_url"`
}

type Root struct {
	UserID    string    `yaml:"user_id"`
	Backend   Backend   `yaml:"backend"`
	Push      Push      `yaml:"push"`
	Intervals Intervals `yaml:"intervals"`
	View      View      `yaml:"view"`
	Notify    Notify    `yaml:"notify"`
}

func Load(path string) (Root, error) {
	var c Root
	b, err := os.ReadFile(path)
	if err != nil {
		return c, err
	}
	if err := yaml.Unmarshal(b, &c); err != nil {
		return c, err
	}
	c.ApplyDefaults()
	if err := c.Validate(); err != nil {
		return c, err
	}
	return c, nil
}

// Default returns a configuration with every default applied.
func Default() Root {
	var c Root
	c.ApplyDefaults()
	return c
}

// ApplyDefaults fills zero values.
func (c *Root) ApplyDefaults() {
	if c.UserID == "" {
		c.UserID = "default_user"
	}

	if c.Backend.BaseURL == "" {
		c.Backend.BaseURL = "http://localhost:5000"
	}
	if c.Backend.RateLimitPerSecond == 0 {
		c.Backend.RateLimitPerSecond = 10
	}
	if c.Backend.Burst == 0 {
		c.Backend.Burst = 5
	}
	if c.Backend.Dialect.SymbolField == "" {
		c.Backend.Dialect.SymbolField = "symbol"
	}
	if c.Backend.Dialect.ActionCase == "" {
		c.Backend.Dialect.ActionCase = "lower"
	}
	if c.Backend.Dialect.PortfolioPathUser == nil {
		yes := true
		c.Backend.Dialect.PortfolioPathUser = &yes
	}
	if c.Backend.Dialect.PricesPath == "" {
		c.Backend.Dialect.PricesPath = "/api/prices"
	}

	if c.Push.Transport == "" {
		c.Push.Transport = "sse"
	}
	if c.Push.Path == "" {
		c.Push.Path = "/api/stream"
	}
	if c.Push.Event == "" {
		c.Push.Event = "price_update"
	}
	if c.Push.Reconnect.InitialDelayMs == 0 {
		c.Push.Reconnect.InitialDelayMs = 500
	}
	if c.Push.Reconnect.MaxDelayMs == 0 {
		c.Push.Reconnect.MaxDelayMs = 30000
	}
	if c.Push.Reconnect.JitterMs == 0 {
		c.Push.Reconnect.JitterMs = 250
	}

	if c.Intervals.PricesMs == 0 {
		c.Intervals.PricesMs = 10000
	}
	if c.Intervals.PortfolioMs == 0 {
		c.Intervals.PortfolioMs = 15000
	}
	if c.Intervals.SignalsMs == 0 {
		c.Intervals.SignalsMs = 30000
	}
	if c.Intervals.BotStatusMs == 0 {
		c.Intervals.BotStatusMs = 20000
	}

	if c.View.Initial == "" {
		c.View.Initial = "dashboard"
	}
	if c.View.HistoryLimit == 0 {
		c.View.HistoryLimit = 10
	}

	if c.Notify.ToastMs == 0 {
		c.Notify.ToastMs = 2500
	}
}

func (c Root) Validate() error {
	switch c.Backend.Dialect.SymbolField {
	case "symbol", "house", "both":
	default:
		return fmt.Errorf("backend.dialect.symbol_field: unknown value %q", c.Backend.Dialect.SymbolField)
	}
	switch c.Backend.Dialect.ActionCase {
	case "lower", "upper":
	default:
		return fmt.Errorf("backend.dialect.action_case: unknown value %q", c.Backend.Dialect.ActionCase)
	}
	switch c.Push.Transport {
	case "sse", "ws":
	default:
		return fmt.Errorf("push.transport: unknown value %q", c.Push.Transport)
	}
	switch c.View.Initial {
	case "dashboard", "portfolio", "signals", "automation":
	default:
		return fmt.Errorf("view.initial: unknown view %q", c.View.Initial)
	}
	if c.Backend.TimeoutMs < 0 {
		return fmt.Errorf("backend.timeout_ms must not be negative")
	}
	if c.Backend.RateLimitPerSecond < 0 || c.Backend.Burst < 0 {
		return fmt.Errorf("backend rate limit must not be negative")
	}
	for name, v := range map[string]int{
		"intervals.prices_ms":     c.Intervals.PricesMs,
		"intervals.portfolio_ms":  c.Intervals.PortfolioMs,
		"intervals.signals_ms":    c.Intervals.SignalsMs,
		"intervals.bot_status_ms": c.Intervals.BotStatusMs,
		"view.history_limit":      c.View.HistoryLimit,
		"notify.toast_ms":         c.Notify.ToastMs,
	} {
		if v <= 0 {
			return fmt.Errorf("%s must be positive", name)
		}
	}
	return nil
}
