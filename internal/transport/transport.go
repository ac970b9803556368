package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"strings"
	"sync/atomic"
	"time"

	"github.com/Arushi221/got-trading-bot/internal/config"
)

// EventEnvelope wraps one push event with the metadata needed to order it
// against poll results.
type EventEnvelope struct {
	Seq        uint64          `json:"seq"`         // receipt order, shared with poll results
	Type       string          `json:"type"`        // event name: price_update, connected, ...
	ID         string          `json:"id"`          // server event id when the channel provides one
	ReceivedAt time.Time       `json:"received_at"` // local receipt time
	Payload    json.RawMessage `json:"payload"`
}

// Client represents a push transport client (SSE or WebSocket).
type Client interface {
	// Start begins consuming events. The channel is closed once the client stops.
	// Context cancellation stops the client.
	Start(ctx context.Context) (<-chan EventEnvelope, error)

	// Close shuts down the client and waits for its goroutines.
	Close() error

	// LastEventID returns the last server event id seen, for resume.
	LastEventID() string

	// ConnectionState returns current connection state for metrics.
	ConnectionState() ConnectionState
}

// ConnectionState represents the current state of a transport connection
type ConnectionState int32

const (
	StateDisconnected ConnectionState = iota // 0 = down
	StateConnecting                          // 1 = connecting
	StateConnected                           // 2 = up
)

// String returns human-readable connection state
func (s ConnectionState) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	default:
		return "unknown"
	}
}

// Config holds settings shared by every push client.
type Config struct {
	URL       string
	Transport string // "sse" or "ws"
	Reconnect ReconnectConfig

	MaxChannelBuffer int
	PingInterval     time.Duration // ws only
	ReadTimeout      time.Duration // ws only
}

type ReconnectConfig struct {
	InitialDelayMs int
	MaxDelayMs     int
	JitterMs       int
}

// FromPush builds a client config from the push section of the dashboard config.
func FromPush(baseURL string, p config.Push) Config {
	return Config{
		URL:       strings.TrimRight(baseURL, "/") + p.Path,
		Transport: p.Transport,
		Reconnect: ReconnectConfig{
			InitialDelayMs: p.Reconnect.InitialDelayMs,
			MaxDelayMs:     p.Reconnect.MaxDelayMs,
			JitterMs:       p.Reconnect.JitterMs,
		},
	}
}

// NewClient creates a push client for the configured transport.
func NewClient(cfg Config) (Client, error) {
	switch cfg.Transport {
	case "sse", "":
		return NewSSEClient(cfg)
	case "ws":
		return NewWSClient(cfg)
	default:
		return nil, fmt.Errorf("unknown push transport %q", cfg.Transport)
	}
}

var receiptSeq atomic.Uint64

// NextSeq returns the next process-wide receipt sequence number. Push clients
// stamp events with it on arrival and the poll path stamps responses with it,
// so later receipt always means a larger number.
func NextSeq() uint64 {
	return receiptSeq.Add(1)
}

func (c *Config) applyDefaults() {
	if c.MaxChannelBuffer <= 0 {
		c.MaxChannelBuffer = 256
	}
	if c.Reconnect.InitialDelayMs <= 0 {
		c.Reconnect.InitialDelayMs = 500
	}
	if c.Reconnect.MaxDelayMs < c.Reconnect.InitialDelayMs {
		c.Reconnect.MaxDelayMs = c.Reconnect.InitialDelayMs
	}
	if c.PingInterval <= 0 {
		c.PingInterval = 20 * time.Second
	}
	if c.ReadTimeout <= 0 {
		c.ReadTimeout = 60 * time.Second
	}
}

// backoff implements exponential reconnect delay with jitter.
type backoff struct {
	cfg     ReconnectConfig
	current int
}

func newBackoff(cfg ReconnectConfig) *backoff {
	return &backoff{cfg: cfg, current: cfg.InitialDelayMs}
}

func (b *backoff) next() time.Duration {
	jitter := 0
	if b.cfg.JitterMs > 0 {
		jitter = rand.Intn(b.cfg.JitterMs)
	}
	d := time.Duration(b.current+jitter) * time.Millisecond
	b.current *= 2
	if b.current > b.cfg.MaxDelayMs {
		b.current = b.cfg.MaxDelayMs
	}
	return d
}

func (b *backoff) reset() {
	b.current = b.cfg.InitialDelayMs
}
