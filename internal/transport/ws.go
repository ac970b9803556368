package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Arushi221/got-trading-bot/internal/observ"
)

// wsFrame is the JSON text frame pushed over the websocket. Both the
// {"event","data"} and {"type","payload"} shapes are accepted.
type wsFrame struct {
	Event   string          `json:"event"`
	Data    json.RawMessage `json:"data"`
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
	ID      string          `json:"id"`
}

// WSClient implements Client over a websocket connection.
type WSClient struct {
	config    Config
	dialer    *websocket.Dialer
	eventChan chan EventEnvelope
	state     atomic.Int32

	mu          sync.RWMutex
	lastEventID string
	conn        *websocket.Conn

	cancel context.CancelFunc
	wg     sync.WaitGroup

	reconnectAttempts atomic.Int64
	messagesReceived  atomic.Int64
	overflowDropped   atomic.Int64
}

// NewWSClient creates a websocket push client. http and https URLs are
// rewritten to ws and wss.
func NewWSClient(config Config) (*WSClient, error) {
	if config.URL == "" {
		return nil, fmt.Errorf("ws: url is required")
	}
	config.applyDefaults()
	switch {
	case strings.HasPrefix(config.URL, "http://"):
		config.URL = "ws://" + strings.TrimPrefix(config.URL, "http://")
	case strings.HasPrefix(config.URL, "https://"):
		config.URL = "wss://" + strings.TrimPrefix(config.URL, "https://")
	}

	c := &WSClient{
		config:    config,
		dialer:    websocket.DefaultDialer,
		eventChan: make(chan EventEnvelope, config.MaxChannelBuffer),
	}
	c.state.Store(int32(StateDisconnected))
	return c, nil
}

func (c *WSClient) Start(ctx context.Context) (<-chan EventEnvelope, error) {
	ctx, c.cancel = context.WithCancel(ctx)

	c.wg.Add(1)
	go c.consumeLoop(ctx)

	return c.eventChan, nil
}

func (c *WSClient) Close() error {
	if c.cancel != nil {
		c.cancel()
	}
	c.mu.RLock()
	conn := c.conn
	c.mu.RUnlock()
	if conn != nil {
		_ = conn.Close()
	}
	c.wg.Wait()
	return nil
}

func (c *WSClient) LastEventID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastEventID
}

func (c *WSClient) ConnectionState() ConnectionState {
	return ConnectionState(c.state.Load())
}

func (c *WSClient) consumeLoop(ctx context.Context) {
	defer c.wg.Done()
	defer close(c.eventChan)

	bo := newBackoff(c.config.Reconnect)

	for {
		if ctx.Err() != nil {
			return
		}

		c.state.Store(int32(StateConnecting))
		err := c.connectAndConsume(ctx, bo)
		c.state.Store(int32(StateDisconnected))
		if ctx.Err() != nil {
			return
		}

		delay := bo.next()
		observ.Log("push_reconnect", map[string]any{
			"transport": "ws",
			"url":       c.config.URL,
			"error":     errString(err),
			"delay_ms":  delay.Milliseconds(),
		})

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return
		}
		c.reconnectAttempts.Add(1)
	}
}

func (c *WSClient) connectAndConsume(ctx context.Context, bo *backoff) error {
	header := http.Header{}
	if lastID := c.LastEventID(); lastID != "" {
		header.Set("Last-Event-ID", lastID)
	}

	conn, _, err := c.dialer.DialContext(ctx, c.config.URL, header)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		c.conn = nil
		c.mu.Unlock()
		_ = conn.Close()
	}()

	c.state.Store(int32(StateConnected))
	bo.reset()
	observ.Log("push_connected", map[string]any{"transport": "ws", "url": c.config.URL})

	done := make(chan struct{})
	defer close(done)
	go c.pingPump(ctx, conn, done)

	return c.readPump(ctx, conn)
}

// pingPump keeps the connection alive and closes it when ctx ends so the
// blocked read returns.
func (c *WSClient) pingPump(ctx context.Context, conn *websocket.Conn, done <-chan struct{}) {
	ticker := time.NewTicker(c.config.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ctx.Done():
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
			_ = conn.Close()
			return
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(10*time.Second)); err != nil {
				_ = conn.Close()
				return
			}
		}
	}
}

func (c *WSClient) readPump(ctx context.Context, conn *websocket.Conn) error {
	conn.SetReadLimit(5 * 1024 * 1024)
	_ = conn.SetReadDeadline(time.Now().Add(c.config.ReadTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(c.config.ReadTimeout))
	})

	for {
		msgType, message, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("read: %w", err)
		}
		_ = conn.SetReadDeadline(time.Now().Add(c.config.ReadTimeout))
		if msgType != websocket.TextMessage {
			continue
		}

		env, err := decodeFrame(message)
		if err != nil {
			observ.LogError("push_event_invalid", err, map[string]any{"transport": "ws"})
			continue
		}
		if !enqueue(ctx, c.eventChan, env, &c.overflowDropped) {
			return ctx.Err()
		}
		c.messagesReceived.Add(1)
		observ.IncCounter("push_events_total", map[string]string{"transport": "ws"})

		if env.ID != "" {
			c.mu.Lock()
			c.lastEventID = env.ID
			c.mu.Unlock()
		}
	}
}

// GetMetrics returns current client metrics
func (c *WSClient) GetMetrics() map[string]interface{} {
	return map[string]interface{}{
		"connection_state":   c.ConnectionState().String(),
		"reconnect_attempts": c.reconnectAttempts.Load(),
		"messages_received":  c.messagesReceived.Load(),
		"overflow_dropped":   c.overflowDropped.Load(),
		"last_event_id":      c.LastEventID(),
	}
}

func decodeFrame(message []byte) (EventEnvelope, error) {
	var f wsFrame
	if err := json.Unmarshal(message, &f); err != nil {
		return EventEnvelope{}, fmt.Errorf("decode frame: %w", err)
	}

	typ, payload := f.Event, f.Data
	if typ == "" {
		typ, payload = f.Type, f.Payload
	}
	if typ == "" {
		return EventEnvelope{}, fmt.Errorf("frame has no event name")
	}
	if len(payload) == 0 {
		payload = json.RawMessage("null")
	}

	return EventEnvelope{
		Seq:        NextSeq(),
		Type:       typ,
		ID:         f.ID,
		ReceivedAt: time.Now().UTC(),
		Payload:    payload,
	}, nil
}
