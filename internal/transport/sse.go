package transport

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Arushi221/got-trading-bot/internal/observ"
)

// SSEClient implements Client for Server-Sent Events.
type SSEClient struct {
	config      Config
	eventChan   chan EventEnvelope
	lastEventID string
	state       atomic.Int32

	client *http.Client
	cancel context.CancelFunc
	wg     sync.WaitGroup
	mu     sync.RWMutex

	reconnectAttempts atomic.Int64
	messagesReceived  atomic.Int64
	dupesDropped      atomic.Int64
	overflowDropped   atomic.Int64
}

// NewSSEClient creates a new SSE client with the given configuration
func NewSSEClient(config Config) (*SSEClient, error) {
	if config.URL == "" {
		return nil, fmt.Errorf("sse: url is required")
	}
	config.applyDefaults()

	c := &SSEClient{
		config:    config,
		eventChan: make(chan EventEnvelope, config.MaxChannelBuffer),
		// Streams stay open indefinitely, so no client timeout.
		client: &http.Client{},
	}
	c.state.Store(int32(StateDisconnected))
	return c, nil
}

// SetHTTPClient replaces the underlying HTTP client.
func (c *SSEClient) SetHTTPClient(hc *http.Client) {
	c.client = hc
}

// Start begins consuming SSE events
func (c *SSEClient) Start(ctx context.Context) (<-chan EventEnvelope, error) {
	ctx, c.cancel = context.WithCancel(ctx)

	c.wg.Add(1)
	go c.consumeLoop(ctx)

	return c.eventChan, nil
}

// Close shuts down the SSE client
func (c *SSEClient) Close() error {
	if c.cancel != nil {
		c.cancel()
	}
	c.wg.Wait()
	return nil
}

// LastEventID returns the last processed event ID
func (c *SSEClient) LastEventID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastEventID
}

// ConnectionState returns current connection state
func (c *SSEClient) ConnectionState() ConnectionState {
	return ConnectionState(c.state.Load())
}

// consumeLoop handles the SSE connection and reconnection with backoff.
func (c *SSEClient) consumeLoop(ctx context.Context) {
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
			"transport": "sse",
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

// connectAndConsume establishes the SSE connection and processes events
// until the stream ends.
func (c *SSEClient) connectAndConsume(ctx context.Context, bo *backoff) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.config.URL, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")

	if lastID := c.LastEventID(); lastID != "" {
		req.Header.Set("Last-Event-ID", lastID)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status: %d", resp.StatusCode)
	}

	c.state.Store(int32(StateConnected))
	bo.reset()
	observ.Log("push_connected", map[string]any{"transport": "sse", "url": c.config.URL})

	return c.processEventStream(ctx, resp.Body)
}

// processEventStream reads SSE frames from body. Multi-line data fields are
// joined with newlines; comment lines are heartbeats.
func (c *SSEClient) processEventStream(ctx context.Context, body io.Reader) error {
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var eventType, eventID string
	var data []string
	seenIDs := make(map[string]bool)

	for scanner.Scan() {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		line := scanner.Text()

		if strings.HasPrefix(line, ":") {
			continue
		}

		if line == "" {
			if len(data) > 0 {
				if eventType == "" {
					eventType = "message"
				}
				if err := c.processEvent(ctx, eventType, eventID, strings.Join(data, "\n"), seenIDs); err != nil {
					observ.LogError("push_event_invalid", err, map[string]any{"transport": "sse", "type": eventType})
				}
			}
			eventType, eventID, data = "", "", nil
			continue
		}

		field, value, _ := strings.Cut(line, ":")
		value = strings.TrimPrefix(value, " ")
		switch field {
		case "event":
			eventType = value
		case "id":
			eventID = value
		case "data":
			data = append(data, value)
		}
	}

	if err := scanner.Err(); err != nil {
		return err
	}
	return io.EOF
}

// processEvent validates and enqueues a single SSE event
func (c *SSEClient) processEvent(ctx context.Context, eventType, eventID, eventData string, seenIDs map[string]bool) error {
	if eventID != "" {
		if seenIDs[eventID] {
			c.dupesDropped.Add(1)
			return nil
		}
		seenIDs[eventID] = true
	}

	if !json.Valid([]byte(eventData)) {
		return fmt.Errorf("event data is not JSON")
	}

	envelope := EventEnvelope{
		Seq:        NextSeq(),
		Type:       eventType,
		ID:         eventID,
		ReceivedAt: time.Now().UTC(),
		Payload:    json.RawMessage(eventData),
	}

	if !enqueue(ctx, c.eventChan, envelope, &c.overflowDropped) {
		return nil
	}
	c.messagesReceived.Add(1)
	observ.IncCounter("push_events_total", map[string]string{"transport": "sse"})

	if eventID != "" {
		c.mu.Lock()
		c.lastEventID = eventID
		c.mu.Unlock()
	}
	return nil
}

// GetMetrics returns current client metrics
func (c *SSEClient) GetMetrics() map[string]interface{} {
	return map[string]interface{}{
		"connection_state":   c.ConnectionState().String(),
		"reconnect_attempts": c.reconnectAttempts.Load(),
		"messages_received":  c.messagesReceived.Load(),
		"dupes_dropped":      c.dupesDropped.Load(),
		"overflow_dropped":   c.overflowDropped.Load(),
		"last_event_id":      c.LastEventID(),
	}
}

// enqueue delivers env, dropping the oldest queued event when the buffer is
// full. It returns false only when ctx is done.
func enqueue(ctx context.Context, ch chan EventEnvelope, env EventEnvelope, dropped *atomic.Int64) bool {
	for {
		select {
		case ch <- env:
			return true
		case <-ctx.Done():
			return false
		default:
		}
		select {
		case old := <-ch:
			dropped.Add(1)
			observ.Log("push_event_dropped", map[string]any{"type": old.Type, "seq": old.Seq})
		default:
		}
	}
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
