package transport

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Arushi221/got-trading-bot/internal/config"
)

func recv(t *testing.T, ch <-chan EventEnvelope) EventEnvelope {
	t.Helper()
	select {
	case env, ok := <-ch:
		require.True(t, ok, "channel closed early")
		return env
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
		return EventEnvelope{}
	}
}

func TestNextSeqIsMonotonic(t *testing.T) {
	a := NextSeq()
	b := NextSeq()
	assert.Greater(t, b, a)
}

func TestFromPush(t *testing.T) {
	p := config.Default().Push
	cfg := FromPush("http://localhost:5000/", p)
	assert.Equal(t, "http://localhost:5000/api/stream", cfg.URL)
	assert.Equal(t, "sse", cfg.Transport)
	assert.Equal(t, 500, cfg.Reconnect.InitialDelayMs)
}

func TestNewClientRejectsUnknownTransport(t *testing.T) {
	_, err := NewClient(Config{URL: "http://x", Transport: "carrier-pigeon"})
	assert.Error(t, err)

	c, err := NewClient(Config{URL: "http://x", Transport: "ws"})
	require.NoError(t, err)
	assert.IsType(t, &WSClient{}, c)
}

func TestBackoffCapsAndResets(t *testing.T) {
	bo := newBackoff(ReconnectConfig{InitialDelayMs: 100, MaxDelayMs: 300})
	assert.Equal(t, 100*time.Millisecond, bo.next())
	assert.Equal(t, 200*time.Millisecond, bo.next())
	assert.Equal(t, 300*time.Millisecond, bo.next())
	assert.Equal(t, 300*time.Millisecond, bo.next())
	bo.reset()
	assert.Equal(t, 100*time.Millisecond, bo.next())
}

func TestSSEClientReceivesEvents(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "text/event-stream", r.Header.Get("Accept"))
		w.Header().Set("Content-Type", "text/event-stream")
		flusher := w.(http.Flusher)
		fmt.Fprint(w, ": heartbeat\n\n")
		fmt.Fprint(w, "event: connected\ndata: {\"data\": \"hello\"}\n\n")
		fmt.Fprint(w, "event: price_update\nid: 1\ndata: {\"A\": {\"price\": 1}}\n\n")
		fmt.Fprint(w, "event: price_update\nid: 1\ndata: {\"A\": {\"price\": 9}}\n\n") // duplicate id
		fmt.Fprint(w, "event: price_update\nid: 2\ndata: not json\n\n")
		fmt.Fprint(w, "event: price_update\nid: 3\ndata: {\"A\":\ndata:  {\"price\": 2}}\n\n")
		flusher.Flush()
		<-r.Context().Done()
	}))
	defer srv.Close()

	c, err := NewSSEClient(Config{URL: srv.URL})
	require.NoError(t, err)
	ch, err := c.Start(context.Background())
	require.NoError(t, err)
	defer c.Close()

	greeting := recv(t, ch)
	assert.Equal(t, "connected", greeting.Type)

	first := recv(t, ch)
	assert.Equal(t, "price_update", first.Type)
	assert.Equal(t, "1", first.ID)
	assert.JSONEq(t, `{"A": {"price": 1}}`, string(first.Payload))

	second := recv(t, ch)
	assert.Equal(t, "3", second.ID)
	assert.JSONEq(t, `{"A": {"price": 2}}`, string(second.Payload))
	assert.Greater(t, second.Seq, first.Seq)
	assert.Greater(t, first.Seq, greeting.Seq)

	assert.Equal(t, "3", c.LastEventID())
	assert.Equal(t, StateConnected, c.ConnectionState())

	m := c.GetMetrics()
	assert.Equal(t, int64(3), m["messages_received"])
	assert.Equal(t, int64(1), m["dupes_dropped"])
	assert.Equal(t, "connected", m["connection_state"])
}

func TestSSEClientReconnectsWithLastEventID(t *testing.T) {
	var hits atomic.Int32
	var resumedFrom atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := hits.Add(1)
		w.Header().Set("Content-Type", "text/event-stream")
		if n == 1 {
			fmt.Fprint(w, "event: price_update\nid: 7\ndata: {}\n\n")
			return // stream ends, client reconnects
		}
		resumedFrom.Store(r.Header.Get("Last-Event-ID"))
		fmt.Fprint(w, "event: price_update\nid: 8\ndata: {}\n\n")
		w.(http.Flusher).Flush()
		<-r.Context().Done()
	}))
	defer srv.Close()

	c, err := NewSSEClient(Config{URL: srv.URL, Reconnect: ReconnectConfig{InitialDelayMs: 10, MaxDelayMs: 20}})
	require.NoError(t, err)
	ch, err := c.Start(context.Background())
	require.NoError(t, err)
	defer c.Close()

	assert.Equal(t, "7", recv(t, ch).ID)
	assert.Equal(t, "8", recv(t, ch).ID)
	assert.Equal(t, "7", resumedFrom.Load())
}

func TestSSEClientCloseClosesChannel(t *testing.T) {
	c, err := NewSSEClient(Config{URL: "http://127.0.0.1:1", Reconnect: ReconnectConfig{InitialDelayMs: 10, MaxDelayMs: 10}})
	require.NoError(t, err)
	ch, err := c.Start(context.Background())
	require.NoError(t, err)

	require.NoError(t, c.Close())
	_, ok := <-ch
	assert.False(t, ok)
	assert.Equal(t, StateDisconnected, c.ConnectionState())
}

func TestWSClientReceivesFrames(t *testing.T) {
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if !assert.NoError(t, err) {
			return
		}
		defer conn.Close()
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"event": "connected", "data": {"data": "hi"}}`))
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`garbage`))
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"type": "price_update", "id": "5", "payload": {"A": {"price": 3}}}`))
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer srv.Close()

	c, err := NewWSClient(Config{URL: srv.URL})
	require.NoError(t, err)
	assert.Contains(t, c.config.URL, "ws://")

	ch, err := c.Start(context.Background())
	require.NoError(t, err)

	greeting := recv(t, ch)
	assert.Equal(t, "connected", greeting.Type)

	update := recv(t, ch)
	assert.Equal(t, "price_update", update.Type)
	assert.Equal(t, "5", update.ID)
	assert.JSONEq(t, `{"A": {"price": 3}}`, string(update.Payload))
	assert.Greater(t, update.Seq, greeting.Seq)

	require.NoError(t, c.Close())
	for range ch {
	}
	assert.Equal(t, "5", c.LastEventID())
	assert.Equal(t, int64(2), c.GetMetrics()["messages_received"], "the garbage frame is not counted")
}

func TestDecodeFrame(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		typ     string
		wantErr bool
	}{
		{"event data shape", `{"event": "price_update", "data": {}}`, "price_update", false},
		{"type payload shape", `{"type": "price_update", "payload": {}}`, "price_update", false},
		{"no payload", `{"event": "ping"}`, "ping", false},
		{"no name", `{"data": {}}`, "", true},
		{"not json", `{`, "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env, err := decodeFrame([]byte(tt.in))
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.typ, env.Type)
			assert.NotEmpty(t, env.Payload)
		})
	}
}
