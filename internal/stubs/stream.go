package stubs

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Arushi221/got-trading-bot/internal/observ"
)

const (
	greetingEvent = "connected"
	replayDepth   = 256
	clientBuffer  = 100
)

// Stream fans events out to SSE and WebSocket subscribers. Recent events are
// kept so an SSE client reconnecting with Last-Event-ID can resume.
type Stream struct {
	mu        sync.RWMutex
	clients   map[string]chan WireEvent
	recent    []WireEvent
	nextID    uint64
	heartbeat time.Duration
	greeting  any
	upgrader  websocket.Upgrader
}

// NewStream creates a stream hub. heartbeat paces SSE comments and WebSocket pings.
func NewStream(heartbeat time.Duration) *Stream {
	if heartbeat <= 0 {
		heartbeat = 10 * time.Second
	}
	return &Stream{
		clients:   make(map[string]chan WireEvent),
		heartbeat: heartbeat,
		greeting:  map[string]string{"data": "Connected to the Westeros trading stub"},
		upgrader: websocket.Upgrader{
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
}

// Broadcast assigns the next event id, records the event for replay and sends
// it to every client. A client whose buffer is full misses the event.
func (s *Stream) Broadcast(typ string, payload any) WireEvent {
	s.mu.Lock()
	s.nextID++
	ev := WireEvent{Type: typ, ID: strconv.FormatUint(s.nextID, 10), At: time.Now().UTC(), Payload: payload}
	s.recent = append(s.recent, ev)
	if len(s.recent) > replayDepth {
		s.recent = s.recent[len(s.recent)-replayDepth:]
	}
	for clientID, ch := range s.clients {
		select {
		case ch <- ev:
		default:
			observ.IncCounter("stub_stream_dropped_total", nil)
			observ.Log("stub_stream_dropped", map[string]any{"client": clientID, "id": ev.ID})
		}
	}
	s.mu.Unlock()

	observ.IncCounter("stub_stream_events_total", map[string]string{"type": typ})
	return ev
}

// Clients returns the number of connected subscribers.
func (s *Stream) Clients() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.clients)
}

// register adds a client and returns the events it missed after lastID.
// Both happen under one lock so nothing is delivered twice or lost.
func (s *Stream) register(prefix, lastID string) (string, chan WireEvent, []WireEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var replay []WireEvent
	if lastID != "" {
		for i, ev := range s.recent {
			if ev.ID == lastID {
				replay = append(replay, s.recent[i+1:]...)
				break
			}
		}
	}

	clientID := fmt.Sprintf("%s-%d", prefix, time.Now().UnixNano())
	ch := make(chan WireEvent, clientBuffer)
	s.clients[clientID] = ch
	observ.SetGauge("stub_stream_clients", float64(len(s.clients)), nil)
	return clientID, ch, replay
}

func (s *Stream) unregister(clientID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.clients, clientID)
	observ.SetGauge("stub_stream_clients", float64(len(s.clients)), nil)
}

// ServeSSE streams events as text/event-stream.
func (s *Stream) ServeSSE(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("Access-Control-Allow-Origin", "*")

	clientID, ch, replay := s.register("sse", r.Header.Get("Last-Event-ID"))
	defer s.unregister(clientID)
	observ.Log("stub_stream_connected", map[string]any{"client": clientID, "replay": len(replay)})

	if err := writeSSE(w, WireEvent{Type: greetingEvent, Payload: s.greeting}); err != nil {
		return
	}
	for _, ev := range replay {
		if err := writeSSE(w, ev); err != nil {
			return
		}
	}
	flusher.Flush()

	ticker := time.NewTicker(s.heartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			observ.Log("stub_stream_disconnected", map[string]any{"client": clientID})
			return
		case <-ticker.C:
			if _, err := fmt.Fprint(w, ":ping\n\n"); err != nil {
				return
			}
			flusher.Flush()
		case ev := <-ch:
			if err := writeSSE(w, ev); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

func writeSSE(w http.ResponseWriter, ev WireEvent) error {
	data, err := json.Marshal(ev.Payload)
	if err != nil {
		return fmt.Errorf("marshal %s event: %w", ev.Type, err)
	}
	if _, err := fmt.Fprintf(w, "event: %s\n", ev.Type); err != nil {
		return err
	}
	if ev.ID != "" {
		if _, err := fmt.Fprintf(w, "id: %s\n", ev.ID); err != nil {
			return err
		}
	}
	_, err = fmt.Fprintf(w, "data: %s\n\n", data)
	return err
}

type wsFrame struct {
	Event string `json:"event"`
	ID    string `json:"id,omitempty"`
	Data  any    `json:"data"`
}

// ServeWS streams events as JSON text frames of the form {event, id, data}.
func (s *Stream) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		observ.LogError("stub_ws_upgrade_failed", err, nil)
		return
	}
	defer conn.Close()

	clientID, ch, _ := s.register("ws", "")
	defer s.unregister(clientID)
	observ.Log("stub_stream_connected", map[string]any{"client": clientID})

	// The reader only services control frames and notices the peer leaving.
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	if err := conn.WriteJSON(wsFrame{Event: greetingEvent, Data: s.greeting}); err != nil {
		return
	}

	ticker := time.NewTicker(s.heartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-gone:
			observ.Log("stub_stream_disconnected", map[string]any{"client": clientID})
			return
		case <-r.Context().Done():
			return
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(time.Second)); err != nil {
				return
			}
		case ev := <-ch:
			if err := conn.WriteJSON(wsFrame{Event: ev.Type, ID: ev.ID, Data: ev.Payload}); err != nil {
				return
			}
		}
	}
}
