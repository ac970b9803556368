package notify

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToastsExpire(t *testing.T) {
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	toasts := NewToasts(2500 * time.Millisecond)
	toasts.now = func() time.Time { return now }

	toasts.Notify(Notice{Level: LevelSuccess, Text: "Trade successful!"})
	now = now.Add(time.Second)
	toasts.Notify(Notice{Level: LevelError, Text: "Insufficient gold"})

	require.Len(t, toasts.Active(), 2)

	now = now.Add(2 * time.Second) // first is 3s old, second 2s
	active := toasts.Active()
	require.Len(t, active, 1)
	assert.Equal(t, "Insufficient gold", active[0].Text)

	now = now.Add(time.Second)
	assert.Empty(t, toasts.Active())
}

func TestMultiAndRecorder(t *testing.T) {
	a, b := &Recorder{}, &Recorder{}
	var fn int
	m := Multi{a, nil, b, NotifierFunc(func(Notice) { fn++ })}

	m.Notify(Notice{Text: "one"})
	m.Notify(Notice{Text: "two"})

	assert.Len(t, a.Notices(), 2)
	last, ok := b.Last()
	require.True(t, ok)
	assert.Equal(t, "two", last.Text)
	assert.Equal(t, 2, fn)

	_, ok = (&Recorder{}).Last()
	assert.False(t, ok)
}

func TestSlackSendsAndDedupes(t *testing.T) {
	var hits atomic.Int32
	got := make(chan SlackMessage, 4)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		var msg SlackMessage
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&msg))
		got <- msg
	}))
	defer srv.Close()

	s := NewSlack(srv.URL)
	defer s.Close()

	n := Notice{Level: LevelError, Text: "Insufficient gold", Source: "trade"}
	s.Notify(n)
	s.Notify(n)

	select {
	case msg := <-got:
		assert.Equal(t, "Insufficient gold", msg.Text)
		require.Len(t, msg.Attachments, 1)
		assert.Equal(t, "danger", msg.Attachments[0].Color)
	case <-time.After(2 * time.Second):
		t.Fatal("webhook not called")
	}

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int32(1), hits.Load())
}

func TestSlackRetryDoesNotBlockQueue(t *testing.T) {
	tests := []struct {
		name      string
		backoff   time.Duration
		wantFlaky int32
	}{
		{"long backoff", time.Hour, 1},
		{"short backoff", 10 * time.Millisecond, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var flakyHits atomic.Int32
			delivered := make(chan string, 4)
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				var msg SlackMessage
				assert.NoError(t, json.NewDecoder(r.Body).Decode(&msg))
				if msg.Text == "flaky" && flakyHits.Add(1) == 1 {
					w.WriteHeader(http.StatusInternalServerError)
					return
				}
				delivered <- msg.Text
			}))
			defer srv.Close()

			s := NewSlack(srv.URL)
			s.backoffBase = tt.backoff
			defer s.Close()

			s.Notify(Notice{Level: LevelError, Text: "flaky", Source: "feed"})
			s.Notify(Notice{Level: LevelInfo, Text: "steady", Source: "feed"})

			select {
			case text := <-delivered:
				assert.Equal(t, "steady", text, "the failed notice waits off the queue")
			case <-time.After(time.Second):
				t.Fatal("queue stalled behind a retry")
			}
			if tt.wantFlaky > 1 {
				select {
				case text := <-delivered:
					assert.Equal(t, "flaky", text)
				case <-time.After(2 * time.Second):
					t.Fatal("retry never delivered")
				}
			}
			assert.Equal(t, tt.wantFlaky, flakyHits.Load())
		})
	}
}

func TestSlackDedupeCacheIsPruned(t *testing.T) {
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	s := &Slack{now: func() time.Time { return now }, dedupeCache: map[string]time.Time{}}

	assert.False(t, s.duplicate("a"))
	assert.True(t, s.duplicate("a"))

	now = now.Add(dedupeWindow)
	assert.False(t, s.duplicate("b"))
	assert.Len(t, s.dedupeCache, 1, "expired hashes are dropped")
	assert.False(t, s.duplicate("a"), "an expired notice may be sent again")
	assert.Len(t, s.dedupeCache, 2)
}

func TestFormatMessageColors(t *testing.T) {
	tests := []struct {
		level Level
		color string
	}{
		{LevelSuccess, "good"},
		{LevelError, "danger"},
		{LevelInfo, "#439FE0"},
	}
	for _, tt := range tests {
		t.Run(string(tt.level), func(t *testing.T) {
			msg := formatMessage(Notice{Level: tt.level, Text: "x", Source: "bot"})
			assert.Equal(t, tt.color, msg.Attachments[0].Color)
			assert.Equal(t, "bot", msg.Attachments[0].Fields[0].Value)
		})
	}
}
