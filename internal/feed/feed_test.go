package feed

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Arushi221/got-trading-bot/internal/adapters"
	"github.com/Arushi221/got-trading-bot/internal/model"
	"github.com/Arushi221/got-trading-bot/internal/observ"
	"github.com/Arushi221/got-trading-bot/internal/transport"
)

func price(v float64) *float64 { return &v }

func record(sym string, p float64) model.PriceRecord {
	return model.PriceRecord{Symbol: sym, Price: price(p)}
}

// fakePush is a transport.Client fed by the test.
type fakePush struct {
	ch     chan transport.EventEnvelope
	once   sync.Once
	closed bool
}

func newFakePush() *fakePush {
	return &fakePush{ch: make(chan transport.EventEnvelope, 8)}
}

func (f *fakePush) Start(ctx context.Context) (<-chan transport.EventEnvelope, error) {
	return f.ch, nil
}
func (f *fakePush) Close() error {
	f.once.Do(func() { f.closed = true })
	return nil
}
func (f *fakePush) LastEventID() string                        { return "" }
func (f *fakePush) ConnectionState() transport.ConnectionState { return transport.StateConnected }

func (f *fakePush) send(typ string, payload any) transport.EventEnvelope {
	raw, _ := json.Marshal(payload)
	env := transport.EventEnvelope{Seq: transport.NextSeq(), Type: typ, Payload: raw}
	f.ch <- env
	return env
}

func TestCacheApplyIgnoresOlderSequence(t *testing.T) {
	c := NewCache()

	require.True(t, c.Apply(model.PriceCache{"A": record("A", 110)}, 5))
	assert.False(t, c.Apply(model.PriceCache{"A": record("A", 100)}, 4), "older receipt must not overwrite")
	assert.False(t, c.Apply(model.PriceCache{"A": record("A", 90)}, 5), "equal sequence is not newer")

	p, ok := c.Snapshot().Price("A")
	require.True(t, ok)
	assert.Equal(t, 110.0, p)
	assert.Equal(t, uint64(5), c.Seq())
}

func TestCacheRetainsOmittedSymbols(t *testing.T) {
	c := NewCache()
	c.Apply(model.PriceCache{"A": record("A", 100), "B": record("B", 50)}, 1)
	c.Apply(model.PriceCache{"A": record("A", 101)}, 2)

	snap := c.Snapshot()
	a, _ := snap.Price("A")
	b, ok := snap.Price("B")
	assert.Equal(t, 101.0, a)
	assert.True(t, ok, "B was omitted from the update and keeps its old record")
	assert.Equal(t, 50.0, b)
}

func TestCacheUnknownPriceIsKept(t *testing.T) {
	c := NewCache()
	c.Apply(model.PriceCache{"A": {Symbol: "A"}}, 1)

	snap := c.Snapshot()
	require.Contains(t, snap, "A")
	assert.False(t, snap["A"].Known())
}

func TestCacheSnapshotIsIsolated(t *testing.T) {
	c := NewCache()
	c.Apply(model.PriceCache{"A": record("A", 1)}, 1)

	snap := c.Snapshot()
	snap["A"] = record("A", 999)
	delete(snap, "A")

	p, _ := c.Snapshot().Price("A")
	assert.Equal(t, 1.0, p)
}

func TestCacheSubscribers(t *testing.T) {
	c := NewCache()
	var got []model.PriceCache
	unsub := c.Subscribe(func(p model.PriceCache) { got = append(got, p) })

	c.Apply(model.PriceCache{"A": record("A", 1)}, 1)
	c.Apply(model.PriceCache{"A": record("A", 0.5)}, 1) // superseded, no notification
	unsub()
	c.Apply(model.PriceCache{"A": record("A", 2)}, 2)

	require.Len(t, got, 1)
	p, _ := got[0].Price("A")
	assert.Equal(t, 1.0, p)
}

func TestClientRefresh(t *testing.T) {
	observ.Reset()
	mock := adapters.NewMockBackend()
	mock.SetPrices(model.PriceCache{"HOUSE_A": {Symbol: "HOUSE_A", Price: price(100), Change: 2, ChangePercent: 2}}, nil)
	c := NewClient(mock, NewCache(), nil, Config{})

	snap, err := c.Refresh(context.Background())
	require.NoError(t, err)
	p, _ := snap.Price("HOUSE_A")
	assert.Equal(t, 100.0, p)
	assert.Equal(t, 2.0, snap["HOUSE_A"].ChangePercent)
	assert.Equal(t, int64(1), observ.CounterValue("feed_updates_total", map[string]string{"channel": "poll", "result": "applied"}))
	assert.Equal(t, 1.0, observ.GaugeValue("price_cache_size", nil))
}

func TestClientRefreshFailureKeepsStaleCache(t *testing.T) {
	observ.Reset()
	mock := adapters.NewMockBackend()
	mock.SetPrices(model.PriceCache{"A": record("A", 100)}, nil)
	c := NewClient(mock, NewCache(), nil, Config{})
	_, err := c.Refresh(context.Background())
	require.NoError(t, err)

	mock.SetPrices(nil, errors.New("connection refused"))
	snap, err := c.Refresh(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, model.ErrFeedUnavailable))

	p, ok := snap.Price("A")
	assert.True(t, ok, "stale data is preferred over blank data")
	assert.Equal(t, 100.0, p)
	assert.Equal(t, int64(1), observ.CounterValue("feed_updates_total", map[string]string{"channel": "poll", "result": "failed"}))
}

func TestClientRefreshMalformedIsDistinguishable(t *testing.T) {
	mock := adapters.NewMockBackend()
	mock.SetPrices(nil, model.Malformed("decode prices", "bad"))
	c := NewClient(mock, NewCache(), nil, Config{})

	_, err := c.Refresh(context.Background())
	kind, _ := model.KindOf(err)
	assert.Equal(t, model.KindFeedUnavailable, kind)
	assert.True(t, errors.Is(err, model.ErrMalformedResponse))
}

func TestHandleEvent(t *testing.T) {
	cache := NewCache()
	c := NewClient(adapters.NewMockBackend(), cache, nil, Config{})

	greeting, _ := json.Marshal(map[string]string{"data": "Connected"})
	c.HandleEvent(transport.EventEnvelope{Seq: transport.NextSeq(), Type: "connected", Payload: greeting})
	assert.Equal(t, uint64(0), cache.Seq(), "greeting is not a price update")

	c.HandleEvent(transport.EventEnvelope{Seq: transport.NextSeq(), Type: "price_update", Payload: json.RawMessage(`[1,2]`)})
	assert.Equal(t, uint64(0), cache.Seq(), "malformed push payload is dropped")

	seq := transport.NextSeq()
	c.HandleEvent(transport.EventEnvelope{Seq: seq, Type: "price_update", Payload: json.RawMessage(`{"A": {"price": 7, "change": 0, "change_percent": 0}}`)})
	assert.Equal(t, seq, cache.Seq())
}

func TestPushPollStraddleKeepsFreshestReceipt(t *testing.T) {
	cache := NewCache()
	mock := adapters.NewMockBackend()
	c := NewClient(mock, cache, nil, Config{})

	// A push received after the poll response was stamped wins even if it
	// is handled first.
	pollSeq := transport.NextSeq()
	pushSeq := transport.NextSeq()
	c.HandleEvent(transport.EventEnvelope{Seq: pushSeq, Type: "price_update", Payload: json.RawMessage(`{"A": {"price": 120}}`)})
	c.apply("poll", model.PriceCache{"A": record("A", 100)}, pollSeq)

	p, _ := cache.Snapshot().Price("A")
	assert.Equal(t, 120.0, p)
}

func TestRunConsumesPushUntilCancelled(t *testing.T) {
	cache := NewCache()
	push := newFakePush()
	c := NewClient(adapters.NewMockBackend(), cache, push, Config{})

	updated := make(chan model.PriceCache, 4)
	cache.Subscribe(func(p model.PriceCache) { updated <- p })

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()

	push.send("connected", map[string]string{"data": "hi"})
	push.send("price_update", map[string]any{"A": map[string]any{"price": 5}})

	select {
	case snap := <-updated:
		p, _ := snap.Price("A")
		assert.Equal(t, 5.0, p)
	case <-time.After(2 * time.Second):
		t.Fatal("push update not applied")
	}

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop")
	}
	assert.True(t, push.closed)
}

func TestRunPollsWhenIntervalSet(t *testing.T) {
	mock := adapters.NewMockBackend()
	mock.SetPrices(model.PriceCache{"A": record("A", 1)}, nil)
	c := NewClient(mock, NewCache(), nil, Config{PollInterval: 10 * time.Millisecond})

	ctx, cancel := context.WithTimeout(context.Background(), 80*time.Millisecond)
	defer cancel()
	require.NoError(t, c.Run(ctx))

	assert.GreaterOrEqual(t, mock.Calls("prices"), 2)
}
