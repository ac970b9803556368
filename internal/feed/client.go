package feed

import (
	"context"
	"time"

	"github.com/Arushi221/got-trading-bot/internal/adapters"
	"github.com/Arushi221/got-trading-bot/internal/model"
	"github.com/Arushi221/got-trading-bot/internal/observ"
	"github.com/Arushi221/got-trading-bot/internal/transport"
)

const greetingEvent = "connected"

// Config controls the feed client.
type Config struct {
	// PollInterval makes Run poll on its own. Zero leaves polling to the caller
	// (the view scheduler calls Refresh).
	PollInterval time.Duration
	// PushEvent is the push event name carrying a price snapshot.
	PushEvent string
}

// Client writes poll responses and push events into a Cache.
type Client struct {
	backend adapters.Backend
	cache   *Cache
	push    transport.Client
	cfg     Config
}

// NewClient creates a feed client. push may be nil for poll-only operation.
func NewClient(backend adapters.Backend, cache *Cache, push transport.Client, cfg Config) *Client {
	if cfg.PushEvent == "" {
		cfg.PushEvent = "price_update"
	}
	return &Client{backend: backend, cache: cache, push: push, cfg: cfg}
}

// Cache returns the cache this client writes to.
func (c *Client) Cache() *Cache {
	return c.cache
}

// Refresh polls the backend once and applies the response. On failure the
// cache is left untouched and a FeedUnavailable error is returned.
func (c *Client) Refresh(ctx context.Context) (model.PriceCache, error) {
	update, err := c.backend.GetPrices(ctx)
	// Stamped on arrival so a slow poll loses to a push received meanwhile.
	seq := transport.NextSeq()
	if err != nil {
		observ.IncCounter("feed_updates_total", map[string]string{"channel": "poll", "result": "failed"})
		observ.LogError("feed_refresh_failed", err, map[string]any{"channel": "poll"})
		return c.cache.Snapshot(), model.NewError(model.KindFeedUnavailable, "GET /api/prices", "", err)
	}

	c.apply("poll", update, seq)
	return c.cache.Snapshot(), nil
}

// Run consumes push events, and polls when PollInterval is set, until ctx is
// done. Failures are logged and never end the loop.
func (c *Client) Run(ctx context.Context) error {
	var events <-chan transport.EventEnvelope
	if c.push != nil {
		ch, err := c.push.Start(ctx)
		if err != nil {
			return err
		}
		defer c.push.Close()
		events = ch
	}

	var tick <-chan time.Time
	if c.cfg.PollInterval > 0 {
		ticker := time.NewTicker(c.cfg.PollInterval)
		defer ticker.Stop()
		tick = ticker.C
		_, _ = c.Refresh(ctx)
	}

	if events == nil && tick == nil {
		<-ctx.Done()
		return nil
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-tick:
			_, _ = c.Refresh(ctx)
		case env, ok := <-events:
			if !ok {
				events = nil
				if tick == nil {
					<-ctx.Done()
					return nil
				}
				continue
			}
			c.HandleEvent(env)
		}
	}
}

// HandleEvent applies one push event. The channel greeting is logged only and
// unknown event types are ignored.
func (c *Client) HandleEvent(env transport.EventEnvelope) {
	switch env.Type {
	case c.cfg.PushEvent:
	case greetingEvent:
		observ.Log("push_greeting", map[string]any{"payload": string(env.Payload)})
		return
	default:
		return
	}

	update, err := adapters.DecodePrices(env.Payload)
	if err != nil {
		observ.IncCounter("feed_updates_total", map[string]string{"channel": "push", "result": "failed"})
		observ.LogError("feed_refresh_failed", err, map[string]any{"channel": "push", "seq": env.Seq})
		return
	}
	c.apply("push", update, env.Seq)
}

func (c *Client) apply(channel string, update model.PriceCache, seq uint64) {
	result := "applied"
	if !c.cache.Apply(update, seq) {
		result = "superseded"
		observ.Log("feed_update_superseded", map[string]any{"channel": channel, "seq": seq, "current": c.cache.Seq()})
	}
	observ.IncCounter("feed_updates_total", map[string]string{"channel": channel, "result": result})
}
