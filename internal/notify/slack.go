package notify

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"math/rand"
	"net/http"
	"sync"
	"time"

	"github.com/Arushi221/got-trading-bot/internal/observ"
)

type SlackField struct {
	Title string `json:"title"`
	Value string `json:"value"`
	Short bool   `json:"short"`
}

type SlackAttachment struct {
	Color  string       `json:"color"`
	Fields []SlackField `json:"fields"`
}

type SlackMessage struct {
	Text        string            `json:"text"`
	Attachments []SlackAttachment `json:"attachments,omitempty"`
}

type queuedNotice struct {
	notice   Notice
	attempts int
}

const (
	dedupeWindow = 60 * time.Second
	maxAttempts  = 3
)

// Slack forwards notices to an incoming webhook from a background worker.
// Identical notices within a minute are sent once; failed sends are retried
// up to three times with backoff. A notice waiting on its backoff never holds
// up the ones queued behind it.
type Slack struct {
	webhookURL  string
	httpClient  *http.Client
	queue       chan queuedNotice
	backoffBase time.Duration
	now         func() time.Time

	mu          sync.Mutex
	dedupeCache map[string]time.Time

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewSlack(webhookURL string) *Slack {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Slack{
		webhookURL:  webhookURL,
		httpClient:  &http.Client{Timeout: 10 * time.Second},
		queue:       make(chan queuedNotice, 100),
		backoffBase: time.Second,
		now:         time.Now,
		dedupeCache: make(map[string]time.Time),
		ctx:         ctx,
		cancel:      cancel,
	}
	s.wg.Add(1)
	go s.worker()
	return s
}

// Notify enqueues n. A full queue drops the notice.
func (s *Slack) Notify(n Notice) {
	if s.duplicate(s.generateHash(n)) {
		return
	}
	s.enqueue(queuedNotice{notice: n})
}

// duplicate records hash and reports whether it was seen inside the window.
// Expired hashes are dropped on the way.
func (s *Slack) duplicate(hash string) bool {
	now := s.now()
	s.mu.Lock()
	defer s.mu.Unlock()
	for h, at := range s.dedupeCache {
		if now.Sub(at) >= dedupeWindow {
			delete(s.dedupeCache, h)
		}
	}
	if _, ok := s.dedupeCache[hash]; ok {
		return true
	}
	s.dedupeCache[hash] = now
	return false
}

func (s *Slack) enqueue(q queuedNotice) {
	if s.ctx.Err() != nil {
		return
	}
	select {
	case s.queue <- q:
	default:
		observ.IncCounter("slack_notices_dropped_total", nil)
	}
}

// Close stops the worker. Queued notices and pending retries are discarded.
func (s *Slack) Close() {
	s.cancel()
	s.wg.Wait()
}

func (s *Slack) generateHash(n Notice) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s:%s:%s", n.Level, n.Source, n.Text)))
	return fmt.Sprintf("%x", sum)[:16]
}

func (s *Slack) worker() {
	defer s.wg.Done()
	for {
		select {
		case <-s.ctx.Done():
			return
		case q := <-s.queue:
			s.deliver(q)
		}
	}
}

// deliver sends q once. A failure is rescheduled off the worker so the rest of
// the queue keeps moving.
func (s *Slack) deliver(q queuedNotice) {
	err := s.sendWebhook(s.ctx, q.notice)
	if err == nil {
		observ.IncCounter("slack_notices_sent_total", nil)
		return
	}
	q.attempts++
	if q.attempts >= maxAttempts {
		observ.LogError("slack_webhook_failed", err, map[string]any{"attempts": q.attempts})
		return
	}
	backoff := s.backoffBase * time.Duration(1<<q.attempts)
	jitter := time.Duration(rand.Float64() * float64(backoff) * 0.1)
	time.AfterFunc(backoff+jitter, func() { s.enqueue(q) })
}

func (s *Slack) sendWebhook(ctx context.Context, n Notice) error {
	payload, err := json.Marshal(formatMessage(n))
	if err != nil {
		return fmt.Errorf("marshal slack message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.webhookURL, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("slack webhook: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("slack webhook failed with status %d", resp.StatusCode)
	}
	return nil
}

func formatMessage(n Notice) SlackMessage {
	color := "good"
	switch n.Level {
	case LevelError:
		color = "danger"
	case LevelInfo:
		color = "#439FE0"
	}

	at := n.At
	if at.IsZero() {
		at = time.Now()
	}

	return SlackMessage{
		Text: n.Text,
		Attachments: []SlackAttachment{{
			Color: color,
			Fields: []SlackField{
				{Title: "Source", Value: n.Source, Short: true},
				{Title: "Time", Value: at.UTC().Format("15:04:05 MST"), Short: true},
			},
		}},
	}
}
