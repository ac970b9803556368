// Package notify delivers transient user notifications (toasts) to one or
// more sinks.
package notify

import (
	"sync"
	"time"

	"github.com/Arushi221/got-trading-bot/internal/observ"
)

type Level string

const (
	LevelSuccess Level = "success"
	LevelError   Level = "error"
	LevelInfo    Level = "info"
)

// Notice is one transient notification.
type Notice struct {
	Level  Level     `json:"level"`
	Text   string    `json:"text"`
	Source string    `json:"source"` // component that raised it: trade, feed, bot, ...
	At     time.Time `json:"at"`
}

// Notifier receives notices. Implementations must not block the caller.
type Notifier interface {
	Notify(n Notice)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(Notice)

func (f NotifierFunc) Notify(n Notice) { f(n) }

// Multi fans a notice out to every sink.
type Multi []Notifier

func (m Multi) Notify(n Notice) {
	for _, s := range m {
		if s != nil {
			s.Notify(n)
		}
	}
}

// LogNotifier writes notices to the structured log.
type LogNotifier struct{}

func (LogNotifier) Notify(n Notice) {
	observ.Log("notice", map[string]any{"level": n.Level, "text": n.Text, "source": n.Source})
}

// Toasts keeps notices visible for a fixed duration.
type Toasts struct {
	ttl time.Duration
	now func() time.Time

	mu     sync.Mutex
	active []toast
}

type toast struct {
	Notice
	expires time.Time
}

func NewToasts(ttl time.Duration) *Toasts {
	return &Toasts{ttl: ttl, now: time.Now}
}

func (t *Toasts) Notify(n Notice) {
	now := t.now()
	if n.At.IsZero() {
		n.At = now
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.active = append(t.pruneLocked(now), toast{Notice: n, expires: now.Add(t.ttl)})
}

// Active returns the unexpired notices, oldest first.
func (t *Toasts) Active() []Notice {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.active = t.pruneLocked(t.now())
	out := make([]Notice, len(t.active))
	for i, a := range t.active {
		out[i] = a.Notice
	}
	return out
}

func (t *Toasts) pruneLocked(now time.Time) []toast {
	kept := t.active[:0]
	for _, a := range t.active {
		if now.Before(a.expires) {
			kept = append(kept, a)
		}
	}
	return kept
}

// Recorder stores every notice. Used by tests.
type Recorder struct {
	mu      sync.Mutex
	notices []Notice
}

func (r *Recorder) Notify(n Notice) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notices = append(r.notices, n)
}

// Notices returns a copy of everything recorded.
func (r *Recorder) Notices() []Notice {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Notice(nil), r.notices...)
}

// Last returns the most recent notice.
func (r *Recorder) Last() (Notice, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.notices) == 0 {
		return Notice{}, false
	}
	return r.notices[len(r.notices)-1], true
}
