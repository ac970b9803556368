// Package automation tracks the trading bot's enabled/running state exactly as
// the backend reports it.
package automation

import (
	"context"
	"sync"

	"github.com/Arushi221/got-trading-bot/internal/adapters"
	"github.com/Arushi221/got-trading-bot/internal/model"
	"github.com/Arushi221/got-trading-bot/internal/observ"
	"github.com/Arushi221/got-trading-bot/internal/pubsub"
)

// State is the bot lifecycle derived from the last confirmed status.
type State int

const (
	Inactive State = iota // enabled=false
	Starting              // enabled, not yet running
	Active                // enabled and running
)

func (s State) String() string {
	switch s {
	case Inactive:
		return "inactive"
	case Starting:
		return "starting"
	case Active:
		return "active"
	default:
		return "unknown"
	}
}

// StateOf derives the lifecycle state. running without enabled is an
// inconsistent report and counts as Inactive.
func StateOf(s model.AutomationStatus) State {
	switch {
	case !s.Enabled:
		return Inactive
	case s.Running:
		return Active
	default:
		return Starting
	}
}

// Machine holds the last confirmed AutomationStatus. Local state changes only
// on a backend read or an inline echo; toggles are never applied optimistically.
type Machine struct {
	backend adapters.Backend

	mu        sync.RWMutex
	status    model.AutomationStatus
	confirmed bool
	toggling  bool

	subs pubsub.Subscribers[model.AutomationStatus]
}

func NewMachine(backend adapters.Backend) *Machine {
	return &Machine{
		backend: backend,
		status:  model.AutomationStatus{CheckIntervalSeconds: adapters.DefaultCheckIntervalSeconds},
	}
}

// Refresh reads the bot status. On failure the last confirmed status is kept.
func (m *Machine) Refresh(ctx context.Context) (model.AutomationStatus, error) {
	st, err := m.backend.GetBotStatus(ctx)
	if err != nil {
		observ.LogError("bot_status_refresh_failed", err, nil)
		return m.Status(), model.NewError(model.KindStatusUnavailable, "GET /api/bot-status", "", err)
	}
	return m.adopt(st), nil
}

// Toggle asks the backend to set enabled to desired. The new status comes from
// the response's status echo when present, otherwise from a follow-up read.
// Any failure leaves the displayed status untouched and returns ToggleFailed.
func (m *Machine) Toggle(ctx context.Context, desired bool) (model.AutomationStatus, error) {
	m.mu.Lock()
	if m.toggling {
		m.mu.Unlock()
		return m.Status(), model.NewError(model.KindToggleFailed, "POST /api/toggle-bot", "A bot toggle is already in progress.", nil)
	}
	m.toggling = true
	m.mu.Unlock()
	defer func() {
		m.mu.Lock()
		m.toggling = false
		m.mu.Unlock()
	}()

	res, err := m.backend.ToggleBot(ctx, desired)
	if err != nil {
		return m.toggleFailed(desired, model.NewError(model.KindToggleFailed, "POST /api/toggle-bot", "Failed to toggle bot.", err))
	}
	if !res.Success {
		msg := res.Message
		if msg == "" {
			msg = "Failed to toggle bot."
		}
		return m.toggleFailed(desired, model.NewError(model.KindToggleFailed, "POST /api/toggle-bot", msg, nil))
	}

	observ.Log("bot_toggled", map[string]any{"desired": desired, "message": res.Message, "echo": res.Status != nil})
	observ.IncCounter("bot_toggles_total", map[string]string{"result": "ok"})

	if res.Status != nil {
		return m.adopt(*res.Status), nil
	}
	st, err := m.backend.GetBotStatus(ctx)
	if err != nil {
		// The toggle went through; the display catches up on the next poll.
		observ.LogError("bot_status_refresh_failed", err, map[string]any{"after_toggle": true})
		return m.Status(), model.NewError(model.KindToggleFailed, "GET /api/bot-status", "Bot toggled, status not yet confirmed.", err)
	}
	return m.adopt(st), nil
}

func (m *Machine) toggleFailed(desired bool, err error) (model.AutomationStatus, error) {
	observ.LogError("bot_toggle_failed", err, map[string]any{"desired": desired})
	observ.IncCounter("bot_toggles_total", map[string]string{"result": "failed"})
	return m.Status(), err
}

func (m *Machine) adopt(st model.AutomationStatus) model.AutomationStatus {
	if st.Running && !st.Enabled {
		observ.Log("bot_status_inconsistent", map[string]any{"running": st.Running, "enabled": st.Enabled})
	}
	if st.CheckIntervalSeconds <= 0 {
		st.CheckIntervalSeconds = adapters.DefaultCheckIntervalSeconds
	}

	m.mu.Lock()
	m.status = st
	m.confirmed = true
	m.mu.Unlock()

	observ.SetGauge("bot_state", float64(StateOf(st)), nil)
	m.subs.Publish(st)
	return st
}

// Status returns the last confirmed status.
func (m *Machine) Status() model.AutomationStatus {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.status
}

// State returns the lifecycle state of the last confirmed status.
func (m *Machine) State() State {
	return StateOf(m.Status())
}

// Confirmed reports whether any status has been read from the backend.
func (m *Machine) Confirmed() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.confirmed
}

// Subscribe registers fn to receive every confirmed status.
func (m *Machine) Subscribe(fn func(model.AutomationStatus)) (unsubscribe func()) {
	return m.subs.Subscribe(fn)
}
