package observ

import (
	"encoding/json"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"
)

// summary aggregates observations without keeping them; a dashboard runs for
// days and raw samples would grow without bound.
type summary struct {
	Count int64   `json:"count"`
	Sum   float64 `json:"sum"`
	Min   float64 `json:"min"`
	Max   float64 `json:"max"`
}

func (s *summary) add(v float64) {
	if s.Count == 0 || v < s.Min {
		s.Min = v
	}
	if s.Count == 0 || v > s.Max {
		s.Max = v
	}
	s.Count++
	s.Sum += v
}

// series maps a canonical label key to a value.
type series[V any] map[string]V

type registry struct {
	mu        sync.Mutex
	counters  map[string]series[int64]
	gauges    map[string]series[float64]
	summaries map[string]series[*summary]
}

var reg = newRegistry()

func newRegistry() *registry {
	return &registry{
		counters:  map[string]series[int64]{},
		gauges:    map[string]series[float64]{},
		summaries: map[string]series[*summary]{},
	}
}

func seriesFor[V any](m map[string]series[V], name string) series[V] {
	s, ok := m[name]
	if !ok {
		s = series[V]{}
		m[name] = s
	}
	return s
}

// canonLabels renders labels as k=v pairs sorted by key.
func canonLabels(lbl map[string]string) string {
	if len(lbl) == 0 {
		return ""
	}
	keys := make([]string, 0, len(lbl))
	for k := range lbl {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = k + "=" + lbl[k]
	}
	return strings.Join(parts, ",")
}

func IncCounter(name string, labels map[string]string) {
	IncCounterBy(name, labels, 1)
}

func IncCounterBy(name string, labels map[string]string, value int64) {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	seriesFor(reg.counters, name)[canonLabels(labels)] += value
}

func SetGauge(name string, value float64, labels map[string]string) {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	seriesFor(reg.gauges, name)[canonLabels(labels)] = value
}

// Observe adds one sample to a summary.
func Observe(name string, value float64, labels map[string]string) {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	s := seriesFor(reg.summaries, name)
	k := canonLabels(labels)
	if s[k] == nil {
		s[k] = &summary{}
	}
	s[k].add(value)
}

// RecordDuration observes d in milliseconds under name_ms.
func RecordDuration(name string, d time.Duration, labels map[string]string) {
	Observe(name+"_ms", float64(d.Microseconds())/1000, labels)
}

// CounterValue returns the current value of a counter for the given labels.
func CounterValue(name string, labels map[string]string) int64 {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	return reg.counters[name][canonLabels(labels)]
}

// GaugeValue returns the current value of a gauge for the given labels.
func GaugeValue(name string, labels map[string]string) float64 {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	return reg.gauges[name][canonLabels(labels)]
}

// ObservationCount returns how many samples a summary has seen.
func ObservationCount(name string, labels map[string]string) int64 {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	if s := reg.summaries[name][canonLabels(labels)]; s != nil {
		return s.Count
	}
	return 0
}

// Reset clears every metric. Used by tests.
func Reset() {
	fresh := newRegistry()
	reg.mu.Lock()
	defer reg.mu.Unlock()
	reg.counters = fresh.counters
	reg.gauges = fresh.gauges
	reg.summaries = fresh.summaries
}

// Handler serves every metric as one JSON document.
func Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reg.mu.Lock()
		defer reg.mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"counters":  reg.counters,
			"gauges":    reg.gauges,
			"summaries": reg.summaries,
		})
	})
}

// HealthStatus summarizes backend reachability as seen by the sync core
type HealthStatus struct {
	Status    string           `json:"status"` // "healthy", "degraded", "failed"
	Timestamp string           `json:"timestamp"`
	Uptime    string           `json:"uptime"`
	Version   string           `json:"version"`
	Failures  map[string]int64 `json:"failures"` // endpoint -> failed requests
}

var (
	startTime = time.Now()
	version   = "dev" // Set via build flags
)

// SetVersion sets the version string for health reports
func SetVersion(v string) {
	version = v
}

// HealthHandler reports degraded when any backend endpoint has failed requests and
// failed when more than half of all requests failed.
func HealthHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		health := currentHealth()

		statusCode := http.StatusOK
		if health.Status == "failed" {
			statusCode = http.StatusServiceUnavailable
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(statusCode)
		_ = json.NewEncoder(w).Encode(health)
	})
}

func currentHealth() HealthStatus {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	failures := map[string]int64{}
	var total, failed int64
	for key, count := range reg.counters["backend_requests_total"] {
		total += count
		if !strings.Contains(key, "result=error") {
			continue
		}
		failed += count
		for _, part := range strings.Split(key, ",") {
			if ep, ok := strings.CutPrefix(part, "endpoint="); ok {
				failures[ep] += count
			}
		}
	}

	status := "healthy"
	switch {
	case total > 0 && failed*2 > total:
		status = "failed"
	case failed > 0:
		status = "degraded"
	}

	return HealthStatus{
		Status:    status,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Uptime:    time.Since(startTime).String(),
		Version:   version,
		Failures:  failures,
	}
}
