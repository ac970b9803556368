package observ

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type kindErr struct{}

func (kindErr) Error() string    { return "boom" }
func (kindErr) KindName() string { return "feed_unavailable" }

func TestLogWritesOneJSONLine(t *testing.T) {
	var buf bytes.Buffer
	prev := SetOutput(&buf)
	defer SetOutput(prev)

	Log("push_connected", map[string]any{"url": "http://x"})
	LogError("feed_refresh_failed", kindErr{}, nil)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)

	var first, second map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &first))
	require.NoError(t, json.Unmarshal([]byte(lines[1]), &second))
	assert.Equal(t, "push_connected", first["event"])
	assert.Equal(t, "http://x", first["url"])
	assert.NotEmpty(t, first["ts"])
	assert.Equal(t, "boom", second["error"])
	assert.Equal(t, "feed_unavailable", second["kind"])
}

func TestCountersAndGaugesIgnoreLabelOrder(t *testing.T) {
	Reset()
	IncCounter("trade_submissions_total", map[string]string{"result": "ok", "source": "cli"})
	IncCounterBy("trade_submissions_total", map[string]string{"source": "cli", "result": "ok"}, 2)
	SetGauge("price_cache_size", 4, nil)
	SetGauge("price_cache_size", 6, nil)

	assert.Equal(t, int64(3), CounterValue("trade_submissions_total", map[string]string{"result": "ok", "source": "cli"}))
	assert.Equal(t, int64(0), CounterValue("trade_submissions_total", map[string]string{"result": "rejected"}))
	assert.Equal(t, 6.0, GaugeValue("price_cache_size", nil))
}

func TestSummariesDoNotKeepSamples(t *testing.T) {
	Reset()
	for _, d := range []time.Duration{5 * time.Millisecond, 1 * time.Millisecond, 9 * time.Millisecond} {
		RecordDuration("backend_request", d, map[string]string{"endpoint": "prices"})
	}
	assert.Equal(t, int64(3), ObservationCount("backend_request_ms", map[string]string{"endpoint": "prices"}))

	s := reg.summaries["backend_request_ms"]["endpoint=prices"]
	assert.Equal(t, 1.0, s.Min)
	assert.Equal(t, 9.0, s.Max)
	assert.Equal(t, 15.0, s.Sum)
}

func TestHealthHandler(t *testing.T) {
	tests := []struct {
		name   string
		ok     int
		failed int
		want   string
		code   int
	}{
		{"no traffic", 0, 0, "healthy", http.StatusOK},
		{"some failures", 3, 1, "degraded", http.StatusOK},
		{"mostly failing", 1, 3, "failed", http.StatusServiceUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			Reset()
			IncCounterBy("backend_requests_total", map[string]string{"endpoint": "prices", "result": "ok"}, int64(tt.ok))
			IncCounterBy("backend_requests_total", map[string]string{"endpoint": "signals", "result": "error"}, int64(tt.failed))

			rec := httptest.NewRecorder()
			HealthHandler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
			assert.Equal(t, tt.code, rec.Code)

			var h HealthStatus
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &h))
			assert.Equal(t, tt.want, h.Status)
			if tt.failed > 0 {
				assert.Equal(t, int64(tt.failed), h.Failures["signals"])
			}
		})
	}
}

func TestMetricsHandlerDumpsRegistry(t *testing.T) {
	Reset()
	IncCounter("feed_updates_total", map[string]string{"channel": "push", "result": "applied"})

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	var dump map[string]map[string]map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &dump))
	assert.Equal(t, 1.0, dump["counters"]["feed_updates_total"]["channel=push,result=applied"])
}
