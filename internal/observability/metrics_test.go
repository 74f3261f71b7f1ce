package observability

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_ObserveDispatch(t *testing.T) {
	m := NewMetrics()

	m.ObserveDispatch("claude", "chat", "success", 300*time.Millisecond)
	m.ObserveDispatch("claude", "chat", "success", 200*time.Millisecond)
	m.ObserveDispatch("gemini", "stream_chat", "error", time.Millisecond)

	assert.Equal(t, float64(2), testutil.ToFloat64(m.DispatchRequests.WithLabelValues("claude", "chat", "success")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.DispatchRequests.WithLabelValues("gemini", "stream_chat", "error")))
	assert.Equal(t, 2, testutil.CollectAndCount(m.DispatchLatency))
}

func TestMetrics_StreamCollectors(t *testing.T) {
	m := NewMetrics()

	m.StreamsActive.Inc()
	m.StreamFragments.WithLabelValues("azure-openai").Add(3)

	assert.Equal(t, float64(1), testutil.ToFloat64(m.StreamsActive))
	assert.Equal(t, float64(3), testutil.ToFloat64(m.StreamFragments.WithLabelValues("azure-openai")))
}

func TestMetrics_RegisterAuditStats(t *testing.T) {
	m := NewMetrics()
	written, failed, dropped := int64(7), int64(1), int64(2)
	m.RegisterAuditStats(func() (int64, int64, int64) { return written, failed, dropped })

	expected := `
# HELP nexus_audit_records_dropped_total Dispatch records dropped on a full buffer
# TYPE nexus_audit_records_dropped_total counter
nexus_audit_records_dropped_total 2
`
	require.NoError(t, testutil.GatherAndCompare(m.Registry(), strings.NewReader(expected), "nexus_audit_records_dropped_total"))

	written = 9
	families, err := m.Registry().Gather()
	require.NoError(t, err)
	for _, mf := range families {
		if mf.GetName() == "nexus_audit_records_written_total" {
			assert.Equal(t, float64(9), mf.GetMetric()[0].GetCounter().GetValue())
		}
	}
}

func TestMetrics_MiddlewareAndHandler(t *testing.T) {
	m := NewMetrics()

	r := chi.NewRouter()
	r.Use(m.Middleware)
	r.Get("/api/v1/models", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	r.Post("/api/v1/chat", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})
	r.Handle("/metrics", m.Handler())

	for _, req := range []*http.Request{
		httptest.NewRequest(http.MethodGet, "/api/v1/models", nil),
		httptest.NewRequest(http.MethodPost, "/api/v1/chat", nil),
		httptest.NewRequest(http.MethodGet, "/nope", nil),
	} {
		r.ServeHTTP(httptest.NewRecorder(), req)
	}

	assert.Equal(t, float64(1), testutil.ToFloat64(m.HTTPRequests.WithLabelValues("GET", "/api/v1/models", "2xx")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.HTTPRequests.WithLabelValues("POST", "/api/v1/chat", "5xx")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.HTTPRequests.WithLabelValues("GET", "unmatched", "4xx")))

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "nexus_http_requests_total")
	assert.Contains(t, string(body), "go_goroutines")
}

func TestNewLogger(t *testing.T) {
	tests := []struct {
		name    string
		level   string
		format  string
		wantErr bool
	}{
		{"json info", "info", "json", false},
		{"console debug", "debug", "console", false},
		{"text warn", "warn", "text", false},
		{"invalid level", "loud", "json", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger, err := NewLogger(tt.level, tt.format)
			if tt.wantErr {
				assert.Error(t, err)
				assert.Nil(t, logger)
				assert.Contains(t, err.Error(), "invalid log level")
				return
			}
			require.NoError(t, err)
			require.NotNil(t, logger)
			_ = logger.Sync()
		})
	}
}
