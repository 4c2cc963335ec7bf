package observability_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kadirpekel/oversight/internal/observability"
)

func TestConfig_DefaultsAndValidate(t *testing.T) {
	cfg := &observability.Config{}
	cfg.SetDefaults()
	assert.Equal(t, "oversight", cfg.Tracing.ServiceName)
	assert.Equal(t, "stdout", cfg.Tracing.Exporter)
	assert.Equal(t, "/metrics", cfg.Metrics.Endpoint)
	assert.NoError(t, cfg.Validate())
}

func TestConfig_RejectsOTLPWithoutEndpoint(t *testing.T) {
	cfg := &observability.Config{Tracing: observability.TracingConfig{Enabled: true, Exporter: "otlp"}}
	cfg.SetDefaults()
	assert.Error(t, cfg.Validate())
}

func TestNewManager_DisabledIsNoop(t *testing.T) {
	m, err := observability.NewManager(context.Background(), nil)
	require.NoError(t, err)
	assert.Nil(t, m.Tracer())
	assert.Nil(t, m.Metrics())
}

func TestNewManager_MetricsEnabled(t *testing.T) {
	cfg := &observability.Config{Metrics: observability.MetricsConfig{Enabled: true}}
	m, err := observability.NewManager(context.Background(), cfg)
	require.NoError(t, err)
	require.NotNil(t, m.Metrics())

	m.Metrics().RecordToolCall("ping", 5*time.Millisecond, nil)

	ts := httptest.NewServer(m.Metrics().Handler())
	defer ts.Close()
	resp, err := http.Get(ts.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestHTTPMiddleware_RecordsRequest(t *testing.T) {
	cfg := &observability.Config{Metrics: observability.MetricsConfig{Enabled: true}}
	m, err := observability.NewManager(context.Background(), cfg)
	require.NoError(t, err)

	handler := observability.HTTPMiddleware(m.Tracer(), m.Metrics())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	req := httptest.NewRequest(http.MethodGet, "/thing", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusTeapot, rec.Code)
}
