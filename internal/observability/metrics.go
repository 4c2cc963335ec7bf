package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the Prometheus collectors for the runtime's four
// instrumented subsystems. Grounded on pkg/observability/metrics.go's
// per-subsystem CounterVec/HistogramVec layout, narrowed to agent/llm/tool/
// http since this runtime has no RAG indexer, session store, or gRPC
// surface to instrument.
type Metrics struct {
	registry *prometheus.Registry

	agentRuns    *prometheus.CounterVec
	agentRunDur  *prometheus.HistogramVec
	agentErrors  *prometheus.CounterVec
	agentActive  prometheus.Gauge
	llmCalls     *prometheus.CounterVec
	llmCallDur   *prometheus.HistogramVec
	llmTokensIn  *prometheus.CounterVec
	llmTokensOut *prometheus.CounterVec
	toolCalls    *prometheus.CounterVec
	toolCallDur  *prometheus.HistogramVec
	toolErrors   *prometheus.CounterVec
	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec
}

// NewMetrics builds a Metrics instance, or returns nil if disabled.
func NewMetrics(cfg *MetricsConfig) *Metrics {
	if cfg == nil || !cfg.Enabled {
		return nil
	}

	m := &Metrics{registry: prometheus.NewRegistry()}
	ns := cfg.Namespace

	m.agentRuns = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: ns, Subsystem: "agent", Name: "runs_total", Help: "Total number of agent runs started",
	}, []string{"agent_name"})
	m.agentRunDur = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: ns, Subsystem: "agent", Name: "run_duration_seconds", Help: "Agent run duration in seconds",
		Buckets: prometheus.ExponentialBuckets(0.1, 2, 12),
	}, []string{"agent_name"})
	m.agentErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: ns, Subsystem: "agent", Name: "errors_total", Help: "Total number of agent run errors",
	}, []string{"agent_name", "error_type"})
	m.agentActive = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: ns, Subsystem: "agent", Name: "active_runs", Help: "Number of runs currently in flight",
	})

	m.llmCalls = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: ns, Subsystem: "llm", Name: "calls_total", Help: "Total number of LLM generate calls",
	}, []string{"model"})
	m.llmCallDur = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: ns, Subsystem: "llm", Name: "call_duration_seconds", Help: "LLM call duration in seconds",
		Buckets: prometheus.ExponentialBuckets(0.1, 2, 12),
	}, []string{"model"})
	m.llmTokensIn = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: ns, Subsystem: "llm", Name: "tokens_input_total", Help: "Total input tokens consumed",
	}, []string{"model"})
	m.llmTokensOut = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: ns, Subsystem: "llm", Name: "tokens_output_total", Help: "Total output tokens generated",
	}, []string{"model"})

	m.toolCalls = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: ns, Subsystem: "tool", Name: "calls_total", Help: "Total number of tool invocations",
	}, []string{"tool_name"})
	m.toolCallDur = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: ns, Subsystem: "tool", Name: "call_duration_seconds", Help: "Tool execution duration in seconds",
		Buckets: prometheus.ExponentialBuckets(0.001, 2, 15),
	}, []string{"tool_name"})
	m.toolErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: ns, Subsystem: "tool", Name: "errors_total", Help: "Total number of tool execution errors",
	}, []string{"tool_name"})

	m.httpRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: ns, Subsystem: "http", Name: "requests_total", Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})
	m.httpDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: ns, Subsystem: "http", Name: "request_duration_seconds", Help: "HTTP request duration in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path"})

	m.registry.MustRegister(
		m.agentRuns, m.agentRunDur, m.agentErrors, m.agentActive,
		m.llmCalls, m.llmCallDur, m.llmTokensIn, m.llmTokensOut,
		m.toolCalls, m.toolCallDur, m.toolErrors,
		m.httpRequests, m.httpDuration,
	)
	return m
}

// Handler returns the Prometheus scrape endpoint handler.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte("metrics not enabled"))
		})
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// RecordAgentRunStart increments the active-runs gauge and the run counter.
func (m *Metrics) RecordAgentRunStart(agentName string) {
	if m == nil {
		return
	}
	m.agentRuns.WithLabelValues(agentName).Inc()
	m.agentActive.Inc()
}

// RecordAgentRunEnd records run duration and decrements active runs.
func (m *Metrics) RecordAgentRunEnd(agentName string, d time.Duration, err error) {
	if m == nil {
		return
	}
	m.agentRunDur.WithLabelValues(agentName).Observe(d.Seconds())
	m.agentActive.Dec()
	if err != nil {
		m.agentErrors.WithLabelValues(agentName, "run_error").Inc()
	}
}

// RecordLLMCall records one LLM generate call.
func (m *Metrics) RecordLLMCall(model string, d time.Duration, inputTokens, outputTokens int) {
	if m == nil {
		return
	}
	m.llmCalls.WithLabelValues(model).Inc()
	m.llmCallDur.WithLabelValues(model).Observe(d.Seconds())
	m.llmTokensIn.WithLabelValues(model).Add(float64(inputTokens))
	m.llmTokensOut.WithLabelValues(model).Add(float64(outputTokens))
}

// RecordToolCall records one tool execution.
func (m *Metrics) RecordToolCall(toolName string, d time.Duration, err error) {
	if m == nil {
		return
	}
	m.toolCalls.WithLabelValues(toolName).Inc()
	m.toolCallDur.WithLabelValues(toolName).Observe(d.Seconds())
	if err != nil {
		m.toolErrors.WithLabelValues(toolName).Inc()
	}
}

// RecordHTTPRequest records one completed HTTP request.
func (m *Metrics) RecordHTTPRequest(method, path string, status int, d time.Duration) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(method, path, http.StatusText(status)).Inc()
	m.httpDuration.WithLabelValues(method, path).Observe(d.Seconds())
}
