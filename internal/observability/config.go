// Package observability holds the runtime's tracing and metrics for spec
// §6/§7's ambient concerns: OpenTelemetry span and Prometheus helpers for
// agent runs, LLM calls, tool executions, and HTTP requests. Only HTTP
// requests are instrumented, through HTTPMiddleware; nothing in the
// runtime calls the run, LLM-call, or tool helpers. Grounded on pkg/observability/manager.go
// (the config-driven Manager lifecycle), pkg/observability/tracer.go (the
// OTLP/stdout exporter choice), and pkg/observability/metrics.go (the
// per-subsystem CounterVec/HistogramVec layout), narrowed from Hector's much
// larger metric surface (RAG indexing, gRPC, sessions) down to the four
// subsystems this runtime actually has: agent runs, LLM calls, tool calls,
// and HTTP requests.
package observability

import "fmt"

// TracingConfig controls span export.
type TracingConfig struct {
	Enabled      bool    `yaml:"enabled"`
	Exporter     string  `yaml:"exporter"` // "otlp" or "stdout"; SetDefaults turns "" into "stdout"
	Endpoint     string  `yaml:"endpoint"`
	SamplingRate float64 `yaml:"sampling_rate"`
	ServiceName  string  `yaml:"service_name"`
}

// MetricsConfig controls the Prometheus registry and HTTP handler.
type MetricsConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Namespace string `yaml:"namespace"`
	Endpoint  string `yaml:"endpoint"`
}

// Config is the observability{} block (spec §6 ambient wiring).
type Config struct {
	Tracing TracingConfig `yaml:"tracing"`
	Metrics MetricsConfig `yaml:"metrics"`
}

// DefaultMetricsPath is used when MetricsConfig.Endpoint is unset.
const DefaultMetricsPath = "/metrics"

// SetDefaults fills unset fields with runtime defaults.
func (c *Config) SetDefaults() {
	if c.Tracing.ServiceName == "" {
		c.Tracing.ServiceName = "oversight"
	}
	if c.Tracing.SamplingRate <= 0 {
		c.Tracing.SamplingRate = 1.0
	}
	if c.Tracing.Exporter == "" {
		c.Tracing.Exporter = "stdout"
	}
	if c.Metrics.Namespace == "" {
		c.Metrics.Namespace = "oversight"
	}
	if c.Metrics.Endpoint == "" {
		c.Metrics.Endpoint = DefaultMetricsPath
	}
}

// Validate checks the config for internally-inconsistent values.
func (c *Config) Validate() error {
	if c.Tracing.Enabled {
		switch c.Tracing.Exporter {
		case "otlp", "stdout":
		default:
			return fmt.Errorf("unsupported tracing.exporter %q", c.Tracing.Exporter)
		}
		if c.Tracing.Exporter == "otlp" && c.Tracing.Endpoint == "" {
			return fmt.Errorf("tracing.endpoint is required for the otlp exporter")
		}
		if c.Tracing.SamplingRate < 0 || c.Tracing.SamplingRate > 1 {
			return fmt.Errorf("tracing.sampling_rate must be within [0, 1]")
		}
	}
	return nil
}
