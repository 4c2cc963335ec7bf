package observability

import (
	"context"
	"fmt"
)

// Manager owns the lifecycle of the tracer and metrics registry, handing
// back no-op-safe nil components when observability is disabled. Grounded
// on pkg/observability/manager.go's Manager.
type Manager struct {
	cfg     *Config
	tracer  *Tracer
	metrics *Metrics
}

// NewManager builds a Manager from config, initializing whichever of
// tracing/metrics is enabled.
func NewManager(ctx context.Context, cfg *Config) (*Manager, error) {
	if cfg == nil {
		return &Manager{}, nil
	}
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid observability config: %w", err)
	}

	m := &Manager{cfg: cfg}
	tracer, err := NewTracer(ctx, &cfg.Tracing)
	if err != nil {
		return nil, fmt.Errorf("init tracer: %w", err)
	}
	m.tracer = tracer
	m.metrics = NewMetrics(&cfg.Metrics)
	return m, nil
}

// Tracer returns the tracer, or nil if tracing is disabled.
func (m *Manager) Tracer() *Tracer {
	if m == nil {
		return nil
	}
	return m.tracer
}

// Metrics returns the metrics registry, or nil if metrics are disabled.
func (m *Manager) Metrics() *Metrics {
	if m == nil {
		return nil
	}
	return m.metrics
}

// MetricsEndpoint returns the configured scrape path.
func (m *Manager) MetricsEndpoint() string {
	if m == nil || m.cfg == nil || m.cfg.Metrics.Endpoint == "" {
		return DefaultMetricsPath
	}
	return m.cfg.Metrics.Endpoint
}

// Shutdown flushes the tracer, if any.
func (m *Manager) Shutdown(ctx context.Context) error {
	if m == nil || m.tracer == nil {
		return nil
	}
	return m.tracer.Shutdown(ctx)
}
