package observability

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

var noopTracer = noop.NewTracerProvider().Tracer("noop")

// Span names for the runtime's four instrumented subsystems.
const (
	SpanAgentRun      = "agent.run"
	SpanLLMCall       = "llm.call"
	SpanToolExecution = "tool.execution"
	SpanHTTPRequest   = "http.request"
)

// Attribute keys shared by spans and structured logs.
const (
	AttrAgentName  = "agent.name"
	AttrToolName   = "tool.name"
	AttrLLMModel   = "llm.model"
	AttrLLMTokens  = "llm.tokens"
	AttrErrorType  = "error.type"
	AttrHTTPMethod = "http.method"
	AttrHTTPPath   = "http.path"
	AttrHTTPStatus = "http.status_code"
)

// Tracer wraps an OpenTelemetry TracerProvider with the runtime's span
// helpers. AttrErrorType names a span attribute key for spec §7's error
// taxonomy; none of the helpers here set it.
type Tracer struct {
	provider *sdktrace.TracerProvider
	tracer   trace.Tracer
}

// NewTracer builds a Tracer from config, or returns nil if tracing is
// disabled. Grounded on pkg/observability/tracer.go's InitGlobalTracer,
// generalized to also support the debug-friendly stdout exporter the
// teacher wires via pkg/observability/manager.go's debug-exporter path.
func NewTracer(ctx context.Context, cfg *TracingConfig) (*Tracer, error) {
	if cfg == nil || !cfg.Enabled {
		return nil, nil
	}

	var exporter sdktrace.SpanExporter
	var err error
	switch cfg.Exporter {
	case "otlp":
		exporter, err = otlptracegrpc.New(ctx,
			otlptracegrpc.WithEndpoint(cfg.Endpoint),
			otlptracegrpc.WithInsecure(),
		)
	default:
		exporter, err = stdouttrace.New(stdouttrace.WithPrettyPrint())
	}
	if err != nil {
		return nil, fmt.Errorf("create %s span exporter: %w", cfg.Exporter, err)
	}

	res, err := resource.New(ctx, resource.WithAttributes(semconv.ServiceName(cfg.ServiceName)))
	if err != nil {
		return nil, fmt.Errorf("build resource: %w", err)
	}

	provider := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithSampler(sdktrace.TraceIDRatioBased(cfg.SamplingRate)),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(provider)

	return &Tracer{provider: provider, tracer: provider.Tracer(cfg.ServiceName)}, nil
}

// Shutdown flushes and stops the exporter.
func (t *Tracer) Shutdown(ctx context.Context) error {
	if t == nil || t.provider == nil {
		return nil
	}
	return t.provider.Shutdown(ctx)
}

// StartAgentRun starts a span for one engine run (spec §4).
func (t *Tracer) StartAgentRun(ctx context.Context, agentName, threadID, runID string) (context.Context, trace.Span) {
	return t.start(ctx, SpanAgentRun, attribute.String(AttrAgentName, agentName),
		attribute.String("thread.id", threadID), attribute.String("run.id", runID))
}

// StartLLMCall starts a span for one LLM generation call.
func (t *Tracer) StartLLMCall(ctx context.Context, model string) (context.Context, trace.Span) {
	return t.start(ctx, SpanLLMCall, attribute.String(AttrLLMModel, model))
}

// StartToolExecution starts a span for one tool dispatch (spec §4.3).
func (t *Tracer) StartToolExecution(ctx context.Context, toolName string) (context.Context, trace.Span) {
	return t.start(ctx, SpanToolExecution, attribute.String(AttrToolName, toolName))
}

func (t *Tracer) start(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	if t == nil || t.tracer == nil {
		return noopTracer.Start(ctx, name, trace.WithAttributes(attrs...))
	}
	return t.tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}
