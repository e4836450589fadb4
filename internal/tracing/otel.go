// Package tracing provides distributed tracing support using OpenTelemetry.
package tracing

import (
	"context"
	"os"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
)

// OTelConfig holds OpenTelemetry configuration
type OTelConfig struct {
	ServiceName    string
	ServiceVersion string
	Environment    string
	Enabled        bool
}

// Global tracer
var globalTracer trace.Tracer

// InitOTel initializes OpenTelemetry with the given configuration.
// Returns a shutdown function that should be called on application exit.
func InitOTel(cfg OTelConfig) (func(context.Context) error, error) {
	if !cfg.Enabled {
		// Return no-op shutdown
		return func(context.Context) error { return nil }, nil
	}

	// Create stdout exporter for now (can be replaced with OTLP exporter)
	exporter, err := stdouttrace.New(
		stdouttrace.WithWriter(os.Stderr),
		stdouttrace.WithPrettyPrint(),
	)
	if err != nil {
		return nil, err
	}

	// Create resource with service information
	res, err := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName(cfg.ServiceName),
			semconv.ServiceVersion(cfg.ServiceVersion),
			attribute.String("environment", cfg.Environment),
		),
	)
	if err != nil {
		return nil, err
	}

	// Create tracer provider
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
	)

	// Set global tracer provider
	otel.SetTracerProvider(tp)

	// Create global tracer
	globalTracer = tp.Tracer(cfg.ServiceName)

	// Return shutdown function
	return func(ctx context.Context) error {
		ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		return tp.Shutdown(ctx)
	}, nil
}

// GetTracer returns the global tracer
func GetTracer() trace.Tracer {
	if globalTracer == nil {
		// Return no-op tracer if not initialized
		return otel.Tracer("noop")
	}
	return globalTracer
}

// SpanKind represents the role of a span
type SpanKind string

// Span kinds for categorizing trace spans
const (
	SpanKindIngest   SpanKind = "ingest"
	SpanKindAPI      SpanKind = "api"
	SpanKindMiner    SpanKind = "miner"
	SpanKindInternal SpanKind = "internal"
)

// IngestSpan starts a new span for an ingestion operation (parse, classify,
// extract, mine, assemble, store).
func IngestSpan(ctx context.Context, stage string) (context.Context, trace.Span) {
	return GetTracer().Start(ctx, "logwarden.ingest."+stage,
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.String("logwarden.ingest.stage", stage),
			attribute.String("logwarden.span.kind", string(SpanKindIngest)),
		),
	)
}

// APISpan starts a new span for an inbound API call
func APISpan(ctx context.Context, method, path string) (context.Context, trace.Span) {
	return GetTracer().Start(ctx, "logwarden.api."+method,
		trace.WithSpanKind(trace.SpanKindServer),
		trace.WithAttributes(
			attribute.String("http.method", method),
			attribute.String("http.url", path),
			attribute.String("logwarden.span.kind", string(SpanKindAPI)),
		),
	)
}

// MinerSpan starts a new span for a template miner operation
func MinerSpan(ctx context.Context, operation string) (context.Context, trace.Span) {
	return GetTracer().Start(ctx, "logwarden.miner."+operation,
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.String("logwarden.miner.operation", operation),
			attribute.String("logwarden.span.kind", string(SpanKindMiner)),
		),
	)
}

// AddAttributes adds arbitrary key/value attributes to a span.
func AddAttributes(span trace.Span, attrs map[string]interface{}) {
	for k, v := range attrs {
		switch val := v.(type) {
		case string:
			span.SetAttributes(attribute.String("logwarden.attr."+k, val))
		case int:
			span.SetAttributes(attribute.Int("logwarden.attr."+k, val))
		case int64:
			span.SetAttributes(attribute.Int64("logwarden.attr."+k, val))
		case float64:
			span.SetAttributes(attribute.Float64("logwarden.attr."+k, val))
		case bool:
			span.SetAttributes(attribute.Bool("logwarden.attr."+k, val))
		}
	}
}

// RecordError records an error on the span
func RecordError(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetAttributes(attribute.Bool("error", true))
	}
}

// SetSuccess marks the span as successful
func SetSuccess(span trace.Span) {
	span.SetAttributes(attribute.Bool("logwarden.success", true))
}

// SetResult records the result shape of an ingestion or query operation
func SetResult(span trace.Span, resultType string, itemCount int) {
	span.SetAttributes(
		attribute.String("logwarden.result.type", resultType),
		attribute.Int("logwarden.result.count", itemCount),
	)
}

// SpanTraceInfo derives a TraceInfo from the active OTel span in ctx, for
// callers (audit logging, HTTP response headers) that want the real
// OTel-assigned trace/span IDs rather than the context-propagated ones from
// WithTraceInfo. Falls back to the context-propagated TraceInfo when ctx
// carries no live span.
func SpanTraceInfo(ctx context.Context) *TraceInfo {
	span := trace.SpanFromContext(ctx)
	if span == nil || !span.SpanContext().IsValid() {
		return FromContext(ctx)
	}
	sc := span.SpanContext()
	return &TraceInfo{
		TraceID: sc.TraceID().String(),
		SpanID:  sc.SpanID().String(),
	}
}
