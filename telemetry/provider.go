// Package telemetry wires OpenTelemetry tracing and metrics for audit runs.
//
// The engine records one span per run with child spans for each pipeline
// stage, and counters for findings, verdicts and tokens. Instruments come
// from whatever providers the caller installs; without any, the global
// no-op providers make every call free.
package telemetry

import (
	"context"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"os"

	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"go.opentelemetry.io/otel/trace"
)

// Exporter names accepted by NewTracerProvider.
const (
	ExporterNone   = "none"
	ExporterStdout = "stdout"
)

// InstrumentationName names the tracer and meter used by the engine.
const InstrumentationName = "github.com/zero-day-ai/aviator"

// ProviderOptions configures NewTracerProvider.
type ProviderOptions struct {
	ServiceName string
	Exporter    string

	// Writer receives stdout exporter output. Defaults to os.Stderr so span
	// dumps do not mix with command output.
	Writer io.Writer
	Logger *slog.Logger
}

// NewTracerProvider creates a TracerProvider for a run.
//
// With the stdout exporter spans are written as they complete using a
// SimpleSpanProcessor. With "none" the provider still creates valid,
// sampled spans so trace ids propagate to the triage service, but nothing
// is exported. The caller must Shutdown the provider.
func NewTracerProvider(ctx context.Context, opts ProviderOptions) (*sdktrace.TracerProvider, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceNameKey.String(opts.ServiceName),
		),
	)
	if err != nil {
		logger.Warn("failed to create resource, using default", "error", err)
		res = resource.Default()
	}

	providerOpts := []sdktrace.TracerProviderOption{sdktrace.WithResource(res)}

	switch opts.Exporter {
	case "", ExporterNone:
	case ExporterStdout:
		w := opts.Writer
		if w == nil {
			w = os.Stderr
		}
		exporter, err := stdouttrace.New(stdouttrace.WithWriter(w), stdouttrace.WithPrettyPrint())
		if err != nil {
			return nil, fmt.Errorf("failed to create stdout exporter: %w", err)
		}
		providerOpts = append(providerOpts, sdktrace.WithSpanProcessor(sdktrace.NewSimpleSpanProcessor(exporter)))
	default:
		return nil, fmt.Errorf("unknown trace exporter %q", opts.Exporter)
	}

	return sdktrace.NewTracerProvider(providerOpts...), nil
}

// ParentContext returns ctx carrying a remote parent span built from
// hex-encoded trace and span ids, so a run can join a trace started by the
// pipeline that invoked it. Invalid ids leave ctx unchanged.
func ParentContext(ctx context.Context, traceID, parentSpanID string) context.Context {
	if traceID == "" || parentSpanID == "" {
		return ctx
	}

	traceIDBytes, err := hex.DecodeString(traceID)
	if err != nil || len(traceIDBytes) != 16 {
		return ctx
	}

	spanIDBytes, err := hex.DecodeString(parentSpanID)
	if err != nil || len(spanIDBytes) != 8 {
		return ctx
	}

	var tid trace.TraceID
	copy(tid[:], traceIDBytes)

	var sid trace.SpanID
	copy(sid[:], spanIDBytes)

	parent := trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    tid,
		SpanID:     sid,
		TraceFlags: trace.FlagsSampled,
		Remote:     true,
	})
	return trace.ContextWithSpanContext(ctx, parent)
}
