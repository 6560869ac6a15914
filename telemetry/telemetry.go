package telemetry

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// instruments holds the metric instruments for audit runs. They are created
// once and reused for every run.
type instruments struct {
	// findings counts findings per pipeline stage (eligible, filtered,
	// included, skipped)
	findings metric.Int64Counter

	// verdicts counts triage verdicts by status and outcome
	verdicts metric.Int64Counter

	// tokens counts model tokens reported by the triage service
	tokens metric.Int64Counter

	// runDuration records run duration in milliseconds
	runDuration metric.Float64Histogram
}

// Telemetry records spans and metrics for audit runs. The zero value is not
// usable; use New or Noop.
type Telemetry struct {
	tracer trace.Tracer
	inst   *instruments
}

// New creates instruments from the given providers. Nil providers fall back
// to the global ones.
func New(tp trace.TracerProvider, mp metric.MeterProvider) (*Telemetry, error) {
	if tp == nil {
		tp = otel.GetTracerProvider()
	}
	if mp == nil {
		mp = otel.GetMeterProvider()
	}

	inst, err := newInstruments(mp.Meter(InstrumentationName))
	if err != nil {
		return nil, err
	}

	return &Telemetry{
		tracer: tp.Tracer(InstrumentationName),
		inst:   inst,
	}, nil
}

// Noop returns a Telemetry backed by the global providers, which are no-ops
// unless the process installed real ones.
func Noop() *Telemetry {
	t, err := New(nil, nil)
	if err != nil {
		// global no-op meters never fail
		panic(err)
	}
	return t
}

func newInstruments(meter metric.Meter) (*instruments, error) {
	inst := &instruments{}
	var err error

	inst.findings, err = meter.Int64Counter(
		"aviator.findings",
		metric.WithDescription("Findings seen per pipeline stage"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, fmt.Errorf("create findings counter: %w", err)
	}

	inst.verdicts, err = meter.Int64Counter(
		"aviator.verdicts",
		metric.WithDescription("Triage verdicts received"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, fmt.Errorf("create verdicts counter: %w", err)
	}

	inst.tokens, err = meter.Int64Counter(
		"aviator.tokens",
		metric.WithDescription("Model tokens consumed by triage"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, fmt.Errorf("create tokens counter: %w", err)
	}

	inst.runDuration, err = meter.Float64Histogram(
		"aviator.run.duration",
		metric.WithDescription("Audit run duration in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, fmt.Errorf("create duration histogram: %w", err)
	}

	return inst, nil
}

// Start begins a span named name.
func (t *Telemetry) Start(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}

// End finishes span, marking it failed when err is non-nil.
func End(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}

// Findings adds n findings at the given pipeline stage.
func (t *Telemetry) Findings(ctx context.Context, stage string, n int, attrs ...attribute.KeyValue) {
	if n == 0 {
		return
	}
	attrs = append(attrs, attribute.String("stage", stage))
	t.inst.findings.Add(ctx, int64(n), metric.WithAttributes(attrs...))
}

// Verdict counts one verdict and its token usage.
func (t *Telemetry) Verdict(ctx context.Context, status, outcome, tier string, inputTokens, outputTokens int64) {
	t.inst.verdicts.Add(ctx, 1, metric.WithAttributes(
		attribute.String("status", status),
		attribute.String("outcome", outcome),
		attribute.String("tier", tier),
	))
	if inputTokens > 0 {
		t.inst.tokens.Add(ctx, inputTokens, metric.WithAttributes(attribute.String("direction", "input")))
	}
	if outputTokens > 0 {
		t.inst.tokens.Add(ctx, outputTokens, metric.WithAttributes(attribute.String("direction", "output")))
	}
}

// Run records the duration and final status of a run.
func (t *Telemetry) Run(ctx context.Context, status string, d time.Duration) {
	t.inst.runDuration.Record(ctx, float64(d.Milliseconds()), metric.WithAttributes(
		attribute.String("status", status),
	))
}
