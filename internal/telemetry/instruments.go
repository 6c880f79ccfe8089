package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const (
	apiScopeName       = "github.com/morgaesis/GitHub-Migrator/github"
	reconcileScopeName = "github.com/morgaesis/GitHub-Migrator/reconcile"
)

// API records spans and counters for outbound GitHub calls.
// The zero value is not usable; create one with NewAPI.
type API struct {
	tracer   trace.Tracer
	calls    metric.Int64Counter
	retries  metric.Int64Counter
	waits    metric.Int64Counter
	errs     metric.Int64Counter
	duration metric.Float64Histogram
}

// NewAPI builds API instruments from the global providers. When
// telemetry is disabled these are no-ops.
func NewAPI() *API {
	m := otel.Meter(apiScopeName)
	calls, _ := m.Int64Counter("ghmigrate.api.calls",
		metric.WithDescription("GitHub API operations executed"),
	)
	retries, _ := m.Int64Counter("ghmigrate.api.retries",
		metric.WithDescription("GitHub API attempts retried after a transient error"),
	)
	waits, _ := m.Int64Counter("ghmigrate.api.rate_limit_waits",
		metric.WithDescription("Times a call waited for a rate limit reset"),
	)
	errs, _ := m.Int64Counter("ghmigrate.api.errors",
		metric.WithDescription("GitHub API operations that failed after retries"),
	)
	duration, _ := m.Float64Histogram("ghmigrate.api.duration",
		metric.WithDescription("GitHub API operation duration including retries and waits"),
		metric.WithUnit("ms"),
	)
	return &API{
		tracer:   otel.Tracer(apiScopeName),
		calls:    calls,
		retries:  retries,
		waits:    waits,
		errs:     errs,
		duration: duration,
	}
}

// Start opens a span for the named operation. The returned func ends it.
func (a *API) Start(ctx context.Context, op string, attrs ...attribute.KeyValue) (context.Context, func(error)) {
	all := append([]attribute.KeyValue{attribute.String("github.operation", op)}, attrs...)
	ctx, span := a.tracer.Start(ctx, "github."+op,
		trace.WithAttributes(all...),
		trace.WithSpanKind(trace.SpanKindClient),
	)
	a.calls.Add(ctx, 1, metric.WithAttributes(all...))
	start := time.Now()
	return ctx, func(err error) {
		a.duration.Record(ctx, float64(time.Since(start).Milliseconds()), metric.WithAttributes(all...))
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			a.errs.Add(ctx, 1, metric.WithAttributes(all...))
		}
		span.End()
	}
}

// Retry counts one transient-error retry of op.
func (a *API) Retry(ctx context.Context, op string) {
	a.retries.Add(ctx, 1, metric.WithAttributes(attribute.String("github.operation", op)))
}

// RateLimitWait counts one rate-limit wait of op.
func (a *API) RateLimitWait(ctx context.Context, op string) {
	a.waits.Add(ctx, 1, metric.WithAttributes(attribute.String("github.operation", op)))
}

// Decisions counts reconcile decisions by entity type and kind.
type Decisions struct {
	counter metric.Int64Counter
}

// NewDecisions builds the decision counter from the global meter provider.
func NewDecisions() *Decisions {
	c, _ := otel.Meter(reconcileScopeName).Int64Counter("ghmigrate.reconcile.decisions",
		metric.WithDescription("Reconcile decisions by entity type and outcome"),
	)
	return &Decisions{counter: c}
}

// Record counts one decision.
func (d *Decisions) Record(ctx context.Context, entity, kind string) {
	d.counter.Add(ctx, 1, metric.WithAttributes(
		attribute.String("ghmigrate.entity", entity),
		attribute.String("ghmigrate.decision", kind),
	))
}
