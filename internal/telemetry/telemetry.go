// Package telemetry exports spans and counters of a migration run through
// OpenTelemetry. It stays off unless GHMIGRATE_OTEL_ENABLED=true.
//
//	GHMIGRATE_OTEL_ENABLED=true      record spans and metrics
//	GHMIGRATE_OTEL_STDOUT=true       print them to stdout
//	OTEL_EXPORTER_OTLP_ENDPOINT=...  push metrics over OTLP/HTTP (host:port or URL)
//
// Enabled without an exporter, spans and metrics are recorded and dropped.
package telemetry

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/sdk/resource"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
)

const serviceName = "ghmigrate"

// Settings selects what is recorded and where it goes.
type Settings struct {
	Enabled      bool
	Stdout       bool
	OTLPEndpoint string
	// MetricInterval is the push period of every metric exporter.
	MetricInterval time.Duration
}

// SettingsFromEnv reads Settings from the variables listed above.
// OTEL_EXPORTER_OTLP_METRICS_ENDPOINT wins over the generic endpoint.
func SettingsFromEnv() Settings {
	endpoint := os.Getenv("OTEL_EXPORTER_OTLP_METRICS_ENDPOINT")
	if endpoint == "" {
		endpoint = os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")
	}
	return Settings{
		Enabled:        os.Getenv("GHMIGRATE_OTEL_ENABLED") == "true",
		Stdout:         os.Getenv("GHMIGRATE_OTEL_STDOUT") == "true",
		OTLPEndpoint:   endpoint,
		MetricInterval: 30 * time.Second,
	}
}

// flush holds the shutdown funcs of the installed providers.
var flush []func(context.Context) error

// Init installs the global tracer and meter providers for a run of the
// given version. Disabled settings install no-op providers.
func Init(ctx context.Context, version string, s Settings) error {
	if !s.Enabled {
		otel.SetTracerProvider(tracenoop.NewTracerProvider())
		otel.SetMeterProvider(metricnoop.NewMeterProvider())
		return nil
	}

	res := resource.NewSchemaless(semconv.ServiceName(serviceName), semconv.ServiceVersion(version))
	traceOpts := []sdktrace.TracerProviderOption{sdktrace.WithResource(res)}
	metricOpts := []sdkmetric.Option{sdkmetric.WithResource(res)}
	push := func(exp sdkmetric.Exporter) {
		metricOpts = append(metricOpts, sdkmetric.WithReader(
			sdkmetric.NewPeriodicReader(exp, sdkmetric.WithInterval(s.MetricInterval))))
	}

	if s.Stdout {
		spans, err := stdouttrace.New(stdouttrace.WithPrettyPrint())
		if err != nil {
			return fmt.Errorf("telemetry: stdout spans: %w", err)
		}
		traceOpts = append(traceOpts, sdktrace.WithBatcher(spans))
		metrics, err := stdoutmetric.New()
		if err != nil {
			return fmt.Errorf("telemetry: stdout metrics: %w", err)
		}
		push(metrics)
	}
	if s.OTLPEndpoint != "" {
		exp, err := otlpMetrics(ctx, s.OTLPEndpoint)
		if err != nil {
			return fmt.Errorf("telemetry: otlp metrics: %w", err)
		}
		push(exp)
	}

	tp := sdktrace.NewTracerProvider(traceOpts...)
	mp := sdkmetric.NewMeterProvider(metricOpts...)
	otel.SetTracerProvider(tp)
	otel.SetMeterProvider(mp)
	flush = []func(context.Context) error{tp.Shutdown, mp.Shutdown}
	return nil
}

// otlpMetrics dials endpoint, a full URL or a plaintext host:port.
func otlpMetrics(ctx context.Context, endpoint string) (sdkmetric.Exporter, error) {
	if strings.Contains(endpoint, "://") {
		return otlpmetrichttp.New(ctx, otlpmetrichttp.WithEndpointURL(endpoint))
	}
	return otlpmetrichttp.New(ctx, otlpmetrichttp.WithEndpoint(endpoint), otlpmetrichttp.WithInsecure())
}

// Shutdown pushes what is still buffered and stops the providers.
func Shutdown(ctx context.Context) error {
	var errs []error
	for _, fn := range flush {
		errs = append(errs, fn(ctx))
	}
	flush = nil
	return errors.Join(errs...)
}
