// Package telemetry wires up the process-wide OpenTelemetry tracer and
// meter providers used for ambient observability: the RPC dispatcher's
// request metrics and the document summarizer's spans and metrics.
// Exporters use the stdout exporter format and write to the writer
// passed to Init (stderr by default), rather than a collector endpoint.
package telemetry

import (
	"context"
	"io"
	"os"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"go.opentelemetry.io/otel/trace"
)

var (
	once           sync.Once
	tracerProvider trace.TracerProvider = otel.GetTracerProvider()
	meterProvider  metric.MeterProvider = otel.GetMeterProvider()
)

// Init installs stdout-backed tracer and meter providers as the global
// OTel providers. w receives the exported spans and metrics (a muted
// io.Discard in tests). Init is idempotent; only the first call takes
// effect, matching the "initialised once at startup, read-only
// thereafter" resource model (spec §5).
func Init(ctx context.Context, serviceName string, w io.Writer) (shutdown func(context.Context) error) {
	var shutdownFns []func(context.Context) error

	once.Do(func() {
		if w == nil {
			w = os.Stderr
		}

		res, err := resource.Merge(resource.Default(), resource.NewSchemaless(
			semconv.ServiceName(serviceName),
		))
		if err != nil {
			res = resource.Default()
		}

		traceExporter, err := stdouttrace.New(stdouttrace.WithWriter(w), stdouttrace.WithoutTimestamps())
		if err == nil {
			tp := sdktrace.NewTracerProvider(
				sdktrace.WithBatcher(traceExporter),
				sdktrace.WithResource(res),
			)
			otel.SetTracerProvider(tp)
			tracerProvider = tp
			shutdownFns = append(shutdownFns, tp.Shutdown)
		}

		metricExporter, err := stdoutmetric.New(stdoutmetric.WithWriter(w))
		if err == nil {
			mp := sdkmetric.NewMeterProvider(
				sdkmetric.WithReader(sdkmetric.NewPeriodicReader(metricExporter)),
				sdkmetric.WithResource(res),
			)
			otel.SetMeterProvider(mp)
			meterProvider = mp
			shutdownFns = append(shutdownFns, mp.Shutdown)
		}
	})

	return func(ctx context.Context) error {
		var lastErr error
		for _, fn := range shutdownFns {
			if err := fn(ctx); err != nil {
				lastErr = err
			}
		}
		return lastErr
	}
}

// Tracer returns a named tracer from the installed provider (or the
// global no-op provider if Init was never called).
func Tracer(name string) trace.Tracer {
	return tracerProvider.Tracer(name)
}

// Meter returns a named meter from the installed provider (or the
// global no-op provider if Init was never called).
func Meter(name string) metric.Meter {
	return meterProvider.Meter(name)
}
