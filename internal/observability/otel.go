package observability

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploghttp"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/log"
	"go.opentelemetry.io/otel/log/global"
	"go.opentelemetry.io/otel/propagation"
	sdklog "go.opentelemetry.io/otel/sdk/log"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

const (
	serviceVersion = "0.1.0"
	exportTimeout  = 30 * time.Second
	maxQueueSize   = 2048
)

// Telemetry holds the providers installed by Setup.
type Telemetry struct {
	// LoggerProvider is nil when no exporter endpoint is configured.
	LoggerProvider log.LoggerProvider
	shutdownFuncs  []func(context.Context) error
}

// Shutdown flushes and stops every provider.
func (t *Telemetry) Shutdown(ctx context.Context) error {
	var err error
	for _, fn := range t.shutdownFuncs {
		err = errors.Join(err, fn(ctx))
	}
	t.shutdownFuncs = nil
	return err
}

// Setup installs the W3C trace-context propagator and, when endpoint is
// non-empty, OTLP/HTTP trace and log exporters.
func Setup(ctx context.Context, service, endpoint string) (*Telemetry, error) {
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	t := &Telemetry{}
	if endpoint == "" {
		return t, nil
	}

	res, err := resource.Merge(
		resource.Default(),
		resource.NewSchemaless(
			semconv.ServiceName(service),
			semconv.ServiceVersion(serviceVersion),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	traceExporter, err := otlptracehttp.New(ctx, otlptracehttp.WithEndpointURL(endpoint))
	if err != nil {
		return nil, fmt.Errorf("failed to create trace exporter: %w", err)
	}
	tracerProvider := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
		sdktrace.WithResource(res),
		sdktrace.WithBatcher(traceExporter,
			sdktrace.WithExportTimeout(exportTimeout),
			sdktrace.WithMaxQueueSize(maxQueueSize),
		),
	)
	otel.SetTracerProvider(tracerProvider)
	t.shutdownFuncs = append(t.shutdownFuncs, tracerProvider.Shutdown)

	logExporter, err := otlploghttp.New(ctx, otlploghttp.WithEndpointURL(endpoint))
	if err != nil {
		return t, errors.Join(fmt.Errorf("failed to create log exporter: %w", err), t.Shutdown(ctx))
	}
	loggerProvider := sdklog.NewLoggerProvider(
		sdklog.WithResource(res),
		sdklog.WithProcessor(sdklog.NewBatchProcessor(logExporter,
			sdklog.WithExportTimeout(exportTimeout),
			sdklog.WithMaxQueueSize(maxQueueSize),
		)),
	)
	global.SetLoggerProvider(loggerProvider)
	t.shutdownFuncs = append(t.shutdownFuncs, loggerProvider.Shutdown)
	t.LoggerProvider = loggerProvider

	return t, nil
}
