//go:build otelotlp

// Package observability bootstraps OpenTelemetry tracing for the
// analytics service. The default build compiles a no-op InitTracer;
// this implementation is selected with -tags otelotlp.
package observability

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.4.0"

	"userlytics/pkg/config"
	"userlytics/pkg/structlog"
)

// InitTracer installs a global OTLP tracer provider and returns its
// shutdown function. Exporter failures are logged, not fatal: tracing is
// never a reason to refuse to serve.
func InitTracer(serviceName string) func(context.Context) error {
	ctx := context.Background()

	endpoint := config.Get("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4318")
	environment := config.Get("ENVIRONMENT", "production")

	exporter, err := otlptracehttp.New(ctx,
		otlptracehttp.WithEndpoint(endpoint),
		otlptracehttp.WithInsecure(),
	)
	if err != nil {
		structlog.Warn("otlp exporter unavailable, tracing disabled", structlog.Fields{"error": err.Error()})
		return func(context.Context) error { return nil }
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceNameKey.String(serviceName),
			attribute.String("environment", environment),
		),
	)
	if err != nil {
		structlog.Warn("otel resource init failed, tracing disabled", structlog.Fields{"error": err.Error()})
		return func(context.Context) error { return nil }
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter,
			sdktrace.WithBatchTimeout(5*time.Second),
		),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.TraceIDRatioBased(0.1)),
	)
	otel.SetTracerProvider(tp)

	return func(ctx context.Context) error {
		ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		return tp.Shutdown(ctx)
	}
}
