package telemetry

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"

	"study-buddy-rag/internal/config"
)

const instrumentationName = "study-buddy-rag"

// Tracer returns the tracer used for pipeline spans. Until InitTracer
// installs a provider the global no-op provider is used.
func Tracer() trace.Tracer {
	return otel.Tracer(instrumentationName)
}

// InitTracer exports spans over OTLP/gRPC when an endpoint is configured.
// The returned function flushes and shuts the provider down.
func InitTracer(ctx context.Context, serviceName string, cfg config.TelemetryConfig) (func(), error) {
	if cfg.OTLPEndpoint == "" {
		log.Debug().Msg("Tracing disabled, no OTLP endpoint configured")
		return func() {}, nil
	}

	exporter, err := otlptracegrpc.New(ctx,
		otlptracegrpc.WithEndpoint(cfg.OTLPEndpoint),
		otlptracegrpc.WithInsecure(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create OTLP exporter: %w", err)
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(attribute.String("service.name", serviceName)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.TraceIDRatioBased(cfg.SampleRatio)),
	)
	otel.SetTracerProvider(tp)
	log.Info().Str("service", serviceName).Str("endpoint", cfg.OTLPEndpoint).Msg("OpenTelemetry tracer initialized")

	return func() {
		if err := tp.Shutdown(context.Background()); err != nil {
			log.Error().Err(err).Msg("Failed to shutdown tracer")
		}
	}, nil
}
