package telemetry

import (
	"context"
	"testing"

	"study-buddy-rag/internal/config"
)

func TestInitTracerWithoutEndpointIsNoop(t *testing.T) {
	shutdown, err := InitTracer(context.Background(), "test", config.TelemetryConfig{SampleRatio: 1})
	if err != nil {
		t.Fatal(err)
	}
	shutdown()

	_, span := Tracer().Start(context.Background(), "noop")
	defer span.End()
	if span.SpanContext().IsValid() {
		t.Fatal("expected a non-recording span without a provider")
	}
}
