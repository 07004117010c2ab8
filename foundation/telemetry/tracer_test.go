package telemetry_test

import (
	"context"
	"testing"

	"github.com/hamidoujand/postgres-agent/foundation/telemetry"
	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

func TestInitTracer(t *testing.T) {
	shutdown, err := telemetry.InitTracer(context.Background(), "postgres-agent", "")
	if err != nil {
		t.Fatalf("expected a tracer without an endpoint: %s", err)
	}
	shutdown()

	if _, ok := otel.GetTracerProvider().(*sdktrace.TracerProvider); ok {
		t.Fatal("expected no sdk provider to be installed without an endpoint")
	}

	shutdown, err = telemetry.InitTracer(context.Background(), "postgres-agent", "localhost:4318")
	if err != nil {
		t.Fatalf("expected a tracer for the endpoint: %s", err)
	}
	defer shutdown()

	if _, ok := otel.GetTracerProvider().(*sdktrace.TracerProvider); !ok {
		t.Fatalf("expected an sdk provider, got %T", otel.GetTracerProvider())
	}
}
