package telemetry

import (
	"context"
	"testing"
)

func TestInitDisabled(t *testing.T) {
	shutdown, err := Init(context.Background(), Config{Disable: true})
	if err != nil {
		t.Fatalf("Init error: %v", err)
	}
	if err := shutdown(context.Background()); err != nil {
		t.Errorf("shutdown error: %v", err)
	}
}

func TestInitStdoutFallback(t *testing.T) {
	t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", "")

	shutdown, err := Init(context.Background(), Config{
		ServiceName: "telemetry-test",
		SampleRatio: 0.5,
	})
	if err != nil {
		t.Fatalf("Init error: %v", err)
	}
	defer shutdown(context.Background())

	tracer := Tracer("telemetry-test")
	_, span := tracer.Start(context.Background(), "op")
	if !span.SpanContext().IsValid() {
		t.Error("expected a recording span from the installed provider")
	}
	End(span, nil)
}
