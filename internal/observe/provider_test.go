package observe

import (
	"context"
	"slices"
	"testing"

	"go.opentelemetry.io/otel"
)

func TestInitProvider_InstallsGlobals(t *testing.T) {
	prevTP, prevMP, prevProp := otel.GetTracerProvider(), otel.GetMeterProvider(), otel.GetTextMapPropagator()
	t.Cleanup(func() {
		otel.SetTracerProvider(prevTP)
		otel.SetMeterProvider(prevMP)
		otel.SetTextMapPropagator(prevProp)
	})

	shutdown, err := InitProvider(context.Background(), ProviderConfig{ServiceVersion: "test", SampleRatio: 7})
	if err != nil {
		t.Fatalf("InitProvider: %v", err)
	}

	fields := otel.GetTextMapPropagator().Fields()
	for _, want := range []string{"traceparent", "baggage"} {
		if !slices.Contains(fields, want) {
			t.Errorf("propagator fields = %v, missing %q", fields, want)
		}
	}

	// An out-of-range ratio falls back to sampling everything.
	_, span := StartSpan(context.Background(), "sampled")
	if !span.SpanContext().IsSampled() {
		t.Error("root span not sampled")
	}
	span.End()

	if err := shutdown(context.Background()); err != nil {
		t.Errorf("shutdown: %v", err)
	}
}
