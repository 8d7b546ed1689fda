package otel

import (
	"context"
	"testing"

	"go.opentelemetry.io/otel"
)

func TestNewProviders_EmptyEndpoint(t *testing.T) {
	ctx := context.Background()
	for _, endpoint := range []string{"", "   "} {
		p, err := NewProviders(ctx, Config{Endpoint: endpoint, ServiceName: "test-service"})
		if err != nil {
			t.Fatalf("NewProviders(%q): %v", endpoint, err)
		}
		if p.TracerProvider == nil || p.MeterProvider == nil || p.LoggerProvider == nil {
			t.Fatalf("providers = %+v", p)
		}
		if err := p.Shutdown(ctx); err != nil {
			t.Errorf("Shutdown: %v", err)
		}
	}
}

func TestNewProviders_InvalidEndpoint(t *testing.T) {
	for _, endpoint := range []string{"http://", "http://[invalid"} {
		if _, err := NewProviders(context.Background(), Config{Endpoint: endpoint}); err == nil {
			t.Errorf("NewProviders(%q) should fail", endpoint)
		}
	}
}

func TestParseEndpoint(t *testing.T) {
	cases := []struct {
		endpoint string
		override bool
		host     string
		insecure bool
	}{
		{"localhost:4317", false, "localhost:4317", true},
		{"http://collector:4317", false, "collector:4317", true},
		{"https://collector:4317/v1/traces", false, "collector:4317", false},
		{"https://collector:4317", true, "collector:4317", true},
	}
	for _, c := range cases {
		tg, err := parseEndpoint(c.endpoint, c.override)
		if err != nil {
			t.Fatalf("parseEndpoint(%q): %v", c.endpoint, err)
		}
		if tg.host != c.host || tg.insecure != c.insecure {
			t.Errorf("parseEndpoint(%q, %v) = %+v", c.endpoint, c.override, tg)
		}
	}
}

func TestSetGlobal(t *testing.T) {
	p, err := NewProviders(context.Background(), Config{})
	if err != nil {
		t.Fatalf("NewProviders: %v", err)
	}
	prevT, prevM := otel.GetTracerProvider(), otel.GetMeterProvider()
	t.Cleanup(func() {
		otel.SetTracerProvider(prevT)
		otel.SetMeterProvider(prevM)
	})
	p.SetGlobal()
	if otel.GetTracerProvider() != p.TracerProvider {
		t.Error("global tracer provider not set")
	}
	if otel.GetMeterProvider() != p.MeterProvider {
		t.Error("global meter provider not set")
	}
}
