package otel

import (
	"context"
	"strings"
	"testing"
)

func TestParseHeaders(t *testing.T) {
	headers := ParseHeaders(" api-key = secret ,broken, =skip,tenant=burn")
	if len(headers) != 2 || headers["api-key"] != "secret" || headers["tenant"] != "burn" {
		t.Fatalf("unexpected headers: %v", headers)
	}
}

func TestInitValidates(t *testing.T) {
	if _, err := Init(context.Background(), Config{}); err == nil {
		t.Fatalf("expected missing service name error")
	}
	if _, err := Init(context.Background(), Config{ServiceName: "settled", SampleRatio: 2}); err == nil {
		t.Fatalf("expected sample ratio error")
	}
}

func TestInitWithoutExporters(t *testing.T) {
	providers, err := Init(context.Background(), Config{ServiceName: "settled"})
	if err != nil {
		t.Fatalf("init: %v", err)
	}
	if providers.Tracer != nil || providers.Meter != nil {
		t.Fatalf("expected no providers, got %+v", providers)
	}
	if err := providers.Shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
}

func TestResourceCarriesEngine(t *testing.T) {
	res, err := Resource(Config{ServiceName: "settled", Environment: "dev", Engine: "brn1engine"})
	if err != nil {
		t.Fatalf("resource: %v", err)
	}
	value, ok := res.Set().Value(EngineAttribute)
	if !ok || value.AsString() != "brn1engine" {
		t.Fatalf("engine attribute missing: %v", res.Attributes())
	}
}

func TestSampler(t *testing.T) {
	if desc := Sampler(0).Description(); !strings.Contains(desc, "AlwaysOnSampler") {
		t.Fatalf("unexpected sampler %q", desc)
	}
	if desc := Sampler(0.25).Description(); !strings.Contains(desc, "TraceIDRatioBased") {
		t.Fatalf("unexpected sampler %q", desc)
	}
}
