package observe

import (
	"context"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
)

func restoreGlobalProviders(t *testing.T) {
	t.Helper()
	mp, tp := otel.GetMeterProvider(), otel.GetTracerProvider()
	t.Cleanup(func() {
		otel.SetMeterProvider(mp)
		otel.SetTracerProvider(tp)
	})
}

func TestInitProvider(t *testing.T) {
	restoreGlobalProviders(t)
	ctx := context.Background()

	reg := prometheus.NewRegistry()
	shutdown, err := InitProvider(ctx, ProviderConfig{ServiceVersion: "test", Registerer: reg})
	if err != nil {
		t.Fatalf("InitProvider: %v", err)
	}

	counter, err := otel.Meter("observe-test").Int64Counter("phoneval.test.requests")
	if err != nil {
		t.Fatalf("Int64Counter: %v", err)
	}
	counter.Add(ctx, 3)

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather: %v", err)
	}
	var sawCounter, sawService bool
	for _, f := range families {
		if strings.Contains(f.GetName(), "phoneval_test_requests") {
			sawCounter = true
		}
		for _, m := range f.GetMetric() {
			for _, l := range m.GetLabel() {
				if l.GetName() == "service_name" && l.GetValue() == "phoneval" {
					sawService = true
				}
			}
		}
	}
	if !sawCounter {
		t.Error("counter not exported to the registry")
	}
	if !sawService {
		t.Error("service_name=phoneval not exported")
	}

	if err := shutdown(ctx); err != nil {
		t.Errorf("shutdown: %v", err)
	}
}

func TestInitProvider_Repeated(t *testing.T) {
	restoreGlobalProviders(t)
	ctx := context.Background()
	for i := range 2 {
		shutdown, err := InitProvider(ctx, ProviderConfig{Registerer: prometheus.NewRegistry()})
		if err != nil {
			t.Fatalf("InitProvider #%d: %v", i+1, err)
		}
		if err := shutdown(ctx); err != nil {
			t.Errorf("shutdown #%d: %v", i+1, err)
		}
	}
}
