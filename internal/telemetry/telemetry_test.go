package telemetry

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

func TestNewMetricsRegistersEveryInstrument(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	m.ActiveConnections.Inc()
	m.GameActorQueueLen.WithLabelValues("g1").Set(3)
	m.CommandLatency.WithLabelValues("create_var").Observe(1.5)
	m.EventResolutionLatency.Observe(0.5)
	m.SignalTriggerTotal.WithLabelValues("message").Inc()
	m.RuleLifecycleTotal.WithLabelValues("activated").Inc()
	m.DBTxLatency.Observe(2)
	m.DedupHitTotal.Inc()
	m.CommandReject.WithLabelValues("unauthorized").Inc()

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather failed: %v", err)
	}
	if len(families) == 0 {
		t.Fatalf("expected at least one registered metric family")
	}
}

func TestSetupTracerProviderWithoutStdout(t *testing.T) {
	tp, err := SetupTracerProvider(context.Background(), "nomyxd-test", false, zap.NewNop())
	if err != nil {
		t.Fatalf("SetupTracerProvider failed: %v", err)
	}
	if tp == nil {
		t.Fatalf("expected a non-nil tracer provider")
	}
	if err := tp.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown failed: %v", err)
	}
}

func TestSetupLoggerBuildsAUsableLogger(t *testing.T) {
	logger, err := SetupLogger()
	if err != nil {
		t.Fatalf("SetupLogger failed: %v", err)
	}
	if logger == nil {
		t.Fatalf("expected a non-nil logger")
	}
}
