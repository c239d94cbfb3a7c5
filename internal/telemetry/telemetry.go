// Package telemetry wires structured logging, Prometheus metrics and
// OpenTelemetry tracing, grounded on the teacher's internal/observability
// — renamed to the concerns this engine actually has (command latency,
// event-resolution latency, signal trigger counts) rather than the
// teacher's room/agent-run concerns.
package telemetry

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"go.uber.org/zap"
)

// Metrics holds every Prometheus instrument the engine exports.
type Metrics struct {
	ActiveConnections      prometheus.Gauge
	GameActorQueueLen      *prometheus.GaugeVec
	CommandLatency         *prometheus.HistogramVec
	EventResolutionLatency prometheus.Observer
	SignalTriggerTotal     *prometheus.CounterVec
	RuleLifecycleTotal     *prometheus.CounterVec
	DBTxLatency            prometheus.Observer
	DedupHitTotal          prometheus.Counter
	CommandReject          *prometheus.CounterVec
}

func NewMetrics(reg *prometheus.Registry) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer.(*prometheus.Registry)
	}
	return &Metrics{
		ActiveConnections: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Name: "ws_active_connections",
			Help: "Number of active websocket connections",
		}),
		GameActorQueueLen: promauto.With(reg).NewGaugeVec(prometheus.GaugeOpts{
			Name: "game_actor_queue_len",
			Help: "Buffered commands waiting per game actor",
		}, []string{"game_id"}),
		CommandLatency: promauto.With(reg).NewHistogramVec(prometheus.HistogramOpts{
			Name:    "command_latency_ms",
			Help:    "Latency for processing a dispatched command",
			Buckets: prometheus.ExponentialBuckets(1, 2, 12),
		}, []string{"command_type"}),
		EventResolutionLatency: promauto.With(reg).NewHistogram(prometheus.HistogramOpts{
			Name:    "event_resolution_latency_us",
			Help:    "Latency of one event.Resolve call",
			Buckets: prometheus.ExponentialBuckets(1, 2, 12),
		}),
		SignalTriggerTotal: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "signal_trigger_total",
			Help: "Signals delivered through the trigger pipeline",
		}, []string{"signal_kind"}),
		RuleLifecycleTotal: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "rule_lifecycle_total",
			Help: "Rule lifecycle transitions raised by the effect evaluator",
		}, []string{"kind"}),
		DBTxLatency: promauto.With(reg).NewHistogram(prometheus.HistogramOpts{
			Name:    "db_tx_latency_ms",
			Help:    "Store transaction latency",
			Buckets: prometheus.ExponentialBuckets(1, 2, 12),
		}),
		DedupHitTotal: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "dedup_hit_total",
			Help: "Number of idempotent command retries recognized by dedup",
		}),
		CommandReject: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "command_reject_total",
			Help: "Commands rejected before dispatch (auth, validation)",
		}, []string{"reason"}),
	}
}

func SetupTracerProvider(ctx context.Context, serviceName string, stdout bool, logger *zap.Logger) (*sdktrace.TracerProvider, error) {
	var exporter *stdouttrace.Exporter
	var err error
	if stdout {
		exporter, err = stdouttrace.New(stdouttrace.WithPrettyPrint())
		if err != nil {
			return nil, err
		}
	}

	rs := resource.NewWithAttributes(
		semconv.SchemaURL,
		semconv.ServiceName(serviceName),
	)

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithResource(rs),
	)
	if exporter != nil {
		tp.RegisterSpanProcessor(sdktrace.NewBatchSpanProcessor(exporter))
	}
	otel.SetTracerProvider(tp)
	logger.Info("tracer initialized")
	return tp, nil
}

func SetupLogger() (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Encoding = "json"
	return cfg.Build()
}
