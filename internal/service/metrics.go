package service

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("outboxapi/internal/service")

// Registration outcomes.
const (
	OutcomeRegistered = "registered"
	OutcomeConflict   = "conflict"
	OutcomeFailed     = "failed"
	OutcomeManual     = "manual"
)

// Metrics records pipeline stage latencies and registration outcomes.
type Metrics struct {
	stageDuration *prometheus.HistogramVec
	registrations *prometheus.CounterVec
}

func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		stageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "outbox_stage_duration_seconds",
			Help:    "Duration of registration pipeline stages.",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		}, []string{"stage"}),
		registrations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "outbox_registrations_total",
			Help: "Journal registrations by outcome.",
		}, []string{"outcome"}),
	}
	for _, c := range []prometheus.Collector{m.stageDuration, m.registrations} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *Metrics) observe(stage string, d time.Duration) {
	if m == nil {
		return
	}
	m.stageDuration.WithLabelValues(stage).Observe(d.Seconds())
}

func (m *Metrics) outcome(o string) {
	if m == nil {
		return
	}
	m.registrations.WithLabelValues(o).Inc()
}

// stage runs fn inside a span named after the stage and records its duration.
func (m *Metrics) stage(ctx context.Context, name string, fn func(ctx context.Context) error, attrs ...attribute.KeyValue) error {
	ctx, span := tracer.Start(ctx, "outbox."+name)
	defer span.End()
	span.SetAttributes(attrs...)

	start := time.Now()
	err := fn(ctx)
	m.observe(name, time.Since(start))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}
