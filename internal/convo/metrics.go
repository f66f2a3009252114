package convo

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metrics tracks turn throughput and per-stage failures. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	turns    metric.Int64Counter
	failures metric.Int64Counter
	duration metric.Float64Histogram
}

func NewMetrics() (*Metrics, error) {
	meter := otel.Meter("github.com/parleylabs/parley-core/convo")

	turns, err := meter.Int64Counter("parley.turns.total",
		metric.WithDescription("Conversation turns started"))
	if err != nil {
		return nil, err
	}
	failures, err := meter.Int64Counter("parley.turns.stage_failures",
		metric.WithDescription("Turn stage failures"))
	if err != nil {
		return nil, err
	}
	duration, err := meter.Float64Histogram("parley.turns.duration_seconds",
		metric.WithDescription("End-to-end turn duration"),
		metric.WithUnit("s"))
	if err != nil {
		return nil, err
	}

	return &Metrics{turns: turns, failures: failures, duration: duration}, nil
}

func (m *Metrics) TurnStarted() {
	if m == nil {
		return
	}
	m.turns.Add(context.Background(), 1)
}

func (m *Metrics) StageFailed(stage string) {
	if m == nil {
		return
	}
	m.failures.Add(context.Background(), 1,
		metric.WithAttributes(attribute.String("stage", stage)))
}

func (m *Metrics) TurnCompleted(d time.Duration, outcome string) {
	if m == nil {
		return
	}
	m.duration.Record(context.Background(), d.Seconds(),
		metric.WithAttributes(attribute.String("outcome", outcome)))
}
