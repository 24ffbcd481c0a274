// Package metrics instruments the learning loop with OpenTelemetry metrics.
//
// Instruments are created from the global meter provider: without an SDK
// configured they are no-ops, so the engines can record unconditionally.
package metrics

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
)

const instrumentationName = "github.com/sattvalabs/wisdomd/internal/metrics"

// Metrics holds the learning-loop instruments.
type Metrics struct {
	meter metric.Meter

	turns           metric.Int64Counter
	atomsCreated    metric.Int64Counter
	declines        metric.Int64Counter
	feedbackSignals metric.Int64Counter
	composeDuration metric.Float64Histogram
}

// New creates the instruments, logging (not failing) when an instrument
// cannot be created.
func New(logger *zap.Logger) *Metrics {
	if logger == nil {
		logger = zap.NewNop()
	}

	m := &Metrics{meter: otel.Meter(instrumentationName)}

	var err error
	m.turns, err = m.meter.Int64Counter(
		"wisdomd.turns_total",
		metric.WithDescription("Conversational turns processed"),
		metric.WithUnit("{turn}"),
	)
	if err != nil {
		logger.Warn("failed to create turns counter", zap.Error(err))
	}

	m.atomsCreated, err = m.meter.Int64Counter(
		"wisdomd.atoms_created_total",
		metric.WithDescription("Wisdom atoms created by distillation"),
		metric.WithUnit("{atom}"),
	)
	if err != nil {
		logger.Warn("failed to create atoms counter", zap.Error(err))
	}

	m.declines, err = m.meter.Int64Counter(
		"wisdomd.compositions_declined_total",
		metric.WithDescription("Composition attempts that fell back to the LLM"),
		metric.WithUnit("{attempt}"),
	)
	if err != nil {
		logger.Warn("failed to create declines counter", zap.Error(err))
	}

	m.feedbackSignals, err = m.meter.Int64Counter(
		"wisdomd.feedback_signals_total",
		metric.WithDescription("User feedback signals recorded"),
		metric.WithUnit("{signal}"),
	)
	if err != nil {
		logger.Warn("failed to create feedback counter", zap.Error(err))
	}

	m.composeDuration, err = m.meter.Float64Histogram(
		"wisdomd.compose_duration_seconds",
		metric.WithDescription("Duration of composition attempts"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0),
	)
	if err != nil {
		logger.Warn("failed to create compose duration histogram", zap.Error(err))
	}

	return m
}

// RecordTurn counts one processed turn.
func (m *Metrics) RecordTurn(ctx context.Context, selfSufficient bool) {
	if m == nil || m.turns == nil {
		return
	}
	m.turns.Add(ctx, 1, metric.WithAttributes(
		attribute.Bool("self_sufficient", selfSufficient)))
}

// RecordAtomsCreated counts atoms produced by one distillation.
func (m *Metrics) RecordAtomsCreated(ctx context.Context, count int) {
	if m == nil || m.atomsCreated == nil || count <= 0 {
		return
	}
	m.atomsCreated.Add(ctx, int64(count))
}

// RecordDecline counts one composition fall-back.
func (m *Metrics) RecordDecline(ctx context.Context) {
	if m == nil || m.declines == nil {
		return
	}
	m.declines.Add(ctx, 1)
}

// RecordFeedback counts one feedback signal.
func (m *Metrics) RecordFeedback(ctx context.Context, positive bool) {
	if m == nil || m.feedbackSignals == nil {
		return
	}
	m.feedbackSignals.Add(ctx, 1, metric.WithAttributes(
		attribute.Bool("positive", positive)))
}

// RecordComposeDuration records one composition attempt's duration.
func (m *Metrics) RecordComposeDuration(ctx context.Context, seconds float64) {
	if m == nil || m.composeDuration == nil {
		return
	}
	m.composeDuration.Record(ctx, seconds)
}
