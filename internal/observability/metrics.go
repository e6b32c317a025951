package observability

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "github.com/kbukum/aiviz"

// Metrics holds the instruments recorded by the generation pipeline.
type Metrics struct {
	generationTotal    metric.Int64Counter
	generationDuration metric.Float64Histogram
	upstreamRetries    metric.Int64Counter
	quotaRejections    metric.Int64Counter
}

// NewMetrics creates the pipeline instruments from the global meter provider.
// With telemetry disabled the global provider is a no-op, so recording is
// free and callers never need nil checks.
func NewMetrics() (*Metrics, error) {
	meter := otel.Meter(meterName)

	generationTotal, err := meter.Int64Counter("aiviz.generation.total",
		metric.WithDescription("Generation requests by purpose and outcome"))
	if err != nil {
		return nil, fmt.Errorf("creating generation counter: %w", err)
	}

	generationDuration, err := meter.Float64Histogram("aiviz.generation.duration",
		metric.WithDescription("Generation request duration"),
		metric.WithUnit("ms"))
	if err != nil {
		return nil, fmt.Errorf("creating duration histogram: %w", err)
	}

	upstreamRetries, err := meter.Int64Counter("aiviz.upstream.retries",
		metric.WithDescription("Model call retries"))
	if err != nil {
		return nil, fmt.Errorf("creating retry counter: %w", err)
	}

	quotaRejections, err := meter.Int64Counter("aiviz.quota.rejections",
		metric.WithDescription("Requests rejected for exhausted quota"))
	if err != nil {
		return nil, fmt.Errorf("creating quota rejection counter: %w", err)
	}

	return &Metrics{
		generationTotal:    generationTotal,
		generationDuration: generationDuration,
		upstreamRetries:    upstreamRetries,
		quotaRejections:    quotaRejections,
	}, nil
}

// RecordGeneration records one finished generation request.
func (m *Metrics) RecordGeneration(ctx context.Context, purpose, outcome string, durationMs float64) {
	attrs := metric.WithAttributes(
		attribute.String("purpose", purpose),
		attribute.String("outcome", outcome),
	)
	m.generationTotal.Add(ctx, 1, attrs)
	m.generationDuration.Record(ctx, durationMs, attrs)
}

// RecordUpstreamRetry records one model call retry.
func (m *Metrics) RecordUpstreamRetry(ctx context.Context) {
	m.upstreamRetries.Add(ctx, 1)
}

// RecordQuotaRejection records one quota-exhausted rejection.
func (m *Metrics) RecordQuotaRejection(ctx context.Context) {
	m.quotaRejections.Add(ctx, 1)
}
