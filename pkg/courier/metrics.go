package courier

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "github.com/oagudo/courier"

type publishMetrics struct {
	status   metric.Int64Counter
	fallback metric.Int64Counter
}

func newPublishMetrics(provider metric.MeterProvider) (publishMetrics, error) {
	if provider == nil {
		provider = otel.GetMeterProvider()
	}
	meter := provider.Meter(meterName)

	var (
		m   publishMetrics
		err error
	)

	m.status, err = meter.Int64Counter(
		"courier.publish.status",
		metric.WithDescription("Number of publish calls by returned delivery status"),
		metric.WithUnit("{message}"),
	)
	if err != nil {
		return publishMetrics{}, fmt.Errorf("create courier.publish.status counter: %w", err)
	}

	m.fallback, err = meter.Int64Counter(
		"courier.outbox.fallback",
		metric.WithDescription("Number of messages written to the outbox after an unconfirmed broker send"),
		metric.WithUnit("{message}"),
	)
	if err != nil {
		return publishMetrics{}, fmt.Errorf("create courier.outbox.fallback counter: %w", err)
	}

	return m, nil
}

func (m publishMetrics) recordStatus(ctx context.Context, kind ChannelKind, status DeliveryStatus) {
	m.status.Add(ctx, 1, metric.WithAttributes(
		attribute.String("channel", kind.String()),
		attribute.String("status", status.String()),
	))
}

func (m publishMetrics) recordFallback(ctx context.Context, kind ChannelKind, stored bool) {
	m.fallback.Add(ctx, 1, metric.WithAttributes(
		attribute.String("channel", kind.String()),
		attribute.Bool("stored", stored),
	))
}

type consumeMetrics struct {
	outcome metric.Int64Counter
}

func newConsumeMetrics(provider metric.MeterProvider) (consumeMetrics, error) {
	if provider == nil {
		provider = otel.GetMeterProvider()
	}

	outcome, err := provider.Meter(meterName).Int64Counter(
		"courier.consume.outcome",
		metric.WithDescription("Number of consumed messages by outcome"),
		metric.WithUnit("{message}"),
	)
	if err != nil {
		return consumeMetrics{}, fmt.Errorf("create courier.consume.outcome counter: %w", err)
	}

	return consumeMetrics{outcome: outcome}, nil
}

func (m consumeMetrics) record(ctx context.Context, kind ChannelKind, outcome string) {
	m.outcome.Add(ctx, 1, metric.WithAttributes(
		attribute.String("channel", kind.String()),
		attribute.String("outcome", outcome),
	))
}
