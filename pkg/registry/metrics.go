package registry

import (
	"context"

	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

const meterName = "github.com/praetorian-inc/tmscan/pkg/registry"

type metrics struct {
	created   metric.Int64Counter
	destroyed metric.Int64Counter
	evicted   metric.Int64Counter
	live      metric.Int64UpDownCounter
}

func newMetrics(mp metric.MeterProvider) *metrics {
	m, err := buildMetrics(mp.Meter(meterName))
	if err != nil {
		m, _ = buildMetrics(noop.NewMeterProvider().Meter(meterName))
	}
	return m
}

func buildMetrics(meter metric.Meter) (*metrics, error) {
	created, err := meter.Int64Counter("tmscan.registry.created",
		metric.WithDescription("Scanners created"))
	if err != nil {
		return nil, err
	}
	destroyed, err := meter.Int64Counter("tmscan.registry.destroyed",
		metric.WithDescription("Scanners destroyed by the caller"))
	if err != nil {
		return nil, err
	}
	evicted, err := meter.Int64Counter("tmscan.registry.evicted",
		metric.WithDescription("Scanners evicted by the cache budget"))
	if err != nil {
		return nil, err
	}
	live, err := meter.Int64UpDownCounter("tmscan.registry.live",
		metric.WithDescription("Scanners currently registered"))
	if err != nil {
		return nil, err
	}
	return &metrics{
		created:   created,
		destroyed: destroyed,
		evicted:   evicted,
		live:      live,
	}, nil
}

func (m *metrics) recordCreate(ctx context.Context) {
	m.created.Add(ctx, 1)
	m.live.Add(ctx, 1)
}

func (m *metrics) recordDestroy(ctx context.Context) {
	m.destroyed.Add(ctx, 1)
}

func (m *metrics) recordEvict(ctx context.Context) {
	m.evicted.Add(ctx, 1)
}

func (m *metrics) recordRelease(ctx context.Context) {
	m.live.Add(ctx, -1)
}
