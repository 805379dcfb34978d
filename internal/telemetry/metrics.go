// Package telemetry bridges OpenTelemetry metrics into the Prometheus registry.
package telemetry

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	prometheusexporter "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/sdk/metric"
)

// InitMeterProvider registers a global MeterProvider whose instruments are
// exported through reg. The otelhttp provider clients and otelgin record
// their request metrics through it.
func InitMeterProvider(reg prometheus.Registerer) (*metric.MeterProvider, error) {
	exporter, err := prometheusexporter.New(
		prometheusexporter.WithRegisterer(reg),
		prometheusexporter.WithoutScopeInfo(),
	)
	if err != nil {
		return nil, err
	}

	mp := metric.NewMeterProvider(metric.WithReader(exporter))
	otel.SetMeterProvider(mp)
	log.Debug().Msg("OpenTelemetry MeterProvider initialized with Prometheus exporter")

	return mp, nil
}

// Shutdown flushes and stops mp. A nil provider is ignored.
func Shutdown(ctx context.Context, mp *metric.MeterProvider) {
	if mp == nil {
		return
	}
	if err := mp.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("Error shutting down MeterProvider")
	}
}
