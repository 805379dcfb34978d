package telemetry_test

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"

	"github.com/pilab-dev/exam-sso/internal/telemetry"
)

func TestInitMeterProvider(t *testing.T) {
	reg := prometheus.NewRegistry()

	mp, err := telemetry.InitMeterProvider(reg)
	require.NoError(t, err)
	t.Cleanup(func() { telemetry.Shutdown(context.Background(), mp) })

	counter, err := otel.Meter("test").Int64Counter("provider_calls")
	require.NoError(t, err)
	counter.Add(context.Background(), 2)

	families, err := reg.Gather()
	require.NoError(t, err)

	var found bool
	for _, f := range families {
		if f.GetName() == "provider_calls_total" {
			found = true
			assert.InDelta(t, 2, f.GetMetric()[0].GetCounter().GetValue(), 0)
		}
	}
	assert.True(t, found, "otel counter is exported to the registry")
}

func TestShutdownNil(t *testing.T) {
	assert.NotPanics(t, func() { telemetry.Shutdown(context.Background(), nil) })
}
