package telemetry

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestConfig_ApplyDefaults(t *testing.T) {
	cfg := Config{SampleRatio: 3}
	cfg.ApplyDefaults()

	require.Equal(t, "metsync", cfg.ServiceName)
	require.Equal(t, 10*time.Second, cfg.ExportInterval)
	require.InDelta(t, 1.0, cfg.SampleRatio, 0)
}

func TestInitTelemetry_Disabled(t *testing.T) {
	t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", "")
	t.Setenv("OTEL_EXPORTER_OTLP_METRICS_ENDPOINT", "")
	t.Setenv("OTEL_EXPORTER_OTLP_TRACES_ENDPOINT", "")

	require.False(t, Enabled())

	shutdown, err := InitTelemetry(context.Background(), Config{Version: "test"})
	require.NoError(t, err)
	require.NoError(t, shutdown(context.Background()))
}

func TestGetMetrics(t *testing.T) {
	m := GetMetrics()
	require.NotNil(t, m)
	require.Same(t, m, GetMetrics())
	require.NotNil(t, m.EntitiesCreatedTotal)
	require.NotNil(t, m.FetchDuration)
}
