package telemetry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/railway-berth-reservation/internal/config"
)

func TestInitDisabledIsNoop(t *testing.T) {
	shutdown, err := Init(context.Background(), config.TelemetryConfig{Enabled: false}, "test")
	require.NoError(t, err)
	assert.NoError(t, shutdown(context.Background()))
}

func TestInitEnabledBuildsProvider(t *testing.T) {
	// The HTTP exporter connects lazily, so no collector is needed here.
	shutdown, err := Init(context.Background(), config.TelemetryConfig{
		Enabled: true, Endpoint: "127.0.0.1:4318", ServiceName: "berths-test",
	}, "test")
	require.NoError(t, err)
	require.NotNil(t, shutdown)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_ = shutdown(ctx)
}
