package telemetry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetup_DisabledWithoutEndpoint(t *testing.T) {
	t.Setenv(EndpointEnv, "")
	assert.False(t, Enabled())

	shutdown, err := Setup(context.Background(), "fleetgate", "test")
	require.NoError(t, err)
	require.NotNil(t, shutdown)
	assert.NoError(t, shutdown(context.Background()))
}

func TestEnabled(t *testing.T) {
	t.Setenv(EndpointEnv, "http://localhost:4317")
	assert.True(t, Enabled())
}
