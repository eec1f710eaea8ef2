package telemetry_test

import (
	"context"
	"testing"

	"github.com/jrsteele09/storefront-gatekeeper/internal/telemetry"
	"github.com/stretchr/testify/require"
)

type testConfig struct {
	endpoint string
}

func (testConfig) GetAppName() string { return "gatekeeper-test" }

func (c testConfig) GetOTLPEndpoint() string { return c.endpoint }

func (testConfig) GetOTLPInsecure() bool { return true }

func TestSetupWithoutEndpointIsNoop(t *testing.T) {
	shutdown := telemetry.Setup(context.Background(), testConfig{})
	require.NoError(t, shutdown(context.Background()))
}

func TestSetupWithEndpoint(t *testing.T) {
	// The gRPC exporter connects lazily, so setup succeeds without a collector
	shutdown := telemetry.Setup(context.Background(), testConfig{endpoint: "127.0.0.1:4317"})
	require.NotNil(t, shutdown)
	require.NoError(t, shutdown(context.Background()))
}
