package runtime_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/zealnet/server/internal/config"
	"github.com/zealnet/server/internal/runtime"
)

func newTestConfig(node string) *config.Map {
	return config.NewMap(map[string]string{
		"ZealNode":                 node,
		"server.tcp.enabled":       "false",
		"server.json.enabled":      "false",
		"server.sbe.enabled":       "false",
		"server.websocket.enabled": "false",
		"server.http.enabled":      "true",
		"http.port":                "19280",
		"dispatch.shards":          "1",
	})
}

func TestNew_BuildsWithoutStartingAnything(t *testing.T) {
	rt, err := runtime.New(newTestConfig("node-a"))
	require.NoError(t, err)
	require.NotNil(t, rt.Dispatcher())
	require.NotNil(t, rt.Registry())
	require.NotNil(t, rt.Game())
}

func TestRuntime_StartStop_IsIdempotent(t *testing.T) {
	rt, err := runtime.New(newTestConfig("node-b"))
	require.NoError(t, err)

	require.NoError(t, rt.Start())
	require.NoError(t, rt.Start(), "starting twice must be a no-op")

	require.NoError(t, rt.Stop())
	require.NoError(t, rt.Stop(), "stopping twice must be a no-op")
}

func TestNew_NoLoginSecretFallsBackToEphemeralKey(t *testing.T) {
	cfg := newTestConfig("node-c")
	rt, err := runtime.New(cfg)
	require.NoError(t, err)
	require.NotNil(t, rt)
}
