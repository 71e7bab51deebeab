package netconfig

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/flightwire/gomavlib"
)

func writeConfig(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "network.yaml")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
	return path
}

func TestLoadAppliesDefaultsAndValidates(t *testing.T) {
	path := writeConfig(t, `
system:
  system_id: 1
endpoints:
  - kind: tcp_server
    address: ":14550"
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	require.EqualValues(t, 1, cfg.System.ComponentID)
	require.Equal(t, float64(1), cfg.Heartbeat.IntervalSec)
	require.Equal(t, float64(10), cfg.Peer.TimeoutSec)
	require.Equal(t, 2.5, cfg.Peer.Tolerance)
	require.Equal(t, "never", cfg.Retry.Strategy)
}

func TestLoadRejectsMissingSystemID(t *testing.T) {
	path := writeConfig(t, `
endpoints:
  - kind: tcp_server
    address: ":14550"
`)

	_, err := Load(path)
	require.Error(t, err)
}

func TestLoadRejectsUnknownEndpointKind(t *testing.T) {
	path := writeConfig(t, `
system:
  system_id: 1
endpoints:
  - kind: bogus
`)

	_, err := Load(path)
	require.Error(t, err)
}

func TestLoadRejectsUnknownRetryStrategy(t *testing.T) {
	path := writeConfig(t, `
system:
  system_id: 1
retry:
  strategy: sometimes
endpoints:
  - kind: tcp_server
    address: ":14550"
`)

	_, err := Load(path)
	require.Error(t, err)
}

func TestEndpointsBuildsEndpointConfs(t *testing.T) {
	cfg := &Config{
		Endpoints: []EndpointConfig{
			{Kind: "tcp_client", Address: "127.0.0.1:14550"},
			{Kind: "serial", Path: "/dev/ttyUSB0", BaudRate: 57600},
		},
	}

	endpoints, err := cfg.Endpoints()
	require.NoError(t, err)
	require.Len(t, endpoints, 2)
	require.Equal(t, gomavlib.EndpointTCPClient{Address: "127.0.0.1:14550"}, endpoints[0])
	require.Equal(t, gomavlib.EndpointSerial{Path: "/dev/ttyUSB0", BaudRate: 57600}, endpoints[1])
}

func TestRetryStrategyTranslatesEachKind(t *testing.T) {
	never := (&Config{Retry: RetryConfig{Strategy: "never"}}).RetryStrategy()
	require.Equal(t, gomavlib.RetryNever(), never)

	attempts := (&Config{Retry: RetryConfig{Strategy: "attempts", Attempts: 3, IntervalSec: 2}}).RetryStrategy()
	require.Equal(t, gomavlib.RetryAttempts(3, 2*time.Second), attempts)

	always := (&Config{Retry: RetryConfig{Strategy: "always", IntervalSec: 0.5}}).RetryStrategy()
	require.Equal(t, gomavlib.RetryAlways(500*time.Millisecond), always)
}

func TestNodeConfCarriesSystemIdentity(t *testing.T) {
	cfg := &Config{
		System:    SystemConfig{SystemID: 42, ComponentID: 7},
		Heartbeat: HeartbeatConfig{Enabled: true, IntervalSec: 2},
		Peer:      PeerConfig{TimeoutSec: 20, Tolerance: 3},
	}

	nodeConf := cfg.NodeConf()
	require.EqualValues(t, 42, nodeConf.SystemID)
	require.EqualValues(t, 7, nodeConf.ComponentID)
	require.Equal(t, gomavlib.NodeEdge, nodeConf.Kind)
	require.Equal(t, 20*time.Second, nodeConf.PeerTimeout)
	require.True(t, nodeConf.Heartbeat.Enabled)
	require.Equal(t, 2*time.Second, nodeConf.Heartbeat.Interval)
}
