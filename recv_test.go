package gomavlib

import (
	"errors"
	"testing"
	"time"

	"github.com/flightwire/gomavlib/pkg/dialects/minimal"
	"github.com/flightwire/gomavlib/pkg/message"
	"github.com/stretchr/testify/require"
)

func TestNodeTryRecvEmptyThenDisconnected(t *testing.T) {
	const addr = "127.0.0.1:18920"

	conf := NewNodeBuilder(9, 1).Proxy().Build()
	server, err := NewNode(conf, EndpointTCPServer{Address: addr})
	require.NoError(t, err)

	_, err = server.TryRecv()
	require.ErrorIs(t, err, ErrRecvEmpty)

	server.Close()

	_, err = server.Recv()
	require.ErrorIs(t, err, ErrRecvDisconnected)
}

func TestNodeRecvTimeoutElapses(t *testing.T) {
	const addr = "127.0.0.1:18921"

	conf := NewNodeBuilder(9, 1).Proxy().Build()
	server, err := NewNode(conf, EndpointTCPServer{Address: addr})
	require.NoError(t, err)
	defer server.Close()

	_, err = server.RecvTimeout(20 * time.Millisecond)
	require.ErrorIs(t, err, ErrRecvTimedOut)
}

func TestNodeRecvFrameSkipsHeartbeatPeerEvents(t *testing.T) {
	const addr = "127.0.0.1:18922"

	conf := NewNodeBuilder(9, 1).Proxy().Build()
	server, err := NewNode(conf, EndpointTCPServer{Address: addr})
	require.NoError(t, err)
	defer server.Close()

	conn := dialAndSendHeartbeat(t, addr, 50, 0)
	defer conn.Close()

	frame, _, err := server.RecvFrameTimeout(2 * time.Second)
	require.NoError(t, err)
	require.Equal(t, uint8(50), frame.SystemID())
}

func TestRecvErrorIsMatchesKindOnly(t *testing.T) {
	var err error = ErrRecvEmpty
	require.True(t, errors.Is(err, ErrRecvEmpty))
	require.False(t, errors.Is(err, ErrRecvDisconnected))
}

func TestNodeSendMessageEncodesAndStampsIdentity(t *testing.T) {
	const addr = "127.0.0.1:18923"

	conf := NewNodeBuilder(9, 1).Build()
	conf.Heartbeat.Enabled = false
	server, err := NewNode(conf, EndpointTCPServer{Address: addr})
	require.NoError(t, err)
	defer server.Close()

	conn := dialAndSendHeartbeat(t, addr, 60, 0)
	defer conn.Close()
	time.Sleep(50 * time.Millisecond)

	hb := &minimal.Heartbeat{Type: minimal.MavTypeGCS, Autopilot: minimal.MavAutopilotInvalid, SystemStatus: minimal.MavStateActive}
	require.NoError(t, server.SendMessage(hb))

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	buf := make([]byte, 64)
	n, err := conn.Read(buf)
	require.NoError(t, err)
	frame, _, err := message.Decode(buf[:n])
	require.NoError(t, err)
	require.Equal(t, uint8(9), frame.SystemID())
	require.Equal(t, uint8(1), frame.ComponentID())
	require.Equal(t, uint8(1), frame.Sequence())
}
