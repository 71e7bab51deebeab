package gomavlib

import (
	"net"
	"testing"
	"time"

	"github.com/flightwire/gomavlib/pkg/message"
	"github.com/stretchr/testify/require"
)

// TestNetworkTwoServerFanOut mirrors spec scenario S4: a Network aggregating
// two TCP servers relays frames from either sub-node into one merged event
// stream, and a Broadcast reaches clients on both.
func TestNetworkTwoServerFanOut(t *testing.T) {
	const addrA = "127.0.0.1:18911"
	const addrB = "127.0.0.1:18912"

	nw := NewNetwork(NetworkConf{Retry: RetryNever()})
	defer nw.Close()

	_, err := nw.Add(EndpointTCPServer{Address: addrA})
	require.NoError(t, err)
	_, err = nw.Add(EndpointTCPServer{Address: addrB})
	require.NoError(t, err)

	rx := nw.Events()

	time.Sleep(50 * time.Millisecond)
	clientA := dialAndSendHeartbeat(t, addrA, 1, 0)
	defer clientA.Close()
	clientB := dialAndSendHeartbeat(t, addrB, 1, 1)
	defer clientB.Close()

	frames := 0
	deadline := time.After(3 * time.Second)
	for frames < 2 {
		select {
		case ev := <-rx.C():
			if _, ok := ev.(EventFrame); ok {
				frames++
			}
		case <-deadline:
			t.Fatalf("timed out waiting for relayed frames, got %d", frames)
		}
	}

	require.NoError(t, nw.Broadcast(buildHeartbeatFrame(1, 0)))

	for _, c := range []net.Conn{clientA, clientB} {
		require.NoError(t, c.SetReadDeadline(time.Now().Add(2*time.Second)))
		buf := make([]byte, 64)
		n, err := c.Read(buf)
		require.NoError(t, err)
		frame, _, err := message.Decode(buf[:n])
		require.NoError(t, err)
		require.Equal(t, uint8(1), frame.SystemID())
	}
}

func TestNetworkSendToReachesOnlyTargetedSubNode(t *testing.T) {
	const addrA = "127.0.0.1:18913"
	const addrB = "127.0.0.1:18914"

	nw := NewNetwork(NetworkConf{Retry: RetryNever()})
	defer nw.Close()

	idA, err := nw.Add(EndpointTCPServer{Address: addrA})
	require.NoError(t, err)
	_, err = nw.Add(EndpointTCPServer{Address: addrB})
	require.NoError(t, err)

	time.Sleep(50 * time.Millisecond)
	clientA, err := net.Dial("tcp", addrA)
	require.NoError(t, err)
	defer clientA.Close()
	clientB, err := net.Dial("tcp", addrB)
	require.NoError(t, err)
	defer clientB.Close()

	time.Sleep(50 * time.Millisecond)
	require.NoError(t, nw.SendTo(buildHeartbeatFrame(3, 0), idA))

	require.NoError(t, clientA.SetReadDeadline(time.Now().Add(2*time.Second)))
	buf := make([]byte, 64)
	n, err := clientA.Read(buf)
	require.NoError(t, err)
	frame, _, err := message.Decode(buf[:n])
	require.NoError(t, err)
	require.Equal(t, uint8(3), frame.SystemID())

	require.NoError(t, clientB.SetReadDeadline(time.Now().Add(200*time.Millisecond)))
	_, err = clientB.Read(buf)
	require.Error(t, err, "SendTo must not reach the other sub-node")
}

func TestNetworkRemoveStopsTrackingSubNode(t *testing.T) {
	const addr = "127.0.0.1:18915"

	nw := NewNetwork(NetworkConf{Retry: RetryNever()})
	defer nw.Close()

	id, err := nw.Add(EndpointTCPServer{Address: addr})
	require.NoError(t, err)

	nw.Remove(id)

	err = nw.SendTo(buildHeartbeatFrame(1, 0), id)
	require.Error(t, err)
}

// TestNetworkAsNodeConnection plugs a Network directly into NewNode as the
// outer node's EndpointConf (spec §4.11: a Network "exposes the same
// ConnectionBuilder contract to the outer Node"), mirroring scenario S4
// end-to-end through the ordinary Node API rather than the Network's own
// standalone Events/Broadcast surface.
func TestNetworkAsNodeConnection(t *testing.T) {
	const addrA = "127.0.0.1:18916"
	const addrB = "127.0.0.1:18917"

	nw := NewNetwork(NetworkConf{
		Retry: RetryNever(),
		Endpoints: []EndpointConf{
			EndpointTCPServer{Address: addrA},
			EndpointTCPServer{Address: addrB},
		},
	})

	parent, err := NewNode(NewNodeBuilder(1, 0).Proxy().Build(), nw)
	require.NoError(t, err)
	defer parent.Close()

	time.Sleep(50 * time.Millisecond)
	clientA := dialAndSendHeartbeat(t, addrA, 1, 0)
	defer clientA.Close()
	clientB := dialAndSendHeartbeat(t, addrB, 1, 1)
	defer clientB.Close()

	frames := 0
	for frames < 2 {
		_, _, err := parent.RecvFrameTimeout(3 * time.Second)
		require.NoError(t, err)
		frames++
	}

	require.NoError(t, parent.Send(buildHeartbeatFrame(1, 2)))

	for _, c := range []net.Conn{clientA, clientB} {
		require.NoError(t, c.SetReadDeadline(time.Now().Add(2*time.Second)))
		buf := make([]byte, 64)
		n, err := c.Read(buf)
		require.NoError(t, err)
		frame, _, err := message.Decode(buf[:n])
		require.NoError(t, err)
		require.Equal(t, uint8(1), frame.SystemID())
		require.Equal(t, uint8(2), frame.ComponentID())
	}
}

// TestNetworkReconnectsAfterTransportDrop mirrors spec scenario S5: a TCP
// client sub-node's peer disappears, its Channel dies, its Connection's
// ConnectionHandler finishes, and Always(interval) redials until a new peer
// accepts.
func TestNetworkReconnectsAfterTransportDrop(t *testing.T) {
	const addr = "127.0.0.1:18918"

	listener, err := net.Listen("tcp", addr)
	require.NoError(t, err)
	defer listener.Close()

	accepted := make(chan net.Conn, 2)
	go func() {
		for {
			conn, err := listener.Accept()
			if err != nil {
				return
			}
			accepted <- conn
		}
	}()

	nw := NewNetwork(NetworkConf{
		Retry: RetryAlways(100 * time.Millisecond),
		Endpoints: []EndpointConf{
			EndpointTCPClient{Address: addr},
		},
	})
	defer nw.Close()

	var firstConn net.Conn
	select {
	case firstConn = <-accepted:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for first connection")
	}

	// Drop the peer side to simulate the transport dying out from under the
	// client sub-node.
	require.NoError(t, firstConn.Close())

	var secondConn net.Conn
	select {
	case secondConn = <-accepted:
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for Always(interval) to reconnect")
	}
	defer secondConn.Close()

	time.Sleep(50 * time.Millisecond) // let the restarted sub-node's relay goroutines subscribe
	require.NoError(t, nw.Broadcast(buildHeartbeatFrame(9, 9)))

	require.NoError(t, secondConn.SetReadDeadline(time.Now().Add(2*time.Second)))
	buf := make([]byte, 64)
	n, err := secondConn.Read(buf)
	require.NoError(t, err)
	frame, _, err := message.Decode(buf[:n])
	require.NoError(t, err)
	require.Equal(t, uint8(9), frame.SystemID())
}

