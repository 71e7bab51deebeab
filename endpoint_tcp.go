package gomavlib

import (
	"fmt"
	"net"
)

// EndpointTCPServer listens for incoming TCP connections, spawning one
// Channel per client.
type EndpointTCPServer struct {
	Address string
}

// Details implements EndpointConf.
func (e EndpointTCPServer) Details() ConnectionDetails {
	return ConnectionDetails{Kind: ConnectionTCPServer, BindAddr: e.Address}
}

// Connect implements EndpointConf. Its ConnectionHandler finishes when the
// accept loop itself ends (the listener is closed, or Accept fails for
// good) — an individual client disconnecting never ends the server.
func (e EndpointTCPServer) Connect(factory ChannelFactory, onChannel func(*Channel) Closable) (*ConnectionHandler, func(), error) {
	listener, err := net.Listen("tcp", e.Address)
	if err != nil {
		return nil, nil, fmt.Errorf("gomavlib: tcp listen %s: %w", e.Address, err)
	}

	handler := newConnectionHandler()
	go func() {
		for {
			conn, err := listener.Accept()
			if err != nil {
				handler.finish(err)
				return
			}
			details := ChannelDetails{
				Kind:       ChannelTCPServer,
				ServerAddr: conn.LocalAddr().String(),
				PeerAddr:   conn.RemoteAddr().String(),
			}
			ch := factory.Build(details, conn)
			onChannel(ch)
		}
	}()

	return handler, func() { _ = listener.Close() }, nil
}

// EndpointTCPClient dials a single TCP server, producing one Channel.
type EndpointTCPClient struct {
	Address string
}

// Details implements EndpointConf.
func (e EndpointTCPClient) Details() ConnectionDetails {
	return ConnectionDetails{Kind: ConnectionTCPClient, RemoteAddr: e.Address}
}

// Connect implements EndpointConf. A TCP client has exactly one channel, so
// its ConnectionHandler finishes when that channel dies — whether the peer
// closed the socket, a write failed, or Close was called explicitly.
func (e EndpointTCPClient) Connect(factory ChannelFactory, onChannel func(*Channel) Closable) (*ConnectionHandler, func(), error) {
	conn, err := net.Dial("tcp", e.Address)
	if err != nil {
		return nil, nil, fmt.Errorf("gomavlib: tcp dial %s: %w", e.Address, err)
	}

	details := ChannelDetails{Kind: ChannelTCPClient, ServerAddr: e.Address}
	ch := factory.Build(details, conn)
	chState := onChannel(ch)

	handler := newConnectionHandler()
	go func() {
		chState.Wait()
		handler.finish(errTransportChannelClosed)
	}()

	return handler, func() { _ = conn.Close() }, nil
}
