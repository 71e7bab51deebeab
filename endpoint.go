package gomavlib

import "errors"

// errTransportChannelClosed is the ConnectionHandler result for a
// single-channel endpoint (TCP client, serial port) whose one Channel died.
var errTransportChannelClosed = errors.New("gomavlib: transport channel closed")

// EndpointConf builds the concrete transport behind a Connection. Each
// implementation owns whatever background work is needed to produce
// Channels — accepting TCP clients, dialing a TCP server, opening a serial
// port — and is responsible for calling onChannel for every stream it
// establishes.
//
// This is the seam the spec marks as an external collaborator: gomavlib's
// own routing, signing, and dialect logic never depends on which transport
// produced a Channel.
type EndpointConf interface {
	// Details describes this endpoint for ConnectionInfo.
	Details() ConnectionDetails

	// Connect starts producing channels from factory, calling onChannel for
	// each one once built; onChannel spawns the channel and returns a
	// read-only view of its lifetime. Connect returns a ConnectionHandler
	// (spec §4.5) whose Done() channel closes once the endpoint's
	// background work — an accept loop, a dial, a single channel's
	// lifetime — has ended for good, and a stop function that tears that
	// work down explicitly. handler may be nil for an endpoint with no
	// independent lifetime of its own (Network, proxying an outer
	// connection).
	Connect(factory ChannelFactory, onChannel func(*Channel) Closable) (handler *ConnectionHandler, stop func(), err error)
}
