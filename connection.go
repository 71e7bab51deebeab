package gomavlib

import (
	"fmt"
	"log"
	"sync"
)

// ConnectionHandler is the future-like handle a ConnectionBuilder returns
// alongside its stop function (spec §4.5): a background accept loop, dial,
// or single Channel's lifetime. When it finishes, the owning Connection is
// marked closed and the result is logged.
type ConnectionHandler struct {
	done chan struct{}
	once sync.Once
	err  error
}

func newConnectionHandler() *ConnectionHandler {
	return &ConnectionHandler{done: make(chan struct{})}
}

// finish marks the handler done, recording err (nil on a clean stop). Only
// the first call has any effect.
func (h *ConnectionHandler) finish(err error) {
	h.once.Do(func() {
		h.err = err
		close(h.done)
	})
}

// Done returns a channel that closes once the handler's underlying work
// (accept loop, dial, channel lifetime) has ended for good.
func (h *ConnectionHandler) Done() <-chan struct{} { return h.done }

// Err returns the reason the handler finished, or nil for a clean stop.
func (h *ConnectionHandler) Err() error { return h.err }

// Connection owns the transport behind one EndpointConf: the outgoing
// fan-out bus every one of its Channels subscribes to, and the incoming
// bus every one of its Channels forwards to. Dropping a Connection (Close)
// cascades to every Channel it spawned. It also watches the ConnectionHandler
// its EndpointConf returned, so a transport failure (not just an explicit
// Close) marks the connection closed.
type Connection struct {
	info     ConnectionInfo
	state    SharedCloser
	fanout   *Bus[OutgoingFrame]
	factory  ChannelFactory
	stopFunc func()
	handler  *ConnectionHandler
}

// NewConnection builds and starts a Connection from conf, forwarding every
// frame any of its channels receives onto incoming.
func NewConnection(conf EndpointConf, incoming Sender[IncomingFrame]) (*Connection, error) {
	info := newConnectionInfo(conf.Details())
	state := NewSharedCloser()
	fanout := NewBus[OutgoingFrame](state.AsClosable())

	factory := newChannelFactory(info, state.AsClosable(), fanout, incoming)

	conn := &Connection{
		info:    info,
		state:   state,
		fanout:  fanout,
		factory: factory,
	}

	handler, stop, err := conf.Connect(factory, func(ch *Channel) Closable {
		// Spawn's SharedCloser is standalone (never AsShared'd off a
		// parent Closer), so Discard()ing it here as the sole owner would
		// force-close it immediately (SharedCloser.Discard on a
		// standalone's last owner always closes) — the channel would die
		// the instant it started. Just take the read-only view instead;
		// the channel's own superviseStop is what actually closes it.
		return ch.Spawn().AsClosable()
	})
	if err != nil {
		state.Close()
		return nil, fmt.Errorf("gomavlib: connect %s: %w", info, err)
	}
	conn.stopFunc = stop
	conn.handler = handler

	if handler != nil {
		go conn.watchHandler()
	}

	return conn, nil
}

// watchHandler closes the connection once its ConnectionHandler finishes,
// logging whether that was a clean stop or a transport failure.
func (c *Connection) watchHandler() {
	<-c.handler.Done()
	if err := c.handler.Err(); err != nil {
		log.Printf("gomavlib: connection %s: transport ended: %v", c.info, err)
	} else {
		log.Printf("gomavlib: connection %s: transport stopped", c.info)
	}
	c.state.Close()
}

// Info returns this connection's identity and transport details.
func (c *Connection) Info() ConnectionInfo { return c.info }

// Sender returns the sender new outgoing frames scoped to this connection
// should use.
func (c *Connection) Sender() Sender[OutgoingFrame] { return c.fanout.NewSender() }

// AsClosable exposes this connection's lifecycle for dependents (Channels,
// the owning Node) to observe.
func (c *Connection) AsClosable() Closable { return c.state.AsClosable() }

// Close tears down the connection's transport and closes every channel it
// spawned.
func (c *Connection) Close() {
	if c.stopFunc != nil {
		c.stopFunc()
	}
	c.state.Close()
}
