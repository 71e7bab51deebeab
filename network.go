package gomavlib

import (
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/flightwire/gomavlib/pkg/message"
)

const networkPollInterval = 200 * time.Millisecond

// retryKind discriminates RetryStrategy's variants.
type retryKind int

const (
	retryNever retryKind = iota
	retryAttempts
	retryAlways
)

// RetryStrategy controls whether and how a Network reconnects a sub-node
// whose transport has gone down.
type RetryStrategy struct {
	kind     retryKind
	attempts int
	interval time.Duration
}

// RetryNever never reconnects a failed sub-node; it is removed from the
// network for good.
func RetryNever() RetryStrategy {
	return RetryStrategy{kind: retryNever}
}

// RetryAttempts reconnects a failed sub-node up to attempts times, waiting
// interval between each try, giving up after that.
func RetryAttempts(attempts int, interval time.Duration) RetryStrategy {
	return RetryStrategy{kind: retryAttempts, attempts: attempts, interval: interval}
}

// RetryAlways reconnects a failed sub-node indefinitely, waiting interval
// between each try.
func RetryAlways(interval time.Duration) RetryStrategy {
	return RetryStrategy{kind: retryAlways, interval: interval}
}

// NetworkNodeID identifies a sub-node within a Network. Unlike a
// ConnectionID, it stays stable across reconnects of the same sub-node.
type NetworkNodeID struct {
	id uniqueID
}

// NetworkConf configures a Network. NodeConf is used as a template for
// every sub-node it spawns: Kind is always forced to NodeProxy and
// heartbeat emission is disabled, since a Network aggregates other
// parties' traffic rather than originating its own identity.
type NetworkConf struct {
	Retry          RetryStrategy
	StopOnNodeDown bool
	NodeConf       NodeConf
	// Endpoints lists the sub-node connections to build immediately at
	// construction, mirroring spec §4.11's "build() aggregates a set of
	// child node configurations". Additional sub-nodes can still be added
	// later with Add.
	Endpoints []EndpointConf
}

type networkNodeEntry struct {
	endpoint  EndpointConf
	remaining int
}

// Network aggregates several independently-connected sub-nodes (Proxy
// Nodes) behind one merged event stream and one addressable outgoing
// frame sink, restarting sub-nodes that go down per its RetryStrategy.
type Network struct {
	conf     NetworkConf
	info     ConnectionInfo
	closer   *Closer
	events   *Bus[Event]
	outgoing *Bus[OutgoingFrame]

	mu      sync.Mutex
	entries map[NetworkNodeID]*networkNodeEntry
	nodes   map[NetworkNodeID]*Node

	closedCh chan NetworkNodeID
}

// NewNetwork builds a Network, adds a sub-node for every entry of
// conf.Endpoints (logging and skipping any that fail to connect), and
// starts its supervisor. Further sub-nodes can be added with Add.
func NewNetwork(conf NetworkConf) *Network {
	conf.NodeConf = conf.NodeConf.withDefaults()
	conf.NodeConf.Kind = NodeProxy
	conf.NodeConf.Heartbeat.Enabled = false

	closer := NewCloser()
	nw := &Network{
		conf:     conf,
		info:     newConnectionInfo(ConnectionDetails{Kind: ConnectionNetwork}),
		closer:   closer,
		events:   NewBus[Event](closer.AsClosable()),
		outgoing: NewBus[OutgoingFrame](closer.AsClosable()),
		entries:  make(map[NetworkNodeID]*networkNodeEntry),
		nodes:    make(map[NetworkNodeID]*Node),
		closedCh: make(chan NetworkNodeID, 16),
	}

	for _, endpoint := range conf.Endpoints {
		if _, err := nw.Add(endpoint); err != nil {
			log.Printf("gomavlib: network: initial sub-node %s failed: %v", endpoint.Details(), err)
		}
	}

	go nw.run()
	return nw
}

// Info returns the network's own identity, distinct from any of its
// sub-nodes' connection identities.
func (nw *Network) Info() ConnectionInfo { return nw.info }

// Details implements EndpointConf: a Network can be handed directly to
// NewNode as the outer node's connection, per spec §4.11 ("[Network]
// exposes the same ConnectionBuilder contract to the outer Node").
func (nw *Network) Details() ConnectionDetails {
	return ConnectionDetails{Kind: ConnectionNetwork}
}

// Connect implements EndpointConf. It does not mint Channels of its own —
// a Network's sub-nodes already own their own Connections and Channels —
// instead it bridges the outer Connection's incoming/outgoing buses onto
// this Network's merged event stream and outgoing fan-out, so frames from
// any sub-node surface through the outer Node and frames the outer Node
// sends are rerouted to whichever sub-node(s) match per
// matches_connection_reroute. It returns a nil ConnectionHandler: a
// Network's own lifetime is governed by its sub-nodes' individual retry
// loops, not by a single transport's completion.
func (nw *Network) Connect(factory ChannelFactory, onChannel func(*Channel) Closable) (handler *ConnectionHandler, stop func(), err error) {
	incomingRx := nw.events.Subscribe()
	outgoingRx := factory.fanout.Subscribe()

	go func() {
		for ev := range incomingRx.C() {
			if f, ok := ev.(EventFrame); ok {
				_ = factory.incoming.Send(IncomingFrame{Frame: f.Frame, Channel: f.Channel})
			}
		}
	}()
	go func() {
		for out := range outgoingRx.C() {
			_ = nw.outgoing.NewSender().Send(out)
		}
	}()

	stop = func() {
		incomingRx.Unsubscribe()
		outgoingRx.Unsubscribe()
		nw.Close()
	}
	return nil, stop, nil
}

// Add connects a new sub-node over endpoint and folds its events and
// outgoing traffic into the network. The returned id stays valid across
// reconnects of this sub-node.
func (nw *Network) Add(endpoint EndpointConf) (NetworkNodeID, error) {
	node, err := NewNode(nw.conf.NodeConf, endpoint)
	if err != nil {
		return NetworkNodeID{}, fmt.Errorf("gomavlib: network add node: %w", err)
	}

	id := NetworkNodeID{id: newUniqueID()}
	entry := &networkNodeEntry{endpoint: endpoint, remaining: nw.conf.Retry.attempts}

	nw.mu.Lock()
	nw.entries[id] = entry
	nw.nodes[id] = node
	nw.mu.Unlock()

	nw.spawnNodeHandlers(id, node)
	return id, nil
}

// Remove disconnects and stops tracking the sub-node identified by id. It
// will not be reconnected even if the retry strategy would otherwise allow
// it.
func (nw *Network) Remove(id NetworkNodeID) {
	nw.mu.Lock()
	node := nw.nodes[id]
	delete(nw.entries, id)
	delete(nw.nodes, id)
	nw.mu.Unlock()

	if node != nil {
		node.Close()
	}
}

// Events returns a fresh subscription to every event any of this
// network's sub-nodes produces.
func (nw *Network) Events() Receiver[Event] {
	return nw.events.Subscribe()
}

// Broadcast sends frame to every channel of every current sub-node.
func (nw *Network) Broadcast(frame *message.Frame) error {
	return nw.outgoing.NewSender().Send(NewOutgoingFrame(frame))
}

// SendTo sends frame to every channel of the single sub-node identified by
// id.
func (nw *Network) SendTo(frame *message.Frame, id NetworkNodeID) error {
	nw.mu.Lock()
	node, ok := nw.nodes[id]
	nw.mu.Unlock()
	if !ok {
		return fmt.Errorf("gomavlib: network send: unknown node")
	}

	scope := ScopeExactConnection(node.ConnectionID())
	return nw.outgoing.NewSender().Send(newScopedOutgoingFrame(frame, scope))
}

// Close stops the supervisor and every currently connected sub-node.
func (nw *Network) Close() {
	nw.closer.Close()

	nw.mu.Lock()
	nodes := make([]*Node, 0, len(nw.nodes))
	for _, n := range nw.nodes {
		nodes = append(nodes, n)
	}
	nw.entries = make(map[NetworkNodeID]*networkNodeEntry)
	nw.nodes = make(map[NetworkNodeID]*Node)
	nw.mu.Unlock()

	for _, n := range nodes {
		n.Close()
	}
}

func (nw *Network) spawnNodeHandlers(id NetworkNodeID, node *Node) {
	go nw.relayEvents(node)
	go nw.relayOutgoing(node)
	go nw.watchNodeState(id, node)
}

// relayEvents folds node's own events into the network's merged stream,
// adapting reply callbacks so a consumer replying to a network-level event
// still addresses the right sub-node and channel.
func (nw *Network) relayEvents(node *Node) {
	rx := node.Events()
	sender := nw.events.NewSender()

	for ev := range rx.C() {
		switch e := ev.(type) {
		case EventFrame:
			e.callback = e.callback.IntoChannel()
			_ = sender.Send(e)
		case EventInvalid:
			e.callback = e.callback.IntoChannel()
			_ = sender.Send(e)
		default:
			_ = sender.Send(ev)
		}
	}
}

// relayOutgoing forwards network-level outgoing frames addressed to node
// onto node's own connection, rerouting broadcast scopes that cross the
// network/sub-node boundary.
func (nw *Network) relayOutgoing(node *Node) {
	rx := nw.outgoing.Subscribe()
	defer rx.Unsubscribe()

	connID := node.ConnectionID()
	closed := node.closer.AsClosable()

	ticker := time.NewTicker(networkPollInterval)
	defer ticker.Stop()

	for {
		select {
		case out, ok := <-rx.C():
			if !ok {
				return
			}
			if out.matchesConnectionReroute(connID) {
				_ = node.conn.Sender().Send(out)
			}
		case <-ticker.C:
			if closed.IsClosed() {
				return
			}
		}
	}
}

// watchNodeState notifies the supervisor once node's underlying connection
// closes, whether from a transport error or an explicit Remove.
func (nw *Network) watchNodeState(id NetworkNodeID, node *Node) {
	closed := node.closer.AsClosable()
	networkClosed := nw.closer.AsClosable()

	ticker := time.NewTicker(networkPollInterval)
	defer ticker.Stop()

	for range ticker.C {
		if networkClosed.IsClosed() {
			return
		}
		if closed.IsClosed() {
			select {
			case nw.closedCh <- id:
			default:
			}
			return
		}
	}
}

func (nw *Network) run() {
	closed := nw.closer.AsClosable()

	for {
		select {
		case id := <-nw.closedCh:
			nw.handleNodeStopped(id)
		case <-time.After(networkPollInterval):
		}

		if closed.IsClosed() {
			return
		}

		nw.mu.Lock()
		empty := len(nw.entries) == 0
		nw.mu.Unlock()
		if empty {
			return
		}
	}
}

func (nw *Network) handleNodeStopped(id NetworkNodeID) {
	nw.mu.Lock()
	entry, ok := nw.entries[id]
	delete(nw.nodes, id)
	nw.mu.Unlock()
	if !ok {
		return
	}

	switch nw.conf.Retry.kind {
	case retryNever:
		nw.giveUp(id)
	case retryAttempts:
		if entry.remaining <= 0 {
			nw.giveUp(id)
			return
		}
		entry.remaining--
		time.AfterFunc(nw.conf.Retry.interval, func() { nw.restart(id, entry) })
	case retryAlways:
		time.AfterFunc(nw.conf.Retry.interval, func() { nw.restart(id, entry) })
	}
}

func (nw *Network) giveUp(id NetworkNodeID) {
	nw.mu.Lock()
	delete(nw.entries, id)
	stopOnDown := nw.conf.StopOnNodeDown
	nw.mu.Unlock()

	if stopOnDown {
		nw.Close()
	}
}

func (nw *Network) restart(id NetworkNodeID, entry *networkNodeEntry) {
	if nw.closer.AsClosable().IsClosed() {
		return
	}

	node, err := NewNode(nw.conf.NodeConf, entry.endpoint)
	if err != nil {
		nw.handleNodeStopped(id)
		return
	}

	nw.mu.Lock()
	if _, stillTracked := nw.entries[id]; !stillTracked {
		nw.mu.Unlock()
		node.Close()
		return
	}
	nw.nodes[id] = node
	nw.mu.Unlock()

	nw.spawnNodeHandlers(id, node)
}
