package gomavlib

import (
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/flightwire/gomavlib/pkg/dialects/minimal"
	"github.com/flightwire/gomavlib/pkg/message"
)

// ErrNodeInactive is returned by Activate/Deactivate once the node that
// owns them has closed; the transport is gone, so there is nothing left to
// gate heartbeat emission on.
var ErrNodeInactive = errors.New("gomavlib: node is no longer active")

// NodeKind distinguishes a node that originates its own identity
// (heartbeats, sequence numbers) from one that only relays frames between
// other parties.
type NodeKind int

const (
	// NodeEdge is a node with its own system/component id that emits its
	// own heartbeat and is a first-class participant in the network.
	NodeEdge NodeKind = iota
	// NodeProxy relays frames between other parties without originating
	// its own heartbeat.
	NodeProxy
)

// NodeVersion pins the MAVLink protocol version a Node emits, or allows
// either version to pass through unmodified.
type NodeVersion int

const (
	NodeVersionV1 NodeVersion = iota
	NodeVersionV2
	NodeVersionless
)

func (v NodeVersion) frameVersion() message.FrameVersion {
	if v == NodeVersionV1 {
		return message.V1
	}
	return message.V2
}

const (
	defaultPeerTimeout     = 10 * time.Second
	defaultPeerTolerance   = 2.5
	defaultEventRetention  = 0
	peerSweepIntervalRatio = 4
	nodeConnectionPoll     = 50 * time.Millisecond
)

// NodeConf configures a Node. See NodeBuilder for an ergonomic way to
// assemble one.
type NodeConf struct {
	SystemID      uint8
	ComponentID   uint8
	Kind          NodeKind
	Version       NodeVersion
	Heartbeat     HeartbeatConf
	Processor     *FrameProcessor
	PeerTimeout   time.Duration
	PeerTolerance float64
	// EventRetention is how many past events a late Events() subscriber
	// replays, via the Behold-style retentive bus.
	EventRetention int
}

func (c NodeConf) withDefaults() NodeConf {
	if c.Processor == nil {
		c.Processor = NewFrameProcessorBuilder().Build()
	}
	if c.PeerTimeout == 0 {
		c.PeerTimeout = defaultPeerTimeout
	}
	if c.PeerTolerance == 0 {
		c.PeerTolerance = defaultPeerTolerance
	}
	return c
}

// NodeBuilder assembles a NodeConf fluently.
type NodeBuilder struct {
	conf NodeConf
}

// NewNodeBuilder starts a builder for an Edge node with the given identity
// and a default GCS-flavored heartbeat.
func NewNodeBuilder(systemID, componentID uint8) *NodeBuilder {
	return &NodeBuilder{conf: NodeConf{
		SystemID:    systemID,
		ComponentID: componentID,
		Kind:        NodeEdge,
		Heartbeat:   DefaultHeartbeatConf(),
	}}
}

// Proxy marks the node as NodeProxy, disabling heartbeat emission.
func (b *NodeBuilder) Proxy() *NodeBuilder {
	b.conf.Kind = NodeProxy
	b.conf.Heartbeat.Enabled = false
	return b
}

// Version sets the node's MAVLink version.
func (b *NodeBuilder) Version(v NodeVersion) *NodeBuilder {
	b.conf.Version = v
	return b
}

// Heartbeat overrides the default heartbeat configuration.
func (b *NodeBuilder) Heartbeat(conf HeartbeatConf) *NodeBuilder {
	b.conf.Heartbeat = conf
	return b
}

// Processor attaches a FrameProcessor (signing, compat, dialects, custom
// processors).
func (b *NodeBuilder) Processor(p *FrameProcessor) *NodeBuilder {
	b.conf.Processor = p
	return b
}

// PeerTimeout sets how long a peer may go silent before it is considered
// lost. tolerance multiplies timeout for the actual eviction deadline.
func (b *NodeBuilder) PeerTimeout(timeout time.Duration, tolerance float64) *NodeBuilder {
	b.conf.PeerTimeout = timeout
	b.conf.PeerTolerance = tolerance
	return b
}

// EventRetention sets how many past events a late Events() subscriber
// replays.
func (b *NodeBuilder) EventRetention(depth int) *NodeBuilder {
	b.conf.EventRetention = depth
	return b
}

// Build finalizes the NodeConf. Pass it to NewNode with an EndpointConf to
// actually start the node.
func (b *NodeBuilder) Build() NodeConf {
	return b.conf.withDefaults()
}

// Node composes a Connection, a FrameProcessor, a peer tracker, a heartbeat
// emitter, and an event stream into a single MAVLink participant.
type Node struct {
	conf      NodeConf
	conn      *Connection
	ownsConn  bool
	processor *FrameProcessor
	peers     *peerTracker
	events    *Bus[Event]
	sequence  atomic.Uint32
	active    *Switch
	closer    *Closer
	incoming  *Bus[IncomingFrame]
	recv      Receiver[Event]
}

// NewNode builds a Node from conf, connecting endpoint immediately.
func NewNode(conf NodeConf, endpoint EndpointConf) (*Node, error) {
	conf = conf.withDefaults()
	closer := NewCloser()

	incoming := NewBus[IncomingFrame](closer.AsClosable())
	conn, err := NewConnection(endpoint, incoming.NewSender())
	if err != nil {
		closer.Close()
		return nil, err
	}

	n := &Node{
		conf:      conf,
		conn:      conn,
		ownsConn:  true,
		processor: conf.Processor,
		peers:     newPeerTracker(conf.PeerTimeout, conf.PeerTolerance),
		events:    NewRetentiveBus[Event](closer.AsClosable(), conf.EventRetention),
		closer:    closer,
		incoming:  incoming,
	}
	n.active = NewSwitch(closer.AsClosable(), true)
	n.recv = n.events.Subscribe()

	n.start()
	return n, nil
}

// NodeFromProxy builds a dependent Edge node that reuses an existing Proxy
// node's Connection rather than opening its own transport. Closing the
// dependent node never closes the proxy's connection; closing the proxy (or
// the proxy's transport failing) closes every dependent node built from it.
func NodeFromProxy(conf NodeConf, proxy *Node) (*Node, error) {
	if proxy.conf.Kind != NodeProxy {
		return nil, fmt.Errorf("gomavlib: NodeFromProxy requires a Proxy node")
	}
	conf = conf.withDefaults()
	closer := NewCloser()

	n := &Node{
		conf:      conf,
		conn:      proxy.conn,
		processor: conf.Processor,
		peers:     newPeerTracker(conf.PeerTimeout, conf.PeerTolerance),
		events:    NewRetentiveBus[Event](closer.AsClosable(), conf.EventRetention),
		closer:    closer,
		incoming:  proxy.incoming,
	}
	n.active = NewSwitch(closer.AsClosable(), true)
	n.recv = n.events.Subscribe()

	n.start()
	return n, nil
}

func (n *Node) start() {
	incomingRx := n.incoming.Subscribe()
	go n.processIncoming(incomingRx)
	go n.sweepPeers()
	go n.watchConnection()

	if n.conf.Kind == NodeEdge {
		emitter := newHeartbeatEmitter(
			n.conf.Heartbeat, n.conf.SystemID, n.conf.ComponentID,
			n.conf.Version.frameVersion(), n.processor.Dialects().Main(), &n.sequence, n.active,
			func(frame *message.Frame) { n.sendNewInternal(frame, ScopeAll()) },
		)
		go emitter.run(n.closer.AsClosable())
	}
}

// watchConnection closes the node once its underlying Connection closes,
// whether from an explicit Node.Close or the transport's own
// ConnectionHandler finishing (spec §4.5). This is what lets a Network
// notice a sub-node's transport failure and what lets Recv report
// ErrRecvDisconnected after a transport failure rather than only after an
// explicit Close.
func (n *Node) watchConnection() {
	connClosed := n.conn.AsClosable()
	nodeClosed := n.closer.AsClosable()

	ticker := time.NewTicker(nodeConnectionPoll)
	defer ticker.Stop()

	for range ticker.C {
		if nodeClosed.IsClosed() {
			return
		}
		if connClosed.IsClosed() {
			n.closer.Close()
			return
		}
	}
}

func (n *Node) processIncoming(rx Receiver[IncomingFrame]) {
	for in := range rx.C() {
		frame := in.Frame
		cb := newCallback(in.Channel.ID(), n.conn.Info(), n.conn.Sender(), n.processor)

		if err := n.processor.ProcessIncoming(frame); err != nil {
			n.events.NewSender().Send(EventInvalid{Frame: frame, Err: err, Channel: in.Channel, callback: cb})
			continue
		}

		if frame.MessageID() == minimal.HeartbeatMessageID {
			id := PeerID{SystemID: frame.SystemID(), ComponentID: frame.ComponentID()}
			if n.peers.upsert(id, time.Now()) {
				peer, _ := n.peers.get(id)
				n.events.NewSender().Send(EventNewPeer{Peer: peer})
			}
		}

		n.events.NewSender().Send(EventFrame{Frame: frame, Channel: in.Channel, callback: cb})
	}
}

func (n *Node) sweepPeers() {
	interval := n.conf.PeerTimeout / peerSweepIntervalRatio
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	closed := n.closer.AsClosable()
	for range ticker.C {
		if closed.IsClosed() {
			return
		}
		for _, peer := range n.peers.sweep(time.Now()) {
			n.events.NewSender().Send(EventPeerLost{Peer: peer})
		}
	}
}

// Events returns a fresh subscription to this node's event stream.
func (n *Node) Events() Receiver[Event] {
	return n.events.Subscribe()
}

// Activate enables heartbeat emission (Edge nodes only). Idempotent while
// the node is connected; returns ErrNodeInactive once the node has closed.
func (n *Node) Activate() error {
	if n.closer.IsClosed() {
		return ErrNodeInactive
	}
	n.active.Set(true)
	return nil
}

// Deactivate suspends heartbeat emission without closing the node.
// Idempotent while the node is connected; returns ErrNodeInactive once the
// node has closed.
func (n *Node) Deactivate() error {
	if n.closer.IsClosed() {
		return ErrNodeInactive
	}
	n.active.Set(false)
	return nil
}

// IsActive reports whether heartbeat emission is currently enabled.
func (n *Node) IsActive() bool { return n.active.Get() }

// Peers returns a snapshot of every currently tracked peer.
func (n *Node) Peers() []Peer { return n.peers.snapshot() }

// ConnectionID returns the id of this node's underlying connection.
func (n *Node) ConnectionID() ConnectionID { return n.conn.Info().ID() }

// Send broadcasts frame to every channel of this node's connection, after
// running it through the outgoing frame processor.
func (n *Node) Send(frame *message.Frame) error {
	return n.sendInternal(frame, ScopeAll())
}

// SendTo sends frame only to the given channel.
func (n *Node) SendTo(frame *message.Frame, channelID ChannelID) error {
	return n.sendInternal(frame, ScopeExactChannel(channelID))
}

// SendExcept sends frame to every channel except the given one.
func (n *Node) SendExcept(frame *message.Frame, channelID ChannelID) error {
	return n.sendInternal(frame, ScopeExceptChannel(channelID))
}

// SendMessage encodes msg with this node's own identity and next sequence
// number, using the MAVLink version fixed by NodeConf.Version, runs the
// outgoing pipeline, and broadcasts it to every channel. Edge nodes only;
// a Versionless node has no fixed version to encode with and must use
// SendMessageVersioned instead.
func (n *Node) SendMessage(msg message.Message) error {
	return n.BroadcastMessage(msg, ScopeAll())
}

// BroadcastMessage is SendMessage with an explicit broadcast scope.
func (n *Node) BroadcastMessage(msg message.Message, scope BroadcastScope) error {
	if n.conf.Version == NodeVersionless {
		return fmt.Errorf("gomavlib: node is Versionless: use SendMessageVersioned/BroadcastMessageVersioned")
	}
	return n.broadcastMessage(msg, n.conf.Version.frameVersion(), scope)
}

// SendMessageVersioned is SendMessage for a Versionless Edge node, which
// picks its MAVLink version per call rather than fixing one at
// construction.
func (n *Node) SendMessageVersioned(msg message.Message, version message.FrameVersion) error {
	return n.BroadcastMessageVersioned(msg, version, ScopeAll())
}

// BroadcastMessageVersioned is BroadcastMessage for a Versionless Edge node.
func (n *Node) BroadcastMessageVersioned(msg message.Message, version message.FrameVersion, scope BroadcastScope) error {
	return n.broadcastMessage(msg, version, scope)
}

func (n *Node) broadcastMessage(msg message.Message, version message.FrameVersion, scope BroadcastScope) error {
	if n.conf.Kind != NodeEdge {
		return fmt.Errorf("gomavlib: sending a typed message requires an Edge node")
	}
	frame := message.NewFrame(version, n.NextSequence(), n.conf.SystemID, n.conf.ComponentID, msg.ID(), msg.Encode())
	frame.ComputeCRC(msg.CRCExtra())
	return n.sendInternal(frame, scope)
}

func (n *Node) sendInternal(frame *message.Frame, scope BroadcastScope) error {
	if err := n.processor.ProcessOutgoing(frame); err != nil {
		return err
	}
	return n.conn.Sender().Send(newScopedOutgoingFrame(frame, scope))
}

// sendNewInternal is sendInternal's counterpart for frames this node just
// originated (its own heartbeat): it runs ProcessNewOutgoing instead of
// ProcessOutgoing so a Strict outgoing signer signs rather than rejects it.
func (n *Node) sendNewInternal(frame *message.Frame, scope BroadcastScope) error {
	if err := n.processor.ProcessNewOutgoing(frame); err != nil {
		return err
	}
	return n.conn.Sender().Send(newScopedOutgoingFrame(frame, scope))
}

// NextSequence returns the next outgoing sequence number for this node.
func (n *Node) NextSequence() uint8 {
	return uint8(n.sequence.Add(1))
}

// Close shuts down the node's background goroutines, and its connection
// too, but only if this node owns it: a NodeFromProxy dependent node
// borrows its Connection from the proxy it was built from, and closing the
// dependent must never tear that connection down for the proxy or its
// siblings (spec §4.10).
func (n *Node) Close() {
	n.closer.Close()
	if n.ownsConn {
		n.conn.Close()
	}
}
