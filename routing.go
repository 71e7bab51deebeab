package gomavlib

import "github.com/flightwire/gomavlib/pkg/message"

// ConnectionID identifies a particular Connection.
//
// It is opaque: it can only be compared for equality and used as a map key.
type ConnectionID struct {
	id uniqueID
}

func newConnectionID() ConnectionID {
	return ConnectionID{id: newUniqueID()}
}

// Contains reports whether channelID belongs to this connection.
func (c ConnectionID) Contains(channelID ChannelID) bool {
	return channelID.connection == c
}

// ChannelID identifies a channel within a particular connection.
//
// It is opaque: it can only be compared for equality and used as a map key.
type ChannelID struct {
	connection ConnectionID
	id         uniqueID
}

func newChannelID(connectionID ConnectionID) ChannelID {
	return ChannelID{connection: connectionID, id: newUniqueID()}
}

// ConnectionID returns the identifier of the connection this channel
// belongs to.
func (c ChannelID) ConnectionID() ConnectionID {
	return c.connection
}

// BelongsTo reports whether this channel belongs to connectionID.
func (c ChannelID) BelongsTo(connectionID ConnectionID) bool {
	return connectionID.Contains(c)
}

// IncomingFrame pairs a received frame with information about the channel
// it arrived on.
type IncomingFrame struct {
	Frame   *message.Frame
	Channel ChannelInfo
}

// OutgoingFrame pairs a frame queued for transmission with the scope of
// channels it should be delivered to.
type OutgoingFrame struct {
	frame *message.Frame
	scope BroadcastScope
}

// NewOutgoingFrame wraps frame for broadcast to all channels.
func NewOutgoingFrame(frame *message.Frame) OutgoingFrame {
	return OutgoingFrame{frame: frame, scope: BroadcastScope{kind: scopeAll}}
}

func newScopedOutgoingFrame(frame *message.Frame, scope BroadcastScope) OutgoingFrame {
	return OutgoingFrame{frame: frame, scope: scope}
}

// Frame returns the wrapped MAVLink frame.
func (o OutgoingFrame) Frame() *message.Frame {
	return o.frame
}

// Scope returns the broadcast scope of this frame.
func (o OutgoingFrame) Scope() BroadcastScope {
	return o.scope
}

func (o *OutgoingFrame) setScope(scope BroadcastScope) {
	o.scope = scope
}

// matchesConnectionReroute adjusts scope when a frame crosses from a
// Network aggregator into a sub-node's own bus, and reports whether the
// frame should be forwarded at all.
//
// Rules:
//   - ExceptConnection(id) matching connectionID: don't forward.
//   - ExactConnection(id) matching connectionID: rewrite to All, forward.
//   - Everything else: forward unchanged.
func (o *OutgoingFrame) matchesConnectionReroute(connectionID ConnectionID) bool {
	switch o.scope.kind {
	case scopeExceptConnection:
		if o.scope.connection == connectionID {
			return false
		}
	case scopeExactConnection:
		if o.scope.connection == connectionID {
			o.setScope(BroadcastScope{kind: scopeAll})
		}
	}
	return true
}

func (o OutgoingFrame) shouldSendTo(channelID ChannelID) bool {
	switch o.scope.kind {
	case scopeAll:
		return true
	case scopeExactChannel:
		return o.scope.channel == channelID
	case scopeExceptChannel:
		return o.scope.channel != channelID
	case scopeExceptChannelWithin:
		return channelID.ConnectionID().Contains(o.scope.channel) && o.scope.channel != channelID
	case scopeExactConnection:
		return o.scope.connection.Contains(channelID)
	case scopeExceptConnection:
		return !o.scope.connection.Contains(channelID)
	default:
		return true
	}
}

type broadcastScopeKind int

const (
	scopeAll broadcastScopeKind = iota
	scopeExactChannel
	scopeExceptChannel
	scopeExceptChannelWithin
	scopeExactConnection
	scopeExceptConnection
)

// BroadcastScope defines which channels an outgoing frame should be
// delivered to. The zero value is ScopeAll.
type BroadcastScope struct {
	kind       broadcastScopeKind
	channel    ChannelID
	connection ConnectionID
}

// ScopeAll broadcasts to every channel.
func ScopeAll() BroadcastScope {
	return BroadcastScope{kind: scopeAll}
}

// ScopeExactChannel restricts delivery to a single channel.
func ScopeExactChannel(id ChannelID) BroadcastScope {
	return BroadcastScope{kind: scopeExactChannel, channel: id}
}

// ScopeExceptChannel delivers to every channel except id.
func ScopeExceptChannel(id ChannelID) BroadcastScope {
	return BroadcastScope{kind: scopeExceptChannel, channel: id}
}

// ScopeExceptChannelWithin delivers to every channel of id's own connection
// except id itself.
func ScopeExceptChannelWithin(id ChannelID) BroadcastScope {
	return BroadcastScope{kind: scopeExceptChannelWithin, channel: id}
}

// ScopeExactConnection restricts delivery to a single connection.
func ScopeExactConnection(id ConnectionID) BroadcastScope {
	return BroadcastScope{kind: scopeExactConnection, connection: id}
}

// ScopeExceptConnection delivers to every connection except id.
func ScopeExceptConnection(id ConnectionID) BroadcastScope {
	return BroadcastScope{kind: scopeExceptConnection, connection: id}
}
