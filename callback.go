package gomavlib

import "github.com/flightwire/gomavlib/pkg/message"

// Callback is handed to an Event's consumer alongside an incoming frame,
// letting it reply without having to look up which channel or connection
// the frame arrived on.
type Callback struct {
	channelID ChannelID
	conn      ConnectionInfo
	sender    Sender[OutgoingFrame]
	processor *FrameProcessor
}

func newCallback(channelID ChannelID, conn ConnectionInfo, sender Sender[OutgoingFrame], processor *FrameProcessor) Callback {
	return Callback{channelID: channelID, conn: conn, sender: sender, processor: processor}
}

// send runs frame through the outgoing processor pipeline before handing it
// to the connection's fan-out bus, same as a Node's own Send methods.
func (c Callback) send(frame *message.Frame, scope BroadcastScope) error {
	if c.processor != nil {
		if err := c.processor.ProcessOutgoing(frame); err != nil {
			return err
		}
	}
	return c.sender.Send(newScopedOutgoingFrame(frame, scope))
}

// ConnectionID returns the id of the connection the triggering frame
// arrived on.
func (c Callback) ConnectionID() ConnectionID {
	return c.conn.ID()
}

// ChannelID returns the id of the channel the triggering frame arrived on.
func (c Callback) ChannelID() ChannelID {
	return c.channelID
}

// Respond sends frame back on the same channel the triggering frame
// arrived on.
func (c Callback) Respond(frame *message.Frame) error {
	return c.send(frame, ScopeExactChannel(c.channelID))
}

// RespondOthers sends frame to every other channel of the same connection
// the triggering frame arrived on.
func (c Callback) RespondOthers(frame *message.Frame) error {
	return c.send(frame, ScopeExceptChannelWithin(c.channelID))
}

// Broadcast sends frame to every channel of every connection except the one
// the triggering frame arrived on — "everyone but sender", unlike
// RespondOthers which stays within the triggering channel's own connection.
func (c Callback) Broadcast(frame *message.Frame) error {
	return c.send(frame, ScopeExceptChannel(c.channelID))
}

// Send sends frame with an explicit broadcast scope.
func (c Callback) Send(frame *message.Frame, scope BroadcastScope) error {
	return c.send(frame, scope)
}

// IntoChannel returns this callback for re-use by a Network aggregator that
// is relaying a sub-node's event to its own subscribers. The callback is
// returned unchanged: it already sends through the sub-node's own
// connection, so a reply reaches the original channel directly and does not
// pass through the aggregator's connection-reroute rule.
func (c Callback) IntoChannel() Callback {
	return c
}
