package gomavlib

import "github.com/flightwire/gomavlib/pkg/message"

// Event is implemented by every kind of event a Node's event stream can
// produce. Consumers type-switch on the concrete type.
type Event interface {
	isEvent()
}

// EventNewPeer fires the first time a heartbeat is seen from a
// (system id, component id) pair.
type EventNewPeer struct {
	Peer Peer
}

func (EventNewPeer) isEvent() {}

// EventPeerLost fires when a tracked peer has not sent a heartbeat within
// its timeout window.
type EventPeerLost struct {
	Peer Peer
}

func (EventPeerLost) isEvent() {}

// EventFrame fires for every frame that passes frame processing
// successfully.
type EventFrame struct {
	Frame    *message.Frame
	Channel  ChannelInfo
	callback Callback
}

func (EventFrame) isEvent() {}

// Callback returns the reply callback bound to the channel this frame
// arrived on.
func (e EventFrame) Callback() Callback { return e.callback }

// EventInvalid fires for a frame that failed frame processing (bad
// signature, rejected incompat/compat flags, message id outside the known
// dialects, or an error from a custom processor).
type EventInvalid struct {
	Frame    *message.Frame
	Err      error
	Channel  ChannelInfo
	callback Callback
}

func (EventInvalid) isEvent() {}

// Callback returns the reply callback bound to the channel this frame
// arrived on.
func (e EventInvalid) Callback() Callback { return e.callback }
