package gomavlib

import (
	"errors"
	"time"

	"github.com/flightwire/gomavlib/pkg/message"
)

// recvPollInterval bounds how long a blocking Recv call can take to notice
// that its Bus has closed: Bus never actively closes a subscriber's channel
// on close, only on eviction or Unsubscribe, so Recv/RecvTimeout must poll
// the gating Closable themselves rather than rely solely on the channel
// being closed out from under them.
const recvPollInterval = 20 * time.Millisecond

// RecvErrorKind discriminates the reason a Recv-family call returned
// without a value.
type RecvErrorKind int

const (
	// RecvEmpty means TryRecv found nothing waiting.
	RecvEmpty RecvErrorKind = iota
	// RecvDisconnected means the bus backing the receiver has closed; no
	// further values will ever arrive.
	RecvDisconnected
	// RecvTimedOut means a RecvTimeout call's deadline elapsed first.
	RecvTimedOut
)

// RecvError is returned by the Recv family of methods in place of a value.
type RecvError struct {
	Kind RecvErrorKind
}

func (e RecvError) Error() string {
	switch e.Kind {
	case RecvEmpty:
		return "gomavlib: recv: empty"
	case RecvDisconnected:
		return "gomavlib: recv: disconnected"
	case RecvTimedOut:
		return "gomavlib: recv: timed out"
	default:
		return "gomavlib: recv: unknown"
	}
}

// ErrRecvEmpty, ErrRecvDisconnected and ErrRecvTimedOut are the sentinel
// RecvErrors TryRecv/Recv/RecvTimeout return; compare with errors.Is.
var (
	ErrRecvEmpty        = RecvError{Kind: RecvEmpty}
	ErrRecvDisconnected = RecvError{Kind: RecvDisconnected}
	ErrRecvTimedOut     = RecvError{Kind: RecvTimedOut}
)

func (e RecvError) Is(target error) bool {
	var other RecvError
	if errors.As(target, &other) {
		return other.Kind == e.Kind
	}
	return false
}

// Recv blocks until the next value arrives or the bus closes.
func (r Receiver[T]) Recv() (T, error) {
	for {
		select {
		case v, ok := <-r.ch:
			if !ok {
				var zero T
				return zero, ErrRecvDisconnected
			}
			return v, nil
		case <-time.After(recvPollInterval):
			if r.bus.state.IsClosed() {
				var zero T
				return zero, ErrRecvDisconnected
			}
		}
	}
}

// RecvTimeout blocks until the next value arrives, the bus closes, or
// timeout elapses first.
func (r Receiver[T]) RecvTimeout(timeout time.Duration) (T, error) {
	deadline := time.Now().Add(timeout)
	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			var zero T
			return zero, ErrRecvTimedOut
		}
		wait := remaining
		if wait > recvPollInterval {
			wait = recvPollInterval
		}
		select {
		case v, ok := <-r.ch:
			if !ok {
				var zero T
				return zero, ErrRecvDisconnected
			}
			return v, nil
		case <-time.After(wait):
			if r.bus.state.IsClosed() {
				var zero T
				return zero, ErrRecvDisconnected
			}
		}
	}
}

// TryRecv returns immediately: the next value if one is already waiting,
// ErrRecvDisconnected if the bus has closed, or ErrRecvEmpty otherwise.
func (r Receiver[T]) TryRecv() (T, error) {
	select {
	case v, ok := <-r.ch:
		if !ok {
			var zero T
			return zero, ErrRecvDisconnected
		}
		return v, nil
	default:
	}
	if r.bus.state.IsClosed() {
		var zero T
		return zero, ErrRecvDisconnected
	}
	var zero T
	return zero, ErrRecvEmpty
}

// Recv blocks for the next event on this node's own receive cursor, or
// returns an error once the node closes. It shares state with RecvFrame and
// the Try/Timeout variants below, but not with a separate Events()
// subscription: each call advances the same cursor.
func (n *Node) Recv() (Event, error) {
	return n.recv.Recv()
}

// RecvTimeout is Recv bounded by timeout.
func (n *Node) RecvTimeout(timeout time.Duration) (Event, error) {
	return n.recv.RecvTimeout(timeout)
}

// TryRecv is Recv without blocking.
func (n *Node) TryRecv() (Event, error) {
	return n.recv.TryRecv()
}

// recvFrame drains rx until it sees an EventFrame or a recv error. Every
// other event kind, including EventInvalid, is skipped: a caller who cares
// about invalid frames should use Recv/Events instead, per the sync/async
// ReceiveFrame contract this mirrors.
func recvFrame(get func() (Event, error)) (*message.Frame, ChannelInfo, error) {
	for {
		ev, err := get()
		if err != nil {
			return nil, ChannelInfo{}, err
		}
		if e, ok := ev.(EventFrame); ok {
			return e.Frame, e.Channel, nil
		}
	}
}

// RecvFrame blocks for the next valid incoming frame, skipping NewPeer and
// PeerLost events along the way.
func (n *Node) RecvFrame() (*message.Frame, ChannelInfo, error) {
	return recvFrame(n.recv.Recv)
}

// RecvFrameTimeout is RecvFrame bounded by timeout. The deadline applies to
// the whole call, not to each skipped non-Frame event individually.
func (n *Node) RecvFrameTimeout(timeout time.Duration) (*message.Frame, ChannelInfo, error) {
	deadline := time.Now().Add(timeout)
	return recvFrame(func() (Event, error) {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			var zero Event
			return zero, ErrRecvTimedOut
		}
		return n.recv.RecvTimeout(remaining)
	})
}

// TryRecvFrame is RecvFrame without blocking: it returns ErrRecvEmpty as
// soon as no event is immediately available, even if that event would have
// been a NewPeer or PeerLost rather than a Frame.
func (n *Node) TryRecvFrame() (*message.Frame, ChannelInfo, error) {
	return recvFrame(n.recv.TryRecv)
}

// IsConnected reports whether this node's underlying connection is still
// open.
func (n *Node) IsConnected() bool {
	return !n.conn.AsClosable().IsClosed()
}

// HasPeers reports whether any peer is currently tracked.
func (n *Node) HasPeers() bool {
	return len(n.peers.snapshot()) > 0
}
