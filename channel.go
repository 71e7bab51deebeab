package gomavlib

import (
	"errors"
	"io"
	"log"
	"net"
	"time"

	"github.com/flightwire/gomavlib/pkg/message"
)

// Stream is the transport a Channel reads frames from and writes frames
// to. net.Conn satisfies it directly; EndpointSerial wraps a serial port to
// satisfy it too.
type Stream interface {
	io.ReadWriter
	io.Closer
	SetReadDeadline(t time.Time) error
	SetWriteDeadline(t time.Time) error
}

const (
	channelReadPoll  = 200 * time.Millisecond
	channelWritePoll = 200 * time.Millisecond

	channelStopPollInterval     = 10 * time.Millisecond
	channelStopJoinAttempts     = 50
	channelStopJoinPollInterval = 10 * time.Millisecond
)

// ChannelFactory builds Channels that share a Connection's outgoing
// fan-out bus and feed a single shared incoming frame sink.
type ChannelFactory struct {
	info      ConnectionInfo
	state     Closable
	outgoing  Sender[OutgoingFrame]
	fanout    *Bus[OutgoingFrame]
	incoming  Sender[IncomingFrame]
}

func newChannelFactory(info ConnectionInfo, state Closable, fanout *Bus[OutgoingFrame], incoming Sender[IncomingFrame]) ChannelFactory {
	return ChannelFactory{
		info:     info,
		state:    state,
		outgoing: fanout.NewSender(),
		fanout:   fanout,
		incoming: incoming,
	}
}

// Info returns the owning connection's info.
func (f ChannelFactory) Info() ConnectionInfo { return f.info }

// IsClosed reports whether the owning connection has closed.
func (f ChannelFactory) IsClosed() bool { return f.state.IsClosed() }

// Sender returns a sender for frames outgoing on the owning connection.
func (f ChannelFactory) Sender() Sender[OutgoingFrame] { return f.outgoing }

// Build constructs a Channel for a freshly accepted/dialed stream.
func (f ChannelFactory) Build(details ChannelDetails, stream Stream) *Channel {
	return &Channel{
		connState: f.state,
		info:      f.info.MakeChannelInfo(details),
		stream:    stream,
		outgoing:  f.fanout.Subscribe(),
		incoming:  f.incoming,
	}
}

// Channel owns one peer stream (a TCP connection, a serial port) within a
// Connection: a reader goroutine, a writer goroutine, and a supervisor that
// keeps them paired.
type Channel struct {
	connState Closable
	info      ChannelInfo
	stream    Stream
	outgoing  Receiver[OutgoingFrame]
	incoming  Sender[IncomingFrame]
}

// Info returns this channel's identity and stream details.
func (c *Channel) Info() ChannelInfo { return c.info }

// Spawn starts the channel's reader, writer, and supervisor goroutines and
// returns a SharedCloser controlling its lifetime. The channel keeps
// running until either the owning Connection closes, the stream errors
// out, or the returned SharedCloser is closed directly.
func (c *Channel) Spawn() SharedCloser {
	state := NewSharedCloser()

	writeDone := make(chan struct{})
	readDone := make(chan struct{})

	go func() {
		defer close(writeDone)
		c.writeLoop(state.AsClosable())
	}()

	go func() {
		defer close(readDone)
		c.readLoop(state.AsClosable())
	}()

	go c.superviseStop(state, writeDone, readDone)

	return state
}

func (c *Channel) writeLoop(state Closable) {
	for {
		select {
		case out, ok := <-c.outgoing.C():
			if !ok {
				_ = c.stream.Close()
				return
			}
			if !out.shouldSendTo(c.info.ID()) {
				continue
			}
			if err := c.writeFrame(out.Frame()); err != nil {
				log.Printf("gomavlib: channel %s: write error: %v", c.info, err)
				return
			}
		case <-time.After(channelWritePoll):
		}
		if state.IsClosed() || c.connState.IsClosed() {
			return
		}
	}
}

func (c *Channel) writeFrame(frame *message.Frame) error {
	data := frame.Encode()
	for {
		if err := c.stream.SetWriteDeadline(time.Now().Add(channelWritePoll)); err != nil {
			return err
		}
		_, err := c.stream.Write(data)
		if err == nil {
			return nil
		}
		if isTimeout(err) {
			continue
		}
		return err
	}
}

func (c *Channel) readLoop(state Closable) {
	buf := make([]byte, 0, 4096)
	scratch := make([]byte, 2048)

	for {
		if c.connState.IsClosed() || state.IsClosed() {
			return
		}

		if err := c.stream.SetReadDeadline(time.Now().Add(channelReadPoll)); err != nil {
			return
		}
		n, err := c.stream.Read(scratch)
		if n > 0 {
			buf = append(buf, scratch[:n]...)
		}
		if err != nil {
			if isTimeout(err) {
				continue
			}
			// Any other I/O error, including EOF, is fatal to this reader.
			return
		}

		for {
			frame, consumed, err := message.Decode(buf)
			if err != nil {
				if errors.Is(err, message.ErrTooShort) {
					break
				}
				// drop one byte and resync on malformed input.
				buf = buf[1:]
				continue
			}
			buf = buf[consumed:]
			_ = c.incoming.Send(IncomingFrame{Frame: frame, Channel: c.info})
		}
	}
}

func (c *Channel) superviseStop(state SharedCloser, writeDone, readDone chan struct{}) {
	for {
		select {
		case <-writeDone:
			state.Close()
		case <-readDone:
			state.Close()
		case <-time.After(channelStopPollInterval):
		}
		if state.IsClosed() || c.connState.IsClosed() {
			break
		}
	}
	state.Close()
	_ = c.stream.Close()

	for i := 0; i < channelStopJoinAttempts; i++ {
		writeFinished := isClosed(writeDone)
		readFinished := isClosed(readDone)
		if writeFinished && readFinished {
			return
		}
		time.Sleep(channelStopJoinPollInterval)
		if i == channelStopJoinAttempts-1 {
			log.Printf("gomavlib: channel %s: write/read handlers stuck, finished: write=%v read=%v",
				c.info, writeFinished, readFinished)
		}
	}
}

func isClosed(ch chan struct{}) bool {
	select {
	case <-ch:
		return true
	default:
		return false
	}
}

func isTimeout(err error) bool {
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
