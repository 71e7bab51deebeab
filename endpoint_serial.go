package gomavlib

import (
	"fmt"
	"time"

	"go.bug.st/serial"
)

// EndpointSerial opens a single serial port, producing one Channel. Baud
// rate is the only mode setting the spec's transport contract cares about;
// everything else uses go.bug.st/serial's defaults (8N1, no flow control).
type EndpointSerial struct {
	Path     string
	BaudRate uint32
}

// Details implements EndpointConf.
func (e EndpointSerial) Details() ConnectionDetails {
	return ConnectionDetails{Kind: ConnectionSerialPort, Path: e.Path, BaudRate: e.BaudRate}
}

// Connect implements EndpointConf. Like a TCP client, a serial port has
// exactly one channel, so its ConnectionHandler finishes when that channel
// dies.
func (e EndpointSerial) Connect(factory ChannelFactory, onChannel func(*Channel) Closable) (*ConnectionHandler, func(), error) {
	port, err := serial.Open(e.Path, &serial.Mode{BaudRate: int(e.BaudRate)})
	if err != nil {
		return nil, nil, fmt.Errorf("gomavlib: open serial port %s: %w", e.Path, err)
	}

	stream := &serialStream{port: port}
	details := ChannelDetails{Kind: ChannelSerialPort, Path: e.Path, BaudRate: e.BaudRate}
	ch := factory.Build(details, stream)
	chState := onChannel(ch)

	handler := newConnectionHandler()
	go func() {
		chState.Wait()
		handler.finish(errTransportChannelClosed)
	}()

	return handler, func() { _ = port.Close() }, nil
}

// serialStream adapts a serial.Port, which has no read/write deadlines, to
// Channel's Stream interface by translating a read deadline into
// SetReadTimeout. Serial writes are not expected to block for long, so
// SetWriteDeadline is a no-op.
type serialStream struct {
	port serial.Port
}

func (s *serialStream) Read(p []byte) (int, error)  { return s.port.Read(p) }
func (s *serialStream) Write(p []byte) (int, error) { return s.port.Write(p) }
func (s *serialStream) Close() error                { return s.port.Close() }

func (s *serialStream) SetReadDeadline(t time.Time) error {
	timeout := time.Until(t)
	if timeout < 0 {
		timeout = 0
	}
	return s.port.SetReadTimeout(timeout)
}

func (s *serialStream) SetWriteDeadline(time.Time) error {
	return nil
}
