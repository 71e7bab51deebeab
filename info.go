package gomavlib

import "fmt"

// ConnectionDetailsKind discriminates the kind of transport behind a
// Connection.
type ConnectionDetailsKind int

const (
	// ConnectionUnknown is the zero value, used only for placeholder info.
	ConnectionUnknown ConnectionDetailsKind = iota
	ConnectionTCPServer
	ConnectionTCPClient
	ConnectionSerialPort
	ConnectionNetwork
	ConnectionCustom
)

// ConnectionDetails describes the transport behind a Connection.
type ConnectionDetails struct {
	Kind ConnectionDetailsKind

	// TCP
	BindAddr   string
	RemoteAddr string

	// Serial
	Path     string
	BaudRate uint32

	// Custom
	Name string
}

func (d ConnectionDetails) String() string {
	switch d.Kind {
	case ConnectionTCPServer:
		return fmt.Sprintf("tcp-server(%s)", d.BindAddr)
	case ConnectionTCPClient:
		return fmt.Sprintf("tcp-client(%s)", d.RemoteAddr)
	case ConnectionSerialPort:
		return fmt.Sprintf("serial(%s@%d)", d.Path, d.BaudRate)
	case ConnectionNetwork:
		return "network"
	case ConnectionCustom:
		return fmt.Sprintf("custom(%s)", d.Name)
	default:
		return "unknown"
	}
}

// ConnectionInfo identifies a Connection and describes its transport.
type ConnectionInfo struct {
	id      ConnectionID
	details ConnectionDetails
}

func newConnectionInfo(details ConnectionDetails) ConnectionInfo {
	return ConnectionInfo{id: newConnectionID(), details: details}
}

// ID returns the connection's identifier.
func (c ConnectionInfo) ID() ConnectionID { return c.id }

// Details returns the connection's transport details.
func (c ConnectionInfo) Details() ConnectionDetails { return c.details }

func (c ConnectionInfo) String() string { return c.details.String() }

// MakeChannelInfo builds ChannelInfo for a channel within this connection.
func (c ConnectionInfo) MakeChannelInfo(details ChannelDetails) ChannelInfo {
	return ChannelInfo{id: newChannelID(c.id), details: details}
}

// ChannelDetailsKind discriminates the kind of stream behind a Channel.
type ChannelDetailsKind int

const (
	ChannelUnknown ChannelDetailsKind = iota
	ChannelTCPServer
	ChannelTCPClient
	ChannelSerialPort
	ChannelCustom
)

// ChannelDetails describes the stream behind a Channel.
type ChannelDetails struct {
	Kind ChannelDetailsKind

	ServerAddr string
	PeerAddr   string

	Path     string
	BaudRate uint32

	Name string
}

func (d ChannelDetails) String() string {
	switch d.Kind {
	case ChannelTCPServer:
		return fmt.Sprintf("tcp-server(%s<-%s)", d.ServerAddr, d.PeerAddr)
	case ChannelTCPClient:
		return fmt.Sprintf("tcp-client(%s)", d.ServerAddr)
	case ChannelSerialPort:
		return fmt.Sprintf("serial(%s@%d)", d.Path, d.BaudRate)
	case ChannelCustom:
		return fmt.Sprintf("custom(%s)", d.Name)
	default:
		return "unknown"
	}
}

// ChannelInfo identifies a Channel and describes its underlying stream.
type ChannelInfo struct {
	id      ChannelID
	details ChannelDetails
}

// ID returns the channel's identifier.
func (c ChannelInfo) ID() ChannelID { return c.id }

// ConnectionID returns the identifier of the connection this channel
// belongs to.
func (c ChannelInfo) ConnectionID() ConnectionID { return c.id.ConnectionID() }

// Details returns the channel's stream details.
func (c ChannelInfo) Details() ChannelDetails { return c.details }

func (c ChannelInfo) String() string { return c.details.String() }
