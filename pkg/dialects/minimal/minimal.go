// Package minimal implements the MAVLink "minimal" dialect: just enough to
// identify a system on the network. It is always present in a node's known
// dialects and cannot be removed, mirroring the upstream MAVLink XML
// dialect of the same name.
package minimal

import (
	"encoding/binary"
	"fmt"

	"github.com/flightwire/gomavlib/pkg/message"
)

// HeartbeatMessageID is the MAVLink message id for HEARTBEAT.
const HeartbeatMessageID = 0

// heartbeatCRCExtra is the dialect-defined checksum seed for HEARTBEAT.
const heartbeatCRCExtra = 50

// MavType enumerates the MAV_TYPE values relevant to heartbeat emission.
type MavType uint8

const (
	MavTypeGeneric MavType = 0
	MavTypeGCS     MavType = 6
)

// MavAutopilot enumerates the MAV_AUTOPILOT values relevant to heartbeat
// emission.
type MavAutopilot uint8

const (
	MavAutopilotGeneric MavAutopilot = 0
	MavAutopilotInvalid MavAutopilot = 8
)

// MavState enumerates the MAV_STATE values.
type MavState uint8

const (
	MavStateUninit  MavState = 0
	MavStateActive  MavState = 4
)

// Heartbeat is the HEARTBEAT message: the only message this dialect
// defines, and the only one gomavlib's peer tracker and heartbeat emitter
// depend on directly.
type Heartbeat struct {
	Type           MavType
	Autopilot      MavAutopilot
	BaseMode       uint8
	CustomMode     uint32
	SystemStatus   MavState
	MavlinkVersion uint8
}

// ID implements message.Message.
func (*Heartbeat) ID() uint32 { return HeartbeatMessageID }

// CRCExtra implements message.Message.
func (*Heartbeat) CRCExtra() byte { return heartbeatCRCExtra }

// Encode implements message.Message.
func (h *Heartbeat) Encode() []byte {
	buf := make([]byte, 9)
	binary.LittleEndian.PutUint32(buf[0:4], h.CustomMode)
	buf[4] = byte(h.Type)
	buf[5] = byte(h.Autopilot)
	buf[6] = h.BaseMode
	buf[7] = byte(h.SystemStatus)
	buf[8] = h.MavlinkVersion
	return buf
}

// Decode implements message.Message.
func (h *Heartbeat) Decode(payload []byte) error {
	if len(payload) < 9 {
		return fmt.Errorf("gomavlib/dialects/minimal: heartbeat payload too short: %d bytes", len(payload))
	}
	h.CustomMode = binary.LittleEndian.Uint32(payload[0:4])
	h.Type = MavType(payload[4])
	h.Autopilot = MavAutopilot(payload[5])
	h.BaseMode = payload[6]
	h.SystemStatus = MavState(payload[7])
	h.MavlinkVersion = payload[8]
	return nil
}

var _ message.Message = (*Heartbeat)(nil)

// CRCExtra looks up the checksum seed for a message id known to this
// dialect. ok is false for any id outside the dialect.
func CRCExtra(messageID uint32) (extra byte, ok bool) {
	if messageID == HeartbeatMessageID {
		return heartbeatCRCExtra, true
	}
	return 0, false
}

// Name is the dialect's name, as used by gomavlib.KnownDialects.
const Name = "minimal"

// Version is this dialect's declared MAVLink protocol version, used to
// populate HEARTBEAT's mavlink_version field.
const Version uint8 = 3
