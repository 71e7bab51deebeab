package gomavlib

import (
	"sync/atomic"
	"time"

	"github.com/flightwire/gomavlib/pkg/dialects/minimal"
	"github.com/flightwire/gomavlib/pkg/message"
)

// HeartbeatConf configures periodic heartbeat emission. Only an Edge node
// emits heartbeats; a Proxy node forwards and inspects them but never
// originates its own.
type HeartbeatConf struct {
	Enabled      bool
	Interval     time.Duration
	Autopilot    minimal.MavAutopilot
	MavType      minimal.MavType
	SystemStatus minimal.MavState
}

// DefaultHeartbeatConf is a GCS-flavored heartbeat emitted once a second,
// matching the default most MAVLink ground station tooling expects.
func DefaultHeartbeatConf() HeartbeatConf {
	return HeartbeatConf{
		Enabled:      true,
		Interval:     time.Second,
		Autopilot:    minimal.MavAutopilotInvalid,
		MavType:      minimal.MavTypeGCS,
		SystemStatus: minimal.MavStateActive,
	}
}

// heartbeatEmitter periodically builds and emits this node's own
// HEARTBEAT, gated by the node's is_active switch.
type heartbeatEmitter struct {
	conf           HeartbeatConf
	systemID       uint8
	componentID    uint8
	sequence       *atomic.Uint32
	active         *Switch
	version        message.FrameVersion
	mavlinkVersion uint8

	send func(*message.Frame)
}

func newHeartbeatEmitter(conf HeartbeatConf, systemID, componentID uint8, version message.FrameVersion, mainDialect Dialect, sequence *atomic.Uint32, active *Switch, send func(*message.Frame)) *heartbeatEmitter {
	return &heartbeatEmitter{
		conf:           conf,
		systemID:       systemID,
		componentID:    componentID,
		sequence:       sequence,
		active:         active,
		version:        version,
		mavlinkVersion: mainDialect.Version,
		send:           send,
	}
}

// run blocks, emitting heartbeats on conf.Interval until closed closes.
func (h *heartbeatEmitter) run(closed Closable) {
	if !h.conf.Enabled {
		return
	}

	ticker := time.NewTicker(h.conf.Interval)
	defer ticker.Stop()

	for range ticker.C {
		if closed.IsClosed() {
			return
		}
		if h.active.Get() {
			h.send(h.buildFrame())
		}
	}
}

func (h *heartbeatEmitter) buildFrame() *message.Frame {
	hb := &minimal.Heartbeat{
		Type:           h.conf.MavType,
		Autopilot:      h.conf.Autopilot,
		SystemStatus:   h.conf.SystemStatus,
		MavlinkVersion: h.mavlinkVersion,
	}
	seq := uint8(h.sequence.Add(1))
	frame := message.NewFrame(h.version, seq, h.systemID, h.componentID, hb.ID(), hb.Encode())
	frame.ComputeCRC(hb.CRCExtra())
	return frame
}
