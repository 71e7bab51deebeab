package gomavlib

import (
	"github.com/flightwire/gomavlib/pkg/dialects/minimal"
	"github.com/flightwire/gomavlib/pkg/message"
)

// Dialect describes a MAVLink dialect's checksum-extra lookup, which is all
// the core router needs to validate frames without depending on a
// dialect's full generated message set.
type Dialect struct {
	Name     string
	CRCExtra func(messageID uint32) (extra byte, ok bool)

	// Version is this dialect's declared MAVLink protocol version,
	// stamped onto HEARTBEAT's mavlink_version field by the heartbeat
	// emitter of a node whose main dialect is this one.
	Version uint8
}

var minimalDialect = Dialect{Name: minimal.Name, CRCExtra: minimal.CRCExtra, Version: minimal.Version}

// KnownDialects is an ordered list of dialects a Node understands, used to
// check that a frame's message id belongs to one of them.
//
// The Minimal dialect is always present and cannot be removed: without it a
// node could not recognize HEARTBEAT, and heartbeat-based peer tracking is
// not optional.
type KnownDialects struct {
	main         Dialect
	extra        []Dialect
	allowUnknown bool
}

// NewKnownDialects builds a KnownDialects with main as the primary dialect.
// Minimal is prepended automatically if main is not already Minimal.
func NewKnownDialects(main Dialect, extra ...Dialect) *KnownDialects {
	kd := &KnownDialects{main: main, extra: extra}
	if main.Name != minimal.Name {
		kd.extra = append([]Dialect{minimalDialect}, kd.extra...)
	}
	return kd
}

// DefaultKnownDialects returns a KnownDialects whose only (and therefore
// main) dialect is Minimal.
func DefaultKnownDialects() *KnownDialects {
	return &KnownDialects{main: minimalDialect}
}

// AllowUnknown reports whether messages with an id unknown to every
// registered dialect are tolerated by ValidateFrame rather than rejected.
func (d *KnownDialects) AllowUnknown() bool {
	return d.allowUnknown
}

// SetAllowUnknown configures whether unknown message ids are tolerated.
func (d *KnownDialects) SetAllowUnknown(allow bool) {
	d.allowUnknown = allow
}

// Main returns the primary dialect.
func (d *KnownDialects) Main() Dialect {
	return d.main
}

// Extra returns the secondary dialects. Minimal is among them whenever it
// is not the main dialect.
func (d *KnownDialects) Extra() []Dialect {
	return d.extra
}

// CRCExtra looks up the checksum-extra byte for messageID across the main
// dialect first, then each extra dialect in order.
func (d *KnownDialects) CRCExtra(messageID uint32) (extra byte, ok bool) {
	if extra, ok = d.main.CRCExtra(messageID); ok {
		return extra, true
	}
	for _, dia := range d.extra {
		if extra, ok = dia.CRCExtra(messageID); ok {
			return extra, true
		}
	}
	return 0, false
}

// ValidateFrame returns ErrUnknownMessage when frame's message id is not in
// any known dialect and AllowUnknown is false. It only checks dialect
// membership, not frame.VerifyCRC against the resolved crc-extra: a
// corrupt-payload frame for a known message id passes validation and
// surfaces as an ordinary EventFrame rather than EventInvalid. Accepted
// under the codec-out-of-scope carve-out (spec §1); see message.Decode.
func (d *KnownDialects) ValidateFrame(frame *message.Frame) error {
	if d.allowUnknown {
		return nil
	}
	if _, ok := d.CRCExtra(frame.MessageID()); !ok {
		return ErrUnknownMessage
	}
	return nil
}
