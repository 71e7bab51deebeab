package gomavlib

import (
	"errors"

	"github.com/flightwire/gomavlib/pkg/message"
)

// CompatStrategy controls how a CompatProcessor treats a frame whose
// incompat/compat flags don't match its required bits.
type CompatStrategy int

const (
	// CompatReject rejects frames missing the required bits.
	CompatReject CompatStrategy = iota
	// CompatEnforce sets the required bits on every processed frame.
	CompatEnforce
	// CompatProxy passes frames through untouched.
	CompatProxy
)

// ErrIncompatFlags is returned when a frame's incompat/compat flags don't
// satisfy a CompatProcessor's requirements under CompatReject.
var ErrIncompatFlags = errors.New("gomavlib: frame incompat/compat flags rejected")

// CompatProcessor enforces or rejects a set of required MAVLink 2
// incompat/compat flag bits.
//
// When IgnoreSignature is set, the v2 signed-incompat bit (0x01) is masked
// out of both the requirement and the comparison: a FrameProcessor that
// pairs a CompatProcessor with a FrameSigner sets this automatically, since
// the signer alone decides whether a frame ends up signed.
type CompatProcessor struct {
	RequiredIncompat byte
	RequiredCompat   byte
	Strategy         CompatStrategy
	IgnoreSignature  bool
}

func (c *CompatProcessor) requiredIncompat() byte {
	if c.IgnoreSignature {
		return c.RequiredIncompat &^ message.IFlagSigned
	}
	return c.RequiredIncompat
}

// ProcessIncoming applies the strategy to an incoming frame.
func (c *CompatProcessor) ProcessIncoming(frame *message.Frame) error {
	return c.process(frame)
}

// ProcessOutgoing applies the strategy to an outgoing frame.
func (c *CompatProcessor) ProcessOutgoing(frame *message.Frame) error {
	return c.process(frame)
}

func (c *CompatProcessor) process(frame *message.Frame) error {
	switch c.Strategy {
	case CompatProxy:
		return nil
	case CompatEnforce:
		// Spec §4.6.2 states the required bits verbatim (A := R); ORing
		// them in instead leaves any other bits already set on the frame
		// alone. Both are idempotent, and OR is the safer choice once
		// IgnoreSignature is masking out bits the signer owns.
		frame.SetIncompatFlags(frame.IncompatFlags() | c.requiredIncompat())
		frame.SetCompatFlags(frame.CompatFlags() | c.RequiredCompat)
		return nil
	default: // CompatReject
		reqIncompat := c.requiredIncompat()
		if frame.IncompatFlags()&reqIncompat != reqIncompat {
			return ErrIncompatFlags
		}
		if frame.CompatFlags()&c.RequiredCompat != c.RequiredCompat {
			return ErrIncompatFlags
		}
		return nil
	}
}
