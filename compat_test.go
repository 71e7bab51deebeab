package gomavlib

import (
	"testing"

	"github.com/flightwire/gomavlib/pkg/message"
	"github.com/stretchr/testify/require"
)

func testFrame() *message.Frame {
	return message.NewFrame(message.V2, 0, 1, 1, 0, []byte{1, 2, 3})
}

func TestCompatEnforceSetsRequiredBits(t *testing.T) {
	c := &CompatProcessor{RequiredIncompat: 0x02, RequiredCompat: 0x04, Strategy: CompatEnforce}
	f := testFrame()

	require.NoError(t, c.ProcessOutgoing(f))
	require.Equal(t, byte(0x02), f.IncompatFlags())
	require.Equal(t, byte(0x04), f.CompatFlags())
}

func TestCompatEnforceIsIdempotent(t *testing.T) {
	c := &CompatProcessor{RequiredIncompat: 0x02, RequiredCompat: 0x04, Strategy: CompatEnforce}
	f := testFrame()

	require.NoError(t, c.ProcessOutgoing(f))
	first := f.IncompatFlags()
	firstCompat := f.CompatFlags()

	require.NoError(t, c.ProcessOutgoing(f))
	require.Equal(t, first, f.IncompatFlags())
	require.Equal(t, firstCompat, f.CompatFlags())
}

func TestCompatRejectFailsOnMismatch(t *testing.T) {
	c := &CompatProcessor{RequiredIncompat: 0x02, Strategy: CompatReject}
	f := testFrame()

	require.ErrorIs(t, c.ProcessIncoming(f), ErrIncompatFlags)
}

func TestCompatRejectPassesOnMatch(t *testing.T) {
	c := &CompatProcessor{RequiredIncompat: 0x02, Strategy: CompatReject}
	f := testFrame()
	f.SetIncompatFlags(0x02)

	require.NoError(t, c.ProcessIncoming(f))
}

func TestCompatProxyPassesThroughUnchanged(t *testing.T) {
	c := &CompatProcessor{RequiredIncompat: 0x02, Strategy: CompatProxy}
	f := testFrame()

	require.NoError(t, c.ProcessIncoming(f))
	require.Equal(t, byte(0), f.IncompatFlags())
}

func TestCompatIgnoreSignatureMasksSignedBit(t *testing.T) {
	c := &CompatProcessor{RequiredIncompat: message.IFlagSigned, Strategy: CompatReject, IgnoreSignature: true}
	f := testFrame()

	// signed bit unset, but masked out of the requirement by IgnoreSignature.
	require.NoError(t, c.ProcessIncoming(f))
}
