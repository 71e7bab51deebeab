package gomavlib

import (
	"testing"

	"github.com/flightwire/gomavlib/pkg/message"
	"github.com/stretchr/testify/require"
)

func mustBuildSigner(t *testing.T, configure func(*FrameSignerBuilder)) *FrameSigner {
	t.Helper()
	b := NewFrameSignerBuilder().LinkID(1).Key(message.NewSecretKey("something unsecure"))
	if configure != nil {
		configure(b)
	}
	s, err := b.Build()
	require.NoError(t, err)
	return s
}

func TestFrameSignerSignsUnsignedFrame(t *testing.T) {
	signer := mustBuildSigner(t, func(b *FrameSignerBuilder) { b.Outgoing(SignStrategySign) })
	f := testFrame()

	require.NoError(t, signer.ProcessOutgoing(f))
	require.True(t, f.IsSigned())
	require.Equal(t, byte(1), f.Signature().LinkID)
	require.NotZero(t, f.IncompatFlags()&message.IFlagSigned)
}

func TestFrameSignerStrictRejectsUnsigned(t *testing.T) {
	signer := mustBuildSigner(t, func(b *FrameSignerBuilder) { b.Incoming(SignStrategyStrict) })
	f := testFrame()

	require.ErrorIs(t, signer.ProcessIncoming(f), ErrSignature)
}

func TestSignThenStrictRoundTrips(t *testing.T) {
	sender := mustBuildSigner(t, func(b *FrameSignerBuilder) { b.Outgoing(SignStrategySign) })
	receiver := mustBuildSigner(t, func(b *FrameSignerBuilder) { b.Incoming(SignStrategyStrict) })

	f := testFrame()
	require.NoError(t, sender.ProcessOutgoing(f))
	require.True(t, f.IsSigned())

	require.NoError(t, receiver.ProcessIncoming(f))
}

func TestFrameSignerStrictRejectsTamperedMAC(t *testing.T) {
	sender := mustBuildSigner(t, func(b *FrameSignerBuilder) { b.Outgoing(SignStrategySign) })
	receiver := mustBuildSigner(t, func(b *FrameSignerBuilder) { b.Incoming(SignStrategyStrict) })

	f := testFrame()
	require.NoError(t, sender.ProcessOutgoing(f))
	f.Payload()[0] ^= 0xFF // tamper after signing

	require.ErrorIs(t, receiver.ProcessIncoming(f), ErrSignature)
}

func TestFrameSignerStripRemovesSignature(t *testing.T) {
	sender := mustBuildSigner(t, func(b *FrameSignerBuilder) { b.Outgoing(SignStrategySign) })
	stripper := mustBuildSigner(t, func(b *FrameSignerBuilder) { b.Incoming(SignStrategyStrip) })

	f := testFrame()
	require.NoError(t, sender.ProcessOutgoing(f))
	require.True(t, f.IsSigned())

	require.NoError(t, stripper.ProcessIncoming(f))
	require.False(t, f.IsSigned())
	require.Zero(t, f.IncompatFlags()&message.IFlagSigned)
}

func TestFrameSignerUnknownLinkStrictRejected(t *testing.T) {
	// sign with a different key/link than the validator knows.
	otherSigner, err := NewFrameSignerBuilder().LinkID(9).Key(message.NewSecretKey("other key")).
		Outgoing(SignStrategySign).Build()
	require.NoError(t, err)

	f := testFrame()
	require.NoError(t, otherSigner.ProcessOutgoing(f))

	receiver := mustBuildSigner(t, func(b *FrameSignerBuilder) {
		b.Incoming(SignStrategyStrict).UnknownLinks(SignStrategyStrict)
	})
	require.ErrorIs(t, receiver.ProcessIncoming(f), ErrSignature)
}

func TestFrameSignerExcludedMessageSkipsSigning(t *testing.T) {
	signer := mustBuildSigner(t, func(b *FrameSignerBuilder) {
		b.Outgoing(SignStrategySign).Exclude(0)
	})
	f := testFrame()
	require.Equal(t, uint32(0), f.MessageID())

	require.NoError(t, signer.ProcessOutgoing(f))
	require.False(t, f.IsSigned())
}

func TestUniqueMavTimestampStrictlyIncreasing(t *testing.T) {
	ts := message.NewUniqueMavTimestamp()

	last := ts.Next()
	for i := 0; i < 1000; i++ {
		next := ts.Next()
		require.Greater(t, next, last)
		last = next
	}
}
