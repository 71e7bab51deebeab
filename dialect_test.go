package gomavlib

import (
	"testing"

	"github.com/flightwire/gomavlib/pkg/dialects/minimal"
	"github.com/stretchr/testify/require"
)

func TestDefaultKnownDialectsIsMinimalOnly(t *testing.T) {
	kd := DefaultKnownDialects()
	require.Equal(t, minimal.Name, kd.Main().Name)

	extra, ok := kd.CRCExtra(minimal.HeartbeatMessageID)
	require.True(t, ok)
	require.NotZero(t, extra)
}

func TestKnownDialectsPrependsMinimalWhenNotMain(t *testing.T) {
	custom := Dialect{Name: "custom", CRCExtra: func(uint32) (byte, bool) { return 0, false }}
	kd := NewKnownDialects(custom)

	require.Equal(t, "custom", kd.Main().Name)
	require.Len(t, kd.Extra(), 1)
	require.Equal(t, minimal.Name, kd.Extra()[0].Name)

	_, ok := kd.CRCExtra(minimal.HeartbeatMessageID)
	require.True(t, ok, "minimal dialect must still be reachable via Extra")
}

func TestKnownDialectsAllowUnknown(t *testing.T) {
	kd := DefaultKnownDialects()
	require.False(t, kd.AllowUnknown())

	_, ok := kd.CRCExtra(9999)
	require.False(t, ok)

	kd.SetAllowUnknown(true)
	require.True(t, kd.AllowUnknown())
}
