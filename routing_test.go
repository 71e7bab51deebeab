package gomavlib

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestChannelIDBelongsToIsConnectionContainsInverse(t *testing.T) {
	connA := newConnectionID()
	connB := newConnectionID()
	chanA := newChannelID(connA)

	require.True(t, chanA.BelongsTo(connA))
	require.True(t, connA.Contains(chanA))
	require.False(t, chanA.BelongsTo(connB))
	require.False(t, connB.Contains(chanA))
}

func TestShouldSendToScopeTable(t *testing.T) {
	connA := newConnectionID()
	connB := newConnectionID()
	chanA1 := newChannelID(connA)
	chanA2 := newChannelID(connA)
	chanB1 := newChannelID(connB)

	cases := []struct {
		name  string
		scope BroadcastScope
		want  map[ChannelID]bool
	}{
		{
			name:  "all",
			scope: ScopeAll(),
			want:  map[ChannelID]bool{chanA1: true, chanA2: true, chanB1: true},
		},
		{
			name:  "exact channel",
			scope: ScopeExactChannel(chanA1),
			want:  map[ChannelID]bool{chanA1: true, chanA2: false, chanB1: false},
		},
		{
			name:  "except channel",
			scope: ScopeExceptChannel(chanA1),
			want:  map[ChannelID]bool{chanA1: false, chanA2: true, chanB1: true},
		},
		{
			name:  "except channel within",
			scope: ScopeExceptChannelWithin(chanA1),
			want:  map[ChannelID]bool{chanA1: false, chanA2: true, chanB1: false},
		},
		{
			name:  "exact connection",
			scope: ScopeExactConnection(connA),
			want:  map[ChannelID]bool{chanA1: true, chanA2: true, chanB1: false},
		},
		{
			name:  "except connection",
			scope: ScopeExceptConnection(connA),
			want:  map[ChannelID]bool{chanA1: false, chanA2: false, chanB1: true},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			out := newScopedOutgoingFrame(nil, tc.scope)
			for ch, want := range tc.want {
				require.Equal(t, want, out.shouldSendTo(ch), "channel result mismatch")
			}
		})
	}
}

func TestMatchesConnectionRerouteExceptConnectionDrops(t *testing.T) {
	connA := newConnectionID()
	out := newScopedOutgoingFrame(nil, ScopeExceptConnection(connA))

	require.False(t, out.matchesConnectionReroute(connA))
}

func TestMatchesConnectionRerouteExactConnectionRewritesToAll(t *testing.T) {
	connA := newConnectionID()
	out := newScopedOutgoingFrame(nil, ScopeExactConnection(connA))

	require.True(t, out.matchesConnectionReroute(connA))
	require.Equal(t, scopeAll, out.Scope().kind)
}

func TestMatchesConnectionRerouteOtherScopesUnchanged(t *testing.T) {
	connA := newConnectionID()
	connB := newConnectionID()

	out := newScopedOutgoingFrame(nil, ScopeExceptConnection(connB))
	require.True(t, out.matchesConnectionReroute(connA))
	require.Equal(t, scopeExceptConnection, out.Scope().kind)

	out2 := newScopedOutgoingFrame(nil, ScopeAll())
	require.True(t, out2.matchesConnectionReroute(connA))
	require.Equal(t, scopeAll, out2.Scope().kind)
}
