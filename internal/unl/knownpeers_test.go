package unl

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestKnownPeersRoundRobinsUntried(t *testing.T) {
	k := NewKnownPeers()
	k.AddOrUpdate("peer-a:51235")
	k.AddOrUpdate("peer-b:51235")

	first := k.NextUntried()
	second := k.NextUntried()
	require.NotNil(t, first)
	require.NotNil(t, second)
	require.NotEqual(t, first.Address, second.Address)
	require.Nil(t, k.NextUntried())
}

func TestKnownPeersResetSweep(t *testing.T) {
	k := NewKnownPeers()
	k.AddOrUpdate("peer-a:51235")
	require.NotNil(t, k.NextUntried())
	require.Nil(t, k.NextUntried())

	k.ResetSweep()
	require.NotNil(t, k.NextUntried())
}

func TestKnownPeersAddOrUpdateDedupes(t *testing.T) {
	k := NewKnownPeers()
	k.AddOrUpdate("peer-a:51235")
	k.AddOrUpdate("peer-a:51235")
	require.Equal(t, 1, k.Len())
}
