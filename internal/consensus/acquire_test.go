package consensus

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ledgerforge/ledgerd/internal/hash"
	"github.com/ledgerforge/ledgerd/internal/shamap"
)

func txTag(b byte) hash.H256 {
	var h hash.H256
	h[0] = b
	h[31] = b
	return h
}

func peer(b byte) hash.H160 {
	var h hash.H160
	h[0] = b
	return h
}

// buildSource returns a fully-populated source map and the serialized
// root-and-descendant bytes an acquiring peer would send in response.
func buildSource(t *testing.T) (*shamap.SHAMap, []shamap.FlushEntry) {
	t.Helper()
	src := shamap.New(shamap.MapTypeTransaction, shamap.NewMemoryFamily())
	for _, b := range []byte{1, 2, 0x10, 0x20} {
		ok, err := src.Add(shamap.NewItem(txTag(b), []byte{b}), shamap.LeafTxnNoMeta)
		require.NoError(t, err)
		require.True(t, ok)
	}
	entries, err := src.FlushDirty()
	require.NoError(t, err)
	return src, entries
}

func TestTxSetAcquireCompletesWhenAllNodesSupplied(t *testing.T) {
	src, entries := buildSource(t)
	dest := shamap.New(shamap.MapTypeTransaction, shamap.NewMemoryFamily())

	var completed hash.H256
	var completedMap *shamap.SHAMap
	acq, err := NewTxSetAcquire(src.RootHash(), dest, time.Second, func(h hash.H256, m *shamap.SHAMap) {
		completed = h
		completedMap = m
	})
	require.NoError(t, err)
	require.Equal(t, AcquireNeedRoot, acq.State())

	var root shamap.FlushEntry
	var rest []shamap.FlushEntry
	for _, e := range entries {
		if e.Hash == src.RootHash() {
			root = e
		} else {
			rest = append(rest, e)
		}
	}

	res, err := acq.AddRoot(root.Data)
	require.NoError(t, err)
	require.Equal(t, shamap.AddUseful, res)

	for len(rest) > 0 {
		missing, err := dest.GetMissingNodes(len(rest))
		require.NoError(t, err)
		if len(missing) == 0 {
			break
		}
		for _, mn := range missing {
			var found *shamap.FlushEntry
			for i := range rest {
				if rest[i].Hash == mn.Hash {
					found = &rest[i]
					break
				}
			}
			require.NotNil(t, found, "acquire asked for a hash the source never produced")
			res, err := acq.AddNode(mn.ID, found.Data)
			require.NoError(t, err)
			require.Equal(t, shamap.AddUseful, res)
		}
	}

	require.Equal(t, AcquireComplete, acq.State())
	require.Equal(t, src.RootHash(), completed)
	require.NotNil(t, completedMap)
	require.Equal(t, src.RootHash(), completedMap.RootHash())
}

func TestTxSetAcquirePeerRotationAndTimeout(t *testing.T) {
	src, _ := buildSource(t)
	dest := shamap.New(shamap.MapTypeTransaction, shamap.NewMemoryFamily())
	acq, err := NewTxSetAcquire(src.RootHash(), dest, 10*time.Millisecond, nil)
	require.NoError(t, err)

	acq.PeerHas(peer(1))
	acq.PeerHas(peer(1)) // duplicate, ignored
	acq.PeerHas(peer(2))

	start := time.Now()
	p1, ok := acq.NextPeer(start)
	require.True(t, ok)
	require.Equal(t, peer(1), p1)
	require.False(t, acq.TimedOut(start))
	require.True(t, acq.TimedOut(start.Add(20*time.Millisecond)))

	p2, ok := acq.NextPeer(start.Add(20 * time.Millisecond))
	require.True(t, ok)
	require.Equal(t, peer(2), p2)

	_, ok = acq.NextPeer(start.Add(40 * time.Millisecond))
	require.False(t, ok, "once every known peer has been tried, caller must broadcast instead")
}

func TestTxSetAcquireRejectsInvalidRoot(t *testing.T) {
	dest := shamap.New(shamap.MapTypeTransaction, shamap.NewMemoryFamily())
	acq, err := NewTxSetAcquire(txTag(0xAA), dest, time.Second, nil)
	require.NoError(t, err)

	src, entries := buildSource(t)
	var wrongRoot shamap.FlushEntry
	for _, e := range entries {
		if e.Hash != src.RootHash() {
			wrongRoot = e
			break
		}
	}

	res, err := acq.AddRoot(wrongRoot.Data)
	require.NoError(t, err)
	require.Equal(t, shamap.AddInvalid, res)
	require.NotEqual(t, AcquireComplete, acq.State())
}
