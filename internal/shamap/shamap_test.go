package shamap

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ledgerforge/ledgerd/internal/hash"
)

func tag(b byte) hash.H256 {
	var h hash.H256
	h[0] = b
	h[31] = b
	return h
}

func TestEmptyMapRootHashIsZero(t *testing.T) {
	sm := New(MapTypeTransaction, NewMemoryFamily())
	require.True(t, sm.RootHash().IsZero())
}

func TestAddGetSingleItemRootIsLeaf(t *testing.T) {
	sm := New(MapTypeState, NewMemoryFamily())
	item := NewItem(tag(1), []byte("payload"))
	ok, err := sm.Add(item, LeafAccountState)
	require.NoError(t, err)
	require.True(t, ok)

	got, err := sm.Get(tag(1))
	require.NoError(t, err)
	require.NotNil(t, got)
	require.Equal(t, item.Data, got.Data)
	require.False(t, sm.RootHash().IsZero())
}

func TestAddDuplicateTagFails(t *testing.T) {
	sm := New(MapTypeState, NewMemoryFamily())
	item := NewItem(tag(1), []byte("a"))
	ok, err := sm.Add(item, LeafAccountState)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = sm.Add(NewItem(tag(1), []byte("b")), LeafAccountState)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestAddDeleteRoundTripRestoresRootHash(t *testing.T) {
	sm := New(MapTypeState, NewMemoryFamily())
	empty := sm.RootHash()

	ok, err := sm.Add(NewItem(tag(1), []byte("a")), LeafAccountState)
	require.NoError(t, err)
	require.True(t, ok)
	require.NotEqual(t, empty, sm.RootHash())

	ok, err = sm.Delete(tag(1))
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, empty, sm.RootHash())
}

func TestMultipleItemsCollideAndCanonicalize(t *testing.T) {
	sm := New(MapTypeState, NewMemoryFamily())
	tags := []hash.H256{tag(1), tag(2), tag(3), tag(0x10), tag(0x20)}
	for _, tg := range tags {
		ok, err := sm.Add(NewItem(tg, []byte{byte(tg[0])}), LeafAccountState)
		require.NoError(t, err)
		require.True(t, ok)
	}
	require.NoError(t, sm.CheckInvariants())

	for _, tg := range tags {
		ok, err := sm.Delete(tg)
		require.NoError(t, err)
		require.True(t, ok)
	}
	require.True(t, sm.RootHash().IsZero())
}

func TestSnapshotIsolatesMutation(t *testing.T) {
	sm := New(MapTypeState, NewMemoryFamily())
	_, err := sm.Add(NewItem(tag(1), []byte("a")), LeafAccountState)
	require.NoError(t, err)

	snap := sm.Snapshot(false)
	snapHash := snap.RootHash()

	_, err = sm.Add(NewItem(tag(2), []byte("b")), LeafAccountState)
	require.NoError(t, err)

	require.Equal(t, snapHash, snap.RootHash(), "snapshot must be unaffected by later mutation of the source map")
	require.NotEqual(t, snapHash, sm.RootHash())

	ok, err := snap.Add(NewItem(tag(3), []byte("c")), LeafAccountState)
	require.False(t, ok)
	require.ErrorIs(t, err, ErrImmutable)
}

func TestIteratorOrdering(t *testing.T) {
	sm := New(MapTypeState, NewMemoryFamily())
	for _, b := range []byte{5, 1, 9, 3} {
		_, err := sm.Add(NewItem(tag(b), []byte{b}), LeafAccountState)
		require.NoError(t, err)
	}

	first, err := sm.First()
	require.NoError(t, err)
	require.Equal(t, tag(1), first.Tag)

	last, err := sm.Last()
	require.NoError(t, err)
	require.Equal(t, tag(9), last.Tag)

	next, err := sm.Next(tag(3))
	require.NoError(t, err)
	require.Equal(t, tag(5), next.Tag)

	prev, err := sm.Prev(tag(5))
	require.NoError(t, err)
	require.Equal(t, tag(3), prev.Tag)

	beyond, err := sm.Next(tag(9))
	require.NoError(t, err)
	require.Nil(t, beyond)
}

func TestWireRoundTripLeaf(t *testing.T) {
	sm := New(MapTypeTransaction, NewMemoryFamily())
	item := NewItem(tag(7), []byte("txn-bytes"))
	_, err := sm.Add(item, LeafTxnNoMeta)
	require.NoError(t, err)

	got, err := sm.Get(tag(7))
	require.NoError(t, err)
	node := newLeafNode(got, LeafTxnNoMeta, 0)
	wire, err := node.Serialize(FormatWire)
	require.NoError(t, err)
	parsed, err := ParseWire(wire)
	require.NoError(t, err)
	require.Equal(t, node.Hash(), parsed.Hash())
}

func TestCollectMissingRandomizesBranchVisitOrder(t *testing.T) {
	src := New(MapTypeState, NewMemoryFamily())
	for n := byte(0); n < 16; n++ {
		id := tag(n)
		id[0] = n << 4
		_, err := src.Add(NewItem(id, []byte{n}), LeafAccountState)
		require.NoError(t, err)
	}
	flushed, err := src.FlushDirty()
	require.NoError(t, err)
	byHash := make(map[hash.H256]FlushEntry, len(flushed))
	for _, e := range flushed {
		byHash[e.Hash] = e
	}
	root := byHash[src.RootHash()]

	firstBranchRequested := func() uint8 {
		dst := New(MapTypeState, NewMemoryFamily())
		require.NoError(t, dst.BeginSync())
		res, err := dst.AddRootNode(src.RootHash(), root.Data)
		require.NoError(t, err)
		require.Equal(t, AddUseful, res)

		missing, err := dst.GetMissingNodes(1)
		require.NoError(t, err)
		require.Len(t, missing, 1)
		return nibble(missing[0].ID.ID, 0)
	}

	seen := map[uint8]bool{}
	for i := 0; i < 40; i++ {
		seen[firstBranchRequested()] = true
	}
	require.Greater(t, len(seen), 1, "branch visit order must vary across calls instead of always starting from the same child")
}

func TestSyncRoundTripBetweenTwoMaps(t *testing.T) {
	src := New(MapTypeState, NewMemoryFamily())
	for _, b := range []byte{1, 2, 3, 4, 5, 6, 7, 8} {
		_, err := src.Add(NewItem(tag(b), []byte{b, b}), LeafAccountState)
		require.NoError(t, err)
	}
	flushed, err := src.FlushDirty()
	require.NoError(t, err)

	dst := New(MapTypeState, NewMemoryFamily())
	require.NoError(t, dst.BeginSync())

	var rootEntry FlushEntry
	for _, e := range flushed {
		if e.Hash == src.RootHash() {
			rootEntry = e
		}
	}
	res, err := dst.AddRootNode(src.RootHash(), rootEntry.Data)
	require.NoError(t, err)
	require.Equal(t, AddUseful, res)

	for i := 0; i < 10; i++ {
		missing, err := dst.GetMissingNodes(100)
		require.NoError(t, err)
		if len(missing) == 0 {
			break
		}
		for _, m := range missing {
			for _, e := range flushed {
				if e.Hash == m.Hash {
					r, err := dst.AddKnownNode(m.ID, e.Data)
					require.NoError(t, err)
					require.Equal(t, AddUseful, r)
				}
			}
		}
	}

	equal, err := src.DeepEqual(dst)
	require.NoError(t, err)
	require.True(t, equal)
}

func TestCompareFindsDiffs(t *testing.T) {
	a := New(MapTypeState, NewMemoryFamily())
	b := New(MapTypeState, NewMemoryFamily())
	_, _ = a.Add(NewItem(tag(1), []byte("a")), LeafAccountState)
	_, _ = b.Add(NewItem(tag(1), []byte("b")), LeafAccountState)
	_, _ = a.Add(NewItem(tag(2), []byte("x")), LeafAccountState)

	diffs, err := a.Compare(b, 10)
	require.NoError(t, err)
	require.Len(t, diffs, 2)
}
