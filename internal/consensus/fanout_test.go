package consensus

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ledgerforge/ledgerd/internal/hash"
	"github.com/ledgerforge/ledgerd/internal/shamap"
)

func TestFetchMissingNodesParallelDistributesAcrossPeers(t *testing.T) {
	src, entries := buildSource(t)
	dest := shamap.New(shamap.MapTypeTransaction, shamap.NewMemoryFamily())

	var completed bool
	acq, err := NewTxSetAcquire(src.RootHash(), dest, time.Second, func(hash.H256, *shamap.SHAMap) {
		completed = true
	})
	require.NoError(t, err)

	byHash := make(map[hash.H256]shamap.FlushEntry, len(entries))
	for _, e := range entries {
		byHash[e.Hash] = e
	}
	root := byHash[src.RootHash()]
	res, err := acq.AddRoot(root.Data)
	require.NoError(t, err)
	require.Equal(t, shamap.AddUseful, res)

	var mu sync.Mutex
	asked := map[hash.H160]int{}
	ask := func(_ context.Context, p hash.H160, want []shamap.MissingNodeRequest) error {
		mu.Lock()
		asked[p] += len(want)
		mu.Unlock()
		for _, mn := range want {
			e, ok := byHash[mn.Hash]
			require.True(t, ok, "job asked for a hash the source never produced")
			_, err := acq.AddNode(mn.ID, e.Data)
			require.NoError(t, err)
		}
		return nil
	}

	peers := []hash.H160{peer(1), peer(2), peer(3)}
	for acq.State() != AcquireComplete {
		err := FetchMissingNodesParallel(context.Background(), acq, peers, 16, 3, ask, nil)
		require.NoError(t, err)
	}

	require.True(t, completed)
	require.Equal(t, src.RootHash(), dest.RootHash())
	total := 0
	for _, n := range asked {
		total += n
	}
	require.Equal(t, len(entries)-1, total, "every non-root node should have been requested exactly once")
}

func TestFetchMissingNodesParallelNoPeersIsNoop(t *testing.T) {
	src, _ := buildSource(t)
	dest := shamap.New(shamap.MapTypeTransaction, shamap.NewMemoryFamily())
	acq, err := NewTxSetAcquire(src.RootHash(), dest, time.Second, nil)
	require.NoError(t, err)

	err = FetchMissingNodesParallel(context.Background(), acq, nil, 16, 3, func(context.Context, hash.H160, []shamap.MissingNodeRequest) error {
		t.Fatal("ask should never be called with no peers")
		return nil
	}, nil)
	require.NoError(t, err)
}

func TestFetchMissingNodesParallelSurvivesOnePeerFailing(t *testing.T) {
	src, entries := buildSource(t)
	dest := shamap.New(shamap.MapTypeTransaction, shamap.NewMemoryFamily())
	acq, err := NewTxSetAcquire(src.RootHash(), dest, time.Second, nil)
	require.NoError(t, err)

	byHash := make(map[hash.H256]shamap.FlushEntry, len(entries))
	for _, e := range entries {
		byHash[e.Hash] = e
	}
	root := byHash[src.RootHash()]
	_, err = acq.AddRoot(root.Data)
	require.NoError(t, err)

	failing := peer(9)
	ask := func(_ context.Context, p hash.H160, want []shamap.MissingNodeRequest) error {
		if p == failing {
			return context.DeadlineExceeded
		}
		for _, mn := range want {
			e := byHash[mn.Hash]
			_, err := acq.AddNode(mn.ID, e.Data)
			require.NoError(t, err)
		}
		return nil
	}

	peers := []hash.H160{failing, peer(2)}
	err = FetchMissingNodesParallel(context.Background(), acq, peers, 16, 2, ask, nil)
	require.NoError(t, err, "one peer's failure must not abort the whole fan-out")
}
