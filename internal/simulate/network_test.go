package simulate

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ledgerforge/ledgerd/internal/hash"
)

func txID(b byte) hash.H256 {
	var h hash.H256
	h[0] = b
	return h
}

// TestHappyPathFiveNodesConverge is seed scenario S4: five validators that
// already agree on the open ledger's transactions close on an identical
// ledger within one round and emit validations everyone else counts.
func TestHappyPathFiveNodesConverge(t *testing.T) {
	net, err := NewNetwork(5, time.Unix(1_700_000_000, 0).UTC(), 10*time.Second)
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, net.SubmitTransaction(txID(1), []byte("transfer-a")))
	require.NoError(t, net.SubmitTransaction(txID(2), []byte("transfer-b")))

	results, err := net.RunRound(ctx, 0)
	require.NoError(t, err)
	require.Len(t, results, 5)

	var want hash.H256
	for i, node := range net.Nodes {
		got := results[node.ID]
		require.False(t, got.IsZero())
		if i == 0 {
			want = got
		} else {
			require.Equal(t, want, got, "every validator must accept the identical ledger")
		}

		closed, ok := node.Master.BySeq(2)
		require.True(t, ok)
		require.Equal(t, want, closed.Hash())
		require.Equal(t, 5, node.Validations.GetTrustedValidationCount(closed.Hash()))
	}
}

// TestDivergentProposerLosesMinorityTransaction is seed scenario S5: one
// validator proposes an extra transaction the rest never saw. It should
// stay in the minority, get voted out of the round, and be carried
// forward into the next open ledger rather than silently dropped.
func TestDivergentProposerLosesMinorityTransaction(t *testing.T) {
	net, err := NewNetwork(5, time.Unix(1_700_000_000, 0).UTC(), 10*time.Second)
	require.NoError(t, err)
	ctx := context.Background()

	txA, txB, txC := txID(1), txID(2), txID(3)
	require.NoError(t, net.SubmitTransaction(txA, []byte("transfer-a")))
	require.NoError(t, net.SubmitTransaction(txB, []byte("transfer-b")))
	require.NoError(t, net.SubmitTransactionTo(0, txC, []byte("transfer-c")))

	results, err := net.RunRound(ctx, 2*time.Second)
	require.NoError(t, err)

	var want hash.H256
	for i, node := range net.Nodes {
		got := results[node.ID]
		if i == 0 {
			want = got
		} else {
			require.Equal(t, want, got, "the minority's extra transaction must not fork the accepted ledger")
		}
	}

	n1 := net.Nodes[0]
	closed, ok := n1.Master.BySeq(2)
	require.True(t, ok)
	hasC, err := closed.TxMap().Has(txC)
	require.NoError(t, err)
	require.False(t, hasC, "the disputed transaction must not land in the accepted ledger")

	open := n1.Master.CurrentOpen()
	require.NotNil(t, open)
	reapplied, err := open.TxMap().Has(txC)
	require.NoError(t, err)
	require.True(t, reapplied, "a disputed-out transaction must be carried forward into the next open ledger")

	for _, node := range net.Nodes[1:] {
		c, ok := node.Master.BySeq(2)
		require.True(t, ok)
		has, err := c.TxMap().Has(txC)
		require.NoError(t, err)
		require.False(t, has)
	}
}

// TestLCLForkRecoveryDetectsMinorityLedger is seed scenario S6: a node
// stuck on the last closed ledger it personally validated discovers, once
// the rest of its UNL's validations arrive, that the trusted majority
// closed on a different ledger, and recovers the hash to chase.
func TestLCLForkRecoveryDetectsMinorityLedger(t *testing.T) {
	net, err := NewNetwork(5, time.Unix(1_700_000_000, 0).UTC(), 10*time.Second)
	require.NoError(t, err)
	ctx := context.Background()

	stuck := net.Nodes[0]
	majority := net.Nodes[1:]

	for _, node := range majority {
		require.NoError(t, node.Engine.StartRound(true, 10*time.Second, 0))
	}
	for _, node := range majority {
		for _, peer := range majority {
			if peer.ID == node.ID {
				continue
			}
			require.NoError(t, node.Engine.PeerPosition(peer.Engine.OurPosition()))
		}
	}

	now := net.Clock.Now()
	for _, node := range majority {
		require.True(t, node.Engine.HaveConsensus(now), "four identical positions already agree")
		require.NoError(t, node.Engine.Accept(now))
	}

	// The stuck node never ran a round of its own, but it's still meshed
	// into the transport and receives the majority's validation broadcasts.
	require.NoError(t, stuck.PumpInbox(ctx))

	require.NoError(t, stuck.Engine.StartRound(true, 10*time.Second, 0))

	majorityLedger, ok := majority[0].Master.BySeq(2)
	require.True(t, ok)

	preferred, forked := stuck.Engine.CheckLCL(hash.H256{})
	require.True(t, forked, "the stuck node must notice its UNL moved on without it")
	require.Equal(t, majorityLedger.Hash(), preferred)
}
