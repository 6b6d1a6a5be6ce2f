package txengine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ledgerforge/ledgerd/internal/consensus"
	"github.com/ledgerforge/ledgerd/internal/hash"
	"github.com/ledgerforge/ledgerd/internal/ledger"
	"github.com/ledgerforge/ledgerd/internal/shamap"
)

func account(b byte) hash.H160 {
	var h hash.H160
	h[0] = b
	return h
}

func txID(b byte) hash.H256 {
	var h hash.H256
	h[0] = b
	return h
}

func closingLedger(t *testing.T) *ledger.Ledger {
	t.Helper()
	family := shamap.NewMemoryFamily()
	stateMap := shamap.New(shamap.MapTypeState, family)
	txMap := shamap.New(shamap.MapTypeTransaction, family)
	hdr := ledger.Header{Seq: 1, CloseTime: time.Unix(1_000_000, 0).UTC(), CloseTimeResolution: 10 * time.Second}
	genesis := ledger.FromGenesis(hdr, stateMap, txMap)
	l := ledger.NewOpen(genesis, family, time.Unix(1_000_010, 0).UTC())
	require.NoError(t, l.Close(time.Unix(1_000_010, 0).UTC(), 10*time.Second, 0))
	return l
}

func seedAccount(t *testing.T, l *ledger.Ledger, id hash.H160, a Account) {
	t.Helper()
	tag := accountTag(id)
	_, err := l.StateMap().Add(shamap.NewItem(tag, encodeAccount(a)), shamap.LeafAccountState)
	require.NoError(t, err)
}

func TestApplySuccessMovesBalance(t *testing.T) {
	l := closingLedger(t)
	alice, bob := account(1), account(2)
	seedAccount(t, l, alice, Account{Balance: 100, Sequence: 0})
	seedAccount(t, l, bob, Account{Balance: 0, Sequence: 0})

	raw, err := EncodeTransfer(Transfer{From: alice, To: bob, Amount: 40, Sequence: 1})
	require.NoError(t, err)

	e := New()
	res, err := e.Apply(l, txID(1), raw)
	require.NoError(t, err)
	require.Equal(t, consensus.ApplySuccess, res)

	aliceAfter, err := readAccount(l, accountTag(alice))
	require.NoError(t, err)
	require.EqualValues(t, 60, aliceAfter.Balance)
	require.EqualValues(t, 1, aliceAfter.Sequence)

	bobAfter, err := readAccount(l, accountTag(bob))
	require.NoError(t, err)
	require.EqualValues(t, 40, bobAfter.Balance)
}

func TestApplyRejectsInsufficientBalance(t *testing.T) {
	l := closingLedger(t)
	alice, bob := account(1), account(2)
	seedAccount(t, l, alice, Account{Balance: 10, Sequence: 0})

	raw, err := EncodeTransfer(Transfer{From: alice, To: bob, Amount: 40, Sequence: 1})
	require.NoError(t, err)

	res, err := New().Apply(l, txID(1), raw)
	require.NoError(t, err)
	require.Equal(t, consensus.ApplyFail, res)
}

func TestApplyRetriesOnSequenceGap(t *testing.T) {
	l := closingLedger(t)
	alice, bob := account(1), account(2)
	seedAccount(t, l, alice, Account{Balance: 100, Sequence: 0})

	raw, err := EncodeTransfer(Transfer{From: alice, To: bob, Amount: 10, Sequence: 5})
	require.NoError(t, err)

	res, err := New().Apply(l, txID(1), raw)
	require.NoError(t, err)
	require.Equal(t, consensus.ApplyRetry, res, "a sequence gap might close in a later pass once an earlier tx lands")
}

func TestApplyFailsOnUndecodableBody(t *testing.T) {
	l := closingLedger(t)
	res, err := New().Apply(l, txID(1), []byte{0xff, 0xfe, 0xfd})
	require.NoError(t, err)
	require.Equal(t, consensus.ApplyFail, res)
}

func TestApplyToUnseenAccountTreatsZeroBalance(t *testing.T) {
	l := closingLedger(t)
	alice, bob := account(1), account(2)
	seedAccount(t, l, alice, Account{Balance: 100, Sequence: 0})
	// bob has never appeared in the state tree before.

	raw, err := EncodeTransfer(Transfer{From: alice, To: bob, Amount: 25, Sequence: 1})
	require.NoError(t, err)

	res, err := New().Apply(l, txID(1), raw)
	require.NoError(t, err)
	require.Equal(t, consensus.ApplySuccess, res)

	bobAfter, err := readAccount(l, accountTag(bob))
	require.NoError(t, err)
	require.EqualValues(t, 25, bobAfter.Balance)
}
