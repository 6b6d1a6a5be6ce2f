package consensus

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ledgerforge/ledgerd/internal/hash"
	"github.com/ledgerforge/ledgerd/internal/ledger"
	"github.com/ledgerforge/ledgerd/internal/shamap"
	"github.com/ledgerforge/ledgerd/internal/validation"
)

type fakeApplier struct {
	fail map[hash.H256]bool
}

func (a *fakeApplier) Apply(l *ledger.Ledger, txID hash.H256, raw []byte) (ApplyResult, error) {
	if a.fail[txID] {
		return ApplyFail, nil
	}
	// Simulates the transaction's state effects: the ledger's tx map already
	// holds the transaction itself (it's the agreed set being applied), so
	// Apply only needs to touch the state tree here.
	ok, err := l.StateMap().Add(shamap.NewItem(txID, raw), shamap.LeafAccountState)
	if err != nil {
		return ApplyFail, err
	}
	if !ok {
		return ApplySuccess, nil
	}
	return ApplySuccess, nil
}

type fakeSigner struct {
	id     hash.H160
	pubkey []byte
}

func (s *fakeSigner) PeerID() hash.H160 { return s.id }
func (s *fakeSigner) Pubkey() []byte    { return s.pubkey }
func (s *fakeSigner) SignProposal(p *Proposal) error {
	p.Signature = []byte("sig")
	return nil
}

func genesisLedger(t *testing.T) (*ledger.Ledger, shamap.Family) {
	t.Helper()
	family := shamap.NewMemoryFamily()
	stateMap := shamap.New(shamap.MapTypeState, family)
	txMap := shamap.New(shamap.MapTypeTransaction, family)
	hdr := ledger.Header{
		Seq:                 1,
		CloseTime:           time.Unix(1_000_000, 0).UTC(),
		CloseTimeResolution: 10 * time.Second,
		TotalDrops:          100_000_000_000,
	}
	return ledger.FromGenesis(hdr, stateMap, txMap), family
}

func newTestEngine(t *testing.T, applier Applier, signer Signer) (*Engine, *ledger.Master, shamap.Family) {
	t.Helper()
	genesis, family := genesisLedger(t)
	master, err := ledger.NewMaster(genesis, 64)
	require.NoError(t, err)
	open := ledger.NewOpen(genesis, family, genesis.Header().CloseTime.Add(20*time.Second))
	master.SetOpen(open)

	validations := validation.NewCollection(nil)
	fixedNow := time.Unix(1_000_050, 0).UTC()
	e := NewEngine(master, family, validations, nil, applier, signer, nil, DefaultTiming(),
		WithClock(func() time.Time { return fixedNow }))
	return e, master, family
}

func txID(b byte) hash.H256 {
	var h hash.H256
	h[0] = b
	h[31] = b
	return h
}

func TestStartRoundSeedsOurPosition(t *testing.T) {
	e, master, _ := newTestEngine(t, &fakeApplier{}, &fakeSigner{id: peer(1)})

	open := master.CurrentOpen()
	require.NoError(t, open.AddTransaction(txID(1), []byte("tx-1")))

	require.NoError(t, e.StartRound(true, 10*time.Second, 2*time.Second))
	require.Equal(t, PhaseEstablish, e.Phase())
	require.Nil(t, master.CurrentOpen())
	require.NotNil(t, master.Closing())
}

func TestPeerPositionRejectsWrongLCL(t *testing.T) {
	e, _, _ := newTestEngine(t, &fakeApplier{}, &fakeSigner{id: peer(1)})
	require.NoError(t, e.StartRound(true, 10*time.Second, 2*time.Second))

	err := e.PeerPosition(&Proposal{PrevLedger: txID(0xFF), PeerID: peer(2), Seq: 1})
	require.ErrorIs(t, err, ErrWrongLCL)
}

func TestPeerPositionRejectsStaleSeqAndHonorsBowOut(t *testing.T) {
	e, _, _ := newTestEngine(t, &fakeApplier{}, &fakeSigner{id: peer(1)})
	require.NoError(t, e.StartRound(true, 10*time.Second, 2*time.Second))

	prevHash := hash.H256{}
	e.mu.Lock()
	prevHash = e.r.prevHash
	e.mu.Unlock()

	p2 := peer(2)
	require.NoError(t, e.PeerPosition(&Proposal{PrevLedger: prevHash, PeerID: p2, Seq: 3, Position: txID(3)}))
	require.NoError(t, e.PeerPosition(&Proposal{PrevLedger: prevHash, PeerID: p2, Seq: 2, Position: txID(2)}))

	e.mu.Lock()
	got := e.r.peerPositions[p2]
	e.mu.Unlock()
	require.EqualValues(t, 3, got.Seq, "a lower sequence from the same peer must not overwrite a later one")

	require.NoError(t, e.PeerPosition(&Proposal{PrevLedger: prevHash, PeerID: p2, Seq: SeqLeave}))
	require.NoError(t, e.PeerPosition(&Proposal{PrevLedger: prevHash, PeerID: p2, Seq: 4, Position: txID(4)}))

	e.mu.Lock()
	got = e.r.peerPositions[p2]
	e.mu.Unlock()
	require.True(t, got.IsBowOut(), "a position after SEQ_LEAVE must still be ignored")
}

func TestHaveConsensusRequiresAgreementShare(t *testing.T) {
	e, master, _ := newTestEngine(t, &fakeApplier{}, &fakeSigner{id: peer(1)})
	require.NoError(t, e.StartRound(true, 10*time.Second, 2*time.Second))
	_ = master

	var ourPosition hash.H256
	e.mu.Lock()
	ourPosition = e.r.ourPosition.Position
	prevHash := e.r.prevHash
	e.mu.Unlock()

	now := time.Unix(1_000_100, 0).UTC()
	require.False(t, e.HaveConsensus(now), "no peers yet, only ourselves")

	for i := byte(2); i < 6; i++ {
		require.NoError(t, e.PeerPosition(&Proposal{PrevLedger: prevHash, PeerID: peer(i), Seq: 1, Position: ourPosition}))
	}
	require.True(t, e.HaveConsensus(now))
}

func TestHaveConsensusCountsNonRespondersAsDisagreementPastStuckThreshold(t *testing.T) {
	e, master, _ := newTestEngine(t, &fakeApplier{}, &fakeSigner{id: peer(1)})
	_ = master

	// Round 1: four peers respond and agree with us, so Accept records
	// five active proposers (ourselves included) for the next round.
	require.NoError(t, e.StartRound(true, 10*time.Second, 0))
	e.mu.Lock()
	ourPosition := e.r.ourPosition.Position
	prevHash := e.r.prevHash
	e.mu.Unlock()
	for i := byte(2); i < 6; i++ {
		require.NoError(t, e.PeerPosition(&Proposal{PrevLedger: prevHash, PeerID: peer(i), Seq: 1, Position: ourPosition}))
	}
	require.NoError(t, e.Accept(time.Unix(1_000_200, 0).UTC()))

	// Round 2: only one of the five previous proposers shows up, and it
	// agrees with us.
	require.NoError(t, e.StartRound(true, 10*time.Second, 2*time.Second))
	e.mu.Lock()
	ourPosition = e.r.ourPosition.Position
	prevHash = e.r.prevHash
	e.mu.Unlock()
	require.NoError(t, e.PeerPosition(&Proposal{PrevLedger: prevHash, PeerID: peer(2), Seq: 1, Position: ourPosition}))

	// Well past the stuck threshold relative to a 2s previous round, the
	// three proposers who never sent a position this round must be folded
	// into the denominator as disagreement rather than excluded outright.
	stuckNow := time.Unix(1_000_999, 0).UTC()
	require.False(t, e.HaveConsensus(stuckNow), "three silent proposers from last round must count as disagreement")
}

func TestCreateDisputesAndUpdateOurPositionsFlipsVote(t *testing.T) {
	e, master, _ := newTestEngine(t, &fakeApplier{}, &fakeSigner{id: peer(1)})

	open := master.CurrentOpen()
	require.NoError(t, open.AddTransaction(txID(9), []byte("disputed-tx")))

	require.NoError(t, e.StartRound(true, 10*time.Second, 2*time.Second))

	theirSet := shamap.New(shamap.MapTypeTransaction, shamap.NewMemoryFamily())
	peerID := peer(7)

	e.mu.Lock()
	prevHash := e.r.prevHash
	e.mu.Unlock()
	require.NoError(t, e.PeerPosition(&Proposal{PrevLedger: prevHash, PeerID: peerID, Seq: 1, Position: theirSet.RootHash()}))
	require.NoError(t, e.CreateDisputes(peerID, theirSet.RootHash(), theirSet))

	e.mu.Lock()
	disp, ok := e.r.disputes[txID(9)]
	e.mu.Unlock()
	require.True(t, ok)
	require.True(t, disp.OurVote(), "we proposed it, so our initial vote is yes")

	for i := byte(10); i < 20; i++ {
		peerVote := peer(i)
		e.mu.Lock()
		if _, exists := e.r.peerPositions[peerVote]; !exists {
			e.r.peerPositions[peerVote] = &Proposal{PeerID: peerVote, Seq: 1}
		}
		e.mu.Unlock()
		disp.SetVote(peerVote, false)
	}

	_, changed, err := e.UpdateOurPositions(time.Unix(1_000_500, 0).UTC())
	require.NoError(t, err)
	require.True(t, changed)
	require.False(t, disp.OurVote())
}

func TestAcceptAppliesTransactionsAndPushesNewOpen(t *testing.T) {
	e, master, _ := newTestEngine(t, &fakeApplier{}, &fakeSigner{id: peer(1)})

	open := master.CurrentOpen()
	require.NoError(t, open.AddTransaction(txID(5), []byte("tx-5")))

	require.NoError(t, e.StartRound(true, 10*time.Second, 2*time.Second))
	require.NoError(t, e.Accept(time.Unix(1_000_200, 0).UTC()))

	require.Equal(t, PhaseAccepted, e.Phase())
	require.NotNil(t, master.CurrentOpen())

	closed, ok := master.BySeq(2)
	require.True(t, ok)
	require.Equal(t, ledger.StateAccepted, closed.State())
	hasTx, err := closed.TxMap().Has(txID(5))
	require.NoError(t, err)
	require.True(t, hasTx)
	hasState, err := closed.StateMap().Has(txID(5))
	require.NoError(t, err)
	require.True(t, hasState, "applier's state effect must have landed before Accept froze the map")
}
