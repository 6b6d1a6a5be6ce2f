package validation

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ledgerforge/ledgerd/internal/hash"
)

func peerID(b byte) PeerID {
	var p PeerID
	p[0] = b
	return p
}

func ledgerHash(b byte) hash.H256 {
	var h hash.H256
	h[0] = b
	return h
}

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func trustAll(pubkey []byte) bool { return true }

func TestAddValidationMarksTrustAndCurrent(t *testing.T) {
	now := time.Unix(1_700_000_000, 0).UTC()
	c := NewCollection(TrustorFunc(trustAll), WithClock(fixedClock(now)))

	v := &Validation{LedgerHash: ledgerHash(1), PeerID: peerID(1), SignTime: now, SignerPubkey: []byte("peer-1")}
	wasCurrent := c.AddValidation(v, SourcePeer)

	require.True(t, wasCurrent)
	require.True(t, v.Trusted)
	require.Equal(t, 1, c.GetTrustedValidationCount(ledgerHash(1)))
}

func TestAddValidationRejectsDuplicate(t *testing.T) {
	now := time.Unix(1_700_000_000, 0).UTC()
	c := NewCollection(TrustorFunc(trustAll), WithClock(fixedClock(now)))

	v := &Validation{LedgerHash: ledgerHash(1), PeerID: peerID(1), SignTime: now}
	require.True(t, c.AddValidation(v, SourcePeer))
	require.False(t, c.AddValidation(v, SourcePeer))
	require.Equal(t, 1, c.GetTrustedValidationCount(ledgerHash(1)))
}

func TestAddValidationUntrustedStillCounted(t *testing.T) {
	now := time.Unix(1_700_000_000, 0).UTC()
	c := NewCollection(TrustorFunc(func([]byte) bool { return false }), WithClock(fixedClock(now)))

	v := &Validation{LedgerHash: ledgerHash(1), PeerID: peerID(1), SignTime: now}
	wasCurrent := c.AddValidation(v, SourcePeer)

	require.True(t, wasCurrent)
	require.False(t, v.Trusted)
	require.Equal(t, 0, c.GetTrustedValidationCount(ledgerHash(1)))
	require.Len(t, c.ValidationsFor(ledgerHash(1)), 1)
}

func TestAddValidationStaleSignTimeNotCurrent(t *testing.T) {
	now := time.Unix(1_700_000_000, 0).UTC()
	c := NewCollection(TrustorFunc(trustAll), WithClock(fixedClock(now)))

	v := &Validation{LedgerHash: ledgerHash(1), PeerID: peerID(1), SignTime: now.Add(-1 * time.Hour)}
	wasCurrent := c.AddValidation(v, SourcePeer)

	require.False(t, wasCurrent)
	_, ok := c.CurrentValidationFor(peerID(1))
	require.False(t, ok)
	require.Equal(t, 1, c.GetTrustedValidationCount(ledgerHash(1)))
}

func TestAddValidationSupersedesAndDemotesToStale(t *testing.T) {
	now := time.Unix(1_700_000_000, 0).UTC()
	var staled []*Validation
	c := NewCollection(TrustorFunc(trustAll), WithClock(fixedClock(now)),
		WithStaleSink(func(v *Validation) { staled = append(staled, v) }))

	v1 := &Validation{LedgerHash: ledgerHash(1), PeerID: peerID(1), SignTime: now}
	v2 := &Validation{LedgerHash: ledgerHash(2), PeerID: peerID(1), SignTime: now}

	require.True(t, c.AddValidation(v1, SourcePeer))
	require.True(t, c.AddValidation(v2, SourcePeer))

	cur, ok := c.CurrentValidationFor(peerID(1))
	require.True(t, ok)
	require.Equal(t, ledgerHash(2), cur.LedgerHash)
	require.Len(t, staled, 1)
	require.Equal(t, ledgerHash(1), staled[0].LedgerHash)

	// by_ledger still remembers both for forensics/counting.
	require.Equal(t, 1, c.GetTrustedValidationCount(ledgerHash(1)))
	require.Equal(t, 1, c.GetTrustedValidationCount(ledgerHash(2)))
}

func TestAddValidationOutOfOrderArrivalDoesNotDemoteNewerCurrent(t *testing.T) {
	now := time.Unix(1_700_000_000, 0).UTC()
	var staled []*Validation
	c := NewCollection(TrustorFunc(trustAll), WithClock(fixedClock(now)),
		WithStaleSink(func(v *Validation) { staled = append(staled, v) }))

	newer := &Validation{LedgerHash: ledgerHash(2), PeerID: peerID(1), SignTime: now}
	older := &Validation{LedgerHash: ledgerHash(1), PeerID: peerID(1), SignTime: now.Add(-2 * time.Second)}

	require.True(t, c.AddValidation(newer, SourcePeer))
	require.False(t, c.AddValidation(older, SourcePeer), "a late-delivered older validation must not promote to current")

	cur, ok := c.CurrentValidationFor(peerID(1))
	require.True(t, ok)
	require.Equal(t, ledgerHash(2), cur.LedgerHash, "the newer validation must remain current")
	require.Empty(t, staled, "the newer current must not be demoted by an out-of-order older arrival")

	// by_ledger still remembers the older arrival for forensics/counting.
	require.Equal(t, 1, c.GetTrustedValidationCount(ledgerHash(1)))
	require.Equal(t, 1, c.GetTrustedValidationCount(ledgerHash(2)))
}

func TestAddValidationNotifiesAcceptCheckerOnlyWhenTrusted(t *testing.T) {
	now := time.Unix(1_700_000_000, 0).UTC()
	var notified []hash.H256
	checker := AcceptCheckerFunc(func(h hash.H256) { notified = append(notified, h) })

	c := NewCollection(TrustorFunc(func([]byte) bool { return false }), WithClock(fixedClock(now)), WithAcceptChecker(checker))
	c.AddValidation(&Validation{LedgerHash: ledgerHash(1), PeerID: peerID(1), SignTime: now}, SourcePeer)
	require.Empty(t, notified)

	c2 := NewCollection(TrustorFunc(trustAll), WithClock(fixedClock(now)), WithAcceptChecker(checker))
	c2.AddValidation(&Validation{LedgerHash: ledgerHash(2), PeerID: peerID(1), SignTime: now}, SourcePeer)
	require.Equal(t, []hash.H256{ledgerHash(2)}, notified)
}

func TestGetNodesAfter(t *testing.T) {
	now := time.Unix(1_700_000_000, 0).UTC()
	c := NewCollection(TrustorFunc(trustAll), WithClock(fixedClock(now)))

	parent := ledgerHash(1)
	child := ledgerHash(2)
	c.AddValidation(&Validation{LedgerHash: child, PreviousHash: parent, PeerID: peerID(1), SignTime: now}, SourcePeer)
	c.AddValidation(&Validation{LedgerHash: parent, PeerID: peerID(2), SignTime: now}, SourcePeer)

	require.Equal(t, 1, c.GetNodesAfter(parent))
	require.Equal(t, 0, c.GetNodesAfter(child))
}

func TestGetCurrentValidationsFoldsPreferredAndPrior(t *testing.T) {
	now := time.Unix(1_700_000_000, 0).UTC()
	c := NewCollection(TrustorFunc(trustAll), WithClock(fixedClock(now)))

	preferred := ledgerHash(10)
	prior := ledgerHash(20)
	other := ledgerHash(30)

	// Peer 1 validated a child of preferred: folds into preferred's bucket.
	c.AddValidation(&Validation{LedgerHash: ledgerHash(11), PreviousHash: preferred, PeerID: peerID(1), SignTime: now}, SourcePeer)
	// Peer 2 validated prior directly: also folds into preferred's bucket.
	c.AddValidation(&Validation{LedgerHash: prior, PeerID: peerID(2), SignTime: now}, SourcePeer)
	// Peer 3 validated something unrelated: stands alone.
	c.AddValidation(&Validation{LedgerHash: other, PeerID: peerID(3), SignTime: now}, SourcePeer)

	result := c.GetCurrentValidations(preferred, prior)
	require.Equal(t, 2, result[preferred].Count)
	require.Equal(t, 1, result[other].Count)
	require.Equal(t, peerID(2), result[preferred].MaxPeerID)
}

func TestGetCurrentValidationsExpiresAgedOutAndStales(t *testing.T) {
	now := time.Unix(1_700_000_000, 0).UTC()
	var staled []*Validation
	clock := now
	c := NewCollection(TrustorFunc(trustAll), WithClock(func() time.Time { return clock }),
		WithStaleSink(func(v *Validation) { staled = append(staled, v) }))

	h := ledgerHash(1)
	c.AddValidation(&Validation{LedgerHash: h, PeerID: peerID(1), SignTime: now}, SourcePeer)

	clock = now.Add(ValInterval + time.Minute)
	result := c.GetCurrentValidations(hash.H256{}, hash.H256{})

	require.Empty(t, result)
	require.Len(t, staled, 1)
	_, ok := c.CurrentValidationFor(peerID(1))
	require.False(t, ok)
}

func TestFlushDemotesAllCurrentToStale(t *testing.T) {
	now := time.Unix(1_700_000_000, 0).UTC()
	var staled []*Validation
	c := NewCollection(TrustorFunc(trustAll), WithClock(fixedClock(now)),
		WithStaleSink(func(v *Validation) { staled = append(staled, v) }))

	c.AddValidation(&Validation{LedgerHash: ledgerHash(1), PeerID: peerID(1), SignTime: now}, SourcePeer)
	c.AddValidation(&Validation{LedgerHash: ledgerHash(2), PeerID: peerID(2), SignTime: now}, SourcePeer)

	c.Flush()
	require.Len(t, staled, 2)
	_, ok := c.CurrentValidationFor(peerID(1))
	require.False(t, ok)
}
