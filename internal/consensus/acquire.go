package consensus

import (
	"sync"
	"time"

	"github.com/ledgerforge/ledgerd/internal/hash"
	"github.com/ledgerforge/ledgerd/internal/shamap"
)

// AcquireState is where a TxSetAcquire sits in its fetch lifecycle.
type AcquireState int

const (
	AcquireNeedRoot AcquireState = iota
	AcquireNeedNodes
	AcquireComplete
	AcquireFailed
)

// TxSetAcquire fetches one candidate transaction set by hash from whichever
// peers advertise it, feeding received nodes into dest via the sync
// protocol until every descendant is present.
type TxSetAcquire struct {
	mu sync.Mutex

	hash    hash.H256
	dest    *shamap.SHAMap
	timeout time.Duration

	peers       []hash.H160
	triedIdx    int
	lastRequest time.Time
	state       AcquireState

	onComplete func(hash.H256, *shamap.SHAMap)
}

// NewTxSetAcquire starts acquiring h into dest (which must be empty and not
// yet synching — TxSetAcquire calls BeginSync itself).
func NewTxSetAcquire(h hash.H256, dest *shamap.SHAMap, timeout time.Duration, onComplete func(hash.H256, *shamap.SHAMap)) (*TxSetAcquire, error) {
	if err := dest.BeginSync(); err != nil {
		return nil, err
	}
	return &TxSetAcquire{
		hash:       h,
		dest:       dest,
		timeout:    timeout,
		onComplete: onComplete,
	}, nil
}

// Hash returns the tx-set hash being acquired.
func (a *TxSetAcquire) Hash() hash.H256 { return a.hash }

// State returns the current fetch state.
func (a *TxSetAcquire) State() AcquireState {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

// PeerHas records that peer advertised possession of this tx set (a
// HaveTxSet/HAVE message), making it eligible to be asked.
func (a *TxSetAcquire) PeerHas(peer hash.H160) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, p := range a.peers {
		if p == peer {
			return
		}
	}
	a.peers = append(a.peers, peer)
}

// NextPeer returns the next peer to ask, round-robining through everyone
// who has advertised this hash. Returns false once every known peer has
// been tried this sweep — the caller should then broadcast to all
// connected peers instead of a targeted request.
func (a *TxSetAcquire) NextPeer(now time.Time) (hash.H160, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.triedIdx >= len(a.peers) {
		return hash.H160{}, false
	}
	p := a.peers[a.triedIdx]
	a.triedIdx++
	a.lastRequest = now
	return p, true
}

// TimedOut reports whether the last request has aged past timeout without
// progress, meaning the caller should rotate to another peer (or broadcast,
// if NextPeer has exhausted the known peer list).
func (a *TxSetAcquire) TimedOut(now time.Time) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.lastRequest.IsZero() {
		return false
	}
	return now.Sub(a.lastRequest) >= a.timeout
}

// AddRoot feeds the candidate set's root node.
func (a *TxSetAcquire) AddRoot(data []byte) (shamap.AddResult, error) {
	res, err := a.dest.AddRootNode(a.hash, data)
	if err != nil {
		return res, err
	}
	a.checkComplete()
	return res, nil
}

// AddNode feeds one non-root node discovered during the fetch.
func (a *TxSetAcquire) AddNode(id shamap.NodeID, data []byte) (shamap.AddResult, error) {
	res, err := a.dest.AddKnownNode(id, data)
	if err != nil {
		return res, err
	}
	a.checkComplete()
	return res, nil
}

// checkComplete transitions to Complete once no descendants remain
// missing, invoking onComplete exactly once.
func (a *TxSetAcquire) checkComplete() {
	missing, err := a.dest.GetMissingNodes(1)
	if err != nil || len(missing) > 0 {
		return
	}

	a.mu.Lock()
	already := a.state == AcquireComplete
	a.state = AcquireComplete
	a.mu.Unlock()

	if !already && a.onComplete != nil {
		a.onComplete(a.hash, a.dest)
	}
}
