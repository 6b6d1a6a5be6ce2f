package ledger

import (
	"fmt"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/ledgerforge/ledgerd/internal/hash"
)

// TxDisposition says which of LedgerMaster's three ledger-ish targets a
// submitted transaction landed in, or that it was queued for later.
type TxDisposition int

const (
	DispatchedToOpen TxDisposition = iota
	DispatchedToClosing
	HeldForFuture
	ReplayedFromHeld
	AlreadyApplied
)

// Master is C4: holds the current open, (at most one) closing, and
// historical accepted ledgers, and routes incoming transactions by ledger
// sequence.
type Master struct {
	mu sync.RWMutex

	open    *Ledger
	closing *Ledger

	bySeq  *lru.Cache[uint32, *Ledger]
	byHash *lru.Cache[hash.H256, *Ledger]
	held   map[hash.H256][]byte
	have   completeSet
}

// NewMaster builds a LedgerMaster rooted at genesis, recorded as its first
// accepted ledger. It installs no open ledger; callers provide one with
// SetOpen.
func NewMaster(genesis *Ledger, recentCacheSize int) (*Master, error) {
	if recentCacheSize <= 0 {
		recentCacheSize = 256
	}
	bySeq, err := lru.New[uint32, *Ledger](recentCacheSize)
	if err != nil {
		return nil, err
	}
	byHash, err := lru.New[hash.H256, *Ledger](recentCacheSize)
	if err != nil {
		return nil, err
	}
	m := &Master{
		bySeq:  bySeq,
		byHash: byHash,
		held:   make(map[hash.H256][]byte),
	}
	m.recordAccepted(genesis)
	return m, nil
}

func (m *Master) recordAccepted(l *Ledger) {
	m.bySeq.Add(l.Sequence(), l)
	m.byHash.Add(l.Hash(), l)
	m.have.add(l.Sequence())
}

// CurrentOpen returns the current open ledger.
func (m *Master) CurrentOpen() *Ledger {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.open
}

// SetOpen installs l as the current open ledger (used by the genesis
// bootstrap path, before the first PushLedger).
func (m *Master) SetOpen(l *Ledger) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.open = l
}

// Closing returns the ledger currently under consensus, if any.
func (m *Master) Closing() *Ledger {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.closing
}

// BeginClosing moves the current open ledger into the closing slot (at most
// one round closes at a time) and returns it.
func (m *Master) BeginClosing() (*Ledger, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closing != nil {
		return nil, fmt.Errorf("ledger: a round is already closing (seq %d)", m.closing.Sequence())
	}
	m.closing = m.open
	m.open = nil
	return m.closing, nil
}

// ByHash returns an accepted ledger by hash, if cached.
func (m *Master) ByHash(h hash.H256) (*Ledger, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.byHash.Get(h)
}

// BySeq returns an accepted ledger by sequence, if cached.
func (m *Master) BySeq(seq uint32) (*Ledger, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.bySeq.Get(seq)
}

// HaveComplete reports whether seq is held locally.
func (m *Master) HaveComplete(seq uint32) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.have.contains(seq)
}

// PushLedger atomically retires the old open, installs newClosed into
// history, and makes newOpen current ("push_ledger... takes
// the component lock for its full duration").
func (m *Master) PushLedger(newClosed, newOpen *Ledger, hadConsensus bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.recordAccepted(newClosed)
	m.closing = nil
	m.open = newOpen
	_ = hadConsensus // recorded for validation-gap metrics by the caller, not structurally needed here
}

// DispatchTransaction routes a submitted transaction: to
// the current open if its target seq matches, to the closing round if it
// matches and is still accepting late arrivals, to the held queue if it
// targets a future sequence, or replayed into the open ledger after
// verifying it isn't already applied anywhere in [s, open.seq].
func (m *Master) DispatchTransaction(targetSeq uint32, txID hash.H256, raw []byte, closingAcceptsLate bool) (TxDisposition, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.open != nil && targetSeq == m.open.Sequence() {
		if err := m.open.AddTransaction(txID, raw); err != nil {
			if err == ErrEntryExists {
				return AlreadyApplied, nil
			}
			return 0, err
		}
		return DispatchedToOpen, nil
	}
	if m.closing != nil && targetSeq == m.closing.Sequence() && closingAcceptsLate {
		if err := m.closing.AddTransaction(txID, raw); err != nil {
			if err == ErrEntryExists {
				return AlreadyApplied, nil
			}
			return 0, err
		}
		return DispatchedToClosing, nil
	}
	if m.open != nil && targetSeq > m.open.Sequence() {
		m.held[txID] = raw
		return HeldForFuture, nil
	}
	// Stale or already-closed target: only worth replaying if not already
	// present somewhere in [targetSeq, open.seq].
	for s := targetSeq; m.open != nil && s <= m.open.Sequence(); s++ {
		if l, ok := m.bySeq.Get(s); ok {
			if has, _ := l.txMap.Has(txID); has {
				return AlreadyApplied, nil
			}
		}
	}
	if m.open != nil {
		if err := m.open.AddTransaction(txID, raw); err != nil {
			if err == ErrEntryExists {
				return AlreadyApplied, nil
			}
			return 0, err
		}
	}
	return ReplayedFromHeld, nil
}

// DrainHeld returns and clears transactions previously held for a future
// sequence that has now arrived, so the caller can re-dispatch them.
func (m *Master) DrainHeld() map[hash.H256][]byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := m.held
	m.held = make(map[hash.H256][]byte)
	return out
}
