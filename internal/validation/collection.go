package validation

import (
	"log/slog"
	"sync"
	"time"

	"github.com/ledgerforge/ledgerd/internal/hash"
)

const (
	// EarlyInterval is how far into the past a validation's sign_time may
	// fall and still count as current.
	EarlyInterval = 3 * time.Second

	// ValInterval bounds how far into the future a validation's sign_time
	// may fall and still count as current.
	ValInterval = 5 * time.Minute
)

// Collection is the two-index validation tracker: every validation ever
// seen (by_ledger, kept for counting and forensics) and the single current
// validation per peer (current). A validation superseded by a newer one
// from the same peer is demoted to stale and handed to StaleSink for
// asynchronous persistence; the in-memory indexes never block on it.
type Collection struct {
	mu sync.RWMutex

	byLedger map[hash.H256]map[PeerID]*Validation
	current  map[PeerID]*Validation

	trust   Trustor
	accept  AcceptChecker
	stale   func(*Validation)
	nowFunc func() time.Time
	log     *slog.Logger
}

// Option configures a Collection at construction.
type Option func(*Collection)

func WithAcceptChecker(a AcceptChecker) Option {
	return func(c *Collection) { c.accept = a }
}

func WithStaleSink(fn func(*Validation)) Option {
	return func(c *Collection) { c.stale = fn }
}

// WithClock overrides the time source; tests use this to avoid racing the
// current/early windows against the wall clock.
func WithClock(fn func() time.Time) Option {
	return func(c *Collection) { c.nowFunc = fn }
}

func WithLogger(log *slog.Logger) Option {
	return func(c *Collection) { c.log = log }
}

func NewCollection(trust Trustor, opts ...Option) *Collection {
	c := &Collection{
		byLedger: make(map[hash.H256]map[PeerID]*Validation),
		current:  make(map[PeerID]*Validation),
		trust:    trust,
		nowFunc:  time.Now,
		log:      slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Collection) now() time.Time { return c.nowFunc() }

func (c *Collection) isCurrent(signTime time.Time) bool {
	now := c.now()
	return signTime.After(now.Add(-EarlyInterval)) && signTime.Before(now.Add(ValInterval))
}

// AddValidation admits v, reporting whether it became (or remains) the
// peer's current validation. A duplicate from the same peer for the same
// ledger hash is rejected outright.
//
//  1. mark trusted iff signer in UNL
//  2. compute is_current from sign_time window
//  3. insert into by_ledger; reject duplicates
//  4. if current and not older than the peer's existing current (sign_time
//     order), demote the old one to stale; an out-of-order older arrival
//     is retained in by_ledger only and never promotes to current
//  5. if trusted, notify the accept checker
func (c *Collection) AddValidation(v *Validation, source Source) (wasCurrent bool) {
	v.Trusted = source == SourceLocal || (c.trust != nil && c.trust.InUNL(v.SignerPubkey))
	isCurrent := c.isCurrent(v.SignTime)

	c.mu.Lock()

	ledgerSet, ok := c.byLedger[v.LedgerHash]
	if !ok {
		ledgerSet = make(map[PeerID]*Validation)
		c.byLedger[v.LedgerHash] = ledgerSet
	}
	if _, dup := ledgerSet[v.PeerID]; dup {
		c.mu.Unlock()
		c.log.Debug("validation: duplicate rejected", "peer", v.PeerID, "ledger_hash", v.LedgerHash)
		return false
	}
	ledgerSet[v.PeerID] = v

	var demoted *Validation
	promoted := false
	if isCurrent {
		existing, ok := c.current[v.PeerID]
		if !ok {
			c.current[v.PeerID] = v
			promoted = true
		} else if !v.SignTime.Before(existing.SignTime) {
			if existing.LedgerHash != v.LedgerHash {
				demoted = existing
			}
			c.current[v.PeerID] = v
			promoted = true
		}
		// An older sign_time arriving after a newer one already promoted a
		// peer's current validation stays in by_ledger only: it keeps its
		// place for GetTrustedValidationCount/GetCurrentValidations lookups
		// against its own ledger hash, but never displaces the newer current.
	}
	c.mu.Unlock()

	if demoted != nil {
		c.log.Debug("validation: superseded, demoting to stale", "peer", v.PeerID, "old_ledger_hash", demoted.LedgerHash, "new_ledger_hash", v.LedgerHash)
		if c.stale != nil {
			c.stale(demoted)
		}
	}
	if v.Trusted && c.accept != nil {
		c.accept.CheckAccept(v.LedgerHash)
	}
	return promoted
}

// GetTrustedValidationCount returns how many trusted peers have ever
// validated ledgerHash, current or not.
func (c *Collection) GetTrustedValidationCount(ledgerHash hash.H256) int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	count := 0
	for _, v := range c.byLedger[ledgerHash] {
		if v.Trusted {
			count++
		}
	}
	return count
}

// GetNodesAfter returns the number of trusted peers whose current
// validation's previous-hash is ledgerHash — i.e. peers who have moved on
// to a child of it.
func (c *Collection) GetNodesAfter(ledgerHash hash.H256) int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	count := 0
	for _, v := range c.current {
		if v.Trusted && v.HasPreviousHash() && v.PreviousHash == ledgerHash {
			count++
		}
	}
	return count
}

// GetCurrentValidations tallies trusted, current validations by ledger
// hash, folding preferred/prior into the caller's own candidate when a
// peer's validation is consistent with it. This is the LCL selector
// consensus uses to decide which ledger hash has the most support.
func (c *Collection) GetCurrentValidations(preferred, prior hash.H256) map[hash.H256]CurrentValidationCount {
	c.mu.Lock()
	var expired []PeerID
	for id, v := range c.current {
		if !c.isCurrent(v.SignTime) {
			expired = append(expired, id)
		}
	}
	var toStale []*Validation
	for _, id := range expired {
		toStale = append(toStale, c.current[id])
		delete(c.current, id)
	}

	hasPreferred := !preferred.IsZero()
	hasPrior := !prior.IsZero()

	out := make(map[hash.H256]CurrentValidationCount)
	for _, v := range c.current {
		if !v.Trusted {
			continue
		}
		target := v.LedgerHash
		countsForPreferred := (hasPreferred && v.HasPreviousHash() && v.PreviousHash == preferred) ||
			(hasPrior && v.LedgerHash == prior)
		if countsForPreferred {
			target = preferred
		}

		bucket := out[target]
		bucket.Count++
		if v.PeerID.Compare(bucket.MaxPeerID) > 0 {
			bucket.MaxPeerID = v.PeerID
		}
		out[target] = bucket
	}
	c.mu.Unlock()

	if c.stale != nil {
		for _, v := range toStale {
			c.stale(v)
		}
	}
	return out
}

// CurrentValidationFor returns the peer's current validation, if any.
func (c *Collection) CurrentValidationFor(peer PeerID) (*Validation, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.current[peer]
	return v, ok
}

// ValidationsFor returns every validation ever seen for ledgerHash, trusted
// or not.
func (c *Collection) ValidationsFor(ledgerHash hash.H256) []*Validation {
	c.mu.RLock()
	defer c.mu.RUnlock()

	set := c.byLedger[ledgerHash]
	out := make([]*Validation, 0, len(set))
	for _, v := range set {
		out = append(out, v)
	}
	return out
}

// Flush demotes every current validation to stale, for a clean shutdown.
func (c *Collection) Flush() {
	c.mu.Lock()
	var all []*Validation
	for _, v := range c.current {
		all = append(all, v)
	}
	c.current = make(map[PeerID]*Validation)
	c.mu.Unlock()

	if c.stale != nil {
		for _, v := range all {
			c.stale(v)
		}
	}
}
