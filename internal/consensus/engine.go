package consensus

import (
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/ledgerforge/ledgerd/internal/hash"
	"github.com/ledgerforge/ledgerd/internal/ledger"
	"github.com/ledgerforge/ledgerd/internal/shamap"
	"github.com/ledgerforge/ledgerd/internal/unl"
	"github.com/ledgerforge/ledgerd/internal/validation"
)

var (
	// ErrWrongLCL means a peer position (or our own round) targets a
	// previous ledger we don't believe is the last closed one.
	ErrWrongLCL = errors.New("consensus: proposal targets an unrecognized last closed ledger")
	// ErrRoundNotOpen means a call that requires an active round arrived
	// while the engine is idle between rounds.
	ErrRoundNotOpen = errors.New("consensus: no round currently open")
)

// Trustor reports whether a pubkey is in the validator set. The engine
// consults it only when counting proposers for the consensus check and
// for the next round's expected-proposer count; dispute votes are recorded
// from every peer with a position, trusted or not.
type Trustor interface {
	InUNL(pubkey []byte) bool
}

// round holds everything specific to one closing round: the ledger being
// closed, our own and every peer's position, open disputes, and close-time
// votes. The engine tears it down once Accept or a phase reset completes.
type round struct {
	phase Phase

	closing *ledger.Ledger
	prevSeq uint32
	prevHash hash.H256

	ourPosition *Proposal
	ourTxSet    *shamap.SHAMap

	peerPositions map[hash.H160]*Proposal
	disputes      map[hash.H256]*Dispute
	closeTimes    *CloseTimeVotes

	startTime        time.Time
	phaseStart       time.Time
	previousRoundDur time.Duration
	closeResolution  time.Duration

	// proposerCount is how many proposers took part in the previous round,
	// used past the stuck threshold to count this round's non-responders
	// as disagreement rather than silently excluding them. Zero (no prior
	// round observed yet) disables the adjustment.
	proposerCount int
}

// Engine drives one closing round at a time against concrete ledger,
// SHAMap, validation and UNL state (C7 LedgerConsensus).
type Engine struct {
	mu sync.Mutex

	master      *ledger.Master
	family      shamap.Family
	validations *validation.Collection
	unlist      *unl.List
	applier     Applier
	signer      Signer
	trust       Trustor
	timing      Timing
	clock       func() time.Time
	log         *slog.Logger

	proposing bool
	r         *round

	// lastRoundProposers is how many proposers (ourselves included)
	// actually took part in the most recently finished round. StartRound
	// seeds each new round's expected-proposer count from it, so
	// HaveConsensus can tell a peer that never showed up this round apart
	// from one that simply isn't in the UNL.
	lastRoundProposers int

	onAccept func(closed, open *ledger.Ledger)
}

// Option configures an Engine at construction.
type Option func(*Engine)

func WithLogger(log *slog.Logger) Option {
	return func(e *Engine) { e.log = log }
}

func WithClock(fn func() time.Time) Option {
	return func(e *Engine) { e.clock = fn }
}

func WithOnAccept(fn func(closed, open *ledger.Ledger)) Option {
	return func(e *Engine) { e.onAccept = fn }
}

// NewEngine builds an Engine. master, family, validations, unlist, applier
// and signer are required; trust may be nil (every peer with a position
// then counts as a proposer, as if every peer were trusted).
func NewEngine(master *ledger.Master, family shamap.Family, validations *validation.Collection, unlist *unl.List, applier Applier, signer Signer, trust Trustor, timing Timing, opts ...Option) *Engine {
	e := &Engine{
		master:      master,
		family:      family,
		validations: validations,
		unlist:      unlist,
		applier:     applier,
		signer:      signer,
		trust:       trust,
		timing:      timing,
		clock:       time.Now,
		log:         slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Engine) now() time.Time { return e.clock() }

// OurPosition returns our current round's position, or nil if no round is
// open. The peer-management layer calls this right after StartRound and
// after every position-changing UpdateOurPositions, to know what to
// broadcast.
func (e *Engine) OurPosition() *Proposal {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.r == nil {
		return nil
	}
	return e.r.ourPosition
}

// Phase returns the current round's phase, or PhaseAccepted if no round is
// open.
func (e *Engine) Phase() Phase {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.r == nil {
		return PhaseAccepted
	}
	return e.r.phase
}

// ShouldClose decides whether the current open ledger should transition to
// closing now: promptly if it holds transactions and has run past the
// previous round's duration, otherwise only once idle for IdleInterval or
// nudged by peer proposal activity.
func (e *Engine) ShouldClose(openSince time.Time, haveTransactions bool, previousRoundDur time.Duration, sawPeerActivity bool) bool {
	now := e.now()
	elapsed := now.Sub(openSince)
	if haveTransactions && elapsed >= previousRoundDur {
		return true
	}
	if sawPeerActivity {
		return true
	}
	return elapsed >= e.timing.IdleInterval
}

// StartRound moves the current open ledger into the closing slot and seeds
// our own initial position from its accumulated transaction set.
func (e *Engine) StartRound(proposing bool, closeResolution time.Duration, previousRoundDur time.Duration) error {
	closing, err := e.master.BeginClosing()
	if err != nil {
		return err
	}
	now := e.now()
	if err := closing.Close(now, closeResolution, 0); err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.proposing = proposing

	ourPos := &Proposal{
		PrevLedger: closing.ParentHash(),
		Position:   closing.TxMap().RootHash(),
		CloseTime:  closing.Header().CloseTime,
		Seq:        1,
		SignTime:   now,
	}
	if e.signer != nil {
		ourPos.PeerID = e.signer.PeerID()
		ourPos.PeerPubkey = e.signer.Pubkey()
		if err := e.signer.SignProposal(ourPos); err != nil {
			return err
		}
	}

	e.r = &round{
		phase:            PhaseEstablish,
		closing:          closing,
		prevSeq:          closing.Header().Seq - 1,
		prevHash:         closing.ParentHash(),
		ourPosition:      ourPos,
		ourTxSet:         closing.TxMap(),
		peerPositions:    make(map[hash.H160]*Proposal),
		disputes:         make(map[hash.H256]*Dispute),
		closeTimes:       NewCloseTimeVotes(),
		startTime:        now,
		phaseStart:       now,
		previousRoundDur: previousRoundDur,
		closeResolution:  closeResolution,
		proposerCount:    e.lastRoundProposers,
	}
	if proposing {
		e.r.closeTimes.Vote(ourPos.CloseTime)
	}
	return nil
}

// PeerPosition records one peer's claimed position, applying the four
// acceptance rules: reject positions from peers who already bowed out this
// round, reject stale (lower) sequence numbers from a peer we've already
// heard a later one from, accept a bare close-time pre-position (seq 0,
// position zero) without creating disputes, and treat SEQ_LEAVE as
// withdrawal rather than a real position.
func (e *Engine) PeerPosition(p *Proposal) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.r == nil {
		return ErrRoundNotOpen
	}
	if p.PrevLedger != e.r.prevHash {
		return ErrWrongLCL
	}

	existing, known := e.r.peerPositions[p.PeerID]
	if known && existing.IsBowOut() {
		e.log.Debug("consensus: ignoring position from withdrawn peer", "peer", p.PeerID)
		return nil
	}
	if known && !p.IsBowOut() && p.Seq <= existing.Seq {
		e.log.Debug("consensus: ignoring stale position", "peer", p.PeerID, "seq", p.Seq, "have", existing.Seq)
		return nil
	}

	e.r.peerPositions[p.PeerID] = p

	if p.IsBowOut() {
		for _, d := range e.r.disputes {
			d.RemoveVote(p.PeerID)
		}
		return nil
	}
	if p.Seq == 0 {
		// Bare close-time pre-position: a vote on the close-time bucket
		// only, no transaction-set position to diff against.
		e.r.closeTimes.Vote(p.CloseTime)
		return nil
	}

	e.r.closeTimes.Vote(p.CloseTime)
	return nil
}

// CreateDisputes diffs theirSet against our current position and opens a
// Dispute for every transaction tag the two sides disagree on, then
// registers peer's vote on every dispute (existing or newly created).
func (e *Engine) CreateDisputes(peer hash.H160, theirPosition hash.H256, theirSet *shamap.SHAMap) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.r == nil {
		return ErrRoundNotOpen
	}

	diffs, err := e.r.ourTxSet.Compare(theirSet, 1<<20)
	if err != nil {
		return err
	}
	for _, d := range diffs {
		if _, ok := e.r.disputes[d.Tag]; ok {
			continue
		}
		ourItem, _ := e.r.ourTxSet.Get(d.Tag)
		var body []byte
		ourVote := ourItem != nil
		if ourItem != nil {
			body = ourItem.Data
		} else if theirItem, _ := theirSet.Get(d.Tag); theirItem != nil {
			body = theirItem.Data
		}
		e.r.disputes[d.Tag] = NewDispute(d.Tag, body, ourVote)
	}

	// Every tracked dispute needs this peer's opinion recorded, not just
	// the tags this particular diff surfaced: a peer whose set agrees
	// with ours on a disputed tag (both include it, or both omit it)
	// still has a vote on it, it just didn't show up as a diff against
	// our own position.
	for tag, disp := range e.r.disputes {
		theirItem, _ := theirSet.Get(tag)
		disp.SetVote(peer, theirItem != nil)
	}
	_ = theirPosition
	return nil
}

// UpdateOurPositions recomputes every open dispute's vote from the current
// tally and, if anything flipped, rebuilds our transaction-set position
// (copy-on-write) and re-signs a fresh proposal at the next sequence
// number.
func (e *Engine) UpdateOurPositions(now time.Time) (*Proposal, bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.r == nil {
		return nil, false, ErrRoundNotOpen
	}

	closePercent := e.closePercentLocked(now)
	changed := false
	for _, d := range e.r.disputes {
		if d.UpdateOurVote(e.timing, e.proposing, closePercent) {
			changed = true
		}
	}
	if !changed {
		return nil, false, nil
	}

	newSet := e.r.ourTxSet.Snapshot(true)
	for txID, d := range e.r.disputes {
		vote := d.OurVote()
		has, _ := newSet.Has(txID)
		if vote && !has {
			_, _ = newSet.Add(shamap.NewItem(txID, d.Body), shamap.LeafTxnNoMeta)
		} else if !vote && has {
			_, _ = newSet.Delete(txID)
		}
	}
	newSet.SetImmutable()
	e.r.ourTxSet = newSet

	e.r.ourPosition.Seq++
	e.r.ourPosition.Position = newSet.RootHash()
	e.r.ourPosition.SignTime = now
	if e.signer != nil {
		if err := e.signer.SignProposal(e.r.ourPosition); err != nil {
			return nil, false, err
		}
	}
	return e.r.ourPosition, true, nil
}

func (e *Engine) closePercentLocked(now time.Time) int {
	if e.r.previousRoundDur <= 0 {
		return 100
	}
	elapsed := now.Sub(e.r.phaseStart)
	return int(elapsed * 100 / e.r.previousRoundDur)
}

// countProposers tallies how many proposers (ourselves included) posted an
// active position this round (excluding bow-outs and bare close-time
// pre-positions, and anyone outside the UNL when trust is configured), and
// how many of those agree with our current position.
func countProposers(r *round, trust Trustor) (total, agree int) {
	total, agree = 1, 1 // ourselves
	for _, p := range r.peerPositions {
		if p.IsBowOut() || p.Seq == 0 {
			continue
		}
		if trust != nil && !trust.InUNL(p.PeerPubkey) {
			continue
		}
		total++
		if p.Position == r.ourPosition.Position {
			agree++
		}
	}
	return total, agree
}

// countActiveProposers is the total half of countProposers, used to record
// how many proposers took part in a just-finished round.
func countActiveProposers(r *round, trust Trustor) int {
	total, _ := countProposers(r, trust)
	return total
}

// HaveConsensus reports whether enough proposers (weighted by trust, when a
// Trustor is configured) agree with our current position, per the
// time-dependent required-agreement schedule. Past the stuck threshold, a
// proposer who took part in the previous round but never posted a position
// this round is folded into the denominator as disagreement instead of
// being excluded outright, so a node can't read "consensus" off responders
// alone forever while the rest of the UNL has gone silent.
func (e *Engine) HaveConsensus(now time.Time) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.r == nil {
		return false
	}
	closePercent := e.closePercentLocked(now)
	required := e.timing.RequiredPct(closePercent)

	total, agree := countProposers(e.r, e.trust)
	if total <= 1 {
		// Ourselves alone is never consensus: the whole point is agreement
		// across independent positions.
		return false
	}

	if closePercent >= e.timing.StuckTimePct {
		if missing := e.r.proposerCount - total; missing > 0 {
			total += missing
		}
	}

	return agree*100/total >= required
}

// CloseTimeConsensus reports the agreed close time, if the close-time vote
// has reached the configured threshold.
func (e *Engine) CloseTimeConsensus(now time.Time) (time.Time, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.r == nil {
		return time.Time{}, false
	}
	total := len(e.r.peerPositions) + 1
	return e.r.closeTimes.Consensus(total, e.timing.CloseTimePct)
}

// pendingTx is one transaction awaiting application during Accept's
// multi-pass loop.
type pendingTx struct {
	id  hash.H256
	raw []byte
}

// Accept applies the agreed transaction set to the closing ledger across up
// to TotalPasses passes (the first RetryPasses of which re-queue
// Retry-verdict transactions for a later pass, on the theory that a
// transaction failing only because an earlier one in the same set hasn't
// landed yet will succeed once it has), then hands the accepted ledger and
// a fresh open ledger to LedgerMaster.
func (e *Engine) Accept(now time.Time) error {
	e.mu.Lock()
	r := e.r
	e.mu.Unlock()
	if r == nil {
		return ErrRoundNotOpen
	}

	l := r.closing
	totalPasses := e.timing.TotalPasses
	if totalPasses <= 0 {
		totalPasses = 1
	}

	final := collectTxSet(r.ourTxSet)
	pending := final
	for pass := 0; pass < totalPasses && len(pending) > 0; pass++ {
		retryable := pass < e.timing.RetryPasses
		var next []pendingTx
		for _, tx := range pending {
			res, err := e.applier.Apply(l, tx.id, tx.raw)
			if err != nil {
				return err
			}
			if res == ApplyRetry && retryable {
				next = append(next, tx)
			}
		}
		pending = next
	}

	// The closing ledger's own tx map was seeded from the open ledger
	// before disputes were resolved, so it can still disagree with our
	// final, dispute-settled position (e.g. a transaction we proposed
	// that lost its dispute). Reconcile it to exactly the agreed set
	// before freezing: anything dropped is carried forward into the next
	// open ledger instead of silently vanishing.
	reapply, err := reconcileTxSet(l, final)
	if err != nil {
		return err
	}

	flushed, err := l.Accept()
	if err != nil {
		return err
	}
	if len(flushed) > 0 {
		if err := e.family.StoreBatch(flushed); err != nil {
			return err
		}
	}

	open := ledger.NewOpen(l, e.family, now)
	for _, tx := range reapply {
		_ = open.AddTransaction(tx.id, tx.raw)
	}
	e.master.PushLedger(l, open, true)

	e.mu.Lock()
	e.lastRoundProposers = countActiveProposers(r, e.trust)
	e.r = nil
	e.mu.Unlock()

	if e.onAccept != nil {
		e.onAccept(l, open)
	}
	return nil
}

// reconcileTxSet prunes l's tx map down to exactly final's tags, adding
// anything final carries that l doesn't yet have. It returns the
// transactions that were pruned, for the caller to carry forward into the
// next round rather than drop.
func reconcileTxSet(l *ledger.Ledger, final []pendingTx) ([]pendingTx, error) {
	wanted := make(map[hash.H256][]byte, len(final))
	for _, tx := range final {
		wanted[tx.id] = tx.raw
	}

	sm := l.TxMap()
	existing := collectTxSet(sm)
	var reapply []pendingTx
	for _, tx := range existing {
		if _, ok := wanted[tx.id]; ok {
			delete(wanted, tx.id)
			continue
		}
		if _, err := sm.Delete(tx.id); err != nil {
			return nil, err
		}
		reapply = append(reapply, tx)
	}
	for id, raw := range wanted {
		if _, err := sm.Add(shamap.NewItem(id, raw), shamap.LeafTxnNoMeta); err != nil {
			return nil, err
		}
	}
	return reapply, nil
}

// collectTxSet walks the tx set's iterator into an ordered slice of pending
// transactions for Accept's pass loop.
func collectTxSet(sm *shamap.SHAMap) []pendingTx {
	var out []pendingTx
	item, err := sm.First()
	for err == nil && item != nil {
		out = append(out, pendingTx{id: item.Tag, raw: item.Data})
		item, err = sm.Next(item.Tag)
	}
	return out
}

// CheckLCL compares our closing ledger's parent against what the trusted
// validator set has actually moved on to, per C5's GetCurrentValidations,
// reporting the hash to switch to if we've forked.
func (e *Engine) CheckLCL(preferred hash.H256) (hash.H256, bool) {
	e.mu.Lock()
	if e.r == nil {
		e.mu.Unlock()
		return hash.H256{}, false
	}
	prevHash := e.r.prevHash
	e.mu.Unlock()

	counts := e.validations.GetCurrentValidations(preferred, prevHash)
	var best hash.H256
	var bestPeer hash.H160
	bestCount := 0
	for h, c := range counts {
		if c.Count > bestCount || (c.Count == bestCount && c.MaxPeerID.Compare(bestPeer) > 0) {
			best = h
			bestCount = c.Count
			bestPeer = c.MaxPeerID
		}
	}
	if best.IsZero() || best == prevHash {
		return hash.H256{}, false
	}
	return best, true
}
