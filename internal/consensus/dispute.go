package consensus

import (
	"sync"

	"github.com/ledgerforge/ledgerd/internal/hash"
)

// Dispute is a transaction whose inclusion our position and at least one
// peer's position disagree on. It tracks every peer's vote so our own
// position can be re-derived as votes (ours and peers') change.
type Dispute struct {
	mu sync.Mutex

	TxID    hash.H256
	Body    []byte
	ourVote bool
	votes   map[hash.H160]bool
}

// NewDispute creates a dispute seeded with our own vote.
func NewDispute(txID hash.H256, body []byte, ourVote bool) *Dispute {
	return &Dispute{
		TxID:    txID,
		Body:    body,
		ourVote: ourVote,
		votes:   make(map[hash.H160]bool),
	}
}

// OurVote reports our current vote on whether this transaction belongs in
// the agreed set.
func (d *Dispute) OurVote() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.ourVote
}

// SetVote records (or updates) a peer's vote.
func (d *Dispute) SetVote(peer hash.H160, included bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.votes[peer] = included
}

// RemoveVote drops a peer's vote, e.g. because it bowed out of the round.
func (d *Dispute) RemoveVote(peer hash.H160) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.votes, peer)
}

// Tally returns the current yay/nay counts among peer votes (not including
// our own).
func (d *Dispute) Tally() (yays, nays int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, v := range d.votes {
		if v {
			yays++
		} else {
			nays++
		}
	}
	return yays, nays
}

// UpdateOurVote recomputes our vote from the current peer tally. When
// proposing, our vote only flips once the yes-share clears the
// time-dependent threshold for closePercent; when merely observing, we
// track the simple majority. Returns whether our vote changed.
func (d *Dispute) UpdateOurVote(timing Timing, proposing bool, closePercent int) bool {
	yays, nays := d.Tally()
	total := yays + nays
	if total == 0 {
		return false
	}

	var newVote bool
	if !proposing {
		newVote = yays > nays
	} else {
		required := timing.RequiredPct(closePercent)
		pct := yays * 100 / total
		newVote = pct >= required
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if newVote == d.ourVote {
		return false
	}
	d.ourVote = newVote
	return true
}
