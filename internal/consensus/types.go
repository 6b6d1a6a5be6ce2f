// Package consensus drives the close/establish/accept cycle that turns an
// open ledger's accumulated transactions into the next agreed ledger: the
// proposal exchange, dispute resolution between conflicting positions, and
// the final multi-pass transaction application that produces the accepted
// ledger handed to LedgerMaster.
package consensus

import (
	"time"

	"github.com/ledgerforge/ledgerd/internal/hash"
	"github.com/ledgerforge/ledgerd/internal/ledger"
)

// Phase is where a round currently sits in the close/establish/accept cycle.
type Phase int

const (
	PhasePreClose Phase = iota
	PhaseEstablish
	PhaseFinished
	PhaseAccepted
)

func (p Phase) String() string {
	switch p {
	case PhasePreClose:
		return "pre-close"
	case PhaseEstablish:
		return "establish"
	case PhaseFinished:
		return "finished"
	case PhaseAccepted:
		return "accepted"
	default:
		return "unknown"
	}
}

// SeqLeave is the sentinel proposal sequence meaning the peer has withdrawn
// from this round (e.g. because it detected it was on the wrong LCL).
const SeqLeave = 0xFFFFFFFF

// Proposal is one peer's (or our own) claimed position for the round: the
// transaction-set root it believes should become the next ledger.
type Proposal struct {
	PrevLedger   hash.H256
	Position     hash.H256
	CloseTime    time.Time
	Seq          uint32
	PeerPubkey   []byte
	PeerID       hash.H160
	Signature    []byte
	SignTime     time.Time
}

// IsBowOut reports whether this proposal is a SEQ_LEAVE withdrawal.
func (p *Proposal) IsBowOut() bool { return p.Seq == SeqLeave }

// Timing bounds how long a round idles before closing and how the
// required-consensus percentage rises as a round runs long. Values not
// pinned by name in the underlying algorithm (only LEDGER_RETRY_PASSES and
// LEDGER_TOTAL_PASSES are) use rippled's long-published historical
// defaults as a faithful stand-in; see the consensus entry in the
// repository's grounding notes.
type Timing struct {
	IdleInterval time.Duration

	// InitPct/MidPct/LatePct/StuckPct are the required agreement
	// percentages at each stage of a round's elapsed-time schedule.
	InitPct  int
	MidPct   int
	LatePct  int
	StuckPct int

	// MidTimePct/LateTimePct/StuckTimePct are how far into a round
	// (as a percentage of the previous round's duration) each stage begins.
	MidTimePct   int
	LateTimePct  int
	StuckTimePct int

	// CloseTimePct is the fraction of proposers a close-time bucket needs
	// to win the close-time vote.
	CloseTimePct int

	// RetryPasses bounds retriable transaction-application passes;
	// TotalPasses bounds retry + final passes combined.
	RetryPasses int
	TotalPasses int
}

// DefaultTiming returns the standard round timing.
func DefaultTiming() Timing {
	return Timing{
		IdleInterval: 15 * time.Second,
		InitPct:      50,
		MidPct:       65,
		LatePct:      70,
		StuckPct:     95,
		MidTimePct:   50,
		LateTimePct:  85,
		StuckTimePct: 200,
		CloseTimePct: 75,
		RetryPasses:  5,
		TotalPasses:  8,
	}
}

// RequiredPct returns the agreement percentage needed to declare consensus
// once closePercent (elapsed time as a percentage of the previous round's
// duration) has been reached.
func (t Timing) RequiredPct(closePercent int) int {
	switch {
	case closePercent < t.MidTimePct:
		return t.InitPct
	case closePercent < t.LateTimePct:
		return t.MidPct
	case closePercent < t.StuckTimePct:
		return t.LatePct
	default:
		return t.StuckPct
	}
}

// ApplyResult is a transaction engine's verdict on one transaction during
// ledger construction.
type ApplyResult int

const (
	ApplySuccess ApplyResult = iota
	ApplyRetry
	ApplyFail
	ApplyLocal
)

// Applier applies one transaction to a ledger under construction. Retry
// means the transaction may succeed in a later pass (e.g. it depends on
// another transaction in this same set); Fail and Local both drop the
// transaction from the round, the distinction being only where the
// failure should be logged.
type Applier interface {
	Apply(l *ledger.Ledger, txID hash.H256, raw []byte) (ApplyResult, error)
}

// Signer produces signatures for outgoing proposals and validations, and
// reports our own node's identity.
type Signer interface {
	PeerID() hash.H160
	Pubkey() []byte
	SignProposal(p *Proposal) error
}
