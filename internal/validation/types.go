// Package validation tracks peer validations of ledgers: which peers have
// declared a given ledger hash final, which of those are trusted, and which
// ledger hash currently has the most trusted support — the input consensus
// uses to pick its last-closed-ledger.
package validation

import (
	"time"

	"github.com/ledgerforge/ledgerd/internal/hash"
)

// PeerID identifies a validating node, derived from its public key.
type PeerID = hash.H160

// Source records where a validation arrived from, for logging and for the
// trust-threshold source (a validation from ourselves is always trusted).
type Source int

const (
	SourcePeer Source = iota
	SourceLocal
)

func (s Source) String() string {
	if s == SourceLocal {
		return "local"
	}
	return "peer"
}

// Validation is one peer's signed assertion that a ledger closed with a
// given hash. PreviousHash is carried by "full" validations (those signed
// with knowledge of the ledger chain) and backs GetNodesAfter; a validation
// received without it is still countable but can't support that query.
type Validation struct {
	LedgerHash   hash.H256
	LedgerSeq    uint32
	PreviousHash hash.H256
	SignTime     time.Time
	Flags        uint32
	SignerPubkey []byte
	PeerID       PeerID
	Signature    []byte

	Trusted bool
}

// HasPreviousHash reports whether v was signed with the full validation
// flag, carrying its parent ledger's hash.
func (v *Validation) HasPreviousHash() bool {
	return !v.PreviousHash.IsZero()
}

// Trustor decides whether a signer belongs to the local UNL. Validation
// never computes trust itself; it asks this at admission time so UNL
// membership changes take effect on the next validation rather than
// retroactively.
type Trustor interface {
	InUNL(pubkey []byte) bool
}

// TrustorFunc adapts a plain function to Trustor.
type TrustorFunc func(pubkey []byte) bool

func (f TrustorFunc) InUNL(pubkey []byte) bool { return f(pubkey) }

// AcceptChecker is notified whenever a trusted validation arrives, so
// whatever is driving ledger acceptance can re-evaluate whether the new
// support tips a ledger into finality.
type AcceptChecker interface {
	CheckAccept(ledgerHash hash.H256)
}

// AcceptCheckerFunc adapts a plain function to AcceptChecker.
type AcceptCheckerFunc func(ledgerHash hash.H256)

func (f AcceptCheckerFunc) CheckAccept(ledgerHash hash.H256) { f(ledgerHash) }

// CurrentValidationCount is one bucket of the GetCurrentValidations result:
// how many current, trusted validations support a ledger hash, and the
// highest peer ID among them (used only as a deterministic tiebreaker).
type CurrentValidationCount struct {
	Count     int
	MaxPeerID PeerID
}
