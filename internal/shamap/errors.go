package shamap

import (
	"errors"
	"fmt"

	"github.com/ledgerforge/ledgerd/internal/hash"
)

// Sentinel errors for structural/argument failures ("result
// type, not exceptions" — these are returned, never panicked, except where
// noted on InternalInvariant).
var (
	ErrInvalidBranch      = errors.New("shamap: invalid branch index")
	ErrMaxDepthExceeded   = errors.New("shamap: maximum depth exceeded")
	ErrInvalidNodeID      = errors.New("shamap: invalid NodeID encoding")
	ErrImmutable          = errors.New("shamap: map is immutable")
	ErrNilItem            = errors.New("shamap: item is nil")
	ErrNotSynching        = errors.New("shamap: map is not in synching state")
	ErrAlreadySynching    = errors.New("shamap: map is already full, cannot synch")
)

// MapType distinguishes a SHAMap used for a transaction set from one used
// for account state — "Item... For transactions the tag is the
// transaction ID; for account state it is the account index."
type MapType int

const (
	MapTypeTransaction MapType = iota
	MapTypeState
)

func (t MapType) String() string {
	if t == MapTypeState {
		return "state"
	}
	return "transaction"
}

// MissingNode is raised when a walk needs a node that is neither cached
// locally nor retrievable from the HashedObjectStore. It is non-fatal:
// callers schedule a fetch and continue other work.
type MissingNode struct {
	MapType    MapType
	ID         NodeID
	Hash       hash.H256
	TargetTag  *hash.H256 // set when the miss occurred while seeking a specific tag
}

func (e *MissingNode) Error() string {
	if e.TargetTag != nil {
		return fmt.Sprintf("shamap: missing node %s (hash %s) seeking tag %s in %s map",
			e.ID, e.Hash, e.TargetTag, e.MapType)
	}
	return fmt.Sprintf("shamap: missing node %s (hash %s) in %s map", e.ID, e.Hash, e.MapType)
}

// InvalidNode is raised when bytes received from a peer do not hash to the
// value recorded in the parent. It is peer-scoped: the sending peer's
// contribution to the current sync is discarded and the node is
// re-requested elsewhere.
type InvalidNode struct {
	ID       NodeID
	Expected hash.H256
	Got      hash.H256
}

func (e *InvalidNode) Error() string {
	return fmt.Sprintf("shamap: invalid node %s: expected hash %s, got %s", e.ID, e.Expected, e.Got)
}

// InternalInvariant signals a programmer error — a structural invariant
// from was violated by our own code, not by untrusted input.
// Per it panics in debug builds and is logged-and-continued in
// release; DebugPanic controls which.
type InternalInvariant struct {
	Detail string
}

func (e *InternalInvariant) Error() string {
	return fmt.Sprintf("shamap: internal invariant violated: %s", e.Detail)
}

// DebugPanic, when true, makes raiseInvariant panic instead of returning
// the error; flip in tests/debug builds, leave false in production.
var DebugPanic = false

func raiseInvariant(detail string) error {
	err := &InternalInvariant{Detail: detail}
	if DebugPanic {
		panic(err)
	}
	return err
}
