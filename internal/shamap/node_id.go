package shamap

import (
	"fmt"

	"github.com/ledgerforge/ledgerd/internal/hash"
)

// MaxDepth is the deepest a SHAMap node can sit: one nibble per level of a
// 256-bit (64-nibble) key.
const MaxDepth = 64

// BranchFactor is the trie's fan-out: one child per nibble value (0-15).
const BranchFactor = 16

// NodeIDSize is the wire size of a serialized NodeID: 32-byte id + 1-byte depth.
const NodeIDSize = 33

// NodeID identifies a node's position in a SHAMap: a depth (0..=64, nibbles
// consumed from the root) and the id whose leading `depth` nibbles are
// significant. Depth 0 is the root.
type NodeID struct {
	Depth uint8
	ID    hash.H256
}

// RootNodeID is the identifier of every SHAMap's root.
func RootNodeID() NodeID { return NodeID{} }

// IsRoot reports whether n addresses the root.
func (n NodeID) IsRoot() bool { return n.Depth == 0 }

// nibble returns the nibble at the given index (0 = highest nibble of byte 0).
func nibble(id hash.H256, index int) uint8 {
	b := id[index/2]
	if index%2 == 0 {
		return b >> 4
	}
	return b & 0x0F
}

func setNibble(id *hash.H256, index int, v uint8) {
	byteIdx := index / 2
	if index%2 == 0 {
		id[byteIdx] = (id[byteIdx] & 0x0F) | (v << 4)
	} else {
		id[byteIdx] = (id[byteIdx] & 0xF0) | (v & 0x0F)
	}
}

// NodeIDForKey returns the NodeID at the given depth whose significant
// nibbles match key's leading nibbles, with all nibbles beyond depth masked
// to zero ("only the top depth nibbles of id are significant").
func NodeIDForKey(depth uint8, key hash.H256) (NodeID, error) {
	if depth > MaxDepth {
		return NodeID{}, fmt.Errorf("%w: depth %d", ErrMaxDepthExceeded, depth)
	}
	var id hash.H256
	for i := 0; i < int(depth); i++ {
		setNibble(&id, i, nibble(key, i))
	}
	return NodeID{Depth: depth, ID: id}, nil
}

// Child returns the NodeID of the given branch (0-15) below n.
func (n NodeID) Child(branch uint8) (NodeID, error) {
	if branch >= BranchFactor {
		return NodeID{}, fmt.Errorf("%w: %d", ErrInvalidBranch, branch)
	}
	if n.Depth >= MaxDepth {
		return NodeID{}, ErrMaxDepthExceeded
	}
	id := n.ID
	setNibble(&id, int(n.Depth), branch)
	return NodeID{Depth: n.Depth + 1, ID: id}, nil
}

// BranchFor returns which branch of n would lead towards key.
func (n NodeID) BranchFor(key hash.H256) uint8 {
	if n.Depth >= MaxDepth {
		return 0
	}
	return nibble(key, int(n.Depth))
}

// SharesPrefix reports whether key agrees with n's id on n's significant
// leading nibbles ("leaf placement" invariant).
func (n NodeID) SharesPrefix(key hash.H256) bool {
	for i := 0; i < int(n.Depth); i++ {
		if nibble(n.ID, i) != nibble(key, i) {
			return false
		}
	}
	return true
}

// Equal reports whether two NodeIDs address the same node.
func (n NodeID) Equal(o NodeID) bool { return n.Depth == o.Depth && n.ID == o.ID }

// Bytes returns the 33-byte wire form: 32-byte id followed by the depth byte.
func (n NodeID) Bytes() []byte {
	out := make([]byte, NodeIDSize)
	copy(out[:32], n.ID[:])
	out[32] = n.Depth
	return out
}

// NodeIDFromBytes parses the 33-byte wire form produced by Bytes.
func NodeIDFromBytes(b []byte) (NodeID, error) {
	if len(b) != NodeIDSize {
		return NodeID{}, fmt.Errorf("%w: got %d want %d", ErrInvalidNodeID, len(b), NodeIDSize)
	}
	depth := b[32]
	if depth > MaxDepth {
		return NodeID{}, ErrMaxDepthExceeded
	}
	var id hash.H256
	copy(id[:], b[:32])
	return NodeID{Depth: depth, ID: id}, nil
}

func (n NodeID) String() string {
	if n.IsRoot() {
		return "NodeID(root)"
	}
	relevant := (int(n.Depth) + 1) / 2
	return fmt.Sprintf("NodeID(depth=%d,id=%s)", n.Depth, n.ID.String()[:relevant*2])
}
