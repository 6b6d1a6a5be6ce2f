package shamap

import (
	"fmt"

	"github.com/ledgerforge/ledgerd/internal/hash"
)

// Kind discriminates the tagged union of tree-node variants (
// "SHAMapTreeNode... A tagged union with three variants"). Go has no sum
// types, so treeNode carries a Kind discriminant and the fields relevant to
// it; callers switch on Kind rather than on dynamic dispatch.
type Kind uint8

const (
	KindInner Kind = iota
	KindLeaf
	// KindError is the sentinel used only to represent a deserialization
	// failure in flight; it is never persisted or hashed.
	KindError
)

// LeafKind distinguishes what a leaf's Item represents.
type LeafKind uint8

const (
	LeafTxnNoMeta LeafKind = iota
	LeafTxnWithMeta
	LeafAccountState
)

func (k LeafKind) domain() hash.Domain {
	switch k {
	case LeafTxnWithMeta:
		return hash.DomainTxnNode
	case LeafAccountState:
		return hash.DomainLeafNode
	default:
		return hash.DomainTxnID
	}
}

// treeNode is a single SHAMap tree node: either an inner node (16 child
// hashes) or a leaf (one Item). Nodes are immutable once their hash is
// computed; the seq-stamped copy-on-write discipline that makes mutation
// safe lives in shamap.go, not here.
type treeNode struct {
	kind Kind
	seq  uint32 // the map generation that created/last copied this node ("seq monotonicity")

	hashValue hash.H256
	hashValid bool

	// inner-node fields
	children  [BranchFactor]hash.H256
	fullBelow bool

	// leaf-node fields
	item     *Item
	leafKind LeafKind
}

// newInnerNode returns an empty inner node stamped with seq.
func newInnerNode(seq uint32) *treeNode {
	return &treeNode{kind: KindInner, seq: seq, hashValid: false}
}

// newLeafNode returns a leaf node wrapping item, stamped with seq.
func newLeafNode(item *Item, lk LeafKind, seq uint32) *treeNode {
	return &treeNode{kind: KindLeaf, seq: seq, item: item, leafKind: lk, hashValid: false}
}

func (n *treeNode) IsLeaf() bool  { return n.kind == KindLeaf }
func (n *treeNode) IsInner() bool { return n.kind == KindInner }

// clone returns a value copy of n suitable for copy-on-write mutation,
// stamped with the new owning seq. Child hashes (not child nodes — those
// are looked up by hash through the cache/store) are copied by value.
func (n *treeNode) clone(newSeq uint32) *treeNode {
	cp := *n
	cp.seq = newSeq
	cp.item = n.item.Clone()
	return &cp
}

// isEmptyBranch reports whether branch b of an inner node has no child.
func (n *treeNode) isEmptyBranch(b int) bool {
	return n.children[b].IsZero()
}

// branchCount returns the number of populated branches of an inner node.
func (n *treeNode) branchCount() int {
	c := 0
	for i := 0; i < BranchFactor; i++ {
		if !n.children[i].IsZero() {
			c++
		}
	}
	return c
}

// soleChild returns the branch index of the only populated child and true,
// or (0, false) if the node doesn't have exactly one child.
func (n *treeNode) soleChild() (int, bool) {
	idx, count := -1, 0
	for i := 0; i < BranchFactor; i++ {
		if !n.children[i].IsZero() {
			idx = i
			count++
		}
	}
	if count == 1 {
		return idx, true
	}
	return 0, false
}

// setChild records child's hash (or clears the branch, if zero) and
// invalidates the cached hash so it is recomputed on next Hash().
func (n *treeNode) setChild(b int, h hash.H256) {
	n.children[b] = h
	n.hashValid = false
}

// Hash returns the node's content hash, computing and caching it if
// necessary. Per : an inner node's hash is a function of all
// 16 (possibly-zero) child hashes; a leaf's hash is a function of its item
// payload, domain-separated by what kind of leaf it is.
func (n *treeNode) Hash() hash.H256 {
	if n.hashValid {
		return n.hashValue
	}
	switch n.kind {
	case KindInner:
		buf := make([]byte, 0, BranchFactor*32)
		for i := 0; i < BranchFactor; i++ {
			buf = append(buf, n.children[i][:]...)
		}
		n.hashValue = hash.HashWithDomain(hash.DomainInnerNode, buf)
	case KindLeaf:
		n.hashValue = n.leafHash()
	default:
		n.hashValue = hash.Zero256
	}
	n.hashValid = true
	return n.hashValue
}

func (n *treeNode) leafHash() hash.H256 {
	switch n.leafKind {
	case LeafTxnNoMeta:
		return hash.HashWithDomain(n.leafKind.domain(), n.item.Data)
	default: // LeafTxnWithMeta, LeafAccountState: tag is appended, not derived
		return hash.HashWithDomain(n.leafKind.domain(), n.item.Data, n.item.Tag[:])
	}
}

func (n *treeNode) String() string {
	switch n.kind {
	case KindInner:
		return fmt.Sprintf("Inner(branches=%d,seq=%d,hash=%s)", n.branchCount(), n.seq, n.Hash())
	case KindLeaf:
		return fmt.Sprintf("Leaf(kind=%d,tag=%s,seq=%d,hash=%s)", n.leafKind, n.item.Tag, n.seq, n.Hash())
	default:
		return "Error"
	}
}
