// Package shamap implements the persistent, copy-on-write, content-addressed
// radix-16 Merkle trie described in -4.2 (component C2). Nodes are
// immutable and identified by their own content hash; this makes copy-on-write
// automatic rather than something that needs explicit seq-stamped in-place
// mutation bookkeeping.
package shamap

import (
	"sync"
	"sync/atomic"

	"github.com/ledgerforge/ledgerd/internal/hash"
)

// State is the lifecycle state of a SHAMap.
type State int

const (
	StateModifying State = iota
	StateImmutable
	StateSynching
	StateInvalid
)

func (s State) String() string {
	switch s {
	case StateModifying:
		return "modifying"
	case StateImmutable:
		return "immutable"
	case StateSynching:
		return "synching"
	default:
		return "invalid"
	}
}

var seqCounter uint64

func nextSeq() uint32 { return uint32(atomic.AddUint64(&seqCounter, 1)) }

// nodeCache is the shared, content-addressed in-memory node table
// ("tn_by_id" generalized to hash-keyed, since nodes are
// immutable). It is safe to share by pointer across every SHAMap in a
// snapshot family: entries are only ever added, never mutated or removed,
// so no synchronization is needed beyond the map's own lock.
type nodeCache struct {
	mu sync.RWMutex
	m  map[hash.H256]*treeNode
}

func newNodeCache() *nodeCache {
	return &nodeCache{m: make(map[hash.H256]*treeNode)}
}

func (c *nodeCache) get(h hash.H256) (*treeNode, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	n, ok := c.m[h]
	return n, ok
}

func (c *nodeCache) put(h hash.H256, n *treeNode) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.m[h]; exists {
		return
	}
	c.m[h] = n
}

// SHAMap is a radix-16 trie keyed by 256-bit tags (-4.2).
type SHAMap struct {
	mu sync.Mutex

	mapType   MapType
	state     State
	ledgerSeq uint32
	seq       uint32

	root   *treeNode // nil means the map is logically empty
	cache  *nodeCache
	family Family
}

// New returns a new, empty, modifiable SHAMap of the given type, backed by
// family for node persistence (pass NewMemoryFamily() for a throwaway map).
func New(mapType MapType, family Family) *SHAMap {
	return &SHAMap{
		mapType: mapType,
		state:   StateModifying,
		cache:   newNodeCache(),
		family:  family,
		seq:     nextSeq(),
	}
}

func (sm *SHAMap) Type() MapType { return sm.mapType }
func (sm *SHAMap) State() State  { sm.mu.Lock(); defer sm.mu.Unlock(); return sm.state }

// SetLedgerSeq records which ledger sequence this map belongs to, used when
// flushing nodes to the HashedObjectStore.
func (sm *SHAMap) SetLedgerSeq(seq uint32) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	sm.ledgerSeq = seq
}

// SetImmutable freezes the map against further Add/Update/Delete calls
// ("Post-accept the two maps must never change").
func (sm *SHAMap) SetImmutable() {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	if sm.state != StateInvalid {
		sm.state = StateImmutable
	}
}

// RootHash returns the map's root hash, recomputing lazily but always
// fresh before being observed. An empty map's root hash is
// the zero hash.
func (sm *SHAMap) RootHash() hash.H256 {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	return sm.rootHashLocked()
}

func (sm *SHAMap) rootHashLocked() hash.H256 {
	if sm.root == nil {
		return hash.Zero256
	}
	return sm.root.Hash()
}

// Snapshot returns a new SHAMap sharing this map's nodes by reference
// (O(1): no tree copy), after bumping both maps' generation so any further
// mutation on either side naturally builds new node objects rather than
// touching shared ones ("seq monotonicity under CoW").
func (sm *SHAMap) Snapshot(mutable bool) *SHAMap {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	sm.seq = nextSeq()
	snapState := StateImmutable
	if mutable {
		snapState = StateModifying
	}
	return &SHAMap{
		mapType:   sm.mapType,
		state:     snapState,
		ledgerSeq: sm.ledgerSeq,
		root:      sm.root,
		cache:     sm.cache,
		family:    sm.family,
		seq:       nextSeq(),
	}
}

// resolve looks up h in the shared cache, falling back to family.Fetch. key
// is the tag being sought (for MissingNode's TargetTag) along the path that
// led here; depth is used only to build a MissingNode's NodeID.
func (sm *SHAMap) resolve(h hash.H256, depth uint8, key hash.H256, target *hash.H256) (*treeNode, error) {
	if n, ok := sm.cache.get(h); ok {
		return n, nil
	}
	data, err := sm.family.Fetch(h)
	if err != nil {
		return nil, err
	}
	if data == nil {
		nid, _ := NodeIDForKey(depth, key)
		return nil, &MissingNode{MapType: sm.mapType, ID: nid, Hash: h, TargetTag: target}
	}
	n, err := ParsePrefixed(data)
	if err != nil {
		return nil, err
	}
	if n.Hash() != h {
		nid, _ := NodeIDForKey(depth, key)
		return nil, &InvalidNode{ID: nid, Expected: h, Got: n.Hash()}
	}
	sm.cache.put(h, n)
	return n, nil
}

func (sm *SHAMap) cacheStore(n *treeNode) { sm.cache.put(n.Hash(), n) }

// Get returns the item with the given tag, or nil if absent.
func (sm *SHAMap) Get(tag hash.H256) (*Item, error) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	node := sm.root
	var depth uint8
	for {
		if node == nil {
			return nil, nil
		}
		if node.IsLeaf() {
			if node.item.Tag == tag {
				return node.item, nil
			}
			return nil, nil
		}
		if depth >= MaxDepth {
			return nil, raiseInvariant("walk exceeded max depth without reaching a leaf")
		}
		branch := nibble(tag, int(depth))
		childHash := node.children[branch]
		if childHash.IsZero() {
			return nil, nil
		}
		child, err := sm.resolve(childHash, depth+1, tag, &tag)
		if err != nil {
			return nil, err
		}
		node = child
		depth++
	}
}

// Has reports whether tag is present.
func (sm *SHAMap) Has(tag hash.H256) (bool, error) {
	item, err := sm.Get(tag)
	return item != nil, err
}

// Add inserts item, returning false iff an item with the same tag already
// exists.
func (sm *SHAMap) Add(item *Item, lk LeafKind) (bool, error) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	if sm.state != StateModifying {
		return false, ErrImmutable
	}
	if item == nil {
		return false, ErrNilItem
	}
	newRoot, inserted, err := sm.insertAt(sm.root, 0, item, lk)
	if err != nil || !inserted {
		return false, err
	}
	sm.root = newRoot
	return true, nil
}

func (sm *SHAMap) insertAt(node *treeNode, depth uint8, newItem *Item, lk LeafKind) (*treeNode, bool, error) {
	if node == nil {
		leaf := newLeafNode(newItem, lk, sm.seq)
		sm.cacheStore(leaf)
		return leaf, true, nil
	}
	if node.IsLeaf() {
		if node.item.Tag == newItem.Tag {
			return node, false, nil
		}
		if depth >= MaxDepth {
			return nil, false, raiseInvariant("tag collision not resolved within max depth")
		}
		newLeaf := newLeafNode(newItem, lk, sm.seq)
		sm.cacheStore(newLeaf)
		merged, err := sm.splitLeaf(node, newLeaf, depth)
		if err != nil {
			return nil, false, err
		}
		return merged, true, nil
	}
	branch := nibble(newItem.Tag, int(depth))
	childHash := node.children[branch]
	var child *treeNode
	if !childHash.IsZero() {
		var err error
		child, err = sm.resolve(childHash, depth+1, newItem.Tag, &newItem.Tag)
		if err != nil {
			return nil, false, err
		}
	}
	newChild, inserted, err := sm.insertAt(child, depth+1, newItem, lk)
	if err != nil || !inserted {
		return node, inserted, err
	}
	clone := node.clone(sm.seq)
	clone.setChild(int(branch), newChild.Hash())
	clone.Hash()
	sm.cacheStore(clone)
	return clone, true, nil
}

// splitLeaf builds the chain of inner nodes needed to separate existing and
// newLeaf, which share a tag prefix through depth ("On
// collision of two leaves at the same depth, new inner nodes are created
// until they diverge").
func (sm *SHAMap) splitLeaf(existing, newLeaf *treeNode, depth uint8) (*treeNode, error) {
	if depth >= MaxDepth {
		return nil, raiseInvariant("leaf tags identical through max depth")
	}
	b1 := nibble(existing.item.Tag, int(depth))
	b2 := nibble(newLeaf.item.Tag, int(depth))
	if b1 == b2 {
		child, err := sm.splitLeaf(existing, newLeaf, depth+1)
		if err != nil {
			return nil, err
		}
		inner := newInnerNode(sm.seq)
		inner.setChild(int(b1), child.Hash())
		inner.Hash()
		sm.cacheStore(inner)
		return inner, nil
	}
	inner := newInnerNode(sm.seq)
	inner.setChild(int(b1), existing.Hash())
	inner.setChild(int(b2), newLeaf.Hash())
	inner.Hash()
	sm.cacheStore(inner)
	return inner, nil
}

// Update replaces the data of an existing item, returning false if the tag
// is absent or the data is unchanged.
func (sm *SHAMap) Update(item *Item) (bool, error) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	if sm.state != StateModifying {
		return false, ErrImmutable
	}
	if item == nil {
		return false, ErrNilItem
	}
	newRoot, changed, err := sm.updateAt(sm.root, 0, item)
	if err != nil || !changed {
		return false, err
	}
	sm.root = newRoot
	return true, nil
}

func (sm *SHAMap) updateAt(node *treeNode, depth uint8, newItem *Item) (*treeNode, bool, error) {
	if node == nil {
		return nil, false, nil
	}
	if node.IsLeaf() {
		if node.item.Tag != newItem.Tag {
			return node, false, nil
		}
		if bytesEqual(node.item.Data, newItem.Data) {
			return node, false, nil
		}
		newLeaf := newLeafNode(newItem, node.leafKind, sm.seq)
		sm.cacheStore(newLeaf)
		return newLeaf, true, nil
	}
	branch := nibble(newItem.Tag, int(depth))
	childHash := node.children[branch]
	if childHash.IsZero() {
		return node, false, nil
	}
	child, err := sm.resolve(childHash, depth+1, newItem.Tag, &newItem.Tag)
	if err != nil {
		return nil, false, err
	}
	newChild, changed, err := sm.updateAt(child, depth+1, newItem)
	if err != nil || !changed {
		return node, changed, err
	}
	clone := node.clone(sm.seq)
	clone.setChild(int(branch), newChild.Hash())
	clone.Hash()
	sm.cacheStore(clone)
	return clone, true, nil
}

// Delete removes the item with the given tag, canonicalizing ancestors per
// (empty inner nodes removed, single-leaf inner nodes collapsed).
func (sm *SHAMap) Delete(tag hash.H256) (bool, error) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	if sm.state != StateModifying {
		return false, ErrImmutable
	}
	newRoot, changed, err := sm.deleteAt(sm.root, 0, tag)
	if err != nil || !changed {
		return false, err
	}
	sm.root = newRoot
	return true, nil
}

func (sm *SHAMap) deleteAt(node *treeNode, depth uint8, tag hash.H256) (*treeNode, bool, error) {
	if node == nil {
		return nil, false, nil
	}
	if node.IsLeaf() {
		if node.item.Tag == tag {
			return nil, true, nil
		}
		return node, false, nil
	}
	branch := nibble(tag, int(depth))
	childHash := node.children[branch]
	if childHash.IsZero() {
		return node, false, nil
	}
	child, err := sm.resolve(childHash, depth+1, tag, &tag)
	if err != nil {
		return nil, false, err
	}
	newChild, changed, err := sm.deleteAt(child, depth+1, tag)
	if err != nil || !changed {
		return node, changed, err
	}
	clone := node.clone(sm.seq)
	if newChild == nil {
		clone.setChild(int(branch), hash.Zero256)
	} else {
		clone.setChild(int(branch), newChild.Hash())
	}
	if clone.branchCount() == 0 {
		return nil, true, nil
	}
	if idx, ok := clone.soleChild(); ok {
		soleHash := clone.children[idx]
		soleNode, err2 := sm.resolve(soleHash, depth+1, tag, nil)
		if err2 == nil && soleNode.IsLeaf() {
			return soleNode, true, nil
		}
	}
	clone.Hash()
	sm.cacheStore(clone)
	return clone, true, nil
}

func bytesEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
