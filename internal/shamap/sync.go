package shamap

import (
	"math/rand"

	"github.com/ledgerforge/ledgerd/internal/hash"
)

// AddResult is the outcome of feeding a peer-supplied node into a synching
// map: useful nodes extend the frontier, invalid ones
// (wrong hash, or not referenced from anywhere in the tree) are rejected so
// the caller can penalize the sending peer.
type AddResult int

const (
	AddInvalid AddResult = iota
	AddUseful
	AddDuplicate
)

func (r AddResult) String() string {
	switch r {
	case AddUseful:
		return "useful"
	case AddDuplicate:
		return "duplicate"
	default:
		return "invalid"
	}
}

// MissingNodeRequest describes one node a synching map still needs, for the
// caller to turn into a get_missing_nodes wire request.
type MissingNodeRequest struct {
	ID   NodeID
	Hash hash.H256
}

// BeginSync transitions an empty map into StateSynching, the destination
// side of the sync protocol. The map must be empty: a
// partially built map resumes by simply continuing to call GetMissingNodes,
// it never re-enters BeginSync.
func (sm *SHAMap) BeginSync() error {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	if sm.root != nil {
		return ErrAlreadySynching
	}
	sm.state = StateSynching
	return nil
}

// AddRootNode supplies the root node's bytes, verified against rootHash.
// It always replaces whatever root is currently set: the root is
// special-cased since GetMissingNodes can't discover it on its own — there's
// nothing above it pointing at it.
func (sm *SHAMap) AddRootNode(rootHash hash.H256, data []byte) (AddResult, error) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	if sm.state != StateSynching {
		return AddInvalid, ErrNotSynching
	}
	node, err := ParsePrefixed(data)
	if err != nil {
		return AddInvalid, nil
	}
	if node.Hash() != rootHash {
		return AddInvalid, nil
	}
	sm.cacheStore(node)
	sm.root = node
	return AddUseful, nil
}

// AddKnownNode supplies one non-root node discovered while synching,
// identified by id (its position) and verified against the hash recorded by
// its parent. The node is rejected (AddInvalid) if the hash doesn't match,
// or if nothing in the current tree actually references that hash at that
// position ("useful vs invalid").
func (sm *SHAMap) AddKnownNode(id NodeID, data []byte) (AddResult, error) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	if sm.state != StateSynching {
		return AddInvalid, ErrNotSynching
	}
	node, err := ParsePrefixed(data)
	if err != nil {
		return AddInvalid, nil
	}
	h := node.Hash()
	if _, ok := sm.cache.get(h); ok {
		return AddDuplicate, nil
	}
	wanted, err := sm.expectedHashAt(sm.root, 0, id)
	if err != nil {
		return AddInvalid, err
	}
	if wanted == nil || *wanted != h {
		return AddInvalid, nil
	}
	sm.cacheStore(node)
	return AddUseful, nil
}

// expectedHashAt returns the hash the tree currently expects to find at id,
// or nil if id does not correspond to an actual unresolved branch (meaning
// any node claiming to be at id is not useful).
func (sm *SHAMap) expectedHashAt(node *treeNode, depth uint8, target NodeID) (*hash.H256, error) {
	if node == nil {
		return nil, nil
	}
	if depth == target.Depth {
		h := node.Hash()
		return &h, nil
	}
	if node.IsLeaf() {
		return nil, nil
	}
	b := nibble(target.ID, int(depth))
	childHash := node.children[b]
	if childHash.IsZero() {
		return nil, nil
	}
	cached, ok := sm.cache.get(childHash)
	if !ok {
		// The child itself is unresolved: if it's exactly the target depth,
		// its hash is already known from the parent without fetching it.
		if depth+1 == target.Depth {
			return &childHash, nil
		}
		return nil, nil
	}
	return sm.expectedHashAt(cached, depth+1, target)
}

// GetMissingNodes returns up to maxNodes positions whose node is referenced
// by the tree (a non-zero child hash) but not yet resolvable from the local
// cache or family (get_missing_nodes). fullBelow short-
// circuits subtrees already known complete.
func (sm *SHAMap) GetMissingNodes(maxNodes int) ([]MissingNodeRequest, error) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	if sm.state != StateSynching {
		return nil, nil
	}
	var out []MissingNodeRequest
	_, err := sm.collectMissing(sm.root, RootNodeID(), &out, maxNodes)
	return out, err
}

// shuffledBranchOrder returns 0..BranchFactor-1 in randomized order, so
// peers walking the same subtree don't all request its missing children in
// the same sequence and pile onto the same upstream peer first.
func shuffledBranchOrder() [BranchFactor]int {
	var order [BranchFactor]int
	for i := range order {
		order[i] = i
	}
	rand.Shuffle(BranchFactor, func(i, j int) { order[i], order[j] = order[j], order[i] })
	return order
}

// collectMissing returns (fullyResolved, err). A subtree is fully resolved
// once every node in it is present locally (in cache or family), at which
// point its root is marked fullBelow so future calls skip it outright.
func (sm *SHAMap) collectMissing(node *treeNode, id NodeID, out *[]MissingNodeRequest, maxNodes int) (bool, error) {
	if node == nil {
		return true, nil
	}
	if node.fullBelow || node.IsLeaf() {
		return true, nil
	}
	allFull := true
	for _, b := range shuffledBranchOrder() {
		if len(*out) >= maxNodes {
			return false, nil
		}
		if node.children[b].IsZero() {
			continue
		}
		childID, err := id.Child(uint8(b))
		if err != nil {
			return false, err
		}
		child, ok := sm.cache.get(node.children[b])
		if !ok {
			data, ferr := sm.family.Fetch(node.children[b])
			if ferr != nil {
				return false, ferr
			}
			if data == nil {
				*out = append(*out, MissingNodeRequest{ID: childID, Hash: node.children[b]})
				allFull = false
				continue
			}
			parsed, perr := ParsePrefixed(data)
			if perr != nil {
				return false, perr
			}
			sm.cacheStore(parsed)
			child = parsed
		}
		full, err := sm.collectMissing(child, childID, out, maxNodes)
		if err != nil {
			return false, err
		}
		if !full {
			allFull = false
		}
	}
	if allFull {
		node.fullBelow = true
	}
	return allFull, nil
}

// GetNodeFat serializes id's node and, if fat, its immediate children, for
// efficient single-round-trip transmission: fatLeaves additionally inlines
// leaf payloads rather than making the destination ask for each one
// separately.
func (sm *SHAMap) GetNodeFat(id NodeID, fat bool, fatLeaves bool) ([]FlushEntry, error) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	node, err := sm.nodeAt(sm.root, 0, id)
	if err != nil {
		return nil, err
	}
	if node == nil {
		return nil, raiseInvariant("GetNodeFat: no node at requested id")
	}
	data, err := node.Serialize(FormatPrefixed)
	if err != nil {
		return nil, err
	}
	out := []FlushEntry{{Hash: node.Hash(), Data: data}}
	if !fat || node.IsLeaf() {
		return out, nil
	}
	for b := 0; b < BranchFactor; b++ {
		if node.children[b].IsZero() {
			continue
		}
		childID, _ := id.Child(uint8(b))
		child, err := sm.resolve(node.children[b], childID.Depth, node.children[b], nil)
		if err != nil {
			continue // best-effort: omit children we don't have locally
		}
		if child.IsLeaf() && !fatLeaves {
			continue
		}
		cdata, err := child.Serialize(FormatPrefixed)
		if err != nil {
			return nil, err
		}
		out = append(out, FlushEntry{Hash: child.Hash(), Data: cdata})
	}
	return out, nil
}

func (sm *SHAMap) nodeAt(node *treeNode, depth uint8, target NodeID) (*treeNode, error) {
	if node == nil {
		return nil, nil
	}
	if depth == target.Depth {
		return node, nil
	}
	if node.IsLeaf() {
		return nil, nil
	}
	b := nibble(target.ID, int(depth))
	childHash := node.children[b]
	if childHash.IsZero() {
		return nil, nil
	}
	child, err := sm.resolve(childHash, depth+1, target.ID, nil)
	if err != nil {
		return nil, err
	}
	return sm.nodeAt(child, depth+1, target)
}

// FlushDirty serializes every node reachable from the root (PREFIXED
// format) for persistence through Family.StoreBatch, used when a map is
// accepted into a closed ledger ("ledger accept flushes all
// dirty SHAMap nodes to the HashedObjectStore").
func (sm *SHAMap) FlushDirty() ([]FlushEntry, error) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	var out []FlushEntry
	seen := make(map[hash.H256]bool)
	if err := sm.collectFlush(sm.root, &out, seen); err != nil {
		return nil, err
	}
	return out, nil
}

func (sm *SHAMap) collectFlush(node *treeNode, out *[]FlushEntry, seen map[hash.H256]bool) error {
	if node == nil {
		return nil
	}
	h := node.Hash()
	if seen[h] {
		return nil
	}
	seen[h] = true
	data, err := node.Serialize(FormatPrefixed)
	if err != nil {
		return err
	}
	*out = append(*out, FlushEntry{Hash: h, Data: data})
	if node.IsInner() {
		for b := 0; b < BranchFactor; b++ {
			if node.children[b].IsZero() {
				continue
			}
			child, err := sm.resolve(node.children[b], 0, node.children[b], nil)
			if err != nil {
				return err
			}
			if err := sm.collectFlush(child, out, seen); err != nil {
				return err
			}
		}
	}
	return nil
}
