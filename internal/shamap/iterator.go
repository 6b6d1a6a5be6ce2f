package shamap

import "github.com/ledgerforge/ledgerd/internal/hash"

// First returns the item with the smallest tag, or nil for an empty map.
func (sm *SHAMap) First() (*Item, error) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	leaf, err := sm.firstLeaf(sm.root, 0)
	if err != nil || leaf == nil {
		return nil, err
	}
	return leaf.item, nil
}

// Last returns the item with the largest tag, or nil for an empty map.
func (sm *SHAMap) Last() (*Item, error) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	leaf, err := sm.lastLeaf(sm.root, 0)
	if err != nil || leaf == nil {
		return nil, err
	}
	return leaf.item, nil
}

// Next returns the item with the smallest tag strictly greater than tag, or
// nil if tag is the largest (or the map is empty).
func (sm *SHAMap) Next(tag hash.H256) (*Item, error) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	leaf, err := sm.nextAfter(sm.root, tag, 0)
	if err != nil || leaf == nil {
		return nil, err
	}
	return leaf.item, nil
}

// Prev returns the item with the largest tag strictly less than tag, or nil
// if tag is the smallest (or the map is empty).
func (sm *SHAMap) Prev(tag hash.H256) (*Item, error) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	leaf, err := sm.prevBefore(sm.root, tag, 0)
	if err != nil || leaf == nil {
		return nil, err
	}
	return leaf.item, nil
}

func (sm *SHAMap) firstLeaf(node *treeNode, depth uint8) (*treeNode, error) {
	if node == nil {
		return nil, nil
	}
	if node.IsLeaf() {
		return node, nil
	}
	for b := 0; b < BranchFactor; b++ {
		if node.children[b].IsZero() {
			continue
		}
		child, err := sm.resolve(node.children[b], depth+1, node.children[b], nil)
		if err != nil {
			return nil, err
		}
		leaf, err := sm.firstLeaf(child, depth+1)
		if err != nil {
			return nil, err
		}
		if leaf != nil {
			return leaf, nil
		}
	}
	return nil, nil
}

func (sm *SHAMap) lastLeaf(node *treeNode, depth uint8) (*treeNode, error) {
	if node == nil {
		return nil, nil
	}
	if node.IsLeaf() {
		return node, nil
	}
	for b := BranchFactor - 1; b >= 0; b-- {
		if node.children[b].IsZero() {
			continue
		}
		child, err := sm.resolve(node.children[b], depth+1, node.children[b], nil)
		if err != nil {
			return nil, err
		}
		leaf, err := sm.lastLeaf(child, depth+1)
		if err != nil {
			return nil, err
		}
		if leaf != nil {
			return leaf, nil
		}
	}
	return nil, nil
}

// nextAfter finds the leftmost leaf with item.Tag > tag under node, which
// sits at the given depth. Branches below the nibble of tag at this depth
// cannot contain anything greater; the branch equal to it might (deeper
// down), and every branch after it is entirely greater.
func (sm *SHAMap) nextAfter(node *treeNode, tag hash.H256, depth uint8) (*treeNode, error) {
	if node == nil {
		return nil, nil
	}
	if node.IsLeaf() {
		if node.item.Tag.Compare(tag) > 0 {
			return node, nil
		}
		return nil, nil
	}
	start := 0
	if depth < MaxDepth {
		start = int(nibble(tag, int(depth)))
	}
	for b := start; b < BranchFactor; b++ {
		if node.children[b].IsZero() {
			continue
		}
		child, err := sm.resolve(node.children[b], depth+1, node.children[b], nil)
		if err != nil {
			return nil, err
		}
		var found *treeNode
		if b == start {
			found, err = sm.nextAfter(child, tag, depth+1)
		} else {
			found, err = sm.firstLeaf(child, depth+1)
		}
		if err != nil {
			return nil, err
		}
		if found != nil {
			return found, nil
		}
	}
	return nil, nil
}

// prevBefore is the mirror of nextAfter: the rightmost leaf with
// item.Tag < tag.
func (sm *SHAMap) prevBefore(node *treeNode, tag hash.H256, depth uint8) (*treeNode, error) {
	if node == nil {
		return nil, nil
	}
	if node.IsLeaf() {
		if node.item.Tag.Compare(tag) < 0 {
			return node, nil
		}
		return nil, nil
	}
	start := BranchFactor - 1
	if depth < MaxDepth {
		start = int(nibble(tag, int(depth)))
	}
	for b := start; b >= 0; b-- {
		if node.children[b].IsZero() {
			continue
		}
		child, err := sm.resolve(node.children[b], depth+1, node.children[b], nil)
		if err != nil {
			return nil, err
		}
		var found *treeNode
		if b == start {
			found, err = sm.prevBefore(child, tag, depth+1)
		} else {
			found, err = sm.lastLeaf(child, depth+1)
		}
		if err != nil {
			return nil, err
		}
		if found != nil {
			return found, nil
		}
	}
	return nil, nil
}
