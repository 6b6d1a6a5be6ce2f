package shamap

import "github.com/ledgerforge/ledgerd/internal/hash"

// CheckInvariants walks the whole map verifying the structural invariants
// from : no inner node has zero populated branches, and no inner node
// has exactly one populated branch that is itself a leaf (it should have
// been collapsed). It does not check that each leaf sits at the depth
// implied by its tag's shared-prefix length with its siblings. It is
// O(map size) and for tests and debug tooling, not the hot path.
func (sm *SHAMap) CheckInvariants() error {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	_, err := sm.checkNode(sm.root, 0)
	return err
}

func (sm *SHAMap) checkNode(node *treeNode, depth uint8) (int, error) {
	if node == nil {
		return 0, nil
	}
	if node.IsLeaf() {
		return 1, nil
	}
	count := 0
	for b := 0; b < BranchFactor; b++ {
		if node.children[b].IsZero() {
			continue
		}
		child, err := sm.resolve(node.children[b], depth+1, node.children[b], nil)
		if err != nil {
			return 0, err
		}
		n, err := sm.checkNode(child, depth+1)
		if err != nil {
			return 0, err
		}
		count += n
	}
	if count == 0 {
		return 0, raiseInvariant("inner node with no populated branches")
	}
	if idx, ok := node.soleChild(); ok {
		soleNode, err := sm.resolve(node.children[idx], depth+1, node.children[idx], nil)
		if err == nil && soleNode.IsLeaf() {
			return 0, raiseInvariant("inner node with a single leaf child was not collapsed")
		}
	}
	return count, nil
}

// Diff is one tag that differs between two maps being compared: either
// present only on one side, or present on both with different data.
// Consensus dispute detection starts from exactly this comparison.
type Diff struct {
	Tag        hash.H256
	InFirst    bool
	InSecond   bool
	DataDiffer bool
}

// Compare returns the tags that differ between sm and other, stopping once
// maxCount differences have been found (a full compare on large ledgers is
// too expensive to always run to completion; "bounded diff").
// A nil maxCount-exceeded indicator is just len(result) == maxCount.
func (sm *SHAMap) Compare(other *SHAMap, maxCount int) ([]Diff, error) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	other.mu.Lock()
	defer other.mu.Unlock()

	var diffs []Diff
	err := sm.compareNodes(sm.root, other, other.root, &diffs, maxCount)
	return diffs, err
}

func (sm *SHAMap) compareNodes(a *treeNode, otherMap *SHAMap, b *treeNode, diffs *[]Diff, maxCount int) error {
	if len(*diffs) >= maxCount {
		return nil
	}
	if a == nil && b == nil {
		return nil
	}
	if a != nil && b != nil && a.Hash() == b.Hash() {
		return nil
	}
	// At least one side is nil, or the subtrees differ: walk to the leaf
	// level on whichever sides are populated and record tag-level diffs.
	if a != nil && a.IsLeaf() && b != nil && b.IsLeaf() {
		if a.item.Tag == b.item.Tag {
			*diffs = append(*diffs, Diff{Tag: a.item.Tag, InFirst: true, InSecond: true, DataDiffer: !bytesEqual(a.item.Data, b.item.Data)})
			return nil
		}
		*diffs = append(*diffs, Diff{Tag: a.item.Tag, InFirst: true})
		if len(*diffs) < maxCount {
			*diffs = append(*diffs, Diff{Tag: b.item.Tag, InSecond: true})
		}
		return nil
	}
	if a != nil && a.IsLeaf() {
		return sm.collectAllAndDiff(a, true, b, otherMap, diffs, maxCount)
	}
	if b != nil && b.IsLeaf() {
		return sm.collectAllAndDiff(b, false, a, sm, diffs, maxCount)
	}
	// Both inner (or one nil): recurse branch by branch.
	for branch := 0; branch < BranchFactor; branch++ {
		if len(*diffs) >= maxCount {
			return nil
		}
		var childA, childB *treeNode
		if a != nil && !a.children[branch].IsZero() {
			c, err := sm.resolve(a.children[branch], 0, a.children[branch], nil)
			if err != nil {
				return err
			}
			childA = c
		}
		if b != nil && !b.children[branch].IsZero() {
			c, err := otherMap.resolve(b.children[branch], 0, b.children[branch], nil)
			if err != nil {
				return err
			}
			childB = c
		}
		if err := sm.compareNodes(childA, otherMap, childB, diffs, maxCount); err != nil {
			return err
		}
	}
	return nil
}

// collectAllAndDiff handles the case where one side's subtree has already
// collapsed to a single leaf (lone) but the other side (sub) still branches
// (or is a differently-tagged leaf): every tag reachable under sub that
// isn't lone's tag is a one-sided diff, lone's tag is a data diff if sub
// holds it with different data, and lone itself is a one-sided diff if sub
// doesn't contain it.
func (sm *SHAMap) collectAllAndDiff(lone *treeNode, loneIsFirst bool, sub *treeNode, subMap *SHAMap, diffs *[]Diff, maxCount int) error {
	var items []*Item
	if err := subMap.collectItems(sub, &items, maxCount); err != nil {
		return err
	}
	found := false
	for _, it := range items {
		if len(*diffs) >= maxCount {
			return nil
		}
		if it.Tag == lone.item.Tag {
			found = true
			if !bytesEqual(it.Data, lone.item.Data) {
				*diffs = append(*diffs, Diff{Tag: it.Tag, InFirst: true, InSecond: true, DataDiffer: true})
			}
			continue
		}
		*diffs = append(*diffs, Diff{Tag: it.Tag, InFirst: !loneIsFirst, InSecond: loneIsFirst})
	}
	if !found && len(*diffs) < maxCount {
		*diffs = append(*diffs, Diff{Tag: lone.item.Tag, InFirst: loneIsFirst, InSecond: !loneIsFirst})
	}
	return nil
}

func (sm *SHAMap) collectItems(node *treeNode, out *[]*Item, maxCount int) error {
	if node == nil || len(*out) >= maxCount {
		return nil
	}
	if node.IsLeaf() {
		*out = append(*out, node.item)
		return nil
	}
	for b := 0; b < BranchFactor; b++ {
		if node.children[b].IsZero() {
			continue
		}
		child, err := sm.resolve(node.children[b], 0, node.children[b], nil)
		if err != nil {
			return err
		}
		if err := sm.collectItems(child, out, maxCount); err != nil {
			return err
		}
	}
	return nil
}

// DeepEqual reports whether sm and other hold exactly the same tags and
// data (used by the sync-completeness property test).
func (sm *SHAMap) DeepEqual(other *SHAMap) (bool, error) {
	diffs, err := sm.Compare(other, 1)
	if err != nil {
		return false, err
	}
	return len(diffs) == 0, nil
}
