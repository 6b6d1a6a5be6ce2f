package shamap

import "github.com/ledgerforge/ledgerd/internal/hash"

// Item is the immutable payload stored at a leaf: a tag (the key the item
// is addressed by — a transaction id for transaction-tree leaves, an
// account index for state-tree leaves) and its opaque data. Updates
// replace the Item wholesale; Items themselves are never mutated in place.
type Item struct {
	Tag  hash.H256
	Data []byte
}

// NewItem copies data so the caller's slice can be reused/mutated safely.
func NewItem(tag hash.H256, data []byte) *Item {
	cp := make([]byte, len(data))
	copy(cp, data)
	return &Item{Tag: tag, Data: cp}
}

// Clone returns a deep copy of the item.
func (it *Item) Clone() *Item {
	if it == nil {
		return nil
	}
	return NewItem(it.Tag, it.Data)
}
