package shamap

import "github.com/ledgerforge/ledgerd/internal/hash"

// FlushEntry is one serialized node ready to be written to the
// HashedObjectStore (C1) during SHAMap.FlushDirty.
type FlushEntry struct {
	Hash hash.H256
	Data []byte // PREFIXED-format bytes
}

// Family is the SHAMap-side view of C1's HashedObjectStore: fetch a node's
// PREFIXED bytes by hash, or persist a batch of them. Every SHAMap
// independently looks nodes up through its Family; no map-internal state is
// shared between SHAMap instances except through this interface and the
// content-addressed nature of the hashes themselves.
type Family interface {
	// Fetch returns the PREFIXED bytes for hash, or (nil, nil) if unknown.
	Fetch(h hash.H256) ([]byte, error)
	// StoreBatch persists a batch of serialized nodes. Idempotent: a hash
	// already present is left untouched ("duplicate put is a
	// no-op").
	StoreBatch(entries []FlushEntry) error
}

// MemoryFamily is an in-memory Family, used for tests and for maps that
// never need durability (e.g. a throwaway sync destination under test).
type MemoryFamily struct {
	store map[hash.H256][]byte
}

// NewMemoryFamily returns an empty in-memory Family.
func NewMemoryFamily() *MemoryFamily {
	return &MemoryFamily{store: make(map[hash.H256][]byte)}
}

func (f *MemoryFamily) Fetch(h hash.H256) ([]byte, error) {
	data, ok := f.store[h]
	if !ok {
		return nil, nil
	}
	cp := make([]byte, len(data))
	copy(cp, data)
	return cp, nil
}

func (f *MemoryFamily) StoreBatch(entries []FlushEntry) error {
	for _, e := range entries {
		if _, exists := f.store[e.Hash]; exists {
			continue
		}
		cp := make([]byte, len(e.Data))
		copy(cp, e.Data)
		f.store[e.Hash] = cp
	}
	return nil
}

// Len reports how many distinct node blobs are stored, for tests.
func (f *MemoryFamily) Len() int { return len(f.store) }
