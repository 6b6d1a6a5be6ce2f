package store

import (
	"github.com/ledgerforge/ledgerd/internal/hash"
	"github.com/ledgerforge/ledgerd/internal/shamap"
)

// ShamapFamily adapts a Store to shamap.Family, tagging every node it
// persists as TypeTxnNode or TypeAcctNode depending on which map it backs.
type ShamapFamily struct {
	store     *Store
	nodeType  ObjectType
	ledgerSeq uint32
}

func NewShamapFamily(s *Store, mapType shamap.MapType, ledgerSeq uint32) *ShamapFamily {
	nt := TypeAcctNode
	if mapType == shamap.MapTypeTransaction {
		nt = TypeTxnNode
	}
	return &ShamapFamily{store: s, nodeType: nt, ledgerSeq: ledgerSeq}
}

func (f *ShamapFamily) Fetch(h hash.H256) ([]byte, error) {
	obj, err := f.store.Get(h)
	if err != nil {
		return nil, err
	}
	if obj == nil {
		return nil, nil
	}
	return obj.Data, nil
}

func (f *ShamapFamily) StoreBatch(entries []shamap.FlushEntry) error {
	objs := make([]*Object, 0, len(entries))
	for _, e := range entries {
		objs = append(objs, &Object{Type: f.nodeType, Hash: e.Hash, LedgerSeq: f.ledgerSeq, Data: e.Data})
	}
	return f.store.PutBatch(objs)
}
