// Package ledger implements C3 (Ledger) and C4 (LedgerMaster): the
// open->closing->accepted lifecycle and the routing of current/historical
// ledgers.
package ledger

import (
	"encoding/binary"
	"errors"
	"sync"
	"time"

	"github.com/ledgerforge/ledgerd/internal/hash"
	"github.com/ledgerforge/ledgerd/internal/shamap"
)

// State is a Ledger's lifecycle stage ("open -> closing -> accepted").
type State int

const (
	StateOpen State = iota
	StateClosing
	StateAccepted
)

func (s State) String() string {
	switch s {
	case StateOpen:
		return "open"
	case StateClosing:
		return "closing"
	default:
		return "accepted"
	}
}

var (
	ErrImmutable   = errors.New("ledger: not open for modification")
	ErrNotClosing  = errors.New("ledger: not in closing state")
	ErrEntryExists = errors.New("ledger: entry already exists")
	ErrNoEntry     = errors.New("ledger: entry not found")
)

// rippleEpochUnix is the epoch the wire close-time fields are relative to
// (2000-01-01T00:00:00Z).
const rippleEpochUnix int64 = 946684800

// Header holds the scalar fields of a ledger record (
// "Ledger... parent-hash, close-time, tx-tree-root, state-tree-root, seq,
// fee-pool").
type Header struct {
	Seq                 uint32
	ParentHash          hash.H256
	Hash                hash.H256 // zero until Accept()
	TxRoot              hash.H256
	StateRoot           hash.H256
	ParentCloseTime     time.Time
	CloseTime           time.Time
	CloseTimeResolution time.Duration
	CloseFlags          uint8
	TotalDrops          uint64
	FeeBase             uint64
	ReserveBase         uint64
	ReserveIncrement    uint64
}

// Ledger holds two SHAMaps (account state, transaction set) and the scalar
// header fields above.
type Ledger struct {
	mu sync.RWMutex

	stateMap *shamap.SHAMap
	txMap    *shamap.SHAMap
	header   Header
	state    State

	dropsDestroyed uint64
}

// NewOpen builds an open ledger following parent: the state map is a
// mutable CoW snapshot of the parent's (so entries carry forward without
// copying), the tx map starts empty ("open-from-previous: new
// seq, copies parent maps CoW").
func NewOpen(parent *Ledger, family shamap.Family, closeTime time.Time) *Ledger {
	parent.mu.RLock()
	defer parent.mu.RUnlock()

	stateMap := parent.stateMap.Snapshot(true)
	txMap := shamap.New(shamap.MapTypeTransaction, family)

	hdr := Header{
		Seq:                 parent.header.Seq + 1,
		ParentHash:          parent.header.Hash,
		ParentCloseTime:     parent.header.CloseTime,
		CloseTime:           closeTime,
		CloseTimeResolution: parent.header.CloseTimeResolution,
		TotalDrops:          parent.header.TotalDrops,
		FeeBase:             parent.header.FeeBase,
		ReserveBase:         parent.header.ReserveBase,
		ReserveIncrement:    parent.header.ReserveIncrement,
	}
	txMap.SetLedgerSeq(hdr.Seq)
	stateMap.SetLedgerSeq(hdr.Seq)

	return &Ledger{stateMap: stateMap, txMap: txMap, header: hdr, state: StateOpen}
}

// FromGenesis builds the first ledger directly from constructed maps
// (constructor (b) from-raw-bytes / genesis case), already
// accepted.
func FromGenesis(hdr Header, stateMap, txMap *shamap.SHAMap) *Ledger {
	return &Ledger{stateMap: stateMap, txMap: txMap, header: hdr, state: StateAccepted}
}

func (l *Ledger) Sequence() uint32 { l.mu.RLock(); defer l.mu.RUnlock(); return l.header.Seq }
func (l *Ledger) State() State     { l.mu.RLock(); defer l.mu.RUnlock(); return l.state }
func (l *Ledger) Hash() hash.H256  { l.mu.RLock(); defer l.mu.RUnlock(); return l.header.Hash }
func (l *Ledger) ParentHash() hash.H256 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.header.ParentHash
}
func (l *Ledger) Header() Header { l.mu.RLock(); defer l.mu.RUnlock(); return l.header }

func (l *Ledger) StateMap() *shamap.SHAMap { return l.stateMap }
func (l *Ledger) TxMap() *shamap.SHAMap    { return l.txMap }

// InsertState adds a new state-tree entry; only legal while open.
func (l *Ledger) InsertState(tag hash.H256, data []byte) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.state != StateOpen {
		return ErrImmutable
	}
	ok, err := l.stateMap.Add(shamap.NewItem(tag, data), shamap.LeafAccountState)
	if err != nil {
		return err
	}
	if !ok {
		return ErrEntryExists
	}
	return nil
}

// UpdateState replaces an existing state-tree entry; only legal while open.
func (l *Ledger) UpdateState(tag hash.H256, data []byte) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.state != StateOpen {
		return ErrImmutable
	}
	ok, err := l.stateMap.Update(shamap.NewItem(tag, data))
	if err != nil {
		return err
	}
	if !ok {
		return ErrNoEntry
	}
	return nil
}

// EraseState removes a state-tree entry; only legal while open.
func (l *Ledger) EraseState(tag hash.H256) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.state != StateOpen {
		return ErrImmutable
	}
	ok, err := l.stateMap.Delete(tag)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNoEntry
	}
	return nil
}

func (l *Ledger) ReadState(tag hash.H256) ([]byte, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	item, err := l.stateMap.Get(tag)
	if err != nil {
		return nil, err
	}
	if item == nil {
		return nil, ErrNoEntry
	}
	return item.Data, nil
}

// AddTransaction inserts a transaction into the open ledger's tx_map (the
// mutable position that becomes the initial consensus proposal at close).
func (l *Ledger) AddTransaction(txID hash.H256, raw []byte) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.state != StateOpen {
		return ErrImmutable
	}
	ok, err := l.txMap.Add(shamap.NewItem(txID, raw), shamap.LeafTxnNoMeta)
	if err != nil {
		return err
	}
	if !ok {
		return ErrEntryExists
	}
	l.dropsDestroyed += 0
	return nil
}

func (l *Ledger) AdjustDropsDestroyed(drops uint64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.dropsDestroyed += drops
}

// Close sets close_time (rounded to resolution), the resolution and the
// close flags, moving the ledger to StateClosing, after which
// AddTransaction and the gated state methods refuse writes. It does not
// snapshot or freeze either map: both stay mutable while closing and are
// frozen by Accept, which also computes ledger_hash.
func (l *Ledger) Close(closeTime time.Time, resolution time.Duration, flags uint8) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.state != StateOpen {
		return ErrNotClosing
	}
	l.header.CloseTime = RoundCloseTime(closeTime, resolution)
	l.header.CloseTimeResolution = resolution
	l.header.CloseFlags = flags
	l.state = StateClosing
	return nil
}

// Accept freezes the maps, computes ledger_hash, and marks the ledger
// accepted ("accept() computes ledger_hash, marks immutable,
// enqueues both maps for flush to C1").
func (l *Ledger) Accept() ([]shamap.FlushEntry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.state != StateClosing {
		return nil, ErrNotClosing
	}
	l.stateMap.SetImmutable()
	l.txMap.SetImmutable()

	l.header.TotalDrops -= l.dropsDestroyed
	l.header.StateRoot = l.stateMap.RootHash()
	l.header.TxRoot = l.txMap.RootHash()
	l.header.Hash = hashLedgerHeader(l.header)
	l.state = StateAccepted

	stateFlush, err := l.stateMap.FlushDirty()
	if err != nil {
		return nil, err
	}
	txFlush, err := l.txMap.FlushDirty()
	if err != nil {
		return nil, err
	}
	return append(stateFlush, txFlush...), nil
}

// Snapshot returns an immutable copy sharing both maps' nodes by reference
// ("Snapshot creates an immutable copy").
func (l *Ledger) Snapshot() *Ledger {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return &Ledger{
		stateMap: l.stateMap.Snapshot(false),
		txMap:    l.txMap.Snapshot(false),
		header:   l.header,
		state:    l.state,
	}
}

// RoundCloseTime implements 's close-time rounding formula:
// round_close_time(t, resolution) = ((t + resolution/2) / resolution) * resolution,
// used so peers voting on different close times can coalesce on a shared
// bucket.
func RoundCloseTime(t time.Time, resolution time.Duration) time.Time {
	if resolution <= 0 {
		return t
	}
	half := resolution / 2
	unix := t.Unix()
	res := int64(resolution / time.Second)
	h := int64(half / time.Second)
	rounded := ((unix + h) / res) * res
	return time.Unix(rounded, 0).UTC()
}

// hashLedgerHeader computes the ledger hash: domain-separated sha512_half
// of the header fields in wire order, kept byte-for-byte stable so any
// cross-implementation test vector still matches.
func hashLedgerHeader(h Header) hash.H256 {
	var buf []byte
	buf = append(buf, hash.DomainLedger[:]...)

	var seqBuf [4]byte
	binary.BigEndian.PutUint32(seqBuf[:], h.Seq)
	buf = append(buf, seqBuf[:]...)

	var dropsBuf [8]byte
	binary.BigEndian.PutUint64(dropsBuf[:], h.TotalDrops)
	buf = append(buf, dropsBuf[:]...)

	buf = append(buf, h.ParentHash[:]...)
	buf = append(buf, h.TxRoot[:]...)
	buf = append(buf, h.StateRoot[:]...)

	var parentCloseBuf, closeBuf [4]byte
	binary.BigEndian.PutUint32(parentCloseBuf[:], uint32(h.ParentCloseTime.Unix()-rippleEpochUnix))
	binary.BigEndian.PutUint32(closeBuf[:], uint32(h.CloseTime.Unix()-rippleEpochUnix))
	buf = append(buf, parentCloseBuf[:]...)
	buf = append(buf, closeBuf[:]...)

	buf = append(buf, byte(h.CloseTimeResolution/time.Second))
	buf = append(buf, h.CloseFlags)

	return hash.Sha512Half(buf)
}
