package protocol

import (
	"time"

	"github.com/ledgerforge/ledgerd/internal/hash"
	"github.com/ledgerforge/ledgerd/internal/shamap"
)

// Message is the interface implemented by every peer message body.
type Message interface {
	Type() MessageType
}

// Hello is the first message exchanged on a new peer connection:
// announces protocol version, listen port and node identity.
type Hello struct {
	ProtoVersion uint32
	ListenPort   uint16
	NodePubkey   []byte
	NetworkTime  time.Time
	LedgerHash   hash.H256
	LedgerSeq    uint32
}

func (h *Hello) Type() MessageType { return TypeHello }

// ProposeSet carries one peer's consensus position: the transaction-set
// root hash it believes the round should close on.
type ProposeSet struct {
	PreviousLedger hash.H256
	Position       hash.H256
	CloseTime      time.Time
	Seq            uint32
	NodePubkey     []byte
	PeerID         hash.H160
	Signature      []byte
}

func (p *ProposeSet) Type() MessageType { return TypeProposeSet }

// Validation carries one validator's signed opinion of a closed ledger.
type Validation struct {
	LedgerHash   hash.H256
	LedgerSeq    uint32
	PreviousHash hash.H256
	SignTime     time.Time
	Flags        uint32
	SignerPubkey []byte
	Signature    []byte
}

func (v *Validation) Type() MessageType { return TypeValidation }

// GetLedger requests nodes out of a map belonging to a specific ledger.
type GetLedger struct {
	InfoType      LedgerInfoType
	LedgerHash    hash.H256
	LedgerSeq     uint32
	NodeIDs       []shamap.NodeID
	RequestCookie uint64
}

func (g *GetLedger) Type() MessageType { return TypeGetLedger }

// LedgerNode is one (id, raw bytes) pair answering a GetLedger request.
type LedgerNode struct {
	ID   shamap.NodeID
	Data []byte
}

// LedgerData answers a GetLedger request with the nodes it could supply.
type LedgerData struct {
	LedgerHash    hash.H256
	LedgerSeq     uint32
	InfoType      LedgerInfoType
	Nodes         []LedgerNode
	RequestCookie uint64
	Error         string
}

func (l *LedgerData) Type() MessageType { return TypeLedgerData }

// HaveTxSet advertises possession of, or ability to fetch, a transaction
// set by its root hash.
type HaveTxSet struct {
	Status TxSetStatus
	Hash   hash.H256
}

func (h *HaveTxSet) Type() MessageType { return TypeHaveSet }

// StatusChange broadcasts a node's ledger lifecycle transition.
type StatusChange struct {
	Event        NodeEvent
	LedgerSeq    uint32
	LedgerHash   hash.H256
	PreviousHash hash.H256
	NetworkTime  time.Time
	FirstSeq     uint32
	LastSeq      uint32
}

func (s *StatusChange) Type() MessageType { return TypeStatusChange }

// ObjectRef is one entry in a GetObjectByHash request or response: the
// request side sets Hash, the response side fills in Data too.
type ObjectRef struct {
	Hash hash.H256
	Data []byte
}

// GetObjectByHash both requests raw hashed objects (Query true, Objects
// carrying only hashes) and answers such a request (Query false, Objects
// carrying hash+data pairs) — mirroring the teacher's single combined type,
// since a request and its response share every field but the payload.
type GetObjectByHash struct {
	ObjType   ObjectType
	Query     bool
	LedgerSeq uint32
	Objects   []ObjectRef
}

func (g *GetObjectByHash) Type() MessageType { return TypeGetObjects }
