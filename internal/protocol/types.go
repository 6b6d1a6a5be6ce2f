// Package protocol defines the peer wire message schema: the type codes and
// message bodies exchanged between nodes during ledger sync and consensus.
// The framing those bodies travel in (length-prefixed, compressed) is the
// out-of-scope wire-transport collaborator named in the repository's
// external-interfaces notes; this package only ever sees a decoded body
// plus the type code it arrived under, and hands callers a Transport
// interface rather than a socket implementation.
package protocol

// MessageType identifies the kind of body carried by a peer message.
// Reference: rippled ripple.proto MessageType enum — only the codes this
// node's message set actually uses are assigned here, but the numbering
// matches the real protocol so a packet trace lines up with rippled's.
type MessageType uint16

const (
	TypeUnknown      MessageType = 0
	TypeHello        MessageType = 1
	TypeGetLedger    MessageType = 31
	TypeLedgerData   MessageType = 32
	TypeProposeSet   MessageType = 33
	TypeStatusChange MessageType = 34
	TypeHaveSet      MessageType = 35
	TypeValidation   MessageType = 41
	TypeGetObjects   MessageType = 42
)

func (t MessageType) String() string {
	switch t {
	case TypeHello:
		return "mtHELLO"
	case TypeGetLedger:
		return "mtGET_LEDGER"
	case TypeLedgerData:
		return "mtLEDGER_DATA"
	case TypeProposeSet:
		return "mtPROPOSE_LEDGER"
	case TypeStatusChange:
		return "mtSTATUS_CHANGE"
	case TypeHaveSet:
		return "mtHAVE_SET"
	case TypeValidation:
		return "mtVALIDATION"
	case TypeGetObjects:
		return "mtGET_OBJECTS"
	default:
		return "mtUNKNOWN"
	}
}

// LedgerInfoType selects what a GetLedger request is asking for.
type LedgerInfoType int32

const (
	LedgerInfoBase      LedgerInfoType = 0
	LedgerInfoTxNode     LedgerInfoType = 1
	LedgerInfoAccountState LedgerInfoType = 2
	LedgerInfoCandidate  LedgerInfoType = 3
)

// TxSetStatus is the capability a HaveTxSet message advertises.
type TxSetStatus int32

const (
	TxSetHave   TxSetStatus = 1
	TxSetCanGet TxSetStatus = 2
)

// NodeEvent is the lifecycle transition a StatusChange message reports.
type NodeEvent int32

const (
	NodeEventClosing  NodeEvent = 1
	NodeEventAccepted NodeEvent = 2
	NodeEventLostSync NodeEvent = 3
)

// ObjectType selects what kind of raw object GetObjectByHash is fetching.
type ObjectType int32

const (
	ObjectUnknown    ObjectType = 0
	ObjectLedger     ObjectType = 1
	ObjectTransaction ObjectType = 2
	ObjectTxNode     ObjectType = 3
	ObjectStateNode  ObjectType = 4
)
