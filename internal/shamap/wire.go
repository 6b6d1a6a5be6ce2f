package shamap

import (
	"encoding/binary"
	"fmt"

	"github.com/ledgerforge/ledgerd/internal/hash"
)

// Format selects which of the two serializations to use.
type Format int

const (
	// FormatWire is the compact framing used in sync messages: inner
	// nodes are 16 raw 32-byte child hashes, leaves are (tag, varlen
	// item), with a trailing 1-byte type tag so a lone blob is
	// self-describing.
	FormatWire Format = iota
	// FormatPrefixed is used for hashing and for HashedObjectStore
	// persistence: a 4-byte domain tag, then for inner nodes the 16 child
	// hashes, for state and with-meta leaves the item data followed by
	// the 32-byte tag, and for TxnNoMeta leaves the item data alone (the
	// tag is sha512_half of it). There is no varint length and no
	// trailing type byte; the domain tag identifies the shape.
	FormatPrefixed
)

// wire type markers, appended to FormatWire output so a node blob received
// out of context (e.g. a sync reply) can be parsed without side information.
const (
	wireTypeInner           byte = 1
	wireTypeLeafTxnNoMeta   byte = 2
	wireTypeLeafTxnWithMeta byte = 3
	wireTypeLeafAccount     byte = 4
)

// Serialize encodes n in the requested format.
func (n *treeNode) Serialize(f Format) ([]byte, error) {
	switch n.kind {
	case KindInner:
		return n.serializeInner(f), nil
	case KindLeaf:
		return n.serializeLeaf(f), nil
	default:
		return nil, fmt.Errorf("%w: cannot serialize error-sentinel node", ErrInvalidNodeID)
	}
}

func (n *treeNode) serializeInner(f Format) []byte {
	body := make([]byte, 0, BranchFactor*32+5)
	for i := 0; i < BranchFactor; i++ {
		body = append(body, n.children[i][:]...)
	}
	if f == FormatPrefixed {
		return append(hash.DomainInnerNode[:], body...)
	}
	return append(body, wireTypeInner)
}

func (n *treeNode) serializeLeaf(f Format) []byte {
	switch n.leafKind {
	case LeafTxnNoMeta:
		if f == FormatPrefixed {
			return append(append([]byte{}, n.leafKind.domain()[:]...), n.item.Data...)
		}
		return encodeTagged(n.item.Tag, n.item.Data, wireTypeLeafTxnNoMeta, true)
	case LeafTxnWithMeta:
		if f == FormatPrefixed {
			out := append([]byte{}, n.leafKind.domain()[:]...)
			out = append(out, n.item.Data...)
			return append(out, n.item.Tag[:]...)
		}
		return encodeTagged(n.item.Tag, n.item.Data, wireTypeLeafTxnWithMeta, false)
	default: // LeafAccountState
		if f == FormatPrefixed {
			out := append([]byte{}, n.leafKind.domain()[:]...)
			out = append(out, n.item.Data...)
			return append(out, n.item.Tag[:]...)
		}
		return encodeTagged(n.item.Tag, n.item.Data, wireTypeLeafAccount, false)
	}
}

// encodeTagged builds the WIRE leaf body: tag(32) ‖ uvarint(len) ‖ data ‖ type.
// For TxnNoMeta the tag is redundant (it's sha512_half(data)) but is kept so
// WIRE leaves are self-describing without needing to recompute a hash just
// to route them.
func encodeTagged(tag hash.H256, data []byte, wt byte, _ bool) []byte {
	lenBuf := make([]byte, binary.MaxVarintLen64)
	n := binary.PutUvarint(lenBuf, uint64(len(data)))
	out := make([]byte, 0, 32+n+len(data)+1)
	out = append(out, tag[:]...)
	out = append(out, lenBuf[:n]...)
	out = append(out, data...)
	out = append(out, wt)
	return out
}

// ParseWire parses a FormatWire blob produced by Serialize, returning a
// clean (hash-recomputed) node. Round-trip law:
// ParseWire(node.Serialize(FormatWire)) reproduces the same logical node.
func ParseWire(data []byte) (*treeNode, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty wire data", ErrInvalidNodeID)
	}
	wt := data[len(data)-1]
	body := data[:len(data)-1]
	switch wt {
	case wireTypeInner:
		return parseInnerWireBody(body)
	case wireTypeLeafTxnNoMeta:
		tag, payload, err := parseTaggedBody(body)
		if err != nil {
			return nil, err
		}
		return newLeafNode(&Item{Tag: tag, Data: payload}, LeafTxnNoMeta, 0), nil
	case wireTypeLeafTxnWithMeta:
		tag, payload, err := parseTaggedBody(body)
		if err != nil {
			return nil, err
		}
		return newLeafNode(&Item{Tag: tag, Data: payload}, LeafTxnWithMeta, 0), nil
	case wireTypeLeafAccount:
		tag, payload, err := parseTaggedBody(body)
		if err != nil {
			return nil, err
		}
		return newLeafNode(&Item{Tag: tag, Data: payload}, LeafAccountState, 0), nil
	default:
		return nil, fmt.Errorf("%w: unknown wire type %d", ErrInvalidNodeID, wt)
	}
}

func parseInnerWireBody(body []byte) (*treeNode, error) {
	if len(body) != BranchFactor*32 {
		return nil, fmt.Errorf("%w: inner wire body size %d, want %d", ErrInvalidNodeID, len(body), BranchFactor*32)
	}
	n := newInnerNode(0)
	for i := 0; i < BranchFactor; i++ {
		copy(n.children[i][:], body[i*32:(i+1)*32])
	}
	return n, nil
}

func parseTaggedBody(body []byte) (hash.H256, []byte, error) {
	if len(body) < 32 {
		return hash.H256{}, nil, fmt.Errorf("%w: leaf wire body too short", ErrInvalidNodeID)
	}
	tag := hash.BytesToH256(body[:32])
	rest := body[32:]
	length, n := binary.Uvarint(rest)
	if n <= 0 {
		return hash.H256{}, nil, fmt.Errorf("%w: bad varint length prefix", ErrInvalidNodeID)
	}
	rest = rest[n:]
	if uint64(len(rest)) != length {
		return hash.H256{}, nil, fmt.Errorf("%w: leaf data length mismatch", ErrInvalidNodeID)
	}
	return tag, append([]byte{}, rest...), nil
}

// ParsePrefixed parses a FormatPrefixed blob (as stored in the
// HashedObjectStore) back into a node. The domain tag is read off the front
// to select which variant to decode.
func ParsePrefixed(data []byte) (*treeNode, error) {
	if len(data) < 4 {
		return nil, fmt.Errorf("%w: prefixed data too short", ErrInvalidNodeID)
	}
	var d hash.Domain
	copy(d[:], data[:4])
	body := data[4:]
	switch d {
	case hash.DomainInnerNode:
		return parseInnerWireBody(body)
	case hash.DomainTxnID:
		tag := hash.Sha512Half(hash.DomainTxnID[:], body)
		return newLeafNode(&Item{Tag: tag, Data: append([]byte{}, body...)}, LeafTxnNoMeta, 0), nil
	case hash.DomainTxnNode:
		if len(body) < 32 {
			return nil, fmt.Errorf("%w: tx+meta prefixed body too short", ErrInvalidNodeID)
		}
		tag := hash.BytesToH256(body[len(body)-32:])
		payload := body[:len(body)-32]
		return newLeafNode(&Item{Tag: tag, Data: append([]byte{}, payload...)}, LeafTxnWithMeta, 0), nil
	case hash.DomainLeafNode:
		if len(body) < 32 {
			return nil, fmt.Errorf("%w: account-state prefixed body too short", ErrInvalidNodeID)
		}
		tag := hash.BytesToH256(body[len(body)-32:])
		payload := body[:len(body)-32]
		return newLeafNode(&Item{Tag: tag, Data: append([]byte{}, payload...)}, LeafAccountState, 0), nil
	default:
		return nil, fmt.Errorf("%w: unknown hash-prefix domain", ErrInvalidNodeID)
	}
}
