// Package hash defines the fixed-width hash types and domain-separated
// hashing used throughout the node: H256 for content addresses, map
// identifiers, tree hashes and ledger hashes; H160 for account
// identifiers; H128 for wallet seeds.
package hash

import (
	"crypto/sha512"
	"encoding/hex"
)

// H256 is a 32-byte hash: content addresses, SHAMap node hashes, ledger
// hashes, transaction ids.
type H256 [32]byte

// H160 is a 20-byte account identifier.
type H160 [20]byte

// H128 is a 16-byte wallet seed identifier.
type H128 [16]byte

// Zero256 is the zero H256, used to mark an empty SHAMap branch.
var Zero256 H256

// IsZero reports whether h is the all-zero hash.
func (h H256) IsZero() bool { return h == Zero256 }

func (h H256) String() string { return hex.EncodeToString(h[:]) }
func (h H160) String() string { return hex.EncodeToString(h[:]) }
func (h H128) String() string { return hex.EncodeToString(h[:]) }

// Bytes returns a fresh copy of the hash bytes.
func (h H256) Bytes() []byte { b := make([]byte, 32); copy(b, h[:]); return b }
func (h H160) Bytes() []byte { b := make([]byte, 20); copy(b, h[:]); return b }

// Compare orders two hashes lexicographically: -1, 0, or 1.
func (h H256) Compare(other H256) int {
	for i := range h {
		if h[i] != other[i] {
			if h[i] < other[i] {
				return -1
			}
			return 1
		}
	}
	return 0
}

// Less reports whether h sorts before other.
func (h H256) Less(other H256) bool { return h.Compare(other) < 0 }

// Compare orders two account identifiers lexicographically: -1, 0, or 1.
func (h H160) Compare(other H160) int {
	for i := range h {
		if h[i] != other[i] {
			if h[i] < other[i] {
				return -1
			}
			return 1
		}
	}
	return 0
}

// Less reports whether h sorts before other.
func (h H160) Less(other H160) bool { return h.Compare(other) < 0 }

// BytesToH256 copies b (which must be exactly 32 bytes) into an H256.
func BytesToH256(b []byte) H256 {
	var h H256
	copy(h[:], b)
	return h
}

// Domain is a 4-byte tag prepended to data before hashing, preventing
// cross-protocol hash confusion between object kinds that would otherwise
// serialize identically. Tags are three ASCII characters followed by a
// zero byte, matching the convention of every real XRPL-family
// implementation in the corpus (rippled's HashPrefix, goXRPLd's
// internal/protocol.HashPrefix*).
type Domain [4]byte

func makeDomain(a, b, c byte) Domain { return Domain{a, b, c, 0} }

// Domain tags. Any distinct, stable set works here; these follow a
// three-letter convention so hand-computed test vectors stay readable.
var (
	DomainTxnID      = makeDomain('T', 'X', 'N')
	DomainTxnNode    = makeDomain('S', 'N', 'D')
	DomainLeafNode   = makeDomain('M', 'L', 'N')
	DomainInnerNode  = makeDomain('M', 'I', 'N')
	DomainLedger     = makeDomain('L', 'W', 'R')
	DomainTxnSign    = makeDomain('S', 'T', 'X')
	DomainValidation = makeDomain('V', 'A', 'L')
	DomainProposal   = makeDomain('P', 'R', 'P')
)

// Sha512Half returns the high 256 bits of SHA-512(concat(parts...)).
func Sha512Half(parts ...[]byte) H256 {
	h := sha512.New()
	for _, p := range parts {
		h.Write(p)
	}
	sum := h.Sum(nil)
	var out H256
	copy(out[:], sum[:32])
	return out
}

// HashWithDomain computes sha512_half(domain ‖ parts...), the standard
// domain-separated node/ledger/signature hash used throughout the node.
func HashWithDomain(d Domain, parts ...[]byte) H256 {
	all := make([][]byte, 0, len(parts)+1)
	all = append(all, d[:])
	all = append(all, parts...)
	return Sha512Half(all...)
}
