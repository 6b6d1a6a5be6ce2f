// Package signer is the concrete implementation behind the ECDSA/secp256k1
// signing collaborator spec.md §1 names as out of scope: it gives
// consensus.Signer and a Validation signer/verifier a real secp256k1
// backend, without reimplementing any of XRPL's own key-derivation,
// base-58 seed, or canonical-signature-encoding rules (those remain the
// named external collaborator).
package signer

import (
	"crypto/rand"
	"errors"
	"fmt"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/decred/dcrd/dcrec/secp256k1/v4/ecdsa"

	"github.com/ledgerforge/ledgerd/internal/consensus"
	"github.com/ledgerforge/ledgerd/internal/hash"
	"github.com/ledgerforge/ledgerd/internal/validation"
)

var ErrInvalidPubkey = errors.New("signer: invalid public key")

// Verifier checks a signature against a raw public key.
type Verifier interface {
	Verify(pubkey []byte, digest hash.H256, sig []byte) bool
}

// Secp256k1Signer signs proposals and validations for one local node
// identity and doubles as a Verifier for signatures from other peers.
type Secp256k1Signer struct {
	priv   *secp256k1.PrivateKey
	pubkey []byte
	peerID hash.H160
}

// Generate creates a fresh random node identity. Real deployments would
// load a persisted key instead; that loading path is part of the
// out-of-scope config/identity collaborator.
func Generate() (*Secp256k1Signer, error) {
	var seed [32]byte
	if _, err := rand.Read(seed[:]); err != nil {
		return nil, fmt.Errorf("signer: generate key: %w", err)
	}
	return newSigner(secp256k1.PrivKeyFromBytes(seed[:])), nil
}

// FromPrivateKeyBytes builds a signer from a raw 32-byte secp256k1 scalar.
func FromPrivateKeyBytes(b []byte) (*Secp256k1Signer, error) {
	if len(b) != 32 {
		return nil, fmt.Errorf("signer: private key must be 32 bytes, got %d", len(b))
	}
	priv := secp256k1.PrivKeyFromBytes(b)
	return newSigner(priv), nil
}

func newSigner(priv *secp256k1.PrivateKey) *Secp256k1Signer {
	pub := priv.PubKey().SerializeCompressed()
	return &Secp256k1Signer{priv: priv, pubkey: pub, peerID: DeriveID(pub)}
}

// DeriveID gives a pubkey a stable 20-byte node identifier. The real
// rippled-family address derivation (base-58, RIPEMD160(SHA256(·))) is
// the out-of-scope address codec; this just needs *a* deterministic,
// collision-resistant mapping from pubkey to node identity, exported so
// a peer receiving a bare pubkey over the wire can recover the same id
// its owner signs with.
func DeriveID(pubkey []byte) hash.H160 {
	digest := hash.Sha512Half(pubkey)
	var id hash.H160
	copy(id[:], digest[:20])
	return id
}

func (s *Secp256k1Signer) PeerID() hash.H160 { return s.peerID }
func (s *Secp256k1Signer) Pubkey() []byte     { return append([]byte(nil), s.pubkey...) }

// SignProposal implements consensus.Signer: it hashes the proposal's
// content under the proposal signing domain and attaches a DER signature.
func (s *Secp256k1Signer) SignProposal(p *consensus.Proposal) error {
	digest := proposalDigest(p)
	sig := ecdsa.Sign(s.priv, digest[:])
	p.Signature = sig.Serialize()
	p.PeerPubkey = s.Pubkey()
	p.PeerID = s.peerID
	return nil
}

// SignValidation signs a Validation in place under the validation domain.
func (s *Secp256k1Signer) SignValidation(v *validation.Validation) error {
	digest := validationDigest(v)
	sig := ecdsa.Sign(s.priv, digest[:])
	v.Signature = sig.Serialize()
	v.SignerPubkey = s.Pubkey()
	return nil
}

// Verify checks sig (DER-encoded) against digest and pubkey.
func (s *Secp256k1Signer) Verify(pubkey []byte, digest hash.H256, sig []byte) bool {
	return verify(pubkey, digest, sig)
}

func verify(pubkey []byte, digest hash.H256, sig []byte) bool {
	pub, err := secp256k1.ParsePubKey(pubkey)
	if err != nil {
		return false
	}
	parsed, err := ecdsa.ParseDERSignature(sig)
	if err != nil {
		return false
	}
	return parsed.Verify(digest[:], pub)
}

// VerifyProposal reports whether p's signature is valid for p's claimed
// public key and content.
func VerifyProposal(p *consensus.Proposal) bool {
	if len(p.PeerPubkey) == 0 || len(p.Signature) == 0 {
		return false
	}
	return verify(p.PeerPubkey, proposalDigest(p), p.Signature)
}

// VerifyValidation reports whether v's signature is valid for v's claimed
// public key and content.
func VerifyValidation(v *validation.Validation) bool {
	if len(v.SignerPubkey) == 0 || len(v.Signature) == 0 {
		return false
	}
	return verify(v.SignerPubkey, validationDigest(v), v.Signature)
}

func proposalDigest(p *consensus.Proposal) hash.H256 {
	closeTime := make([]byte, 8)
	putUint64(closeTime, uint64(p.CloseTime.Unix()))
	seq := make([]byte, 4)
	putUint32(seq, p.Seq)
	return hash.HashWithDomain(hash.DomainProposal, p.PrevLedger[:], p.Position[:], closeTime, seq)
}

func validationDigest(v *validation.Validation) hash.H256 {
	seq := make([]byte, 4)
	putUint32(seq, v.LedgerSeq)
	signTime := make([]byte, 8)
	putUint64(signTime, uint64(v.SignTime.Unix()))
	return hash.HashWithDomain(hash.DomainValidation, v.LedgerHash[:], v.PreviousHash[:], seq, signTime)
}

func putUint32(b []byte, v uint32) {
	b[0], b[1], b[2], b[3] = byte(v>>24), byte(v>>16), byte(v>>8), byte(v)
}

func putUint64(b []byte, v uint64) {
	for i := 0; i < 8; i++ {
		b[i] = byte(v >> uint(56-8*i))
	}
}

var _ consensus.Signer = (*Secp256k1Signer)(nil)
