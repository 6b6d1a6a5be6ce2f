package signer

import (
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"

	"github.com/ledgerforge/ledgerd/internal/hash"
)

// PubKeyCache caches the parsed *secp256k1.PublicKey for a peer id, so a
// caller that looks keys up through it skips repeated point decompression.
// VerifyProposal and VerifyValidation do not use it; they parse the
// claimed pubkey on every call. Modeled on the original C++ node's
// PubKeyCache.
type PubKeyCache struct {
	cache *lru.Cache[hash.H160, *secp256k1.PublicKey]
}

// NewPubKeyCache builds a cache holding up to size parsed public keys.
func NewPubKeyCache(size int) *PubKeyCache {
	if size <= 0 {
		size = 1
	}
	c, _ := lru.New[hash.H160, *secp256k1.PublicKey](size)
	return &PubKeyCache{cache: c}
}

// Get returns the parsed public key for peer, parsing and caching rawPubkey
// on a miss. A cache hit skips point decompression entirely.
func (c *PubKeyCache) Get(peer hash.H160, rawPubkey []byte) (*secp256k1.PublicKey, error) {
	if pub, ok := c.cache.Get(peer); ok {
		return pub, nil
	}
	pub, err := secp256k1.ParsePubKey(rawPubkey)
	if err != nil {
		return nil, ErrInvalidPubkey
	}
	c.cache.Add(peer, pub)
	return pub, nil
}

// Len reports how many entries are currently cached.
func (c *PubKeyCache) Len() int { return c.cache.Len() }
