package store

import (
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/ledgerforge/ledgerd/internal/hash"
)

// cache is the bounded in-memory front for a Backend's content-addressed
// blob store, delegating LRU bookkeeping to hashicorp/golang-lru rather than a
// hand-rolled container/list, since that library is already in the stack
// for other front-caches in this rewrite.
type cache struct {
	lru *lru.Cache[hash.H256, *Object]
}

func newCache(size int) *cache {
	if size <= 0 {
		size = 1
	}
	c, _ := lru.New[hash.H256, *Object](size)
	return &cache{lru: c}
}

func (c *cache) get(h hash.H256) (*Object, bool) {
	return c.lru.Get(h)
}

func (c *cache) put(o *Object) {
	c.lru.Add(o.Hash, o)
}
