package store

import (
	"fmt"
	"os"
	"sync"

	"github.com/cockroachdb/pebble"
	"github.com/cockroachdb/pebble/bloom"

	"github.com/ledgerforge/ledgerd/internal/hash"
)

// PebbleBackend is the primary durable Backend.
type PebbleBackend struct {
	mu   sync.RWMutex
	db   *pebble.DB
	path string
	open bool
}

func NewPebbleBackend(cfg *Config) (Backend, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	return &PebbleBackend{path: cfg.Path}, nil
}

func (p *PebbleBackend) Name() string { return fmt.Sprintf("pebble(%s)", p.path) }

func (p *PebbleBackend) Open(createIfMissing bool) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.open {
		return fmt.Errorf("store: pebble backend already open")
	}
	if createIfMissing {
		if err := os.MkdirAll(p.path, 0o755); err != nil {
			return fmt.Errorf("store: mkdir %s: %w", p.path, err)
		}
	}
	opts := &pebble.Options{
		Cache: pebble.NewCache(64 << 20),
		Levels: []pebble.LevelOptions{
			{FilterPolicy: bloom.FilterPolicy(10)},
		},
	}
	db, err := pebble.Open(p.path, opts)
	if err != nil {
		return fmt.Errorf("store: open pebble at %s: %w", p.path, err)
	}
	p.db = db
	p.open = true
	return nil
}

func (p *PebbleBackend) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.open {
		return nil
	}
	err := p.db.Close()
	p.db = nil
	p.open = false
	return err
}

func (p *PebbleBackend) Get(h hash.H256) ([]byte, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if !p.open {
		return nil, fmt.Errorf("store: pebble backend not open")
	}
	value, closer, err := p.db.Get(h[:])
	if err != nil {
		if err == pebble.ErrNotFound {
			return nil, nil
		}
		return nil, err
	}
	out := make([]byte, len(value))
	copy(out, value)
	closer.Close()
	return out, nil
}

func (p *PebbleBackend) Put(h hash.H256, encoded []byte) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if !p.open {
		return fmt.Errorf("store: pebble backend not open")
	}
	return p.db.Set(h[:], encoded, pebble.Sync)
}

func (p *PebbleBackend) PutBatch(entries map[hash.H256][]byte) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if !p.open {
		return fmt.Errorf("store: pebble backend not open")
	}
	b := p.db.NewBatch()
	for h, data := range entries {
		if err := b.Set(h[:], data, nil); err != nil {
			return err
		}
	}
	return b.Commit(pebble.Sync)
}

func (p *PebbleBackend) ForEach(fn func(h hash.H256, encoded []byte) error) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if !p.open {
		return fmt.Errorf("store: pebble backend not open")
	}
	iter, err := p.db.NewIter(nil)
	if err != nil {
		return err
	}
	defer iter.Close()
	for iter.First(); iter.Valid(); iter.Next() {
		var h hash.H256
		copy(h[:], iter.Key())
		if err := fn(h, iter.Value()); err != nil {
			return err
		}
	}
	return iter.Error()
}

func init() {
	RegisterBackend("pebble", NewPebbleBackend)
}
