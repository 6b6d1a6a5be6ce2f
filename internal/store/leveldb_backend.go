package store

import (
	"fmt"
	"os"
	"sync"

	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/errors"

	"github.com/ledgerforge/ledgerd/internal/hash"
)

// LevelDBBackend is the alternate durable Backend: goleveldb as a second
// real KV engine registered under the same Backend interface, so operators
// can pick whichever engine fits their deployment.
type LevelDBBackend struct {
	mu   sync.RWMutex
	db   *leveldb.DB
	path string
	open bool
}

func NewLevelDBBackend(cfg *Config) (Backend, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	return &LevelDBBackend{path: cfg.Path}, nil
}

func (l *LevelDBBackend) Name() string { return fmt.Sprintf("leveldb(%s)", l.path) }

func (l *LevelDBBackend) Open(createIfMissing bool) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.open {
		return fmt.Errorf("store: leveldb backend already open")
	}
	if createIfMissing {
		if err := os.MkdirAll(l.path, 0o755); err != nil {
			return fmt.Errorf("store: mkdir %s: %w", l.path, err)
		}
	}
	db, err := leveldb.OpenFile(l.path, nil)
	if err != nil {
		return fmt.Errorf("store: open leveldb at %s: %w", l.path, err)
	}
	l.db = db
	l.open = true
	return nil
}

func (l *LevelDBBackend) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.open {
		return nil
	}
	err := l.db.Close()
	l.db = nil
	l.open = false
	return err
}

func (l *LevelDBBackend) Get(h hash.H256) ([]byte, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if !l.open {
		return nil, fmt.Errorf("store: leveldb backend not open")
	}
	value, err := l.db.Get(h[:], nil)
	if err != nil {
		if err == errors.ErrNotFound {
			return nil, nil
		}
		return nil, err
	}
	return value, nil
}

func (l *LevelDBBackend) Put(h hash.H256, encoded []byte) error {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if !l.open {
		return fmt.Errorf("store: leveldb backend not open")
	}
	return l.db.Put(h[:], encoded, nil)
}

func (l *LevelDBBackend) PutBatch(entries map[hash.H256][]byte) error {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if !l.open {
		return fmt.Errorf("store: leveldb backend not open")
	}
	batch := new(leveldb.Batch)
	for h, data := range entries {
		batch.Put(h[:], data)
	}
	return l.db.Write(batch, nil)
}

func (l *LevelDBBackend) ForEach(fn func(h hash.H256, encoded []byte) error) error {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if !l.open {
		return fmt.Errorf("store: leveldb backend not open")
	}
	iter := l.db.NewIterator(nil, nil)
	defer iter.Release()
	for iter.Next() {
		var h hash.H256
		copy(h[:], iter.Key())
		if err := fn(h, iter.Value()); err != nil {
			return err
		}
	}
	return iter.Error()
}

func init() {
	RegisterBackend("leveldb", NewLevelDBBackend)
}
