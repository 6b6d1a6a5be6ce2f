package store

import (
	"fmt"
	"log/slog"

	"github.com/ledgerforge/ledgerd/internal/hash"
	"github.com/ledgerforge/ledgerd/internal/shamap"
	"github.com/ledgerforge/ledgerd/internal/store/compression"
)

// Store is the HashedObjectStore (C1): a content-addressed blob cache over
// a durable Backend.
type Store struct {
	backend    Backend
	cache      *cache
	compressor compression.Compressor
	level      int
	log        *slog.Logger
}

// Open constructs and opens a Store from cfg.
func Open(cfg *Config, log *slog.Logger) (*Store, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	backend, err := CreateBackend(cfg.Backend, cfg)
	if err != nil {
		return nil, err
	}
	if err := backend.Open(true); err != nil {
		return nil, fmt.Errorf("store: open backend: %w", err)
	}
	compressor, err := compression.Get(cfg.Compressor)
	if err != nil {
		return nil, err
	}
	if log == nil {
		log = slog.Default()
	}
	return &Store{
		backend:    backend,
		cache:      newCache(cfg.CacheSize),
		compressor: compressor,
		level:      cfg.CompressionLevel,
		log:        log,
	}, nil
}

func (s *Store) Close() error { return s.backend.Close() }

// Put stores bytes under hash, tagged with typ and ledgerSeq. Idempotent: a
// duplicate put is a no-op. hash is checked against sha512_half(bytes): on
// a mismatch Put panics when shamap.DebugPanic is set, and otherwise logs a
// warning, discards the object and returns nil.
func (s *Store) Put(typ ObjectType, ledgerSeq uint32, data []byte, h hash.H256) error {
	want := hash.Sha512Half(data)
	if want != h {
		if shamap.DebugPanic {
			panic(fmt.Errorf("%w: type %s", ErrHashMismatch, typ.String()))
		}
		s.log.Warn("store: hash mismatch on put", "type", typ.String(), "expected", want, "got", h)
		return nil
	}
	if _, ok := s.cache.get(h); ok {
		return nil
	}
	obj := &Object{Type: typ, Hash: h, LedgerSeq: ledgerSeq, Data: data}
	encoded, err := encodeObject(obj, s.compressor)
	if err != nil {
		return fmt.Errorf("store: encode: %w", err)
	}
	if err := s.backend.Put(h, encoded); err != nil {
		return fmt.Errorf("store: backend put: %w", err)
	}
	s.cache.put(obj)
	return nil
}

// Get returns the bytes stored under hash, or nil if unknown. A miss is
// signalled upward, never fabricated.
func (s *Store) Get(h hash.H256) (*Object, error) {
	if obj, ok := s.cache.get(h); ok {
		return obj, nil
	}
	raw, err := s.backend.Get(h)
	if err != nil {
		return nil, fmt.Errorf("store: backend get: %w", err)
	}
	if raw == nil {
		return nil, nil
	}
	obj, err := decodeObject(h, raw)
	if err != nil {
		return nil, fmt.Errorf("store: decode: %w", err)
	}
	s.cache.put(obj)
	return obj, nil
}

// PutBatch stores several objects in one backend round trip, skipping any
// already present in the front cache.
func (s *Store) PutBatch(objs []*Object) error {
	encoded := make(map[hash.H256][]byte, len(objs))
	for _, obj := range objs {
		if _, ok := s.cache.get(obj.Hash); ok {
			continue
		}
		enc, err := encodeObject(obj, s.compressor)
		if err != nil {
			return fmt.Errorf("store: encode: %w", err)
		}
		encoded[obj.Hash] = enc
	}
	if len(encoded) == 0 {
		return nil
	}
	if err := s.backend.PutBatch(encoded); err != nil {
		return fmt.Errorf("store: backend put batch: %w", err)
	}
	for _, obj := range objs {
		s.cache.put(obj)
	}
	return nil
}
