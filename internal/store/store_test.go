package store

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ledgerforge/ledgerd/internal/hash"
)

func openMemStore(t *testing.T) *Store {
	t.Helper()
	cfg := DefaultConfig()
	cfg.Backend = "memory"
	cfg.Compressor = "lz4"
	s, err := Open(cfg, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestPutGetRoundTrip(t *testing.T) {
	s := openMemStore(t)
	data := []byte("a transaction blob")
	h := hash.Sha512Half(data)

	require.NoError(t, s.Put(TypeTxn, 5, data, h))

	obj, err := s.Get(h)
	require.NoError(t, err)
	require.NotNil(t, obj)
	require.Equal(t, data, obj.Data)
	require.Equal(t, TypeTxn, obj.Type)
	require.EqualValues(t, 5, obj.LedgerSeq)
}

func TestGetMissReturnsNilNotError(t *testing.T) {
	s := openMemStore(t)
	obj, err := s.Get(hash.Sha512Half([]byte("never stored")))
	require.NoError(t, err)
	require.Nil(t, obj)
}

func TestPutHashMismatchIsSilentNoOp(t *testing.T) {
	s := openMemStore(t)
	data := []byte("payload")
	wrongHash := hash.Sha512Half([]byte("different"))

	require.NoError(t, s.Put(TypeTxn, 1, data, wrongHash))

	obj, err := s.Get(wrongHash)
	require.NoError(t, err)
	require.Nil(t, obj)
}

func TestPutIsIdempotent(t *testing.T) {
	s := openMemStore(t)
	data := []byte("idempotent")
	h := hash.Sha512Half(data)

	require.NoError(t, s.Put(TypeAcctNode, 1, data, h))
	require.NoError(t, s.Put(TypeAcctNode, 1, data, h))

	obj, err := s.Get(h)
	require.NoError(t, err)
	require.NotNil(t, obj)
}
