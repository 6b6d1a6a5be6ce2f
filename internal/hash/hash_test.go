package hash

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSha512Half(t *testing.T) {
	got := Sha512Half([]byte("fakeRandomString"))
	require.Len(t, got, 32)
	// Deterministic: hashing the same input twice yields the same hash.
	require.Equal(t, got, Sha512Half([]byte("fakeRandomString")))
}

func TestHashWithDomainSeparatesDomains(t *testing.T) {
	data := []byte("identical-payload")
	a := HashWithDomain(DomainLeafNode, data)
	b := HashWithDomain(DomainInnerNode, data)
	require.NotEqual(t, a, b, "domain tags must prevent cross-protocol hash confusion")
}

func TestGetUint32RoundTrip(t *testing.T) {
	buf := make([]byte, 8)
	PutUint32(buf, 0, 0xDEADBEEF)
	require.Equal(t, uint32(0xDEADBEEF), GetUint32(buf, 0))
}

func TestH256CompareAndZero(t *testing.T) {
	var z H256
	require.True(t, z.IsZero())
	a := H256{1}
	b := H256{2}
	require.True(t, a.Less(b))
	require.Equal(t, -1, a.Compare(b))
	require.Equal(t, 1, b.Compare(a))
}
