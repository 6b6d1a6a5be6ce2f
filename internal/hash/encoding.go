package hash

import "encoding/binary"

// GetUint32 decodes a big-endian uint32 from b starting at offset. A
// naive byte-by-byte shift-and-accumulate loop can clobber its own
// accumulator if the loop index and shift amount share a variable; this
// is a plain, explicit big-endian decode that avoids that trap entirely.
func GetUint32(b []byte, offset int) uint32 {
	return binary.BigEndian.Uint32(b[offset : offset+4])
}

// GetUint64 decodes a big-endian uint64 from b starting at offset.
func GetUint64(b []byte, offset int) uint64 {
	return binary.BigEndian.Uint64(b[offset : offset+8])
}

// PutUint32 encodes v as big-endian into b starting at offset.
func PutUint32(b []byte, offset int, v uint32) {
	binary.BigEndian.PutUint32(b[offset:offset+4], v)
}

// PutUint64 encodes v as big-endian into b starting at offset.
func PutUint64(b []byte, offset int, v uint64) {
	binary.BigEndian.PutUint64(b[offset:offset+8], v)
}
