package store

import (
	"encoding/binary"
	"fmt"

	"github.com/ledgerforge/ledgerd/internal/hash"
	"github.com/ledgerforge/ledgerd/internal/store/compression"
)

// On-disk record layout: type(1) ‖ ledgerSeq(4, BE) ‖ compressor-tagged body.
func encodeObject(o *Object, c compression.Compressor) ([]byte, error) {
	body, err := c.Compress(o.Data, 0)
	if err != nil {
		return nil, err
	}
	out := make([]byte, 0, 5+1+len(c.Name())+len(body))
	out = append(out, byte(o.Type))
	var seqBuf [4]byte
	binary.BigEndian.PutUint32(seqBuf[:], o.LedgerSeq)
	out = append(out, seqBuf[:]...)
	out = append(out, byte(len(c.Name())))
	out = append(out, []byte(c.Name())...)
	out = append(out, body...)
	return out, nil
}

func decodeObject(h hash.H256, raw []byte) (*Object, error) {
	if len(raw) < 6 {
		return nil, fmt.Errorf("store: record too short (%d bytes)", len(raw))
	}
	typ := ObjectType(raw[0])
	seq := binary.BigEndian.Uint32(raw[1:5])
	nameLen := int(raw[5])
	if len(raw) < 6+nameLen {
		return nil, fmt.Errorf("store: truncated compressor name")
	}
	name := string(raw[6 : 6+nameLen])
	body := raw[6+nameLen:]
	c, err := compression.Get(name)
	if err != nil {
		return nil, err
	}
	data, err := c.Decompress(body)
	if err != nil {
		return nil, fmt.Errorf("store: decompress: %w", err)
	}
	return &Object{Type: typ, Hash: h, LedgerSeq: seq, Data: data}, nil
}
