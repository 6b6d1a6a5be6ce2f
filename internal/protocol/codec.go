package protocol

import (
	"bytes"
	"fmt"

	"github.com/ugorji/go/codec"
)

// handle is shared across Encode/Decode: ugorji's handles are safe for
// concurrent use once configured and cheaper to reuse than to construct
// per call.
var handle = func() *codec.MsgpackHandle {
	h := &codec.MsgpackHandle{}
	h.Canonical = true
	return h
}()

// Encode serializes a message body to bytes. This is the body codec only:
// the length-prefixed, optionally-compressed framing those bytes travel in
// belongs to the Transport implementation, not this package.
func Encode(msg Message) ([]byte, error) {
	var buf bytes.Buffer
	enc := codec.NewEncoder(&buf, handle)
	if err := enc.Encode(msg); err != nil {
		return nil, fmt.Errorf("protocol: encode %s: %w", msg.Type(), err)
	}
	return buf.Bytes(), nil
}

// Decode deserializes a message body given the wire type code that
// accompanied it.
func Decode(msgType MessageType, data []byte) (Message, error) {
	msg, err := newMessage(msgType)
	if err != nil {
		return nil, err
	}
	dec := codec.NewDecoderBytes(data, handle)
	if err := dec.Decode(msg); err != nil {
		return nil, fmt.Errorf("protocol: decode %s: %w", msgType, err)
	}
	return msg, nil
}

func newMessage(msgType MessageType) (Message, error) {
	switch msgType {
	case TypeHello:
		return &Hello{}, nil
	case TypeGetLedger:
		return &GetLedger{}, nil
	case TypeLedgerData:
		return &LedgerData{}, nil
	case TypeProposeSet:
		return &ProposeSet{}, nil
	case TypeStatusChange:
		return &StatusChange{}, nil
	case TypeHaveSet:
		return &HaveTxSet{}, nil
	case TypeValidation:
		return &Validation{}, nil
	case TypeGetObjects:
		return &GetObjectByHash{}, nil
	default:
		return nil, fmt.Errorf("protocol: unknown message type %d", msgType)
	}
}
