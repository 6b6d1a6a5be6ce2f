package protocol

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ledgerforge/ledgerd/internal/hash"
	"github.com/ledgerforge/ledgerd/internal/shamap"
)

var errBoom = errors.New("boom")

func peerID(b byte) PeerID {
	var p PeerID
	p[0] = b
	return p
}

func tagHash(b byte) hash.H256 {
	var h hash.H256
	h[0] = b
	return h
}

func TestCodecRoundTripsEveryMessageType(t *testing.T) {
	closeTime := time.Unix(1_700_000_000, 0).UTC()

	cases := []Message{
		&Hello{ProtoVersion: 1, ListenPort: 51235, NodePubkey: []byte("pub"), LedgerSeq: 42, NetworkTime: closeTime},
		&ProposeSet{PreviousLedger: tagHash(1), Position: tagHash(2), Seq: 3, PeerID: peerID(5), CloseTime: closeTime},
		&Validation{LedgerHash: tagHash(3), LedgerSeq: 7, SignerPubkey: []byte("k"), SignTime: closeTime},
		&GetLedger{InfoType: LedgerInfoTxNode, LedgerHash: tagHash(4), NodeIDs: []shamap.NodeID{shamap.RootNodeID()}},
		&LedgerData{LedgerHash: tagHash(5), Nodes: []LedgerNode{{ID: shamap.RootNodeID(), Data: []byte("blob")}}},
		&HaveTxSet{Status: TxSetHave, Hash: tagHash(6)},
		&StatusChange{Event: NodeEventClosing, LedgerSeq: 8, LedgerHash: tagHash(7), NetworkTime: closeTime},
		&GetObjectByHash{ObjType: ObjectLedger, Query: true, Objects: []ObjectRef{{Hash: tagHash(8)}}},
	}

	for _, msg := range cases {
		body, err := Encode(msg)
		require.NoError(t, err)

		decoded, err := Decode(msg.Type(), body)
		require.NoError(t, err)
		requireSameMessage(t, msg, decoded)
	}
}

// requireSameMessage compares two decoded messages field-by-field rather
// than with require.Equal, because time.Time carries an internal
// monotonic/location representation that can differ byte-for-byte between
// two values representing the identical instant — a well-known trap for
// reflect.DeepEqual-based equality on anything round-tripped through a
// codec.
func requireSameMessage(t *testing.T, want, got Message) {
	t.Helper()
	require.Equal(t, want.Type(), got.Type())

	switch w := want.(type) {
	case *Hello:
		g := got.(*Hello)
		require.Equal(t, w.ProtoVersion, g.ProtoVersion)
		require.Equal(t, w.ListenPort, g.ListenPort)
		require.Equal(t, w.NodePubkey, g.NodePubkey)
		require.Equal(t, w.LedgerSeq, g.LedgerSeq)
		require.True(t, w.NetworkTime.Equal(g.NetworkTime))
	case *ProposeSet:
		g := got.(*ProposeSet)
		require.Equal(t, w.PreviousLedger, g.PreviousLedger)
		require.Equal(t, w.Position, g.Position)
		require.Equal(t, w.Seq, g.Seq)
		require.Equal(t, w.PeerID, g.PeerID)
		require.True(t, w.CloseTime.Equal(g.CloseTime))
	case *Validation:
		g := got.(*Validation)
		require.Equal(t, w.LedgerHash, g.LedgerHash)
		require.Equal(t, w.LedgerSeq, g.LedgerSeq)
		require.Equal(t, w.SignerPubkey, g.SignerPubkey)
		require.True(t, w.SignTime.Equal(g.SignTime))
	case *StatusChange:
		g := got.(*StatusChange)
		require.Equal(t, w.Event, g.Event)
		require.Equal(t, w.LedgerSeq, g.LedgerSeq)
		require.Equal(t, w.LedgerHash, g.LedgerHash)
		require.True(t, w.NetworkTime.Equal(g.NetworkTime))
	default:
		require.Equal(t, want, got)
	}
}

func TestDecodeRejectsUnknownType(t *testing.T) {
	_, err := Decode(MessageType(9999), []byte{})
	require.Error(t, err)
}

func TestDispatcherRoutesToRegisteredHandlers(t *testing.T) {
	d := NewDispatcher()
	var got *Validation
	d.RegisterFunc(TypeValidation, func(_ context.Context, peer PeerID, msg Message) error {
		got = msg.(*Validation)
		return nil
	})

	body, err := Encode(&Validation{LedgerHash: tagHash(1), LedgerSeq: 2})
	require.NoError(t, err)

	require.NoError(t, d.Dispatch(context.Background(), peerID(1), TypeValidation, body))
	require.NotNil(t, got)
	require.EqualValues(t, 2, got.LedgerSeq)

	counter := d.Metrics().Get(TypeValidation)
	require.NotNil(t, counter)
	require.EqualValues(t, 1, counter.In)
}

func TestDispatcherStopsOnHandlerError(t *testing.T) {
	d := NewDispatcher()
	calls := 0
	failing := HandlerFunc(func(context.Context, PeerID, Message) error {
		calls++
		return errBoom
	})
	second := HandlerFunc(func(context.Context, PeerID, Message) error {
		calls++
		return nil
	})
	d.Register(TypeHaveSet, failing)
	d.Register(TypeHaveSet, second)

	body, err := Encode(&HaveTxSet{Status: TxSetHave, Hash: tagHash(1)})
	require.NoError(t, err)

	err = d.Dispatch(context.Background(), peerID(1), TypeHaveSet, body)
	require.ErrorIs(t, err, errBoom)
	require.Equal(t, 1, calls, "a handler error must abort dispatch of this message")
}

func TestLoopbackTransportDeliversSendAndBroadcast(t *testing.T) {
	a, b, c := peerID(1), peerID(2), peerID(3)
	transports := map[PeerID]*Loopback{
		a: NewLoopback(a),
		b: NewLoopback(b),
		c: NewLoopback(c),
	}
	ConnectLoopbacks(transports)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	require.NoError(t, transports[a].Send(ctx, b, &HaveTxSet{Status: TxSetHave, Hash: tagHash(9)}))
	env := <-transports[b].Inbox()
	require.Equal(t, a, env.Peer)
	require.Equal(t, TypeHaveSet, env.Type)

	require.NoError(t, transports[a].Broadcast(ctx, &StatusChange{Event: NodeEventAccepted}))
	envB := <-transports[b].Inbox()
	envC := <-transports[c].Inbox()
	require.Equal(t, TypeStatusChange, envB.Type)
	require.Equal(t, TypeStatusChange, envC.Type)
}

func TestLoopbackSendToUnknownPeerFails(t *testing.T) {
	a := NewLoopback(peerID(1))
	err := a.Send(context.Background(), peerID(9), &Hello{})
	require.ErrorIs(t, err, ErrPeerUnknown)
}
