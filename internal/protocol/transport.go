package protocol

import (
	"context"
	"errors"
	"sync"
)

// Envelope is one inbound message as delivered by a Transport, already
// stripped of wire framing.
type Envelope struct {
	Peer PeerID
	Type MessageType
	Body []byte
}

// Transport is the named out-of-scope wire-framing collaborator: the
// length-prefixed, optionally-compressed byte stream a real deployment
// would speak over TCP. Everything above this interface — the message
// schema, the codec, the dispatcher — is agnostic to how bytes actually
// cross the wire.
type Transport interface {
	// Send encodes and delivers msg to peer.
	Send(ctx context.Context, peer PeerID, msg Message) error
	// Broadcast delivers msg to every connected peer.
	Broadcast(ctx context.Context, msg Message) error
	// Inbox returns the channel inbound envelopes arrive on.
	Inbox() <-chan Envelope
	Close() error
}

var ErrPeerUnknown = errors.New("protocol: unknown peer")

// Loopback is an in-process Transport backed by Go channels, connecting a
// fixed set of peers without touching a socket. It exists for the
// in-process consensus simulation harness and for tests that need two
// sides of a conversation without a real network.
type Loopback struct {
	mu    sync.RWMutex
	self  PeerID
	peers map[PeerID]chan Envelope
	inbox chan Envelope
	done  chan struct{}
}

// NewLoopback returns a Loopback for self. Peers are wired together after
// construction with Connect, since every participant in a simulated
// network needs to know about every other one.
func NewLoopback(self PeerID) *Loopback {
	return &Loopback{
		self:  self,
		peers: make(map[PeerID]chan Envelope),
		inbox: make(chan Envelope, 256),
		done:  make(chan struct{}),
	}
}

// Connect registers other's inbox so Send/Broadcast from this Loopback can
// reach it. Connections are one-directional; simulated networks call
// Connect both ways to get a full-duplex link.
func (l *Loopback) Connect(peer PeerID, inbox chan Envelope) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.peers[peer] = inbox
}

func (l *Loopback) Inbox() <-chan Envelope { return l.inbox }

func (l *Loopback) rawInbox() chan Envelope { return l.inbox }

func (l *Loopback) Send(ctx context.Context, peer PeerID, msg Message) error {
	body, err := Encode(msg)
	if err != nil {
		return err
	}
	l.mu.RLock()
	ch, ok := l.peers[peer]
	l.mu.RUnlock()
	if !ok {
		return ErrPeerUnknown
	}
	env := Envelope{Peer: l.self, Type: msg.Type(), Body: body}
	select {
	case ch <- env:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-l.done:
		return errors.New("protocol: transport closed")
	}
}

func (l *Loopback) Broadcast(ctx context.Context, msg Message) error {
	l.mu.RLock()
	targets := make([]PeerID, 0, len(l.peers))
	for p := range l.peers {
		targets = append(targets, p)
	}
	l.mu.RUnlock()
	for _, p := range targets {
		if err := l.Send(ctx, p, msg); err != nil && !errors.Is(err, ErrPeerUnknown) {
			return err
		}
	}
	return nil
}

func (l *Loopback) Close() error {
	select {
	case <-l.done:
	default:
		close(l.done)
	}
	return nil
}

// ConnectLoopbacks wires every pair of the given loopbacks together so each
// can Send/Broadcast to all the others, simulating a fully-meshed network.
func ConnectLoopbacks(transports map[PeerID]*Loopback) {
	for id, t := range transports {
		for otherID, other := range transports {
			if id == otherID {
				continue
			}
			t.Connect(otherID, other.rawInbox())
		}
	}
}
