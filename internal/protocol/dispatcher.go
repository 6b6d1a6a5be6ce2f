package protocol

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ledgerforge/ledgerd/internal/hash"
	"github.com/ledgerforge/ledgerd/internal/store/compression"
)

// PeerID identifies the remote end of a connection. It is the peer's node
// identity hash, the same H160 used everywhere else a peer is named
// (consensus positions, the UNL, validations).
type PeerID = hash.H160

// Handler is called once per decoded inbound message.
type Handler interface {
	HandleMessage(ctx context.Context, peer PeerID, msg Message) error
}

// HandlerFunc adapts a plain function to Handler.
type HandlerFunc func(ctx context.Context, peer PeerID, msg Message) error

func (f HandlerFunc) HandleMessage(ctx context.Context, peer PeerID, msg Message) error {
	return f(ctx, peer, msg)
}

// Dispatcher decodes inbound message bodies and routes them to every
// handler registered for that message's type, tracking per-type traffic
// counters along the way.
type Dispatcher struct {
	mu       sync.RWMutex
	handlers map[MessageType][]Handler
	metrics  *Metrics
}

func NewDispatcher() *Dispatcher {
	return &Dispatcher{
		handlers: make(map[MessageType][]Handler),
		metrics:  NewMetrics(),
	}
}

// Register adds a handler for msgType. Multiple handlers for the same type
// all run, in registration order; an error from one does not stop the rest
// from seeing an earlier message, but does abort dispatch of this one.
func (d *Dispatcher) Register(msgType MessageType, h Handler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.handlers[msgType] = append(d.handlers[msgType], h)
}

func (d *Dispatcher) RegisterFunc(msgType MessageType, fn HandlerFunc) {
	d.Register(msgType, fn)
}

// Dispatch decodes an already-decompressed body and routes it.
func (d *Dispatcher) Dispatch(ctx context.Context, peer PeerID, msgType MessageType, body []byte) error {
	d.metrics.Record(msgType, len(body), true)

	msg, err := Decode(msgType, body)
	if err != nil {
		return fmt.Errorf("dispatch: %w", err)
	}

	d.mu.RLock()
	handlers := append([]Handler(nil), d.handlers[msgType]...)
	d.mu.RUnlock()

	for _, h := range handlers {
		if err := h.HandleMessage(ctx, peer, msg); err != nil {
			return err
		}
	}
	return nil
}

// DispatchCompressed decompresses body with the named compressor (the same
// Compressor interface the object store uses) before decoding and routing
// it, for transports that advertise a compression algorithm per message.
func (d *Dispatcher) DispatchCompressed(ctx context.Context, peer PeerID, msgType MessageType, body []byte, algorithm string) error {
	if algorithm == "" {
		return d.Dispatch(ctx, peer, msgType, body)
	}
	c, err := compression.Get(algorithm)
	if err != nil {
		return fmt.Errorf("dispatch: %w", err)
	}
	raw, err := c.Decompress(body)
	if err != nil {
		return fmt.Errorf("dispatch: decompress: %w", err)
	}
	return d.Dispatch(ctx, peer, msgType, raw)
}

func (d *Dispatcher) Metrics() *Metrics { return d.metrics }

// Metrics tracks per-type message counts and byte volume, in and out.
type Metrics struct {
	mu       sync.RWMutex
	counters map[MessageType]*Counter
}

type Counter struct {
	In, Out      uint64
	BytesIn      uint64
	BytesOut     uint64
	LastSeen     time.Time
}

func NewMetrics() *Metrics {
	return &Metrics{counters: make(map[MessageType]*Counter)}
}

func (m *Metrics) Record(msgType MessageType, size int, inbound bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.counters[msgType]
	if !ok {
		c = &Counter{}
		m.counters[msgType] = c
	}
	if inbound {
		c.In++
		c.BytesIn += uint64(size)
	} else {
		c.Out++
		c.BytesOut += uint64(size)
	}
	c.LastSeen = time.Now()
}

func (m *Metrics) Get(msgType MessageType) *Counter {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.counters[msgType]
}
