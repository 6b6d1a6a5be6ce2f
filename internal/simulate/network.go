package simulate

import (
	"context"
	"fmt"
	"time"

	"github.com/ledgerforge/ledgerd/internal/consensus"
	"github.com/ledgerforge/ledgerd/internal/hash"
	"github.com/ledgerforge/ledgerd/internal/ledger"
	"github.com/ledgerforge/ledgerd/internal/protocol"
	"github.com/ledgerforge/ledgerd/internal/shamap"
	"github.com/ledgerforge/ledgerd/internal/signer"
	"github.com/ledgerforge/ledgerd/internal/txengine"
	"github.com/ledgerforge/ledgerd/internal/unl"
	"github.com/ledgerforge/ledgerd/internal/validation"
)

// roundStep and maxConsensusPasses bound how far RunRound advances the
// simulated clock chasing a stuck round before giving up; StuckTimePct of
// DefaultTiming is 200% of the previous round's duration, so a handful of
// seconds' worth of steps comfortably reaches it.
const (
	roundStep          = 250 * time.Millisecond
	maxConsensusPasses = 40
)

// Network is N validators fully meshed over in-process transports, all
// trusting each other's UNL entries, all descended from the same genesis
// ledger. It exists to drive real Engine instances through a round the
// way a peer-management layer would, without a real socket anywhere.
type Network struct {
	Clock *Clock
	Nodes []*Node

	byID       map[hash.H160]*Node
	resolution time.Duration
}

// NewNetwork builds n validators. start is the genesis ledger's close time
// and the simulated clock's initial instant; resolution is the close-time
// rounding every node's ledgers use.
func NewNetwork(n int, start time.Time, resolution time.Duration) (*Network, error) {
	if n <= 0 {
		return nil, fmt.Errorf("simulate: network needs at least one node")
	}

	net := &Network{
		Clock:      NewClock(start),
		byID:       make(map[hash.H160]*Node, n),
		resolution: resolution,
	}

	signers := make([]*signer.Secp256k1Signer, n)
	for i := range signers {
		s, err := signer.Generate()
		if err != nil {
			return nil, fmt.Errorf("simulate: generate validator %d identity: %w", i, err)
		}
		signers[i] = s
	}

	entries := make([]unl.Entry, n)
	for i, s := range signers {
		entries[i] = unl.Entry{Pubkey: pubkeyKey(s.Pubkey()), Source: unl.SourceConfig}
	}

	genesisHdr := ledger.Header{
		Seq:                 1,
		CloseTime:           start,
		CloseTimeResolution: resolution,
		TotalDrops:          100_000_000_000,
	}

	transports := make(map[protocol.PeerID]*protocol.Loopback, n)
	applier := txengine.New()

	for _, s := range signers {
		family := shamap.NewMemoryFamily()
		stateMap := shamap.New(shamap.MapTypeState, family)
		txMap := shamap.New(shamap.MapTypeTransaction, family)
		genesis := ledger.FromGenesis(genesisHdr, stateMap, txMap)

		master, err := ledger.NewMaster(genesis, 64)
		if err != nil {
			return nil, err
		}
		master.SetOpen(ledger.NewOpen(genesis, family, start))

		unlist := unl.NewList(n)
		unlist.Refresh(entries)

		validations := validation.NewCollection(unlist, validation.WithClock(net.Clock.Now))

		transport := protocol.NewLoopback(s.PeerID())
		transports[s.PeerID()] = transport

		node := &Node{
			ID:          s.PeerID(),
			Signer:      s,
			Pubkey:      pubkeyKey(s.Pubkey()),
			Master:      master,
			Validations: validations,
			UNL:         unlist,
			Transport:   transport,
			Dispatcher:  protocol.NewDispatcher(),
		}

		node.Engine = consensus.NewEngine(master, family, validations, unlist, applier, s, unlist, consensus.DefaultTiming(),
			consensus.WithClock(net.Clock.Now),
			consensus.WithOnAccept(node.onAccept(net.Clock)),
		)
		node.registerHandlers()

		net.Nodes = append(net.Nodes, node)
		net.byID[s.PeerID()] = node
	}

	protocol.ConnectLoopbacks(transports)
	return net, nil
}

// NodeByID looks up a node by its validator identity.
func (n *Network) NodeByID(id hash.H160) (*Node, bool) {
	node, ok := n.byID[id]
	return node, ok
}

// SubmitTransaction adds (txID, raw) to every node's current open ledger,
// modeling a transaction that has already propagated network-wide before
// the round begins.
func (n *Network) SubmitTransaction(txID hash.H256, raw []byte) error {
	for _, node := range n.Nodes {
		if err := submitTo(node, txID, raw); err != nil {
			return err
		}
	}
	return nil
}

// SubmitTransactionTo adds (txID, raw) to a single node's open ledger only,
// modeling a transaction that one validator has seen and the rest haven't.
func (n *Network) SubmitTransactionTo(nodeIndex int, txID hash.H256, raw []byte) error {
	if nodeIndex < 0 || nodeIndex >= len(n.Nodes) {
		return fmt.Errorf("simulate: node index %d out of range", nodeIndex)
	}
	return submitTo(n.Nodes[nodeIndex], txID, raw)
}

func submitTo(node *Node, txID hash.H256, raw []byte) error {
	open := node.Master.CurrentOpen()
	if open == nil {
		return fmt.Errorf("simulate: %s has no open ledger", node.ID)
	}
	return open.AddTransaction(txID, raw)
}

// RunRound drives one full closing round across every node: starts the
// round everywhere, exchanges initial positions, resolves any disputes a
// divergent proposer creates, and keeps advancing the simulated clock and
// re-broadcasting updated positions until every node reports consensus (or
// the pass budget runs out). It returns each node's accepted ledger hash.
func (n *Network) RunRound(ctx context.Context, previousRoundDur time.Duration) (map[hash.H160]hash.H256, error) {
	for _, node := range n.Nodes {
		if err := node.Engine.StartRound(true, n.resolution, previousRoundDur); err != nil {
			return nil, fmt.Errorf("simulate: start round on node %s: %w", node.ID, err)
		}
	}

	if err := n.broadcastPositions(ctx); err != nil {
		return nil, err
	}
	if err := n.pumpAll(ctx); err != nil {
		return nil, err
	}
	if err := n.resolveDisputes(); err != nil {
		return nil, err
	}

	for pass := 0; pass < maxConsensusPasses; pass++ {
		now := n.Clock.Now()
		if n.allHaveConsensus(now) {
			break
		}

		n.Clock.Advance(roundStep)
		now = n.Clock.Now()

		changed := false
		for _, node := range n.Nodes {
			p, didChange, err := node.Engine.UpdateOurPositions(now)
			if err != nil {
				return nil, err
			}
			if didChange {
				changed = true
				if err := node.broadcastPosition(ctx, p); err != nil {
					return nil, err
				}
			}
		}
		if changed {
			if err := n.pumpAll(ctx); err != nil {
				return nil, err
			}
			if err := n.resolveDisputes(); err != nil {
				return nil, err
			}
		}
	}

	now := n.Clock.Now()
	results := make(map[hash.H160]hash.H256, len(n.Nodes))
	for _, node := range n.Nodes {
		if !node.Engine.HaveConsensus(now) {
			return nil, fmt.Errorf("simulate: node %s never reached consensus", node.ID)
		}
		closing := node.Master.Closing()
		if err := node.Engine.Accept(now); err != nil {
			return nil, fmt.Errorf("simulate: accept on node %s: %w", node.ID, err)
		}
		results[node.ID] = closing.Hash()
	}

	if err := n.pumpAll(ctx); err != nil {
		return nil, err
	}
	return results, nil
}

func (n *Network) allHaveConsensus(now time.Time) bool {
	for _, node := range n.Nodes {
		if !node.Engine.HaveConsensus(now) {
			return false
		}
	}
	return true
}

func (n *Network) broadcastPositions(ctx context.Context) error {
	for _, node := range n.Nodes {
		p := node.Engine.OurPosition()
		if p == nil {
			continue
		}
		if err := node.broadcastPosition(ctx, p); err != nil {
			return err
		}
	}
	return nil
}

func (n *Network) pumpAll(ctx context.Context) error {
	for _, node := range n.Nodes {
		if err := node.PumpInbox(ctx); err != nil {
			return err
		}
	}
	return nil
}

// resolveDisputes lets every node diff each peer's last-known position
// against its own transaction set. The peer's actual tx set is read
// directly off its in-process ledger rather than fetched over the wire —
// a simulation-harness shortcut the teacher's own csf framework takes too,
// since the point of a simulation is to drive the consensus algorithm
// under controlled conditions; the real sync path (TxSetAcquire plus
// GetLedger/LedgerData) is built and tested on its own in
// internal/consensus and internal/protocol.
func (n *Network) resolveDisputes() error {
	for _, node := range n.Nodes {
		for _, peer := range n.Nodes {
			if peer.ID == node.ID {
				continue
			}
			pos := peer.Engine.OurPosition()
			if pos == nil || pos.IsBowOut() {
				continue
			}
			peerClosing := peer.Master.Closing()
			if peerClosing == nil {
				continue
			}
			if err := node.Engine.CreateDisputes(peer.ID, pos.Position, peerClosing.TxMap()); err != nil {
				return err
			}
		}
	}
	return nil
}
