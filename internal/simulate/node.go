package simulate

import (
	"context"

	"github.com/ledgerforge/ledgerd/internal/consensus"
	"github.com/ledgerforge/ledgerd/internal/hash"
	"github.com/ledgerforge/ledgerd/internal/ledger"
	"github.com/ledgerforge/ledgerd/internal/protocol"
	"github.com/ledgerforge/ledgerd/internal/signer"
	"github.com/ledgerforge/ledgerd/internal/unl"
	"github.com/ledgerforge/ledgerd/internal/validation"
)

// Node is one simulated validator: a real consensus Engine, ledger Master
// and Validation collection behind a signer identity, wired to its peers
// through an in-process Transport.
type Node struct {
	ID     hash.H160
	Signer *signer.Secp256k1Signer
	Pubkey string // raw pubkey bytes as a string, the exact form unl.Entry.Pubkey and InUNL key off of

	Master      *ledger.Master
	Validations *validation.Collection
	UNL         *unl.List
	Engine      *consensus.Engine

	Transport  *protocol.Loopback
	Dispatcher *protocol.Dispatcher
}

func pubkeyKey(pub []byte) string { return string(pub) }

// PumpInbox drains every envelope currently queued on the node's inbox
// through its dispatcher, without blocking for more to arrive. A round
// calls this after every broadcast so delivery stays synchronous: no
// goroutines, no races, the same send-then-pump shape a deterministic
// simulation needs.
func (n *Node) PumpInbox(ctx context.Context) error {
	for {
		select {
		case env := <-n.Transport.Inbox():
			if err := n.Dispatcher.Dispatch(ctx, env.Peer, env.Type, env.Body); err != nil {
				return err
			}
		default:
			return nil
		}
	}
}

// registerHandlers wires inbound ProposeSet and Validation messages into
// this node's Engine and Validations collection, verifying each
// signature before admitting it — exactly what a real peer-management
// layer would do before trusting anything that arrived over the wire.
func (n *Node) registerHandlers() {
	n.Dispatcher.RegisterFunc(protocol.TypeProposeSet, func(_ context.Context, _ protocol.PeerID, msg protocol.Message) error {
		m := msg.(*protocol.ProposeSet)
		p := &consensus.Proposal{
			PrevLedger: m.PreviousLedger,
			Position:   m.Position,
			CloseTime:  m.CloseTime,
			Seq:        m.Seq,
			PeerPubkey: m.NodePubkey,
			PeerID:     m.PeerID,
			Signature:  m.Signature,
		}
		if !signer.VerifyProposal(p) {
			return nil
		}
		return n.Engine.PeerPosition(p)
	})

	n.Dispatcher.RegisterFunc(protocol.TypeValidation, func(_ context.Context, _ protocol.PeerID, msg protocol.Message) error {
		m := msg.(*protocol.Validation)
		v := &validation.Validation{
			LedgerHash:   m.LedgerHash,
			LedgerSeq:    m.LedgerSeq,
			PreviousHash: m.PreviousHash,
			SignTime:     m.SignTime,
			Flags:        m.Flags,
			SignerPubkey: m.SignerPubkey,
			PeerID:       signer.DeriveID(m.SignerPubkey),
			Signature:    m.Signature,
		}
		if !signer.VerifyValidation(v) {
			return nil
		}
		n.Validations.AddValidation(v, validation.SourcePeer)
		return nil
	})
}

func (n *Node) broadcastPosition(ctx context.Context, p *consensus.Proposal) error {
	return n.Transport.Broadcast(ctx, &protocol.ProposeSet{
		PreviousLedger: p.PrevLedger,
		Position:       p.Position,
		CloseTime:      p.CloseTime,
		Seq:            p.Seq,
		NodePubkey:     p.PeerPubkey,
		PeerID:         p.PeerID,
		Signature:      p.Signature,
	})
}

// onAccept builds the callback Engine.Accept fires once a round closes: it
// signs a full validation for the just-accepted ledger, records it as our
// own local validation, and broadcasts it, exactly as the node's own
// acceptance of a ledger would trigger one on a real network.
func (n *Node) onAccept(clock *Clock) func(closed, open *ledger.Ledger) {
	return func(closed, _ *ledger.Ledger) {
		v := &validation.Validation{
			LedgerHash:   closed.Hash(),
			LedgerSeq:    closed.Sequence(),
			PreviousHash: closed.ParentHash(),
			SignTime:     clock.Now(),
			PeerID:       n.ID,
		}
		if err := n.Signer.SignValidation(v); err != nil {
			return
		}
		n.Validations.AddValidation(v, validation.SourceLocal)
		_ = n.broadcastValidation(context.Background(), v)
	}
}

func (n *Node) broadcastValidation(ctx context.Context, v *validation.Validation) error {
	return n.Transport.Broadcast(ctx, &protocol.Validation{
		LedgerHash:   v.LedgerHash,
		LedgerSeq:    v.LedgerSeq,
		PreviousHash: v.PreviousHash,
		SignTime:     v.SignTime,
		Flags:        v.Flags,
		SignerPubkey: v.SignerPubkey,
		Signature:    v.Signature,
	})
}
