package cli

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/ledgerforge/ledgerd/internal/config"
	"github.com/ledgerforge/ledgerd/internal/consensus"
	"github.com/ledgerforge/ledgerd/internal/ledger"
	"github.com/ledgerforge/ledgerd/internal/persist"
	"github.com/ledgerforge/ledgerd/internal/protocol"
	"github.com/ledgerforge/ledgerd/internal/shamap"
	"github.com/ledgerforge/ledgerd/internal/signer"
	"github.com/ledgerforge/ledgerd/internal/store"
	"github.com/ledgerforge/ledgerd/internal/txengine"
	"github.com/ledgerforge/ledgerd/internal/unl"
	"github.com/ledgerforge/ledgerd/internal/validation"
)

// node is every long-lived collaborator a running server holds onto, so
// Close can shut them down in the right order. Real peer networking (the
// wire framing named out of scope in spec.md §1) is represented only by
// the node's own Loopback transport, which exercises the same Dispatcher/
// Engine wiring the simulate harness drives in tests, minus any other
// peer to actually talk to.
type node struct {
	cfg *config.Config
	log *slog.Logger

	signer  *signer.Secp256k1Signer
	objects *store.Store
	rel     *persist.Store
	writer  *persist.ValidationWriter

	master      *ledger.Master
	unlist      *unl.List
	validations *validation.Collection
	engine      *consensus.Engine
	transport   *protocol.Loopback
	dispatcher  *protocol.Dispatcher
}

func newNode(ctx context.Context, cfg *config.Config, log *slog.Logger) (*node, error) {
	s, err := config.LoadSigner(cfg)
	if err != nil {
		return nil, fmt.Errorf("cli: load signer: %w", err)
	}
	log.Info("node identity ready", "peer_id", s.PeerID().String())

	objects, err := store.Open(&cfg.Store, log)
	if err != nil {
		return nil, fmt.Errorf("cli: open object store: %w", err)
	}

	rel, err := persist.Open(&cfg.Persist, log)
	if err != nil {
		objects.Close()
		return nil, fmt.Errorf("cli: open relational store: %w", err)
	}
	writer := persist.NewValidationWriter(ctx, rel, cfg.Persist.ValidationWriteBuffer, log)

	entries, err := cfg.Validators.Entries()
	if err != nil {
		return nil, fmt.Errorf("cli: resolve validator entries: %w", err)
	}
	unlist := unl.NewList(cfg.Server.UNLSize)
	unlist.Refresh(entries)
	log.Info("unl refreshed", "trusted", len(entries))

	now := time.Now().UTC()
	genesisHdr := ledger.Header{
		Seq:                 1,
		CloseTime:           now,
		CloseTimeResolution: 10 * time.Second,
		TotalDrops:          100_000_000_000,
	}
	// One Family backs every SHAMap this node ever opens. store.ShamapFamily
	// tags the objects it persists with a single ObjectType fixed at
	// construction (for the store's own node-count stats); since
	// Store.Get looks objects up by hash alone, a ledger's state and
	// transaction nodes sharing one family's tag costs nothing at the
	// retrieval path, only at the stats breakdown.
	family := store.NewShamapFamily(objects, shamap.MapTypeTransaction, 1)
	stateMap := shamap.New(shamap.MapTypeState, family)
	txMap := shamap.New(shamap.MapTypeTransaction, family)
	genesis := ledger.FromGenesis(genesisHdr, stateMap, txMap)

	master, err := ledger.NewMaster(genesis, 64)
	if err != nil {
		return nil, fmt.Errorf("cli: init ledger master: %w", err)
	}
	master.SetOpen(ledger.NewOpen(genesis, family, now))

	validations := validation.NewCollection(unlist)

	n := &node{
		cfg: cfg, log: log,
		signer: s, objects: objects, rel: rel, writer: writer,
		master: master, unlist: unlist, validations: validations,
		transport:  protocol.NewLoopback(s.PeerID()),
		dispatcher: protocol.NewDispatcher(),
	}

	applier := txengine.New()
	n.engine = consensus.NewEngine(master, family, validations, unlist, applier, s, unlist,
		cfg.Consensus.Timing(),
		consensus.WithLogger(log),
		consensus.WithOnAccept(n.onAccept),
	)
	n.registerHandlers()
	protocol.ConnectLoopbacks(map[protocol.PeerID]*protocol.Loopback{s.PeerID(): n.transport})

	return n, nil
}

func (n *node) registerHandlers() {
	n.dispatcher.RegisterFunc(protocol.TypeProposeSet, func(_ context.Context, _ protocol.PeerID, msg protocol.Message) error {
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
		return n.engine.PeerPosition(p)
	})

	n.dispatcher.RegisterFunc(protocol.TypeValidation, func(_ context.Context, _ protocol.PeerID, msg protocol.Message) error {
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
		n.validations.AddValidation(v, validation.SourcePeer)
		return nil
	})
}

// onAccept fires once Engine.Accept closes a round: it signs and records
// a validation for the closed ledger, persists the ledger header and the
// validation (the validation write goes through the async writer per
// SPEC_FULL's C5 do_write design; the ledger header write is rare enough
// relative to validations to do inline), and broadcasts the validation to
// any connected peers.
func (n *node) onAccept(closed, _ *ledger.Ledger) {
	v := &validation.Validation{
		LedgerHash:   closed.Hash(),
		LedgerSeq:    closed.Sequence(),
		PreviousHash: closed.ParentHash(),
		SignTime:     time.Now().UTC(),
		PeerID:       n.signer.PeerID(),
	}
	if err := n.signer.SignValidation(v); err != nil {
		n.log.Error("sign validation failed", "err", err)
		return
	}
	n.validations.AddValidation(v, validation.SourceLocal)

	ctx := context.Background()
	if err := n.rel.SaveLedger(ctx, &persist.LedgerRecord{
		Hash: closed.Hash(), Seq: closed.Sequence(), ParentHash: closed.ParentHash(),
		CloseTime: closed.Header().CloseTime, TxRoot: closed.TxMap().RootHash(), StateRoot: closed.StateMap().RootHash(),
	}); err != nil {
		n.log.Warn("save ledger failed", "err", err, "seq", closed.Sequence())
	}
	n.writer.Enqueue(&persist.ValidationRecord{
		LedgerHash: v.LedgerHash, NodePubkey: v.SignerPubkey, SignTime: v.SignTime,
	})

	if err := n.transport.Broadcast(ctx, &protocol.Validation{
		LedgerHash: v.LedgerHash, LedgerSeq: v.LedgerSeq, PreviousHash: v.PreviousHash,
		SignTime: v.SignTime, Flags: v.Flags, SignerPubkey: v.SignerPubkey, Signature: v.Signature,
	}); err != nil {
		n.log.Warn("broadcast validation failed", "err", err)
	}
}

func (n *node) Close() error {
	if err := n.writer.Close(); err != nil {
		n.log.Warn("validation writer close failed", "err", err)
	}
	if err := n.rel.Close(); err != nil {
		n.log.Warn("relational store close failed", "err", err)
	}
	return n.objects.Close()
}
