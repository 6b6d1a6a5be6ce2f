// Package txengine is the concrete stand-in for the out-of-scope
// transaction-apply-rules collaborator named in spec.md §1: full XRPL
// transaction semantics (the dozens of transaction types, fee schedules,
// reserve rules) are not reimplemented, but consensus.Applier needs a real
// implementation to drive ledger construction end to end, so this package
// gives it one narrow transaction type — a balance transfer with a
// replay-preventing account sequence — encoded the same way every other
// wire/body payload in this project is.
package txengine

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/ugorji/go/codec"

	"github.com/ledgerforge/ledgerd/internal/consensus"
	"github.com/ledgerforge/ledgerd/internal/hash"
	"github.com/ledgerforge/ledgerd/internal/ledger"
	"github.com/ledgerforge/ledgerd/internal/shamap"
)

var (
	ErrInsufficientBalance = errors.New("txengine: insufficient balance")
	ErrBadSequence         = errors.New("txengine: sequence does not match account")
)

var handle = func() *codec.MsgpackHandle {
	h := &codec.MsgpackHandle{}
	h.Canonical = true
	return h
}()

// Transfer moves Amount drops from From to To, guarded by From's account
// sequence (strictly increasing, one use per transaction) the way every
// XRPL-family transaction type is.
type Transfer struct {
	From     hash.H160
	To       hash.H160
	Amount   uint64
	Sequence uint64
}

// Account is the state-tree leaf a Transfer reads and writes.
type Account struct {
	Balance  uint64
	Sequence uint64
}

// EncodeTransfer serializes t for the ledger's transaction map.
func EncodeTransfer(t Transfer) ([]byte, error) {
	var buf bytes.Buffer
	if err := codec.NewEncoder(&buf, handle).Encode(t); err != nil {
		return nil, fmt.Errorf("txengine: encode transfer: %w", err)
	}
	return buf.Bytes(), nil
}

func decodeTransfer(raw []byte) (Transfer, error) {
	var t Transfer
	if err := codec.NewDecoderBytes(raw, handle).Decode(&t); err != nil {
		return Transfer{}, fmt.Errorf("txengine: decode transfer: %w", err)
	}
	return t, nil
}

func encodeAccount(a Account) []byte {
	var buf bytes.Buffer
	_ = codec.NewEncoder(&buf, handle).Encode(a)
	return buf.Bytes()
}

func decodeAccount(raw []byte) (Account, error) {
	var a Account
	if err := codec.NewDecoderBytes(raw, handle).Decode(&a); err != nil {
		return Account{}, fmt.Errorf("txengine: decode account: %w", err)
	}
	return a, nil
}

// accountTag maps an account id onto the state tree's key space, domain
// separated from every other leaf kind the state tree stores.
func accountTag(id hash.H160) hash.H256 {
	return hash.HashWithDomain(hash.DomainLeafNode, []byte("account"), id[:])
}

// Engine is the Applier consensus drives ledger construction with.
type Engine struct{}

func New() *Engine { return &Engine{} }

// Apply implements consensus.Applier. It operates on the ledger's state
// tree directly (StateMap, not the Ledger's gated Insert/Update/Erase
// methods) because by the time a round calls Apply the ledger has already
// moved to StateClosing, where those convenience methods refuse writes —
// only the underlying SHAMap, still mutable until Ledger.Accept freezes
// it, can be touched here.
func (e *Engine) Apply(l *ledger.Ledger, txID hash.H256, raw []byte) (consensus.ApplyResult, error) {
	t, err := decodeTransfer(raw)
	if err != nil {
		return consensus.ApplyFail, nil
	}

	fromTag := accountTag(t.From)
	from, err := readAccount(l, fromTag)
	if err != nil {
		return consensus.ApplyFail, nil
	}
	if from.Sequence+1 != t.Sequence {
		return consensus.ApplyRetry, nil
	}
	if from.Balance < t.Amount {
		return consensus.ApplyFail, nil
	}

	toTag := accountTag(t.To)
	to, err := readAccount(l, toTag)
	if err != nil {
		return consensus.ApplyFail, nil
	}

	from.Balance -= t.Amount
	from.Sequence = t.Sequence
	to.Balance += t.Amount

	if err := writeAccount(l, fromTag, from); err != nil {
		return consensus.ApplyFail, err
	}
	if err := writeAccount(l, toTag, to); err != nil {
		return consensus.ApplyFail, err
	}
	return consensus.ApplySuccess, nil
}

func readAccount(l *ledger.Ledger, tag hash.H256) (Account, error) {
	raw, err := l.ReadState(tag)
	if err != nil {
		if errors.Is(err, ledger.ErrNoEntry) {
			return Account{}, nil
		}
		return Account{}, err
	}
	return decodeAccount(raw)
}

func writeAccount(l *ledger.Ledger, tag hash.H256, a Account) error {
	raw := encodeAccount(a)
	sm := l.StateMap()
	has, err := sm.Has(tag)
	if err != nil {
		return err
	}
	if has {
		_, err := sm.Update(shamap.NewItem(tag, raw))
		return err
	}
	_, err = sm.Add(shamap.NewItem(tag, raw), shamap.LeafAccountState)
	return err
}

var _ consensus.Applier = (*Engine)(nil)
