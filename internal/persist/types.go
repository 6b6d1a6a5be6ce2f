// Package persist implements the relational side of external storage: the
// Ledgers, Transactions and Validations tables, behind one concrete Store
// type with a sqlite-backed default and a postgres-backed alternate.
package persist

import (
	"time"

	"github.com/ledgerforge/ledgerd/internal/hash"
)

// TxStatus is a transaction's disposition as recorded in the historical index.
type TxStatus byte

const (
	TxStatusNew        TxStatus = 'N'
	TxStatusApplied    TxStatus = 'A'
	TxStatusConflicted TxStatus = 'C'
	TxStatusDropped    TxStatus = 'D'
	TxStatusHeld       TxStatus = 'H'
)

func (s TxStatus) String() string { return string(rune(s)) }

// LedgerRecord is one row of the Ledgers table: a C3 header, flattened.
type LedgerRecord struct {
	Hash                hash.H256
	Seq                 uint32
	ParentHash          hash.H256
	CloseTime           time.Time
	CloseTimeResolution time.Duration
	CloseAgree          bool
	TxRoot              hash.H256
	StateRoot           hash.H256
	FeeHeld             uint64
}

// TransactionRecord is one row of the Transactions table: C4's historical
// index entry for a submitted transaction.
type TransactionRecord struct {
	TxID      hash.H256
	FromAcct  hash.H160
	FromSeq   uint32
	LedgerSeq uint32
	Status    TxStatus
	Raw       []byte
}

// ValidationRecord is one row of the Validations table: a C5 validation kept
// for forensics after it has been superseded in the in-memory indexes.
type ValidationRecord struct {
	LedgerHash hash.H256
	NodePubkey []byte
	SignTime   time.Time
	Raw        []byte
}
