package persist

import "errors"

var (
	ErrLedgerNotFound      = errors.New("persist: ledger not found")
	ErrTransactionNotFound = errors.New("persist: transaction not found")
	ErrDuplicateLedger     = errors.New("persist: ledger already recorded")
	ErrUnsupportedDriver   = errors.New("persist: unsupported driver")
	ErrClosed              = errors.New("persist: store is closed")
)
