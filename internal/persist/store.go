package persist

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"github.com/ledgerforge/ledgerd/internal/hash"
)

// Store is the relational side of external storage: Ledgers, Transactions
// and Validations, behind one type so the node can run on an embedded
// sqlite file or a shared postgres instance without the rest of the system
// caring which.
type Store struct {
	db     *sql.DB
	driver string
	log    *slog.Logger
}

// Open opens (and schema-initializes) a Store per cfg.
func Open(cfg *Config, log *slog.Logger) (*Store, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if log == nil {
		log = slog.Default()
	}

	sqlDriver := cfg.Driver
	if sqlDriver == "postgres" {
		sqlDriver = "postgres"
	} else {
		sqlDriver = "sqlite"
	}

	db, err := sql.Open(sqlDriver, cfg.dsn())
	if err != nil {
		return nil, fmt.Errorf("persist: open %s: %w", cfg.Driver, err)
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	if cfg.Driver == "sqlite" {
		// sqlite only tolerates one writer; serialize through a single conn
		// rather than contend on SQLITE_BUSY.
		db.SetMaxOpenConns(1)
	}

	if err := db.PingContext(context.Background()); err != nil {
		db.Close()
		return nil, fmt.Errorf("persist: ping %s: %w", cfg.Driver, err)
	}

	s := &Store{db: db, driver: cfg.Driver, log: log}
	if err := s.initSchema(context.Background()); err != nil {
		db.Close()
		return nil, fmt.Errorf("persist: init schema: %w", err)
	}
	return s, nil
}

func (s *Store) Close() error { return s.db.Close() }

// ph renders the nth (1-based) bind placeholder for the active driver.
func (s *Store) ph(n int) string {
	if s.driver == "postgres" {
		return fmt.Sprintf("$%d", n)
	}
	return "?"
}

func (s *Store) initSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS ledgers (
			hash BLOB PRIMARY KEY,
			seq INTEGER NOT NULL,
			parent_hash BLOB NOT NULL,
			close_time INTEGER NOT NULL,
			close_resolution INTEGER NOT NULL,
			close_agree INTEGER NOT NULL,
			tx_root BLOB NOT NULL,
			state_root BLOB NOT NULL,
			fee_held INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS ledgers_seq_idx ON ledgers(seq)`,
		`CREATE TABLE IF NOT EXISTS transactions (
			tx_id BLOB PRIMARY KEY,
			from_acct BLOB NOT NULL,
			from_seq INTEGER NOT NULL,
			ledger_seq INTEGER NOT NULL,
			status CHAR(1) NOT NULL,
			raw BLOB NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS transactions_ledger_seq_idx ON transactions(ledger_seq)`,
		`CREATE TABLE IF NOT EXISTS validations (
			ledger_hash BLOB NOT NULL,
			node_pubkey BLOB NOT NULL,
			sign_time INTEGER NOT NULL,
			raw BLOB NOT NULL,
			PRIMARY KEY (ledger_hash, node_pubkey)
		)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("persist: exec %q: %w", stmt, err)
		}
	}
	return nil
}

// SaveLedger inserts a C3 ledger header into the historical index. Re-saving
// the same hash is treated as a no-op (ledgers are immutable once accepted).
func (s *Store) SaveLedger(ctx context.Context, l *LedgerRecord) error {
	query := fmt.Sprintf(`INSERT INTO ledgers
		(hash, seq, parent_hash, close_time, close_resolution, close_agree, tx_root, state_root, fee_held)
		VALUES (%s, %s, %s, %s, %s, %s, %s, %s, %s)`,
		s.ph(1), s.ph(2), s.ph(3), s.ph(4), s.ph(5), s.ph(6), s.ph(7), s.ph(8), s.ph(9))
	if s.driver == "sqlite" {
		query = insertOrIgnore(query)
	} else {
		query += " ON CONFLICT (hash) DO NOTHING"
	}
	_, err := s.db.ExecContext(ctx, query,
		l.Hash[:], l.Seq, l.ParentHash[:], l.CloseTime.Unix(), int64(l.CloseTimeResolution.Seconds()),
		boolToInt(l.CloseAgree), l.TxRoot[:], l.StateRoot[:], l.FeeHeld)
	if err != nil {
		return fmt.Errorf("persist: save ledger: %w", err)
	}
	return nil
}

// LedgerBySeq reads a ledger header by sequence.
func (s *Store) LedgerBySeq(ctx context.Context, seq uint32) (*LedgerRecord, error) {
	query := fmt.Sprintf(`SELECT hash, seq, parent_hash, close_time, close_resolution, close_agree, tx_root, state_root, fee_held
		FROM ledgers WHERE seq = %s`, s.ph(1))
	return s.scanLedger(s.db.QueryRowContext(ctx, query, seq))
}

// LedgerByHash reads a ledger header by hash.
func (s *Store) LedgerByHash(ctx context.Context, h hash.H256) (*LedgerRecord, error) {
	query := fmt.Sprintf(`SELECT hash, seq, parent_hash, close_time, close_resolution, close_agree, tx_root, state_root, fee_held
		FROM ledgers WHERE hash = %s`, s.ph(1))
	return s.scanLedger(s.db.QueryRowContext(ctx, query, h[:]))
}

func (s *Store) scanLedger(row *sql.Row) (*LedgerRecord, error) {
	var rec LedgerRecord
	var hashB, parentB, txRootB, stateRootB []byte
	var closeTime, closeRes int64
	var agree int

	err := row.Scan(&hashB, &rec.Seq, &parentB, &closeTime, &closeRes, &agree, &txRootB, &stateRootB, &rec.FeeHeld)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrLedgerNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("persist: scan ledger: %w", err)
	}

	copy(rec.Hash[:], hashB)
	copy(rec.ParentHash[:], parentB)
	copy(rec.TxRoot[:], txRootB)
	copy(rec.StateRoot[:], stateRootB)
	rec.CloseTime = unixTime(closeTime)
	rec.CloseTimeResolution = secondsDuration(closeRes)
	rec.CloseAgree = agree != 0
	return &rec, nil
}

// SaveTransaction inserts (or overwrites the status of) a transaction's
// historical-index row.
func (s *Store) SaveTransaction(ctx context.Context, t *TransactionRecord) error {
	var query string
	if s.driver == "sqlite" {
		query = fmt.Sprintf(`INSERT INTO transactions (tx_id, from_acct, from_seq, ledger_seq, status, raw)
			VALUES (%s, %s, %s, %s, %s, %s)
			ON CONFLICT(tx_id) DO UPDATE SET status = excluded.status, ledger_seq = excluded.ledger_seq`,
			s.ph(1), s.ph(2), s.ph(3), s.ph(4), s.ph(5), s.ph(6))
	} else {
		query = fmt.Sprintf(`INSERT INTO transactions (tx_id, from_acct, from_seq, ledger_seq, status, raw)
			VALUES (%s, %s, %s, %s, %s, %s)
			ON CONFLICT (tx_id) DO UPDATE SET status = excluded.status, ledger_seq = excluded.ledger_seq`,
			s.ph(1), s.ph(2), s.ph(3), s.ph(4), s.ph(5), s.ph(6))
	}
	_, err := s.db.ExecContext(ctx, query, t.TxID[:], t.FromAcct[:], t.FromSeq, t.LedgerSeq, string(rune(t.Status)), t.Raw)
	if err != nil {
		return fmt.Errorf("persist: save transaction: %w", err)
	}
	return nil
}

// TransactionByID reads a transaction's historical-index row.
func (s *Store) TransactionByID(ctx context.Context, txID hash.H256) (*TransactionRecord, error) {
	query := fmt.Sprintf(`SELECT tx_id, from_acct, from_seq, ledger_seq, status, raw FROM transactions WHERE tx_id = %s`, s.ph(1))
	row := s.db.QueryRowContext(ctx, query, txID[:])

	var rec TransactionRecord
	var txIDB, fromAcctB []byte
	var status string
	err := row.Scan(&txIDB, &fromAcctB, &rec.FromSeq, &rec.LedgerSeq, &status, &rec.Raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrTransactionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("persist: scan transaction: %w", err)
	}
	copy(rec.TxID[:], txIDB)
	copy(rec.FromAcct[:], fromAcctB)
	if len(status) > 0 {
		rec.Status = TxStatus(status[0])
	}
	return &rec, nil
}

// SaveValidation inserts one forensic validation record. Once a validation
// is superseded in the in-memory `current` index it still lives on here
// for later audit.
func (s *Store) SaveValidation(ctx context.Context, v *ValidationRecord) error {
	var query string
	if s.driver == "sqlite" {
		query = fmt.Sprintf(`INSERT INTO validations (ledger_hash, node_pubkey, sign_time, raw)
			VALUES (%s, %s, %s, %s) ON CONFLICT(ledger_hash, node_pubkey) DO NOTHING`,
			s.ph(1), s.ph(2), s.ph(3), s.ph(4))
	} else {
		query = fmt.Sprintf(`INSERT INTO validations (ledger_hash, node_pubkey, sign_time, raw)
			VALUES (%s, %s, %s, %s) ON CONFLICT (ledger_hash, node_pubkey) DO NOTHING`,
			s.ph(1), s.ph(2), s.ph(3), s.ph(4))
	}
	_, err := s.db.ExecContext(ctx, query, v.LedgerHash[:], v.NodePubkey, v.SignTime.Unix(), v.Raw)
	if err != nil {
		return fmt.Errorf("persist: save validation: %w", err)
	}
	return nil
}

// ValidationsForLedger returns every forensic validation recorded for a ledger hash.
func (s *Store) ValidationsForLedger(ctx context.Context, ledgerHash hash.H256) ([]*ValidationRecord, error) {
	query := fmt.Sprintf(`SELECT ledger_hash, node_pubkey, sign_time, raw FROM validations WHERE ledger_hash = %s`, s.ph(1))
	rows, err := s.db.QueryContext(ctx, query, ledgerHash[:])
	if err != nil {
		return nil, fmt.Errorf("persist: query validations: %w", err)
	}
	defer rows.Close()

	var out []*ValidationRecord
	for rows.Next() {
		var rec ValidationRecord
		var hashB []byte
		var signTime int64
		if err := rows.Scan(&hashB, &rec.NodePubkey, &signTime, &rec.Raw); err != nil {
			return nil, fmt.Errorf("persist: scan validation: %w", err)
		}
		copy(rec.LedgerHash[:], hashB)
		rec.SignTime = unixTime(signTime)
		out = append(out, &rec)
	}
	return out, rows.Err()
}

func insertOrIgnore(query string) string {
	return query[:len("INSERT")] + " OR IGNORE" + query[len("INSERT"):]
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
