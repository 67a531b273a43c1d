/*
Package sqlite provides the SQLite-backed UnitOfWork.

PURPOSE:
  Production persistence for accounts, chain heads, and entries. The same
  patterns apply to PostgreSQL - only minor SQL dialect differences (there,
  GetHeadForUpdate becomes SELECT ... FOR UPDATE).

APPEND-ONLY ENFORCEMENT:
  No UPDATE or DELETE ever touches ledger_entries. The only mutable rows
  are accounts (balance) and ledger_heads (tip).

KEY TABLES:
  accounts:       id, unique number, balance and credit limit in minor units
  ledger_heads:   one row per account; the append serialization point
  ledger_entries: the immutable chain; UNIQUE(hash), UNIQUE(account_id, height)

HEIGHT ORDERING:
  Heights are stored as decimal text so they never overflow. Plain text
  ordering would put '10' before '2', so chain scans order by
  (LENGTH(height), height), which is numeric order for non-negative decimal
  strings without leading zeros.

CONCURRENCY:
  A store-wide RWMutex serializes mutating transactions; with a single
  writer, SQLite's default (serializable) isolation gives every ReadWrite
  the semantics the operations assume, and the mutex doubles as the head
  write lock. WAL mode keeps readers unblocked. Residual busy/locked and
  unique-constraint failures surface as ledger.ErrConflict so callers can
  retry safely.

SEE ALSO:
  - ledger/ports.go: the interfaces implemented here
  - ledger/store/memory.go: in-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/warp/chainledger/ledger"
)

// Store implements ledger.UnitOfWork on SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// New opens (or creates) the database at dbPath and migrates the schema.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// One connection: ":memory:" databases are per-connection, and the
	// store serializes writers anyway.
	db.SetMaxOpenConns(1)

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS accounts (
		id TEXT PRIMARY KEY,
		number TEXT NOT NULL UNIQUE,
		balance_cents INTEGER NOT NULL,
		credit_limit_cents INTEGER NOT NULL CHECK (credit_limit_cents >= 0),
		created_at TEXT NOT NULL
	);

	-- One head per account: the chain tip and append serialization point.
	CREATE TABLE IF NOT EXISTS ledger_heads (
		account_id TEXT PRIMARY KEY REFERENCES accounts(id),
		head_hash TEXT,
		height TEXT NOT NULL DEFAULT '0'
	);

	-- Append-only chain. Never updated, never deleted.
	CREATE TABLE IF NOT EXISTS ledger_entries (
		id TEXT PRIMARY KEY,
		account_id TEXT NOT NULL REFERENCES accounts(id),
		type TEXT NOT NULL,
		amount_cents INTEGER NOT NULL,
		fee_cents INTEGER NOT NULL,
		occurred_at TEXT NOT NULL,
		description TEXT,
		prev_hash TEXT,
		hash TEXT NOT NULL UNIQUE,
		height TEXT NOT NULL,
		related_tx_id TEXT,
		created_at TEXT NOT NULL
	);

	-- Heights are dense and unique per account.
	CREATE UNIQUE INDEX IF NOT EXISTS idx_entries_account_height
		ON ledger_entries(account_id, height);

	-- Audit listing filters on occurred_at.
	CREATE INDEX IF NOT EXISTS idx_entries_account_occurred
		ON ledger_entries(account_id, occurred_at);
	`

	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// UNIT OF WORK
// =============================================================================

// ReadWrite runs fn in one atomic transaction, serialized across the store.
func (s *Store) ReadWrite(ctx context.Context, fn func(tx ledger.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return mapErr(err)
	}
	defer tx.Rollback()

	if err := fn(&sqlTx{tx: tx}); err != nil {
		return err
	}
	return mapErr(tx.Commit())
}

// ReadOnly runs fn in a read-consistent transaction.
func (s *Store) ReadOnly(ctx context.Context, fn func(tx ledger.Tx) error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return mapErr(err)
	}
	defer tx.Rollback()

	if err := fn(&sqlTx{tx: tx, readonly: true}); err != nil {
		return err
	}
	return mapErr(tx.Commit())
}

type sqlTx struct {
	tx       *sql.Tx
	readonly bool
}

func (t *sqlTx) Accounts() ledger.AccountRepository { return &accountRepo{t} }
func (t *sqlTx) Ledger() ledger.LedgerRepository    { return &ledgerRepo{t} }

// =============================================================================
// ACCOUNT REPOSITORY
// =============================================================================

type accountRepo struct {
	t *sqlTx
}

func (r *accountRepo) FindByNumber(ctx context.Context, number string) (*ledger.Account, error) {
	return r.scanOne(ctx, `SELECT id, number, balance_cents, credit_limit_cents FROM accounts WHERE number = ?`, number)
}

func (r *accountRepo) FindByID(ctx context.Context, id string) (*ledger.Account, error) {
	return r.scanOne(ctx, `SELECT id, number, balance_cents, credit_limit_cents FROM accounts WHERE id = ?`, id)
}

func (r *accountRepo) scanOne(ctx context.Context, query string, arg any) (*ledger.Account, error) {
	var (
		id, number           string
		balance, creditLimit int64
	)
	err := r.t.tx.QueryRowContext(ctx, query, arg).Scan(&id, &number, &balance, &creditLimit)
	if err == sql.ErrNoRows {
		return nil, ledger.ErrAccountNotFound
	}
	if err != nil {
		return nil, mapErr(err)
	}
	return ledger.NewAccount(id, number, ledger.NewMoney(balance), ledger.NewMoney(creditLimit)), nil
}

func (r *accountRepo) Save(ctx context.Context, a *ledger.Account) error {
	if r.t.readonly {
		return ledger.ErrReadOnlyTx
	}
	_, err := r.t.tx.ExecContext(ctx,
		`UPDATE accounts SET balance_cents = ? WHERE id = ?`,
		a.Balance().Cents(), a.ID,
	)
	return mapErr(err)
}

func (r *accountRepo) Create(ctx context.Context, a *ledger.Account) error {
	if r.t.readonly {
		return ledger.ErrReadOnlyTx
	}
	_, err := r.t.tx.ExecContext(ctx,
		`INSERT INTO accounts (id, number, balance_cents, credit_limit_cents, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		a.ID, a.Number, a.Balance().Cents(), a.CreditLimit().Cents(),
		time.Now().UTC().Format(time.RFC3339),
	)
	return mapErr(err)
}

// =============================================================================
// LEDGER REPOSITORY
// =============================================================================

type ledgerRepo struct {
	t *sqlTx
}

func (r *ledgerRepo) GetHead(ctx context.Context, accountID string) (*ledger.LedgerHead, error) {
	var (
		hash   sql.NullString
		height string
	)
	err := r.t.tx.QueryRowContext(ctx,
		`SELECT head_hash, height FROM ledger_heads WHERE account_id = ?`, accountID,
	).Scan(&hash, &height)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, mapErr(err)
	}

	h, err := ledger.ParseHeight(height)
	if err != nil {
		return nil, fmt.Errorf("corrupt head height for account %s: %w", accountID, err)
	}
	return &ledger.LedgerHead{AccountID: accountID, HeadHash: hash.String, Height: h}, nil
}

func (r *ledgerRepo) GetHeadForUpdate(ctx context.Context, accountID string) (*ledger.LedgerHead, error) {
	if r.t.readonly {
		return nil, ledger.ErrReadOnlyTx
	}
	// The store mutex serializes writers, so the enclosing transaction
	// already owns the only write lock there is.
	head, err := r.GetHead(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if head != nil {
		return head, nil
	}

	head = ledger.NewLedgerHead(accountID)
	_, err = r.t.tx.ExecContext(ctx,
		`INSERT INTO ledger_heads (account_id, head_hash, height) VALUES (?, NULL, '0')`,
		accountID,
	)
	if err != nil {
		return nil, mapErr(err)
	}
	return head, nil
}

func (r *ledgerRepo) Append(ctx context.Context, e *ledger.LedgerEntry) error {
	if r.t.readonly {
		return ledger.ErrReadOnlyTx
	}
	_, err := r.t.tx.ExecContext(ctx,
		`INSERT INTO ledger_entries
		 (id, account_id, type, amount_cents, fee_cents, occurred_at, description,
		  prev_hash, hash, height, related_tx_id, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.AccountID, string(e.Type), e.Amount.Cents(), e.Fee.Cents(),
		e.OccurredAt.ISO(), nullString(e.Description),
		nullString(e.PrevHash), e.Hash, e.Height.String(), nullString(e.RelatedTxID),
		time.Now().UTC().Format(time.RFC3339),
	)
	return mapErr(err)
}

func (r *ledgerRepo) AdvanceHead(ctx context.Context, h *ledger.LedgerHead) error {
	if r.t.readonly {
		return ledger.ErrReadOnlyTx
	}
	_, err := r.t.tx.ExecContext(ctx,
		`UPDATE ledger_heads SET head_hash = ?, height = ? WHERE account_id = ?`,
		nullString(h.HeadHash), h.Height.String(), h.AccountID,
	)
	return mapErr(err)
}

const entryColumns = `id, account_id, type, amount_cents, fee_cents, occurred_at,
	description, prev_hash, hash, height, related_tx_id`

func (r *ledgerRepo) ListByAccount(ctx context.Context, accountID string) ([]ledger.LedgerEntry, error) {
	query := `SELECT ` + entryColumns + `
		FROM ledger_entries
		WHERE account_id = ?
		ORDER BY LENGTH(height), height`
	return r.queryEntries(ctx, query, accountID)
}

func (r *ledgerRepo) ListPage(ctx context.Context, accountID string, q ledger.EntryQuery) ([]ledger.LedgerEntry, int, error) {
	where := []string{"account_id = ?"}
	args := []any{accountID}

	if q.Type != "" {
		where = append(where, "type = ?")
		args = append(args, string(q.Type))
	}
	if q.From != nil {
		where = append(where, "occurred_at >= ?")
		args = append(args, ledger.OccurredAtFrom(*q.From).ISO())
	}
	if q.To != nil {
		where = append(where, "occurred_at < ?")
		args = append(args, ledger.OccurredAtFrom(*q.To).ISO())
	}
	cond := strings.Join(where, " AND ")

	var total int
	err := r.t.tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM ledger_entries WHERE `+cond, args...,
	).Scan(&total)
	if err != nil {
		return nil, 0, mapErr(err)
	}

	query := `SELECT ` + entryColumns + `
		FROM ledger_entries
		WHERE ` + cond + `
		ORDER BY LENGTH(height), height
		LIMIT ? OFFSET ?`
	args = append(args, q.Limit, (q.Page-1)*q.Limit)

	entries, err := r.queryEntries(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	return entries, total, nil
}

func (r *ledgerRepo) FindByHash(ctx context.Context, hash string) (*ledger.LedgerEntry, error) {
	entries, err := r.queryEntries(ctx,
		`SELECT `+entryColumns+` FROM ledger_entries WHERE hash = ?`, hash)
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, ledger.ErrEntryNotFound
	}
	return &entries[0], nil
}

func (r *ledgerRepo) queryEntries(ctx context.Context, query string, args ...any) ([]ledger.LedgerEntry, error) {
	rows, err := r.t.tx.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, mapErr(err)
	}
	defer rows.Close()

	var entries []ledger.LedgerEntry
	for rows.Next() {
		var (
			e                              ledger.LedgerEntry
			amount, fee                    int64
			occurredAt, height             string
			description, prevHash, related sql.NullString
		)
		if err := rows.Scan(
			&e.ID, &e.AccountID, (*string)(&e.Type), &amount, &fee, &occurredAt,
			&description, &prevHash, &e.Hash, &height, &related,
		); err != nil {
			return nil, mapErr(err)
		}

		e.Amount = ledger.NewMoney(amount)
		e.Fee = ledger.NewMoney(fee)
		e.Description = description.String
		e.PrevHash = prevHash.String
		e.RelatedTxID = related.String

		e.OccurredAt, err = ledger.ParseOccurredAt(occurredAt)
		if err != nil {
			return nil, fmt.Errorf("corrupt occurred_at on entry %s: %w", e.ID, err)
		}
		e.Height, err = ledger.ParseHeight(height)
		if err != nil {
			return nil, fmt.Errorf("corrupt height on entry %s: %w", e.ID, err)
		}

		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// =============================================================================
// HELPERS
// =============================================================================

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

// mapErr translates store-level contention into ledger.ErrConflict so the
// caller can classify it as retryable.
func mapErr(err error) error {
	if err == nil {
		return nil
	}
	msg := err.Error()
	if strings.Contains(msg, "UNIQUE constraint failed") ||
		strings.Contains(msg, "database is locked") ||
		strings.Contains(msg, "database table is locked") {
		return fmt.Errorf("%w: %v", ledger.ErrConflict, err)
	}
	return err
}
