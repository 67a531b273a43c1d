/*
ports.go - Persistence boundary consumed by the operations

PURPOSE:
  The core never talks to a concrete store. It sees two repositories behind
  a transaction-scoped Tx, handed out by a UnitOfWork. The Tx is threaded
  explicitly through every call - never ambient state - so that nested calls
  (batch invoking deposit/withdraw/transfer) compose inside one atomic scope.

CONTRACTS:
  - ReadWrite runs fn inside one atomic transaction at the strictest
    isolation the store offers. fn returning an error rolls everything back.
  - GetHeadForUpdate write-locks the account's head until commit or
    rollback, creating it (height 0, empty hash) if absent. Every mutating
    operation acquires this lock early and holds it to commit; that is what
    serializes appends per account.
  - Entries are write-once: Append only, no update, no delete.

IMPLEMENTATIONS:
  - store (memory): staging store for tests and dev
  - store/sqlite:   production store
*/
package ledger

import (
	"context"
	"time"
)

// AccountRepository resolves and persists accounts.
type AccountRepository interface {
	// FindByNumber returns ErrAccountNotFound when absent.
	FindByNumber(ctx context.Context, number string) (*Account, error)

	// FindByID returns ErrAccountNotFound when absent.
	FindByID(ctx context.Context, id string) (*Account, error)

	// Save persists a mutated balance.
	Save(ctx context.Context, a *Account) error

	// Create provisions a new account (seeding and tests; account
	// provisioning is otherwise external to the core).
	Create(ctx context.Context, a *Account) error
}

// EntryQuery selects a page of a chain for the audit surface.
type EntryQuery struct {
	Type  OperationType // optional filter; "" means all
	From  *time.Time    // optional occurred-at lower bound (inclusive)
	To    *time.Time    // optional occurred-at upper bound (exclusive)
	Page  int           // 1-based
	Limit int
}

// LedgerRepository persists chain entries and heads.
type LedgerRepository interface {
	// GetHead returns the account's head, or nil when the chain is empty
	// and no head row exists yet. Not locked.
	GetHead(ctx context.Context, accountID string) (*LedgerHead, error)

	// GetHeadForUpdate write-locks and returns the account's head,
	// creating an empty one if absent. The lock is held until the
	// enclosing transaction commits or rolls back.
	GetHeadForUpdate(ctx context.Context, accountID string) (*LedgerHead, error)

	// Append inserts a new immutable entry.
	Append(ctx context.Context, e *LedgerEntry) error

	// AdvanceHead persists the head's current hash and height. Always the
	// last step of an append, in the same transaction as the insert.
	AdvanceHead(ctx context.Context, h *LedgerHead) error

	// ListByAccount returns all entries for an account, ascending height.
	ListByAccount(ctx context.Context, accountID string) ([]LedgerEntry, error)

	// ListPage returns one page of entries (ascending height) and the
	// total count matching the query.
	ListPage(ctx context.Context, accountID string, q EntryQuery) ([]LedgerEntry, int, error)

	// FindByHash returns ErrEntryNotFound when no entry carries the hash.
	FindByHash(ctx context.Context, hash string) (*LedgerEntry, error)
}

// Tx is the transaction-scoped repository context.
type Tx interface {
	Accounts() AccountRepository
	Ledger() LedgerRepository
}

// UnitOfWork is the atomicity boundary: all reads and writes of one logical
// operation happen inside one fn invocation.
type UnitOfWork interface {
	// ReadWrite runs fn in an atomic, serializable transaction. If fn
	// returns an error the transaction rolls back and the error is
	// returned unchanged (store-level conflicts map to ErrConflict).
	ReadWrite(ctx context.Context, fn func(tx Tx) error) error

	// ReadOnly runs fn with read-consistent access. Write methods on the
	// Tx fail with ErrReadOnlyTx.
	ReadOnly(ctx context.Context, fn func(tx Tx) error) error
}
