/*
Package store provides an in-memory UnitOfWork for tests and development.

TRANSACTION MODEL:
  Mutating transactions are fully serialized by a store-wide mutex - the
  strictest isolation this store can offer - and stage every write on the
  side. The staged state is applied to the base maps only when fn returns
  nil; an error discards it, so a failed batch leaves no trace. Read-only
  transactions run concurrently under the read lock and never see staged
  state from a writer.

READ-YOUR-WRITES:
  Within one mutating transaction, reads consult the staged state first, so
  a batch item sees the balances and heads produced by earlier items of the
  same batch.
*/
package store

import (
	"context"
	"fmt"
	"sync"

	"github.com/warp/chainledger/ledger"
)

type entryRef struct {
	accountID string
	index     int
}

// Memory is an in-memory implementation of ledger.UnitOfWork.
type Memory struct {
	mu       sync.RWMutex
	accounts map[string]*ledger.Account      // by id
	numbers  map[string]string               // number -> id
	heads    map[string]*ledger.LedgerHead   // by account id
	entries  map[string][]ledger.LedgerEntry // by account id, ascending height
	byHash   map[string]entryRef
}

func NewMemory() *Memory {
	return &Memory{
		accounts: make(map[string]*ledger.Account),
		numbers:  make(map[string]string),
		heads:    make(map[string]*ledger.LedgerHead),
		entries:  make(map[string][]ledger.LedgerEntry),
		byHash:   make(map[string]entryRef),
	}
}

// ReadWrite runs fn in a serialized, staged transaction.
func (m *Memory) ReadWrite(ctx context.Context, fn func(tx ledger.Tx) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	t := &memTx{
		store:    m,
		accounts: make(map[string]*ledger.Account),
		created:  make(map[string]*ledger.Account),
		heads:    make(map[string]*ledger.LedgerHead),
		appended: make(map[string][]ledger.LedgerEntry),
	}
	if err := fn(t); err != nil {
		return err
	}
	t.commit()
	return nil
}

// ReadOnly runs fn against the committed state under the read lock.
func (m *Memory) ReadOnly(ctx context.Context, fn func(tx ledger.Tx) error) error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return fn(&memTx{store: m, readonly: true})
}

// =============================================================================
// TRANSACTION
// =============================================================================

type memTx struct {
	store    *Memory
	readonly bool

	accounts map[string]*ledger.Account      // staged balance mutations
	created  map[string]*ledger.Account      // staged provisions
	heads    map[string]*ledger.LedgerHead   // staged head advances
	appended map[string][]ledger.LedgerEntry // staged appends
}

func (t *memTx) Accounts() ledger.AccountRepository { return (*memAccounts)(t) }
func (t *memTx) Ledger() ledger.LedgerRepository    { return (*memLedger)(t) }

func (t *memTx) commit() {
	m := t.store
	for id, a := range t.accounts {
		m.accounts[id] = a
	}
	for id, a := range t.created {
		m.accounts[id] = a
		m.numbers[a.Number] = id
	}
	for id, h := range t.heads {
		m.heads[id] = h
	}
	for accID, list := range t.appended {
		for _, e := range list {
			m.byHash[e.Hash] = entryRef{accountID: accID, index: len(m.entries[accID])}
			m.entries[accID] = append(m.entries[accID], e)
		}
	}
}

// stagedAccount returns the transaction's view of an account by id, or nil.
func (t *memTx) stagedAccount(id string) *ledger.Account {
	if a, ok := t.accounts[id]; ok {
		return a
	}
	if a, ok := t.created[id]; ok {
		return a
	}
	return nil
}

// view returns the transaction's view of all entries for an account.
func (t *memTx) view(accountID string) []ledger.LedgerEntry {
	base := t.store.entries[accountID]
	if t.readonly || len(t.appended[accountID]) == 0 {
		return base
	}
	out := make([]ledger.LedgerEntry, 0, len(base)+len(t.appended[accountID]))
	out = append(out, base...)
	out = append(out, t.appended[accountID]...)
	return out
}

// =============================================================================
// ACCOUNT REPOSITORY
// =============================================================================

type memAccounts memTx

func (r *memAccounts) FindByNumber(ctx context.Context, number string) (*ledger.Account, error) {
	t := (*memTx)(r)
	if !t.readonly {
		for _, a := range t.created {
			if a.Number == number {
				return a.Clone(), nil
			}
		}
	}
	id, ok := t.store.numbers[number]
	if !ok {
		return nil, ledger.ErrAccountNotFound
	}
	return r.FindByID(ctx, id)
}

func (r *memAccounts) FindByID(_ context.Context, id string) (*ledger.Account, error) {
	t := (*memTx)(r)
	if !t.readonly {
		if a := t.stagedAccount(id); a != nil {
			return a.Clone(), nil
		}
	}
	a, ok := t.store.accounts[id]
	if !ok {
		return nil, ledger.ErrAccountNotFound
	}
	return a.Clone(), nil
}

func (r *memAccounts) Save(_ context.Context, a *ledger.Account) error {
	t := (*memTx)(r)
	if t.readonly {
		return ledger.ErrReadOnlyTx
	}
	t.accounts[a.ID] = a.Clone()
	return nil
}

func (r *memAccounts) Create(_ context.Context, a *ledger.Account) error {
	t := (*memTx)(r)
	if t.readonly {
		return ledger.ErrReadOnlyTx
	}
	if _, exists := t.store.numbers[a.Number]; exists {
		return fmt.Errorf("%w: account number %s already exists", ledger.ErrConflict, a.Number)
	}
	for _, c := range t.created {
		if c.Number == a.Number {
			return fmt.Errorf("%w: account number %s already exists", ledger.ErrConflict, a.Number)
		}
	}
	t.created[a.ID] = a.Clone()
	return nil
}

// =============================================================================
// LEDGER REPOSITORY
// =============================================================================

type memLedger memTx

func (r *memLedger) GetHead(_ context.Context, accountID string) (*ledger.LedgerHead, error) {
	t := (*memTx)(r)
	if !t.readonly {
		if h, ok := t.heads[accountID]; ok {
			return h.Clone(), nil
		}
	}
	h, ok := t.store.heads[accountID]
	if !ok {
		return nil, nil
	}
	return h.Clone(), nil
}

func (r *memLedger) GetHeadForUpdate(_ context.Context, accountID string) (*ledger.LedgerHead, error) {
	t := (*memTx)(r)
	if t.readonly {
		return nil, ledger.ErrReadOnlyTx
	}
	// The store mutex serializes writers, so holding it IS the head lock.
	if h, ok := t.heads[accountID]; ok {
		return h.Clone(), nil
	}
	if h, ok := t.store.heads[accountID]; ok {
		return h.Clone(), nil
	}
	return ledger.NewLedgerHead(accountID), nil
}

func (r *memLedger) Append(_ context.Context, e *ledger.LedgerEntry) error {
	t := (*memTx)(r)
	if t.readonly {
		return ledger.ErrReadOnlyTx
	}
	if _, dup := t.store.byHash[e.Hash]; dup {
		return fmt.Errorf("%w: duplicate entry hash", ledger.ErrConflict)
	}
	t.appended[e.AccountID] = append(t.appended[e.AccountID], *e)
	return nil
}

func (r *memLedger) AdvanceHead(_ context.Context, h *ledger.LedgerHead) error {
	t := (*memTx)(r)
	if t.readonly {
		return ledger.ErrReadOnlyTx
	}
	t.heads[h.AccountID] = h.Clone()
	return nil
}

func (r *memLedger) ListByAccount(_ context.Context, accountID string) ([]ledger.LedgerEntry, error) {
	t := (*memTx)(r)
	view := t.view(accountID)
	out := make([]ledger.LedgerEntry, len(view))
	copy(out, view)
	return out, nil
}

func (r *memLedger) ListPage(_ context.Context, accountID string, q ledger.EntryQuery) ([]ledger.LedgerEntry, int, error) {
	t := (*memTx)(r)

	var matched []ledger.LedgerEntry
	for _, e := range t.view(accountID) {
		if !matchesQuery(e, q) {
			continue
		}
		matched = append(matched, e)
	}

	total := len(matched)
	offset := (q.Page - 1) * q.Limit
	if offset >= total {
		return nil, total, nil
	}
	end := offset + q.Limit
	if end > total {
		end = total
	}
	return matched[offset:end], total, nil
}

func (r *memLedger) FindByHash(_ context.Context, hash string) (*ledger.LedgerEntry, error) {
	t := (*memTx)(r)
	if ref, ok := t.store.byHash[hash]; ok {
		e := t.store.entries[ref.accountID][ref.index]
		return &e, nil
	}
	if !t.readonly {
		for _, list := range t.appended {
			for _, e := range list {
				if e.Hash == hash {
					out := e
					return &out, nil
				}
			}
		}
	}
	return nil, ledger.ErrEntryNotFound
}

func matchesQuery(e ledger.LedgerEntry, q ledger.EntryQuery) bool {
	if q.Type != "" && e.Type != q.Type {
		return false
	}
	at := e.OccurredAt.Time()
	if q.From != nil && at.Before(*q.From) {
		return false
	}
	if q.To != nil && !at.Before(*q.To) {
		return false
	}
	return true
}
