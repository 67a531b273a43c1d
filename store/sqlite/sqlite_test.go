package sqlite

import (
	"context"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/chainledger/ledger"
)

// =============================================================================
// TEST SETUP
// =============================================================================

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func createAccount(t *testing.T, s *Store, id, number, balance, limit string) {
	t.Helper()
	ctx := context.Background()
	err := s.ReadWrite(ctx, func(tx ledger.Tx) error {
		return tx.Accounts().Create(ctx, ledger.NewAccount(
			id, number, ledger.MustParseMoney(balance), ledger.MustParseMoney(limit)))
	})
	require.NoError(t, err)
}

func newTestService(t *testing.T, s *Store) *ledger.Service {
	t.Helper()
	return ledger.NewService(s, ledger.ZeroFeePolicy{}, nil)
}

// =============================================================================
// FULL FLOW
// =============================================================================

func TestSQLite_DepositWithdrawTransferFlow(t *testing.T) {
	store := newTestStore(t)
	createAccount(t, store, "a1", "ACC-001", "100.00", "0.00")
	createAccount(t, store, "a2", "ACC-002", "0.00", "0.00")
	svc := newTestService(t, store)
	ctx := context.Background()

	_, err := svc.Deposit(ctx, ledger.DepositParams{
		AccountNumber: "ACC-001", Amount: ledger.MustParseMoney("50.00"),
	})
	require.NoError(t, err)

	_, err = svc.Withdraw(ctx, ledger.WithdrawParams{
		AccountNumber: "ACC-001", Amount: ledger.MustParseMoney("30.00"),
	})
	require.NoError(t, err)

	_, err = svc.Transfer(ctx, ledger.TransferParams{
		From: "ACC-001", To: "ACC-002", Amount: ledger.MustParseMoney("20.00"),
	})
	require.NoError(t, err)

	a, err := svc.GetBalance(ctx, "ACC-001")
	require.NoError(t, err)
	b, err := svc.GetBalance(ctx, "ACC-002")
	require.NoError(t, err)
	assert.Equal(t, "100.00", a.Balance.String())
	assert.Equal(t, "20.00", b.Balance.String())
	assert.Equal(t, "3", a.Head.Height)
	assert.Equal(t, "1", b.Head.Height)

	for _, number := range []string{"ACC-001", "ACC-002"} {
		v, err := svc.VerifyChain(ctx, number)
		require.NoError(t, err)
		assert.True(t, v.OK, "chain for %s must verify", number)
	}
}

func TestSQLite_RollbackOnError(t *testing.T) {
	store := newTestStore(t)
	createAccount(t, store, "a1", "ACC-001", "10.00", "0.00")
	svc := newTestService(t, store)
	ctx := context.Background()

	// Withdrawal over the limit fails inside the transaction.
	_, err := svc.Withdraw(ctx, ledger.WithdrawParams{
		AccountNumber: "ACC-001", Amount: ledger.MustParseMoney("999.00"),
	})
	require.ErrorIs(t, err, ledger.ErrInsufficientFunds)

	res, err := svc.GetBalance(ctx, "ACC-001")
	require.NoError(t, err)
	assert.Equal(t, "10.00", res.Balance.String())
	assert.Equal(t, "0", res.Head.Height)
}

// =============================================================================
// TAMPER DETECTION
// =============================================================================

func TestSQLite_TamperedAmountIsDetected(t *testing.T) {
	// GIVEN: a three-entry chain
	// WHEN: the second entry's amount is altered directly in the database
	// THEN: verification fails at exactly that height

	store := newTestStore(t)
	createAccount(t, store, "a1", "ACC-001", "0.00", "0.00")
	svc := newTestService(t, store)
	ctx := context.Background()

	var second string
	for i, amount := range []string{"10.00", "20.00", "30.00"} {
		res, err := svc.Deposit(ctx, ledger.DepositParams{
			AccountNumber: "ACC-001", Amount: ledger.MustParseMoney(amount),
		})
		require.NoError(t, err)
		if i == 1 {
			second = res.EntryID
		}
	}

	_, err := store.db.Exec(
		`UPDATE ledger_entries SET amount_cents = 999999 WHERE id = ?`, second)
	require.NoError(t, err)

	v, err := svc.VerifyChain(ctx, "ACC-001")
	require.NoError(t, err)
	assert.False(t, v.OK)
	assert.Equal(t, "2", v.BrokenAt)
}

func TestSQLite_BrokenLinkIsDetected(t *testing.T) {
	store := newTestStore(t)
	createAccount(t, store, "a1", "ACC-001", "0.00", "0.00")
	svc := newTestService(t, store)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := svc.Deposit(ctx, ledger.DepositParams{
			AccountNumber: "ACC-001", Amount: ledger.MustParseMoney("10.00"),
		})
		require.NoError(t, err)
	}

	_, err := store.db.Exec(
		`UPDATE ledger_entries SET prev_hash = 'forged' WHERE account_id = 'a1' AND height = '3'`)
	require.NoError(t, err)

	v, err := svc.VerifyChain(ctx, "ACC-001")
	require.NoError(t, err)
	assert.False(t, v.OK)
	assert.Equal(t, "3", v.BrokenAt)
	assert.Equal(t, "forged", v.GotPrev)
	assert.NotEmpty(t, v.ExpectedPrev)
}

// =============================================================================
// PERSISTENCE
// =============================================================================

func TestSQLite_ChainSurvivesReopen(t *testing.T) {
	// Entries must rehydrate byte-identically or verification of a
	// reopened database would fail.

	path := filepath.Join(t.TempDir(), "ledger.db")

	store, err := New(path)
	require.NoError(t, err)
	createAccount(t, store, "a1", "ACC-001", "0.00", "0.00")
	svc := newTestService(t, store)
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		_, err := svc.Deposit(ctx, ledger.DepositParams{
			AccountNumber: "ACC-001", Amount: ledger.MustParseMoney("25.00"), Description: "payday",
		})
		require.NoError(t, err)
	}
	require.NoError(t, store.Close())

	reopened, err := New(path)
	require.NoError(t, err)
	t.Cleanup(func() { reopened.Close() })
	svc2 := newTestService(t, reopened)

	v, err := svc2.VerifyChain(ctx, "ACC-001")
	require.NoError(t, err)
	assert.True(t, v.OK)
	assert.Equal(t, "4", v.Height)

	bal, err := svc2.GetBalance(ctx, "ACC-001")
	require.NoError(t, err)
	assert.Equal(t, "100.00", bal.Balance.String())
}

// =============================================================================
// ORDERING AND LOOKUP
// =============================================================================

func TestSQLite_HeightOrderingPastSingleDigits(t *testing.T) {
	// Text heights would sort '10' before '2'; the length-first ordering
	// must keep the chain numeric.

	store := newTestStore(t)
	createAccount(t, store, "a1", "ACC-001", "0.00", "0.00")
	svc := newTestService(t, store)
	ctx := context.Background()

	for i := 0; i < 12; i++ {
		_, err := svc.Deposit(ctx, ledger.DepositParams{
			AccountNumber: "ACC-001", Amount: ledger.MustParseMoney("1.00"),
		})
		require.NoError(t, err)
	}

	page, err := svc.ListEntries(ctx, "ACC-001", ledger.EntryQuery{Limit: 12})
	require.NoError(t, err)
	require.Len(t, page.Entries, 12)
	for i, e := range page.Entries {
		assert.Equal(t, strconv.Itoa(i+1), e.Height.String(), "position %d", i)
	}

	v, err := svc.VerifyChain(ctx, "ACC-001")
	require.NoError(t, err)
	assert.True(t, v.OK)
	assert.Equal(t, "12", v.Height)
}

func TestSQLite_FindByHash(t *testing.T) {
	store := newTestStore(t)
	createAccount(t, store, "a1", "ACC-001", "0.00", "0.00")
	svc := newTestService(t, store)
	ctx := context.Background()

	dep, err := svc.Deposit(ctx, ledger.DepositParams{
		AccountNumber: "ACC-001", Amount: ledger.MustParseMoney("5.00"), Description: "tip",
	})
	require.NoError(t, err)

	lookup, err := svc.GetEntry(ctx, dep.Hash)
	require.NoError(t, err)
	assert.Equal(t, dep.EntryID, lookup.Entry.ID)
	assert.Equal(t, "tip", lookup.Entry.Description)

	_, err = svc.GetEntry(ctx, "missing")
	assert.ErrorIs(t, err, ledger.ErrEntryNotFound)
}

func TestSQLite_DuplicateAccountNumberConflicts(t *testing.T) {
	store := newTestStore(t)
	createAccount(t, store, "a1", "ACC-001", "0.00", "0.00")
	ctx := context.Background()

	err := store.ReadWrite(ctx, func(tx ledger.Tx) error {
		return tx.Accounts().Create(ctx, ledger.NewAccount(
			"a2", "ACC-001", ledger.NewMoney(0), ledger.NewMoney(0)))
	})
	assert.ErrorIs(t, err, ledger.ErrConflict)
}
