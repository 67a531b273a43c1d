package store_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/chainledger/ledger"
	"github.com/warp/chainledger/ledger/store"
)

func seedAccount(t *testing.T, m *store.Memory, id, number, balance string) {
	t.Helper()
	ctx := context.Background()
	err := m.ReadWrite(ctx, func(tx ledger.Tx) error {
		return tx.Accounts().Create(ctx, ledger.NewAccount(id, number, ledger.MustParseMoney(balance), ledger.NewMoney(0)))
	})
	require.NoError(t, err)
}

func TestMemory_RollbackDiscardsStagedWrites(t *testing.T) {
	// GIVEN: a transaction that mutates a balance, then fails
	// WHEN: the callback returns an error
	// THEN: nothing it wrote is visible afterwards

	m := store.NewMemory()
	seedAccount(t, m, "a1", "ACC-001", "100.00")
	ctx := context.Background()

	boom := errors.New("boom")
	err := m.ReadWrite(ctx, func(tx ledger.Tx) error {
		acc, err := tx.Accounts().FindByNumber(ctx, "ACC-001")
		require.NoError(t, err)
		acc.ApplyCredit(ledger.MustParseMoney("50.00"))
		require.NoError(t, tx.Accounts().Save(ctx, acc))
		return boom
	})
	assert.ErrorIs(t, err, boom)

	err = m.ReadOnly(ctx, func(tx ledger.Tx) error {
		acc, err := tx.Accounts().FindByNumber(ctx, "ACC-001")
		require.NoError(t, err)
		assert.Equal(t, "100.00", acc.Balance().String())
		return nil
	})
	require.NoError(t, err)
}

func TestMemory_ReadYourWrites(t *testing.T) {
	m := store.NewMemory()
	seedAccount(t, m, "a1", "ACC-001", "0.00")
	ctx := context.Background()

	err := m.ReadWrite(ctx, func(tx ledger.Tx) error {
		acc, err := tx.Accounts().FindByNumber(ctx, "ACC-001")
		require.NoError(t, err)
		acc.ApplyCredit(ledger.MustParseMoney("10.00"))
		require.NoError(t, tx.Accounts().Save(ctx, acc))

		// The same transaction sees the staged balance.
		again, err := tx.Accounts().FindByNumber(ctx, "ACC-001")
		require.NoError(t, err)
		assert.Equal(t, "10.00", again.Balance().String())
		return nil
	})
	require.NoError(t, err)
}

func TestMemory_ReadOnlyRejectsWrites(t *testing.T) {
	m := store.NewMemory()
	seedAccount(t, m, "a1", "ACC-001", "0.00")
	ctx := context.Background()

	err := m.ReadOnly(ctx, func(tx ledger.Tx) error {
		acc, err := tx.Accounts().FindByNumber(ctx, "ACC-001")
		require.NoError(t, err)

		assert.ErrorIs(t, tx.Accounts().Save(ctx, acc), ledger.ErrReadOnlyTx)
		_, err = tx.Ledger().GetHeadForUpdate(ctx, "a1")
		assert.ErrorIs(t, err, ledger.ErrReadOnlyTx)
		return nil
	})
	require.NoError(t, err)
}

func TestMemory_DuplicateAccountNumberConflicts(t *testing.T) {
	m := store.NewMemory()
	seedAccount(t, m, "a1", "ACC-001", "0.00")
	ctx := context.Background()

	err := m.ReadWrite(ctx, func(tx ledger.Tx) error {
		return tx.Accounts().Create(ctx, ledger.NewAccount("a2", "ACC-001", ledger.NewMoney(0), ledger.NewMoney(0)))
	})
	assert.ErrorIs(t, err, ledger.ErrConflict)
}

func TestMemory_HeadLifecycle(t *testing.T) {
	m := store.NewMemory()
	seedAccount(t, m, "a1", "ACC-001", "0.00")
	ctx := context.Background()

	// No head until the first append commits.
	err := m.ReadOnly(ctx, func(tx ledger.Tx) error {
		h, err := tx.Ledger().GetHead(ctx, "a1")
		require.NoError(t, err)
		assert.Nil(t, h)
		return nil
	})
	require.NoError(t, err)

	err = m.ReadWrite(ctx, func(tx ledger.Tx) error {
		head, err := tx.Ledger().GetHeadForUpdate(ctx, "a1")
		require.NoError(t, err)
		assert.True(t, head.Height.IsZero())
		assert.Equal(t, "", head.HeadHash)

		entry := &ledger.LedgerEntry{
			ID:        "e1",
			AccountID: "a1",
			Type:      ledger.OpDeposit,
			Amount:    ledger.MustParseMoney("5.00"),
			Hash:      "hash-1",
			Height:    head.Height.Inc(),
		}
		require.NoError(t, tx.Ledger().Append(ctx, entry))
		head.Advance(entry.Hash, entry.Height)
		return tx.Ledger().AdvanceHead(ctx, head)
	})
	require.NoError(t, err)

	err = m.ReadOnly(ctx, func(tx ledger.Tx) error {
		h, err := tx.Ledger().GetHead(ctx, "a1")
		require.NoError(t, err)
		require.NotNil(t, h)
		assert.Equal(t, "hash-1", h.HeadHash)
		assert.Equal(t, "1", h.Height.String())

		found, err := tx.Ledger().FindByHash(ctx, "hash-1")
		require.NoError(t, err)
		assert.Equal(t, "e1", found.ID)
		return nil
	})
	require.NoError(t, err)
}

func TestMemory_DuplicateHashConflicts(t *testing.T) {
	m := store.NewMemory()
	seedAccount(t, m, "a1", "ACC-001", "0.00")
	ctx := context.Background()

	append1 := func(tx ledger.Tx) error {
		return tx.Ledger().Append(ctx, &ledger.LedgerEntry{
			ID: "e1", AccountID: "a1", Type: ledger.OpDeposit,
			Amount: ledger.MustParseMoney("1.00"), Hash: "same-hash",
			Height: ledger.ZeroHeight().Inc(),
		})
	}
	require.NoError(t, m.ReadWrite(ctx, append1))

	err := m.ReadWrite(ctx, func(tx ledger.Tx) error {
		return tx.Ledger().Append(ctx, &ledger.LedgerEntry{
			ID: "e2", AccountID: "a1", Type: ledger.OpDeposit,
			Amount: ledger.MustParseMoney("1.00"), Hash: "same-hash",
			Height: ledger.ZeroHeight().Inc().Inc(),
		})
	})
	assert.ErrorIs(t, err, ledger.ErrConflict)
}
