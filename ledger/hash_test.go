package ledger_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/warp/chainledger/ledger"
)

func TestComputeHash_Deterministic(t *testing.T) {
	a := ledger.ComputeHash("ACC-001", ledger.OpDeposit, ledger.MustParseMoney("100.00"), ledger.NewMoney(0), "2025-01-01T00:00:00.000Z", "", "salary")
	b := ledger.ComputeHash("ACC-001", ledger.OpDeposit, ledger.MustParseMoney("100.00"), ledger.NewMoney(0), "2025-01-01T00:00:00.000Z", "", "salary")

	assert.Equal(t, a, b)
	assert.Len(t, a, 64, "sha-256 hex digest")
}

func TestComputeHash_EveryFieldMatters(t *testing.T) {
	base := func() string {
		return ledger.ComputeHash("ACC-001", ledger.OpWithdraw, ledger.MustParseMoney("50.00"), ledger.MustParseMoney("1.25"), "2025-01-01T00:00:00.000Z", "prevhash", "rent")
	}

	variants := map[string]string{
		"account":     ledger.ComputeHash("ACC-002", ledger.OpWithdraw, ledger.MustParseMoney("50.00"), ledger.MustParseMoney("1.25"), "2025-01-01T00:00:00.000Z", "prevhash", "rent"),
		"type":        ledger.ComputeHash("ACC-001", ledger.OpDeposit, ledger.MustParseMoney("50.00"), ledger.MustParseMoney("1.25"), "2025-01-01T00:00:00.000Z", "prevhash", "rent"),
		"amount":      ledger.ComputeHash("ACC-001", ledger.OpWithdraw, ledger.MustParseMoney("50.01"), ledger.MustParseMoney("1.25"), "2025-01-01T00:00:00.000Z", "prevhash", "rent"),
		"fee":         ledger.ComputeHash("ACC-001", ledger.OpWithdraw, ledger.MustParseMoney("50.00"), ledger.MustParseMoney("1.26"), "2025-01-01T00:00:00.000Z", "prevhash", "rent"),
		"occurredAt":  ledger.ComputeHash("ACC-001", ledger.OpWithdraw, ledger.MustParseMoney("50.00"), ledger.MustParseMoney("1.25"), "2025-01-01T00:00:00.001Z", "prevhash", "rent"),
		"prevHash":    ledger.ComputeHash("ACC-001", ledger.OpWithdraw, ledger.MustParseMoney("50.00"), ledger.MustParseMoney("1.25"), "2025-01-01T00:00:00.000Z", "other", "rent"),
		"description": ledger.ComputeHash("ACC-001", ledger.OpWithdraw, ledger.MustParseMoney("50.00"), ledger.MustParseMoney("1.25"), "2025-01-01T00:00:00.000Z", "prevhash", "food"),
	}

	for field, h := range variants {
		assert.NotEqual(t, base(), h, "changing %s must change the hash", field)
	}
}

func TestComputeHash_EmptyPrevHashIsCanonical(t *testing.T) {
	// The first entry in a chain hashes with an empty previous-hash slot,
	// which must itself be stable.
	a := ledger.ComputeHash("ACC-001", ledger.OpDeposit, ledger.MustParseMoney("1.00"), ledger.NewMoney(0), "2025-01-01T00:00:00.000Z", "", "")
	b := ledger.ComputeHash("ACC-001", ledger.OpDeposit, ledger.MustParseMoney("1.00"), ledger.NewMoney(0), "2025-01-01T00:00:00.000Z", "", "")
	assert.Equal(t, a, b)
}
