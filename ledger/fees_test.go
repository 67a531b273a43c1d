package ledger_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/warp/chainledger/ledger"
)

func TestDefaultFeePolicy_DebitOperations(t *testing.T) {
	policy := ledger.NewDefaultFeePolicy()

	tests := []struct {
		name   string
		amount string
		op     ledger.OperationType
		want   string
	}{
		{"withdraw 100.00", "100.00", ledger.OpWithdraw, "1.50"},
		{"transfer out 100.00", "100.00", ledger.OpTransferOut, "1.50"},
		{"withdraw 1.00", "1.00", ledger.OpWithdraw, "1.01"},
		{"withdraw 0.01", "0.01", ledger.OpWithdraw, "1.00"},
		{"withdraw 1000.00", "1000.00", ledger.OpWithdraw, "6.00"},
		// 0.5% of 33.33 is 0.16665, rounds to 0.17.
		{"withdraw 33.33 rounds half up", "33.33", ledger.OpWithdraw, "1.17"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fee := policy.Calculate(ledger.MustParseMoney(tt.amount), tt.op)
			assert.Equal(t, tt.want, fee.String())
		})
	}
}

func TestDefaultFeePolicy_CreditOperationsAreFree(t *testing.T) {
	policy := ledger.NewDefaultFeePolicy()
	amount := ledger.MustParseMoney("5000.00")

	assert.True(t, policy.Calculate(amount, ledger.OpDeposit).IsZero())
	assert.True(t, policy.Calculate(amount, ledger.OpTransferIn).IsZero())
}

func TestZeroFeePolicy(t *testing.T) {
	var policy ledger.ZeroFeePolicy
	assert.True(t, policy.Calculate(ledger.MustParseMoney("100.00"), ledger.OpWithdraw).IsZero())
}
