package ledger

import "github.com/shopspring/decimal"

// FeePolicy computes the fee charged for an operation. Implementations must
// be pure: same amount and operation, same fee.
type FeePolicy interface {
	Calculate(amount Money, op OperationType) Money
}

// FixedPlusRateFeePolicy charges a flat fee plus a basis-point rate of the
// amount, rounded to two decimals, on debit-side operations (WITHDRAW and
// TRANSFER_OUT). Everything else is free.
type FixedPlusRateFeePolicy struct {
	Fixed   Money
	RateBps int64
}

// NewDefaultFeePolicy returns the production default: 1.00 flat + 0.5%.
func NewDefaultFeePolicy() *FixedPlusRateFeePolicy {
	return &FixedPlusRateFeePolicy{Fixed: NewMoney(100), RateBps: 50}
}

func (p *FixedPlusRateFeePolicy) Calculate(amount Money, op OperationType) Money {
	if op != OpWithdraw && op != OpTransferOut {
		return NewMoney(0)
	}
	variable := amount.Decimal().
		Mul(decimal.NewFromInt(p.RateBps)).
		Div(decimal.NewFromInt(10000)).
		Round(2)
	v, err := MoneyFromDecimal(variable)
	if err != nil {
		// Round(2) guarantees two fractional digits; unreachable.
		return p.Fixed
	}
	return p.Fixed.Add(v)
}

// ZeroFeePolicy charges nothing. Useful in tests and for fee-free
// deployments.
type ZeroFeePolicy struct{}

func (ZeroFeePolicy) Calculate(Money, OperationType) Money { return NewMoney(0) }
