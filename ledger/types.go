/*
Package ledger implements a per-account, hash-chained, append-only ledger.

PURPOSE:
  Every balance change (deposit, withdrawal, transfer leg) is recorded as an
  immutable entry whose hash covers the previous entry's hash. The chain can
  later be replayed to prove nothing was altered after the fact.

KEY CONCEPTS IN THIS FILE (types.go):
  - Money: exact fixed-point amount, stored as integer minor units (cents)
  - Height: 1-based position in an account's chain, arbitrary precision
  - OccurredAt: the recorded instant of an operation, with a fixed ISO form
  - OperationType: what kind of posting an entry represents

DESIGN PRINCIPLES:
  1. No floats anywhere in money math. Money is an int64 of cents;
     decimal.Decimal is used only at the parse/format boundary.
  2. Heights never overflow. The chain is expected to outlive int64, so
     Height wraps math/big.
  3. Canonical forms are frozen. Money.String and OccurredAt.ISO feed the
     chain hash; changing them would break verification of existing chains.

SEE ALSO:
  - hash.go: the canonical serialization that chains entries together
  - entry.go: LedgerEntry and LedgerHead
  - service.go: the transactional operations
*/
package ledger

import (
	"math/big"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// MONEY - Exact fixed-point amount in minor units
// =============================================================================

// Money is an amount with exactly two fractional digits, held as a signed
// count of minor units. The zero value is 0.00.
type Money struct {
	cents int64
}

// NewMoney builds a Money from a count of minor units.
func NewMoney(cents int64) Money {
	return Money{cents: cents}
}

// ParseMoney parses a decimal string such as "12.34" or "-0.05".
// Inputs with more than two fractional digits are rejected with
// ErrInvalidAmount: they cannot be represented exactly in minor units.
func ParseMoney(s string) (Money, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Money{}, ErrInvalidAmount
	}
	return MoneyFromDecimal(d)
}

// MoneyFromDecimal converts a decimal to Money, rejecting values that do not
// fit in two fractional digits.
func MoneyFromDecimal(d decimal.Decimal) (Money, error) {
	c := d.Mul(decimal.NewFromInt(100))
	if !c.IsInteger() {
		return Money{}, ErrInvalidAmount
	}
	if !c.BigInt().IsInt64() {
		return Money{}, ErrInvalidAmount
	}
	return Money{cents: c.IntPart()}, nil
}

// MustParseMoney is ParseMoney for literals in tests and seeds.
func MustParseMoney(s string) Money {
	m, err := ParseMoney(s)
	if err != nil {
		panic(err)
	}
	return m
}

func (m Money) Add(o Money) Money { return Money{cents: m.cents + o.cents} }
func (m Money) Sub(o Money) Money { return Money{cents: m.cents - o.cents} }
func (m Money) Neg() Money        { return Money{cents: -m.cents} }
func (m Money) GTE(o Money) bool  { return m.cents >= o.cents }
func (m Money) IsPositive() bool  { return m.cents > 0 }
func (m Money) IsNegative() bool  { return m.cents < 0 }
func (m Money) IsZero() bool      { return m.cents == 0 }
func (m Money) Cents() int64      { return m.cents }

// Decimal returns the amount as a decimal.Decimal (for fee arithmetic and
// API responses).
func (m Money) Decimal() decimal.Decimal {
	return decimal.New(m.cents, -2)
}

// String renders the canonical decimal form with exactly two fractional
// digits, e.g. "898.50" or "-1.05". This form is part of the hash input and
// must never change.
func (m Money) String() string {
	return decimal.New(m.cents, -2).StringFixed(2)
}

// =============================================================================
// HEIGHT - Position in an account's chain
// =============================================================================

// Height is a non-negative, arbitrary-precision chain position. The zero
// value is height 0 (empty chain); the first entry is at height 1.
type Height struct {
	v *big.Int
}

// ZeroHeight returns height 0.
func ZeroHeight() Height {
	return Height{v: big.NewInt(0)}
}

// ParseHeight parses a base-10 height string. Negative values are rejected.
func ParseHeight(s string) (Height, error) {
	v, ok := new(big.Int).SetString(s, 10)
	if !ok || v.Sign() < 0 {
		return Height{}, ErrInvalidHeight
	}
	return Height{v: v}, nil
}

// Inc returns a new Height one greater than h. h is not modified.
func (h Height) Inc() Height {
	return Height{v: new(big.Int).Add(h.big(), big.NewInt(1))}
}

// Cmp compares two heights like big.Int.Cmp.
func (h Height) Cmp(o Height) int {
	return h.big().Cmp(o.big())
}

func (h Height) IsZero() bool {
	return h.big().Sign() == 0
}

func (h Height) String() string {
	return h.big().String()
}

func (h Height) big() *big.Int {
	if h.v == nil {
		return big.NewInt(0)
	}
	return h.v
}

// =============================================================================
// OCCURRED AT - Recorded instant of an operation
// =============================================================================

// isoFormat is the canonical timestamp layout used in hashing: UTC with
// millisecond precision. Frozen; see ComputeHash.
const isoFormat = "2006-01-02T15:04:05.000Z"

// OccurredAt is the instant an operation was recorded.
type OccurredAt struct {
	t time.Time
}

// OccurredNow captures the current instant in UTC.
func OccurredNow() OccurredAt {
	return OccurredAtFrom(time.Now())
}

// OccurredAtFrom normalizes an arbitrary time to UTC millisecond precision,
// so that the stored value and the hashed ISO form always agree.
func OccurredAtFrom(t time.Time) OccurredAt {
	return OccurredAt{t: t.UTC().Truncate(time.Millisecond)}
}

func (o OccurredAt) Time() time.Time {
	return o.t
}

// ISO renders the canonical form that feeds the chain hash.
func (o OccurredAt) ISO() string {
	return o.t.UTC().Format(isoFormat)
}

// ParseOccurredAt parses a stored canonical form back into an OccurredAt.
// Stores persist the ISO form so that rehydrated entries hash identically.
func ParseOccurredAt(s string) (OccurredAt, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return OccurredAt{}, err
	}
	return OccurredAtFrom(t), nil
}

// =============================================================================
// OPERATION TYPE
// =============================================================================

type OperationType string

const (
	OpDeposit     OperationType = "DEPOSIT"
	OpWithdraw    OperationType = "WITHDRAW"
	OpTransferOut OperationType = "TRANSFER_OUT"
	OpTransferIn  OperationType = "TRANSFER_IN"

	// OpTransfer tags a transfer item in a batch; it never appears on a
	// ledger entry (a transfer posts as TRANSFER_OUT plus TRANSFER_IN).
	OpTransfer OperationType = "TRANSFER"
)

// ValidEntryType reports whether t can appear on a stored ledger entry.
func ValidEntryType(t OperationType) bool {
	switch t {
	case OpDeposit, OpWithdraw, OpTransferOut, OpTransferIn:
		return true
	}
	return false
}

// minAccountNumberLen is the shortest account number the core accepts.
const minAccountNumberLen = 3

// ValidateAccountNumber rejects empty, whitespace-only, or too-short
// account numbers.
func ValidateAccountNumber(number string) error {
	if len(strings.TrimSpace(number)) < minAccountNumberLen {
		return ErrInvalidAccountNumber
	}
	return nil
}
