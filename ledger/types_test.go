package ledger_test

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/chainledger/ledger"
)

// =============================================================================
// MONEY TESTS
// =============================================================================

func TestParseMoney_Valid(t *testing.T) {
	tests := []struct {
		input string
		cents int64
	}{
		{"0", 0},
		{"0.00", 0},
		{"1", 100},
		{"1.5", 150},
		{"100.00", 10000},
		{"0.01", 1},
		{"-3.25", -325},
		{"999999999.99", 99999999999},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			m, err := ledger.ParseMoney(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.cents, m.Cents())
		})
	}
}

func TestParseMoney_Invalid(t *testing.T) {
	tests := []string{
		"1.005",  // three decimal places
		"0.001",  // sub-cent
		"abc",    // not a number
		"",       // empty
		"1.2.3",  // malformed
	}

	for _, input := range tests {
		t.Run(input, func(t *testing.T) {
			_, err := ledger.ParseMoney(input)
			assert.ErrorIs(t, err, ledger.ErrInvalidAmount)
		})
	}
}

func TestMoney_String_AlwaysTwoDecimals(t *testing.T) {
	tests := []struct {
		cents int64
		want  string
	}{
		{0, "0.00"},
		{1, "0.01"},
		{150, "1.50"},
		{10000, "100.00"},
		{-325, "-3.25"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, ledger.NewMoney(tt.cents).String())
	}
}

func TestMoney_Arithmetic(t *testing.T) {
	a := ledger.MustParseMoney("10.00")
	b := ledger.MustParseMoney("2.50")

	assert.Equal(t, "12.50", a.Add(b).String())
	assert.Equal(t, "7.50", a.Sub(b).String())
	assert.Equal(t, "-2.50", b.Neg().String())
	assert.True(t, a.GTE(b))
	assert.False(t, b.GTE(a))
	assert.True(t, a.GTE(a))
	assert.True(t, a.IsPositive())
	assert.True(t, b.Neg().IsNegative())
	assert.True(t, ledger.NewMoney(0).IsZero())
}

func TestMoneyFromDecimal_RejectsSubCent(t *testing.T) {
	// GIVEN: a decimal with three fractional digits
	// WHEN: converting to Money
	// THEN: rejected as an invalid amount

	d := decimal.RequireFromString("10.005")
	_, err := ledger.MoneyFromDecimal(d)
	assert.ErrorIs(t, err, ledger.ErrInvalidAmount)

	ok, err := ledger.MoneyFromDecimal(decimal.RequireFromString("10.50"))
	require.NoError(t, err)
	assert.Equal(t, int64(1050), ok.Cents())
}

// =============================================================================
// HEIGHT TESTS
// =============================================================================

func TestHeight_StartsAtZeroAndIncrements(t *testing.T) {
	h := ledger.ZeroHeight()
	assert.True(t, h.IsZero())
	assert.Equal(t, "0", h.String())

	h1 := h.Inc()
	h2 := h1.Inc()
	assert.Equal(t, "1", h1.String())
	assert.Equal(t, "2", h2.String())
	assert.Equal(t, -1, h1.Cmp(h2))
	assert.Equal(t, 0, h1.Cmp(h1))
	// Inc does not mutate the receiver.
	assert.Equal(t, "0", h.String())
}

func TestHeight_BeyondInt64(t *testing.T) {
	// 2^64: cannot be represented in any fixed-width integer we'd reach for.
	h, err := ledger.ParseHeight("18446744073709551616")
	require.NoError(t, err)
	assert.Equal(t, "18446744073709551617", h.Inc().String())
}

func TestParseHeight_Invalid(t *testing.T) {
	for _, input := range []string{"", "abc", "-1", "1.5"} {
		_, err := ledger.ParseHeight(input)
		assert.ErrorIs(t, err, ledger.ErrInvalidHeight, "input %q", input)
	}
}

// =============================================================================
// OCCURRED-AT TESTS
// =============================================================================

func TestOccurredAt_CanonicalForm(t *testing.T) {
	occ := ledger.OccurredNow()
	iso := occ.ISO()

	parsed, err := ledger.ParseOccurredAt(iso)
	require.NoError(t, err)

	// Millisecond truncation means the round trip is exact.
	assert.Equal(t, iso, parsed.ISO())
	assert.True(t, parsed.Time().Equal(occ.Time()))
}

// =============================================================================
// ACCOUNT NUMBER VALIDATION
// =============================================================================

func TestValidateAccountNumber(t *testing.T) {
	assert.NoError(t, ledger.ValidateAccountNumber("ACC-001"))
	assert.NoError(t, ledger.ValidateAccountNumber("abc"))

	for _, bad := range []string{"", "ab", "  ", "\t\n "} {
		assert.ErrorIs(t, ledger.ValidateAccountNumber(bad), ledger.ErrInvalidAccountNumber, "input %q", bad)
	}
}
