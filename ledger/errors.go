/*
errors.go - Centralized error taxonomy for the ledger core

PURPOSE:
  All error kinds in one place. Validation errors are raised before any
  mutation (fail fast, nothing partially applied); store-level conflicts
  surface as ErrConflict without internal retry; batch failures wrap the
  cause with positional context.

ERROR CATEGORIES:
  1. Validation  - ErrInvalidAmount, ErrInvalidAccountNumber, ErrSameAccount
  2. Lookup      - ErrAccountNotFound, ErrEntryNotFound
  3. Funds       - ErrInsufficientFunds (+ InsufficientFundsError detail)
  4. Store       - ErrConflict (serialization failure / lock-wait timeout),
                   ErrReadOnlyTx
  5. Batch       - BatchItemError, wrapping any of the above

NOTE:
  A broken chain is NOT an error. VerifyChain reports tampering as a
  structured VerifyResult so it can be consumed programmatically.

USAGE:
  Callers classify with errors.Is or the helpers below:

    if ledger.IsRetryable(err) { // safe to retry, nothing was applied
*/
package ledger

import (
	"errors"
	"fmt"
	"strings"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrInvalidAmount is returned for non-positive amounts and for inputs
	// with more than two fractional digits.
	ErrInvalidAmount = errors.New("invalid amount")

	// ErrInvalidHeight is returned for malformed or negative height strings.
	ErrInvalidHeight = errors.New("invalid height")

	// ErrInvalidAccountNumber is returned for empty or too-short numbers.
	ErrInvalidAccountNumber = errors.New("invalid account number")

	// ErrAccountNotFound is returned when one or more referenced accounts
	// do not exist.
	ErrAccountNotFound = errors.New("account not found")

	// ErrEntryNotFound is returned by hash lookups for unknown hashes.
	ErrEntryNotFound = errors.New("ledger entry not found")

	// ErrSameAccount is returned for transfers where from == to.
	ErrSameAccount = errors.New("from and to must differ")

	// ErrInsufficientFunds is returned when a debit would breach
	// balance + creditLimit >= 0.
	ErrInsufficientFunds = errors.New("insufficient funds considering credit limit")

	// ErrConflict is returned when the store reports a serialization
	// failure or lock-wait timeout. Nothing was applied; callers may retry.
	ErrConflict = errors.New("transaction conflict")

	// ErrEmptyBatch is returned when ProcessBatch is given no items.
	ErrEmptyBatch = errors.New("batch must contain at least one item")

	// ErrUnknownBatchItemType is returned for an unrecognized item kind.
	ErrUnknownBatchItemType = errors.New("unknown batch item type")

	// ErrReadOnlyTx is returned when a write is attempted inside a
	// read-only transaction.
	ErrReadOnlyTx = errors.New("write attempted in read-only transaction")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// InsufficientFundsError details a rejected debit.
type InsufficientFundsError struct {
	AccountNumber string
	Available     Money // balance + creditLimit
	Requested     Money // amount + fee
}

func (e *InsufficientFundsError) Error() string {
	return fmt.Sprintf("insufficient funds on %s: available %s, requested %s",
		e.AccountNumber, e.Available, e.Requested)
}

func (e *InsufficientFundsError) Unwrap() error {
	return ErrInsufficientFunds
}

// BatchItemError wraps the failure of one batch item with its position and
// a redacted context (kind, amount, account identifiers only) for
// diagnostics. The whole batch was rolled back.
type BatchItemError struct {
	Index    int
	Kind     OperationType
	Amount   Money
	Accounts []string
	Err      error
}

func (e *BatchItemError) Error() string {
	return fmt.Sprintf("batch item %d (%s %s on %s) failed: %v",
		e.Index, e.Kind, e.Amount, strings.Join(e.Accounts, "->"), e.Err)
}

func (e *BatchItemError) Unwrap() error {
	return e.Err
}

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsRetryable reports whether the error might succeed on retry. Safe: a
// conflicting transaction leaves state exactly as it was before the call.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrConflict)
}

// IsClientError reports whether the error is due to invalid caller input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrInvalidAmount) ||
		errors.Is(err, ErrInvalidAccountNumber) ||
		errors.Is(err, ErrSameAccount) ||
		errors.Is(err, ErrInsufficientFunds) ||
		errors.Is(err, ErrEmptyBatch) ||
		errors.Is(err, ErrUnknownBatchItemType)
}

// IsNotFound reports whether the error indicates a missing resource.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrAccountNotFound) ||
		errors.Is(err, ErrEntryNotFound)
}
