/*
hash.go - Canonical serialization and hashing of ledger entries

PURPOSE:
  Computes the SHA-256 digest that links each entry to its predecessor.
  Production of an entry and later verification of that entry MUST use the
  exact same byte-for-byte canonicalization, so the format here is frozen:

    accountNumber | type | amount | fee | occurredAtIso | prevHash | description

  joined with "|". An absent prevHash (first entry of an account) and an
  absent description both serialize as the empty string. Amount and fee use
  Money.String (two fractional digits); the timestamp uses OccurredAt.ISO
  (UTC, millisecond precision).

WARNING:
  Changing the field order, the separator, or any canonical form invalidates
  every chain already written. Don't.
*/
package ledger

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// ComputeHash returns the lowercase hex SHA-256 over the canonical
// serialization of one entry's fields and the previous hash. prevHash is ""
// for the first entry of an account.
func ComputeHash(accountNumber string, op OperationType, amount, fee Money, occurredAtISO, prevHash, description string) string {
	payload := strings.Join([]string{
		accountNumber,
		string(op),
		amount.String(),
		fee.String(),
		occurredAtISO,
		prevHash,
		description,
	}, "|")

	sum := sha256.Sum256([]byte(payload))
	return hex.EncodeToString(sum[:])
}
