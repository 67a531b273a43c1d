/*
entry.go - The append-only chain: LedgerEntry and LedgerHead

INVARIANTS:
  1. APPEND-ONLY: entries are never updated or deleted. Ever.
  2. DENSE HEIGHTS: per account, heights form exactly 1..N.
  3. LINKED: entry at height H carries PrevHash equal to the hash of the
     entry at H-1 (or "" when H = 1).
  4. HEAD AGREES: LedgerHead.Height equals the entry count and HeadHash
     equals the hash of the latest entry, because AdvanceHead runs as the
     last step of every append, in the same transaction.

WHY A SEPARATE HEAD ROW?
  The head is the serialization point for appends. Locking one small row per
  account is what makes two concurrent operations on the same account unable
  to produce two entries at the same height, without ever locking the
  entries themselves (they are write-once).
*/
package ledger

// LedgerEntry is one immutable posting on an account's chain.
type LedgerEntry struct {
	ID          string
	AccountID   string
	Type        OperationType
	Amount      Money
	Fee         Money
	OccurredAt  OccurredAt
	Description string

	// PrevHash is the head hash at the time of append; "" for the first
	// entry of an account.
	PrevHash string
	Hash     string
	Height   Height

	// RelatedTxID links the two legs of a transfer (TRANSFER_OUT <->
	// TRANSFER_IN); "" otherwise.
	RelatedTxID string
}

// LedgerHead is the current chain tip for one account: the hash and height
// of the most recently appended entry. HeadHash is "" and Height 0 while the
// chain is empty. Heads are created lazily on first append.
type LedgerHead struct {
	AccountID string
	HeadHash  string
	Height    Height
}

// NewLedgerHead returns an empty head for an account.
func NewLedgerHead(accountID string) *LedgerHead {
	return &LedgerHead{AccountID: accountID, HeadHash: "", Height: ZeroHeight()}
}

// Advance moves the tip to a newly appended entry. Called exactly once per
// append, after the entry insert, under the same transaction.
func (h *LedgerHead) Advance(hash string, height Height) {
	h.HeadHash = hash
	h.Height = height
}

// Clone returns an independent copy for store-level staging.
func (h *LedgerHead) Clone() *LedgerHead {
	c := *h
	return &c
}
