// Package events defines the outbound event contract for recorded ledger
// operations. Publishing happens after commit, outside the transaction; a
// failed publish never rolls back a posting.
package events

import "time"

// TopicOperationRecorded carries one event per appended ledger entry.
const TopicOperationRecorded = "ledger.operation_recorded"

// Publisher is implemented by kafka.Publisher for production and Noop for
// everything else.
type Publisher interface {
	Publish(topic string, event any) error
}

// OperationRecorded is emitted after a deposit, withdrawal, or transfer leg
// has been committed.
type OperationRecorded struct {
	EntryID        string    `json:"entry_id"`
	AccountNumber  string    `json:"account_number"`
	CounterAccount string    `json:"counter_account,omitempty"`
	Type           string    `json:"type"`
	Amount         string    `json:"amount"`
	Fee            string    `json:"fee"`
	Hash           string    `json:"hash"`
	Height         string    `json:"height"`
	OccurredAt     time.Time `json:"occurred_at"`
}

// Noop discards every event.
type Noop struct{}

func (Noop) Publish(string, any) error { return nil }
