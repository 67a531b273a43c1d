/*
dto.go - Request and response shapes for the HTTP surface

PURPOSE:
  Decouples the wire contract from the domain model. Amounts travel as
  JSON numbers or quoted decimal strings (decimal.Decimal accepts both) and
  are converted to Money at the boundary, where inputs with more than two
  fractional digits are rejected. Responses render Money back to canonical
  two-digit strings; a null hash means an empty chain.

NAMING CONVENTION:
  *Request: request bodies from clients
  *DTO:     response types returned to clients
*/
package api

import (
	"github.com/shopspring/decimal"

	"github.com/warp/chainledger/ledger"
)

// =============================================================================
// REQUESTS
// =============================================================================

type DepositRequest struct {
	AccountNumber string          `json:"account_number"`
	Amount        decimal.Decimal `json:"amount"`
	Description   string          `json:"description,omitempty"`
}

type WithdrawRequest struct {
	AccountNumber string          `json:"account_number"`
	Amount        decimal.Decimal `json:"amount"`
	Description   string          `json:"description,omitempty"`
}

type TransferRequest struct {
	From        string          `json:"from"`
	To          string          `json:"to"`
	Amount      decimal.Decimal `json:"amount"`
	Description string          `json:"description,omitempty"`
}

type BatchItemRequest struct {
	Type          string          `json:"type"` // DEPOSIT | WITHDRAW | TRANSFER
	AccountNumber string          `json:"account_number,omitempty"`
	From          string          `json:"from,omitempty"`
	To            string          `json:"to,omitempty"`
	Amount        decimal.Decimal `json:"amount"`
	Description   string          `json:"description,omitempty"`
}

type BatchRequest struct {
	Items []BatchItemRequest `json:"items"`
}

// =============================================================================
// RESPONSES
// =============================================================================

// OperationDTO is the response for a single-account posting.
type OperationDTO struct {
	Type          string `json:"type"`
	AccountNumber string `json:"account_number"`
	Balance       string `json:"balance"`
	Amount        string `json:"amount"`
	Fee           string `json:"fee"`
	EntryID       string `json:"entry_id"`
	Hash          string `json:"hash"`
	Height        string `json:"height"`
}

// TransferDTO is the response for a transfer: both legs and both balances.
type TransferDTO struct {
	Type        string `json:"type"`
	From        string `json:"from"`
	To          string `json:"to"`
	Amount      string `json:"amount"`
	Fee         string `json:"fee"`
	OutTxID     string `json:"out_tx_id"`
	InTxID      string `json:"in_tx_id"`
	OutHash     string `json:"out_hash"`
	InHash      string `json:"in_hash"`
	OutHeight   string `json:"out_height"`
	InHeight    string `json:"in_height"`
	OriginAfter string `json:"origin_after"`
	DestAfter   string `json:"dest_after"`
}

type BatchEntryDTO struct {
	Type     string        `json:"type"`
	Deposit  *OperationDTO `json:"deposit,omitempty"`
	Withdraw *OperationDTO `json:"withdraw,omitempty"`
	Transfer *TransferDTO  `json:"transfer,omitempty"`
}

type BatchDTO struct {
	OK      bool            `json:"ok"`
	Count   int             `json:"count"`
	Results []BatchEntryDTO `json:"results"`
}

type HeadDTO struct {
	Height string  `json:"height"`
	Hash   *string `json:"hash"`
}

type BalanceDTO struct {
	AccountNumber string  `json:"account_number"`
	Balance       string  `json:"balance"`
	CreditLimit   string  `json:"credit_limit"`
	LedgerHead    HeadDTO `json:"ledger_head"`
}

type VerifyDTO struct {
	OK           bool    `json:"ok"`
	Height       string  `json:"height,omitempty"`
	Head         *string `json:"head,omitempty"`
	BrokenAt     string  `json:"broken_at,omitempty"`
	ExpectedPrev *string `json:"expected_prev,omitempty"`
	GotPrev      *string `json:"got_prev,omitempty"`
}

type EntryDTO struct {
	ID            string  `json:"id"`
	AccountNumber string  `json:"account_number,omitempty"`
	Type          string  `json:"type"`
	Amount        string  `json:"amount"`
	Fee           string  `json:"fee"`
	Description   string  `json:"description,omitempty"`
	OccurredAt    string  `json:"occurred_at"`
	Height        string  `json:"height"`
	PrevHash      *string `json:"prev_hash"`
	Hash          string  `json:"hash"`
	RelatedTxID   *string `json:"related_tx_id,omitempty"`
}

type LedgerPageDTO struct {
	AccountNumber string     `json:"account_number"`
	Page          int        `json:"page"`
	Limit         int        `json:"limit"`
	Total         int        `json:"total"`
	Items         []EntryDTO `json:"items"`
}

// ErrorDTO is the uniform error body. Context is set for batch failures.
type ErrorDTO struct {
	Error   string           `json:"error"`
	Context *BatchContextDTO `json:"context,omitempty"`
}

type BatchContextDTO struct {
	Index    int      `json:"index"`
	Type     string   `json:"type"`
	Amount   string   `json:"amount"`
	Accounts []string `json:"accounts"`
}

// =============================================================================
// MAPPERS
// =============================================================================

func depositDTO(r *ledger.DepositResult) OperationDTO {
	return OperationDTO{
		Type:          string(ledger.OpDeposit),
		AccountNumber: r.AccountNumber,
		Balance:       r.Balance.String(),
		Amount:        r.Amount.String(),
		Fee:           r.Fee.String(),
		EntryID:       r.EntryID,
		Hash:          r.Hash,
		Height:        r.Height.String(),
	}
}

func withdrawDTO(r *ledger.WithdrawResult) OperationDTO {
	return OperationDTO{
		Type:          string(ledger.OpWithdraw),
		AccountNumber: r.AccountNumber,
		Balance:       r.Balance.String(),
		Amount:        r.Amount.String(),
		Fee:           r.Fee.String(),
		EntryID:       r.EntryID,
		Hash:          r.Hash,
		Height:        r.Height.String(),
	}
}

func transferDTO(r *ledger.TransferResult) TransferDTO {
	return TransferDTO{
		Type:        string(ledger.OpTransfer),
		From:        r.From,
		To:          r.To,
		Amount:      r.Amount.String(),
		Fee:         r.Fee.String(),
		OutTxID:     r.OutTxID,
		InTxID:      r.InTxID,
		OutHash:     r.OutHash,
		InHash:      r.InHash,
		OutHeight:   r.OutHeight.String(),
		InHeight:    r.InHeight.String(),
		OriginAfter: r.OriginAfter.String(),
		DestAfter:   r.DestAfter.String(),
	}
}

func batchDTO(r *ledger.BatchResult) BatchDTO {
	out := BatchDTO{OK: true, Count: r.Count}
	for _, item := range r.Results {
		e := BatchEntryDTO{Type: string(item.Type)}
		switch item.Type {
		case ledger.OpDeposit:
			d := depositDTO(item.Deposit)
			e.Deposit = &d
		case ledger.OpWithdraw:
			w := withdrawDTO(item.Withdraw)
			e.Withdraw = &w
		case ledger.OpTransfer:
			t := transferDTO(item.Transfer)
			e.Transfer = &t
		}
		out.Results = append(out.Results, e)
	}
	return out
}

func balanceDTO(r *ledger.BalanceResult) BalanceDTO {
	return BalanceDTO{
		AccountNumber: r.AccountNumber,
		Balance:       r.Balance.String(),
		CreditLimit:   r.CreditLimit.String(),
		LedgerHead:    HeadDTO{Height: r.Head.Height, Hash: optString(r.Head.Hash)},
	}
}

func verifyDTO(r *ledger.VerifyResult) VerifyDTO {
	if !r.OK {
		return VerifyDTO{
			OK:           false,
			BrokenAt:     r.BrokenAt,
			ExpectedPrev: optString(r.ExpectedPrev),
			GotPrev:      optString(r.GotPrev),
		}
	}
	return VerifyDTO{OK: true, Height: r.Height, Head: optString(r.Head)}
}

func entryDTO(e ledger.LedgerEntry, accountNumber string) EntryDTO {
	return EntryDTO{
		ID:            e.ID,
		AccountNumber: accountNumber,
		Type:          string(e.Type),
		Amount:        e.Amount.String(),
		Fee:           e.Fee.String(),
		Description:   e.Description,
		OccurredAt:    e.OccurredAt.ISO(),
		Height:        e.Height.String(),
		PrevHash:      optString(e.PrevHash),
		Hash:          e.Hash,
		RelatedTxID:   optString(e.RelatedTxID),
	}
}

// optString maps the domain's "" sentinel to JSON null.
func optString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
