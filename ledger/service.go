/*
service.go - The transactional operations

PURPOSE:
  Deposit, Withdraw, Transfer, ProcessBatch, GetBalance, VerifyChain. Each
  mutating operation is one atomic transaction: resolve accounts, lock the
  head(s), mutate balances, append the chained entry (or entries), advance
  the head(s), commit.

SHAPE:
  Every operation has a public wrapper that opens the transaction and an
  *In variant taking an explicit Tx. ProcessBatch reuses the *In variants so
  the whole batch shares one transaction and the per-account head locks
  accumulate correctly across items.

LOCK ORDERING:
  A transfer touches two heads. Concurrent transfers between the same pair
  of accounts in opposite directions would deadlock if each locked "from"
  first, so the two heads are always locked in ascending account-id order,
  regardless of direction. Sorting the resource keys before locking is the
  general cure for this class of deadlock, not anything transfer-specific.

EVENTS:
  One OperationRecorded event per appended entry, published after commit.
  Publishing is best-effort; a failed publish is logged, never rolled into
  the transaction outcome.
*/
package ledger

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/warp/chainledger/events"
)

// Service exposes the ledger operations. Construct with NewService.
type Service struct {
	uow  UnitOfWork
	fees FeePolicy
	pub  events.Publisher

	// Clock supplies occurred-at instants; override in tests for
	// deterministic hashes.
	Clock func() time.Time
}

// NewService wires the operations to a store and a fee policy. A nil fees
// falls back to the default fixed-plus-rate policy; a nil pub disables
// event publishing.
func NewService(uow UnitOfWork, fees FeePolicy, pub events.Publisher) *Service {
	if fees == nil {
		fees = NewDefaultFeePolicy()
	}
	if pub == nil {
		pub = events.Noop{}
	}
	return &Service{uow: uow, fees: fees, pub: pub, Clock: time.Now}
}

// =============================================================================
// PARAMS AND RESULTS
// =============================================================================

type DepositParams struct {
	AccountNumber string
	Amount        Money
	Description   string
}

type WithdrawParams struct {
	AccountNumber string
	Amount        Money
	Description   string
}

type TransferParams struct {
	From        string
	To          string
	Amount      Money
	Description string
}

type DepositResult struct {
	AccountNumber string
	EntryID       string
	Amount        Money
	Balance       Money
	Fee           Money
	Hash          string
	Height        Height
	OccurredAt    OccurredAt
}

type WithdrawResult struct {
	AccountNumber string
	EntryID       string
	Amount        Money
	Balance       Money
	Fee           Money
	Hash          string
	Height        Height
	OccurredAt    OccurredAt
}

type TransferResult struct {
	From        string
	To          string
	Amount      Money
	Fee         Money
	OutTxID     string
	InTxID      string
	OutHash     string
	InHash      string
	OutHeight   Height
	InHeight    Height
	OriginAfter Money
	DestAfter   Money
	OccurredAt  OccurredAt
}

// HeadInfo is an account's chain tip as seen by read operations. Hash is ""
// while the chain is empty.
type HeadInfo struct {
	Height string
	Hash   string
}

type BalanceResult struct {
	AccountNumber string
	Balance       Money
	CreditLimit   Money
	Head          HeadInfo
}

// VerifyResult localizes tampering instead of a global yes/no. A broken
// chain is a normal result, not an error.
type VerifyResult struct {
	OK           bool
	Height       string
	Head         string
	BrokenAt     string
	ExpectedPrev string
	GotPrev      string
}

// =============================================================================
// DEPOSIT
// =============================================================================

// Deposit credits an account and appends a DEPOSIT entry. Deposits carry no
// fee.
func (s *Service) Deposit(ctx context.Context, p DepositParams) (*DepositResult, error) {
	var res *DepositResult
	err := s.uow.ReadWrite(ctx, func(tx Tx) error {
		r, err := s.depositIn(ctx, tx, p)
		res = r
		return err
	})
	if err != nil {
		return nil, err
	}
	s.emit(events.OperationRecorded{
		EntryID:       res.EntryID,
		AccountNumber: res.AccountNumber,
		Type:          string(OpDeposit),
		Amount:        p.Amount.String(),
		Fee:           res.Fee.String(),
		Hash:          res.Hash,
		Height:        res.Height.String(),
		OccurredAt:    res.OccurredAt.Time(),
	})
	return res, nil
}

func (s *Service) depositIn(ctx context.Context, tx Tx, p DepositParams) (*DepositResult, error) {
	if err := ValidateAccountNumber(p.AccountNumber); err != nil {
		return nil, err
	}
	if !p.Amount.IsPositive() {
		return nil, ErrInvalidAmount
	}

	acc, err := tx.Accounts().FindByNumber(ctx, p.AccountNumber)
	if err != nil {
		return nil, err
	}

	head, err := tx.Ledger().GetHeadForUpdate(ctx, acc.ID)
	if err != nil {
		return nil, err
	}

	acc.ApplyCredit(p.Amount)
	if err := tx.Accounts().Save(ctx, acc); err != nil {
		return nil, err
	}

	entry, err := s.appendEntry(ctx, tx, head, appendInput{
		account:     acc,
		op:          OpDeposit,
		amount:      p.Amount,
		fee:         NewMoney(0),
		occurredAt:  OccurredAtFrom(s.Clock()),
		description: p.Description,
	})
	if err != nil {
		return nil, err
	}

	return &DepositResult{
		AccountNumber: acc.Number,
		EntryID:       entry.ID,
		Amount:        p.Amount,
		Balance:       acc.Balance(),
		Fee:           entry.Fee,
		Hash:          entry.Hash,
		Height:        entry.Height,
		OccurredAt:    entry.OccurredAt,
	}, nil
}

// =============================================================================
// WITHDRAW
// =============================================================================

// Withdraw debits an account by amount plus the policy fee and appends a
// WITHDRAW entry. Fails with ErrInsufficientFunds when the debit would
// breach the credit limit.
func (s *Service) Withdraw(ctx context.Context, p WithdrawParams) (*WithdrawResult, error) {
	var res *WithdrawResult
	err := s.uow.ReadWrite(ctx, func(tx Tx) error {
		r, err := s.withdrawIn(ctx, tx, p)
		res = r
		return err
	})
	if err != nil {
		return nil, err
	}
	s.emit(events.OperationRecorded{
		EntryID:       res.EntryID,
		AccountNumber: res.AccountNumber,
		Type:          string(OpWithdraw),
		Amount:        p.Amount.String(),
		Fee:           res.Fee.String(),
		Hash:          res.Hash,
		Height:        res.Height.String(),
		OccurredAt:    res.OccurredAt.Time(),
	})
	return res, nil
}

func (s *Service) withdrawIn(ctx context.Context, tx Tx, p WithdrawParams) (*WithdrawResult, error) {
	if err := ValidateAccountNumber(p.AccountNumber); err != nil {
		return nil, err
	}
	if !p.Amount.IsPositive() {
		return nil, ErrInvalidAmount
	}

	acc, err := tx.Accounts().FindByNumber(ctx, p.AccountNumber)
	if err != nil {
		return nil, err
	}

	head, err := tx.Ledger().GetHeadForUpdate(ctx, acc.ID)
	if err != nil {
		return nil, err
	}

	fee := s.fees.Calculate(p.Amount, OpWithdraw)
	if !acc.CanDebit(p.Amount, fee) {
		return nil, &InsufficientFundsError{
			AccountNumber: acc.Number,
			Available:     acc.Balance().Add(acc.CreditLimit()),
			Requested:     p.Amount.Add(fee),
		}
	}

	acc.ApplyDebit(p.Amount, fee)
	if err := tx.Accounts().Save(ctx, acc); err != nil {
		return nil, err
	}

	entry, err := s.appendEntry(ctx, tx, head, appendInput{
		account:     acc,
		op:          OpWithdraw,
		amount:      p.Amount,
		fee:         fee,
		occurredAt:  OccurredAtFrom(s.Clock()),
		description: p.Description,
	})
	if err != nil {
		return nil, err
	}

	return &WithdrawResult{
		AccountNumber: acc.Number,
		EntryID:       entry.ID,
		Amount:        p.Amount,
		Balance:       acc.Balance(),
		Fee:           fee,
		Hash:          entry.Hash,
		Height:        entry.Height,
		OccurredAt:    entry.OccurredAt,
	}, nil
}

// =============================================================================
// TRANSFER
// =============================================================================

// Transfer moves amount between two accounts as one atomic operation. The
// fee is charged on the debit leg only. Two entries are appended - one per
// chain - sharing a single occurred-at instant and cross-linked via
// RelatedTxID.
func (s *Service) Transfer(ctx context.Context, p TransferParams) (*TransferResult, error) {
	var res *TransferResult
	err := s.uow.ReadWrite(ctx, func(tx Tx) error {
		r, err := s.transferIn(ctx, tx, p)
		res = r
		return err
	})
	if err != nil {
		return nil, err
	}
	s.emit(
		events.OperationRecorded{
			EntryID:        res.OutTxID,
			AccountNumber:  res.From,
			CounterAccount: res.To,
			Type:           string(OpTransferOut),
			Amount:         res.Amount.String(),
			Fee:            res.Fee.String(),
			Hash:           res.OutHash,
			Height:         res.OutHeight.String(),
			OccurredAt:     res.OccurredAt.Time(),
		},
		events.OperationRecorded{
			EntryID:        res.InTxID,
			AccountNumber:  res.To,
			CounterAccount: res.From,
			Type:           string(OpTransferIn),
			Amount:         res.Amount.String(),
			Fee:            "0.00",
			Hash:           res.InHash,
			Height:         res.InHeight.String(),
			OccurredAt:     res.OccurredAt.Time(),
		},
	)
	return res, nil
}

func (s *Service) transferIn(ctx context.Context, tx Tx, p TransferParams) (*TransferResult, error) {
	if p.From == p.To {
		return nil, ErrSameAccount
	}
	if err := ValidateAccountNumber(p.From); err != nil {
		return nil, err
	}
	if err := ValidateAccountNumber(p.To); err != nil {
		return nil, err
	}
	if !p.Amount.IsPositive() {
		return nil, ErrInvalidAmount
	}

	origin, err := tx.Accounts().FindByNumber(ctx, p.From)
	if err != nil {
		return nil, err
	}
	dest, err := tx.Accounts().FindByNumber(ctx, p.To)
	if err != nil {
		return nil, err
	}

	fee := s.fees.Calculate(p.Amount, OpTransferOut)
	if !origin.CanDebit(p.Amount, fee) {
		return nil, &InsufficientFundsError{
			AccountNumber: origin.Number,
			Available:     origin.Balance().Add(origin.CreditLimit()),
			Requested:     p.Amount.Add(fee),
		}
	}

	// Lock both heads in ascending account-id order, independent of
	// transfer direction.
	first, second := origin, dest
	if second.ID < first.ID {
		first, second = second, first
	}
	firstHead, err := tx.Ledger().GetHeadForUpdate(ctx, first.ID)
	if err != nil {
		return nil, err
	}
	secondHead, err := tx.Ledger().GetHeadForUpdate(ctx, second.ID)
	if err != nil {
		return nil, err
	}

	originHead, destHead := firstHead, secondHead
	if first.ID != origin.ID {
		originHead, destHead = secondHead, firstHead
	}

	origin.ApplyDebit(p.Amount, fee)
	dest.ApplyCredit(p.Amount)
	if err := tx.Accounts().Save(ctx, origin); err != nil {
		return nil, err
	}
	if err := tx.Accounts().Save(ctx, dest); err != nil {
		return nil, err
	}

	// Both legs share one occurred-at instant.
	occurred := OccurredAtFrom(s.Clock())
	outID := uuid.NewString()
	inID := uuid.NewString()

	outEntry, err := s.appendEntry(ctx, tx, originHead, appendInput{
		account:     origin,
		op:          OpTransferOut,
		amount:      p.Amount,
		fee:         fee,
		occurredAt:  occurred,
		description: p.Description,
		entryID:     outID,
		relatedTxID: inID,
	})
	if err != nil {
		return nil, err
	}
	inEntry, err := s.appendEntry(ctx, tx, destHead, appendInput{
		account:     dest,
		op:          OpTransferIn,
		amount:      p.Amount,
		fee:         NewMoney(0),
		occurredAt:  occurred,
		description: p.Description,
		entryID:     inID,
		relatedTxID: outID,
	})
	if err != nil {
		return nil, err
	}

	return &TransferResult{
		From:        origin.Number,
		To:          dest.Number,
		Amount:      p.Amount,
		Fee:         fee,
		OutTxID:     outEntry.ID,
		InTxID:      inEntry.ID,
		OutHash:     outEntry.Hash,
		InHash:      inEntry.Hash,
		OutHeight:   outEntry.Height,
		InHeight:    inEntry.Height,
		OriginAfter: origin.Balance(),
		DestAfter:   dest.Balance(),
		OccurredAt:  occurred,
	}, nil
}

// =============================================================================
// APPEND - Shared chain-extension step
// =============================================================================

type appendInput struct {
	account     *Account
	op          OperationType
	amount      Money
	fee         Money
	occurredAt  OccurredAt
	description string
	entryID     string // "" means generate
	relatedTxID string
}

// appendEntry computes the next hash and height from the locked head,
// inserts the entry, and advances the head. The head must have been
// obtained via GetHeadForUpdate in the same transaction.
func (s *Service) appendEntry(ctx context.Context, tx Tx, head *LedgerHead, in appendInput) (*LedgerEntry, error) {
	id := in.entryID
	if id == "" {
		id = uuid.NewString()
	}

	height := head.Height.Inc()
	hash := ComputeHash(in.account.Number, in.op, in.amount, in.fee,
		in.occurredAt.ISO(), head.HeadHash, in.description)

	entry := &LedgerEntry{
		ID:          id,
		AccountID:   in.account.ID,
		Type:        in.op,
		Amount:      in.amount,
		Fee:         in.fee,
		OccurredAt:  in.occurredAt,
		Description: in.description,
		PrevHash:    head.HeadHash,
		Hash:        hash,
		Height:      height,
		RelatedTxID: in.relatedTxID,
	}

	if err := tx.Ledger().Append(ctx, entry); err != nil {
		return nil, err
	}
	head.Advance(hash, height)
	if err := tx.Ledger().AdvanceHead(ctx, head); err != nil {
		return nil, err
	}
	return entry, nil
}

// =============================================================================
// PROCESS BATCH - All-or-nothing
// =============================================================================

// BatchItem is one element of a heterogeneous batch. Kind selects the
// operation; AccountNumber serves deposit/withdraw, From/To serve transfer.
type BatchItem struct {
	Kind          OperationType
	AccountNumber string
	From          string
	To            string
	Amount        Money
	Description   string
}

// BatchEntryResult is the outcome of one batch item; exactly one of the
// typed results is set, matching Type.
type BatchEntryResult struct {
	Type     OperationType
	Deposit  *DepositResult
	Withdraw *WithdrawResult
	Transfer *TransferResult
}

type BatchResult struct {
	Results []BatchEntryResult
	Count   int
}

// ProcessBatch runs the items in order inside a single transaction. The
// first failing item aborts the whole batch - nothing is applied - and the
// error is a BatchItemError carrying the failing index and redacted
// context. All-or-nothing by design, not best-effort.
func (s *Service) ProcessBatch(ctx context.Context, items []BatchItem) (*BatchResult, error) {
	if len(items) == 0 {
		return nil, ErrEmptyBatch
	}

	var results []BatchEntryResult
	err := s.uow.ReadWrite(ctx, func(tx Tx) error {
		for i, item := range items {
			r, err := s.processItem(ctx, tx, item)
			if err != nil {
				return &BatchItemError{
					Index:    i,
					Kind:     item.Kind,
					Amount:   item.Amount,
					Accounts: item.accountRefs(),
					Err:      err,
				}
			}
			results = append(results, *r)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	for _, r := range results {
		s.emitBatchEntry(r)
	}
	return &BatchResult{Results: results, Count: len(items)}, nil
}

func (s *Service) processItem(ctx context.Context, tx Tx, item BatchItem) (*BatchEntryResult, error) {
	switch item.Kind {
	case OpDeposit:
		r, err := s.depositIn(ctx, tx, DepositParams{
			AccountNumber: item.AccountNumber,
			Amount:        item.Amount,
			Description:   item.Description,
		})
		if err != nil {
			return nil, err
		}
		return &BatchEntryResult{Type: OpDeposit, Deposit: r}, nil
	case OpWithdraw:
		r, err := s.withdrawIn(ctx, tx, WithdrawParams{
			AccountNumber: item.AccountNumber,
			Amount:        item.Amount,
			Description:   item.Description,
		})
		if err != nil {
			return nil, err
		}
		return &BatchEntryResult{Type: OpWithdraw, Withdraw: r}, nil
	case OpTransfer:
		r, err := s.transferIn(ctx, tx, TransferParams{
			From:        item.From,
			To:          item.To,
			Amount:      item.Amount,
			Description: item.Description,
		})
		if err != nil {
			return nil, err
		}
		return &BatchEntryResult{Type: OpTransfer, Transfer: r}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownBatchItemType, item.Kind)
	}
}

func (item BatchItem) accountRefs() []string {
	if item.Kind == OpTransfer {
		return []string{item.From, item.To}
	}
	return []string{item.AccountNumber}
}

// =============================================================================
// GET BALANCE - Read-only
// =============================================================================

// GetBalance returns the balance, credit limit, and chain tip for an
// account. The head is read without a write lock.
func (s *Service) GetBalance(ctx context.Context, accountNumber string) (*BalanceResult, error) {
	if err := ValidateAccountNumber(accountNumber); err != nil {
		return nil, err
	}

	var res *BalanceResult
	err := s.uow.ReadOnly(ctx, func(tx Tx) error {
		acc, err := tx.Accounts().FindByNumber(ctx, accountNumber)
		if err != nil {
			return err
		}
		head, err := tx.Ledger().GetHead(ctx, acc.ID)
		if err != nil {
			return err
		}

		info := HeadInfo{Height: "0", Hash: ""}
		if head != nil {
			info = HeadInfo{Height: head.Height.String(), Hash: head.HeadHash}
		}
		res = &BalanceResult{
			AccountNumber: acc.Number,
			Balance:       acc.Balance(),
			CreditLimit:   acc.CreditLimit(),
			Head:          info,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

// =============================================================================
// VERIFY CHAIN - Read-only tamper check
// =============================================================================

// VerifyChain replays an account's chain from genesis, recomputing every
// hash with the same canonicalization used at append time. The first
// mismatch is reported with the broken height and the expected versus
// stored previous hash. An empty chain verifies as OK at height 0.
//
// The read is consistent but not lock-coordinated with concurrent appends,
// so the reported head reflects the chain as of the read snapshot.
func (s *Service) VerifyChain(ctx context.Context, accountNumber string) (*VerifyResult, error) {
	if err := ValidateAccountNumber(accountNumber); err != nil {
		return nil, err
	}

	var res *VerifyResult
	err := s.uow.ReadOnly(ctx, func(tx Tx) error {
		acc, err := tx.Accounts().FindByNumber(ctx, accountNumber)
		if err != nil {
			return err
		}
		entries, err := tx.Ledger().ListByAccount(ctx, acc.ID)
		if err != nil {
			return err
		}

		prevExpected := ""
		height := "0"
		for _, e := range entries {
			recomputed := ComputeHash(acc.Number, e.Type, e.Amount, e.Fee,
				e.OccurredAt.ISO(), prevExpected, e.Description)
			if e.PrevHash != prevExpected || e.Hash != recomputed {
				res = &VerifyResult{
					OK:           false,
					BrokenAt:     e.Height.String(),
					ExpectedPrev: prevExpected,
					GotPrev:      e.PrevHash,
				}
				return nil
			}
			prevExpected = e.Hash
			height = e.Height.String()
		}

		res = &VerifyResult{OK: true, Height: height, Head: prevExpected}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

// =============================================================================
// AUDIT READS
// =============================================================================

// LedgerPage is one page of an account's chain, ascending by height.
type LedgerPage struct {
	AccountNumber string
	Page          int
	Limit         int
	Total         int
	Entries       []LedgerEntry
}

// ListEntries returns a page of an account's ledger for the audit surface.
func (s *Service) ListEntries(ctx context.Context, accountNumber string, q EntryQuery) (*LedgerPage, error) {
	if err := ValidateAccountNumber(accountNumber); err != nil {
		return nil, err
	}
	if q.Page < 1 {
		q.Page = 1
	}
	if q.Limit < 1 {
		q.Limit = 20
	}

	var res *LedgerPage
	err := s.uow.ReadOnly(ctx, func(tx Tx) error {
		acc, err := tx.Accounts().FindByNumber(ctx, accountNumber)
		if err != nil {
			return err
		}
		entries, total, err := tx.Ledger().ListPage(ctx, acc.ID, q)
		if err != nil {
			return err
		}
		res = &LedgerPage{
			AccountNumber: acc.Number,
			Page:          q.Page,
			Limit:         q.Limit,
			Total:         total,
			Entries:       entries,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

// EntryLookup resolves a single entry by its hash, with the owning
// account's number.
type EntryLookup struct {
	AccountNumber string
	Entry         LedgerEntry
}

// GetEntry finds an entry anywhere in the ledger by its globally unique
// hash.
func (s *Service) GetEntry(ctx context.Context, hash string) (*EntryLookup, error) {
	var res *EntryLookup
	err := s.uow.ReadOnly(ctx, func(tx Tx) error {
		entry, err := tx.Ledger().FindByHash(ctx, hash)
		if err != nil {
			return err
		}
		acc, err := tx.Accounts().FindByID(ctx, entry.AccountID)
		if err != nil {
			return err
		}
		res = &EntryLookup{AccountNumber: acc.Number, Entry: *entry}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

// =============================================================================
// EVENT PUBLISHING
// =============================================================================

func (s *Service) emit(evts ...events.OperationRecorded) {
	for _, e := range evts {
		if err := s.pub.Publish(events.TopicOperationRecorded, e); err != nil {
			log.Printf("event publish failed for entry %s: %v", e.EntryID, err)
		}
	}
}

func (s *Service) emitBatchEntry(r BatchEntryResult) {
	switch r.Type {
	case OpDeposit:
		s.emit(events.OperationRecorded{
			EntryID:       r.Deposit.EntryID,
			AccountNumber: r.Deposit.AccountNumber,
			Type:          string(OpDeposit),
			Amount:        r.Deposit.Amount.String(),
			Fee:           r.Deposit.Fee.String(),
			Hash:          r.Deposit.Hash,
			Height:        r.Deposit.Height.String(),
			OccurredAt:    r.Deposit.OccurredAt.Time(),
		})
	case OpWithdraw:
		s.emit(events.OperationRecorded{
			EntryID:       r.Withdraw.EntryID,
			AccountNumber: r.Withdraw.AccountNumber,
			Type:          string(OpWithdraw),
			Amount:        r.Withdraw.Amount.String(),
			Fee:           r.Withdraw.Fee.String(),
			Hash:          r.Withdraw.Hash,
			Height:        r.Withdraw.Height.String(),
			OccurredAt:    r.Withdraw.OccurredAt.Time(),
		})
	case OpTransfer:
		s.emit(
			events.OperationRecorded{
				EntryID:        r.Transfer.OutTxID,
				AccountNumber:  r.Transfer.From,
				CounterAccount: r.Transfer.To,
				Type:           string(OpTransferOut),
				Amount:         r.Transfer.Amount.String(),
				Fee:            r.Transfer.Fee.String(),
				Hash:           r.Transfer.OutHash,
				Height:         r.Transfer.OutHeight.String(),
				OccurredAt:     r.Transfer.OccurredAt.Time(),
			},
			events.OperationRecorded{
				EntryID:        r.Transfer.InTxID,
				AccountNumber:  r.Transfer.To,
				CounterAccount: r.Transfer.From,
				Type:           string(OpTransferIn),
				Amount:         r.Transfer.Amount.String(),
				Fee:            "0.00",
				Hash:           r.Transfer.InHash,
				Height:         r.Transfer.InHeight.String(),
				OccurredAt:     r.Transfer.OccurredAt.Time(),
			},
		)
	}
}
