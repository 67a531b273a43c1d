package ledger

// Account holds a balance and a credit limit. The invariant
// balance + creditLimit >= 0 must hold after every mutation; debits that
// would breach it are rejected by CanDebit before they are applied.
//
// The balance is unexported on purpose: the only mutations are ApplyCredit
// and ApplyDebit, and they assume the caller already ran CanDebit where
// relevant. They do not re-validate, so there is a single source of truth
// for the check.
type Account struct {
	ID     string
	Number string

	balance     Money
	creditLimit Money
}

// NewAccount builds an account with an opening balance and a fixed,
// non-negative credit limit.
func NewAccount(id, number string, balance, creditLimit Money) *Account {
	return &Account{ID: id, Number: number, balance: balance, creditLimit: creditLimit}
}

func (a *Account) Balance() Money     { return a.balance }
func (a *Account) CreditLimit() Money { return a.creditLimit }

// CanDebit reports whether amount+fee can be taken without breaching the
// credit limit: balance + creditLimit >= amount + fee.
func (a *Account) CanDebit(amount, fee Money) bool {
	return a.balance.Add(a.creditLimit).GTE(amount.Add(fee))
}

// ApplyCredit adds amount to the balance.
func (a *Account) ApplyCredit(amount Money) {
	a.balance = a.balance.Add(amount)
}

// ApplyDebit subtracts amount+fee from the balance. The balance may go
// negative down to -creditLimit; the caller must have checked CanDebit.
func (a *Account) ApplyDebit(amount, fee Money) {
	a.balance = a.balance.Sub(amount.Add(fee))
}

// Clone returns an independent copy. Stores use it to stage mutations that
// may be rolled back.
func (a *Account) Clone() *Account {
	c := *a
	return &c
}
