// Package seed provisions the demo fixture accounts. Account provisioning
// is otherwise external to the core, so this is the only place accounts are
// created.
package seed

import (
	"context"

	"github.com/google/uuid"

	"github.com/warp/chainledger/ledger"
)

// Fixture is one seeded account.
type Fixture struct {
	Number      string
	Balance     string
	CreditLimit string
}

// Fixtures are the well-known demo accounts.
var Fixtures = []Fixture{
	{Number: "ACC-001", Balance: "1000.00", CreditLimit: "500.00"},
	{Number: "ACC-002", Balance: "0.00", CreditLimit: "50.00"},
	{Number: "ACC-003", Balance: "50.00", CreditLimit: "150.00"},
}

// Apply creates any fixture accounts that do not already exist. Idempotent:
// existing accounts are left untouched, balances included.
func Apply(ctx context.Context, uow ledger.UnitOfWork) error {
	return uow.ReadWrite(ctx, func(tx ledger.Tx) error {
		for _, f := range Fixtures {
			_, err := tx.Accounts().FindByNumber(ctx, f.Number)
			if err == nil {
				continue
			}
			if !ledger.IsNotFound(err) {
				return err
			}

			acc := ledger.NewAccount(uuid.NewString(), f.Number,
				ledger.MustParseMoney(f.Balance), ledger.MustParseMoney(f.CreditLimit))
			if err := tx.Accounts().Create(ctx, acc); err != nil {
				return err
			}
		}
		return nil
	})
}
