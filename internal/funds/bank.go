// Package funds models the value-transfer substrate the engine moves money
// through. The engine's own components (controller, marketplace, fee manager)
// each hold an account; payments are pulled into a component account first,
// then split outward only after all internal state is finalized.
package funds

import (
	"context"
	"math/big"

	"namehaus/pkg/domain"
)

// Bank is the value-transfer port. Every external transfer may hand control
// to the recipient (a payee's receive path can call back into the engine), so
// callers must order transfers after all state mutation.
type Bank interface {
	// Transfer moves amount wei from one account to another. Fails with
	// sentinel.ErrInsufficientFunds when the source balance is too low,
	// or with the recipient's error when its receive path rejects the
	// payment. An error always means no funds moved.
	Transfer(ctx context.Context, from, to domain.Address, amount *big.Int) error

	// BalanceOf returns the current balance of an account. Absent accounts
	// have a zero balance.
	BalanceOf(ctx context.Context, addr domain.Address) (*big.Int, error)
}

// Depositor is implemented by banks that can mint test/dev funds.
type Depositor interface {
	Deposit(ctx context.Context, to domain.Address, amount *big.Int) error
}
