package funds

import (
	"context"
	"math/big"
	"sync"

	"namehaus/pkg/domain"
	"namehaus/pkg/platform/sentinel"
)

// ReceiveHook runs when an account is credited, after the balances have been
// updated. It stands in for a payee contract's receive path: a hook may call
// back into the engine before the outer Transfer returns, which is exactly
// the reentrancy surface the services must survive. A hook error rejects the
// payment: the settlement is rolled back before Transfer returns the error.
type ReceiveHook func(ctx context.Context, from domain.Address, amount *big.Int) error

// InMemoryBank keeps per-account balances guarded by a mutex. It favors
// clarity over performance.
type InMemoryBank struct {
	mu       sync.Mutex
	balances map[domain.Address]*big.Int
	hooks    map[domain.Address]ReceiveHook
}

func NewInMemoryBank() *InMemoryBank {
	return &InMemoryBank{
		balances: make(map[domain.Address]*big.Int),
		hooks:    make(map[domain.Address]ReceiveHook),
	}
}

// Deposit mints funds into an account. Test and dev wiring only.
func (b *InMemoryBank) Deposit(_ context.Context, to domain.Address, amount *big.Int) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.credit(to, amount)
	return nil
}

// Transfer debits from and credits to atomically, then runs the recipient's
// receive hook outside the lock so a hook that calls back into the engine
// (and through it, back into the bank) cannot deadlock. If the hook errors,
// the settlement is unwound: an error from Transfer always means no funds
// moved, so callers may restore their own state on failure.
func (b *InMemoryBank) Transfer(ctx context.Context, from, to domain.Address, amount *big.Int) error {
	if amount.Sign() == 0 {
		return nil
	}
	b.mu.Lock()
	bal := b.balances[from]
	if bal == nil || bal.Cmp(amount) < 0 {
		b.mu.Unlock()
		return sentinel.ErrInsufficientFunds
	}
	bal.Sub(bal, amount)
	b.credit(to, amount)
	hook := b.hooks[to]
	b.mu.Unlock()

	if hook == nil {
		return nil
	}
	if err := hook(ctx, from, amount); err != nil {
		// The payee rejected the payment; unwind the settlement.
		b.mu.Lock()
		b.balances[to].Sub(b.balances[to], amount)
		b.credit(from, amount)
		b.mu.Unlock()
		return err
	}
	return nil
}

func (b *InMemoryBank) BalanceOf(_ context.Context, addr domain.Address) (*big.Int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	bal := b.balances[addr]
	if bal == nil {
		return big.NewInt(0), nil
	}
	return new(big.Int).Set(bal), nil
}

// SetReceiveHook installs a receive hook for an account. Tests install
// malicious hooks here to drive the reentrancy scenarios.
func (b *InMemoryBank) SetReceiveHook(addr domain.Address, hook ReceiveHook) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.hooks[addr] = hook
}

// TotalSupply sums every balance. Conservation-of-funds assertions compare it
// before and after an operation.
func (b *InMemoryBank) TotalSupply() *big.Int {
	b.mu.Lock()
	defer b.mu.Unlock()
	total := big.NewInt(0)
	for _, bal := range b.balances {
		total.Add(total, bal)
	}
	return total
}

// credit must be called while holding b.mu.
func (b *InMemoryBank) credit(to domain.Address, amount *big.Int) {
	bal := b.balances[to]
	if bal == nil {
		bal = big.NewInt(0)
		b.balances[to] = bal
	}
	bal.Add(bal, amount)
}
