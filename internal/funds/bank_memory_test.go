package funds

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/stretchr/testify/suite"

	"namehaus/pkg/domain"
	"namehaus/pkg/platform/sentinel"
)

type BankSuite struct {
	suite.Suite
	bank *InMemoryBank
}

func TestBankSuite(t *testing.T) {
	suite.Run(t, new(BankSuite))
}

func (s *BankSuite) SetupTest() {
	s.bank = NewInMemoryBank()
}

func (s *BankSuite) TestTransfer() {
	ctx := context.Background()
	alice := addr(0xA1)
	bob := addr(0xB0)

	s.Run("moves funds between accounts", func() {
		s.Require().NoError(s.bank.Deposit(ctx, alice, big.NewInt(100)))
		s.Require().NoError(s.bank.Transfer(ctx, alice, bob, big.NewInt(40)))

		s.Equal(big.NewInt(60), s.balance(alice))
		s.Equal(big.NewInt(40), s.balance(bob))
	})

	s.Run("fails on insufficient funds without partial application", func() {
		before := s.bank.TotalSupply()
		err := s.bank.Transfer(ctx, alice, bob, big.NewInt(1_000_000))
		s.ErrorIs(err, sentinel.ErrInsufficientFunds)
		s.Equal(before, s.bank.TotalSupply())
		s.Equal(big.NewInt(60), s.balance(alice))
	})

	s.Run("conserves total supply", func() {
		before := s.bank.TotalSupply()
		s.Require().NoError(s.bank.Transfer(ctx, bob, alice, big.NewInt(15)))
		s.Equal(before, s.bank.TotalSupply())
	})

	s.Run("zero transfer is a no-op", func() {
		s.NoError(s.bank.Transfer(ctx, addr(0xEE), bob, big.NewInt(0)))
	})
}

func (s *BankSuite) TestReceiveHook() {
	ctx := context.Background()
	payer := addr(0x01)
	payee := addr(0x02)
	s.Require().NoError(s.bank.Deposit(ctx, payer, big.NewInt(100)))

	s.Run("hook runs after balances settle", func() {
		var observed *big.Int
		s.bank.SetReceiveHook(payee, func(ctx context.Context, from domain.Address, amount *big.Int) error {
			bal, err := s.bank.BalanceOf(ctx, payee)
			s.NoError(err)
			observed = bal
			return nil
		})

		s.Require().NoError(s.bank.Transfer(ctx, payer, payee, big.NewInt(10)))
		s.Equal(big.NewInt(10), observed)
	})

	s.Run("hook may transfer again without deadlock", func() {
		s.bank.SetReceiveHook(payee, func(ctx context.Context, from domain.Address, amount *big.Int) error {
			return s.bank.Transfer(ctx, payee, payer, amount)
		})

		s.Require().NoError(s.bank.Transfer(ctx, payer, payee, big.NewInt(5)))
		// The hook bounced the funds straight back.
		s.Equal(big.NewInt(10), s.balance(payee))
	})

	s.Run("hook error unwinds the settlement", func() {
		rejected := errors.New("payment rejected")
		s.bank.SetReceiveHook(payee, func(context.Context, domain.Address, *big.Int) error {
			return rejected
		})

		payerBefore := s.balance(payer)
		payeeBefore := s.balance(payee)
		supplyBefore := s.bank.TotalSupply()

		err := s.bank.Transfer(ctx, payer, payee, big.NewInt(30))
		s.ErrorIs(err, rejected)
		s.Equal(payerBefore, s.balance(payer))
		s.Equal(payeeBefore, s.balance(payee))
		s.Equal(supplyBefore, s.bank.TotalSupply())
	})

	s.Run("a cleared hook delivers again", func() {
		s.bank.SetReceiveHook(payee, nil)
		payeeBefore := s.balance(payee)
		s.Require().NoError(s.bank.Transfer(ctx, payer, payee, big.NewInt(30)))
		s.Equal(new(big.Int).Add(payeeBefore, big.NewInt(30)), s.balance(payee))
	})
}

func (s *BankSuite) balance(a domain.Address) *big.Int {
	bal, err := s.bank.BalanceOf(context.Background(), a)
	s.Require().NoError(err)
	return bal
}

func addr(last byte) domain.Address {
	var a domain.Address
	a[19] = last
	return a
}
