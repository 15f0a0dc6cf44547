package marketplace

import (
	"context"
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"namehaus/internal/events"
	"namehaus/internal/feemanager"
	"namehaus/internal/funds"
	"namehaus/internal/ledger"
	"namehaus/pkg/domain"
	dErrors "namehaus/pkg/domain-errors"
	"namehaus/pkg/requestcontext"
)

// =============================================================================
// Marketplace Test Suite
// =============================================================================
// Justification for unit tests: fee math, custody escrow transitions, and the
// pull-payment refund ledger need exact balance assertions under a
// deterministic clock.

type MarketplaceSuite struct {
	suite.Suite
	bank     *funds.InMemoryBank
	ledger   *ledger.InMemoryLedger
	fees     *feemanager.Service
	recorder *events.Recorder
	service  *Service

	account domain.Address
	seller  domain.Address
	buyer   domain.Address
	rival   domain.Address
	tokenID domain.TokenID
	now     time.Time
}

func TestMarketplaceSuite(t *testing.T) {
	suite.Run(t, new(MarketplaceSuite))
}

func (s *MarketplaceSuite) SetupTest() {
	s.bank = funds.NewInMemoryBank()
	s.ledger = ledger.NewInMemoryLedger()
	s.recorder = events.NewRecorder()
	s.account = mktAddr(0xE5)
	s.seller = mktAddr(0x5E)
	s.buyer = mktAddr(0xB1)
	s.rival = mktAddr(0xB2)
	s.tokenID = domain.NameHash("abcd")
	s.now = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	var err error
	s.fees, err = feemanager.New(s.bank, mktAddr(0xFE), mktAddr(0x77), 48*time.Hour, s.ether("10"))
	s.Require().NoError(err)

	s.service, err = New(s.ledger, s.bank, s.fees, s.account, Config{},
		WithEmitter(s.recorder),
	)
	s.Require().NoError(err)

	ctx := context.Background()
	s.Require().NoError(s.ledger.MintOrExtend(ctx, s.tokenID, "abcd", s.seller, s.now.Add(365*24*time.Hour)))
	s.Require().NoError(s.bank.Deposit(ctx, s.buyer, s.ether("10")))
	s.Require().NoError(s.bank.Deposit(ctx, s.rival, s.ether("10")))
}

func (s *MarketplaceSuite) ether(v string) *big.Int {
	wei, err := domain.ParseEther(v)
	s.Require().NoError(err)
	return wei
}

func (s *MarketplaceSuite) ctxAt(t time.Time) context.Context {
	return requestcontext.WithTime(context.Background(), t)
}

func (s *MarketplaceSuite) balance(a domain.Address) *big.Int {
	bal, err := s.bank.BalanceOf(context.Background(), a)
	s.Require().NoError(err)
	return bal
}

func (s *MarketplaceSuite) custody() ledger.CustodyState {
	rec, ok := s.ledger.Record(s.tokenID)
	s.Require().True(ok)
	return rec.Custody
}

func (s *MarketplaceSuite) owner() domain.Address {
	rec, ok := s.ledger.Record(s.tokenID)
	s.Require().True(ok)
	return rec.Owner
}

// =============================================================================
// Listing Tests
// =============================================================================

func (s *MarketplaceSuite) TestCreateListing() {
	s.Run("rejects zero price", func() {
		err := s.service.CreateListing(s.ctxAt(s.now), s.seller, s.tokenID, big.NewInt(0))
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})

	s.Run("rejects non-owners", func() {
		err := s.service.CreateListing(s.ctxAt(s.now), s.buyer, s.tokenID, s.ether("1"))
		s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
	})

	s.Run("escrows the record and stores the listing", func() {
		s.Require().NoError(s.service.CreateListing(s.ctxAt(s.now), s.seller, s.tokenID, s.ether("1")))

		s.Equal(ledger.CustodyEscrowedListing, s.custody())
		listing, err := s.service.GetListing(s.tokenID)
		s.NoError(err)
		s.True(listing.Active)
		s.Equal(s.seller, listing.Seller)
		s.Len(s.recorder.ByName(events.Listed), 1)
	})

	s.Run("a second active escrow is rejected", func() {
		err := s.service.CreateListing(s.ctxAt(s.now), s.seller, s.tokenID, s.ether("2"))
		s.True(dErrors.HasCode(err, dErrors.CodeConflict))
		err = s.service.CreateAuction(s.ctxAt(s.now), s.seller, s.tokenID, s.ether("1"), 2*time.Hour)
		s.True(dErrors.HasCode(err, dErrors.CodeConflict))
	})
}

func (s *MarketplaceSuite) TestCancelListing() {
	s.Require().NoError(s.service.CreateListing(s.ctxAt(s.now), s.seller, s.tokenID, s.ether("1")))

	s.Run("only the seller may cancel", func() {
		err := s.service.CancelListing(s.ctxAt(s.now), s.buyer, s.tokenID)
		s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
	})

	s.Run("cancel returns custody and deactivates", func() {
		s.Require().NoError(s.service.CancelListing(s.ctxAt(s.now), s.seller, s.tokenID))

		s.Equal(ledger.CustodyOwned, s.custody())
		s.Equal(s.seller, s.owner())
		listing, err := s.service.GetListing(s.tokenID)
		s.NoError(err)
		s.False(listing.Active)
		s.Len(s.recorder.ByName(events.ListingCancelled), 1)
	})

	s.Run("buying a cancelled listing fails", func() {
		err := s.service.BuyListing(s.ctxAt(s.now), s.buyer, s.tokenID, s.ether("1"))
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})
}

func (s *MarketplaceSuite) TestBuyListing() {
	s.Require().NoError(s.service.CreateListing(s.ctxAt(s.now), s.seller, s.tokenID, s.ether("1")))

	s.Run("underpayment fails", func() {
		err := s.service.BuyListing(s.ctxAt(s.now), s.buyer, s.tokenID, s.ether("0.99"))
		s.True(dErrors.HasCode(err, dErrors.CodeInsufficientPayment))
	})

	s.Run("seller receives price net of the 2.5% fee", func() {
		buyerBefore := s.balance(s.buyer)
		s.Require().NoError(s.service.BuyListing(s.ctxAt(s.now), s.buyer, s.tokenID, s.ether("1.5")))

		// 1.0 ETH listing at 250 bps pays the seller exactly 0.975 ETH.
		s.Equal(s.ether("0.975"), s.balance(s.seller))
		s.Equal(s.ether("0.025"), s.service.AccruedFees())

		// Overpayment refunded exactly: buyer spent exactly the price.
		spent := new(big.Int).Sub(buyerBefore, s.balance(s.buyer))
		s.Equal(s.ether("1"), spent)

		s.Equal(s.buyer, s.owner())
		s.Equal(ledger.CustodyOwned, s.custody())
		s.Len(s.recorder.ByName(events.Sold), 1)
	})

	s.Run("the listing is deactivated", func() {
		err := s.service.BuyListing(s.ctxAt(s.now), s.rival, s.tokenID, s.ether("1"))
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})

	s.Run("total supply is conserved", func() {
		s.Equal(s.ether("20"), s.bank.TotalSupply())
	})

	s.Run("sweep forwards accrued fees to the fee manager", func() {
		s.Require().NoError(s.service.SweepFees(s.ctxAt(s.now)))
		s.Equal(s.ether("0.025"), s.fees.Balance())
		s.Equal(big.NewInt(0), s.service.AccruedFees())
	})
}

// custodyFailLedger makes custody writes fail on demand.
type custodyFailLedger struct {
	*ledger.InMemoryLedger
	fail bool
}

func (l *custodyFailLedger) TransferCustody(ctx context.Context, tokenID domain.TokenID, to domain.Address, state ledger.CustodyState) error {
	if l.fail {
		return errors.New("custody write failed")
	}
	return l.InMemoryLedger.TransferCustody(ctx, tokenID, to, state)
}

func (s *MarketplaceSuite) TestBuyListingCustodyFailure() {
	flaky := &custodyFailLedger{InMemoryLedger: s.ledger}
	svc, err := New(flaky, s.bank, s.fees, s.account, Config{}, WithEmitter(s.recorder))
	s.Require().NoError(err)
	s.Require().NoError(svc.CreateListing(s.ctxAt(s.now), s.seller, s.tokenID, s.ether("1")))

	s.Run("a failed custody write refunds the buyer", func() {
		flaky.fail = true
		// The refund credits the buyer, whose receive hook reads marketplace
		// state. It must not observe the mutex held.
		var observed *big.Int
		s.bank.SetReceiveHook(s.buyer, func(context.Context, domain.Address, *big.Int) error {
			observed = svc.PendingReturns(s.buyer)
			return nil
		})

		err := svc.BuyListing(s.ctxAt(s.now), s.buyer, s.tokenID, s.ether("1"))
		s.True(dErrors.HasCode(err, dErrors.CodeInternal))
		s.Require().NotNil(observed)
		s.Zero(observed.Sign())
		s.Equal(s.ether("10"), s.balance(s.buyer))
		s.Equal(big.NewInt(0), svc.AccruedFees())
	})

	s.Run("the listing survives and sells once custody recovers", func() {
		flaky.fail = false
		s.bank.SetReceiveHook(s.buyer, nil)

		listing, err := svc.GetListing(s.tokenID)
		s.NoError(err)
		s.True(listing.Active)

		s.Require().NoError(svc.BuyListing(s.ctxAt(s.now), s.buyer, s.tokenID, s.ether("1")))
		s.Equal(s.buyer, s.owner())
	})
}

// =============================================================================
// Fee Admin Tests
// =============================================================================

func (s *MarketplaceSuite) TestSetFee() {
	s.Run("fee above the cap is rejected", func() {
		err := s.service.SetFee(s.ctxAt(s.now), domain.MaxMarketplaceFeeBps+1)
		s.True(dErrors.HasCode(err, dErrors.CodeLimitExceeded))
		s.Equal(uint32(DefaultFeeBps), s.service.Fee())
	})

	s.Run("fee update applies to later sales", func() {
		s.Require().NoError(s.service.SetFee(s.ctxAt(s.now), 1000))
		s.Require().NoError(s.service.CreateListing(s.ctxAt(s.now), s.seller, s.tokenID, s.ether("1")))
		s.Require().NoError(s.service.BuyListing(s.ctxAt(s.now), s.buyer, s.tokenID, s.ether("1")))

		s.Equal(s.ether("0.9"), s.balance(s.seller))
		s.Len(s.recorder.ByName(events.MarketplaceFeeUpdated), 1)
	})
}

// =============================================================================
// Pause Tests
// =============================================================================

func (s *MarketplaceSuite) TestPause() {
	s.service.Pause()

	s.Run("paused gates the mutating entry points", func() {
		err := s.service.CreateListing(s.ctxAt(s.now), s.seller, s.tokenID, s.ether("1"))
		s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
		err = s.service.CreateAuction(s.ctxAt(s.now), s.seller, s.tokenID, s.ether("1"), 2*time.Hour)
		s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
		err = s.service.BuyListing(s.ctxAt(s.now), s.buyer, s.tokenID, s.ether("1"))
		s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
	})

	s.Run("unpausing restores normal operation", func() {
		s.service.Unpause()
		s.NoError(s.service.CreateListing(s.ctxAt(s.now), s.seller, s.tokenID, s.ether("1")))
	})
}

func mktAddr(last byte) domain.Address {
	var a domain.Address
	a[19] = last
	return a
}
