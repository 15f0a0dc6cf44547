package marketplace

import (
	"context"
	"errors"
	"math/big"
	"time"

	"namehaus/internal/events"
	"namehaus/internal/ledger"
	"namehaus/pkg/domain"
	dErrors "namehaus/pkg/domain-errors"
)

// =============================================================================
// Auction Tests
// =============================================================================

func (s *MarketplaceSuite) createAuction(duration time.Duration) {
	s.Require().NoError(s.service.CreateAuction(s.ctxAt(s.now), s.seller, s.tokenID, s.ether("1"), duration))
}

func (s *MarketplaceSuite) TestCreateAuction() {
	s.Run("rejects durations below the minimum", func() {
		err := s.service.CreateAuction(s.ctxAt(s.now), s.seller, s.tokenID, s.ether("1"), 59*time.Minute)
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})

	s.Run("rejects non-owners", func() {
		err := s.service.CreateAuction(s.ctxAt(s.now), s.buyer, s.tokenID, s.ether("1"), 2*time.Hour)
		s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
	})

	s.Run("escrows the record and opens the auction", func() {
		s.createAuction(2 * time.Hour)

		s.Equal(ledger.CustodyEscrowedAuction, s.custody())
		auction, err := s.service.GetAuction(s.tokenID)
		s.NoError(err)
		s.True(auction.Active)
		s.Equal(s.now.Add(2*time.Hour), auction.EndTime)
		s.Len(s.recorder.ByName(events.AuctionCreated), 1)
	})

	s.Run("a concurrent listing is rejected", func() {
		err := s.service.CreateListing(s.ctxAt(s.now), s.seller, s.tokenID, s.ether("1"))
		s.True(dErrors.HasCode(err, dErrors.CodeConflict))
	})
}

func (s *MarketplaceSuite) TestPlaceBid() {
	s.createAuction(2 * time.Hour)

	s.Run("first bid below the start price fails", func() {
		err := s.service.PlaceBid(s.ctxAt(s.now), s.buyer, s.tokenID, s.ether("0.9"))
		s.True(dErrors.HasCode(err, dErrors.CodeInsufficientPayment))
	})

	s.Run("first bid at the start price is accepted and escrowed", func() {
		s.Require().NoError(s.service.PlaceBid(s.ctxAt(s.now), s.buyer, s.tokenID, s.ether("1")))

		s.Equal(s.ether("9"), s.balance(s.buyer))
		auction, err := s.service.GetAuction(s.tokenID)
		s.NoError(err)
		s.Equal(s.buyer, auction.HighestBidder)
		s.Equal(s.ether("1"), auction.CurrentBid)
	})

	s.Run("a bid below the 5% increment fails", func() {
		err := s.service.PlaceBid(s.ctxAt(s.now), s.rival, s.tokenID, s.ether("1.04"))
		s.True(dErrors.HasCode(err, dErrors.CodeInsufficientPayment))
	})

	s.Run("outbidding credits the previous bidder's pending returns", func() {
		s.Require().NoError(s.service.PlaceBid(s.ctxAt(s.now), s.rival, s.tokenID, s.ether("1.05")))

		// The outbid 1 ETH is claimable, never auto-pushed.
		s.Equal(s.ether("9"), s.balance(s.buyer))
		s.Equal(s.ether("1"), s.service.PendingReturns(s.buyer))

		auction, err := s.service.GetAuction(s.tokenID)
		s.NoError(err)
		s.Equal(s.rival, auction.HighestBidder)
		s.Equal(2, auction.BidCount)
	})

	s.Run("bids after the end time fail", func() {
		err := s.service.PlaceBid(s.ctxAt(s.now.Add(3*time.Hour)), s.buyer, s.tokenID, s.ether("5"))
		s.True(dErrors.HasCode(err, dErrors.CodeExpired))
	})

	s.Run("an unfunded bidder is rejected without state change", func() {
		broke := mktAddr(0xBB)
		err := s.service.PlaceBid(s.ctxAt(s.now), broke, s.tokenID, s.ether("2"))
		s.True(dErrors.HasCode(err, dErrors.CodeInsufficientPayment))

		auction, err2 := s.service.GetAuction(s.tokenID)
		s.NoError(err2)
		s.Equal(s.rival, auction.HighestBidder)
	})
}

func (s *MarketplaceSuite) TestAntiSnipe() {
	s.createAuction(time.Hour)
	end := s.now.Add(time.Hour)

	s.Run("a bid outside the trigger window leaves the end time alone", func() {
		s.Require().NoError(s.service.PlaceBid(s.ctxAt(s.now.Add(10*time.Minute)), s.buyer, s.tokenID, s.ether("1")))

		auction, err := s.service.GetAuction(s.tokenID)
		s.NoError(err)
		s.Equal(end, auction.EndTime)
	})

	s.Run("a bid nine minutes before the end extends it", func() {
		bidAt := end.Add(-9 * time.Minute)
		s.Require().NoError(s.service.PlaceBid(s.ctxAt(bidAt), s.rival, s.tokenID, s.ether("1.05")))

		auction, err := s.service.GetAuction(s.tokenID)
		s.NoError(err)
		s.Equal(end.Add(DefaultAntiSnipeExtension), auction.EndTime)
	})

	s.Run("settlement respects the extended end time", func() {
		err := s.service.SettleAuction(s.ctxAt(end.Add(5*time.Minute)), s.tokenID)
		s.True(dErrors.HasCode(err, dErrors.CodeTooEarly))
	})
}

func (s *MarketplaceSuite) TestSettleAuction() {
	s.createAuction(2 * time.Hour)
	end := s.now.Add(2 * time.Hour)

	s.Run("settlement before the end fails", func() {
		err := s.service.SettleAuction(s.ctxAt(s.now.Add(time.Hour)), s.tokenID)
		s.True(dErrors.HasCode(err, dErrors.CodeTooEarly))
	})

	s.Run("settlement with a winner transfers and pays net of fee", func() {
		s.Require().NoError(s.service.PlaceBid(s.ctxAt(s.now), s.buyer, s.tokenID, s.ether("2")))
		s.Require().NoError(s.service.SettleAuction(s.ctxAt(end), s.tokenID))

		s.Equal(s.buyer, s.owner())
		s.Equal(ledger.CustodyOwned, s.custody())
		// 2 ETH at 250 bps pays the seller 1.95 ETH.
		s.Equal(s.ether("1.95"), s.balance(s.seller))
		s.Equal(s.ether("0.05"), s.service.AccruedFees())

		auction, err := s.service.GetAuction(s.tokenID)
		s.NoError(err)
		s.False(auction.Active)
		s.True(auction.Settled)
		s.Len(s.recorder.ByName(events.AuctionSettled), 1)
	})

	s.Run("a settled auction cannot settle again", func() {
		err := s.service.SettleAuction(s.ctxAt(end), s.tokenID)
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})
}

func (s *MarketplaceSuite) TestSettleWithoutBids() {
	s.createAuction(2 * time.Hour)
	end := s.now.Add(2 * time.Hour)

	s.Require().NoError(s.service.SettleAuction(s.ctxAt(end), s.tokenID))

	s.Equal(s.seller, s.owner())
	s.Equal(ledger.CustodyOwned, s.custody())
	s.Equal(big.NewInt(0), s.balance(s.seller))
}

func (s *MarketplaceSuite) TestCancelAuction() {
	s.createAuction(2 * time.Hour)

	s.Run("only the seller may cancel", func() {
		err := s.service.CancelAuction(s.ctxAt(s.now), s.buyer, s.tokenID)
		s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
	})

	s.Run("cancel fails once any bid exists", func() {
		s.Require().NoError(s.service.PlaceBid(s.ctxAt(s.now), s.buyer, s.tokenID, s.ether("1")))
		err := s.service.CancelAuction(s.ctxAt(s.now), s.seller, s.tokenID)
		s.True(dErrors.HasCode(err, dErrors.CodeConflict))
	})
}

func (s *MarketplaceSuite) TestCancelAuctionWithoutBids() {
	s.createAuction(2 * time.Hour)

	s.Require().NoError(s.service.CancelAuction(s.ctxAt(s.now), s.seller, s.tokenID))
	s.Equal(s.seller, s.owner())
	s.Equal(ledger.CustodyOwned, s.custody())
	s.Len(s.recorder.ByName(events.AuctionCancelled), 1)
}

// =============================================================================
// Pending Returns Tests
// =============================================================================

func (s *MarketplaceSuite) TestWithdrawPendingReturns() {
	s.createAuction(2 * time.Hour)
	s.Require().NoError(s.service.PlaceBid(s.ctxAt(s.now), s.buyer, s.tokenID, s.ether("1")))
	s.Require().NoError(s.service.PlaceBid(s.ctxAt(s.now), s.rival, s.tokenID, s.ether("1.05")))

	s.Run("pays the full claim and zeroes it", func() {
		amount, err := s.service.WithdrawPendingReturns(s.ctxAt(s.now), s.buyer)
		s.NoError(err)
		s.Equal(s.ether("1"), amount)
		s.Equal(s.ether("10"), s.balance(s.buyer))
		s.Equal(big.NewInt(0), s.service.PendingReturns(s.buyer))
	})

	s.Run("an empty claim pays nothing", func() {
		amount, err := s.service.WithdrawPendingReturns(s.ctxAt(s.now), s.buyer)
		s.NoError(err)
		s.Zero(amount.Sign())
	})

	s.Run("a reentrant withdrawal during payout claims nothing extra", func() {
		// Outbid the rival so they hold a claim, then reenter from their
		// receive hook.
		s.Require().NoError(s.service.PlaceBid(s.ctxAt(s.now), s.buyer, s.tokenID, s.ether("1.2")))
		s.Equal(s.ether("1.05"), s.service.PendingReturns(s.rival))

		var reentrant *big.Int
		s.bank.SetReceiveHook(s.rival, func(ctx context.Context, _ domain.Address, _ *big.Int) error {
			inner, err := s.service.WithdrawPendingReturns(ctx, s.rival)
			s.NoError(err)
			reentrant = inner
			return nil
		})

		amount, err := s.service.WithdrawPendingReturns(s.ctxAt(s.now), s.rival)
		s.NoError(err)
		s.Equal(s.ether("1.05"), amount)
		s.Zero(reentrant.Sign())
		s.Equal(s.ether("10"), s.balance(s.rival))
		s.Len(s.recorder.ByName(events.PendingReturnsWithdrawn), 2)
	})
}

func (s *MarketplaceSuite) TestWithdrawRejectedPayment() {
	s.createAuction(2 * time.Hour)
	s.Require().NoError(s.service.PlaceBid(s.ctxAt(s.now), s.buyer, s.tokenID, s.ether("1")))
	s.Require().NoError(s.service.PlaceBid(s.ctxAt(s.now), s.rival, s.tokenID, s.ether("1.05")))

	rejected := errors.New("payment rejected")
	s.bank.SetReceiveHook(s.buyer, func(context.Context, domain.Address, *big.Int) error {
		return rejected
	})

	s.Run("a rejected payout leaves the claim intact", func() {
		amount, err := s.service.WithdrawPendingReturns(s.ctxAt(s.now), s.buyer)
		s.True(dErrors.HasCode(err, dErrors.CodeInternal))
		s.Nil(amount)
		s.Equal(s.ether("9"), s.balance(s.buyer))
		s.Equal(s.ether("1"), s.service.PendingReturns(s.buyer))
		s.Empty(s.recorder.ByName(events.PendingReturnsWithdrawn))
	})

	s.Run("the restored claim pays exactly once", func() {
		s.bank.SetReceiveHook(s.buyer, nil)
		amount, err := s.service.WithdrawPendingReturns(s.ctxAt(s.now), s.buyer)
		s.NoError(err)
		s.Equal(s.ether("1"), amount)
		s.Equal(s.ether("10"), s.balance(s.buyer))
		s.Equal(big.NewInt(0), s.service.PendingReturns(s.buyer))

		again, err := s.service.WithdrawPendingReturns(s.ctxAt(s.now), s.buyer)
		s.NoError(err)
		s.Zero(again.Sign())
		s.Equal(s.ether("10"), s.balance(s.buyer))
	})

	s.Run("total supply is conserved", func() {
		s.Equal(s.ether("20"), s.bank.TotalSupply())
	})
}

func (s *MarketplaceSuite) TestPauseGatesSettlement() {
	s.createAuction(2 * time.Hour)
	end := s.now.Add(2 * time.Hour)
	s.Require().NoError(s.service.PlaceBid(s.ctxAt(s.now), s.buyer, s.tokenID, s.ether("1")))
	s.Require().NoError(s.service.PlaceBid(s.ctxAt(s.now), s.rival, s.tokenID, s.ether("1.05")))
	s.service.Pause()

	s.Run("a paused marketplace refuses settlement", func() {
		err := s.service.SettleAuction(s.ctxAt(end), s.tokenID)
		s.True(dErrors.HasCode(err, dErrors.CodeForbidden))

		auction, err2 := s.service.GetAuction(s.tokenID)
		s.NoError(err2)
		s.True(auction.Active)
	})

	s.Run("a paused marketplace refuses withdrawals", func() {
		_, err := s.service.WithdrawPendingReturns(s.ctxAt(s.now), s.buyer)
		s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
		s.Equal(s.ether("1"), s.service.PendingReturns(s.buyer))
	})

	s.Run("unpausing restores both", func() {
		s.service.Unpause()
		s.Require().NoError(s.service.SettleAuction(s.ctxAt(end), s.tokenID))
		s.Equal(s.rival, s.owner())

		amount, err := s.service.WithdrawPendingReturns(s.ctxAt(s.now), s.buyer)
		s.NoError(err)
		s.Equal(s.ether("1"), amount)
	})
}
