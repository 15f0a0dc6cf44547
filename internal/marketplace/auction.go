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
	"namehaus/pkg/platform/sentinel"
	"namehaus/pkg/requestcontext"
)

// CreateAuction escrows a name and opens an English auction ending at
// now+duration. Caller must be the current ledger owner.
func (s *Service) CreateAuction(ctx context.Context, caller domain.Address, tokenID domain.TokenID, startPrice *big.Int, duration time.Duration) error {
	if startPrice == nil || startPrice.Sign() <= 0 {
		return dErrors.New(dErrors.CodeInvalidInput, "start price must be greater than zero")
	}
	if duration < MinAuctionDuration {
		return dErrors.New(dErrors.CodeInvalidInput, "auction duration too short")
	}
	now := requestcontext.Now(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.paused {
		return errPaused()
	}
	if err := s.requireNoEscrowLocked(tokenID); err != nil {
		return err
	}

	owner, err := s.ledger.OwnerOf(ctx, tokenID)
	if errors.Is(err, sentinel.ErrNotFound) {
		return dErrors.New(dErrors.CodeNotFound, "name not registered")
	}
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to read owner")
	}
	if owner != caller {
		return dErrors.New(dErrors.CodeForbidden, "not the name owner")
	}

	if err := s.ledger.TransferCustody(ctx, tokenID, s.account, ledger.CustodyEscrowedAuction); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to escrow name")
	}
	s.auctions[tokenID] = &Auction{
		TokenID:    tokenID,
		Seller:     caller,
		StartPrice: new(big.Int).Set(startPrice),
		StartTime:  now,
		EndTime:    now.Add(duration),
		Active:     true,
	}

	if s.metrics != nil {
		s.metrics.IncrementAuctions()
	}
	s.emit(ctx, events.Event{
		Name:    events.AuctionCreated,
		At:      now,
		TokenID: tokenID,
		Actor:   caller,
		Amount:  new(big.Int).Set(startPrice),
	})
	return nil
}

// PlaceBid escrows a bid on an open auction. The first bid must meet the
// start price; later bids must beat the current bid by the configured
// increment. The outbid amount is credited to the previous bidder's
// pending-return balance, never pushed. A bid landing inside the anti-snipe
// window pushes the end time out by the configured extension.
func (s *Service) PlaceBid(ctx context.Context, bidder domain.Address, tokenID domain.TokenID, payment *big.Int) error {
	if payment == nil || payment.Sign() <= 0 {
		return dErrors.New(dErrors.CodeInvalidInput, "bid is required")
	}
	now := requestcontext.Now(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.paused {
		return errPaused()
	}
	auc, ok := s.auctions[tokenID]
	if !ok || !auc.Active {
		return dErrors.New(dErrors.CodeNotFound, "no active auction")
	}
	if !now.Before(auc.EndTime) {
		return dErrors.New(dErrors.CodeExpired, "auction has ended")
	}
	if err := s.checkBidLocked(auc, payment); err != nil {
		return err
	}

	// Pull the bid into escrow before touching auction state. The escrow
	// account has no receive hook, so this cannot reenter.
	if err := s.bank.Transfer(ctx, bidder, s.account, payment); err != nil {
		if errors.Is(err, sentinel.ErrInsufficientFunds) {
			return dErrors.New(dErrors.CodeInsufficientPayment, "bidder balance below bid")
		}
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to collect bid")
	}

	// Credit the outbid amount before overwriting the highest bid.
	if auc.HasBids() {
		s.creditPendingLocked(auc.HighestBidder, auc.CurrentBid)
	}
	auc.CurrentBid = new(big.Int).Set(payment)
	auc.HighestBidder = bidder
	auc.BidCount++

	if auc.EndTime.Sub(now) <= s.antiSnipeTrigger {
		auc.EndTime = auc.EndTime.Add(s.antiSnipeExt)
	}

	if s.metrics != nil {
		s.metrics.IncrementBids()
	}
	s.emit(ctx, events.Event{
		Name:    events.BidPlaced,
		At:      now,
		TokenID: tokenID,
		Actor:   bidder,
		Amount:  new(big.Int).Set(payment),
	})
	return nil
}

// checkBidLocked enforces the minimum-bid rules.
func (s *Service) checkBidLocked(auc *Auction, payment *big.Int) error {
	if !auc.HasBids() {
		if payment.Cmp(auc.StartPrice) < 0 {
			return dErrors.New(dErrors.CodeInsufficientPayment, "bid below start price")
		}
		return nil
	}
	// required = currentBid * (10000 + increment) / 10000, truncating.
	required := new(big.Int).Mul(auc.CurrentBid, big.NewInt(int64(domain.MaxBps+s.minIncrementBps)))
	required.Div(required, big.NewInt(int64(domain.MaxBps)))
	if payment.Cmp(required) < 0 {
		return dErrors.New(dErrors.CodeInsufficientPayment, "bid below minimum increment")
	}
	return nil
}

// SettleAuction closes an ended auction. Anyone may settle. With a highest
// bidder, custody goes to them and the seller is paid net of fee; with no
// bids, custody returns to the seller.
func (s *Service) SettleAuction(ctx context.Context, tokenID domain.TokenID) error {
	now := requestcontext.Now(ctx)

	s.mu.Lock()
	if s.paused {
		s.mu.Unlock()
		return errPaused()
	}
	auc, ok := s.auctions[tokenID]
	if !ok || !auc.Active {
		s.mu.Unlock()
		return dErrors.New(dErrors.CodeNotFound, "no active auction")
	}
	if now.Before(auc.EndTime) {
		s.mu.Unlock()
		return dErrors.New(dErrors.CodeTooEarly, "auction not yet ended")
	}

	seller := auc.Seller
	hadBids := auc.HasBids()
	var winner domain.Address
	var winningBid, sellerProceeds *big.Int
	if hadBids {
		winner = auc.HighestBidder
		winningBid = new(big.Int).Set(auc.CurrentBid)
		fee := domain.ApplyBps(winningBid, s.feeBps)
		sellerProceeds = new(big.Int).Sub(winningBid, fee)
		s.accruedFees.Add(s.accruedFees, fee)
	}

	// Effects: close the auction and move custody before any payout.
	recipient := seller
	if hadBids {
		recipient = winner
	}
	if err := s.ledger.TransferCustody(ctx, tokenID, recipient, ledger.CustodyOwned); err != nil {
		if hadBids {
			s.accruedFees.Sub(s.accruedFees, new(big.Int).Sub(winningBid, sellerProceeds))
		}
		s.mu.Unlock()
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to transfer custody")
	}
	auc.Active = false
	auc.Settled = true
	s.mu.Unlock()

	if hadBids {
		if err := s.payOut(ctx, seller, sellerProceeds); err != nil {
			return err
		}
	}

	if s.metrics != nil {
		s.metrics.IncrementSettlements()
	}
	event := events.Event{
		Name:    events.AuctionSettled,
		At:      now,
		TokenID: tokenID,
		Actor:   recipient,
	}
	if hadBids {
		event.Amount = winningBid
	}
	s.emit(ctx, event)
	if s.logger != nil {
		s.logger.InfoContext(ctx, "auction settled",
			"token_id", tokenID.Hex(),
			"seller", seller.Hex(),
			"had_bids", hadBids,
		)
	}
	return nil
}

// CancelAuction returns custody to the seller. Seller-only, and only while
// no bid has been placed.
func (s *Service) CancelAuction(ctx context.Context, caller domain.Address, tokenID domain.TokenID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.paused {
		return errPaused()
	}
	auc, ok := s.auctions[tokenID]
	if !ok || !auc.Active {
		return dErrors.New(dErrors.CodeNotFound, "no active auction")
	}
	if auc.Seller != caller {
		return dErrors.New(dErrors.CodeForbidden, "not the auction seller")
	}
	if auc.HasBids() {
		return dErrors.New(dErrors.CodeConflict, "auction has bids")
	}

	if err := s.ledger.TransferCustody(ctx, tokenID, auc.Seller, ledger.CustodyOwned); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to return custody")
	}
	auc.Active = false

	s.emit(ctx, events.Event{
		Name:    events.AuctionCancelled,
		At:      requestcontext.Now(ctx),
		TokenID: tokenID,
		Actor:   caller,
	})
	return nil
}

// GetAuction returns a copy of an auction record.
func (s *Service) GetAuction(tokenID domain.TokenID) (Auction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	auc, ok := s.auctions[tokenID]
	if !ok {
		return Auction{}, dErrors.New(dErrors.CodeNotFound, "auction not found")
	}
	return cloneAuction(auc), nil
}
