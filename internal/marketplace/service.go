// Package marketplace implements the secondary market over ledger records:
// escrowed fixed-price listings and English auctions with anti-snipe
// extension. Refunds are pull-only through the pending-returns ledger, and
// every entry point finalizes internal state before any outbound transfer.
package marketplace

import (
	"context"
	"errors"
	"log/slog"
	"math/big"
	"sync"
	"time"

	"namehaus/internal/events"
	"namehaus/internal/funds"
	"namehaus/internal/ledger"
	"namehaus/internal/marketplace/metrics"
	"namehaus/pkg/domain"
	dErrors "namehaus/pkg/domain-errors"
	"namehaus/pkg/platform/sentinel"
	"namehaus/pkg/requestcontext"
)

const (
	// DefaultFeeBps is the marketplace cut applied to sales, 2.5%.
	DefaultFeeBps = 250
	// DefaultMinBidIncrementBps is the minimum step between accepted bids, 5%.
	DefaultMinBidIncrementBps = 500
	// MinAuctionDuration is the shortest auction the marketplace accepts.
	MinAuctionDuration = time.Hour
	// DefaultAntiSnipeTrigger is how close to the end a bid must land to arm
	// the extension.
	DefaultAntiSnipeTrigger = 10 * time.Minute
	// DefaultAntiSnipeExtension is how far the end time moves per late bid.
	DefaultAntiSnipeExtension = 10 * time.Minute
)

// FeeSink receives accrued marketplace fees on sweep.
type FeeSink interface {
	Receive(ctx context.Context, from domain.Address, amount *big.Int) error
}

// Config carries the marketplace's tunable settings. Zero fields fall back to
// the package defaults.
type Config struct {
	FeeBps             uint32
	MinBidIncrementBps uint32
	AntiSnipeTrigger   time.Duration
	AntiSnipeExtension time.Duration
}

// Service is the marketplace. Listing, auction, and pending-return state
// lives behind one mutex; bank transfers run only after the mutex is
// released and the state transition is final.
type Service struct {
	mu              sync.Mutex
	listings        map[domain.TokenID]*Listing
	auctions        map[domain.TokenID]*Auction
	pendingReturns  map[domain.Address]*big.Int
	accruedFees     *big.Int
	feeBps          uint32
	minIncrementBps uint32
	paused          bool

	account          domain.Address
	antiSnipeTrigger time.Duration
	antiSnipeExt     time.Duration

	ledger  ledger.Ledger
	bank    funds.Bank
	fees    FeeSink
	emitter events.Emitter
	logger  *slog.Logger
	metrics *metrics.Metrics
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

func WithEmitter(emitter events.Emitter) Option {
	return func(s *Service) { s.emitter = emitter }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

func New(ldg ledger.Ledger, bank funds.Bank, fees FeeSink, account domain.Address, cfg Config, opts ...Option) (*Service, error) {
	if ldg == nil {
		return nil, errors.New("ledger is required")
	}
	if bank == nil {
		return nil, errors.New("bank is required")
	}
	if fees == nil {
		return nil, errors.New("fee sink is required")
	}
	if account.IsZero() {
		return nil, errors.New("marketplace account is required")
	}
	if cfg.FeeBps == 0 {
		cfg.FeeBps = DefaultFeeBps
	}
	if cfg.FeeBps > domain.MaxMarketplaceFeeBps {
		return nil, errors.New("marketplace fee exceeds maximum")
	}
	if cfg.MinBidIncrementBps == 0 {
		cfg.MinBidIncrementBps = DefaultMinBidIncrementBps
	}
	if cfg.AntiSnipeTrigger <= 0 {
		cfg.AntiSnipeTrigger = DefaultAntiSnipeTrigger
	}
	if cfg.AntiSnipeExtension <= 0 {
		cfg.AntiSnipeExtension = DefaultAntiSnipeExtension
	}

	svc := &Service{
		listings:         make(map[domain.TokenID]*Listing),
		auctions:         make(map[domain.TokenID]*Auction),
		pendingReturns:   make(map[domain.Address]*big.Int),
		accruedFees:      big.NewInt(0),
		feeBps:           cfg.FeeBps,
		minIncrementBps:  cfg.MinBidIncrementBps,
		account:          account,
		antiSnipeTrigger: cfg.AntiSnipeTrigger,
		antiSnipeExt:     cfg.AntiSnipeExtension,
		ledger:           ldg,
		bank:             bank,
		fees:             fees,
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc, nil
}

// Account returns the marketplace's escrow bank account.
func (s *Service) Account() domain.Address {
	return s.account
}

// ============================================================
// Fixed-price listings
// ============================================================

// CreateListing escrows a name and puts it up for a fixed price. Caller must
// be the current ledger owner.
func (s *Service) CreateListing(ctx context.Context, caller domain.Address, tokenID domain.TokenID, price *big.Int) error {
	if price == nil || price.Sign() <= 0 {
		return dErrors.New(dErrors.CodeInvalidInput, "price must be greater than zero")
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

	if err := s.ledger.TransferCustody(ctx, tokenID, s.account, ledger.CustodyEscrowedListing); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to escrow name")
	}
	s.listings[tokenID] = &Listing{
		TokenID:   tokenID,
		Seller:    caller,
		Price:     new(big.Int).Set(price),
		Active:    true,
		CreatedAt: now,
	}

	if s.metrics != nil {
		s.metrics.IncrementListings()
	}
	s.emit(ctx, events.Event{
		Name:    events.Listed,
		At:      now,
		TokenID: tokenID,
		Actor:   caller,
		Amount:  new(big.Int).Set(price),
	})
	return nil
}

// CancelListing returns custody to the seller and deactivates the listing.
func (s *Service) CancelListing(ctx context.Context, caller domain.Address, tokenID domain.TokenID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.paused {
		return errPaused()
	}
	lst, ok := s.listings[tokenID]
	if !ok || !lst.Active {
		return dErrors.New(dErrors.CodeNotFound, "no active listing")
	}
	if lst.Seller != caller {
		return dErrors.New(dErrors.CodeForbidden, "not the listing seller")
	}

	if err := s.ledger.TransferCustody(ctx, tokenID, lst.Seller, ledger.CustodyOwned); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to return custody")
	}
	lst.Active = false

	s.emit(ctx, events.Event{
		Name:    events.ListingCancelled,
		At:      requestcontext.Now(ctx),
		TokenID: tokenID,
		Actor:   caller,
	})
	return nil
}

// BuyListing sells an active listing to the buyer. The seller receives
// price*(1-fee); overpayment is refunded to the buyer; both payouts run only
// after custody has moved and the listing is deactivated.
func (s *Service) BuyListing(ctx context.Context, buyer domain.Address, tokenID domain.TokenID, payment *big.Int) error {
	if payment == nil || payment.Sign() <= 0 {
		return dErrors.New(dErrors.CodeInvalidInput, "payment is required")
	}
	now := requestcontext.Now(ctx)

	s.mu.Lock()
	if s.paused {
		s.mu.Unlock()
		return errPaused()
	}
	lst, ok := s.listings[tokenID]
	if !ok || !lst.Active {
		s.mu.Unlock()
		return dErrors.New(dErrors.CodeNotFound, "no active listing")
	}
	if payment.Cmp(lst.Price) < 0 {
		s.mu.Unlock()
		return dErrors.New(dErrors.CodeInsufficientPayment, "payment below listing price")
	}

	// Pull the full payment into escrow before mutating anything. The escrow
	// account has no receive hook, so this cannot reenter.
	if err := s.bank.Transfer(ctx, buyer, s.account, payment); err != nil {
		s.mu.Unlock()
		if errors.Is(err, sentinel.ErrInsufficientFunds) {
			return dErrors.New(dErrors.CodeInsufficientPayment, "buyer balance below payment")
		}
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to collect payment")
	}

	price := new(big.Int).Set(lst.Price)
	seller := lst.Seller
	fee := domain.ApplyBps(price, s.feeBps)
	sellerProceeds := new(big.Int).Sub(price, fee)
	refund := new(big.Int).Sub(payment, price)

	// Effects: deactivate, move custody, accrue the fee.
	if err := s.ledger.TransferCustody(ctx, tokenID, buyer, ledger.CustodyOwned); err != nil {
		s.mu.Unlock()
		// Undo the pull; no state changed. The refund runs outside the
		// mutex because the buyer's receive hook may call back in.
		if rbErr := s.bank.Transfer(ctx, s.account, buyer, payment); rbErr != nil && s.logger != nil {
			s.logger.ErrorContext(ctx, "failed to return payment after custody failure",
				"buyer", buyer.Hex(), "error", rbErr)
		}
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to transfer custody")
	}
	lst.Active = false
	s.accruedFees.Add(s.accruedFees, fee)
	s.mu.Unlock()

	// Interactions: state is final, pay out.
	if err := s.payOut(ctx, seller, sellerProceeds); err != nil {
		return err
	}
	if err := s.payOut(ctx, buyer, refund); err != nil {
		return err
	}

	if s.metrics != nil {
		s.metrics.IncrementSales()
	}
	s.emit(ctx, events.Event{
		Name:    events.Sold,
		At:      now,
		TokenID: tokenID,
		Actor:   buyer,
		Amount:  price,
	})
	if s.logger != nil {
		s.logger.InfoContext(ctx, "listing sold",
			"token_id", tokenID.Hex(),
			"buyer", buyer.Hex(),
			"seller", seller.Hex(),
			"price_wei", price.String(),
		)
	}
	return nil
}

// GetListing returns a copy of a listing record.
func (s *Service) GetListing(tokenID domain.TokenID) (Listing, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	lst, ok := s.listings[tokenID]
	if !ok {
		return Listing{}, dErrors.New(dErrors.CodeNotFound, "listing not found")
	}
	return cloneListing(lst), nil
}

// ============================================================
// Pending returns
// ============================================================

// WithdrawPendingReturns pays the caller their full pending-return balance.
// The balance is zeroed before the transfer, so a reentrant withdrawal during
// the payout sees nothing left to claim.
func (s *Service) WithdrawPendingReturns(ctx context.Context, caller domain.Address) (*big.Int, error) {
	s.mu.Lock()
	if s.paused {
		s.mu.Unlock()
		return nil, errPaused()
	}
	owed, ok := s.pendingReturns[caller]
	if !ok || owed.Sign() == 0 {
		s.mu.Unlock()
		return big.NewInt(0), nil
	}
	amount := new(big.Int).Set(owed)
	delete(s.pendingReturns, caller)
	s.mu.Unlock()

	if err := s.bank.Transfer(ctx, s.account, caller, amount); err != nil {
		// Restore the claim; nothing left the escrow account.
		s.mu.Lock()
		s.creditPendingLocked(caller, amount)
		s.mu.Unlock()
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to pay pending returns")
	}

	s.emit(ctx, events.Event{
		Name:   events.PendingReturnsWithdrawn,
		At:     requestcontext.Now(ctx),
		Actor:  caller,
		Amount: new(big.Int).Set(amount),
	})
	return amount, nil
}

// PendingReturns reports an address's claimable refund balance.
func (s *Service) PendingReturns(addr domain.Address) *big.Int {
	s.mu.Lock()
	defer s.mu.Unlock()
	owed, ok := s.pendingReturns[addr]
	if !ok {
		return big.NewInt(0)
	}
	return new(big.Int).Set(owed)
}

func (s *Service) creditPendingLocked(addr domain.Address, amount *big.Int) {
	owed, ok := s.pendingReturns[addr]
	if !ok {
		owed = big.NewInt(0)
		s.pendingReturns[addr] = owed
	}
	owed.Add(owed, amount)
}

// ============================================================
// Admin
// ============================================================

// SetFee updates the marketplace cut. Capped at domain.MaxMarketplaceFeeBps.
func (s *Service) SetFee(ctx context.Context, bps uint32) error {
	if bps > domain.MaxMarketplaceFeeBps {
		return dErrors.New(dErrors.CodeLimitExceeded, "marketplace fee exceeds maximum")
	}
	s.mu.Lock()
	s.feeBps = bps
	s.mu.Unlock()

	s.emit(ctx, events.Event{
		Name:   events.MarketplaceFeeUpdated,
		At:     requestcontext.Now(ctx),
		Amount: big.NewInt(int64(bps)),
	})
	return nil
}

// Fee returns the current marketplace cut in basis points.
func (s *Service) Fee() uint32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.feeBps
}

// SetMinBidIncrement updates the minimum step between accepted bids.
func (s *Service) SetMinBidIncrement(bps uint32) error {
	if bps == 0 || bps > domain.MaxBps {
		return dErrors.New(dErrors.CodeInvalidInput, "bid increment out of range")
	}
	s.mu.Lock()
	s.minIncrementBps = bps
	s.mu.Unlock()
	return nil
}

// MinBidIncrement returns the minimum bid step in basis points.
func (s *Service) MinBidIncrement() uint32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.minIncrementBps
}

// Pause blocks every mutating entry point until Unpause.
func (s *Service) Pause() {
	s.mu.Lock()
	s.paused = true
	s.mu.Unlock()
}

// Unpause restores normal operation.
func (s *Service) Unpause() {
	s.mu.Lock()
	s.paused = false
	s.mu.Unlock()
}

// Paused reports the pause gate state.
func (s *Service) Paused() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.paused
}

// AccruedFees reports the marketplace cut collected so far and not yet swept.
func (s *Service) AccruedFees() *big.Int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return new(big.Int).Set(s.accruedFees)
}

// SweepFees forwards the accrued marketplace cut to the fee sink.
func (s *Service) SweepFees(ctx context.Context) error {
	s.mu.Lock()
	amount := new(big.Int).Set(s.accruedFees)
	s.accruedFees.SetInt64(0)
	s.mu.Unlock()

	if amount.Sign() == 0 {
		return nil
	}
	if err := s.fees.Receive(ctx, s.account, amount); err != nil {
		s.mu.Lock()
		s.accruedFees.Add(s.accruedFees, amount)
		s.mu.Unlock()
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to sweep fees")
	}
	return nil
}

// ============================================================
// Shared internals
// ============================================================

// requireNoEscrowLocked enforces the one-escrow-per-token invariant.
func (s *Service) requireNoEscrowLocked(tokenID domain.TokenID) error {
	if lst, ok := s.listings[tokenID]; ok && lst.Active {
		return dErrors.New(dErrors.CodeConflict, "name already listed")
	}
	if auc, ok := s.auctions[tokenID]; ok && auc.Active {
		return dErrors.New(dErrors.CodeConflict, "name already in auction")
	}
	return nil
}

// payOut transfers from escrow to a recipient. Called only after the state
// transition is final; a reentrant call from the recipient's receive hook
// observes consistent state.
func (s *Service) payOut(ctx context.Context, to domain.Address, amount *big.Int) error {
	if amount.Sign() <= 0 {
		return nil
	}
	if err := s.bank.Transfer(ctx, s.account, to, amount); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to pay out")
	}
	return nil
}

func errPaused() error {
	return dErrors.New(dErrors.CodeForbidden, "marketplace is paused")
}

func (s *Service) emit(ctx context.Context, event events.Event) {
	if s.emitter == nil {
		return
	}
	event.RequestID = requestcontext.RequestID(ctx)
	s.emitter.Emit(event)
}
