// Package registrar implements the commit-reveal registration controller.
//
// Registration is two-phase: a hashed intent is committed first, and the
// plaintext request is revealed only after a mandatory delay, so observers of
// the visible second phase cannot front-run it. Every mutating entry point
// finishes all internal state changes before any value transfer runs
// (checks-effects-interactions); a payee whose receive path calls back into
// the controller observes consistent, already-finalized state.
package registrar

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
	"namehaus/internal/pricing"
	"namehaus/internal/registrar/metrics"
	commitmentstore "namehaus/internal/registrar/store/commitment"
	"namehaus/pkg/domain"
	dErrors "namehaus/pkg/domain-errors"
	"namehaus/pkg/platform/sentinel"
	"namehaus/pkg/requestcontext"
)

// CommitmentStore keeps commitment timestamps keyed by commitment hash.
type CommitmentStore interface {
	Get(ctx context.Context, key commitmentstore.Key) (time.Time, error)
	Put(ctx context.Context, key commitmentstore.Key, committedAt time.Time) error
	Delete(ctx context.Context, key commitmentstore.Key) error
}

// RegistrationLimiter records one successful registration per call and fails
// once the caller's window cap is reached.
type RegistrationLimiter interface {
	RecordRegistration(ctx context.Context, caller, owner domain.Address) error
}

// FeeSink receives the engine's share of registration fees.
type FeeSink interface {
	Receive(ctx context.Context, from domain.Address, amount *big.Int) error
}

// Config carries the controller's timing and fee settings.
type Config struct {
	// MinCommitmentAge is the mandatory wait between commit and reveal.
	MinCommitmentAge time.Duration
	// MaxCommitmentAge is the window after which a commitment goes stale.
	MaxCommitmentAge time.Duration
	// ReferrerFeeBps is the initial referrer split, capped at
	// domain.MaxReferrerFeeBps.
	ReferrerFeeBps uint32
}

// Service is the registration controller.
type Service struct {
	commitments CommitmentStore
	ledger      ledger.Ledger
	oracle      *pricing.Oracle
	limiter     RegistrationLimiter
	fees        FeeSink
	bank        funds.Bank

	account domain.Address
	minAge  time.Duration
	maxAge  time.Duration

	mu             sync.RWMutex
	referrerFeeBps uint32
	paused         bool

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

func New(
	commitments CommitmentStore,
	ldg ledger.Ledger,
	oracle *pricing.Oracle,
	lim RegistrationLimiter,
	fees FeeSink,
	bank funds.Bank,
	account domain.Address,
	cfg Config,
	opts ...Option,
) (*Service, error) {
	if commitments == nil {
		return nil, errors.New("commitment store is required")
	}
	if ldg == nil {
		return nil, errors.New("ledger is required")
	}
	if oracle == nil {
		return nil, errors.New("pricing oracle is required")
	}
	if lim == nil {
		return nil, errors.New("registration limiter is required")
	}
	if fees == nil {
		return nil, errors.New("fee sink is required")
	}
	if bank == nil {
		return nil, errors.New("bank is required")
	}
	if account.IsZero() {
		return nil, errors.New("controller account is required")
	}
	if cfg.MinCommitmentAge <= 0 || cfg.MaxCommitmentAge <= cfg.MinCommitmentAge {
		return nil, errors.New("commitment age window is invalid")
	}
	if cfg.ReferrerFeeBps > domain.MaxReferrerFeeBps {
		return nil, errors.New("referrer fee exceeds maximum")
	}

	svc := &Service{
		commitments:    commitments,
		ledger:         ldg,
		oracle:         oracle,
		limiter:        lim,
		fees:           fees,
		bank:           bank,
		account:        account,
		minAge:         cfg.MinCommitmentAge,
		maxAge:         cfg.MaxCommitmentAge,
		referrerFeeBps: cfg.ReferrerFeeBps,
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc, nil
}

// Account returns the controller's bank account, the address the limiter
// must register as its authorized caller.
func (s *Service) Account() domain.Address {
	return s.account
}

// Commit stores a commitment hash with the current timestamp. Re-committing
// a live (unexpired) hash is rejected so a commitment's age cannot be
// refreshed artificially; a stale hash may be committed again.
func (s *Service) Commit(ctx context.Context, hash CommitmentHash) error {
	if err := s.requireUnpaused(); err != nil {
		return err
	}

	now := requestcontext.Now(ctx)
	committedAt, err := s.commitments.Get(ctx, commitmentstore.Key(hash))
	switch {
	case err == nil:
		if now.Sub(committedAt) <= s.maxAge {
			return dErrors.New(dErrors.CodeConflict, "commitment already exists")
		}
	case errors.Is(err, sentinel.ErrNotFound):
	default:
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to look up commitment")
	}

	if err := s.commitments.Put(ctx, commitmentstore.Key(hash), now); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to store commitment")
	}
	if s.metrics != nil {
		s.metrics.IncrementCommitments()
	}
	s.emit(ctx, events.Event{Name: events.CommitmentMade, At: now})
	return nil
}

// Register reveals a committed request and registers the name. payer is the
// account funding the call; overpayment is refunded to it after all state is
// finalized.
func (s *Service) Register(ctx context.Context, payer domain.Address, req RegistrationRequest, payment *big.Int) error {
	if err := s.requireUnpaused(); err != nil {
		return err
	}
	if payment == nil {
		return dErrors.New(dErrors.CodeInvalidInput, "payment is required")
	}
	if req.Duration <= 0 {
		return dErrors.New(dErrors.CodeInvalidInput, "duration must be positive")
	}
	now := requestcontext.Now(ctx)

	// 1. The commitment must exist and sit inside its age window.
	hash := commitmentstore.Key(MakeCommitment(req))
	committedAt, err := s.commitments.Get(ctx, hash)
	if errors.Is(err, sentinel.ErrNotFound) {
		return dErrors.New(dErrors.CodeNotFound, "commitment not found")
	}
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to look up commitment")
	}
	age := now.Sub(committedAt)
	if age < s.minAge {
		return dErrors.New(dErrors.CodeTooEarly, "commitment too new")
	}
	if age > s.maxAge {
		return dErrors.New(dErrors.CodeExpired, "commitment too old")
	}

	// 2. Label syntax and reserved-word rules.
	label, err := domain.ParseLabel(req.Label)
	if err != nil {
		return err
	}
	tokenID := label.TokenID()

	// 3. Availability against the ledger.
	available, err := s.ledger.Available(ctx, tokenID)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to check availability")
	}
	if !available {
		return dErrors.New(dErrors.CodeConflict, "name not available")
	}

	// 4. Price the registration.
	price := s.oracle.Price(req.Label, req.Duration).Total()
	if payment.Cmp(price) < 0 {
		return dErrors.New(dErrors.CodeInsufficientPayment, "payment below registration price")
	}

	// 5. Pull the full payment into the controller account before mutating
	// anything, so an unfunded payer cannot consume limiter quota.
	if err := s.bank.Transfer(ctx, payer, s.account, payment); err != nil {
		if errors.Is(err, sentinel.ErrInsufficientFunds) {
			return dErrors.New(dErrors.CodeInsufficientPayment, "payer balance below payment")
		}
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to collect payment")
	}

	// 6. Consume limiter quota; on rejection return the payment untouched.
	if err := s.limiter.RecordRegistration(ctx, s.account, req.Owner); err != nil {
		if rbErr := s.bank.Transfer(ctx, s.account, payer, payment); rbErr != nil && s.logger != nil {
			s.logger.ErrorContext(ctx, "failed to return payment after limiter rejection",
				"payer", payer.Hex(), "error", rbErr)
		}
		return err
	}

	// 7-8. Effects: write the ledger record and consume the commitment.
	expiry := now.Add(req.Duration)
	if err := s.ledger.MintOrExtend(ctx, tokenID, string(label), req.Owner, expiry); err != nil {
		// Return the payment; the spent limiter quota cannot be handed back.
		if rbErr := s.bank.Transfer(ctx, s.account, payer, payment); rbErr != nil && s.logger != nil {
			s.logger.ErrorContext(ctx, "failed to return payment after ledger failure",
				"payer", payer.Hex(), "error", rbErr)
		}
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to write ledger record")
	}
	if err := s.commitments.Delete(ctx, hash); err != nil {
		// The name is registered; a leftover commitment cannot be revealed
		// again because the availability check now fails.
		if s.logger != nil {
			s.logger.ErrorContext(ctx, "failed to consume commitment",
				"label", string(label), "error", err)
		}
	}

	// 9. Interactions: split the price, forward the rest, refund overpayment.
	if err := s.settlePayment(ctx, payer, req.Referrer, price, payment, now); err != nil {
		return err
	}

	if s.metrics != nil {
		s.metrics.IncrementRegistrations()
	}
	s.emit(ctx, events.Event{
		Name:    events.Registered,
		At:      now,
		TokenID: domain.TokenID(tokenID),
		Label:   string(label),
		Actor:   req.Owner,
		Amount:  new(big.Int).Set(price),
	})
	if s.logger != nil {
		s.logger.InfoContext(ctx, "name registered",
			"label", string(label),
			"owner", req.Owner.Hex(),
			"expiry", expiry,
			"price_wei", price.String(),
		)
	}
	return nil
}

// Renew extends a registration. Any caller may renew any label; ownership is
// unchanged and the new expiry extends from the recorded expiry, not from
// now.
func (s *Service) Renew(ctx context.Context, payer domain.Address, rawLabel string, duration time.Duration, referrer domain.Address, payment *big.Int) error {
	if err := s.requireUnpaused(); err != nil {
		return err
	}
	if payment == nil {
		return dErrors.New(dErrors.CodeInvalidInput, "payment is required")
	}
	if duration <= 0 {
		return dErrors.New(dErrors.CodeInvalidInput, "duration must be positive")
	}
	label, err := domain.ParseLabel(rawLabel)
	if err != nil {
		return err
	}
	tokenID := label.TokenID()
	now := requestcontext.Now(ctx)

	currentExpiry, err := s.ledger.ExpiresAt(ctx, tokenID)
	if errors.Is(err, sentinel.ErrNotFound) {
		return dErrors.New(dErrors.CodeNotFound, "name not registered")
	}
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to read expiry")
	}
	owner, err := s.ledger.OwnerOf(ctx, tokenID)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to read owner")
	}

	price := s.oracle.Price(rawLabel, duration).Total()
	if payment.Cmp(price) < 0 {
		return dErrors.New(dErrors.CodeInsufficientPayment, "payment below renewal price")
	}

	if err := s.bank.Transfer(ctx, payer, s.account, payment); err != nil {
		if errors.Is(err, sentinel.ErrInsufficientFunds) {
			return dErrors.New(dErrors.CodeInsufficientPayment, "payer balance below payment")
		}
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to collect payment")
	}

	newExpiry := currentExpiry.Add(duration)
	if err := s.ledger.MintOrExtend(ctx, tokenID, string(label), owner, newExpiry); err != nil {
		if rbErr := s.bank.Transfer(ctx, s.account, payer, payment); rbErr != nil && s.logger != nil {
			s.logger.ErrorContext(ctx, "failed to return payment after ledger failure",
				"payer", payer.Hex(), "error", rbErr)
		}
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to extend ledger record")
	}

	if err := s.settlePayment(ctx, payer, referrer, price, payment, now); err != nil {
		return err
	}

	if s.metrics != nil {
		s.metrics.IncrementRenewals()
	}
	s.emit(ctx, events.Event{
		Name:    events.Renewed,
		At:      now,
		TokenID: domain.TokenID(tokenID),
		Label:   string(label),
		Actor:   owner,
		Amount:  new(big.Int).Set(price),
	})
	return nil
}

// settlePayment runs the interaction phase shared by Register and Renew:
// referrer split, fee-manager forward, overpayment refund. All engine state
// is final before this runs; only bank transfers remain.
func (s *Service) settlePayment(ctx context.Context, payer, referrer domain.Address, price, payment *big.Int, now time.Time) error {
	s.mu.RLock()
	feeBps := s.referrerFeeBps
	s.mu.RUnlock()

	remainder := new(big.Int).Set(price)
	if !referrer.IsZero() && feeBps > 0 {
		referrerShare := domain.ApplyBps(price, feeBps)
		if referrerShare.Sign() > 0 {
			if err := s.bank.Transfer(ctx, s.account, referrer, referrerShare); err != nil {
				return dErrors.Wrap(err, dErrors.CodeInternal, "failed to pay referrer")
			}
			remainder.Sub(remainder, referrerShare)
		}
	}

	if remainder.Sign() > 0 {
		if err := s.fees.Receive(ctx, s.account, remainder); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to forward fees")
		}
		s.emit(ctx, events.Event{
			Name:   events.WithdrawalToFeeManager,
			At:     now,
			Amount: new(big.Int).Set(remainder),
		})
	}

	refund := new(big.Int).Sub(payment, price)
	if refund.Sign() > 0 {
		if err := s.bank.Transfer(ctx, s.account, payer, refund); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to refund overpayment")
		}
	}
	return nil
}

// RentPrice quotes a label without side effects.
func (s *Service) RentPrice(rawLabel string, duration time.Duration) pricing.Quote {
	return s.oracle.Price(rawLabel, duration)
}

// Available reports whether a label is syntactically valid and free to
// register.
func (s *Service) Available(ctx context.Context, rawLabel string) (bool, error) {
	label, err := domain.ParseLabel(rawLabel)
	if err != nil {
		return false, nil
	}
	available, err := s.ledger.Available(ctx, label.TokenID())
	if err != nil {
		return false, dErrors.Wrap(err, dErrors.CodeInternal, "failed to check availability")
	}
	return available, nil
}

// SetReferrerFeePercentage updates the referrer split. Owner-only; the HTTP
// layer enforces the operator token.
func (s *Service) SetReferrerFeePercentage(ctx context.Context, bps uint32) error {
	if bps > domain.MaxReferrerFeeBps {
		return dErrors.New(dErrors.CodeLimitExceeded, "referrer fee exceeds maximum")
	}
	s.mu.Lock()
	s.referrerFeeBps = bps
	s.mu.Unlock()

	s.emit(ctx, events.Event{
		Name:   events.ReferrerFeePercentageChanged,
		At:     requestcontext.Now(ctx),
		Amount: big.NewInt(int64(bps)),
	})
	return nil
}

// ReferrerFeePercentage returns the current referrer split in basis points.
func (s *Service) ReferrerFeePercentage() uint32 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.referrerFeeBps
}

// EmergencyPause gates Commit, Register, and Renew until unpaused.
func (s *Service) EmergencyPause(ctx context.Context) {
	s.mu.Lock()
	s.paused = true
	s.mu.Unlock()
	s.emit(ctx, events.Event{Name: events.RegistrarPaused, At: requestcontext.Now(ctx)})
}

// EmergencyUnpause restores normal operation.
func (s *Service) EmergencyUnpause(ctx context.Context) {
	s.mu.Lock()
	s.paused = false
	s.mu.Unlock()
	s.emit(ctx, events.Event{Name: events.RegistrarUnpaused, At: requestcontext.Now(ctx)})
}

// Paused reports the pause gate state.
func (s *Service) Paused() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.paused
}

// Withdraw sweeps the controller account's residual balance to the fee
// manager.
func (s *Service) Withdraw(ctx context.Context) error {
	balance, err := s.bank.BalanceOf(ctx, s.account)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to read balance")
	}
	if balance.Sign() == 0 {
		return nil
	}
	if err := s.fees.Receive(ctx, s.account, balance); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to forward balance")
	}
	s.emit(ctx, events.Event{
		Name:   events.WithdrawalToFeeManager,
		At:     requestcontext.Now(ctx),
		Amount: balance,
	})
	return nil
}

func (s *Service) requireUnpaused() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.paused {
		return dErrors.New(dErrors.CodeForbidden, "registrar is paused")
	}
	return nil
}

func (s *Service) emit(ctx context.Context, event events.Event) {
	if s.emitter == nil {
		return
	}
	event.RequestID = requestcontext.RequestID(ctx)
	s.emitter.Emit(event)
}
