// Package feemanager custodies the engine's accumulated fees. Withdrawals go
// through a timelock queue; only the capped emergency path bypasses it, and
// that path can pay nothing but the configured treasury.
package feemanager

import (
	"context"
	"errors"
	"log/slog"
	"math/big"
	"sync"
	"time"

	"github.com/google/uuid"

	"namehaus/internal/events"
	"namehaus/internal/funds"
	"namehaus/pkg/domain"
	dErrors "namehaus/pkg/domain-errors"
	"namehaus/pkg/requestcontext"
)

// WithdrawalRequest is one entry in the timelock queue. Executed is monotonic
// false→true, never reversed.
type WithdrawalRequest struct {
	ID            uint64
	CorrelationID string
	Amount        *big.Int
	Recipient     domain.Address
	RequestedAt   time.Time
	Executed      bool
}

// Service is the treasury accumulator. All state is guarded by one mutex;
// each entry point applies fully or not at all.
type Service struct {
	mu          sync.Mutex
	balance     *big.Int
	treasury    domain.Address
	withdrawals map[uint64]*WithdrawalRequest
	nextID      uint64

	account      domain.Address
	timelock     time.Duration
	emergencyCap *big.Int

	bank    funds.Bank
	emitter events.Emitter
	logger  *slog.Logger
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

func WithEmitter(emitter events.Emitter) Option {
	return func(s *Service) { s.emitter = emitter }
}

// New constructs the fee manager. account is the bank account the manager
// custodies funds in; emergencyCap is the fixed ceiling for timelock-bypass
// withdrawals.
func New(bank funds.Bank, account, treasury domain.Address, timelock time.Duration, emergencyCap *big.Int, opts ...Option) (*Service, error) {
	if bank == nil {
		return nil, errors.New("bank is required")
	}
	if account.IsZero() {
		return nil, errors.New("fee manager account is required")
	}
	if timelock <= 0 {
		return nil, errors.New("timelock period must be positive")
	}
	if emergencyCap == nil || emergencyCap.Sign() <= 0 {
		return nil, errors.New("emergency cap must be positive")
	}
	svc := &Service{
		balance:      big.NewInt(0),
		treasury:     treasury,
		withdrawals:  make(map[uint64]*WithdrawalRequest),
		account:      account,
		timelock:     timelock,
		emergencyCap: new(big.Int).Set(emergencyCap),
		bank:         bank,
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc, nil
}

// Account returns the bank account fees are forwarded to.
func (s *Service) Account() domain.Address {
	return s.account
}

// Receive accepts funds unconditionally, pulling them from the sender's bank
// account into the manager's.
func (s *Service) Receive(ctx context.Context, from domain.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return dErrors.New(dErrors.CodeInvalidInput, "amount must be positive")
	}
	if err := s.bank.Transfer(ctx, from, s.account, amount); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to receive funds")
	}
	s.mu.Lock()
	s.balance.Add(s.balance, amount)
	s.mu.Unlock()
	return nil
}

// Balance returns the custodied fee balance.
func (s *Service) Balance() *big.Int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return new(big.Int).Set(s.balance)
}

// RequestWithdrawal queues a timelocked withdrawal and returns its id.
func (s *Service) RequestWithdrawal(ctx context.Context, amount *big.Int, recipient domain.Address) (uint64, error) {
	if amount == nil || amount.Sign() <= 0 {
		return 0, dErrors.New(dErrors.CodeInvalidInput, "amount must be positive")
	}
	if recipient.IsZero() {
		return 0, dErrors.New(dErrors.CodeInvalidInput, "recipient is required")
	}

	now := requestcontext.Now(ctx)

	s.mu.Lock()
	s.nextID++
	req := &WithdrawalRequest{
		ID:            s.nextID,
		CorrelationID: uuid.NewString(),
		Amount:        new(big.Int).Set(amount),
		Recipient:     recipient,
		RequestedAt:   now,
	}
	s.withdrawals[req.ID] = req
	s.mu.Unlock()

	s.emit(ctx, events.Event{
		Name:   events.WithdrawalRequested,
		At:     now,
		Actor:  recipient,
		Amount: new(big.Int).Set(amount),
	})
	return req.ID, nil
}

// ExecuteWithdrawal pays out a queued request once its timelock has elapsed.
// Fails with CodeTooEarly inside the timelock and with CodeConflict when the
// request was already executed. The request is marked executed and the
// balance deducted before the transfer runs.
func (s *Service) ExecuteWithdrawal(ctx context.Context, id uint64) error {
	now := requestcontext.Now(ctx)

	s.mu.Lock()
	req, ok := s.withdrawals[id]
	if !ok {
		s.mu.Unlock()
		return dErrors.New(dErrors.CodeNotFound, "withdrawal request not found")
	}
	if req.Executed {
		s.mu.Unlock()
		return dErrors.New(dErrors.CodeConflict, "withdrawal already executed")
	}
	if now.Sub(req.RequestedAt) < s.timelock {
		s.mu.Unlock()
		return dErrors.New(dErrors.CodeTooEarly, "withdrawal still in timelock")
	}
	if s.balance.Cmp(req.Amount) < 0 {
		s.mu.Unlock()
		return dErrors.New(dErrors.CodeConflict, "withdrawal exceeds custodied balance")
	}
	req.Executed = true
	s.balance.Sub(s.balance, req.Amount)
	amount := new(big.Int).Set(req.Amount)
	recipient := req.Recipient
	s.mu.Unlock()

	if err := s.bank.Transfer(ctx, s.account, recipient, amount); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to pay withdrawal")
	}

	s.emit(ctx, events.Event{
		Name:   events.WithdrawalExecuted,
		At:     now,
		Actor:  recipient,
		Amount: amount,
	})
	if s.logger != nil {
		s.logger.InfoContext(ctx, "withdrawal executed",
			"id", id, "recipient", recipient.Hex(), "amount_wei", amount.String())
	}
	return nil
}

// EmergencyWithdraw bypasses the timelock, capped at the fixed emergency
// ceiling, and always pays the configured treasury.
func (s *Service) EmergencyWithdraw(ctx context.Context, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return dErrors.New(dErrors.CodeInvalidInput, "amount must be positive")
	}
	if amount.Cmp(s.emergencyCap) > 0 {
		return dErrors.New(dErrors.CodeLimitExceeded, "amount exceeds emergency cap")
	}

	s.mu.Lock()
	if s.treasury.IsZero() {
		s.mu.Unlock()
		return dErrors.New(dErrors.CodeConflict, "treasury not configured")
	}
	if s.balance.Cmp(amount) < 0 {
		s.mu.Unlock()
		return dErrors.New(dErrors.CodeConflict, "withdrawal exceeds custodied balance")
	}
	s.balance.Sub(s.balance, amount)
	treasury := s.treasury
	s.mu.Unlock()

	if err := s.bank.Transfer(ctx, s.account, treasury, amount); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to pay treasury")
	}

	s.emit(ctx, events.Event{
		Name:   events.EmergencyWithdrawal,
		At:     requestcontext.Now(ctx),
		Actor:  treasury,
		Amount: new(big.Int).Set(amount),
	})
	return nil
}

// SetTreasury updates the emergency payout destination. Owner-only; the HTTP
// layer enforces the operator token.
func (s *Service) SetTreasury(ctx context.Context, treasury domain.Address) error {
	if treasury.IsZero() {
		return dErrors.New(dErrors.CodeInvalidInput, "treasury address is required")
	}
	s.mu.Lock()
	s.treasury = treasury
	s.mu.Unlock()

	s.emit(ctx, events.Event{
		Name:  events.TreasuryChanged,
		At:    requestcontext.Now(ctx),
		Actor: treasury,
	})
	return nil
}

// Withdrawal returns a copy of a queued request.
func (s *Service) Withdrawal(id uint64) (WithdrawalRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	req, ok := s.withdrawals[id]
	if !ok {
		return WithdrawalRequest{}, dErrors.New(dErrors.CodeNotFound, "withdrawal request not found")
	}
	out := *req
	out.Amount = new(big.Int).Set(req.Amount)
	return out, nil
}

func (s *Service) emit(ctx context.Context, event events.Event) {
	if s.emitter == nil {
		return
	}
	event.RequestID = requestcontext.RequestID(ctx)
	s.emitter.Emit(event)
}
