package registrar

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
	"namehaus/internal/limiter"
	"namehaus/internal/limiter/store/window"
	"namehaus/internal/pricing"
	commitmentstore "namehaus/internal/registrar/store/commitment"
	"namehaus/pkg/domain"
	dErrors "namehaus/pkg/domain-errors"
	"namehaus/pkg/requestcontext"
)

// =============================================================================
// Registrar Service Test Suite
// =============================================================================
// Justification for unit tests: the commit-reveal window, payment splitting,
// and reentrancy ordering are timing- and balance-sensitive flows that need
// deterministic clocks and bank balances to assert exactly.

type RegistrarSuite struct {
	suite.Suite
	bank     *funds.InMemoryBank
	ledger   *ledger.InMemoryLedger
	limiter  *limiter.Service
	fees     *feemanager.Service
	recorder *events.Recorder
	service  *Service

	account    domain.Address
	feeAccount domain.Address
	alice      domain.Address
	referrer   domain.Address
	now        time.Time
}

func TestRegistrarSuite(t *testing.T) {
	suite.Run(t, new(RegistrarSuite))
}

func (s *RegistrarSuite) SetupTest() {
	s.bank = funds.NewInMemoryBank()
	s.ledger = ledger.NewInMemoryLedger()
	s.recorder = events.NewRecorder()
	s.account = regAddr(0xC0)
	s.feeAccount = regAddr(0xFE)
	s.alice = regAddr(0xA1)
	s.referrer = regAddr(0x4E)
	s.now = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	var err error
	s.limiter, err = limiter.New(window.NewInMemoryWindowStore(), 5, time.Hour)
	s.Require().NoError(err)
	s.limiter.SetController(s.account)

	s.fees, err = feemanager.New(s.bank, s.feeAccount, regAddr(0x77), 48*time.Hour, s.ether("10"))
	s.Require().NoError(err)

	oracle := pricing.New(pricing.Config{
		ThreeCharYearly: s.ether("0.5"),
		FourCharYearly:  s.ether("0.05"),
		LongYearly:      s.ether("0.01"),
	})

	s.service, err = New(
		commitmentstore.NewInMemoryCommitmentStore(),
		s.ledger, oracle, s.limiter, s.fees, s.bank, s.account,
		Config{
			MinCommitmentAge: time.Minute,
			MaxCommitmentAge: 24 * time.Hour,
			ReferrerFeeBps:   500,
		},
		WithEmitter(s.recorder),
	)
	s.Require().NoError(err)

	s.Require().NoError(s.bank.Deposit(context.Background(), s.alice, s.ether("100")))
}

func (s *RegistrarSuite) ether(v string) *big.Int {
	wei, err := domain.ParseEther(v)
	s.Require().NoError(err)
	return wei
}

func (s *RegistrarSuite) ctxAt(t time.Time) context.Context {
	return requestcontext.WithTime(context.Background(), t)
}

func (s *RegistrarSuite) balance(a domain.Address) *big.Int {
	bal, err := s.bank.BalanceOf(context.Background(), a)
	s.Require().NoError(err)
	return bal
}

func (s *RegistrarSuite) request(label string) RegistrationRequest {
	return RegistrationRequest{
		Label:    label,
		Owner:    s.alice,
		Duration: 365 * 24 * time.Hour,
		Secret:   [32]byte{0x5E, 0xC4, 0xE7},
	}
}

// commitAt stores the request's commitment at t.
func (s *RegistrarSuite) commitAt(req RegistrationRequest, t time.Time) {
	s.Require().NoError(s.service.Commit(s.ctxAt(t), MakeCommitment(req)))
}

// =============================================================================
// Commit Tests
// =============================================================================

func (s *RegistrarSuite) TestCommit() {
	req := s.request("abcd")

	s.Run("stores a fresh commitment and emits", func() {
		s.commitAt(req, s.now)
		s.Len(s.recorder.ByName(events.CommitmentMade), 1)
	})

	s.Run("re-committing a live commitment fails", func() {
		err := s.service.Commit(s.ctxAt(s.now.Add(time.Hour)), MakeCommitment(req))
		s.True(dErrors.HasCode(err, dErrors.CodeConflict))
	})

	s.Run("a stale commitment may be committed again", func() {
		s.NoError(s.service.Commit(s.ctxAt(s.now.Add(25*time.Hour)), MakeCommitment(req)))
	})
}

// =============================================================================
// Register Tests — commit-reveal window
// =============================================================================

func (s *RegistrarSuite) TestRegisterWindow() {
	req := s.request("abcd")
	price := s.ether("0.05")
	s.commitAt(req, s.now)

	s.Run("before minAge fails with too early", func() {
		err := s.service.Register(s.ctxAt(s.now.Add(30*time.Second)), s.alice, req, price)
		s.True(dErrors.HasCode(err, dErrors.CodeTooEarly))
	})

	s.Run("at exactly minAge succeeds", func() {
		s.NoError(s.service.Register(s.ctxAt(s.now.Add(time.Minute)), s.alice, req, price))

		owner, err := s.ledger.OwnerOf(s.ctxAt(s.now), domain.NameHash("abcd"))
		s.NoError(err)
		s.Equal(s.alice, owner)
	})

	s.Run("the same commitment cannot be consumed twice", func() {
		err := s.service.Register(s.ctxAt(s.now.Add(2*time.Minute)), s.alice, req, price)
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})

	s.Run("after maxAge fails with expired", func() {
		late := s.request("wxyz")
		s.commitAt(late, s.now)
		err := s.service.Register(s.ctxAt(s.now.Add(25*time.Hour)), s.alice, late, price)
		s.True(dErrors.HasCode(err, dErrors.CodeExpired))
	})

	s.Run("an uncommitted reveal fails with not found", func() {
		err := s.service.Register(s.ctxAt(s.now.Add(time.Minute)), s.alice, s.request("never"), price)
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})
}

// =============================================================================
// Register Tests — pricing and payment
// =============================================================================

func (s *RegistrarSuite) TestRegisterPayment() {
	reveal := s.now.Add(2 * time.Minute)

	s.Run("short labels are priced out regardless of payment", func() {
		req := s.request("ab")
		s.commitAt(req, s.now)
		err := s.service.Register(s.ctxAt(reveal), s.alice, req, s.ether("100"))
		s.Error(err)
	})

	s.Run("underpayment fails with insufficient payment", func() {
		req := s.request("abcd")
		s.commitAt(req, s.now)
		err := s.service.Register(s.ctxAt(reveal), s.alice, req, s.ether("0.049"))
		s.True(dErrors.HasCode(err, dErrors.CodeInsufficientPayment))
	})

	s.Run("exact payment registers and forwards the full price", func() {
		req := s.request("abcd")
		before := s.balance(s.alice)

		s.Require().NoError(s.service.Register(s.ctxAt(reveal), s.alice, req, s.ether("0.05")))

		spent := new(big.Int).Sub(before, s.balance(s.alice))
		s.Equal(s.ether("0.05"), spent)
		s.Equal(s.ether("0.05"), s.fees.Balance())
	})

	s.Run("overpayment refunds exactly payment minus price", func() {
		req := s.request("efgh")
		s.commitAt(req, s.now)
		before := s.balance(s.alice)

		s.Require().NoError(s.service.Register(s.ctxAt(reveal), s.alice, req, s.ether("1")))

		spent := new(big.Int).Sub(before, s.balance(s.alice))
		s.Equal(s.ether("0.05"), spent)
	})

	s.Run("total supply is conserved across registration", func() {
		s.Equal(s.ether("100"), s.bank.TotalSupply())
	})
}

// =============================================================================
// Register Tests — referrer split
// =============================================================================

func (s *RegistrarSuite) TestReferrerSplit() {
	reveal := s.now.Add(2 * time.Minute)

	s.Run("referrer receives price*bps/10000 and the fee manager the rest", func() {
		req := s.request("abcd")
		req.Referrer = s.referrer
		s.commitAt(req, s.now)

		s.Require().NoError(s.service.Register(s.ctxAt(reveal), s.alice, req, s.ether("0.05")))

		// 500 bps of 0.05 ETH = 0.0025 ETH.
		s.Equal(s.ether("0.0025"), s.balance(s.referrer))
		s.Equal(s.ether("0.0475"), s.fees.Balance())
	})

	s.Run("zero referrer sends everything to the fee manager", func() {
		req := s.request("efgh")
		s.commitAt(req, s.now)

		s.Require().NoError(s.service.Register(s.ctxAt(reveal), s.alice, req, s.ether("0.05")))
		s.Equal(s.ether("0.0975"), s.fees.Balance())
	})

	s.Run("fee above the cap is rejected", func() {
		err := s.service.SetReferrerFeePercentage(s.ctxAt(s.now), domain.MaxReferrerFeeBps+1)
		s.True(dErrors.HasCode(err, dErrors.CodeLimitExceeded))
		s.Equal(uint32(500), s.service.ReferrerFeePercentage())
	})

	s.Run("fee update applies to later registrations", func() {
		s.Require().NoError(s.service.SetReferrerFeePercentage(s.ctxAt(s.now), 1000))

		req := s.request("ijkl")
		req.Referrer = s.referrer
		s.commitAt(req, s.now)
		s.Require().NoError(s.service.Register(s.ctxAt(reveal), s.alice, req, s.ether("0.05")))

		// 0.0025 from before plus 10% of 0.05.
		s.Equal(s.ether("0.0075"), s.balance(s.referrer))
	})
}

// =============================================================================
// Register Tests — limiter interaction
// =============================================================================

func (s *RegistrarSuite) TestRegisterLimiter() {
	reveal := s.now.Add(2 * time.Minute)
	tight, err := limiter.New(window.NewInMemoryWindowStore(), 1, time.Hour)
	s.Require().NoError(err)
	tight.SetController(s.account)

	svc, err := New(
		commitmentstore.NewInMemoryCommitmentStore(),
		s.ledger,
		pricing.New(pricing.Config{
			ThreeCharYearly: s.ether("0.5"),
			FourCharYearly:  s.ether("0.05"),
			LongYearly:      s.ether("0.01"),
		}),
		tight, s.fees, s.bank, s.account,
		Config{MinCommitmentAge: time.Minute, MaxCommitmentAge: 24 * time.Hour},
	)
	s.Require().NoError(err)

	first := s.request("abcd")
	second := s.request("efgh")
	s.Require().NoError(svc.Commit(s.ctxAt(s.now), MakeCommitment(first)))
	s.Require().NoError(svc.Commit(s.ctxAt(s.now), MakeCommitment(second)))
	s.Require().NoError(svc.Register(s.ctxAt(reveal), s.alice, first, s.ether("0.05")))

	s.Run("limit rejection returns the payment in full", func() {
		before := s.balance(s.alice)
		err := svc.Register(s.ctxAt(reveal), s.alice, second, s.ether("0.05"))
		s.True(dErrors.HasCode(err, dErrors.CodeRateLimited))
		s.Equal(before, s.balance(s.alice))
	})

	s.Run("rejected registration leaves the name available", func() {
		available, err := svc.Available(s.ctxAt(reveal), "efgh")
		s.NoError(err)
		s.True(available)
	})

	s.Run("the commitment survives for a later window", func() {
		later := s.now.Add(2 * time.Hour)
		s.NoError(svc.Register(s.ctxAt(later), s.alice, second, s.ether("0.05")))
	})
}

// =============================================================================
// Register Tests — ledger failure
// =============================================================================

// faultyLedger makes record writes fail on demand.
type faultyLedger struct {
	*ledger.InMemoryLedger
	fail bool
}

func (l *faultyLedger) MintOrExtend(ctx context.Context, tokenID domain.TokenID, label string, owner domain.Address, expiry time.Time) error {
	if l.fail {
		return errors.New("record write failed")
	}
	return l.InMemoryLedger.MintOrExtend(ctx, tokenID, label, owner, expiry)
}

func (s *RegistrarSuite) TestRegisterLedgerFailure() {
	reveal := s.now.Add(2 * time.Minute)
	faulty := &faultyLedger{InMemoryLedger: s.ledger, fail: true}

	svc, err := New(
		commitmentstore.NewInMemoryCommitmentStore(),
		faulty,
		pricing.New(pricing.Config{
			ThreeCharYearly: s.ether("0.5"),
			FourCharYearly:  s.ether("0.05"),
			LongYearly:      s.ether("0.01"),
		}),
		s.limiter, s.fees, s.bank, s.account,
		Config{MinCommitmentAge: time.Minute, MaxCommitmentAge: 24 * time.Hour},
	)
	s.Require().NoError(err)

	req := s.request("abcd")
	s.Require().NoError(svc.Commit(s.ctxAt(s.now), MakeCommitment(req)))

	s.Run("a failed record write returns the payment", func() {
		before := s.balance(s.alice)
		err := svc.Register(s.ctxAt(reveal), s.alice, req, s.ether("0.05"))
		s.True(dErrors.HasCode(err, dErrors.CodeInternal))
		s.Equal(before, s.balance(s.alice))
		s.Equal(big.NewInt(0), s.balance(s.account))
	})

	s.Run("the name stays available", func() {
		available, err := svc.Available(s.ctxAt(reveal), "abcd")
		s.NoError(err)
		s.True(available)
	})

	s.Run("the commitment survives and registers once the ledger recovers", func() {
		faulty.fail = false
		s.Require().NoError(svc.Register(s.ctxAt(reveal), s.alice, req, s.ether("0.05")))

		owner, err := s.ledger.OwnerOf(s.ctxAt(reveal), domain.NameHash("abcd"))
		s.NoError(err)
		s.Equal(s.alice, owner)
	})
}

// =============================================================================
// Renew Tests
// =============================================================================

func (s *RegistrarSuite) TestRenew() {
	year := 365 * 24 * time.Hour
	reveal := s.now.Add(2 * time.Minute)
	req := s.request("abcd")
	s.commitAt(req, s.now)
	s.Require().NoError(s.service.Register(s.ctxAt(reveal), s.alice, req, s.ether("0.05")))

	firstExpiry, err := s.ledger.ExpiresAt(s.ctxAt(reveal), domain.NameHash("abcd"))
	s.Require().NoError(err)

	s.Run("renewal extends from the recorded expiry, not from now", func() {
		renewAt := s.now.Add(30 * 24 * time.Hour)
		s.Require().NoError(s.service.Renew(s.ctxAt(renewAt), s.alice, "abcd", year, domain.ZeroAddress, s.ether("0.05")))

		expiry, err := s.ledger.ExpiresAt(s.ctxAt(renewAt), domain.NameHash("abcd"))
		s.NoError(err)
		s.Equal(firstExpiry.Add(year), expiry)
	})

	s.Run("any caller may renew without changing ownership", func() {
		bob := regAddr(0xB0)
		s.Require().NoError(s.bank.Deposit(context.Background(), bob, s.ether("1")))
		s.Require().NoError(s.service.Renew(s.ctxAt(reveal), bob, "abcd", year, domain.ZeroAddress, s.ether("0.05")))

		owner, err := s.ledger.OwnerOf(s.ctxAt(reveal), domain.NameHash("abcd"))
		s.NoError(err)
		s.Equal(s.alice, owner)
	})

	s.Run("renewing an unregistered name fails", func() {
		err := s.service.Renew(s.ctxAt(reveal), s.alice, "ghost", year, domain.ZeroAddress, s.ether("1"))
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})

	s.Run("underpayment fails and moves nothing", func() {
		before := s.balance(s.alice)
		err := s.service.Renew(s.ctxAt(reveal), s.alice, "abcd", year, domain.ZeroAddress, s.ether("0.01"))
		s.True(dErrors.HasCode(err, dErrors.CodeInsufficientPayment))
		s.Equal(before, s.balance(s.alice))
	})
}

// =============================================================================
// Pause Tests
// =============================================================================

func (s *RegistrarSuite) TestPause() {
	req := s.request("abcd")

	s.service.EmergencyPause(s.ctxAt(s.now))

	s.Run("paused gates commit, register, and renew", func() {
		err := s.service.Commit(s.ctxAt(s.now), MakeCommitment(req))
		s.True(dErrors.HasCode(err, dErrors.CodeForbidden))

		err = s.service.Register(s.ctxAt(s.now), s.alice, req, s.ether("1"))
		s.True(dErrors.HasCode(err, dErrors.CodeForbidden))

		err = s.service.Renew(s.ctxAt(s.now), s.alice, "abcd", time.Hour, domain.ZeroAddress, s.ether("1"))
		s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
	})

	s.Run("unpausing restores normal operation", func() {
		s.service.EmergencyUnpause(s.ctxAt(s.now))
		s.NoError(s.service.Commit(s.ctxAt(s.now), MakeCommitment(req)))
		s.Len(s.recorder.ByName(events.RegistrarPaused), 1)
		s.Len(s.recorder.ByName(events.RegistrarUnpaused), 1)
	})
}

// =============================================================================
// Reentrancy Tests
// =============================================================================

func (s *RegistrarSuite) TestReentrantReferrer() {
	reveal := s.now.Add(2 * time.Minute)
	req := s.request("abcd")
	req.Referrer = s.referrer
	s.commitAt(req, s.now)

	other := s.request("efgh")
	other.Referrer = s.referrer
	s.commitAt(other, s.now)

	// The referrer's receive hook re-enters Register with a second committed
	// request funded by the referrer itself.
	s.Require().NoError(s.bank.Deposit(context.Background(), s.referrer, s.ether("1")))
	var reentered error
	s.bank.SetReceiveHook(s.referrer, func(ctx context.Context, _ domain.Address, _ *big.Int) error {
		reentered = s.service.Register(ctx, s.referrer, req, s.ether("0.05"))
		return nil
	})

	s.Require().NoError(s.service.Register(s.ctxAt(reveal), s.alice, req, s.ether("0.05")))

	s.Run("the reentrant call observed the consumed commitment and failed", func() {
		s.Error(reentered)
		s.True(dErrors.HasCode(reentered, dErrors.CodeNotFound))
	})

	s.Run("no double registration occurred", func() {
		owner, err := s.ledger.OwnerOf(s.ctxAt(reveal), domain.NameHash("abcd"))
		s.NoError(err)
		s.Equal(s.alice, owner)
	})

	s.Run("no double payout occurred", func() {
		// Exactly one referrer fee on top of the deposited 1 ETH.
		s.Equal(new(big.Int).Add(s.ether("1"), s.ether("0.0025")), s.balance(s.referrer))
		s.Equal(s.ether("101"), s.bank.TotalSupply())
	})
}

// =============================================================================
// Withdraw Tests
// =============================================================================

func (s *RegistrarSuite) TestWithdraw() {
	s.Run("sweeps residual balance to the fee manager", func() {
		s.Require().NoError(s.bank.Deposit(context.Background(), s.account, s.ether("0.3")))
		s.Require().NoError(s.service.Withdraw(s.ctxAt(s.now)))

		s.Equal(s.ether("0.3"), s.fees.Balance())
		s.Equal(big.NewInt(0), s.balance(s.account))
	})

	s.Run("empty balance is a no-op", func() {
		s.NoError(s.service.Withdraw(s.ctxAt(s.now)))
	})
}

func regAddr(last byte) domain.Address {
	var a domain.Address
	a[19] = last
	return a
}
