//go:build integration

package ledger_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"namehaus/internal/ledger"
	"namehaus/pkg/domain"
	"namehaus/pkg/platform/sentinel"
	"namehaus/pkg/requestcontext"
	"namehaus/pkg/testutil/containers"
)

type PostgresLedgerSuite struct {
	suite.Suite
	postgres *containers.PostgresContainer
	store    *ledger.PostgresLedger
}

func TestPostgresLedgerSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(PostgresLedgerSuite))
}

func (s *PostgresLedgerSuite) SetupSuite() {
	s.postgres = containers.NewPostgresContainer(s.T())
	s.store = ledger.NewPostgres(s.postgres.DB)
	s.Require().NoError(s.store.EnsureSchema(context.Background()))
}

func (s *PostgresLedgerSuite) SetupTest() {
	s.Require().NoError(s.postgres.TruncateTables(context.Background(), "ledger_records"))
}

func pgAddr(last byte) domain.Address {
	var a domain.Address
	a[19] = last
	return a
}

func ctxAt(t time.Time) context.Context {
	return requestcontext.WithTime(context.Background(), t)
}

func (s *PostgresLedgerSuite) TestAvailability() {
	ctx := context.Background()
	tokenID := domain.NameHash("abcd")
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	available, err := s.store.Available(ctxAt(now), tokenID)
	s.Require().NoError(err)
	s.True(available, "absent record is available")

	s.Require().NoError(s.store.MintOrExtend(ctx, tokenID, "abcd", pgAddr(0xA1), now.Add(time.Hour)))

	available, err = s.store.Available(ctxAt(now), tokenID)
	s.Require().NoError(err)
	s.False(available, "live record is unavailable")

	available, err = s.store.Available(ctxAt(now.Add(2*time.Hour)), tokenID)
	s.Require().NoError(err)
	s.True(available, "expired record is available again")
}

func (s *PostgresLedgerSuite) TestMintReadsBack() {
	ctx := context.Background()
	tokenID := domain.NameHash("abcd")
	owner := pgAddr(0xA1)
	expiry := time.Date(2027, 3, 1, 12, 0, 0, 0, time.UTC)

	_, err := s.store.OwnerOf(ctx, tokenID)
	s.ErrorIs(err, sentinel.ErrNotFound)

	s.Require().NoError(s.store.MintOrExtend(ctx, tokenID, "abcd", owner, expiry))

	got, err := s.store.OwnerOf(ctx, tokenID)
	s.Require().NoError(err)
	s.Equal(owner, got)

	at, err := s.store.ExpiresAt(ctx, tokenID)
	s.Require().NoError(err)
	s.True(expiry.Equal(at))
}

func (s *PostgresLedgerSuite) TestMintOverwritesExpired() {
	ctx := context.Background()
	tokenID := domain.NameHash("abcd")
	expiry := time.Date(2027, 3, 1, 12, 0, 0, 0, time.UTC)

	s.Require().NoError(s.store.MintOrExtend(ctx, tokenID, "abcd", pgAddr(0xA1), expiry))
	s.Require().NoError(s.store.MintOrExtend(ctx, tokenID, "abcd", pgAddr(0xA2), expiry.Add(time.Hour)))

	got, err := s.store.OwnerOf(ctx, tokenID)
	s.Require().NoError(err)
	s.Equal(pgAddr(0xA2), got)
}

func (s *PostgresLedgerSuite) TestTransferCustody() {
	ctx := context.Background()
	tokenID := domain.NameHash("abcd")
	escrow := pgAddr(0xE5)

	err := s.store.TransferCustody(ctx, tokenID, escrow, ledger.CustodyEscrowedListing)
	s.ErrorIs(err, sentinel.ErrNotFound)

	s.Require().NoError(s.store.MintOrExtend(ctx, tokenID, "abcd", pgAddr(0xA1), time.Now().Add(time.Hour)))
	s.Require().NoError(s.store.TransferCustody(ctx, tokenID, escrow, ledger.CustodyEscrowedListing))

	got, err := s.store.OwnerOf(ctx, tokenID)
	s.Require().NoError(err)
	s.Equal(escrow, got)
}

func (s *PostgresLedgerSuite) TestApprovalClearedOnTransfer() {
	ctx := context.Background()
	tokenID := domain.NameHash("abcd")
	operator := pgAddr(0x0F)

	s.Require().NoError(s.store.MintOrExtend(ctx, tokenID, "abcd", pgAddr(0xA1), time.Now().Add(time.Hour)))
	s.Require().NoError(s.store.Approve(ctx, tokenID, operator))

	approved, err := s.store.IsApproved(ctx, tokenID, operator)
	s.Require().NoError(err)
	s.True(approved)

	s.Require().NoError(s.store.TransferCustody(ctx, tokenID, pgAddr(0xA2), ledger.CustodyOwned))

	approved, err = s.store.IsApproved(ctx, tokenID, operator)
	s.Require().NoError(err)
	s.False(approved, "transfer must clear the approved operator")
}
