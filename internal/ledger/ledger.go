// Package ledger defines the canonical ownership/expiry store the engine
// registers names against. The ledger owns its records; the controller and
// marketplace request mutations only through this interface and never bypass
// its checks.
package ledger

import (
	"context"
	"time"

	"namehaus/pkg/domain"
)

// CustodyState tracks whether a record is held by its owner or escrowed by
// the marketplace. At most one escrow state is active per token at any time;
// the marketplace enforces that invariant.
type CustodyState string

const (
	CustodyOwned           CustodyState = "owned"
	CustodyEscrowedListing CustodyState = "escrowed_listing"
	CustodyEscrowedAuction CustodyState = "escrowed_auction"
)

// Record is one name's canonical ledger entry.
type Record struct {
	Label   string
	TokenID domain.TokenID
	Owner   domain.Address
	Expiry  time.Time
	Custody CustodyState
}

// Expired reports whether the record's registration has lapsed as of now.
func (r Record) Expired(now time.Time) bool {
	return !r.Expiry.After(now)
}

// Ledger is the collaborator port for the ownership/expiry store.
// Availability and expiry checks read the request-scoped clock from ctx.
type Ledger interface {
	// Available reports whether a token can be registered: the record is
	// absent or its registration has expired.
	Available(ctx context.Context, tokenID domain.TokenID) (bool, error)

	// OwnerOf returns the current owner. Fails with sentinel.ErrNotFound for
	// absent records.
	OwnerOf(ctx context.Context, tokenID domain.TokenID) (domain.Address, error)

	// ExpiresAt returns the recorded expiry. Fails with sentinel.ErrNotFound
	// for absent records.
	ExpiresAt(ctx context.Context, tokenID domain.TokenID) (time.Time, error)

	// MintOrExtend creates the record with the given owner and expiry, or
	// overwrites owner and expiry on an existing record. The controller is
	// the only caller.
	MintOrExtend(ctx context.Context, tokenID domain.TokenID, label string, owner domain.Address, expiry time.Time) error

	// TransferCustody moves ownership of an existing record and stamps the
	// new custody state. The marketplace escrows and releases records with
	// this call.
	TransferCustody(ctx context.Context, tokenID domain.TokenID, to domain.Address, custody CustodyState) error

	// Approve grants an operator transfer rights over a record.
	Approve(ctx context.Context, tokenID domain.TokenID, operator domain.Address) error

	// IsApproved reports whether an operator holds transfer rights.
	IsApproved(ctx context.Context, tokenID domain.TokenID, operator domain.Address) (bool, error)
}
