// Package events defines the signals the engine emits on state transitions.
// Keep Event transport-agnostic so sinks can fan out (logs, recorders, and
// later message buses).
package events

import (
	"math/big"
	"time"

	"namehaus/pkg/domain"
)

// Name identifies an emitted signal.
type Name string

const (
	// Registration controller signals.
	CommitmentMade               Name = "commitment_made"
	Registered                   Name = "registered"
	Renewed                      Name = "renewed"
	ReferrerFeePercentageChanged Name = "referrer_fee_percentage_changed"
	WithdrawalToFeeManager       Name = "withdrawal_to_fee_manager"
	RegistrarPaused              Name = "registrar_paused"
	RegistrarUnpaused            Name = "registrar_unpaused"

	// Fee manager signals.
	WithdrawalRequested Name = "withdrawal_requested"
	WithdrawalExecuted  Name = "withdrawal_executed"
	EmergencyWithdrawal Name = "emergency_withdrawal"
	TreasuryChanged     Name = "treasury_changed"

	// Marketplace signals.
	Listed                  Name = "listed"
	ListingCancelled        Name = "listing_cancelled"
	Sold                    Name = "sold"
	AuctionCreated          Name = "auction_created"
	BidPlaced               Name = "bid_placed"
	AuctionSettled          Name = "auction_settled"
	AuctionCancelled        Name = "auction_cancelled"
	MarketplaceFeeUpdated   Name = "marketplace_fee_updated"
	PendingReturnsWithdrawn Name = "pending_returns_withdrawn"
)

// Event captures one emitted signal. Zero-valued fields are omitted by sinks.
type Event struct {
	Name      Name
	At        time.Time
	TokenID   domain.TokenID
	Label     string
	Actor     domain.Address
	Amount    *big.Int
	RequestID string
}

// Emitter is the sink port for emitted signals. Emission is best-effort and
// must never fail a state transition that has already been applied.
type Emitter interface {
	Emit(event Event)
}
