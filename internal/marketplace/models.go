package marketplace

import (
	"math/big"
	"time"

	"namehaus/pkg/domain"
)

// Listing is one fixed-price sale. At most one active listing exists per
// token, and never alongside an active auction.
type Listing struct {
	TokenID   domain.TokenID
	Seller    domain.Address
	Price     *big.Int
	Active    bool
	CreatedAt time.Time
}

// Auction is one English auction. CurrentBid strictly increases by at least
// the configured increment per accepted bid; outbid funds move to the
// pending-returns ledger, never back to the bidder directly.
type Auction struct {
	TokenID       domain.TokenID
	Seller        domain.Address
	StartPrice    *big.Int
	CurrentBid    *big.Int
	HighestBidder domain.Address
	StartTime     time.Time
	EndTime       time.Time
	Active        bool
	Settled       bool
	BidCount      int
}

// HasBids reports whether any bid was accepted.
func (a Auction) HasBids() bool {
	return a.BidCount > 0
}

func cloneListing(l *Listing) Listing {
	out := *l
	out.Price = new(big.Int).Set(l.Price)
	return out
}

func cloneAuction(a *Auction) Auction {
	out := *a
	out.StartPrice = new(big.Int).Set(a.StartPrice)
	if a.CurrentBid != nil {
		out.CurrentBid = new(big.Int).Set(a.CurrentBid)
	}
	return out
}
