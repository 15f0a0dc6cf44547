package handler

import (
	"time"

	"namehaus/internal/marketplace"
)

// ListingResponse is the JSON body for listing reads.
type ListingResponse struct {
	TokenID   string    `json:"token_id"`
	Seller    string    `json:"seller"`
	PriceWei  string    `json:"price_wei"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
}

func FromListing(l marketplace.Listing) ListingResponse {
	return ListingResponse{
		TokenID:   l.TokenID.Hex(),
		Seller:    l.Seller.Hex(),
		PriceWei:  l.Price.String(),
		Active:    l.Active,
		CreatedAt: l.CreatedAt,
	}
}

// AuctionResponse is the JSON body for auction reads.
type AuctionResponse struct {
	TokenID       string    `json:"token_id"`
	Seller        string    `json:"seller"`
	StartPriceWei string    `json:"start_price_wei"`
	CurrentBidWei string    `json:"current_bid_wei,omitempty"`
	HighestBidder string    `json:"highest_bidder,omitempty"`
	StartTime     time.Time `json:"start_time"`
	EndTime       time.Time `json:"end_time"`
	Active        bool      `json:"active"`
	Settled       bool      `json:"settled"`
	BidCount      int       `json:"bid_count"`
}

func FromAuction(a marketplace.Auction) AuctionResponse {
	resp := AuctionResponse{
		TokenID:       a.TokenID.Hex(),
		Seller:        a.Seller.Hex(),
		StartPriceWei: a.StartPrice.String(),
		StartTime:     a.StartTime,
		EndTime:       a.EndTime,
		Active:        a.Active,
		Settled:       a.Settled,
		BidCount:      a.BidCount,
	}
	if a.HasBids() {
		resp.CurrentBidWei = a.CurrentBid.String()
		resp.HighestBidder = a.HighestBidder.Hex()
	}
	return resp
}

// PendingReturnsResponse is the JSON body for pending-return reads and
// withdrawals.
type PendingReturnsResponse struct {
	Address   string `json:"address"`
	AmountWei string `json:"amount_wei"`
}

// StatusResponse acknowledges a state transition.
type StatusResponse struct {
	Status string `json:"status"`
}
