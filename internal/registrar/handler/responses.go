package handler

import (
	"namehaus/internal/pricing"
)

// QuoteResponse is the JSON body for price reads.
type QuoteResponse struct {
	Label      string `json:"label"`
	BaseWei    string `json:"base_wei"`
	PremiumWei string `json:"premium_wei"`
	TotalWei   string `json:"total_wei"`
}

func FromQuote(label string, q pricing.Quote) QuoteResponse {
	return QuoteResponse{
		Label:      label,
		BaseWei:    q.Base.String(),
		PremiumWei: q.Premium.String(),
		TotalWei:   q.Total().String(),
	}
}

// AvailableResponse is the JSON body for availability reads.
type AvailableResponse struct {
	Label     string `json:"label"`
	TokenID   string `json:"token_id"`
	Available bool   `json:"available"`
}

// CommitmentHashResponse is the JSON body for commitment-hash computation.
type CommitmentHashResponse struct {
	Commitment string `json:"commitment"`
}

// StatusResponse acknowledges a state transition.
type StatusResponse struct {
	Status string `json:"status"`
}
