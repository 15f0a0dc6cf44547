package handler

import (
	"math/big"
	"strings"
	"time"

	"namehaus/pkg/domain"
	dErrors "namehaus/pkg/domain-errors"
)

// CreateListingRequest is the HTTP request body for POST /market/listings.
type CreateListingRequest struct {
	TokenID  string `json:"token_id"`
	Seller   string `json:"seller"`
	PriceWei string `json:"price_wei"`

	parsedTokenID domain.TokenID
	parsedSeller  domain.Address
	parsedPrice   *big.Int
}

func (r *CreateListingRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeInvalidInput, "request body is required")
	}
	tokenID, err := domain.ParseTokenID(strings.TrimSpace(r.TokenID))
	if err != nil {
		return err
	}
	seller, err := domain.ParseAddress(strings.TrimSpace(r.Seller))
	if err != nil {
		return err
	}
	price, err := domain.ParseWei(r.PriceWei)
	if err != nil {
		return err
	}
	r.parsedTokenID = tokenID
	r.parsedSeller = seller
	r.parsedPrice = price
	return nil
}

func (r *CreateListingRequest) ParsedTokenID() domain.TokenID { return r.parsedTokenID }
func (r *CreateListingRequest) ParsedSeller() domain.Address  { return r.parsedSeller }
func (r *CreateListingRequest) ParsedPrice() *big.Int         { return r.parsedPrice }

// CallerRequest carries only the acting address, used by cancel and
// pending-return withdrawals.
type CallerRequest struct {
	Caller string `json:"caller"`

	parsedCaller domain.Address
}

func (r *CallerRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeInvalidInput, "request body is required")
	}
	caller, err := domain.ParseAddress(strings.TrimSpace(r.Caller))
	if err != nil {
		return err
	}
	r.parsedCaller = caller
	return nil
}

func (r *CallerRequest) ParsedCaller() domain.Address { return r.parsedCaller }

// PaymentRequest carries an acting address and a wei amount, used by buys
// and bids.
type PaymentRequest struct {
	Caller     string `json:"caller"`
	PaymentWei string `json:"payment_wei"`

	parsedCaller  domain.Address
	parsedPayment *big.Int
}

func (r *PaymentRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeInvalidInput, "request body is required")
	}
	caller, err := domain.ParseAddress(strings.TrimSpace(r.Caller))
	if err != nil {
		return err
	}
	payment, err := domain.ParseWei(r.PaymentWei)
	if err != nil {
		return err
	}
	r.parsedCaller = caller
	r.parsedPayment = payment
	return nil
}

func (r *PaymentRequest) ParsedCaller() domain.Address { return r.parsedCaller }
func (r *PaymentRequest) ParsedPayment() *big.Int      { return r.parsedPayment }

// CreateAuctionRequest is the HTTP request body for POST /market/auctions.
type CreateAuctionRequest struct {
	TokenID         string `json:"token_id"`
	Seller          string `json:"seller"`
	StartPriceWei   string `json:"start_price_wei"`
	DurationSeconds int64  `json:"duration_seconds"`

	parsedTokenID    domain.TokenID
	parsedSeller     domain.Address
	parsedStartPrice *big.Int
}

func (r *CreateAuctionRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeInvalidInput, "request body is required")
	}
	if r.DurationSeconds <= 0 {
		return dErrors.New(dErrors.CodeInvalidInput, "duration_seconds must be positive")
	}
	tokenID, err := domain.ParseTokenID(strings.TrimSpace(r.TokenID))
	if err != nil {
		return err
	}
	seller, err := domain.ParseAddress(strings.TrimSpace(r.Seller))
	if err != nil {
		return err
	}
	startPrice, err := domain.ParseWei(r.StartPriceWei)
	if err != nil {
		return err
	}
	r.parsedTokenID = tokenID
	r.parsedSeller = seller
	r.parsedStartPrice = startPrice
	return nil
}

func (r *CreateAuctionRequest) ParsedTokenID() domain.TokenID { return r.parsedTokenID }
func (r *CreateAuctionRequest) ParsedSeller() domain.Address  { return r.parsedSeller }
func (r *CreateAuctionRequest) ParsedStartPrice() *big.Int    { return r.parsedStartPrice }
func (r *CreateAuctionRequest) ParsedDuration() time.Duration {
	return time.Duration(r.DurationSeconds) * time.Second
}

// SetFeeRequest is the HTTP request body for marketplace fee and increment
// updates.
type SetFeeRequest struct {
	Bps uint32 `json:"bps"`
}

func (r *SetFeeRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeInvalidInput, "request body is required")
	}
	return nil
}
