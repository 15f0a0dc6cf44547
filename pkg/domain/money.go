package domain

import (
	"math/big"

	"github.com/shopspring/decimal"

	dErrors "namehaus/pkg/domain-errors"
)

// All fee math uses integer basis points with truncating division. Amounts
// are wei-denominated *big.Int; floating point never touches money.
const (
	// MaxBps is 100% in basis points.
	MaxBps = 10000
	// MaxReferrerFeeBps caps the referrer split at 10%.
	MaxReferrerFeeBps = 1000
	// MaxMarketplaceFeeBps caps the marketplace fee at 10%.
	MaxMarketplaceFeeBps = 1000
)

var (
	weiPerEther = decimal.NewFromBigInt(big.NewInt(1), 18)

	// MaxPrice is the saturation price for labels that are priced out
	// (length below the minimum). No payment can meet it.
	MaxPrice = new(big.Int).Lsh(big.NewInt(1), 255)
)

// ApplyBps returns amount * bps / 10000 with truncating integer division.
// A 250 bps fee on 1 ether yields exactly 0.025 ether; the seller share of
// the same sale is 9750/10000.
func ApplyBps(amount *big.Int, bps uint32) *big.Int {
	out := new(big.Int).Mul(amount, big.NewInt(int64(bps)))
	return out.Quo(out, big.NewInt(MaxBps))
}

// ParseEther converts a human ETH-denominated decimal string ("0.05") into
// wei. Configuration values are written in ETH; the engine computes in wei.
//
// Errors: returns CodeInvalidInput for malformed, negative, or
// sub-wei-precision values.
func ParseEther(s string) (*big.Int, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInvalidInput, "invalid ether amount")
	}
	if d.IsNegative() {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "ether amount cannot be negative")
	}
	wei := d.Mul(weiPerEther)
	if !wei.Equal(wei.Truncate(0)) {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "ether amount has sub-wei precision")
	}
	return wei.BigInt(), nil
}

// ParseWei converts a decimal wei string from an API payload into *big.Int.
func ParseWei(s string) (*big.Int, error) {
	if s == "" {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "amount is required")
	}
	v, ok := new(big.Int).SetString(s, 10)
	if !ok || v.Sign() < 0 {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "invalid wei amount")
	}
	return v, nil
}
