// Package domain holds the engine's core value types: labels, token IDs,
// account addresses, and basis-point money math.
//
// Usage: construct values via the Parse* functions at trust boundaries so the
// validation rules are enforced; direct casting bypasses them.
package domain

import (
	"github.com/ethereum/go-ethereum/common"

	dErrors "namehaus/pkg/domain-errors"
)

// Address identifies an account on the underlying ledger: a registrant, a
// referrer, a bidder, or one of the engine's own custody accounts.
type Address common.Address

// ZeroAddress means "no referrer" on registration and renewal calls.
var ZeroAddress Address

// ParseAddress constructs an Address from external hex input.
//
// Errors: returns CodeInvalidInput when the value is not a 20-byte hex
// address; no other errors are expected.
func ParseAddress(s string) (Address, error) {
	if !common.IsHexAddress(s) {
		return Address{}, dErrors.New(dErrors.CodeInvalidInput, "invalid address")
	}
	return Address(common.HexToAddress(s)), nil
}

// IsZero reports whether the address is the zero address.
func (a Address) IsZero() bool {
	return a == Address{}
}

// Hex returns the checksummed hex representation.
func (a Address) Hex() string {
	return common.Address(a).Hex()
}

func (a Address) String() string { return a.Hex() }

// Bytes returns the raw 20-byte representation.
func (a Address) Bytes() []byte {
	addr := common.Address(a)
	return addr.Bytes()
}
