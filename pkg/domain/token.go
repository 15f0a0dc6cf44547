package domain

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	dErrors "namehaus/pkg/domain-errors"
)

// TokenID is the ledger key for a name: the keccak256 hash of its label.
// The mapping is deterministic so any party can derive the key off-process.
type TokenID common.Hash

// NameHash derives the TokenID for a raw label string. It accepts labels that
// would fail registration validation because pricing and availability reads
// must work for any input.
func NameHash(label string) TokenID {
	return TokenID(crypto.Keccak256Hash([]byte(label)))
}

// ParseTokenID constructs a TokenID from external hex input.
func ParseTokenID(s string) (TokenID, error) {
	if len(s) == 2+2*common.HashLength && (s[0:2] == "0x" || s[0:2] == "0X") {
		s = s[2:]
	}
	if len(s) != 2*common.HashLength {
		return TokenID{}, dErrors.New(dErrors.CodeInvalidInput, "invalid token id")
	}
	var h common.Hash
	if err := h.UnmarshalText([]byte("0x" + s)); err != nil {
		return TokenID{}, dErrors.New(dErrors.CodeInvalidInput, "invalid token id")
	}
	return TokenID(h), nil
}

// Hex returns the 0x-prefixed hex representation.
func (t TokenID) Hex() string {
	return common.Hash(t).Hex()
}

func (t TokenID) String() string { return t.Hex() }
