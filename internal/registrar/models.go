package registrar

import (
	"time"

	"github.com/ethereum/go-ethereum/common"

	"namehaus/pkg/domain"
	dErrors "namehaus/pkg/domain-errors"
)

// RegistrationRequest is the plaintext reveal of a commitment. It is never
// persisted; only its hash is. Every field participates in the commitment
// hash so the reveal cannot be altered after the wait.
type RegistrationRequest struct {
	Label         string
	Owner         domain.Address
	Duration      time.Duration
	Secret        [32]byte
	Resolver      domain.Address
	Data          [][]byte
	ReverseRecord bool
	Referrer      domain.Address
}

// CommitmentHash keys the one-shot commitment records.
type CommitmentHash common.Hash

// ParseCommitmentHash constructs a CommitmentHash from external hex input.
func ParseCommitmentHash(s string) (CommitmentHash, error) {
	if len(s) >= 2 && (s[0:2] == "0x" || s[0:2] == "0X") {
		s = s[2:]
	}
	if len(s) != 2*common.HashLength {
		return CommitmentHash{}, dErrors.New(dErrors.CodeInvalidInput, "invalid commitment hash")
	}
	var h common.Hash
	if err := h.UnmarshalText([]byte("0x" + s)); err != nil {
		return CommitmentHash{}, dErrors.New(dErrors.CodeInvalidInput, "invalid commitment hash")
	}
	return CommitmentHash(h), nil
}

// Hex returns the 0x-prefixed hex representation.
func (h CommitmentHash) Hex() string {
	return common.Hash(h).Hex()
}

func (h CommitmentHash) String() string { return h.Hex() }
