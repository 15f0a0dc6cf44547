package registrar

import (
	"encoding/binary"

	"github.com/ethereum/go-ethereum/crypto"
)

// MakeCommitment hashes a registration request into its commitment key. The
// encoding length-prefixes every variable field, so the same request always
// produces the same hash and no two distinct requests can collide on field
// boundaries. Any party can recompute the hash off-process before and after
// the commit-reveal wait.
func MakeCommitment(req RegistrationRequest) CommitmentHash {
	var buf []byte

	buf = appendBytes(buf, []byte(req.Label))
	buf = appendBytes(buf, req.Owner.Bytes())
	buf = binary.BigEndian.AppendUint64(buf, uint64(req.Duration.Seconds()))
	buf = append(buf, req.Secret[:]...)
	buf = appendBytes(buf, req.Resolver.Bytes())

	buf = binary.BigEndian.AppendUint64(buf, uint64(len(req.Data)))
	for _, record := range req.Data {
		buf = appendBytes(buf, record)
	}

	if req.ReverseRecord {
		buf = append(buf, 1)
	} else {
		buf = append(buf, 0)
	}
	buf = appendBytes(buf, req.Referrer.Bytes())

	return CommitmentHash(crypto.Keccak256Hash(buf))
}

func appendBytes(buf, field []byte) []byte {
	buf = binary.BigEndian.AppendUint64(buf, uint64(len(field)))
	return append(buf, field...)
}
