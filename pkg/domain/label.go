package domain

import (
	dErrors "namehaus/pkg/domain-errors"
)

// Label is a validated, registrable name label.
// Invariants: length in [3,63], charset [a-z0-9-], no leading or trailing
// hyphen, no consecutive hyphens, not a reserved word.
type Label string

const (
	// MinLabelLength is the shortest registrable label. Shorter labels still
	// hash and price (always at MaxPrice) but never validate.
	MinLabelLength = 3
	// MaxLabelLength matches the DNS label limit.
	MaxLabelLength = 63
)

// reservedLabels can never be registered regardless of pricing.
var reservedLabels = map[string]bool{
	"www":   true,
	"ftp":   true,
	"mail":  true,
	"email": true,
	"admin": true,
	"root":  true,
	"api":   true,
}

// ParseLabel constructs a Label from external input, enforcing syntax and the
// reserved-word list.
//
// Errors: returns CodeInvalidInput with a reason; no other errors are
// expected.
func ParseLabel(s string) (Label, error) {
	if len(s) < MinLabelLength || len(s) > MaxLabelLength {
		return "", dErrors.Newf(dErrors.CodeInvalidInput, "label length must be between %d and %d", MinLabelLength, MaxLabelLength)
	}
	if s[0] == '-' || s[len(s)-1] == '-' {
		return "", dErrors.New(dErrors.CodeInvalidInput, "label cannot start or end with a hyphen")
	}
	prevHyphen := false
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c >= 'a' && c <= 'z', c >= '0' && c <= '9':
			prevHyphen = false
		case c == '-':
			if prevHyphen {
				return "", dErrors.New(dErrors.CodeInvalidInput, "label cannot contain consecutive hyphens")
			}
			prevHyphen = true
		default:
			return "", dErrors.New(dErrors.CodeInvalidInput, "label may only contain lowercase letters, digits, and hyphens")
		}
	}
	if reservedLabels[s] {
		return "", dErrors.New(dErrors.CodeInvalidInput, "label is reserved")
	}
	return Label(s), nil
}

// TokenID returns the ledger key for this label.
func (l Label) TokenID() TokenID {
	return NameHash(string(l))
}

func (l Label) String() string { return string(l) }
