package handler

import (
	"encoding/hex"
	"math/big"
	"strings"
	"time"

	"namehaus/internal/registrar"
	"namehaus/pkg/domain"
	dErrors "namehaus/pkg/domain-errors"
)

// CommitRequest is the HTTP request body for POST /registrar/commitments.
type CommitRequest struct {
	Commitment string `json:"commitment"`

	parsedCommitment registrar.CommitmentHash
}

func (r *CommitRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeInvalidInput, "request body is required")
	}
	hash, err := registrar.ParseCommitmentHash(strings.TrimSpace(r.Commitment))
	if err != nil {
		return err
	}
	r.parsedCommitment = hash
	return nil
}

func (r *CommitRequest) ParsedCommitment() registrar.CommitmentHash {
	return r.parsedCommitment
}

// RegisterRequest is the HTTP request body for POST /registrar/registrations.
// It is also the body for POST /registrar/commitment-hash, which computes the
// commitment without payment fields.
type RegisterRequest struct {
	Label           string   `json:"label"`
	Owner           string   `json:"owner"`
	DurationSeconds int64    `json:"duration_seconds"`
	Secret          string   `json:"secret"`
	Resolver        string   `json:"resolver,omitempty"`
	Data            []string `json:"data,omitempty"`
	ReverseRecord   bool     `json:"reverse_record,omitempty"`
	Referrer        string   `json:"referrer,omitempty"`
	Payer           string   `json:"payer,omitempty"`
	PaymentWei      string   `json:"payment_wei,omitempty"`

	parsed        registrar.RegistrationRequest
	parsedPayer   domain.Address
	parsedPayment *big.Int
}

func (r *RegisterRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeInvalidInput, "request body is required")
	}
	if r.DurationSeconds <= 0 {
		return dErrors.New(dErrors.CodeInvalidInput, "duration_seconds must be positive")
	}
	owner, err := domain.ParseAddress(strings.TrimSpace(r.Owner))
	if err != nil {
		return err
	}

	secret, err := parseSecret(r.Secret)
	if err != nil {
		return err
	}

	resolver := domain.ZeroAddress
	if r.Resolver != "" {
		if resolver, err = domain.ParseAddress(strings.TrimSpace(r.Resolver)); err != nil {
			return err
		}
	}
	referrer := domain.ZeroAddress
	if r.Referrer != "" {
		if referrer, err = domain.ParseAddress(strings.TrimSpace(r.Referrer)); err != nil {
			return err
		}
	}

	data := make([][]byte, 0, len(r.Data))
	for _, record := range r.Data {
		raw, err := hex.DecodeString(strings.TrimPrefix(record, "0x"))
		if err != nil {
			return dErrors.New(dErrors.CodeInvalidInput, "data records must be hex-encoded")
		}
		data = append(data, raw)
	}

	r.parsed = registrar.RegistrationRequest{
		Label:         strings.TrimSpace(r.Label),
		Owner:         owner,
		Duration:      time.Duration(r.DurationSeconds) * time.Second,
		Secret:        secret,
		Resolver:      resolver,
		Data:          data,
		ReverseRecord: r.ReverseRecord,
		Referrer:      referrer,
	}
	return nil
}

// ValidatePayment parses the payer and payment fields required by the
// registration endpoint but not by the commitment-hash endpoint.
func (r *RegisterRequest) ValidatePayment() error {
	payer, err := domain.ParseAddress(strings.TrimSpace(r.Payer))
	if err != nil {
		return err
	}
	payment, err := domain.ParseWei(r.PaymentWei)
	if err != nil {
		return err
	}
	r.parsedPayer = payer
	r.parsedPayment = payment
	return nil
}

func (r *RegisterRequest) Parsed() registrar.RegistrationRequest { return r.parsed }
func (r *RegisterRequest) ParsedPayer() domain.Address           { return r.parsedPayer }
func (r *RegisterRequest) ParsedPayment() *big.Int               { return r.parsedPayment }

// RenewRequest is the HTTP request body for POST /registrar/renewals.
type RenewRequest struct {
	Label           string `json:"label"`
	DurationSeconds int64  `json:"duration_seconds"`
	Referrer        string `json:"referrer,omitempty"`
	Payer           string `json:"payer"`
	PaymentWei      string `json:"payment_wei"`

	parsedReferrer domain.Address
	parsedPayer    domain.Address
	parsedPayment  *big.Int
}

func (r *RenewRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeInvalidInput, "request body is required")
	}
	if r.DurationSeconds <= 0 {
		return dErrors.New(dErrors.CodeInvalidInput, "duration_seconds must be positive")
	}
	r.Label = strings.TrimSpace(r.Label)
	if r.Label == "" {
		return dErrors.New(dErrors.CodeInvalidInput, "label is required")
	}

	payer, err := domain.ParseAddress(strings.TrimSpace(r.Payer))
	if err != nil {
		return err
	}
	payment, err := domain.ParseWei(r.PaymentWei)
	if err != nil {
		return err
	}
	referrer := domain.ZeroAddress
	if r.Referrer != "" {
		if referrer, err = domain.ParseAddress(strings.TrimSpace(r.Referrer)); err != nil {
			return err
		}
	}

	r.parsedReferrer = referrer
	r.parsedPayer = payer
	r.parsedPayment = payment
	return nil
}

func (r *RenewRequest) ParsedDuration() time.Duration {
	return time.Duration(r.DurationSeconds) * time.Second
}
func (r *RenewRequest) ParsedReferrer() domain.Address { return r.parsedReferrer }
func (r *RenewRequest) ParsedPayer() domain.Address    { return r.parsedPayer }
func (r *RenewRequest) ParsedPayment() *big.Int        { return r.parsedPayment }

// SetReferrerFeeRequest is the HTTP request body for the admin fee update.
type SetReferrerFeeRequest struct {
	Bps uint32 `json:"bps"`
}

func (r *SetReferrerFeeRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeInvalidInput, "request body is required")
	}
	return nil
}

func parseSecret(s string) ([32]byte, error) {
	var secret [32]byte
	raw, err := hex.DecodeString(strings.TrimPrefix(strings.TrimSpace(s), "0x"))
	if err != nil || len(raw) != len(secret) {
		return secret, dErrors.New(dErrors.CodeInvalidInput, "secret must be 32 hex-encoded bytes")
	}
	copy(secret[:], raw)
	return secret, nil
}
