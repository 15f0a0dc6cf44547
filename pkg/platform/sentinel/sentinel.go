package sentinel

import "errors"

// Sentinel errors for infrastructure facts. Stores return these (optionally
// wrapped) so services can translate them into domain errors.
//
// These represent factual states about resources, not validation failures:
// - ErrNotFound: record, commitment, listing, or request does not exist
// - ErrConflict: record already exists or is already escrowed
// - ErrExpired: commitment or registration past its valid window
// - ErrAlreadyUsed: withdrawal request already executed
// - ErrInvalidState: entity in wrong custody state for the operation
// - ErrInsufficientFunds: bank account balance below the requested amount
//
// For validation errors (bad input, missing fields), use pkg/domain-errors.
var (
	ErrNotFound          = errors.New("not found")
	ErrConflict          = errors.New("conflict")
	ErrExpired           = errors.New("expired")
	ErrAlreadyUsed       = errors.New("already used")
	ErrInvalidState      = errors.New("invalid state")
	ErrInsufficientFunds = errors.New("insufficient funds")
)
