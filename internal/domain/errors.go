package domain

import "errors"

// Error taxonomy shared by every service. Callers wrap these with fmt.Errorf("%w: ...")
// and the HTTP layer maps them with errors.Is.
var (
	ErrValidation         = errors.New("validation failed")
	ErrNotFound           = errors.New("not found")
	ErrConflict           = errors.New("conflict")
	ErrInvalidState       = errors.New("invalid state")
	ErrInsufficientFunds  = errors.New("insufficient funds")
	ErrExpired            = errors.New("expired")
	ErrInvariantViolation = errors.New("ledger invariant violation")
	ErrForbidden          = errors.New("forbidden")
)
