package domain

import "errors"

var (
	ErrNotFound          = errors.New("not found")
	ErrInvalidState      = errors.New("invalid state")
	ErrInvalidInput      = errors.New("invalid input")
	ErrLedgerUnavailable = errors.New("ledger unavailable")
	ErrLedgerRejected    = errors.New("ledger rejected")
	// ErrNotAnchored marks a document the ledger has never seen. It is an
	// expected lookup outcome, not a transport failure.
	ErrNotAnchored  = errors.New("not anchored")
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")
)
