package domain

import (
	"errors"
	"fmt"
)

// ─── Sentinel Errors ────────────────────────────────────────────────────────
// Domain errors carry no infrastructure dependency. Every one of them is
// recoverable by the caller; services wrap them with context via %w.

var (
	ErrUnauthorized      = errors.New("caller lacks the required role")
	ErrNotFound          = errors.New("not found")
	ErrInvalidState      = errors.New("operation not valid in current state")
	ErrDuplicateVote     = errors.New("ballot already cast by this identity")
	ErrInvalidAmount     = errors.New("amount out of range")
	ErrInvalidSeverity   = errors.New("severity must be between 1 and 10")
	ErrTooEarly          = errors.New("voting period has not ended")
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrInvalidArgument   = errors.New("invalid argument")

	// ErrNoCaller is returned when no identity could be resolved for a call.
	// It wraps ErrUnauthorized so callers can treat both the same way.
	ErrNoCaller = fmt.Errorf("no caller identity: %w", ErrUnauthorized)

	// Storage errors
	ErrKeyNotFound = errors.New("key not found")
	ErrStoreClosed = errors.New("store is closed")
)

// ErrorKind returns the stable kind name for err, as exposed to API clients
// and metrics labels. Unknown errors map to "Internal".
func ErrorKind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrUnauthorized):
		return "Unauthorized"
	case errors.Is(err, ErrNotFound):
		return "NotFound"
	case errors.Is(err, ErrInvalidState):
		return "InvalidState"
	case errors.Is(err, ErrDuplicateVote):
		return "DuplicateVote"
	case errors.Is(err, ErrInvalidAmount):
		return "InvalidAmount"
	case errors.Is(err, ErrInvalidSeverity):
		return "InvalidSeverity"
	case errors.Is(err, ErrTooEarly):
		return "TooEarly"
	case errors.Is(err, ErrInsufficientFunds):
		return "InsufficientFunds"
	case errors.Is(err, ErrInvalidArgument):
		return "InvalidArgument"
	default:
		return "Internal"
	}
}
