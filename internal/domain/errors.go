package domain

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound      = errors.New("not found")
	ErrAlreadyExists = errors.New("already exists")
	ErrRateLimited   = errors.New("rate limited")
	ErrUnauthorized  = errors.New("unauthorized")
	ErrLockHeld      = errors.New("lock already held")

	// Resolution outcomes.
	ErrAssetNotFound     = errors.New("asset not found")
	ErrUnresolved        = errors.New("asset unresolved")
	ErrInvalidIdentifier = errors.New("invalid asset identifier")

	// Ledger outcomes.
	ErrDuplicateActivePosition = errors.New("duplicate active position")
	ErrNoActivePosition        = errors.New("no active position")
	ErrPositionClosed          = errors.New("position closed")
	ErrUnresolvedAsset         = errors.New("asset price unavailable")
	ErrInvalidFraction         = errors.New("fraction must be in (0, 1]")
	ErrInvalidAmount           = errors.New("amount must be positive")
	ErrInvalidSnapshot         = errors.New("invalid ledger snapshot")
)

// ProviderError reports a transient failure inside one Provider: transport
// errors, malformed payloads and rate-limit responses. The Resolver treats it
// as a signal to try the next provider.
type ProviderError struct {
	Provider string
	Op       string
	Err      error
}

// NewProviderError wraps err as a ProviderError for the named provider.
func NewProviderError(provider, op string, err error) *ProviderError {
	return &ProviderError{Provider: provider, Op: op, Err: err}
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("provider %s: %s: %v", e.Provider, e.Op, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// IsProviderError reports whether err is or wraps a *ProviderError.
func IsProviderError(err error) bool {
	var pe *ProviderError
	return errors.As(err, &pe)
}
