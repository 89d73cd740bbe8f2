package apperrors

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound         = errors.New("not found")
	ErrConflict         = errors.New("conflict")
	ErrStoreUnavailable = errors.New("store unavailable")
	ErrTimeoutExceeded  = errors.New("timeout exceeded")
	ErrGraphMismatch    = errors.New("snapshots belong to different graphs")

	// ErrCircuitOpen marks a request rejected without reaching the store.
	ErrCircuitOpen = errors.New("circuit open")
)

// StoreUnavailableError reports a transient failure of an external store
// (graph store or dependency store). It matches ErrStoreUnavailable with
// errors.Is and is treated as retryable by the retry package.
type StoreUnavailableError struct {
	Store string
	Err   error
}

// NewStoreUnavailable wraps err as a StoreUnavailableError for the named store.
func NewStoreUnavailable(store string, err error) *StoreUnavailableError {
	return &StoreUnavailableError{Store: store, Err: err}
}

func (e *StoreUnavailableError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s unavailable", e.Store)
	}
	return fmt.Sprintf("%s unavailable: %v", e.Store, e.Err)
}

func (e *StoreUnavailableError) Unwrap() error { return e.Err }

func (e *StoreUnavailableError) Is(target error) bool { return target == ErrStoreUnavailable }

// IsRetryable marks store outages as transient. Requests rejected by an
// open circuit are not retried; the breaker decides when to probe again.
func (e *StoreUnavailableError) IsRetryable() bool { return !errors.Is(e.Err, ErrCircuitOpen) }
