package models

import (
	"errors"
	"fmt"
)

// TransientError wraps a network or timeout failure. The engine skips the
// affected asset or check for the current cycle and retries on the next one.
type TransientError struct {
	Op  string
	Err error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("transient: %s: %v", e.Op, e.Err)
}

func (e *TransientError) Unwrap() error { return e.Err }

// RejectedOrderError means the exchange declined an order outright. Not
// retried within the cycle.
type RejectedOrderError struct {
	Asset  string
	Reason string
}

func (e *RejectedOrderError) Error() string {
	return fmt.Sprintf("order rejected for %s: %s", e.Asset, e.Reason)
}

// ErrRiskCeiling marks an intentional sizing no-op: the position would take
// total open notional past its configured multiple of balance.
var ErrRiskCeiling = errors.New("risk ceiling hit")

// CloseFailureError is raised when close-order retries on a live position
// are exhausted. The position is now unmanaged; the operator must be alerted.
type CloseFailureError struct {
	Asset    string
	Attempts int
	Err      error
}

func (e *CloseFailureError) Error() string {
	return fmt.Sprintf("close failure for %s after %d attempts: %v", e.Asset, e.Attempts, e.Err)
}

func (e *CloseFailureError) Unwrap() error { return e.Err }

// IsTransient reports whether err is a transient network/timeout failure.
func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}

// IsRejected reports whether err is an exchange order rejection.
func IsRejected(err error) bool {
	var re *RejectedOrderError
	return errors.As(err, &re)
}
