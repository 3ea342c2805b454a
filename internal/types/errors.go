package types

import (
	"errors"
	"fmt"
)

// Sentinel errors forming the failure taxonomy. Per-cycle errors are
// always contained to the symbol's cycle that raised them.
var (
	// ErrDataInsufficient: the candle window is too short for an
	// indicator. The indicator is skipped and confidence reduced; the
	// cycle continues.
	ErrDataInsufficient = errors.New("data insufficient")

	// ErrAdvisorUnavailable: the AI advisory call timed out or returned a
	// malformed response. The aggregator falls back to a neutral
	// recommendation.
	ErrAdvisorUnavailable = errors.New("advisor unavailable")

	// ErrExternalService: exchange or feed transiently unreachable.
	// Retried with bounded backoff, then the cycle is skipped.
	ErrExternalService = errors.New("external service error")

	// ErrInvalidConfiguration: out-of-range risk parameters. Fatal at
	// startup; the process refuses to run.
	ErrInvalidConfiguration = errors.New("invalid configuration")
)

// OrderExecutionError means a submission failed or its fill state stayed
// unresolved after bounded reconciliation retries. The intended position
// transition was aborted: no Position was created or closed.
type OrderExecutionError struct {
	Symbol     string
	Token      string
	Unresolved bool // true when fill state could not be reconciled
	Err        error
}

func (e *OrderExecutionError) Error() string {
	if e.Unresolved {
		return fmt.Sprintf("order execution unresolved for %s (token %s): %v", e.Symbol, e.Token, e.Err)
	}
	return fmt.Sprintf("order execution failed for %s: %v", e.Symbol, e.Err)
}

func (e *OrderExecutionError) Unwrap() error { return e.Err }
