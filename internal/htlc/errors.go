package htlc

import (
	"errors"
	"fmt"
)

// Error kinds surfaced to callers, per spec §7. Non-retryable kinds are
// the caller's signal to stop; retryable kinds may be retried after the
// condition they name has changed.
var (
	// ErrAddressEmpty means the redeem path found zero satoshis at the
	// HTLC address. Non-retryable.
	ErrAddressEmpty = errors.New("htlc: address empty")

	// ErrTimelockNotMature is the mapped form of a gateway "non-final"
	// response: the absolute locktime has not yet matured. Retryable
	// after the timelock passes.
	ErrTimelockNotMature = errors.New("htlc: timelock not mature")
)

// InsufficientFundsError reports that a transaction could not be built
// because the available satoshis fall short of what was requested plus
// fees. Non-retryable without topping up.
type InsufficientFundsError struct {
	Total     uint64
	Fee       uint64
	Requested uint64
}

func (e *InsufficientFundsError) Error() string {
	return fmt.Sprintf("htlc: insufficient funds: have %d, need %d (fee %d)", e.Total, e.Requested+e.Fee, e.Fee)
}

// TxNotFoundError reports that a broadcast transaction did not become
// observable within the post-broadcast delay window. Retryable.
type TxNotFoundError struct {
	TxID string
}

func (e *TxNotFoundError) Error() string {
	return fmt.Sprintf("htlc: transaction not found after broadcast: %s", e.TxID)
}

// GatewayError wraps a transport/backend failure. Retry policy is the
// caller's responsibility.
type GatewayError struct {
	Inner error
}

func (e *GatewayError) Error() string {
	return fmt.Sprintf("htlc: gateway error: %v", e.Inner)
}

func (e *GatewayError) Unwrap() error {
	return e.Inner
}

// InvariantError signals a bug: a malformed key, wrong network byte, or
// other precondition violation that should abort the operation rather
// than be retried.
type InvariantError struct {
	Reason string
}

func (e *InvariantError) Error() string {
	return fmt.Sprintf("htlc: invariant violated: %s", e.Reason)
}
