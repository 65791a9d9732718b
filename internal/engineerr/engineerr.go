// Package engineerr declares the error taxonomy returned by every engine
// operation. Callers at the HTTP boundary map these sentinels to status
// codes; engine cores never panic across a public operation boundary.
package engineerr

import "errors"

var (
	// ErrInvalidParam marks a malformed or out-of-range request argument.
	ErrInvalidParam = errors.New("invalid parameter")

	// ErrInsufficientFunds marks a cash shortfall for the requested trade.
	ErrInsufficientFunds = errors.New("insufficient funds")

	// ErrInsufficientHoldings marks a sell/close that exceeds the position
	// actually held.
	ErrInsufficientHoldings = errors.New("insufficient holdings")

	// ErrNetwork marks a failure reaching an external quote vendor.
	ErrNetwork = errors.New("quote provider network error")

	// ErrNotFound marks a reference to a position, contract, or ticker
	// that does not exist.
	ErrNotFound = errors.New("not found")

	// ErrInvariant marks a state the engine's own invariants should have
	// prevented from occurring — a bug, not a bad request.
	ErrInvariant = errors.New("invariant violation")

	// ErrPersistence marks a failure reading or writing a durable store
	// file.
	ErrPersistence = errors.New("persistence error")
)
