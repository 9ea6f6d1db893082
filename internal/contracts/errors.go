package contracts

import "errors"

var (
	// ErrTransactionReverted marks a transaction that was included with a failed status
	ErrTransactionReverted = errors.New("transaction reverted")
	// ErrNoSigner is returned when a write is attempted without authorization
	ErrNoSigner = errors.New("no signer available")

	errEmptyResult    = errors.New("empty call result")
	errUnexpectedType = errors.New("unexpected result type")
	errOutOfRange     = errors.New("numeric result out of range")
)
