// internal/netclient/errors.go
package netclient

import (
	"errors"
	"fmt"
)

var (
	// ErrConfirmationTimeout is returned when a submitted transaction was not
	// confirmed within the configured window. The transaction may still land;
	// callers must re-query chain state before assuming either outcome.
	ErrConfirmationTimeout = errors.New("transaction confirmation timed out")

	// ErrTransactionFailed is returned when the cluster reports an on-chain
	// error for a submitted transaction.
	ErrTransactionFailed = errors.New("transaction failed on-chain")
)

// Error carries the node and method that produced an RPC failure.
type Error struct {
	Err     error
	NodeURL string
	Method  string
}

func (e *Error) Error() string {
	return fmt.Sprintf("RPC error [%s] at %s: %v", e.Method, e.NodeURL, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func newError(err error, nodeURL, method string) error {
	return &Error{Err: err, NodeURL: nodeURL, Method: method}
}
