// internal/executor/errors.go
package executor

import (
	"fmt"
	"strings"

	"github.com/gagliardetto/solana-go"
)

// Error kinds recorded on execution results and in the trade journal.
const (
	KindOK          = "ok"
	KindValidation  = "validation"
	KindQuote       = "quote"
	KindPriceImpact = "price_impact"
	KindTransient   = "transient"
	KindFatal       = "fatal"
	KindUnconfirmed = "unconfirmed"
)

// QuoteError means the provider returned no usable quote. It is reported,
// not retried; the caller may resubmit with adjusted parameters.
type QuoteError struct {
	Err error
}

func (e *QuoteError) Error() string { return fmt.Sprintf("quote failed: %v", e.Err) }
func (e *QuoteError) Unwrap() error { return e.Err }

// PriceImpactError aborts an attempt whose quoted impact exceeds policy.
type PriceImpactError struct {
	Impact    float64
	Threshold float64
}

func (e *PriceImpactError) Error() string {
	return fmt.Sprintf("price impact %.2f%% exceeds threshold %.2f%%", e.Impact, e.Threshold)
}

// TransientError marks a failure worth retrying with a fresh blockhash and
// fee: rate limits, stale blockhashes, flaky transport.
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string { return fmt.Sprintf("transient failure: %v", e.Err) }
func (e *TransientError) Unwrap() error { return e.Err }

// FatalError marks a failure that retrying cannot fix: insufficient funds,
// invalid instructions, missing accounts. Surfaced immediately.
type FatalError struct {
	Err error
}

func (e *FatalError) Error() string { return fmt.Sprintf("fatal failure: %v", e.Err) }
func (e *FatalError) Unwrap() error { return e.Err }

// UnconfirmedError is the ambiguous outcome: the transaction was submitted
// but confirmation timed out. It is neither success nor failure; the caller
// must re-query chain state before deciding the next action.
type UnconfirmedError struct {
	Signature solana.Signature
}

func (e *UnconfirmedError) Error() string {
	return fmt.Sprintf("transaction %s unconfirmed within timeout", e.Signature)
}

// transientMarkers is the explicit allow-list of retryable failures. Anything
// not matched here is treated as fatal; there is no blanket retry.
var transientMarkers = []string{
	"blockhash not found",
	"blockhashnotfound",
	"block height exceeded",
	"rate limit",
	"too many requests",
	"429",
	"timeout",
	"timed out",
	"deadline exceeded",
	"connection reset",
	"connection refused",
	"broken pipe",
	"i/o timeout",
	"node is behind",
	"service unavailable",
	"502",
	"503",
}

// classify wraps err as TransientError if it matches the retry allow-list,
// otherwise as FatalError.
func classify(err error) error {
	msg := strings.ToLower(err.Error())
	for _, marker := range transientMarkers {
		if strings.Contains(msg, marker) {
			return &TransientError{Err: err}
		}
	}
	return &FatalError{Err: err}
}
