// internal/jupiter/types.go
package jupiter

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// QuoteRequest describes one prospective swap.
type QuoteRequest struct {
	InputMint   string
	OutputMint  string
	Amount      uint64 // raw units of the input mint
	SlippageBps int
}

// Quote is the aggregator's answer for a QuoteRequest. Quotes are transient:
// routes go stale within seconds and are never persisted.
type Quote struct {
	InputMint      string          `json:"inputMint"`
	InAmount       string          `json:"inAmount"`
	OutputMint     string          `json:"outputMint"`
	OutAmount      string          `json:"outAmount"`
	PriceImpactPct string          `json:"priceImpactPct"`
	RoutePlan      json.RawMessage `json:"routePlan"`

	// raw keeps the provider payload verbatim so the swap-build call can echo
	// it back without re-serialization drift.
	raw json.RawMessage
}

// PriceImpact returns the quoted price impact as a percentage.
func (q *Quote) PriceImpact() (float64, error) {
	if q.PriceImpactPct == "" {
		return 0, nil
	}
	impact, err := strconv.ParseFloat(q.PriceImpactPct, 64)
	if err != nil {
		return 0, fmt.Errorf("unparseable priceImpactPct %q: %w", q.PriceImpactPct, err)
	}
	return impact * 100, nil
}

// OutAmountRaw returns the quoted output amount in raw units.
func (q *Quote) OutAmountRaw() (uint64, error) {
	out, err := strconv.ParseUint(q.OutAmount, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("unparseable outAmount %q: %w", q.OutAmount, err)
	}
	return out, nil
}

type swapRequest struct {
	QuoteResponse                 json.RawMessage `json:"quoteResponse"`
	UserPublicKey                 string          `json:"userPublicKey"`
	WrapAndUnwrapSol              bool            `json:"wrapAndUnwrapSol"`
	ComputeUnitPriceMicroLamports uint64          `json:"computeUnitPriceMicroLamports,omitempty"`
}

type swapResponse struct {
	SwapTransaction string `json:"swapTransaction"`
}

// APIError is a non-success response from the aggregator.
type APIError struct {
	Status int
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("jupiter API error: status %d: %s", e.Status, e.Body)
}
