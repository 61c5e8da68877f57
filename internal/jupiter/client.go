// internal/jupiter/client.go
package jupiter

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/gagliardetto/solana-go"
	"go.uber.org/zap"
)

const requestTimeout = 10 * time.Second

// Client talks to a Jupiter-style DEX aggregator: GET /quote for pricing and
// POST /swap for a prebuilt transaction. Transaction bytes are passed through
// unmodified between build and submit.
type Client struct {
	baseURL string
	http    *http.Client
	logger  *zap.Logger
}

// NewClient creates an aggregator client for baseURL.
func NewClient(baseURL string, logger *zap.Logger) *Client {
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: requestTimeout},
		logger:  logger.Named("jupiter"),
	}
}

// Quote requests a price quote. An empty route plan is an error: the token
// has no usable liquidity for this size.
func (c *Client) Quote(ctx context.Context, req QuoteRequest) (*Quote, error) {
	params := url.Values{}
	params.Set("inputMint", req.InputMint)
	params.Set("outputMint", req.OutputMint)
	params.Set("amount", strconv.FormatUint(req.Amount, 10))
	params.Set("slippageBps", strconv.Itoa(req.SlippageBps))

	body, err := c.get(ctx, "/quote?"+params.Encode())
	if err != nil {
		return nil, err
	}

	var quote Quote
	if err := json.Unmarshal(body, &quote); err != nil {
		return nil, fmt.Errorf("failed to decode quote response: %w", err)
	}
	quote.raw = body

	if len(quote.RoutePlan) == 0 || string(quote.RoutePlan) == "[]" || string(quote.RoutePlan) == "null" {
		return nil, fmt.Errorf("quote for %s -> %s has no route", req.InputMint, req.OutputMint)
	}

	c.logger.Debug("Quote received",
		zap.String("input_mint", req.InputMint),
		zap.String("output_mint", req.OutputMint),
		zap.String("out_amount", quote.OutAmount),
		zap.String("price_impact_pct", quote.PriceImpactPct))

	return &quote, nil
}

// BuildSwap asks the aggregator to build a swap transaction for an accepted
// quote and returns the serialized transaction bytes, unmodified.
func (c *Client) BuildSwap(ctx context.Context, quote *Quote, user solana.PublicKey, computeUnitPriceMicroLamports uint64) ([]byte, error) {
	if quote == nil || len(quote.raw) == 0 {
		return nil, fmt.Errorf("swap build requires a quote obtained from this client")
	}

	payload, err := json.Marshal(swapRequest{
		QuoteResponse:                 quote.raw,
		UserPublicKey:                 user.String(),
		WrapAndUnwrapSol:              true,
		ComputeUnitPriceMicroLamports: computeUnitPriceMicroLamports,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode swap request: %w", err)
	}

	body, err := c.post(ctx, "/swap", payload)
	if err != nil {
		return nil, err
	}

	var resp swapResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("failed to decode swap response: %w", err)
	}
	if resp.SwapTransaction == "" {
		return nil, fmt.Errorf("swap response missing transaction")
	}

	raw, err := base64.StdEncoding.DecodeString(resp.SwapTransaction)
	if err != nil {
		return nil, fmt.Errorf("failed to decode swap transaction: %w", err)
	}
	return raw, nil
}

func (c *Client) get(ctx context.Context, path string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, err
	}
	return c.do(req)
}

func (c *Client) post(ctx context.Context, path string, payload []byte) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req)
}

func (c *Client) do(req *http.Request) ([]byte, error) {
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("jupiter request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("failed to read jupiter response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &APIError{Status: resp.StatusCode, Body: string(body)}
	}
	return body, nil
}
