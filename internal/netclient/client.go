// internal/netclient/client.go
package netclient

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"go.uber.org/zap"
)

// Client wraps a set of Solana RPC endpoints behind one interface with
// round-robin rotation, short-TTL caching and bounded retries.
type Client struct {
	mu        sync.Mutex
	nodes     []*rpcNode
	currIndex int

	balanceMu sync.Mutex
	balances  map[string]cachedBalance

	feeMu sync.Mutex
	fee   cachedFee

	logger *zap.Logger
}

// New creates a client over the given RPC URLs. Invalid URLs are skipped;
// at least one valid endpoint is required.
func New(rpcURLs []string, logger *zap.Logger) (*Client, error) {
	if len(rpcURLs) == 0 {
		return nil, errors.New("empty RPC URL list")
	}

	var nodes []*rpcNode
	for _, urlStr := range rpcURLs {
		if _, err := url.Parse(urlStr); err != nil {
			logger.Warn("Invalid RPC URL", zap.String("url", urlStr), zap.Error(err))
			continue
		}
		nodes = append(nodes, &rpcNode{
			client: rpc.New(urlStr),
			url:    urlStr,
			active: true,
		})
	}
	if len(nodes) == 0 {
		return nil, errors.New("no valid RPC URLs provided")
	}

	return &Client{
		nodes:    nodes,
		balances: make(map[string]cachedBalance),
		logger:   logger.Named("netclient"),
	}, nil
}

// GetBalance returns the lamport balance for pubkey, cached for a short TTL
// so wallet-pool eligibility scans do not hammer the RPC layer.
func (c *Client) GetBalance(ctx context.Context, pubkey solana.PublicKey) (uint64, error) {
	key := pubkey.String()

	c.balanceMu.Lock()
	if cached, ok := c.balances[key]; ok && time.Since(cached.fetchedAt) < balanceCacheTTL {
		c.balanceMu.Unlock()
		return cached.lamports, nil
	}
	c.balanceMu.Unlock()

	var lastErr error
	for attempt := 0; attempt < maxNodeRetries; attempt++ {
		node, err := c.nextNode()
		if err != nil {
			return 0, err
		}

		start := time.Now()
		result, err := node.client.GetBalance(ctx, pubkey, rpc.CommitmentConfirmed)
		node.recordResult(err == nil, time.Since(start))
		if err != nil {
			lastErr = newError(err, node.url, "getBalance")
			continue
		}

		c.balanceMu.Lock()
		c.balances[key] = cachedBalance{lamports: result.Value, fetchedAt: time.Now()}
		c.balanceMu.Unlock()
		return result.Value, nil
	}

	return 0, fmt.Errorf("failed to get balance after %d attempts: %w", maxNodeRetries, lastErr)
}

// GetTokenBalance returns the raw token balance of owner's associated token
// account for mint. A missing account reads as zero.
func (c *Client) GetTokenBalance(ctx context.Context, owner solana.PublicKey, mint solana.PublicKey) (uint64, error) {
	ata, _, err := solana.FindAssociatedTokenAddress(owner, mint)
	if err != nil {
		return 0, fmt.Errorf("failed to derive token account: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt < maxNodeRetries; attempt++ {
		node, nerr := c.nextNode()
		if nerr != nil {
			return 0, nerr
		}

		start := time.Now()
		result, err := node.client.GetTokenAccountBalance(ctx, ata, rpc.CommitmentConfirmed)
		node.recordResult(err == nil, time.Since(start))
		if err != nil {
			lastErr = newError(err, node.url, "getTokenAccountBalance")
			continue
		}
		if result.Value == nil {
			return 0, nil
		}

		raw, err := strconv.ParseUint(result.Value.Amount, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("unparseable token amount %q: %w", result.Value.Amount, err)
		}
		return raw, nil
	}

	return 0, fmt.Errorf("failed to get token balance after %d attempts: %w", maxNodeRetries, lastErr)
}

// LatestBlockhash fetches a fresh blockhash.
func (c *Client) LatestBlockhash(ctx context.Context) (solana.Hash, error) {
	var lastErr error
	for attempt := 0; attempt < maxNodeRetries; attempt++ {
		node, err := c.nextNode()
		if err != nil {
			return solana.Hash{}, err
		}

		start := time.Now()
		result, err := node.client.GetLatestBlockhash(ctx, rpc.CommitmentFinalized)
		node.recordResult(err == nil, time.Since(start))
		if err != nil {
			lastErr = newError(err, node.url, "getLatestBlockhash")
			continue
		}
		return result.Value.Blockhash, nil
	}

	return solana.Hash{}, fmt.Errorf("failed to get latest blockhash after %d attempts: %w", maxNodeRetries, lastErr)
}

// SendTransaction submits a signed transaction with preflight skipped: we
// trade a possibly wasted fee for lower latency. Transport-level retries use
// exponential backoff across rotating nodes.
func (c *Client) SendTransaction(ctx context.Context, tx *solana.Transaction) (solana.Signature, error) {
	maxRetries := uint(3)

	operation := func() (solana.Signature, error) {
		node, err := c.nextNode()
		if err != nil {
			return solana.Signature{}, backoff.Permanent(err)
		}

		start := time.Now()
		sig, err := node.client.SendTransactionWithOpts(ctx, tx, rpc.TransactionOpts{
			SkipPreflight:       true,
			MaxRetries:          &maxRetries,
			PreflightCommitment: rpc.CommitmentConfirmed,
		})
		node.recordResult(err == nil, time.Since(start))
		if err != nil {
			c.logger.Warn("Transaction send failed, rotating node",
				zap.String("node", node.url), zap.Error(err))
			return solana.Signature{}, newError(err, node.url, "sendTransaction")
		}
		return sig, nil
	}

	sig, err := backoff.Retry(ctx, operation,
		backoff.WithBackOff(newExponentialBackOff()),
		backoff.WithMaxTries(uint(len(c.nodes))+1))
	if err != nil {
		return solana.Signature{}, err
	}
	return sig, nil
}

// WaitForConfirmation polls signature status until the transaction is
// confirmed, fails on-chain, or ctx expires. A timeout is reported as
// ErrConfirmationTimeout: an ambiguous outcome, not a failure.
func (c *Client) WaitForConfirmation(ctx context.Context, sig solana.Signature) error {
	ticker := time.NewTicker(confirmPollPeriod)
	defer ticker.Stop()

	for {
		confirmed, err := c.SignatureConfirmed(ctx, sig)
		if err != nil && !errors.Is(err, context.DeadlineExceeded) && !errors.Is(err, context.Canceled) {
			if errors.Is(err, ErrTransactionFailed) {
				return err
			}
			c.logger.Debug("Status poll failed", zap.Error(err))
		}
		if confirmed {
			return nil
		}

		select {
		case <-ctx.Done():
			return ErrConfirmationTimeout
		case <-ticker.C:
		}
	}
}

// SignatureConfirmed performs a single status check for sig. It is the
// re-query primitive callers use to reconcile an ambiguous submission.
func (c *Client) SignatureConfirmed(ctx context.Context, sig solana.Signature) (bool, error) {
	node, err := c.nextNode()
	if err != nil {
		return false, err
	}

	start := time.Now()
	result, err := node.client.GetSignatureStatuses(ctx, true, sig)
	node.recordResult(err == nil, time.Since(start))
	if err != nil {
		return false, newError(err, node.url, "getSignatureStatuses")
	}
	if len(result.Value) == 0 || result.Value[0] == nil {
		return false, nil
	}

	status := result.Value[0]
	if status.Err != nil {
		return false, fmt.Errorf("%w: %v", ErrTransactionFailed, status.Err)
	}
	switch status.ConfirmationStatus {
	case rpc.ConfirmationStatusConfirmed, rpc.ConfirmationStatusFinalized:
		return true, nil
	default:
		return false, nil
	}
}

func (c *Client) nextNode() (*rpcNode, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	initialIndex := c.currIndex
	for {
		c.currIndex = (c.currIndex + 1) % len(c.nodes)
		if c.nodes[c.currIndex].isActive() {
			return c.nodes[c.currIndex], nil
		}
		if c.currIndex == initialIndex {
			break
		}
	}

	// Every node sidelined: revive all rather than refusing to trade.
	c.logger.Warn("All RPC nodes marked unhealthy, reviving full set")
	for _, node := range c.nodes {
		node.mu.Lock()
		node.active = true
		node.failCount = 0
		node.mu.Unlock()
	}
	return c.nodes[c.currIndex], nil
}

func newExponentialBackOff() *backoff.ExponentialBackOff {
	return &backoff.ExponentialBackOff{
		InitialInterval:     500 * time.Millisecond,
		RandomizationFactor: 0.5,
		Multiplier:          2,
		MaxInterval:         30 * time.Second,
	}
}
