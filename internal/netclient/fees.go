// internal/netclient/fees.go
package netclient

import (
	"context"
	"time"

	"github.com/gagliardetto/solana-go"
	"go.uber.org/zap"
)

// PriorityFee returns a compute-unit price (micro-lamports) derived from the
// cluster's recent prioritization fees, cached for a short TTL. When the
// estimator is unavailable it falls back to DefaultPriorityFee: fee
// estimation must never block trade execution.
func (c *Client) PriorityFee(ctx context.Context) uint64 {
	c.feeMu.Lock()
	if c.fee.microLamports > 0 && time.Since(c.fee.fetchedAt) < feeCacheTTL {
		fee := c.fee.microLamports
		c.feeMu.Unlock()
		return fee
	}
	c.feeMu.Unlock()

	fee, err := c.estimatePriorityFee(ctx)
	if err != nil {
		c.logger.Warn("Priority fee estimation failed, using fallback",
			zap.Uint64("fallback", DefaultPriorityFee), zap.Error(err))
		return DefaultPriorityFee
	}

	c.feeMu.Lock()
	c.fee = cachedFee{microLamports: fee, fetchedAt: time.Now()}
	c.feeMu.Unlock()
	return fee
}

func (c *Client) estimatePriorityFee(ctx context.Context) (uint64, error) {
	node, err := c.nextNode()
	if err != nil {
		return 0, err
	}

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	start := time.Now()
	fees, err := node.client.GetRecentPrioritizationFees(ctx, solana.PublicKeySlice{})
	node.recordResult(err == nil, time.Since(start))
	if err != nil {
		return 0, newError(err, node.url, "getRecentPrioritizationFees")
	}
	if len(fees) == 0 {
		return DefaultPriorityFee, nil
	}

	// Use the max of recent slots: a sniping workload would rather overpay
	// slightly than miss inclusion.
	var max uint64
	for _, f := range fees {
		if f.PrioritizationFee > max {
			max = f.PrioritizationFee
		}
	}
	if max == 0 {
		return DefaultPriorityFee, nil
	}
	return max, nil
}
