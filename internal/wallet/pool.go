// internal/wallet/pool.go
package wallet

import (
	"context"
	"errors"
	mrand "math/rand/v2"
	"sync"
	"time"

	"github.com/gagliardetto/solana-go"
	"go.uber.org/zap"
)

// BalanceSource provides lamport balances for pool handles.
type BalanceSource interface {
	GetBalance(ctx context.Context, pubkey solana.PublicKey) (uint64, error)
}

// Handle is a pool-owned wallet with usage bookkeeping. All mutable fields
// are guarded by the pool mutex; selection and MarkUsed are the only writers.
type Handle struct {
	*Wallet

	lastUsedAt time.Time
	cooldown   time.Duration
	txCount    int
	balance    uint64
	balanceAt  time.Time
}

// TxCount returns the number of transactions attributed to this handle.
func (h *Handle) TxCount() int { return h.txCount }

// Cooldown returns the cooldown drawn at the most recent selection.
func (h *Handle) Cooldown() time.Duration { return h.cooldown }

// PoolConfig tunes wallet rotation.
type PoolConfig struct {
	BaseCooldown time.Duration // mean of the exponential cooldown draw
	MinCooldown  time.Duration // floor applied after scaling
	BalanceTTL   time.Duration // balance cache lifetime
}

// DefaultPoolConfig returns rotation defaults.
func DefaultPoolConfig() PoolConfig {
	return PoolConfig{
		BaseCooldown: 45 * time.Second,
		MinCooldown:  5 * time.Second,
		BalanceTTL:   30 * time.Second,
	}
}

// Pool owns the funding wallets and decides which one executes an action.
// Selection spreads activity across wallets with a least-used bias and a
// per-wallet randomized cooldown so no single address dominates the
// transaction history.
type Pool struct {
	mu      sync.Mutex
	handles []*Handle

	cfg      PoolConfig
	balances BalanceSource
	logger   *zap.Logger
}

// NewPool builds the pool from pre-loaded wallets.
func NewPool(wallets []*Wallet, cfg PoolConfig, balances BalanceSource, logger *zap.Logger) (*Pool, error) {
	if len(wallets) == 0 {
		return nil, errors.New("wallet pool requires at least one wallet")
	}
	handles := make([]*Handle, 0, len(wallets))
	for _, w := range wallets {
		handles = append(handles, &Handle{Wallet: w})
	}
	return &Pool{
		handles:  handles,
		cfg:      cfg,
		balances: balances,
		logger:   logger.Named("wallet_pool"),
	}, nil
}

// Select blocks until some wallet satisfies its cooldown, then reserves and
// returns it. When every wallet is cooling down the caller is suspended until
// the soonest-eligible moment; there is no spin-wait.
func (p *Pool) Select(ctx context.Context) (*Handle, error) {
	for {
		p.mu.Lock()
		now := time.Now()

		var eligible []*Handle
		soonest := time.Duration(-1)
		for _, h := range p.handles {
			remaining := h.cooldown - now.Sub(h.lastUsedAt)
			if remaining <= 0 {
				eligible = append(eligible, h)
				continue
			}
			if soonest < 0 || remaining < soonest {
				soonest = remaining
			}
		}

		if len(eligible) > 0 {
			h := pickWeighted(eligible)
			p.reserveLocked(h, now)
			p.mu.Unlock()
			p.logger.Debug("Wallet selected",
				zap.String("wallet", h.Name),
				zap.Int("tx_count", h.txCount),
				zap.Duration("next_cooldown", h.cooldown))
			return h, nil
		}
		p.mu.Unlock()

		timer := time.NewTimer(soonest)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}
}

// SelectEmergency bypasses cooldowns entirely. It exists for CRITICAL exit
// directives, where abandoning risk management would cost more than an
// unnatural-looking wallet reuse.
func (p *Pool) SelectEmergency(ctx context.Context) (*Handle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	p.mu.Lock()
	h := pickWeighted(p.handles)
	p.reserveLocked(h, time.Now())
	p.mu.Unlock()

	p.logger.Warn("Emergency wallet selection, cooldown bypassed",
		zap.String("wallet", h.Name))
	return h, nil
}

// MarkUsed records a submitted transaction: bumps the transaction count and
// restarts the cooldown from now.
func (p *Pool) MarkUsed(h *Handle) {
	p.mu.Lock()
	defer p.mu.Unlock()

	h.txCount++
	h.lastUsedAt = time.Now()
	h.cooldown = p.nextCooldown(h.txCount)
}

// Balance returns the handle's lamport balance, cached per PoolConfig. A
// fetch failure is logged and read as zero, which makes the wallet ineligible
// for spend-requiring actions without ever being fatal.
func (p *Pool) Balance(ctx context.Context, h *Handle) uint64 {
	p.mu.Lock()
	if !h.balanceAt.IsZero() && time.Since(h.balanceAt) < p.cfg.BalanceTTL {
		bal := h.balance
		p.mu.Unlock()
		return bal
	}
	p.mu.Unlock()

	// Network call happens outside the pool lock.
	bal, err := p.balances.GetBalance(ctx, h.PublicKey)
	if err != nil {
		p.logger.Warn("Balance fetch failed, treating as zero",
			zap.String("wallet", h.Name), zap.Error(err))
		return 0
	}

	p.mu.Lock()
	h.balance = bal
	h.balanceAt = time.Now()
	p.mu.Unlock()
	return bal
}

// Size returns the number of wallets in the pool.
func (p *Pool) Size() int {
	return len(p.handles)
}

// reserveLocked stamps the selection so concurrent callers cannot double-pick
// the same wallet. The cooldown stored here is the value the invariant is
// checked against on the next selection.
func (p *Pool) reserveLocked(h *Handle, now time.Time) {
	h.lastUsedAt = now
	h.cooldown = p.nextCooldown(h.txCount)
}

// nextCooldown draws from an exponential distribution with mean BaseCooldown,
// scaled up 10% per prior transaction so busier wallets rest longer, floored
// at MinCooldown.
func (p *Pool) nextCooldown(txCount int) time.Duration {
	draw := time.Duration(mrand.ExpFloat64() * float64(p.cfg.BaseCooldown))
	scaled := time.Duration(float64(draw) * (1 + 0.1*float64(txCount)))
	if scaled < p.cfg.MinCooldown {
		return p.cfg.MinCooldown
	}
	return scaled
}

// pickWeighted draws a handle with weight (maxTxCount - txCount + 1): the
// least-used wallets are favored but never exclusively.
func pickWeighted(handles []*Handle) *Handle {
	maxTx := 0
	for _, h := range handles {
		if h.txCount > maxTx {
			maxTx = h.txCount
		}
	}

	total := 0
	for _, h := range handles {
		total += maxTx - h.txCount + 1
	}

	r := mrand.IntN(total)
	for _, h := range handles {
		r -= maxTx - h.txCount + 1
		if r < 0 {
			return h
		}
	}
	return handles[len(handles)-1]
}
