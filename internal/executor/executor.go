// internal/executor/executor.go
package executor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"
	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
	"go.uber.org/zap"

	"github.com/Saylon11/crypto-bot/internal/directive"
	"github.com/Saylon11/crypto-bot/internal/jupiter"
	"github.com/Saylon11/crypto-bot/internal/netclient"
	"github.com/Saylon11/crypto-bot/internal/wallet"
)

// WSOLMint is the wrapped-SOL mint used as the base side of every swap.
const WSOLMint = "So11111111111111111111111111111111111111112"

// feeBufferLamports is kept unspent on the selected wallet to cover
// transaction and priority fees.
const feeBufferLamports = 5_000_000

// QuoteProvider supplies quotes and prebuilt swap transactions.
type QuoteProvider interface {
	Quote(ctx context.Context, req jupiter.QuoteRequest) (*jupiter.Quote, error)
	BuildSwap(ctx context.Context, quote *jupiter.Quote, user solana.PublicKey, computeUnitPriceMicroLamports uint64) ([]byte, error)
}

// Network is the ledger surface the executor needs.
type Network interface {
	SendTransaction(ctx context.Context, tx *solana.Transaction) (solana.Signature, error)
	WaitForConfirmation(ctx context.Context, sig solana.Signature) error
	PriorityFee(ctx context.Context) uint64
}

// WalletPool selects and tracks funding wallets.
type WalletPool interface {
	Select(ctx context.Context) (*wallet.Handle, error)
	SelectEmergency(ctx context.Context) (*wallet.Handle, error)
	MarkUsed(h *wallet.Handle)
	Balance(ctx context.Context, h *wallet.Handle) uint64
}

// Config tunes execution policy.
type Config struct {
	SlippageBps    int
	MaxPriceImpact float64       // percent; quotes above this are refused
	MaxRetries     uint          // total attempts for transient failures
	BackoffBase    time.Duration // first retry delay
	BackoffCeiling time.Duration // retry delay cap
	ConfirmTimeout time.Duration // confirmation poll window
}

// DefaultConfig returns execution policy defaults.
func DefaultConfig() Config {
	return Config{
		SlippageBps:    100,
		MaxPriceImpact: 5.0,
		MaxRetries:     5,
		BackoffBase:    500 * time.Millisecond,
		BackoffCeiling: 30 * time.Second,
		ConfirmTimeout: 45 * time.Second,
	}
}

// Result is the outcome of one execution. Retries operate on the attempt,
// never on a Result.
type Result struct {
	Success        bool
	Signature      solana.Signature
	Err            error
	ErrKind        string
	AmountReceived uint64 // quoted output, raw units
	Wallet         string
	PriceImpact    float64
	Attempts       uint
}

// Executor turns a validated trade directive into a confirmed on-chain swap:
// quote, policy gate, build, sign, submit, confirm, with bounded retries.
type Executor struct {
	pool   WalletPool
	net    Network
	quotes QuoteProvider
	cfg    Config
	logger *zap.Logger
}

// New creates a swap executor.
func New(pool WalletPool, net Network, quotes QuoteProvider, cfg Config, logger *zap.Logger) *Executor {
	return &Executor{
		pool:   pool,
		net:    net,
		quotes: quotes,
		cfg:    cfg,
		logger: logger.Named("executor"),
	}
}

// Execute runs one directive end to end. Callers must have validated the
// directive already; Execute assumes the contract holds.
func (e *Executor) Execute(ctx context.Context, d directive.TradeDirective) *Result {
	if d.Action == directive.ActionWait {
		return &Result{Success: true, ErrKind: KindOK}
	}

	h, err := e.selectWallet(ctx, d)
	if err != nil {
		return e.failed(d, nil, &FatalError{Err: err})
	}

	req, err := e.quoteRequest(ctx, d, h)
	if err != nil {
		return e.failed(d, h, err)
	}

	quote, err := e.quotes.Quote(ctx, req)
	if err != nil {
		return e.failed(d, h, &QuoteError{Err: err})
	}

	impact, err := quote.PriceImpact()
	if err != nil {
		return e.failed(d, h, &QuoteError{Err: err})
	}
	if impact > e.cfg.MaxPriceImpact {
		// Hard policy gate: never proceed at a worse price than the
		// requested slippage allows.
		return e.failed(d, h, &PriceImpactError{Impact: impact, Threshold: e.cfg.MaxPriceImpact})
	}

	log := e.logger.With(
		zap.String("action", string(d.Action)),
		zap.String("token", d.TokenAddress),
		zap.String("wallet", h.Name),
		zap.Float64("amount", d.Amount),
		zap.Float64("price_impact_pct", impact))
	log.Info("Executing swap")

	attempts := uint(0)
	operation := func() (solana.Signature, error) {
		attempts++

		// Each attempt rebuilds the swap so the embedded blockhash and the
		// priority fee are fresh.
		fee := e.net.PriorityFee(ctx)
		raw, err := e.quotes.BuildSwap(ctx, quote, h.PublicKey, fee)
		if err != nil {
			return solana.Signature{}, retryOrStop(classify(err))
		}

		tx, err := solana.TransactionFromDecoder(bin.NewBinDecoder(raw))
		if err != nil {
			return solana.Signature{}, backoff.Permanent(&FatalError{Err: fmt.Errorf("undecodable swap transaction: %w", err)})
		}
		if err := h.SignTransaction(tx); err != nil {
			return solana.Signature{}, backoff.Permanent(&FatalError{Err: fmt.Errorf("signing failed: %w", err)})
		}

		sig, err := e.net.SendTransaction(ctx, tx)
		if err != nil {
			classified := classify(err)
			log.Warn("Swap attempt failed",
				zap.Uint("attempt", attempts), zap.Error(classified))
			return solana.Signature{}, retryOrStop(classified)
		}
		return sig, nil
	}

	sig, err := backoff.Retry(ctx, operation,
		backoff.WithBackOff(&backoff.ExponentialBackOff{
			InitialInterval:     e.cfg.BackoffBase,
			RandomizationFactor: 0.5,
			Multiplier:          2,
			MaxInterval:         e.cfg.BackoffCeiling,
		}),
		backoff.WithMaxTries(e.cfg.MaxRetries))
	if err != nil {
		res := e.failed(d, h, err)
		res.Attempts = attempts
		res.PriceImpact = impact
		return res
	}

	e.pool.MarkUsed(h)

	confirmCtx, cancel := context.WithTimeout(ctx, e.cfg.ConfirmTimeout)
	err = e.net.WaitForConfirmation(confirmCtx, sig)
	cancel()
	if err != nil {
		if errors.Is(err, netclient.ErrConfirmationTimeout) {
			// Ambiguous: the trade may have landed. The caller owns the
			// follow-up chain check; the position is not assumed bought or
			// sold.
			log.Warn("Swap unconfirmed within timeout", zap.String("signature", sig.String()))
			res := e.failed(d, h, &UnconfirmedError{Signature: sig})
			res.Signature = sig
			res.Attempts = attempts
			res.PriceImpact = impact
			return res
		}
		res := e.failed(d, h, &FatalError{Err: err})
		res.Signature = sig
		res.Attempts = attempts
		res.PriceImpact = impact
		return res
	}

	received, err := quote.OutAmountRaw()
	if err != nil {
		received = 0
	}

	log.Info("✅ Swap confirmed",
		zap.String("signature", sig.String()),
		zap.Uint64("amount_received", received),
		zap.Uint("attempts", attempts))

	return &Result{
		Success:        true,
		Signature:      sig,
		ErrKind:        KindOK,
		AmountReceived: received,
		Wallet:         h.Name,
		PriceImpact:    impact,
		Attempts:       attempts,
	}
}

// selectWallet resolves a wallet, bypassing cooldown only for CRITICAL
// directives.
func (e *Executor) selectWallet(ctx context.Context, d directive.TradeDirective) (*wallet.Handle, error) {
	if d.Priority == directive.PriorityCritical {
		return e.pool.SelectEmergency(ctx)
	}
	return e.pool.Select(ctx)
}

// quoteRequest maps a directive onto the aggregator's request shape and
// applies the spend-balance gate for buys.
func (e *Executor) quoteRequest(ctx context.Context, d directive.TradeDirective, h *wallet.Handle) (jupiter.QuoteRequest, error) {
	switch d.Action {
	case directive.ActionBuy:
		lamports := uint64(d.Amount * float64(solana.LAMPORTS_PER_SOL))
		if bal := e.pool.Balance(ctx, h); bal < lamports+feeBufferLamports {
			return jupiter.QuoteRequest{}, &FatalError{
				Err: fmt.Errorf("insufficient funds: wallet %s has %d lamports, needs %d", h.Name, bal, lamports+feeBufferLamports),
			}
		}
		return jupiter.QuoteRequest{
			InputMint:   WSOLMint,
			OutputMint:  d.TokenAddress,
			Amount:      lamports,
			SlippageBps: e.cfg.SlippageBps,
		}, nil
	case directive.ActionSell:
		return jupiter.QuoteRequest{
			InputMint:   d.TokenAddress,
			OutputMint:  WSOLMint,
			Amount:      uint64(d.Amount),
			SlippageBps: e.cfg.SlippageBps,
		}, nil
	default:
		return jupiter.QuoteRequest{}, &FatalError{Err: fmt.Errorf("unsupported action %q", d.Action)}
	}
}

func (e *Executor) failed(d directive.TradeDirective, h *wallet.Handle, err error) *Result {
	res := &Result{Err: err, ErrKind: kindOf(err)}
	if h != nil {
		res.Wallet = h.Name
	}

	log := e.logger.With(
		zap.String("action", string(d.Action)),
		zap.String("token", d.TokenAddress),
		zap.String("wallet", res.Wallet),
		zap.String("error_kind", res.ErrKind),
		zap.Error(err))
	if d.Priority == directive.PriorityCritical {
		// A failed emergency exit is the most consequential failure mode of
		// this system; it is never reported quietly.
		log.Error("🚨 CRITICAL directive failed")
	} else {
		log.Warn("Execution failed")
	}
	return res
}

// retryOrStop lets transient errors flow back into the retry loop and stops
// it permanently for everything else.
func retryOrStop(classified error) error {
	var transient *TransientError
	if errors.As(classified, &transient) {
		return classified
	}
	return backoff.Permanent(classified)
}

// kindOf maps an execution error onto its journal kind.
func kindOf(err error) string {
	if err == nil {
		return KindOK
	}
	var (
		quoteErr       *QuoteError
		impactErr      *PriceImpactError
		transientErr   *TransientError
		fatalErr       *FatalError
		unconfirmedErr *UnconfirmedError
	)
	switch {
	case errors.As(err, &unconfirmedErr):
		return KindUnconfirmed
	case errors.As(err, &impactErr):
		return KindPriceImpact
	case errors.As(err, &quoteErr):
		return KindQuote
	case errors.As(err, &transientErr):
		return KindTransient
	case errors.As(err, &fatalErr):
		return KindFatal
	default:
		return KindFatal
	}
}
