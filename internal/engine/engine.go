// internal/engine/engine.go
package engine

import (
	"context"
	"fmt"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/Saylon11/crypto-bot/internal/directive"
	"github.com/Saylon11/crypto-bot/internal/executor"
	"github.com/Saylon11/crypto-bot/internal/riskmonitor"
	"github.com/Saylon11/crypto-bot/internal/storage"
)

// DirectiveExecutor executes validated directives.
type DirectiveExecutor interface {
	Execute(ctx context.Context, d directive.TradeDirective) *executor.Result
}

// RiskMonitor is the position lifecycle surface the engine drives.
type RiskMonitor interface {
	Register(tokenMint, symbol string, initialScore, entryAmountSol float64, holdingsRaw uint64) error
	Deregister(tokenMint string) error
	Status() riskmonitor.Status
	EmergencyExitAll(ctx context.Context) error
	Shutdown(ctx context.Context) error
}

// Engine is the trading façade: it gates every inbound directive through the
// validator, executes it, journals the outcome and hands confirmed buys to the
// risk monitor.
type Engine struct {
	validator *directive.Validator
	exec      DirectiveExecutor
	monitor   RiskMonitor
	journal   storage.Journal
	stats     *SessionStats
	logger    *zap.Logger

	// entryScore seeds a freshly registered position until the first tick.
	entryScore float64
}

// New creates the trading engine. journal may be nil to disable journaling.
func New(exec DirectiveExecutor, monitor RiskMonitor, journal storage.Journal, logger *zap.Logger) *Engine {
	return &Engine{
		validator:  directive.NewValidator(logger),
		exec:       exec,
		monitor:    monitor,
		journal:    journal,
		stats:      newSessionStats(),
		logger:     logger.Named("engine"),
		entryScore: 70,
	}
}

// SubmitDirective validates and executes one inbound directive. Invalid
// directives are discarded without side effects; a confirmed BUY registers the
// position with the risk monitor.
func (e *Engine) SubmitDirective(ctx context.Context, d directive.TradeDirective) (*executor.Result, error) {
	if !e.validator.Validate(d) {
		e.stats.recordRejected()
		err := fmt.Errorf("directive rejected for token %s", d.TokenAddress)
		e.journalResult(ctx, d, &executor.Result{Err: err, ErrKind: executor.KindValidation})
		return nil, err
	}

	res := e.exec.Execute(ctx, d)
	e.journalResult(ctx, d, res)

	switch {
	case !res.Success:
		e.stats.recordFailure(res.Attempts)
	case d.Action == directive.ActionBuy:
		e.stats.recordBuy(d.Amount, res.Attempts)
		if err := e.monitor.Register(d.TokenAddress, tokenSymbol(d.TokenAddress), e.entryScore, d.Amount, res.AmountReceived); err != nil {
			e.logger.Warn("Failed to register position",
				zap.String("token", d.TokenAddress), zap.Error(err))
		}
	case d.Action == directive.ActionSell:
		e.stats.recordSell(res.Attempts)
	}

	return res, nil
}

// Register hands an externally opened position to the risk monitor.
func (e *Engine) Register(tokenMint, symbol string, initialScore, entryAmountSol float64, holdingsRaw uint64) error {
	return e.monitor.Register(tokenMint, symbol, initialScore, entryAmountSol, holdingsRaw)
}

// Deregister stops monitoring a position without selling it.
func (e *Engine) Deregister(tokenMint string) error {
	return e.monitor.Deregister(tokenMint)
}

// Status returns the current monitoring snapshot.
func (e *Engine) Status() riskmonitor.Status {
	return e.monitor.Status()
}

// Stats returns the session counters.
func (e *Engine) Stats() StatsSnapshot {
	return e.stats.Snapshot()
}

// EmergencyExitAll dumps every monitored position.
func (e *Engine) EmergencyExitAll(ctx context.Context) error {
	return e.monitor.EmergencyExitAll(ctx)
}

// Close shuts down the monitor and the journal.
func (e *Engine) Close(ctx context.Context) error {
	err := e.monitor.Shutdown(ctx)
	if e.journal != nil {
		err = multierr.Append(err, e.journal.Close())
	}

	snap := e.stats.Snapshot()
	e.logger.Info("📊 Session summary",
		zap.Int("buys", snap.Buys),
		zap.Int("sells", snap.Sells),
		zap.Int("failures", snap.Failures),
		zap.Int("rejected", snap.Rejected),
		zap.Float64("sol_spent", snap.SolSpent),
		zap.String("uptime", snap.Uptime))
	return err
}

func (e *Engine) journalResult(ctx context.Context, d directive.TradeDirective, res *executor.Result) {
	if e.journal == nil || d.Action == directive.ActionWait {
		return
	}

	rec := &storage.ExecutionRecord{
		Action:         string(d.Action),
		TokenMint:      d.TokenAddress,
		Wallet:         res.Wallet,
		Amount:         d.Amount,
		AmountReceived: res.AmountReceived,
		Signature:      res.Signature.String(),
		Success:        res.Success,
		ErrKind:        res.ErrKind,
		PriceImpact:    res.PriceImpact,
		Attempts:       res.Attempts,
		Reason:         d.Reason,
	}
	if res.Err != nil {
		rec.ErrMessage = res.Err.Error()
	}
	if err := e.journal.RecordExecution(ctx, rec); err != nil {
		// Journaling is best effort; trading never blocks on it.
		e.logger.Warn("Failed to journal execution", zap.Error(err))
	}
}

// tokenSymbol derives a short display symbol from a mint address.
func tokenSymbol(mint string) string {
	if len(mint) <= 8 {
		return mint
	}
	return mint[:4] + ".." + mint[len(mint)-4:]
}
