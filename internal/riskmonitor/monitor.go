// internal/riskmonitor/monitor.go
package riskmonitor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gagliardetto/solana-go"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/Saylon11/crypto-bot/internal/directive"
	"github.com/Saylon11/crypto-bot/internal/executor"
	"github.com/Saylon11/crypto-bot/internal/jupiter"
	"github.com/Saylon11/crypto-bot/internal/scoring"
)

// DirectiveExecutor executes exit directives emitted by the monitor.
type DirectiveExecutor interface {
	Execute(ctx context.Context, d directive.TradeDirective) *executor.Result
}

// QuoteSource prices current holdings for P/L checks.
type QuoteSource interface {
	Quote(ctx context.Context, req jupiter.QuoteRequest) (*jupiter.Quote, error)
}

// ChainChecker re-queries chain state for ambiguous submissions.
type ChainChecker interface {
	SignatureConfirmed(ctx context.Context, sig solana.Signature) (bool, error)
}

// Status is the read-only monitoring snapshot exposed to dashboards.
type Status struct {
	Active       bool       `json:"active"`
	Positions    []Snapshot `json:"positions"`
	RecentAlerts []Alert    `json:"recent_alerts"`
}

// decision is one exit verdict from the evaluation table.
type decision struct {
	fraction   float64
	reason     string
	emergency  bool
	priority   directive.Priority
	alertType  AlertType
	severity   string
	ladderGain float64 // gain threshold when the decision came from the ladder
}

// pendingExit tracks a sell whose confirmation timed out. The position stays
// in EXITING until the signature is re-checked against the chain.
type pendingExit struct {
	sig       solana.Signature
	amountRaw uint64
	fraction  float64
}

type command struct {
	reply chan error
}

// positionTask pairs a position with its monitoring goroutine. The goroutine
// is the only writer of the position; external requests arrive on cmds.
type positionTask struct {
	mu          sync.Mutex
	pos         *Position
	cancel      context.CancelFunc
	cmds        chan command
	done        chan struct{}
	ladderTaken map[float64]bool
	pending     *pendingExit
	retry       *decision
}

func (t *positionTask) snapshot() Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.pos.snapshot()
}

// Monitor watches open positions and turns risk signals into exit directives.
// Exits are the one case where the caller, not the executor, drives retries:
// an unconfirmed sell must never silently abandon risk management.
type Monitor struct {
	mu    sync.RWMutex
	tasks map[string]*positionTask

	exec        DirectiveExecutor
	scorer      scoring.Engine
	quotes      QuoteSource
	chain       ChainChecker
	validator   *directive.Validator
	cfg         ExitConfig
	slippageBps int
	alerts      *AlertLog
	logger      *zap.Logger

	baseCtx context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewMonitor creates a position risk monitor.
func NewMonitor(exec DirectiveExecutor, scorer scoring.Engine, quotes QuoteSource, chain ChainChecker, cfg ExitConfig, slippageBps int, logger *zap.Logger) *Monitor {
	ctx, cancel := context.WithCancel(context.Background())
	return &Monitor{
		tasks:       make(map[string]*positionTask),
		exec:        exec,
		scorer:      scorer,
		quotes:      quotes,
		chain:       chain,
		validator:   directive.NewValidator(logger),
		cfg:         cfg,
		slippageBps: slippageBps,
		alerts:      NewAlertLog(1000, logger),
		logger:      logger.Named("risk_monitor"),
		baseCtx:     ctx,
		cancel:      cancel,
	}
}

// Register starts monitoring a position. Called after a BUY confirms.
func (m *Monitor) Register(tokenMint, symbol string, initialScore, entryAmountSol float64, holdingsRaw uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.tasks[tokenMint]; exists {
		return fmt.Errorf("position already monitored for token %s", tokenMint)
	}

	ctx, cancel := context.WithCancel(m.baseCtx)
	task := &positionTask{
		pos: &Position{
			TokenMint:      tokenMint,
			Symbol:         symbol,
			EntryAmountSol: entryAmountSol,
			EntryTime:      time.Now(),
			LastScore:      initialScore,
			State:          StateOpen,
			HoldingsRaw:    holdingsRaw,
		},
		cancel:      cancel,
		cmds:        make(chan command, 4),
		done:        make(chan struct{}),
		ladderTaken: make(map[float64]bool),
	}
	m.tasks[tokenMint] = task

	m.logger.Info("📊 Position registered",
		zap.String("token", tokenMint),
		zap.String("symbol", symbol),
		zap.Float64("entry_sol", entryAmountSol),
		zap.Uint64("holdings_raw", holdingsRaw),
		zap.Float64("initial_score", initialScore))

	m.wg.Add(1)
	go m.run(ctx, task)
	return nil
}

// Deregister stops monitoring a position without selling.
func (m *Monitor) Deregister(tokenMint string) error {
	m.mu.Lock()
	task, exists := m.tasks[tokenMint]
	if exists {
		delete(m.tasks, tokenMint)
	}
	m.mu.Unlock()

	if !exists {
		return fmt.Errorf("no monitored position for token %s", tokenMint)
	}
	task.cancel()
	m.logger.Info("Position deregistered", zap.String("token", tokenMint))
	return nil
}

// Status returns a read-only snapshot of the monitored set.
func (m *Monitor) Status() Status {
	m.mu.RLock()
	tasks := make([]*positionTask, 0, len(m.tasks))
	for _, t := range m.tasks {
		tasks = append(tasks, t)
	}
	m.mu.RUnlock()

	positions := make([]Snapshot, 0, len(tasks))
	for _, t := range tasks {
		positions = append(positions, t.snapshot())
	}
	return Status{
		Active:       len(positions) > 0,
		Positions:    positions,
		RecentAlerts: m.alerts.Recent(20),
	}
}

// EmergencyExitAll issues an emergency exit for every open position
// concurrently and waits for all of them to settle. It reports the combined
// failures rather than failing fast: a partial exit is still worth finishing.
func (m *Monitor) EmergencyExitAll(ctx context.Context) error {
	m.mu.RLock()
	tasks := make([]*positionTask, 0, len(m.tasks))
	for _, t := range m.tasks {
		tasks = append(tasks, t)
	}
	m.mu.RUnlock()

	m.logger.Error("🚨 EMERGENCY EXIT ALL", zap.Int("positions", len(tasks)))

	var errMu sync.Mutex
	var errs []error
	record := func(err error) {
		errMu.Lock()
		errs = append(errs, err)
		errMu.Unlock()
	}

	g := new(errgroup.Group)
	for _, task := range tasks {
		task := task
		g.Go(func() error {
			mint := task.snapshot().TokenMint
			reply := make(chan error, 1)
			select {
			case task.cmds <- command{reply: reply}:
			case <-task.done:
				return nil // already closed
			case <-ctx.Done():
				record(fmt.Errorf("%s: %w", mint, ctx.Err()))
				return nil
			}
			select {
			case err := <-reply:
				if err != nil {
					record(fmt.Errorf("%s: %w", mint, err))
				}
			case <-ctx.Done():
				record(fmt.Errorf("%s: %w", mint, ctx.Err()))
			}
			return nil
		})
	}
	_ = g.Wait()

	return multierr.Combine(errs...)
}

// Shutdown stops all monitoring loops and waits for them to finish.
func (m *Monitor) Shutdown(ctx context.Context) error {
	m.cancel()

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		m.logger.Info("Risk monitor shut down")
		return nil
	case <-ctx.Done():
		m.logger.Warn("Timeout waiting for monitoring loops to finish")
		return ctx.Err()
	}
}

func (m *Monitor) run(ctx context.Context, t *positionTask) {
	defer m.wg.Done()
	defer close(t.done)

	ticker := time.NewTicker(m.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case cmd := <-t.cmds:
			closed, err := m.executeExit(ctx, t, &decision{
				fraction:  1.0,
				reason:    "emergency exit requested",
				emergency: true,
				priority:  directive.PriorityCritical,
				alertType: AlertEmergencyExit,
				severity:  "critical",
			})
			if cmd.reply != nil {
				cmd.reply <- err
			}
			if closed {
				m.removeTask(t)
				return
			}
		case <-ticker.C:
			if m.tick(ctx, t) {
				m.removeTask(t)
				return
			}
		}
	}
}

// tick performs one monitoring pass. It returns true once the position is
// closed and the loop should stop.
func (m *Monitor) tick(ctx context.Context, t *positionTask) bool {
	// An ambiguous exit is reconciled against the chain before anything
	// else; the position never leaves EXITING on a guess.
	if t.pending != nil {
		return m.reconcilePending(ctx, t)
	}

	// A failed exit is retried before re-scoring: risk management first.
	if t.retry != nil {
		closed, _ := m.executeExit(ctx, t, t.retry)
		return closed
	}

	snap := t.snapshot()

	score, err := m.scorer.Score(ctx, snap.TokenMint)
	if err != nil {
		m.logger.Warn("Score fetch failed, skipping tick",
			zap.String("token", snap.TokenMint), zap.Error(err))
		return false
	}

	pnlPercent, pnlOK := m.unrealizedPnL(ctx, t)

	dec := m.evaluate(t, snap, score, pnlPercent, pnlOK)

	t.mu.Lock()
	t.pos.LastScore = score.SurvivabilityScore
	if t.pos.State == StateOpen {
		t.pos.State = StateMonitoring
	}
	t.mu.Unlock()

	if dec == nil {
		return false
	}
	closed, _ := m.executeExit(ctx, t, dec)
	return closed
}

// evaluate is the exit decision table, first match wins.
func (m *Monitor) evaluate(t *positionTask, snap Snapshot, score *scoring.ScoreResult, pnlPercent float64, pnlOK bool) *decision {
	if drop := snap.LastScore - score.SurvivabilityScore; drop >= m.cfg.ScoreDropExit {
		return &decision{
			fraction:  1.0,
			reason:    fmt.Sprintf("survivability dropped %.0f points (%.0f -> %.0f)", drop, snap.LastScore, score.SurvivabilityScore),
			emergency: true,
			priority:  directive.PriorityCritical,
			alertType: AlertScoreDrop,
			severity:  "critical",
		}
	}

	if score.PanicScore >= m.cfg.PanicExit {
		return &decision{
			fraction:  1.0,
			reason:    fmt.Sprintf("panic score %.0f at critical threshold", score.PanicScore),
			emergency: true,
			priority:  directive.PriorityCritical,
			alertType: AlertEmergencyExit,
			severity:  "critical",
		}
	}

	switch score.Suggestion.Action {
	case scoring.SuggestExit:
		return &decision{
			fraction:  m.cfg.ExitFraction,
			reason:    "scoring engine signalled EXIT: " + score.Suggestion.Reason,
			priority:  directive.PriorityHigh,
			alertType: AlertEmergencyExit,
			severity:  "warning",
		}
	case scoring.SuggestSell:
		return &decision{
			fraction:  m.cfg.SellFraction,
			reason:    "scoring engine signalled SELL: " + score.Suggestion.Reason,
			priority:  directive.PriorityMedium,
			alertType: AlertProfitTarget,
			severity:  "info",
		}
	}

	if !pnlOK {
		return nil
	}

	if pnlPercent <= -m.cfg.StopLossPercent {
		return &decision{
			fraction:  1.0,
			reason:    fmt.Sprintf("stop-loss hit: %.1f%% unrealized", pnlPercent),
			priority:  directive.PriorityHigh,
			alertType: AlertStopLoss,
			severity:  "critical",
		}
	}

	// Profit ladder: take the highest rung reached that has not fired yet;
	// deeper gains sell larger fractions.
	var best *decision
	for _, step := range m.cfg.Ladder {
		if pnlPercent >= step.GainPercent && !t.ladderTaken[step.GainPercent] {
			step := step
			best = &decision{
				fraction:   step.Fraction,
				reason:     fmt.Sprintf("profit target +%.0f%% reached (%.1f%% unrealized)", step.GainPercent, pnlPercent),
				priority:   directive.PriorityMedium,
				alertType:  AlertProfitTarget,
				severity:   "info",
				ladderGain: step.GainPercent,
			}
		}
	}
	return best
}

// executeExit drives one sell directive through the validator and executor.
// On failure the position stays in EXITING and the decision is retried on the
// next tick.
func (m *Monitor) executeExit(ctx context.Context, t *positionTask, dec *decision) (bool, error) {
	t.mu.Lock()
	t.pos.State = StateExiting
	holdings := t.pos.HoldingsRaw
	mint := t.pos.TokenMint
	symbol := t.pos.Symbol
	t.mu.Unlock()

	if holdings == 0 {
		return m.closePosition(t), nil
	}

	amount := uint64(float64(holdings) * dec.fraction)
	if amount == 0 {
		amount = holdings
	}

	d := directive.NewSell(mint, float64(amount), dec.reason)
	d.Priority = dec.priority
	if dec.emergency {
		d.Profile.Urgency = directive.UrgencyImmediate
	}

	// Exit directives are derived from untrusted scoring output, so they go
	// through the same hard gate as everything else.
	if !m.validator.Validate(d) {
		err := fmt.Errorf("generated exit directive failed validation for %s", mint)
		m.alerts.Record(AlertExitFailed, "critical", mint, symbol, err.Error())
		t.retry = nil
		return false, err
	}

	m.alerts.Record(dec.alertType, dec.severity, mint, symbol, dec.reason)

	res := m.exec.Execute(ctx, d)

	if res.Success {
		t.retry = nil
		if dec.ladderGain > 0 {
			t.ladderTaken[dec.ladderGain] = true
		}
		return m.applySellSuccess(t, amount, dec.fraction), nil
	}

	var unconfirmed *executor.UnconfirmedError
	if errors.As(res.Err, &unconfirmed) {
		t.pending = &pendingExit{sig: unconfirmed.Signature, amountRaw: amount, fraction: dec.fraction}
		t.retry = dec
		m.alerts.Record(AlertExitFailed, "warning", mint, symbol,
			fmt.Sprintf("exit unconfirmed, reconciling signature %s", unconfirmed.Signature))
		return false, res.Err
	}

	t.retry = dec
	severity := "warning"
	if dec.emergency {
		severity = "critical"
	}
	m.alerts.Record(AlertExitFailed, severity, mint, symbol,
		fmt.Sprintf("exit failed, will retry: %v", res.Err))
	return false, res.Err
}

// reconcilePending resolves an ambiguous sell by re-querying the chain.
func (m *Monitor) reconcilePending(ctx context.Context, t *positionTask) bool {
	pending := t.pending
	snap := t.snapshot()

	confirmed, err := m.chain.SignatureConfirmed(ctx, pending.sig)
	if confirmed {
		m.logger.Info("Pending exit confirmed on re-check",
			zap.String("token", snap.TokenMint),
			zap.String("signature", pending.sig.String()))
		t.pending = nil
		t.retry = nil
		return m.applySellSuccess(t, pending.amountRaw, pending.fraction)
	}
	if err != nil {
		m.logger.Warn("Pending exit not landed, retrying exit",
			zap.String("token", snap.TokenMint), zap.Error(err))
	}

	// Not landed: clear the pending marker and let the stored decision run
	// again on the next tick.
	t.pending = nil
	return false
}

// applySellSuccess updates holdings and cost basis after a landed sell and
// reports whether the position is now closed.
func (m *Monitor) applySellSuccess(t *positionTask, amountRaw uint64, fraction float64) bool {
	t.mu.Lock()
	if amountRaw >= t.pos.HoldingsRaw {
		t.pos.HoldingsRaw = 0
	} else {
		t.pos.HoldingsRaw -= amountRaw
	}
	t.pos.EntryAmountSol *= 1 - fraction
	closed := t.pos.HoldingsRaw == 0 || fraction >= 1
	if closed {
		t.pos.State = StateClosed
	} else {
		t.pos.State = StateMonitoring
	}
	t.mu.Unlock()

	if closed {
		return m.closePosition(t)
	}
	return false
}

func (m *Monitor) closePosition(t *positionTask) bool {
	t.mu.Lock()
	t.pos.State = StateClosed
	mint := t.pos.TokenMint
	symbol := t.pos.Symbol
	t.mu.Unlock()

	m.alerts.Record(AlertPositionClose, "info", mint, symbol, "position fully exited")
	return true
}

// unrealizedPnL prices the remaining holdings through the aggregator and
// returns the percentage gain/loss against the remaining cost basis.
func (m *Monitor) unrealizedPnL(ctx context.Context, t *positionTask) (float64, bool) {
	snap := t.snapshot()
	if snap.HoldingsRaw == 0 || snap.EntryAmountSol <= 0 {
		return 0, false
	}

	quote, err := m.quotes.Quote(ctx, jupiter.QuoteRequest{
		InputMint:   snap.TokenMint,
		OutputMint:  executor.WSOLMint,
		Amount:      snap.HoldingsRaw,
		SlippageBps: m.slippageBps,
	})
	if err != nil {
		m.logger.Debug("P/L quote failed",
			zap.String("token", snap.TokenMint), zap.Error(err))
		return 0, false
	}

	outRaw, err := quote.OutAmountRaw()
	if err != nil {
		return 0, false
	}

	currentSol := float64(outRaw) / float64(solana.LAMPORTS_PER_SOL)
	pnl := (currentSol - snap.EntryAmountSol) / snap.EntryAmountSol * 100
	return pnl, true
}

func (m *Monitor) removeTask(t *positionTask) {
	snap := t.snapshot()
	m.mu.Lock()
	delete(m.tasks, snap.TokenMint)
	m.mu.Unlock()
	t.cancel()
}
