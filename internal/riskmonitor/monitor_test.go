// internal/riskmonitor/monitor_test.go
package riskmonitor

import (
	"context"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Saylon11/crypto-bot/internal/directive"
	"github.com/Saylon11/crypto-bot/internal/executor"
	"github.com/Saylon11/crypto-bot/internal/jupiter"
	"github.com/Saylon11/crypto-bot/internal/scoring"
)

const (
	testMint  = "JUPyiwrYJFskUPiHa7hkeR8VUtAeFoSYbKedZNsDvCN"
	otherMint = "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v"

	entrySol    = 1.0
	holdingsRaw = 1_000_000_000 // 1e9 raw units, 1 lamport each at entry
)

type fakeExec struct {
	mu       sync.Mutex
	executed []directive.TradeDirective
	results  []*executor.Result // consumed in order; past the end, success
}

func (f *fakeExec) Execute(_ context.Context, d directive.TradeDirective) *executor.Result {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.executed = append(f.executed, d)

	if len(f.results) > 0 {
		res := f.results[0]
		f.results = f.results[1:]
		return res
	}
	return &executor.Result{
		Success:   true,
		Signature: solana.Signature{1},
		ErrKind:   executor.KindOK,
		Attempts:  1,
	}
}

func (f *fakeExec) calls() []directive.TradeDirective {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]directive.TradeDirective, len(f.executed))
	copy(out, f.executed)
	return out
}

func (f *fakeExec) callCount() int { return len(f.calls()) }

// fakeQuotes prices holdings at amountRaw * priceNum / priceDen lamports, so a
// ratio of 1/1 means break-even against the test entry.
type fakeQuotes struct {
	mu       sync.Mutex
	priceNum uint64
	priceDen uint64
}

func (f *fakeQuotes) setPrice(num, den uint64) {
	f.mu.Lock()
	f.priceNum, f.priceDen = num, den
	f.mu.Unlock()
}

func (f *fakeQuotes) Quote(_ context.Context, req jupiter.QuoteRequest) (*jupiter.Quote, error) {
	f.mu.Lock()
	out := req.Amount * f.priceNum / f.priceDen
	f.mu.Unlock()
	return &jupiter.Quote{
		InputMint:  req.InputMint,
		OutputMint: req.OutputMint,
		OutAmount:  strconv.FormatUint(out, 10),
	}, nil
}

type fakeChain struct {
	mu        sync.Mutex
	confirmed bool
	err       error
	checks    int
}

func (f *fakeChain) SignatureConfirmed(_ context.Context, _ solana.Signature) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.checks++
	return f.confirmed, f.err
}

type testRig struct {
	monitor *Monitor
	exec    *fakeExec
	scorer  *scoring.StaticEngine
	quotes  *fakeQuotes
	chain   *fakeChain
}

func newTestRig(t *testing.T) *testRig {
	t.Helper()
	cfg := DefaultExitConfig()
	cfg.PollInterval = 10 * time.Millisecond

	rig := &testRig{
		exec:   &fakeExec{},
		scorer: scoring.NewStatic(nil),
		quotes: &fakeQuotes{priceNum: 1, priceDen: 1},
		chain:  &fakeChain{},
	}
	rig.monitor = NewMonitor(rig.exec, rig.scorer, rig.quotes, rig.chain, cfg, 100, zap.NewNop())
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = rig.monitor.Shutdown(ctx)
	})
	return rig
}

func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	require.Eventually(t, cond, 2*time.Second, 5*time.Millisecond, msg)
}

func TestScoreDropTriggersEmergencyExit(t *testing.T) {
	rig := newTestRig(t)
	rig.scorer.Enqueue(testMint, &scoring.ScoreResult{
		SurvivabilityScore: 40, // 40-point drop from entry score 80
		PanicScore:         10,
		Suggestion:         scoring.TradeSuggestion{Action: scoring.SuggestHold},
	})

	require.NoError(t, rig.monitor.Register(testMint, "TEST", 80, entrySol, holdingsRaw))

	waitFor(t, func() bool { return rig.exec.callCount() >= 1 }, "exit never executed")

	d := rig.exec.calls()[0]
	assert.Equal(t, directive.ActionSell, d.Action)
	assert.Equal(t, directive.PriorityCritical, d.Priority)
	assert.Equal(t, directive.UrgencyImmediate, d.Profile.Urgency)
	assert.Equal(t, float64(holdingsRaw), d.Amount)

	waitFor(t, func() bool { return !rig.monitor.Status().Active }, "position never closed")
}

func TestPanicScoreTriggersEmergencyExit(t *testing.T) {
	rig := newTestRig(t)
	rig.scorer.Enqueue(testMint, &scoring.ScoreResult{
		SurvivabilityScore: 70,
		PanicScore:         80, // over the 75 threshold
		Suggestion:         scoring.TradeSuggestion{Action: scoring.SuggestHold},
	})

	require.NoError(t, rig.monitor.Register(testMint, "TEST", 70, entrySol, holdingsRaw))

	waitFor(t, func() bool { return rig.exec.callCount() >= 1 }, "exit never executed")
	d := rig.exec.calls()[0]
	assert.Equal(t, directive.PriorityCritical, d.Priority)
	assert.Equal(t, float64(holdingsRaw), d.Amount)
}

func TestExitSuggestionSellsConfiguredFraction(t *testing.T) {
	rig := newTestRig(t)
	rig.scorer.Enqueue(testMint, &scoring.ScoreResult{
		SurvivabilityScore: 70,
		PanicScore:         10,
		Suggestion:         scoring.TradeSuggestion{Action: scoring.SuggestExit, Reason: "declining"},
	}, scoring.Neutral())

	require.NoError(t, rig.monitor.Register(testMint, "TEST", 70, entrySol, holdingsRaw))

	waitFor(t, func() bool { return rig.exec.callCount() >= 1 }, "exit never executed")
	d := rig.exec.calls()[0]
	assert.Equal(t, directive.ActionSell, d.Action)
	assert.Equal(t, float64(holdingsRaw)*0.75, d.Amount)

	// A partial exit keeps the position under monitoring.
	waitFor(t, func() bool {
		status := rig.monitor.Status()
		return len(status.Positions) == 1 && status.Positions[0].HoldingsRaw == holdingsRaw/4
	}, "holdings not reduced to remainder")
}

func TestSellSuggestionSellsSmallerFraction(t *testing.T) {
	rig := newTestRig(t)
	rig.scorer.Enqueue(testMint, &scoring.ScoreResult{
		SurvivabilityScore: 70,
		PanicScore:         10,
		Suggestion:         scoring.TradeSuggestion{Action: scoring.SuggestSell, Reason: "cooling off"},
	}, scoring.Neutral())

	require.NoError(t, rig.monitor.Register(testMint, "TEST", 70, entrySol, holdingsRaw))

	waitFor(t, func() bool { return rig.exec.callCount() >= 1 }, "sell never executed")
	assert.Equal(t, float64(holdingsRaw)*0.25, rig.exec.calls()[0].Amount)
}

func TestStopLossTriggersFullExit(t *testing.T) {
	rig := newTestRig(t)
	rig.quotes.setPrice(7, 10) // -30%, past the -20% stop

	require.NoError(t, rig.monitor.Register(testMint, "TEST", 70, entrySol, holdingsRaw))

	waitFor(t, func() bool { return rig.exec.callCount() >= 1 }, "stop-loss never fired")
	d := rig.exec.calls()[0]
	assert.Equal(t, float64(holdingsRaw), d.Amount)
	assert.Equal(t, directive.PriorityHigh, d.Priority)

	waitFor(t, func() bool { return !rig.monitor.Status().Active }, "position never closed")
}

func TestProfitLadderFiresEachRungOnce(t *testing.T) {
	rig := newTestRig(t)
	rig.quotes.setPrice(135, 100) // +35%: first rung only

	require.NoError(t, rig.monitor.Register(testMint, "TEST", 70, entrySol, holdingsRaw))

	waitFor(t, func() bool { return rig.exec.callCount() == 1 }, "first rung never fired")
	assert.Equal(t, float64(holdingsRaw)*0.25, rig.exec.calls()[0].Amount)

	// Same gain level across several ticks: the rung must not re-fire.
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, 1, rig.exec.callCount())

	// Price pushes past the second rung: half the remainder goes.
	rig.quotes.setPrice(170, 100)
	waitFor(t, func() bool { return rig.exec.callCount() == 2 }, "second rung never fired")
	remaining := float64(holdingsRaw) * 0.75
	assert.Equal(t, remaining*0.50, rig.exec.calls()[1].Amount)
}

func TestFailedExitStaysExitingAndRetries(t *testing.T) {
	rig := newTestRig(t)
	failure := &executor.Result{
		Success: false,
		Err:     &executor.FatalError{Err: context.DeadlineExceeded},
		ErrKind: executor.KindFatal,
	}
	rig.exec.results = []*executor.Result{failure, failure}
	rig.scorer.Enqueue(testMint, &scoring.ScoreResult{
		SurvivabilityScore: 30,
		PanicScore:         90,
		Suggestion:         scoring.TradeSuggestion{Action: scoring.SuggestExit},
	})

	require.NoError(t, rig.monitor.Register(testMint, "TEST", 35, entrySol, holdingsRaw))

	// Two failures, then the default success: the monitor must keep retrying
	// the same decision until the sell lands.
	waitFor(t, func() bool { return rig.exec.callCount() >= 2 }, "exit not retried")
	status := rig.monitor.Status()
	if len(status.Positions) == 1 {
		assert.Equal(t, StateExiting, status.Positions[0].State)
	}

	waitFor(t, func() bool { return rig.exec.callCount() >= 3 }, "exit not retried to success")
	waitFor(t, func() bool { return !rig.monitor.Status().Active }, "position never closed")
}

func TestUnconfirmedExitReconcilesWithoutResell(t *testing.T) {
	rig := newTestRig(t)
	sig := solana.Signature{42}
	rig.exec.results = []*executor.Result{{
		Success:   false,
		Signature: sig,
		Err:       &executor.UnconfirmedError{Signature: sig},
		ErrKind:   executor.KindUnconfirmed,
	}}
	rig.chain.confirmed = true
	rig.scorer.Enqueue(testMint, &scoring.ScoreResult{
		SurvivabilityScore: 30,
		PanicScore:         90,
		Suggestion:         scoring.TradeSuggestion{Action: scoring.SuggestExit},
	})

	require.NoError(t, rig.monitor.Register(testMint, "TEST", 35, entrySol, holdingsRaw))

	// The signature landed on re-check: the position closes with exactly one
	// submitted sell, never a duplicate.
	waitFor(t, func() bool { return !rig.monitor.Status().Active }, "position never closed")
	assert.Equal(t, 1, rig.exec.callCount())
	rig.chain.mu.Lock()
	checks := rig.chain.checks
	rig.chain.mu.Unlock()
	assert.GreaterOrEqual(t, checks, 1)
}

func TestUnconfirmedExitRetriesWhenNotLanded(t *testing.T) {
	rig := newTestRig(t)
	sig := solana.Signature{42}
	rig.exec.results = []*executor.Result{{
		Success:   false,
		Signature: sig,
		Err:       &executor.UnconfirmedError{Signature: sig},
		ErrKind:   executor.KindUnconfirmed,
	}}
	rig.chain.confirmed = false // never landed
	rig.scorer.Enqueue(testMint, &scoring.ScoreResult{
		SurvivabilityScore: 30,
		PanicScore:         90,
		Suggestion:         scoring.TradeSuggestion{Action: scoring.SuggestExit},
	})

	require.NoError(t, rig.monitor.Register(testMint, "TEST", 35, entrySol, holdingsRaw))

	// Reconciliation finds nothing on chain, so the stored decision runs
	// again and the second attempt succeeds.
	waitFor(t, func() bool { return rig.exec.callCount() >= 2 }, "exit not re-executed")
	waitFor(t, func() bool { return !rig.monitor.Status().Active }, "position never closed")
}

func TestEmergencyExitAll(t *testing.T) {
	rig := newTestRig(t)
	require.NoError(t, rig.monitor.Register(testMint, "TEST", 70, entrySol, holdingsRaw))
	require.NoError(t, rig.monitor.Register(otherMint, "OTHER", 70, entrySol, holdingsRaw))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, rig.monitor.EmergencyExitAll(ctx))

	calls := rig.exec.calls()
	require.Len(t, calls, 2)
	mints := map[string]bool{}
	for _, d := range calls {
		assert.Equal(t, directive.ActionSell, d.Action)
		assert.Equal(t, directive.PriorityCritical, d.Priority)
		assert.Equal(t, float64(holdingsRaw), d.Amount)
		mints[d.TokenAddress] = true
	}
	assert.True(t, mints[testMint])
	assert.True(t, mints[otherMint])

	waitFor(t, func() bool { return !rig.monitor.Status().Active }, "positions not cleared")
}

func TestRegisterRejectsDuplicates(t *testing.T) {
	rig := newTestRig(t)
	require.NoError(t, rig.monitor.Register(testMint, "TEST", 70, entrySol, holdingsRaw))
	require.Error(t, rig.monitor.Register(testMint, "TEST", 70, entrySol, holdingsRaw))
}

func TestDeregisterStopsMonitoringWithoutSelling(t *testing.T) {
	rig := newTestRig(t)
	require.NoError(t, rig.monitor.Register(testMint, "TEST", 70, entrySol, holdingsRaw))
	require.NoError(t, rig.monitor.Deregister(testMint))
	require.Error(t, rig.monitor.Deregister(testMint))

	time.Sleep(50 * time.Millisecond)
	assert.Zero(t, rig.exec.callCount())
	assert.False(t, rig.monitor.Status().Active)
}

func TestStatusReportsPositionsAndAlerts(t *testing.T) {
	rig := newTestRig(t)
	require.NoError(t, rig.monitor.Register(testMint, "TEST", 70, entrySol, holdingsRaw))

	waitFor(t, func() bool {
		status := rig.monitor.Status()
		return status.Active && len(status.Positions) == 1 &&
			status.Positions[0].State == StateMonitoring
	}, "position never reached MONITORING")

	status := rig.monitor.Status()
	assert.Equal(t, testMint, status.Positions[0].TokenMint)
	assert.Equal(t, "TEST", status.Positions[0].Symbol)
}
