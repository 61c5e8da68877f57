// internal/engine/engine_test.go
package engine

import (
	"context"
	"sync"
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Saylon11/crypto-bot/internal/directive"
	"github.com/Saylon11/crypto-bot/internal/executor"
	"github.com/Saylon11/crypto-bot/internal/riskmonitor"
	"github.com/Saylon11/crypto-bot/internal/storage"
)

const testMint = "JUPyiwrYJFskUPiHa7hkeR8VUtAeFoSYbKedZNsDvCN"

type fakeExec struct {
	mu       sync.Mutex
	executed []directive.TradeDirective
	result   *executor.Result
}

func (f *fakeExec) Execute(_ context.Context, d directive.TradeDirective) *executor.Result {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.executed = append(f.executed, d)
	if f.result != nil {
		return f.result
	}
	return &executor.Result{
		Success:        true,
		Signature:      solana.Signature{1},
		ErrKind:        executor.KindOK,
		AmountReceived: 1_000_000,
		Wallet:         "main",
		Attempts:       1,
	}
}

func (f *fakeExec) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.executed)
}

type fakeMonitor struct {
	mu         sync.Mutex
	registered []string
}

func (m *fakeMonitor) Register(tokenMint, _ string, _, _ float64, _ uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.registered = append(m.registered, tokenMint)
	return nil
}

func (m *fakeMonitor) Deregister(string) error                { return nil }
func (m *fakeMonitor) Status() riskmonitor.Status             { return riskmonitor.Status{} }
func (m *fakeMonitor) EmergencyExitAll(context.Context) error { return nil }
func (m *fakeMonitor) Shutdown(context.Context) error         { return nil }

func (m *fakeMonitor) registeredMints() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.registered))
	copy(out, m.registered)
	return out
}

type memJournal struct {
	mu      sync.Mutex
	records []storage.ExecutionRecord
	closed  bool
}

func (j *memJournal) RecordExecution(_ context.Context, rec *storage.ExecutionRecord) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.records = append(j.records, *rec)
	return nil
}

func (j *memJournal) RecentExecutions(_ context.Context, limit int) ([]storage.ExecutionRecord, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if limit > len(j.records) {
		limit = len(j.records)
	}
	return j.records[:limit], nil
}

func (j *memJournal) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.closed = true
	return nil
}

func TestSubmitBuyRegistersPosition(t *testing.T) {
	exec := &fakeExec{}
	monitor := &fakeMonitor{}
	journal := &memJournal{}
	eng := New(exec, monitor, journal, zap.NewNop())

	res, err := eng.SubmitDirective(context.Background(), directive.NewBuy(testMint, 0.5, "entry"))
	require.NoError(t, err)
	require.True(t, res.Success)

	assert.Equal(t, []string{testMint}, monitor.registeredMints())
	require.Len(t, journal.records, 1)
	assert.Equal(t, "BUY", journal.records[0].Action)
	assert.Equal(t, uint64(1_000_000), journal.records[0].AmountReceived)

	stats := eng.Stats()
	assert.Equal(t, 1, stats.Buys)
	assert.InDelta(t, 0.5, stats.SolSpent, 0.0001)
}

func TestInvalidDirectiveRejectedWithoutExecution(t *testing.T) {
	exec := &fakeExec{}
	monitor := &fakeMonitor{}
	eng := New(exec, monitor, nil, zap.NewNop())

	d := directive.NewBuy(testMint, 0.5, "entry")
	d.SchemaVersion = 99
	_, err := eng.SubmitDirective(context.Background(), d)
	require.Error(t, err)

	assert.Zero(t, exec.callCount())
	assert.Empty(t, monitor.registeredMints())
	assert.Equal(t, 1, eng.Stats().Rejected)
}

func TestFailedBuyDoesNotRegister(t *testing.T) {
	exec := &fakeExec{result: &executor.Result{
		Success: false,
		Err:     &executor.FatalError{Err: context.DeadlineExceeded},
		ErrKind: executor.KindFatal,
	}}
	monitor := &fakeMonitor{}
	journal := &memJournal{}
	eng := New(exec, monitor, journal, zap.NewNop())

	res, err := eng.SubmitDirective(context.Background(), directive.NewBuy(testMint, 0.5, "entry"))
	require.NoError(t, err)
	require.False(t, res.Success)

	assert.Empty(t, monitor.registeredMints())
	require.Len(t, journal.records, 1)
	assert.Equal(t, "fatal", journal.records[0].ErrKind)
	assert.Equal(t, 1, eng.Stats().Failures)
}

func TestSellIsJournaledNotRegistered(t *testing.T) {
	exec := &fakeExec{}
	monitor := &fakeMonitor{}
	journal := &memJournal{}
	eng := New(exec, monitor, journal, zap.NewNop())

	_, err := eng.SubmitDirective(context.Background(), directive.NewSell(testMint, 1_000_000, "take profit"))
	require.NoError(t, err)

	assert.Empty(t, monitor.registeredMints())
	assert.Equal(t, 1, eng.Stats().Sells)
}

func TestWaitSkipsJournal(t *testing.T) {
	exec := &fakeExec{}
	journal := &memJournal{}
	eng := New(exec, &fakeMonitor{}, journal, zap.NewNop())

	_, err := eng.SubmitDirective(context.Background(), directive.NewWait(testMint, "standby"))
	require.NoError(t, err)
	assert.Empty(t, journal.records)
}

func TestCloseShutsDownJournal(t *testing.T) {
	journal := &memJournal{}
	eng := New(&fakeExec{}, &fakeMonitor{}, journal, zap.NewNop())

	require.NoError(t, eng.Close(context.Background()))
	assert.True(t, journal.closed)
}
