// internal/bot/runner.go
package bot

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/Saylon11/crypto-bot/internal/config"
	"github.com/Saylon11/crypto-bot/internal/engine"
	"github.com/Saylon11/crypto-bot/internal/executor"
	"github.com/Saylon11/crypto-bot/internal/jupiter"
	"github.com/Saylon11/crypto-bot/internal/logger"
	"github.com/Saylon11/crypto-bot/internal/netclient"
	"github.com/Saylon11/crypto-bot/internal/riskmonitor"
	"github.com/Saylon11/crypto-bot/internal/scoring"
	"github.com/Saylon11/crypto-bot/internal/storage/sqlite"
	"github.com/Saylon11/crypto-bot/internal/wallet"
)

const statusLogInterval = 30 * time.Second

// Runner wires the full trading stack together and runs it until shutdown.
type Runner struct {
	logger     *logger.Logger
	config     *config.Config
	engine     *engine.Engine
	shutdownCh chan os.Signal
}

// NewRunner builds the runner from a loaded configuration. scorer may be nil,
// in which case a neutral static engine is used until a real one is wired.
func NewRunner(cfg *config.Config, scorer scoring.Engine) (*Runner, error) {
	log, err := logger.New(&logger.Config{
		LogFile:     cfg.LogFile,
		MaxSize:     100,
		MaxBackups:  5,
		MaxAge:      30,
		Compress:    true,
		Development: cfg.DebugLogging,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	wallets, err := wallet.LoadWallets(cfg.WalletsFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load wallets: %w", err)
	}
	log.Info(fmt.Sprintf("💼 Loaded %d wallets", len(wallets)))

	net, err := netclient.New(cfg.RPCList, log.Logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize RPC client: %w", err)
	}

	poolCfg := wallet.DefaultPoolConfig()
	poolCfg.BaseCooldown = time.Duration(cfg.BaseCooldownMs) * time.Millisecond
	poolCfg.MinCooldown = time.Duration(cfg.MinCooldownMs) * time.Millisecond
	pool, err := wallet.NewPool(wallets, poolCfg, net, log.Logger)
	if err != nil {
		return nil, fmt.Errorf("failed to build wallet pool: %w", err)
	}

	quotes := jupiter.NewClient(cfg.JupiterURL, log.Logger)

	execCfg := executor.DefaultConfig()
	execCfg.SlippageBps = cfg.SlippageBps
	execCfg.MaxPriceImpact = cfg.MaxPriceImpact
	execCfg.MaxRetries = uint(cfg.MaxRetries)
	execCfg.ConfirmTimeout = time.Duration(cfg.ConfirmTimeoutMs) * time.Millisecond
	exec := executor.New(pool, net, quotes, execCfg, log.Logger)

	if scorer == nil {
		scorer = scoring.NewStatic(nil)
	}
	monitor := riskmonitor.NewMonitor(exec, scorer, quotes, net,
		riskmonitor.FromConfig(cfg), cfg.SlippageBps, log.Logger)

	journal, err := sqlite.New(cfg.JournalPath, log.Logger)
	if err != nil {
		return nil, fmt.Errorf("failed to open trade journal: %w", err)
	}

	return &Runner{
		logger:     log,
		config:     cfg,
		engine:     engine.New(exec, monitor, journal, log.Logger),
		shutdownCh: make(chan os.Signal, 1),
	}, nil
}

// Engine exposes the trading façade for directive producers.
func (r *Runner) Engine() *engine.Engine {
	return r.engine
}

// Run blocks until the context is cancelled or a shutdown signal arrives,
// logging a status line periodically.
func (r *Runner) Run(ctx context.Context) error {
	signal.Notify(r.shutdownCh, syscall.SIGINT, syscall.SIGTERM)

	r.logger.Info("🚀 Trading engine ready",
		zap.Int("rpc_nodes", len(r.config.RPCList)),
		zap.String("jupiter_url", r.config.JupiterURL))

	ticker := time.NewTicker(statusLogInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return r.shutdown()
		case sig := <-r.shutdownCh:
			r.logger.Info("📡 Signal received: " + sig.String())
			return r.shutdown()
		case <-ticker.C:
			status := r.engine.Status()
			stats := r.engine.Stats()
			r.logger.Info("📊 Status",
				zap.Int("open_positions", len(status.Positions)),
				zap.Int("buys", stats.Buys),
				zap.Int("sells", stats.Sells),
				zap.Int("failures", stats.Failures),
				zap.String("uptime", stats.Uptime))
		}
	}
}

func (r *Runner) shutdown() error {
	r.logger.Info("👋 Shutting down gracefully")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	err := r.engine.Close(ctx)
	if syncErr := r.logger.Sync(); syncErr != nil {
		fmt.Fprintf(os.Stderr, "failed to sync logger during shutdown: %v\n", syncErr)
	}
	return err
}
