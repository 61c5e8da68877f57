// internal/riskmonitor/config.go
package riskmonitor

import (
	"time"

	"github.com/Saylon11/crypto-bot/internal/config"
)

// ExitConfig holds every exit threshold. The numbers deliberately live in
// configuration, not constants.
type ExitConfig struct {
	// ScoreDropExit is the survivability drop (points since last tick) that
	// forces a full emergency exit.
	ScoreDropExit float64
	// PanicExit is the panic score at or above which the position is dumped.
	PanicExit float64
	// ExitFraction is sold when the scoring engine suggests EXIT.
	ExitFraction float64
	// SellFraction is sold when the scoring engine suggests SELL.
	SellFraction float64
	// StopLossPercent is the unrealized loss (positive number) that triggers
	// a full exit.
	StopLossPercent float64
	// Ladder is the profit-taking ladder, ordered by ascending gain.
	Ladder []config.LadderStep
	// PollInterval is the per-position re-score cadence. Risk conditions are
	// time-critical, so this runs in seconds where discovery scans run in
	// minutes.
	PollInterval time.Duration
}

// DefaultExitConfig returns the exit policy defaults.
func DefaultExitConfig() ExitConfig {
	return ExitConfig{
		ScoreDropExit:   30,
		PanicExit:       75,
		ExitFraction:    0.75,
		SellFraction:    0.25,
		StopLossPercent: 20,
		Ladder: []config.LadderStep{
			{GainPercent: 30, Fraction: 0.25},
			{GainPercent: 60, Fraction: 0.50},
			{GainPercent: 120, Fraction: 1.00},
		},
		PollInterval: 3 * time.Second,
	}
}

// FromConfig maps the loaded application config onto an ExitConfig.
func FromConfig(cfg *config.Config) ExitConfig {
	return ExitConfig{
		ScoreDropExit:   cfg.Exits.ScoreDropExit,
		PanicExit:       cfg.Exits.PanicExit,
		ExitFraction:    cfg.Exits.ExitFraction,
		SellFraction:    cfg.Exits.SellFraction,
		StopLossPercent: cfg.Exits.StopLossPercent,
		Ladder:          cfg.Exits.Ladder,
		PollInterval:    time.Duration(cfg.MonitorDelayMs) * time.Millisecond,
	}
}
