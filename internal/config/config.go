// =================================
// File: internal/config/config.go
// =================================
package config

import (
	"errors"
	"net/url"
	"strings"
	"sync"

	"github.com/spf13/viper"
)

// LadderStep is one rung of the profit-taking ladder: once unrealized gain
// reaches GainPercent, sell Fraction of the remaining holdings.
type LadderStep struct {
	GainPercent float64 `mapstructure:"gain_percent"`
	Fraction    float64 `mapstructure:"fraction"`
}

// ExitConfig holds the risk-monitor thresholds. The original deployments
// disagreed on these numbers, so all of them are configuration.
type ExitConfig struct {
	ScoreDropExit   float64      `mapstructure:"score_drop_exit"`
	PanicExit       float64      `mapstructure:"panic_exit"`
	ExitFraction    float64      `mapstructure:"exit_fraction"`
	SellFraction    float64      `mapstructure:"sell_fraction"`
	StopLossPercent float64      `mapstructure:"stop_loss_percent"`
	Ladder          []LadderStep `mapstructure:"ladder"`
}

type Config struct {
	RPCList          []string   `mapstructure:"rpc_list"`
	JupiterURL       string     `mapstructure:"jupiter_url"`
	WalletsFile      string     `mapstructure:"wallets_file"`
	JournalPath      string     `mapstructure:"journal_path"`
	LogFile          string     `mapstructure:"log_file"`
	DebugLogging     bool       `mapstructure:"debug_logging"`
	SlippageBps      int        `mapstructure:"slippage_bps"`
	MaxPriceImpact   float64    `mapstructure:"max_price_impact"`
	MaxRetries       int        `mapstructure:"max_retries"`
	ConfirmTimeoutMs int        `mapstructure:"confirm_timeout_ms"`
	BaseCooldownMs   int        `mapstructure:"base_cooldown_ms"`
	MinCooldownMs    int        `mapstructure:"min_cooldown_ms"`
	MonitorDelayMs   int        `mapstructure:"monitor_delay_ms"`
	Exits            ExitConfig `mapstructure:"exits"`
}

const (
	DefaultJupiterURL     = "https://quote-api.jup.ag/v6"
	DefaultSlippageBps    = 100
	DefaultMaxImpact      = 5.0
	DefaultRetries        = 5
	DefaultConfirmTimeout = 45_000
	DefaultBaseCooldown   = 45_000
	DefaultMinCooldown    = 5_000
	DefaultMonitorDelay   = 3_000
)

func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)

	defaults := map[string]interface{}{
		"jupiter_url":             DefaultJupiterURL,
		"journal_path":            "trades.db",
		"log_file":                "bot.log",
		"slippage_bps":            DefaultSlippageBps,
		"max_price_impact":        DefaultMaxImpact,
		"max_retries":             DefaultRetries,
		"confirm_timeout_ms":      DefaultConfirmTimeout,
		"base_cooldown_ms":        DefaultBaseCooldown,
		"min_cooldown_ms":         DefaultMinCooldown,
		"monitor_delay_ms":        DefaultMonitorDelay,
		"exits.score_drop_exit":   30.0,
		"exits.panic_exit":        75.0,
		"exits.exit_fraction":     0.75,
		"exits.sell_fraction":     0.25,
		"exits.stop_loss_percent": 20.0,
	}
	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	if err := v.ReadInConfig(); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if len(cfg.Exits.Ladder) == 0 {
		cfg.Exits.Ladder = []LadderStep{
			{GainPercent: 30, Fraction: 0.25},
			{GainPercent: 60, Fraction: 0.50},
			{GainPercent: 120, Fraction: 1.00},
		}
	}

	if err := loadEnvironmentVariables(v, &cfg); err != nil {
		return nil, err
	}

	return &cfg, validateConfig(&cfg)
}

func validateConfig(cfg *Config) error {
	if len(cfg.RPCList) == 0 {
		return errors.New("rpc_list is empty")
	}
	for _, rpcURL := range cfg.RPCList {
		if err := validateURLWithCache(rpcURL, "http"); err != nil {
			return errors.New("invalid RPC URL protocol")
		}
	}
	if err := validateURLWithCache(cfg.JupiterURL, "http"); err != nil {
		return errors.New("invalid Jupiter URL protocol")
	}
	if cfg.WalletsFile == "" {
		return errors.New("missing wallets_file in configuration")
	}
	return validateNumericParams(cfg)
}

func validateNumericParams(cfg *Config) error {
	if cfg.SlippageBps <= 0 {
		return errors.New("invalid slippage_bps")
	}
	if cfg.MaxPriceImpact <= 0 {
		return errors.New("invalid max_price_impact")
	}
	if cfg.MaxRetries <= 0 {
		return errors.New("invalid max_retries count")
	}
	if cfg.ConfirmTimeoutMs <= 0 {
		return errors.New("invalid confirm_timeout_ms")
	}
	if cfg.BaseCooldownMs <= 0 || cfg.MinCooldownMs <= 0 {
		return errors.New("invalid wallet cooldown values")
	}
	if cfg.MonitorDelayMs <= 0 {
		return errors.New("invalid monitor_delay_ms")
	}
	if cfg.Exits.StopLossPercent <= 0 {
		return errors.New("invalid exits.stop_loss_percent")
	}
	for _, step := range cfg.Exits.Ladder {
		if step.GainPercent <= 0 || step.Fraction <= 0 || step.Fraction > 1 {
			return errors.New("invalid exits.ladder step")
		}
	}
	return nil
}

var urlCache sync.Map

func validateURLWithCache(rawURL string, protocol string) error {
	if _, ok := urlCache.Load(rawURL); ok {
		return nil
	}
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return errors.New("invalid URL format")
	}
	if !strings.HasPrefix(parsed.Scheme, protocol) {
		return errors.New("invalid URL protocol")
	}
	urlCache.Store(rawURL, parsed)
	return nil
}

func loadEnvironmentVariables(v *viper.Viper, cfg *Config) error {
	v.AutomaticEnv()
	v.SetEnvPrefix("CRYPTO_BOT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if envWallets := v.GetString("WALLETS_FILE"); envWallets != "" {
		cfg.WalletsFile = envWallets
	}

	if envRPCList := v.GetString("RPC_LIST"); envRPCList != "" {
		rpcs := strings.Split(envRPCList, ",")
		var cleanRPCs []string
		for _, rpc := range rpcs {
			clean := strings.TrimSpace(rpc)
			if clean != "" {
				cleanRPCs = append(cleanRPCs, clean)
			}
		}
		if len(cleanRPCs) > 0 {
			cfg.RPCList = cleanRPCs
		}
	}
	return nil
}
