// Package config loads the engine's startup configuration once via
// viper (YAML + environment overrides), matching the teacher's
// singleton-loader convention.
package config

import (
	"fmt"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

// StrategyWeight is one strategy's share of deployable capital.
type StrategyWeight struct {
	StrategyID string  `mapstructure:"strategy_id" validate:"required"`
	Weight     float64 `mapstructure:"weight" validate:"gte=0,lte=1"`
}

// Config is the engine's full startup configuration.
type Config struct {
	// Server is the operational HTTP surface (health + manual trigger).
	Server struct {
		Host            string        `mapstructure:"host"`
		Port            int           `mapstructure:"port"`
		ReadTimeout     time.Duration `mapstructure:"read_timeout"`
		WriteTimeout    time.Duration `mapstructure:"write_timeout"`
		IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
		ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	} `mapstructure:"server"`

	// DeploymentMode is "paper" or "live".
	DeploymentMode string `mapstructure:"deployment_mode" validate:"oneof=paper live"`

	// Strategies lists each strategy's allocation fraction; weights must
	// sum to <= 1.0 + epsilon (validated at construction, spec §4.1).
	Strategies []StrategyWeight `mapstructure:"strategies" validate:"dive"`

	// CashProxySymbol is the defensive-cash fallback symbol (e.g. "BIL").
	CashProxySymbol string `mapstructure:"cash_proxy_symbol" validate:"required"`

	// DefaultStrategyID is used for attribution when no strategy claims a symbol.
	DefaultStrategyID string `mapstructure:"default_strategy_id"`

	Capital struct {
		EquityDeploymentPct float64 `mapstructure:"equity_deployment_pct" validate:"gt=0"`
		LeverageEnabled     bool    `mapstructure:"leverage_enabled"`
		MaxMarginUtilPct    float64 `mapstructure:"max_margin_utilization_pct"`
		MinMaintenanceBufferPct float64 `mapstructure:"min_maintenance_buffer_pct"`

		// MaxPositionWeight is the per-symbol cap on a ConsolidatedPortfolio
		// weight (spec §3 ConsolidatedPortfolio invariant: "each weight ≤
		// max position cap"), enforced by the Signal Aggregator.
		MaxPositionWeight float64 `mapstructure:"max_position_weight" validate:"gt=0"`
	} `mapstructure:"capital"`

	Trading struct {
		MinTradeAmountUSD   float64       `mapstructure:"min_trade_amount_usd"`
		MaxDriftTolerance   float64       `mapstructure:"max_drift_tolerance"`
		MaxSlippageBps      float64       `mapstructure:"max_slippage_bps"`
		DailyTradeLimitUSD  float64       `mapstructure:"daily_trade_limit_usd"`
		SettlementTimeout   time.Duration `mapstructure:"settlement_timeout"`
		SettlementPoll      time.Duration `mapstructure:"settlement_poll_interval"`
		RunDeadline         time.Duration `mapstructure:"run_deadline"`
		ExtendedHoursDefault bool         `mapstructure:"extended_hours_default"`

		// LeveragedSymbols opts specific tickers (e.g. leveraged ETFs)
		// into the aggressive marketable-limit pricing policy regardless
		// of the run's urgency (spec §4.3.1).
		LeveragedSymbols []string `mapstructure:"leveraged_symbols"`
	} `mapstructure:"trading"`

	Persistence struct {
		Bucket string `mapstructure:"bucket"`
		Prefix string `mapstructure:"prefix"`
		Region string `mapstructure:"region"`
	} `mapstructure:"persistence"`

	Events struct {
		Enabled bool   `mapstructure:"enabled"`
		NatsURL string `mapstructure:"nats_url"`
		Subject string `mapstructure:"subject"`
	} `mapstructure:"events"`

	// Schedule is a standard 5-field cron expression for an automatic
	// daily run() invocation (spec §2: "typically once per market
	// day"). Empty disables scheduling; runs are then triggered only by
	// POST /runs or the -run-once flag.
	Schedule string `mapstructure:"schedule"`
}

// MinTradeAmount returns the configured dust-suppression threshold as a decimal.
func (c Config) MinTradeAmount() decimal.Decimal {
	return decimal.NewFromFloat(c.Trading.MinTradeAmountUSD)
}

// DailyTradeLimit returns the configured daily circuit-breaker limit.
func (c Config) DailyTradeLimit() decimal.Decimal {
	return decimal.NewFromFloat(c.Trading.DailyTradeLimitUSD)
}

var (
	cfg  *Config
	once sync.Once
)

// Load reads configuration from configPath (a directory containing
// config.yaml) plus TRADENGINE_-prefixed environment overrides, applies
// defaults, and validates the result. Subsequent calls return the same
// instance (per-process singleton, matching the teacher's pattern).
func Load(configPath string) (*Config, error) {
	var err error
	once.Do(func() {
		cfg = &Config{}
		setDefaults()

		v := viper.New()
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		if configPath != "" {
			v.AddConfigPath(configPath)
		} else {
			v.AddConfigPath(".")
			v.AddConfigPath("./config")
			v.AddConfigPath("/etc/tradengine")
		}
		v.AutomaticEnv()
		v.SetEnvPrefix("TRADENGINE")
		applyDefaults(v)

		if readErr := v.ReadInConfig(); readErr != nil {
			if _, ok := readErr.(viper.ConfigFileNotFoundError); !ok {
				err = fmt.Errorf("read config file: %w", readErr)
				return
			}
		}
		if unmarshalErr := v.Unmarshal(cfg); unmarshalErr != nil {
			err = fmt.Errorf("unmarshal config: %w", unmarshalErr)
			return
		}
		if validateErr := validator.New().Struct(cfg); validateErr != nil {
			err = fmt.Errorf("validate config: %w", validateErr)
			return
		}
		weightSum := 0.0
		for _, sw := range cfg.Strategies {
			weightSum += sw.Weight
		}
		if weightSum > 1.0+1e-9 {
			err = fmt.Errorf("validate config: strategy weights sum to %v, exceeding 1.0", weightSum)
			return
		}
	})
	return cfg, err
}

func setDefaults() {
	cfg.Server.Host = "0.0.0.0"
	cfg.Server.Port = 8080
	cfg.Server.ReadTimeout = 10 * time.Second
	cfg.Server.WriteTimeout = 10 * time.Second
	cfg.Server.ShutdownTimeout = 15 * time.Second

	cfg.DeploymentMode = "paper"
	cfg.CashProxySymbol = "BIL"
	cfg.DefaultStrategyID = "DEFAULT"

	cfg.Capital.EquityDeploymentPct = 1.0
	cfg.Capital.LeverageEnabled = false
	cfg.Capital.MaxMarginUtilPct = 0.8
	cfg.Capital.MinMaintenanceBufferPct = 0.1
	cfg.Capital.MaxPositionWeight = 0.25

	cfg.Trading.MinTradeAmountUSD = 10
	cfg.Trading.MaxDriftTolerance = 0.05
	cfg.Trading.MaxSlippageBps = 20
	cfg.Trading.DailyTradeLimitUSD = 50000
	cfg.Trading.SettlementTimeout = 60 * time.Second
	cfg.Trading.SettlementPoll = 2 * time.Second
	cfg.Trading.RunDeadline = 10 * time.Minute

	cfg.Persistence.Prefix = "tradengine"

	cfg.Events.Subject = "tradengine.runs"
}

func applyDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("deployment_mode", "paper")
	v.SetDefault("cash_proxy_symbol", "BIL")
	v.SetDefault("trading.min_trade_amount_usd", 10)
	v.SetDefault("trading.daily_trade_limit_usd", 50000)
	v.SetDefault("capital.equity_deployment_pct", 1.0)
	v.SetDefault("capital.max_position_weight", 0.25)
}
