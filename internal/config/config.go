package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// ErrInvalidConfig is returned when the loaded configuration fails validation.
var ErrInvalidConfig = errors.New("invalid configuration")

// Config holds all configuration for the application.
type Config struct {
	Logger       Logger       `mapstructure:"logger"`
	Database     Database     `mapstructure:"database"`
	Server       Server       `mapstructure:"server"`
	Market       Market       `mapstructure:"market"`
	AI           AI           `mapstructure:"ai"`
	Portfolio    Portfolio    `mapstructure:"portfolio"`
	Risk         Risk         `mapstructure:"risk"`
	Orchestrator Orchestrator `mapstructure:"orchestrator"`
	Segments     []Segment    `mapstructure:"segments" validate:"required,min=1,dive"`
}

// Logger holds the configuration for the logger.
type Logger struct {
	Level  string `mapstructure:"level" validate:"oneof=debug info warn error"`
	Format string `mapstructure:"format" validate:"oneof=json console"`
}

// Database holds the configuration for the database.
type Database struct {
	DSN          string `mapstructure:"dsn" validate:"required"`
	ResetOnStart bool   `mapstructure:"reset_on_start"`
}

// Server holds the configuration for the control surface.
type Server struct {
	Enabled bool `mapstructure:"enabled"`
	Port    int  `mapstructure:"port" validate:"min=0,max=65535"`
}

// Market selects and configures the market data provider.
type Market struct {
	Provider       string             `mapstructure:"provider" validate:"oneof=synthetic rest"`
	BaseURL        string             `mapstructure:"base_url" validate:"required_if=Provider rest"`
	BarInterval    time.Duration      `mapstructure:"bar_interval" validate:"gt=0"`
	LookbackBars   int                `mapstructure:"lookback_bars" validate:"min=20"`
	RateLimit      float64            `mapstructure:"rate_limit" validate:"gt=0"`
	RateLimitBurst int                `mapstructure:"rate_limit_burst" validate:"min=1"`
	Seed           int64              `mapstructure:"seed"`
	BasePrices     map[string]float64 `mapstructure:"base_prices"`
}

// AI configures the advisory analysis collaborator.
type AI struct {
	Provider string        `mapstructure:"provider" validate:"oneof=heuristic http"`
	BaseURL  string        `mapstructure:"base_url" validate:"required_if=Provider http"`
	Timeout  time.Duration `mapstructure:"timeout" validate:"gt=0"`
}

// Portfolio holds the accounting configuration.
type Portfolio struct {
	InitialCapital float64 `mapstructure:"initial_capital" validate:"gt=0"`
	CommissionRate float64 `mapstructure:"commission_rate" validate:"min=0,max=0.05"`
}

// Risk holds the risk gate and sizing thresholds.
type Risk struct {
	MinConfidence       float64           `mapstructure:"min_confidence" validate:"min=0,max=1"`
	MaxRisk             float64           `mapstructure:"max_risk" validate:"min=0,max=1"`
	MinStrength         float64           `mapstructure:"min_strength" validate:"min=0,max=1"`
	MaxDailyTrades      int               `mapstructure:"max_daily_trades" validate:"min=1"`
	MaxPositions        int               `mapstructure:"max_positions" validate:"min=1"`
	MinCashReserve      float64           `mapstructure:"min_cash_reserve" validate:"min=0,max=1"`
	MaxSectorExposure   float64           `mapstructure:"max_sector_exposure" validate:"gt=0,max=1"`
	MaxVaRFraction      float64           `mapstructure:"max_var_fraction" validate:"gt=0,max=1"`
	AssumedVolatility   float64           `mapstructure:"assumed_volatility" validate:"gt=0"`
	MaxVolatility       float64           `mapstructure:"max_volatility" validate:"gt=0"`
	MaxPositionFraction float64           `mapstructure:"max_position_fraction" validate:"gt=0,max=1"`
	MaxKellyFraction    float64           `mapstructure:"max_kelly_fraction" validate:"gt=0,max=1"`
	BaseSlippageBps     float64           `mapstructure:"base_slippage_bps" validate:"min=0"`
	VolatilityImpact    float64           `mapstructure:"volatility_impact" validate:"min=0"`
	PriorMinSamples     int               `mapstructure:"prior_min_samples" validate:"min=1"`
	Sectors             map[string]string `mapstructure:"sectors"`
}

// Orchestrator holds process-wide recovery tunables.
type Orchestrator struct {
	MaxConsecutiveErrors int           `mapstructure:"max_consecutive_errors" validate:"min=1"`
	MaxTotalErrors       int           `mapstructure:"max_total_errors" validate:"min=1"`
	HealthStep           float64       `mapstructure:"health_step" validate:"gt=0,max=1"`
	RecoveryStep         float64       `mapstructure:"recovery_step" validate:"gt=0,max=1"`
	MinSafeInterval      time.Duration `mapstructure:"min_safe_interval" validate:"gt=0"`
	EmergencyCooldown    time.Duration `mapstructure:"emergency_cooldown" validate:"min=0"`
	BaseRetryDelay       time.Duration `mapstructure:"base_retry_delay" validate:"gt=0"`
	MaxRetryDelay        time.Duration `mapstructure:"max_retry_delay" validate:"gtfield=BaseRetryDelay"`
	BackoffCap           int           `mapstructure:"backoff_cap" validate:"min=1"`
	StopTimeout          time.Duration `mapstructure:"stop_timeout" validate:"gt=0"`
	TradeMinHealth       float64       `mapstructure:"trade_min_health" validate:"min=0,max=1"`
	AIMinHealth          float64       `mapstructure:"ai_min_health" validate:"min=0,max=1"`
}

// Segment configures one independently scheduled group of symbols.
type Segment struct {
	Name                 string        `mapstructure:"name" validate:"required"`
	Kind                 string        `mapstructure:"kind" validate:"oneof=continuous session"`
	Symbols              []string      `mapstructure:"symbols" validate:"required,min=1,dive,required"`
	Interval             time.Duration `mapstructure:"interval" validate:"gt=0"`
	TradingEnabled       bool          `mapstructure:"trading_enabled"`
	AIEnabled            bool          `mapstructure:"ai_enabled"`
	ReflectionEvery      int           `mapstructure:"reflection_every" validate:"min=0"`
	ReportEvery          int           `mapstructure:"report_every" validate:"min=0"`
	DailyRunQuota        int           `mapstructure:"daily_run_quota" validate:"min=0"`
	MaxConsecutiveErrors int           `mapstructure:"max_consecutive_errors" validate:"min=0"`
	MaxTotalErrors       int           `mapstructure:"max_total_errors" validate:"min=0"`
	EmergencyCooldown    time.Duration `mapstructure:"emergency_cooldown" validate:"min=0"`
	Session              Session       `mapstructure:"session"`
}

// Session describes the trading window of a session segment.
type Session struct {
	Timezone string   `mapstructure:"timezone"`
	Open     string   `mapstructure:"open"`
	Close    string   `mapstructure:"close"`
	Weekdays []string `mapstructure:"weekdays"`
}

// LoadConfig reads configuration from file or environment variables.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	v.AddConfigPath(path)
	v.SetConfigName("config")
	v.SetConfigType("yml")

	// Allow environment variables to override config file
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	SetDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("could not read config: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("could not decode config: %w", err)
	}
	cfg.applySegmentDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// SetDefaults registers a default for every tunable.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")

	v.SetDefault("database.dsn", "trading_desk.db")
	v.SetDefault("database.reset_on_start", false)

	v.SetDefault("server.enabled", true)
	v.SetDefault("server.port", 8080)

	v.SetDefault("market.provider", "synthetic")
	v.SetDefault("market.bar_interval", time.Minute)
	v.SetDefault("market.lookback_bars", 60)
	v.SetDefault("market.rate_limit", 10)      // requests per second
	v.SetDefault("market.rate_limit_burst", 5) // burst size
	v.SetDefault("market.seed", 42)

	v.SetDefault("ai.provider", "heuristic")
	v.SetDefault("ai.timeout", 5*time.Second)

	v.SetDefault("portfolio.initial_capital", 100000.0)
	v.SetDefault("portfolio.commission_rate", 0.001)

	v.SetDefault("risk.min_confidence", 0.6)
	v.SetDefault("risk.max_risk", 0.8)
	v.SetDefault("risk.min_strength", 0.3)
	v.SetDefault("risk.max_daily_trades", 20)
	v.SetDefault("risk.max_positions", 10)
	v.SetDefault("risk.min_cash_reserve", 0.1)
	v.SetDefault("risk.max_sector_exposure", 0.3)
	v.SetDefault("risk.max_var_fraction", 0.05)
	v.SetDefault("risk.assumed_volatility", 0.02)
	v.SetDefault("risk.max_volatility", 0.8)
	v.SetDefault("risk.max_position_fraction", 0.10)
	v.SetDefault("risk.max_kelly_fraction", 0.25)
	v.SetDefault("risk.base_slippage_bps", 5.0)
	v.SetDefault("risk.volatility_impact", 0.002)
	v.SetDefault("risk.prior_min_samples", 5)

	v.SetDefault("orchestrator.max_consecutive_errors", 3)
	v.SetDefault("orchestrator.max_total_errors", 5)
	v.SetDefault("orchestrator.health_step", 0.1)
	v.SetDefault("orchestrator.recovery_step", 0.05)
	v.SetDefault("orchestrator.min_safe_interval", 30*time.Second)
	v.SetDefault("orchestrator.emergency_cooldown", 30*time.Second)
	v.SetDefault("orchestrator.base_retry_delay", 5*time.Second)
	v.SetDefault("orchestrator.max_retry_delay", 5*time.Minute)
	v.SetDefault("orchestrator.backoff_cap", 5)
	v.SetDefault("orchestrator.stop_timeout", 30*time.Second)
	v.SetDefault("orchestrator.trade_min_health", 0.5)
	v.SetDefault("orchestrator.ai_min_health", 0.7)
}

// applySegmentDefaults fills per-segment thresholds from the orchestrator section.
func (c *Config) applySegmentDefaults() {
	for i := range c.Segments {
		seg := &c.Segments[i]
		if seg.Kind == "" {
			seg.Kind = "continuous"
		}
		if seg.MaxConsecutiveErrors == 0 {
			seg.MaxConsecutiveErrors = c.Orchestrator.MaxConsecutiveErrors
		}
		if seg.MaxTotalErrors == 0 {
			seg.MaxTotalErrors = c.Orchestrator.MaxTotalErrors
		}
		if seg.EmergencyCooldown == 0 {
			seg.EmergencyCooldown = c.Orchestrator.EmergencyCooldown
		}
	}
}

// Validate checks struct constraints and cross-field rules.
func (c *Config) Validate() error {
	validate := validator.New()
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	seen := make(map[string]struct{}, len(c.Segments))
	for _, seg := range c.Segments {
		if _, dup := seen[seg.Name]; dup {
			return fmt.Errorf("%w: duplicate segment %q", ErrInvalidConfig, seg.Name)
		}
		seen[seg.Name] = struct{}{}
		if seg.Kind == "session" {
			if seg.Session.Open == "" || seg.Session.Close == "" {
				return fmt.Errorf("%w: session segment %q needs open and close", ErrInvalidConfig, seg.Name)
			}
		}
	}
	return nil
}

// Segment returns the named segment configuration.
func (c *Config) Segment(name string) (Segment, bool) {
	for _, seg := range c.Segments {
		if seg.Name == name {
			return seg, true
		}
	}
	return Segment{}, false
}
