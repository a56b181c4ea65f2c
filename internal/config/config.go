// Package config provides configuration management for the trading simulator.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/spf13/viper"

	"tradekaro/internal/errors"
)

// Config holds all application configuration.
type Config struct {
	Account   AccountConfig   `mapstructure:"account"`
	Pricing   PricingConfig   `mapstructure:"pricing"`
	Charges   ChargesConfig   `mapstructure:"charges"`
	Simulator SimulatorConfig `mapstructure:"simulator"`
	Store     StoreConfig     `mapstructure:"store"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
	Logging   LoggingConfig   `mapstructure:"logging"`

	// Dir is the directory the config was loaded from.
	Dir string `mapstructure:"-"`
}

// AccountConfig holds the virtual account settings.
type AccountConfig struct {
	InitialBalance float64 `mapstructure:"initial_balance"`
}

// PricingConfig holds option pricing inputs.
type PricingConfig struct {
	RiskFreeRate      float64 `mapstructure:"risk_free_rate"`
	DefaultVolatility float64 `mapstructure:"default_volatility"`
	StrikeStep        float64 `mapstructure:"strike_step"`
	StrikesEachSide   int     `mapstructure:"strikes_each_side"`
	Expiries          int     `mapstructure:"expiries"`
}

// ChargesConfig holds the order cost model rates.
type ChargesConfig struct {
	BrokerageRate float64 `mapstructure:"brokerage_rate"`
	BrokerageCap  float64 `mapstructure:"brokerage_cap"`
	STTBuyRate    float64 `mapstructure:"stt_buy_rate"`
	STTSellRate   float64 `mapstructure:"stt_sell_rate"`
	ExchangeRate  float64 `mapstructure:"exchange_rate"`
	GSTRate       float64 `mapstructure:"gst_rate"`
	SEBIRate      float64 `mapstructure:"sebi_rate"`
	StampRate     float64 `mapstructure:"stamp_rate"`
}

// SimulatorConfig holds market simulator settings.
type SimulatorConfig struct {
	TickInterval time.Duration `mapstructure:"tick_interval"`
	Volatility   float64       `mapstructure:"volatility"` // per-tick σ of the random walk
	Seed         int64         `mapstructure:"seed"`       // 0 = time based
}

// StoreConfig holds persistence settings.
type StoreConfig struct {
	Driver         string `mapstructure:"driver"` // sqlite, memory, redis
	Path           string `mapstructure:"path"`
	RedisAddr      string `mapstructure:"redis_addr"`
	RedisDB        int    `mapstructure:"redis_db"`
	RedisKeyPrefix string `mapstructure:"redis_key_prefix"`
}

// MetricsConfig holds Prometheus exporter settings.
type MetricsConfig struct {
	Enabled    bool   `mapstructure:"enabled"`
	ListenAddr string `mapstructure:"listen_addr"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level   string `mapstructure:"level"`
	Console bool   `mapstructure:"console"`
	File    bool   `mapstructure:"file"`
}

// DefaultConfigDir returns the default configuration directory.
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".config/tradekaro"
	}
	return filepath.Join(home, ".config", "tradekaro")
}

// ConfigPath returns the config file path inside configDir.
func ConfigPath(configDir string) string {
	if configDir == "" {
		configDir = DefaultConfigDir()
	}
	return filepath.Join(configDir, "config.toml")
}

// Default returns a configuration with every default applied.
func Default() *Config {
	v := viper.New()
	setDefaults(v, DefaultConfigDir())
	cfg := &Config{Dir: DefaultConfigDir()}
	_ = v.Unmarshal(cfg)
	return cfg
}

// Load loads configuration from the specified directory.
// If configDir is empty, uses the default config directory. A commented
// template is written when no config file exists yet.
func Load(configDir string) (*Config, error) {
	if configDir == "" {
		configDir = DefaultConfigDir()
	}

	cfg := &Config{Dir: configDir}
	if err := loadConfigFile(configDir, "config", cfg); err != nil {
		return nil, fmt.Errorf("loading config.toml: %w", err)
	}

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, fmt.Errorf("applying environment: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper, configDir string) {
	v.SetDefault("account.initial_balance", 500000.0)

	v.SetDefault("pricing.risk_free_rate", 0.065)
	v.SetDefault("pricing.default_volatility", 0.18)
	v.SetDefault("pricing.strike_step", 50.0)
	v.SetDefault("pricing.strikes_each_side", 10)
	v.SetDefault("pricing.expiries", 3)

	v.SetDefault("charges.brokerage_rate", 0.0003)
	v.SetDefault("charges.brokerage_cap", 20.0)
	v.SetDefault("charges.stt_buy_rate", 0.00001)
	v.SetDefault("charges.stt_sell_rate", 0.00025)
	v.SetDefault("charges.exchange_rate", 0.0000345)
	v.SetDefault("charges.gst_rate", 0.18)
	v.SetDefault("charges.sebi_rate", 0.000001)
	v.SetDefault("charges.stamp_rate", 0.00003)

	v.SetDefault("simulator.tick_interval", "2s")
	v.SetDefault("simulator.volatility", 0.002)
	v.SetDefault("simulator.seed", 0)

	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.path", filepath.Join(configDir, "tradekaro.db"))
	v.SetDefault("store.redis_addr", "localhost:6379")
	v.SetDefault("store.redis_db", 0)
	v.SetDefault("store.redis_key_prefix", "tradekaro:")

	v.SetDefault("metrics.enabled", false)
	v.SetDefault("metrics.listen_addr", ":9464")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.console", true)
	v.SetDefault("logging.file", true)
}

func loadConfigFile(configDir, name string, target interface{}) error {
	v := viper.New()
	v.SetConfigName(name)
	v.SetConfigType("toml")
	v.AddConfigPath(configDir)
	setDefaults(v, configDir)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return err
		}
		// First run: write the template and continue on defaults.
		if err := createTemplateConfig(configDir, name); err != nil {
			return err
		}
	}

	return v.Unmarshal(target)
}

func applyEnvOverrides(cfg *Config) error {
	if v := os.Getenv("TRADEKARO_STORE_DRIVER"); v != "" {
		cfg.Store.Driver = v
	}
	if v := os.Getenv("TRADEKARO_REDIS_ADDR"); v != "" {
		cfg.Store.RedisAddr = v
	}
	if v := os.Getenv("TRADEKARO_INITIAL_BALANCE"); v != "" {
		balance, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("TRADEKARO_INITIAL_BALANCE: %w", err)
		}
		cfg.Account.InitialBalance = balance
	}
	if v := os.Getenv("TRADEKARO_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	return nil
}

// Validate validates the configuration. Failures wrap errors.ErrConfigInvalid.
func (c *Config) Validate() error {
	if err := c.validate(); err != nil {
		return fmt.Errorf("%w: %v", errors.ErrConfigInvalid, err)
	}
	return nil
}

func (c *Config) validate() error {
	if c.Account.InitialBalance <= 0 {
		return fmt.Errorf("initial_balance must be positive")
	}

	if c.Pricing.RiskFreeRate < 0 || c.Pricing.RiskFreeRate > 1 {
		return fmt.Errorf("risk_free_rate must be between 0 and 1")
	}
	if c.Pricing.DefaultVolatility <= 0 || c.Pricing.DefaultVolatility > 5 {
		return fmt.Errorf("default_volatility must be in (0, 5]")
	}
	if c.Pricing.StrikeStep <= 0 {
		return fmt.Errorf("strike_step must be positive")
	}
	if c.Pricing.StrikesEachSide < 0 || c.Pricing.Expiries < 1 {
		return fmt.Errorf("strikes_each_side must be >= 0 and expiries >= 1")
	}

	rates := map[string]float64{
		"brokerage_rate": c.Charges.BrokerageRate,
		"stt_buy_rate":   c.Charges.STTBuyRate,
		"stt_sell_rate":  c.Charges.STTSellRate,
		"exchange_rate":  c.Charges.ExchangeRate,
		"gst_rate":       c.Charges.GSTRate,
		"sebi_rate":      c.Charges.SEBIRate,
		"stamp_rate":     c.Charges.StampRate,
	}
	for name, rate := range rates {
		if rate < 0 || rate > 1 {
			return fmt.Errorf("%s must be between 0 and 1", name)
		}
	}
	if c.Charges.BrokerageCap < 0 {
		return fmt.Errorf("brokerage_cap must be non-negative")
	}

	if c.Simulator.TickInterval <= 0 {
		return fmt.Errorf("tick_interval must be positive")
	}

	switch c.Store.Driver {
	case "sqlite", "memory", "redis":
	default:
		return fmt.Errorf("invalid store driver: %s (must be 'sqlite', 'memory' or 'redis')", c.Store.Driver)
	}

	return nil
}
