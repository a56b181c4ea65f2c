package config

import (
	"fmt"
	"os"
	"path/filepath"
)

const configTemplate = `# TradeKaro Configuration

[account]
# Starting virtual cash balance in INR
initial_balance = 500000.0

[pricing]
# Annual risk-free rate used by Black-Scholes
risk_free_rate = 0.065
# Volatility used when pricing chains without an explicit --vol
default_volatility = 0.18
# Strike spacing of generated chains
strike_step = 50.0
# Strikes generated on each side of the ATM strike
strikes_each_side = 10
# Number of monthly expiries in a chain
expiries = 3

[charges]
brokerage_rate = 0.0003
# Brokerage cap per order in INR
brokerage_cap = 20.0
stt_buy_rate = 0.00001
stt_sell_rate = 0.00025
exchange_rate = 0.0000345
# GST applies to brokerage + exchange charges
gst_rate = 0.18
sebi_rate = 0.000001
stamp_rate = 0.00003

[simulator]
# Interval between price ticks (e.g., "2s", "500ms")
tick_interval = "2s"
# Per-tick standard deviation of the random walk
volatility = 0.002
# Random seed; 0 seeds from the clock
seed = 0

[store]
# Storage driver: "sqlite", "memory" or "redis"
driver = "sqlite"
# SQLite database path (defaults to tradekaro.db next to this file)
# path = ""
redis_addr = "localhost:6379"
redis_db = 0
redis_key_prefix = "tradekaro:"

[metrics]
# Serve Prometheus metrics while "simulate" runs
enabled = false
listen_addr = ":9464"

[logging]
# Log level: debug, info, warn, error
level = "info"
console = true
file = true
`

func createTemplateConfig(configDir, name string) error {
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	path := filepath.Join(configDir, name+".toml")
	if err := os.WriteFile(path, []byte(configTemplate), 0644); err != nil {
		return fmt.Errorf("writing config template: %w", err)
	}

	return nil
}
