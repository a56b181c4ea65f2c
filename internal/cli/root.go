package cli

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"tradekaro/internal/analytics"
	"tradekaro/internal/charges"
	"tradekaro/internal/config"
	"tradekaro/internal/ledger"
	"tradekaro/internal/logging"
	"tradekaro/internal/market"
	"tradekaro/internal/metrics"
	"tradekaro/internal/options"
	"tradekaro/internal/store"
)

// Version information
const (
	Version   = "0.3.0"
	BuildDate = "2025-01-15"
)

// App holds the application dependencies. The store, simulator and ledger
// are opened on first use so that commands such as "version" and
// "config path" never touch the database.
type App struct {
	Config   *config.Config
	Logger   zerolog.Logger
	Metrics  *metrics.Recorder
	Repo     store.Repository
	Market   *market.Simulator
	Chain    *options.ChainGenerator
	Ledger   *ledger.Ledger
	Analyzer *analytics.Analyzer

	rng      market.RandomSource
	ownsRepo bool
}

// NewRootCmd creates the root command for the CLI.
func NewRootCmd(cfg *config.Config, logger zerolog.Logger) *cobra.Command {
	app := &App{
		Config: cfg,
		Logger: logger,
	}
	return newRootCmd(app)
}

// NewRootCmdWithApp creates the root command around a prepared App. Fields
// left nil are filled in from the configuration on first use.
func NewRootCmdWithApp(app *App) *cobra.Command {
	return newRootCmd(app)
}

func newRootCmd(app *App) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "tradekaro",
		Short: "TradeKaro - NSE paper trading and options pricing simulator",
		Long: `TradeKaro is a paper-trading simulator for the Indian market.

It prices NSE index options with Black-Scholes, keeps a virtual cash
account with delivery, intraday and F&O positions, and charges every
order the way a discount broker would.

Use 'tradekaro <command> --help' for more information about a command.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if dir, _ := cmd.Flags().GetString("config"); dir != "" && dir != app.Config.Dir {
				cfg, err := config.Load(dir)
				if err != nil {
					return err
				}
				app.Config = cfg
			}
			if debug, _ := cmd.Flags().GetBool("debug"); debug {
				logging.SetDebugLevel()
				app.Logger = app.Logger.Level(zerolog.DebugLevel)
			}
			return nil
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			return app.Close()
		},
	}

	rootCmd.PersistentFlags().String("config", "", "config directory (default: ~/.config/tradekaro)")
	rootCmd.PersistentFlags().Bool("json", false, "output in JSON format")
	rootCmd.PersistentFlags().Bool("debug", false, "enable debug logging")

	addCoreCommands(rootCmd, app)
	addMarketCommands(rootCmd, app)
	addTradingCommands(rootCmd, app)
	addPortfolioCommands(rootCmd, app)
	addFNOCommands(rootCmd, app)
	addSimulateCommand(rootCmd, app)

	return rootCmd
}

// open wires the store, simulator, chain generator and ledger.
func (a *App) open(ctx context.Context) error {
	if a.Ledger != nil {
		return nil
	}
	cfg := a.Config

	if a.Metrics == nil && cfg.Metrics.Enabled {
		a.Metrics = metrics.NewRecorder()
	}
	if a.rng == nil {
		a.rng = market.NewRandomSource(cfg.Simulator.Seed)
	}
	if a.Repo == nil {
		repo, err := store.Open(ctx, store.Options{
			Driver:         cfg.Store.Driver,
			Path:           cfg.Store.Path,
			RedisAddr:      cfg.Store.RedisAddr,
			RedisDB:        cfg.Store.RedisDB,
			RedisKeyPrefix: cfg.Store.RedisKeyPrefix,
		})
		if err != nil {
			return fmt.Errorf("opening %s store: %w", cfg.Store.Driver, err)
		}
		a.Repo = repo
		a.ownsRepo = true
		a.Logger.Debug().Str("driver", cfg.Store.Driver).Msg("Store opened")
	}
	if a.Market == nil {
		a.Market = market.NewSimulator(market.DefaultCatalogue(), a.rng, cfg.Simulator.Volatility, a.Logger)
	}
	if a.Chain == nil {
		chainCfg := options.DefaultChainConfig()
		chainCfg.StrikeStep = cfg.Pricing.StrikeStep
		chainCfg.StrikesEachSide = cfg.Pricing.StrikesEachSide
		chainCfg.Expiries = cfg.Pricing.Expiries
		chainCfg.RiskFreeRate = cfg.Pricing.RiskFreeRate
		a.Chain = options.NewChainGenerator(chainCfg, a.rng).WithMetrics(a.Metrics)
	}
	if a.Analyzer == nil {
		a.Analyzer = analytics.NewAnalyzer(a.rng)
	}

	c := cfg.Charges
	led, err := ledger.New(ctx, a.Repo, a.Market, ledger.Config{
		InitialBalance:    cfg.Account.InitialBalance,
		Charges:           charges.FromRates(c.BrokerageRate, c.BrokerageCap, c.STTBuyRate, c.STTSellRate, c.ExchangeRate, c.GSTRate, c.SEBIRate, c.StampRate),
		DefaultVolatility: cfg.Pricing.DefaultVolatility,
	},
		ledger.WithLogger(a.Logger),
		ledger.WithMetrics(a.Metrics),
		ledger.WithChain(a.Chain),
	)
	if err != nil {
		return err
	}
	a.Ledger = led
	a.Market.Restore(led.Prices())
	return nil
}

// Close releases a store opened by the App. Injected stores stay open.
func (a *App) Close() error {
	if a.Repo == nil || !a.ownsRepo {
		return nil
	}
	err := a.Repo.Close()
	a.Repo = nil
	a.Ledger = nil
	return err
}

// addCoreCommands adds core utility commands.
func addCoreCommands(rootCmd *cobra.Command, app *App) {
	rootCmd.AddCommand(newVersionCmd())
	rootCmd.AddCommand(newConfigCmd(app))
	rootCmd.AddCommand(newResetCmd(app))
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			if output.IsJSON() {
				return output.JSON(map[string]string{
					"version":    Version,
					"build_date": BuildDate,
				})
			}
			output.Printf("TradeKaro v%s\n", Version)
			output.Dim("Build date: %s", BuildDate)
			return nil
		},
	}
}

func newConfigCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration management",
		Long:  "View and validate application configuration.",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show current configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			if output.IsJSON() {
				return output.JSON(app.Config)
			}
			showConfig(output, app.Config)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "path",
		Short: "Show configuration file path",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			path := config.ConfigPath(app.Config.Dir)
			if output.IsJSON() {
				return output.JSON(map[string]string{"path": path})
			}
			output.Println(path)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "validate",
		Short: "Validate configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			if err := app.Config.Validate(); err != nil {
				output.Error("Configuration validation failed: %v", err)
				return err
			}
			if output.IsJSON() {
				return output.JSON(map[string]bool{"valid": true})
			}
			output.Success("✓ Configuration is valid")
			return nil
		},
	})

	return cmd
}

func showConfig(output *Output, cfg *config.Config) {
	output.Bold("Account")
	output.Printf("  Initial Balance:  %s\n", FormatIndianCurrency(cfg.Account.InitialBalance))
	output.Println()

	output.Bold("Pricing")
	output.Printf("  Risk-free Rate:   %.2f%%\n", cfg.Pricing.RiskFreeRate*100)
	output.Printf("  Default Vol:      %s\n", FormatIV(cfg.Pricing.DefaultVolatility))
	output.Printf("  Strike Step:      %.0f\n", cfg.Pricing.StrikeStep)
	output.Printf("  Strikes/Side:     %d\n", cfg.Pricing.StrikesEachSide)
	output.Printf("  Expiries:         %d\n", cfg.Pricing.Expiries)
	output.Println()

	output.Bold("Charges")
	output.Printf("  Brokerage:        %.4f%% (cap %s)\n", cfg.Charges.BrokerageRate*100, FormatIndianCurrency(cfg.Charges.BrokerageCap))
	output.Printf("  STT Buy/Sell:     %.4f%% / %.4f%%\n", cfg.Charges.STTBuyRate*100, cfg.Charges.STTSellRate*100)
	output.Printf("  Exchange:         %.5f%%\n", cfg.Charges.ExchangeRate*100)
	output.Printf("  GST:              %.0f%%\n", cfg.Charges.GSTRate*100)
	output.Println()

	output.Bold("Simulator")
	output.Printf("  Tick Interval:    %s\n", cfg.Simulator.TickInterval)
	output.Printf("  Volatility:       %.4f\n", cfg.Simulator.Volatility)
	output.Printf("  Seed:             %d\n", cfg.Simulator.Seed)
	output.Println()

	output.Bold("Store")
	output.Printf("  Driver:           %s\n", cfg.Store.Driver)
	switch cfg.Store.Driver {
	case "sqlite":
		output.Printf("  Path:             %s\n", cfg.Store.Path)
	case "redis":
		output.Printf("  Address:          %s (db %d)\n", cfg.Store.RedisAddr, cfg.Store.RedisDB)
	}
	output.Println()

	output.Bold("Metrics")
	output.Printf("  Enabled:          %v\n", cfg.Metrics.Enabled)
	output.Printf("  Listen:           %s\n", cfg.Metrics.ListenAddr)
}

func newResetCmd(app *App) *cobra.Command {
	var balance float64
	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Reset the account",
		Long:  "Clear all orders, holdings and positions and restore the starting balance.",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if err := app.open(ctx); err != nil {
				return err
			}
			output := NewOutput(cmd)
			if err := app.Ledger.Reset(ctx, balance); err != nil {
				return err
			}
			if output.IsJSON() {
				return output.JSON(map[string]float64{"balance": app.Ledger.Balance()})
			}
			output.Success("✓ Account reset with %s", FormatIndianCurrency(app.Ledger.Balance()))
			return nil
		},
	}
	cmd.Flags().Float64Var(&balance, "balance", 0, "starting balance (default from config)")
	return cmd
}
