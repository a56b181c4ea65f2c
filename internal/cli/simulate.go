package cli

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"tradekaro/internal/logging"
	"tradekaro/internal/scheduler"
)

// addSimulateCommand adds the live simulation loop.
func addSimulateCommand(rootCmd *cobra.Command, app *App) {
	rootCmd.AddCommand(newSimulateCmd(app))
}

func newSimulateCmd(app *App) *cobra.Command {
	var (
		duration time.Duration
		interval time.Duration
	)
	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Run the market simulator",
		Long: `Run the market simulator until interrupted or --duration elapses.

Each tick moves prices, fills pending orders whose conditions are met and
reprices open option positions. Positions past expiry are settled. Prices
are persisted so the next session resumes from them. When metrics are
enabled in the config, Prometheus metrics are served on listen_addr.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			if duration > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, duration)
				defer cancel()
			}

			if err := app.open(ctx); err != nil {
				return err
			}
			output := NewOutput(cmd)
			if interval <= 0 {
				interval = app.Config.Simulator.TickInterval
			}

			sched := scheduler.New(app.Logger, app.Metrics)
			tasks := []scheduler.Task{
				{Name: "prices", Interval: interval, Run: app.Market.Tick},
				{Name: "orders", Interval: interval, Run: func(ctx context.Context) error {
					results, err := app.Ledger.ProcessTick(ctx)
					if !output.IsJSON() {
						for _, r := range results {
							if r.Success {
								output.Success("✓ %s", r.Message)
							} else {
								output.Error("✗ %s", r.Message)
							}
						}
					}
					return err
				}},
				{Name: "option-premiums", Interval: interval, Run: func(ctx context.Context) error {
					_, err := app.Ledger.UpdateOptionPremiums(ctx)
					return err
				}},
				{Name: "option-expiry", Interval: time.Minute, Run: func(ctx context.Context) error {
					n, err := app.Ledger.ExpireOptions(ctx)
					if n > 0 && !output.IsJSON() {
						output.Info("%d option position(s) settled at expiry", n)
					}
					return err
				}},
				{Name: "persist-prices", Interval: 10 * interval, Run: func(ctx context.Context) error {
					prices := app.Market.Prices()
					if err := app.Ledger.RecordPrices(ctx, prices); err != nil {
						return err
					}
					logger := logging.FromContext(ctx)
					logger.Debug().Int("symbols", len(prices)).Msg("Prices persisted")
					return nil
				}},
			}
			for _, t := range tasks {
				if err := sched.Add(t); err != nil {
					return err
				}
			}

			var srv *http.Server
			if app.Metrics != nil {
				mux := http.NewServeMux()
				mux.Handle("/metrics", app.Metrics.Handler())
				srv = &http.Server{Addr: app.Config.Metrics.ListenAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
				go func() {
					if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
						app.Logger.Error().Err(err).Str("addr", srv.Addr).Msg("Metrics server failed")
					}
				}()
				app.Logger.Info().Str("addr", srv.Addr).Msg("Serving metrics")
			}

			if !output.IsJSON() {
				output.Info("Simulating every %s, press Ctrl+C to stop", interval)
			}
			err := sched.Run(ctx)

			// Persist the final prices even though ctx is done.
			if perr := app.Ledger.RecordPrices(context.Background(), app.Market.Prices()); perr != nil {
				app.Logger.Warn().Err(perr).Msg("Failed to persist prices")
			}
			if srv != nil {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
				defer cancel()
				_ = srv.Shutdown(shutdownCtx)
			}

			if output.IsJSON() {
				return output.JSON(map[string]interface{}{
					"tasks":   sched.Stats(),
					"summary": app.Ledger.Summary(context.Background()),
				})
			}
			table := NewTable(output, "TASK", "RUNS", "SKIPPED", "FAILED", "BREAKER")
			for _, s := range sched.Stats() {
				table.AddRow(s.Name, FormatQuantity(int64(s.Runs)), FormatQuantity(int64(s.Skipped)), FormatQuantity(int64(s.Failed)), string(s.Breaker))
			}
			output.Println()
			table.Render()
			return err
		},
	}
	cmd.Flags().DurationVar(&duration, "duration", 0, "stop after this long (default: run until interrupted)")
	cmd.Flags().DurationVar(&interval, "interval", 0, "tick interval (default from config)")
	return cmd
}
