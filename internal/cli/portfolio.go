package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"tradekaro/internal/analytics"
)

// addPortfolioCommands adds holdings, positions, summary and analytics commands.
func addPortfolioCommands(rootCmd *cobra.Command, app *App) {
	rootCmd.AddCommand(newHoldingsCmd(app))
	rootCmd.AddCommand(newPositionsCmd(app))
	rootCmd.AddCommand(newPortfolioCmd(app))
	rootCmd.AddCommand(newAnalyticsCmd(app))
}

func newHoldingsCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "holdings",
		Short: "Show delivery holdings marked to market",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if err := app.open(ctx); err != nil {
				return err
			}
			output := NewOutput(cmd)
			holdings := app.Ledger.Holdings(ctx)

			if output.IsJSON() {
				return output.JSON(holdings)
			}
			if len(holdings) == 0 {
				output.Dim("No holdings")
				return nil
			}

			table := NewTable(output, "SYMBOL", "QTY", "AVG", "LTP", "INVESTED", "CURRENT", "P&L", "P&L%", "DAY")
			var invested, current float64
			for _, h := range holdings {
				invested += h.TotalInvested
				current += h.CurrentValue
				table.AddRow(
					h.Symbol,
					FormatQuantity(int64(h.Quantity)),
					fmt.Sprintf("%.2f", h.AveragePrice),
					fmt.Sprintf("%.2f", h.CurrentPrice),
					FormatIndianCurrency(h.TotalInvested),
					FormatIndianCurrency(h.CurrentValue),
					output.FormatPnL(h.PnL),
					output.FormatPercent(h.PnLPercent),
					output.FormatPnL(h.DayChange),
				)
			}
			table.Render()
			output.Println()
			output.Printf("Invested %s  Current %s  P&L %s\n", FormatIndianCurrency(invested), FormatIndianCurrency(current), output.FormatPnL(current-invested))
			return nil
		},
	}
}

func newPositionsCmd(app *App) *cobra.Command {
	var closed bool
	cmd := &cobra.Command{
		Use:   "positions",
		Short: "Show open or closed positions",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if err := app.open(ctx); err != nil {
				return err
			}
			output := NewOutput(cmd)

			if closed {
				positions := app.Ledger.ClosedPositions()
				if output.IsJSON() {
					return output.JSON(positions)
				}
				if len(positions) == 0 {
					output.Dim("No closed positions")
					return nil
				}
				table := NewTable(output, "SYMBOL", "PRODUCT", "QTY", "AVG BUY", "AVG SELL", "P&L", "P&L%", "CLOSED")
				for _, p := range positions {
					table.AddRow(
						p.Symbol,
						string(p.Product),
						FormatQuantity(int64(p.Quantity)),
						fmt.Sprintf("%.2f", p.AverageBuyPrice),
						fmt.Sprintf("%.2f", p.AverageSellPrice),
						output.FormatPnL(p.FinalPnL),
						output.FormatPercent(p.PnLPercent),
						FormatDateTime(p.ClosedAt),
					)
				}
				table.Render()
				return nil
			}

			positions := app.Ledger.Positions(ctx)
			if output.IsJSON() {
				return output.JSON(positions)
			}
			if len(positions) == 0 {
				output.Dim("No open positions")
				return nil
			}
			table := NewTable(output, "SYMBOL", "PRODUCT", "QTY", "AVG", "LTP", "MARGIN", "UNREALIZED", "REALIZED")
			for _, p := range positions {
				table.AddRow(
					p.Symbol,
					string(p.Product),
					FormatQuantity(int64(p.Quantity)),
					fmt.Sprintf("%.2f", p.AveragePrice),
					fmt.Sprintf("%.2f", p.CurrentPrice),
					FormatIndianCurrency(p.MarginBlocked),
					output.FormatPnL(p.UnrealizedPnL),
					output.FormatPnL(p.RealizedPnL),
				)
			}
			table.Render()
			return nil
		},
	}
	cmd.Flags().BoolVar(&closed, "closed", false, "show closed positions")
	return cmd
}

func newPortfolioCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:     "portfolio",
		Aliases: []string{"summary"},
		Short:   "Show account summary",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if err := app.open(ctx); err != nil {
				return err
			}
			output := NewOutput(cmd)
			s := app.Ledger.Summary(ctx)

			if output.IsJSON() {
				return output.JSON(s)
			}
			output.Box("Portfolio", []string{
				fmt.Sprintf("Available balance:  %s", FormatIndianCurrency(s.AvailableBalance)),
				fmt.Sprintf("Used margin:        %s", FormatIndianCurrency(s.UsedMargin)),
				fmt.Sprintf("Invested:           %s", FormatIndianCurrency(s.TotalInvested)),
				fmt.Sprintf("Current value:      %s", FormatIndianCurrency(s.TotalValue)),
				fmt.Sprintf("Unrealized P&L:     %s (%s)", output.FormatPnL(s.TotalPnL), output.FormatPercent(s.TotalPnLPercent)),
				fmt.Sprintf("Day change:         %s (%s)", output.FormatPnL(s.DayChange), output.FormatPercent(s.DayChangePercent)),
				fmt.Sprintf("Realized P&L:       %s", output.FormatPnL(s.RealizedPnL)),
				fmt.Sprintf("Holdings/Positions: %d / %d", s.HoldingCount, s.PositionCount),
			})
			return nil
		},
	}
}

func newAnalyticsCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "analytics",
		Short: "Show performance and risk analytics",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if err := app.open(ctx); err != nil {
				return err
			}
			output := NewOutput(cmd)

			r := app.Analyzer.Analyze(analytics.Input{
				Holdings:        app.Ledger.Holdings(ctx),
				Positions:       app.Ledger.Positions(ctx),
				Closed:          app.Ledger.ClosedPositions(),
				OptionPositions: app.Ledger.OptionPositions(false),
			})

			if output.IsJSON() {
				return output.JSON(r)
			}

			output.Bold("Performance")
			output.Printf("  Total P&L:       %s\n", output.FormatPnL(r.TotalPnL))
			output.Printf("  Unrealized:      %s\n", output.FormatPnL(r.UnrealizedPnL))
			output.Printf("  Realized:        %s\n", output.FormatPnL(r.RealizedPnL))
			output.Printf("  Trades:          %d (%d won, %d lost)\n", r.TotalTrades, r.WinningTrades, r.LosingTrades)
			output.Printf("  Win rate:        %.1f%%\n", r.WinRate)
			output.Printf("  Avg win/loss:    %s / %s\n", FormatIndianCurrency(r.AvgWin), FormatIndianCurrency(r.AvgLoss))
			output.Printf("  Profit factor:   %.2f\n", r.ProfitFactor)
			output.Printf("  Max drawdown:    %.2f%%\n", r.MaxDrawdown)
			output.Printf("  Sharpe ratio:    %.2f\n", r.SharpeRatio)
			output.Println()

			output.Bold("Risk")
			output.Printf("  Volatility:      %.2f%%\n", r.Volatility)
			output.Printf("  Beta / Alpha:    %.2f / %.2f%%\n", r.Beta, r.Alpha)
			output.Printf("  VaR 95%% (1d):    %s\n", FormatIndianCurrency(r.VaR95))
			output.Printf("  VaR 99%% (1d):    %s\n", FormatIndianCurrency(r.VaR99))
			output.Printf("  Concentration:   %.1f%%\n", r.ConcentrationRisk)
			if r.ConcentrationRisk > 40 {
				output.Warning("  ⚠ Largest holding exceeds 40%% of portfolio value")
			}
			return nil
		},
	}
}
