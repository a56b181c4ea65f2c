package cli

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"tradekaro/internal/errors"
	"tradekaro/internal/ledger"
	"tradekaro/internal/models"
)

// addFNOCommands adds option position commands.
func addFNOCommands(rootCmd *cobra.Command, app *App) {
	cmd := &cobra.Command{
		Use:   "fno",
		Short: "Trade index options",
		Long:  "Open, square off and list option positions on NIFTY, BANKNIFTY and FINNIFTY.",
	}
	cmd.AddCommand(newFNOOrderCmd(app, models.OrderSideBuy))
	cmd.AddCommand(newFNOOrderCmd(app, models.OrderSideSell))
	cmd.AddCommand(newFNOSquareOffCmd(app))
	cmd.AddCommand(newFNOListCmd(app))
	rootCmd.AddCommand(cmd)
}

func newFNOOrderCmd(app *App, side models.OrderSide) *cobra.Command {
	var (
		lots   int
		expiry string
	)
	verb := strings.ToLower(string(side))
	cmd := &cobra.Command{
		Use:     verb + " <underlying> <strike> <CE|PE>",
		Short:   fmt.Sprintf("Open a %s option position", side),
		Example: fmt.Sprintf("  tradekaro fno %s NIFTY 24000 CE --lots 2 --expiry 1", verb),
		Args:    cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if err := app.open(ctx); err != nil {
				return err
			}
			strike, err := strconv.ParseFloat(args[1], 64)
			if err != nil {
				return errors.NewValidationError("strike", args[1], "must be a number")
			}
			typ, err := parseOptionType(args[2])
			if err != nil {
				return err
			}
			exp, err := parseExpiry(expiry, app.Chain.Expiries())
			if err != nil {
				return err
			}

			res := app.Ledger.PlaceOptionOrder(ctx, ledger.OptionOrder{
				Underlying: args[0],
				Strike:     strike,
				Expiry:     exp,
				Type:       typ,
				Action:     side,
				Lots:       lots,
			})
			return printResult(NewOutput(cmd), res)
		},
	}
	cmd.Flags().IntVarP(&lots, "lots", "l", 1, "number of lots")
	cmd.Flags().StringVar(&expiry, "expiry", "", "expiry index (1 = nearest) or YYYY-MM-DD")
	return cmd
}

func newFNOSquareOffCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "squareoff <position-id|contract>",
		Short: "Close an open option position at the current premium",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if err := app.open(ctx); err != nil {
				return err
			}
			if _, err := app.Ledger.UpdateOptionPremiums(ctx); err != nil {
				app.Logger.Warn().Err(err).Msg("Option repricing failed")
			}
			return printResult(NewOutput(cmd), app.Ledger.SquareOffOption(ctx, args[0]))
		},
	}
}

func newFNOListCmd(app *App) *cobra.Command {
	var all bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List option positions",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if err := app.open(ctx); err != nil {
				return err
			}
			output := NewOutput(cmd)
			if _, err := app.Ledger.ExpireOptions(ctx); err != nil {
				return err
			}
			if _, err := app.Ledger.UpdateOptionPremiums(ctx); err != nil {
				return err
			}

			positions := app.Ledger.OptionPositions(!all)
			if output.IsJSON() {
				return output.JSON(positions)
			}
			if len(positions) == 0 {
				output.Dim("No option positions")
				return nil
			}

			table := NewTable(output, "ID", "CONTRACT", "ACTION", "LOTS", "ENTRY", "LTP", "MARGIN", "P&L", "STATUS")
			for _, p := range positions {
				pnl := p.PnL
				if p.Status != models.OptionPositionOpen {
					pnl = p.RealizedPnL
				}
				table.AddRow(
					TruncateString(p.ID, 12),
					p.Symbol,
					output.Side(string(p.Action)),
					fmt.Sprintf("%d x %d", p.Lots, p.LotSize),
					fmt.Sprintf("%.2f", p.EntryPremium),
					fmt.Sprintf("%.2f", p.CurrentPremium),
					FormatIndianCurrency(p.Margin),
					output.FormatPnL(pnl),
					output.Status(string(p.Status)),
				)
			}
			table.Render()
			return nil
		},
	}
	cmd.Flags().BoolVarP(&all, "all", "a", false, "include closed and expired positions")
	return cmd
}
