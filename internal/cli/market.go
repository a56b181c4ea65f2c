package cli

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"tradekaro/internal/errors"
	"tradekaro/internal/models"
	"tradekaro/internal/options"
)

// addMarketCommands adds quote and option pricing commands.
func addMarketCommands(rootCmd *cobra.Command, app *App) {
	rootCmd.AddCommand(newQuoteCmd(app))
	rootCmd.AddCommand(newOptionsCmd(app))
}

func newQuoteCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "quote [symbol...]",
		Short: "Show simulated quotes",
		Long:  "Show the current simulated quote for each symbol, or for the whole catalogue when none is given.",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if err := app.open(ctx); err != nil {
				return err
			}
			output := NewOutput(cmd)

			symbols := args
			if len(symbols) == 0 {
				for _, inst := range app.Market.Instruments() {
					symbols = append(symbols, inst.Symbol)
				}
			}

			quotes := make([]*models.Quote, 0, len(symbols))
			for _, s := range symbols {
				q, err := app.Market.Quote(ctx, strings.ToUpper(s))
				if err != nil {
					return err
				}
				quotes = append(quotes, q)
			}

			if output.IsJSON() {
				return output.JSON(quotes)
			}

			table := NewTable(output, "SYMBOL", "NAME", "LTP", "CHANGE", "OPEN", "HIGH", "LOW", "LOT")
			for _, q := range quotes {
				change := FormatChange(q.Change, q.ChangePercent)
				if q.Change > 0 {
					change = output.Green(change)
				} else if q.Change < 0 {
					change = output.Red(change)
				}
				table.AddRow(
					q.Symbol,
					TruncateString(q.Name, 24),
					fmt.Sprintf("%.2f", q.LTP),
					change,
					fmt.Sprintf("%.2f", q.Open),
					fmt.Sprintf("%.2f", q.High),
					fmt.Sprintf("%.2f", q.Low),
					fmt.Sprintf("%d", q.LotSize),
				)
			}
			table.Render()
			return nil
		},
	}
}

func newOptionsCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "options",
		Aliases: []string{"opt"},
		Short:   "Option pricing tools",
		Long:    "Generate option chains and price, analyze and margin option contracts.",
	}

	cmd.AddCommand(newOptionChainCmd(app))
	cmd.AddCommand(newOptionPriceCmd(app))
	cmd.AddCommand(newOptionGreeksCmd(app))
	cmd.AddCommand(newOptionIVCmd(app))
	cmd.AddCommand(newOptionMarginCmd(app))
	cmd.AddCommand(newOptionStrategyCmd(app))

	return cmd
}

func parseOptionType(s string) (models.OptionType, error) {
	switch strings.ToUpper(s) {
	case "CE", "CALL", "C":
		return models.OptionCall, nil
	case "PE", "PUT", "P":
		return models.OptionPut, nil
	}
	return "", errors.NewValidationError("type", s, "must be CE or PE")
}

func parseSide(s string) (models.OrderSide, error) {
	side := models.OrderSide(strings.ToUpper(s))
	if !side.Valid() {
		return "", errors.NewValidationError("action", s, "must be BUY or SELL")
	}
	return side, nil
}

// parseExpiry accepts an expiry index (1 = nearest) or a YYYY-MM-DD date.
func parseExpiry(s string, expiries []time.Time) (time.Time, error) {
	if s == "" {
		if len(expiries) == 0 {
			return time.Time{}, errors.Wrap(errors.ErrContractNotFound, "no expiries available")
		}
		return expiries[0], nil
	}
	var idx int
	if _, err := fmt.Sscanf(s, "%d", &idx); err == nil && !strings.Contains(s, "-") {
		if idx < 1 || idx > len(expiries) {
			return time.Time{}, errors.NewValidationError("expiry", s, fmt.Sprintf("must be between 1 and %d", len(expiries)))
		}
		return expiries[idx-1], nil
	}
	d, err := time.ParseInLocation("2006-01-02", s, options.IST)
	if err != nil {
		return time.Time{}, errors.NewValidationError("expiry", s, "must be an index or YYYY-MM-DD")
	}
	for _, e := range expiries {
		if e.In(options.IST).Format("2006-01-02") == d.Format("2006-01-02") {
			return e, nil
		}
	}
	return time.Time{}, errors.Wrapf(errors.ErrContractNotFound, "no expiry on %s", s)
}

// spotFor returns the simulator price of symbol.
func (a *App) spotFor(cmd *cobra.Command, symbol string) (float64, error) {
	q, err := a.Market.Quote(cmd.Context(), strings.ToUpper(symbol))
	if err != nil {
		return 0, err
	}
	return q.LTP, nil
}

func newOptionChainCmd(app *App) *cobra.Command {
	var (
		expiry  string
		vol     float64
		strikes int
	)
	cmd := &cobra.Command{
		Use:   "chain <symbol>",
		Short: "Show the option chain for an underlying",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := app.open(cmd.Context()); err != nil {
				return err
			}
			output := NewOutput(cmd)
			symbol := strings.ToUpper(args[0])

			spot, err := app.spotFor(cmd, symbol)
			if err != nil {
				return err
			}
			if vol == 0 {
				vol = app.Config.Pricing.DefaultVolatility
			}
			exp, err := parseExpiry(expiry, app.Chain.Expiries())
			if err != nil {
				return err
			}
			chain, err := app.Chain.GenerateChain(symbol, spot, vol)
			if err != nil {
				return err
			}

			var contracts []models.OptionContract
			for _, c := range chain {
				if c.Expiry.Equal(exp) && (strikes <= 0 || math.Abs(c.Strike-spot) <= float64(strikes)*app.Chain.Config().StrikeStep) {
					contracts = append(contracts, c)
				}
			}

			if output.IsJSON() {
				return output.JSON(map[string]interface{}{
					"underlying": symbol,
					"spot":       spot,
					"expiry":     exp,
					"contracts":  contracts,
				})
			}

			output.Bold("%s option chain  spot %.2f  expiry %s  (%d days)", symbol, spot, FormatDate(exp), options.DaysToExpiry(time.Now(), exp))
			output.Println()

			calls := make(map[float64]models.OptionContract)
			puts := make(map[float64]models.OptionContract)
			var grid []float64
			for _, c := range contracts {
				if c.Type == models.OptionCall {
					calls[c.Strike] = c
					grid = append(grid, c.Strike)
				} else {
					puts[c.Strike] = c
				}
			}
			sort.Float64s(grid)

			atm := math.Round(spot/app.Chain.Config().StrikeStep) * app.Chain.Config().StrikeStep
			table := NewTable(output, "CE OI", "CE Δ", "CE LTP", "STRIKE", "PE LTP", "PE Δ", "PE OI")
			for _, k := range grid {
				ce, pe := calls[k], puts[k]
				strike := fmt.Sprintf("%.0f", k)
				if k == atm {
					strike = output.Yellow(strike + " ◆")
				}
				table.AddRow(
					FormatVolume(ce.OpenInterest),
					fmt.Sprintf("%.3f", ce.Greeks.Delta),
					fmt.Sprintf("%.2f", ce.Premium),
					strike,
					fmt.Sprintf("%.2f", pe.Premium),
					fmt.Sprintf("%.3f", pe.Greeks.Delta),
					FormatVolume(pe.OpenInterest),
				)
			}
			table.Render()
			return nil
		},
	}
	cmd.Flags().StringVar(&expiry, "expiry", "", "expiry index (1 = nearest) or YYYY-MM-DD")
	cmd.Flags().Float64Var(&vol, "vol", 0, "volatility as a fraction (default from config)")
	cmd.Flags().IntVar(&strikes, "strikes", 0, "only show strikes within N steps of spot")
	return cmd
}

// pricingInputs holds the flags shared by price, greeks and iv.
type pricingInputs struct {
	spot   float64
	strike float64
	days   float64
	vol    float64
	rate   float64
	typ    string
}

func (p *pricingInputs) bind(cmd *cobra.Command, withVol bool) {
	cmd.Flags().Float64Var(&p.spot, "spot", 0, "underlying price")
	cmd.Flags().Float64Var(&p.strike, "strike", 0, "strike price")
	cmd.Flags().Float64Var(&p.days, "days", 30, "calendar days to expiry")
	cmd.Flags().Float64Var(&p.rate, "rate", -1, "risk-free rate as a fraction (default from config)")
	cmd.Flags().StringVar(&p.typ, "type", "CE", "option type: CE or PE")
	if withVol {
		cmd.Flags().Float64Var(&p.vol, "vol", 0, "volatility as a fraction (default from config)")
	}
	_ = cmd.MarkFlagRequired("spot")
	_ = cmd.MarkFlagRequired("strike")
}

func (p *pricingInputs) resolve(app *App) (models.OptionType, float64, error) {
	typ, err := parseOptionType(p.typ)
	if err != nil {
		return "", 0, err
	}
	if p.rate < 0 {
		p.rate = app.Config.Pricing.RiskFreeRate
	}
	if p.vol == 0 {
		p.vol = app.Config.Pricing.DefaultVolatility
	}
	return typ, p.days / 365, nil
}

func newOptionPriceCmd(app *App) *cobra.Command {
	var in pricingInputs
	cmd := &cobra.Command{
		Use:   "price",
		Short: "Price an option with Black-Scholes",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			typ, t, err := in.resolve(app)
			if err != nil {
				return err
			}
			price, err := options.Price(in.spot, in.strike, t, in.vol, in.rate, typ)
			if err != nil {
				return err
			}
			intrinsic := options.Intrinsic(in.spot, in.strike, typ)

			if output.IsJSON() {
				return output.JSON(map[string]float64{
					"price":      price,
					"intrinsic":  intrinsic,
					"time_value": price - intrinsic,
				})
			}
			output.Bold("%.0f %s  spot %.2f  %.0f days  σ %s  r %.2f%%", in.strike, typ, in.spot, in.days, FormatIV(in.vol), in.rate*100)
			output.Printf("  Premium:     %s\n", output.Cyan(fmt.Sprintf("%.2f", price)))
			output.Printf("  Intrinsic:   %.2f\n", intrinsic)
			output.Printf("  Time value:  %.2f\n", price-intrinsic)
			if g, err := options.Greeks(in.spot, in.strike, t, in.vol, in.rate, typ); err == nil {
				output.Printf("  Greeks:      %s\n", FormatGreeks(g))
			}
			return nil
		},
	}
	in.bind(cmd, true)
	return cmd
}

func newOptionGreeksCmd(app *App) *cobra.Command {
	var in pricingInputs
	cmd := &cobra.Command{
		Use:   "greeks",
		Short: "Compute option Greeks",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			typ, t, err := in.resolve(app)
			if err != nil {
				return err
			}
			g, err := options.Greeks(in.spot, in.strike, t, in.vol, in.rate, typ)
			if err != nil {
				return err
			}
			if output.IsJSON() {
				return output.JSON(g)
			}
			output.Bold("%.0f %s  spot %.2f  %.0f days  σ %s", in.strike, typ, in.spot, in.days, FormatIV(in.vol))
			output.Printf("  Delta:  %.4f\n", g.Delta)
			output.Printf("  Gamma:  %.6f\n", g.Gamma)
			output.Printf("  Theta:  %.4f per day\n", g.Theta)
			output.Printf("  Vega:   %.4f per 1%% vol\n", g.Vega)
			output.Printf("  Rho:    %.4f per 1%% rate\n", g.Rho)
			return nil
		},
	}
	in.bind(cmd, true)
	return cmd
}

func newOptionIVCmd(app *App) *cobra.Command {
	var (
		in      pricingInputs
		premium float64
	)
	cmd := &cobra.Command{
		Use:   "iv",
		Short: "Solve implied volatility from a market premium",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			typ, t, err := in.resolve(app)
			if err != nil {
				return err
			}
			iv, err := options.ImpliedVolatility(premium, in.spot, in.strike, t, in.rate, typ)
			if err != nil {
				return err
			}
			if output.IsJSON() {
				return output.JSON(map[string]float64{"implied_volatility": iv})
			}
			output.Printf("Implied volatility: %s\n", output.Cyan(FormatIV(iv)))
			return nil
		},
	}
	in.bind(cmd, false)
	cmd.Flags().Float64Var(&premium, "premium", 0, "observed option premium")
	_ = cmd.MarkFlagRequired("premium")
	return cmd
}

func newOptionMarginCmd(app *App) *cobra.Command {
	var (
		underlying string
		action     string
		typ        string
		premium    float64
		spot       float64
		strike     float64
		lots       int
	)
	cmd := &cobra.Command{
		Use:   "margin",
		Short: "Estimate margin for an option position",
		Long: `Estimate the margin blocked by an option position.

Buyers pay only the premium. Sellers block a SPAN-like estimate based on
spot, strike and premium.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			side, err := parseSide(action)
			if err != nil {
				return err
			}
			ot, err := parseOptionType(typ)
			if err != nil {
				return err
			}
			if lots <= 0 {
				return errors.NewValidationError("lots", lots, "must be positive")
			}
			lotSize := options.DefaultChainConfig().LotSize(strings.ToUpper(underlying))
			margin := options.Margin(side, ot, premium, spot, strike, lots, lotSize)

			if output.IsJSON() {
				return output.JSON(map[string]interface{}{
					"margin":   margin,
					"lot_size": lotSize,
					"lots":     lots,
				})
			}
			output.Printf("%s %d lot(s) x %d of %s %.0f %s @ %.2f\n", side, lots, lotSize, strings.ToUpper(underlying), strike, ot, premium)
			output.Printf("  Margin required: %s\n", output.Cyan(FormatIndianCurrency(margin)))
			return nil
		},
	}
	cmd.Flags().StringVar(&underlying, "underlying", "NIFTY", "underlying index (sets lot size)")
	cmd.Flags().StringVar(&action, "action", "SELL", "BUY or SELL")
	cmd.Flags().StringVar(&typ, "type", "CE", "option type: CE or PE")
	cmd.Flags().Float64Var(&premium, "premium", 0, "option premium")
	cmd.Flags().Float64Var(&spot, "spot", 0, "underlying price")
	cmd.Flags().Float64Var(&strike, "strike", 0, "strike price")
	cmd.Flags().IntVar(&lots, "lots", 1, "number of lots")
	_ = cmd.MarkFlagRequired("premium")
	_ = cmd.MarkFlagRequired("spot")
	_ = cmd.MarkFlagRequired("strike")
	return cmd
}

func newOptionStrategyCmd(app *App) *cobra.Command {
	var (
		expiry string
		lots   int
		curve  int
	)
	cmd := &cobra.Command{
		Use:   "strategy <preset> <symbol>",
		Short: "Analyze a preset multi-leg strategy",
		Long: fmt.Sprintf(`Build a preset strategy around the ATM strike and analyze its payoff at expiry.

Presets: %s`, strings.Join(options.Presets(), ", ")),
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := app.open(cmd.Context()); err != nil {
				return err
			}
			output := NewOutput(cmd)
			preset, symbol := strings.ToLower(args[0]), strings.ToUpper(args[1])

			spot, err := app.spotFor(cmd, symbol)
			if err != nil {
				return err
			}
			exp, err := parseExpiry(expiry, app.Chain.Expiries())
			if err != nil {
				return err
			}
			chain, err := app.Chain.GenerateChain(symbol, spot, app.Config.Pricing.DefaultVolatility)
			if err != nil {
				return err
			}
			lotSize := app.Chain.Config().LotSize(symbol)
			step := app.Chain.Config().StrikeStep
			strategy, err := options.BuildPreset(preset, chain, spot, step, exp, lots*lotSize)
			if err != nil {
				return err
			}
			analysis, err := options.AnalyzeStrategy(strategy.Legs)
			if err != nil {
				return err
			}

			var points []options.PayoffPoint
			if curve > 0 {
				points = options.PayoffCurve(strategy.Legs, spot*0.9, spot*1.1, curve)
			}

			if output.IsJSON() {
				return output.JSON(map[string]interface{}{
					"strategy": strategy,
					"analysis": analysis,
					"payoff":   points,
				})
			}

			output.Bold("%s on %s  spot %.2f  expiry %s", strategy.Name, symbol, spot, FormatDate(exp))
			table := NewTable(output, "ACTION", "TYPE", "STRIKE", "QTY", "PREMIUM")
			for _, l := range strategy.Legs {
				table.AddRow(output.Side(string(l.Action)), string(l.Type), fmt.Sprintf("%.0f", l.Strike), fmt.Sprintf("%d", l.Quantity), fmt.Sprintf("%.2f", l.Premium))
			}
			table.Render()
			output.Println()

			maxProfit := FormatIndianCurrency(analysis.MaxProfit)
			if analysis.UnlimitedProfit {
				maxProfit = "Unlimited"
			}
			maxLoss := FormatIndianCurrency(analysis.MaxLoss)
			if analysis.UnlimitedLoss {
				maxLoss = "Unlimited"
			}
			breakevens := make([]string, len(analysis.Breakevens))
			for i, b := range analysis.Breakevens {
				breakevens[i] = fmt.Sprintf("%.2f", b)
			}
			premiumLabel := "Net debit"
			if analysis.NetPremium > 0 {
				premiumLabel = "Net credit"
			}
			output.Box("Payoff at expiry", []string{
				fmt.Sprintf("Max profit:   %s", output.Green(maxProfit)),
				fmt.Sprintf("Max loss:     %s", output.Red(maxLoss)),
				fmt.Sprintf("Breakevens:   %s", strings.Join(breakevens, ", ")),
				fmt.Sprintf("Risk:reward:  %s", FormatRiskReward(analysis.RiskReward)),
				fmt.Sprintf("%s:   %s", premiumLabel, FormatIndianCurrency(math.Abs(analysis.NetPremium))),
			})

			if len(points) > 0 {
				output.Println()
				pt := NewTable(output, "SPOT", "PAYOFF")
				for _, p := range points {
					pt.AddRow(fmt.Sprintf("%.2f", p.Spot), output.FormatPnL(p.Payoff))
				}
				pt.Render()
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&expiry, "expiry", "", "expiry index (1 = nearest) or YYYY-MM-DD")
	cmd.Flags().IntVar(&lots, "lots", 1, "lots per leg")
	cmd.Flags().IntVar(&curve, "curve", 0, "sample the payoff curve at N+1 points across spot ±10%")
	return cmd
}
