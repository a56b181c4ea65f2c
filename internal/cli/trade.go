package cli

import (
	"fmt"
	"os"
	"strings"

	"github.com/gocarina/gocsv"
	"github.com/spf13/cobra"

	"tradekaro/internal/errors"
	"tradekaro/internal/ledger"
	"tradekaro/internal/models"
	"tradekaro/internal/store"
)

// addTradingCommands adds order placement and order book commands.
func addTradingCommands(rootCmd *cobra.Command, app *App) {
	rootCmd.AddCommand(newOrderCmd(app, models.OrderSideBuy))
	rootCmd.AddCommand(newOrderCmd(app, models.OrderSideSell))
	rootCmd.AddCommand(newOrdersCmd(app))
}

// orderFlags holds the flags shared by buy and sell.
type orderFlags struct {
	orderType string
	product   string
	validity  string
	price     float64
	trigger   float64
	stopLoss  float64
	target    float64
	tag       string
}

// request builds the order variant selected by --type.
func (f *orderFlags) request(symbol string, side models.OrderSide, qty int) (ledger.OrderRequest, error) {
	base := ledger.OrderBase{
		Symbol:   symbol,
		Side:     side,
		Quantity: qty,
		Product:  models.ProductType(strings.ToUpper(f.product)),
		Validity: models.Validity(strings.ToUpper(f.validity)),
		Tag:      f.tag,
	}
	switch models.OrderType(strings.ToUpper(f.orderType)) {
	case models.OrderTypeMarket:
		return ledger.MarketOrder{OrderBase: base}, nil
	case models.OrderTypeLimit:
		return ledger.LimitOrder{OrderBase: base, Price: f.price}, nil
	case models.OrderTypeStopLoss:
		return ledger.StopLossOrder{OrderBase: base, Price: f.price, TriggerPrice: f.trigger}, nil
	case models.OrderTypeStopLossM:
		return ledger.StopLossMarketOrder{OrderBase: base, TriggerPrice: f.trigger}, nil
	case models.OrderTypeBracket:
		return ledger.BracketOrder{OrderBase: base, StopLoss: f.stopLoss, Target: f.target}, nil
	case models.OrderTypeCover:
		return ledger.CoverOrder{OrderBase: base, StopLoss: f.stopLoss}, nil
	case models.OrderTypeGTT:
		return ledger.GTTOrder{OrderBase: base, TriggerPrice: f.trigger, Price: f.price}, nil
	}
	return nil, errors.NewValidationError("type", f.orderType, "must be MARKET, LIMIT, SL, SL-M, BRACKET, COVER or GTT")
}

func newOrderCmd(app *App, side models.OrderSide) *cobra.Command {
	var f orderFlags
	verb := strings.ToLower(string(side))
	cmd := &cobra.Command{
		Use:   verb + " <symbol> <quantity>",
		Short: fmt.Sprintf("Place a %s order", side),
		Long: fmt.Sprintf(`Place a %s order against the virtual account.

Order types:
  MARKET   execute now at the simulated price
  LIMIT    rest until the price reaches --price
  SL       limit at --price once --trigger trades
  SL-M     market once --trigger trades
  BRACKET  market entry with --sl and --target exits (MIS)
  COVER    market entry with a --sl exit (MIS)
  GTT      good-till-triggered at --trigger, filling at --price or market`, side),
		Example: fmt.Sprintf(`  tradekaro %[1]s RELIANCE 10
  tradekaro %[1]s INFY 5 --type LIMIT --price 1500
  tradekaro %[1]s NIFTY 75 --product NRML`, verb),
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if err := app.open(ctx); err != nil {
				return err
			}
			output := NewOutput(cmd)

			var qty int
			if _, err := fmt.Sscanf(args[1], "%d", &qty); err != nil {
				return errors.NewValidationError("quantity", args[1], "must be a whole number")
			}
			req, err := f.request(args[0], side, qty)
			if err != nil {
				return err
			}

			res := app.Ledger.PlaceOrder(ctx, req)
			return printResult(output, res)
		},
	}
	cmd.Flags().StringVarP(&f.orderType, "type", "t", "MARKET", "order type")
	cmd.Flags().StringVarP(&f.product, "product", "p", "", "product: CNC, MIS or NRML (default CNC, MIS for BRACKET and COVER)")
	cmd.Flags().StringVar(&f.validity, "validity", "", "validity: DAY, IOC or GTC (default DAY, GTC for GTT)")
	cmd.Flags().Float64Var(&f.price, "price", 0, "limit price")
	cmd.Flags().Float64Var(&f.trigger, "trigger", 0, "trigger price")
	cmd.Flags().Float64Var(&f.stopLoss, "sl", 0, "stop-loss price for BRACKET and COVER")
	cmd.Flags().Float64Var(&f.target, "target", 0, "target price for BRACKET")
	cmd.Flags().StringVar(&f.tag, "tag", "", "free-form order tag")
	return cmd
}

// printResult prints a ledger result and turns a failure into an error.
func printResult(output *Output, res ledger.Result) error {
	if output.IsJSON() {
		if err := output.JSON(res); err != nil {
			return err
		}
	} else if res.Success {
		output.Success("✓ %s", res.Message)
		if res.ID != "" {
			output.Dim("  ID: %s", res.ID)
		}
	} else {
		output.Error("✗ %s", res.Message)
	}
	if !res.Success {
		if res.Err != nil {
			return res.Err
		}
		return errors.New(res.Message)
	}
	return nil
}

func newOrdersCmd(app *App) *cobra.Command {
	var filter struct {
		symbol string
		side   string
		status string
		limit  int
	}
	list := func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if err := app.open(ctx); err != nil {
			return err
		}
		output := NewOutput(cmd)

		orders, err := app.Ledger.Orders(ctx, store.OrderFilter{
			Symbol: strings.ToUpper(filter.symbol),
			Side:   models.OrderSide(strings.ToUpper(filter.side)),
			Status: models.OrderStatus(strings.ToUpper(filter.status)),
			Limit:  filter.limit,
		})
		if err != nil {
			return err
		}
		if output.IsJSON() {
			return output.JSON(orders)
		}
		if len(orders) == 0 {
			output.Dim("No orders")
			return nil
		}

		table := NewTable(output, "ID", "TIME", "SYMBOL", "SIDE", "TYPE", "PRODUCT", "QTY", "PRICE", "STATUS", "NET")
		for _, o := range orders {
			price := o.AveragePrice
			if price == 0 {
				price = o.Price
			}
			table.AddRow(
				TruncateString(o.ID, 12),
				FormatDateTime(o.PlacedAt),
				o.Symbol,
				output.Side(string(o.Side)),
				string(o.Type),
				string(o.Product),
				FormatQuantity(int64(o.Quantity)),
				fmt.Sprintf("%.2f", price),
				output.Status(string(o.Status)),
				FormatIndianCurrency(o.NetAmount),
			)
		}
		table.Render()
		return nil
	}

	cmd := &cobra.Command{
		Use:   "orders",
		Short: "Order book",
		Long:  "List, cancel and export orders. Without a subcommand, lists orders newest first.",
		RunE:  list,
	}
	cmd.PersistentFlags().StringVar(&filter.symbol, "symbol", "", "filter by symbol")
	cmd.PersistentFlags().StringVar(&filter.side, "side", "", "filter by side")
	cmd.PersistentFlags().StringVar(&filter.status, "status", "", "filter by status")
	cmd.PersistentFlags().IntVar(&filter.limit, "limit", 50, "maximum orders to show (0 = all)")

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List orders newest first",
		RunE:  list,
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "cancel <order-id>",
		Short: "Cancel a pending order",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if err := app.open(ctx); err != nil {
				return err
			}
			return printResult(NewOutput(cmd), app.Ledger.CancelOrder(ctx, args[0]))
		},
	})

	cmd.AddCommand(newOrdersExportCmd(app))
	return cmd
}

// orderRow is the CSV layout of an exported order.
type orderRow struct {
	ID           string  `csv:"id"`
	ParentID     string  `csv:"parent_id"`
	PlacedAt     string  `csv:"placed_at"`
	Symbol       string  `csv:"symbol"`
	Exchange     string  `csv:"exchange"`
	Side         string  `csv:"side"`
	Type         string  `csv:"type"`
	Product      string  `csv:"product"`
	Quantity     int     `csv:"quantity"`
	Price        float64 `csv:"price"`
	TriggerPrice float64 `csv:"trigger_price"`
	AveragePrice float64 `csv:"average_price"`
	Status       string  `csv:"status"`
	Charges      float64 `csv:"charges"`
	NetAmount    float64 `csv:"net_amount"`
	Message      string  `csv:"message"`
}

func newOrderRow(o models.Order) *orderRow {
	return &orderRow{
		ID:           o.ID,
		ParentID:     o.ParentID,
		PlacedAt:     o.PlacedAt.Format("2006-01-02T15:04:05Z07:00"),
		Symbol:       o.Symbol,
		Exchange:     string(o.Exchange),
		Side:         string(o.Side),
		Type:         string(o.Type),
		Product:      string(o.Product),
		Quantity:     o.Quantity,
		Price:        o.Price,
		TriggerPrice: o.TriggerPrice,
		AveragePrice: o.AveragePrice,
		Status:       string(o.Status),
		Charges:      o.Charges.Total,
		NetAmount:    o.NetAmount,
		Message:      o.Message,
	}
}

func newOrdersExportCmd(app *App) *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export orders to CSV",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if err := app.open(ctx); err != nil {
				return err
			}
			orders, err := app.Ledger.Orders(ctx, store.OrderFilter{})
			if err != nil {
				return err
			}
			rows := make([]*orderRow, len(orders))
			for i, o := range orders {
				rows[i] = newOrderRow(o)
			}

			if file == "" || file == "-" {
				return gocsv.Marshal(&rows, cmd.OutOrStdout())
			}
			f, err := os.Create(file)
			if err != nil {
				return fmt.Errorf("creating %s: %w", file, err)
			}
			defer f.Close()
			if err := gocsv.MarshalFile(&rows, f); err != nil {
				return err
			}
			NewOutput(cmd).Success("✓ Exported %d orders to %s", len(rows), file)
			return nil
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "output file (default stdout)")
	return cmd
}
