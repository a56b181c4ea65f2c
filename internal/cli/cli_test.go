package cli

import (
	"bytes"
	"encoding/json"
	"math"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"tradekaro/internal/config"
	"tradekaro/internal/errors"
	"tradekaro/internal/market"
	"tradekaro/internal/models"
	"tradekaro/internal/store"
)

func newTestApp(t *testing.T) *App {
	t.Helper()
	cfg := config.Default()
	cfg.Store.Driver = "memory"
	return &App{
		Config: cfg,
		Logger: zerolog.Nop(),
		Repo:   store.NewMemoryStore(),
		rng:    market.StaticSource{Int: 7},
	}
}

func run(app *App, args ...string) (string, error) {
	cmd := NewRootCmdWithApp(app)
	var buf bytes.Buffer
	cmd.SetOut(&buf)
	cmd.SetErr(&buf)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return buf.String(), err
}

func decode(t *testing.T, out string, v interface{}) {
	t.Helper()
	if err := json.Unmarshal([]byte(out), v); err != nil {
		t.Fatalf("decoding %q: %v", out, err)
	}
}

func TestVersionCmd(t *testing.T) {
	out, err := run(newTestApp(t), "version", "--json")
	if err != nil {
		t.Fatalf("version: %v", err)
	}
	var v map[string]string
	decode(t, out, &v)
	if v["version"] != Version {
		t.Errorf("version = %q", v["version"])
	}
}

func TestConfigPathCmd(t *testing.T) {
	app := newTestApp(t)
	out, err := run(app, "config", "path")
	if err != nil {
		t.Fatalf("config path: %v", err)
	}
	if strings.TrimSpace(out) != config.ConfigPath(app.Config.Dir) {
		t.Errorf("path = %q", out)
	}
	if app.Ledger != nil {
		t.Error("config path should not open the ledger")
	}
}

func TestBuyThenHoldings(t *testing.T) {
	app := newTestApp(t)

	out, err := run(app, "buy", "reliance", "10", "--json")
	if err != nil {
		t.Fatalf("buy: %v\n%s", err, out)
	}
	var res struct {
		Success bool   `json:"success"`
		ID      string `json:"id"`
	}
	decode(t, out, &res)
	if !res.Success || res.ID == "" {
		t.Fatalf("buy result = %s", out)
	}

	out, err = run(app, "holdings", "--json")
	if err != nil {
		t.Fatalf("holdings: %v", err)
	}
	var holdings []models.Holding
	decode(t, out, &holdings)
	if len(holdings) != 1 || holdings[0].Symbol != "RELIANCE" || holdings[0].Quantity != 10 {
		t.Errorf("holdings = %+v", holdings)
	}

	out, err = run(app, "orders", "list", "--json")
	if err != nil {
		t.Fatalf("orders: %v", err)
	}
	var orders []models.Order
	decode(t, out, &orders)
	if len(orders) != 1 || orders[0].Status != models.OrderExecuted {
		t.Errorf("orders = %+v", orders)
	}
}

func TestSellWithoutPosition(t *testing.T) {
	_, err := run(newTestApp(t), "sell", "INFY", "5")
	if !errors.Is(err, errors.ErrPositionNotFound) {
		t.Errorf("err = %v, want position not found", err)
	}
}

func TestOrderFlagValidation(t *testing.T) {
	app := newTestApp(t)
	tests := []struct {
		name string
		args []string
	}{
		{"unknown type", []string{"buy", "ITC", "1", "--type", "ICEBERG"}},
		{"non-numeric quantity", []string{"buy", "ITC", "ten"}},
		{"limit without price", []string{"buy", "ITC", "1", "--type", "LIMIT"}},
		{"bracket on CNC", []string{"buy", "ITC", "1", "--type", "BRACKET", "--sl", "1", "--target", "2", "--product", "CNC"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := run(app, tt.args...); !errors.Is(err, errors.ErrInputValidation) {
				t.Errorf("err = %v, want validation error", err)
			}
		})
	}
}

func TestLimitOrderCancel(t *testing.T) {
	app := newTestApp(t)
	out, err := run(app, "buy", "ITC", "5", "--type", "LIMIT", "--price", "1", "--json")
	if err != nil {
		t.Fatalf("limit: %v", err)
	}
	var res struct {
		ID string `json:"id"`
	}
	decode(t, out, &res)

	if _, err := run(app, "orders", "cancel", res.ID); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if _, err := run(app, "orders", "cancel", res.ID); !errors.Is(err, errors.ErrOrderNotPending) {
		t.Errorf("second cancel err = %v", err)
	}
}

func TestOrdersExportCSV(t *testing.T) {
	app := newTestApp(t)
	if _, err := run(app, "buy", "TCS", "2"); err != nil {
		t.Fatalf("buy: %v", err)
	}
	out, err := run(app, "orders", "export")
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(out), "\n")
	if len(lines) != 2 {
		t.Fatalf("csv lines = %d:\n%s", len(lines), out)
	}
	if !strings.HasPrefix(lines[0], "id,parent_id,placed_at,symbol") {
		t.Errorf("header = %s", lines[0])
	}
	if !strings.Contains(lines[1], ",TCS,NSE,BUY,MARKET,CNC,2,") {
		t.Errorf("row = %s", lines[1])
	}
}

func TestOptionPriceCmd(t *testing.T) {
	out, err := run(newTestApp(t), "options", "price",
		"--spot", "100", "--strike", "100", "--days", "365", "--vol", "0.2", "--rate", "0.05", "--type", "CE", "--json")
	if err != nil {
		t.Fatalf("price: %v", err)
	}
	var v map[string]float64
	decode(t, out, &v)
	if math.Abs(v["price"]-10.4506) > 0.01 {
		t.Errorf("price = %v, want ~10.45", v["price"])
	}
	if v["intrinsic"] != 0 {
		t.Errorf("intrinsic = %v", v["intrinsic"])
	}
}

func TestOptionIVCmd(t *testing.T) {
	out, err := run(newTestApp(t), "options", "iv",
		"--spot", "100", "--strike", "100", "--days", "365", "--rate", "0.05", "--premium", "10.4506", "--json")
	if err != nil {
		t.Fatalf("iv: %v", err)
	}
	var v map[string]float64
	decode(t, out, &v)
	if math.Abs(v["implied_volatility"]-0.2) > 1e-3 {
		t.Errorf("iv = %v, want ~0.2", v["implied_volatility"])
	}
}

func TestOptionChainCmd(t *testing.T) {
	out, err := run(newTestApp(t), "options", "chain", "NIFTY", "--json")
	if err != nil {
		t.Fatalf("chain: %v", err)
	}
	var v struct {
		Spot      float64                 `json:"spot"`
		Contracts []models.OptionContract `json:"contracts"`
	}
	decode(t, out, &v)
	if v.Spot != 24000 {
		t.Errorf("spot = %v", v.Spot)
	}
	if len(v.Contracts) != 42 {
		t.Errorf("contracts = %d, want 21 strikes x CE/PE", len(v.Contracts))
	}
}

func TestOptionStrategyCmd(t *testing.T) {
	out, err := run(newTestApp(t), "options", "strategy", "iron-condor", "NIFTY", "--json")
	if err != nil {
		t.Fatalf("strategy: %v", err)
	}
	var v struct {
		Strategy models.OptionStrategy `json:"strategy"`
		Analysis struct {
			UnlimitedLoss bool    `json:"unlimited_loss"`
			NetPremium    float64 `json:"net_premium"`
		} `json:"analysis"`
	}
	decode(t, out, &v)
	if len(v.Strategy.Legs) != 4 || v.Analysis.UnlimitedLoss || v.Analysis.NetPremium <= 0 {
		t.Errorf("iron condor = %s", out)
	}

	if _, err := run(newTestApp(t), "options", "strategy", "butterfly", "NIFTY"); !errors.Is(err, errors.ErrInputValidation) {
		t.Errorf("unknown preset err = %v", err)
	}
}

func TestOptionMarginCmd(t *testing.T) {
	out, err := run(newTestApp(t), "options", "margin", "--action", "BUY", "--premium", "100", "--spot", "24000", "--strike", "24000", "--json")
	if err != nil {
		t.Fatalf("margin: %v", err)
	}
	var v struct {
		Margin  float64 `json:"margin"`
		LotSize int     `json:"lot_size"`
	}
	decode(t, out, &v)
	if v.LotSize != 75 || v.Margin != 7500 {
		t.Errorf("margin = %+v", v)
	}
}

func TestFNOBuyListSquareOff(t *testing.T) {
	app := newTestApp(t)
	out, err := run(app, "fno", "buy", "NIFTY", "24000", "CE", "--json")
	if err != nil {
		t.Fatalf("fno buy: %v\n%s", err, out)
	}
	var res struct {
		ID string `json:"id"`
	}
	decode(t, out, &res)

	out, err = run(app, "fno", "list", "--json")
	if err != nil {
		t.Fatalf("fno list: %v", err)
	}
	var open []models.OptionPosition
	decode(t, out, &open)
	if len(open) != 1 || open[0].ID != res.ID || open[0].LotSize != 75 {
		t.Fatalf("open = %+v", open)
	}

	if _, err := run(app, "fno", "squareoff", res.ID); err != nil {
		t.Fatalf("squareoff: %v", err)
	}
	out, _ = run(app, "fno", "list", "--json")
	decode(t, out, &open)
	if len(open) != 0 {
		t.Errorf("still open after square off: %+v", open)
	}
}

func TestPortfolioAndAnalytics(t *testing.T) {
	app := newTestApp(t)
	if _, err := run(app, "buy", "ITC", "100"); err != nil {
		t.Fatalf("buy: %v", err)
	}

	out, err := run(app, "portfolio", "--json")
	if err != nil {
		t.Fatalf("portfolio: %v", err)
	}
	var s models.PortfolioSummary
	decode(t, out, &s)
	if s.HoldingCount != 1 || s.AvailableBalance >= 500000 {
		t.Errorf("summary = %+v", s)
	}

	out, err = run(app, "analytics")
	if err != nil {
		t.Fatalf("analytics: %v", err)
	}
	if !strings.Contains(out, "Concentration:   100.0%") {
		t.Errorf("analytics output:\n%s", out)
	}
}

func TestResetCmd(t *testing.T) {
	app := newTestApp(t)
	if _, err := run(app, "buy", "ITC", "10"); err != nil {
		t.Fatalf("buy: %v", err)
	}
	out, err := run(app, "reset", "--balance", "100000", "--json")
	if err != nil {
		t.Fatalf("reset: %v", err)
	}
	var v map[string]float64
	decode(t, out, &v)
	if v["balance"] != 100000 {
		t.Errorf("balance = %v", v["balance"])
	}
	out, _ = run(app, "holdings", "--json")
	var holdings []models.Holding
	decode(t, out, &holdings)
	if len(holdings) != 0 {
		t.Errorf("holdings after reset = %+v", holdings)
	}
}

func TestSimulateCmd(t *testing.T) {
	app := newTestApp(t)
	out, err := run(app, "simulate", "--duration", "60ms", "--interval", "10ms", "--json")
	if err != nil {
		t.Fatalf("simulate: %v\n%s", err, out)
	}
	var v struct {
		Tasks []struct {
			Name string `json:"name"`
			Runs uint64 `json:"runs"`
		} `json:"tasks"`
	}
	decode(t, out, &v)
	if len(v.Tasks) != 5 || v.Tasks[0].Name != "prices" {
		t.Errorf("tasks = %+v", v.Tasks)
	}
	if len(app.Ledger.Prices()) == 0 {
		t.Error("prices were not persisted")
	}
}
