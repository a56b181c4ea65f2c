package ledger

import (
	"context"
	"fmt"
	"math"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"tradekaro/internal/charges"
	"tradekaro/internal/errors"
	"tradekaro/internal/market"
	"tradekaro/internal/models"
	"tradekaro/internal/options"
	"tradekaro/internal/store"
)

const eps = 1e-6

var testNow = time.Date(2025, time.January, 10, 10, 0, 0, 0, options.IST)

type harness struct {
	ledger *Ledger
	sim    *market.Simulator
	repo   store.Repository
	now    time.Time
}

// clock advances a millisecond per read so order timestamps stay distinct.
func (h *harness) clock() time.Time {
	h.now = h.now.Add(time.Millisecond)
	return h.now
}

func newHarness(t *testing.T, balance float64) *harness {
	t.Helper()
	return newHarnessWithRepo(t, balance, store.NewMemoryStore())
}

func newHarnessWithRepo(t *testing.T, balance float64, repo store.Repository) *harness {
	t.Helper()

	h := &harness{
		sim:  market.NewSimulator(market.DefaultCatalogue(), market.StaticSource{}, 0, zerolog.Nop()),
		repo: repo,
		now:  testNow,
	}
	chain := options.NewChainGenerator(options.DefaultChainConfig(), market.StaticSource{Int: 4242}).WithClock(h.clock)

	seq := 0
	cfg := DefaultConfig()
	cfg.InitialBalance = balance
	l, err := New(context.Background(), repo, h.sim, cfg,
		WithClock(h.clock),
		WithChain(chain),
		WithIDGenerator(func() string {
			seq++
			return fmt.Sprintf("id-%d", seq)
		}),
	)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	h.ledger = l
	return h
}

func (h *harness) setPrice(t *testing.T, symbol string, price float64) {
	t.Helper()
	if err := h.sim.SetPrice(symbol, price); err != nil {
		t.Fatalf("SetPrice(%s): %v", symbol, err)
	}
}

func (h *harness) trade(t *testing.T, symbol string, side models.OrderSide, qty int, product models.ProductType) Result {
	t.Helper()
	return h.ledger.PlaceOrder(context.Background(), MarketOrder{OrderBase{Symbol: symbol, Side: side, Quantity: qty, Product: product}})
}

func approx(a, b float64) bool {
	return math.Abs(a-b) < eps
}

func holding(l *Ledger, symbol string) (models.Holding, bool) {
	for _, h := range l.Holdings(context.Background()) {
		if h.Symbol == symbol {
			return h, true
		}
	}
	return models.Holding{}, false
}

func position(l *Ledger, key string) (models.Position, bool) {
	for _, p := range l.Positions(context.Background()) {
		if p.Key() == key {
			return p, true
		}
	}
	return models.Position{}, false
}

func TestLedger_BuyThenSellReliance(t *testing.T) {
	h := newHarness(t, 500000)
	schedule := charges.DefaultSchedule()

	h.setPrice(t, "RELIANCE", 2400)
	res := h.trade(t, "RELIANCE", models.OrderSideBuy, 10, models.ProductCNC)
	if !res.Success {
		t.Fatalf("BUY failed: %s", res.Message)
	}

	buy := schedule.Compute(models.OrderSideBuy, 24000)
	wantBalance := 500000 - buy.NetFloat()
	if got := h.ledger.Balance(); !approx(got, wantBalance) {
		t.Errorf("balance = %.6f, want %.6f", got, wantBalance)
	}
	hd, ok := holding(h.ledger, "RELIANCE")
	if !ok || hd.Quantity != 10 || hd.AveragePrice != 2400 || hd.TotalInvested != 24000 {
		t.Fatalf("holding = %+v", hd)
	}

	h.setPrice(t, "RELIANCE", 2500)
	res = h.trade(t, "RELIANCE", models.OrderSideSell, 10, models.ProductCNC)
	if !res.Success {
		t.Fatalf("SELL failed: %s", res.Message)
	}

	sell := schedule.Compute(models.OrderSideSell, 25000)
	wantRealized := 1000 - sell.TotalFloat()
	if _, ok := holding(h.ledger, "RELIANCE"); ok {
		t.Error("holding not removed after full sell")
	}
	if _, ok := position(h.ledger, "RELIANCE:CNC"); ok {
		t.Error("position not removed after full sell")
	}
	closed := h.ledger.ClosedPositions()
	if len(closed) != 1 || !approx(closed[0].FinalPnL, wantRealized) {
		t.Fatalf("closed = %+v, want final P&L %.6f", closed, wantRealized)
	}
	if closed[0].AverageBuyPrice != 2400 || closed[0].AverageSellPrice != 2500 {
		t.Errorf("closed prices = %.2f / %.2f", closed[0].AverageBuyPrice, closed[0].AverageSellPrice)
	}
	wantBalance += sell.NetFloat()
	if got := h.ledger.Balance(); !approx(got, wantBalance) {
		t.Errorf("balance = %.6f, want %.6f", got, wantBalance)
	}

	orders, err := h.ledger.Orders(context.Background(), store.OrderFilter{})
	if err != nil {
		t.Fatalf("Orders: %v", err)
	}
	if len(orders) != 2 || orders[0].Side != models.OrderSideSell || orders[0].Status != models.OrderExecuted {
		t.Errorf("orders = %+v", orders)
	}
	if !approx(orders[0].Charges.Total, sell.TotalFloat()) {
		t.Errorf("sell charges = %.6f, want %.6f", orders[0].Charges.Total, sell.TotalFloat())
	}
}

func TestLedger_WeightedAverage(t *testing.T) {
	h := newHarness(t, 500000)

	h.setPrice(t, "ITC", 100)
	h.trade(t, "ITC", models.OrderSideBuy, 10, models.ProductCNC)
	h.setPrice(t, "ITC", 200)
	h.trade(t, "ITC", models.OrderSideBuy, 10, models.ProductCNC)

	hd, ok := holding(h.ledger, "ITC")
	if !ok {
		t.Fatal("holding missing")
	}
	if hd.Quantity != 20 || hd.AveragePrice != 150 || hd.TotalInvested != 3000 {
		t.Errorf("holding = qty %d avg %.2f invested %.2f, want 20/150/3000", hd.Quantity, hd.AveragePrice, hd.TotalInvested)
	}
	p, ok := position(h.ledger, "ITC:CNC")
	if !ok || p.AveragePrice != 150 || p.TotalInvested != 3000 {
		t.Errorf("position = %+v", p)
	}
}

func TestLedger_OversellFailsClosed(t *testing.T) {
	h := newHarness(t, 500000)
	h.setPrice(t, "TCS", 3500)
	h.trade(t, "TCS", models.OrderSideBuy, 10, models.ProductCNC)

	balance := h.ledger.Balance()
	before, _ := holding(h.ledger, "TCS")
	orders, _ := h.ledger.Orders(context.Background(), store.OrderFilter{})

	res := h.trade(t, "TCS", models.OrderSideSell, 11, models.ProductCNC)
	if res.Success {
		t.Fatal("oversell succeeded")
	}
	if !errors.Is(res.Err, errors.ErrInsufficientQuantity) {
		t.Errorf("err = %v, want ErrInsufficientQuantity", res.Err)
	}
	var ie *errors.InsufficientError
	if !errors.As(res.Err, &ie) || ie.Required != 11 || ie.Available != 10 {
		t.Errorf("insufficient error = %+v", ie)
	}

	after, _ := holding(h.ledger, "TCS")
	if h.ledger.Balance() != balance || after.Quantity != before.Quantity || after.TotalInvested != before.TotalInvested {
		t.Error("state mutated by rejected SELL")
	}
	again, _ := h.ledger.Orders(context.Background(), store.OrderFilter{})
	if len(again) != len(orders) {
		t.Errorf("order log grew from %d to %d", len(orders), len(again))
	}
}

func TestLedger_SellWithoutPosition(t *testing.T) {
	h := newHarness(t, 500000)
	res := h.trade(t, "INFY", models.OrderSideSell, 1, models.ProductCNC)
	if res.Success || !errors.Is(res.Err, errors.ErrPositionNotFound) {
		t.Errorf("result = %+v, want position not found", res)
	}
	if h.ledger.Balance() != 500000 {
		t.Error("balance changed")
	}
}

func TestLedger_PartialSellsArchive(t *testing.T) {
	h := newHarness(t, 500000)
	schedule := charges.DefaultSchedule()

	h.setPrice(t, "WIPRO", 100)
	h.trade(t, "WIPRO", models.OrderSideBuy, 10, models.ProductCNC)

	h.setPrice(t, "WIPRO", 120)
	if res := h.trade(t, "WIPRO", models.OrderSideSell, 4, models.ProductCNC); !res.Success {
		t.Fatalf("first sell: %s", res.Message)
	}
	r1 := 480 - 400 - schedule.Compute(models.OrderSideSell, 480).TotalFloat()

	p, ok := position(h.ledger, "WIPRO:CNC")
	if !ok || p.Quantity != 6 || !approx(p.TotalInvested, 600) || !approx(p.RealizedPnL, r1) {
		t.Fatalf("position after partial sell = %+v", p)
	}
	hd, _ := holding(h.ledger, "WIPRO")
	if hd.Quantity != 6 || !approx(hd.TotalInvested, 600) || hd.AveragePrice != 100 {
		t.Errorf("holding after partial sell = %+v", hd)
	}

	h.setPrice(t, "WIPRO", 90)
	if res := h.trade(t, "WIPRO", models.OrderSideSell, 6, models.ProductCNC); !res.Success {
		t.Fatalf("second sell: %s", res.Message)
	}
	r2 := 540 - 600 - schedule.Compute(models.OrderSideSell, 540).TotalFloat()

	closed := h.ledger.ClosedPositions()
	if len(closed) != 1 {
		t.Fatalf("closed = %d, want 1", len(closed))
	}
	if !approx(closed[0].FinalPnL, r1+r2) {
		t.Errorf("final P&L = %.6f, want %.6f", closed[0].FinalPnL, r1+r2)
	}
	if closed[0].Quantity != 10 || !approx(closed[0].AverageSellPrice, 102) {
		t.Errorf("closed = %+v", closed[0])
	}
	if s := h.ledger.Summary(context.Background()); !approx(s.RealizedPnL, r1+r2) {
		t.Errorf("summary realized = %.6f", s.RealizedPnL)
	}
}

func TestLedger_InsufficientFunds(t *testing.T) {
	h := newHarness(t, 1000)
	h.setPrice(t, "RELIANCE", 2400)

	res := h.trade(t, "RELIANCE", models.OrderSideBuy, 10, models.ProductCNC)
	if res.Success || !errors.Is(res.Err, errors.ErrInsufficientFunds) {
		t.Fatalf("result = %+v, want insufficient funds", res)
	}
	var ie *errors.InsufficientError
	if !errors.As(res.Err, &ie) || ie.Available != 1000 || ie.Required <= 24000 {
		t.Errorf("insufficient error = %+v", ie)
	}
	if len(h.ledger.Holdings(context.Background())) != 0 {
		t.Error("holding created by rejected BUY")
	}
}

func TestLedger_IndexMargin(t *testing.T) {
	h := newHarness(t, 500000)
	schedule := charges.DefaultSchedule()

	if res := h.trade(t, "NIFTY", models.OrderSideBuy, 75, models.ProductCNC); res.Success || !errors.Is(res.Err, errors.ErrInputValidation) {
		t.Errorf("CNC on index = %+v, want validation error", res)
	}
	if res := h.trade(t, "NIFTY", models.OrderSideBuy, 10, models.ProductNRML); res.Success || !errors.Is(res.Err, errors.ErrInputValidation) {
		t.Errorf("odd lot = %+v, want validation error", res)
	}

	res := h.trade(t, "NIFTY", models.OrderSideBuy, 75, models.ProductNRML)
	if !res.Success {
		t.Fatalf("BUY NIFTY: %s", res.Message)
	}
	buyFees := schedule.Compute(models.OrderSideBuy, 24000*75).TotalFloat()
	if got, want := h.ledger.Balance(), 500000-120000-buyFees; !approx(got, want) {
		t.Errorf("balance = %.6f, want %.6f", got, want)
	}
	if len(h.ledger.Holdings(context.Background())) != 0 {
		t.Error("index position created a delivery holding")
	}
	p, ok := position(h.ledger, "NIFTY:NRML")
	if !ok || p.MarginBlocked != 120000 || p.Kind != models.KindIndex {
		t.Fatalf("position = %+v", p)
	}
	if s := h.ledger.Summary(context.Background()); s.UsedMargin != 120000 {
		t.Errorf("used margin = %.2f", s.UsedMargin)
	}

	res = h.trade(t, "NIFTY", models.OrderSideSell, 75, models.ProductNRML)
	if !res.Success {
		t.Fatalf("SELL NIFTY: %s", res.Message)
	}
	sellFees := schedule.Compute(models.OrderSideSell, 24000*75).TotalFloat()
	if got, want := h.ledger.Balance(), 500000-buyFees-sellFees; !approx(got, want) {
		t.Errorf("balance after close = %.6f, want %.6f", got, want)
	}
}

func TestLedger_IndexInsufficientMargin(t *testing.T) {
	h := newHarness(t, 100000)
	res := h.trade(t, "BANKNIFTY", models.OrderSideBuy, 35, models.ProductMIS)
	if res.Success || !errors.Is(res.Err, errors.ErrInsufficientMargin) {
		t.Errorf("result = %+v, want insufficient margin", res)
	}
}

func TestLedger_LimitOrderFillsOnTick(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, 500000)

	res := h.ledger.PlaceOrder(ctx, LimitOrder{OrderBase: OrderBase{Symbol: "tcs", Side: models.OrderSideBuy, Quantity: 5}, Price: 3400})
	if !res.Success {
		t.Fatalf("LIMIT: %s", res.Message)
	}
	if h.ledger.Balance() != 500000 {
		t.Error("pending order moved cash")
	}

	results, err := h.ledger.ProcessTick(ctx)
	if err != nil || len(results) != 0 {
		t.Fatalf("tick at 3500 = %v, %v", results, err)
	}

	h.setPrice(t, "TCS", 3390)
	results, err = h.ledger.ProcessTick(ctx)
	if err != nil {
		t.Fatalf("ProcessTick: %v", err)
	}
	if len(results) != 1 || !results[0].Success || results[0].ID != res.ID {
		t.Fatalf("results = %+v", results)
	}
	o, err := h.ledger.Order(res.ID)
	if err != nil || o.Status != models.OrderExecuted || o.AveragePrice != 3400 {
		t.Errorf("order = %+v, %v", o, err)
	}
	if hd, ok := holding(h.ledger, "TCS"); !ok || hd.AveragePrice != 3400 || hd.Quantity != 5 {
		t.Errorf("holding = %+v", hd)
	}
}

func TestLedger_CancelOrder(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, 500000)

	res := h.ledger.PlaceOrder(ctx, StopLossMarketOrder{OrderBase: OrderBase{Symbol: "SBIN", Side: models.OrderSideBuy, Quantity: 1}, TriggerPrice: 800})
	if !res.Success {
		t.Fatalf("SL-M: %s", res.Message)
	}
	if c := h.ledger.CancelOrder(ctx, res.ID); !c.Success {
		t.Fatalf("cancel: %s", c.Message)
	}
	o, _ := h.ledger.Order(res.ID)
	if o.Status != models.OrderCancelled {
		t.Errorf("status = %s", o.Status)
	}
	if c := h.ledger.CancelOrder(ctx, res.ID); c.Success || !errors.Is(c.Err, errors.ErrOrderNotPending) {
		t.Errorf("second cancel = %+v", c)
	}
	if c := h.ledger.CancelOrder(ctx, "missing"); c.Success || !errors.Is(c.Err, errors.ErrOrderNotFound) {
		t.Errorf("unknown cancel = %+v", c)
	}

	h.setPrice(t, "SBIN", 810)
	if results, _ := h.ledger.ProcessTick(ctx); len(results) != 0 {
		t.Errorf("cancelled order filled: %+v", results)
	}
}

func TestLedger_PendingSellNeedsPosition(t *testing.T) {
	h := newHarness(t, 500000)
	res := h.ledger.PlaceOrder(context.Background(), LimitOrder{OrderBase: OrderBase{Symbol: "LT", Side: models.OrderSideSell, Quantity: 1}, Price: 3500})
	if res.Success || !errors.Is(res.Err, errors.ErrPositionNotFound) {
		t.Errorf("result = %+v", res)
	}
}

func TestLedger_BracketTargetCancelsStop(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, 500000)
	h.setPrice(t, "SBIN", 750)

	bad := h.ledger.PlaceOrder(ctx, BracketOrder{OrderBase: OrderBase{Symbol: "SBIN", Side: models.OrderSideBuy, Quantity: 10}, StopLoss: 745, Target: 748})
	if bad.Success || !errors.Is(bad.Err, errors.ErrInputValidation) {
		t.Errorf("target below entry = %+v", bad)
	}

	res := h.ledger.PlaceOrder(ctx, BracketOrder{OrderBase: OrderBase{Symbol: "SBIN", Side: models.OrderSideBuy, Quantity: 10}, StopLoss: 740, Target: 770})
	if !res.Success {
		t.Fatalf("bracket: %s", res.Message)
	}
	if _, ok := position(h.ledger, "SBIN:MIS"); !ok {
		t.Fatal("entry leg not executed as MIS")
	}
	pending, _ := h.ledger.Orders(ctx, store.OrderFilter{Status: models.OrderPending})
	if len(pending) != 2 {
		t.Fatalf("pending legs = %d, want 2", len(pending))
	}

	h.setPrice(t, "SBIN", 771)
	results, err := h.ledger.ProcessTick(ctx)
	if err != nil || len(results) != 1 || !results[0].Success {
		t.Fatalf("tick = %+v, %v", results, err)
	}

	var target, stop models.Order
	for _, o := range h.ledger.snap.Orders {
		if o.ParentID != res.ID {
			continue
		}
		if o.Type == models.OrderTypeLimit {
			target = o
		} else {
			stop = o
		}
	}
	if target.Status != models.OrderExecuted || target.AveragePrice != 770 {
		t.Errorf("target leg = %+v", target)
	}
	if stop.Status != models.OrderCancelled {
		t.Errorf("stop leg status = %s, want CANCELLED", stop.Status)
	}
	if _, ok := position(h.ledger, "SBIN:MIS"); ok {
		t.Error("position still open after target")
	}
}

func TestLedger_GTTTrigger(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, 500000)

	res := h.ledger.PlaceOrder(ctx, GTTOrder{OrderBase: OrderBase{Symbol: "INFY", Side: models.OrderSideBuy, Quantity: 2}, TriggerPrice: 1550})
	if !res.Success {
		t.Fatalf("GTT: %s", res.Message)
	}
	o, _ := h.ledger.Order(res.ID)
	if o.Validity != models.ValidityGTC {
		t.Errorf("validity = %s, want GTC", o.Validity)
	}

	h.setPrice(t, "INFY", 1540)
	if results, _ := h.ledger.ProcessTick(ctx); len(results) != 0 {
		t.Fatalf("fired below trigger: %+v", results)
	}
	h.setPrice(t, "INFY", 1560)
	results, _ := h.ledger.ProcessTick(ctx)
	if len(results) != 1 || !results[0].Success {
		t.Fatalf("results = %+v", results)
	}
	o, _ = h.ledger.Order(res.ID)
	if o.AveragePrice != 1560 {
		t.Errorf("filled at %.2f, want 1560", o.AveragePrice)
	}
}

func TestLedger_RejectedAtFill(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, 40000)

	res := h.ledger.PlaceOrder(ctx, LimitOrder{OrderBase: OrderBase{Symbol: "TCS", Side: models.OrderSideBuy, Quantity: 10}, Price: 3400})
	if !res.Success {
		t.Fatalf("LIMIT: %s", res.Message)
	}
	// Funds are not reserved, so a later market buy can spend them.
	if buy := h.trade(t, "TCS", models.OrderSideBuy, 2, models.ProductCNC); !buy.Success {
		t.Fatalf("market buy: %s", buy.Message)
	}
	balance := h.ledger.Balance()

	h.setPrice(t, "TCS", 3300)
	results, err := h.ledger.ProcessTick(ctx)
	if err != nil || len(results) != 1 {
		t.Fatalf("tick = %+v, %v", results, err)
	}
	if results[0].Success || !errors.Is(results[0].Err, errors.ErrInsufficientFunds) {
		t.Errorf("result = %+v", results[0])
	}
	o, _ := h.ledger.Order(res.ID)
	if o.Status != models.OrderRejected {
		t.Errorf("status = %s, want REJECTED", o.Status)
	}
	if h.ledger.Balance() != balance {
		t.Error("balance moved on rejection")
	}
}

func TestLedger_PendingBuyNeedsFunds(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, 500000)

	tests := []struct {
		name string
		req  OrderRequest
	}{
		{"limit", LimitOrder{OrderBase: OrderBase{Symbol: "RELIANCE", Side: models.OrderSideBuy, Quantity: 1000000}, Price: 2300}},
		{"stop loss", StopLossOrder{OrderBase: OrderBase{Symbol: "RELIANCE", Side: models.OrderSideBuy, Quantity: 300}, Price: 2500, TriggerPrice: 2490}},
		{"stop loss market", StopLossMarketOrder{OrderBase: OrderBase{Symbol: "RELIANCE", Side: models.OrderSideBuy, Quantity: 300}, TriggerPrice: 2490}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := h.ledger.PlaceOrder(ctx, tt.req)
			if res.Success || !errors.Is(res.Err, errors.ErrInsufficientFunds) {
				t.Fatalf("result = %+v", res)
			}
			var ie *errors.InsufficientError
			if !errors.As(res.Err, &ie) || ie.Available != 500000 || ie.Required <= ie.Available {
				t.Errorf("error = %v", res.Err)
			}
		})
	}

	orders, _ := h.ledger.Orders(ctx, store.OrderFilter{})
	if len(orders) != 0 || h.ledger.Balance() != 500000 {
		t.Errorf("rejected pending buys left %d orders, balance %.2f", len(orders), h.ledger.Balance())
	}

	ok := h.ledger.PlaceOrder(ctx, LimitOrder{OrderBase: OrderBase{Symbol: "RELIANCE", Side: models.OrderSideBuy, Quantity: 200}, Price: 2300})
	if !ok.Success {
		t.Errorf("affordable limit rejected: %s", ok.Message)
	}
}

func TestLedger_PriceFallback(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, 500000)

	if err := h.ledger.RecordPrices(ctx, map[string]float64{"ZOMATO": 200}); err != nil {
		t.Fatalf("RecordPrices: %v", err)
	}
	res := h.trade(t, "ZOMATO", models.OrderSideBuy, 5, models.ProductCNC)
	if !res.Success {
		t.Fatalf("BUY with last known price: %s", res.Message)
	}
	if hd, _ := holding(h.ledger, "ZOMATO"); hd.AveragePrice != 200 {
		t.Errorf("avg = %.2f, want 200", hd.AveragePrice)
	}

	res = h.trade(t, "UNKNOWN", models.OrderSideBuy, 1, models.ProductCNC)
	if res.Success || !errors.Is(res.Err, errors.ErrInputValidation) {
		t.Errorf("no price = %+v, want validation error", res)
	}
}

func TestLedger_Summary(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, 500000)

	h.setPrice(t, "RELIANCE", 2400)
	h.trade(t, "RELIANCE", models.OrderSideBuy, 10, models.ProductCNC)
	h.setPrice(t, "ITC", 450)
	h.trade(t, "ITC", models.OrderSideBuy, 100, models.ProductCNC)
	h.setPrice(t, "RELIANCE", 2500)

	s := h.ledger.Summary(ctx)
	total := 0.0
	for _, hd := range h.ledger.Holdings(ctx) {
		total += hd.CurrentValue
	}
	if !approx(s.TotalValue, total) || !approx(s.TotalValue, 25000+45000) {
		t.Errorf("total value = %.2f, want %.2f", s.TotalValue, total)
	}
	if !approx(s.TotalPnL, s.TotalValue-s.TotalInvested) || !approx(s.TotalPnL, 1000) {
		t.Errorf("total P&L = %.2f", s.TotalPnL)
	}
	if s.HoldingCount != 2 || s.PositionCount != 2 {
		t.Errorf("counts = %d/%d", s.HoldingCount, s.PositionCount)
	}
	if s.AvailableBalance != h.ledger.Balance() {
		t.Errorf("available = %.2f", s.AvailableBalance)
	}
}

func TestLedger_Reset(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, 500000)
	h.trade(t, "ITC", models.OrderSideBuy, 10, models.ProductCNC)

	if err := h.ledger.Reset(ctx, 100000); err != nil {
		t.Fatalf("Reset: %v", err)
	}
	if h.ledger.Balance() != 100000 || h.ledger.InitialBalance() != 100000 {
		t.Errorf("balance = %.2f", h.ledger.Balance())
	}
	orders, _ := h.ledger.Orders(ctx, store.OrderFilter{})
	if len(h.ledger.Holdings(ctx)) != 0 || len(orders) != 0 {
		t.Error("state survived reset")
	}
	if err := h.ledger.Reset(ctx, -1); !errors.Is(err, errors.ErrInputValidation) {
		t.Errorf("negative reset = %v", err)
	}
}

// flakyRepo wraps a repository and fails Commit while failCommit is set.
type flakyRepo struct {
	store.Repository
	failCommit bool
}

func (r *flakyRepo) Commit(ctx context.Context, cs *store.Changeset) error {
	if r.failCommit {
		return fmt.Errorf("database is locked")
	}
	return r.Repository.Commit(ctx, cs)
}

func TestLedger_ResetCommitFailureKeepsState(t *testing.T) {
	ctx := context.Background()
	repo := &flakyRepo{Repository: store.NewMemoryStore()}
	h := newHarnessWithRepo(t, 500000, repo)
	h.trade(t, "ITC", models.OrderSideBuy, 10, models.ProductCNC)
	balance := h.ledger.Balance()

	repo.failCommit = true
	if err := h.ledger.Reset(ctx, 100000); !errors.Is(err, errors.ErrDatabaseError) {
		t.Fatalf("Reset = %v, want ErrDatabaseError", err)
	}
	if got := h.ledger.Balance(); got != balance {
		t.Errorf("balance after failed reset = %.2f, want %.2f", got, balance)
	}
	if s := h.ledger.Summary(ctx); s.AvailableBalance != balance {
		t.Errorf("summary balance = %.2f", s.AvailableBalance)
	}

	repo.failCommit = false
	if err := h.ledger.Reset(ctx, 100000); err != nil {
		t.Fatalf("Reset: %v", err)
	}
	if h.ledger.Balance() != 100000 || len(h.ledger.Holdings(ctx)) != 0 {
		t.Errorf("after reset: balance %.2f, holdings %d", h.ledger.Balance(), len(h.ledger.Holdings(ctx)))
	}
}

func TestLedger_ReloadsFromStore(t *testing.T) {
	repo, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "ledger.db"))
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	defer repo.Close()

	h := newHarnessWithRepo(t, 500000, repo)
	h.setPrice(t, "HDFCBANK", 1650)
	h.trade(t, "HDFCBANK", models.OrderSideBuy, 20, models.ProductCNC)
	balance := h.ledger.Balance()

	again := newHarnessWithRepo(t, 999999, repo)
	if again.ledger.Balance() != balance {
		t.Errorf("reloaded balance = %.6f, want %.6f", again.ledger.Balance(), balance)
	}
	hd, ok := holding(again.ledger, "HDFCBANK")
	if !ok || hd.Quantity != 20 || hd.TotalInvested != 33000 {
		t.Errorf("reloaded holding = %+v", hd)
	}
	if again.ledger.Prices()["HDFCBANK"] != 1650 {
		t.Errorf("last known price not persisted")
	}
}

func TestOrderRequest_Validate(t *testing.T) {
	base := OrderBase{Symbol: "TCS", Side: models.OrderSideBuy, Quantity: 1}
	sell := OrderBase{Symbol: "TCS", Side: models.OrderSideSell, Quantity: 1}

	tests := []struct {
		name    string
		req     OrderRequest
		wantErr bool
	}{
		{"market", MarketOrder{base}, false},
		{"empty symbol", MarketOrder{OrderBase{Side: models.OrderSideBuy, Quantity: 1}}, true},
		{"zero quantity", MarketOrder{OrderBase{Symbol: "TCS", Side: models.OrderSideBuy}}, true},
		{"bad side", MarketOrder{OrderBase{Symbol: "TCS", Side: "HOLD", Quantity: 1}}, true},
		{"bad product", MarketOrder{OrderBase{Symbol: "TCS", Side: models.OrderSideBuy, Quantity: 1, Product: "BO"}}, true},
		{"limit", LimitOrder{base, 100}, false},
		{"limit zero price", LimitOrder{base, 0}, true},
		{"buy SL", StopLossOrder{base, 101, 100}, false},
		{"buy SL trigger above price", StopLossOrder{base, 100, 101}, true},
		{"sell SL", StopLossOrder{sell, 100, 101}, false},
		{"sell SL trigger below price", StopLossOrder{sell, 101, 100}, true},
		{"SL-M", StopLossMarketOrder{base, 100}, false},
		{"SL-M no trigger", StopLossMarketOrder{base, 0}, true},
		{"bracket", BracketOrder{base, 90, 110}, false},
		{"bracket inverted", BracketOrder{base, 110, 90}, true},
		{"sell bracket", BracketOrder{sell, 110, 90}, false},
		{"bracket CNC", BracketOrder{OrderBase{Symbol: "TCS", Side: models.OrderSideBuy, Quantity: 1, Product: models.ProductCNC}, 90, 110}, true},
		{"cover", CoverOrder{base, 90}, false},
		{"cover no stop", CoverOrder{base, 0}, true},
		{"gtt", GTTOrder{base, 100, 0}, false},
		{"gtt negative price", GTTOrder{base, 100, -1}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.req.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, errors.ErrInputValidation) {
				t.Errorf("error %v does not wrap ErrInputValidation", err)
			}
		})
	}
}
