package options

import (
	"math"
	"testing"
	"time"

	"tradekaro/internal/errors"
	"tradekaro/internal/market"
	"tradekaro/internal/models"
)

func fixedClock() time.Time {
	return time.Date(2025, time.January, 10, 10, 0, 0, 0, IST)
}

func newTestGenerator() *ChainGenerator {
	return NewChainGenerator(DefaultChainConfig(), market.StaticSource{Int: 4242}).WithClock(fixedClock)
}

func TestLastThursday(t *testing.T) {
	tests := []struct {
		year  int
		month time.Month
		day   int
	}{
		{2025, time.January, 30},
		{2025, time.February, 27},
		{2025, time.March, 27},
		{2025, time.April, 24},
		{2024, time.February, 29},
	}
	for _, tt := range tests {
		got := LastThursday(tt.year, tt.month)
		if got.Day() != tt.day || got.Weekday() != time.Thursday {
			t.Errorf("LastThursday(%d, %s) = %s", tt.year, tt.month, got)
		}
		if got.Hour() != 15 || got.Minute() != 30 {
			t.Errorf("expiry time = %s, want 15:30", got.Format("15:04"))
		}
	}
}

func TestMonthlyExpiries_YearRollover(t *testing.T) {
	now := time.Date(2025, time.November, 5, 9, 0, 0, 0, IST)
	exp := MonthlyExpiries(now, 3)
	want := []time.Month{time.December, time.January, time.February}
	for i, e := range exp {
		if e.Month() != want[i] {
			t.Errorf("expiry %d month = %s, want %s", i, e.Month(), want[i])
		}
	}
	if exp[1].Year() != 2026 {
		t.Errorf("January expiry year = %d, want 2026", exp[1].Year())
	}
}

func TestGenerateChain_Shape(t *testing.T) {
	chain, err := newTestGenerator().GenerateChain("NIFTY", 24012, 0.18)
	if err != nil {
		t.Fatalf("GenerateChain: %v", err)
	}

	if len(chain) != 3*21*2 {
		t.Fatalf("chain has %d contracts, want %d", len(chain), 3*21*2)
	}

	expiries := map[time.Time]bool{}
	for _, c := range chain {
		if math.Mod(c.Strike, 50) != 0 {
			t.Errorf("strike %.2f not a multiple of 50", c.Strike)
		}
		if c.Strike < 23500 || c.Strike > 24500 {
			t.Errorf("strike %.0f outside ATM ±10 steps", c.Strike)
		}
		if c.LotSize != 75 {
			t.Errorf("lot size = %d, want 75", c.LotSize)
		}
		if math.IsNaN(c.Premium) || c.Premium < 0 {
			t.Errorf("bad premium %v for %s", c.Premium, c.Symbol)
		}
		if c.Bid > c.Premium || c.Ask < c.Premium {
			t.Errorf("%s bid/ask %.2f/%.2f do not straddle premium %.2f", c.Symbol, c.Bid, c.Ask, c.Premium)
		}
		if c.ImpliedVolatility != 0.18 {
			t.Errorf("IV = %v, want input vol", c.ImpliedVolatility)
		}
		if c.Volume != 1000+4242 || c.OpenInterest != 10000+4242 {
			t.Errorf("volume/OI not from random source: %d/%d", c.Volume, c.OpenInterest)
		}
		expiries[c.Expiry] = true
	}
	if len(expiries) != 3 {
		t.Errorf("got %d expiries, want 3", len(expiries))
	}
}

func TestGenerateChain_FiltersNonPositiveStrikes(t *testing.T) {
	chain, err := newTestGenerator().GenerateChain("PENNY", 300, 0.3)
	if err != nil {
		t.Fatalf("GenerateChain: %v", err)
	}
	// ATM 300, strikes 50..800 survive.
	if len(chain) != 3*16*2 {
		t.Errorf("chain has %d contracts, want %d", len(chain), 3*16*2)
	}
	for _, c := range chain {
		if c.Strike <= 0 {
			t.Errorf("non-positive strike %v in chain", c.Strike)
		}
	}
}

func TestGenerateChain_InvalidInputs(t *testing.T) {
	g := newTestGenerator()
	if _, err := g.GenerateChain("NIFTY", 0, 0.2); !errors.Is(err, errors.ErrInputValidation) {
		t.Errorf("zero spot: got %v", err)
	}
	if _, err := g.GenerateChain("NIFTY", 24000, -1); !errors.Is(err, errors.ErrInputValidation) {
		t.Errorf("negative vol: got %v", err)
	}
}

func TestContract_OffGrid(t *testing.T) {
	g := newTestGenerator()
	expiry := g.Expiries()[0]

	c, err := g.Contract("NIFTY", 24000, 0.18, 24100, expiry, models.OptionCall)
	if err != nil {
		t.Fatalf("Contract on grid: %v", err)
	}
	if c.Symbol != "NIFTY25FEB24100CE" {
		t.Errorf("symbol = %s", c.Symbol)
	}

	if _, err := g.Contract("NIFTY", 24000, 0.18, 24125, expiry, models.OptionCall); !errors.Is(err, errors.ErrContractNotFound) {
		t.Errorf("off-grid strike: got %v", err)
	}
	if _, err := g.Contract("NIFTY", 24000, 0.18, 24100, expiry.AddDate(0, 0, 1), models.OptionCall); !errors.Is(err, errors.ErrContractNotFound) {
		t.Errorf("unknown expiry: got %v", err)
	}
}

func TestMargin(t *testing.T) {
	// BUY: premium × lots × lot size.
	if got := Margin(models.OrderSideBuy, models.OptionCall, 120, 24000, 24000, 2, 75); got != 120*150 {
		t.Errorf("buy margin = %v, want %v", got, 120*150)
	}

	// ATM sell: both legs give prem + 0.2S.
	atm := Margin(models.OrderSideSell, models.OptionCall, 100, 24000, 24000, 1, 75)
	if want := (100 + 0.2*24000) * 75; math.Abs(atm-want) > 1e-9 {
		t.Errorf("atm sell margin = %v, want %v", atm, want)
	}

	// Far OTM call: the put leg dominates, so the result ignores option type.
	call := Margin(models.OrderSideSell, models.OptionCall, 10, 24000, 30000, 1, 1)
	put := Margin(models.OrderSideSell, models.OptionPut, 10, 24000, 30000, 1, 1)
	if call != put {
		t.Errorf("sell margin differs by type: %v vs %v", call, put)
	}
	if want := 10 + math.Max(0.2*24000, 0.1*30000); call != want {
		t.Errorf("otm call sell margin = %v, want %v", call, want)
	}
}
