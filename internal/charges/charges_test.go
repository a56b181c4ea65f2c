package charges

import (
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/shopspring/decimal"

	"tradekaro/internal/models"
)

func mustDec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestCompute_BuyOneLakh(t *testing.T) {
	b := DefaultSchedule().Compute(models.OrderSideBuy, 100000)

	checks := []struct {
		name string
		got  decimal.Decimal
		want string
	}{
		{"brokerage", b.Brokerage, "20"},
		{"stt", b.STT, "1"},
		{"exchange", b.Exchange, "3.45"},
		{"gst", b.GST, "4.221"},
		{"sebi", b.SEBI, "0.1"},
		{"stamp", b.Stamp, "3"},
		{"total", b.Total, "31.771"},
		{"net", b.Net, "100031.771"},
	}
	for _, c := range checks {
		if !c.got.Equal(mustDec(c.want)) {
			t.Errorf("%s = %s, want %s", c.name, c.got, c.want)
		}
	}
}

func TestCompute_SellOneLakh(t *testing.T) {
	b := DefaultSchedule().Compute(models.OrderSideSell, 100000)

	if !b.STT.Equal(mustDec("25")) {
		t.Errorf("stt = %s, want 25", b.STT)
	}
	// 20 + 25 + 3.45 + 4.221 + 0.1 + 3
	if !b.Total.Equal(mustDec("55.771")) {
		t.Errorf("total = %s, want 55.771", b.Total)
	}
	if !b.Net.Equal(mustDec("99944.229")) {
		t.Errorf("net = %s, want 99944.229", b.Net)
	}
}

func TestCompute_BrokerageBelowCap(t *testing.T) {
	b := DefaultSchedule().Compute(models.OrderSideBuy, 24000)

	if !b.Brokerage.Equal(mustDec("7.2")) {
		t.Errorf("brokerage = %s, want 7.2", b.Brokerage)
	}
	if !b.GST.Equal(mustDec("1.44504")) {
		t.Errorf("gst = %s, want 1.44504", b.GST)
	}
	if !b.Total.Equal(mustDec("10.45704")) {
		t.Errorf("total = %s, want 10.45704", b.Total)
	}
}

func TestBreakdown_Charges(t *testing.T) {
	c := DefaultSchedule().Compute(models.OrderSideBuy, 100000).Charges()
	if c.Brokerage != 20 || c.StampDuty != 3 {
		t.Errorf("unexpected conversion: %+v", c)
	}
	if c.Total < 31.7709 || c.Total > 31.7711 {
		t.Errorf("total = %v, want 31.771", c.Total)
	}
}

func TestFromRates_MatchesDefault(t *testing.T) {
	s := FromRates(0.0003, 20, 0.00001, 0.00025, 0.0000345, 0.18, 0.000001, 0.00003)
	a := s.Compute(models.OrderSideSell, 54321)
	b := DefaultSchedule().Compute(models.OrderSideSell, 54321)
	if !a.Total.Equal(b.Total) {
		t.Errorf("config schedule total %s != default %s", a.Total, b.Total)
	}
}

// TestProperty_ChargesComponentsSum tests that the total is the exact sum of
// its components and that net moves in the right direction per side.
func TestProperty_ChargesComponentsSum(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	parameters.Rng.Seed(time.Now().UnixNano())

	properties := gopter.NewProperties(parameters)
	schedule := DefaultSchedule()

	properties.Property("total equals sum of components", prop.ForAll(
		func(value float64, sell bool) bool {
			side := models.OrderSideBuy
			if sell {
				side = models.OrderSideSell
			}
			b := schedule.Compute(side, value)
			sum := b.Brokerage.Add(b.STT).Add(b.Exchange).Add(b.GST).Add(b.SEBI).Add(b.Stamp)
			if !sum.Equal(b.Total) {
				t.Logf("sum %s != total %s", sum, b.Total)
				return false
			}
			if sell {
				return b.Net.Equal(b.Value.Sub(b.Total))
			}
			return b.Net.Equal(b.Value.Add(b.Total))
		},
		gen.Float64Range(1, 10000000),
		gen.Bool(),
	))

	properties.Property("brokerage never exceeds cap", prop.ForAll(
		func(value float64) bool {
			b := schedule.Compute(models.OrderSideBuy, value)
			return b.Brokerage.LessThanOrEqual(schedule.BrokerageCap)
		},
		gen.Float64Range(1, 10000000),
	))

	properties.TestingRun(t)
}
