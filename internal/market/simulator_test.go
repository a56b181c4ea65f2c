package market

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/rs/zerolog"

	"tradekaro/internal/errors"
)

func newTestSimulator(rng RandomSource) *Simulator {
	return NewSimulator(DefaultCatalogue(), rng, 0.01, zerolog.Nop())
}

func TestSimulator_Quote(t *testing.T) {
	s := newTestSimulator(StaticSource{})

	q, err := s.Quote(context.Background(), "reliance")
	if err != nil {
		t.Fatalf("Quote: %v", err)
	}
	if q.LTP != 2450 || q.Close != 2450 || q.LotSize != 1 {
		t.Errorf("unexpected quote %+v", q)
	}

	nifty, err := s.Quote(context.Background(), "NIFTY")
	if err != nil {
		t.Fatalf("Quote: %v", err)
	}
	if nifty.LotSize != 75 || nifty.MarginPerLot != 120000 {
		t.Errorf("index quote missing lot metadata: %+v", nifty)
	}

	if _, err := s.Quote(context.Background(), "NOPE"); !errors.Is(err, errors.ErrSymbolNotFound) {
		t.Errorf("unknown symbol: got %v", err)
	}
}

func TestSimulator_QuoteIsCopy(t *testing.T) {
	s := newTestSimulator(StaticSource{})
	q, _ := s.Quote(context.Background(), "TCS")
	q.LTP = 1

	again, _ := s.Quote(context.Background(), "TCS")
	if again.LTP != 3500 {
		t.Errorf("mutating a returned quote leaked into the simulator")
	}
}

func TestSimulator_SetPrice(t *testing.T) {
	s := newTestSimulator(StaticSource{})

	if err := s.SetPrice("RELIANCE", 2500); err != nil {
		t.Fatalf("SetPrice: %v", err)
	}
	q, _ := s.Quote(context.Background(), "RELIANCE")
	if q.LTP != 2500 || q.High != 2500 || q.Change != 50 {
		t.Errorf("unexpected quote after SetPrice: %+v", q)
	}
	if math.Abs(q.ChangePercent-50.0/2450*100) > 1e-9 {
		t.Errorf("change percent = %v", q.ChangePercent)
	}

	if err := s.SetPrice("RELIANCE", -1); !errors.Is(err, errors.ErrInputValidation) {
		t.Errorf("negative price: got %v", err)
	}
	if err := s.SetPrice("NOPE", 10); !errors.Is(err, errors.ErrSymbolNotFound) {
		t.Errorf("unknown symbol: got %v", err)
	}
}

func TestSimulator_TickDeterministic(t *testing.T) {
	s := newTestSimulator(StaticSource{Normal: 1, Int: 10})
	if err := s.Tick(context.Background()); err != nil {
		t.Fatalf("Tick: %v", err)
	}

	q, _ := s.Quote(context.Background(), "ITC")
	want := roundToTick(450*math.Exp(0.01), 0.05)
	if math.Abs(q.LTP-want) > 1e-9 {
		t.Errorf("LTP = %v, want %v", q.LTP, want)
	}
	if q.Volume != 10 {
		t.Errorf("volume = %d, want 10", q.Volume)
	}
}

func TestSimulator_TickCancelled(t *testing.T) {
	s := newTestSimulator(StaticSource{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := s.Tick(ctx); err == nil {
		t.Error("expected context error")
	}
}

func TestSimulator_RestoreAndPrices(t *testing.T) {
	s := newTestSimulator(StaticSource{})
	s.Restore(map[string]float64{"INFY": 1600, "UNKNOWN": 10, "TCS": 0})

	prices := s.Prices()
	if prices["INFY"] != 1600 {
		t.Errorf("INFY = %v, want 1600", prices["INFY"])
	}
	if prices["TCS"] != 3500 {
		t.Errorf("TCS should keep base price, got %v", prices["TCS"])
	}
	if _, ok := prices["UNKNOWN"]; ok {
		t.Error("unknown symbol should not be restored")
	}

	q, _ := s.Quote(context.Background(), "INFY")
	if q.Close != 1600 || q.Change != 0 {
		t.Errorf("restored price should become previous close: %+v", q)
	}
}

func TestSimulator_InstrumentsOrdered(t *testing.T) {
	list := newTestSimulator(StaticSource{}).Instruments()
	if !list[0].IsIndex() || !list[1].IsIndex() || !list[2].IsIndex() {
		t.Errorf("indices should come first: %s %s %s", list[0].Symbol, list[1].Symbol, list[2].Symbol)
	}
	if list[3].IsIndex() {
		t.Errorf("expected equities after indices, got %s", list[3].Symbol)
	}
}

// TestProperty_TickStaysWithinCircuit tests that the walk never leaves the
// circuit band around previous close and stays on the tick grid.
func TestProperty_TickStaysWithinCircuit(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 50
	parameters.Rng.Seed(time.Now().UnixNano())

	properties := gopter.NewProperties(parameters)

	properties.Property("prices stay within ±10% of close", prop.ForAll(
		func(seed int64, ticks int) bool {
			s := NewSimulator(DefaultCatalogue(), NewRandomSource(seed), 0.05, zerolog.Nop())
			for i := 0; i < ticks; i++ {
				if err := s.Tick(context.Background()); err != nil {
					return false
				}
			}
			for _, inst := range s.Instruments() {
				q, _ := s.Quote(context.Background(), inst.Symbol)
				if q.LTP < q.Close*0.9-0.05 || q.LTP > q.Close*1.1+0.05 {
					t.Logf("%s LTP %.2f outside band of %.2f", inst.Symbol, q.LTP, q.Close)
					return false
				}
				if q.Low > q.LTP || q.High < q.LTP {
					return false
				}
			}
			return true
		},
		gen.Int64Range(1, 1<<40),
		gen.IntRange(1, 200),
	))

	properties.TestingRun(t)
}
