package options

import (
	"math"
	"sort"
	"time"

	"tradekaro/internal/errors"
	"tradekaro/internal/models"
)

// StrategyAnalysis is the derived expiry profile of a set of legs.
// MaxProfit and MaxLoss hold the extreme over the evaluated grid; when the
// matching Unlimited flag is set the true extreme is unbounded.
type StrategyAnalysis struct {
	MaxProfit       float64   `json:"max_profit"`
	MaxLoss         float64   `json:"max_loss"`
	UnlimitedProfit bool      `json:"unlimited_profit"`
	UnlimitedLoss   bool      `json:"unlimited_loss"`
	Breakevens      []float64 `json:"breakevens"`
	RiskReward      float64   `json:"risk_reward"` // |maxLoss| / maxProfit, 0 when undefined
	NetPremium      float64   `json:"net_premium"` // positive = credit received
}

// PayoffPoint is one sample of the expiry payoff curve.
type PayoffPoint struct {
	Spot   float64 `json:"spot"`
	Payoff float64 `json:"payoff"`
}

func legSign(l models.OptionLeg) float64 {
	if l.Action == models.OrderSideSell {
		return -1
	}
	return 1
}

// Payoff returns the strategy P&L at expiry for an underlying price.
func Payoff(legs []models.OptionLeg, spot float64) float64 {
	total := 0.0
	for _, l := range legs {
		total += legSign(l) * (Intrinsic(spot, l.Strike, l.Type) - l.Premium) * float64(l.Quantity)
	}
	return total
}

// tailSlope is dP/dS for spot beyond the highest strike; only calls contribute.
func tailSlope(legs []models.OptionLeg) float64 {
	slope := 0.0
	for _, l := range legs {
		if l.Type == models.OptionCall {
			slope += legSign(l) * float64(l.Quantity)
		}
	}
	return slope
}

func kinks(legs []models.OptionLeg) []float64 {
	seen := make(map[float64]bool, len(legs))
	points := []float64{0}
	for _, l := range legs {
		if !seen[l.Strike] {
			seen[l.Strike] = true
			points = append(points, l.Strike)
		}
	}
	sort.Float64s(points)
	return points
}

// AnalyzeStrategy evaluates the payoff exactly at zero and every strike (the
// payoff is linear in between), then inspects the slope past the last strike.
func AnalyzeStrategy(legs []models.OptionLeg) (StrategyAnalysis, error) {
	if len(legs) == 0 {
		return StrategyAnalysis{}, errors.NewValidationError("legs", 0, "strategy needs at least one leg")
	}
	for i, l := range legs {
		if !l.Type.Valid() || !l.Action.Valid() || l.Strike <= 0 || l.Quantity <= 0 || l.Premium < 0 {
			return StrategyAnalysis{}, errors.NewValidationError("legs", i, "invalid leg")
		}
	}

	points := kinks(legs)
	values := make([]float64, len(points))
	for i, s := range points {
		values[i] = Payoff(legs, s)
	}

	a := StrategyAnalysis{
		MaxProfit: math.Inf(-1),
		MaxLoss:   math.Inf(1),
	}
	for _, v := range values {
		a.MaxProfit = math.Max(a.MaxProfit, v)
		a.MaxLoss = math.Min(a.MaxLoss, v)
	}

	slope := tailSlope(legs)
	a.UnlimitedProfit = slope > 0
	a.UnlimitedLoss = slope < 0

	a.Breakevens = breakevens(points, values, slope)

	for _, l := range legs {
		a.NetPremium -= legSign(l) * l.Premium * float64(l.Quantity)
	}

	if !a.UnlimitedProfit && !a.UnlimitedLoss && a.MaxProfit > 0 && a.MaxLoss < 0 {
		a.RiskReward = math.Abs(a.MaxLoss) / a.MaxProfit
	}
	return a, nil
}

func breakevens(points, values []float64, slope float64) []float64 {
	var out []float64
	add := func(x float64) {
		x = round2(x)
		if len(out) == 0 || out[len(out)-1] != x {
			out = append(out, x)
		}
	}

	for i := 0; i < len(points); i++ {
		if values[i] == 0 {
			add(points[i])
		}
		if i+1 < len(points) && values[i]*values[i+1] < 0 {
			x0, x1 := points[i], points[i+1]
			y0, y1 := values[i], values[i+1]
			add(x0 - y0*(x1-x0)/(y1-y0))
		}
	}

	last := len(points) - 1
	if slope != 0 && values[last]*slope < 0 {
		add(points[last] - values[last]/slope)
	}
	return out
}

// PayoffCurve samples the payoff from lo to hi inclusive.
func PayoffCurve(legs []models.OptionLeg, lo, hi float64, steps int) []PayoffPoint {
	if steps < 1 {
		steps = 1
	}
	curve := make([]PayoffPoint, 0, steps+1)
	for i := 0; i <= steps; i++ {
		s := lo + (hi-lo)*float64(i)/float64(steps)
		curve = append(curve, PayoffPoint{Spot: s, Payoff: Payoff(legs, s)})
	}
	return curve
}

// Preset names accepted by BuildPreset.
const (
	PresetBullCallSpread = "bull-call-spread"
	PresetBearPutSpread  = "bear-put-spread"
	PresetLongStraddle   = "long-straddle"
	PresetShortStrangle  = "short-strangle"
	PresetIronCondor     = "iron-condor"
)

// Presets lists the supported preset names.
func Presets() []string {
	return []string{PresetBullCallSpread, PresetBearPutSpread, PresetLongStraddle, PresetShortStrangle, PresetIronCondor}
}

type presetLeg struct {
	action models.OrderSide
	typ    models.OptionType
	offset int // strike steps from ATM
}

var presetLegs = map[string][]presetLeg{
	PresetBullCallSpread: {
		{models.OrderSideBuy, models.OptionCall, 0},
		{models.OrderSideSell, models.OptionCall, 2},
	},
	PresetBearPutSpread: {
		{models.OrderSideBuy, models.OptionPut, 0},
		{models.OrderSideSell, models.OptionPut, -2},
	},
	PresetLongStraddle: {
		{models.OrderSideBuy, models.OptionCall, 0},
		{models.OrderSideBuy, models.OptionPut, 0},
	},
	PresetShortStrangle: {
		{models.OrderSideSell, models.OptionCall, 2},
		{models.OrderSideSell, models.OptionPut, -2},
	},
	PresetIronCondor: {
		{models.OrderSideBuy, models.OptionPut, -4},
		{models.OrderSideSell, models.OptionPut, -2},
		{models.OrderSideSell, models.OptionCall, 2},
		{models.OrderSideBuy, models.OptionCall, 4},
	},
}

// BuildPreset assembles a named strategy around the ATM strike using premiums
// from chain for the given expiry. qty is the per-leg unit count.
func BuildPreset(name string, chain []models.OptionContract, spot, step float64, expiry time.Time, qty int) (models.OptionStrategy, error) {
	legs, ok := presetLegs[name]
	if !ok {
		return models.OptionStrategy{}, errors.NewValidationError("strategy", name, "unknown preset")
	}
	if step <= 0 {
		return models.OptionStrategy{}, errors.NewValidationError("step", step, "must be positive")
	}
	if qty <= 0 {
		return models.OptionStrategy{}, errors.NewValidationError("quantity", qty, "must be positive")
	}

	atm := math.Round(spot/step) * step
	strategy := models.OptionStrategy{Name: name}
	for _, pl := range legs {
		strike := atm + float64(pl.offset)*step
		c, ok := FindContract(chain, strike, expiry, pl.typ)
		if !ok {
			return models.OptionStrategy{}, errors.NewContractNotFound(models.ContractSymbol("", expiry, strike, pl.typ))
		}
		strategy.Legs = append(strategy.Legs, models.OptionLeg{
			Action:   pl.action,
			Type:     pl.typ,
			Strike:   strike,
			Quantity: qty,
			Premium:  c.Premium,
		})
	}
	return strategy, nil
}

// FindContract looks up a contract in a chain.
func FindContract(chain []models.OptionContract, strike float64, expiry time.Time, typ models.OptionType) (models.OptionContract, bool) {
	for _, c := range chain {
		if c.Strike == strike && c.Type == typ && c.Expiry.Equal(expiry) {
			return c, true
		}
	}
	return models.OptionContract{}, false
}
