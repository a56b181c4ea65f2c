package options

import (
	"math"
	"time"

	"tradekaro/internal/errors"
	"tradekaro/internal/market"
	"tradekaro/internal/metrics"
	"tradekaro/internal/models"
)

const (
	bidFactor = 0.995
	askFactor = 1.005
)

// ChainConfig controls the shape of a generated chain.
type ChainConfig struct {
	StrikeStep      float64
	StrikesEachSide int
	Expiries        int
	RiskFreeRate    float64
	DefaultLotSize  int
	LotSizes        map[string]int
}

// DefaultChainConfig returns 21 strikes 50 apart over three monthly expiries.
func DefaultChainConfig() ChainConfig {
	return ChainConfig{
		StrikeStep:      50,
		StrikesEachSide: 10,
		Expiries:        3,
		RiskFreeRate:    0.065,
		DefaultLotSize:  1,
		LotSizes: map[string]int{
			"NIFTY":     75,
			"BANKNIFTY": 35,
			"FINNIFTY":  65,
		},
	}
}

// LotSize returns the contract multiplier for an underlying.
func (c ChainConfig) LotSize(symbol string) int {
	if size, ok := c.LotSizes[symbol]; ok && size > 0 {
		return size
	}
	if c.DefaultLotSize > 0 {
		return c.DefaultLotSize
	}
	return 1
}

// ChainGenerator builds synthetic option chains priced with Black-Scholes.
type ChainGenerator struct {
	cfg     ChainConfig
	rng     market.RandomSource
	now     func() time.Time
	metrics *metrics.Recorder
}

// NewChainGenerator creates a generator drawing volume and OI from rng.
func NewChainGenerator(cfg ChainConfig, rng market.RandomSource) *ChainGenerator {
	if cfg.StrikeStep <= 0 {
		cfg.StrikeStep = 50
	}
	if cfg.Expiries <= 0 {
		cfg.Expiries = 3
	}
	return &ChainGenerator{
		cfg: cfg,
		rng: rng,
		now: time.Now,
	}
}

// WithClock overrides the time source.
func (g *ChainGenerator) WithClock(now func() time.Time) *ChainGenerator {
	g.now = now
	return g
}

// WithMetrics records generation duration on m.
func (g *ChainGenerator) WithMetrics(m *metrics.Recorder) *ChainGenerator {
	g.metrics = m
	return g
}

// Config returns the generator configuration.
func (g *ChainGenerator) Config() ChainConfig {
	return g.cfg
}

// Expiries returns the expiries a chain generated now would contain.
func (g *ChainGenerator) Expiries() []time.Time {
	return MonthlyExpiries(g.now(), g.cfg.Expiries)
}

// Strikes returns the strike grid centred on spot rounded to the strike step.
// Non-positive strikes are dropped.
func (g *ChainGenerator) Strikes(spot float64) []float64 {
	step := g.cfg.StrikeStep
	atm := math.Round(spot/step) * step

	strikes := make([]float64, 0, 2*g.cfg.StrikesEachSide+1)
	for i := -g.cfg.StrikesEachSide; i <= g.cfg.StrikesEachSide; i++ {
		k := atm + float64(i)*step
		if k > 0 {
			strikes = append(strikes, k)
		}
	}
	return strikes
}

// GenerateChain prices CE and PE contracts for every strike and expiry.
// Contracts whose pricing fails are skipped.
func (g *ChainGenerator) GenerateChain(symbol string, spot, vol float64) ([]models.OptionContract, error) {
	if spot <= 0 || math.IsNaN(spot) {
		return nil, errors.NewValidationError("spot", spot, "must be positive")
	}
	if vol <= 0 || math.IsNaN(vol) {
		return nil, errors.NewValidationError("volatility", vol, "must be positive")
	}

	start := time.Now()
	now := g.now()
	strikes := g.Strikes(spot)
	expiries := MonthlyExpiries(now, g.cfg.Expiries)

	chain := make([]models.OptionContract, 0, len(strikes)*len(expiries)*2)
	for _, expiry := range expiries {
		t := YearsToExpiry(now, expiry)
		for _, strike := range strikes {
			for _, typ := range []models.OptionType{models.OptionCall, models.OptionPut} {
				c, err := g.price(symbol, spot, strike, vol, t, expiry, typ)
				if err != nil {
					continue
				}
				chain = append(chain, c)
			}
		}
	}

	g.metrics.ObserveChain(time.Since(start))
	return chain, nil
}

// Contract prices a single contract, which must lie on the generated grid.
func (g *ChainGenerator) Contract(symbol string, spot, vol, strike float64, expiry time.Time, typ models.OptionType) (models.OptionContract, error) {
	if !typ.Valid() {
		return models.OptionContract{}, errors.NewValidationError("type", typ, "must be CE or PE")
	}
	if !g.onGrid(spot, strike, expiry) {
		return models.OptionContract{}, errors.NewContractNotFound(models.ContractSymbol(symbol, expiry, strike, typ))
	}
	now := g.now()
	return g.price(symbol, spot, strike, vol, YearsToExpiry(now, expiry), expiry, typ)
}

func (g *ChainGenerator) onGrid(spot, strike float64, expiry time.Time) bool {
	strikeOK := false
	for _, k := range g.Strikes(spot) {
		if k == strike {
			strikeOK = true
			break
		}
	}
	if !strikeOK {
		return false
	}
	for _, e := range g.Expiries() {
		if e.Equal(expiry) {
			return true
		}
	}
	return false
}

func (g *ChainGenerator) price(symbol string, spot, strike, vol, t float64, expiry time.Time, typ models.OptionType) (models.OptionContract, error) {
	premium, err := Price(spot, strike, t, vol, g.cfg.RiskFreeRate, typ)
	if err != nil {
		return models.OptionContract{}, err
	}
	greeks, err := Greeks(spot, strike, t, vol, g.cfg.RiskFreeRate, typ)
	if err != nil {
		return models.OptionContract{}, err
	}

	return models.OptionContract{
		Symbol:            models.ContractSymbol(symbol, expiry, strike, typ),
		Underlying:        symbol,
		Strike:            strike,
		Expiry:            expiry,
		Type:              typ,
		LotSize:           g.cfg.LotSize(symbol),
		Premium:           round2(premium),
		Bid:               round2(premium * bidFactor),
		Ask:               round2(premium * askFactor),
		Volume:            int64(1000 + g.rng.Intn(99000)),
		OpenInterest:      int64(10000 + g.rng.Intn(990000)),
		ImpliedVolatility: vol,
		Greeks:            greeks,
	}, nil
}

func round2(x float64) float64 {
	return math.Round(x*100) / 100
}
