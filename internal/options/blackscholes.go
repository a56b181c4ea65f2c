// Package options provides Black-Scholes pricing, Greeks, implied volatility,
// synthetic option chains, option margin and strategy payoff analysis.
package options

import (
	"math"

	"tradekaro/internal/errors"
	"tradekaro/internal/models"
)

// MinTimeToExpiry is the floor applied to T (in years) before pricing.
const MinTimeToExpiry = 0.001

type bsTerms struct {
	s, k, t, vol, r float64
	sqrtT           float64
	d1, d2          float64
	discount        float64 // e^(-rT)
}

func newTerms(spot, strike, t, vol, rate float64) (bsTerms, error) {
	if spot <= 0 || strike <= 0 || t <= 0 || vol <= 0 ||
		math.IsNaN(spot) || math.IsNaN(strike) || math.IsNaN(t) || math.IsNaN(vol) || math.IsNaN(rate) {
		return bsTerms{}, errors.NewPricingError(spot, strike, t, vol, "spot, strike, time and volatility must be positive")
	}
	if t < MinTimeToExpiry {
		t = MinTimeToExpiry
	}

	sqrtT := math.Sqrt(t)
	d1 := (math.Log(spot/strike) + (rate+vol*vol/2)*t) / (vol * sqrtT)
	return bsTerms{
		s:        spot,
		k:        strike,
		t:        t,
		vol:      vol,
		r:        rate,
		sqrtT:    sqrtT,
		d1:       d1,
		d2:       d1 - vol*sqrtT,
		discount: math.Exp(-rate * t),
	}, nil
}

func (b bsTerms) premium(typ models.OptionType) float64 {
	if typ == models.OptionCall {
		return b.s*NormCDF(b.d1) - b.k*b.discount*NormCDF(b.d2)
	}
	return b.k*b.discount*NormCDF(-b.d2) - b.s*NormCDF(-b.d1)
}

func finite(x float64) bool {
	return !math.IsNaN(x) && !math.IsInf(x, 0)
}

// Price returns the Black-Scholes premium of a European option.
// t is time to expiry in years, vol and rate are annualised decimals.
func Price(spot, strike, t, vol, rate float64, typ models.OptionType) (float64, error) {
	if !typ.Valid() {
		return 0, errors.NewValidationError("type", typ, "must be CE or PE")
	}
	b, err := newTerms(spot, strike, t, vol, rate)
	if err != nil {
		return 0, err
	}

	p := b.premium(typ)
	if !finite(p) {
		return 0, errors.NewPricingError(spot, strike, t, vol, "non-finite premium")
	}
	// Deep OTM contracts can round a hair below zero.
	return math.Max(p, 0), nil
}

// Greeks returns delta, gamma, theta (per day), vega (per 1% vol) and rho (per 1% rate).
func Greeks(spot, strike, t, vol, rate float64, typ models.OptionType) (models.OptionGreeks, error) {
	if !typ.Valid() {
		return models.OptionGreeks{}, errors.NewValidationError("type", typ, "must be CE or PE")
	}
	b, err := newTerms(spot, strike, t, vol, rate)
	if err != nil {
		return models.OptionGreeks{}, err
	}

	pdf := NormPDF(b.d1)
	decay := -b.s * pdf * b.vol / (2 * b.sqrtT)

	g := models.OptionGreeks{
		Gamma: pdf / (b.s * b.vol * b.sqrtT),
		Vega:  b.s * pdf * b.sqrtT / 100,
	}
	if typ == models.OptionCall {
		g.Delta = NormCDF(b.d1)
		g.Theta = (decay - b.r*b.k*b.discount*NormCDF(b.d2)) / 365
		g.Rho = b.k * b.t * b.discount * NormCDF(b.d2) / 100
	} else {
		g.Delta = NormCDF(b.d1) - 1
		g.Theta = (decay + b.r*b.k*b.discount*NormCDF(-b.d2)) / 365
		g.Rho = -b.k * b.t * b.discount * NormCDF(-b.d2) / 100
	}

	if !finite(g.Delta) || !finite(g.Gamma) || !finite(g.Theta) || !finite(g.Vega) || !finite(g.Rho) {
		return models.OptionGreeks{}, errors.NewPricingError(spot, strike, t, vol, "non-finite greeks")
	}
	return g, nil
}

// Intrinsic returns the exercise value of an option at the given spot.
func Intrinsic(spot, strike float64, typ models.OptionType) float64 {
	if typ == models.OptionCall {
		return math.Max(spot-strike, 0)
	}
	return math.Max(strike-spot, 0)
}
