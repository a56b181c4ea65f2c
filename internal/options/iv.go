package options

import (
	"math"

	"tradekaro/internal/errors"
	"tradekaro/internal/models"
)

const (
	ivInitialGuess  = 0.5
	ivTolerance     = 1e-6
	ivMaxIterations = 100
	ivMinVol        = 1e-4
	ivMaxVol        = 5.0
	ivMinVega       = 1e-8
)

// ImpliedVolatility solves Price(σ) == marketPrice with Newton-Raphson.
func ImpliedVolatility(marketPrice, spot, strike, t, rate float64, typ models.OptionType) (float64, error) {
	if marketPrice <= 0 || math.IsNaN(marketPrice) {
		return 0, errors.NewValidationError("price", marketPrice, "must be positive")
	}
	if floor := Intrinsic(spot, strike*math.Exp(-rate*math.Max(t, MinTimeToExpiry)), typ); marketPrice < floor {
		return 0, errors.NewPricingError(spot, strike, t, 0, "price below discounted intrinsic value")
	}

	sigma := ivInitialGuess
	for i := 0; i < ivMaxIterations; i++ {
		price, err := Price(spot, strike, t, sigma, rate, typ)
		if err != nil {
			return 0, err
		}
		diff := price - marketPrice
		if math.Abs(diff) < ivTolerance {
			return sigma, nil
		}

		b, err := newTerms(spot, strike, t, sigma, rate)
		if err != nil {
			return 0, err
		}
		vega := b.s * NormPDF(b.d1) * b.sqrtT
		if vega < ivMinVega {
			return 0, errors.NewPricingError(spot, strike, t, sigma, "vega too small to solve for volatility")
		}

		sigma -= diff / vega
		sigma = math.Min(math.Max(sigma, ivMinVol), ivMaxVol)
	}

	return 0, errors.NewPricingError(spot, strike, t, sigma, "implied volatility did not converge")
}
