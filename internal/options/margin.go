package options

import (
	"math"

	"tradekaro/internal/models"
)

// Margin returns the margin for an option trade of qty lots.
//
// BUY pays the premium in full. SELL uses a flat SPAN-style approximation:
//
//	max(prem + max(0.2·S − OTMcall, 0.1·S), prem + max(0.2·S − OTMput, 0.1·K))
//
// per unit, independent of the option type. This is a fixed simplification,
// not an exchange SPAN replica.
func Margin(action models.OrderSide, typ models.OptionType, premium, spot, strike float64, qty, lotSize int) float64 {
	units := float64(qty * lotSize)
	if action == models.OrderSideBuy {
		return premium * units
	}

	otmCall := math.Max(strike-spot, 0)
	otmPut := math.Max(spot-strike, 0)
	callLeg := premium + math.Max(0.2*spot-otmCall, 0.1*spot)
	putLeg := premium + math.Max(0.2*spot-otmPut, 0.1*strike)

	return math.Max(callLeg, putLeg) * units
}
