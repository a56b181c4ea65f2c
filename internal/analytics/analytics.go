// Package analytics derives portfolio performance and risk figures from
// ledger state.
package analytics

import (
	"math"

	"gonum.org/v1/gonum/stat"

	"tradekaro/internal/market"
	"tradekaro/internal/models"
)

// tradingDays annualises per-trade Sharpe ratios.
const tradingDays = 252

// assumedDailyVolatility is the flat daily volatility used for parametric VaR.
const assumedDailyVolatility = 0.02

// Input is the ledger state an analysis runs over.
type Input struct {
	Holdings        []models.Holding        // marked to market
	Positions       []models.Position       // marked to market
	Closed          []models.ClosedPosition // in closing order
	OptionPositions []models.OptionPosition
}

// Report holds the derived figures. Percentages are in percent.
type Report struct {
	TotalPnL          float64 `json:"total_pnl"`
	UnrealizedPnL     float64 `json:"unrealized_pnl"`
	RealizedPnL       float64 `json:"realized_pnl"`
	TotalTrades       int     `json:"total_trades"`
	WinningTrades     int     `json:"winning_trades"`
	LosingTrades      int     `json:"losing_trades"`
	WinRate           float64 `json:"win_rate"`
	AvgWin            float64 `json:"avg_win"`
	AvgLoss           float64 `json:"avg_loss"`
	ProfitFactor      float64 `json:"profit_factor"`
	MaxDrawdown       float64 `json:"max_drawdown"` // percent of peak
	Volatility        float64 `json:"volatility"`
	SharpeRatio       float64 `json:"sharpe_ratio"`
	Beta              float64 `json:"beta"`
	Alpha             float64 `json:"alpha"`
	VaR95             float64 `json:"var_95"`
	VaR99             float64 `json:"var_99"`
	ConcentrationRisk float64 `json:"concentration_risk"`
}

// Analyzer computes reports. Beta and alpha are placeholders drawn from rng
// until index return history exists to regress against.
type Analyzer struct {
	rng market.RandomSource
}

// NewAnalyzer creates an analyzer drawing placeholders from rng.
func NewAnalyzer(rng market.RandomSource) *Analyzer {
	return &Analyzer{rng: rng}
}

// Analyze computes the full report.
func (a *Analyzer) Analyze(in Input) Report {
	var r Report

	r.UnrealizedPnL = UnrealizedPnL(in)
	r.RealizedPnL = RealizedPnL(in)
	r.TotalPnL = r.UnrealizedPnL + r.RealizedPnL

	var wins, losses float64
	for _, c := range in.Closed {
		r.TotalTrades++
		if c.FinalPnL > 0 {
			r.WinningTrades++
			wins += c.FinalPnL
		} else {
			r.LosingTrades++
			losses += c.FinalPnL
		}
	}
	r.WinRate = WinRate(in.Closed)
	if r.WinningTrades > 0 {
		r.AvgWin = wins / float64(r.WinningTrades)
	}
	if r.LosingTrades > 0 {
		r.AvgLoss = losses / float64(r.LosingTrades)
	}
	if losses < 0 {
		r.ProfitFactor = wins / math.Abs(losses)
	}

	r.MaxDrawdown = MaxDrawdown(in.Closed)
	r.Volatility = Volatility(in.Holdings)
	r.SharpeRatio = SharpeRatio(in.Closed)

	total := 0.0
	largest := 0.0
	for _, h := range in.Holdings {
		total += h.CurrentValue
		largest = math.Max(largest, h.CurrentValue)
	}
	if total > 0 {
		r.ConcentrationRisk = largest / total * 100
		r.VaR95 = VaR(total, 0.95)
		r.VaR99 = VaR(total, 0.99)
	}

	if len(in.Holdings) > 0 && a.rng != nil {
		r.Beta = 0.8 + 0.4*a.rng.Float64()
		r.Alpha = (a.rng.Float64() - 0.5) * 4
	}
	return r
}

// UnrealizedPnL sums mark-to-market P&L of holdings, intraday and
// derivative positions, and open option positions.
func UnrealizedPnL(in Input) float64 {
	total := 0.0
	for _, h := range in.Holdings {
		total += h.PnL
	}
	for _, p := range in.Positions {
		// CNC positions are already counted through holdings.
		if p.Product != models.ProductCNC {
			total += p.UnrealizedPnL
		}
	}
	for _, op := range in.OptionPositions {
		if op.Status == models.OptionPositionOpen {
			total += op.PnL
		}
	}
	return total
}

// RealizedPnL sums closed positions, partial exits of open positions and
// settled option positions.
func RealizedPnL(in Input) float64 {
	total := 0.0
	for _, c := range in.Closed {
		total += c.FinalPnL
	}
	for _, p := range in.Positions {
		total += p.RealizedPnL
	}
	for _, op := range in.OptionPositions {
		if op.Status != models.OptionPositionOpen {
			total += op.RealizedPnL
		}
	}
	return total
}

// WinRate returns the percentage of closed positions with positive P&L.
func WinRate(closed []models.ClosedPosition) float64 {
	if len(closed) == 0 {
		return 0
	}
	wins := 0
	for _, c := range closed {
		if c.FinalPnL > 0 {
			wins++
		}
	}
	return float64(wins) / float64(len(closed)) * 100
}

// MaxDrawdown returns the largest peak-to-trough decline of cumulative
// realized P&L as a percentage of the running peak, taken in closing order
// and starting from zero. Declines are only measured once the series has
// set a positive peak, so a record that never rises above zero scores 0.
func MaxDrawdown(closed []models.ClosedPosition) float64 {
	var cum, peak, maxDD float64
	for _, c := range closed {
		cum += c.FinalPnL
		if cum > peak {
			peak = cum
		}
		if peak <= 0 {
			continue
		}
		if dd := (peak - cum) / peak * 100; dd > maxDD {
			maxDD = dd
		}
	}
	return maxDD
}

// Volatility returns the population standard deviation of per-holding P&L%.
func Volatility(holdings []models.Holding) float64 {
	if len(holdings) < 2 {
		return 0
	}
	pcts := make([]float64, len(holdings))
	for i, h := range holdings {
		pcts[i] = h.PnLPercent
	}
	_, std := stat.PopMeanStdDev(pcts, nil)
	return std
}

// SharpeRatio returns mean/σ of per-trade returns annualised by √252.
// Zero when fewer than two trades or no dispersion.
func SharpeRatio(closed []models.ClosedPosition) float64 {
	if len(closed) < 2 {
		return 0
	}
	returns := make([]float64, len(closed))
	for i := range closed {
		returns[i] = closed[i].Return()
	}
	mean, std := stat.PopMeanStdDev(returns, nil)
	if std == 0 || math.IsNaN(std) {
		return 0
	}
	return mean / std * math.Sqrt(tradingDays)
}

// VaR returns one-day parametric value at risk of value at confidence.
func VaR(value, confidence float64) float64 {
	return value * zScore(confidence) * assumedDailyVolatility
}

func zScore(confidence float64) float64 {
	switch {
	case confidence >= 0.99:
		return 2.326
	case confidence >= 0.95:
		return 1.645
	case confidence >= 0.90:
		return 1.282
	default:
		return 1.0
	}
}
