package models

import (
	"fmt"
	"strings"
	"time"
)

// OptionType is CE (call) or PE (put).
type OptionType string

const (
	OptionCall OptionType = "CE"
	OptionPut  OptionType = "PE"
)

// Valid reports whether the option type is CE or PE.
func (t OptionType) Valid() bool {
	return t == OptionCall || t == OptionPut
}

// OptionGreeks represents option Greeks.
type OptionGreeks struct {
	Delta float64 `json:"delta"`
	Gamma float64 `json:"gamma"`
	Theta float64 `json:"theta"` // per calendar day
	Vega  float64 `json:"vega"`  // per 1% volatility
	Rho   float64 `json:"rho"`   // per 1% rate
}

// OptionContract is one priced option for a spot/volatility snapshot.
type OptionContract struct {
	Symbol            string       `json:"symbol"`
	Underlying        string       `json:"underlying"`
	Strike            float64      `json:"strike"`
	Expiry            time.Time    `json:"expiry"`
	Type              OptionType   `json:"type"`
	LotSize           int          `json:"lot_size"`
	Premium           float64      `json:"premium"`
	Bid               float64      `json:"bid"`
	Ask               float64      `json:"ask"`
	Volume            int64        `json:"volume"`
	OpenInterest      int64        `json:"open_interest"`
	ImpliedVolatility float64      `json:"implied_volatility"`
	Greeks            OptionGreeks `json:"greeks"`
}

// ContractSymbol builds an NFO-style trading symbol, e.g. NIFTY25JAN24500CE.
func ContractSymbol(underlying string, expiry time.Time, strike float64, typ OptionType) string {
	return fmt.Sprintf("%s%s%.0f%s", underlying, strings.ToUpper(expiry.Format("06Jan")), strike, typ)
}

// OptionPositionStatus represents the lifecycle of an option position.
type OptionPositionStatus string

const (
	OptionPositionOpen    OptionPositionStatus = "OPEN"
	OptionPositionClosed  OptionPositionStatus = "CLOSED"
	OptionPositionExpired OptionPositionStatus = "EXPIRED"
)

// OptionPosition is a held option trade.
type OptionPosition struct {
	ID             string               `json:"id"`
	Symbol         string               `json:"symbol"`
	Underlying     string               `json:"underlying"`
	Strike         float64              `json:"strike"`
	Expiry         time.Time            `json:"expiry"`
	Type           OptionType           `json:"type"`
	Action         OrderSide            `json:"action"`
	Lots           int                  `json:"lots"`
	LotSize        int                  `json:"lot_size"`
	EntryPremium   float64              `json:"entry_premium"`
	CurrentPremium float64              `json:"current_premium"`
	PnL            float64              `json:"pnl"`
	PnLPercent     float64              `json:"pnl_percent"`
	Margin         float64              `json:"margin"`
	RealizedPnL    float64              `json:"realized_pnl"`
	Status         OptionPositionStatus `json:"status"`
	CreatedAt      time.Time            `json:"created_at"`
	ClosedAt       *time.Time           `json:"closed_at,omitempty"`
}

// Units returns the total contract quantity (lots x lot size).
func (p *OptionPosition) Units() int {
	return p.Lots * p.LotSize
}

// Reprice updates the current premium and recomputes P&L.
func (p *OptionPosition) Reprice(premium float64) {
	p.CurrentPremium = premium
	diff := premium - p.EntryPremium
	if p.Action == OrderSideSell {
		diff = -diff
	}
	p.PnL = diff * float64(p.Units())
	p.PnLPercent = 0
	if p.EntryPremium > 0 {
		p.PnLPercent = diff / p.EntryPremium * 100
	}
}

// OptionLeg represents a leg of an option strategy.
type OptionLeg struct {
	Action   OrderSide  `json:"action"`
	Type     OptionType `json:"type"`
	Strike   float64    `json:"strike"`
	Quantity int        `json:"quantity"`
	Premium  float64    `json:"premium"`
}

// OptionStrategy represents a named multi-leg structure.
type OptionStrategy struct {
	Name string      `json:"name"`
	Legs []OptionLeg `json:"legs"`
}
