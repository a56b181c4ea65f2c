// Package charges computes brokerage and statutory costs of an execution.
package charges

import (
	"github.com/shopspring/decimal"

	"tradekaro/internal/models"
)

// Schedule holds the cost model rates. Stamp duty is charged on both sides,
// which is a fixed simplification of the exchange rules.
type Schedule struct {
	BrokerageRate decimal.Decimal
	BrokerageCap  decimal.Decimal
	STTBuyRate    decimal.Decimal
	STTSellRate   decimal.Decimal
	ExchangeRate  decimal.Decimal
	GSTRate       decimal.Decimal
	SEBIRate      decimal.Decimal
	StampRate     decimal.Decimal
}

// DefaultSchedule returns the discount-broker rates used by the simulator.
func DefaultSchedule() Schedule {
	return Schedule{
		BrokerageRate: decimal.RequireFromString("0.0003"),
		BrokerageCap:  decimal.NewFromInt(20),
		STTBuyRate:    decimal.RequireFromString("0.00001"),
		STTSellRate:   decimal.RequireFromString("0.00025"),
		ExchangeRate:  decimal.RequireFromString("0.0000345"),
		GSTRate:       decimal.RequireFromString("0.18"),
		SEBIRate:      decimal.RequireFromString("0.000001"),
		StampRate:     decimal.RequireFromString("0.00003"),
	}
}

// FromRates builds a Schedule from float rates as read from configuration.
func FromRates(brokerage, brokerageCap, sttBuy, sttSell, exchange, gst, sebi, stamp float64) Schedule {
	return Schedule{
		BrokerageRate: decimal.NewFromFloat(brokerage),
		BrokerageCap:  decimal.NewFromFloat(brokerageCap),
		STTBuyRate:    decimal.NewFromFloat(sttBuy),
		STTSellRate:   decimal.NewFromFloat(sttSell),
		ExchangeRate:  decimal.NewFromFloat(exchange),
		GSTRate:       decimal.NewFromFloat(gst),
		SEBIRate:      decimal.NewFromFloat(sebi),
		StampRate:     decimal.NewFromFloat(stamp),
	}
}

// Breakdown is the exact decimal cost of one execution.
type Breakdown struct {
	Value     decimal.Decimal
	Brokerage decimal.Decimal
	STT       decimal.Decimal
	Exchange  decimal.Decimal
	GST       decimal.Decimal
	SEBI      decimal.Decimal
	Stamp     decimal.Decimal
	Total     decimal.Decimal
	Net       decimal.Decimal
}

// Compute returns the charges for a trade of the given value and side.
// Net is value + total for BUY and value - total for SELL.
func (s Schedule) Compute(side models.OrderSide, value float64) Breakdown {
	v := decimal.NewFromFloat(value)

	brokerage := decimal.Min(v.Mul(s.BrokerageRate), s.BrokerageCap)
	stt := v.Mul(s.STTBuyRate)
	if side == models.OrderSideSell {
		stt = v.Mul(s.STTSellRate)
	}
	exchange := v.Mul(s.ExchangeRate)
	gst := brokerage.Add(exchange).Mul(s.GSTRate)
	sebi := v.Mul(s.SEBIRate)
	stamp := v.Mul(s.StampRate)

	total := brokerage.Add(stt).Add(exchange).Add(gst).Add(sebi).Add(stamp)
	net := v.Add(total)
	if side == models.OrderSideSell {
		net = v.Sub(total)
	}

	return Breakdown{
		Value:     v,
		Brokerage: brokerage,
		STT:       stt,
		Exchange:  exchange,
		GST:       gst,
		SEBI:      sebi,
		Stamp:     stamp,
		Total:     total,
		Net:       net,
	}
}

// Charges converts the breakdown into the float model stored on orders.
func (b Breakdown) Charges() models.Charges {
	return models.Charges{
		Brokerage:       b.Brokerage.InexactFloat64(),
		STT:             b.STT.InexactFloat64(),
		ExchangeCharges: b.Exchange.InexactFloat64(),
		GST:             b.GST.InexactFloat64(),
		SEBI:            b.SEBI.InexactFloat64(),
		StampDuty:       b.Stamp.InexactFloat64(),
		Total:           b.Total.InexactFloat64(),
	}
}

// TotalFloat returns the total charges as float64.
func (b Breakdown) TotalFloat() float64 {
	return b.Total.InexactFloat64()
}

// NetFloat returns the net amount as float64.
func (b Breakdown) NetFloat() float64 {
	return b.Net.InexactFloat64()
}
