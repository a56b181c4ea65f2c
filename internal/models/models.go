// Package models provides domain models for the trading simulator.
package models

import (
	"fmt"
	"time"
)

// Exchange represents a stock exchange.
type Exchange string

const (
	NSE Exchange = "NSE"
	BSE Exchange = "BSE"
	NFO Exchange = "NFO" // F&O
)

// OrderSide represents the side of an order.
type OrderSide string

const (
	OrderSideBuy  OrderSide = "BUY"
	OrderSideSell OrderSide = "SELL"
)

// Valid reports whether the side is BUY or SELL.
func (s OrderSide) Valid() bool {
	return s == OrderSideBuy || s == OrderSideSell
}

// OrderType represents the execution mode of an order.
type OrderType string

const (
	OrderTypeMarket    OrderType = "MARKET"
	OrderTypeLimit     OrderType = "LIMIT"
	OrderTypeStopLoss  OrderType = "SL"
	OrderTypeStopLossM OrderType = "SL-M"
	OrderTypeBracket   OrderType = "BRACKET"
	OrderTypeCover     OrderType = "COVER"
	OrderTypeGTT       OrderType = "GTT"
)

// ProductType represents the product type of an order.
type ProductType string

const (
	ProductMIS  ProductType = "MIS"  // Intraday
	ProductCNC  ProductType = "CNC"  // Delivery
	ProductNRML ProductType = "NRML" // F&O Normal
)

// Valid reports whether the product is one of CNC, MIS or NRML.
func (p ProductType) Valid() bool {
	switch p {
	case ProductCNC, ProductMIS, ProductNRML:
		return true
	}
	return false
}

// Validity represents how long an order stays live.
type Validity string

const (
	ValidityDay Validity = "DAY"
	ValidityIOC Validity = "IOC"
	ValidityGTC Validity = "GTC"
)

// InstrumentKind distinguishes cash equities from index derivatives.
type InstrumentKind string

const (
	KindEquity InstrumentKind = "EQUITY"
	KindIndex  InstrumentKind = "INDEX"
)

// Quote represents a market quote.
type Quote struct {
	Symbol        string
	Name          string
	LTP           float64
	Open          float64
	High          float64
	Low           float64
	Close         float64 // previous close
	Volume        int64
	Change        float64
	ChangePercent float64
	LotSize       int
	MarginPerLot  float64
	Timestamp     time.Time
}

// Instrument represents a tradeable instrument in the simulator catalogue.
type Instrument struct {
	Symbol       string
	Name         string
	Exchange     Exchange
	Kind         InstrumentKind
	BasePrice    float64
	LotSize      int
	MarginPerLot float64
	TickSize     float64
	Volatility   float64
}

// IsIndex returns true for index instruments traded in lots against margin.
func (i Instrument) IsIndex() bool {
	return i.Kind == KindIndex
}

// PositionKey returns the storage key for a symbol+product position.
func PositionKey(symbol string, product ProductType) string {
	return fmt.Sprintf("%s:%s", symbol, product)
}
