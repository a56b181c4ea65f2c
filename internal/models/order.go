package models

import "time"

// OrderStatus represents the lifecycle state of an order.
type OrderStatus string

const (
	OrderPending   OrderStatus = "PENDING"
	OrderExecuted  OrderStatus = "EXECUTED"
	OrderCancelled OrderStatus = "CANCELLED"
	OrderRejected  OrderStatus = "REJECTED"
)

// Terminal reports whether no further transition is allowed.
func (s OrderStatus) Terminal() bool {
	return s == OrderExecuted || s == OrderCancelled || s == OrderRejected
}

// Charges is the statutory and brokerage cost breakdown of one execution.
type Charges struct {
	Brokerage       float64 `json:"brokerage" csv:"brokerage"`
	STT             float64 `json:"stt" csv:"stt"`
	ExchangeCharges float64 `json:"exchange_charges" csv:"exchange_charges"`
	GST             float64 `json:"gst" csv:"gst"`
	SEBI            float64 `json:"sebi" csv:"sebi"`
	StampDuty       float64 `json:"stamp_duty" csv:"stamp_duty"`
	Total           float64 `json:"total" csv:"total_charges"`
}

// Order represents an entry in the append-only order log.
type Order struct {
	ID           string      `json:"id" csv:"id"`
	ParentID     string      `json:"parent_id,omitempty" csv:"parent_id"`
	Symbol       string      `json:"symbol" csv:"symbol"`
	Exchange     Exchange    `json:"exchange" csv:"exchange"`
	Side         OrderSide   `json:"side" csv:"side"`
	Type         OrderType   `json:"type" csv:"type"`
	Product      ProductType `json:"product" csv:"product"`
	Quantity     int         `json:"quantity" csv:"quantity"`
	Price        float64     `json:"price" csv:"price"`
	TriggerPrice float64     `json:"trigger_price,omitempty" csv:"trigger_price"`
	Validity     Validity    `json:"validity" csv:"validity"`
	Tag          string      `json:"tag,omitempty" csv:"tag"`
	Status       OrderStatus `json:"status" csv:"status"`
	AveragePrice float64     `json:"average_price,omitempty" csv:"average_price"`
	Charges      Charges     `json:"charges" csv:"-"`
	NetAmount    float64     `json:"net_amount" csv:"net_amount"`
	Message      string      `json:"message,omitempty" csv:"message"`
	PlacedAt     time.Time   `json:"placed_at" csv:"placed_at"`
	UpdatedAt    time.Time   `json:"updated_at" csv:"updated_at"`
}

// OrderValue returns the notional value at the executed (or limit) price.
func (o *Order) OrderValue() float64 {
	price := o.AveragePrice
	if price == 0 {
		price = o.Price
	}
	return price * float64(o.Quantity)
}

// Holding represents a delivery (CNC) equity holding.
type Holding struct {
	Symbol        string    `json:"symbol"`
	Name          string    `json:"name"`
	Quantity      int       `json:"quantity"`
	AveragePrice  float64   `json:"average_price"`
	TotalInvested float64   `json:"total_invested"`
	CurrentPrice  float64   `json:"current_price"`
	CurrentValue  float64   `json:"current_value"`
	PnL           float64   `json:"pnl"`
	PnLPercent    float64   `json:"pnl_percent"`
	DayChange     float64   `json:"day_change"`
	FirstBoughtAt time.Time `json:"first_bought_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// MarkToMarket fills the derived fields from a current price.
func (h *Holding) MarkToMarket(price, prevClose float64) {
	h.CurrentPrice = price
	h.CurrentValue = price * float64(h.Quantity)
	h.PnL = h.CurrentValue - h.TotalInvested
	h.PnLPercent = 0
	if h.TotalInvested > 0 {
		h.PnLPercent = (h.PnL / h.TotalInvested) * 100
	}
	h.DayChange = 0
	if prevClose > 0 {
		h.DayChange = (price - prevClose) * float64(h.Quantity)
	}
}

// PositionStatus represents the lifecycle of a position.
type PositionStatus string

const (
	PositionOpen   PositionStatus = "OPEN"
	PositionClosed PositionStatus = "CLOSED"
)

// Position represents an open stock or index position for one symbol+product.
type Position struct {
	ID            string         `json:"id"`
	Symbol        string         `json:"symbol"`
	Name          string         `json:"name"`
	Exchange      Exchange       `json:"exchange"`
	Product       ProductType    `json:"product"`
	Kind          InstrumentKind `json:"kind"`
	Quantity      int            `json:"quantity"`
	BoughtQty     int            `json:"bought_qty"`
	SoldQty       int            `json:"sold_qty"`
	AveragePrice  float64        `json:"average_price"`
	TotalInvested float64        `json:"total_invested"`
	TotalBought   float64        `json:"total_bought"`
	TotalSold     float64        `json:"total_sold"`
	MarginBlocked float64        `json:"margin_blocked"`
	LotSize       int            `json:"lot_size"`
	RealizedPnL   float64        `json:"realized_pnl"`
	CurrentPrice  float64        `json:"current_price"`
	UnrealizedPnL float64        `json:"unrealized_pnl"`
	PnLPercent    float64        `json:"pnl_percent"`
	Status        PositionStatus `json:"status"`
	OpenedAt      time.Time      `json:"opened_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
}

// Key returns the symbol+product storage key.
func (p *Position) Key() string {
	return PositionKey(p.Symbol, p.Product)
}

// MarkToMarket fills the derived fields from a current price.
func (p *Position) MarkToMarket(price float64) {
	p.CurrentPrice = price
	p.UnrealizedPnL = price*float64(p.Quantity) - p.TotalInvested
	p.PnLPercent = 0
	if p.TotalInvested > 0 {
		p.PnLPercent = (p.UnrealizedPnL / p.TotalInvested) * 100
	}
}

// ClosedPosition is the archived record of a fully sold position.
type ClosedPosition struct {
	ID               string         `json:"id"`
	Symbol           string         `json:"symbol"`
	Name             string         `json:"name"`
	Product          ProductType    `json:"product"`
	Kind             InstrumentKind `json:"kind"`
	Quantity         int            `json:"quantity"`
	AverageBuyPrice  float64        `json:"average_buy_price"`
	AverageSellPrice float64        `json:"average_sell_price"`
	TotalBought      float64        `json:"total_bought"`
	TotalSold        float64        `json:"total_sold"`
	FinalPnL         float64        `json:"final_pnl"`
	PnLPercent       float64        `json:"pnl_percent"`
	OpenedAt         time.Time      `json:"opened_at"`
	ClosedAt         time.Time      `json:"closed_at"`
}

// Return returns the trade return as a fraction of the amount bought.
func (c *ClosedPosition) Return() float64 {
	if c.TotalBought == 0 {
		return 0
	}
	return c.FinalPnL / c.TotalBought
}

// PortfolioSummary is an aggregate recomputed on every read.
type PortfolioSummary struct {
	TotalValue       float64 `json:"total_value"`
	TotalInvested    float64 `json:"total_invested"`
	TotalPnL         float64 `json:"total_pnl"`
	TotalPnLPercent  float64 `json:"total_pnl_percent"`
	DayChange        float64 `json:"day_change"`
	DayChangePercent float64 `json:"day_change_percent"`
	AvailableBalance float64 `json:"available_balance"`
	UsedMargin       float64 `json:"used_margin"`
	RealizedPnL      float64 `json:"realized_pnl"`
	HoldingCount     int     `json:"holding_count"`
	PositionCount    int     `json:"position_count"`
}
