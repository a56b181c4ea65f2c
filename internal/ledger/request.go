package ledger

import (
	"math"
	"strings"
	"time"

	"tradekaro/internal/errors"
	"tradekaro/internal/models"
)

// OrderRequest is one of MarketOrder, LimitOrder, StopLossOrder,
// StopLossMarketOrder, BracketOrder, CoverOrder or GTTOrder.
type OrderRequest interface {
	Base() OrderBase
	Type() models.OrderType
	Validate() error
	sealed()
}

// OrderBase holds the fields shared by every order variant.
type OrderBase struct {
	Symbol   string
	Side     models.OrderSide
	Quantity int
	Product  models.ProductType // defaults to CNC
	Validity models.Validity    // defaults to DAY
	Tag      string
}

// Base returns the shared fields with defaults applied.
func (b OrderBase) Base() OrderBase {
	b.Symbol = strings.ToUpper(strings.TrimSpace(b.Symbol))
	if b.Product == "" {
		b.Product = models.ProductCNC
	}
	if b.Validity == "" {
		b.Validity = models.ValidityDay
	}
	return b
}

func (OrderBase) sealed() {}

func (b OrderBase) validate() error {
	if strings.TrimSpace(b.Symbol) == "" {
		return errors.NewValidationError("symbol", b.Symbol, "is required")
	}
	if !b.Side.Valid() {
		return errors.NewValidationError("side", b.Side, "must be BUY or SELL")
	}
	if b.Quantity <= 0 {
		return errors.NewValidationError("quantity", b.Quantity, "must be positive")
	}
	if b.Product != "" && !b.Product.Valid() {
		return errors.NewValidationError("product", b.Product, "must be CNC, MIS or NRML")
	}
	switch b.Validity {
	case "", models.ValidityDay, models.ValidityIOC, models.ValidityGTC:
	default:
		return errors.NewValidationError("validity", b.Validity, "must be DAY, IOC or GTC")
	}
	return nil
}

func positivePrice(field string, v float64) error {
	if v <= 0 || math.IsNaN(v) || math.IsInf(v, 0) {
		return errors.NewValidationError(field, v, "must be positive")
	}
	return nil
}

// MarketOrder executes immediately at the current price.
type MarketOrder struct {
	OrderBase
}

func (MarketOrder) Type() models.OrderType { return models.OrderTypeMarket }

func (o MarketOrder) Validate() error {
	return o.validate()
}

// LimitOrder rests until the price reaches Price.
type LimitOrder struct {
	OrderBase
	Price float64
}

func (LimitOrder) Type() models.OrderType { return models.OrderTypeLimit }

func (o LimitOrder) Validate() error {
	if err := o.validate(); err != nil {
		return err
	}
	return positivePrice("price", o.Price)
}

// StopLossOrder becomes a limit order at Price once TriggerPrice trades.
type StopLossOrder struct {
	OrderBase
	Price        float64
	TriggerPrice float64
}

func (StopLossOrder) Type() models.OrderType { return models.OrderTypeStopLoss }

func (o StopLossOrder) Validate() error {
	if err := o.validate(); err != nil {
		return err
	}
	if err := positivePrice("price", o.Price); err != nil {
		return err
	}
	if err := positivePrice("trigger_price", o.TriggerPrice); err != nil {
		return err
	}
	if o.Side == models.OrderSideBuy && o.TriggerPrice > o.Price {
		return errors.NewValidationError("trigger_price", o.TriggerPrice, "must not exceed price for a BUY stop-loss")
	}
	if o.Side == models.OrderSideSell && o.TriggerPrice < o.Price {
		return errors.NewValidationError("trigger_price", o.TriggerPrice, "must not be below price for a SELL stop-loss")
	}
	return nil
}

// StopLossMarketOrder executes at market once TriggerPrice trades.
type StopLossMarketOrder struct {
	OrderBase
	TriggerPrice float64
}

func (StopLossMarketOrder) Type() models.OrderType { return models.OrderTypeStopLossM }

func (o StopLossMarketOrder) Validate() error {
	if err := o.validate(); err != nil {
		return err
	}
	return positivePrice("trigger_price", o.TriggerPrice)
}

// BracketOrder enters at market and attaches a stop-loss and a target leg.
// StopLoss and Target are absolute prices. Intraday only.
type BracketOrder struct {
	OrderBase
	StopLoss float64
	Target   float64
}

func (BracketOrder) Type() models.OrderType { return models.OrderTypeBracket }

func (o BracketOrder) Validate() error {
	if err := o.validate(); err != nil {
		return err
	}
	if o.Product != "" && o.Product != models.ProductMIS {
		return errors.NewValidationError("product", o.Product, "bracket orders are MIS only")
	}
	if err := positivePrice("stop_loss", o.StopLoss); err != nil {
		return err
	}
	if err := positivePrice("target", o.Target); err != nil {
		return err
	}
	if o.Side == models.OrderSideBuy && o.StopLoss >= o.Target {
		return errors.NewValidationError("stop_loss", o.StopLoss, "must be below target for a BUY bracket")
	}
	if o.Side == models.OrderSideSell && o.StopLoss <= o.Target {
		return errors.NewValidationError("stop_loss", o.StopLoss, "must be above target for a SELL bracket")
	}
	return nil
}

// Base forces the intraday product.
func (o BracketOrder) Base() OrderBase {
	b := o.OrderBase.Base()
	b.Product = models.ProductMIS
	return b
}

// CoverOrder enters at market with a compulsory stop-loss leg. Intraday only.
type CoverOrder struct {
	OrderBase
	StopLoss float64
}

func (CoverOrder) Type() models.OrderType { return models.OrderTypeCover }

func (o CoverOrder) Validate() error {
	if err := o.validate(); err != nil {
		return err
	}
	if o.Product != "" && o.Product != models.ProductMIS {
		return errors.NewValidationError("product", o.Product, "cover orders are MIS only")
	}
	return positivePrice("stop_loss", o.StopLoss)
}

// Base forces the intraday product.
func (o CoverOrder) Base() OrderBase {
	b := o.OrderBase.Base()
	b.Product = models.ProductMIS
	return b
}

// GTTOrder waits, across sessions, for TriggerPrice. A BUY fires when the
// price rises to the trigger, a SELL when it falls to it. Price zero executes
// at the triggering price.
type GTTOrder struct {
	OrderBase
	TriggerPrice float64
	Price        float64
}

func (GTTOrder) Type() models.OrderType { return models.OrderTypeGTT }

func (o GTTOrder) Validate() error {
	if err := o.validate(); err != nil {
		return err
	}
	if err := positivePrice("trigger_price", o.TriggerPrice); err != nil {
		return err
	}
	if o.Price < 0 || math.IsNaN(o.Price) {
		return errors.NewValidationError("price", o.Price, "must not be negative")
	}
	return nil
}

// Base defaults GTT validity to GTC.
func (o GTTOrder) Base() OrderBase {
	b := o.OrderBase
	if b.Validity == "" {
		b.Validity = models.ValidityGTC
	}
	return b.Base()
}

// OptionOrder opens an option position on a contract from the generated chain.
type OptionOrder struct {
	Underlying string
	Strike     float64
	Expiry     time.Time // zero selects the nearest expiry; matched by IST date
	Type       models.OptionType
	Action     models.OrderSide
	Lots       int
}

// Validate checks the request before the ledger is touched.
func (o OptionOrder) Validate() error {
	if strings.TrimSpace(o.Underlying) == "" {
		return errors.NewValidationError("underlying", o.Underlying, "is required")
	}
	if err := positivePrice("strike", o.Strike); err != nil {
		return err
	}
	if !o.Type.Valid() {
		return errors.NewValidationError("type", o.Type, "must be CE or PE")
	}
	if !o.Action.Valid() {
		return errors.NewValidationError("action", o.Action, "must be BUY or SELL")
	}
	if o.Lots <= 0 {
		return errors.NewValidationError("lots", o.Lots, "must be positive")
	}
	return nil
}
