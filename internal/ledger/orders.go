package ledger

import (
	"context"
	"fmt"
	"time"

	"tradekaro/internal/errors"
	"tradekaro/internal/logging"
	"tradekaro/internal/models"
	"tradekaro/internal/store"
)

// PlaceOrder validates req and executes or queues it. Validation and
// sufficiency failures leave the account untouched and are not logged as
// orders.
func (l *Ledger) PlaceOrder(ctx context.Context, req OrderRequest) Result {
	if req == nil {
		return failure(errors.NewValidationError("order", nil, "is required"))
	}
	base := req.Base()
	if err := req.Validate(); err != nil {
		return l.reject(base.Symbol, base.Side, err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	inst := l.instrument(base.Symbol)
	if err := checkInstrument(inst, base.Product, base.Quantity); err != nil {
		return l.reject(base.Symbol, base.Side, err)
	}

	order := l.newOrder(base, inst, req.Type())

	switch r := req.(type) {
	case MarketOrder:
		return l.placeMarket(ctx, order, inst)
	case LimitOrder:
		order.Price = r.Price
		return l.placePending(ctx, order, inst)
	case StopLossOrder:
		order.Price = r.Price
		order.TriggerPrice = r.TriggerPrice
		return l.placePending(ctx, order, inst)
	case StopLossMarketOrder:
		order.TriggerPrice = r.TriggerPrice
		return l.placePending(ctx, order, inst)
	case GTTOrder:
		order.Price = r.Price
		order.TriggerPrice = r.TriggerPrice
		return l.placePending(ctx, order, inst)
	case BracketOrder:
		return l.placeWithLegs(ctx, order, inst, r.StopLoss, r.Target)
	case CoverOrder:
		return l.placeWithLegs(ctx, order, inst, r.StopLoss, 0)
	default:
		return l.reject(base.Symbol, base.Side, errors.NewValidationError("type", req.Type(), "unsupported order type"))
	}
}

func (l *Ledger) newOrder(base OrderBase, inst models.Instrument, typ models.OrderType) *models.Order {
	now := l.now()
	exchange := inst.Exchange
	if exchange == "" {
		exchange = models.NSE
	}
	return &models.Order{
		ID:        l.newID(),
		Symbol:    base.Symbol,
		Exchange:  exchange,
		Side:      base.Side,
		Type:      typ,
		Product:   base.Product,
		Quantity:  base.Quantity,
		Validity:  base.Validity,
		Tag:       base.Tag,
		Status:    models.OrderPending,
		PlacedAt:  now,
		UpdatedAt: now,
	}
}

func (l *Ledger) placeMarket(ctx context.Context, order *models.Order, inst models.Instrument) Result {
	price, live, err := l.resolvePrice(ctx, order.Symbol)
	if err != nil {
		return l.reject(order.Symbol, order.Side, err)
	}
	order.Price = price

	cs, err := l.fill(order, inst, price)
	if err != nil {
		return l.reject(order.Symbol, order.Side, err)
	}
	if live {
		cs.Prices = map[string]float64{order.Symbol: price}
	}
	if err := l.commit(ctx, cs); err != nil {
		return l.reject(order.Symbol, order.Side, err)
	}
	l.executed(order)
	return Result{Success: true, Message: order.Message, ID: order.ID}
}

// placePending records a resting order. SELLs must be covered by the open
// position when placed. BUYs must be affordable at their limit or trigger
// price when placed and are checked again when they fill, since funds are
// not reserved in between.
func (l *Ledger) placePending(ctx context.Context, order *models.Order, inst models.Instrument) Result {
	switch order.Side {
	case models.OrderSideSell:
		if err := l.checkHeld(order.Symbol, order.Product, order.Quantity); err != nil {
			return l.reject(order.Symbol, order.Side, err)
		}
	case models.OrderSideBuy:
		required, _ := l.buyCost(inst, order.Quantity, pendingPrice(order))
		if balance := l.snap.Account.Balance; required > balance {
			return l.reject(order.Symbol, order.Side, insufficient(inst, required, balance))
		}
	}

	order.Message = pendingMessage(order)
	if err := l.commit(ctx, &store.Changeset{Orders: []models.Order{*order}}); err != nil {
		return l.reject(order.Symbol, order.Side, err)
	}

	logging.LogOrder(l.logger, order.ID, order.Symbol, string(order.Side), string(order.Status))
	l.metrics.RecordOrder(string(order.Type), string(order.Side), string(order.Status))
	return Result{Success: true, Message: order.Message, ID: order.ID}
}

// buyCost returns what a BUY of qty at price debits: value plus charges,
// or blocked margin plus charges for index instruments.
func (l *Ledger) buyCost(inst models.Instrument, qty int, price float64) (required, margin float64) {
	bd := l.cfg.Charges.Compute(models.OrderSideBuy, price*float64(qty))
	if inst.IsIndex() {
		margin = float64(qty/inst.LotSize) * inst.MarginPerLot
		return margin + bd.TotalFloat(), margin
	}
	return bd.NetFloat(), 0
}

func insufficient(inst models.Instrument, required, available float64) error {
	if inst.IsIndex() {
		return errors.NewInsufficientMargin(required, available)
	}
	return errors.NewInsufficientFunds(required, available)
}

// pendingPrice is the price a resting order is expected to fill at.
func pendingPrice(o *models.Order) float64 {
	if o.Price > 0 {
		return o.Price
	}
	return o.TriggerPrice
}

func pendingMessage(o *models.Order) string {
	switch o.Type {
	case models.OrderTypeLimit:
		return fmt.Sprintf("%s LIMIT order placed for %d %s @ ₹%.2f", o.Side, o.Quantity, o.Symbol, o.Price)
	case models.OrderTypeStopLoss:
		return fmt.Sprintf("%s SL order placed for %d %s @ ₹%.2f, trigger ₹%.2f", o.Side, o.Quantity, o.Symbol, o.Price, o.TriggerPrice)
	case models.OrderTypeGTT:
		return fmt.Sprintf("GTT %s trigger set for %d %s @ ₹%.2f", o.Side, o.Quantity, o.Symbol, o.TriggerPrice)
	default:
		return fmt.Sprintf("%s %s order placed for %d %s, trigger ₹%.2f", o.Side, o.Type, o.Quantity, o.Symbol, o.TriggerPrice)
	}
}

// placeWithLegs executes the entry at market and records the stop-loss
// (SL-M) and, for brackets, the target (LIMIT) as pending child orders in
// the same commit.
func (l *Ledger) placeWithLegs(ctx context.Context, order *models.Order, inst models.Instrument, stopLoss, target float64) Result {
	price, live, err := l.resolvePrice(ctx, order.Symbol)
	if err != nil {
		return l.reject(order.Symbol, order.Side, err)
	}
	if err := checkLegs(order.Side, price, stopLoss, target); err != nil {
		return l.reject(order.Symbol, order.Side, err)
	}
	order.Price = price

	cs, err := l.fill(order, inst, price)
	if err != nil {
		return l.reject(order.Symbol, order.Side, err)
	}
	if live {
		cs.Prices = map[string]float64{order.Symbol: price}
	}

	exit := models.OrderSideSell
	if order.Side == models.OrderSideSell {
		exit = models.OrderSideBuy
	}
	child := func(typ models.OrderType) models.Order {
		o := *order
		o.ID = l.newID()
		o.ParentID = order.ID
		o.Side = exit
		o.Type = typ
		o.Price = 0
		o.AveragePrice = 0
		o.Charges = models.Charges{}
		o.NetAmount = 0
		o.Status = models.OrderPending
		return o
	}

	stop := child(models.OrderTypeStopLossM)
	stop.TriggerPrice = stopLoss
	stop.Message = pendingMessage(&stop)
	cs.Orders = append(cs.Orders, stop)
	if target > 0 {
		tgt := child(models.OrderTypeLimit)
		tgt.Price = target
		tgt.Message = pendingMessage(&tgt)
		cs.Orders = append(cs.Orders, tgt)
	}

	if err := l.commit(ctx, cs); err != nil {
		return l.reject(order.Symbol, order.Side, err)
	}
	l.executed(order)
	for _, o := range cs.Orders[1:] {
		logging.LogOrder(l.logger, o.ID, o.Symbol, string(o.Side), string(o.Status))
		l.metrics.RecordOrder(string(o.Type), string(o.Side), string(o.Status))
	}
	return Result{Success: true, Message: order.Message, ID: order.ID}
}

// checkLegs requires the stop on the losing side of the entry and the
// target on the winning side.
func checkLegs(side models.OrderSide, entry, stopLoss, target float64) error {
	if side == models.OrderSideBuy {
		if stopLoss >= entry {
			return errors.NewValidationError("stop_loss", stopLoss, fmt.Sprintf("must be below the entry price ₹%.2f", entry))
		}
		if target > 0 && target <= entry {
			return errors.NewValidationError("target", target, fmt.Sprintf("must be above the entry price ₹%.2f", entry))
		}
		return nil
	}
	if stopLoss <= entry {
		return errors.NewValidationError("stop_loss", stopLoss, fmt.Sprintf("must be above the entry price ₹%.2f", entry))
	}
	if target > 0 && target >= entry {
		return errors.NewValidationError("target", target, fmt.Sprintf("must be below the entry price ₹%.2f", entry))
	}
	return nil
}

func (l *Ledger) executed(o *models.Order) {
	logging.LogTrade(l.logger, o.Symbol, string(o.Side), o.Quantity, o.AveragePrice, o.Charges.Total)
	l.metrics.RecordOrder(string(o.Type), string(o.Side), string(o.Status))
	l.metrics.AddCharges(o.Charges.Total)
}

// fill builds the changeset that executes o at price. It reads the current
// snapshot but never mutates it; o is updated with the execution details.
func (l *Ledger) fill(o *models.Order, inst models.Instrument, price float64) (*store.Changeset, error) {
	now := l.now()
	value := price * float64(o.Quantity)
	bd := l.cfg.Charges.Compute(o.Side, value)
	fees := bd.TotalFloat()

	acc := l.account()
	key := models.PositionKey(o.Symbol, o.Product)
	pos, held := l.snap.Positions[key]
	cs := &store.Changeset{}

	switch o.Side {
	case models.OrderSideBuy:
		required, margin := l.buyCost(inst, o.Quantity, price)
		if required > acc.Balance {
			return nil, insufficient(inst, required, acc.Balance)
		}
		acc.Balance -= required

		if !held {
			pos = models.Position{
				ID:       l.newID(),
				Symbol:   o.Symbol,
				Name:     inst.Name,
				Exchange: o.Exchange,
				Product:  o.Product,
				Kind:     inst.Kind,
				LotSize:  inst.LotSize,
				Status:   models.PositionOpen,
				OpenedAt: now,
			}
		}
		pos.AveragePrice = (float64(pos.Quantity)*pos.AveragePrice + value) / float64(pos.Quantity+o.Quantity)
		pos.Quantity += o.Quantity
		pos.TotalInvested = pos.AveragePrice * float64(pos.Quantity)
		pos.BoughtQty += o.Quantity
		pos.TotalBought += value
		pos.MarginBlocked += margin
		pos.UpdatedAt = now
		cs.Positions = append(cs.Positions, pos)

		if deliversHolding(inst, o.Product) {
			h, ok := l.snap.Holdings[o.Symbol]
			if !ok {
				h = models.Holding{Symbol: o.Symbol, Name: inst.Name, FirstBoughtAt: now}
			}
			h.AveragePrice = (float64(h.Quantity)*h.AveragePrice + value) / float64(h.Quantity+o.Quantity)
			h.Quantity += o.Quantity
			h.TotalInvested = h.AveragePrice * float64(h.Quantity)
			h.UpdatedAt = now
			cs.Holdings = append(cs.Holdings, h)
		}

		o.Message = fmt.Sprintf("Bought %d %s @ ₹%.2f (charges ₹%.2f, debited ₹%.2f)", o.Quantity, o.Symbol, price, fees, required)
		o.NetAmount = required

	case models.OrderSideSell:
		if !held {
			return nil, errors.NewPositionNotFound(key)
		}
		if o.Quantity > pos.Quantity {
			return nil, errors.NewInsufficientQuantity(o.Quantity, pos.Quantity)
		}

		soldInvested := pos.TotalInvested / float64(pos.Quantity) * float64(o.Quantity)
		realized := value - soldInvested - fees
		credit := bd.NetFloat()
		if pos.MarginBlocked > 0 {
			released := pos.MarginBlocked / float64(pos.Quantity) * float64(o.Quantity)
			credit = released + realized
			pos.MarginBlocked -= released
		}
		acc.Balance += credit

		pos.Quantity -= o.Quantity
		pos.TotalInvested -= soldInvested
		pos.SoldQty += o.Quantity
		pos.TotalSold += value
		pos.RealizedPnL += realized
		pos.UpdatedAt = now

		if pos.Quantity == 0 {
			cs.DeletedPositions = append(cs.DeletedPositions, key)
			cs.Closed = append(cs.Closed, archive(pos, now))
		} else {
			cs.Positions = append(cs.Positions, pos)
		}

		if deliversHolding(inst, o.Product) {
			if h, ok := l.snap.Holdings[o.Symbol]; ok {
				sold := o.Quantity
				if sold > h.Quantity {
					sold = h.Quantity
				}
				h.TotalInvested -= h.TotalInvested / float64(h.Quantity) * float64(sold)
				h.Quantity -= sold
				h.UpdatedAt = now
				if h.Quantity == 0 {
					cs.DeletedHoldings = append(cs.DeletedHoldings, h.Symbol)
				} else {
					cs.Holdings = append(cs.Holdings, h)
				}
			}
		}

		o.Message = fmt.Sprintf("Sold %d %s @ ₹%.2f (charges ₹%.2f, realized P&L ₹%.2f)", o.Quantity, o.Symbol, price, fees, realized)
		o.NetAmount = credit

	default:
		return nil, errors.NewValidationError("side", o.Side, "must be BUY or SELL")
	}

	o.Status = models.OrderExecuted
	o.AveragePrice = price
	o.Charges = bd.Charges()
	o.UpdatedAt = now

	cs.Account = &acc
	cs.Orders = append([]models.Order{*o}, cs.Orders...)
	return cs, nil
}

// deliversHolding reports whether an execution moves delivery holdings.
func deliversHolding(inst models.Instrument, product models.ProductType) bool {
	return !inst.IsIndex() && product == models.ProductCNC
}

func archive(p models.Position, closedAt time.Time) models.ClosedPosition {
	c := models.ClosedPosition{
		ID:          p.ID,
		Symbol:      p.Symbol,
		Name:        p.Name,
		Product:     p.Product,
		Kind:        p.Kind,
		Quantity:    p.BoughtQty,
		TotalBought: p.TotalBought,
		TotalSold:   p.TotalSold,
		FinalPnL:    p.RealizedPnL,
		OpenedAt:    p.OpenedAt,
		ClosedAt:    closedAt,
	}
	if p.BoughtQty > 0 {
		c.AverageBuyPrice = p.TotalBought / float64(p.BoughtQty)
	}
	if p.SoldQty > 0 {
		c.AverageSellPrice = p.TotalSold / float64(p.SoldQty)
	}
	if p.TotalBought > 0 {
		c.PnLPercent = c.FinalPnL / p.TotalBought * 100
	}
	return c
}

// CancelOrder marks a pending order CANCELLED.
func (l *Ledger) CancelOrder(ctx context.Context, id string) Result {
	l.mu.Lock()
	defer l.mu.Unlock()

	idx := -1
	for i := range l.snap.Orders {
		if l.snap.Orders[i].ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		return l.reject("", "", errors.NewOrderNotFound(id))
	}

	o := l.snap.Orders[idx]
	if o.Status != models.OrderPending {
		return l.reject(o.Symbol, o.Side, errors.NewOrderError(id, o.Symbol, "cancel", "order is "+string(o.Status), errors.ErrOrderNotPending))
	}
	o.Status = models.OrderCancelled
	o.Message = "Cancelled by user"
	o.UpdatedAt = l.now()

	if err := l.commit(ctx, &store.Changeset{Orders: []models.Order{o}}); err != nil {
		return l.reject(o.Symbol, o.Side, err)
	}
	logging.LogOrder(l.logger, o.ID, o.Symbol, string(o.Side), string(o.Status))
	l.metrics.RecordOrder(string(o.Type), string(o.Side), string(o.Status))
	return Result{Success: true, Message: fmt.Sprintf("Order %s cancelled", id), ID: id}
}

// ProcessTick checks every pending order against the current quote and
// fills those whose price condition is met. An order that can no longer be
// afforded or covered is REJECTED. Filling one leg of a bracket or cover
// order cancels its siblings.
func (l *Ledger) ProcessTick(ctx context.Context) ([]Result, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	var pending []models.Order
	for _, o := range l.snap.Orders {
		if o.Status == models.OrderPending {
			pending = append(pending, o)
		}
	}

	var results []Result
	done := make(map[string]bool)
	for _, o := range pending {
		if err := ctx.Err(); err != nil {
			return results, err
		}
		if done[o.ParentID] && o.ParentID != "" {
			continue
		}
		q, err := l.market.Quote(ctx, o.Symbol)
		if err != nil || q.LTP <= 0 {
			continue
		}
		price, ok := triggered(&o, q.LTP)
		if !ok {
			continue
		}

		order := o
		res, err := l.execute(ctx, &order, price)
		if err != nil {
			return results, err
		}
		results = append(results, res)
		if order.ParentID != "" && order.Status == models.OrderExecuted {
			done[order.ParentID] = true
			if err := l.cancelSiblings(ctx, &order); err != nil {
				return results, err
			}
		}
	}
	return results, nil
}

// triggered reports whether o should execute at ltp and the execution price.
func triggered(o *models.Order, ltp float64) (float64, bool) {
	buy := o.Side == models.OrderSideBuy
	switch o.Type {
	case models.OrderTypeLimit:
		if (buy && ltp <= o.Price) || (!buy && ltp >= o.Price) {
			return o.Price, true
		}
	case models.OrderTypeStopLoss:
		if (buy && ltp >= o.TriggerPrice) || (!buy && ltp <= o.TriggerPrice) {
			return o.Price, true
		}
	case models.OrderTypeStopLossM:
		if (buy && ltp >= o.TriggerPrice) || (!buy && ltp <= o.TriggerPrice) {
			return ltp, true
		}
	case models.OrderTypeGTT:
		if (buy && ltp >= o.TriggerPrice) || (!buy && ltp <= o.TriggerPrice) {
			if o.Price > 0 {
				return o.Price, true
			}
			return ltp, true
		}
	}
	return 0, false
}

// execute fills a triggered pending order, recording a rejection in the
// order log when the account can no longer support it. The returned error
// is reserved for storage failures.
func (l *Ledger) execute(ctx context.Context, o *models.Order, price float64) (Result, error) {
	inst := l.instrument(o.Symbol)
	cs, err := l.fill(o, inst, price)
	if err != nil {
		logging.LogRejection(l.logger, o.Symbol, string(o.Side), err)
		l.metrics.RecordRejection(rejectionReason(err))
		o.Status = models.OrderRejected
		o.Message = err.Error()
		o.UpdatedAt = l.now()
		if cerr := l.commit(ctx, &store.Changeset{Orders: []models.Order{*o}}); cerr != nil {
			return failure(cerr), cerr
		}
		l.metrics.RecordOrder(string(o.Type), string(o.Side), string(o.Status))
		return Result{Success: false, Message: o.Message, ID: o.ID, Err: err}, nil
	}

	cs.Prices = map[string]float64{o.Symbol: price}
	if err := l.commit(ctx, cs); err != nil {
		return failure(err), err
	}
	l.executed(o)
	return Result{Success: true, Message: o.Message, ID: o.ID}, nil
}

func (l *Ledger) cancelSiblings(ctx context.Context, filled *models.Order) error {
	cs := &store.Changeset{}
	for _, o := range l.snap.Orders {
		if o.ParentID != filled.ParentID || o.ID == filled.ID || o.Status != models.OrderPending {
			continue
		}
		o.Status = models.OrderCancelled
		o.Message = fmt.Sprintf("Cancelled: sibling %s executed", filled.ID)
		o.UpdatedAt = l.now()
		cs.Orders = append(cs.Orders, o)
	}
	if cs.Empty() {
		return nil
	}
	if err := l.commit(ctx, cs); err != nil {
		return err
	}
	for _, o := range cs.Orders {
		logging.LogOrder(l.logger, o.ID, o.Symbol, string(o.Side), string(o.Status))
		l.metrics.RecordOrder(string(o.Type), string(o.Side), string(o.Status))
	}
	return nil
}
