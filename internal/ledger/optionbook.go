package ledger

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"tradekaro/internal/errors"
	"tradekaro/internal/logging"
	"tradekaro/internal/models"
	"tradekaro/internal/options"
	"tradekaro/internal/store"
)

// PlaceOptionOrder opens an option position at the chain premium. A BUY
// pays premium plus charges. A SELL blocks margin and receives the premium
// less charges.
func (l *Ledger) PlaceOptionOrder(ctx context.Context, req OptionOrder) Result {
	req.Underlying = strings.ToUpper(strings.TrimSpace(req.Underlying))
	if err := req.Validate(); err != nil {
		return l.reject(req.Underlying, req.Action, err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	spot, _, err := l.resolvePrice(ctx, req.Underlying)
	if err != nil {
		return l.reject(req.Underlying, req.Action, err)
	}
	expiry, err := l.resolveExpiry(req)
	if err != nil {
		return l.reject(req.Underlying, req.Action, err)
	}
	contract, err := l.chain.Contract(req.Underlying, spot, l.cfg.DefaultVolatility, req.Strike, expiry, req.Type)
	if err != nil {
		return l.reject(req.Underlying, req.Action, err)
	}

	now := l.now()
	units := req.Lots * contract.LotSize
	value := contract.Premium * float64(units)
	bd := l.cfg.Charges.Compute(req.Action, value)
	fees := bd.TotalFloat()
	margin := options.Margin(req.Action, req.Type, contract.Premium, spot, req.Strike, req.Lots, contract.LotSize)

	acc := l.account()
	var required, delta float64
	if req.Action == models.OrderSideBuy {
		required = value + fees
		delta = -required
		if required > acc.Balance {
			return l.reject(contract.Symbol, req.Action, errors.NewInsufficientFunds(required, acc.Balance))
		}
	} else {
		required = margin + fees
		delta = value - margin - fees
		if required > acc.Balance {
			return l.reject(contract.Symbol, req.Action, errors.NewInsufficientMargin(required, acc.Balance))
		}
	}
	acc.Balance += delta

	pos := models.OptionPosition{
		ID:             l.newID(),
		Symbol:         contract.Symbol,
		Underlying:     req.Underlying,
		Strike:         req.Strike,
		Expiry:         contract.Expiry,
		Type:           req.Type,
		Action:         req.Action,
		Lots:           req.Lots,
		LotSize:        contract.LotSize,
		EntryPremium:   contract.Premium,
		CurrentPremium: contract.Premium,
		Margin:         margin,
		Status:         models.OptionPositionOpen,
		CreatedAt:      now,
	}

	verb := "Bought"
	if req.Action == models.OrderSideSell {
		verb = "Sold"
	}
	msg := fmt.Sprintf("%s %d lot(s) of %s @ ₹%.2f (charges ₹%.2f, margin ₹%.2f)", verb, req.Lots, contract.Symbol, contract.Premium, fees, margin)
	order := l.optionOrder(pos, req.Action, contract.Premium, units, bd.Charges(), -delta, msg)

	cs := &store.Changeset{
		Account:         &acc,
		Orders:          []models.Order{order},
		OptionPositions: []models.OptionPosition{pos},
		Prices:          map[string]float64{req.Underlying: spot},
	}
	if err := l.commit(ctx, cs); err != nil {
		return l.reject(contract.Symbol, req.Action, err)
	}
	l.executed(&order)
	return Result{Success: true, Message: msg, ID: pos.ID}
}

// optionOrder builds the order-log record for an option execution.
func (l *Ledger) optionOrder(pos models.OptionPosition, side models.OrderSide, premium float64, units int, c models.Charges, net float64, msg string) models.Order {
	now := l.now()
	if net < 0 {
		net = -net
	}
	return models.Order{
		ID:           l.newID(),
		ParentID:     pos.ID,
		Symbol:       pos.Symbol,
		Exchange:     models.NFO,
		Side:         side,
		Type:         models.OrderTypeMarket,
		Product:      models.ProductNRML,
		Quantity:     units,
		Price:        premium,
		Validity:     models.ValidityDay,
		Status:       models.OrderExecuted,
		AveragePrice: premium,
		Charges:      c,
		NetAmount:    net,
		Message:      msg,
		PlacedAt:     now,
		UpdatedAt:    now,
	}
}

// resolveExpiry maps the requested expiry onto the chain's expiries by
// calendar date in IST.
func (l *Ledger) resolveExpiry(req OptionOrder) (time.Time, error) {
	expiries := l.chain.Expiries()
	if len(expiries) == 0 {
		return time.Time{}, errors.NewContractNotFound(req.Underlying)
	}
	if req.Expiry.IsZero() {
		return expiries[0], nil
	}
	want := req.Expiry.In(options.IST).Format("2006-01-02")
	for _, e := range expiries {
		if e.In(options.IST).Format("2006-01-02") == want {
			return e, nil
		}
	}
	return time.Time{}, errors.NewContractNotFound(models.ContractSymbol(req.Underlying, req.Expiry, req.Strike, req.Type))
}

func (l *Ledger) findOptionPosition(id string) (models.OptionPosition, error) {
	for _, op := range l.snap.OptionPositions {
		if op.ID == id || (op.Symbol == strings.ToUpper(id) && op.Status == models.OptionPositionOpen) {
			if op.Status != models.OptionPositionOpen {
				return models.OptionPosition{}, errors.Wrapf(errors.NewPositionNotFound(id), "option position is %s", op.Status)
			}
			return op, nil
		}
	}
	return models.OptionPosition{}, errors.NewPositionNotFound(id)
}

// premium reprices an open position from the underlying's current price.
func (l *Ledger) premium(ctx context.Context, op models.OptionPosition) (float64, error) {
	spot, _, err := l.resolvePrice(ctx, op.Underlying)
	if err != nil {
		return 0, err
	}
	t := options.YearsToExpiry(l.now(), op.Expiry)
	if t <= 0 {
		return options.Intrinsic(spot, op.Strike, op.Type), nil
	}
	p, err := options.Price(spot, op.Strike, t, l.cfg.DefaultVolatility, l.chain.Config().RiskFreeRate, op.Type)
	if err != nil {
		return 0, err
	}
	return round2(p), nil
}

// SquareOffOption closes an open option position at the current premium,
// releasing margin and booking realized P&L net of exit charges. id may be
// the position ID or the contract symbol.
func (l *Ledger) SquareOffOption(ctx context.Context, id string) Result {
	l.mu.Lock()
	defer l.mu.Unlock()

	op, err := l.findOptionPosition(id)
	if err != nil {
		return l.reject(id, "", err)
	}
	exit := models.OrderSideSell
	if op.Action == models.OrderSideSell {
		exit = models.OrderSideBuy
	}
	premium, err := l.premium(ctx, op)
	if err != nil {
		return l.reject(op.Symbol, exit, err)
	}

	units := op.Units()
	entryValue := op.EntryPremium * float64(units)
	exitValue := premium * float64(units)
	bd := l.cfg.Charges.Compute(exit, exitValue)
	fees := bd.TotalFloat()

	acc := l.account()
	var realized, delta float64
	if op.Action == models.OrderSideBuy {
		realized = exitValue - entryValue - fees
		delta = exitValue - fees
	} else {
		realized = entryValue - exitValue - fees
		delta = op.Margin - exitValue - fees
	}
	acc.Balance += delta

	now := l.now()
	op.Reprice(premium)
	op.RealizedPnL = realized
	op.Status = models.OptionPositionClosed
	op.ClosedAt = &now

	msg := fmt.Sprintf("Squared off %s @ ₹%.2f (charges ₹%.2f, realized P&L ₹%.2f)", op.Symbol, premium, fees, realized)
	order := l.optionOrder(op, exit, premium, units, bd.Charges(), delta, msg)

	cs := &store.Changeset{
		Account:         &acc,
		Orders:          []models.Order{order},
		OptionPositions: []models.OptionPosition{op},
	}
	if err := l.commit(ctx, cs); err != nil {
		return l.reject(op.Symbol, exit, err)
	}
	l.executed(&order)
	return Result{Success: true, Message: msg, ID: op.ID}
}

// UpdateOptionPremiums reprices every open option position and returns how
// many were updated. Positions past expiry are left for ExpireOptions.
func (l *Ledger) UpdateOptionPremiums(ctx context.Context) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	cs := &store.Changeset{}
	for _, op := range l.snap.OptionPositions {
		if op.Status != models.OptionPositionOpen || !op.Expiry.After(now) {
			continue
		}
		premium, err := l.premium(ctx, op)
		if err != nil {
			l.logger.Debug().Err(err).Str("symbol", op.Symbol).Msg("Option repricing skipped")
			continue
		}
		if premium == op.CurrentPremium {
			continue
		}
		op.Reprice(premium)
		cs.OptionPositions = append(cs.OptionPositions, op)
	}
	if cs.Empty() {
		return 0, nil
	}
	if err := l.commit(ctx, cs); err != nil {
		return 0, err
	}
	return len(cs.OptionPositions), nil
}

// ExpireOptions settles every open position whose expiry has passed at
// intrinsic value and marks it EXPIRED. Settlement carries no charges.
func (l *Ledger) ExpireOptions(ctx context.Context) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	acc := l.account()
	cs := &store.Changeset{}
	for _, op := range l.snap.OptionPositions {
		if op.Status != models.OptionPositionOpen || op.Expiry.After(now) {
			continue
		}
		settle := op.CurrentPremium
		if spot, _, err := l.resolvePrice(ctx, op.Underlying); err == nil {
			settle = options.Intrinsic(spot, op.Strike, op.Type)
		}

		units := float64(op.Units())
		if op.Action == models.OrderSideBuy {
			op.RealizedPnL = (settle - op.EntryPremium) * units
			acc.Balance += settle * units
		} else {
			op.RealizedPnL = (op.EntryPremium - settle) * units
			acc.Balance += op.Margin - settle*units
		}
		op.Reprice(settle)
		op.Status = models.OptionPositionExpired
		closedAt := now
		op.ClosedAt = &closedAt
		cs.OptionPositions = append(cs.OptionPositions, op)

		logging.LogExpiry(l.logger, op.Symbol, settle, op.RealizedPnL)
	}
	if len(cs.OptionPositions) == 0 {
		return 0, nil
	}
	cs.Account = &acc
	if err := l.commit(ctx, cs); err != nil {
		return 0, err
	}
	return len(cs.OptionPositions), nil
}

// OptionPositions returns option positions in creation order. With open
// set, only OPEN positions are returned.
func (l *Ledger) OptionPositions(open bool) []models.OptionPosition {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]models.OptionPosition, 0, len(l.snap.OptionPositions))
	for _, op := range l.snap.OptionPositions {
		if open && op.Status != models.OptionPositionOpen {
			continue
		}
		out = append(out, op)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

func round2(x float64) float64 {
	return math.Round(x*100) / 100
}
