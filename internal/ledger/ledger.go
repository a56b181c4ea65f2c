// Package ledger keeps the simulated account: cash, holdings, positions,
// the order log and the option book.
package ledger

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"tradekaro/internal/charges"
	"tradekaro/internal/errors"
	"tradekaro/internal/logging"
	"tradekaro/internal/market"
	"tradekaro/internal/metrics"
	"tradekaro/internal/models"
	"tradekaro/internal/options"
	"tradekaro/internal/store"
)

// Market is the market data the ledger trades against.
type Market interface {
	market.QuoteProvider
	Instrument(symbol string) (models.Instrument, bool)
}

// Config holds account-level settings.
type Config struct {
	InitialBalance    float64
	Charges           charges.Schedule
	DefaultVolatility float64 // used to price options
}

// DefaultConfig returns a ₹5,00,000 account with the default cost model.
func DefaultConfig() Config {
	return Config{
		InitialBalance:    500000,
		Charges:           charges.DefaultSchedule(),
		DefaultVolatility: 0.18,
	}
}

// Result is returned by every order call. Err carries the underlying error
// for errors.Is / errors.As.
type Result struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	ID      string `json:"id,omitempty"`
	Err     error  `json:"-"`
}

func failure(err error) Result {
	return Result{Success: false, Message: err.Error(), Err: err}
}

// Option configures a Ledger.
type Option func(*Ledger)

// WithLogger sets the logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(l *Ledger) {
		l.logger = logger.With().Str("component", "ledger").Logger()
	}
}

// WithMetrics records order and account metrics on m.
func WithMetrics(m *metrics.Recorder) Option {
	return func(l *Ledger) { l.metrics = m }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(l *Ledger) { l.now = now }
}

// WithChain sets the generator used to price option contracts.
func WithChain(g *options.ChainGenerator) Option {
	return func(l *Ledger) { l.chain = g }
}

// WithIDGenerator overrides order and position ID generation.
func WithIDGenerator(next func() string) Option {
	return func(l *Ledger) { l.newID = next }
}

// Ledger applies executions to the account. All mutations are serialised by
// one mutex and committed to the repository before they become visible.
type Ledger struct {
	mu      sync.Mutex
	repo    store.Repository
	market  Market
	cfg     Config
	snap    *store.Snapshot
	chain   *options.ChainGenerator
	logger  zerolog.Logger
	metrics *metrics.Recorder
	now     func() time.Time
	newID   func() string
}

// New loads the account from repo, creating it with cfg.InitialBalance on
// first use.
func New(ctx context.Context, repo store.Repository, mkt Market, cfg Config, opts ...Option) (*Ledger, error) {
	if cfg.InitialBalance <= 0 {
		return nil, errors.NewValidationError("initial_balance", cfg.InitialBalance, "must be positive")
	}
	if cfg.DefaultVolatility <= 0 {
		cfg.DefaultVolatility = DefaultConfig().DefaultVolatility
	}

	l := &Ledger{
		repo:   repo,
		market: mkt,
		cfg:    cfg,
		logger: zerolog.Nop(),
		now:    time.Now,
		newID:  uuid.NewString,
	}
	for _, opt := range opts {
		opt(l)
	}
	if l.chain == nil {
		l.chain = options.NewChainGenerator(options.DefaultChainConfig(), market.NewRandomSource(0)).WithClock(l.now)
	}

	snap, err := repo.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load account: %w", err)
	}
	l.snap = snap

	if snap.Account == nil {
		cs := &store.Changeset{Account: &store.Account{
			Balance:        cfg.InitialBalance,
			InitialBalance: cfg.InitialBalance,
			UpdatedAt:      l.now(),
		}}
		if err := l.commit(ctx, cs); err != nil {
			return nil, err
		}
		l.logger.Info().Float64("balance", cfg.InitialBalance).Msg("Account created")
	}

	l.publish()
	return l, nil
}

// commit persists cs and then applies it to the in-memory snapshot.
func (l *Ledger) commit(ctx context.Context, cs *store.Changeset) error {
	if err := l.repo.Commit(ctx, cs); err != nil {
		return fmt.Errorf("%w: %w", errors.ErrDatabaseError, err)
	}
	l.snap.Apply(cs)
	l.publish()
	return nil
}

func (l *Ledger) publish() {
	if l.snap.Account != nil {
		l.metrics.SetBalance(l.snap.Account.Balance)
	}
	l.metrics.SetRealizedPnL(l.realizedPnL())
	open := len(l.snap.Positions)
	for _, op := range l.snap.OptionPositions {
		if op.Status == models.OptionPositionOpen {
			open++
		}
	}
	l.metrics.SetOpenPositions(open)
}

// account returns a copy of the account stamped with the current time.
func (l *Ledger) account() store.Account {
	acc := *l.snap.Account
	acc.UpdatedAt = l.now()
	return acc
}

func (l *Ledger) reject(symbol string, side models.OrderSide, err error) Result {
	logging.LogRejection(l.logger, symbol, string(side), err)
	l.metrics.RecordRejection(rejectionReason(err))
	return failure(err)
}

func rejectionReason(err error) string {
	switch {
	case errors.Is(err, errors.ErrInputValidation):
		return "validation"
	case errors.Is(err, errors.ErrInsufficientFunds):
		return "insufficient_funds"
	case errors.Is(err, errors.ErrInsufficientMargin):
		return "insufficient_margin"
	case errors.Is(err, errors.ErrInsufficientQuantity):
		return "insufficient_quantity"
	case errors.Is(err, errors.ErrPositionNotFound),
		errors.Is(err, errors.ErrContractNotFound),
		errors.Is(err, errors.ErrOrderNotFound):
		return "not_found"
	case errors.Is(err, errors.ErrPricingFailed):
		return "pricing"
	case errors.Is(err, errors.ErrDatabaseError):
		return "storage"
	default:
		return "other"
	}
}

// resolvePrice returns the price to trade symbol at: the live quote, then
// the last known price, then the holding's average price.
func (l *Ledger) resolvePrice(ctx context.Context, symbol string) (float64, bool, error) {
	if q, err := l.market.Quote(ctx, symbol); err == nil && q.LTP > 0 {
		return q.LTP, true, nil
	}
	if p := l.snap.Prices[symbol]; p > 0 {
		return p, false, nil
	}
	if h, ok := l.snap.Holdings[symbol]; ok && h.AveragePrice > 0 {
		return h.AveragePrice, false, nil
	}
	return 0, false, errors.NewValidationError("symbol", symbol, "no price available")
}

// markPrice returns the price and previous close used for valuation.
// Zero price means no market data; callers fall back to cost.
func (l *Ledger) markPrice(ctx context.Context, symbol string) (float64, float64) {
	if q, err := l.market.Quote(ctx, symbol); err == nil && q.LTP > 0 {
		return q.LTP, q.Close
	}
	return l.snap.Prices[symbol], 0
}

// instrument returns catalogue metadata, or a plain NSE equity for symbols
// the market does not list.
func (l *Ledger) instrument(symbol string) models.Instrument {
	if inst, ok := l.market.Instrument(symbol); ok {
		if inst.LotSize <= 0 {
			inst.LotSize = 1
		}
		return inst
	}
	return models.Instrument{
		Symbol:   symbol,
		Name:     symbol,
		Exchange: models.NSE,
		Kind:     models.KindEquity,
		LotSize:  1,
	}
}

// checkInstrument applies the product and lot rules of inst to an order.
func checkInstrument(inst models.Instrument, product models.ProductType, qty int) error {
	if !inst.IsIndex() {
		return nil
	}
	if product != models.ProductNRML && product != models.ProductMIS {
		return errors.NewValidationError("product", product, fmt.Sprintf("%s trades as NRML or MIS only", inst.Symbol))
	}
	if qty%inst.LotSize != 0 {
		return errors.NewValidationError("quantity", qty, fmt.Sprintf("must be a multiple of the lot size %d", inst.LotSize))
	}
	return nil
}

// checkHeld verifies a SELL against the open position, failing closed.
func (l *Ledger) checkHeld(symbol string, product models.ProductType, qty int) error {
	key := models.PositionKey(symbol, product)
	pos, ok := l.snap.Positions[key]
	if !ok {
		return errors.NewPositionNotFound(key)
	}
	if qty > pos.Quantity {
		return errors.NewInsufficientQuantity(qty, pos.Quantity)
	}
	return nil
}

// Reset clears every holding, position, order and option position and
// starts over with initialBalance (the configured balance when zero).
func (l *Ledger) Reset(ctx context.Context, initialBalance float64) error {
	if initialBalance < 0 {
		return errors.NewValidationError("initial_balance", initialBalance, "must not be negative")
	}
	if initialBalance == 0 {
		initialBalance = l.cfg.InitialBalance
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.repo.Reset(ctx); err != nil {
		return fmt.Errorf("%w: %w", errors.ErrDatabaseError, err)
	}
	cs := &store.Changeset{Account: &store.Account{
		Balance:        initialBalance,
		InitialBalance: initialBalance,
		UpdatedAt:      l.now(),
	}}
	// The in-memory state is only replaced once the new account is stored.
	if err := l.repo.Commit(ctx, cs); err != nil {
		l.logger.Error().Err(err).Msg("Reset cleared storage but could not store the new account")
		return fmt.Errorf("%w: %w", errors.ErrDatabaseError, err)
	}
	fresh := store.NewSnapshot()
	fresh.Apply(cs)
	l.snap = fresh
	l.publish()
	l.logger.Info().Float64("balance", initialBalance).Msg("Account reset")
	return nil
}

// RecordPrices stores last known prices for the fallback used when the
// market has no quote.
func (l *Ledger) RecordPrices(ctx context.Context, prices map[string]float64) error {
	if len(prices) == 0 {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	cs := &store.Changeset{Prices: make(map[string]float64, len(prices))}
	for symbol, p := range prices {
		if p > 0 {
			cs.Prices[symbol] = p
		}
	}
	return l.commit(ctx, cs)
}

// Balance returns the available cash.
func (l *Ledger) Balance() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.snap.Account.Balance
}

// InitialBalance returns the balance the account started with.
func (l *Ledger) InitialBalance() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.snap.Account.InitialBalance
}

// Prices returns a copy of the last known prices.
func (l *Ledger) Prices() map[string]float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make(map[string]float64, len(l.snap.Prices))
	for k, v := range l.snap.Prices {
		out[k] = v
	}
	return out
}

// Holdings returns delivery holdings marked to market, sorted by symbol.
func (l *Ledger) Holdings(ctx context.Context) []models.Holding {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.holdings(ctx)
}

func (l *Ledger) holdings(ctx context.Context) []models.Holding {
	out := make([]models.Holding, 0, len(l.snap.Holdings))
	for _, h := range l.snap.Holdings {
		price, prev := l.markPrice(ctx, h.Symbol)
		if price <= 0 {
			price = h.AveragePrice
		}
		h.MarkToMarket(price, prev)
		out = append(out, h)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out
}

// Positions returns open positions marked to market, sorted by key.
func (l *Ledger) Positions(ctx context.Context) []models.Position {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]models.Position, 0, len(l.snap.Positions))
	for _, p := range l.snap.Positions {
		price, _ := l.markPrice(ctx, p.Symbol)
		if price <= 0 {
			price = p.AveragePrice
		}
		p.MarkToMarket(price)
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key() < out[j].Key() })
	return out
}

// ClosedPositions returns archived positions in closing order.
func (l *Ledger) ClosedPositions() []models.ClosedPosition {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]models.ClosedPosition(nil), l.snap.Closed...)
}

// Orders returns orders matching filter, newest first.
func (l *Ledger) Orders(ctx context.Context, filter store.OrderFilter) ([]models.Order, error) {
	return l.repo.Orders(ctx, filter)
}

// Order returns a single order by ID.
func (l *Ledger) Order(id string) (models.Order, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, o := range l.snap.Orders {
		if o.ID == id {
			return o, nil
		}
	}
	return models.Order{}, errors.NewOrderNotFound(id)
}

// Summary recomputes the portfolio summary from current holdings.
func (l *Ledger) Summary(ctx context.Context) models.PortfolioSummary {
	l.mu.Lock()
	defer l.mu.Unlock()

	s := models.PortfolioSummary{
		AvailableBalance: l.snap.Account.Balance,
		RealizedPnL:      l.realizedPnL(),
		PositionCount:    len(l.snap.Positions),
	}
	for _, h := range l.holdings(ctx) {
		s.TotalValue += h.CurrentValue
		s.TotalInvested += h.TotalInvested
		s.DayChange += h.DayChange
		s.HoldingCount++
	}
	s.TotalPnL = s.TotalValue - s.TotalInvested
	if s.TotalInvested > 0 {
		s.TotalPnLPercent = s.TotalPnL / s.TotalInvested * 100
	}
	if prev := s.TotalValue - s.DayChange; prev > 0 {
		s.DayChangePercent = s.DayChange / prev * 100
	}
	for _, p := range l.snap.Positions {
		s.UsedMargin += p.MarginBlocked
	}
	for _, op := range l.snap.OptionPositions {
		if op.Status == models.OptionPositionOpen && op.Action == models.OrderSideSell {
			s.UsedMargin += op.Margin
		}
	}
	return s
}

// realizedPnL sums closed positions, partial sells on open positions and
// settled option positions.
func (l *Ledger) realizedPnL() float64 {
	total := 0.0
	for _, c := range l.snap.Closed {
		total += c.FinalPnL
	}
	for _, p := range l.snap.Positions {
		total += p.RealizedPnL
	}
	for _, op := range l.snap.OptionPositions {
		if op.Status != models.OptionPositionOpen {
			total += op.RealizedPnL
		}
	}
	return total
}
