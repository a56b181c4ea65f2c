package market

import (
	"context"
	"math"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"tradekaro/internal/errors"
	"tradekaro/internal/models"
)

// QuoteProvider supplies market quotes.
type QuoteProvider interface {
	Quote(ctx context.Context, symbol string) (*models.Quote, error)
}

// Circuit limit applied to the random walk, as a fraction of previous close.
const circuitLimit = 0.10

// Simulator produces quotes from a bounded random walk per instrument.
type Simulator struct {
	mu          sync.RWMutex
	rng         RandomSource
	volatility  float64
	instruments map[string]models.Instrument
	quotes      map[string]*models.Quote
	now         func() time.Time
	logger      zerolog.Logger
}

// NewSimulator seeds a simulator with the given catalogue at base prices.
// volatility is the per-tick standard deviation of log returns.
func NewSimulator(catalogue []models.Instrument, rng RandomSource, volatility float64, logger zerolog.Logger) *Simulator {
	s := &Simulator{
		rng:         rng,
		volatility:  volatility,
		instruments: make(map[string]models.Instrument, len(catalogue)),
		quotes:      make(map[string]*models.Quote, len(catalogue)),
		now:         time.Now,
		logger:      logger.With().Str("component", "simulator").Logger(),
	}
	for _, inst := range catalogue {
		s.instruments[inst.Symbol] = inst
		s.quotes[inst.Symbol] = s.openQuote(inst, inst.BasePrice)
	}
	return s
}

func (s *Simulator) openQuote(inst models.Instrument, price float64) *models.Quote {
	return &models.Quote{
		Symbol:       inst.Symbol,
		Name:         inst.Name,
		LTP:          price,
		Open:         price,
		High:         price,
		Low:          price,
		Close:        price,
		LotSize:      inst.LotSize,
		MarginPerLot: inst.MarginPerLot,
		Timestamp:    s.now(),
	}
}

// Quote returns a copy of the current quote for symbol.
func (s *Simulator) Quote(ctx context.Context, symbol string) (*models.Quote, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	q, ok := s.quotes[strings.ToUpper(symbol)]
	if !ok {
		return nil, errors.Wrapf(errors.ErrSymbolNotFound, "quote %s", symbol)
	}
	cp := *q
	return &cp, nil
}

// Instrument returns catalogue metadata for symbol.
func (s *Simulator) Instrument(symbol string) (models.Instrument, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	inst, ok := s.instruments[strings.ToUpper(symbol)]
	return inst, ok
}

// Instruments returns the catalogue sorted with indices first, then by symbol.
func (s *Simulator) Instruments() []models.Instrument {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]models.Instrument, 0, len(s.instruments))
	for _, inst := range s.instruments {
		out = append(out, inst)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].IsIndex() != out[j].IsIndex() {
			return out[i].IsIndex()
		}
		return out[i].Symbol < out[j].Symbol
	})
	return out
}

// Tick advances every instrument by one random-walk step.
func (s *Simulator) Tick(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	for symbol, q := range s.quotes {
		inst := s.instruments[symbol]
		step := s.volatility * s.rng.NormFloat64()
		next := q.LTP * math.Exp(step)

		lo, hi := q.Close*(1-circuitLimit), q.Close*(1+circuitLimit)
		next = math.Min(math.Max(next, lo), hi)
		next = roundToTick(next, inst.TickSize)

		s.apply(q, next, now)
		q.Volume += int64(s.rng.Intn(5000))
	}

	s.logger.Debug().Int("instruments", len(s.quotes)).Msg("Prices ticked")
	return nil
}

// SetPrice overrides the last traded price of symbol.
func (s *Simulator) SetPrice(symbol string, price float64) error {
	if price <= 0 || math.IsNaN(price) {
		return errors.NewValidationError("price", price, "must be positive")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	q, ok := s.quotes[strings.ToUpper(symbol)]
	if !ok {
		return errors.Wrapf(errors.ErrSymbolNotFound, "set price %s", symbol)
	}
	s.apply(q, price, s.now())
	return nil
}

// Restore resets quotes to previously persisted prices, treating each as
// the previous close of a new session.
func (s *Simulator) Restore(prices map[string]float64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for symbol, price := range prices {
		inst, ok := s.instruments[symbol]
		if !ok || price <= 0 {
			continue
		}
		s.quotes[symbol] = s.openQuote(inst, price)
	}
}

// Prices returns the last traded price of every instrument.
func (s *Simulator) Prices() map[string]float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]float64, len(s.quotes))
	for symbol, q := range s.quotes {
		out[symbol] = q.LTP
	}
	return out
}

func (s *Simulator) apply(q *models.Quote, price float64, now time.Time) {
	q.LTP = price
	q.High = math.Max(q.High, price)
	q.Low = math.Min(q.Low, price)
	q.Change = price - q.Close
	q.ChangePercent = 0
	if q.Close > 0 {
		q.ChangePercent = q.Change / q.Close * 100
	}
	q.Timestamp = now
}

func roundToTick(price, tick float64) float64 {
	if tick <= 0 {
		return price
	}
	return math.Round(price/tick) * tick
}
