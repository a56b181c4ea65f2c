// Package store provides persistence for the simulated account.
package store

import (
	"context"
	"fmt"
	"sort"
	"time"

	"tradekaro/internal/models"
)

// Account is the cash side of the simulated account.
type Account struct {
	Balance        float64   `json:"balance"`
	InitialBalance float64   `json:"initial_balance"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// Snapshot is the full persisted state.
type Snapshot struct {
	Account         *Account // nil until the first commit
	Holdings        map[string]models.Holding
	Positions       map[string]models.Position // keyed by Position.Key()
	Closed          []models.ClosedPosition    // in closing order
	Orders          []models.Order             // in placement order
	OptionPositions []models.OptionPosition
	Prices          map[string]float64 // last known prices
}

// NewSnapshot returns an empty snapshot.
func NewSnapshot() *Snapshot {
	return &Snapshot{
		Holdings:  make(map[string]models.Holding),
		Positions: make(map[string]models.Position),
		Prices:    make(map[string]float64),
	}
}

// Clone returns a deep copy of s.
func (s *Snapshot) Clone() *Snapshot {
	out := NewSnapshot()
	if s.Account != nil {
		acc := *s.Account
		out.Account = &acc
	}
	for k, v := range s.Holdings {
		out.Holdings[k] = v
	}
	for k, v := range s.Positions {
		out.Positions[k] = v
	}
	for k, v := range s.Prices {
		out.Prices[k] = v
	}
	out.Closed = append([]models.ClosedPosition(nil), s.Closed...)
	out.Orders = append([]models.Order(nil), s.Orders...)
	out.OptionPositions = make([]models.OptionPosition, len(s.OptionPositions))
	for i, op := range s.OptionPositions {
		if op.ClosedAt != nil {
			t := *op.ClosedAt
			op.ClosedAt = &t
		}
		out.OptionPositions[i] = op
	}
	return out
}

// Apply merges cs into s with the same semantics every Repository gives Commit.
func (s *Snapshot) Apply(cs *Changeset) {
	if cs.Account != nil {
		acc := *cs.Account
		s.Account = &acc
	}
	for _, h := range cs.Holdings {
		s.Holdings[h.Symbol] = h
	}
	for _, symbol := range cs.DeletedHoldings {
		delete(s.Holdings, symbol)
	}
	for _, p := range cs.Positions {
		s.Positions[p.Key()] = p
	}
	for _, key := range cs.DeletedPositions {
		delete(s.Positions, key)
	}
	s.Closed = append(s.Closed, cs.Closed...)
	for _, o := range cs.Orders {
		if i := findOrder(s.Orders, o.ID); i >= 0 {
			s.Orders[i] = o
			continue
		}
		s.Orders = append(s.Orders, o)
	}
	for _, op := range cs.OptionPositions {
		if i := findOptionPosition(s.OptionPositions, op.ID); i >= 0 {
			s.OptionPositions[i] = op
			continue
		}
		s.OptionPositions = append(s.OptionPositions, op)
	}
	for symbol, price := range cs.Prices {
		s.Prices[symbol] = price
	}
}

// findOrder searches from the end; updates usually touch recent orders.
func findOrder(orders []models.Order, id string) int {
	for i := len(orders) - 1; i >= 0; i-- {
		if orders[i].ID == id {
			return i
		}
	}
	return -1
}

func findOptionPosition(ops []models.OptionPosition, id string) int {
	for i := range ops {
		if ops[i].ID == id {
			return i
		}
	}
	return -1
}

// Changeset is a set of writes applied atomically by Commit.
// Orders and option positions are upserted by ID; closed positions are appended.
type Changeset struct {
	Account          *Account
	Holdings         []models.Holding
	DeletedHoldings  []string
	Positions        []models.Position
	DeletedPositions []string
	Closed           []models.ClosedPosition
	Orders           []models.Order
	OptionPositions  []models.OptionPosition
	Prices           map[string]float64
}

// Empty reports whether the changeset carries no writes.
func (c *Changeset) Empty() bool {
	return c.Account == nil &&
		len(c.Holdings) == 0 && len(c.DeletedHoldings) == 0 &&
		len(c.Positions) == 0 && len(c.DeletedPositions) == 0 &&
		len(c.Closed) == 0 && len(c.Orders) == 0 &&
		len(c.OptionPositions) == 0 && len(c.Prices) == 0
}

// OrderFilter filters order queries.
type OrderFilter struct {
	Symbol string
	Side   models.OrderSide
	Status models.OrderStatus
	Limit  int
}

func (f OrderFilter) match(o *models.Order) bool {
	if f.Symbol != "" && o.Symbol != f.Symbol {
		return false
	}
	if f.Side != "" && o.Side != f.Side {
		return false
	}
	if f.Status != "" && o.Status != f.Status {
		return false
	}
	return true
}

// Repository persists the account. Implementations must apply a Changeset
// all-or-nothing.
type Repository interface {
	Load(ctx context.Context) (*Snapshot, error)
	Commit(ctx context.Context, cs *Changeset) error
	Orders(ctx context.Context, filter OrderFilter) ([]models.Order, error)
	Reset(ctx context.Context) error
	Close() error
}

// Options selects and configures a Repository implementation.
type Options struct {
	Driver         string // sqlite, memory, redis
	Path           string
	RedisAddr      string
	RedisDB        int
	RedisKeyPrefix string
}

// Open returns the Repository named by opts.Driver.
func Open(ctx context.Context, opts Options) (Repository, error) {
	switch opts.Driver {
	case "memory":
		return NewMemoryStore(), nil
	case "sqlite", "":
		return NewSQLiteStore(opts.Path)
	case "redis":
		return NewRedisStore(ctx, opts.RedisAddr, opts.RedisDB, opts.RedisKeyPrefix)
	default:
		return nil, fmt.Errorf("unknown store driver: %s", opts.Driver)
	}
}

// filterOrders applies f to orders, newest first.
func filterOrders(orders []models.Order, f OrderFilter) []models.Order {
	out := make([]models.Order, 0, len(orders))
	for i := range orders {
		if f.match(&orders[i]) {
			out = append(out, orders[i])
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].PlacedAt.After(out[j].PlacedAt)
	})
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out
}

func sortOrders(orders []models.Order) {
	sort.SliceStable(orders, func(i, j int) bool {
		return orders[i].PlacedAt.Before(orders[j].PlacedAt)
	})
}

func sortOptionPositions(ops []models.OptionPosition) {
	sort.SliceStable(ops, func(i, j int) bool {
		return ops[i].CreatedAt.Before(ops[j].CreatedAt)
	})
}
