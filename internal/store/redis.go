package store

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"

	"tradekaro/internal/models"
)

// RedisStore keeps the account in Redis hashes so several processes can share it.
//
// Layout under prefix:
//
//	account          JSON string
//	holdings         hash symbol -> JSON
//	positions        hash symbol:product -> JSON
//	closed           list of JSON, closing order
//	orders           hash id -> JSON
//	orders:seq       sorted set id scored by placement time
//	options          hash id -> JSON
//	prices           hash symbol -> float
type RedisStore struct {
	client *redis.Client
	prefix string
}

// NewRedisStore connects to addr and verifies the connection.
func NewRedisStore(ctx context.Context, addr string, db int, prefix string) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr: addr,
		DB:   db,
	})
	ping := func(ctx context.Context) error { return client.Ping(ctx).Err() }
	if err := retry(ctx, defaultRetryPolicy(), ping); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return NewRedisStoreWithClient(client, prefix), nil
}

// NewRedisStoreWithClient wraps an existing client.
func NewRedisStoreWithClient(client *redis.Client, prefix string) *RedisStore {
	return &RedisStore{client: client, prefix: prefix}
}

func (r *RedisStore) key(name string) string {
	return r.prefix + name
}

func (r *RedisStore) keys() []string {
	return []string{
		r.key("account"), r.key("holdings"), r.key("positions"), r.key("closed"),
		r.key("orders"), r.key("orders:seq"), r.key("options"), r.key("prices"),
	}
}

// Load reads the full state in one pipeline.
func (r *RedisStore) Load(ctx context.Context) (*Snapshot, error) {
	var (
		account   *redis.StringCmd
		holdings  *redis.MapStringStringCmd
		positions *redis.MapStringStringCmd
		closed    *redis.StringSliceCmd
		orders    *redis.MapStringStringCmd
		seq       *redis.StringSliceCmd
		options   *redis.MapStringStringCmd
		prices    *redis.MapStringStringCmd
	)

	_, err := r.client.Pipelined(ctx, func(p redis.Pipeliner) error {
		account = p.Get(ctx, r.key("account"))
		holdings = p.HGetAll(ctx, r.key("holdings"))
		positions = p.HGetAll(ctx, r.key("positions"))
		closed = p.LRange(ctx, r.key("closed"), 0, -1)
		orders = p.HGetAll(ctx, r.key("orders"))
		seq = p.ZRange(ctx, r.key("orders:seq"), 0, -1)
		options = p.HGetAll(ctx, r.key("options"))
		prices = p.HGetAll(ctx, r.key("prices"))
		return nil
	})
	if err != nil && err != redis.Nil {
		return nil, fmt.Errorf("redis load failed: %w", err)
	}

	snap := NewSnapshot()

	if raw, err := account.Result(); err == nil {
		var acc Account
		if err := json.Unmarshal([]byte(raw), &acc); err != nil {
			return nil, fmt.Errorf("failed to decode account: %w", err)
		}
		snap.Account = &acc
	} else if err != redis.Nil {
		return nil, fmt.Errorf("failed to load account: %w", err)
	}

	for symbol, raw := range holdings.Val() {
		var h models.Holding
		if err := json.Unmarshal([]byte(raw), &h); err != nil {
			return nil, fmt.Errorf("failed to decode holding %s: %w", symbol, err)
		}
		snap.Holdings[symbol] = h
	}
	for key, raw := range positions.Val() {
		var p models.Position
		if err := json.Unmarshal([]byte(raw), &p); err != nil {
			return nil, fmt.Errorf("failed to decode position %s: %w", key, err)
		}
		snap.Positions[key] = p
	}
	for _, raw := range closed.Val() {
		var c models.ClosedPosition
		if err := json.Unmarshal([]byte(raw), &c); err != nil {
			return nil, fmt.Errorf("failed to decode closed position: %w", err)
		}
		snap.Closed = append(snap.Closed, c)
	}

	byID := orders.Val()
	for _, id := range seq.Val() {
		raw, ok := byID[id]
		if !ok {
			continue
		}
		var o models.Order
		if err := json.Unmarshal([]byte(raw), &o); err != nil {
			return nil, fmt.Errorf("failed to decode order %s: %w", id, err)
		}
		snap.Orders = append(snap.Orders, o)
	}

	for id, raw := range options.Val() {
		var op models.OptionPosition
		if err := json.Unmarshal([]byte(raw), &op); err != nil {
			return nil, fmt.Errorf("failed to decode option position %s: %w", id, err)
		}
		snap.OptionPositions = append(snap.OptionPositions, op)
	}
	sortOptionPositions(snap.OptionPositions)

	for symbol, raw := range prices.Val() {
		price, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return nil, fmt.Errorf("failed to decode price %s: %w", symbol, err)
		}
		snap.Prices[symbol] = price
	}

	return snap, nil
}

// Commit applies cs inside MULTI/EXEC.
func (r *RedisStore) Commit(ctx context.Context, cs *Changeset) error {
	if cs.Empty() {
		return nil
	}

	// Encode everything first so a marshalling failure never leaves a partial write.
	type kv struct{ field, value string }
	var (
		account   string
		holdings  []kv
		positions []kv
		closed    []interface{}
		orders    []kv
		seq       []redis.Z
		options   []kv
	)

	if cs.Account != nil {
		b, err := json.Marshal(cs.Account)
		if err != nil {
			return fmt.Errorf("failed to encode account: %w", err)
		}
		account = string(b)
	}
	for _, h := range cs.Holdings {
		b, err := json.Marshal(h)
		if err != nil {
			return fmt.Errorf("failed to encode holding: %w", err)
		}
		holdings = append(holdings, kv{h.Symbol, string(b)})
	}
	for _, p := range cs.Positions {
		b, err := json.Marshal(p)
		if err != nil {
			return fmt.Errorf("failed to encode position: %w", err)
		}
		positions = append(positions, kv{p.Key(), string(b)})
	}
	for _, c := range cs.Closed {
		b, err := json.Marshal(c)
		if err != nil {
			return fmt.Errorf("failed to encode closed position: %w", err)
		}
		closed = append(closed, string(b))
	}
	for _, o := range cs.Orders {
		b, err := json.Marshal(o)
		if err != nil {
			return fmt.Errorf("failed to encode order: %w", err)
		}
		orders = append(orders, kv{o.ID, string(b)})
		seq = append(seq, redis.Z{Score: float64(o.PlacedAt.UnixNano()), Member: o.ID})
	}
	for _, op := range cs.OptionPositions {
		b, err := json.Marshal(op)
		if err != nil {
			return fmt.Errorf("failed to encode option position: %w", err)
		}
		options = append(options, kv{op.ID, string(b)})
	}

	_, err := r.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		if account != "" {
			p.Set(ctx, r.key("account"), account, 0)
		}
		for _, h := range holdings {
			p.HSet(ctx, r.key("holdings"), h.field, h.value)
		}
		if len(cs.DeletedHoldings) > 0 {
			p.HDel(ctx, r.key("holdings"), cs.DeletedHoldings...)
		}
		for _, pos := range positions {
			p.HSet(ctx, r.key("positions"), pos.field, pos.value)
		}
		if len(cs.DeletedPositions) > 0 {
			p.HDel(ctx, r.key("positions"), cs.DeletedPositions...)
		}
		if len(closed) > 0 {
			p.RPush(ctx, r.key("closed"), closed...)
		}
		for _, o := range orders {
			p.HSet(ctx, r.key("orders"), o.field, o.value)
		}
		if len(seq) > 0 {
			// NX keeps the original placement score on status updates.
			p.ZAddNX(ctx, r.key("orders:seq"), seq...)
		}
		for _, op := range options {
			p.HSet(ctx, r.key("options"), op.field, op.value)
		}
		for symbol, price := range cs.Prices {
			p.HSet(ctx, r.key("prices"), symbol, strconv.FormatFloat(price, 'f', -1, 64))
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis commit failed: %w", err)
	}
	return nil
}

// Orders returns orders matching filter, newest first.
func (r *RedisStore) Orders(ctx context.Context, filter OrderFilter) ([]models.Order, error) {
	snap, err := r.Load(ctx)
	if err != nil {
		return nil, err
	}
	return filterOrders(snap.Orders, filter), nil
}

// Reset deletes every key under the prefix.
func (r *RedisStore) Reset(ctx context.Context) error {
	if err := r.client.Del(ctx, r.keys()...).Err(); err != nil {
		return fmt.Errorf("redis reset failed: %w", err)
	}
	return nil
}

// Close closes the client.
func (r *RedisStore) Close() error {
	return r.client.Close()
}
