package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"tradekaro/internal/models"
)

// SQLiteStore implements Repository using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (creating if needed) the database at dbPath.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	if dir := filepath.Dir(dbPath); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Single writer; the ledger serialises mutations anyway.
	db.SetMaxOpenConns(1)
	db.SetConnMaxLifetime(time.Hour)

	store := &SQLiteStore{db: db}
	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return store, nil
}

// initSchema creates all required tables and indexes.
func (s *SQLiteStore) initSchema() error {
	schema := `
	-- Cash account, single row
	CREATE TABLE IF NOT EXISTS account (
		id INTEGER PRIMARY KEY CHECK (id = 1),
		balance REAL NOT NULL,
		initial_balance REAL NOT NULL,
		updated_at DATETIME NOT NULL
	);

	-- Delivery holdings
	CREATE TABLE IF NOT EXISTS holdings (
		symbol TEXT PRIMARY KEY,
		name TEXT,
		quantity INTEGER NOT NULL,
		average_price REAL NOT NULL,
		total_invested REAL NOT NULL,
		first_bought_at DATETIME,
		updated_at DATETIME
	);

	-- Open stock and index positions keyed by symbol:product
	CREATE TABLE IF NOT EXISTS positions (
		pos_key TEXT PRIMARY KEY,
		id TEXT NOT NULL,
		symbol TEXT NOT NULL,
		name TEXT,
		exchange TEXT NOT NULL,
		product TEXT NOT NULL,
		kind TEXT NOT NULL,
		quantity INTEGER NOT NULL,
		bought_qty INTEGER NOT NULL,
		sold_qty INTEGER NOT NULL,
		average_price REAL NOT NULL,
		total_invested REAL NOT NULL,
		total_bought REAL NOT NULL,
		total_sold REAL NOT NULL,
		margin_blocked REAL NOT NULL,
		lot_size INTEGER NOT NULL,
		realized_pnl REAL NOT NULL,
		status TEXT NOT NULL,
		opened_at DATETIME,
		updated_at DATETIME
	);

	-- Archive of fully closed positions
	CREATE TABLE IF NOT EXISTS closed_positions (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		id TEXT NOT NULL UNIQUE,
		symbol TEXT NOT NULL,
		name TEXT,
		product TEXT NOT NULL,
		kind TEXT NOT NULL,
		quantity INTEGER NOT NULL,
		average_buy_price REAL NOT NULL,
		average_sell_price REAL NOT NULL,
		total_bought REAL NOT NULL,
		total_sold REAL NOT NULL,
		final_pnl REAL NOT NULL,
		pnl_percent REAL NOT NULL,
		opened_at DATETIME,
		closed_at DATETIME NOT NULL
	);

	-- Append-only order log; only status fields change
	CREATE TABLE IF NOT EXISTS orders (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		id TEXT NOT NULL UNIQUE,
		parent_id TEXT,
		symbol TEXT NOT NULL,
		exchange TEXT NOT NULL,
		side TEXT NOT NULL,
		type TEXT NOT NULL,
		product TEXT NOT NULL,
		quantity INTEGER NOT NULL,
		price REAL NOT NULL,
		trigger_price REAL,
		validity TEXT,
		tag TEXT,
		status TEXT NOT NULL,
		average_price REAL,
		charges TEXT,
		net_amount REAL,
		message TEXT,
		placed_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	);

	-- Option positions
	CREATE TABLE IF NOT EXISTS option_positions (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		id TEXT NOT NULL UNIQUE,
		symbol TEXT NOT NULL,
		underlying TEXT NOT NULL,
		strike REAL NOT NULL,
		expiry DATETIME NOT NULL,
		type TEXT NOT NULL,
		action TEXT NOT NULL,
		lots INTEGER NOT NULL,
		lot_size INTEGER NOT NULL,
		entry_premium REAL NOT NULL,
		current_premium REAL NOT NULL,
		pnl REAL NOT NULL,
		pnl_percent REAL NOT NULL,
		margin REAL NOT NULL,
		realized_pnl REAL NOT NULL,
		status TEXT NOT NULL,
		created_at DATETIME NOT NULL,
		closed_at DATETIME
	);

	-- Last known prices
	CREATE TABLE IF NOT EXISTS prices (
		symbol TEXT PRIMARY KEY,
		price REAL NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_orders_symbol ON orders(symbol);
	CREATE INDEX IF NOT EXISTS idx_orders_status ON orders(status);
	`

	_, err := s.db.Exec(schema)
	return err
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Load reads the full state.
func (s *SQLiteStore) Load(ctx context.Context) (*Snapshot, error) {
	snap := NewSnapshot()

	var acc Account
	err := s.db.QueryRowContext(ctx, `SELECT balance, initial_balance, updated_at FROM account WHERE id = 1`).
		Scan(&acc.Balance, &acc.InitialBalance, &acc.UpdatedAt)
	switch {
	case err == sql.ErrNoRows:
	case err != nil:
		return nil, fmt.Errorf("failed to load account: %w", err)
	default:
		snap.Account = &acc
	}

	if err := s.loadHoldings(ctx, snap); err != nil {
		return nil, err
	}
	if err := s.loadPositions(ctx, snap); err != nil {
		return nil, err
	}
	if err := s.loadClosed(ctx, snap); err != nil {
		return nil, err
	}
	orders, err := s.queryOrders(ctx, "SELECT "+orderColumns+" FROM orders ORDER BY seq ASC")
	if err != nil {
		return nil, err
	}
	snap.Orders = orders
	sortOrders(snap.Orders)
	if err := s.loadOptionPositions(ctx, snap); err != nil {
		return nil, err
	}
	if err := s.loadPrices(ctx, snap); err != nil {
		return nil, err
	}

	return snap, nil
}

func (s *SQLiteStore) loadHoldings(ctx context.Context, snap *Snapshot) error {
	rows, err := s.db.QueryContext(ctx, `
		SELECT symbol, name, quantity, average_price, total_invested, first_bought_at, updated_at
		FROM holdings
	`)
	if err != nil {
		return fmt.Errorf("failed to query holdings: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var h models.Holding
		if err := rows.Scan(&h.Symbol, &h.Name, &h.Quantity, &h.AveragePrice, &h.TotalInvested, &h.FirstBoughtAt, &h.UpdatedAt); err != nil {
			return fmt.Errorf("failed to scan holding: %w", err)
		}
		snap.Holdings[h.Symbol] = h
	}
	return rows.Err()
}

func (s *SQLiteStore) loadPositions(ctx context.Context, snap *Snapshot) error {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, symbol, name, exchange, product, kind, quantity, bought_qty, sold_qty,
			average_price, total_invested, total_bought, total_sold, margin_blocked, lot_size,
			realized_pnl, status, opened_at, updated_at
		FROM positions
	`)
	if err != nil {
		return fmt.Errorf("failed to query positions: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var p models.Position
		if err := rows.Scan(&p.ID, &p.Symbol, &p.Name, &p.Exchange, &p.Product, &p.Kind, &p.Quantity, &p.BoughtQty, &p.SoldQty,
			&p.AveragePrice, &p.TotalInvested, &p.TotalBought, &p.TotalSold, &p.MarginBlocked, &p.LotSize,
			&p.RealizedPnL, &p.Status, &p.OpenedAt, &p.UpdatedAt); err != nil {
			return fmt.Errorf("failed to scan position: %w", err)
		}
		snap.Positions[p.Key()] = p
	}
	return rows.Err()
}

func (s *SQLiteStore) loadClosed(ctx context.Context, snap *Snapshot) error {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, symbol, name, product, kind, quantity, average_buy_price, average_sell_price,
			total_bought, total_sold, final_pnl, pnl_percent, opened_at, closed_at
		FROM closed_positions
		ORDER BY seq ASC
	`)
	if err != nil {
		return fmt.Errorf("failed to query closed positions: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var c models.ClosedPosition
		if err := rows.Scan(&c.ID, &c.Symbol, &c.Name, &c.Product, &c.Kind, &c.Quantity, &c.AverageBuyPrice, &c.AverageSellPrice,
			&c.TotalBought, &c.TotalSold, &c.FinalPnL, &c.PnLPercent, &c.OpenedAt, &c.ClosedAt); err != nil {
			return fmt.Errorf("failed to scan closed position: %w", err)
		}
		snap.Closed = append(snap.Closed, c)
	}
	return rows.Err()
}

func (s *SQLiteStore) loadOptionPositions(ctx context.Context, snap *Snapshot) error {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, symbol, underlying, strike, expiry, type, action, lots, lot_size, entry_premium,
			current_premium, pnl, pnl_percent, margin, realized_pnl, status, created_at, closed_at
		FROM option_positions
		ORDER BY seq ASC
	`)
	if err != nil {
		return fmt.Errorf("failed to query option positions: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var op models.OptionPosition
		var closedAt sql.NullTime
		if err := rows.Scan(&op.ID, &op.Symbol, &op.Underlying, &op.Strike, &op.Expiry, &op.Type, &op.Action, &op.Lots, &op.LotSize,
			&op.EntryPremium, &op.CurrentPremium, &op.PnL, &op.PnLPercent, &op.Margin, &op.RealizedPnL, &op.Status,
			&op.CreatedAt, &closedAt); err != nil {
			return fmt.Errorf("failed to scan option position: %w", err)
		}
		if closedAt.Valid {
			t := closedAt.Time
			op.ClosedAt = &t
		}
		snap.OptionPositions = append(snap.OptionPositions, op)
	}
	return rows.Err()
}

func (s *SQLiteStore) loadPrices(ctx context.Context, snap *Snapshot) error {
	rows, err := s.db.QueryContext(ctx, `SELECT symbol, price FROM prices`)
	if err != nil {
		return fmt.Errorf("failed to query prices: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var symbol string
		var price float64
		if err := rows.Scan(&symbol, &price); err != nil {
			return fmt.Errorf("failed to scan price: %w", err)
		}
		snap.Prices[symbol] = price
	}
	return rows.Err()
}

// Commit applies cs in one transaction.
func (s *SQLiteStore) Commit(ctx context.Context, cs *Changeset) error {
	if cs.Empty() {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if cs.Account != nil {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO account (id, balance, initial_balance, updated_at) VALUES (1, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET balance = excluded.balance, initial_balance = excluded.initial_balance, updated_at = excluded.updated_at
		`, cs.Account.Balance, cs.Account.InitialBalance, cs.Account.UpdatedAt)
		if err != nil {
			return fmt.Errorf("failed to save account: %w", err)
		}
	}

	for _, h := range cs.Holdings {
		_, err := tx.ExecContext(ctx, `
			INSERT OR REPLACE INTO holdings (symbol, name, quantity, average_price, total_invested, first_bought_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)
		`, h.Symbol, h.Name, h.Quantity, h.AveragePrice, h.TotalInvested, h.FirstBoughtAt, h.UpdatedAt)
		if err != nil {
			return fmt.Errorf("failed to save holding: %w", err)
		}
	}
	for _, symbol := range cs.DeletedHoldings {
		if _, err := tx.ExecContext(ctx, `DELETE FROM holdings WHERE symbol = ?`, symbol); err != nil {
			return fmt.Errorf("failed to delete holding: %w", err)
		}
	}

	for _, p := range cs.Positions {
		_, err := tx.ExecContext(ctx, `
			INSERT OR REPLACE INTO positions (pos_key, id, symbol, name, exchange, product, kind, quantity, bought_qty, sold_qty,
				average_price, total_invested, total_bought, total_sold, margin_blocked, lot_size, realized_pnl, status, opened_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, p.Key(), p.ID, p.Symbol, p.Name, p.Exchange, p.Product, p.Kind, p.Quantity, p.BoughtQty, p.SoldQty,
			p.AveragePrice, p.TotalInvested, p.TotalBought, p.TotalSold, p.MarginBlocked, p.LotSize, p.RealizedPnL, p.Status, p.OpenedAt, p.UpdatedAt)
		if err != nil {
			return fmt.Errorf("failed to save position: %w", err)
		}
	}
	for _, key := range cs.DeletedPositions {
		if _, err := tx.ExecContext(ctx, `DELETE FROM positions WHERE pos_key = ?`, key); err != nil {
			return fmt.Errorf("failed to delete position: %w", err)
		}
	}

	for _, c := range cs.Closed {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO closed_positions (id, symbol, name, product, kind, quantity, average_buy_price, average_sell_price,
				total_bought, total_sold, final_pnl, pnl_percent, opened_at, closed_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, c.ID, c.Symbol, c.Name, c.Product, c.Kind, c.Quantity, c.AverageBuyPrice, c.AverageSellPrice,
			c.TotalBought, c.TotalSold, c.FinalPnL, c.PnLPercent, c.OpenedAt, c.ClosedAt)
		if err != nil {
			return fmt.Errorf("failed to archive position: %w", err)
		}
	}

	if err := saveOrders(ctx, tx, cs.Orders); err != nil {
		return err
	}

	for _, op := range cs.OptionPositions {
		var closedAt interface{}
		if op.ClosedAt != nil {
			closedAt = *op.ClosedAt
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO option_positions (id, symbol, underlying, strike, expiry, type, action, lots, lot_size, entry_premium,
				current_premium, pnl, pnl_percent, margin, realized_pnl, status, created_at, closed_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET lots = excluded.lots, current_premium = excluded.current_premium,
				pnl = excluded.pnl, pnl_percent = excluded.pnl_percent, margin = excluded.margin,
				realized_pnl = excluded.realized_pnl, status = excluded.status, closed_at = excluded.closed_at
		`, op.ID, op.Symbol, op.Underlying, op.Strike, op.Expiry, op.Type, op.Action, op.Lots, op.LotSize, op.EntryPremium,
			op.CurrentPremium, op.PnL, op.PnLPercent, op.Margin, op.RealizedPnL, op.Status, op.CreatedAt, closedAt)
		if err != nil {
			return fmt.Errorf("failed to save option position: %w", err)
		}
	}

	for symbol, price := range cs.Prices {
		if _, err := tx.ExecContext(ctx, `INSERT OR REPLACE INTO prices (symbol, price) VALUES (?, ?)`, symbol, price); err != nil {
			return fmt.Errorf("failed to save price: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func saveOrders(ctx context.Context, tx *sql.Tx, orders []models.Order) error {
	if len(orders) == 0 {
		return nil
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO orders (id, parent_id, symbol, exchange, side, type, product, quantity, price, trigger_price,
			validity, tag, status, average_price, charges, net_amount, message, placed_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET status = excluded.status, average_price = excluded.average_price,
			charges = excluded.charges, net_amount = excluded.net_amount, message = excluded.message,
			updated_at = excluded.updated_at
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	for _, o := range orders {
		charges, err := json.Marshal(o.Charges)
		if err != nil {
			return fmt.Errorf("failed to encode charges: %w", err)
		}
		_, err = stmt.ExecContext(ctx, o.ID, o.ParentID, o.Symbol, o.Exchange, o.Side, o.Type, o.Product, o.Quantity, o.Price, o.TriggerPrice,
			o.Validity, o.Tag, o.Status, o.AveragePrice, string(charges), o.NetAmount, o.Message, o.PlacedAt, o.UpdatedAt)
		if err != nil {
			return fmt.Errorf("failed to save order: %w", err)
		}
	}
	return nil
}

const orderColumns = `id, parent_id, symbol, exchange, side, type, product, quantity, price, trigger_price,
	validity, tag, status, average_price, charges, net_amount, message, placed_at, updated_at`

// Orders retrieves orders from the database, newest first.
func (s *SQLiteStore) Orders(ctx context.Context, filter OrderFilter) ([]models.Order, error) {
	query := "SELECT " + orderColumns + " FROM orders WHERE 1=1"
	args := []interface{}{}

	if filter.Symbol != "" {
		query += " AND symbol = ?"
		args = append(args, filter.Symbol)
	}
	if filter.Side != "" {
		query += " AND side = ?"
		args = append(args, filter.Side)
	}
	if filter.Status != "" {
		query += " AND status = ?"
		args = append(args, filter.Status)
	}

	query += " ORDER BY placed_at DESC, seq DESC"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	return s.queryOrders(ctx, query, args...)
}

func (s *SQLiteStore) queryOrders(ctx context.Context, query string, args ...interface{}) ([]models.Order, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query orders: %w", err)
	}
	defer rows.Close()

	var orders []models.Order
	for rows.Next() {
		var o models.Order
		var parentID, validity, tag, message, charges sql.NullString
		var trigger, avg, net sql.NullFloat64

		if err := rows.Scan(&o.ID, &parentID, &o.Symbol, &o.Exchange, &o.Side, &o.Type, &o.Product, &o.Quantity, &o.Price, &trigger,
			&validity, &tag, &o.Status, &avg, &charges, &net, &message, &o.PlacedAt, &o.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan order: %w", err)
		}

		o.ParentID = parentID.String
		o.Validity = models.Validity(validity.String)
		o.Tag = tag.String
		o.Message = message.String
		o.TriggerPrice = trigger.Float64
		o.AveragePrice = avg.Float64
		o.NetAmount = net.Float64
		if charges.Valid && charges.String != "" {
			if err := json.Unmarshal([]byte(charges.String), &o.Charges); err != nil {
				return nil, fmt.Errorf("failed to decode charges: %w", err)
			}
		}
		orders = append(orders, o)
	}

	return orders, rows.Err()
}

// Reset deletes every row.
func (s *SQLiteStore) Reset(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, table := range []string{"account", "holdings", "positions", "closed_positions", "orders", "option_positions", "prices"} {
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return fmt.Errorf("failed to clear %s: %w", table, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}
