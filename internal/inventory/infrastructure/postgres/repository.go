package postgres

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/dmehra2102/Food-Ordering-System/internal/inventory/domain"
)

const schema = `
CREATE TABLE IF NOT EXISTS stock_pools (
	id        TEXT PRIMARY KEY,
	unbounded BOOLEAN NOT NULL DEFAULT false,
	stock     INTEGER NOT NULL DEFAULT 0 CHECK (stock >= 0)
);
CREATE TABLE IF NOT EXISTS menu_items (
	id        TEXT PRIMARY KEY,
	name      TEXT NOT NULL,
	price     NUMERIC(10,2) NOT NULL,
	unbounded BOOLEAN NOT NULL DEFAULT false,
	stock     INTEGER NOT NULL DEFAULT 0 CHECK (stock >= 0),
	pool_id   TEXT REFERENCES stock_pools(id)
);`

type Repository struct {
	log  *slog.Logger
	pool *pgxpool.Pool
}

func NewRepository(log *slog.Logger, pool *pgxpool.Pool) *Repository {
	return &Repository{
		log:  log,
		pool: pool,
	}
}

func (r *Repository) EnsureSchema(ctx context.Context) error {
	_, err := r.pool.Exec(ctx, schema)
	return err
}

func (r *Repository) LoadCatalog(ctx context.Context) ([]domain.MenuItem, []domain.StockPool, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, unbounded, stock FROM stock_pools ORDER BY id`)
	if err != nil {
		return nil, nil, err
	}
	var pools []domain.StockPool
	for rows.Next() {
		var (
			id        string
			unbounded bool
			stock     int
		)
		if err := rows.Scan(&id, &unbounded, &stock); err != nil {
			rows.Close()
			return nil, nil, err
		}
		pools = append(pools, domain.StockPool{ID: domain.PoolID(id), Stock: quantity(unbounded, stock)})
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, nil, err
	}

	rows, err = r.pool.Query(ctx, `SELECT id, name, price::text, unbounded, stock, COALESCE(pool_id, '') FROM menu_items ORDER BY id`)
	if err != nil {
		return nil, nil, err
	}
	defer rows.Close()

	var items []domain.MenuItem
	for rows.Next() {
		var (
			id, name, price, poolID string
			unbounded               bool
			stock                   int
		)
		if err := rows.Scan(&id, &name, &price, &unbounded, &stock, &poolID); err != nil {
			return nil, nil, err
		}
		p, err := decimal.NewFromString(price)
		if err != nil {
			return nil, nil, fmt.Errorf("parse price of %s: %w", id, err)
		}
		items = append(items, domain.MenuItem{
			ID:     domain.MenuItemID(id),
			Name:   name,
			Price:  p,
			Stock:  quantity(unbounded, stock),
			PoolID: domain.PoolID(poolID),
		})
	}
	return items, pools, rows.Err()
}

func (r *Repository) SaveCounters(ctx context.Context, levels []domain.CounterLevel) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	batch := &pgx.Batch{}
	for _, lv := range levels {
		if lv.Counter.IsPool() {
			batch.Queue(`UPDATE stock_pools SET stock=$2 WHERE id=$1 AND NOT unbounded`,
				string(lv.Counter.PoolID()), lv.Stock.Count())
			continue
		}
		batch.Queue(`UPDATE menu_items SET stock=$2 WHERE id=$1 AND NOT unbounded`,
			string(lv.Counter.MenuItemID()), lv.Stock.Count())
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func quantity(unbounded bool, stock int) domain.Quantity {
	if unbounded {
		return domain.Unbounded()
	}
	return domain.Bounded(stock)
}
