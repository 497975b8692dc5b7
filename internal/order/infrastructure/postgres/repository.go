package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	inventory "github.com/dmehra2102/Food-Ordering-System/internal/inventory/domain"
	"github.com/dmehra2102/Food-Ordering-System/internal/order/domain"
)

const schema = `
CREATE TABLE IF NOT EXISTS orders (
	id                 TEXT PRIMARY KEY,
	reference          TEXT NOT NULL,
	venue              TEXT NOT NULL,
	total_price        NUMERIC(10,2) NOT NULL,
	payment_required   BOOLEAN NOT NULL,
	payment_session_id TEXT NOT NULL DEFAULT '',
	payment_provider   TEXT,
	payment_amount     NUMERIC(10,2),
	paid_at            TIMESTAMPTZ,
	is_done            BOOLEAN NOT NULL DEFAULT false,
	is_paid            BOOLEAN NOT NULL DEFAULT false,
	is_cancelled       BOOLEAN NOT NULL DEFAULT false,
	cancel_reason      TEXT NOT NULL DEFAULT '',
	created_at         TIMESTAMPTZ NOT NULL,
	updated_at         TIMESTAMPTZ NOT NULL,
	version            INTEGER NOT NULL
);
CREATE UNIQUE INDEX IF NOT EXISTS orders_active_reference
	ON orders (reference) WHERE NOT is_done AND NOT is_cancelled;
CREATE INDEX IF NOT EXISTS orders_awaiting_payment
	ON orders (created_at) WHERE payment_required AND NOT is_paid AND NOT is_cancelled;
CREATE TABLE IF NOT EXISTS order_lines (
	order_id     TEXT NOT NULL REFERENCES orders(id),
	position     INTEGER NOT NULL,
	menu_item_id TEXT NOT NULL,
	name         TEXT NOT NULL,
	unit_price   NUMERIC(10,2) NOT NULL,
	PRIMARY KEY (order_id, position)
);
CREATE TABLE IF NOT EXISTS outbox (
	id             BIGSERIAL PRIMARY KEY,
	aggregate_type TEXT NOT NULL,
	aggregate_id   TEXT NOT NULL,
	type           TEXT NOT NULL,
	payload        JSONB NOT NULL,
	headers        JSONB NOT NULL DEFAULT '{}',
	traceparent    TEXT NOT NULL DEFAULT '',
	created_at     TIMESTAMPTZ NOT NULL DEFAULT now(),
	status         TEXT NOT NULL DEFAULT 'pending',
	relay_id       TEXT,
	lease_until    TIMESTAMPTZ,
	retry_count    INTEGER NOT NULL DEFAULT 0,
	last_error     TEXT
);`

const uniqueViolation = "23505"

type Repository struct {
	log  *slog.Logger
	pool *pgxpool.Pool
}

func NewRepository(log *slog.Logger, pool *pgxpool.Pool) *Repository {
	return &Repository{log: log, pool: pool}
}

func (r *Repository) EnsureSchema(ctx context.Context) error {
	_, err := r.pool.Exec(ctx, schema)
	return err
}

func (r *Repository) SaveWithOutbox(ctx context.Context, o domain.Order, prevVersion int, eventType string, payload []byte, headers map[string]string, traceparent string) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	var provider, paidAt, amount any
	if o.Payment != nil {
		provider, paidAt, amount = o.Payment.Provider, o.Payment.PaidAt, o.Payment.Amount.String()
	}

	if prevVersion == 0 {
		_, err = tx.Exec(ctx, `INSERT INTO orders (id, reference, venue, total_price, payment_required, payment_session_id,
				payment_provider, payment_amount, paid_at, is_done, is_paid, is_cancelled, cancel_reason, created_at, updated_at, version)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16)`,
			o.ID, o.Reference, o.Venue, o.TotalPrice.String(), o.PaymentRequired, o.PaymentSessionID,
			provider, amount, paidAt, o.IsDone, o.IsPaid, o.IsCancelled, string(o.CancelReason), o.CreatedAt, o.UpdatedAt, o.Version)
		if err != nil {
			var pgErr *pgconn.PgError
			if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
				if pgErr.ConstraintName == "orders_pkey" {
					return domain.ErrConflict
				}
				return domain.ErrDuplicateReference
			}
			return err
		}

		batch := &pgx.Batch{}
		for i, line := range o.Lines {
			batch.Queue(`INSERT INTO order_lines (order_id, position, menu_item_id, name, unit_price) VALUES ($1,$2,$3,$4,$5)`,
				o.ID, i, string(line.MenuItemID), line.Name, line.UnitPrice.String())
		}
		if err = tx.SendBatch(ctx, batch).Close(); err != nil {
			return err
		}
	} else {
		ct, err := tx.Exec(ctx, `UPDATE orders SET payment_session_id=$3, payment_provider=$4, payment_amount=$5, paid_at=$6,
				is_done=$7, is_paid=$8, is_cancelled=$9, cancel_reason=$10, updated_at=$11, version=$12
			WHERE id=$1 AND version=$2`,
			o.ID, prevVersion, o.PaymentSessionID, provider, amount, paidAt,
			o.IsDone, o.IsPaid, o.IsCancelled, string(o.CancelReason), o.UpdatedAt, o.Version)
		if err != nil {
			return err
		}
		if ct.RowsAffected() == 0 {
			return domain.ErrConflict
		}
	}

	_, err = tx.Exec(ctx, `INSERT INTO outbox (aggregate_type, aggregate_id, type, payload, headers, traceparent, status)
		VALUES ($1,$2,$3,$4,$5,$6,'pending')`,
		"order", o.ID, eventType, payload, headers, traceparent)
	if err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (r *Repository) Get(ctx context.Context, id string) (domain.Order, error) {
	var (
		o                domain.Order
		total, reason    string
		provider, amount *string
		paidAt           *time.Time
	)
	err := r.pool.QueryRow(ctx, `SELECT id, reference, venue, total_price::text, payment_required, payment_session_id,
			payment_provider, payment_amount::text, paid_at, is_done, is_paid, is_cancelled, cancel_reason, created_at, updated_at, version
		FROM orders WHERE id=$1`, id).
		Scan(&o.ID, &o.Reference, &o.Venue, &total, &o.PaymentRequired, &o.PaymentSessionID,
			&provider, &amount, &paidAt, &o.IsDone, &o.IsPaid, &o.IsCancelled, &reason, &o.CreatedAt, &o.UpdatedAt, &o.Version)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Order{}, domain.ErrOrderNotFound
	}
	if err != nil {
		return domain.Order{}, err
	}
	o.CancelReason = domain.CancelReason(reason)
	if o.TotalPrice, err = decimal.NewFromString(total); err != nil {
		return domain.Order{}, err
	}
	if o.IsPaid {
		p := domain.PaymentDetails{SessionID: o.PaymentSessionID}
		if provider != nil {
			p.Provider = *provider
		}
		if amount != nil {
			if p.Amount, err = decimal.NewFromString(*amount); err != nil {
				return domain.Order{}, fmt.Errorf("payment amount: %w", err)
			}
		}
		if paidAt != nil {
			p.PaidAt = *paidAt
		}
		o.Payment = &p
	}

	rows, err := r.pool.Query(ctx, `SELECT menu_item_id, name, unit_price::text FROM order_lines WHERE order_id=$1 ORDER BY position`, id)
	if err != nil {
		return domain.Order{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var itemID, name, price string
		if err := rows.Scan(&itemID, &name, &price); err != nil {
			return domain.Order{}, err
		}
		unit, err := decimal.NewFromString(price)
		if err != nil {
			return domain.Order{}, err
		}
		o.Lines = append(o.Lines, domain.OrderLine{MenuItemID: inventory.MenuItemID(itemID), Name: name, UnitPrice: unit})
	}
	return o, rows.Err()
}

func (r *Repository) ReferenceExists(ctx context.Context, reference string) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM orders WHERE reference=$1 AND NOT is_done AND NOT is_cancelled)`, reference).
		Scan(&exists)
	return exists, err
}

func (r *Repository) FindAwaitingPayment(ctx context.Context, createdBefore time.Time) ([]domain.Order, error) {
	rows, err := r.pool.Query(ctx, `SELECT id FROM orders
		WHERE payment_required AND NOT is_paid AND NOT is_cancelled AND created_at <= $1
		ORDER BY created_at`, createdBefore)
	if err != nil {
		return nil, err
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, err
	}

	orders := make([]domain.Order, 0, len(ids))
	for _, id := range ids {
		o, err := r.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		orders = append(orders, o)
	}
	return orders, nil
}
