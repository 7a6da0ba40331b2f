package shop

import (
	"context"
	"fmt"

	"github.com/eamaze/shopcore/internal/postgres"
	"github.com/jackc/pgx/v5"
)

// Ledger is the authoritative stock accounting. Reserved quantity is held in
// items.qty_reserved and mirrored per order in the reservations table; a
// commit permanently decrements qty_available.
type Ledger struct{ DB postgres.Pool }

type StockShort struct {
	ItemID    string `json:"item_id"`
	Required  int    `json:"required"`
	Available int    `json:"available"`
}

// ReserveAllTx locks each item row (FOR UPDATE) and increments qty_reserved.
// All-or-nothing: any short item is reported and the caller must roll the
// transaction back, which also undoes the reservations that did fit.
func (l *Ledger) ReserveAllTx(ctx context.Context, tx pgx.Tx, orderID string, items []ItemQty) ([]StockShort, error) {
	var shorts []StockShort
	for _, it := range items {
		var avail, reserved int
		err := tx.QueryRow(ctx,
			`SELECT qty_available, qty_reserved FROM items WHERE id=$1 FOR UPDATE`,
			it.ItemID).Scan(&avail, &reserved)
		if err != nil {
			return nil, fmt.Errorf("lock item %s: %w", it.ItemID, err)
		}
		if avail-reserved < it.Qty {
			shorts = append(shorts, StockShort{
				ItemID: it.ItemID, Required: it.Qty, Available: avail - reserved,
			})
			continue
		}
		if _, err := tx.Exec(ctx,
			`UPDATE items SET qty_reserved = qty_reserved + $2, updated_at = now() WHERE id=$1`,
			it.ItemID, it.Qty); err != nil {
			return nil, err
		}
		if _, err := tx.Exec(ctx, `
			INSERT INTO reservations(order_id, item_id, qty, status)
			VALUES ($1,$2,$3,'RESERVED')
			ON CONFLICT (order_id, item_id) DO NOTHING
		`, orderID, it.ItemID, it.Qty); err != nil {
			return nil, err
		}
	}
	return shorts, nil
}

// CommitAllTx moves every outstanding reservation of the order from reserved
// to permanently decremented. A missing or mismatched reservation means the
// books are wrong: ErrReservationInvariant, nothing is committed.
func (l *Ledger) CommitAllTx(ctx context.Context, tx pgx.Tx, orderID string) error {
	recs, err := outstanding(ctx, tx, orderID)
	if err != nil {
		return err
	}
	if len(recs) == 0 {
		return fmt.Errorf("commit order %s: no outstanding reservations: %w", orderID, ErrReservationInvariant)
	}
	for _, r := range recs {
		ct, err := tx.Exec(ctx, `
			UPDATE items SET qty_available = qty_available - $2,
			                 qty_reserved  = qty_reserved  - $2,
			                 updated_at = now()
			WHERE id=$1 AND qty_available >= $2 AND qty_reserved >= $2
		`, r.ItemID, r.Qty)
		if err != nil {
			return err
		}
		if ct.RowsAffected() != 1 {
			return fmt.Errorf("commit order %s item %s qty %d: %w", orderID, r.ItemID, r.Qty, ErrReservationInvariant)
		}
	}
	_, err = tx.Exec(ctx,
		`UPDATE reservations SET status='COMMITTED' WHERE order_id=$1 AND status='RESERVED'`, orderID)
	return err
}

// ReleaseAll returns every outstanding reservation of the order to
// availability. Releasing an order with nothing outstanding is a no-op
// (idempotent cancellation).
func (l *Ledger) ReleaseAll(ctx context.Context, orderID string) error {
	tx, err := l.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if err := l.ReleaseAllTx(ctx, tx, orderID); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// ReleaseAllTx is ReleaseAll inside a caller-owned transaction, so a
// cancellation can flip the order state and free its stock atomically.
func (l *Ledger) ReleaseAllTx(ctx context.Context, tx pgx.Tx, orderID string) error {
	recs, err := outstanding(ctx, tx, orderID)
	if err != nil {
		return err
	}
	for _, r := range recs {
		ct, err := tx.Exec(ctx, `
			UPDATE items SET qty_reserved = qty_reserved - $2, updated_at = now()
			WHERE id=$1 AND qty_reserved >= $2
		`, r.ItemID, r.Qty)
		if err != nil {
			return err
		}
		if ct.RowsAffected() != 1 {
			return fmt.Errorf("release order %s item %s qty %d: %w", orderID, r.ItemID, r.Qty, ErrReservationInvariant)
		}
	}
	if len(recs) > 0 {
		if _, err := tx.Exec(ctx,
			`UPDATE reservations SET status='RELEASED' WHERE order_id=$1 AND status='RESERVED'`, orderID); err != nil {
			return err
		}
	}
	return nil
}

// OutstandingTx reports whether the order still holds any RESERVED rows,
// inside the caller's transaction.
func (l *Ledger) OutstandingTx(ctx context.Context, tx pgx.Tx, orderID string) (bool, error) {
	var n int
	err := tx.QueryRow(ctx,
		`SELECT COUNT(*) FROM reservations WHERE order_id=$1 AND status='RESERVED'`, orderID).Scan(&n)
	return n > 0, err
}

func outstanding(ctx context.Context, tx pgx.Tx, orderID string) ([]Reservation, error) {
	rows, err := tx.Query(ctx,
		`SELECT item_id, qty FROM reservations WHERE order_id=$1 AND status='RESERVED'`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var recs []Reservation
	for rows.Next() {
		r := Reservation{OrderID: orderID, Status: ReservationReserved}
		if err := rows.Scan(&r.ItemID, &r.Qty); err != nil {
			return nil, err
		}
		recs = append(recs, r)
	}
	return recs, rows.Err()
}
