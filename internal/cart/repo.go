// Package cart is the per-user selection held before checkout. No stock is
// reserved here; availability is advisory until the orchestrator takes over.
package cart

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/eamaze/shopcore/internal/postgres"
	"github.com/eamaze/shopcore/internal/shop"
	"github.com/jackc/pgx/v5"
)

type Line struct {
	ItemID     string    `json:"item_id"`
	Name       string    `json:"name"`
	Qty        int       `json:"qty"`
	PriceCents int       `json:"price_cents"` // snapshot at add-time
	UpdatedAt  time.Time `json:"updated_at"`
}

type Repo struct{ DB postgres.Pool }

// AddItem upserts a line, merging quantity when one already exists for the
// item. The price snapshot is fixed at first add and re-validated at checkout.
// Edits by one owner serialize on the line's row lock.
func (r *Repo) AddItem(ctx context.Context, ownerID int64, itemID string, qty int) error {
	if qty <= 0 {
		return fmt.Errorf("qty must be positive: %w", shop.ErrStaleCart)
	}
	tx, err := r.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	var shopStatus string
	err = tx.QueryRow(ctx,
		`SELECT value FROM settings WHERE name='shop_status'`).Scan(&shopStatus)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return err
	}
	if shopStatus == "closed" {
		return shop.ErrShopClosed
	}

	var price, avail, reserved int
	var status shop.ItemStatus
	err = tx.QueryRow(ctx,
		`SELECT price_cents, qty_available, qty_reserved, status FROM items WHERE id=$1`,
		itemID).Scan(&price, &avail, &reserved, &status)
	if errors.Is(err, pgx.ErrNoRows) {
		return shop.ErrNotFound
	}
	if err != nil {
		return err
	}
	if status != shop.ItemActive {
		return fmt.Errorf("item %s is not purchasable: %w", itemID, shop.ErrStaleCart)
	}
	if avail-reserved < qty {
		return shop.ErrInsufficientStock
	}

	if _, err := tx.Exec(ctx, `
		INSERT INTO cart_lines(owner_id, item_id, qty, price_cents)
		VALUES ($1,$2,$3,$4)
		ON CONFLICT (owner_id, item_id)
		DO UPDATE SET qty = cart_lines.qty + $3, updated_at = now()
	`, ownerID, itemID, qty, price); err != nil {
		return err
	}
	if _, err := tx.Exec(ctx,
		`INSERT INTO analytics(event_type, item_id, user_id) VALUES ('cart_add',$1,$2)`,
		itemID, ownerID); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (r *Repo) RemoveItem(ctx context.Context, ownerID int64, itemID string) error {
	ct, err := r.DB.Exec(ctx,
		`DELETE FROM cart_lines WHERE owner_id=$1 AND item_id=$2`, ownerID, itemID)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return shop.ErrNotFound
	}
	return nil
}

// View returns an immutable snapshot of the owner's cart.
func (r *Repo) View(ctx context.Context, ownerID int64) ([]Line, error) {
	rows, err := r.DB.Query(ctx, `
		SELECT c.item_id, i.name, c.qty, c.price_cents, c.updated_at
		FROM cart_lines c JOIN items i ON i.id = c.item_id
		WHERE c.owner_id=$1 ORDER BY c.updated_at
	`, ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanLines(rows)
}

func (r *Repo) Clear(ctx context.Context, ownerID int64) error {
	_, err := r.DB.Exec(ctx, `DELETE FROM cart_lines WHERE owner_id=$1`, ownerID)
	return err
}

// WipeAll drops every cart. Administrative.
func (r *Repo) WipeAll(ctx context.Context) (int64, error) {
	ct, err := r.DB.Exec(ctx, `DELETE FROM cart_lines`)
	if err != nil {
		return 0, err
	}
	return ct.RowsAffected(), nil
}

type Summary struct {
	OwnerID    int64     `json:"owner_id"`
	Lines      int       `json:"lines"`
	TotalCents int       `json:"total_cents"`
	LastActive time.Time `json:"last_active"`
}

func (r *Repo) List(ctx context.Context) ([]Summary, error) {
	rows, err := r.DB.Query(ctx, `
		SELECT owner_id, COUNT(*), COALESCE(SUM(qty*price_cents),0), MAX(updated_at)
		FROM cart_lines GROUP BY owner_id ORDER BY owner_id
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Summary
	for rows.Next() {
		var s Summary
		if err := rows.Scan(&s.OwnerID, &s.Lines, &s.TotalCents, &s.LastActive); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// Inactive returns carts idle since before the threshold, for reminder events.
func (r *Repo) Inactive(ctx context.Context, before time.Time) ([]Summary, error) {
	rows, err := r.DB.Query(ctx, `
		SELECT owner_id, COUNT(*), COALESCE(SUM(qty*price_cents),0), MAX(updated_at)
		FROM cart_lines GROUP BY owner_id HAVING MAX(updated_at) < $1
	`, before)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Summary
	for rows.Next() {
		var s Summary
		if err := rows.Scan(&s.OwnerID, &s.Lines, &s.TotalCents, &s.LastActive); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func scanLines(rows pgx.Rows) ([]Line, error) {
	var out []Line
	for rows.Next() {
		var l Line
		if err := rows.Scan(&l.ItemID, &l.Name, &l.Qty, &l.PriceCents, &l.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}
