package shop

import (
	"context"
	"errors"

	"github.com/eamaze/shopcore/internal/postgres"
	"github.com/jackc/pgx/v5"
)

// OrderRepo reads order state. Writes belong to the checkout orchestrator and
// the services downstream of it, which own the state machine.
type OrderRepo struct{ DB postgres.Pool }

func (r *OrderRepo) Get(ctx context.Context, orderID string) (*Order, error) {
	var o Order
	err := r.DB.QueryRow(ctx, `
		SELECT id, owner_id, status, total_cents, credit_cents, payment_method, payment_ref, created_at, state_changed_at
		FROM orders WHERE id=$1
	`, orderID).Scan(&o.ID, &o.OwnerID, &o.Status, &o.TotalCents, &o.CreditCents,
		&o.Method, &o.PaymentRef, &o.CreatedAt, &o.StateChangedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	rows, err := r.DB.Query(ctx, `
		SELECT order_id, item_id, name, qty, price_cents, digital, delivered
		FROM order_lines WHERE order_id=$1 ORDER BY item_id
	`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var l OrderLine
		if err := rows.Scan(&l.OrderID, &l.ItemID, &l.Name, &l.Qty, &l.PriceCents, &l.Digital, &l.Delivered); err != nil {
			return nil, err
		}
		o.Lines = append(o.Lines, l)
	}
	return &o, rows.Err()
}

func (r *OrderRepo) Status(ctx context.Context, orderID string) (Status, error) {
	var s Status
	err := r.DB.QueryRow(ctx, `SELECT status FROM orders WHERE id=$1`, orderID).Scan(&s)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", ErrNotFound
	}
	return s, err
}

// ByPaymentRef resolves a provider reference to the order it belongs to.
func (r *OrderRepo) ByPaymentRef(ctx context.Context, ref string) (string, error) {
	var id string
	err := r.DB.QueryRow(ctx, `SELECT id FROM orders WHERE payment_ref=$1`, ref).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", ErrNotFound
	}
	return id, err
}

// AwaitingSince lists orders stuck in AWAITING_PAYMENT, oldest first.
func (r *OrderRepo) AwaitingSince(ctx context.Context, method PaymentMethod, limit int) ([]Order, error) {
	rows, err := r.DB.Query(ctx, `
		SELECT id, owner_id, status, total_cents, credit_cents, payment_method, payment_ref, created_at, state_changed_at
		FROM orders WHERE status='AWAITING_PAYMENT' AND payment_method=$1 AND payment_ref <> ''
		ORDER BY state_changed_at LIMIT $2
	`, method, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Order
	for rows.Next() {
		var o Order
		if err := rows.Scan(&o.ID, &o.OwnerID, &o.Status, &o.TotalCents, &o.CreditCents,
			&o.Method, &o.PaymentRef, &o.CreatedAt, &o.StateChangedAt); err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}
