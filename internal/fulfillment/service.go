// Package fulfillment delivers paid orders: digital lines get license keys
// from the pool, everything commits its stock reservation, and non-digital
// lines wait for a staff completion.
package fulfillment

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/eamaze/shopcore/internal/postgres"
	"github.com/eamaze/shopcore/internal/shop"
	"github.com/jackc/pgx/v5"
)

// TierEvaluator recomputes buyer tiers after an order fulfills.
type TierEvaluator interface {
	Evaluate(ctx context.Context, ownerID int64) ([]int64, error)
}

type Service struct {
	DB     postgres.Pool
	Ledger *shop.Ledger
	Tiers  TierEvaluator
	Sink   shop.EventSink
}

// Dispatch runs on the Paid transition. In one transaction it claims a
// license key per digital unit, marks those lines delivered, and commits
// every reservation. A short key pool rolls the whole thing back: the order
// stays Paid with its reservations intact, and staff intervenes. A fully
// digital order comes out Fulfilled.
func (s *Service) Dispatch(ctx context.Context, orderID string) error {
	tx, err := s.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	o, err := lockOrder(ctx, tx, orderID)
	if err != nil {
		return err
	}
	switch o.Status {
	case shop.StatusFulfilled, shop.StatusReviewed:
		return nil // already dispatched
	case shop.StatusPaid:
	default:
		return fmt.Errorf("dispatch order %s in %s: %w", orderID, o.Status, shop.ErrIllegalTransition)
	}

	var keys []string
	manual := 0
	for _, l := range o.Lines {
		if !l.Digital {
			manual++
			continue
		}
		if l.Delivered {
			continue // keys already claimed by an earlier dispatch
		}
		got, err := claimKeys(ctx, tx, orderID, l.ItemID, l.Qty)
		if err != nil {
			return err
		}
		if len(got) < l.Qty {
			// Reservation accounting said the stock exists but the key pool
			// disagrees. Roll back, freeze in Paid, let a human look.
			return fmt.Errorf("item %s: %d key(s) available, %d needed: %w",
				l.Name, len(got), l.Qty, shop.ErrFulfillmentFailure)
		}
		keys = append(keys, got...)
		if _, err := tx.Exec(ctx,
			`UPDATE order_lines SET delivered=TRUE WHERE order_id=$1 AND item_id=$2`,
			orderID, l.ItemID); err != nil {
			return err
		}
	}

	if outstanding, err := s.Ledger.OutstandingTx(ctx, tx, orderID); err != nil {
		return err
	} else if outstanding {
		if err := s.Ledger.CommitAllTx(ctx, tx, orderID); err != nil {
			return err
		}
	}

	if manual == 0 {
		if err := s.fulfillTx(ctx, tx, o); err != nil {
			return err
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return err
	}

	if manual == 0 {
		s.afterFulfilled(ctx, o, keys, 0)
	}
	return nil
}

// Complete is the staff action that finishes delivery of non-digital lines
// and moves the order to Fulfilled. Delivered value accrues to the acting
// staff member. Completing a fulfilled order again is a no-op.
func (s *Service) Complete(ctx context.Context, orderID string, staffID int64) error {
	tx, err := s.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	o, err := lockOrder(ctx, tx, orderID)
	if err != nil {
		return err
	}
	switch o.Status {
	case shop.StatusFulfilled, shop.StatusReviewed:
		return nil
	case shop.StatusPaid:
	default:
		return fmt.Errorf("complete order %s in %s: %w", orderID, o.Status, shop.ErrIllegalTransition)
	}

	// A held dispatch may have left reservations uncommitted; settle them now.
	if outstanding, err := s.Ledger.OutstandingTx(ctx, tx, orderID); err != nil {
		return err
	} else if outstanding {
		if err := s.Ledger.CommitAllTx(ctx, tx, orderID); err != nil {
			return err
		}
	}

	if _, err := tx.Exec(ctx,
		`UPDATE order_lines SET delivered=TRUE WHERE order_id=$1`, orderID); err != nil {
		return err
	}
	if _, err := tx.Exec(ctx, `
		INSERT INTO users (id, delivery_value_cents) VALUES ($1,$2)
		ON CONFLICT (id) DO UPDATE SET delivery_value_cents = users.delivery_value_cents + $2
	`, staffID, o.TotalCents); err != nil {
		return err
	}
	// Keys claimed by the earlier dispatch of a mixed order surface here;
	// without them the buyer would never see their digital lines.
	keys, err := claimedKeys(ctx, tx, orderID)
	if err != nil {
		return err
	}
	if err := s.fulfillTx(ctx, tx, o); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return err
	}

	manual := 0
	for _, l := range o.Lines {
		if !l.Digital {
			manual++
		}
	}
	s.afterFulfilled(ctx, o, keys, manual)
	return nil
}

// Review flips a fulfilled order to Reviewed when its verified buyer submits
// one. Optional and idempotent; it blocks nothing.
func (s *Service) Review(ctx context.Context, orderID string, ownerID int64) error {
	tx, err := s.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	o, err := lockOrder(ctx, tx, orderID)
	if err != nil {
		return err
	}
	if o.OwnerID != ownerID {
		return shop.ErrNotFound
	}
	if o.Status == shop.StatusReviewed {
		return nil
	}
	if !shop.CanTransition(o.Status, shop.StatusReviewed) {
		return fmt.Errorf("review order %s in %s: %w", orderID, o.Status, shop.ErrIllegalTransition)
	}
	if _, err := tx.Exec(ctx,
		`UPDATE orders SET status=$2, state_changed_at=now() WHERE id=$1`,
		orderID, shop.StatusReviewed); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// fulfillTx flips Paid -> Fulfilled and books real-money spend (total minus
// applied credit) for the tier evaluator, inside the caller's transaction so
// the spend is counted exactly once per order.
func (s *Service) fulfillTx(ctx context.Context, tx pgx.Tx, o *shop.Order) error {
	if _, err := tx.Exec(ctx,
		`UPDATE orders SET status=$2, state_changed_at=now() WHERE id=$1`,
		o.ID, shop.StatusFulfilled); err != nil {
		return err
	}
	_, err := tx.Exec(ctx, `
		INSERT INTO users (id, lifetime_cents) VALUES ($1,$2)
		ON CONFLICT (id) DO UPDATE SET lifetime_cents = users.lifetime_cents + $2
	`, o.OwnerID, o.DueCents())
	return err
}

func (s *Service) afterFulfilled(ctx context.Context, o *shop.Order, keys []string, manualLines int) {
	if _, err := s.Tiers.Evaluate(ctx, o.OwnerID); err != nil {
		log.Printf("fulfillment: tier evaluation for owner %d: %v", o.OwnerID, err)
	}
	s.Sink.Publish(shop.EventOrderFulfilled, o.ID, shop.OrderFulfilledPayload{
		OrderID:     o.ID,
		OwnerID:     o.OwnerID,
		LicenseKeys: keys,
		ManualLines: manualLines,
	})
}

func claimKeys(ctx context.Context, tx pgx.Tx, orderID, itemID string, qty int) ([]string, error) {
	rows, err := tx.Query(ctx, `
		UPDATE license_keys SET order_id=$1, delivered_at=now()
		WHERE id IN (
			SELECT id FROM license_keys
			WHERE item_id=$2 AND order_id IS NULL
			LIMIT $3
			FOR UPDATE SKIP LOCKED
		)
		RETURNING key
	`, orderID, itemID, qty)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, err
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

func claimedKeys(ctx context.Context, tx pgx.Tx, orderID string) ([]string, error) {
	rows, err := tx.Query(ctx,
		`SELECT key FROM license_keys WHERE order_id=$1 ORDER BY key`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, err
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

func lockOrder(ctx context.Context, tx pgx.Tx, orderID string) (*shop.Order, error) {
	var o shop.Order
	err := tx.QueryRow(ctx, `
		SELECT id, owner_id, status, total_cents, credit_cents FROM orders WHERE id=$1 FOR UPDATE
	`, orderID).Scan(&o.ID, &o.OwnerID, &o.Status, &o.TotalCents, &o.CreditCents)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, shop.ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	rows, err := tx.Query(ctx, `
		SELECT item_id, name, qty, price_cents, digital, delivered
		FROM order_lines WHERE order_id=$1 ORDER BY item_id
	`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var l shop.OrderLine
		l.OrderID = orderID
		if err := rows.Scan(&l.ItemID, &l.Name, &l.Qty, &l.PriceCents, &l.Digital, &l.Delivered); err != nil {
			return nil, err
		}
		o.Lines = append(o.Lines, l)
	}
	return &o, rows.Err()
}
