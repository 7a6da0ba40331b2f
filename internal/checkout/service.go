// Package checkout converts carts into orders: snapshot, re-validate,
// reserve stock all-or-nothing, initiate payment, and walk the order state
// machine for cancellation, expiry, and refund.
package checkout

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/eamaze/shopcore/internal/cart"
	"github.com/eamaze/shopcore/internal/postgres"
	"github.com/eamaze/shopcore/internal/redisx"
	"github.com/eamaze/shopcore/internal/shop"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/redis/go-redis/v9"
)

// PaymentInitiator starts a provider-side payment for an order and returns
// the reference the provider will confirm under.
type PaymentInitiator interface {
	Initiate(ctx context.Context, o *shop.Order) (ref, approveURL string, err error)
}

type Service struct {
	DB       postgres.Pool
	Items    *shop.ItemRepo
	Ledger   *shop.Ledger
	Orders   *shop.OrderRepo
	Provider PaymentInitiator
	Sink     shop.EventSink
	Redis    *redis.Client

	MinimumCents       int
	ReservationTimeout time.Duration
}

// Checkout runs the Created leg of the state machine: one transaction that
// snapshots the cart, re-validates it, creates the order, reserves every line
// (all-or-nothing) and clears the cart. Payment initiation follows; if it
// fails the order is cancelled and the reservations released. The returned
// URL is where the buyer approves the payment (empty for crypto).
func (s *Service) Checkout(ctx context.Context, ownerID int64, method shop.PaymentMethod, creditCents int) (*shop.Order, string, error) {
	open, err := s.Items.ShopOpen(ctx)
	if err != nil {
		return nil, "", err
	}
	if !open {
		return nil, "", shop.ErrShopClosed
	}
	if creditCents < 0 {
		return nil, "", fmt.Errorf("credit must not be negative: %w", shop.ErrStaleCart)
	}

	// Guard against double-submit before the row locks even come into play.
	idemKey := fmt.Sprintf(redisx.KeyIdemCheckout, ownerID)
	acquired, err := s.Redis.SetNX(ctx, idemKey, "1", redisx.TTLIdempotency).Result()
	if err == nil && !acquired {
		return nil, "", fmt.Errorf("checkout already in progress for owner %d", ownerID)
	}
	defer s.Redis.Del(context.WithoutCancel(ctx), idemKey)

	order, err := s.createOrder(ctx, ownerID, creditCents)
	if err != nil {
		return nil, "", err
	}
	order.Method = method

	ref, approveURL, err := s.Provider.Initiate(ctx, order)
	if err != nil {
		if cerr := s.Cancel(ctx, order.ID, "payment initiation failed"); cerr != nil {
			log.Printf("checkout: cancel after failed initiation for order %s: %v", order.ID, cerr)
		}
		return nil, "", fmt.Errorf("initiate payment: %w", err)
	}

	ct, err := s.DB.Exec(ctx, `
		UPDATE orders SET status=$2, payment_method=$3, payment_ref=$4, state_changed_at=now()
		WHERE id=$1 AND status=$5
	`, order.ID, shop.StatusAwaitingPayment, method, ref, shop.StatusCreated)
	if err != nil {
		return nil, "", err
	}
	if ct.RowsAffected() != 1 {
		return nil, "", fmt.Errorf("order %s left CREATED before payment initiation finished: %w", order.ID, shop.ErrIllegalTransition)
	}
	order.Status = shop.StatusAwaitingPayment
	order.PaymentRef = ref

	s.cacheStatus(ctx, order.ID, shop.StatusAwaitingPayment)
	s.Sink.Publish(shop.EventOrderAwaitingPayment, order.ID, shop.OrderAwaitingPaymentPayload{
		OrderID:    order.ID,
		OwnerID:    order.OwnerID,
		Method:     method,
		PaymentRef: ref,
		ApproveURL: approveURL,
		TotalCents: order.TotalCents,
		DueCents:   order.DueCents(),
	})
	for _, l := range order.Lines {
		_ = s.Items.LogEvent(ctx, "checkout", l.ItemID, ownerID)
	}
	return order, approveURL, nil
}

func (s *Service) createOrder(ctx context.Context, ownerID int64, creditCents int) (*shop.Order, error) {
	tx, err := s.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	// Locking the cart rows serializes concurrent checkouts by the same owner.
	lines, err := lockCart(ctx, tx, ownerID)
	if err != nil {
		return nil, err
	}

	items, err := loadItems(ctx, tx, lines)
	if err != nil {
		return nil, err
	}

	orderID := uuid.NewString()
	p, err := buildPlan(orderID, lines, items)
	if err != nil {
		return nil, err
	}
	if p.TotalCents < s.MinimumCents {
		return nil, fmt.Errorf("total %s below minimum %s: %w",
			shop.FormatCents(p.TotalCents), shop.FormatCents(s.MinimumCents), shop.ErrBelowMinimum)
	}
	if creditCents > p.TotalCents {
		creditCents = p.TotalCents
	}

	if _, err := tx.Exec(ctx, `
		INSERT INTO orders(id, owner_id, status, total_cents, credit_cents)
		VALUES ($1,$2,$3,$4,$5)
	`, orderID, ownerID, shop.StatusCreated, p.TotalCents, creditCents); err != nil {
		return nil, err
	}
	for _, l := range p.Lines {
		if _, err := tx.Exec(ctx, `
			INSERT INTO order_lines(order_id, item_id, name, qty, price_cents, digital)
			VALUES ($1,$2,$3,$4,$5,$6)
		`, l.OrderID, l.ItemID, l.Name, l.Qty, l.PriceCents, l.Digital); err != nil {
			return nil, err
		}
	}

	var want []shop.ItemQty
	for _, l := range p.Lines {
		want = append(want, shop.ItemQty{ItemID: l.ItemID, Qty: l.Qty})
	}
	shorts, err := s.Ledger.ReserveAllTx(ctx, tx, orderID, want)
	if err != nil {
		return nil, err
	}
	if len(shorts) > 0 {
		// rollback via defer: no order row, no partial reservations
		return nil, fmt.Errorf("%d item(s) short: %w", len(shorts), shop.ErrInsufficientStock)
	}

	if creditCents > 0 {
		ct, err := tx.Exec(ctx, `
			UPDATE users SET balance_cents = balance_cents - $2
			WHERE id=$1 AND balance_cents >= $2
		`, ownerID, creditCents)
		if err != nil {
			return nil, err
		}
		if ct.RowsAffected() != 1 {
			return nil, shop.ErrInsufficientCredit
		}
	}

	if _, err := tx.Exec(ctx, `DELETE FROM cart_lines WHERE owner_id=$1`, ownerID); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}

	return &shop.Order{
		ID:          orderID,
		OwnerID:     ownerID,
		Status:      shop.StatusCreated,
		TotalCents:  p.TotalCents,
		CreditCents: creditCents,
		Lines:       p.Lines,
		CreatedAt:   time.Now().UTC(),
	}, nil
}

// Cancel takes an order out of the pipeline before payment: releases its
// reservations and refunds applied credit in the same transaction that flips
// the state. Cancelling an already-cancelled order is a no-op.
func (s *Service) Cancel(ctx context.Context, orderID, reason string) error {
	tx, err := s.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	var ownerID int64
	var status shop.Status
	var credit int
	err = tx.QueryRow(ctx,
		`SELECT owner_id, status, credit_cents FROM orders WHERE id=$1 FOR UPDATE`,
		orderID).Scan(&ownerID, &status, &credit)
	if errors.Is(err, pgx.ErrNoRows) {
		return shop.ErrNotFound
	}
	if err != nil {
		return err
	}

	if status == shop.StatusCancelled {
		return nil
	}
	if !shop.CanTransition(status, shop.StatusCancelled) {
		return fmt.Errorf("cancel order %s in %s: %w", orderID, status, shop.ErrIllegalTransition)
	}

	if _, err := tx.Exec(ctx,
		`UPDATE orders SET status=$2, state_changed_at=now() WHERE id=$1`,
		orderID, shop.StatusCancelled); err != nil {
		return err
	}
	if err := s.Ledger.ReleaseAllTx(ctx, tx, orderID); err != nil {
		return err
	}
	if credit > 0 {
		if _, err := tx.Exec(ctx,
			`UPDATE users SET balance_cents = balance_cents + $2 WHERE id=$1`,
			ownerID, credit); err != nil {
			return err
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return err
	}

	s.cacheStatus(ctx, orderID, shop.StatusCancelled)
	s.Sink.Publish(shop.EventOrderCancelled, orderID, shop.OrderCancelledPayload{
		OrderID: orderID, Reason: reason,
	})
	return nil
}

// Refund undoes a paid order administratively. Stock committed at fulfillment
// stays decremented; putting disputed goods back on sale is an explicit
// restock, never a side effect here. Reservations a failed fulfillment left
// outstanding are freed.
func (s *Service) Refund(ctx context.Context, orderID, staffID string) error {
	tx, err := s.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	var status shop.Status
	err = tx.QueryRow(ctx, `SELECT status FROM orders WHERE id=$1 FOR UPDATE`, orderID).Scan(&status)
	if errors.Is(err, pgx.ErrNoRows) {
		return shop.ErrNotFound
	}
	if err != nil {
		return err
	}
	if status == shop.StatusRefunded {
		return nil
	}
	if !shop.CanTransition(status, shop.StatusRefunded) {
		return fmt.Errorf("refund order %s in %s: %w", orderID, status, shop.ErrIllegalTransition)
	}

	if _, err := tx.Exec(ctx,
		`UPDATE orders SET status=$2, state_changed_at=now() WHERE id=$1`,
		orderID, shop.StatusRefunded); err != nil {
		return err
	}
	if err := s.Ledger.ReleaseAllTx(ctx, tx, orderID); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return err
	}

	s.cacheStatus(ctx, orderID, shop.StatusRefunded)
	s.Sink.Publish(shop.EventOrderRefunded, orderID, shop.OrderCancelledPayload{
		OrderID: orderID, Reason: "refunded by " + staffID,
	})
	return nil
}

// ExpireStale cancels orders whose payment window ran out. CREATED is swept
// too: a crash between the reservation commit and payment initiation leaves
// an order there holding stock, and nothing else would ever release it.
// Sweep-style: a failure on one order is logged and the rest still run.
func (s *Service) ExpireStale(ctx context.Context) error {
	cutoff := time.Now().UTC().Add(-s.ReservationTimeout)
	rows, err := s.DB.Query(ctx, `
		SELECT id FROM orders
		WHERE status IN ('CREATED','AWAITING_PAYMENT') AND state_changed_at < $1
	`, cutoff)
	if err != nil {
		return err
	}
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return err
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	for _, id := range ids {
		if err := s.Cancel(ctx, id, "payment window expired"); err != nil {
			log.Printf("expire sweep: cancel order %s: %v", id, err)
		}
	}
	return nil
}

func (s *Service) cacheStatus(ctx context.Context, orderID string, st shop.Status) {
	key := fmt.Sprintf(redisx.KeyOrderStatus, orderID)
	_ = s.Redis.Set(ctx, key, fmt.Sprintf(`{"status":%q}`, st), redisx.TTLStatusCache).Err()
}

func lockCart(ctx context.Context, tx pgx.Tx, ownerID int64) ([]cart.Line, error) {
	rows, err := tx.Query(ctx, `
		SELECT item_id, qty, price_cents, updated_at
		FROM cart_lines WHERE owner_id=$1 ORDER BY item_id FOR UPDATE
	`, ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []cart.Line
	for rows.Next() {
		var l cart.Line
		if err := rows.Scan(&l.ItemID, &l.Qty, &l.PriceCents, &l.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

func loadItems(ctx context.Context, tx pgx.Tx, lines []cart.Line) (map[string]shop.Item, error) {
	items := make(map[string]shop.Item, len(lines))
	for _, l := range lines {
		var it shop.Item
		err := tx.QueryRow(ctx, `
			SELECT id, name, price_cents, qty_available, qty_reserved, digital, status
			FROM items WHERE id=$1
		`, l.ItemID).Scan(&it.ID, &it.Name, &it.PriceCents, &it.QtyAvailable, &it.QtyReserved, &it.Digital, &it.Status)
		if errors.Is(err, pgx.ErrNoRows) {
			continue // buildPlan reports the missing item
		}
		if err != nil {
			return nil, err
		}
		items[it.ID] = it
	}
	return items, nil
}
