package payment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"

	kafkax "github.com/eamaze/shopcore/internal/kafka"
	"github.com/eamaze/shopcore/internal/postgres"
	"github.com/eamaze/shopcore/internal/redisx"
	"github.com/eamaze/shopcore/internal/shop"
	"github.com/jackc/pgx/v5"
	"github.com/redis/go-redis/v9"
	kafkago "github.com/segmentio/kafka-go"
)

// VerifierSystem marks automated confirmations; anything else is a staff id.
const VerifierSystem = "system"

// Fulfiller is invoked once an order turns Paid.
type Fulfiller interface {
	Dispatch(ctx context.Context, orderID string) error
}

type Service struct {
	DB         postgres.Pool
	Orders     *shop.OrderRepo
	Client     *Client
	Redis      *redis.Client
	Sink       shop.EventSink
	Dispatcher Fulfiller
}

// Confirm applies a payment confirmation to an order. Idempotent: a repeat
// confirmation of an already-paid order is logged and ignored, never
// re-applied. Automated confirmations require an exact amount and currency
// match against the order's due total; staff attestations skip the check.
func (s *Service) Confirm(ctx context.Context, orderID string, amountCents int, currency, verifier string) error {
	tx, err := s.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	var o shop.Order
	err = tx.QueryRow(ctx, `
		SELECT id, owner_id, status, total_cents, credit_cents, payment_method, payment_ref
		FROM orders WHERE id=$1 FOR UPDATE
	`, orderID).Scan(&o.ID, &o.OwnerID, &o.Status, &o.TotalCents, &o.CreditCents, &o.Method, &o.PaymentRef)
	if errors.Is(err, pgx.ErrNoRows) {
		return shop.ErrNotFound
	}
	if err != nil {
		return err
	}

	switch o.Status {
	case shop.StatusPaid, shop.StatusFulfilled, shop.StatusReviewed:
		log.Printf("payment: duplicate confirmation for order %s (already %s), ignoring", orderID, o.Status)
		return nil
	case shop.StatusAwaitingPayment:
	default:
		return fmt.Errorf("confirm order %s in %s: %w", orderID, o.Status, shop.ErrIllegalTransition)
	}

	if verifier == VerifierSystem {
		if currency != Currency || amountCents != o.DueCents() {
			s.Sink.Publish(shop.EventPaymentMismatch, orderID, shop.PaymentMismatchPayload{
				OrderID:       orderID,
				ExpectedCents: o.DueCents(),
				GotCents:      amountCents,
				Currency:      currency,
			})
			return fmt.Errorf("order %s expected %s %s, got %s %s: %w",
				orderID, shop.FormatCents(o.DueCents()), Currency,
				shop.FormatCents(amountCents), currency, shop.ErrPaymentMismatch)
		}
	} else {
		// Staff attestation: discretion replaces the amount check.
		amountCents = o.DueCents()
		currency = Currency
	}

	if _, err := tx.Exec(ctx, `
		INSERT INTO payments(order_id, method, external_ref, amount_cents, currency, verifier)
		VALUES ($1,$2,$3,$4,$5,$6)
		ON CONFLICT (order_id) DO NOTHING
	`, o.ID, o.Method, o.PaymentRef, amountCents, currency, verifier); err != nil {
		return err
	}
	if _, err := tx.Exec(ctx,
		`UPDATE orders SET status=$2, state_changed_at=now() WHERE id=$1`,
		o.ID, shop.StatusPaid); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return err
	}

	key := fmt.Sprintf(redisx.KeyOrderStatus, o.ID)
	_ = s.Redis.Set(ctx, key, `{"status":"PAID"}`, redisx.TTLStatusCache).Err()

	s.Sink.Publish(shop.EventOrderConfirmed, o.ID, shop.OrderConfirmedPayload{
		OrderID:     o.ID,
		OwnerID:     o.OwnerID,
		AmountCents: amountCents,
		Verifier:    verifier,
	})

	if err := s.Dispatcher.Dispatch(ctx, o.ID); err != nil {
		// The order stays Paid; staff picks it up from here.
		log.Printf("payment: fulfillment for order %s held: %v", o.ID, err)
		s.Sink.Publish(shop.EventFulfillmentHeld, o.ID, shop.FulfillmentHeldPayload{
			OrderID: o.ID, Reason: err.Error(),
		})
	}
	return nil
}

// Attest is the manual strategy: staff vouches for a payment the system
// cannot verify (crypto and the like).
func (s *Service) Attest(ctx context.Context, orderID, staffID string) error {
	if staffID == "" || staffID == VerifierSystem {
		return fmt.Errorf("attestation requires a staff id")
	}
	return s.Confirm(ctx, orderID, 0, "", staffID)
}

// HandleCaptured consumes provider push confirmations off the capture topic.
// Dedup runs on event id; replays of the same confirmation are dropped
// before they reach the (itself idempotent) confirm path.
func (s *Service) HandleCaptured(ctx context.Context, m kafkago.Message) error {
	var env shop.Envelope
	if err := json.Unmarshal(m.Value, &env); err != nil {
		return err
	}
	if env.EventType != shop.EventPaymentCaptured {
		return nil
	}

	dkey := fmt.Sprintf(redisx.KeyPaymentDedup, env.EventID)
	if exists, _ := redisx.Exists(ctx, s.Redis, dkey); exists {
		return nil
	}
	_ = s.Redis.Set(ctx, dkey, "1", redisx.TTLDedup).Err()

	p, err := kafkax.UnwrapPayload[shop.PaymentCapturedPayload](env.Payload)
	if err != nil {
		return err
	}
	if p.Status != "COMPLETED" {
		return nil
	}

	orderID, err := s.Orders.ByPaymentRef(ctx, p.PaymentRef)
	if errors.Is(err, shop.ErrNotFound) {
		log.Printf("payment: capture push for unknown ref %s", p.PaymentRef)
		return nil
	}
	if err != nil {
		return err
	}

	err = s.Confirm(ctx, orderID, p.AmountCents, p.Currency, VerifierSystem)
	if errors.Is(err, shop.ErrPaymentMismatch) {
		log.Printf("payment: %v", err)
		return nil // surfaced to staff via the mismatch event; do not redeliver
	}
	return err
}

// PollPending is the fallback path when no push arrives: ask the provider
// about every awaiting PayPal order, capture approved ones, confirm
// completed ones.
func (s *Service) PollPending(ctx context.Context) error {
	orders, err := s.Orders.AwaitingSince(ctx, shop.MethodPayPal, 50)
	if err != nil {
		return err
	}
	for _, o := range orders {
		po, err := s.Client.GetOrder(ctx, o.PaymentRef)
		if err != nil {
			log.Printf("payment poll: order %s: %v", o.ID, err)
			continue
		}
		if po.Status == "APPROVED" {
			if po, err = s.Client.Capture(ctx, o.PaymentRef); err != nil {
				log.Printf("payment poll: capture order %s: %v", o.ID, err)
				continue
			}
		}
		switch a := Assess(po, o.DueCents()); a.Verdict {
		case VerdictConfirmed:
			if err := s.Confirm(ctx, o.ID, po.AmountCents, po.Currency, VerifierSystem); err != nil {
				log.Printf("payment poll: confirm order %s: %v", o.ID, err)
			}
		case VerdictRejected:
			log.Printf("payment poll: order %s rejected: %s", o.ID, a.Reason)
			s.Sink.Publish(shop.EventPaymentMismatch, o.ID, shop.PaymentMismatchPayload{
				OrderID:       o.ID,
				ExpectedCents: o.DueCents(),
				GotCents:      po.AmountCents,
				Currency:      po.Currency,
			})
		}
	}
	return nil
}
