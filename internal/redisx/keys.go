package redisx

import "time"

const (
	// Dedup of payment confirmations: dedup:payment:{event_id or payment_ref:phase}
	KeyPaymentDedup = "dedup:payment:%s"

	// Cache of order status: order_status:{order_id} -> {"status":"..."}
	KeyOrderStatus = "order_status:%s"

	// Checkout idempotency per owner: idem:checkout:{owner_id} -> order_id
	KeyIdemCheckout = "idem:checkout:%d"

	// One cart reminder per owner per interval: remind:cart:{owner_id}
	KeyCartReminder = "remind:cart:%d"
)

var (
	TTLDedup       = 48 * time.Hour
	TTLStatusCache = 5 * time.Minute
	TTLIdempotency = 2 * time.Minute
)
