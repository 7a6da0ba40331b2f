package shop

import "errors"

var (
	ErrNotFound = errors.New("not found")

	// Checkout-time validation: a cart line's price or item no longer matches
	// the live catalogue. Recoverable, the cart is left untouched.
	ErrStaleCart = errors.New("stale cart item")

	ErrInsufficientStock = errors.New("insufficient stock")

	// Provider-confirmed amount or currency disagrees with the order total.
	// The order stays AWAITING_PAYMENT for staff to look at.
	ErrPaymentMismatch = errors.New("payment amount mismatch")

	// Internal stock accounting disagreement. Fatal to the operation that hit
	// it, never swallowed.
	ErrReservationInvariant = errors.New("reservation invariant violation")

	// Delivery could not complete despite payment. The order stays PAID.
	ErrFulfillmentFailure = errors.New("fulfillment failure")

	ErrIllegalTransition  = errors.New("illegal order state transition")
	ErrShopClosed         = errors.New("shop is closed")
	ErrBelowMinimum       = errors.New("cart total below purchase minimum")
	ErrInsufficientCredit = errors.New("insufficient store credit")
)
