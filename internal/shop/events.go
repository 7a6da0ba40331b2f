package shop

import (
	"encoding/json"
	"time"
)

const (
	EventOrderAwaitingPayment = "OrderAwaitingPayment"
	EventOrderConfirmed       = "OrderConfirmed"
	EventOrderFulfilled       = "OrderFulfilled"
	EventOrderCancelled       = "OrderCancelled"
	EventOrderRefunded        = "OrderRefunded"
	EventPaymentCaptured      = "PaymentCaptured"
	EventPaymentMismatch      = "PaymentMismatch"
	EventFulfillmentHeld      = "FulfillmentHeld"
	EventTierGranted          = "TierGranted"
	EventTicketClosing        = "TicketClosing"
	EventTicketPurged         = "TicketPurged"
	EventGiveawayStarted      = "GiveawayStarted"
	EventGiveawayEnded        = "GiveawayEnded"
	EventCartReminder         = "CartReminder"
	EventShopStatusChanged    = "ShopStatusChanged"
)

type Envelope struct {
	EventID       string          `json:"event_id"`
	EventType     string          `json:"event_type"`
	EventVersion  int             `json:"event_version"`
	OccurredAt    time.Time       `json:"occurred_at"`
	Producer      string          `json:"producer"`
	CorrelationID string          `json:"correlation_id,omitempty"` // usually order_id
	Payload       json.RawMessage `json:"payload"`
}

// ---- Payload types ----

type ItemQty struct {
	ItemID string `json:"item_id"`
	Qty    int    `json:"qty"`
}

type OrderAwaitingPaymentPayload struct {
	OrderID    string        `json:"order_id"`
	OwnerID    int64         `json:"owner_id"`
	Method     PaymentMethod `json:"method"`
	PaymentRef string        `json:"payment_ref,omitempty"`
	ApproveURL string        `json:"approve_url,omitempty"`
	TotalCents int           `json:"total_cents"`
	DueCents   int           `json:"due_cents"`
}

type OrderConfirmedPayload struct {
	OrderID     string `json:"order_id"`
	OwnerID     int64  `json:"owner_id"`
	AmountCents int    `json:"amount_cents"`
	Verifier    string `json:"verifier"`
}

type OrderFulfilledPayload struct {
	OrderID     string   `json:"order_id"`
	OwnerID     int64    `json:"owner_id"`
	LicenseKeys []string `json:"license_keys,omitempty"`
	ManualLines int      `json:"manual_lines"`
}

type OrderCancelledPayload struct {
	OrderID string `json:"order_id"`
	Reason  string `json:"reason"`
}

type PaymentMismatchPayload struct {
	OrderID       string `json:"order_id"`
	ExpectedCents int    `json:"expected_cents"`
	GotCents      int    `json:"got_cents"`
	Currency      string `json:"currency"`
}

type FulfillmentHeldPayload struct {
	OrderID string `json:"order_id"`
	Reason  string `json:"reason"`
}

type TierGrantedPayload struct {
	OwnerID       int64 `json:"owner_id"`
	RoleID        int64 `json:"role_id"`
	LifetimeCents int   `json:"lifetime_cents"`
}

type TicketClosingPayload struct {
	TicketID   int64     `json:"ticket_id"`
	OwnerID    int64     `json:"owner_id"`
	ChannelRef string    `json:"channel_ref"`
	PurgeAt    time.Time `json:"purge_at"`
}

type TicketPurgedPayload struct {
	TicketID   int64  `json:"ticket_id"`
	ChannelRef string `json:"channel_ref"`
}

type GiveawayStartedPayload struct {
	RoundID    int64     `json:"round_id"`
	PrizeCents int       `json:"prize_cents"`
	EndsAt     time.Time `json:"ends_at"`
}

type GiveawayEndedPayload struct {
	RoundID    int64  `json:"round_id"`
	WinnerID   *int64 `json:"winner_id"` // null when the round had no entrants
	PrizeCents int    `json:"prize_cents"`
	Entrants   int    `json:"entrants"`
}

type CartReminderPayload struct {
	OwnerID    int64     `json:"owner_id"`
	Lines      int       `json:"lines"`
	LastActive time.Time `json:"last_active"`
}

type ShopStatusChangedPayload struct {
	Status string `json:"status"`
}

// PaymentCapturedPayload is the inbound push from the provider relay.
type PaymentCapturedPayload struct {
	PaymentRef  string `json:"payment_ref"`
	Status      string `json:"status"`
	AmountCents int    `json:"amount_cents"`
	Currency    string `json:"currency"`
}
