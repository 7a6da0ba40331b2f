package shop

import "time"

type StockVisibility string

const (
	VisibilityExact  StockVisibility = "exact"
	VisibilityBinary StockVisibility = "binary"
)

type ItemStatus string

const (
	ItemActive ItemStatus = "active"
	ItemHidden ItemStatus = "hidden"
)

type Item struct {
	ID           string
	Name         string
	Description  string
	ImageURL     string
	PriceCents   int
	QtyAvailable int
	QtyReserved  int
	Digital      bool
	Visibility   StockVisibility
	Status       ItemStatus
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// ForSale is the quantity a new reservation may still claim.
func (i Item) ForSale() int { return i.QtyAvailable - i.QtyReserved }

type PaymentMethod string

const (
	MethodPayPal PaymentMethod = "paypal"
	MethodCrypto PaymentMethod = "crypto"
)

type Order struct {
	ID             string
	OwnerID        int64
	Status         Status // see status.go
	TotalCents     int
	CreditCents    int // store credit applied at checkout
	Method         PaymentMethod
	PaymentRef     string
	CreatedAt      time.Time
	StateChangedAt time.Time
	Lines          []OrderLine
}

// DueCents is what the payment provider must confirm: total minus applied credit.
func (o Order) DueCents() int { return o.TotalCents - o.CreditCents }

type OrderLine struct {
	OrderID    string
	ItemID     string
	Name       string
	Qty        int
	PriceCents int
	Digital    bool
	Delivered  bool
}

type Payment struct {
	OrderID     string
	Method      PaymentMethod
	ExternalRef string
	AmountCents int
	Currency    string
	VerifiedAt  time.Time
	Verifier    string // "system" or a staff id
}

const (
	ReservationReserved  = "RESERVED"
	ReservationReleased  = "RELEASED"
	ReservationCommitted = "COMMITTED"
)

type Reservation struct {
	OrderID   string
	ItemID    string
	Qty       int
	Status    string // RESERVED | RELEASED | COMMITTED
	CreatedAt time.Time
}

type TierRule struct {
	RoleID         int64
	ThresholdCents int
}

type TicketStatus string

const (
	TicketOpen   TicketStatus = "open"
	TicketClosed TicketStatus = "closed"
	TicketPurged TicketStatus = "purged"
)

type Ticket struct {
	ID         int64
	OwnerID    int64
	ChannelRef string
	Status     TicketStatus
	ClosedAt   *time.Time
	PurgeAt    *time.Time
}

type GiveawayRound struct {
	ID         int64
	StartedAt  time.Time
	EndsAt     time.Time
	Status     string // open | ended
	WinnerID   *int64
	PrizeCents int
}
