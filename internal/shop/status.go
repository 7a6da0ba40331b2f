package shop

type Status string

const (
	StatusCreated         Status = "CREATED"
	StatusAwaitingPayment Status = "AWAITING_PAYMENT"
	StatusPaid            Status = "PAID"
	StatusFulfilled       Status = "FULFILLED"
	StatusReviewed        Status = "REVIEWED"
	StatusCancelled       Status = "CANCELLED"
	StatusRefunded        Status = "REFUNDED"
)

// Only forward transitions are legal. Repeating an applied transition is
// handled by callers as a no-op, not by this table.
var validNext = map[Status]map[Status]bool{
	StatusCreated:         {StatusAwaitingPayment: true, StatusCancelled: true},
	StatusAwaitingPayment: {StatusPaid: true, StatusCancelled: true},
	StatusPaid:            {StatusFulfilled: true, StatusRefunded: true},
	StatusFulfilled:       {StatusReviewed: true},
	StatusReviewed:        {},
	StatusCancelled:       {},
	StatusRefunded:        {},
}

func CanTransition(from, to Status) bool {
	return validNext[from][to]
}

// Terminal reports whether no further transition can leave the status.
func Terminal(s Status) bool {
	return len(validNext[s]) == 0
}
