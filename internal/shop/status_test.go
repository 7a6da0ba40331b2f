package shop

import "testing"

func TestCanTransition(t *testing.T) {
	allowed := []struct{ from, to Status }{
		{StatusCreated, StatusAwaitingPayment},
		{StatusCreated, StatusCancelled},
		{StatusAwaitingPayment, StatusPaid},
		{StatusAwaitingPayment, StatusCancelled},
		{StatusPaid, StatusFulfilled},
		{StatusPaid, StatusRefunded},
		{StatusFulfilled, StatusReviewed},
	}
	for _, tc := range allowed {
		if !CanTransition(tc.from, tc.to) {
			t.Errorf("expected %s -> %s to be legal", tc.from, tc.to)
		}
	}

	forbidden := []struct{ from, to Status }{
		{StatusCreated, StatusPaid},
		{StatusAwaitingPayment, StatusFulfilled},
		{StatusPaid, StatusCancelled},
		{StatusPaid, StatusAwaitingPayment},
		{StatusFulfilled, StatusRefunded},
		{StatusCancelled, StatusAwaitingPayment},
		{StatusRefunded, StatusPaid},
		{StatusReviewed, StatusFulfilled},
	}
	for _, tc := range forbidden {
		if CanTransition(tc.from, tc.to) {
			t.Errorf("expected %s -> %s to be illegal", tc.from, tc.to)
		}
	}
}

func TestTerminal(t *testing.T) {
	for _, s := range []Status{StatusReviewed, StatusCancelled, StatusRefunded} {
		if !Terminal(s) {
			t.Errorf("expected %s to be terminal", s)
		}
	}
	for _, s := range []Status{StatusCreated, StatusAwaitingPayment, StatusPaid, StatusFulfilled} {
		if Terminal(s) {
			t.Errorf("expected %s not to be terminal", s)
		}
	}
}

func TestNoTransitionOutOfTerminalStates(t *testing.T) {
	all := []Status{
		StatusCreated, StatusAwaitingPayment, StatusPaid,
		StatusFulfilled, StatusReviewed, StatusCancelled, StatusRefunded,
	}
	for _, from := range all {
		if !Terminal(from) {
			continue
		}
		for _, to := range all {
			if CanTransition(from, to) {
				t.Errorf("terminal state %s allows transition to %s", from, to)
			}
		}
	}
}
