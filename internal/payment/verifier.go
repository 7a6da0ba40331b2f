package payment

import "github.com/eamaze/shopcore/internal/shop"

type Verdict int

const (
	VerdictPending Verdict = iota
	VerdictConfirmed
	VerdictRejected
)

func (v Verdict) String() string {
	switch v {
	case VerdictConfirmed:
		return "confirmed"
	case VerdictRejected:
		return "rejected"
	default:
		return "pending"
	}
}

type Assessment struct {
	Verdict Verdict
	Reason  string
}

// Assess maps a provider-side order onto the amount the shop expects. Exact
// match required: no partial payments, no foreign currency.
func Assess(p *ProviderOrder, dueCents int) Assessment {
	switch p.Status {
	case "COMPLETED":
		if p.Currency != Currency {
			return Assessment{VerdictRejected, "currency " + p.Currency + " != " + Currency}
		}
		if p.AmountCents != dueCents {
			return Assessment{VerdictRejected,
				"amount " + shop.FormatCents(p.AmountCents) + " != " + shop.FormatCents(dueCents)}
		}
		return Assessment{Verdict: VerdictConfirmed}
	case "VOIDED", "CANCELLED":
		return Assessment{VerdictRejected, "provider order " + p.Status}
	default:
		// CREATED, APPROVED (not yet captured), PAYER_ACTION_REQUIRED, ...
		return Assessment{Verdict: VerdictPending}
	}
}
