package payment

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAssessConfirmed(t *testing.T) {
	a := Assess(&ProviderOrder{Status: "COMPLETED", AmountCents: 1000, Currency: "USD"}, 1000)
	assert.Equal(t, VerdictConfirmed, a.Verdict)
	assert.Empty(t, a.Reason)
}

func TestAssessAmountMismatch(t *testing.T) {
	// Underpayment and overpayment both reject; partial payments do not exist.
	for _, amount := range []int{999, 1001, 0} {
		a := Assess(&ProviderOrder{Status: "COMPLETED", AmountCents: amount, Currency: "USD"}, 1000)
		assert.Equal(t, VerdictRejected, a.Verdict, "amount %d", amount)
		assert.NotEmpty(t, a.Reason)
	}
}

func TestAssessCurrencyMismatch(t *testing.T) {
	a := Assess(&ProviderOrder{Status: "COMPLETED", AmountCents: 1000, Currency: "EUR"}, 1000)
	assert.Equal(t, VerdictRejected, a.Verdict)
	assert.Contains(t, a.Reason, "EUR")
}

func TestAssessVoided(t *testing.T) {
	for _, status := range []string{"VOIDED", "CANCELLED"} {
		a := Assess(&ProviderOrder{Status: status, AmountCents: 1000, Currency: "USD"}, 1000)
		assert.Equal(t, VerdictRejected, a.Verdict, "status %s", status)
	}
}

func TestAssessPending(t *testing.T) {
	for _, status := range []string{"CREATED", "APPROVED", "PAYER_ACTION_REQUIRED"} {
		a := Assess(&ProviderOrder{Status: status, AmountCents: 1000, Currency: "USD"}, 1000)
		assert.Equal(t, VerdictPending, a.Verdict, "status %s", status)
	}
}

func TestVerdictString(t *testing.T) {
	assert.Equal(t, "confirmed", VerdictConfirmed.String())
	assert.Equal(t, "rejected", VerdictRejected.String())
	assert.Equal(t, "pending", VerdictPending.String())
}
