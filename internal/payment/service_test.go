package payment

import (
	"context"
	"testing"

	"github.com/eamaze/shopcore/internal/shop"
	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordSink struct {
	events   []string
	payloads []any
}

func (r *recordSink) Publish(eventType, _ string, payload any) {
	r.events = append(r.events, eventType)
	r.payloads = append(r.payloads, payload)
}

func expectOrderLock(mock pgxmock.PgxPoolIface, status shop.Status, total, credit int) {
	mock.ExpectQuery("FROM orders WHERE id=\\$1 FOR UPDATE").
		WithArgs("ord-1").
		WillReturnRows(pgxmock.NewRows([]string{
			"id", "owner_id", "status", "total_cents", "credit_cents", "payment_method", "payment_ref",
		}).AddRow("ord-1", int64(7), status, total, credit, shop.MethodPayPal, "ref-1"))
}

// A provider can deliver the same confirmation twice. The second one must
// not write a payment row, touch the order, or re-dispatch fulfillment.
func TestConfirmReplayIgnored(t *testing.T) {
	for _, status := range []shop.Status{shop.StatusPaid, shop.StatusFulfilled, shop.StatusReviewed} {
		t.Run(string(status), func(t *testing.T) {
			mock, err := pgxmock.NewPool()
			require.NoError(t, err)
			defer mock.Close()

			mock.ExpectBeginTx(pgx.TxOptions{})
			expectOrderLock(mock, status, 1000, 0)
			mock.ExpectRollback()

			s := &Service{DB: mock, Sink: shop.NopSink{}}
			require.NoError(t, s.Confirm(context.Background(), "ord-1", 1000, Currency, VerifierSystem))
			require.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestConfirmAmountMismatch(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectBeginTx(pgx.TxOptions{})
	expectOrderLock(mock, shop.StatusAwaitingPayment, 1000, 0)
	mock.ExpectRollback()

	sink := &recordSink{}
	s := &Service{DB: mock, Sink: sink}

	err = s.Confirm(context.Background(), "ord-1", 999, Currency, VerifierSystem)
	assert.ErrorIs(t, err, shop.ErrPaymentMismatch)
	require.NoError(t, mock.ExpectationsWereMet())

	require.Equal(t, []string{shop.EventPaymentMismatch}, sink.events)
	p, ok := sink.payloads[0].(shop.PaymentMismatchPayload)
	require.True(t, ok)
	assert.Equal(t, 1000, p.ExpectedCents)
	assert.Equal(t, 999, p.GotCents)
}

// Applied credit reduces what the provider must confirm.
func TestConfirmChecksDueNotTotal(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectBeginTx(pgx.TxOptions{})
	expectOrderLock(mock, shop.StatusAwaitingPayment, 1000, 300)
	mock.ExpectRollback()

	s := &Service{DB: mock, Sink: shop.NopSink{}}

	err = s.Confirm(context.Background(), "ord-1", 1000, Currency, VerifierSystem)
	assert.ErrorIs(t, err, shop.ErrPaymentMismatch)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestConfirmFromCreatedRejected(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectBeginTx(pgx.TxOptions{})
	expectOrderLock(mock, shop.StatusCreated, 1000, 0)
	mock.ExpectRollback()

	s := &Service{DB: mock, Sink: shop.NopSink{}}

	err = s.Confirm(context.Background(), "ord-1", 1000, Currency, VerifierSystem)
	assert.ErrorIs(t, err, shop.ErrIllegalTransition)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAttestRequiresStaffID(t *testing.T) {
	s := &Service{}
	assert.Error(t, s.Attest(context.Background(), "ord-1", ""))
	assert.Error(t, s.Attest(context.Background(), "ord-1", VerifierSystem))
}
