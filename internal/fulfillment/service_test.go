package fulfillment

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

type fakeTiers struct{ evaluated []int64 }

func (f *fakeTiers) Evaluate(_ context.Context, ownerID int64) ([]int64, error) {
	f.evaluated = append(f.evaluated, ownerID)
	return nil, nil
}

// Completing a mixed order must surface the license keys the earlier
// dispatch already claimed, alongside the manual line count.
func TestCompleteSurfacesClaimedKeys(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectBeginTx(pgx.TxOptions{})
	mock.ExpectQuery("FROM orders WHERE id=\\$1 FOR UPDATE").
		WithArgs("ord-1").
		WillReturnRows(pgxmock.NewRows([]string{
			"id", "owner_id", "status", "total_cents", "credit_cents",
		}).AddRow("ord-1", int64(7), shop.StatusPaid, 1500, 0))
	mock.ExpectQuery("FROM order_lines").
		WithArgs("ord-1").
		WillReturnRows(pgxmock.NewRows([]string{
			"item_id", "name", "qty", "price_cents", "digital", "delivered",
		}).
			AddRow("key-item", "game key", 1, 500, true, true).
			AddRow("tee-item", "tour shirt", 1, 1000, false, false))
	mock.ExpectQuery("FROM reservations WHERE order_id").
		WithArgs("ord-1").
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(0))
	mock.ExpectExec("UPDATE order_lines SET delivered").
		WithArgs("ord-1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 2))
	mock.ExpectExec("delivery_value_cents").
		WithArgs(int64(99), 1500).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectQuery("SELECT key FROM license_keys").
		WithArgs("ord-1").
		WillReturnRows(pgxmock.NewRows([]string{"key"}).AddRow("AAAA-BBBB"))
	mock.ExpectExec("UPDATE orders SET status").
		WithArgs("ord-1", shop.StatusFulfilled).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec("lifetime_cents").
		WithArgs(int64(7), 1500).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	sink := &recordSink{}
	tiers := &fakeTiers{}
	s := &Service{DB: mock, Ledger: &shop.Ledger{DB: mock}, Tiers: tiers, Sink: sink}

	require.NoError(t, s.Complete(context.Background(), "ord-1", 99))
	require.NoError(t, mock.ExpectationsWereMet())

	require.Equal(t, []string{shop.EventOrderFulfilled}, sink.events)
	p, ok := sink.payloads[0].(shop.OrderFulfilledPayload)
	require.True(t, ok)
	assert.Equal(t, []string{"AAAA-BBBB"}, p.LicenseKeys)
	assert.Equal(t, 1, p.ManualLines)
	assert.Equal(t, []int64{7}, tiers.evaluated)
}

func TestCompleteFulfilledOrderIsNoop(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectBeginTx(pgx.TxOptions{})
	mock.ExpectQuery("FROM orders WHERE id=\\$1 FOR UPDATE").
		WithArgs("ord-1").
		WillReturnRows(pgxmock.NewRows([]string{
			"id", "owner_id", "status", "total_cents", "credit_cents",
		}).AddRow("ord-1", int64(7), shop.StatusFulfilled, 1500, 0))
	mock.ExpectQuery("FROM order_lines").
		WithArgs("ord-1").
		WillReturnRows(pgxmock.NewRows([]string{
			"item_id", "name", "qty", "price_cents", "digital", "delivered",
		}))
	mock.ExpectRollback()

	sink := &recordSink{}
	s := &Service{DB: mock, Ledger: &shop.Ledger{DB: mock}, Tiers: &fakeTiers{}, Sink: sink}

	require.NoError(t, s.Complete(context.Background(), "ord-1", 99))
	require.NoError(t, mock.ExpectationsWereMet())
	assert.Empty(t, sink.events)
}
