package checkout

import (
	"context"
	"testing"
	"time"

	"github.com/eamaze/shopcore/internal/shop"
	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/redis/go-redis/v9"
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

// deadRedis fails fast; cache writes are best-effort and their errors ignored.
func deadRedis() *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:         "127.0.0.1:1",
		DialTimeout:  10 * time.Millisecond,
		ReadTimeout:  10 * time.Millisecond,
		WriteTimeout: 10 * time.Millisecond,
		MaxRetries:   -1,
	})
}

// A crash between the reservation commit and payment initiation strands an
// order in CREATED holding stock. The expiry sweep must pick it up and
// cancel it like any overdue AWAITING_PAYMENT order.
func TestExpireStaleSweepsCreatedOrders(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectQuery(`status IN \('CREATED','AWAITING_PAYMENT'\)`).
		WithArgs(pgxmock.AnyArg()).
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow("ord-1"))

	mock.ExpectBeginTx(pgx.TxOptions{})
	mock.ExpectQuery("SELECT owner_id, status, credit_cents FROM orders").
		WithArgs("ord-1").
		WillReturnRows(pgxmock.NewRows([]string{"owner_id", "status", "credit_cents"}).
			AddRow(int64(7), shop.StatusCreated, 0))
	mock.ExpectExec("UPDATE orders SET status").
		WithArgs("ord-1", shop.StatusCancelled).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectQuery("SELECT item_id, qty FROM reservations").
		WithArgs("ord-1").
		WillReturnRows(pgxmock.NewRows([]string{"item_id", "qty"}).AddRow("item-1", 2))
	mock.ExpectExec("UPDATE items SET qty_reserved").
		WithArgs("item-1", 2).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec("UPDATE reservations SET status").
		WithArgs("ord-1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectCommit()

	sink := &recordSink{}
	s := &Service{
		DB:                 mock,
		Ledger:             &shop.Ledger{DB: mock},
		Sink:               sink,
		Redis:              deadRedis(),
		ReservationTimeout: 30 * time.Minute,
	}

	require.NoError(t, s.ExpireStale(context.Background()))
	require.NoError(t, mock.ExpectationsWereMet())

	require.Equal(t, []string{shop.EventOrderCancelled}, sink.events)
	p, ok := sink.payloads[0].(shop.OrderCancelledPayload)
	require.True(t, ok)
	assert.Equal(t, "ord-1", p.OrderID)
	assert.Equal(t, "payment window expired", p.Reason)
}

func TestCancelAlreadyCancelledIsNoop(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectBeginTx(pgx.TxOptions{})
	mock.ExpectQuery("SELECT owner_id, status, credit_cents FROM orders").
		WithArgs("ord-1").
		WillReturnRows(pgxmock.NewRows([]string{"owner_id", "status", "credit_cents"}).
			AddRow(int64(7), shop.StatusCancelled, 0))
	mock.ExpectRollback()

	sink := &recordSink{}
	s := &Service{DB: mock, Ledger: &shop.Ledger{DB: mock}, Sink: sink, Redis: deadRedis()}

	require.NoError(t, s.Cancel(context.Background(), "ord-1", "again"))
	require.NoError(t, mock.ExpectationsWereMet())
	assert.Empty(t, sink.events)
}

func TestCancelPaidOrderRejected(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectBeginTx(pgx.TxOptions{})
	mock.ExpectQuery("SELECT owner_id, status, credit_cents FROM orders").
		WithArgs("ord-1").
		WillReturnRows(pgxmock.NewRows([]string{"owner_id", "status", "credit_cents"}).
			AddRow(int64(7), shop.StatusPaid, 0))
	mock.ExpectRollback()

	s := &Service{DB: mock, Ledger: &shop.Ledger{DB: mock}, Sink: &recordSink{}, Redis: deadRedis()}

	err = s.Cancel(context.Background(), "ord-1", "too late")
	assert.ErrorIs(t, err, shop.ErrIllegalTransition)
	require.NoError(t, mock.ExpectationsWereMet())
}
