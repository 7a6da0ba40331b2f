package giveaway

import (
	"context"
	"testing"
	"time"

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

// A crash after ending a round but before chaining the next leaves the table
// with no open round. The sweep must reopen the chain on its own instead of
// matching nothing forever.
func TestSweepDueReopensBrokenChain(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectQuery("FROM giveaways WHERE status='open'").
		WillReturnError(pgx.ErrNoRows)
	mock.ExpectQuery("INSERT INTO giveaways").
		WithArgs(24*time.Hour, 500).
		WillReturnRows(pgxmock.NewRows([]string{"id", "started_at", "ends_at"}).
			AddRow(int64(3), time.Now(), time.Now().Add(24*time.Hour)))

	mock.ExpectBeginTx(pgx.TxOptions{})
	mock.ExpectQuery("FOR UPDATE SKIP LOCKED").
		WillReturnError(pgx.ErrNoRows)
	mock.ExpectRollback()

	sink := &recordSink{}
	s := &Scheduler{DB: mock, Sink: sink, Cycle: 24 * time.Hour, PrizeCents: 500}

	require.NoError(t, s.SweepDue(context.Background()))
	require.NoError(t, mock.ExpectationsWereMet())

	require.Equal(t, []string{shop.EventGiveawayStarted}, sink.events)
	p, ok := sink.payloads[0].(shop.GiveawayStartedPayload)
	require.True(t, ok)
	assert.Equal(t, int64(3), p.RoundID)
	assert.Equal(t, 500, p.PrizeCents)
}

// With a healthy open round the sweep changes nothing until the deadline.
func TestSweepDueNothingDue(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectQuery("FROM giveaways WHERE status='open'").
		WillReturnRows(pgxmock.NewRows([]string{
			"id", "started_at", "ends_at", "status", "winner_id", "prize_cents",
		}).AddRow(int64(3), time.Now(), time.Now().Add(time.Hour), "open", nil, 500))

	mock.ExpectBeginTx(pgx.TxOptions{})
	mock.ExpectQuery("FOR UPDATE SKIP LOCKED").
		WillReturnError(pgx.ErrNoRows)
	mock.ExpectRollback()

	sink := &recordSink{}
	s := &Scheduler{DB: mock, Sink: sink, Cycle: 24 * time.Hour, PrizeCents: 500}

	require.NoError(t, s.SweepDue(context.Background()))
	require.NoError(t, mock.ExpectationsWereMet())
	assert.Empty(t, sink.events)
}
