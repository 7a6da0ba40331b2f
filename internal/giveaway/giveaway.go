// Package giveaway runs the rolling store-credit giveaway: one open round at
// a time, a fixed cycle length, and a sweep that draws the winner and chains
// the next round.
package giveaway

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/eamaze/shopcore/internal/postgres"
	"github.com/eamaze/shopcore/internal/shop"
	"github.com/jackc/pgx/v5"
)

type Scheduler struct {
	DB         postgres.Pool
	Sink       shop.EventSink
	Cycle      time.Duration
	PrizeCents int

	// Rand draws the winning index. Nil uses the package default source.
	Rand *rand.Rand
}

// EnsureRound opens a round if none is open. The partial unique index on
// open rounds makes a concurrent double-open lose cleanly, so startup and
// the sweep can both call this.
func (s *Scheduler) EnsureRound(ctx context.Context) (*shop.GiveawayRound, error) {
	if r, err := s.openRound(ctx); err == nil {
		return r, nil
	} else if !errors.Is(err, shop.ErrNotFound) {
		return nil, err
	}
	return s.startRound(ctx)
}

// Enter registers a user in the open round. Re-entering is a no-op; a user
// holds at most one entry per round.
func (s *Scheduler) Enter(ctx context.Context, userID int64) (*shop.GiveawayRound, error) {
	r, err := s.EnsureRound(ctx)
	if err != nil {
		return nil, err
	}
	_, err = s.DB.Exec(ctx, `
		INSERT INTO giveaway_entrants (giveaway_id, user_id) VALUES ($1,$2)
		ON CONFLICT (giveaway_id, user_id) DO NOTHING
	`, r.ID, userID)
	if err != nil {
		return nil, err
	}
	return r, nil
}

func (s *Scheduler) Entrants(ctx context.Context, roundID int64) ([]int64, error) {
	rows, err := s.DB.Query(ctx,
		`SELECT user_id FROM giveaway_entrants WHERE giveaway_id=$1 ORDER BY user_id`, roundID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// SweepDue closes the open round once its deadline passes: draw a winner,
// credit the prize, and chain the next round. Winner selection and the
// credit land in one transaction, so a crash either does both or neither,
// and the guarded UPDATE keeps concurrent sweeps from drawing twice.
// A round with no entrants ends with a null winner and credits nobody.
func (s *Scheduler) SweepDue(ctx context.Context) error {
	// Heal the chain first: a crash between ending a round and opening the
	// next leaves no open round, and the due-round query below would never
	// match again.
	if _, err := s.EnsureRound(ctx); err != nil {
		return err
	}

	tx, err := s.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	var r shop.GiveawayRound
	err = tx.QueryRow(ctx, `
		SELECT id, started_at, ends_at, status, prize_cents FROM giveaways
		WHERE status='open' AND ends_at <= now()
		FOR UPDATE SKIP LOCKED
	`).Scan(&r.ID, &r.StartedAt, &r.EndsAt, &r.Status, &r.PrizeCents)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil // nothing due, or another sweep holds it
	}
	if err != nil {
		return err
	}

	entrants, err := entrantsTx(ctx, tx, r.ID)
	if err != nil {
		return err
	}
	winner := PickWinner(entrants, s.Rand)

	tag, err := tx.Exec(ctx, `
		UPDATE giveaways SET status='ended', winner_id=$2 WHERE id=$1 AND status='open'
	`, r.ID, winner)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return nil // already ended
	}

	if winner != nil {
		if _, err := tx.Exec(ctx, `
			INSERT INTO users (id, balance_cents) VALUES ($1,$2)
			ON CONFLICT (id) DO UPDATE SET balance_cents = users.balance_cents + $2
		`, *winner, r.PrizeCents); err != nil {
			return err
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return err
	}

	s.Sink.Publish(shop.EventGiveawayEnded, fmt.Sprintf("giveaway-%d", r.ID), shop.GiveawayEndedPayload{
		RoundID:    r.ID,
		WinnerID:   winner,
		PrizeCents: r.PrizeCents,
		Entrants:   len(entrants),
	})

	if _, err := s.startRound(ctx); err != nil {
		return err
	}
	return nil
}

func (s *Scheduler) startRound(ctx context.Context) (*shop.GiveawayRound, error) {
	r := shop.GiveawayRound{Status: "open", PrizeCents: s.PrizeCents}
	err := s.DB.QueryRow(ctx, `
		INSERT INTO giveaways (ends_at, prize_cents) VALUES (now() + $1, $2)
		RETURNING id, started_at, ends_at
	`, s.Cycle, s.PrizeCents).Scan(&r.ID, &r.StartedAt, &r.EndsAt)
	if err != nil {
		// Unique open-round index: someone else opened first; use theirs.
		if existing, oerr := s.openRound(ctx); oerr == nil {
			return existing, nil
		}
		return nil, err
	}

	s.Sink.Publish(shop.EventGiveawayStarted, fmt.Sprintf("giveaway-%d", r.ID), shop.GiveawayStartedPayload{
		RoundID:    r.ID,
		PrizeCents: r.PrizeCents,
		EndsAt:     r.EndsAt,
	})
	return &r, nil
}

func (s *Scheduler) openRound(ctx context.Context) (*shop.GiveawayRound, error) {
	var r shop.GiveawayRound
	err := s.DB.QueryRow(ctx, `
		SELECT id, started_at, ends_at, status, winner_id, prize_cents
		FROM giveaways WHERE status='open'
	`).Scan(&r.ID, &r.StartedAt, &r.EndsAt, &r.Status, &r.WinnerID, &r.PrizeCents)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, shop.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &r, nil
}

func entrantsTx(ctx context.Context, tx pgx.Tx, roundID int64) ([]int64, error) {
	rows, err := tx.Query(ctx,
		`SELECT user_id FROM giveaway_entrants WHERE giveaway_id=$1 ORDER BY user_id`, roundID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// PickWinner draws uniformly from entrants, nil when there are none.
func PickWinner(entrants []int64, rng *rand.Rand) *int64 {
	if len(entrants) == 0 {
		return nil
	}
	var i int
	if rng != nil {
		i = rng.Intn(len(entrants))
	} else {
		i = rand.Intn(len(entrants))
	}
	return &entrants[i]
}
