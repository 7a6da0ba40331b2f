// Package credit manages store credit balances. Balances never go negative;
// the CHECK constraint backs up the guarded updates.
package credit

import (
	"context"
	"errors"

	"github.com/eamaze/shopcore/internal/shop"
	"github.com/eamaze/shopcore/internal/postgres"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

type Repo struct {
	DB postgres.Pool
}

func (r *Repo) Balance(ctx context.Context, userID int64) (int, error) {
	var cents int
	err := r.DB.QueryRow(ctx,
		`SELECT balance_cents FROM users WHERE id=$1`, userID).Scan(&cents)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, nil
	}
	return cents, err
}

// Add grants (or with a negative delta, claws back) credit. A clawback past
// zero fails with ErrInsufficientCredit.
func (r *Repo) Add(ctx context.Context, userID int64, deltaCents int) (int, error) {
	var cents int
	err := r.DB.QueryRow(ctx, `
		INSERT INTO users (id, balance_cents) VALUES ($1, GREATEST($2, 0))
		ON CONFLICT (id) DO UPDATE SET balance_cents = users.balance_cents + $2
		RETURNING balance_cents
	`, userID, deltaCents).Scan(&cents)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23514" { // check_violation
			return 0, shop.ErrInsufficientCredit
		}
		return 0, err
	}
	return cents, nil
}

// Set overwrites the balance. Admin override only.
func (r *Repo) Set(ctx context.Context, userID int64, cents int) error {
	if cents < 0 {
		return shop.ErrInsufficientCredit
	}
	_, err := r.DB.Exec(ctx, `
		INSERT INTO users (id, balance_cents) VALUES ($1,$2)
		ON CONFLICT (id) DO UPDATE SET balance_cents=$2
	`, userID, cents)
	return err
}
