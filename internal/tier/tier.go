// Package tier grants buyer roles from lifetime spend. Grants are sticky:
// crossing a threshold records the role permanently, and nothing here ever
// revokes one.
package tier

import (
	"context"
	"errors"

	"github.com/eamaze/shopcore/internal/postgres"
	"github.com/eamaze/shopcore/internal/shop"
	"github.com/jackc/pgx/v5"
)

type Repo struct {
	DB postgres.Pool
}

// SetRule creates or updates the threshold for a role.
func (r *Repo) SetRule(ctx context.Context, roleID int64, thresholdCents int) error {
	_, err := r.DB.Exec(ctx, `
		INSERT INTO role_tiers (role_id, threshold_cents) VALUES ($1,$2)
		ON CONFLICT (role_id) DO UPDATE SET threshold_cents=$2
	`, roleID, thresholdCents)
	return err
}

func (r *Repo) RemoveRule(ctx context.Context, roleID int64) error {
	tag, err := r.DB.Exec(ctx, `DELETE FROM role_tiers WHERE role_id=$1`, roleID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shop.ErrNotFound
	}
	return nil
}

func (r *Repo) Rules(ctx context.Context) ([]shop.TierRule, error) {
	rows, err := r.DB.Query(ctx,
		`SELECT role_id, threshold_cents FROM role_tiers ORDER BY threshold_cents ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var rules []shop.TierRule
	for rows.Next() {
		var tr shop.TierRule
		if err := rows.Scan(&tr.RoleID, &tr.ThresholdCents); err != nil {
			return nil, err
		}
		rules = append(rules, tr)
	}
	return rules, rows.Err()
}

func (r *Repo) LifetimeSpend(ctx context.Context, ownerID int64) (int, error) {
	var cents int
	err := r.DB.QueryRow(ctx,
		`SELECT lifetime_cents FROM users WHERE id=$1`, ownerID).Scan(&cents)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, nil
	}
	return cents, err
}

// Evaluator grants every rule a buyer's lifetime spend now satisfies.
type Evaluator struct {
	Repo *Repo
	Sink shop.EventSink
}

// Evaluate returns the role IDs granted by this call. Roles already held
// produce no insert and no notification, so re-running after every order is
// safe.
func (e *Evaluator) Evaluate(ctx context.Context, ownerID int64) ([]int64, error) {
	spend, err := e.Repo.LifetimeSpend(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	rules, err := e.Repo.Rules(ctx)
	if err != nil {
		return nil, err
	}

	var granted []int64
	for _, roleID := range Earned(rules, spend) {
		tag, err := e.Repo.DB.Exec(ctx, `
			INSERT INTO user_roles (user_id, role_id) VALUES ($1,$2)
			ON CONFLICT (user_id, role_id) DO NOTHING
		`, ownerID, roleID)
		if err != nil {
			return granted, err
		}
		if tag.RowsAffected() == 0 {
			continue // already held
		}
		granted = append(granted, roleID)
		e.Sink.Publish(shop.EventTierGranted, "", shop.TierGrantedPayload{
			OwnerID:       ownerID,
			RoleID:        roleID,
			LifetimeCents: spend,
		})
	}
	return granted, nil
}

// Revoke is the admin override that removes a grant outside the sticky rule.
func (e *Evaluator) Revoke(ctx context.Context, ownerID, roleID int64) error {
	tag, err := e.Repo.DB.Exec(ctx,
		`DELETE FROM user_roles WHERE user_id=$1 AND role_id=$2`, ownerID, roleID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shop.ErrNotFound
	}
	return nil
}

// Earned lists the roles whose thresholds the given spend meets. Rules must
// be sorted ascending by threshold; output preserves that order.
func Earned(rules []shop.TierRule, lifetimeCents int) []int64 {
	var roles []int64
	for _, r := range rules {
		if lifetimeCents >= r.ThresholdCents {
			roles = append(roles, r.RoleID)
		}
	}
	return roles
}
