package postgres

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Setup creates the schema on startup. Cross-entity invariants (stock
// non-negativity, one payment per order, one active giveaway) live here at
// the store boundary, not only in application code.
func Setup(ctx context.Context, db *pgxpool.Pool) error {
	for _, stmt := range schema {
		if _, err := db.Exec(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS items (
		id               UUID PRIMARY KEY,
		name             TEXT UNIQUE NOT NULL,
		description      TEXT NOT NULL DEFAULT '',
		image_url        TEXT NOT NULL DEFAULT '',
		price_cents      INT  NOT NULL CHECK (price_cents >= 0),
		qty_available    INT  NOT NULL CHECK (qty_available >= 0),
		qty_reserved     INT  NOT NULL DEFAULT 0 CHECK (qty_reserved >= 0),
		digital          BOOLEAN NOT NULL DEFAULT FALSE,
		stock_visibility TEXT NOT NULL DEFAULT 'exact',
		status           TEXT NOT NULL DEFAULT 'active',
		created_at       TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at       TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS cart_lines (
		owner_id    BIGINT NOT NULL,
		item_id     UUID   NOT NULL,
		qty         INT    NOT NULL CHECK (qty > 0),
		price_cents INT    NOT NULL,
		updated_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
		PRIMARY KEY (owner_id, item_id)
	)`,
	`CREATE TABLE IF NOT EXISTS orders (
		id               UUID PRIMARY KEY,
		owner_id         BIGINT NOT NULL,
		status           TEXT   NOT NULL,
		total_cents      INT    NOT NULL CHECK (total_cents >= 0),
		credit_cents     INT    NOT NULL DEFAULT 0 CHECK (credit_cents >= 0),
		payment_method   TEXT   NOT NULL DEFAULT '',
		payment_ref      TEXT   NOT NULL DEFAULT '',
		created_at       TIMESTAMPTZ NOT NULL DEFAULT now(),
		state_changed_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS orders_expirable_idx ON orders (state_changed_at) WHERE status IN ('CREATED','AWAITING_PAYMENT')`,
	`CREATE INDEX IF NOT EXISTS orders_payment_ref_idx ON orders (payment_ref) WHERE payment_ref <> ''`,
	`CREATE TABLE IF NOT EXISTS order_lines (
		order_id    UUID NOT NULL REFERENCES orders(id),
		item_id     UUID NOT NULL,
		name        TEXT NOT NULL,
		qty         INT  NOT NULL CHECK (qty > 0),
		price_cents INT  NOT NULL,
		digital     BOOLEAN NOT NULL DEFAULT FALSE,
		delivered   BOOLEAN NOT NULL DEFAULT FALSE,
		PRIMARY KEY (order_id, item_id)
	)`,
	`CREATE TABLE IF NOT EXISTS payments (
		order_id     UUID PRIMARY KEY REFERENCES orders(id),
		method       TEXT NOT NULL,
		external_ref TEXT NOT NULL DEFAULT '',
		amount_cents INT  NOT NULL,
		currency     TEXT NOT NULL,
		verified_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
		verifier     TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS reservations (
		order_id   UUID NOT NULL,
		item_id    UUID NOT NULL,
		qty        INT  NOT NULL CHECK (qty > 0),
		status     TEXT NOT NULL DEFAULT 'RESERVED',
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		PRIMARY KEY (order_id, item_id)
	)`,
	`CREATE TABLE IF NOT EXISTS users (
		id                   BIGINT PRIMARY KEY,
		balance_cents        INT NOT NULL DEFAULT 0 CHECK (balance_cents >= 0),
		lifetime_cents       INT NOT NULL DEFAULT 0,
		delivery_value_cents INT NOT NULL DEFAULT 0
	)`,
	`CREATE TABLE IF NOT EXISTS role_tiers (
		role_id         BIGINT PRIMARY KEY,
		threshold_cents INT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS user_roles (
		user_id    BIGINT NOT NULL,
		role_id    BIGINT NOT NULL,
		granted_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		PRIMARY KEY (user_id, role_id)
	)`,
	`CREATE TABLE IF NOT EXISTS tickets (
		id          BIGSERIAL PRIMARY KEY,
		owner_id    BIGINT NOT NULL,
		channel_ref TEXT NOT NULL,
		status      TEXT NOT NULL DEFAULT 'open',
		closed_at   TIMESTAMPTZ,
		purge_at    TIMESTAMPTZ
	)`,
	`CREATE TABLE IF NOT EXISTS giveaways (
		id          BIGSERIAL PRIMARY KEY,
		started_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
		ends_at     TIMESTAMPTZ NOT NULL,
		status      TEXT NOT NULL DEFAULT 'open',
		winner_id   BIGINT,
		prize_cents INT NOT NULL
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS giveaways_single_open_idx ON giveaways ((TRUE)) WHERE status = 'open'`,
	`CREATE TABLE IF NOT EXISTS giveaway_entrants (
		giveaway_id BIGINT NOT NULL,
		user_id     BIGINT NOT NULL,
		PRIMARY KEY (giveaway_id, user_id)
	)`,
	`CREATE TABLE IF NOT EXISTS license_keys (
		id           UUID PRIMARY KEY,
		item_id      UUID NOT NULL,
		key          TEXT NOT NULL,
		order_id     UUID,
		delivered_at TIMESTAMPTZ
	)`,
	`CREATE TABLE IF NOT EXISTS settings (
		name    TEXT PRIMARY KEY,
		value   TEXT NOT NULL,
		version INT  NOT NULL DEFAULT 0
	)`,
	`CREATE TABLE IF NOT EXISTS analytics (
		id         BIGSERIAL PRIMARY KEY,
		event_type TEXT NOT NULL,
		item_id    UUID,
		user_id    BIGINT,
		at         TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`INSERT INTO settings(name, value) VALUES ('shop_status', 'open') ON CONFLICT (name) DO NOTHING`,
	`INSERT INTO settings(name, value) VALUES ('hide_stock', 'false') ON CONFLICT (name) DO NOTHING`,
}
