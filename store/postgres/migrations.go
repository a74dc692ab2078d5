package postgres

import (
	"context"

	"github.com/xraph/grove/migrate"
)

// Migrations is the grove migration group for the Spendguard store.
var Migrations = migrate.NewGroup("spendguard")

func init() {
	Migrations.MustRegister(
		&migrate.Migration{
			Name:    "create_spendguard_state",
			Version: "20240101000001",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS spendguard_state (
    id                 TEXT PRIMARY KEY,
    historical_cents   BIGINT NOT NULL DEFAULT 0,
    monthly_cents      BIGINT NOT NULL DEFAULT 0,
    currency           TEXT NOT NULL DEFAULT 'usd',
    last_reset         TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    first_payment      TIMESTAMPTZ,
    tier               TEXT NOT NULL DEFAULT 'starter',
    custom_limit_cents BIGINT,
    created_at         TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at         TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS spendguard_state`)
				return err
			},
		},
		&migrate.Migration{
			Name:    "create_spendguard_applied",
			Version: "20240101000002",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS spendguard_applied (
    event_id   TEXT PRIMARY KEY,
    applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_spendguard_applied_at ON spendguard_applied (applied_at);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS spendguard_applied`)
				return err
			},
		},
	)
}
