package sqlite

import (
	"context"

	"github.com/xraph/grove/migrate"
)

// Migrations is the grove migration group for the Spendguard store (SQLite).
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
    historical_cents   INTEGER NOT NULL DEFAULT 0,
    monthly_cents      INTEGER NOT NULL DEFAULT 0,
    currency           TEXT NOT NULL DEFAULT 'usd',
    last_reset         TEXT NOT NULL DEFAULT (datetime('now')),
    first_payment      TEXT,
    tier               TEXT NOT NULL DEFAULT 'starter',
    custom_limit_cents INTEGER,
    created_at         TEXT NOT NULL DEFAULT (datetime('now')),
    updated_at         TEXT NOT NULL DEFAULT (datetime('now'))
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
    applied_at TEXT NOT NULL DEFAULT (datetime('now'))
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
