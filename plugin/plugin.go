// Package plugin provides an extensible plugin system for Spendguard.
// Plugins can hook into various lifecycle events to extend functionality.
package plugin

import (
	"context"
	"time"

	"github.com/xraph/spendguard/account"
	"github.com/xraph/spendguard/event"
	"github.com/xraph/spendguard/tier"
	"github.com/xraph/spendguard/types"
)

// Plugin is the base interface that all plugins must implement.
type Plugin interface {
	Name() string
}

// ──────────────────────────────────────────────────
// Lifecycle hooks
// ──────────────────────────────────────────────────

// OnInit is called when the plugin is initialized.
type OnInit interface {
	Plugin
	OnInit(ctx context.Context, wallet interface{}) error
}

// OnShutdown is called when the plugin is shutting down.
type OnShutdown interface {
	Plugin
	OnShutdown(ctx context.Context) error
}

// ──────────────────────────────────────────────────
// Purchase-event hooks
// ──────────────────────────────────────────────────

// OnPurchaseApplied is called after a purchase event mutated the ledger.
type OnPurchaseApplied interface {
	Plugin
	OnPurchaseApplied(ctx context.Context, ev event.Purchase) error
}

// OnPurchaseRejected is called when a purchase event failed validation.
type OnPurchaseRejected interface {
	Plugin
	OnPurchaseRejected(ctx context.Context, ev event.Purchase, reason error) error
}

// OnDuplicateSkipped is called when a redelivered or replayed event id is
// skipped.
type OnDuplicateSkipped interface {
	Plugin
	OnDuplicateSkipped(ctx context.Context, eventID string) error
}

// ──────────────────────────────────────────────────
// Tier hooks
// ──────────────────────────────────────────────────

// OnTierChanged is called when the account's tier moves.
type OnTierChanged interface {
	Plugin
	OnTierChanged(ctx context.Context, from, to tier.Level) error
}

// OnMonthlyReset is called when the monthly spend counter is reset at a
// calendar-month boundary.
type OnMonthlyReset interface {
	Plugin
	OnMonthlyReset(ctx context.Context, previousSpend types.Money, resetAt time.Time) error
}

// ──────────────────────────────────────────────────
// Spending hooks
// ──────────────────────────────────────────────────

// OnLimitExceeded is called when a spend attempt is denied by the monthly cap.
type OnLimitExceeded interface {
	Plugin
	OnLimitExceeded(ctx context.Context, attempted, remaining types.Money) error
}

// OnUsageRecorded is called after local metered usage is charged against the
// monthly budget.
type OnUsageRecorded interface {
	Plugin
	OnUsageRecorded(ctx context.Context, amount types.Money) error
}

// ──────────────────────────────────────────────────
// Startup hooks
// ──────────────────────────────────────────────────

// OnReplayCompleted is called when the startup snapshot replay finishes and
// the wallet goes live.
type OnReplayCompleted interface {
	Plugin
	OnReplayCompleted(ctx context.Context, replayed int, elapsed time.Duration) error
}

// OnStateRebuilt is called after an inconsistent persisted ledger was
// discarded and rebuilt from the event snapshot.
type OnStateRebuilt interface {
	Plugin
	OnStateRebuilt(ctx context.Context, state *account.State) error
}
