// Package store defines the unified storage interface for the Spendguard
// ledger: the durable account state (split by backends into a confidential
// section for lifetime counters and a plain section for the rest) and the
// applied-event-id set that makes replay safe.
package store

import (
	"context"
	"time"

	"github.com/xraph/spendguard/account"
)

// Store is the unified persistence boundary for one account's ledger.
//
// Write-through contract: the ledger engine only updates its in-memory state
// after a Save call returns nil, so backends must not report success for
// state they did not durably record. Backends that support transactions
// should make SaveStateApplied atomic; the startup snapshot replay recovers
// from a crash between the state write and the applied mark.
type Store interface {
	// LoadState returns the persisted ledger state, or (nil, nil) when
	// nothing has been persisted yet.
	LoadState(ctx context.Context) (*account.State, error)

	// SaveState persists the full ledger state write-through.
	SaveState(ctx context.Context, s *account.State) error

	// SaveStateApplied persists the ledger state and marks the purchase
	// event id as applied in a single call, atomically where the backend
	// allows it.
	SaveStateApplied(ctx context.Context, s *account.State, eventID string, appliedAt time.Time) error

	// IsApplied reports whether the purchase event id was already applied.
	IsApplied(ctx context.Context, eventID string) (bool, error)

	// ListApplied returns all retained applied event ids. Used at startup
	// to seed the in-memory deduplication set.
	ListApplied(ctx context.Context) ([]string, error)

	// PurgeApplied drops applied-id records older than the cutoff and
	// returns the number removed. Old ids need not be retained once their
	// effect is durably folded into the historical-spend counter.
	PurgeApplied(ctx context.Context, before time.Time) (int64, error)

	// Core methods
	Migrate(ctx context.Context) error
	Ping(ctx context.Context) error
	Close() error
}
