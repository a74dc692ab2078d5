// Package spendguard provides a spending-tier and purchase reconciliation
// engine for Go applications.
//
// Spendguard is designed as a library, not a service. Import it directly into
// your Go application. It provides:
//
//   - A durable per-account spending ledger fed by a purchase event stream
//   - Idempotent event application with replay-safe deduplication
//   - Lazy monthly budget resets with calendar-month boundaries
//   - Tenure-aware tier calculation that never demotes an account
//   - Fast "can this account spend $X" checks against the current budget
//   - Pluggable persistence (memory, SQLite, PostgreSQL, MongoDB, Redis, KV)
//   - Lifecycle hooks for metrics and audit trails
//
// # Quick Start
//
// Create a wallet with your preferred store and an event source:
//
//	import (
//	    "github.com/xraph/spendguard"
//	    "github.com/xraph/spendguard/event"
//	    "github.com/xraph/spendguard/store/sqlite"
//	)
//
//	// Initialize store
//	store, err := sqlite.New("file:spend.db")
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	// Purchase events arrive on a channel source
//	source := event.NewChanSource(64)
//
//	// Create wallet
//	w := spendguard.New(store, source)
//
//	// Start the wallet (replays the snapshot, then consumes live events)
//	if err := w.Start(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	defer w.Stop()
//
// # Core Concepts
//
// Purchases flow in from the event source and are reconciled into the
// account ledger exactly once:
//
//	source.Publish(event.Purchase{
//	    ID:          "prch_01h2xcejqtf2nbrexx3vqjhp41",
//	    Amount:      types.USD(999),
//	    Verified:    true,
//	    PurchasedAt: time.Now(),
//	})
//
// Tiers derive from lifetime spend and account tenure:
//
//	level := w.CurrentTier()       // tier.Starter, tier.Plus, ...
//	limit := w.MonthlyLimit()      // budget for the current month
//
// Spend checks gate metered work against the remaining monthly budget:
//
//	ok, err := w.CanSpend(ctx, types.USD(250))
//	if ok {
//	    // Do the work, then record it.
//	    w.RecordMeteredUsage(ctx, types.USD(250))
//	}
//
// # Consistency
//
// The ledger is write-through: every mutation is persisted before it is
// visible in memory, so a crash between events loses nothing. At startup the
// wallet replays the source's snapshot; events already applied are skipped
// via their ids, which are retained for thirteen months.
//
// All monetary calculations use integer arithmetic to avoid floating-point
// precision issues. The Money type represents amounts in the smallest
// currency unit (cents for USD, pence for GBP, etc).
//
// # TypeID
//
// All entities use TypeID for globally unique, type-safe identifiers:
//
//	prch_01h2xcejqtf2nbrexx3vqjhp41   // Purchase ID
//	usage_01h2xcejqtf2nbrexx3vqjhp41  // Usage ID
//	chg_01h455vb4pex5vsknk084sn02q    // Change ID
//
// TypeIDs are K-sortable, making them ideal for database indexes and
// providing natural time-ordering of entities.
package spendguard
