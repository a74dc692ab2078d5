// Package event defines the purchase-event model and the event-source
// boundary Spendguard consumes: a replayable snapshot of past purchases plus
// a live at-least-once stream of new ones.
package event

import (
	"sort"
	"time"

	"github.com/xraph/spendguard/types"
)

// Purchase is a single recognized money-in transaction from the external
// store. The ID is opaque, unique, and stable; it is the deduplication key,
// so redelivered or replayed events are harmless.
type Purchase struct {
	// ID is the event's stable identifier, assigned by the source.
	ID string `json:"id"`

	// ProductID names the purchased product. When Amount is zero the price
	// is resolved through the product catalog.
	ProductID string `json:"product_id,omitempty"`

	// Amount is the resolved price. Zero means "resolve via catalog";
	// negative amounts are always rejected.
	Amount types.Money `json:"amount"`

	// Verified reports whether the source cryptographically confirmed the
	// event's authenticity. Unverified events are never applied.
	Verified bool `json:"verified"`

	// PurchasedAt is the source's own ordering timestamp.
	PurchasedAt time.Time `json:"purchased_at"`
}

// SortByTime orders events ascending by purchase time, breaking ties by ID.
// Snapshot replay applies events in this order.
func SortByTime(events []Purchase) {
	sort.Slice(events, func(i, j int) bool {
		if events[i].PurchasedAt.Equal(events[j].PurchasedAt) {
			return events[i].ID < events[j].ID
		}
		return events[i].PurchasedAt.Before(events[j].PurchasedAt)
	})
}

// Outcome classifies what applying a purchase event did to the ledger.
type Outcome string

const (
	// OutcomeApplied means the event mutated the ledger exactly once.
	OutcomeApplied Outcome = "applied"

	// OutcomeDuplicate means the event id was already applied; benign no-op.
	OutcomeDuplicate Outcome = "duplicate"

	// OutcomeRejected means the event failed verification or carried a
	// non-positive amount; the ledger is unchanged.
	OutcomeRejected Outcome = "rejected"
)
