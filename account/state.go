// Package account holds the persisted ledger state model: the lifetime and
// monthly spend counters, the current tier, and the reset bookkeeping.
package account

import (
	"time"

	"github.com/xraph/spendguard/tier"
	"github.com/xraph/spendguard/types"
)

// State is the durable per-account ledger. A single State exists per wallet;
// all mutation happens inside the ledger engine, which persists the whole
// State write-through on every change.
type State struct {
	types.Entity

	// HistoricalSpend is the lifetime, non-decreasing sum of all recognized
	// purchase amounts. Confidential; persisted to the secret section of
	// the store.
	HistoricalSpend types.Money `json:"historical_spend"`

	// MonthlySpend is the spend recognized since LastReset. Resets to zero
	// at each calendar-month boundary.
	MonthlySpend types.Money `json:"monthly_spend"`

	// LastReset is the start of the calendar month MonthlySpend is valid for.
	LastReset time.Time `json:"last_reset"`

	// FirstPayment is set once, on the first recognized purchase ever, and
	// never modified afterward. Nil until the account first pays.
	FirstPayment *time.Time `json:"first_payment,omitempty"`

	// Tier is the derived level. Non-decreasing across recomputations.
	Tier tier.Level `json:"tier"`

	// CustomLimit, when set, overrides the tier's built-in monthly cap.
	CustomLimit *types.Money `json:"custom_limit,omitempty"`
}

// NewState returns the initial ledger for an account that has never paid.
func NewState(currency string, now time.Time) *State {
	return &State{
		Entity:          types.NewEntity(),
		HistoricalSpend: types.Zero(currency),
		MonthlySpend:    types.Zero(currency),
		LastReset:       StartOfMonth(now),
		Tier:            tier.Starter,
	}
}

// Clone returns a deep copy of the state.
func (s *State) Clone() *State {
	out := *s
	if s.FirstPayment != nil {
		t := *s.FirstPayment
		out.FirstPayment = &t
	}
	if s.CustomLimit != nil {
		m := *s.CustomLimit
		out.CustomLimit = &m
	}
	return &out
}

// Inconsistent reports whether the persisted fields are missing a
// counterpart: lifetime spend without a first-payment date, or a
// first-payment date without any recorded spend. Either way the local
// ledger cannot be trusted and must be rebuilt from the event snapshot.
func (s *State) Inconsistent() bool {
	if s.HistoricalSpend.IsPositive() && s.FirstPayment == nil {
		return true
	}
	if s.FirstPayment != nil && !s.HistoricalSpend.IsPositive() {
		return true
	}
	return false
}

// DaysSinceFirstPayment returns whole elapsed days since the first payment,
// or zero when the account has never paid.
func (s *State) DaysSinceFirstPayment(now time.Time) int {
	if s.FirstPayment == nil {
		return 0
	}
	d := int(now.Sub(*s.FirstPayment).Hours() / 24)
	if d < 0 {
		return 0
	}
	return d
}

// StartOfMonth truncates t to the first instant of its calendar month.
func StartOfMonth(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, t.Location())
}

// SameMonth reports whether a and b fall in the same calendar month.
func SameMonth(a, b time.Time) bool {
	return a.Year() == b.Year() && a.Month() == b.Month()
}
