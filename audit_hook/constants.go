package audithook

// Action constants for audit events.
const (
	// Purchase actions
	ActionPurchaseApplied  = "purchase.applied"
	ActionPurchaseRejected = "purchase.rejected"
	ActionPurchaseSkipped  = "purchase.skipped"

	// Tier actions
	ActionTierChanged  = "tier.changed"
	ActionMonthlyReset = "monthly.reset"

	// Spending actions
	ActionLimitExceeded = "limit.exceeded"
	ActionUsageRecorded = "usage.recorded"

	// Startup actions
	ActionReplayCompleted = "replay.completed"
	ActionStateRebuilt    = "state.rebuilt"
)

// Resource constants for audit events.
const (
	ResourcePurchase = "purchase"
	ResourceTier     = "tier"
	ResourceBudget   = "budget"
	ResourceLedger   = "ledger"
)

// Category constants for audit events.
const (
	CategorySpending = "spending"
	CategoryTier     = "tier"
	CategoryLedger   = "ledger"
)

// Severity levels for audit events.
const (
	SeverityInfo     = "info"
	SeverityWarning  = "warning"
	SeverityError    = "error"
	SeverityCritical = "critical"
)

// Outcome values for audit events.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
	OutcomePartial = "partial"
)
