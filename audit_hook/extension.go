// Package audithook bridges Spendguard ledger events to an audit trail
// backend.
//
// It defines a local Recorder interface so the package does not depend on
// any particular audit system. Callers inject a RecorderFunc adapter that
// bridges to their backend at wiring time.
package audithook

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/xraph/spendguard/account"
	"github.com/xraph/spendguard/event"
	"github.com/xraph/spendguard/plugin"
	"github.com/xraph/spendguard/tier"
	"github.com/xraph/spendguard/types"
)

// Compile-time interface checks.
var (
	_ plugin.Plugin             = (*Extension)(nil)
	_ plugin.OnPurchaseApplied  = (*Extension)(nil)
	_ plugin.OnPurchaseRejected = (*Extension)(nil)
	_ plugin.OnDuplicateSkipped = (*Extension)(nil)
	_ plugin.OnTierChanged      = (*Extension)(nil)
	_ plugin.OnMonthlyReset     = (*Extension)(nil)
	_ plugin.OnLimitExceeded    = (*Extension)(nil)
	_ plugin.OnUsageRecorded    = (*Extension)(nil)
	_ plugin.OnStateRebuilt     = (*Extension)(nil)
)

// Recorder is the interface that audit backends must implement. It is
// defined locally so this package carries no backend dependency; callers
// inject the concrete recorder at wiring time.
type Recorder interface {
	Record(ctx context.Context, event *AuditEvent) error
}

// AuditEvent is a local representation of an audit event.
type AuditEvent struct {
	Action     string         `json:"action"`
	Resource   string         `json:"resource"`
	Category   string         `json:"category"`
	ResourceID string         `json:"resource_id,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	Outcome    string         `json:"outcome"`
	Severity   string         `json:"severity"`
	Reason     string         `json:"reason,omitempty"`
}

// RecorderFunc is an adapter to use a plain function as a Recorder.
type RecorderFunc func(ctx context.Context, event *AuditEvent) error

// Record implements Recorder.
func (f RecorderFunc) Record(ctx context.Context, event *AuditEvent) error {
	return f(ctx, event)
}

// Extension bridges Spendguard ledger events to an audit trail backend.
type Extension struct {
	recorder Recorder
	enabled  map[string]bool // nil = all enabled
	logger   *slog.Logger
}

// New creates an Extension that emits audit events through the provided Recorder.
func New(r Recorder, opts ...Option) *Extension {
	e := &Extension{
		recorder: r,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Name implements plugin.Plugin.
func (e *Extension) Name() string { return "audit-hook" }

// ──────────────────────────────────────────────────
// Purchase hooks
// ──────────────────────────────────────────────────

// OnPurchaseApplied implements plugin.OnPurchaseApplied.
func (e *Extension) OnPurchaseApplied(ctx context.Context, ev event.Purchase) error {
	return e.record(ctx, ActionPurchaseApplied, SeverityInfo, OutcomeSuccess,
		ResourcePurchase, ev.ID, CategorySpending, nil,
		"amount", ev.Amount.String(),
		"product_id", ev.ProductID,
	)
}

// OnPurchaseRejected implements plugin.OnPurchaseRejected.
func (e *Extension) OnPurchaseRejected(ctx context.Context, ev event.Purchase, reason error) error {
	return e.record(ctx, ActionPurchaseRejected, SeverityWarning, OutcomeFailure,
		ResourcePurchase, ev.ID, CategorySpending, reason,
		"product_id", ev.ProductID,
		"verified", ev.Verified,
	)
}

// OnDuplicateSkipped implements plugin.OnDuplicateSkipped.
func (e *Extension) OnDuplicateSkipped(_ context.Context, _ string) error {
	// Duplicates are routine redelivery noise; not audited.
	return nil
}

// ──────────────────────────────────────────────────
// Tier hooks
// ──────────────────────────────────────────────────

// OnTierChanged implements plugin.OnTierChanged.
func (e *Extension) OnTierChanged(ctx context.Context, from, to tier.Level) error {
	return e.record(ctx, ActionTierChanged, SeverityInfo, OutcomeSuccess,
		ResourceTier, "", CategoryTier, nil,
		"from", from.String(),
		"to", to.String(),
	)
}

// OnMonthlyReset implements plugin.OnMonthlyReset.
func (e *Extension) OnMonthlyReset(ctx context.Context, previousSpend types.Money, resetAt time.Time) error {
	return e.record(ctx, ActionMonthlyReset, SeverityInfo, OutcomeSuccess,
		ResourceBudget, "", CategorySpending, nil,
		"previous_spend", previousSpend.String(),
		"reset_at", resetAt,
	)
}

// ──────────────────────────────────────────────────
// Spending hooks
// ──────────────────────────────────────────────────

// OnLimitExceeded implements plugin.OnLimitExceeded.
func (e *Extension) OnLimitExceeded(ctx context.Context, attempted, remaining types.Money) error {
	return e.record(ctx, ActionLimitExceeded, SeverityWarning, OutcomeFailure,
		ResourceBudget, "", CategorySpending, nil,
		"attempted", attempted.String(),
		"remaining", remaining.String(),
	)
}

// OnUsageRecorded implements plugin.OnUsageRecorded.
func (e *Extension) OnUsageRecorded(ctx context.Context, amount types.Money) error {
	return e.record(ctx, ActionUsageRecorded, SeverityInfo, OutcomeSuccess,
		ResourceBudget, "", CategorySpending, nil,
		"amount", amount.String(),
	)
}

// ──────────────────────────────────────────────────
// Startup hooks
// ──────────────────────────────────────────────────

// OnStateRebuilt implements plugin.OnStateRebuilt.
func (e *Extension) OnStateRebuilt(ctx context.Context, state *account.State) error {
	return e.record(ctx, ActionStateRebuilt, SeverityWarning, OutcomeSuccess,
		ResourceLedger, "", CategoryLedger, nil,
		"tier", state.Tier.String(),
	)
}

// ──────────────────────────────────────────────────
// Internal helpers
// ──────────────────────────────────────────────────

// record builds and sends an audit event if the action is enabled.
func (e *Extension) record(
	ctx context.Context,
	action, severity, outcome string,
	resource, resourceID, category string,
	err error,
	kvPairs ...any,
) error {
	if e.enabled != nil && !e.enabled[action] {
		return nil
	}

	meta := make(map[string]any, len(kvPairs)/2+1)
	for i := 0; i+1 < len(kvPairs); i += 2 {
		key, ok := kvPairs[i].(string)
		if !ok {
			key = fmt.Sprintf("%v", kvPairs[i])
		}
		meta[key] = kvPairs[i+1]
	}

	var reason string
	if err != nil {
		reason = err.Error()
		meta["error"] = err.Error()
	}

	evt := &AuditEvent{
		Action:     action,
		Resource:   resource,
		Category:   category,
		ResourceID: resourceID,
		Metadata:   meta,
		Outcome:    outcome,
		Severity:   severity,
		Reason:     reason,
	}

	if recErr := e.recorder.Record(ctx, evt); recErr != nil {
		e.logger.Warn("audit_hook: failed to record audit event",
			"action", action,
			"resource_id", resourceID,
			"error", recErr,
		)
	}
	return nil
}
