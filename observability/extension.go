// Package observability provides a metrics extension for Spendguard that
// records ledger event counts through a pluggable MetricFactory.
package observability

import (
	"context"
	"time"

	"github.com/xraph/spendguard/account"
	"github.com/xraph/spendguard/event"
	"github.com/xraph/spendguard/plugin"
	"github.com/xraph/spendguard/tier"
	"github.com/xraph/spendguard/types"
)

// Ensure MetricsExtension implements required interfaces.
var (
	_ plugin.Plugin             = (*MetricsExtension)(nil)
	_ plugin.OnInit             = (*MetricsExtension)(nil)
	_ plugin.OnPurchaseApplied  = (*MetricsExtension)(nil)
	_ plugin.OnPurchaseRejected = (*MetricsExtension)(nil)
	_ plugin.OnDuplicateSkipped = (*MetricsExtension)(nil)
	_ plugin.OnTierChanged      = (*MetricsExtension)(nil)
	_ plugin.OnMonthlyReset     = (*MetricsExtension)(nil)
	_ plugin.OnLimitExceeded    = (*MetricsExtension)(nil)
	_ plugin.OnUsageRecorded    = (*MetricsExtension)(nil)
	_ plugin.OnReplayCompleted  = (*MetricsExtension)(nil)
	_ plugin.OnStateRebuilt     = (*MetricsExtension)(nil)
)

// Counter interface for metric counters.
type Counter interface {
	Inc()
	Add(float64)
}

// Histogram interface for metric histograms.
type Histogram interface {
	Observe(float64)
}

// MetricFactory creates metrics.
type MetricFactory interface {
	Counter(name string) Counter
	Histogram(name string) Histogram
}

// MetricsExtension records system-wide ledger metrics.
// Register it as a Wallet plugin to automatically track spending metrics.
type MetricsExtension struct {
	factory MetricFactory

	// Purchase metrics
	PurchasesApplied  Counter
	PurchasesRejected Counter
	DuplicatesSkipped Counter
	PurchaseAmount    Histogram

	// Tier metrics
	TierChanges   Counter
	MonthlyResets Counter

	// Spending metrics
	LimitExceeded Counter
	UsageRecorded Counter
	UsageAmount   Histogram

	// Startup metrics
	ReplaysCompleted Counter
	ReplayedEvents   Histogram
	ReplayLatency    Histogram
	StateRebuilds    Counter
}

// NewMetricsExtension creates a MetricsExtension with the provided MetricFactory.
func NewMetricsExtension(factory MetricFactory) *MetricsExtension {
	return &MetricsExtension{
		factory: factory,

		// Purchase metrics
		PurchasesApplied:  factory.Counter("spendguard.purchase.applied"),
		PurchasesRejected: factory.Counter("spendguard.purchase.rejected"),
		DuplicatesSkipped: factory.Counter("spendguard.purchase.duplicates"),
		PurchaseAmount:    factory.Histogram("spendguard.purchase.amount_minor"),

		// Tier metrics
		TierChanges:   factory.Counter("spendguard.tier.changes"),
		MonthlyResets: factory.Counter("spendguard.monthly.resets"),

		// Spending metrics
		LimitExceeded: factory.Counter("spendguard.spend.limit_exceeded"),
		UsageRecorded: factory.Counter("spendguard.usage.recorded"),
		UsageAmount:   factory.Histogram("spendguard.usage.amount_minor"),

		// Startup metrics
		ReplaysCompleted: factory.Counter("spendguard.replay.completed"),
		ReplayedEvents:   factory.Histogram("spendguard.replay.events"),
		ReplayLatency:    factory.Histogram("spendguard.replay.latency_ms"),
		StateRebuilds:    factory.Counter("spendguard.state.rebuilds"),
	}
}

// Name implements plugin.Plugin.
func (m *MetricsExtension) Name() string { return "observability-metrics" }

// OnInit implements plugin.OnInit.
func (m *MetricsExtension) OnInit(_ context.Context, _ interface{}) error {
	// No initialization needed
	return nil
}

// ──────────────────────────────────────────────────
// Purchase hooks
// ──────────────────────────────────────────────────

// OnPurchaseApplied implements plugin.OnPurchaseApplied.
func (m *MetricsExtension) OnPurchaseApplied(_ context.Context, ev event.Purchase) error {
	m.PurchasesApplied.Inc()
	m.PurchaseAmount.Observe(float64(ev.Amount.Amount))
	return nil
}

// OnPurchaseRejected implements plugin.OnPurchaseRejected.
func (m *MetricsExtension) OnPurchaseRejected(_ context.Context, _ event.Purchase, _ error) error {
	m.PurchasesRejected.Inc()
	return nil
}

// OnDuplicateSkipped implements plugin.OnDuplicateSkipped.
func (m *MetricsExtension) OnDuplicateSkipped(_ context.Context, _ string) error {
	m.DuplicatesSkipped.Inc()
	return nil
}

// ──────────────────────────────────────────────────
// Tier hooks
// ──────────────────────────────────────────────────

// OnTierChanged implements plugin.OnTierChanged.
func (m *MetricsExtension) OnTierChanged(_ context.Context, _, _ tier.Level) error {
	m.TierChanges.Inc()
	return nil
}

// OnMonthlyReset implements plugin.OnMonthlyReset.
func (m *MetricsExtension) OnMonthlyReset(_ context.Context, _ types.Money, _ time.Time) error {
	m.MonthlyResets.Inc()
	return nil
}

// ──────────────────────────────────────────────────
// Spending hooks
// ──────────────────────────────────────────────────

// OnLimitExceeded implements plugin.OnLimitExceeded.
func (m *MetricsExtension) OnLimitExceeded(_ context.Context, _, _ types.Money) error {
	m.LimitExceeded.Inc()
	return nil
}

// OnUsageRecorded implements plugin.OnUsageRecorded.
func (m *MetricsExtension) OnUsageRecorded(_ context.Context, amount types.Money) error {
	m.UsageRecorded.Inc()
	m.UsageAmount.Observe(float64(amount.Amount))
	return nil
}

// ──────────────────────────────────────────────────
// Startup hooks
// ──────────────────────────────────────────────────

// OnReplayCompleted implements plugin.OnReplayCompleted.
func (m *MetricsExtension) OnReplayCompleted(_ context.Context, replayed int, elapsed time.Duration) error {
	m.ReplaysCompleted.Inc()
	m.ReplayedEvents.Observe(float64(replayed))
	m.ReplayLatency.Observe(float64(elapsed.Milliseconds()))
	return nil
}

// OnStateRebuilt implements plugin.OnStateRebuilt.
func (m *MetricsExtension) OnStateRebuilt(_ context.Context, _ *account.State) error {
	m.StateRebuilds.Inc()
	return nil
}
