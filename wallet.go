package spendguard

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/xraph/spendguard/account"
	"github.com/xraph/spendguard/catalog"
	"github.com/xraph/spendguard/event"
	"github.com/xraph/spendguard/id"
	"github.com/xraph/spendguard/plugin"
	"github.com/xraph/spendguard/store"
	"github.com/xraph/spendguard/tier"
	"github.com/xraph/spendguard/types"
)

// Phase is the wallet's startup state.
type Phase string

const (
	// PhaseCold means the wallet has not yet finished the snapshot replay;
	// spending answers would be based on stale counters.
	PhaseCold Phase = "cold"

	// PhaseLive means the replay is done and the live stream is consumed.
	PhaseLive Phase = "live"

	// PhaseStopped means the wallet has shut down.
	PhaseStopped Phase = "stopped"
)

// ChangeKind classifies a wallet change notification.
type ChangeKind string

const (
	ChangePurchaseApplied ChangeKind = "purchase_applied"
	ChangeTierChanged     ChangeKind = "tier_changed"
	ChangeMonthlyReset    ChangeKind = "monthly_reset"
	ChangeUsageRecorded   ChangeKind = "usage_recorded"
	ChangeLimitChanged    ChangeKind = "limit_changed"
	ChangeStateRebuilt    ChangeKind = "state_rebuilt"
)

// Change is a notification that the ledger moved. Delivery is best-effort:
// a slow reader misses notifications, never blocks the ledger.
type Change struct {
	ID           string     `json:"id"`
	Kind         ChangeKind `json:"kind"`
	Tier         tier.Level `json:"tier"`
	PreviousTier tier.Level `json:"previous_tier,omitempty"`
	At           time.Time  `json:"at"`
}

// Wallet is the main spending-tier engine: it consumes purchase events from
// a Source, folds them into the durable ledger, and answers "can this
// account spend X this month".
type Wallet struct {
	ledger  *ledger
	source  event.Source
	store   store.Store
	catalog catalog.Catalog
	table   tier.Table
	plugins *plugin.Registry
	logger  *slog.Logger
	nowFn   func() time.Time

	replayTimeout   time.Duration
	storeTimeout    time.Duration
	retentionMonths int
	changeBuffer    int
	disableMigrate  bool

	phase atomic.Value // Phase

	mu      sync.Mutex
	started bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	changes chan Change
}

// New creates a Wallet over a store and an event source.
func New(s store.Store, src event.Source, opts ...Option) *Wallet {
	w := &Wallet{
		source:          src,
		store:           s,
		table:           tier.DefaultTable("usd"),
		plugins:         plugin.NewRegistry(),
		logger:          slog.Default(),
		nowFn:           time.Now,
		replayTimeout:   30 * time.Second,
		storeTimeout:    5 * time.Second,
		retentionMonths: 13,
		changeBuffer:    64,
	}
	w.phase.Store(PhaseCold)

	for _, opt := range opts {
		opt(w)
	}

	if w.catalog.Currency() == "" {
		w.catalog = catalog.Empty(w.table.Currency())
	}

	w.ledger = newLedger(s, w.table, w.nowFn, w.storeTimeout)
	w.changes = make(chan Change, w.changeBuffer)
	return w
}

// Option configures a Wallet instance.
type Option func(*Wallet)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(w *Wallet) {
		w.logger = logger
		w.plugins.WithLogger(logger)
	}
}

// WithPlugin registers a plugin.
func WithPlugin(p plugin.Plugin) Option {
	return func(w *Wallet) {
		_ = w.plugins.Register(p) //nolint:errcheck // best-effort plugin registration during init
	}
}

// WithTierTable replaces the built-in tier table.
func WithTierTable(t tier.Table) Option {
	return func(w *Wallet) {
		w.table = t
	}
}

// WithCatalog sets the product price catalog used to resolve events that
// carry only a product identifier.
func WithCatalog(c catalog.Catalog) Option {
	return func(w *Wallet) {
		w.catalog = c
	}
}

// WithClock overrides the time source. Used in tests.
func WithClock(nowFn func() time.Time) Option {
	return func(w *Wallet) {
		w.nowFn = nowFn
	}
}

// WithReplayTimeout bounds the startup snapshot replay.
func WithReplayTimeout(d time.Duration) Option {
	return func(w *Wallet) {
		w.replayTimeout = d
	}
}

// WithStoreTimeout bounds each store operation.
func WithStoreTimeout(d time.Duration) Option {
	return func(w *Wallet) {
		w.storeTimeout = d
	}
}

// WithRetention sets how many months of applied event ids are retained for
// deduplication before being purged at startup.
func WithRetention(months int) Option {
	return func(w *Wallet) {
		w.retentionMonths = months
	}
}

// WithChangeBuffer sets the change notification channel capacity.
func WithChangeBuffer(n int) Option {
	return func(w *Wallet) {
		w.changeBuffer = n
	}
}

// WithoutMigrate skips store migration at startup. For hosts that run
// migrations out of band.
func WithoutMigrate() Option {
	return func(w *Wallet) {
		w.disableMigrate = true
	}
}

// ──────────────────────────────────────────────────
// Lifecycle
// ──────────────────────────────────────────────────

// Start brings the wallet up: migrate, load the persisted ledger, rebuild it
// if it is inconsistent, replay the event snapshot, settle any month boundary
// crossed while down, then consume the live stream. The wallet is cold until
// Start returns.
func (w *Wallet) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.started {
		return ErrStarted
	}

	if !w.disableMigrate {
		if err := w.store.Migrate(ctx); err != nil {
			return &PersistenceError{Op: "migrate", Err: err}
		}
	}

	if err := w.ledger.load(ctx); err != nil {
		return err
	}

	if w.ledger.inconsistent() {
		w.logger.Warn("persisted ledger state inconsistent, rebuilding from snapshot")
		if err := w.ledger.rebuild(ctx); err != nil {
			return err
		}
		w.plugins.EmitStateRebuilt(ctx, w.ledger.snapshot())
		w.notify(Change{Kind: ChangeStateRebuilt})
	}

	cutoff := w.nowFn().AddDate(0, -w.retentionMonths, 0)
	purged, err := w.store.PurgeApplied(ctx, cutoff)
	if err != nil {
		return &PersistenceError{Op: "purge_applied", Err: err}
	}
	if purged > 0 {
		w.logger.Debug("purged applied event ids", "count", purged, "cutoff", cutoff)
	}

	// Subscribe before the snapshot read so no event can fall between the
	// snapshot and the live stream. Anything in both is deduplicated.
	runCtx, cancel := context.WithCancel(context.Background())
	stream, err := w.source.Subscribe(runCtx)
	if err != nil {
		cancel()
		return fmt.Errorf("spendguard: subscribe: %w", err)
	}

	if err := w.replay(ctx); err != nil {
		cancel()
		return err
	}

	// Settle a month boundary crossed while the process was down, so the
	// counters are current before the first query.
	set, err := w.ledger.checkMonthlyReset(ctx)
	if err != nil {
		cancel()
		return err
	}

	w.cancel = cancel
	w.started = true
	w.phase.Store(PhaseLive)

	w.wg.Add(1)
	go w.consume(runCtx, stream)

	w.plugins.EmitInit(ctx, w)
	w.notifySettlement(ctx, set)

	snap := w.ledger.snapshot()
	w.logger.Info("wallet started",
		"tier", snap.Tier.String(),
		"historical_spend", snap.HistoricalSpend.String(),
		"monthly_spend", snap.MonthlySpend.String(),
	)
	return nil
}

// Stop shuts down the Wallet.
func (w *Wallet) Stop() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.started {
		return ErrNotStarted
	}

	w.cancel()
	w.wg.Wait()
	w.started = false
	w.phase.Store(PhaseStopped)

	ctx := context.Background()
	w.plugins.EmitShutdown(ctx)

	return w.store.Close()
}

// Phase returns the wallet's current startup phase.
func (w *Wallet) Phase() Phase {
	return w.phase.Load().(Phase)
}

// Changes returns the change notification channel.
func (w *Wallet) Changes() <-chan Change {
	return w.changes
}

// replay folds the full event snapshot into the ledger in purchase-time
// order. Events already applied are skipped by the duplicate-id rule, so a
// replay over a healthy ledger is a no-op.
func (w *Wallet) replay(ctx context.Context) error {
	// Elapsed time is wall clock, not the injectable ledger clock.
	start := time.Now()

	rctx := ctx
	if w.replayTimeout > 0 {
		var cancel context.CancelFunc
		rctx, cancel = context.WithTimeout(ctx, w.replayTimeout)
		defer cancel()
	}

	events, err := w.source.Snapshot(rctx)
	if err != nil {
		return fmt.Errorf("spendguard: snapshot: %w", err)
	}
	event.SortByTime(events)

	var applied int
	for _, ev := range events {
		res, err := w.applyPurchase(rctx, ev)
		if err != nil {
			return err
		}
		if res.Outcome == event.OutcomeApplied {
			applied++
		}
	}

	elapsed := time.Since(start)
	w.plugins.EmitReplayCompleted(ctx, applied, elapsed)
	w.logger.Info("snapshot replay completed",
		"events", len(events),
		"applied", applied,
		"elapsed_ms", elapsed.Milliseconds(),
	)
	return nil
}

// consume drains the live event stream until shutdown.
func (w *Wallet) consume(ctx context.Context, stream <-chan event.Purchase) {
	defer w.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-stream:
			if !ok {
				return
			}
			if _, err := w.applyPurchase(ctx, ev); err != nil {
				// The event stays unapplied; the source redelivers or the
				// next startup replay picks it up.
				w.logger.Error("purchase apply failed",
					"event_id", ev.ID,
					"error", err,
				)
			}
		}
	}
}

// applyPurchase resolves an event's amount through the catalog if needed and
// folds it into the ledger, emitting plugin hooks for the outcome.
func (w *Wallet) applyPurchase(ctx context.Context, ev event.Purchase) (Result, error) {
	if ev.Amount.IsZero() && ev.ProductID != "" {
		price, err := w.catalog.Resolve(ev.ProductID)
		if err != nil {
			res := Result{Outcome: event.OutcomeRejected, Reason: ErrUnknownProduct}
			w.plugins.EmitPurchaseRejected(ctx, ev, res.Reason)
			w.logger.Warn("purchase rejected",
				"event_id", ev.ID,
				"product_id", ev.ProductID,
				"reason", res.Reason,
			)
			return res, nil
		}
		ev.Amount = price
	}

	res, err := w.ledger.apply(ctx, ev)
	if err != nil {
		return Result{}, err
	}

	switch res.Outcome {
	case event.OutcomeApplied:
		w.plugins.EmitPurchaseApplied(ctx, ev)
		w.notify(Change{Kind: ChangePurchaseApplied, Tier: res.Tier})
		if res.ResetPerformed {
			w.plugins.EmitMonthlyReset(ctx, res.PreviousMonthly, w.nowFn())
			w.notify(Change{Kind: ChangeMonthlyReset, Tier: res.Tier})
		}
		if res.TierChanged {
			w.plugins.EmitTierChanged(ctx, res.PreviousTier, res.Tier)
			w.notify(Change{Kind: ChangeTierChanged, Tier: res.Tier, PreviousTier: res.PreviousTier})
			w.logger.Info("tier changed",
				"from", res.PreviousTier.String(),
				"to", res.Tier.String(),
			)
		}
	case event.OutcomeDuplicate:
		w.plugins.EmitDuplicateSkipped(ctx, ev.ID)
	case event.OutcomeRejected:
		w.plugins.EmitPurchaseRejected(ctx, ev, res.Reason)
		w.logger.Warn("purchase rejected",
			"event_id", ev.ID,
			"reason", res.Reason,
		)
	}

	return res, nil
}

// notifySettlement emits hooks and change notifications for transitions made
// by a lazy settlement: a month reset, an age-driven tier promotion, or both.
func (w *Wallet) notifySettlement(ctx context.Context, set settlement) {
	if set.Reset {
		w.plugins.EmitMonthlyReset(ctx, set.PreviousMonthly, w.nowFn())
		w.notify(Change{Kind: ChangeMonthlyReset, Tier: set.Tier})
	}
	if set.TierChanged {
		w.plugins.EmitTierChanged(ctx, set.PreviousTier, set.Tier)
		w.notify(Change{Kind: ChangeTierChanged, Tier: set.Tier, PreviousTier: set.PreviousTier})
		w.logger.Info("tier changed",
			"from", set.PreviousTier.String(),
			"to", set.Tier.String(),
		)
	}
}

func (w *Wallet) notify(c Change) {
	c.ID = id.NewChangeID().String()
	if c.At.IsZero() {
		c.At = w.nowFn()
	}
	select {
	case w.changes <- c:
	default:
	}
}

// ──────────────────────────────────────────────────
// Tier queries
// ──────────────────────────────────────────────────

// CurrentTier returns the account's current level.
func (w *Wallet) CurrentTier() tier.Level {
	snap := w.ledger.snapshot()
	if snap == nil {
		return tier.Starter
	}
	return snap.Tier
}

// MonthlyLimit returns this month's cap: the custom limit when set, otherwise
// the cap granted by the current tier.
func (w *Wallet) MonthlyLimit() types.Money {
	return w.ledger.effectiveLimit()
}

// HistoricalSpend returns the lifetime recognized spend.
func (w *Wallet) HistoricalSpend() types.Money {
	snap := w.ledger.snapshot()
	if snap == nil {
		return types.Zero(w.table.Currency())
	}
	return snap.HistoricalSpend
}

// MonthlySpend returns the spend recognized this calendar month.
func (w *Wallet) MonthlySpend() types.Money {
	snap := w.ledger.snapshot()
	if snap == nil {
		return types.Zero(w.table.Currency())
	}
	return snap.MonthlySpend
}

// FirstPaymentDate returns when the account first paid, or nil if it never
// has.
func (w *Wallet) FirstPaymentDate() *time.Time {
	snap := w.ledger.snapshot()
	if snap == nil {
		return nil
	}
	return snap.FirstPayment
}

// NextTierRequirement returns what is still needed to unlock the next level,
// or nil when the account is at the top or on a custom level.
func (w *Wallet) NextTierRequirement() *tier.Requirement {
	snap := w.ledger.snapshot()
	if snap == nil {
		return nil
	}
	return w.table.Next(snap.Tier, snap.HistoricalSpend, snap.DaysSinceFirstPayment(w.nowFn()))
}

// Snapshot returns a copy of the full ledger state.
func (w *Wallet) Snapshot() *account.State {
	return w.ledger.snapshot()
}

// ──────────────────────────────────────────────────
// Spending
// ──────────────────────────────────────────────────

// CanSpend reports whether amount fits in what is left of this month's
// budget. Nothing is charged, but the check settles a pending month boundary
// and tier recomputation first, so the answer is against the current month
// and the account's current age.
func (w *Wallet) CanSpend(ctx context.Context, amount types.Money) (bool, error) {
	ok, _, set, err := w.ledger.canSpend(ctx, amount)
	if err != nil {
		return false, err
	}
	w.notifySettlement(ctx, set)
	return ok, nil
}

// RemainingThisMonth returns the unspent part of this month's budget.
func (w *Wallet) RemainingThisMonth(ctx context.Context) (types.Money, error) {
	remaining, set, err := w.ledger.remaining(ctx)
	if err != nil {
		return types.Money{}, err
	}
	w.notifySettlement(ctx, set)
	return remaining, nil
}

// RecordMeteredUsage charges local usage against the monthly budget. Returns
// ErrLimitExceeded, with nothing charged, when the amount does not fit.
func (w *Wallet) RecordMeteredUsage(ctx context.Context, amount types.Money) error {
	set, err := w.ledger.recordSpend(ctx, amount)
	w.notifySettlement(ctx, set)
	if err != nil {
		if IsLimitError(err) {
			remaining, _, rerr := w.ledger.remaining(ctx)
			if rerr == nil {
				w.plugins.EmitLimitExceeded(ctx, amount, remaining)
			}
		}
		return err
	}

	w.plugins.EmitUsageRecorded(ctx, amount)
	w.notify(Change{Kind: ChangeUsageRecorded})
	return nil
}

// CheckMonthlyReset settles a pending calendar-month boundary now instead of
// waiting for the next spend operation. Returns whether a reset happened.
func (w *Wallet) CheckMonthlyReset(ctx context.Context) (bool, error) {
	set, err := w.ledger.checkMonthlyReset(ctx)
	if err != nil {
		return false, err
	}
	w.notifySettlement(ctx, set)
	if set.Reset {
		w.logger.Info("monthly spend reset", "previous_spend", set.PreviousMonthly.String())
	}
	return set.Reset, nil
}

// PurchaseCredits records a direct, pre-verified purchase made through the
// host application rather than the external store. Returns
// ErrVerificationFailed if the synthesized event is rejected.
func (w *Wallet) PurchaseCredits(ctx context.Context, amount types.Money) (Result, error) {
	ev := event.Purchase{
		ID:          id.NewPurchaseID().String(),
		Amount:      amount,
		Verified:    true,
		PurchasedAt: w.nowFn(),
	}

	res, err := w.applyPurchase(ctx, ev)
	if err != nil {
		return Result{}, err
	}
	if res.Outcome == event.OutcomeRejected {
		return res, fmt.Errorf("%w: %v", ErrVerificationFailed, res.Reason)
	}
	return res, nil
}

// ──────────────────────────────────────────────────
// Custom limits
// ──────────────────────────────────────────────────

// SetCustomLimit overrides the tier-derived monthly cap. The account moves to
// the custom level and stays there until ClearCustomLimit.
func (w *Wallet) SetCustomLimit(ctx context.Context, limit types.Money) error {
	res, err := w.ledger.setCustomLimit(ctx, limit)
	if err != nil {
		return err
	}

	w.notify(Change{Kind: ChangeLimitChanged, Tier: res.Tier})
	if res.TierChanged {
		w.plugins.EmitTierChanged(ctx, res.PreviousTier, res.Tier)
	}
	w.logger.Info("custom limit set", "limit", limit.String())
	return nil
}

// ClearCustomLimit removes the override; the tier is recomputed from the
// table.
func (w *Wallet) ClearCustomLimit(ctx context.Context) error {
	res, err := w.ledger.clearCustomLimit(ctx)
	if err != nil {
		return err
	}

	w.notify(Change{Kind: ChangeLimitChanged, Tier: res.Tier})
	if res.TierChanged {
		w.plugins.EmitTierChanged(ctx, res.PreviousTier, res.Tier)
	}
	return nil
}
