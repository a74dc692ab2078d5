package spendguard

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/xraph/spendguard/account"
	"github.com/xraph/spendguard/event"
	"github.com/xraph/spendguard/store"
	"github.com/xraph/spendguard/tier"
	"github.com/xraph/spendguard/types"
)

// Result reports what applying one purchase event did to the ledger.
type Result struct {
	Outcome event.Outcome

	// Reason explains a rejection. Nil for applied and duplicate outcomes.
	Reason error

	PreviousTier tier.Level
	Tier         tier.Level
	TierChanged  bool

	// ResetPerformed is true when the apply crossed a calendar-month
	// boundary and zeroed the monthly counter first.
	ResetPerformed bool

	// PreviousMonthly is the monthly spend discarded by the reset.
	PreviousMonthly types.Money
}

// ledger is the mutation core: one account's durable counters plus the
// deduplication set, serialized under a single mutex.
//
// Every mutation follows the same write-through discipline: mutate a clone,
// persist it, and only then commit the clone to memory. A failed store write
// therefore leaves the in-memory ledger exactly as it was.
type ledger struct {
	store    store.Store
	table    tier.Table
	currency string
	nowFn    func() time.Time
	timeout  time.Duration

	mu     sync.Mutex
	state  *account.State
	seen   map[string]struct{}
	loaded bool
}

func newLedger(s store.Store, table tier.Table, nowFn func() time.Time, timeout time.Duration) *ledger {
	return &ledger{
		store:    s,
		table:    table,
		currency: table.Currency(),
		nowFn:    nowFn,
		timeout:  timeout,
		seen:     make(map[string]struct{}),
	}
}

// load pulls the persisted state and the applied-id set into memory. A store
// with nothing persisted yields a fresh never-paid ledger.
func (l *ledger) load(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	cctx, cancel := l.storeCtx(ctx)
	defer cancel()

	st, err := l.store.LoadState(cctx)
	if err != nil {
		return &PersistenceError{Op: "load_state", Err: err}
	}
	if st == nil {
		st = account.NewState(l.currency, l.nowFn())
	}

	ids, err := l.store.ListApplied(cctx)
	if err != nil {
		return &PersistenceError{Op: "list_applied", Err: err}
	}

	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		seen[id] = struct{}{}
	}

	l.state = st
	l.seen = seen
	l.loaded = true
	return nil
}

// inconsistent reports whether the loaded state fails its cross-field checks.
func (l *ledger) inconsistent() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state != nil && l.state.Inconsistent()
}

// rebuild discards the counters and the deduplication set so a snapshot
// replay can reconstruct them from scratch. An operator-set custom limit
// survives: it is configuration, not derived state.
func (l *ledger) rebuild(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.loaded {
		return ErrNotStarted
	}

	next := account.NewState(l.currency, l.nowFn())
	if l.state.CustomLimit != nil {
		limit := *l.state.CustomLimit
		next.CustomLimit = &limit
		next.Tier = tier.CustomLevel
	}

	cctx, cancel := l.storeCtx(ctx)
	defer cancel()
	if err := l.store.SaveState(cctx, next); err != nil {
		return &PersistenceError{Op: "save_state", Err: err}
	}

	l.state = next
	l.seen = make(map[string]struct{})
	return nil
}

// apply folds one verified purchase event into the ledger exactly once.
// Rejections and duplicates are reported in the Result, not as errors; an
// error means the event was valid but could not be persisted.
func (l *ledger) apply(ctx context.Context, ev event.Purchase) (Result, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.loaded {
		return Result{}, ErrNotStarted
	}

	res := Result{PreviousTier: l.state.Tier, Tier: l.state.Tier}

	switch {
	case !ev.Verified:
		res.Outcome = event.OutcomeRejected
		res.Reason = ErrUnverifiedEvent
		return res, nil
	case !ev.Amount.IsPositive():
		res.Outcome = event.OutcomeRejected
		res.Reason = ErrNonPositiveAmount
		return res, nil
	case !strings.EqualFold(ev.Amount.Currency, l.currency):
		res.Outcome = event.OutcomeRejected
		res.Reason = ErrCurrencyMismatch
		return res, nil
	}

	if _, dup := l.seen[ev.ID]; dup {
		res.Outcome = event.OutcomeDuplicate
		return res, nil
	}

	now := l.nowFn()
	next := l.state.Clone()

	// Cross a pending month boundary before the event lands, so the event's
	// spend counts toward the month it arrived in.
	res.ResetPerformed, res.PreviousMonthly = resetIfDue(next, now)

	eventTime := ev.PurchasedAt
	if eventTime.IsZero() {
		eventTime = now
	}

	if next.FirstPayment == nil {
		t := eventTime
		next.FirstPayment = &t
	}

	next.HistoricalSpend = next.HistoricalSpend.Add(ev.Amount)

	// Replayed history predating the current month must not inflate the
	// current month's budget.
	if !eventTime.Before(next.LastReset) {
		next.MonthlySpend = next.MonthlySpend.Add(ev.Amount)
	}

	recomputeTier(next, l.table, now)
	next.Touch()

	cctx, cancel := l.storeCtx(ctx)
	defer cancel()
	if err := l.store.SaveStateApplied(cctx, next, ev.ID, now); err != nil {
		return Result{}, &PersistenceError{Op: "save_state", Err: err}
	}

	l.state = next
	l.seen[ev.ID] = struct{}{}

	res.Outcome = event.OutcomeApplied
	res.Tier = next.Tier
	res.TierChanged = next.Tier != res.PreviousTier
	return res, nil
}

// settlement reports what settling the clock against the ledger changed:
// a crossed month boundary, a recomputed tier, or both.
type settlement struct {
	Reset           bool
	PreviousMonthly types.Money
	TierChanged     bool
	PreviousTier    tier.Level
	Tier            tier.Level
}

// checkMonthlyReset performs the lazy calendar-month reset and tier
// recomputation if either is due.
func (l *ledger) checkMonthlyReset(ctx context.Context) (settlement, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.settleLocked(ctx)
}

// settleLocked crosses a pending month boundary and recomputes the tier,
// persisting when either changed. Every spend path runs through it first, so
// an account that qualifies for a higher level by age alone is promoted
// without waiting for another purchase event.
func (l *ledger) settleLocked(ctx context.Context) (settlement, error) {
	if !l.loaded {
		return settlement{}, ErrNotStarted
	}

	now := l.nowFn()
	next := l.state.Clone()
	set := settle(next, l.table, now)
	if !set.Reset && !set.TierChanged {
		return set, nil
	}
	next.Touch()

	cctx, cancel := l.storeCtx(ctx)
	defer cancel()
	if err := l.store.SaveState(cctx, next); err != nil {
		return settlement{}, &PersistenceError{Op: "save_state", Err: err}
	}

	l.state = next
	return set, nil
}

// canSpend answers whether amount fits in what is left of this month's
// budget. It settles any pending month boundary first, so the answer is
// always against the current month.
func (l *ledger) canSpend(ctx context.Context, amount types.Money) (bool, types.Money, settlement, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !amount.IsPositive() {
		return false, types.Money{}, settlement{}, ErrInvalidInput
	}
	set, err := l.settleLocked(ctx)
	if err != nil {
		return false, types.Money{}, settlement{}, err
	}

	remaining := l.remainingLocked()
	return !remaining.LessThan(amount), remaining, set, nil
}

// remaining returns what is left of this month's budget, settling any
// pending month boundary and tier recomputation first.
func (l *ledger) remaining(ctx context.Context) (types.Money, settlement, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	set, err := l.settleLocked(ctx)
	if err != nil {
		return types.Money{}, settlement{}, err
	}
	return l.remainingLocked(), set, nil
}

// recordSpend charges local metered usage against the monthly budget. Usage
// counts toward the monthly cap only: it is not a purchase, so the lifetime
// counter does not move. The preceding settlement may still promote the tier
// when the account has aged into a higher level.
func (l *ledger) recordSpend(ctx context.Context, amount types.Money) (settlement, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !amount.IsPositive() {
		return settlement{}, ErrInvalidInput
	}
	set, err := l.settleLocked(ctx)
	if err != nil {
		return settlement{}, err
	}

	if l.remainingLocked().LessThan(amount) {
		return set, ErrLimitExceeded
	}

	next := l.state.Clone()
	next.MonthlySpend = next.MonthlySpend.Add(amount)
	next.Touch()

	cctx, cancel := l.storeCtx(ctx)
	defer cancel()
	if err := l.store.SaveState(cctx, next); err != nil {
		return set, &PersistenceError{Op: "save_state", Err: err}
	}

	l.state = next
	return set, nil
}

// setCustomLimit overrides the tier-derived monthly cap. The account moves to
// the custom level and stays there until the limit is cleared.
func (l *ledger) setCustomLimit(ctx context.Context, limit types.Money) (Result, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.loaded {
		return Result{}, ErrNotStarted
	}
	if !limit.IsPositive() || !strings.EqualFold(limit.Currency, l.currency) {
		return Result{}, ErrInvalidInput
	}

	next := l.state.Clone()
	res := Result{PreviousTier: next.Tier}

	next.CustomLimit = &limit
	next.Tier = tier.CustomLevel
	next.Touch()

	cctx, cancel := l.storeCtx(ctx)
	defer cancel()
	if err := l.store.SaveState(cctx, next); err != nil {
		return Result{}, &PersistenceError{Op: "save_state", Err: err}
	}

	l.state = next
	res.Tier = next.Tier
	res.TierChanged = res.Tier != res.PreviousTier
	return res, nil
}

// clearCustomLimit removes the override and recomputes the tier from the
// table.
func (l *ledger) clearCustomLimit(ctx context.Context) (Result, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.loaded {
		return Result{}, ErrNotStarted
	}

	next := l.state.Clone()
	res := Result{PreviousTier: next.Tier}

	next.CustomLimit = nil
	next.Tier = l.table.Compute(next.HistoricalSpend, next.DaysSinceFirstPayment(l.nowFn()))
	next.Touch()

	cctx, cancel := l.storeCtx(ctx)
	defer cancel()
	if err := l.store.SaveState(cctx, next); err != nil {
		return Result{}, &PersistenceError{Op: "save_state", Err: err}
	}

	l.state = next
	res.Tier = next.Tier
	res.TierChanged = res.Tier != res.PreviousTier
	return res, nil
}

// snapshot returns a copy of the current state.
func (l *ledger) snapshot() *account.State {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.state == nil {
		return nil
	}
	return l.state.Clone()
}

// effectiveLimit returns this month's cap: the custom limit when set,
// otherwise the cap granted by the current tier.
func (l *ledger) effectiveLimit() types.Money {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.state == nil {
		return l.table.Cap(tier.Starter)
	}
	return l.effectiveLimitLocked()
}

func (l *ledger) effectiveLimitLocked() types.Money {
	if l.state.CustomLimit != nil {
		return *l.state.CustomLimit
	}
	return l.table.Cap(l.state.Tier)
}

func (l *ledger) remainingLocked() types.Money {
	limit := l.effectiveLimitLocked()
	if limit.LessThan(l.state.MonthlySpend) {
		return types.Zero(l.currency)
	}
	return limit.Subtract(l.state.MonthlySpend)
}

func (l *ledger) storeCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	if l.timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, l.timeout)
}

// ──────────────────────────────────────────────────
// Pure state transitions
// ──────────────────────────────────────────────────

// resetIfDue zeroes the monthly counter when now has crossed into a new
// calendar month. Returns whether it did and the discarded spend.
func resetIfDue(st *account.State, now time.Time) (bool, types.Money) {
	if account.SameMonth(st.LastReset, now) {
		return false, types.Zero(st.MonthlySpend.Currency)
	}
	prev := st.MonthlySpend
	st.MonthlySpend = types.Zero(prev.Currency)
	st.LastReset = account.StartOfMonth(now)
	return true, prev
}

// settle applies both lazy transitions to st: the calendar-month reset and
// the tier recomputation. It reports what changed.
func settle(st *account.State, table tier.Table, now time.Time) settlement {
	set := settlement{PreviousTier: st.Tier}
	set.Reset, set.PreviousMonthly = resetIfDue(st, now)
	recomputeTier(st, table, now)
	set.Tier = st.Tier
	set.TierChanged = st.Tier != set.PreviousTier
	return set
}

// recomputeTier derives the level from lifetime spend and account age. The
// tier never moves down: a recomputation that lands lower keeps the current
// level. A custom level is sticky until its limit is cleared.
func recomputeTier(st *account.State, table tier.Table, now time.Time) {
	if st.Tier.IsCustom() {
		return
	}
	candidate := table.Compute(st.HistoricalSpend, st.DaysSinceFirstPayment(now))
	st.Tier = tier.MaxOf(st.Tier, candidate)
}
