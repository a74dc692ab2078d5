package spendguard_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/xraph/spendguard"
	"github.com/xraph/spendguard/account"
	"github.com/xraph/spendguard/catalog"
	"github.com/xraph/spendguard/event"
	"github.com/xraph/spendguard/store/memory"
	"github.com/xraph/spendguard/tier"
	"github.com/xraph/spendguard/types"
)

// fakeClock is a movable time source for deterministic tests.
type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock(t time.Time) *fakeClock { return &fakeClock{t: t} }

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = t
}

// countingStore wraps a memory store and counts state writes.
type countingStore struct {
	*memory.Store

	mu     sync.Mutex
	writes int
}

func newCountingStore() *countingStore {
	return &countingStore{Store: memory.New()}
}

func (s *countingStore) SaveState(ctx context.Context, st *account.State) error {
	s.mu.Lock()
	s.writes++
	s.mu.Unlock()
	return s.Store.SaveState(ctx, st)
}

func (s *countingStore) SaveStateApplied(ctx context.Context, st *account.State, eventID string, appliedAt time.Time) error {
	s.mu.Lock()
	s.writes++
	s.mu.Unlock()
	return s.Store.SaveStateApplied(ctx, st, eventID, appliedAt)
}

func (s *countingStore) writeCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writes
}

// failingStore wraps a memory store and fails writes on demand.
type failingStore struct {
	*memory.Store

	mu   sync.Mutex
	fail bool
}

func newFailingStore() *failingStore {
	return &failingStore{Store: memory.New()}
}

func (s *failingStore) setFail(fail bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fail = fail
}

func (s *failingStore) failing() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fail
}

func (s *failingStore) SaveState(ctx context.Context, st *account.State) error {
	if s.failing() {
		return errors.New("disk full")
	}
	return s.Store.SaveState(ctx, st)
}

func (s *failingStore) SaveStateApplied(ctx context.Context, st *account.State, eventID string, appliedAt time.Time) error {
	if s.failing() {
		return errors.New("disk full")
	}
	return s.Store.SaveStateApplied(ctx, st, eventID, appliedAt)
}

func startWallet(t *testing.T, opts ...spendguard.Option) (*spendguard.Wallet, *event.ChanSource, *fakeClock) {
	t.Helper()

	clock := newFakeClock(time.Date(2024, 3, 15, 12, 0, 0, 0, time.UTC))
	source := event.NewChanSource(16)

	all := append([]spendguard.Option{spendguard.WithClock(clock.Now)}, opts...)
	w := spendguard.New(memory.New(), source, all...)

	if err := w.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	t.Cleanup(func() { _ = w.Stop() })

	return w, source, clock
}

func TestPurchaseCreditsApplies(t *testing.T) {
	w, _, _ := startWallet(t)
	ctx := context.Background()

	res, err := w.PurchaseCredits(ctx, types.USD(999))
	if err != nil {
		t.Fatalf("PurchaseCredits failed: %v", err)
	}
	if res.Outcome != event.OutcomeApplied {
		t.Fatalf("outcome: got %v, want %v", res.Outcome, event.OutcomeApplied)
	}

	if got := w.HistoricalSpend(); !got.Equal(types.USD(999)) {
		t.Errorf("historical spend: got %v, want %v", got, types.USD(999))
	}
	if got := w.MonthlySpend(); !got.Equal(types.USD(999)) {
		t.Errorf("monthly spend: got %v, want %v", got, types.USD(999))
	}
	if w.FirstPaymentDate() == nil {
		t.Error("expected first payment date to be set")
	}
}

func TestFirstPaymentSetOnce(t *testing.T) {
	w, _, clock := startWallet(t)
	ctx := context.Background()

	if _, err := w.PurchaseCredits(ctx, types.USD(100)); err != nil {
		t.Fatal(err)
	}
	first := w.FirstPaymentDate()
	if first == nil {
		t.Fatal("expected first payment date")
	}

	clock.Advance(48 * time.Hour)
	if _, err := w.PurchaseCredits(ctx, types.USD(100)); err != nil {
		t.Fatal(err)
	}

	second := w.FirstPaymentDate()
	if !second.Equal(*first) {
		t.Errorf("first payment moved: got %v, want %v", second, first)
	}
}

func TestReplayIsIdempotentAcrossRestarts(t *testing.T) {
	clock := newFakeClock(time.Date(2024, 3, 15, 12, 0, 0, 0, time.UTC))
	source := event.NewChanSource(16)
	st := memory.New()
	ctx := context.Background()

	for _, ev := range []event.Purchase{
		{ID: "evt_1", Amount: types.USD(1000), Verified: true, PurchasedAt: clock.Now()},
		{ID: "evt_2", Amount: types.USD(2000), Verified: true, PurchasedAt: clock.Now().Add(time.Minute)},
		{ID: "evt_3", Amount: types.USD(3000), Verified: true, PurchasedAt: clock.Now().Add(2 * time.Minute)},
	} {
		source.Publish(ev)
	}

	w1 := spendguard.New(st, source, spendguard.WithClock(clock.Now))
	if err := w1.Start(ctx); err != nil {
		t.Fatalf("first Start failed: %v", err)
	}
	if got := w1.HistoricalSpend(); !got.Equal(types.USD(6000)) {
		t.Fatalf("historical spend after replay: got %v, want %v", got, types.USD(6000))
	}
	if err := w1.Stop(); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}

	// A second wallet over the same store replays the same snapshot; every
	// event is deduplicated and nothing double-counts.
	w2 := spendguard.New(st, source, spendguard.WithClock(clock.Now))
	if err := w2.Start(ctx); err != nil {
		t.Fatalf("second Start failed: %v", err)
	}
	defer w2.Stop()

	if got := w2.HistoricalSpend(); !got.Equal(types.USD(6000)) {
		t.Errorf("historical spend after second replay: got %v, want %v", got, types.USD(6000))
	}
	if got := w2.MonthlySpend(); !got.Equal(types.USD(6000)) {
		t.Errorf("monthly spend after second replay: got %v, want %v", got, types.USD(6000))
	}
}

func TestRejectionLeavesLedgerUntouched(t *testing.T) {
	clock := newFakeClock(time.Date(2024, 3, 15, 12, 0, 0, 0, time.UTC))
	source := event.NewChanSource(16)
	st := newCountingStore()
	ctx := context.Background()

	w := spendguard.New(st, source, spendguard.WithClock(clock.Now))
	if err := w.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer w.Stop()

	baseline := st.writeCount()

	_, err := w.PurchaseCredits(ctx, types.USD(-500))
	if err == nil {
		t.Fatal("expected error for negative purchase")
	}
	if !errors.Is(err, spendguard.ErrVerificationFailed) {
		t.Errorf("error: got %v, want ErrVerificationFailed", err)
	}

	if got := st.writeCount(); got != baseline {
		t.Errorf("rejected event wrote state: %d writes, want %d", got, baseline)
	}
	if got := w.HistoricalSpend(); !got.IsZero() {
		t.Errorf("historical spend: got %v, want zero", got)
	}
}

func TestCurrencyMismatchRejected(t *testing.T) {
	w, _, _ := startWallet(t)

	_, err := w.PurchaseCredits(context.Background(), types.EUR(1000))
	if err == nil {
		t.Fatal("expected error for currency mismatch")
	}
	if !errors.Is(err, spendguard.ErrVerificationFailed) {
		t.Errorf("error: got %v, want ErrVerificationFailed", err)
	}
	if got := w.HistoricalSpend(); !got.IsZero() {
		t.Errorf("historical spend: got %v, want zero", got)
	}
}

func TestLazyMonthlyReset(t *testing.T) {
	w, _, clock := startWallet(t)
	ctx := context.Background()

	if _, err := w.PurchaseCredits(ctx, types.USD(1000)); err != nil {
		t.Fatal(err)
	}
	if got := w.MonthlySpend(); !got.Equal(types.USD(1000)) {
		t.Fatalf("monthly spend: got %v, want %v", got, types.USD(1000))
	}

	// Cross into April; nothing happens until the next operation looks.
	clock.Set(time.Date(2024, 4, 2, 9, 0, 0, 0, time.UTC))

	reset, err := w.CheckMonthlyReset(ctx)
	if err != nil {
		t.Fatalf("CheckMonthlyReset failed: %v", err)
	}
	if !reset {
		t.Fatal("expected a reset after crossing the month boundary")
	}

	if got := w.MonthlySpend(); !got.IsZero() {
		t.Errorf("monthly spend after reset: got %v, want zero", got)
	}
	if got := w.HistoricalSpend(); !got.Equal(types.USD(1000)) {
		t.Errorf("historical spend after reset: got %v, want %v", got, types.USD(1000))
	}

	// Second check in the same month is a no-op.
	reset, err = w.CheckMonthlyReset(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if reset {
		t.Error("expected no reset within the same month")
	}
}

func TestCanSpendSettlesPendingReset(t *testing.T) {
	w, _, clock := startWallet(t)
	ctx := context.Background()

	// Exhaust the starter budget this month.
	if err := w.RecordMeteredUsage(ctx, types.USD(5000)); err != nil {
		t.Fatal(err)
	}
	ok, err := w.CanSpend(ctx, types.USD(1))
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Fatal("expected budget exhausted")
	}

	// The new month frees the budget; CanSpend performs the reset itself.
	clock.Set(time.Date(2024, 4, 1, 0, 0, 1, 0, time.UTC))
	ok, err = w.CanSpend(ctx, types.USD(1))
	if err != nil {
		t.Fatal(err)
	}
	if !ok {
		t.Error("expected budget available in the new month")
	}
}

func TestRecordMeteredUsageLimit(t *testing.T) {
	w, _, _ := startWallet(t)
	ctx := context.Background()

	// Starter cap is $50.00.
	if err := w.RecordMeteredUsage(ctx, types.USD(4000)); err != nil {
		t.Fatalf("usage within budget failed: %v", err)
	}

	err := w.RecordMeteredUsage(ctx, types.USD(2000))
	if !errors.Is(err, spendguard.ErrLimitExceeded) {
		t.Fatalf("error: got %v, want ErrLimitExceeded", err)
	}

	// The denied usage charged nothing.
	remaining, err := w.RemainingThisMonth(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if !remaining.Equal(types.USD(1000)) {
		t.Errorf("remaining: got %v, want %v", remaining, types.USD(1000))
	}

	// An exact fit is allowed.
	if err := w.RecordMeteredUsage(ctx, types.USD(1000)); err != nil {
		t.Errorf("exact-fit usage failed: %v", err)
	}
}

func TestCanSpendRejectsNonPositive(t *testing.T) {
	w, _, _ := startWallet(t)
	ctx := context.Background()

	if _, err := w.CanSpend(ctx, types.USD(0)); !errors.Is(err, spendguard.ErrInvalidInput) {
		t.Errorf("zero amount: got %v, want ErrInvalidInput", err)
	}
	if _, err := w.CanSpend(ctx, types.USD(-100)); !errors.Is(err, spendguard.ErrInvalidInput) {
		t.Errorf("negative amount: got %v, want ErrInvalidInput", err)
	}
}

func TestTierProgression(t *testing.T) {
	w, _, clock := startWallet(t)
	ctx := context.Background()

	// $60 lifetime spend clears the plus floor, but the account is too young.
	if _, err := w.PurchaseCredits(ctx, types.USD(6000)); err != nil {
		t.Fatal(err)
	}
	if got := w.CurrentTier(); got != tier.Starter {
		t.Fatalf("tier at day 0: got %v, want %v", got, tier.Starter)
	}

	req := w.NextTierRequirement()
	if req == nil {
		t.Fatal("expected next tier requirement")
	}
	if req.Level != tier.Plus {
		t.Errorf("next level: got %v, want %v", req.Level, tier.Plus)
	}
	if !req.AmountNeeded.IsZero() {
		t.Errorf("amount needed: got %v, want zero", req.AmountNeeded)
	}
	if req.DaysNeeded != 7 {
		t.Errorf("days needed: got %d, want 7", req.DaysNeeded)
	}

	// A week later the next purchase recomputes the tier.
	clock.Advance(7 * 24 * time.Hour)
	res, err := w.PurchaseCredits(ctx, types.USD(100))
	if err != nil {
		t.Fatal(err)
	}
	if !res.TierChanged {
		t.Error("expected tier change")
	}
	if got := w.CurrentTier(); got != tier.Plus {
		t.Errorf("tier after a week: got %v, want %v", got, tier.Plus)
	}
	if got := w.MonthlyLimit(); !got.Equal(types.USD(50000)) {
		t.Errorf("monthly limit: got %v, want %v", got, types.USD(50000))
	}
}

func TestTierUpgradeByAgeWithoutNewPurchase(t *testing.T) {
	w, _, clock := startWallet(t)
	ctx := context.Background()

	// $60 lifetime spend clears the plus floor on day 0, but the account is
	// too young, so it stays on starter and its $50 monthly cap.
	if _, err := w.PurchaseCredits(ctx, types.USD(6000)); err != nil {
		t.Fatal(err)
	}
	if got := w.CurrentTier(); got != tier.Starter {
		t.Fatalf("tier at day 0: got %v, want %v", got, tier.Starter)
	}

	// Eight days later the day floor is met. No further purchase arrives; the
	// next spend operation must promote the account on its own.
	clock.Advance(8 * 24 * time.Hour)

	if err := w.RecordMeteredUsage(ctx, types.USD(6000)); err != nil {
		t.Fatalf("usage within the promoted budget failed: %v", err)
	}
	if got := w.CurrentTier(); got != tier.Plus {
		t.Errorf("tier after aging: got %v, want %v", got, tier.Plus)
	}
	if got := w.MonthlyLimit(); !got.Equal(types.USD(50000)) {
		t.Errorf("monthly limit: got %v, want %v", got, types.USD(50000))
	}
}

func TestCanSpendPromotesAgedAccount(t *testing.T) {
	w, _, clock := startWallet(t)
	ctx := context.Background()

	// The purchase alone exceeds the starter cap, so nothing more fits.
	if _, err := w.PurchaseCredits(ctx, types.USD(6000)); err != nil {
		t.Fatal(err)
	}
	ok, err := w.CanSpend(ctx, types.USD(1))
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Fatal("expected starter budget exhausted at day 0")
	}

	// Still the same month, but old enough for plus; the check itself
	// recomputes the tier and answers against the larger cap.
	clock.Advance(8 * 24 * time.Hour)
	ok, err = w.CanSpend(ctx, types.USD(1))
	if err != nil {
		t.Fatal(err)
	}
	if !ok {
		t.Error("expected budget available after the account aged into plus")
	}
	if got := w.CurrentTier(); got != tier.Plus {
		t.Errorf("tier: got %v, want %v", got, tier.Plus)
	}
}

func TestStartSettlesPreviousMonth(t *testing.T) {
	clock := newFakeClock(time.Date(2024, 3, 15, 12, 0, 0, 0, time.UTC))
	source := event.NewChanSource(16)
	st := memory.New()
	ctx := context.Background()

	w1 := spendguard.New(st, source, spendguard.WithClock(clock.Now))
	if err := w1.Start(ctx); err != nil {
		t.Fatalf("first Start failed: %v", err)
	}
	if _, err := w1.PurchaseCredits(ctx, types.USD(1500)); err != nil {
		t.Fatal(err)
	}
	if err := w1.Stop(); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}

	// The process comes back in April; the March counter must already be
	// settled when Start returns, before any spend operation runs.
	clock.Set(time.Date(2024, 4, 5, 9, 0, 0, 0, time.UTC))
	w2 := spendguard.New(st, source, spendguard.WithClock(clock.Now))
	if err := w2.Start(ctx); err != nil {
		t.Fatalf("second Start failed: %v", err)
	}
	defer w2.Stop()

	if got := w2.MonthlySpend(); !got.IsZero() {
		t.Errorf("monthly spend after restart: got %v, want zero", got)
	}
	if got := w2.HistoricalSpend(); !got.Equal(types.USD(1500)) {
		t.Errorf("historical spend after restart: got %v, want %v", got, types.USD(1500))
	}
	wantReset := time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC)
	if got := w2.Snapshot().LastReset; !got.Equal(wantReset) {
		t.Errorf("last reset after restart: got %v, want %v", got, wantReset)
	}
}

func TestCustomLimit(t *testing.T) {
	w, _, _ := startWallet(t)
	ctx := context.Background()

	if err := w.SetCustomLimit(ctx, types.USD(100000)); err != nil {
		t.Fatalf("SetCustomLimit failed: %v", err)
	}
	if got := w.CurrentTier(); got != tier.CustomLevel {
		t.Errorf("tier: got %v, want %v", got, tier.CustomLevel)
	}
	if got := w.MonthlyLimit(); !got.Equal(types.USD(100000)) {
		t.Errorf("monthly limit: got %v, want %v", got, types.USD(100000))
	}
	if req := w.NextTierRequirement(); req != nil {
		t.Errorf("expected nil requirement on custom level, got %+v", req)
	}

	// The custom level is sticky: purchases do not recompute it away.
	if _, err := w.PurchaseCredits(ctx, types.USD(1000)); err != nil {
		t.Fatal(err)
	}
	if got := w.CurrentTier(); got != tier.CustomLevel {
		t.Errorf("tier after purchase: got %v, want %v", got, tier.CustomLevel)
	}

	// Clearing recomputes from the table; $10 at day 0 is starter again.
	if err := w.ClearCustomLimit(ctx); err != nil {
		t.Fatalf("ClearCustomLimit failed: %v", err)
	}
	if got := w.CurrentTier(); got != tier.Starter {
		t.Errorf("tier after clear: got %v, want %v", got, tier.Starter)
	}
	if got := w.MonthlyLimit(); !got.Equal(types.USD(5000)) {
		t.Errorf("monthly limit after clear: got %v, want %v", got, types.USD(5000))
	}
}

func TestSetCustomLimitValidation(t *testing.T) {
	w, _, _ := startWallet(t)
	ctx := context.Background()

	if err := w.SetCustomLimit(ctx, types.USD(0)); !errors.Is(err, spendguard.ErrInvalidInput) {
		t.Errorf("zero limit: got %v, want ErrInvalidInput", err)
	}
	if err := w.SetCustomLimit(ctx, types.EUR(1000)); !errors.Is(err, spendguard.ErrInvalidInput) {
		t.Errorf("wrong currency: got %v, want ErrInvalidInput", err)
	}
}

func TestPersistenceFailureRollsBack(t *testing.T) {
	clock := newFakeClock(time.Date(2024, 3, 15, 12, 0, 0, 0, time.UTC))
	source := event.NewChanSource(16)
	st := newFailingStore()
	ctx := context.Background()

	w := spendguard.New(st, source, spendguard.WithClock(clock.Now))
	if err := w.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer w.Stop()

	if _, err := w.PurchaseCredits(ctx, types.USD(1000)); err != nil {
		t.Fatal(err)
	}

	st.setFail(true)
	_, err := w.PurchaseCredits(ctx, types.USD(2000))
	if !errors.Is(err, spendguard.ErrPersistence) {
		t.Fatalf("error: got %v, want ErrPersistence", err)
	}

	// The failed purchase left the in-memory ledger untouched.
	if got := w.HistoricalSpend(); !got.Equal(types.USD(1000)) {
		t.Errorf("historical spend after failed write: got %v, want %v", got, types.USD(1000))
	}

	// Once the store recovers the purchase goes through.
	st.setFail(false)
	if _, err := w.PurchaseCredits(ctx, types.USD(2000)); err != nil {
		t.Fatal(err)
	}
	if got := w.HistoricalSpend(); !got.Equal(types.USD(3000)) {
		t.Errorf("historical spend after retry: got %v, want %v", got, types.USD(3000))
	}
}

func TestOldEventsDoNotInflateCurrentMonth(t *testing.T) {
	clock := newFakeClock(time.Date(2024, 3, 15, 12, 0, 0, 0, time.UTC))
	source := event.NewChanSource(16)
	ctx := context.Background()

	feb := time.Date(2024, 2, 10, 8, 0, 0, 0, time.UTC)
	source.Publish(event.Purchase{ID: "evt_feb", Amount: types.USD(2000), Verified: true, PurchasedAt: feb})
	source.Publish(event.Purchase{ID: "evt_mar", Amount: types.USD(500), Verified: true, PurchasedAt: clock.Now()})

	w := spendguard.New(memory.New(), source, spendguard.WithClock(clock.Now))
	if err := w.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer w.Stop()

	if got := w.HistoricalSpend(); !got.Equal(types.USD(2500)) {
		t.Errorf("historical spend: got %v, want %v", got, types.USD(2500))
	}
	if got := w.MonthlySpend(); !got.Equal(types.USD(500)) {
		t.Errorf("monthly spend: got %v, want %v", got, types.USD(500))
	}
	if fp := w.FirstPaymentDate(); fp == nil || !fp.Equal(feb) {
		t.Errorf("first payment: got %v, want %v", fp, feb)
	}
}

func TestInconsistentStateRebuilds(t *testing.T) {
	clock := newFakeClock(time.Date(2024, 3, 15, 12, 0, 0, 0, time.UTC))
	source := event.NewChanSource(16)
	st := memory.New()
	ctx := context.Background()

	// Lifetime spend without a first-payment date cannot be trusted.
	broken := account.NewState("usd", clock.Now())
	broken.HistoricalSpend = types.USD(99999)
	if err := st.SaveState(ctx, broken); err != nil {
		t.Fatal(err)
	}

	mar10 := time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC)
	source.Publish(event.Purchase{ID: "evt_1", Amount: types.USD(2000), Verified: true, PurchasedAt: mar10})

	w := spendguard.New(st, source, spendguard.WithClock(clock.Now))
	if err := w.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer w.Stop()

	// The counters come from the snapshot, not the broken persisted state.
	if got := w.HistoricalSpend(); !got.Equal(types.USD(2000)) {
		t.Errorf("historical spend: got %v, want %v", got, types.USD(2000))
	}
	if fp := w.FirstPaymentDate(); fp == nil || !fp.Equal(mar10) {
		t.Errorf("first payment: got %v, want %v", fp, mar10)
	}
}

func TestCatalogResolution(t *testing.T) {
	clock := newFakeClock(time.Date(2024, 3, 15, 12, 0, 0, 0, time.UTC))
	source := event.NewChanSource(16)
	ctx := context.Background()

	cat := catalog.New("usd", map[string]types.Money{
		"credits_10": types.USD(1000),
	})

	source.Publish(event.Purchase{ID: "evt_known", ProductID: "credits_10", Verified: true, PurchasedAt: clock.Now()})
	source.Publish(event.Purchase{ID: "evt_unknown", ProductID: "credits_999", Verified: true, PurchasedAt: clock.Now()})

	w := spendguard.New(memory.New(), source,
		spendguard.WithClock(clock.Now),
		spendguard.WithCatalog(cat),
	)
	if err := w.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer w.Stop()

	// Only the resolvable product landed.
	if got := w.HistoricalSpend(); !got.Equal(types.USD(1000)) {
		t.Errorf("historical spend: got %v, want %v", got, types.USD(1000))
	}
}

func TestLiveStreamConsumed(t *testing.T) {
	w, source, clock := startWallet(t)

	source.Publish(event.Purchase{ID: "evt_live", Amount: types.USD(700), Verified: true, PurchasedAt: clock.Now()})

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if w.HistoricalSpend().Equal(types.USD(700)) {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("live event never applied; historical spend = %v", w.HistoricalSpend())
}

func TestChangesNotification(t *testing.T) {
	w, _, _ := startWallet(t)
	ctx := context.Background()

	if _, err := w.PurchaseCredits(ctx, types.USD(500)); err != nil {
		t.Fatal(err)
	}

	select {
	case c := <-w.Changes():
		if c.Kind != spendguard.ChangePurchaseApplied {
			t.Errorf("kind: got %v, want %v", c.Kind, spendguard.ChangePurchaseApplied)
		}
		if c.ID == "" {
			t.Error("expected a change id")
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for change notification")
	}
}

func TestPhaseTransitions(t *testing.T) {
	clock := newFakeClock(time.Date(2024, 3, 15, 12, 0, 0, 0, time.UTC))
	source := event.NewChanSource(16)
	w := spendguard.New(memory.New(), source, spendguard.WithClock(clock.Now))

	if got := w.Phase(); got != spendguard.PhaseCold {
		t.Errorf("phase before start: got %v, want %v", got, spendguard.PhaseCold)
	}

	ctx := context.Background()
	if err := w.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if got := w.Phase(); got != spendguard.PhaseLive {
		t.Errorf("phase after start: got %v, want %v", got, spendguard.PhaseLive)
	}

	if err := w.Start(ctx); !errors.Is(err, spendguard.ErrStarted) {
		t.Errorf("double start: got %v, want ErrStarted", err)
	}

	if err := w.Stop(); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
	if got := w.Phase(); got != spendguard.PhaseStopped {
		t.Errorf("phase after stop: got %v, want %v", got, spendguard.PhaseStopped)
	}

	if err := w.Stop(); !errors.Is(err, spendguard.ErrNotStarted) {
		t.Errorf("double stop: got %v, want ErrNotStarted", err)
	}
}

func TestColdQueriesReturnZeroValues(t *testing.T) {
	source := event.NewChanSource(16)
	w := spendguard.New(memory.New(), source)

	if got := w.CurrentTier(); got != tier.Starter {
		t.Errorf("tier: got %v, want %v", got, tier.Starter)
	}
	if got := w.HistoricalSpend(); !got.IsZero() {
		t.Errorf("historical spend: got %v, want zero", got)
	}
	if got := w.FirstPaymentDate(); got != nil {
		t.Errorf("first payment: got %v, want nil", got)
	}
	if got := w.MonthlyLimit(); !got.Equal(types.USD(5000)) {
		t.Errorf("monthly limit: got %v, want %v", got, types.USD(5000))
	}
}
