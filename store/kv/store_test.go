package kv

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/xraph/spendguard/account"
	"github.com/xraph/spendguard/tier"
	"github.com/xraph/spendguard/types"
)

// mapKV is an in-memory KV for tests.
type mapKV struct {
	data    map[string][]byte
	failSet bool
}

func newMapKV() *mapKV {
	return &mapKV{data: make(map[string][]byte)}
}

func (m *mapKV) Get(_ context.Context, key string) ([]byte, error) {
	v, ok := m.data[key]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrKeyNotFound, key)
	}
	return v, nil
}

func (m *mapKV) Set(_ context.Context, key string, value []byte) error {
	if m.failSet {
		return errors.New("disk full")
	}
	m.data[key] = value
	return nil
}

func TestLoadStateEmpty(t *testing.T) {
	s := New(newMapKV(), newMapKV())

	st, err := s.LoadState(context.Background())
	if err != nil {
		t.Fatalf("LoadState failed: %v", err)
	}
	if st != nil {
		t.Errorf("expected nil state, got %+v", st)
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	secret, pref := newMapKV(), newMapKV()
	s := New(secret, pref)
	ctx := context.Background()
	now := time.Now().UTC()

	st := account.NewState("usd", now)
	st.HistoricalSpend = types.USD(123456)
	st.MonthlySpend = types.USD(789)
	st.Tier = tier.Pro
	fp := now.Add(-20 * 24 * time.Hour).Truncate(time.Millisecond)
	st.FirstPayment = &fp
	limit := types.USD(1000000)
	st.CustomLimit = &limit

	if err := s.SaveState(ctx, st); err != nil {
		t.Fatalf("SaveState failed: %v", err)
	}

	loaded, err := s.LoadState(ctx)
	if err != nil {
		t.Fatalf("LoadState failed: %v", err)
	}
	if !loaded.HistoricalSpend.Equal(st.HistoricalSpend) {
		t.Errorf("historical spend: got %v, want %v", loaded.HistoricalSpend, st.HistoricalSpend)
	}
	if !loaded.MonthlySpend.Equal(st.MonthlySpend) {
		t.Errorf("monthly spend: got %v, want %v", loaded.MonthlySpend, st.MonthlySpend)
	}
	if loaded.Tier != tier.Pro {
		t.Errorf("tier: got %v, want %v", loaded.Tier, tier.Pro)
	}
	if loaded.FirstPayment == nil || !loaded.FirstPayment.Equal(fp) {
		t.Errorf("first payment: got %v, want %v", loaded.FirstPayment, fp)
	}
	if loaded.CustomLimit == nil || !loaded.CustomLimit.Equal(limit) {
		t.Errorf("custom limit: got %v, want %v", loaded.CustomLimit, limit)
	}
}

func TestClearedOptionalFieldsStayCleared(t *testing.T) {
	s := New(newMapKV(), newMapKV())
	ctx := context.Background()
	now := time.Now().UTC()

	st := account.NewState("usd", now)
	fp := now.Add(-5 * 24 * time.Hour)
	st.FirstPayment = &fp
	limit := types.USD(100000)
	st.CustomLimit = &limit

	if err := s.SaveState(ctx, st); err != nil {
		t.Fatalf("SaveState failed: %v", err)
	}

	// Both optional fields are cleared; the save must overwrite the stored
	// values, not leave them behind to be resurrected on the next load.
	st.FirstPayment = nil
	st.CustomLimit = nil
	if err := s.SaveState(ctx, st); err != nil {
		t.Fatalf("second SaveState failed: %v", err)
	}

	loaded, err := s.LoadState(ctx)
	if err != nil {
		t.Fatalf("LoadState failed: %v", err)
	}
	if loaded.CustomLimit != nil {
		t.Errorf("cleared custom limit came back from disk: %v", loaded.CustomLimit)
	}
	if loaded.FirstPayment != nil {
		t.Errorf("cleared first payment came back from disk: %v", loaded.FirstPayment)
	}
}

func TestConfidentialSplit(t *testing.T) {
	secret, pref := newMapKV(), newMapKV()
	s := New(secret, pref)
	ctx := context.Background()
	now := time.Now().UTC()

	st := account.NewState("usd", now)
	st.HistoricalSpend = types.USD(5000)
	fp := now
	st.FirstPayment = &fp

	if err := s.SaveState(ctx, st); err != nil {
		t.Fatalf("SaveState failed: %v", err)
	}

	// Lifetime counters live in the secret store only.
	if _, ok := secret.data[keyHistoricalSpend]; !ok {
		t.Error("historical spend missing from secret store")
	}
	if _, ok := secret.data[keyFirstPayment]; !ok {
		t.Error("first payment date missing from secret store")
	}
	if _, ok := pref.data[keyHistoricalSpend]; ok {
		t.Error("historical spend leaked into preference store")
	}
	if _, ok := pref.data[keyMonthlySpend]; !ok {
		t.Error("monthly spend missing from preference store")
	}
}

func TestAppliedTracking(t *testing.T) {
	s := New(newMapKV(), newMapKV())
	ctx := context.Background()
	now := time.Now().UTC()
	st := account.NewState("usd", now)

	if err := s.SaveStateApplied(ctx, st, "evt_1", now); err != nil {
		t.Fatalf("SaveStateApplied failed: %v", err)
	}
	if err := s.SaveStateApplied(ctx, st, "evt_2", now); err != nil {
		t.Fatalf("SaveStateApplied failed: %v", err)
	}

	applied, err := s.IsApplied(ctx, "evt_1")
	if err != nil {
		t.Fatalf("IsApplied failed: %v", err)
	}
	if !applied {
		t.Error("expected evt_1 to be applied")
	}

	if applied, _ := s.IsApplied(ctx, "evt_99"); applied {
		t.Error("expected evt_99 to not be applied")
	}

	ids, err := s.ListApplied(ctx)
	if err != nil {
		t.Fatalf("ListApplied failed: %v", err)
	}
	if len(ids) != 2 {
		t.Errorf("listed length: got %d, want 2", len(ids))
	}
}

func TestPurgeApplied(t *testing.T) {
	s := New(newMapKV(), newMapKV())
	ctx := context.Background()
	now := time.Now().UTC()
	st := account.NewState("usd", now)

	if err := s.SaveStateApplied(ctx, st, "evt_old", now.Add(-400*24*time.Hour)); err != nil {
		t.Fatal(err)
	}
	if err := s.SaveStateApplied(ctx, st, "evt_new", now); err != nil {
		t.Fatal(err)
	}

	purged, err := s.PurgeApplied(ctx, now.Add(-390*24*time.Hour))
	if err != nil {
		t.Fatalf("PurgeApplied failed: %v", err)
	}
	if purged != 1 {
		t.Errorf("purged: got %d, want 1", purged)
	}

	if applied, _ := s.IsApplied(ctx, "evt_old"); applied {
		t.Error("expected evt_old to be purged")
	}
	if applied, _ := s.IsApplied(ctx, "evt_new"); !applied {
		t.Error("expected evt_new to survive the purge")
	}

	// Nothing left to purge; no write should occur.
	purged, err = s.PurgeApplied(ctx, now.Add(-390*24*time.Hour))
	if err != nil {
		t.Fatalf("PurgeApplied failed: %v", err)
	}
	if purged != 0 {
		t.Errorf("second purge: got %d, want 0", purged)
	}
}

func TestSaveStatePropagatesWriteError(t *testing.T) {
	secret := newMapKV()
	secret.failSet = true
	s := New(secret, newMapKV())

	st := account.NewState("usd", time.Now())
	if err := s.SaveState(context.Background(), st); err == nil {
		t.Error("expected error when the secret store fails")
	}
}
