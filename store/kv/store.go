// Package kv adapts two plain key/value stores (an encrypted secret store
// for the lifetime counters and an unencrypted preference store for the
// rest) into a spendguard store.Store. This is the shape host applications
// usually have at hand (keychain-style secret storage plus preferences), so
// the adapter lets them plug their own backends without implementing the
// full Store interface.
package kv

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/xraph/spendguard/account"
	spendstore "github.com/xraph/spendguard/store"
	"github.com/xraph/spendguard/tier"
	"github.com/xraph/spendguard/types"
)

// ErrKeyNotFound is returned by KV implementations for absent keys.
var ErrKeyNotFound = errors.New("kv: key not found")

// KV is the minimal byte-oriented key/value contract both underlying stores
// must satisfy. Get returns ErrKeyNotFound (possibly wrapped) for absent
// keys; every other failure is treated as an I/O error.
type KV interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
}

// Field keys in the underlying stores.
const (
	keyHistoricalSpend = "historicalSpend"  // secret
	keyFirstPayment    = "firstPaymentDate" // secret
	keyMonthlySpend    = "monthlySpend"
	keyLastReset       = "lastResetDate"
	keyTier            = "currentTier"
	keyCustomLimit     = "customLimit"
	keyApplied         = "appliedEventIDs"
)

// tombstone marks a cleared optional field. The underlying KVs have no
// delete operation, so a nil field must overwrite any previous value or the
// next load resurrects it.
var tombstone = []byte("null")

func isTombstone(raw []byte) bool {
	return bytes.Equal(raw, tombstone)
}

// compile-time interface check
var _ spendstore.Store = (*Store)(nil)

// Store implements store.Store over a secret KV and a preference KV.
// The two underlying stores cannot be written atomically; the ledger's
// startup snapshot replay is the recovery path for a crash between writes.
type Store struct {
	secret KV
	pref   KV
}

// New creates a KV-backed store. The secret KV holds the confidential
// lifetime counters; the preference KV holds everything else, including the
// applied-event-id set.
func New(secret, pref KV) *Store {
	return &Store{secret: secret, pref: pref}
}

func (s *Store) LoadState(ctx context.Context) (*account.State, error) {
	histRaw, histErr := s.secret.Get(ctx, keyHistoricalSpend)
	monthRaw, monthErr := s.pref.Get(ctx, keyMonthlySpend)

	if isNotFound(histErr) && isNotFound(monthErr) {
		return nil, nil
	}
	if histErr != nil && !isNotFound(histErr) {
		return nil, fmt.Errorf("kv: load historical spend: %w", histErr)
	}
	if monthErr != nil && !isNotFound(monthErr) {
		return nil, fmt.Errorf("kv: load monthly spend: %w", monthErr)
	}

	st := &account.State{Entity: types.NewEntity(), Tier: tier.Starter}

	if histRaw != nil {
		if err := json.Unmarshal(histRaw, &st.HistoricalSpend); err != nil {
			return nil, fmt.Errorf("kv: decode historical spend: %w", err)
		}
	}
	if monthRaw != nil {
		if err := json.Unmarshal(monthRaw, &st.MonthlySpend); err != nil {
			return nil, fmt.Errorf("kv: decode monthly spend: %w", err)
		}
	}

	if raw, err := s.secret.Get(ctx, keyFirstPayment); err == nil {
		if !isTombstone(raw) {
			t, err := time.Parse(time.RFC3339Nano, string(raw))
			if err != nil {
				return nil, fmt.Errorf("kv: decode first payment date: %w", err)
			}
			st.FirstPayment = &t
		}
	} else if !isNotFound(err) {
		return nil, fmt.Errorf("kv: load first payment date: %w", err)
	}

	if raw, err := s.pref.Get(ctx, keyLastReset); err == nil {
		t, err := time.Parse(time.RFC3339Nano, string(raw))
		if err != nil {
			return nil, fmt.Errorf("kv: decode last reset date: %w", err)
		}
		st.LastReset = t
	} else if !isNotFound(err) {
		return nil, fmt.Errorf("kv: load last reset date: %w", err)
	}

	if raw, err := s.pref.Get(ctx, keyTier); err == nil {
		level, err := tier.ParseLevel(string(raw))
		if err != nil {
			return nil, err
		}
		st.Tier = level
	} else if !isNotFound(err) {
		return nil, fmt.Errorf("kv: load tier: %w", err)
	}

	if raw, err := s.pref.Get(ctx, keyCustomLimit); err == nil {
		if !isTombstone(raw) {
			var limit types.Money
			if err := json.Unmarshal(raw, &limit); err != nil {
				return nil, fmt.Errorf("kv: decode custom limit: %w", err)
			}
			st.CustomLimit = &limit
		}
	} else if !isNotFound(err) {
		return nil, fmt.Errorf("kv: load custom limit: %w", err)
	}

	return st, nil
}

func (s *Store) SaveState(ctx context.Context, st *account.State) error {
	hist, err := json.Marshal(st.HistoricalSpend)
	if err != nil {
		return fmt.Errorf("kv: encode historical spend: %w", err)
	}
	if err := s.secret.Set(ctx, keyHistoricalSpend, hist); err != nil {
		return fmt.Errorf("kv: save historical spend: %w", err)
	}

	fpRaw := tombstone
	if st.FirstPayment != nil {
		fpRaw = []byte(st.FirstPayment.UTC().Format(time.RFC3339Nano))
	}
	if err := s.secret.Set(ctx, keyFirstPayment, fpRaw); err != nil {
		return fmt.Errorf("kv: save first payment date: %w", err)
	}

	month, err := json.Marshal(st.MonthlySpend)
	if err != nil {
		return fmt.Errorf("kv: encode monthly spend: %w", err)
	}
	if err := s.pref.Set(ctx, keyMonthlySpend, month); err != nil {
		return fmt.Errorf("kv: save monthly spend: %w", err)
	}

	if err := s.pref.Set(ctx, keyLastReset, []byte(st.LastReset.UTC().Format(time.RFC3339Nano))); err != nil {
		return fmt.Errorf("kv: save last reset date: %w", err)
	}

	if err := s.pref.Set(ctx, keyTier, []byte(st.Tier.String())); err != nil {
		return fmt.Errorf("kv: save tier: %w", err)
	}

	limitRaw := tombstone
	if st.CustomLimit != nil {
		limitRaw, err = json.Marshal(st.CustomLimit)
		if err != nil {
			return fmt.Errorf("kv: encode custom limit: %w", err)
		}
	}
	if err := s.pref.Set(ctx, keyCustomLimit, limitRaw); err != nil {
		return fmt.Errorf("kv: save custom limit: %w", err)
	}

	return nil
}

func (s *Store) SaveStateApplied(ctx context.Context, st *account.State, eventID string, appliedAt time.Time) error {
	if err := s.SaveState(ctx, st); err != nil {
		return err
	}

	applied, err := s.loadApplied(ctx)
	if err != nil {
		return err
	}
	applied[eventID] = appliedAt.UTC()
	return s.saveApplied(ctx, applied)
}

func (s *Store) IsApplied(ctx context.Context, eventID string) (bool, error) {
	applied, err := s.loadApplied(ctx)
	if err != nil {
		return false, err
	}
	_, ok := applied[eventID]
	return ok, nil
}

func (s *Store) ListApplied(ctx context.Context) ([]string, error) {
	applied, err := s.loadApplied(ctx)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(applied))
	for id := range applied {
		ids = append(ids, id)
	}
	return ids, nil
}

func (s *Store) PurgeApplied(ctx context.Context, before time.Time) (int64, error) {
	applied, err := s.loadApplied(ctx)
	if err != nil {
		return 0, err
	}

	var count int64
	for id, at := range applied {
		if at.Before(before) {
			delete(applied, id)
			count++
		}
	}
	if count == 0 {
		return 0, nil
	}
	return count, s.saveApplied(ctx, applied)
}

// Store management
func (s *Store) Migrate(_ context.Context) error { return nil }
func (s *Store) Ping(_ context.Context) error    { return nil }
func (s *Store) Close() error                    { return nil }

// ──────────────────────────────────────────────────
// Helpers
// ──────────────────────────────────────────────────

func (s *Store) loadApplied(ctx context.Context) (map[string]time.Time, error) {
	raw, err := s.pref.Get(ctx, keyApplied)
	if err != nil {
		if isNotFound(err) {
			return make(map[string]time.Time), nil
		}
		return nil, fmt.Errorf("kv: load applied ids: %w", err)
	}

	applied := make(map[string]time.Time)
	if err := json.Unmarshal(raw, &applied); err != nil {
		return nil, fmt.Errorf("kv: decode applied ids: %w", err)
	}
	return applied, nil
}

func (s *Store) saveApplied(ctx context.Context, applied map[string]time.Time) error {
	raw, err := json.Marshal(applied)
	if err != nil {
		return fmt.Errorf("kv: encode applied ids: %w", err)
	}
	if err := s.pref.Set(ctx, keyApplied, raw); err != nil {
		return fmt.Errorf("kv: save applied ids: %w", err)
	}
	return nil
}

func isNotFound(err error) bool {
	return errors.Is(err, ErrKeyNotFound)
}
