// Package redis implements the Spendguard store on Redis via rueidis. The
// ledger state is a single JSON value; applied event ids live in a sorted
// set scored by apply time so retention purges are one ZREMRANGEBYSCORE.
package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/rueidis"

	"github.com/xraph/spendguard/account"
	spendstore "github.com/xraph/spendguard/store"
)

// Key constants.
const (
	keyState   = "spendguard:state"
	keyApplied = "spendguard:applied"
)

// compile-time interface check
var _ spendstore.Store = (*Store)(nil)

// Config holds connection parameters for a Redis store.
type Config struct {
	Addrs    []string
	Username string
	Password string
	DB       int

	// KeyPrefix namespaces all keys, letting several wallets share one
	// database. Empty means no prefix.
	KeyPrefix string
}

// Store implements store.Store via rueidis.
type Store struct {
	client rueidis.Client
	prefix string

	// ownsClient is false when the client was passed in by the host, which
	// then remains responsible for closing it.
	ownsClient bool
}

// New creates a Redis store via rueidis.
func New(cfg Config) (*Store, error) {
	if len(cfg.Addrs) == 0 {
		return nil, fmt.Errorf("spendguard/redis: addrs is required")
	}

	client, err := rueidis.NewClient(rueidis.ClientOption{
		InitAddress:  cfg.Addrs,
		Username:     cfg.Username,
		Password:     cfg.Password,
		SelectDB:     cfg.DB,
		DisableCache: true,
	})
	if err != nil {
		return nil, fmt.Errorf("spendguard/redis: create client: %w", err)
	}

	return &Store{client: client, prefix: cfg.KeyPrefix, ownsClient: true}, nil
}

// NewWithClient wraps an existing rueidis client. Close becomes a no-op; the
// host owns the client lifecycle.
func NewWithClient(client rueidis.Client, keyPrefix string) *Store {
	return &Store{client: client, prefix: keyPrefix}
}

// ==================== State Store ====================

func (s *Store) LoadState(ctx context.Context) (*account.State, error) {
	cmd := s.client.B().Get().Key(s.key(keyState)).Build()
	data, err := s.client.Do(ctx, cmd).AsBytes()
	if err != nil {
		if rueidis.IsRedisNil(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("spendguard/redis: load state: %w", err)
	}

	st := new(account.State)
	if err := json.Unmarshal(data, st); err != nil {
		return nil, fmt.Errorf("spendguard/redis: decode state: %w", err)
	}
	return st, nil
}

func (s *Store) SaveState(ctx context.Context, st *account.State) error {
	data, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("spendguard/redis: encode state: %w", err)
	}

	cmd := s.client.B().Set().Key(s.key(keyState)).Value(string(data)).Build()
	if err := s.client.Do(ctx, cmd).Error(); err != nil {
		return fmt.Errorf("spendguard/redis: save state: %w", err)
	}
	return nil
}

func (s *Store) SaveStateApplied(ctx context.Context, st *account.State, eventID string, appliedAt time.Time) error {
	if err := s.SaveState(ctx, st); err != nil {
		return err
	}

	cmd := s.client.B().Zadd().Key(s.key(keyApplied)).
		ScoreMember().
		ScoreMember(float64(appliedAt.UTC().Unix()), eventID).
		Build()
	if err := s.client.Do(ctx, cmd).Error(); err != nil {
		return fmt.Errorf("spendguard/redis: mark applied: %w", err)
	}
	return nil
}

// ==================== Applied-event Store ====================

func (s *Store) IsApplied(ctx context.Context, eventID string) (bool, error) {
	cmd := s.client.B().Zscore().Key(s.key(keyApplied)).Member(eventID).Build()
	if err := s.client.Do(ctx, cmd).Error(); err != nil {
		if rueidis.IsRedisNil(err) {
			return false, nil
		}
		return false, fmt.Errorf("spendguard/redis: check applied: %w", err)
	}
	return true, nil
}

func (s *Store) ListApplied(ctx context.Context) ([]string, error) {
	cmd := s.client.B().Zrange().Key(s.key(keyApplied)).Min("0").Max("-1").Build()
	ids, err := s.client.Do(ctx, cmd).AsStrSlice()
	if err != nil {
		return nil, fmt.Errorf("spendguard/redis: list applied: %w", err)
	}
	return ids, nil
}

func (s *Store) PurgeApplied(ctx context.Context, before time.Time) (int64, error) {
	max := strconv.FormatInt(before.UTC().Unix()-1, 10)
	cmd := s.client.B().Zremrangebyscore().Key(s.key(keyApplied)).Min("-inf").Max(max).Build()
	removed, err := s.client.Do(ctx, cmd).AsInt64()
	if err != nil {
		return 0, fmt.Errorf("spendguard/redis: purge applied: %w", err)
	}
	return removed, nil
}

// ==================== Store management ====================

// Migrate is a no-op: Redis needs no schema.
func (s *Store) Migrate(_ context.Context) error { return nil }

// Ping checks connectivity.
func (s *Store) Ping(ctx context.Context) error {
	cmd := s.client.B().Ping().Build()
	if err := s.client.Do(ctx, cmd).Error(); err != nil {
		return fmt.Errorf("spendguard/redis: ping: %w", err)
	}
	return nil
}

// Close shuts down the client when this store created it.
func (s *Store) Close() error {
	if s.ownsClient {
		s.client.Close()
	}
	return nil
}

func (s *Store) key(k string) string {
	if s.prefix == "" {
		return k
	}
	return s.prefix + ":" + k
}
