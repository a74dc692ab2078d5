// Package mongo implements the Spendguard store on MongoDB via Grove ORM.
package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"

	"github.com/xraph/grove"
	"github.com/xraph/grove/drivers/mongodriver"

	"github.com/xraph/spendguard/account"
	spendstore "github.com/xraph/spendguard/store"
)

// Collection name constants.
const (
	colState   = "spendguard_state"
	colApplied = "spendguard_applied"
)

// compile-time interface check
var _ spendstore.Store = (*Store)(nil)

// Store implements store.Store using MongoDB via Grove ORM.
type Store struct {
	db  *grove.DB
	mdb *mongodriver.MongoDB
}

// New creates a new MongoDB store backed by Grove ORM.
func New(db *grove.DB) *Store {
	return &Store{
		db:  db,
		mdb: mongodriver.Unwrap(db),
	}
}

// DB returns the underlying grove database for direct access.
func (s *Store) DB() *grove.DB { return s.db }

// Migrate creates indexes for the spendguard collections.
func (s *Store) Migrate(ctx context.Context) error {
	indexes := map[string][]mongo.IndexModel{
		colApplied: {
			{Keys: bson.D{{Key: "applied_at", Value: 1}}},
		},
	}

	for col, models := range indexes {
		if len(models) == 0 {
			continue
		}
		_, err := s.mdb.Collection(col).Indexes().CreateMany(ctx, models)
		if err != nil {
			return fmt.Errorf("spendguard/mongo: migrate %s indexes: %w", col, err)
		}
	}
	return nil
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// ==================== State Store ====================

func (s *Store) LoadState(ctx context.Context) (*account.State, error) {
	var m stateModel
	err := s.mdb.NewFind(&m).
		Filter(bson.M{"_id": stateDocID}).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("spendguard/mongo: load state: %w", err)
	}
	return fromStateModel(&m)
}

func (s *Store) SaveState(ctx context.Context, st *account.State) error {
	m := toStateModel(st)
	m.UpdatedAt = now()

	_, err := s.mdb.NewUpdate(m).
		Filter(bson.M{"_id": m.ID}).
		SetUpdate(bson.M{"$set": bson.M{
			"_id":                m.ID,
			"historical_cents":   m.HistoricalCents,
			"monthly_cents":      m.MonthlyCents,
			"currency":           m.Currency,
			"last_reset":         m.LastReset,
			"first_payment":      m.FirstPayment,
			"tier":               m.Tier,
			"custom_limit_cents": m.CustomLimitCents,
			"created_at":         m.CreatedAt,
			"updated_at":         m.UpdatedAt,
		}}).
		Upsert().
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("spendguard/mongo: save state: %w", err)
	}
	return nil
}

func (s *Store) SaveStateApplied(ctx context.Context, st *account.State, eventID string, appliedAt time.Time) error {
	if err := s.SaveState(ctx, st); err != nil {
		return err
	}

	_, err := s.mdb.NewUpdate((*appliedModel)(nil)).
		Filter(bson.M{"_id": eventID}).
		SetUpdate(bson.M{"$set": bson.M{
			"_id":        eventID,
			"applied_at": appliedAt.UTC(),
		}}).
		Upsert().
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("spendguard/mongo: mark applied: %w", err)
	}
	return nil
}

// ==================== Applied-event Store ====================

func (s *Store) IsApplied(ctx context.Context, eventID string) (bool, error) {
	var m appliedModel
	err := s.mdb.NewFind(&m).
		Filter(bson.M{"_id": eventID}).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return false, nil
		}
		return false, fmt.Errorf("spendguard/mongo: check applied: %w", err)
	}
	return true, nil
}

func (s *Store) ListApplied(ctx context.Context) ([]string, error) {
	var models []appliedModel
	err := s.mdb.NewFind(&models).
		Filter(bson.M{}).
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("spendguard/mongo: list applied: %w", err)
	}

	ids := make([]string, len(models))
	for i := range models {
		ids[i] = models[i].EventID
	}
	return ids, nil
}

func (s *Store) PurgeApplied(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.mdb.NewDelete((*appliedModel)(nil)).
		Filter(bson.M{"applied_at": bson.M{"$lt": before}}).
		Exec(ctx)
	if err != nil {
		return 0, fmt.Errorf("spendguard/mongo: purge applied: %w", err)
	}
	return res.DeletedCount(), nil
}

// ==================== Helpers ====================

// now returns the current UTC time.
func now() time.Time {
	return time.Now().UTC()
}

// isNoDocuments checks if an error wraps mongo.ErrNoDocuments.
func isNoDocuments(err error) bool {
	return errors.Is(err, mongo.ErrNoDocuments)
}
