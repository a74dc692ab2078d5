// Package postgres implements the Spendguard store on PostgreSQL via Grove
// ORM. Intended for server-side hosts that manage many wallet processes
// against one database.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/xraph/grove"
	"github.com/xraph/grove/drivers/pgdriver"
	"github.com/xraph/grove/migrate"

	"github.com/xraph/spendguard/account"
	spendstore "github.com/xraph/spendguard/store"
)

// compile-time interface check
var _ spendstore.Store = (*Store)(nil)

// Store implements store.Store using PostgreSQL via Grove ORM.
type Store struct {
	db  *grove.DB
	pdb *pgdriver.PgDB
}

// New creates a new PostgreSQL store backed by Grove ORM.
func New(db *grove.DB) *Store {
	return &Store{
		db:  db,
		pdb: pgdriver.Unwrap(db),
	}
}

// DB returns the underlying grove database for direct access.
func (s *Store) DB() *grove.DB { return s.db }

// Migrate creates the required tables and indexes using the grove orchestrator.
func (s *Store) Migrate(ctx context.Context) error {
	executor, err := migrate.NewExecutorFor(s.pdb)
	if err != nil {
		return fmt.Errorf("spendguard/postgres: create migration executor: %w", err)
	}
	orch := migrate.NewOrchestrator(executor, Migrations)
	if _, err := orch.Migrate(ctx); err != nil {
		return fmt.Errorf("spendguard/postgres: migration failed: %w", err)
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
	m := new(stateModel)
	err := s.pdb.NewSelect(m).
		Where("id = ?", stateRowID).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("spendguard/postgres: load state: %w", err)
	}
	return fromStateModel(m)
}

func (s *Store) SaveState(ctx context.Context, st *account.State) error {
	m := toStateModel(st)
	m.UpdatedAt = now()

	res, err := s.pdb.NewUpdate(m).WherePK().Exec(ctx)
	if err != nil {
		return fmt.Errorf("spendguard/postgres: save state: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("spendguard/postgres: save state: %w", err)
	}
	if rows == 0 {
		if _, err := s.pdb.NewInsert(m).Exec(ctx); err != nil {
			return fmt.Errorf("spendguard/postgres: insert state: %w", err)
		}
	}
	return nil
}

func (s *Store) SaveStateApplied(ctx context.Context, st *account.State, eventID string, appliedAt time.Time) error {
	if err := s.SaveState(ctx, st); err != nil {
		return err
	}

	applied, err := s.IsApplied(ctx, eventID)
	if err != nil {
		return err
	}
	if applied {
		return nil
	}

	m := &appliedModel{EventID: eventID, AppliedAt: appliedAt.UTC()}
	if _, err := s.pdb.NewInsert(m).Exec(ctx); err != nil {
		return fmt.Errorf("spendguard/postgres: mark applied: %w", err)
	}
	return nil
}

// ==================== Applied-event Store ====================

func (s *Store) IsApplied(ctx context.Context, eventID string) (bool, error) {
	m := new(appliedModel)
	err := s.pdb.NewSelect(m).
		Where("event_id = ?", eventID).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return false, nil
		}
		return false, fmt.Errorf("spendguard/postgres: check applied: %w", err)
	}
	return true, nil
}

func (s *Store) ListApplied(ctx context.Context) ([]string, error) {
	var models []appliedModel
	err := s.pdb.NewSelect(&models).
		OrderExpr("applied_at ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("spendguard/postgres: list applied: %w", err)
	}

	ids := make([]string, len(models))
	for i := range models {
		ids[i] = models[i].EventID
	}
	return ids, nil
}

func (s *Store) PurgeApplied(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.pdb.NewDelete((*appliedModel)(nil)).
		Where("applied_at < ?", before).
		Exec(ctx)
	if err != nil {
		return 0, fmt.Errorf("spendguard/postgres: purge applied: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("spendguard/postgres: purge applied: %w", err)
	}
	return rows, nil
}

// ==================== Helpers ====================

// now returns the current UTC time.
func now() time.Time {
	return time.Now().UTC()
}

// isNoRows checks for the standard sql.ErrNoRows sentinel.
func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}
