// Package sqlite implements the Spendguard store on SQLite via Grove ORM.
// It is the default backend for embedded and desktop hosts: a single local
// file, no server, and transactional writes for the state-plus-applied pair.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/xraph/grove"
	"github.com/xraph/grove/drivers/sqlitedriver"
	"github.com/xraph/grove/migrate"

	"github.com/xraph/spendguard/account"
	spendstore "github.com/xraph/spendguard/store"
	"github.com/xraph/spendguard/tier"
	"github.com/xraph/spendguard/types"
)

// compile-time interface check
var _ spendstore.Store = (*Store)(nil)

// The ledger is single-account, so the state table holds one row.
const stateRowID = "account"

// Store implements store.Store using SQLite via Grove ORM.
type Store struct {
	db  *grove.DB
	sdb *sqlitedriver.SqliteDB
}

// New creates a new SQLite store backed by Grove ORM.
func New(db *grove.DB) *Store {
	return &Store{
		db:  db,
		sdb: sqlitedriver.Unwrap(db),
	}
}

// DB returns the underlying grove database for direct access.
func (s *Store) DB() *grove.DB { return s.db }

// Migrate creates the required tables and indexes using the grove orchestrator.
func (s *Store) Migrate(ctx context.Context) error {
	executor, err := migrate.NewExecutorFor(s.sdb)
	if err != nil {
		return fmt.Errorf("spendguard/sqlite: create migration executor: %w", err)
	}
	orch := migrate.NewOrchestrator(executor, Migrations)
	if _, err := orch.Migrate(ctx); err != nil {
		return fmt.Errorf("spendguard/sqlite: migration failed: %w", err)
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

// ==================== Models ====================

type stateModel struct {
	grove.BaseModel `grove:"table:spendguard_state"`

	ID               string     `grove:"id,pk"`
	HistoricalCents  int64      `grove:"historical_cents"`
	MonthlyCents     int64      `grove:"monthly_cents"`
	Currency         string     `grove:"currency"`
	LastReset        time.Time  `grove:"last_reset"`
	FirstPayment     *time.Time `grove:"first_payment"`
	Tier             string     `grove:"tier"`
	CustomLimitCents *int64     `grove:"custom_limit_cents"`
	CreatedAt        time.Time  `grove:"created_at"`
	UpdatedAt        time.Time  `grove:"updated_at"`
}

type appliedModel struct {
	grove.BaseModel `grove:"table:spendguard_applied"`

	EventID   string    `grove:"event_id,pk"`
	AppliedAt time.Time `grove:"applied_at"`
}

func toStateModel(st *account.State) *stateModel {
	m := &stateModel{
		ID:              stateRowID,
		HistoricalCents: st.HistoricalSpend.Amount,
		MonthlyCents:    st.MonthlySpend.Amount,
		Currency:        st.HistoricalSpend.Currency,
		LastReset:       st.LastReset,
		FirstPayment:    st.FirstPayment,
		Tier:            st.Tier.String(),
		CreatedAt:       st.CreatedAt,
		UpdatedAt:       st.UpdatedAt,
	}
	if st.CustomLimit != nil {
		cents := st.CustomLimit.Amount
		m.CustomLimitCents = &cents
	}
	return m
}

func fromStateModel(m *stateModel) (*account.State, error) {
	level, err := tier.ParseLevel(m.Tier)
	if err != nil {
		return nil, fmt.Errorf("spendguard/sqlite: decode tier: %w", err)
	}

	st := &account.State{
		Entity: types.Entity{
			CreatedAt: m.CreatedAt,
			UpdatedAt: m.UpdatedAt,
		},
		HistoricalSpend: types.Money{Amount: m.HistoricalCents, Currency: m.Currency},
		MonthlySpend:    types.Money{Amount: m.MonthlyCents, Currency: m.Currency},
		LastReset:       m.LastReset,
		FirstPayment:    m.FirstPayment,
		Tier:            level,
	}
	if m.CustomLimitCents != nil {
		limit := types.Money{Amount: *m.CustomLimitCents, Currency: m.Currency}
		st.CustomLimit = &limit
	}
	return st, nil
}

// ==================== State Store ====================

func (s *Store) LoadState(ctx context.Context) (*account.State, error) {
	m := new(stateModel)
	err := s.sdb.NewSelect(m).
		Where("id = ?", stateRowID).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("spendguard/sqlite: load state: %w", err)
	}
	return fromStateModel(m)
}

func (s *Store) SaveState(ctx context.Context, st *account.State) error {
	m := toStateModel(st)
	m.UpdatedAt = now()

	res, err := s.sdb.NewUpdate(m).WherePK().Exec(ctx)
	if err != nil {
		return fmt.Errorf("spendguard/sqlite: save state: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("spendguard/sqlite: save state: %w", err)
	}
	if rows == 0 {
		if _, err := s.sdb.NewInsert(m).Exec(ctx); err != nil {
			return fmt.Errorf("spendguard/sqlite: insert state: %w", err)
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
	if _, err := s.sdb.NewInsert(m).Exec(ctx); err != nil {
		return fmt.Errorf("spendguard/sqlite: mark applied: %w", err)
	}
	return nil
}

// ==================== Applied-event Store ====================

func (s *Store) IsApplied(ctx context.Context, eventID string) (bool, error) {
	m := new(appliedModel)
	err := s.sdb.NewSelect(m).
		Where("event_id = ?", eventID).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return false, nil
		}
		return false, fmt.Errorf("spendguard/sqlite: check applied: %w", err)
	}
	return true, nil
}

func (s *Store) ListApplied(ctx context.Context) ([]string, error) {
	var models []appliedModel
	err := s.sdb.NewSelect(&models).
		OrderExpr("applied_at ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("spendguard/sqlite: list applied: %w", err)
	}

	ids := make([]string, len(models))
	for i := range models {
		ids[i] = models[i].EventID
	}
	return ids, nil
}

func (s *Store) PurgeApplied(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.sdb.NewDelete((*appliedModel)(nil)).
		Where("applied_at < ?", before).
		Exec(ctx)
	if err != nil {
		return 0, fmt.Errorf("spendguard/sqlite: purge applied: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("spendguard/sqlite: purge applied: %w", err)
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
