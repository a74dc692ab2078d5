package postgres

import (
	"fmt"
	"time"

	"github.com/xraph/grove"

	"github.com/xraph/spendguard/account"
	"github.com/xraph/spendguard/tier"
	"github.com/xraph/spendguard/types"
)

// The ledger is single-account, so the state table holds one row.
const stateRowID = "account"

// ==================== State models ====================

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
		return nil, fmt.Errorf("spendguard/postgres: decode tier: %w", err)
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
