package tier

import (
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/xraph/spendguard/types"
)

// Threshold is one row of the tier table: the monthly cap a level grants and
// the two admission predicates that unlock it.
type Threshold struct {
	Level      Level       `yaml:"-"`
	Cap        types.Money `yaml:"-"`
	SpendFloor types.Money `yaml:"-"`        // lifetime spend required
	MinDays    int         `yaml:"min_days"` // days since first payment required
}

// Table holds the ordered tier thresholds. It is immutable configuration
// data; the calculator never mutates it.
type Table struct {
	currency   string
	thresholds []Threshold // descending by level
}

// Requirement describes what is still missing to reach the next level.
type Requirement struct {
	Level        Level
	AmountNeeded types.Money
	DaysNeeded   int
}

// DefaultTable returns the built-in tier table:
//
//	Level   | spend floor | min days | monthly cap
//	Max     |   5000.00   |    30    |  50000.00
//	Pro     |    500.00   |    14    |   5000.00
//	Plus    |     50.00   |     7    |    500.00
//	Starter |      -      |     -    |     50.00
func DefaultTable(currency string) Table {
	return Table{
		currency: currency,
		thresholds: []Threshold{
			{Level: Max, Cap: types.MustParseMajor("50000.00", currency), SpendFloor: types.MustParseMajor("5000.00", currency), MinDays: 30},
			{Level: Pro, Cap: types.MustParseMajor("5000.00", currency), SpendFloor: types.MustParseMajor("500.00", currency), MinDays: 14},
			{Level: Plus, Cap: types.MustParseMajor("500.00", currency), SpendFloor: types.MustParseMajor("50.00", currency), MinDays: 7},
			{Level: Starter, Cap: types.MustParseMajor("50.00", currency), SpendFloor: types.Zero(currency), MinDays: 0},
		},
	}
}

// NewTable builds a table from explicit thresholds. Thresholds are sorted
// descending by level; a Starter row is required.
func NewTable(currency string, thresholds []Threshold) (Table, error) {
	if len(thresholds) == 0 {
		return Table{}, fmt.Errorf("tier: empty table")
	}

	sorted := make([]Threshold, len(thresholds))
	copy(sorted, thresholds)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Level > sorted[j].Level })

	if sorted[len(sorted)-1].Level != Starter {
		return Table{}, fmt.Errorf("tier: table must include the %s level", Starter)
	}
	for _, th := range sorted {
		if th.Level.IsCustom() {
			return Table{}, fmt.Errorf("tier: custom level has no threshold row")
		}
	}

	return Table{currency: currency, thresholds: sorted}, nil
}

// Currency returns the currency all table amounts are denominated in.
func (t Table) Currency() string { return t.currency }

// Compute maps lifetime spend and days since first payment onto a level.
// Pure function: rows are evaluated highest first, first match wins. An
// account that has never paid (zero days) always computes to Starter: spend
// without a recorded first payment cannot occur under the ledger's contract.
func (t Table) Compute(historicalSpend types.Money, daysSinceFirstPayment int) Level {
	if daysSinceFirstPayment <= 0 {
		return Starter
	}

	for _, th := range t.thresholds {
		if th.Level == Starter {
			break
		}
		if !historicalSpend.LessThan(th.SpendFloor) && daysSinceFirstPayment >= th.MinDays {
			return th.Level
		}
	}
	return Starter
}

// Cap returns the monthly cap granted by the given level.
// CustomLevel has no built-in cap; callers must use the account's custom
// limit instead, so Cap panics for it (programming error).
func (t Table) Cap(level Level) types.Money {
	if level.IsCustom() {
		panic("tier: custom level has no table cap")
	}
	for _, th := range t.thresholds {
		if th.Level == level {
			return th.Cap
		}
	}
	panic(fmt.Sprintf("tier: level %s not in table", level))
}

// Next returns what is still needed to unlock the level above current, given
// the account's lifetime spend and days since first payment. Returns nil when
// current is the top threshold level or Custom.
func (t Table) Next(current Level, historicalSpend types.Money, daysSinceFirstPayment int) *Requirement {
	if current.IsCustom() {
		return nil
	}

	// thresholds are descending; find the row directly above current.
	var next *Threshold
	for i := range t.thresholds {
		if t.thresholds[i].Level > current {
			next = &t.thresholds[i]
		}
	}
	if next == nil {
		return nil
	}

	req := &Requirement{Level: next.Level, AmountNeeded: types.Zero(t.currency)}
	if historicalSpend.LessThan(next.SpendFloor) {
		req.AmountNeeded = next.SpendFloor.Subtract(historicalSpend)
	}
	if daysSinceFirstPayment < next.MinDays {
		req.DaysNeeded = next.MinDays - daysSinceFirstPayment
	}
	return req
}

// ──────────────────────────────────────────────────
// YAML loading
// ──────────────────────────────────────────────────

type tableFile struct {
	Currency string `yaml:"currency"`
	Levels   []struct {
		Level      string `yaml:"level"`
		Cap        string `yaml:"cap"`
		SpendFloor string `yaml:"spend_floor"`
		MinDays    int    `yaml:"min_days"`
	} `yaml:"levels"`
}

// LoadTable reads a tier table from a YAML file:
//
//	currency: usd
//	levels:
//	  - {level: starter, cap: "50.00", spend_floor: "0.00", min_days: 0}
//	  - {level: plus, cap: "500.00", spend_floor: "50.00", min_days: 7}
func LoadTable(path string) (Table, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Table{}, fmt.Errorf("tier: read table %s: %w", path, err)
	}
	return parseTable(data)
}

func parseTable(data []byte) (Table, error) {
	var f tableFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return Table{}, fmt.Errorf("tier: parse table: %w", err)
	}
	if f.Currency == "" {
		f.Currency = "usd"
	}

	thresholds := make([]Threshold, 0, len(f.Levels))
	for _, row := range f.Levels {
		level, err := ParseLevel(row.Level)
		if err != nil {
			return Table{}, err
		}
		capAmount, err := types.ParseMajor(row.Cap, f.Currency)
		if err != nil {
			return Table{}, fmt.Errorf("tier: level %s cap: %w", level, err)
		}
		floor := types.Zero(f.Currency)
		if row.SpendFloor != "" {
			floor, err = types.ParseMajor(row.SpendFloor, f.Currency)
			if err != nil {
				return Table{}, fmt.Errorf("tier: level %s spend floor: %w", level, err)
			}
		}
		thresholds = append(thresholds, Threshold{
			Level:      level,
			Cap:        capAmount,
			SpendFloor: floor,
			MinDays:    row.MinDays,
		})
	}

	return NewTable(f.Currency, thresholds)
}
