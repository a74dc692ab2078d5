// Package tier defines the ordered spending-tier levels and the pure
// calculator that maps lifetime spend and account age onto a level.
package tier

import (
	"fmt"
)

// Level is an ordered spending tier. Higher levels grant larger monthly caps
// and are unlocked by historical-spend and elapsed-days thresholds. Once an
// account reaches a level it never moves back down; demotion is an explicit
// administrative action outside this package.
type Level int

const (
	// Starter is the entry level every account begins at.
	Starter Level = iota + 1
	// Plus unlocks after the first week of paid history.
	Plus
	// Pro unlocks after two weeks and moderate lifetime spend.
	Pro
	// Max is the highest threshold-based level.
	Max
	// CustomLevel marks an account with an operator-assigned monthly limit.
	// It is sticky: the calculator never overwrites it.
	CustomLevel
)

// Levels lists all levels in ascending order.
func Levels() []Level {
	return []Level{Starter, Plus, Pro, Max, CustomLevel}
}

// String returns the persisted string form of the level.
func (l Level) String() string {
	switch l {
	case Starter:
		return "starter"
	case Plus:
		return "plus"
	case Pro:
		return "pro"
	case Max:
		return "max"
	case CustomLevel:
		return "custom"
	default:
		return fmt.Sprintf("level(%d)", int(l))
	}
}

// ParseLevel parses the persisted string form of a level.
func ParseLevel(s string) (Level, error) {
	switch s {
	case "starter":
		return Starter, nil
	case "plus":
		return Plus, nil
	case "pro":
		return Pro, nil
	case "max":
		return Max, nil
	case "custom":
		return CustomLevel, nil
	default:
		return 0, fmt.Errorf("tier: unknown level %q", s)
	}
}

// IsValid reports whether l is a defined level.
func (l Level) IsValid() bool {
	return l >= Starter && l <= CustomLevel
}

// IsCustom reports whether l is the operator-assigned level.
func (l Level) IsCustom() bool { return l == CustomLevel }

// MaxOf returns the higher of two levels.
func MaxOf(a, b Level) Level {
	if a > b {
		return a
	}
	return b
}

// MarshalText implements encoding.TextMarshaler.
func (l Level) MarshalText() ([]byte, error) {
	return []byte(l.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (l *Level) UnmarshalText(data []byte) error {
	parsed, err := ParseLevel(string(data))
	if err != nil {
		return err
	}
	*l = parsed
	return nil
}
