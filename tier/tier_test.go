package tier

import "testing"

func TestLevelString(t *testing.T) {
	tests := []struct {
		level Level
		str   string
	}{
		{Starter, "starter"},
		{Plus, "plus"},
		{Pro, "pro"},
		{Max, "max"},
		{CustomLevel, "custom"},
		{Level(0), "level(0)"},
		{Level(99), "level(99)"},
	}

	for _, tt := range tests {
		t.Run(tt.str, func(t *testing.T) {
			if got := tt.level.String(); got != tt.str {
				t.Errorf("String: got %q, want %q", got, tt.str)
			}
		})
	}
}

func TestParseLevel(t *testing.T) {
	for _, level := range Levels() {
		t.Run(level.String(), func(t *testing.T) {
			parsed, err := ParseLevel(level.String())
			if err != nil {
				t.Fatalf("ParseLevel(%q) failed: %v", level.String(), err)
			}
			if parsed != level {
				t.Errorf("got %v, want %v", parsed, level)
			}
		})
	}

	if _, err := ParseLevel("platinum"); err == nil {
		t.Error("expected error for unknown level")
	}
	if _, err := ParseLevel(""); err == nil {
		t.Error("expected error for empty level")
	}
}

func TestLevelOrdering(t *testing.T) {
	levels := Levels()
	for i := 1; i < len(levels); i++ {
		if levels[i] <= levels[i-1] {
			t.Errorf("levels not ascending: %v before %v", levels[i-1], levels[i])
		}
	}
}

func TestLevelIsValid(t *testing.T) {
	for _, level := range Levels() {
		if !level.IsValid() {
			t.Errorf("%v should be valid", level)
		}
	}
	if Level(0).IsValid() {
		t.Error("zero level should be invalid")
	}
	if Level(99).IsValid() {
		t.Error("out-of-range level should be invalid")
	}
}

func TestMaxOf(t *testing.T) {
	tests := []struct {
		a, b, want Level
	}{
		{Starter, Plus, Plus},
		{Plus, Starter, Plus},
		{Pro, Pro, Pro},
		{Max, Starter, Max},
		{CustomLevel, Max, CustomLevel},
	}

	for _, tt := range tests {
		if got := MaxOf(tt.a, tt.b); got != tt.want {
			t.Errorf("MaxOf(%v, %v): got %v, want %v", tt.a, tt.b, got, tt.want)
		}
	}
}

func TestLevelTextRoundTrip(t *testing.T) {
	for _, level := range Levels() {
		data, err := level.MarshalText()
		if err != nil {
			t.Fatalf("MarshalText(%v) failed: %v", level, err)
		}

		var restored Level
		if err := restored.UnmarshalText(data); err != nil {
			t.Fatalf("UnmarshalText(%q) failed: %v", data, err)
		}
		if restored != level {
			t.Errorf("round-trip mismatch: got %v, want %v", restored, level)
		}
	}

	var l Level
	if err := l.UnmarshalText([]byte("bogus")); err == nil {
		t.Error("expected error for unknown level text")
	}
}
