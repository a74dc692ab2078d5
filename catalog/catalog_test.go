package catalog

import (
	"testing"

	"github.com/xraph/spendguard/types"
)

func TestResolve(t *testing.T) {
	c := New("usd", map[string]types.Money{
		"credits_10": types.USD(1000),
		"credits_50": types.USD(5000),
	})

	price, err := c.Resolve("credits_10")
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if !price.Equal(types.USD(1000)) {
		t.Errorf("price: got %v, want %v", price, types.USD(1000))
	}

	if _, err := c.Resolve("credits_999"); err == nil {
		t.Error("expected error for unknown product")
	}
}

func TestHas(t *testing.T) {
	c := New("usd", map[string]types.Money{"credits_10": types.USD(1000)})

	if !c.Has("credits_10") {
		t.Error("expected Has to report known product")
	}
	if c.Has("credits_999") {
		t.Error("expected Has to reject unknown product")
	}
}

func TestEmpty(t *testing.T) {
	c := Empty("usd")

	if c.Len() != 0 {
		t.Errorf("Len: got %d, want 0", c.Len())
	}
	if c.Currency() != "usd" {
		t.Errorf("Currency: got %q, want %q", c.Currency(), "usd")
	}
	if _, err := c.Resolve("anything"); err == nil {
		t.Error("expected error resolving against empty catalog")
	}
}

func TestNewClonesPrices(t *testing.T) {
	prices := map[string]types.Money{"credits_10": types.USD(1000)}
	c := New("usd", prices)

	// Mutating the input map must not affect the catalog.
	prices["credits_10"] = types.USD(1)
	delete(prices, "credits_10")

	price, err := c.Resolve("credits_10")
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if !price.Equal(types.USD(1000)) {
		t.Errorf("price: got %v, want %v", price, types.USD(1000))
	}
}

func TestParse(t *testing.T) {
	data := []byte(`
currency: usd
products:
  credits_10: "10.00"
  credits_50: "50.00"
  sub_monthly: "19.99"
`)

	c, err := Parse(data)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}

	if c.Len() != 3 {
		t.Errorf("Len: got %d, want 3", c.Len())
	}
	price, err := c.Resolve("sub_monthly")
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if !price.Equal(types.USD(1999)) {
		t.Errorf("price: got %v, want %v", price, types.USD(1999))
	}
}

func TestParseDefaultsCurrency(t *testing.T) {
	c, err := Parse([]byte(`products: {credits_10: "10.00"}`))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if c.Currency() != "usd" {
		t.Errorf("Currency: got %q, want %q", c.Currency(), "usd")
	}
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"BadYAML", "products: [broken"},
		{"BadAmount", `products: {credits_10: "abc"}`},
		{"NegativePrice", `products: {credits_10: "-5.00"}`},
		{"ZeroPrice", `products: {credits_10: "0.00"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Parse([]byte(tt.data)); err == nil {
				t.Error("expected parse error")
			}
		})
	}
}
