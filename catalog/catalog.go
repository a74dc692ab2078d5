// Package catalog provides the static product-identifier → price table used
// to resolve purchase events that carry only a product identifier. The table
// is immutable configuration data, loaded once at startup.
package catalog

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/xraph/spendguard/types"
)

// Catalog maps product identifiers to their prices.
type Catalog struct {
	currency string
	prices   map[string]types.Money
}

// New builds a catalog from an explicit price map.
func New(currency string, prices map[string]types.Money) Catalog {
	cloned := make(map[string]types.Money, len(prices))
	for k, v := range prices {
		cloned[k] = v
	}
	return Catalog{currency: currency, prices: cloned}
}

// Empty returns a catalog with no products. Events must then carry their own
// resolved amounts.
func Empty(currency string) Catalog {
	return Catalog{currency: currency, prices: map[string]types.Money{}}
}

// Currency returns the currency all catalog prices are denominated in.
func (c Catalog) Currency() string { return c.currency }

// Len returns the number of products in the catalog.
func (c Catalog) Len() int { return len(c.prices) }

// Resolve returns the price for a product identifier.
func (c Catalog) Resolve(productID string) (types.Money, error) {
	price, ok := c.prices[productID]
	if !ok {
		return types.Money{}, fmt.Errorf("catalog: unknown product %q", productID)
	}
	return price, nil
}

// Has reports whether the catalog knows the product identifier.
func (c Catalog) Has(productID string) bool {
	_, ok := c.prices[productID]
	return ok
}

// ──────────────────────────────────────────────────
// YAML loading
// ──────────────────────────────────────────────────

type catalogFile struct {
	Currency string            `yaml:"currency"`
	Products map[string]string `yaml:"products"`
}

// Load reads a catalog from a YAML file:
//
//	currency: usd
//	products:
//	  credits_10: "10.00"
//	  credits_50: "50.00"
//	  sub_monthly: "19.99"
func Load(path string) (Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Catalog{}, fmt.Errorf("catalog: read %s: %w", path, err)
	}
	return Parse(data)
}

// Parse parses YAML catalog bytes.
func Parse(data []byte) (Catalog, error) {
	var f catalogFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return Catalog{}, fmt.Errorf("catalog: parse: %w", err)
	}
	if f.Currency == "" {
		f.Currency = "usd"
	}

	prices := make(map[string]types.Money, len(f.Products))
	for product, amount := range f.Products {
		m, err := types.ParseMajor(amount, f.Currency)
		if err != nil {
			return Catalog{}, fmt.Errorf("catalog: product %q: %w", product, err)
		}
		if !m.IsPositive() {
			return Catalog{}, fmt.Errorf("catalog: product %q: price must be positive", product)
		}
		prices[product] = m
	}

	return Catalog{currency: f.Currency, prices: prices}, nil
}
