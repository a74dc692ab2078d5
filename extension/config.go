package extension

import "time"

// Config holds the Spendguard extension configuration.
// Fields can be set programmatically via Option functions or loaded from
// YAML configuration files (under "extensions.spendguard" or "spendguard" keys).
type Config struct {
	// DisableMigrate prevents auto-migration on start.
	DisableMigrate bool `json:"disable_migrate" mapstructure:"disable_migrate" yaml:"disable_migrate"`

	// ReplayTimeout bounds the startup snapshot replay (default: 30s).
	ReplayTimeout time.Duration `json:"replay_timeout" mapstructure:"replay_timeout" yaml:"replay_timeout"`

	// StoreTimeout bounds each store operation (default: 5s).
	StoreTimeout time.Duration `json:"store_timeout" mapstructure:"store_timeout" yaml:"store_timeout"`

	// RetentionMonths is how many months of applied event ids are kept for
	// deduplication before being purged at startup (default: 13).
	RetentionMonths int `json:"retention_months" mapstructure:"retention_months" yaml:"retention_months"`

	// TierTablePath points to a YAML tier table. Empty means the built-in
	// table.
	TierTablePath string `json:"tier_table_path" mapstructure:"tier_table_path" yaml:"tier_table_path"`

	// CatalogPath points to a YAML product price catalog. Empty means no
	// catalog; events must carry resolved amounts.
	CatalogPath string `json:"catalog_path" mapstructure:"catalog_path" yaml:"catalog_path"`

	// ChangeBuffer is the change notification channel capacity (default: 64).
	ChangeBuffer int `json:"change_buffer" mapstructure:"change_buffer" yaml:"change_buffer"`

	// RequireConfig requires config to be present in YAML files.
	// If true and no config is found, Register returns an error.
	RequireConfig bool `json:"-" yaml:"-"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		ReplayTimeout:   30 * time.Second,
		StoreTimeout:    5 * time.Second,
		RetentionMonths: 13,
		ChangeBuffer:    64,
	}
}
