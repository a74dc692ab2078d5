package extension

import (
	"time"

	spendguard "github.com/xraph/spendguard"
	"github.com/xraph/spendguard/event"
	"github.com/xraph/spendguard/plugin"
	"github.com/xraph/spendguard/store"
)

// Option configures the Spendguard Forge extension.
type Option func(*Extension)

// WithStore sets the store for the wallet.
func WithStore(s store.Store) Option {
	return func(e *Extension) {
		e.store = s
	}
}

// WithSource sets the purchase event source for the wallet.
func WithSource(src event.Source) Option {
	return func(e *Extension) {
		e.source = src
	}
}

// WithWalletOption passes a spendguard.Option through to the underlying wallet.
func WithWalletOption(opt spendguard.Option) Option {
	return func(e *Extension) {
		e.walletOpts = append(e.walletOpts, opt)
	}
}

// WithPlugin registers a wallet plugin.
func WithPlugin(p plugin.Plugin) Option {
	return func(e *Extension) {
		e.walletOpts = append(e.walletOpts, spendguard.WithPlugin(p))
	}
}

// WithConfig sets the Forge extension configuration.
func WithConfig(cfg Config) Option {
	return func(e *Extension) { e.config = cfg }
}

// WithDisableMigrate prevents auto-migration on start.
func WithDisableMigrate() Option {
	return func(e *Extension) { e.config.DisableMigrate = true }
}

// WithRequireConfig requires config to be present in YAML files.
// If true and no config is found, Register returns an error.
func WithRequireConfig(require bool) Option {
	return func(e *Extension) { e.config.RequireConfig = require }
}

// WithReplayTimeout bounds the startup snapshot replay.
func WithReplayTimeout(d time.Duration) Option {
	return func(e *Extension) { e.config.ReplayTimeout = d }
}

// WithStoreTimeout bounds each store operation.
func WithStoreTimeout(d time.Duration) Option {
	return func(e *Extension) { e.config.StoreTimeout = d }
}

// WithRetentionMonths sets how many months of applied event ids are kept.
func WithRetentionMonths(months int) Option {
	return func(e *Extension) { e.config.RetentionMonths = months }
}

// WithTierTablePath sets the path to a YAML tier table.
func WithTierTablePath(path string) Option {
	return func(e *Extension) { e.config.TierTablePath = path }
}

// WithCatalogPath sets the path to a YAML product price catalog.
func WithCatalogPath(path string) Option {
	return func(e *Extension) { e.config.CatalogPath = path }
}
