// Package extension provides the Forge extension adapter for Spendguard.
//
// It implements the forge.Extension interface to integrate Spendguard
// into a Forge application with automatic dependency discovery,
// DI registration, and lifecycle management.
//
// Configuration can be provided programmatically via Option functions
// or via YAML configuration files under "extensions.spendguard" or
// "spendguard" keys.
package extension

import (
	"context"
	"errors"

	"github.com/xraph/forge"
	"github.com/xraph/vessel"

	spendguard "github.com/xraph/spendguard"
	"github.com/xraph/spendguard/catalog"
	"github.com/xraph/spendguard/event"
	"github.com/xraph/spendguard/store"
	"github.com/xraph/spendguard/store/memory"
	"github.com/xraph/spendguard/tier"
)

// ExtensionName is the name registered with Forge.
const ExtensionName = "spendguard"

// ExtensionDescription is the human-readable description.
const ExtensionDescription = "Spending-tier and purchase reconciliation engine"

// ExtensionVersion is the semantic version.
const ExtensionVersion = "0.1.0"

// Ensure Extension implements forge.Extension at compile time.
var _ forge.Extension = (*Extension)(nil)

// Extension adapts Spendguard as a Forge extension.
type Extension struct {
	*forge.BaseExtension

	config     Config
	wallet     *spendguard.Wallet
	store      store.Store
	source     event.Source
	walletOpts []spendguard.Option
}

// New creates a new Spendguard Forge extension with the given options.
func New(opts ...Option) *Extension {
	e := &Extension{
		BaseExtension: forge.NewBaseExtension(ExtensionName, ExtensionVersion, ExtensionDescription),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Wallet returns the underlying Wallet instance.
// This is nil until Register is called.
func (e *Extension) Wallet() *spendguard.Wallet { return e.wallet }

// Register implements [forge.Extension]. It loads configuration,
// initializes the wallet, and registers it in the DI container.
func (e *Extension) Register(fapp forge.App) error {
	if err := e.BaseExtension.Register(fapp); err != nil {
		return err
	}

	if err := e.loadConfiguration(); err != nil {
		return err
	}

	// Use memory store if no store was provided programmatically.
	if e.store == nil {
		e.store = memory.New()
	}

	// Use an unbuffered channel source if none was provided.
	if e.source == nil {
		e.source = event.NewChanSource(0)
	}

	// Build wallet options from resolved config.
	opts, err := e.buildWalletOpts()
	if err != nil {
		return err
	}

	e.wallet = spendguard.New(e.store, e.source, opts...)

	return vessel.Provide(fapp.Container(), func() (*spendguard.Wallet, error) {
		return e.wallet, nil
	})
}

// Start implements [forge.Extension].
func (e *Extension) Start(ctx context.Context) error {
	if e.wallet == nil {
		return errors.New("spendguard: extension not initialized")
	}

	if err := e.wallet.Start(ctx); err != nil {
		return err
	}

	e.MarkStarted()
	return nil
}

// Stop implements [forge.Extension].
func (e *Extension) Stop(_ context.Context) error {
	if e.wallet != nil {
		if err := e.wallet.Stop(); err != nil {
			e.MarkStopped()
			return err
		}
	}
	e.MarkStopped()
	return nil
}

// Health implements [forge.Extension].
func (e *Extension) Health(ctx context.Context) error {
	if e.store == nil {
		return errors.New("spendguard: store not initialized")
	}
	return e.store.Ping(ctx)
}

// buildWalletOpts constructs spendguard.Option values from the resolved config.
func (e *Extension) buildWalletOpts() ([]spendguard.Option, error) {
	opts := make([]spendguard.Option, 0, len(e.walletOpts)+6)

	// Apply config-derived options.
	if e.config.ReplayTimeout > 0 {
		opts = append(opts, spendguard.WithReplayTimeout(e.config.ReplayTimeout))
	}
	if e.config.StoreTimeout > 0 {
		opts = append(opts, spendguard.WithStoreTimeout(e.config.StoreTimeout))
	}
	if e.config.RetentionMonths > 0 {
		opts = append(opts, spendguard.WithRetention(e.config.RetentionMonths))
	}
	if e.config.ChangeBuffer > 0 {
		opts = append(opts, spendguard.WithChangeBuffer(e.config.ChangeBuffer))
	}
	if e.config.DisableMigrate {
		opts = append(opts, spendguard.WithoutMigrate())
	}

	if e.config.TierTablePath != "" {
		table, err := tier.LoadTable(e.config.TierTablePath)
		if err != nil {
			return nil, err
		}
		opts = append(opts, spendguard.WithTierTable(table))
	}

	if e.config.CatalogPath != "" {
		cat, err := catalog.Load(e.config.CatalogPath)
		if err != nil {
			return nil, err
		}
		opts = append(opts, spendguard.WithCatalog(cat))
	}

	// Append any pass-through wallet options.
	opts = append(opts, e.walletOpts...)

	return opts, nil
}

// --- Config Loading (mirrors grove/shield extension pattern) ---

// loadConfiguration loads config from YAML files or programmatic sources.
func (e *Extension) loadConfiguration() error {
	programmaticConfig := e.config

	// Try loading from config file.
	fileConfig, configLoaded := e.tryLoadFromConfigFile()

	if !configLoaded {
		if programmaticConfig.RequireConfig {
			return errors.New("spendguard: configuration is required but not found in config files; " +
				"ensure 'extensions.spendguard' or 'spendguard' key exists in your config")
		}

		// Use programmatic config merged with defaults.
		e.config = e.mergeWithDefaults(programmaticConfig)
	} else {
		// Config loaded from YAML -- merge with programmatic options.
		e.config = e.mergeConfigurations(fileConfig, programmaticConfig)
	}

	e.Logger().Debug("spendguard: configuration loaded",
		forge.F("disable_migrate", e.config.DisableMigrate),
		forge.F("replay_timeout", e.config.ReplayTimeout),
		forge.F("store_timeout", e.config.StoreTimeout),
		forge.F("retention_months", e.config.RetentionMonths),
		forge.F("tier_table_path", e.config.TierTablePath),
		forge.F("catalog_path", e.config.CatalogPath),
	)

	return nil
}

// tryLoadFromConfigFile attempts to load config from YAML files.
func (e *Extension) tryLoadFromConfigFile() (Config, bool) {
	cm := e.App().Config()
	var cfg Config

	// Try "extensions.spendguard" first (namespaced pattern).
	if cm.IsSet("extensions.spendguard") {
		if err := cm.Bind("extensions.spendguard", &cfg); err == nil {
			e.Logger().Debug("spendguard: loaded config from file",
				forge.F("key", "extensions.spendguard"),
			)
			return cfg, true
		}
		e.Logger().Warn("spendguard: failed to bind extensions.spendguard config",
			forge.F("error", "bind failed"),
		)
	}

	// Try legacy "spendguard" key.
	if cm.IsSet("spendguard") {
		if err := cm.Bind("spendguard", &cfg); err == nil {
			e.Logger().Debug("spendguard: loaded config from file",
				forge.F("key", "spendguard"),
			)
			return cfg, true
		}
		e.Logger().Warn("spendguard: failed to bind spendguard config",
			forge.F("error", "bind failed"),
		)
	}

	return Config{}, false
}

// mergeWithDefaults fills zero-valued fields with defaults.
func (e *Extension) mergeWithDefaults(cfg Config) Config {
	defaults := DefaultConfig()
	if cfg.ReplayTimeout == 0 {
		cfg.ReplayTimeout = defaults.ReplayTimeout
	}
	if cfg.StoreTimeout == 0 {
		cfg.StoreTimeout = defaults.StoreTimeout
	}
	if cfg.RetentionMonths == 0 {
		cfg.RetentionMonths = defaults.RetentionMonths
	}
	if cfg.ChangeBuffer == 0 {
		cfg.ChangeBuffer = defaults.ChangeBuffer
	}
	return cfg
}

// mergeConfigurations merges YAML config with programmatic options.
// YAML config takes precedence for most fields; programmatic bool flags fill gaps.
func (e *Extension) mergeConfigurations(yamlConfig, programmaticConfig Config) Config {
	// Programmatic bool flags override when true.
	if programmaticConfig.DisableMigrate {
		yamlConfig.DisableMigrate = true
	}

	// String fields: YAML takes precedence.
	if yamlConfig.TierTablePath == "" && programmaticConfig.TierTablePath != "" {
		yamlConfig.TierTablePath = programmaticConfig.TierTablePath
	}
	if yamlConfig.CatalogPath == "" && programmaticConfig.CatalogPath != "" {
		yamlConfig.CatalogPath = programmaticConfig.CatalogPath
	}

	// Duration/int fields: YAML takes precedence, programmatic fills gaps.
	if yamlConfig.ReplayTimeout == 0 && programmaticConfig.ReplayTimeout != 0 {
		yamlConfig.ReplayTimeout = programmaticConfig.ReplayTimeout
	}
	if yamlConfig.StoreTimeout == 0 && programmaticConfig.StoreTimeout != 0 {
		yamlConfig.StoreTimeout = programmaticConfig.StoreTimeout
	}
	if yamlConfig.RetentionMonths == 0 && programmaticConfig.RetentionMonths != 0 {
		yamlConfig.RetentionMonths = programmaticConfig.RetentionMonths
	}
	if yamlConfig.ChangeBuffer == 0 && programmaticConfig.ChangeBuffer != 0 {
		yamlConfig.ChangeBuffer = programmaticConfig.ChangeBuffer
	}

	// Fill remaining zeros with defaults.
	return e.mergeWithDefaults(yamlConfig)
}
