package plugin

import (
	"context"
	"fmt"
	"log/slog"
	"reflect"
	"sync"
	"time"

	"github.com/xraph/spendguard/account"
	"github.com/xraph/spendguard/event"
	"github.com/xraph/spendguard/tier"
	"github.com/xraph/spendguard/types"
)

// Registry manages all registered plugins and provides efficient dispatch.
// It uses type-cached discovery for O(1) dispatch performance.
type Registry struct {
	mu      sync.RWMutex
	plugins []Plugin
	logger  *slog.Logger

	// Type-cached plugin lists for efficient dispatch
	onInit             []OnInit
	onShutdown         []OnShutdown
	onPurchaseApplied  []OnPurchaseApplied
	onPurchaseRejected []OnPurchaseRejected
	onDuplicateSkipped []OnDuplicateSkipped
	onTierChanged      []OnTierChanged
	onMonthlyReset     []OnMonthlyReset
	onLimitExceeded    []OnLimitExceeded
	onUsageRecorded    []OnUsageRecorded
	onReplayCompleted  []OnReplayCompleted
	onStateRebuilt     []OnStateRebuilt
}

// NewRegistry creates a new plugin registry.
func NewRegistry() *Registry {
	return &Registry{
		logger: slog.Default(),
	}
}

// WithLogger sets the logger for the registry.
func (r *Registry) WithLogger(logger *slog.Logger) *Registry {
	r.logger = logger
	return r
}

// Register adds a plugin to the registry and caches its interfaces.
func (r *Registry) Register(p Plugin) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	// Check for duplicate
	for _, existing := range r.plugins {
		if existing.Name() == p.Name() {
			return fmt.Errorf("plugin: duplicate registration: %s", p.Name())
		}
	}

	r.plugins = append(r.plugins, p)

	// Type-switch to cache interfaces
	if v, ok := p.(OnInit); ok {
		r.onInit = append(r.onInit, v)
	}
	if v, ok := p.(OnShutdown); ok {
		r.onShutdown = append(r.onShutdown, v)
	}
	if v, ok := p.(OnPurchaseApplied); ok {
		r.onPurchaseApplied = append(r.onPurchaseApplied, v)
	}
	if v, ok := p.(OnPurchaseRejected); ok {
		r.onPurchaseRejected = append(r.onPurchaseRejected, v)
	}
	if v, ok := p.(OnDuplicateSkipped); ok {
		r.onDuplicateSkipped = append(r.onDuplicateSkipped, v)
	}
	if v, ok := p.(OnTierChanged); ok {
		r.onTierChanged = append(r.onTierChanged, v)
	}
	if v, ok := p.(OnMonthlyReset); ok {
		r.onMonthlyReset = append(r.onMonthlyReset, v)
	}
	if v, ok := p.(OnLimitExceeded); ok {
		r.onLimitExceeded = append(r.onLimitExceeded, v)
	}
	if v, ok := p.(OnUsageRecorded); ok {
		r.onUsageRecorded = append(r.onUsageRecorded, v)
	}
	if v, ok := p.(OnReplayCompleted); ok {
		r.onReplayCompleted = append(r.onReplayCompleted, v)
	}
	if v, ok := p.(OnStateRebuilt); ok {
		r.onStateRebuilt = append(r.onStateRebuilt, v)
	}

	r.logger.Info("plugin registered",
		"name", p.Name(),
		"interfaces", r.getImplementedInterfaces(p),
	)

	return nil
}

// getImplementedInterfaces returns a list of interfaces implemented by the plugin.
func (r *Registry) getImplementedInterfaces(p Plugin) []string {
	var interfaces []string
	v := reflect.TypeOf(p)

	// Check each interface
	checkInterface := func(iface reflect.Type, name string) {
		if v.Implements(iface) {
			interfaces = append(interfaces, name)
		}
	}

	// List all interfaces to check
	checkInterface(reflect.TypeOf((*OnInit)(nil)).Elem(), "OnInit")
	checkInterface(reflect.TypeOf((*OnShutdown)(nil)).Elem(), "OnShutdown")
	checkInterface(reflect.TypeOf((*OnPurchaseApplied)(nil)).Elem(), "OnPurchaseApplied")
	checkInterface(reflect.TypeOf((*OnPurchaseRejected)(nil)).Elem(), "OnPurchaseRejected")
	checkInterface(reflect.TypeOf((*OnDuplicateSkipped)(nil)).Elem(), "OnDuplicateSkipped")
	checkInterface(reflect.TypeOf((*OnTierChanged)(nil)).Elem(), "OnTierChanged")
	checkInterface(reflect.TypeOf((*OnMonthlyReset)(nil)).Elem(), "OnMonthlyReset")
	checkInterface(reflect.TypeOf((*OnLimitExceeded)(nil)).Elem(), "OnLimitExceeded")
	checkInterface(reflect.TypeOf((*OnUsageRecorded)(nil)).Elem(), "OnUsageRecorded")
	checkInterface(reflect.TypeOf((*OnReplayCompleted)(nil)).Elem(), "OnReplayCompleted")
	checkInterface(reflect.TypeOf((*OnStateRebuilt)(nil)).Elem(), "OnStateRebuilt")

	return interfaces
}

// Get returns a plugin by name.
func (r *Registry) Get(name string) Plugin {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, p := range r.plugins {
		if p.Name() == name {
			return p
		}
	}
	return nil
}

// List returns all registered plugins.
func (r *Registry) List() []Plugin {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]Plugin, len(r.plugins))
	copy(result, r.plugins)
	return result
}

// Count returns the number of registered plugins.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.plugins)
}

// ──────────────────────────────────────────────────
// Event emission methods
// ──────────────────────────────────────────────────

// EmitInit calls OnInit for all plugins that implement it.
func (r *Registry) EmitInit(ctx context.Context, wallet interface{}) {
	r.mu.RLock()
	plugins := r.onInit
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnInit(ctx, wallet)
		}); err != nil {
			r.logger.Warn("plugin OnInit failed",
				"plugin", p.Name(),
				"error", err,
			)
		}
	}
}

// EmitShutdown calls OnShutdown for all plugins that implement it.
func (r *Registry) EmitShutdown(ctx context.Context) {
	r.mu.RLock()
	plugins := r.onShutdown
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnShutdown(ctx)
		}); err != nil {
			r.logger.Warn("plugin OnShutdown failed",
				"plugin", p.Name(),
				"error", err,
			)
		}
	}
}

// EmitPurchaseApplied emits a purchase applied event.
func (r *Registry) EmitPurchaseApplied(ctx context.Context, ev event.Purchase) {
	r.mu.RLock()
	plugins := r.onPurchaseApplied
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnPurchaseApplied(ctx, ev)
		}); err != nil {
			r.logger.Warn("plugin OnPurchaseApplied failed",
				"plugin", p.Name(),
				"error", err,
			)
		}
	}
}

// EmitPurchaseRejected emits a purchase rejected event.
func (r *Registry) EmitPurchaseRejected(ctx context.Context, ev event.Purchase, reason error) {
	r.mu.RLock()
	plugins := r.onPurchaseRejected
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnPurchaseRejected(ctx, ev, reason)
		}); err != nil {
			r.logger.Warn("plugin OnPurchaseRejected failed",
				"plugin", p.Name(),
				"error", err,
			)
		}
	}
}

// EmitDuplicateSkipped emits a duplicate skipped event.
func (r *Registry) EmitDuplicateSkipped(ctx context.Context, eventID string) {
	r.mu.RLock()
	plugins := r.onDuplicateSkipped
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnDuplicateSkipped(ctx, eventID)
		}); err != nil {
			r.logger.Warn("plugin OnDuplicateSkipped failed",
				"plugin", p.Name(),
				"error", err,
			)
		}
	}
}

// EmitTierChanged emits a tier changed event.
func (r *Registry) EmitTierChanged(ctx context.Context, from, to tier.Level) {
	r.mu.RLock()
	plugins := r.onTierChanged
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnTierChanged(ctx, from, to)
		}); err != nil {
			r.logger.Warn("plugin OnTierChanged failed",
				"plugin", p.Name(),
				"error", err,
			)
		}
	}
}

// EmitMonthlyReset emits a monthly reset event.
func (r *Registry) EmitMonthlyReset(ctx context.Context, previousSpend types.Money, resetAt time.Time) {
	r.mu.RLock()
	plugins := r.onMonthlyReset
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnMonthlyReset(ctx, previousSpend, resetAt)
		}); err != nil {
			r.logger.Warn("plugin OnMonthlyReset failed",
				"plugin", p.Name(),
				"error", err,
			)
		}
	}
}

// EmitLimitExceeded emits a limit exceeded event.
func (r *Registry) EmitLimitExceeded(ctx context.Context, attempted, remaining types.Money) {
	r.mu.RLock()
	plugins := r.onLimitExceeded
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnLimitExceeded(ctx, attempted, remaining)
		}); err != nil {
			r.logger.Warn("plugin OnLimitExceeded failed",
				"plugin", p.Name(),
				"error", err,
			)
		}
	}
}

// EmitUsageRecorded emits a usage recorded event.
func (r *Registry) EmitUsageRecorded(ctx context.Context, amount types.Money) {
	r.mu.RLock()
	plugins := r.onUsageRecorded
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnUsageRecorded(ctx, amount)
		}); err != nil {
			r.logger.Warn("plugin OnUsageRecorded failed",
				"plugin", p.Name(),
				"error", err,
			)
		}
	}
}

// EmitReplayCompleted emits a replay completed event.
func (r *Registry) EmitReplayCompleted(ctx context.Context, replayed int, elapsed time.Duration) {
	r.mu.RLock()
	plugins := r.onReplayCompleted
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnReplayCompleted(ctx, replayed, elapsed)
		}); err != nil {
			r.logger.Warn("plugin OnReplayCompleted failed",
				"plugin", p.Name(),
				"error", err,
			)
		}
	}
}

// EmitStateRebuilt emits a state rebuilt event.
func (r *Registry) EmitStateRebuilt(ctx context.Context, state *account.State) {
	r.mu.RLock()
	plugins := r.onStateRebuilt
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnStateRebuilt(ctx, state)
		}); err != nil {
			r.logger.Warn("plugin OnStateRebuilt failed",
				"plugin", p.Name(),
				"error", err,
			)
		}
	}
}

// callWithTimeout calls a plugin function with a timeout.
// Plugins should never block the ledger pipeline.
func (r *Registry) callWithTimeout(ctx context.Context, pluginName string, fn func() error) error {
	done := make(chan error, 1)

	go func() {
		done <- fn()
	}()

	select {
	case err := <-done:
		return err
	case <-time.After(5 * time.Second):
		return fmt.Errorf("plugin timeout: %s", pluginName)
	case <-ctx.Done():
		return ctx.Err()
	}
}
