// Package engine wires the registry, store, translator and reader into one
// unit that consumes events and answers status queries.
package engine

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/timzifer/viewstate/config"
	"github.com/timzifer/viewstate/internal/payload"
	"github.com/timzifer/viewstate/internal/reload"
	"github.com/timzifer/viewstate/registry"
	"github.com/timzifer/viewstate/selectors"
	"github.com/timzifer/viewstate/store"
	"github.com/timzifer/viewstate/telemetry"
	"github.com/timzifer/viewstate/translator"
)

// ErrNoConfigPath is returned by Reload when the engine was built without a configuration path.
var ErrNoConfigPath = errors.New("reload not supported without configuration path")

// Engine correlates dispatched events with view state.
type Engine struct {
	store      *store.Store
	translator *translator.Translator
	reader     *selectors.Reader
	logger     zerolog.Logger
	collector  telemetry.Collector

	custom   translator.PayloadExtractor
	payloads atomic.Pointer[payload.Extractor]

	mu          sync.Mutex
	configRules []registry.Rule
	config      *config.Config
	configPath string
	watcher    *reload.Watcher
}

// New builds an engine. Rules come from WithRegistry, WithRules and the
// configuration, in that order. Reload only exchanges the configured rules.
func New(opts ...Option) (*Engine, error) {
	cfg := settings{
		logger:    zerolog.Nop(),
		telemetry: telemetry.Noop(),
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(&cfg); err != nil {
			return nil, err
		}
	}

	if cfg.config == nil && cfg.configPath != "" {
		loaded, err := config.Load(cfg.configPath)
		if err != nil {
			return nil, fmt.Errorf("load configuration: %w", err)
		}
		cfg.config = loaded
	}

	if !cfg.telemetryProvided && cfg.config != nil {
		collector, err := newTelemetryCollector(cfg.config.Telemetry)
		if err != nil {
			fmt.Fprintf(os.Stderr, "telemetry disabled: %v\n", err)
			collector = telemetry.Noop()
		}
		cfg.telemetry = collector
	}

	e := &Engine{
		logger:     cfg.logger.With().Str("component", "viewstate_engine").Logger(),
		collector:  cfg.telemetry,
		custom:     cfg.extractor,
		config:     cfg.config,
		configPath: cfg.configPath,
	}

	reg := cfg.registry
	if reg == nil {
		reg = registry.New()
	}
	reg.Add(cfg.rules...)
	if cfg.config != nil {
		e.configRules = cfg.config.RegistryRules()
		reg.Add(e.configRules...)
		extractor, err := payload.Compile(cfg.config.PayloadExpressions(), payload.WithLogger(cfg.logger))
		if err != nil {
			return nil, err
		}
		e.payloads.Store(extractor)
	}

	e.store = store.New(
		store.WithLogger(cfg.logger),
		store.WithTelemetry(cfg.telemetry),
		store.WithInitial(cfg.initial),
	)
	e.translator = translator.New(reg,
		translator.WithLogger(cfg.logger),
		translator.WithTelemetry(cfg.telemetry),
		translator.WithPayloadExtractor(e.extractPayload),
	)
	e.reader = selectors.NewReader(e.store)
	e.store.Subscribe(e.logChanges)

	if cfg.config != nil && cfg.config.HotReload && cfg.configPath != "" {
		watcher, err := reload.NewWatcher(cfg.configPath, cfg.config)
		if err != nil {
			return nil, fmt.Errorf("create config watcher: %w", err)
		}
		e.watcher = watcher
	}
	return e, nil
}

// Dispatch translates event and applies its commands as one step. It reports
// whether the view state changed.
func (e *Engine) Dispatch(event translator.Event) bool {
	cmds := e.translator.Translate(event)
	if len(cmds) == 0 {
		return false
	}
	return e.store.Apply(cmds...)
}

// Run dispatches events in arrival order until the channel closes or ctx is
// cancelled. With hot reload enabled the configuration files are polled in
// between events.
func (e *Engine) Run(ctx context.Context, events <-chan translator.Event) error {
	e.mu.Lock()
	watcher := e.watcher
	interval := e.config.ReloadEvery()
	e.mu.Unlock()

	if watcher == nil {
		return e.translator.Run(ctx, events, func(cmds ...store.Command) {
			e.store.Apply(cmds...)
		})
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-events:
			if !ok {
				return nil
			}
			e.Dispatch(event)
		case <-ticker.C:
			e.checkReload(watcher)
		}
	}
}

func (e *Engine) checkReload(watcher *reload.Watcher) {
	changes, err := watcher.Check()
	if err != nil {
		e.logger.Error().Err(err).Msg("failed to check configuration changes")
		return
	}
	if len(changes) == 0 {
		return
	}
	if err := e.Reload(); err != nil {
		e.logger.Error().Err(err).Strs("files", changes).Msg("failed to reload configuration")
		return
	}
	for _, file := range changes {
		e.collector.IncHotReload(file)
	}
}

// Reload loads the configuration from disk and replaces the configured rules
// and payload expressions in the active registry. Rules from WithRegistry,
// WithRules and Register stay registered. Tracked statuses are kept.
func (e *Engine) Reload() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.configPath == "" {
		return ErrNoConfigPath
	}
	cfg, err := config.Load(e.configPath)
	if err != nil {
		return err
	}
	extractor, err := payload.Compile(cfg.PayloadExpressions(), payload.WithLogger(e.logger))
	if err != nil {
		return err
	}

	rules := cfg.RegistryRules()
	e.translator.Registry().Swap(e.configRules, rules)
	e.configRules = rules
	e.payloads.Store(extractor)
	e.config = cfg
	if e.watcher != nil {
		if err := e.watcher.Update(e.configPath, cfg); err != nil {
			e.logger.Error().Err(err).Msg("failed to update watcher state")
		}
	}
	e.logger.Info().Int("rules", len(cfg.Rules)).Str("path", e.configPath).Msg("configuration reloaded")
	return nil
}

// Register adds rules to the active registry.
func (e *Engine) Register(rules ...registry.Rule) {
	e.translator.Registry().Add(rules...)
}

// ReplaceRules resets the active registry to rules only. A later Reload adds
// the configured rules again.
func (e *Engine) ReplaceRules(rules ...registry.Rule) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.translator.Registry().Replace(rules...)
	e.configRules = nil
}

// Registry returns the active registry.
func (e *Engine) Registry() *registry.Registry {
	return e.translator.Registry()
}

// Config returns the configuration currently in effect, nil when none was supplied.
func (e *Engine) Config() *config.Config {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.config
}

// Reader returns the memoizing status reader bound to the engine's store.
func (e *Engine) Reader() *selectors.Reader {
	return e.reader
}

// Snapshot returns the current collection.
func (e *Engine) Snapshot() *store.Collection {
	return e.store.Snapshot()
}

// Subscribe registers a listener for view state changes.
func (e *Engine) Subscribe(listener store.Listener) func() {
	return e.store.Subscribe(listener)
}

func (e *Engine) extractPayload(event translator.Event) (any, bool) {
	if e.custom != nil {
		if value, ok := e.custom(event); ok {
			return value, true
		}
	}
	return e.payloads.Load().Extract(event)
}

func (e *Engine) logChanges(prev, next *store.Collection) {
	if e.logger.GetLevel() > zerolog.DebugLevel {
		return
	}
	for _, entry := range next.All() {
		if old, ok := prev.Get(entry.ID); ok && old == entry {
			continue
		}
		e.logger.Debug().Str("id", entry.ID).Str("status", entry.Status.String()).Msg("status changed")
	}
	for _, id := range prev.IDs() {
		if _, ok := next.Get(id); !ok {
			e.logger.Debug().Str("id", id).Msg("status reset")
		}
	}
}

func newTelemetryCollector(cfg config.TelemetryConfig) (telemetry.Collector, error) {
	if !cfg.Enabled {
		return telemetry.Noop(), nil
	}
	provider := strings.ToLower(strings.TrimSpace(cfg.Provider))
	switch provider {
	case "", "prometheus":
		collector, err := telemetry.NewPrometheusCollector(nil)
		if err != nil {
			return nil, err
		}
		return collector, nil
	default:
		return telemetry.Noop(), fmt.Errorf("unsupported telemetry provider %q", cfg.Provider)
	}
}
