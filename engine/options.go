package engine

import (
	"errors"
	"strings"

	"github.com/rs/zerolog"

	"github.com/timzifer/viewstate/config"
	"github.com/timzifer/viewstate/registry"
	"github.com/timzifer/viewstate/store"
	"github.com/timzifer/viewstate/telemetry"
	"github.com/timzifer/viewstate/translator"
)

// Option configures an Engine.
type Option func(*settings) error

type settings struct {
	logger            zerolog.Logger
	telemetry         telemetry.Collector
	telemetryProvided bool
	rules             []registry.Rule
	registry          *registry.Registry
	extractor         translator.PayloadExtractor
	config            *config.Config
	configPath        string
	initial           *store.Collection
}

// WithLogger provides a custom logger instance for the engine.
func WithLogger(logger zerolog.Logger) Option {
	return func(cfg *settings) error {
		if cfg == nil {
			return nil
		}
		cfg.logger = logger
		return nil
	}
}

// WithTelemetry injects a collector instance overriding the configuration-based behaviour.
func WithTelemetry(collector telemetry.Collector) Option {
	return func(cfg *settings) error {
		if cfg == nil {
			return nil
		}
		if collector == nil {
			collector = telemetry.Noop()
		}
		cfg.telemetry = collector
		cfg.telemetryProvided = true
		return nil
	}
}

// WithRules registers correlation rules in addition to configured ones.
func WithRules(rules ...registry.Rule) Option {
	return func(cfg *settings) error {
		if cfg == nil {
			return nil
		}
		cfg.rules = append(cfg.rules, rules...)
		return nil
	}
}

// WithRegistry supplies a registry the engine shares with its caller.
func WithRegistry(reg *registry.Registry) Option {
	return func(cfg *settings) error {
		if cfg == nil {
			return nil
		}
		if reg == nil {
			return errors.New("registry must not be nil")
		}
		cfg.registry = reg
		return nil
	}
}

// WithPayloadExtractor installs an extractor consulted before configured
// payload expressions and the event's own error payload.
func WithPayloadExtractor(extractor translator.PayloadExtractor) Option {
	return func(cfg *settings) error {
		if cfg == nil {
			return nil
		}
		cfg.extractor = extractor
		return nil
	}
}

// WithConfig supplies an already loaded configuration instance.
func WithConfig(cfgData *config.Config) Option {
	return func(cfg *settings) error {
		if cfg == nil {
			return nil
		}
		if cfgData == nil {
			return errors.New("configuration must not be nil")
		}
		cfg.config = cfgData
		return nil
	}
}

// WithConfigPath loads the configuration from path and enables Reload.
func WithConfigPath(path string) Option {
	return func(cfg *settings) error {
		if cfg == nil {
			return nil
		}
		cfg.configPath = strings.TrimSpace(path)
		return nil
	}
}

// WithInitial seeds the store, for example from a persisted snapshot.
func WithInitial(c *store.Collection) Option {
	return func(cfg *settings) error {
		if cfg == nil {
			return nil
		}
		cfg.initial = c
		return nil
	}
}
