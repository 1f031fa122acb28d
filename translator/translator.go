// Package translator maps external events onto view state commands using a
// correlation registry.
//
// Translation is a pure, synchronous function of the event and the current
// registry. An event without registered roles yields no commands; an event
// with several roles yields one command per role, in the order start, reset,
// error.
package translator

import (
	"context"
	"sync/atomic"

	"github.com/rs/zerolog"

	"github.com/timzifer/viewstate/registry"
	"github.com/timzifer/viewstate/store"
	"github.com/timzifer/viewstate/telemetry"
)

// PayloadExtractor resolves the error payload for an event. It reports false
// when it has no opinion, in which case ErrorCarrier is consulted.
type PayloadExtractor func(Event) (any, bool)

// Option configures a Translator.
type Option func(*Translator)

// WithLogger attaches a logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(t *Translator) {
		t.logger = logger.With().Str("component", "viewstate_translator").Logger()
	}
}

// WithTelemetry attaches a telemetry collector.
func WithTelemetry(collector telemetry.Collector) Option {
	return func(t *Translator) {
		if collector == nil {
			collector = telemetry.Noop()
		}
		t.telemetry = collector
	}
}

// WithPayloadExtractor installs a payload extractor for events that do not
// implement ErrorCarrier or need a different payload.
func WithPayloadExtractor(extractor PayloadExtractor) Option {
	return func(t *Translator) {
		t.extractor = extractor
	}
}

// Translator turns events into store commands.
type Translator struct {
	registry  atomic.Pointer[registry.Registry]
	extractor PayloadExtractor
	logger    zerolog.Logger
	telemetry telemetry.Collector
}

// New creates a translator reading roles from reg.
func New(reg *registry.Registry, opts ...Option) *Translator {
	t := &Translator{
		logger:    zerolog.Nop(),
		telemetry: telemetry.Noop(),
	}
	if reg == nil {
		reg = registry.New()
	}
	t.registry.Store(reg)
	for _, opt := range opts {
		if opt != nil {
			opt(t)
		}
	}
	return t
}

// Registry returns the registry currently used for translation.
func (t *Translator) Registry() *registry.Registry {
	return t.registry.Load()
}

// SetRegistry swaps the registry. Events translated afterwards use reg.
func (t *Translator) SetRegistry(reg *registry.Registry) {
	if reg == nil {
		reg = registry.New()
	}
	t.registry.Store(reg)
}

// Translate returns the commands triggered by event.
func (t *Translator) Translate(event Event) []store.Command {
	if event == nil {
		return nil
	}
	reg := t.registry.Load()
	eventID := event.Type()
	if !reg.IsTracked(eventID) {
		return nil
	}

	var cmds []store.Command
	if reg.HasRole(eventID, registry.RoleStartLoading) {
		t.telemetry.IncEvent(registry.RoleStartLoading.String())
		cmds = append(cmds, store.StartLoading(eventID))
	}
	if reg.HasRole(eventID, registry.RoleReset) {
		t.telemetry.IncEvent(registry.RoleReset.String())
		cmds = append(cmds, store.Reset(reg.TargetsForRole(eventID, registry.RoleReset)...))
	}
	if reg.HasRole(eventID, registry.RoleError) {
		t.telemetry.IncEvent(registry.RoleError.String())
		payload := t.payload(event)
		cmds = append(cmds, store.Error(payload, reg.TargetsForRole(eventID, registry.RoleError)...))
	}
	t.logger.Debug().Str("event", eventID).Int("commands", len(cmds)).Msg("translated event")
	return cmds
}

func (t *Translator) payload(event Event) any {
	if t.extractor != nil {
		if payload, ok := t.extractor(event); ok {
			return payload
		}
	}
	if carrier, ok := event.(ErrorCarrier); ok {
		return carrier.ViewStateError()
	}
	return nil
}

// Run translates events from the channel in arrival order and hands the
// commands of each event to apply in a single call. It returns nil when the
// channel is closed and the context error on cancellation.
func (t *Translator) Run(ctx context.Context, events <-chan Event, apply func(...store.Command)) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-events:
			if !ok {
				return nil
			}
			if cmds := t.Translate(event); len(cmds) > 0 {
				apply(cmds...)
			}
		}
	}
}
