// Package payload extracts error payloads from generic events with
// expr-lang expressions configured per error event.
package payload

import (
	"fmt"
	"sort"
	"strings"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
	"github.com/rs/zerolog"

	"github.com/timzifer/viewstate/translator"
)

// Expression environment names.
const (
	EventVar = "event"
	KindVar  = "kind"
	ErrorVar = "error"
)

// Extractor evaluates the compiled expression of an event's type.
type Extractor struct {
	programs map[string]*vm.Program
	sources  map[string]string
	logger   zerolog.Logger
}

// Option customises an Extractor.
type Option func(*Extractor)

// WithLogger sets the logger used to report evaluation failures.
func WithLogger(logger zerolog.Logger) Option {
	return func(e *Extractor) {
		e.logger = logger.With().Str("component", "viewstate_payload").Logger()
	}
}

// Compile builds an extractor from event id to expression source. Blank
// expressions are skipped.
func Compile(expressions map[string]string, opts ...Option) (*Extractor, error) {
	e := &Extractor{
		programs: make(map[string]*vm.Program, len(expressions)),
		sources:  make(map[string]string, len(expressions)),
		logger:   zerolog.Nop(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(e)
		}
	}

	ids := make([]string, 0, len(expressions))
	for id := range expressions {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		source := strings.TrimSpace(expressions[id])
		if source == "" {
			continue
		}
		program, err := expr.Compile(source, expr.Env(map[string]interface{}{}), expr.AllowUndefinedVariables())
		if err != nil {
			return nil, fmt.Errorf("compile error_payload for %q: %w", id, err)
		}
		e.programs[id] = program
		e.sources[id] = source
	}
	return e, nil
}

// Len returns the number of compiled expressions.
func (e *Extractor) Len() int {
	if e == nil {
		return 0
	}
	return len(e.programs)
}

// Source returns the expression configured for eventID.
func (e *Extractor) Source(eventID string) (string, bool) {
	if e == nil {
		return "", false
	}
	source, ok := e.sources[eventID]
	return source, ok
}

// Extract evaluates the expression registered for the event type. It reports
// false when no expression exists or evaluation fails, leaving the default
// payload lookup to the caller.
func (e *Extractor) Extract(event translator.Event) (any, bool) {
	if e == nil || event == nil {
		return nil, false
	}
	program, ok := e.programs[event.Type()]
	if !ok {
		return nil, false
	}
	out, err := expr.Run(program, environment(event))
	if err != nil {
		e.logger.Warn().Err(err).Str("event", event.Type()).Msg("error payload expression failed")
		return nil, false
	}
	return out, true
}

// Func adapts the extractor to the translator option.
func (e *Extractor) Func() translator.PayloadExtractor {
	return e.Extract
}

func environment(event translator.Event) map[string]interface{} {
	env := make(map[string]interface{})
	if record, ok := event.(translator.Record); ok {
		for key, value := range record {
			env[key] = value
		}
	}
	env[EventVar] = event
	env[KindVar] = event.Type()
	if _, ok := env[ErrorVar]; !ok {
		if carrier, ok := event.(translator.ErrorCarrier); ok {
			env[ErrorVar] = carrier.ViewStateError()
		}
	}
	return env
}
