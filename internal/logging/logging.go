package logging

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/grafana/loki-client-go/loki"
	"github.com/prometheus/common/model"
	"github.com/rs/zerolog"

	"github.com/timzifer/viewstate/config"
)

// DefaultApp is the Loki "app" label used when no labels are configured.
const DefaultApp = "viewstate"

// RuleSetField names the log field and Loki label carrying the name of the
// loaded rule configuration.
const RuleSetField = "rule_set"

// Option adjusts Setup.
type Option func(*options)

type options struct {
	ruleSet string
}

// WithRuleSet tags every log line, and the Loki stream, with the name of the
// rule configuration so several engines can share one log sink.
func WithRuleSet(name string) Option {
	return func(o *options) { o.ruleSet = strings.TrimSpace(name) }
}

// Setup creates a zerolog logger according to the provided configuration.
// Log lines go to out, or to stderr when out is nil, so that stdout stays
// free for snapshot output.
func Setup(cfg config.LoggingConfig, out io.Writer, opts ...Option) (zerolog.Logger, func(), error) {
	var settings options
	for _, opt := range opts {
		if opt != nil {
			opt(&settings)
		}
	}

	level := zerolog.InfoLevel
	if cfg.Level != "" {
		parsed, err := zerolog.ParseLevel(strings.ToLower(cfg.Level))
		if err != nil {
			return zerolog.Logger{}, nil, fmt.Errorf("parse log level: %w", err)
		}
		level = parsed
	}

	if out == nil {
		out = os.Stderr
	}
	console := out
	switch strings.ToLower(strings.TrimSpace(cfg.Format)) {
	case "", "json":
	case "text":
		console = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339, NoColor: true}
	default:
		return zerolog.Logger{}, nil, fmt.Errorf("unsupported log format %q", cfg.Format)
	}

	writers := []io.Writer{console}
	cleanup := func() {}

	if cfg.Loki.Enabled {
		lokiWriter, closer, err := newLokiWriter(cfg.Loki, settings.ruleSet)
		if err != nil {
			return zerolog.Logger{}, nil, err
		}
		writers = append(writers, lokiWriter)
		cleanup = func() {
			closer()
		}
	}

	multi := zerolog.MultiLevelWriter(writers...)
	ctx := zerolog.New(multi).With().Timestamp()
	if settings.ruleSet != "" {
		ctx = ctx.Str(RuleSetField, settings.ruleSet)
	}
	return ctx.Logger().Level(level), cleanup, nil
}

func newLokiWriter(cfg config.LokiConfig, ruleSet string) (io.Writer, func(), error) {
	if cfg.URL == "" {
		return nil, nil, fmt.Errorf("loki url is required")
	}
	lokiCfg, err := loki.NewDefaultConfig(cfg.URL)
	if err != nil {
		return nil, nil, fmt.Errorf("prepare loki config: %w", err)
	}
	client, err := loki.New(lokiCfg)
	if err != nil {
		return nil, nil, fmt.Errorf("create loki client: %w", err)
	}

	labels, err := lokiLabels(cfg.Labels, ruleSet)
	if err != nil {
		client.Stop()
		return nil, nil, err
	}

	writer := &lokiWriter{client: client, labels: labels}
	cleanup := func() {
		client.Stop()
	}
	return writer, cleanup, nil
}

// lokiLabels falls back to the app label when none are configured and adds
// the rule set unless a label of that name was given explicitly.
func lokiLabels(raw map[string]string, ruleSet string) (model.LabelSet, error) {
	labels := model.LabelSet{}
	for k, v := range raw {
		labels[model.LabelName(k)] = model.LabelValue(v)
	}
	if len(labels) == 0 {
		labels["app"] = DefaultApp
	}
	if _, ok := labels[RuleSetField]; !ok && ruleSet != "" {
		labels[RuleSetField] = model.LabelValue(ruleSet)
	}
	if err := labels.Validate(); err != nil {
		return nil, fmt.Errorf("invalid loki labels: %w", err)
	}
	return labels, nil
}

type lokiWriter struct {
	client *loki.Client
	labels model.LabelSet
}

func (l *lokiWriter) Write(p []byte) (int, error) {
	entry := strings.TrimSpace(string(p))
	if entry == "" {
		return len(p), nil
	}
	err := l.client.Handle(l.labels, time.Now(), entry)
	return len(p), err
}
