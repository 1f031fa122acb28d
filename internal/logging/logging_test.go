package logging

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/prometheus/common/model"
	"github.com/stretchr/testify/require"

	"github.com/timzifer/viewstate/config"
)

func TestSetupWritesJSONByDefault(t *testing.T) {
	var buf bytes.Buffer
	logger, cleanup, err := Setup(config.LoggingConfig{}, &buf)
	require.NoError(t, err)
	defer cleanup()

	logger.Info().Str("component", "viewstate_store").Msg("status changed")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	require.Equal(t, "info", line["level"])
	require.Equal(t, "viewstate_store", line["component"])
	require.Equal(t, "status changed", line["message"])
}

func TestSetupHonoursLevel(t *testing.T) {
	var buf bytes.Buffer
	logger, cleanup, err := Setup(config.LoggingConfig{Level: "WARN"}, &buf)
	require.NoError(t, err)
	defer cleanup()

	logger.Info().Msg("hidden")
	require.Zero(t, buf.Len())
	logger.Warn().Msg("shown")
	require.Contains(t, buf.String(), "shown")
}

func TestSetupTextFormat(t *testing.T) {
	var buf bytes.Buffer
	logger, cleanup, err := Setup(config.LoggingConfig{Format: "text"}, &buf)
	require.NoError(t, err)
	defer cleanup()

	logger.Info().Str("event", "LOAD").Msg("dispatched")
	require.Contains(t, buf.String(), "dispatched")
	require.Contains(t, buf.String(), "event=LOAD")
}

func TestSetupRejectsInvalidSettings(t *testing.T) {
	_, _, err := Setup(config.LoggingConfig{Level: "loud"}, nil)
	require.Error(t, err)

	_, _, err = Setup(config.LoggingConfig{Format: "xml"}, nil)
	require.Error(t, err)

	_, _, err = Setup(config.LoggingConfig{Loki: config.LokiConfig{Enabled: true}}, nil)
	require.ErrorContains(t, err, "loki url is required")
}

func TestLokiLabels(t *testing.T) {
	labels, err := lokiLabels(nil, "")
	require.NoError(t, err)
	require.Equal(t, model.LabelSet{"app": DefaultApp}, labels)

	labels, err = lokiLabels(map[string]string{"app": "todos", "env": "dev"}, "")
	require.NoError(t, err)
	require.Equal(t, model.LabelValue("todos"), labels["app"])
	require.Len(t, labels, 2)

	_, err = lokiLabels(map[string]string{"not-valid": "x"}, "")
	require.Error(t, err)

	labels, err = lokiLabels(nil, "todos")
	require.NoError(t, err)
	require.Equal(t, model.LabelSet{"app": DefaultApp, RuleSetField: "todos"}, labels)

	labels, err = lokiLabels(map[string]string{RuleSetField: "pinned"}, "todos")
	require.NoError(t, err)
	require.Equal(t, model.LabelValue("pinned"), labels[RuleSetField])
}

func TestSetupTagsRuleSet(t *testing.T) {
	var buf bytes.Buffer
	logger, cleanup, err := Setup(config.LoggingConfig{}, &buf, WithRuleSet(" todos "))
	require.NoError(t, err)
	defer cleanup()

	logger.Info().Msg("configuration reloaded")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	require.Equal(t, "todos", line[RuleSetField])
}
