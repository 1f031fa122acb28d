package main

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/timzifer/viewstate/config"
	"github.com/timzifer/viewstate/status"
	"github.com/timzifer/viewstate/store"
	"github.com/timzifer/viewstate/translator"
)

func TestReadEventsSkipsInvalidLines(t *testing.T) {
	input := strings.NewReader(`{"type":"LOAD"}

not json
{"no_type":true}
{"type":"LOAD_FAIL","error":"boom"}
`)
	out := make(chan translator.Event, 4)
	readEvents(context.Background(), input, out, false, zerolog.Nop())

	var types []string
	for event := range out {
		types = append(types, event.Type())
	}
	require.Equal(t, []string{"LOAD", "LOAD_FAIL"}, types)
}

func TestWriteSnapshotUsesViewShape(t *testing.T) {
	c := store.UpsertMany([]store.Entry{
		{ID: "LOAD", Status: status.Loading()},
		{ID: "SAVE", Status: status.Error("denied")},
	}, store.Empty())

	var buf bytes.Buffer
	require.NoError(t, writeSnapshot(&buf, c))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	require.JSONEq(t, `{"id":"LOAD","status":{"type":"loading"}}`, lines[0])
	require.JSONEq(t, `{"id":"SAVE","status":{"type":"error","attributes":{"error":"denied"}}}`, lines[1])
}

func TestExecuteConfigCheckPrintsRoleTable(t *testing.T) {
	cfg := &config.Config{Rules: []config.RuleConfig{
		{Start: "LOAD", Reset: []string{"LOAD_OK", "ADD"}, Error: []string{"FAIL"}, ErrorPayload: "error.message"},
		{Start: "ADD", Error: []string{"FAIL"}, Source: config.ModuleReference{File: "todos.yaml", Name: "todos"}},
	}}

	var buf bytes.Buffer
	require.Zero(t, executeConfigCheck(&buf, cfg))

	out := buf.String()
	require.Contains(t, out, `Rule "LOAD"`)
	require.Contains(t, out, "Module: todos (todos.yaml)")
	require.Contains(t, out, "ADD: reset(LOAD), start_loading(ADD)")
	require.Contains(t, out, "FAIL: error(LOAD), error(ADD) [payload: error.message]")
}

func TestDescribeModule(t *testing.T) {
	require.Equal(t, "", describeModule(config.ModuleReference{}))
	require.Equal(t, "users", describeModule(config.ModuleReference{Name: "users"}))
	require.Equal(t, "users.yaml: accounts", describeModule(config.ModuleReference{File: "users.yaml", Description: "accounts"}))
}
