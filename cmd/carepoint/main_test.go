package main

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carepoint/council-controller/internal/replay"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var buf bytes.Buffer
	rootCmd.SetOut(&buf)
	rootCmd.SetErr(&buf)
	rootCmd.SetArgs(args)
	t.Cleanup(func() { rootCmd.SetArgs(nil) })
	err := rootCmd.Execute()
	return buf.String(), err
}

func TestReplayCommand_RegressionFixture(t *testing.T) {
	fixture := filepath.Join("..", "..", "internal", "replay", "testdata", "regression.json")
	out, err := execute(t, "replay", fixture)
	require.NoError(t, err, out)
	assert.Contains(t, out, "4 match, 0 diverge")
}

func TestInspectHistory_EmptyDatabase(t *testing.T) {
	db := filepath.Join(t.TempDir(), "carepoint.db")
	out, err := execute(t, "--db", db, "--log-level", "error", "inspect", "history", "--json")
	require.NoError(t, err)
	assert.Equal(t, "[]", strings.TrimSpace(out))
}

func TestKBCount_EmptyDatabase(t *testing.T) {
	db := filepath.Join(t.TempDir(), "carepoint.db")
	out, err := execute(t, "--db", db, "--log-level", "error", "kb", "count")
	require.NoError(t, err)
	assert.Contains(t, out, "Documents: 0")
}

func TestPrintComparison(t *testing.T) {
	results := []replay.Result{
		{TraceID: "a", Action: replay.ActionPass},
		{TraceID: "b", Action: replay.ActionBlock, Reason: "response_length: too long"},
	}
	var buf bytes.Buffer
	diverge := printComparison(&buf, results, []string{replay.ActionPass, replay.ActionPass, replay.ActionWarn})

	assert.Equal(t, 2, diverge)
	assert.Contains(t, buf.String(), "response_length: too long")
	assert.Contains(t, buf.String(), "1 match, 2 diverge")
}
