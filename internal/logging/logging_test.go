package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetup_JSON(t *testing.T) {
	var buf bytes.Buffer
	logger, closeFn, err := Setup(Options{Level: slog.LevelInfo, Format: "json", Stderr: &buf})
	require.NoError(t, err)
	defer closeFn()

	logger.Debug("capture: hidden")
	logger.Info("capture: saved", "id", "button--primary")

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec), "exactly one JSON record")
	assert.Equal(t, "capture: saved", rec["msg"])
	assert.Equal(t, "button--primary", rec["id"])
}

func TestSetup_TextNoColorOffTerminal(t *testing.T) {
	var buf bytes.Buffer
	logger, _, err := Setup(Options{Level: slog.LevelDebug, Stderr: &buf})
	require.NoError(t, err)

	logger.Debug("runner: components discovered", "count", 3)
	assert.Contains(t, buf.String(), "runner: components discovered")
	assert.Contains(t, buf.String(), "count=3")
	assert.NotContains(t, buf.String(), "\x1b[", "no colour when stderr is not a terminal")
}

func TestSetup_File(t *testing.T) {
	var buf bytes.Buffer
	path := filepath.Join(t.TempDir(), "logs", "shotdiff.log")
	logger, closeFn, err := Setup(Options{Level: slog.LevelInfo, Format: "json", File: path, Stderr: &buf})
	require.NoError(t, err)

	logger.With("run", "r1").Info("visreg: run finished")
	require.NoError(t, closeFn())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "visreg: run finished")
	assert.Contains(t, string(data), "run=r1")
	assert.Contains(t, buf.String(), `"run":"r1"`)
}

func TestSetup_UnknownFormat(t *testing.T) {
	_, _, err := Setup(Options{Format: "xml"})
	assert.Error(t, err)
}

func TestMultiHandler_Enabled(t *testing.T) {
	var a, b bytes.Buffer
	h := NewMultiHandler(
		slog.NewTextHandler(&a, &slog.HandlerOptions{Level: slog.LevelWarn}),
		slog.NewTextHandler(&b, &slog.HandlerOptions{Level: slog.LevelDebug}),
	)
	logger := slog.New(h)
	logger.Info("only b")

	assert.Empty(t, a.String())
	assert.Contains(t, b.String(), "only b")
}
