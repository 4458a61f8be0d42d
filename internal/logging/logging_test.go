package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"debug": slog.LevelDebug,
		"info":  slog.LevelInfo,
		"warn":  slog.LevelWarn,
		"error": slog.LevelError,
		"loud":  slog.LevelInfo,
	}
	for in, want := range cases {
		assert.Equal(t, want, ParseLevel(in), in)
	}
}

func TestFanoutToFile(t *testing.T) {
	var term bytes.Buffer
	path := filepath.Join(t.TempDir(), "cs.log")

	logger, closer := New(&term, "info", path)
	logger.Debug("hidden")
	logger.Info("hit recorded", "confidence", "HIGH")
	require.NoError(t, closer.Close())

	assert.Contains(t, term.String(), "hit recorded")
	assert.NotContains(t, term.String(), "hidden")

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	line := strings.TrimSpace(string(raw))
	var rec map[string]any
	require.NoError(t, json.Unmarshal([]byte(line), &rec))
	assert.Equal(t, "hit recorded", rec["msg"])
	assert.Equal(t, "HIGH", rec["confidence"])
}

func TestNoFileCloserIsSafe(t *testing.T) {
	var term bytes.Buffer
	logger, closer := New(&term, "debug", "")
	logger.Debug("visible")
	assert.NoError(t, closer.Close())
	assert.Contains(t, term.String(), "visible")
}
