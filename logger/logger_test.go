package logger

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitLoggerWritesJSONToFile(t *testing.T) {
	prev := Logger
	t.Cleanup(func() { Logger = prev })

	path := filepath.Join(t.TempDir(), "app.log")
	require.NoError(t, InitLogger(path, "info"))

	Logger.Debug("hidden")
	Logger.Info("visible")
	require.NoError(t, Logger.Sync())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 1)

	var entry map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &entry))
	assert.Equal(t, "visible", entry["msg"])
	assert.Equal(t, "crate-ledger", entry["service"])
	assert.Contains(t, entry, "time")
}

func TestInitLoggerRejectsUnknownLevel(t *testing.T) {
	assert.Error(t, InitLogger("", "chatty"))
}
