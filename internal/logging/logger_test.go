package logging

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kagami/internal/config"
)

func TestNewLogger_Console(t *testing.T) {
	var buf bytes.Buffer
	logger, closeFn, err := newLogger(config.LoggingConfig{Level: "warn", Output: "console"}, &buf)
	require.NoError(t, err)

	logger.Info("表示されない")
	logger.Warn("表示される")
	require.NoError(t, closeFn())

	out := buf.String()
	assert.NotContains(t, out, "表示されない")
	assert.Contains(t, out, "表示される")
}

func TestNewLogger_InvalidLevelFallsBackToInfo(t *testing.T) {
	var buf bytes.Buffer
	logger, closeFn, err := newLogger(config.LoggingConfig{Level: "loud", Output: "console"}, &buf)
	require.NoError(t, err)

	logger.Debug("debug")
	logger.Info("info")
	require.NoError(t, closeFn())

	assert.NotContains(t, buf.String(), "debug\n")
	assert.Contains(t, buf.String(), "info")
}

func TestNewLogger_FileAndConsole(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "kagami.log")
	var buf bytes.Buffer
	logger, closeFn, err := newLogger(config.LoggingConfig{
		Level:    "debug",
		Output:   "both",
		FilePath: path,
		MaxSize:  1,
	}, &buf)
	require.NoError(t, err)

	logger.Named("registry").Info("デバイス一覧を更新しました")
	require.NoError(t, closeFn())

	assert.Contains(t, buf.String(), "デバイス一覧を更新しました")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 1)

	var entry map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &entry))
	assert.Equal(t, "info", entry["level"])
	assert.Equal(t, "registry", entry["logger"])
	assert.Equal(t, "デバイス一覧を更新しました", entry["msg"])
}
