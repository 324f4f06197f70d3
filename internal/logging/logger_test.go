package logging

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitWritesToLogFile(t *testing.T) {
	dir := t.TempDir()
	Init(Config{LogDir: dir, Level: "debug", Debug: true})
	defer Shutdown()

	Logger().Info("hello", slog.String("key", "value"))

	data, err := os.ReadFile(filepath.Join(dir, "debug.log"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "hello")
	assert.Contains(t, string(data), `"key":"value"`)
}

func TestInitDiscardsWithoutDebugOrDir(t *testing.T) {
	Init(Config{})
	defer Shutdown()

	// Must not panic and must not create files anywhere
	Logger().Info("discarded")
}

func TestForComponentResolvesHandlerLate(t *testing.T) {
	// Component logger created before Init must still log after Init
	log := ForComponent(CompRegistry)

	dir := t.TempDir()
	Init(Config{LogDir: dir, Level: "debug", Debug: true})
	defer Shutdown()

	log.Debug("late_bound", slog.Int("n", 7))

	data, err := os.ReadFile(filepath.Join(dir, "debug.log"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "late_bound")
	assert.Contains(t, string(data), `"component":"registry"`)
}

func TestLevelFiltering(t *testing.T) {
	dir := t.TempDir()
	Init(Config{LogDir: dir, Level: "warn", Debug: true})
	defer Shutdown()

	Logger().Info("filtered_out")
	Logger().Warn("kept")

	data, err := os.ReadFile(filepath.Join(dir, "debug.log"))
	require.NoError(t, err)
	assert.NotContains(t, string(data), "filtered_out")
	assert.Contains(t, string(data), "kept")
}

func TestDumpRingBuffer(t *testing.T) {
	dir := t.TempDir()
	Init(Config{LogDir: dir, Level: "debug", Debug: true})
	defer Shutdown()

	Logger().Info("ring_entry")

	dumpPath := filepath.Join(dir, "crash.log")
	require.NoError(t, DumpRingBuffer(dumpPath))

	data, err := os.ReadFile(dumpPath)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(data), "ring_entry"))
}
