package logging

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func TestNewLoggerLevelFallback(t *testing.T) {
	logger := NewLogger(Config{Level: "not-a-level"})
	require.Equal(t, zerolog.InfoLevel, logger.GetLevel())

	logger = NewLogger(Config{Level: "DEBUG"})
	require.Equal(t, zerolog.DebugLevel, logger.GetLevel())
}

func TestNewLoggerWritesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mirror.log")
	logger := NewLogger(Config{Level: "info", File: FileConfig{Path: path, MaxSizeMB: 1}})

	logger.Info().Str("component", "test").Msg("hello file")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Contains(t, string(data), "hello file")
}
