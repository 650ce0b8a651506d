package logger

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "log.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadConfig(t *testing.T) {
	t.Run("missing file", func(t *testing.T) {
		_, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
		require.ErrorIs(t, err, ErrLogConfigNotFound)
	})

	t.Run("invalid yaml", func(t *testing.T) {
		_, err := LoadConfig(writeConfig(t, "level: [debug"))
		require.Error(t, err)
		require.NotErrorIs(t, err, ErrLogConfigNotFound)
	})

	t.Run("valid", func(t *testing.T) {
		cfg, err := LoadConfig(writeConfig(t, "level: warn\nformat: console\nfields:\n  env: test\n"))
		require.NoError(t, err)
		require.Equal(t, "warn", cfg.Level)
		require.Equal(t, "console", cfg.Format)
		require.Equal(t, map[string]string{"env": "test"}, cfg.Fields)
	})
}

func TestConfig_Build(t *testing.T) {
	t.Run("writes to file with fields", func(t *testing.T) {
		out := filepath.Join(t.TempDir(), "metsync.log")
		cfg := &Config{Level: "DEBUG", Output: out, Fields: map[string]string{"env": "test"}}

		log, closer, err := cfg.Build()
		require.NoError(t, err)

		require.Equal(t, zerolog.DebugLevel, log.GetLevel())
		log.Info().Msg("hello")
		require.NoError(t, closer.Close())

		data, err := os.ReadFile(out)
		require.NoError(t, err)
		require.True(t, bytes.Contains(data, []byte(`"env":"test"`)))
		require.True(t, bytes.Contains(data, []byte(`"message":"hello"`)))
	})

	t.Run("defaults", func(t *testing.T) {
		log, closer, err := (&Config{}).Build()
		require.NoError(t, err)
		require.NoError(t, closer.Close())
		require.Equal(t, zerolog.InfoLevel, log.GetLevel())
	})

	t.Run("invalid level", func(t *testing.T) {
		_, _, err := (&Config{Level: "loud"}).Build()
		require.Error(t, err)
	})

	t.Run("invalid format", func(t *testing.T) {
		_, _, err := (&Config{Format: "xml"}).Build()
		require.Error(t, err)
	})
}
