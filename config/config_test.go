package config_test

import (
	"bytes"
	"log"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/vacation-engine/config"
	"github.com/warp/vacation-engine/generic"
	"github.com/warp/vacation-engine/vacation"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := config.Load("")
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.HTTP.Port)
	assert.Equal(t, ":8080", cfg.Addr())
	assert.Equal(t, config.DriverMemory, cfg.DB.Driver)
	assert.Equal(t, 5*time.Second, cfg.DB.LockTimeout)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "console", cfg.Log.Format)

	tt, err := cfg.TimeTypeOverrides()
	require.NoError(t, err)
	assert.Nil(t, tt)
}

func TestLoad_FileAndTimeTypes(t *testing.T) {
	// GIVEN: a file selecting sqlite and overriding HOUR_4
	path := writeConfig(t, `
http:
  port: 9090
db:
  driver: sqlite
  dsn: /tmp/vacation.db
  lock_timeout: 250ms
log:
  level: debug
  format: json
time_types:
  HOUR_4:
    multiplier: "0.5"
  FULL_SHIFT:
    multiplier: 1.5
    whole_day: true
`)

	// WHEN: loaded
	cfg, err := config.Load(path)
	require.NoError(t, err)

	// THEN: file values win over defaults
	assert.Equal(t, 9090, cfg.HTTP.Port)
	assert.Equal(t, config.DriverSQLite, cfg.DB.Driver)
	assert.Equal(t, 250*time.Millisecond, cfg.DB.LockTimeout)

	// AND: time types come back keyed by their upper-case names
	tt, err := cfg.TimeTypeOverrides()
	require.NoError(t, err)
	require.Contains(t, tt, vacation.TimeType("HOUR_4"))
	assert.Equal(t, "0.5", tt["HOUR_4"].Multiplier.String())
	assert.False(t, tt["HOUR_4"].WholeDay)
	assert.Equal(t, "1.5", tt["FULL_SHIFT"].Multiplier.String())
	assert.True(t, tt["FULL_SHIFT"].WholeDay)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := writeConfig(t, "http:\n  port: 9090\n")
	t.Setenv("VACATION_HTTP_PORT", "7070")
	t.Setenv("VACATION_LOG_LEVEL", "warn")

	cfg, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, 7070, cfg.HTTP.Port)
	assert.Equal(t, "warn", cfg.Log.Level)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"unknown driver", "db:\n  driver: oracle\n"},
		{"sqlite without dsn", "db:\n  driver: sqlite\n"},
		{"zero lock timeout", "db:\n  lock_timeout: 0s\n"},
		{"bad port", "http:\n  port: 70000\n"},
		{"bad multiplier", "time_types:\n  DAY:\n    multiplier: abc\n"},
		{"negative multiplier", "time_types:\n  DAY:\n    multiplier: \"-1\"\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := config.Load(writeConfig(t, tt.body))
			assert.ErrorIs(t, err, generic.ErrValidation)
		})
	}

	_, err := config.Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := config.NewLogger(&buf, "warn", "json")

	logger.Info("dropped")
	logger.Warn("kept", "grant_id", 7)

	out := buf.String()
	assert.NotContains(t, out, "dropped")
	assert.Contains(t, out, `"msg":"kept"`)
	assert.Contains(t, out, `"grant_id":7`)
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, config.ParseLevel("DEBUG"))
	assert.Equal(t, slog.LevelWarn, config.ParseLevel("warning"))
	assert.Equal(t, slog.LevelError, config.ParseLevel("error"))
	assert.Equal(t, slog.LevelInfo, config.ParseLevel("nonsense"))
}

func TestSetupLogger_RotatingFile(t *testing.T) {
	prev := slog.Default()
	t.Cleanup(func() {
		slog.SetDefault(prev)
		log.SetOutput(os.Stderr)
	})

	path := filepath.Join(t.TempDir(), "engine.log")
	logger := config.SetupLogger(config.LogConfig{Level: "info", Format: "console", File: path, MaxSize: 1})
	logger.Info("grant created", "grant_id", 1)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "grant created")
}
