package config

import (
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := LoadFrom(map[string]string{})
	require.NoError(t, err)

	assert.Equal(t, &Config{
		Database:     "repokit.db",
		LockWait:     "block",
		LockTimeout:  5 * time.Second,
		MaxOpenConns: 1,
		LogLevel:     "warn",
	}, cfg)
	assert.Len(t, cfg.StoreOptions(), 2)

	level, err := cfg.Level()
	require.NoError(t, err)
	assert.Equal(t, slog.LevelWarn, level)
}

func TestLoadFromEnvironment(t *testing.T) {
	cfg, err := LoadFrom(map[string]string{
		"REPOKIT_DATABASE":       "/tmp/app.db",
		"REPOKIT_LOCK_WAIT":      "fail_fast",
		"REPOKIT_LOCK_TIMEOUT":   "250ms",
		"REPOKIT_MAX_OPEN_CONNS": "4",
		"REPOKIT_LOG_LEVEL":      "debug",
		"REPOKIT_OTLP_ENDPOINT":  "localhost:4317",
		"DATABASE":               "ignored without prefix",
	})
	require.NoError(t, err)
	assert.Equal(t, "/tmp/app.db", cfg.Database)
	assert.Equal(t, "fail_fast", cfg.LockWait)
	assert.Equal(t, 250*time.Millisecond, cfg.LockTimeout)
	assert.Equal(t, 4, cfg.MaxOpenConns)
	assert.Equal(t, "localhost:4317", cfg.OTLPEndpoint)

	level, err := cfg.Level()
	require.NoError(t, err)
	assert.Equal(t, slog.LevelDebug, level)
}

func TestLoadProcessEnvironment(t *testing.T) {
	t.Setenv("REPOKIT_DATABASE", "env.db")
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "env.db", cfg.Database)
}

func TestLoadInvalid(t *testing.T) {
	tests := []struct {
		name    string
		env     map[string]string
		wantErr string
	}{
		{"lock wait", map[string]string{"REPOKIT_LOCK_WAIT": "spin"}, "REPOKIT_LOCK_WAIT"},
		{"negative timeout", map[string]string{"REPOKIT_LOCK_TIMEOUT": "-1s"}, "must not be negative"},
		{"zero conns", map[string]string{"REPOKIT_MAX_OPEN_CONNS": "0"}, "at least 1"},
		{"log level", map[string]string{"REPOKIT_LOG_LEVEL": "loud"}, "REPOKIT_LOG_LEVEL"},
		{"unparsable duration", map[string]string{"REPOKIT_LOCK_TIMEOUT": "soon"}, "parse environment"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadFrom(tt.env)
			assert.ErrorContains(t, err, tt.wantErr)
		})
	}
}
