// Package config loads the runtime settings of the repokit CLI.
//
// Settings come from REPOKIT_* environment variables; command-line flags
// override them after Load. Declarations are not configuration: they live
// in CUE files handed to each command.
package config

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"

	"github.com/roach88/repokit/internal/store"
)

// Config holds the runtime configuration.
type Config struct {
	// Database is the SQLite file queried by `repokit query`.
	Database string `env:"DATABASE" envDefault:"repokit.db"`

	LockWait    string        `env:"LOCK_WAIT"    envDefault:"block"`
	LockTimeout time.Duration `env:"LOCK_TIMEOUT" envDefault:"5s"`

	MaxOpenConns int    `env:"MAX_OPEN_CONNS" envDefault:"1"`
	LogLevel     string `env:"LOG_LEVEL"      envDefault:"warn"`

	// OTLPEndpoint enables trace export when set.
	OTLPEndpoint string `env:"OTLP_ENDPOINT"`
}

// Prefix is prepended to every variable name.
const Prefix = "REPOKIT_"

// Load parses the environment into a Config and validates it.
func Load() (*Config, error) {
	return LoadFrom(nil)
}

// LoadFrom parses environ (KEY -> value) instead of the process environment
// when it is non-nil.
func LoadFrom(environ map[string]string) (*Config, error) {
	cfg := &Config{}
	opts := env.Options{Prefix: Prefix}
	if environ != nil {
		opts.Environment = environ
	}
	if err := env.ParseWithOptions(cfg, opts); err != nil {
		return nil, fmt.Errorf("config: parse environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks enumerated and numeric settings.
func (c *Config) Validate() error {
	if _, err := store.ParseLockWait(c.LockWait); err != nil {
		return fmt.Errorf("config: %sLOCK_WAIT: %w", Prefix, err)
	}
	if c.LockTimeout < 0 {
		return fmt.Errorf("config: %sLOCK_TIMEOUT must not be negative", Prefix)
	}
	if c.MaxOpenConns < 1 {
		return fmt.Errorf("config: %sMAX_OPEN_CONNS must be at least 1", Prefix)
	}
	if _, err := c.Level(); err != nil {
		return err
	}
	return nil
}

// Level returns LogLevel as a slog level.
func (c *Config) Level() (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(strings.ToUpper(c.LogLevel))); err != nil {
		return 0, fmt.Errorf("config: %sLOG_LEVEL: %w", Prefix, err)
	}
	return l, nil
}

// StoreOptions returns the store options the settings select.
func (c *Config) StoreOptions() []store.Option {
	policy, _ := store.ParseLockWait(c.LockWait)
	return []store.Option{
		store.WithLockWait(policy, c.LockTimeout),
		store.WithMaxOpenConns(c.MaxOpenConns),
	}
}
