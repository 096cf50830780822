// Showtrail - Watch History Achievement Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/showtrail

// Package config loads Showtrail configuration from defaults, an optional
// YAML file and environment variables, in that order of precedence.
package config

import (
	"fmt"
	"strings"
	"time"
	_ "time/tzdata" // embedded zone database for Timezone lookups

	"github.com/tomtom215/showtrail/internal/logging"
)

// Config is the root configuration.
type Config struct {
	Store     StoreConfig     `koanf:"store"`
	Breaker   BreakerConfig   `koanf:"breaker"`
	Activity  ActivityConfig  `koanf:"activity"`
	Evaluator EvaluatorConfig `koanf:"evaluator"`
	Server    ServerConfig    `koanf:"server"`
	Logging   LoggingConfig   `koanf:"logging"`
}

// StoreConfig configures the BadgerDB-backed document store.
type StoreConfig struct {
	// Path is the BadgerDB directory. Ignored when InMemory is set.
	Path string `koanf:"path"`

	// InMemory runs BadgerDB without touching disk.
	InMemory bool `koanf:"in_memory"`

	// SyncWrites fsyncs every commit.
	SyncWrites bool `koanf:"sync_writes"`

	// TxnMaxRetries bounds the optimistic-concurrency retry loop of a
	// single transaction.
	TxnMaxRetries int `koanf:"txn_max_retries"`

	// GCInterval is how often value-log garbage collection runs.
	GCInterval time.Duration `koanf:"gc_interval"`

	// GCDiscardRatio is passed to RunValueLogGC.
	GCDiscardRatio float64 `koanf:"gc_discard_ratio"`
}

// BreakerConfig configures the circuit breaker in front of the store.
type BreakerConfig struct {
	Enabled bool `koanf:"enabled"`

	// MaxRequests allowed through while half-open.
	MaxRequests uint32 `koanf:"max_requests"`

	// Interval is the cyclic period for clearing counts while closed.
	Interval time.Duration `koanf:"interval"`

	// Timeout is how long the breaker stays open.
	Timeout time.Duration `koanf:"timeout"`

	// FailureThreshold is the number of consecutive failures that trips it.
	FailureThreshold uint32 `koanf:"failure_threshold"`
}

// ActivityConfig configures the per-user activity batch manager.
type ActivityConfig struct {
	// DebounceDelay is the quiet period after the last event before a flush.
	DebounceDelay time.Duration `koanf:"debounce_delay"`

	// ReleaseWindow is the maximum time between air date and watch for quickwatch.
	ReleaseWindow time.Duration `koanf:"release_window"`

	// BingeWindow is the maximum span of a binge candidate batch.
	BingeWindow time.Duration `koanf:"binge_window"`

	// EmitBingeActivity publishes aggregate binge summaries.
	EmitBingeActivity bool `koanf:"emit_binge_activity"`

	// SweepInterval is how often expired binge windows are finalized.
	SweepInterval time.Duration `koanf:"sweep_interval"`

	// SessionIdleTimeout releases sessions without events for this long.
	// Zero keeps sessions until shutdown.
	SessionIdleTimeout time.Duration `koanf:"session_idle_timeout"`
}

// EvaluatorConfig configures badge evaluation.
type EvaluatorConfig struct {
	// SnapshotTTL bounds how long a loaded user snapshot is reused.
	SnapshotTTL time.Duration `koanf:"snapshot_ttl"`

	// Timezone is the IANA zone that defines a calendar day for streaks
	// and air dates.
	Timezone string `koanf:"timezone"`

	// VerifyCatalog refuses to start when a badge requirement changed
	// under an existing id.
	VerifyCatalog bool `koanf:"verify_catalog"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Host            string        `koanf:"host"`
	Port            int           `koanf:"port"`
	Timeout         time.Duration `koanf:"timeout"`
	CORSOrigins     []string      `koanf:"cors_origins"`
	RateLimitReqs   int           `koanf:"rate_limit_reqs"`
	RateLimitWindow time.Duration `koanf:"rate_limit_window"`
}

// LoggingConfig configures the global logger.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
	Caller bool   `koanf:"caller"`
}

// Load reads configuration from all layers and validates it.
func Load() (*Config, error) {
	return LoadWithKoanf()
}

// Location resolves the configured timezone.
func (c *EvaluatorConfig) Location() (*time.Location, error) {
	if c.Timezone == "" {
		return time.UTC, nil
	}
	return time.LoadLocation(c.Timezone)
}

// Addr returns the listen address.
func (c *ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// ToLogging converts to the logging package configuration.
func (c *LoggingConfig) ToLogging() logging.Config {
	cfg := logging.DefaultConfig()
	cfg.Level = c.Level
	cfg.Format = c.Format
	cfg.Caller = c.Caller
	return cfg
}

// Validate checks that each section holds usable values.
func (c *Config) Validate() error {
	if err := c.validateStore(); err != nil {
		return err
	}
	if err := c.validateBreaker(); err != nil {
		return err
	}
	if err := c.validateActivity(); err != nil {
		return err
	}
	if err := c.validateEvaluator(); err != nil {
		return err
	}
	if err := c.validateServer(); err != nil {
		return err
	}
	return c.validateLogging()
}

func (c *Config) validateStore() error {
	if !c.Store.InMemory && c.Store.Path == "" {
		return fmt.Errorf("STORE_PATH is required unless STORE_IN_MEMORY=true")
	}
	if c.Store.TxnMaxRetries < 1 {
		return fmt.Errorf("STORE_TXN_MAX_RETRIES must be at least 1, got %d", c.Store.TxnMaxRetries)
	}
	if c.Store.GCDiscardRatio <= 0 || c.Store.GCDiscardRatio >= 1 {
		return fmt.Errorf("STORE_GC_DISCARD_RATIO must be between 0 and 1, got %v", c.Store.GCDiscardRatio)
	}
	if c.Store.GCInterval <= 0 {
		return fmt.Errorf("STORE_GC_INTERVAL must be positive")
	}
	return nil
}

func (c *Config) validateBreaker() error {
	if !c.Breaker.Enabled {
		return nil
	}
	if c.Breaker.FailureThreshold == 0 {
		return fmt.Errorf("BREAKER_FAILURE_THRESHOLD must be at least 1")
	}
	if c.Breaker.Timeout <= 0 {
		return fmt.Errorf("BREAKER_TIMEOUT must be positive")
	}
	return nil
}

func (c *Config) validateActivity() error {
	if c.Activity.DebounceDelay <= 0 {
		return fmt.Errorf("DEBOUNCE_DELAY must be positive, got %v", c.Activity.DebounceDelay)
	}
	if c.Activity.ReleaseWindow <= 0 {
		return fmt.Errorf("RELEASE_WINDOW must be positive, got %v", c.Activity.ReleaseWindow)
	}
	if c.Activity.BingeWindow <= 0 {
		return fmt.Errorf("BINGE_WINDOW must be positive, got %v", c.Activity.BingeWindow)
	}
	if c.Activity.SweepInterval <= 0 {
		return fmt.Errorf("SWEEP_INTERVAL must be positive, got %v", c.Activity.SweepInterval)
	}
	if c.Activity.SessionIdleTimeout < 0 {
		return fmt.Errorf("SESSION_IDLE_TIMEOUT must not be negative, got %v", c.Activity.SessionIdleTimeout)
	}
	return nil
}

func (c *Config) validateEvaluator() error {
	if c.Evaluator.SnapshotTTL <= 0 {
		return fmt.Errorf("SNAPSHOT_TTL must be positive, got %v", c.Evaluator.SnapshotTTL)
	}
	if _, err := c.Evaluator.Location(); err != nil {
		return fmt.Errorf("TIMEZONE %q is not a valid IANA zone: %w", c.Evaluator.Timezone, err)
	}
	return nil
}

func (c *Config) validateServer() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("HTTP_PORT must be between 1 and 65535, got %d", c.Server.Port)
	}
	if c.Server.RateLimitReqs < 0 {
		return fmt.Errorf("RATE_LIMIT_REQUESTS must not be negative")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch strings.ToLower(c.Logging.Level) {
	case "trace", "debug", "info", "warn", "warning", "error", "fatal", "panic", "disabled":
	default:
		return fmt.Errorf("LOG_LEVEL %q is not a valid level", c.Logging.Level)
	}
	switch c.Logging.Format {
	case "json", "console":
	default:
		return fmt.Errorf("LOG_FORMAT must be json or console, got %q", c.Logging.Format)
	}
	return nil
}
