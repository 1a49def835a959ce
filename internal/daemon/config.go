// Package daemon wires the debtsync components together and owns their
// lifecycle.
package daemon

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/ledgerline/debtsync/internal/infra/cache"
	"github.com/ledgerline/debtsync/internal/infra/connectivity"
	"github.com/ledgerline/debtsync/internal/infra/remote"
	"github.com/ledgerline/debtsync/internal/infra/retry"
)

// Config is the complete debtsync configuration, read from
// $DEBTSYNC_HOME/config.toml.
type Config struct {
	Currency string       `toml:"currency"`
	Remote   RemoteConfig `toml:"remote"`
	Retry    RetryConfig  `toml:"retry"`
	Cache    CacheConfig  `toml:"cache"`
	Sync     SyncConfig   `toml:"sync"`
	API      APIConfig    `toml:"api"`
	Log      LogConfig    `toml:"log"`
}

// RemoteConfig points at the debt-ledger REST API.
type RemoteConfig struct {
	BaseURL       string `toml:"base_url"`
	Token         string `toml:"token"`
	Timeout       string `toml:"timeout"`
	ProbeInterval string `toml:"probe_interval"`
	ProbeTimeout  string `toml:"probe_timeout"`
}

// RetryConfig bounds retries of transient remote failures.
type RetryConfig struct {
	MaxRetries  int    `toml:"max_retries"`
	BackoffUnit string `toml:"backoff_unit"`
	MaxDelay    string `toml:"max_delay"`
}

// CacheConfig tunes the shared view cache.
type CacheConfig struct {
	StaleTime     string `toml:"stale_time"`
	ActiveWindow  string `toml:"active_window"`
	GCAfter       string `toml:"gc_after"`
	SweepInterval string `toml:"sweep_interval"`
}

// SyncConfig tunes the sync coordinator.
type SyncConfig struct {
	// StartOnline skips the OFFLINE default when the host knows it is online.
	StartOnline bool `toml:"start_online"`
	TraceSpans  int  `toml:"trace_spans"`
}

// APIConfig configures the local HTTP API.
type APIConfig struct {
	Host    string `toml:"host"`
	Port    int    `toml:"port"`
	Metrics bool   `toml:"metrics"`
}

// LogConfig configures the logger.
type LogConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// DefaultConfig returns the configuration used when no file exists.
func DefaultConfig() Config {
	return Config{
		Currency: "USD",
		Remote: RemoteConfig{
			BaseURL:       "http://127.0.0.1:8080/api",
			Timeout:       "15s",
			ProbeInterval: "15s",
			ProbeTimeout:  "5s",
		},
		Retry: RetryConfig{
			MaxRetries:  2,
			BackoffUnit: "1s",
			MaxDelay:    "30s",
		},
		Cache: CacheConfig{
			StaleTime:     "30s",
			ActiveWindow:  "5m",
			GCAfter:       "5m",
			SweepInterval: "1m",
		},
		Sync: SyncConfig{
			TraceSpans: 1000,
		},
		API: APIConfig{
			Host:    "127.0.0.1",
			Port:    7420,
			Metrics: true,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Home returns the debtsync home directory: $DEBTSYNC_HOME, else ~/.debtsync.
func Home() string {
	if h := os.Getenv("DEBTSYNC_HOME"); h != "" {
		return h
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".debtsync"
	}
	return filepath.Join(home, ".debtsync")
}

// ConfigPath returns the default config file location.
func ConfigPath() string {
	return filepath.Join(Home(), "config.toml")
}

// LoadConfig reads path over the defaults. A missing file yields the
// defaults. DEBTSYNC_TOKEN overrides remote.token.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		path = ConfigPath()
	}
	if _, err := toml.DecodeFile(path, &cfg); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return cfg, fmt.Errorf("load config %s: %w", path, err)
	}
	if tok := os.Getenv("DEBTSYNC_TOKEN"); tok != "" {
		cfg.Remote.Token = tok
	}
	return cfg, nil
}

// ─── Derived component configs ──────────────────────────────────────────────

// RetryPolicy returns the retry settings.
func (c Config) RetryPolicy() retry.Config {
	def := retry.DefaultConfig()
	return retry.Config{
		MaxRetries:  c.Retry.MaxRetries,
		BackoffUnit: parseDuration(c.Retry.BackoffUnit, def.BackoffUnit),
		MaxDelay:    parseDuration(c.Retry.MaxDelay, def.MaxDelay),
	}
}

// RemoteClient returns the remote client settings.
func (c Config) RemoteClient() remote.Config {
	return remote.Config{
		BaseURL: c.Remote.BaseURL,
		Token:   c.Remote.Token,
		Timeout: parseDuration(c.Remote.Timeout, 15*time.Second),
		Retry:   c.RetryPolicy(),
	}
}

// Probe returns the connectivity probe settings.
func (c Config) Probe() connectivity.Config {
	return connectivity.Config{
		Interval: parseDuration(c.Remote.ProbeInterval, 15*time.Second),
		Timeout:  parseDuration(c.Remote.ProbeTimeout, 5*time.Second),
	}
}

// CacheOptions returns the cache settings.
func (c Config) CacheOptions() cache.Options {
	def := cache.DefaultOptions()
	return cache.Options{
		StaleTime:     parseDuration(c.Cache.StaleTime, def.StaleTime),
		ActiveWindow:  parseDuration(c.Cache.ActiveWindow, def.ActiveWindow),
		GCAfter:       parseDuration(c.Cache.GCAfter, def.GCAfter),
		SweepInterval: parseDuration(c.Cache.SweepInterval, def.SweepInterval),
	}
}

// Addr is the local API listen address.
func (c Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.API.Host, c.API.Port)
}

// parseDuration parses s, falling back to def when s is empty or invalid.
func parseDuration(s string, def time.Duration) time.Duration {
	if s == "" {
		return def
	}
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return def
	}
	return d
}
