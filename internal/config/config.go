package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
)

// Config represents the global ~/.cashtrack/config.toml.
type Config struct {
	DefaultProfile string        `toml:"default_profile"`
	Sync           SyncConfig    `toml:"sync"`
	Network        NetworkConfig `toml:"network"`
	Remote         RemoteConfig  `toml:"remote"`
	Log            LogConfig     `toml:"log"`
}

// SyncConfig tunes the drain coordinator.
type SyncConfig struct {
	Interval       time.Duration `toml:"interval"`
	RetryBudget    int           `toml:"retry_budget"`
	AttemptTimeout time.Duration `toml:"attempt_timeout"`
	DeadLetter     bool          `toml:"dead_letter"`
}

// NetworkConfig controls the connectivity monitor.
type NetworkConfig struct {
	Mode          string        `toml:"mode"` // auto, online or offline
	ProbeAddr     string        `toml:"probe_addr"`
	ProbeInterval time.Duration `toml:"probe_interval"`
	ProbeTimeout  time.Duration `toml:"probe_timeout"`
}

// RemoteConfig selects and configures the remote document store.
type RemoteConfig struct {
	Backend         string `toml:"backend"` // firestore or memory
	ProjectID       string `toml:"project_id"`
	DatabaseID      string `toml:"database_id"`
	CredentialsFile string `toml:"credentials_file"`
	Endpoint        string `toml:"endpoint"`
}

// LogConfig controls the daemon's rotating log file.
type LogConfig struct {
	Level      string `toml:"level"`
	MaxSizeMB  int    `toml:"max_size_mb"`
	MaxBackups int    `toml:"max_backups"`
	MaxAgeDays int    `toml:"max_age_days"`
}

// Backends.
const (
	BackendFirestore = "firestore"
	BackendMemory    = "memory"
)

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Sync: SyncConfig{
			Interval:       30 * time.Second,
			RetryBudget:    3,
			AttemptTimeout: 10 * time.Second,
			DeadLetter:     true,
		},
		Network: NetworkConfig{
			Mode:          "auto",
			ProbeAddr:     "firestore.googleapis.com:443",
			ProbeInterval: 15 * time.Second,
			ProbeTimeout:  3 * time.Second,
		},
		Remote: RemoteConfig{
			Backend:    BackendFirestore,
			DatabaseID: "(default)",
		},
		Log: LogConfig{
			Level:      "info",
			MaxSizeMB:  20,
			MaxBackups: 5,
			MaxAgeDays: 30,
		},
	}
}

// Load reads config from the given path on top of the defaults.
// Returns nil config and error if file missing.
func Load(path string) (*Config, error) {
	cfg := Default()
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadOrDefault is Load, except that a missing file yields the defaults.
func LoadOrDefault(path string) (*Config, error) {
	cfg, err := Load(path)
	if errors.Is(err, fs.ErrNotExist) {
		return Default(), nil
	}
	return cfg, err
}

// Save writes config to the given path, creating parent dirs as needed.
func Save(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	encErr := toml.NewEncoder(f).Encode(cfg)
	if closeErr := f.Close(); closeErr != nil && encErr == nil {
		return closeErr
	}
	return encErr
}

// Validate checks values that would otherwise fail later at startup.
func (c *Config) Validate() error {
	var errs []error
	if c.Sync.Interval <= 0 {
		errs = append(errs, fmt.Errorf("sync.interval must be positive, got %s", c.Sync.Interval))
	}
	if c.Sync.RetryBudget < 1 {
		errs = append(errs, fmt.Errorf("sync.retry_budget must be at least 1, got %d", c.Sync.RetryBudget))
	}
	if c.Sync.AttemptTimeout <= 0 {
		errs = append(errs, fmt.Errorf("sync.attempt_timeout must be positive, got %s", c.Sync.AttemptTimeout))
	}
	switch c.Network.Mode {
	case "auto", "online", "offline":
	default:
		errs = append(errs, fmt.Errorf("network.mode must be auto, online or offline, got %q", c.Network.Mode))
	}
	switch c.Remote.Backend {
	case BackendMemory:
	case BackendFirestore:
		if c.Remote.ProjectID == "" {
			errs = append(errs, errors.New("remote.project_id is required for the firestore backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("remote.backend must be firestore or memory, got %q", c.Remote.Backend))
	}
	return errors.Join(errs...)
}
