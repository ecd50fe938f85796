package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Environment variables that override config.toml.
const (
	EnvProfile         = "CASHTRACK_PROFILE"
	EnvSyncInterval    = "CASHTRACK_SYNC_INTERVAL"
	EnvRetryBudget     = "CASHTRACK_RETRY_BUDGET"
	EnvAttemptTimeout  = "CASHTRACK_ATTEMPT_TIMEOUT"
	EnvDeadLetter      = "CASHTRACK_DEAD_LETTER"
	EnvNetworkMode     = "CASHTRACK_NETWORK_MODE"
	EnvProbeAddr       = "CASHTRACK_PROBE_ADDR"
	EnvRemoteBackend   = "CASHTRACK_REMOTE_BACKEND"
	EnvProjectID       = "CASHTRACK_FIRESTORE_PROJECT"
	EnvDatabaseID      = "CASHTRACK_FIRESTORE_DATABASE"
	EnvEndpoint        = "CASHTRACK_FIRESTORE_ENDPOINT"
	EnvCredentialsFile = "GOOGLE_APPLICATION_CREDENTIALS"
	EnvLogLevel        = "CASHTRACK_LOG_LEVEL"
)

// ApplyEnv overrides cfg with any CASHTRACK_* variables set in the process
// environment. Callers load .env files first.
func ApplyEnv(cfg *Config) error {
	return applyEnv(cfg, os.Getenv)
}

func applyEnv(cfg *Config, getenv func(string) string) error {
	str := func(key string, dst *string) {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			*dst = v
		}
	}
	dur := func(key string, dst *time.Duration) error {
		v := strings.TrimSpace(getenv(key))
		if v == "" {
			return nil
		}
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
		*dst = d
		return nil
	}

	str(EnvProfile, &cfg.DefaultProfile)
	str(EnvNetworkMode, &cfg.Network.Mode)
	str(EnvProbeAddr, &cfg.Network.ProbeAddr)
	str(EnvRemoteBackend, &cfg.Remote.Backend)
	str(EnvProjectID, &cfg.Remote.ProjectID)
	str(EnvDatabaseID, &cfg.Remote.DatabaseID)
	str(EnvEndpoint, &cfg.Remote.Endpoint)
	str(EnvCredentialsFile, &cfg.Remote.CredentialsFile)
	str(EnvLogLevel, &cfg.Log.Level)

	if err := dur(EnvSyncInterval, &cfg.Sync.Interval); err != nil {
		return err
	}
	if err := dur(EnvAttemptTimeout, &cfg.Sync.AttemptTimeout); err != nil {
		return err
	}
	if v := strings.TrimSpace(getenv(EnvRetryBudget)); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvRetryBudget, err)
		}
		cfg.Sync.RetryBudget = n
	}
	if v := strings.TrimSpace(getenv(EnvDeadLetter)); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvDeadLetter, err)
		}
		cfg.Sync.DeadLetter = b
	}
	return nil
}
