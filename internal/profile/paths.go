// Package profile locates the per-profile state directory. Each profile has
// its own queue, socket, lock and logs, so one machine can track several tills.
package profile

import (
	"os"
	"path/filepath"
)

// EnvHome overrides the base directory, mainly for tests and containers.
const EnvHome = "CASHTRACK_HOME"

// BaseDir returns ~/.cashtrack, or $CASHTRACK_HOME if set.
func BaseDir() string {
	if dir := os.Getenv(EnvHome); dir != "" {
		return dir
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".cashtrack")
}

// Dir returns the profile-specific directory.
func Dir(name string) string {
	return filepath.Join(BaseDir(), "profiles", name)
}

// SocketPath returns the UDS socket path for a profile.
func SocketPath(name string) string {
	return filepath.Join(Dir(name), "daemon.sock")
}

// LockPath returns the lock file path for a profile.
func LockPath(name string) string {
	return filepath.Join(Dir(name), "LOCK")
}

// QueuePath returns the offline queue database path.
func QueuePath(name string) string {
	return filepath.Join(Dir(name), "queue.db")
}

// LogDir returns the log directory for a profile.
func LogDir(name string) string {
	return filepath.Join(Dir(name), "logs")
}

// LogPath returns the daemon log file path.
func LogPath(name string) string {
	return filepath.Join(LogDir(name), "cashd.log")
}

// ConfigPath returns the global config file path.
func ConfigPath() string {
	return filepath.Join(BaseDir(), "config.toml")
}

// EnvPath returns the optional dotenv file loaded before config overrides.
func EnvPath() string {
	return filepath.Join(BaseDir(), ".env")
}

// EnsureDir creates the profile directory tree with proper permissions.
func EnsureDir(name string) error {
	dirs := []string{
		Dir(name),
		LogDir(name),
	}
	for _, d := range dirs {
		if err := os.MkdirAll(d, 0700); err != nil {
			return err
		}
	}
	return nil
}
