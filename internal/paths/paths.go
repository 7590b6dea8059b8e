// Package paths lays out the on-disk state of mailingest: the shared
// database and config under the base directory, and one run directory per
// archive holding its lock, health socket and logs.
package paths

import (
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
)

// HomeEnv overrides the base directory when set.
const HomeEnv = "MAILINGEST_HOME"

// BaseDir returns ~/.mailingest, or $MAILINGEST_HOME when set.
func BaseDir() string {
	if dir := os.Getenv(HomeEnv); dir != "" {
		return dir
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".mailingest")
}

// DBPath returns the default database location.
func DBPath() string {
	return filepath.Join(BaseDir(), "mailingest.db")
}

// ConfigPath returns the default config file location.
func ConfigPath() string {
	return filepath.Join(BaseDir(), "config.toml")
}

// ArchiveKey names the run directory of an archive. Two spellings of the
// same path map to the same key.
func ArchiveKey(archivePath string) (string, error) {
	abs, err := filepath.Abs(archivePath)
	if err != nil {
		return "", fmt.Errorf("resolve archive path: %w", err)
	}
	sum := sha1.Sum([]byte(filepath.Clean(abs)))
	// Kept short so the socket path stays under the sun_path limit.
	return hex.EncodeToString(sum[:8]), nil
}

// RunDir returns the directory for one archive's runs.
func RunDir(key string) string {
	return filepath.Join(BaseDir(), "runs", key)
}

// SocketPath returns the health socket path for an archive.
func SocketPath(key string) string {
	return filepath.Join(RunDir(key), "ingest.sock")
}

// LockPath returns the lock file path for an archive.
func LockPath(key string) string {
	return filepath.Join(RunDir(key), "LOCK")
}

// LogDir returns the log directory for an archive.
func LogDir(key string) string {
	return filepath.Join(RunDir(key), "logs")
}

// LogPath returns the daemon log file path for an archive.
func LogPath(key string) string {
	return filepath.Join(LogDir(key), "mailingestd.log")
}

// EnsureRunDir creates the run and log directories if they don't exist.
func EnsureRunDir(key string) error {
	for _, d := range []string{RunDir(key), LogDir(key)} {
		if err := os.MkdirAll(d, 0700); err != nil {
			return err
		}
	}
	return nil
}
