// Package fsutil provides path and display helpers for the reader.
package fsutil

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
)

// Environment variable names used for path resolution.
const (
	envCacheDir = "CACHE_DIR"
)

// Common application directory and path constants.
const (
	appName                = "audio-bible"
	tmpDir                 = "/tmp"
	dotCache               = ".cache"
	defaultDirPermissions  = 0o750
	invalidCharReplacement = "_"
)

// Time formatting constants.
const (
	secondsInMinute = 60
	formatClock     = "%d:%02d"
)

// Error message and format string constants.
const (
	errFmtFailedToCreateDir = "failed to create directory %s: %w"
)

// GetCacheDir returns the application's data directory, respecting the
// CACHE_DIR override and falling back to a user-based cache directory.
func GetCacheDir() string {
	if cacheDir := os.Getenv(envCacheDir); cacheDir != "" {
		return cacheDir
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(tmpDir, appName)
	}

	return filepath.Join(homeDir, dotCache, appName)
}

// EnsureDir ensures a directory exists at the given path, creating it if it doesn't.
func EnsureDir(path string) error {
	_, statErr := os.Stat(path)
	if os.IsNotExist(statErr) {
		mkdirErr := os.MkdirAll(path, defaultDirPermissions)
		if mkdirErr != nil {
			return fmt.Errorf(errFmtFailedToCreateDir, path, mkdirErr)
		}
	}

	return nil
}

// FormatTime renders seconds as "m:ss". Negative, NaN and infinite inputs render as "0:00".
func FormatTime(seconds float64) string {
	if math.IsNaN(seconds) || math.IsInf(seconds, 0) || seconds < 0 {
		seconds = 0
	}

	total := int(math.Floor(seconds))

	return fmt.Sprintf(formatClock, total/secondsInMinute, total%secondsInMinute)
}

// SanitizeKey turns a verse reference into a storage key by replacing
// characters that are unsafe in file and object names.
func SanitizeKey(reference string) string {
	replacer := strings.NewReplacer(
		" ", invalidCharReplacement,
		"<", invalidCharReplacement,
		">", invalidCharReplacement,
		":", invalidCharReplacement,
		"\"", invalidCharReplacement,
		"/", invalidCharReplacement,
		"\\", invalidCharReplacement,
		"|", invalidCharReplacement,
		"?", invalidCharReplacement,
		"*", invalidCharReplacement,
	)

	return replacer.Replace(strings.TrimSpace(reference))
}
