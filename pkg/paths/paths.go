package paths

import (
	"os"
	"path/filepath"
)

// GetConfigDir returns the user's config directory for hdtelemetry.
//
// If the home directory cannot be determined, it falls back to a directory
// under the system temporary directory.
func GetConfigDir() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return filepath.Clean(filepath.Join(os.TempDir(), ".hdtelemetry-config"))
	}
	return filepath.Clean(filepath.Join(homeDir, ".config", "hdtelemetry"))
}

// GetDataDir returns the user's data directory for hdtelemetry (logs, install id).
func GetDataDir() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return filepath.Clean(filepath.Join(os.TempDir(), ".hdtelemetry"))
	}
	return filepath.Clean(filepath.Join(homeDir, ".hdtelemetry"))
}
