package core

import (
	"fmt"
	"os"
	"path/filepath"
)

// GetEnv retrieves an environment variable, checking both the standard name
// and a HOOKHOST-prefixed version. Returns the first non-empty value found.
func GetEnv(key string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return os.Getenv("HOOKHOST_" + key)
}

// GetHomeDir returns ~/.hookhost, honoring HOOKHOST_HOME when set.
func GetHomeDir() (string, error) {
	if dir := os.Getenv("HOOKHOST_HOME"); dir != "" {
		return dir, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user home directory: %w", err)
	}
	return filepath.Join(home, HomeDirName), nil
}
