package core

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsExecutable(t *testing.T) {
	tmpDir := t.TempDir()

	execPath := filepath.Join(tmpDir, "executable.sh")
	// #nosec G306 -- test file permissions are acceptable for temporary test files
	require.NoError(t, os.WriteFile(execPath, []byte("#!/bin/sh\necho test"), 0755))
	info, err := os.Stat(execPath)
	require.NoError(t, err)
	assert.True(t, IsExecutable(info))

	nonExecPath := filepath.Join(tmpDir, "non-executable.txt")
	// #nosec G306 -- test file permissions are acceptable for temporary test files
	require.NoError(t, os.WriteFile(nonExecPath, []byte("test content"), 0644))
	info, err = os.Stat(nonExecPath)
	require.NoError(t, err)
	assert.False(t, IsExecutable(info))
}

func TestListSubdirectories(t *testing.T) {
	root := t.TempDir()

	// #nosec G301 -- test directory permissions are acceptable for temporary test files
	require.NoError(t, os.MkdirAll(filepath.Join(root, "zeta"), 0755))
	// #nosec G301 -- test directory permissions are acceptable for temporary test files
	require.NoError(t, os.MkdirAll(filepath.Join(root, "alpha"), 0755))
	// #nosec G301 -- test directory permissions are acceptable for temporary test files
	require.NoError(t, os.MkdirAll(filepath.Join(root, ".cache"), 0755))
	// #nosec G306 -- test file permissions are acceptable for temporary test files
	require.NoError(t, os.WriteFile(filepath.Join(root, "README.md"), []byte("readme"), 0644))

	dirs, err := ListSubdirectories(root)
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(root, "alpha"), filepath.Join(root, "zeta")}, dirs)
}

func TestListSubdirectories_Missing(t *testing.T) {
	_, err := ListSubdirectories(filepath.Join(t.TempDir(), "missing"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read directory")
}

func TestJoinMapKeys(t *testing.T) {
	keys := map[string]struct{}{"warn": {}, "debug": {}, "info": {}}
	assert.Equal(t, "debug, info, warn", JoinMapKeys(keys))
}

func TestGetEnv(t *testing.T) {
	t.Setenv("HOOKHOST_SAMPLE_KEY", "prefixed")
	assert.Equal(t, "prefixed", GetEnv("SAMPLE_KEY"))

	t.Setenv("SAMPLE_KEY", "plain")
	assert.Equal(t, "plain", GetEnv("SAMPLE_KEY"))
}

func TestGetHomeDir_Override(t *testing.T) {
	t.Setenv("HOOKHOST_HOME", "/tmp/hookhost-home")
	dir, err := GetHomeDir()
	require.NoError(t, err)
	assert.Equal(t, "/tmp/hookhost-home", dir)
}

// TestSuggestSimilarName tests typo suggestions
func TestSuggestSimilarName(t *testing.T) {
	candidates := []string{"import_request", "filter_request", "boot_request"}

	assert.Equal(t, "import_request", SuggestSimilarName(candidates, "imprt_request"))
	assert.Equal(t, "boot_request", SuggestSimilarName(candidates, "BOOT_REQUEST"))
	assert.Empty(t, SuggestSimilarName(candidates, "completely_different"))
	assert.Empty(t, SuggestSimilarName(nil, "boot_request"))
}
