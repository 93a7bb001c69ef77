package core

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
)

// IsExecutable checks if a file mode has any executable bits set.
// It checks the executable bits for owner, group, and others (0111).
func IsExecutable(info fs.FileInfo) bool {
	permissions := info.Mode().Perm()
	return permissions&0111 != 0
}

// ListSubdirectories returns the absolute paths of the immediate subdirectories
// of dir, sorted by name. Hidden directories are skipped.
func ListSubdirectories(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read directory %s: %w", dir, err)
	}

	absDir, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve directory %s: %w", dir, err)
	}

	var dirs []string
	for _, entry := range entries {
		if !entry.IsDir() || entry.Name()[0] == '.' {
			continue
		}
		dirs = append(dirs, filepath.Join(absDir, entry.Name()))
	}

	slices.Sort(dirs)
	return dirs, nil
}
