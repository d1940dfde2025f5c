package runner

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Discover lists the files in dir accepted by supports, sorted by name.
// Subdirectories and hidden files are skipped.
func Discover(dir string, supports func(path string) bool) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read input directory: %w", err)
	}

	files := make([]string, 0, len(entries))
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || strings.HasPrefix(name, ".") {
			continue
		}
		path := filepath.Join(dir, name)
		if supports != nil && !supports(path) {
			continue
		}
		files = append(files, path)
	}
	sort.Strings(files)
	return files, nil
}
