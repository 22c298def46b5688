// Package envfile handles discovery and IO of dotenv files, the local
// source and destination of secret values.
package envfile

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	kerrors "github.com/PolarWolf314/kowhai/internal/errors"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/joho/godotenv"
)

// Discover finds dotenv files under root matching the given glob patterns.
// With no patterns it looks for the conventional ".env" names. Results are
// deduplicated, sorted, and relative to root.
func Discover(root string, patterns []string) ([]string, error) {
	if len(patterns) == 0 {
		patterns = []string{".env", "**/.env", ".env.*", "**/.env.*"}
	}

	seen := make(map[string]bool)
	var files []string
	for _, pattern := range patterns {
		matches, err := doublestar.Glob(os.DirFS(root), pattern)
		if err != nil {
			return nil, fmt.Errorf("invalid pattern %q: %w", pattern, err)
		}
		for _, match := range matches {
			info, err := os.Stat(filepath.Join(root, match))
			if err != nil || info.IsDir() {
				continue
			}
			if !seen[match] {
				seen[match] = true
				files = append(files, match)
			}
		}
	}

	if len(files) == 0 {
		return nil, kerrors.ErrNoFilesFound
	}
	sort.Strings(files)
	return files, nil
}

// Parse reads a dotenv file into a name to value map.
func Parse(path string) (map[string]string, error) {
	values, err := godotenv.Read(path)
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return values, nil
}

// Write serializes values to a dotenv file. The file is created with owner
// only permissions since it holds plaintext secrets.
func Write(path string, values map[string]string) error {
	content, err := godotenv.Marshal(values)
	if err != nil {
		return fmt.Errorf("failed to serialize env values: %w", err)
	}
	if err := os.WriteFile(path, []byte(content+"\n"), 0600); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}
