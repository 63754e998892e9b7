// Package testgen builds download-directory fixtures: payload files, archives
// and cover images, for exercising the reconciliation pipeline.
package testgen

import (
	"os"
	"path/filepath"
	"testing"
)

// EPUBOptions configures the generated EPUB file.
type EPUBOptions struct {
	Title   string
	Authors []string
}

// ArchiveEntry is a single file placed into a generated archive.
type ArchiveEntry struct {
	Name    string
	Content []byte
}

// CreateSubDir creates a subdirectory within the given parent directory.
// Returns the full path to the created subdirectory.
func CreateSubDir(t *testing.T, parent, name string) string {
	t.Helper()
	dir := filepath.Join(parent, name)
	if err := os.MkdirAll(dir, 0755); err != nil {
		t.Fatalf("failed to create subdirectory %s: %v", dir, err)
	}
	return dir
}

// WriteFile creates a file with the given content in the specified directory,
// creating parent directories as needed. Returns the full path.
func WriteFile(t *testing.T, dir, name string, content []byte) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatalf("failed to create parent of %s: %v", path, err)
	}
	if err := os.WriteFile(path, content, 0644); err != nil {
		t.Fatalf("failed to write file %s: %v", path, err)
	}
	return path
}

// Exists reports whether path exists.
func Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// ListNames returns the sorted entry names of dir.
func ListNames(t *testing.T, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("failed to read dir %s: %v", dir, err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names
}
