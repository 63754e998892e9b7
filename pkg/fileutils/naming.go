package fileutils

import (
	"fmt"
	"os"
	"path/filepath"
)

// UniqueFilePath returns path, or the first "name (n).ext" variant of it that
// does not exist yet.
func UniqueFilePath(path string) string {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return path
	}

	dir := filepath.Dir(path)
	ext := filepath.Ext(path)
	stem := Stem(path)

	for i := 1; i < 1000; i++ {
		candidate := filepath.Join(dir, fmt.Sprintf("%s (%d)%s", stem, i, ext))
		if _, err := os.Stat(candidate); os.IsNotExist(err) {
			return candidate
		}
	}

	return path
}

// UniqueDirPath returns path, or the first "name (n)" variant of it that does
// not exist yet.
func UniqueDirPath(path string) string {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return path
	}

	parent := filepath.Dir(path)
	name := filepath.Base(path)

	for i := 1; i < 1000; i++ {
		candidate := filepath.Join(parent, fmt.Sprintf("%s (%d)", name, i))
		if _, err := os.Stat(candidate); os.IsNotExist(err) {
			return candidate
		}
	}

	return path
}
