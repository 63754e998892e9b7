package fileutils

import (
	"bytes"
	"crypto/sha256"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
)

// TransferResult describes a single verified copy or move.
type TransferResult struct {
	Source string
	Dest   string
	Size   int64
	Moved  bool
}

// Transfer copies src to dst, or moves it when move is set, and applies mode
// to the result. A move first tries a rename and falls back to a verified
// copy followed by removal of the source.
func Transfer(src, dst string, move bool, mode os.FileMode) (*TransferResult, error) {
	result := &TransferResult{Source: src, Dest: dst}

	if move {
		info, err := os.Stat(src)
		if err != nil {
			return result, errors.WithStack(err)
		}
		if err := os.Rename(src, dst); err == nil {
			result.Size = info.Size()
			result.Moved = true
			return result, errors.WithStack(os.Chmod(dst, mode))
		}
	}

	size, err := CopyVerified(src, dst, mode)
	if err != nil {
		return result, err
	}
	result.Size = size

	if move {
		if err := os.Remove(src); err != nil {
			os.Remove(dst)
			return result, errors.WithStack(err)
		}
		result.Moved = true
	}

	return result, nil
}

// CopyVerified copies src to dst and re-reads the written file to confirm its
// size and sha256 match the source. A mismatched copy is removed.
func CopyVerified(src, dst string, mode os.FileMode) (int64, error) {
	in, err := os.Open(src)
	if err != nil {
		return 0, errors.WithStack(err)
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, mode)
	if err != nil {
		return 0, errors.WithStack(err)
	}

	srcHash := sha256.New()
	written, err := io.Copy(out, io.TeeReader(in, srcHash))
	closeErr := out.Close()
	if err != nil {
		os.Remove(dst)
		return 0, errors.WithStack(err)
	}
	if closeErr != nil {
		os.Remove(dst)
		return 0, errors.WithStack(closeErr)
	}

	dstSum, dstSize, err := hashFile(dst)
	if err != nil {
		os.Remove(dst)
		return 0, err
	}
	if dstSize != written {
		os.Remove(dst)
		return 0, errors.Errorf("copy size mismatch for %s: wrote %d bytes, found %d", dst, written, dstSize)
	}
	if !bytes.Equal(srcHash.Sum(nil), dstSum) {
		os.Remove(dst)
		return 0, errors.Errorf("copy checksum mismatch for %s", dst)
	}

	// OpenFile only applies mode on creation and is subject to umask.
	if err := os.Chmod(dst, mode); err != nil {
		return written, errors.WithStack(err)
	}

	return written, nil
}

func hashFile(path string) ([]byte, int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, errors.WithStack(err)
	}
	defer f.Close()

	h := sha256.New()
	n, err := io.Copy(h, f)
	if err != nil {
		return nil, 0, errors.WithStack(err)
	}
	return h.Sum(nil), n, nil
}

// EnsureDir creates path and any missing parents, applying mode to every
// directory it creates.
func EnsureDir(path string, mode os.FileMode) error {
	path = filepath.Clean(path)
	if info, err := os.Stat(path); err == nil {
		if !info.IsDir() {
			return errors.Errorf("%s exists and is not a directory", path)
		}
		return nil
	}

	if err := EnsureDir(filepath.Dir(path), mode); err != nil {
		return err
	}
	if err := os.Mkdir(path, mode); err != nil && !os.IsExist(err) {
		return errors.WithStack(err)
	}
	return errors.WithStack(os.Chmod(path, mode))
}

// OrganizeResult contains the results of organizing a root-level file.
type OrganizeResult struct {
	OriginalPath string
	Folder       string
	NewPath      string
	Siblings     int
}

// OrganizeRootLevelFile gives a file sitting directly in a download root its
// own folder, named after its stem, and moves (or copies) it there together
// with every sibling that has exactly the same stem and is accepted by keep.
func OrganizeRootLevelFile(originalPath string, keep func(name string) bool, copyOnly bool, fileMode, dirMode os.FileMode) (*OrganizeResult, error) {
	result := &OrganizeResult{OriginalPath: originalPath}

	baseDir := filepath.Dir(originalPath)
	stem := Stem(originalPath)
	folder := UniqueDirPath(filepath.Join(baseDir, stem))
	if err := EnsureDir(folder, dirMode); err != nil {
		return result, err
	}
	result.Folder = folder

	entries, err := os.ReadDir(baseDir)
	if err != nil {
		return result, errors.WithStack(err)
	}

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		src := filepath.Join(baseDir, name)
		if src != originalPath && (Stem(name) != stem || !keep(name)) {
			continue
		}
		dst := filepath.Join(folder, name)
		if _, err := Transfer(src, dst, !copyOnly, fileMode); err != nil {
			if src == originalPath {
				os.RemoveAll(folder)
				return result, err
			}
			continue
		}
		if src == originalPath {
			result.NewPath = dst
		} else {
			result.Siblings++
		}
	}

	return result, nil
}

// Stem returns the base name of path without its extension.
func Stem(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// CoverImageExtensions contains all supported image extensions for cover files.
var CoverImageExtensions = []string{".jpg", ".jpeg", ".png", ".webp", ".gif"}

// CoverExistsWithBaseName returns the path of any image in dir named
// baseName, whatever its extension, or "" when there is none.
func CoverExistsWithBaseName(dir, baseName string) string {
	for _, ext := range CoverImageExtensions {
		coverPath := filepath.Join(dir, baseName+ext)
		if _, err := os.Stat(coverPath); err == nil {
			return coverPath
		}
	}
	return ""
}
