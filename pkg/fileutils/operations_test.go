package fileutils

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/bookferry/bookferry/internal/testgen"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func modeOf(t *testing.T, path string) os.FileMode {
	t.Helper()
	info, err := os.Stat(path)
	require.NoError(t, err)
	return info.Mode().Perm()
}

func TestCopyVerified(t *testing.T) {
	dir := t.TempDir()
	src := testgen.WriteFile(t, dir, "src.epub", []byte("some epub content"))
	dst := filepath.Join(dir, "dst.epub")

	n, err := CopyVerified(src, dst, 0640)
	require.NoError(t, err)
	assert.EqualValues(t, len("some epub content"), n)

	content, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, "some epub content", string(content))
	assert.Equal(t, os.FileMode(0640), modeOf(t, dst))
	assert.True(t, testgen.Exists(src))
}

func TestCopyVerified_MissingSource(t *testing.T) {
	dir := t.TempDir()
	_, err := CopyVerified(filepath.Join(dir, "nope"), filepath.Join(dir, "dst"), 0644)
	require.Error(t, err)
	assert.False(t, testgen.Exists(filepath.Join(dir, "dst")))
}

func TestTransfer_Move(t *testing.T) {
	dir := t.TempDir()
	src := testgen.WriteFile(t, dir, "in/book.epub", []byte("epub"))
	dst := filepath.Join(dir, "book.epub")

	result, err := Transfer(src, dst, true, 0600)
	require.NoError(t, err)
	assert.True(t, result.Moved)
	assert.EqualValues(t, 4, result.Size)
	assert.False(t, testgen.Exists(src))
	assert.Equal(t, os.FileMode(0600), modeOf(t, dst))
}

func TestTransfer_Copy(t *testing.T) {
	dir := t.TempDir()
	src := testgen.WriteFile(t, dir, "in/book.epub", []byte("epub"))
	dst := filepath.Join(dir, "book.epub")

	result, err := Transfer(src, dst, false, 0644)
	require.NoError(t, err)
	assert.False(t, result.Moved)
	assert.True(t, testgen.Exists(src))
	assert.True(t, testgen.Exists(dst))
}

func TestTransfer_MissingDestinationDir(t *testing.T) {
	dir := t.TempDir()
	src := testgen.WriteFile(t, dir, "book.epub", []byte("epub"))

	_, err := Transfer(src, filepath.Join(dir, "missing", "book.epub"), true, 0644)
	require.Error(t, err)
	assert.True(t, testgen.Exists(src), "source must survive a failed move")
}

func TestEnsureDir(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "a", "b", "c")

	require.NoError(t, EnsureDir(target, 0750))
	assert.Equal(t, os.FileMode(0750), modeOf(t, target))
	assert.Equal(t, os.FileMode(0750), modeOf(t, filepath.Join(dir, "a")))

	// Existing directories are left alone.
	require.NoError(t, EnsureDir(target, 0700))
	assert.Equal(t, os.FileMode(0750), modeOf(t, target))

	file := testgen.WriteFile(t, dir, "file", []byte("x"))
	assert.Error(t, EnsureDir(file, 0755))
}

func keepBookFiles(name string) bool {
	switch filepath.Ext(name) {
	case ".epub", ".jpg", ".opf":
		return true
	}
	return false
}

func TestOrganizeRootLevelFile(t *testing.T) {
	dir := t.TempDir()
	book := testgen.WriteFile(t, dir, "Dune.epub", []byte("epub"))
	testgen.WriteFile(t, dir, "Dune.jpg", []byte("jpg"))
	testgen.WriteFile(t, dir, "Other.epub", []byte("other"))

	result, err := OrganizeRootLevelFile(book, keepBookFiles, false, 0644, 0755)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "Dune"), result.Folder)
	assert.Equal(t, filepath.Join(dir, "Dune", "Dune.epub"), result.NewPath)
	assert.Equal(t, 1, result.Siblings)

	assert.Equal(t, []string{"Dune.epub", "Dune.jpg"}, testgen.ListNames(t, result.Folder))
	assert.False(t, testgen.Exists(book))
	assert.True(t, testgen.Exists(filepath.Join(dir, "Other.epub")))
}

func TestOrganizeRootLevelFile_LeavesOtherReleases(t *testing.T) {
	dir := t.TempDir()
	book := testgen.WriteFile(t, dir, "Dune.epub", []byte("dune"))
	testgen.WriteFile(t, dir, "Dune.sequel.epub", []byte("messiah"))
	testgen.WriteFile(t, dir, "Dune.torrent", []byte("torrent"))
	testgen.WriteFile(t, dir, "Dune.epub.part", []byte("partial"))
	testgen.WriteFile(t, dir, "Dune.opf", []byte("<package/>"))

	result, err := OrganizeRootLevelFile(book, keepBookFiles, false, 0644, 0755)
	require.NoError(t, err)

	assert.Equal(t, []string{"Dune.epub", "Dune.opf"}, testgen.ListNames(t, result.Folder))
	assert.Equal(t, []string{"Dune", "Dune.epub.part", "Dune.sequel.epub", "Dune.torrent"}, testgen.ListNames(t, dir))
}

func TestOrganizeRootLevelFile_CopyKeepsOriginal(t *testing.T) {
	dir := t.TempDir()
	book := testgen.WriteFile(t, dir, "Dune.epub", []byte("epub"))
	testgen.CreateSubDir(t, dir, "Dune")

	result, err := OrganizeRootLevelFile(book, keepBookFiles, true, 0644, 0755)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "Dune (1)"), result.Folder)
	assert.True(t, testgen.Exists(book))
	assert.True(t, testgen.Exists(result.NewPath))
}

func TestUniquePaths(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "book.epub")
	assert.Equal(t, path, UniqueFilePath(path))

	testgen.WriteFile(t, dir, "book.epub", []byte("x"))
	assert.Equal(t, filepath.Join(dir, "book (1).epub"), UniqueFilePath(path))

	testgen.CreateSubDir(t, dir, "folder")
	assert.Equal(t, filepath.Join(dir, "folder (1)"), UniqueDirPath(filepath.Join(dir, "folder")))
}

func TestCoverExistsWithBaseName(t *testing.T) {
	dir := t.TempDir()
	assert.Empty(t, CoverExistsWithBaseName(dir, "Dune"))

	testgen.WriteFile(t, dir, "Dune.png", []byte("png"))
	assert.Equal(t, filepath.Join(dir, "Dune.png"), CoverExistsWithBaseName(dir, "Dune"))
}
