package postprocess

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/bookferry/bookferry/internal/testgen"
	"github.com/bookferry/bookferry/pkg/archive"
	"github.com/bookferry/bookferry/pkg/models"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUnpackLabel(t *testing.T) {
	assert.Equal(t, "AC DC Biography", unpackLabel("AC/DC  Biography"))
	assert.Equal(t, "download", unpackLabel(".."))
	assert.Equal(t, "download", unpackLabel("  "))
}

func TestResolveCandidate_ArchiveInsideFolder(t *testing.T) {
	f := newFixture(t)
	p := f.processor(t)
	dir := testgen.CreateSubDir(t, f.downloads, "The Great Escape")
	testgen.GenerateZip(t, dir, "release.zip", []testgen.ArchiveEntry{
		{Name: "nested/book.epub", Content: []byte("epub")},
	})
	req := &models.Request{Title: "The Great Escape", MediaKind: models.MediaKindEBook}

	src, err := p.resolveCandidate(context.Background(), f.jobLog, f.downloads, "The Great Escape", req)
	require.NoError(t, err)

	assert.Equal(t, archive.UnpackDir(dir, "The Great Escape"), src.dir)
	assert.True(t, src.scratch)
	assert.True(t, testgen.Exists(filepath.Join(src.dir, "book.epub")))
}

func TestResolveCandidate_EmptyFolderIsNotReady(t *testing.T) {
	f := newFixture(t)
	p := f.processor(t)
	testgen.CreateSubDir(t, f.downloads, "The Great Escape")
	req := &models.Request{Title: "The Great Escape", MediaKind: models.MediaKindEBook}

	_, err := p.resolveCandidate(context.Background(), f.jobLog, f.downloads, "The Great Escape", req)
	assert.True(t, errors.Is(err, ErrNotReady))
}

func TestResolveCandidate_WrongKindIsNotReady(t *testing.T) {
	f := newFixture(t)
	p := f.processor(t)
	dir := testgen.CreateSubDir(t, f.downloads, "The Great Escape")
	testgen.WriteFile(t, dir, "book.epub", []byte("epub"))
	req := &models.Request{Title: "The Great Escape", MediaKind: models.MediaKindAudioBook}

	_, err := p.resolveCandidate(context.Background(), f.jobLog, f.downloads, "The Great Escape", req)
	assert.True(t, errors.Is(err, ErrNotReady))
}

func TestResolveCandidate_UnhandledFile(t *testing.T) {
	f := newFixture(t)
	p := f.processor(t)
	testgen.WriteFile(t, f.downloads, "The Great Escape.txt", []byte("just text"))
	req := &models.Request{Title: "The Great Escape", MediaKind: models.MediaKindEBook}

	_, err := p.resolveCandidate(context.Background(), f.jobLog, f.downloads, "The Great Escape.txt", req)
	assert.True(t, errors.Is(err, ErrNotReady))
}
