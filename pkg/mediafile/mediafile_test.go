package mediafile

import (
	"testing"

	"github.com/bookferry/bookferry/pkg/config"
	"github.com/bookferry/bookferry/pkg/models"
	"github.com/stretchr/testify/assert"
)

func newTestTypes(t *testing.T) *Types {
	return NewTypes(config.NewForTest(t.TempDir()))
}

func TestExt(t *testing.T) {
	assert.Equal(t, "epub", Ext("/x/Dune.EPUB"))
	assert.Equal(t, "gz", Ext("a.tar.gz"))
	assert.Equal(t, "", Ext("README"))
}

func TestTypes_Predicates(t *testing.T) {
	types := newTestTypes(t)

	assert.True(t, types.IsEBook("book.epub"))
	assert.True(t, types.IsEBook("book.PDF"))
	assert.False(t, types.IsEBook("book.mp3"))
	assert.True(t, types.IsAudio("part 01.mp3"))
	assert.True(t, types.IsMagazine("issue.cbz"))
	assert.True(t, types.IsPayload("x.m4b"))
	assert.False(t, types.IsPayload("x.nfo"))
	assert.False(t, types.IsPayload("x.zip"))
}

func TestTypes_Predicate(t *testing.T) {
	types := newTestTypes(t)

	assert.True(t, types.Is(models.MediaKindEBook, "a.mobi"))
	assert.False(t, types.Is(models.MediaKindEBook, "a.m4b"))
	assert.True(t, types.Is(models.MediaKindAudioBook, "a.m4b"))
	assert.True(t, types.Is(models.MediaKindMagazine, "a.cbr"))
	assert.True(t, types.Is("unknown", "a.flac"))
}

func TestTypes_Preference(t *testing.T) {
	types := newTestTypes(t)

	assert.Equal(t, []string{"epub", "mobi", "azw3", "pdf"}, types.Preference(models.MediaKindEBook))
	assert.Equal(t, "mp3", types.Preference(models.MediaKindAudioBook)[0])
}

func TestIsCoverAndOPF(t *testing.T) {
	assert.True(t, IsCover("cover.JPG"))
	assert.False(t, IsCover("cover.png"))
	assert.True(t, IsOPF("metadata.opf"))
}
