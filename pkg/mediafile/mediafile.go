// Package mediafile classifies files by extension against the configured
// ebook, audiobook and magazine type lists.
package mediafile

import (
	"path/filepath"
	"slices"
	"strings"

	"github.com/bookferry/bookferry/pkg/config"
	"github.com/bookferry/bookferry/pkg/models"
)

type Types struct {
	ebook    []string
	audio    []string
	magazine []string
}

func NewTypes(cfg *config.Config) *Types {
	return &Types{
		ebook:    cfg.EBookTypes,
		audio:    cfg.AudioTypes,
		magazine: cfg.MagTypes,
	}
}

// Ext returns the lowercased extension of name without the leading dot.
func Ext(name string) string {
	return strings.ToLower(strings.TrimPrefix(filepath.Ext(name), "."))
}

func (t *Types) IsEBook(name string) bool {
	return slices.Contains(t.ebook, Ext(name))
}

func (t *Types) IsAudio(name string) bool {
	return slices.Contains(t.audio, Ext(name))
}

func (t *Types) IsMagazine(name string) bool {
	return slices.Contains(t.magazine, Ext(name))
}

// IsPayload reports whether name is any recognised media file.
func (t *Types) IsPayload(name string) bool {
	return t.IsEBook(name) || t.IsAudio(name) || t.IsMagazine(name)
}

// Is reports whether name is a media file of the given kind.
func (t *Types) Is(kind, name string) bool {
	return t.Predicate(kind)(name)
}

// Predicate returns the classifier for kind. Unknown kinds match any payload.
func (t *Types) Predicate(kind string) func(string) bool {
	switch kind {
	case models.MediaKindEBook:
		return t.IsEBook
	case models.MediaKindAudioBook:
		return t.IsAudio
	case models.MediaKindMagazine:
		return t.IsMagazine
	}
	return t.IsPayload
}

// Preference returns the configured extensions for kind in preference order.
func (t *Types) Preference(kind string) []string {
	switch kind {
	case models.MediaKindAudioBook:
		return t.audio
	case models.MediaKindMagazine:
		return t.magazine
	}
	return t.ebook
}

// IsCover reports whether name is a cover image that travels with a book.
func IsCover(name string) bool {
	return Ext(name) == "jpg"
}

// IsOPF reports whether name is an OPF metadata file.
func IsOPF(name string) bool {
	return Ext(name) == "opf"
}
