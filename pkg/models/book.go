package models

import (
	"regexp"
	"time"

	"github.com/uptrace/bun"
)

const (
	BookStatusSkipped  = "Skipped"
	BookStatusWanted   = "Wanted"
	BookStatusSnatched = "Snatched"
	BookStatusHave     = "Have"
	BookStatusOpen     = "Open"
	BookStatusIgnored  = "Ignored"
)

type Book struct {
	bun.BaseModel `bun:"table:books,alias:b"`

	ID            string     `bun:",pk" json:"id"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
	AuthorID      int        `bun:",nullzero" json:"author_id"`
	Author        *Author    `bun:"rel:belongs-to" json:"author,omitempty"`
	Title         string     `bun:",nullzero" json:"title"`
	SeriesID      *int       `json:"series_id,omitempty"`
	Series        *Series    `bun:"rel:belongs-to" json:"series,omitempty"`
	SeriesNumber  *string    `json:"series_number,omitempty"`
	ISBN          *string    `bun:"isbn" json:"isbn,omitempty"`
	Publisher     *string    `json:"publisher,omitempty"`
	PublishedDate *string    `json:"published_date,omitempty"`
	Description   *string    `json:"description,omitempty"`
	Language      *string    `json:"language,omitempty"`
	CoverPath     *string    `json:"cover_path,omitempty"`
	Status        string     `bun:",nullzero" json:"status"`
	AudioStatus   string     `bun:",nullzero" json:"audio_status"`
	BookFile      *string    `json:"book_file,omitempty"`
	AudioFile     *string    `json:"audio_file,omitempty"`
	BookLibrary   *time.Time `json:"book_library,omitempty"`
	AudioLibrary  *time.Time `json:"audio_library,omitempty"`
}

var numericIDRegex = regexp.MustCompile(`^\d+$`)

// HasNumericID reports whether the id came from a numeric catalogue (goodreads)
// rather than an opaque google volume id.
func (b *Book) HasNumericID() bool {
	return numericIDRegex.MatchString(b.ID)
}

// StatusFor returns the status column that tracks the given media kind.
func (b *Book) StatusFor(kind string) string {
	if kind == MediaKindAudioBook {
		return b.AudioStatus
	}
	return b.Status
}

func (b *Book) AuthorName() string {
	if b.Author == nil {
		return ""
	}
	return b.Author.Name
}

type Author struct {
	bun.BaseModel `bun:"table:authors,alias:a"`

	ID         int        `bun:",pk,nullzero" json:"id"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
	Name       string     `bun:",nullzero" json:"name"`
	HaveBooks  int        `json:"have_books"`
	TotalBooks int        `json:"total_books"`
	LastBookAt *time.Time `json:"last_book_at,omitempty"`
}

type Series struct {
	bun.BaseModel `bun:"table:series,alias:s"`

	ID        int       `bun:",pk,nullzero" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	Name      string    `bun:",nullzero" json:"name"`
}
