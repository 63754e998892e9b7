// Package sidecar writes OPF 2.0 metadata files next to committed books and
// magazine issues.
package sidecar

import (
	"encoding/xml"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/bookferry/bookferry/pkg/htmlutil"
	"github.com/bookferry/bookferry/pkg/identifiers"
	"github.com/bookferry/bookferry/pkg/models"
	"github.com/bookferry/bookferry/pkg/sortname"
	"github.com/pkg/errors"
)

const (
	SchemeGoodreads   = "GOODREADS"
	SchemeGoogleBooks = "GoogleBooks"
	SchemeISBN        = "ISBN"
)

// Path returns the sidecar path for basename in dir.
func Path(dir, basename string) string {
	return filepath.Join(dir, basename+".opf")
}

// FromBook builds sidecar metadata for a book committed as basename.
func FromBook(book *models.Book, basename string) *Metadata {
	m := &Metadata{
		ID:     book.ID,
		Title:  book.Title,
		Author: book.AuthorName(),
		Cover:  basename + ".jpg",
	}
	if book.Language != nil {
		m.Language = *book.Language
	}
	if book.ISBN != nil {
		if isbn, ok := identifiers.ISBN(*book.ISBN); ok {
			m.ISBN = isbn
		}
	}
	if book.Publisher != nil {
		m.Publisher = *book.Publisher
	}
	if book.PublishedDate != nil {
		m.Date = *book.PublishedDate
	}
	if book.Description != nil {
		m.Description = htmlutil.StripTags(*book.Description)
	}
	if book.Series != nil {
		m.Series = book.Series.Name
	}
	if book.SeriesNumber != nil {
		m.SeriesIndex = *book.SeriesNumber
	}
	return m
}

var issueDateRegex = regexp.MustCompile(`^(\d{4})-(\d{2})-(\d{2})$`)

// IssueTitle names a magazine issue: "Wired - March 2024" for dated issues,
// the issue itself when it already carries the title, or "Title - issue".
func IssueTitle(title, issueDate string) string {
	if m := issueDateRegex.FindStringSubmatch(issueDate); m != nil {
		var month int
		fmt.Sscanf(m[2], "%d", &month)
		if month >= 1 && month <= 12 {
			return fmt.Sprintf("%s - %s %s", title, time.Month(month).String(), m[1])
		}
	}
	if strings.Contains(issueDate, title) {
		return issueDate
	}
	return title + " - " + issueDate
}

// FromIssue builds sidecar metadata for a magazine issue. The magazine acts
// as both author and series so calibre groups issues together.
func FromIssue(title, issueDate, issueID, basename string, acquired time.Time) *Metadata {
	return &Metadata{
		ID:          issueID,
		Title:       IssueTitle(title, issueDate),
		Author:      title,
		Language:    "eng",
		Date:        acquired.Format("2006-01-02"),
		Series:      title,
		SeriesIndex: issueDate,
		Cover:       basename + ".jpg",
	}
}

var numericIDRegex = regexp.MustCompile(`^\d+$`)

// Marshal renders m as an OPF document.
func Marshal(m *Metadata) ([]byte, error) {
	scheme := SchemeGoogleBooks
	if numericIDRegex.MatchString(m.ID) {
		scheme = SchemeGoodreads
	}
	language := m.Language
	if language == "" {
		language = "eng"
	}

	pkg := opfPackage{
		Version: "2.0",
		Xmlns:   "http://www.idpf.org/2007/opf",
		Metadata: opfMetadata{
			DC:    "http://purl.org/dc/elements/1.1/",
			OPF:   "http://www.idpf.org/2007/opf",
			Title: m.Title,
			Creator: opfCreator{
				Text:   m.Author,
				FileAs: sortname.FileAs(m.Author),
				Role:   "aut",
			},
			Language:    language,
			Identifiers: []opfID{{Text: m.ID, Scheme: scheme}},
			Publisher:   m.Publisher,
			Date:        m.Date,
			Description: m.Description,
		},
	}
	if m.ISBN != "" {
		pkg.Metadata.Identifiers = append(pkg.Metadata.Identifiers, opfID{Text: m.ISBN, Scheme: SchemeISBN})
	}
	if m.Series != "" {
		pkg.Metadata.Meta = append(pkg.Metadata.Meta, opfMeta{Name: "calibre:series", Content: m.Series})
		if m.SeriesIndex != "" {
			pkg.Metadata.Meta = append(pkg.Metadata.Meta, opfMeta{Name: "calibre:series_index", Content: m.SeriesIndex})
		}
	}
	if m.Cover != "" {
		pkg.Guide = &opfGuide{References: []opfReference{{Href: m.Cover, Type: "cover", Title: "Cover"}}}
	}

	data, err := xml.MarshalIndent(pkg, "", "  ")
	if err != nil {
		return nil, errors.WithStack(err)
	}
	return append([]byte(xml.Header), data...), nil
}

// Write saves m as dir/basename.opf. An existing sidecar is kept unless
// overwrite is set. It returns the path and whether a file was written.
func Write(dir, basename string, m *Metadata, overwrite bool, mode os.FileMode) (string, bool, error) {
	path := Path(dir, basename)
	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return path, false, nil
		}
	}

	data, err := Marshal(m)
	if err != nil {
		return path, false, err
	}
	if err := os.WriteFile(path, data, mode); err != nil {
		return path, false, errors.WithStack(err)
	}
	if err := os.Chmod(path, mode); err != nil {
		return path, true, errors.WithStack(err)
	}
	return path, true, nil
}

// Read parses the sidecar at path back into Metadata.
func Read(path string) (*Metadata, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.WithStack(err)
	}

	var pkg readPackage
	if err := xml.Unmarshal(data, &pkg); err != nil {
		return nil, errors.WithStack(err)
	}

	m := &Metadata{
		Title:       pkg.Metadata.Title,
		Author:      pkg.Metadata.Creator.Text,
		Language:    pkg.Metadata.Language,
		Publisher:   pkg.Metadata.Publisher,
		Date:        pkg.Metadata.Date,
		Description: pkg.Metadata.Description,
	}
	for _, id := range pkg.Metadata.Identifiers {
		if id.Scheme == SchemeISBN {
			m.ISBN = id.Text
		} else if m.ID == "" {
			m.ID = id.Text
		}
	}
	for _, meta := range pkg.Metadata.Meta {
		switch meta.Name {
		case "calibre:series":
			m.Series = meta.Content
		case "calibre:series_index":
			m.SeriesIndex = meta.Content
		}
	}
	if len(pkg.Guide.References) > 0 {
		m.Cover = pkg.Guide.References[0].Href
	}
	return m, nil
}
