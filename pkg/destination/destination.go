// Package destination expands folder and file templates into library paths.
package destination

import (
	"path/filepath"
	"strings"
	"unicode"

	"github.com/bookferry/bookferry/pkg/config"
	"github.com/bookferry/bookferry/pkg/models"
	"github.com/pkg/errors"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Item is the metadata available to templates.
type Item struct {
	Author       string
	Title        string
	SeriesName   string
	SeriesNumber string
	IssueDate    string
}

// ForBook collects the template values of a book.
func ForBook(book *models.Book) Item {
	item := Item{
		Author: book.AuthorName(),
		Title:  book.Title,
	}
	if book.Series != nil {
		item.SeriesName = book.Series.Name
	}
	if book.SeriesNumber != nil {
		item.SeriesNumber = *book.SeriesNumber
	}
	return item
}

// ForIssue collects the template values of a magazine issue.
func ForIssue(title, issueDate string) Item {
	return Item{Title: title, IssueDate: issueDate}
}

// Series renders the combined series placeholder, "(Name #Num)".
func (i Item) Series() string {
	switch {
	case i.SeriesName == "":
		return ""
	case i.SeriesNumber == "":
		return "(" + i.SeriesName + ")"
	}
	return "(" + i.SeriesName + " #" + i.SeriesNumber + ")"
}

// unsafe is applied in order after substitution.
var unsafe = []struct{ old, new string }{
	{"<", ""},
	{">", ""},
	{"...", ""},
	{" & ", " "},
	{" = ", " "},
	{"?", ""},
	{"$", "s"},
	{" + ", " "},
	{`"`, ""},
	{",", ""},
	{"*", ""},
	{":", ""},
	{";", ""},
	{"'", ""},
	{"//", "/"},
	{`\\`, `\`},
}

// Sanitize collapses whitespace and strips sequences that are unsafe in
// file names on common filesystems.
func Sanitize(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	for _, u := range unsafe {
		s = strings.ReplaceAll(s, u.old, u.new)
	}
	return strings.TrimSpace(s)
}

// Unaccent folds accented letters to their base form.
func Unaccent(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return out
}

// Expand substitutes item into template. Values lose any path separators so
// they can never add directory levels.
func Expand(template string, item Item) string {
	value := func(s string) string {
		return strings.NewReplacer("/", "", `\`, "").Replace(s)
	}
	r := strings.NewReplacer(
		"$Author", value(item.Author),
		"$Title", value(item.Title),
		"$Series", value(item.Series()),
		"$SerName", value(item.SeriesName),
		"$SerNum", value(item.SeriesNumber),
		"$IssueDate", value(item.IssueDate),
		"$Magazine", value(item.Title),
		"$$", " ",
	)
	return r.Replace(template)
}

// hostPath converts a template path using either separator into a clean
// relative path for the host, dropping empty and dot components.
func hostPath(p string) string {
	p = strings.ReplaceAll(p, `\`, "/")
	parts := make([]string, 0, strings.Count(p, "/")+1)
	for _, part := range strings.Split(p, "/") {
		part = strings.TrimSpace(part)
		if part == "" || part == "." || part == ".." {
			continue
		}
		parts = append(parts, part)
	}
	return filepath.Join(parts...)
}

type Resolver struct {
	cfg *config.Config
}

func New(cfg *config.Config) *Resolver {
	return &Resolver{cfg: cfg}
}

// Templates returns the configured folder and file templates for kind.
func (r *Resolver) Templates(kind string) (string, string) {
	switch kind {
	case models.MediaKindAudioBook:
		return r.cfg.AudioFolderTemplate, r.cfg.EBookFileTemplate
	case models.MediaKindMagazine:
		return r.cfg.MagFolderTemplate, r.cfg.MagFileTemplate
	}
	return r.cfg.EBookFolderTemplate, r.cfg.EBookFileTemplate
}

// Resolve returns the destination directory and canonical basename (without
// extension) for item.
func (r *Resolver) Resolve(kind string, item Item, pathTemplate, fileTemplate string) (string, string, error) {
	var root, rel, basename string

	switch kind {
	case models.MediaKindEBook, models.MediaKindAudioBook:
		if item.Author == "" || item.Title == "" {
			return "", "", errors.Errorf("book is missing author or title: %q by %q", item.Title, item.Author)
		}
		root = r.cfg.EBookDir
		if kind == models.MediaKindAudioBook && r.cfg.AudioDir != "" {
			root = r.cfg.AudioDir
		}
		rel = hostPath(Sanitize(Expand(pathTemplate, item)))
		// Series placeholders only shape folders.
		fileItem := item
		fileItem.SeriesName = ""
		fileItem.SeriesNumber = ""
		basename = Sanitize(Expand(fileTemplate, fileItem))
	case models.MediaKindMagazine:
		if item.Title == "" || item.IssueDate == "" {
			return "", "", errors.Errorf("magazine issue is missing title or date: %q %q", item.Title, item.IssueDate)
		}
		item.Title = Unaccent(Sanitize(item.Title))
		rel = hostPath(Sanitize(Expand(pathTemplate, item)))
		if r.cfg.MagAbsolute {
			root = string(filepath.Separator)
		} else {
			if rel != "" && !strings.ContainsRune("._", rune(rel[0])) {
				rel = "_" + rel
			}
			root = r.cfg.EBookDir
		}
		basename = Unaccent(Sanitize(Expand(fileTemplate, item)))
	default:
		return "", "", errors.Errorf("unknown media kind %q", kind)
	}

	basename = strings.NewReplacer("/", "", `\`, "").Replace(basename)
	if rel == "" || basename == "" {
		return "", "", errors.Errorf("templates %q and %q produced an empty destination", pathTemplate, fileTemplate)
	}

	return filepath.Join(root, rel), basename, nil
}
