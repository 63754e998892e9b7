// Package commit moves or copies matched download payloads into the library.
package commit

import (
	"context"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/bookferry/bookferry/pkg/config"
	"github.com/bookferry/bookferry/pkg/covers"
	"github.com/bookferry/bookferry/pkg/destination"
	"github.com/bookferry/bookferry/pkg/fileutils"
	"github.com/bookferry/bookferry/pkg/importer"
	"github.com/bookferry/bookferry/pkg/mediafile"
	"github.com/bookferry/bookferry/pkg/models"
	"github.com/bookferry/bookferry/pkg/sidecar"
	"github.com/dustin/go-humanize"
	"github.com/pkg/errors"
	"github.com/robinjoseph08/golib/logger"
)

// Job describes one commit of a source directory into the library.
type Job struct {
	SourceDir string
	DestDir   string
	// Basename names ebook and magazine files, without extension.
	Basename string
	Kind     string
	// Copy leaves the source files in place.
	Copy bool

	// The fields below are only used when an importer is configured.
	BookID     string
	Author     string
	Title      string
	Metadata   *sidecar.Metadata
	CoverImage string
}

// Outcome is the result of a commit. FinalPath is the file the library
// should link to.
type Outcome struct {
	Succeeded bool
	FinalPath string
	Files     []string
	Err       error
}

func failed(err *Error) Outcome {
	return Outcome{Err: err}
}

type Committer struct {
	cfg      *config.Config
	types    *mediafile.Types
	importer importer.Importer
}

// New returns a Committer. imp may be nil.
func New(cfg *config.Config, types *mediafile.Types, imp importer.Importer) *Committer {
	return &Committer{cfg: cfg, types: types, importer: imp}
}

// audioPartTokens locate the first part of a multi-part audiobook, most
// specific first.
var audioPartTokens = []string{" 001.", " 01.", " 1.", " 001 ", " 01 ", " 1 ", "01"}

// selection is the set of source files a job takes along.
type selection struct {
	payload []string
	extras  []string
	format  string
}

func (c *Committer) selectFiles(job Job) (*selection, error) {
	entries, err := os.ReadDir(job.SourceDir)
	if err != nil {
		return nil, errors.WithStack(err)
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.Type().IsRegular() {
			names = append(names, e.Name())
		}
	}

	sel := &selection{}
	if job.Kind == models.MediaKindEBook && c.cfg.SingleFormat {
		for _, ext := range c.types.Preference(models.MediaKindEBook) {
			if slices.ContainsFunc(names, func(n string) bool { return mediafile.Ext(n) == ext }) {
				sel.format = ext
				break
			}
		}
	}

	is := c.types.Predicate(job.Kind)
	for _, name := range names {
		switch {
		case is(name):
			if sel.format == "" || mediafile.Ext(name) == sel.format {
				sel.payload = append(sel.payload, name)
			}
		case !c.cfg.BookOnly && (mediafile.IsCover(name) || mediafile.IsOPF(name)):
			sel.extras = append(sel.extras, name)
		}
	}

	return sel, nil
}

// Commit transfers the files of job into the library and reports the
// outcome. It never panics on filesystem errors, they are returned in the
// outcome as *Error.
func (c *Committer) Commit(ctx context.Context, job Job) Outcome {
	log := logger.FromContext(ctx).Data(logger.Data{"source": job.SourceDir, "kind": job.Kind})

	sel, err := c.selectFiles(job)
	if err != nil {
		return failed(newError(KindCommitIO, err, "unable to read %s", job.SourceDir))
	}
	if len(sel.payload) == 0 {
		return failed(newError(KindNotFound, nil, "unable to locate a valid filetype (%s) in %s, leaving for manual processing", job.Kind, job.SourceDir))
	}
	if sel.format != "" {
		log.Debug("single format import", logger.Data{"format": sel.format})
	}

	if err := c.checkCollisions(job, sel); err != nil {
		return failed(err)
	}

	if job.Kind == models.MediaKindEBook && c.importer != nil {
		return c.commitWithImporter(ctx, job, sel)
	}
	return c.commitFiles(ctx, job, sel)
}

// libraryName is the name a selected file takes in the library. Audiobook
// parts keep theirs; everything else is renamed to the job's basename.
func (c *Committer) libraryName(job Job, name string) string {
	if job.Kind == models.MediaKindAudioBook && c.types.IsAudio(name) {
		return name
	}
	return job.Basename + filepath.Ext(name)
}

// checkCollisions refuses a selection in which two payload files would land
// on the same library name.
func (c *Committer) checkCollisions(job Job, sel *selection) *Error {
	seen := map[string]string{}
	for _, name := range sel.payload {
		dstName := strings.ToLower(c.libraryName(job, name))
		if other, ok := seen[dstName]; ok {
			return newError(KindCommitIO, nil, "%s and %s in %s would both be filed as %s", other, name, job.SourceDir, c.libraryName(job, name))
		}
		seen[dstName] = name
	}
	return nil
}

func (c *Committer) commitFiles(ctx context.Context, job Job, sel *selection) Outcome {
	log := logger.FromContext(ctx)

	if info, err := os.Stat(job.DestDir); err == nil && !info.IsDir() {
		if err := os.Remove(job.DestDir); err != nil {
			return failed(newError(KindCommitIO, err, "unable to delete %s", job.DestDir))
		}
	}
	if err := fileutils.EnsureDir(job.DestDir, c.cfg.DirMode()); err != nil {
		return failed(newError(KindCommitIO, err, "unable to create directory %s", job.DestDir))
	}

	outcome := Outcome{}
	var written []string
	taken := map[string]bool{}
	for _, name := range append(slices.Clone(sel.payload), sel.extras...) {
		src := filepath.Join(job.SourceDir, name)
		dstName := c.libraryName(job, name)
		if taken[dstName] {
			log.Debug("skipping extra with a taken name", logger.Data{"file": name, "dest": dstName})
			continue
		}
		taken[dstName] = true
		dst := filepath.Join(job.DestDir, dstName)

		result, err := fileutils.Transfer(src, dst, !job.Copy, c.cfg.FileMode())
		if err != nil {
			return failed(newError(KindCommitIO, err, "unable to transfer %s to %s", src, dst))
		}
		log.Debug("committed file", logger.Data{"dest": dst, "size": humanize.Bytes(uint64(result.Size)), "moved": result.Moved})
		outcome.Files = append(outcome.Files, dst)
		if slices.Contains(sel.payload, name) {
			written = append(written, dst)
		}
	}

	outcome.FinalPath = c.finalPath(job, written)
	outcome.Succeeded = true
	return outcome
}

// finalPath picks the file the library links to among the written payload.
func (c *Committer) finalPath(job Job, written []string) string {
	if len(written) == 0 {
		return ""
	}

	switch job.Kind {
	case models.MediaKindAudioBook:
		for _, token := range audioPartTokens {
			for _, path := range written {
				if strings.Contains(filepath.Base(path), token) {
					return path
				}
			}
		}
	default:
		for _, ext := range c.types.Preference(job.Kind) {
			for _, path := range written {
				if mediafile.Ext(path) == ext {
					return path
				}
			}
		}
	}
	return written[0]
}

// calibreName mirrors the substitutions calibre makes in folder names.
func calibreName(s string) string {
	s = strings.ReplaceAll(s, `"`, "_")
	if strings.HasSuffix(s, ".") {
		s = strings.TrimSuffix(s, ".") + "_"
	}
	return destination.Unaccent(s)
}

func (c *Committer) commitWithImporter(ctx context.Context, job Job, sel *selection) Outcome {
	log := logger.FromContext(ctx)

	staging, err := os.MkdirTemp(job.SourceDir, ".import-")
	if err != nil {
		return failed(newError(KindCommitIO, err, "unable to stage files in %s", job.SourceDir))
	}
	defer os.RemoveAll(staging)

	stagedName := strings.ReplaceAll(job.Basename, `"`, "_")
	for _, name := range sel.payload {
		src := filepath.Join(job.SourceDir, name)
		dst := filepath.Join(staging, stagedName+filepath.Ext(name))
		if _, err := fileutils.CopyVerified(src, dst, c.cfg.FileMode()); err != nil {
			return failed(newError(KindCommitIO, err, "unable to stage %s", src))
		}
	}

	res, err := c.importer.Add(ctx, staging)
	if err != nil {
		if errors.Is(err, importer.ErrDuplicate) {
			return failed(newError(KindDuplicate, err, "import of %s by %s rejected, already exists", job.Title, job.Author))
		}
		return failed(newError(KindCommitIO, err, "import of %s by %s failed", job.Title, job.Author))
	}
	log.Info("imported book", logger.Data{"import_id": res.ID, "book_id": job.BookID})

	c.pushMetadata(ctx, job, staging, stagedName, res.ID)

	bookFile, err := c.locateImported(job, res.ID)
	if err != nil {
		return failed(newError(KindNotFound, err, "imported %s but could not find it in the library", job.Title))
	}
	return Outcome{Succeeded: true, FinalPath: bookFile, Files: []string{bookFile}}
}

// pushMetadata applies an OPF sidecar to the imported book, falling back to
// individual fields. Failures are only logged.
func (c *Committer) pushMetadata(ctx context.Context, job Job, staging, basename, id string) {
	log := logger.FromContext(ctx).Data(logger.Data{"import_id": id})

	if job.Metadata != nil && !c.cfg.BookOnly {
		if job.CoverImage != "" {
			if err := covers.WriteJPEG(job.CoverImage, filepath.Join(staging, basename+".jpg"), c.cfg.FileMode()); err != nil {
				log.Warn("failed to stage cover", logger.Data{"error": err.Error()})
			}
		}
		path, _, err := sidecar.Write(staging, basename, job.Metadata, true, c.cfg.FileMode())
		if err == nil {
			err = c.importer.SetMetadataFile(ctx, id, path)
		}
		if err == nil {
			return
		}
		log.Warn("failed to push opf metadata", logger.Data{"error": err.Error()})
	}

	identifier := "google:" + job.BookID
	if (&models.Book{ID: job.BookID}).HasNumericID() {
		identifier = "goodreads:" + job.BookID
	}
	fields := [][2]string{
		{"authors", destination.Unaccent(job.Author)},
		{"title", destination.Unaccent(job.Title)},
		{"identifiers", identifier},
	}
	for _, f := range fields {
		if err := c.importer.SetMetadata(ctx, id, f[0], f[1]); err != nil {
			log.Warn("failed to push metadata field", logger.Data{"field": f[0], "error": err.Error()})
		}
	}
}

// locateImported finds the book file the importer created, under
// <library>/<author>/<title> (<id>), rescanning the author folder for any
// "* (<id>)" directory when the title was rewritten.
func (c *Committer) locateImported(job Job, id string) (string, error) {
	authorDir := filepath.Join(c.cfg.EBookDir, calibreName(job.Author))
	if info, err := os.Stat(authorDir); err != nil || !info.IsDir() {
		return "", errors.Errorf("author folder %s not found", authorDir)
	}

	target := filepath.Join(authorDir, calibreName(job.Title)+" ("+id+")")
	if info, err := os.Stat(target); err != nil || !info.IsDir() {
		entries, err := os.ReadDir(authorDir)
		if err != nil {
			return "", errors.WithStack(err)
		}
		target = ""
		for _, e := range entries {
			if e.IsDir() && strings.HasSuffix(e.Name(), " ("+id+")") {
				target = filepath.Join(authorDir, e.Name())
				break
			}
		}
		if target == "" {
			return "", errors.Errorf("no folder for import %s under %s", id, authorDir)
		}
	}

	entries, err := os.ReadDir(target)
	if err != nil {
		return "", errors.WithStack(err)
	}
	var files []string
	for _, e := range entries {
		path := filepath.Join(target, e.Name())
		if e.Type().IsRegular() {
			_ = os.Chmod(path, c.cfg.FileMode())
			if c.types.IsEBook(e.Name()) {
				files = append(files, path)
			}
		}
	}
	_ = os.Chmod(target, c.cfg.DirMode())

	if bookFile := c.finalPath(Job{Kind: models.MediaKindEBook}, files); bookFile != "" {
		return bookFile, nil
	}
	return "", errors.Errorf("no ebook found in %s", target)
}
