package postprocess

import (
	"context"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/bookferry/bookferry/pkg/commit"
	"github.com/bookferry/bookferry/pkg/covers"
	"github.com/bookferry/bookferry/pkg/destination"
	"github.com/bookferry/bookferry/pkg/fileutils"
	"github.com/bookferry/bookferry/pkg/joblogs"
	"github.com/bookferry/bookferry/pkg/magazines"
	"github.com/bookferry/bookferry/pkg/mediafile"
	"github.com/bookferry/bookferry/pkg/models"
	"github.com/bookferry/bookferry/pkg/notify"
	"github.com/bookferry/bookferry/pkg/sidecar"
	"github.com/robinjoseph08/golib/logger"
)

// delivery is a successful commit of a target.
type delivery struct {
	basename string
	outcome  commit.Outcome
}

// deliver resolves where t belongs in the library and commits src there.
// Every failure is returned as a *commit.Error.
func (p *Processor) deliver(ctx context.Context, t *target, src *source, copyFiles bool) (*delivery, error) {
	var item destination.Item
	if t.book != nil {
		item = destination.ForBook(t.book)
	} else {
		item = destination.ForIssue(t.magazine.Title, t.issueDate)
	}

	pathTpl, fileTpl := p.resolver.Templates(t.kind)
	destDir, basename, err := p.resolver.Resolve(t.kind, item, pathTpl, fileTpl)
	if err != nil {
		return nil, &commit.Error{Kind: commit.KindNotFound, Reason: "unable to resolve destination", Err: err}
	}

	job := commit.Job{
		SourceDir: src.dir,
		DestDir:   destDir,
		Basename:  basename,
		Kind:      t.kind,
		Copy:      copyFiles,
	}
	if t.book != nil {
		job.BookID = t.book.ID
		job.Author = t.book.AuthorName()
		job.Title = t.book.Title
		job.Metadata = sidecar.FromBook(t.book, basename)
		job.CoverImage = p.cachedCover(t.book)
	}

	outcome := p.committer.Commit(ctx, job)
	if !outcome.Succeeded {
		return nil, outcome.Err
	}
	return &delivery{basename: basename, outcome: outcome}, nil
}

// cachedCover returns the book's cover image if it exists locally.
func (p *Processor) cachedCover(book *models.Book) string {
	if book.CoverPath == nil || *book.CoverPath == "" {
		return ""
	}
	if info, err := os.Stat(*book.CoverPath); err != nil || !info.Mode().IsRegular() {
		return ""
	}
	return *book.CoverPath
}

// finalize records a delivery against its library item, writes the cover
// and sidecar, fills the auto-add folders and announces the download.
// Failures here are logged only, the files are already in place.
func (p *Processor) finalize(ctx context.Context, jobLog *joblogs.JobLogger, t *target, d *delivery, provider string) {
	libDir := filepath.Dir(d.outcome.FinalPath)

	if t.book != nil {
		if err := p.bookService.RecordFile(ctx, t.book, t.kind, d.outcome.FinalPath); err != nil {
			jobLog.Error("failed to record book file", err, nil)
		}
		if err := p.bookService.RefreshAuthorTotals(ctx, t.book.AuthorID); err != nil {
			jobLog.Error("failed to refresh author totals", err, logger.Data{"author_id": t.book.AuthorID})
		}
		extras := p.writeBookExtras(jobLog, t.book, libDir, d.basename)
		if t.kind == models.MediaKindEBook {
			p.autoAdd(jobLog, append(slices.Clone(d.outcome.Files), extras...))
		}
	} else {
		p.recordIssue(ctx, jobLog, t, libDir, d)
	}

	message := notify.DownloadMessage(kindLabel(t.kind)+" "+d.basename+fromProvider(provider), p.now())
	if err := p.notifier.Notify(ctx, "Download complete", message); err != nil {
		jobLog.Warn("failed to send notification", logger.Data{"error": err.Error()})
	}

	if err := p.downloadService.Increment(ctx, provider); err != nil {
		jobLog.Error("failed to count download", err, logger.Data{"provider": provider})
	}
}

func (p *Processor) writeBookExtras(jobLog *joblogs.JobLogger, book *models.Book, libDir, basename string) []string {
	var written []string

	if cover := p.cachedCover(book); cover != "" {
		dst := filepath.Join(libDir, basename+".jpg")
		if err := covers.WriteJPEG(cover, dst, p.cfg.FileMode()); err != nil {
			jobLog.Warn("failed to write cover", logger.Data{"cover": cover, "error": err.Error()})
		} else {
			written = append(written, dst)
		}
	}

	if p.cfg.BookOnly {
		return written
	}
	path, _, err := sidecar.Write(libDir, basename, sidecar.FromBook(book, basename), true, p.cfg.FileMode())
	if err != nil {
		jobLog.Warn("failed to write opf", logger.Data{"path": path, "error": err.Error()})
		return written
	}
	return append(written, path)
}

func (p *Processor) recordIssue(ctx context.Context, jobLog *joblogs.JobLogger, t *target, libDir string, d *delivery) {
	title := t.magazine.Title
	var cover *string
	if path := fileutils.CoverExistsWithBaseName(libDir, d.basename); path != "" {
		cover = &path
	}

	issue, err := p.magazineService.RecordIssue(ctx, magazines.RecordIssueOptions{
		Title:     title,
		IssueDate: t.issueDate,
		File:      d.outcome.FinalPath,
		Cover:     cover,
	})
	if err != nil {
		jobLog.Error("failed to record issue", err, logger.Data{"magazine": title, "issue_date": t.issueDate})
		return
	}

	m := sidecar.FromIssue(title, t.issueDate, issue.IssueID, d.basename, issue.Acquired)
	if path, _, err := sidecar.Write(libDir, d.basename, m, false, p.cfg.FileMode()); err != nil {
		jobLog.Warn("failed to write issue opf", logger.Data{"path": path, "error": err.Error()})
	}
}

// autoAdd copies the book, and its cover and sidecar unless book_only is
// set, into every auto-add folder.
func (p *Processor) autoAdd(jobLog *joblogs.JobLogger, files []string) {
	if len(p.cfg.AutoAddDirs) == 0 {
		return
	}

	var wanted []string
	for _, f := range files {
		name := filepath.Base(f)
		keep := p.types.IsEBook(name) || (!p.cfg.BookOnly && (mediafile.IsCover(name) || mediafile.IsOPF(name)))
		if keep && !slices.Contains(wanted, f) {
			wanted = append(wanted, f)
		}
	}

	for _, dir := range p.cfg.AutoAddDirs {
		if info, err := os.Stat(dir); err != nil || !info.IsDir() {
			jobLog.Warn("auto-add folder is missing", logger.Data{"dir": dir})
			continue
		}
		for _, f := range wanted {
			dst := filepath.Join(dir, filepath.Base(f))
			if _, err := fileutils.CopyVerified(f, dst, p.cfg.FileMode()); err != nil {
				jobLog.Warn("auto-add copy failed", logger.Data{"file": f, "dir": dir, "error": err.Error()})
				break
			}
		}
		jobLog.Debug("auto-add completed", logger.Data{"dir": dir, "files": len(wanted)})
	}
}

func kindLabel(kind string) string {
	switch kind {
	case models.MediaKindAudioBook:
		return "AudioBook"
	case models.MediaKindMagazine:
		return "Magazine"
	}
	return "eBook"
}

func fromProvider(provider string) string {
	if strings.TrimSpace(provider) == "" {
		return ""
	}
	return " from " + provider
}
