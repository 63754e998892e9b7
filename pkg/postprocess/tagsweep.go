package postprocess

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/bookferry/bookferry/pkg/books"
	"github.com/bookferry/bookferry/pkg/errcodes"
	"github.com/bookferry/bookferry/pkg/fileutils"
	"github.com/bookferry/bookferry/pkg/joblogs"
	"github.com/bookferry/bookferry/pkg/matcher"
	"github.com/bookferry/bookferry/pkg/models"
	"github.com/bookferry/bookferry/pkg/requests"
	"github.com/pkg/errors"
	"github.com/robinjoseph08/golib/logger"
)

// manualProvider is counted for books imported without a snatch.
const manualProvider = "manually added"

// TaggedID extracts the book id from a name carrying "<tag>.(<id>)".
func TaggedID(name, tag string) (string, bool) {
	marker := tag + ".("
	i := strings.Index(name, marker)
	if i < 0 {
		return "", false
	}
	rest := name[i+len(marker):]
	j := strings.Index(rest, ")")
	if j <= 0 {
		return "", false
	}
	return rest[:j], true
}

// sweepTagged imports every entry of dir tagged with a book id whose file is
// not already in the library, whether or not it was snatched.
func (p *Processor) sweepTagged(ctx context.Context, jobLog *joblogs.JobLogger, dir string, data *models.JobPassData) {
	names, err := listNames(dir)
	if err != nil {
		jobLog.Error("failed to rescan download directory", err, logger.Data{"dir": dir})
		return
	}

	for _, name := range names {
		if matcher.Skippable(name) {
			continue
		}
		id, ok := TaggedID(name, p.cfg.LibTag)
		if !ok {
			continue
		}

		err := p.guard(jobLog, func() error {
			return p.importTagged(ctx, jobLog, dir, name, id)
		})
		switch {
		case err == nil:
			data.Imported++
		case errors.Is(err, ErrNotReady), errors.Is(err, ErrNotRecognised):
			jobLog.Debug("skipping tagged entry", logger.Data{"entry": name, "reason": err.Error()})
		default:
			jobLog.Error("failed to import tagged entry", err, logger.Data{"entry": name, "book_id": id})
		}
	}
}

func (p *Processor) importTagged(ctx context.Context, jobLog *joblogs.JobLogger, dir, name, bookID string) error {
	book, err := p.bookService.RetrieveBook(ctx, books.RetrieveBookOptions{ID: &bookID})
	if err != nil {
		if errors.Is(err, errcodes.NotFound("Book")) {
			return errors.Wrapf(ErrNotRecognised, "book %s", bookID)
		}
		return err
	}
	if book.BookFile != nil {
		if _, err := os.Stat(*book.BookFile); err == nil {
			return errors.Wrapf(ErrNotReady, "book %s already exists", bookID)
		}
	}

	path := filepath.Join(dir, name)
	info, err := os.Stat(path)
	if err != nil {
		return errors.WithStack(err)
	}
	src := &source{dir: path}
	if info.Mode().IsRegular() {
		if !p.types.IsPayload(name) {
			return errors.Wrapf(ErrNotReady, "%s is not a book file", name)
		}
		res, err := fileutils.OrganizeRootLevelFile(path, p.travelsWithPayload, p.cfg.KeepOriginalFiles, p.cfg.FileMode(), p.cfg.DirMode())
		if err != nil {
			return err
		}
		src = &source{dir: res.Folder, scratch: p.cfg.KeepOriginalFiles}
	}

	var kind string
	switch {
	case p.containsKind(src.dir, models.MediaKindAudioBook):
		kind = models.MediaKindAudioBook
	case p.containsKind(src.dir, models.MediaKindEBook):
		kind = models.MediaKindEBook
	default:
		return errors.Wrapf(ErrNotReady, "no ebook or audiobook in %s", src.dir)
	}

	// The book may have been snatched as both ebook and audiobook; only
	// requests of the kind found here are settled.
	snatched, err := p.requestService.ListRequests(ctx, requests.ListRequestsOptions{
		Statuses: []string{models.RequestStatusSnatched},
		ItemID:   &bookID,
	})
	if err != nil {
		return err
	}
	var matching []*models.Request
	for _, req := range snatched {
		if req.MediaKind == kind {
			matching = append(matching, req)
		}
	}
	if len(snatched) > 0 && len(matching) == 0 {
		return errors.Wrapf(ErrNotReady, "book %s was not snatched as %s", bookID, kind)
	}

	rlog := jobLog
	if len(matching) > 0 {
		rlog = jobLog.ForRequest(matching[0].ID)
	}
	t := &target{kind: kind, book: book}

	copyFiles := p.cfg.KeepOriginalFiles && !src.scratch
	d, err := p.deliver(ctx, t, src, copyFiles)
	if err != nil {
		if len(matching) > 0 {
			if ferr := p.quarantine.Fail(ctx, matching[0], src.dir, err.Error()); ferr != nil {
				rlog.Error("failed to quarantine request", ferr, nil)
			}
			return err
		}
		if _, ferr := p.bookService.RevertToWanted(ctx, bookID, kind); ferr != nil {
			rlog.Error("failed to revert book status", ferr, nil)
		}
		if _, ferr := p.quarantine.Isolate(src.dir); ferr != nil {
			rlog.Error("failed to quarantine download", ferr, nil)
		}
		return err
	}

	provider := manualProvider
	for _, req := range matching {
		if _, err := p.requestService.MarkProcessed(ctx, req); err != nil {
			rlog.Error("failed to mark request processed", err, nil)
		}
	}
	if len(matching) > 0 && matching[0].Provider != "" {
		provider = matching[0].Provider
	}

	p.finalize(ctx, rlog, t, d, provider)

	if src.scratch || (!p.cfg.KeepOriginalFiles && !p.isDownloadRoot(src.dir)) {
		if err := os.RemoveAll(src.dir); err != nil {
			rlog.Warn("unable to remove source", logger.Data{"path": src.dir, "error": err.Error()})
		}
	}

	rlog.Info("imported tagged download", logger.Data{"book_id": bookID, "kind": kind, "path": d.outcome.FinalPath})
	return nil
}
