// Package postprocess reconciles snatched requests with what has landed in
// the download directories and files the results into the library.
package postprocess

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/bookferry/bookferry/pkg/archive"
	"github.com/bookferry/bookferry/pkg/backends"
	"github.com/bookferry/bookferry/pkg/books"
	"github.com/bookferry/bookferry/pkg/commit"
	"github.com/bookferry/bookferry/pkg/config"
	"github.com/bookferry/bookferry/pkg/destination"
	"github.com/bookferry/bookferry/pkg/downloads"
	"github.com/bookferry/bookferry/pkg/errcodes"
	"github.com/bookferry/bookferry/pkg/importer"
	"github.com/bookferry/bookferry/pkg/joblogs"
	"github.com/bookferry/bookferry/pkg/magazines"
	"github.com/bookferry/bookferry/pkg/matcher"
	"github.com/bookferry/bookferry/pkg/mediafile"
	"github.com/bookferry/bookferry/pkg/models"
	"github.com/bookferry/bookferry/pkg/notify"
	"github.com/bookferry/bookferry/pkg/quarantine"
	"github.com/bookferry/bookferry/pkg/requests"
	"github.com/bookferry/bookferry/pkg/sidecar"
	"github.com/pkg/errors"
	"github.com/robinjoseph08/golib/logger"
	"github.com/uptrace/bun"
)

type Processor struct {
	cfg        *config.Config
	types      *mediafile.Types
	matcher    *matcher.Matcher
	resolver   *destination.Resolver
	extractor  archive.Extractor
	committer  *commit.Committer
	quarantine *quarantine.Manager
	registry   *backends.Registry
	notifier   notify.Notifier

	requestService  *requests.Service
	bookService     *books.Service
	magazineService *magazines.Service
	downloadService *downloads.Service

	now func() time.Time
}

// New wires a Processor. imp may be nil, in which case ebooks are filed by
// moving files into the library tree.
func New(cfg *config.Config, db *bun.DB, registry *backends.Registry, notifier notify.Notifier, imp importer.Importer) *Processor {
	requestService := requests.NewService(db)
	bookService := books.NewService(db)
	types := mediafile.NewTypes(cfg)

	if notifier == nil {
		notifier = notify.Noop{}
	}

	return &Processor{
		cfg:        cfg,
		types:      types,
		matcher:    matcher.New(cfg.LibTag, cfg.MatchRatio),
		resolver:   destination.New(cfg),
		extractor:  archive.Extractor{MaxEntrySize: cfg.ArchiveMaxEntrySize},
		committer:  commit.New(cfg, types, imp),
		quarantine: quarantine.New(cfg, requestService, bookService, registry),
		registry:   registry,
		notifier:   notifier,

		requestService:  requestService,
		bookService:     bookService,
		magazineService: magazines.NewService(db),
		downloadService: downloads.NewService(db),

		now: time.Now,
	}
}

// Sweep fails requests that have been snatched for longer than stale_after.
func (p *Processor) Sweep(ctx context.Context, jobLog *joblogs.JobLogger) *models.JobSweepData {
	data := &models.JobSweepData{}
	n, err := p.quarantine.SweepStale(ctx, p.now())
	if err != nil {
		jobLog.Error("stale sweep failed", err, nil)
	}
	data.Stale = n
	if n > 0 {
		jobLog.Warn("failed stale requests", logger.Data{"count": n, "reason": ErrStaleRequest.Error()})
	}
	return data
}

// Pass reconciles every snatched request against each download directory in
// turn, imports tagged entries, and then fails whatever is still snatched past
// stale_after. Errors are logged per request and never abort the pass.
func (p *Processor) Pass(ctx context.Context, jobLog *joblogs.JobLogger, trigger string) *models.JobPassData {
	data := &models.JobPassData{Trigger: trigger}
	jobLog.Info("starting pass", logger.Data{"trigger": trigger})

	refreshed := map[int]struct{}{}
	for _, dir := range p.cfg.DownloadDirs {
		p.processDir(ctx, jobLog, dir, refreshed, data)
	}

	data.Stale = p.Sweep(ctx, jobLog).Stale

	jobLog.Info("finished pass", logger.Data{
		"processed": data.Processed,
		"failed":    data.Failed,
		"stale":     data.Stale,
		"imported":  data.Imported,
	})
	return data
}

func (p *Processor) processDir(ctx context.Context, jobLog *joblogs.JobLogger, dir string, refreshed map[int]struct{}, data *models.JobPassData) {
	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		jobLog.Warn("download directory is not accessible", logger.Data{"dir": dir})
		return
	}

	snatched, err := p.requestService.ListSnatched(ctx)
	if err != nil {
		jobLog.Error("failed to list snatched requests", err, logger.Data{"dir": dir})
		return
	}
	jobLog.Debug("checking download directory", logger.Data{"dir": dir, "snatched": len(snatched)})

	for _, req := range snatched {
		rlog := jobLog.ForRequest(req.ID)
		if _, ok := refreshed[req.ID]; !ok {
			p.refreshTitle(ctx, rlog, req)
			refreshed[req.ID] = struct{}{}
		}

		err := p.guard(rlog, func() error {
			return p.processRequest(ctx, rlog, dir, req)
		})
		p.record(rlog, req, err, data)
	}

	p.sweepTagged(ctx, jobLog, dir, data)
}

// guard converts a panic in fn into an error so one bad download cannot take
// down the pass.
func (p *Processor) guard(jobLog *joblogs.JobLogger, fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.Errorf("panic: %v", r)
			jobLog.Fatal("recovered from panic", err, nil)
		}
	}()
	return fn()
}

func (p *Processor) record(jobLog *joblogs.JobLogger, req *models.Request, err error, data *models.JobPassData) {
	fields := logger.Data{"title": req.Title, "kind": req.MediaKind}
	switch {
	case err == nil:
		data.Processed++
	case errors.Is(err, ErrNoMatch), errors.Is(err, ErrNotReady):
		fields["reason"] = err.Error()
		jobLog.Debug("request not processed", fields)
	case errors.Is(err, ErrArchiveExtraction):
		jobLog.Warn("archive extraction failed, retrying next pass", logger.Data{"title": req.Title, "error": err.Error()})
	case errors.Is(err, ErrNotRecognised):
		data.Failed++
		jobLog.Warn("request item no longer exists", fields)
	case errors.Is(err, ErrAlreadySettled):
		data.Failed++
		jobLog.Warn("duplicate download left untouched", fields)
	default:
		if _, ok := commit.KindOf(err); ok {
			data.Failed++
			jobLog.Error("post-processing failed", err, fields)
			return
		}
		jobLog.Error("failed to process request", err, fields)
	}
}

// refreshTitle replaces the stored title with the name the backend now
// reports, which changes for magnets once metadata resolves.
func (p *Processor) refreshTitle(ctx context.Context, jobLog *joblogs.JobLogger, req *models.Request) {
	if req.HandleOrEmpty() == "" {
		return
	}
	name, ok := p.registry.ObservedName(ctx, req)
	if !ok {
		jobLog.Debug("keeping stored title", logger.Data{"backend": req.Backend, "error": ErrAdapterUnavailable.Error()})
		return
	}
	name = destination.Unaccent(name)
	if name == "" || name == req.Title {
		return
	}
	jobLog.Info("backend renamed download", logger.Data{"from": req.Title, "to": name, "backend": req.Backend})
	if err := p.requestService.UpdateTitle(ctx, req, name); err != nil {
		jobLog.Error("failed to store new title", err, nil)
	}
}

// target is the library item a request delivers.
type target struct {
	kind      string
	book      *models.Book
	magazine  *models.Magazine
	issueDate string
}

func (t *target) label() string {
	if t.book != nil {
		return t.book.Title
	}
	return sidecar.IssueTitle(t.magazine.Title, t.issueDate)
}

func (p *Processor) lookupTarget(ctx context.Context, req *models.Request) (*target, error) {
	t := &target{kind: req.MediaKind}
	if req.MediaKind == models.MediaKindMagazine {
		mag, err := p.magazineService.RetrieveMagazine(ctx, req.ItemID)
		if err != nil {
			if errors.Is(err, errcodes.NotFound("Magazine")) {
				return nil, ErrNotRecognised
			}
			return nil, err
		}
		t.magazine = mag
		if req.AuxInfo != nil {
			t.issueDate = *req.AuxInfo
		}
		return t, nil
	}

	book, err := p.bookService.RetrieveBook(ctx, books.RetrieveBookOptions{ID: &req.ItemID})
	if err != nil {
		if errors.Is(err, errcodes.NotFound("Book")) {
			return nil, ErrNotRecognised
		}
		return nil, err
	}
	t.book = book
	return t, nil
}

func (p *Processor) processRequest(ctx context.Context, jobLog *joblogs.JobLogger, dir string, req *models.Request) error {
	names, err := listNames(dir)
	if err != nil {
		return err
	}

	best, ok := p.matcher.Best(req.Title, names)
	if !ok {
		if best.Name != "" {
			jobLog.Debug("closest match below threshold", logger.Data{"candidate": best.Name, "score": best.Score})
		}
		return errors.Wrapf(ErrNoMatch, "%s is not in %s", req.Title, dir)
	}
	jobLog.Debug("found match", logger.Data{"candidate": best.Name, "score": best.Score})

	t, err := p.lookupTarget(ctx, req)
	if err != nil {
		if errors.Is(err, ErrNotRecognised) {
			if _, ferr := p.requestService.MarkFailed(ctx, req, ErrNotRecognised.Error()); ferr != nil {
				return ferr
			}
		}
		return err
	}

	src, err := p.resolveCandidate(ctx, jobLog, dir, best.Name, req)
	if err != nil {
		return err
	}

	d, err := p.deliver(ctx, t, src, p.commitCopy(req, src))
	if err != nil {
		if ferr := p.quarantine.Fail(ctx, req, src.dir, err.Error()); ferr != nil {
			jobLog.Error("failed to quarantine request", ferr, nil)
		}
		return err
	}

	changed, err := p.requestService.MarkProcessed(ctx, req)
	if err != nil {
		return err
	}
	if !changed {
		// The files are in the library but the row was settled elsewhere, so
		// none of the success bookkeeping belongs to this request.
		jobLog.Warn("request was already settled by another download", logger.Data{"url": req.DownloadURL})
		if _, err := p.requestService.MarkFailed(ctx, req, ErrAlreadySettled.Error()); err != nil {
			return err
		}
		return ErrAlreadySettled
	}

	p.finalize(ctx, jobLog, t, d, req.Provider)
	p.cleanup(ctx, jobLog, req, src)

	jobLog.Info("successfully processed", logger.Data{"title": t.label(), "path": d.outcome.FinalPath})
	return nil
}

// seeding reports whether the torrent client should keep the download.
func (p *Processor) seeding(req *models.Request) bool {
	return p.cfg.KeepSeeding && req.IsTorrent()
}

// commitCopy decides whether the committer copies instead of moving. Folders
// created during this pass are ours and can always be moved out of.
func (p *Processor) commitCopy(req *models.Request, src *source) bool {
	if src.scratch {
		return false
	}
	return p.cfg.KeepOriginalFiles || p.seeding(req)
}

// cleanup removes the task from the backend and the local source after a
// successful delivery.
func (p *Processor) cleanup(ctx context.Context, jobLog *joblogs.JobLogger, req *models.Request, src *source) {
	seeding := p.seeding(req)
	if seeding {
		jobLog.Info("leaving torrent to seed", logger.Data{"backend": req.Backend})
	} else if !p.registry.RemoveTask(ctx, req, false) {
		jobLog.Warn("unable to remove task from backend", logger.Data{"backend": req.Backend, "handle": req.HandleOrEmpty()})
	}

	remove := src.scratch
	if !remove && !seeding && !p.cfg.KeepOriginalFiles && !p.isDownloadRoot(src.dir) {
		remove = true
	}
	if !remove {
		jobLog.Debug("keeping original files", logger.Data{"path": src.dir})
		return
	}
	if err := os.RemoveAll(src.dir); err != nil {
		jobLog.Warn("unable to remove source", logger.Data{"path": src.dir, "error": err.Error()})
	}
}

func (p *Processor) isDownloadRoot(dir string) bool {
	dir = filepath.Clean(dir)
	for _, root := range p.cfg.DownloadDirs {
		if filepath.Clean(root) == dir {
			return true
		}
	}
	return false
}

func listNames(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, errors.Wrapf(err, "unable to read %s", dir)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names, nil
}
