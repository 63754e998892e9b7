// Package quarantine fails requests, isolates their download directories and
// reverts library status so the item is searched for again.
package quarantine

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/bookferry/bookferry/pkg/books"
	"github.com/bookferry/bookferry/pkg/config"
	"github.com/bookferry/bookferry/pkg/models"
	"github.com/bookferry/bookferry/pkg/requests"
	"github.com/pkg/errors"
	"github.com/robinjoseph08/golib/logger"
)

// FailSuffix marks a quarantined download directory.
const FailSuffix = ".fail"

// ReasonStale is stored on requests failed by the stale sweep.
const ReasonStale = "stale"

// TaskRemover removes a download from the backend that fetched it.
type TaskRemover interface {
	RemoveTask(ctx context.Context, req *models.Request, purge bool) bool
}

type Manager struct {
	cfg      *config.Config
	requests *requests.Service
	books    *books.Service
	remover  TaskRemover
}

func New(cfg *config.Config, requestService *requests.Service, bookService *books.Service, remover TaskRemover) *Manager {
	return &Manager{
		cfg:      cfg,
		requests: requestService,
		books:    bookService,
		remover:  remover,
	}
}

// FailPath is where dir is moved when it is quarantined.
func FailPath(dir string) string {
	return filepath.Clean(dir) + FailSuffix
}

func (m *Manager) isDownloadRoot(dir string) bool {
	dir = filepath.Clean(dir)
	for _, root := range m.cfg.DownloadDirs {
		if filepath.Clean(root) == dir {
			return true
		}
	}
	return false
}

// Fail marks req as failed with reason, reverts the item to Wanted unless
// another request already delivered it, and quarantines sourceDir.
func (m *Manager) Fail(ctx context.Context, req *models.Request, sourceDir, reason string) error {
	log := logger.FromContext(ctx).Data(logger.Data{"request_id": req.ID, "item_id": req.ItemID, "reason": reason})

	changed, err := m.requests.MarkFailed(ctx, req, reason)
	if err != nil {
		return err
	}
	if !changed {
		log.Warn("request was no longer snatched when failing it")
	}

	if req.MediaKind != models.MediaKindMagazine {
		competing, err := m.requests.HasCompetingProcessed(ctx, req)
		if err != nil {
			return err
		}
		if competing {
			log.Info("another request already delivered this item, leaving its status alone")
		} else if _, err := m.books.RevertToWanted(ctx, req.ItemID, req.MediaKind); err != nil {
			return err
		}
	}

	if sourceDir == "" {
		return nil
	}
	failed, err := m.Isolate(sourceDir)
	if err != nil {
		log.Err(err).Error("failed to quarantine download")
		return nil
	}
	if failed != "" {
		log.Info("quarantined download", logger.Data{"path": failed})
	}
	return nil
}

// Isolate renames dir to dir.fail, replacing any earlier quarantine of the
// same path. Download roots and missing paths are left alone and reported
// with an empty result.
func (m *Manager) Isolate(dir string) (string, error) {
	if m.isDownloadRoot(dir) {
		return "", nil
	}
	if _, err := os.Stat(dir); err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", errors.WithStack(err)
	}

	target := FailPath(dir)
	if err := os.RemoveAll(target); err != nil {
		return "", errors.Wrapf(err, "failed to purge %s", target)
	}
	if err := os.Rename(dir, target); err != nil {
		return "", errors.Wrapf(err, "failed to rename %s", dir)
	}
	return target, nil
}

// SweepStale fails every request that has been snatched for longer than the
// configured stale_after, removing its task and data from the backend. It
// returns how many requests were failed.
func (m *Manager) SweepStale(ctx context.Context, now time.Time) (int, error) {
	if m.cfg.StaleAfter <= 0 {
		return 0, nil
	}
	log := logger.FromContext(ctx)

	cutoff := now.Add(-m.cfg.StaleAfter)
	stale, err := m.requests.ListRequests(ctx, requests.ListRequestsOptions{
		Statuses:       []string{models.RequestStatusSnatched},
		SnatchedBefore: &cutoff,
	})
	if err != nil {
		return 0, err
	}

	count := 0
	for _, req := range stale {
		rlog := log.Data(logger.Data{"request_id": req.ID, "item_id": req.ItemID, "snatched_at": req.SnatchedAt})

		if req.MediaKind != models.MediaKindMagazine {
			if _, err := m.books.RevertToWanted(ctx, req.ItemID, req.MediaKind, models.BookStatusSnatched); err != nil {
				return count, err
			}
		}
		if m.remover != nil && !m.remover.RemoveTask(ctx, req, true) {
			rlog.Warn("failed to remove stale task from backend")
		}
		changed, err := m.requests.MarkFailed(ctx, req, ReasonStale)
		if err != nil {
			return count, err
		}
		if changed {
			rlog.Info("failed stale request")
			count++
		}
	}

	return count, nil
}
