package worker

import (
	"context"
	"math/rand"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/bookferry/bookferry/pkg/config"
	"github.com/bookferry/bookferry/pkg/joblogs"
	"github.com/bookferry/bookferry/pkg/jobs"
	"github.com/bookferry/bookferry/pkg/models"
	"github.com/bookferry/bookferry/pkg/postprocess"
	"github.com/bookferry/bookferry/pkg/requests"
	"github.com/fsnotify/fsnotify"
	"github.com/gofrs/flock"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/robinjoseph08/golib/logger"
	"github.com/uptrace/bun"
	"golang.org/x/sync/semaphore"
)

var processID = randStringBytes(8)

var (
	// ErrPassRunning is returned when a pass is requested while one runs.
	ErrPassRunning = errors.New("a pass is already running")
	// ErrLocked means another process owns the download directories.
	ErrLocked = errors.New("another bookferry process holds the lock")
)

type Worker struct {
	config *config.Config
	log    logger.Logger

	processor      *postprocess.Processor
	jobService     *jobs.Service
	jobLogService  *joblogs.Service
	requestService *requests.Service

	lock    *flock.Flock
	running *semaphore.Weighted
	watcher *fsnotify.Watcher

	triggers chan string
	shutdown chan struct{}
	wg       sync.WaitGroup
}

func New(cfg *config.Config, db *bun.DB, processor *postprocess.Processor) *Worker {
	return &Worker{
		config: cfg,
		log:    logger.New(),

		processor:      processor,
		jobService:     jobs.NewService(db),
		jobLogService:  joblogs.NewService(db),
		requestService: requests.NewService(db),

		lock:    flock.New(LockPath(cfg)),
		running: semaphore.NewWeighted(1),

		triggers: make(chan string, 1),
		shutdown: make(chan struct{}),
	}
}

// LockPath is the file guarding the download directories against a second
// process.
func LockPath(cfg *config.Config) string {
	if cfg.LockFilePath != "" {
		return cfg.LockFilePath
	}
	if cfg.DatabaseFilePath != "" && cfg.DatabaseFilePath != ":memory:" {
		return cfg.DatabaseFilePath + ".lock"
	}
	return filepath.Join(os.TempDir(), "bookferry.lock")
}

// Start takes the process lock, fails jobs left behind by dead processes and
// begins scheduling passes.
func (w *Worker) Start() error {
	ok, err := w.lock.TryLock()
	if err != nil {
		return errors.Wrapf(err, "failed to acquire %s", w.lock.Path())
	}
	if !ok {
		return errors.Wrap(ErrLocked, w.lock.Path())
	}

	ctx := w.log.WithContext(context.Background())
	n, err := w.jobService.FailOrphanedJobs(ctx, processID)
	if err != nil {
		w.log.Err(err).Error("fail orphaned jobs error")
	} else if n > 0 {
		w.log.Warn("failed orphaned jobs", logger.Data{"count": n})
	}

	if w.config.WatchDownloadDirs {
		if err := w.startWatcher(); err != nil {
			_ = w.lock.Unlock()
			return err
		}
	}

	w.wg.Add(1)
	go w.schedule()
	return nil
}

// Trigger requests a pass outside the schedule. It reports false when a pass
// is already running or another trigger is queued.
func (w *Worker) Trigger(reason string) bool {
	if !w.running.TryAcquire(1) {
		return false
	}
	w.running.Release(1)

	select {
	case w.triggers <- reason:
		return true
	default:
		return false
	}
}

func (w *Worker) schedule() {
	defer w.wg.Done()

	timer := time.NewTimer(w.config.PassInterval)
	defer timer.Stop()

	for {
		select {
		case <-w.shutdown:
			return
		case reason := <-w.triggers:
			w.runPass(reason)
		case <-timer.C:
			w.scheduledPass()
		}

		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
		timer.Reset(w.config.PassInterval)
	}
}

// scheduledPass only runs while something is waiting to be reconciled.
func (w *Worker) scheduledPass() {
	ctx := w.log.WithContext(context.Background())
	n, err := w.requestService.CountSnatched(ctx)
	if err != nil {
		w.log.Err(err).Error("count snatched error")
		return
	}
	if n == 0 {
		w.log.Debug("nothing marked as snatched, skipping pass")
		return
	}
	w.runPass(models.TriggerSchedule)
}

func (w *Worker) runPass(trigger string) {
	if _, err := w.RunPass(context.Background(), trigger); err != nil && !errors.Is(err, ErrPassRunning) {
		w.log.Err(err).Error("pass error")
	}
}

// RunPass runs one pass now, recording it as a job.
func (w *Worker) RunPass(ctx context.Context, trigger string) (*models.Job, error) {
	return w.runJob(ctx, models.JobTypePass, func(ctx context.Context, jobLog *joblogs.JobLogger) interface{} {
		return w.processor.Pass(ctx, jobLog, trigger)
	}, &models.JobPassData{Trigger: trigger})
}

// RunSweep runs the stale sweep on its own, recording it as a job.
func (w *Worker) RunSweep(ctx context.Context) (*models.Job, error) {
	return w.runJob(ctx, models.JobTypeSweep, func(ctx context.Context, jobLog *joblogs.JobLogger) interface{} {
		return w.processor.Sweep(ctx, jobLog)
	}, &models.JobSweepData{})
}

// RunOnce runs a single pass under the process lock, for use outside the
// long-running server.
func (w *Worker) RunOnce(ctx context.Context, jobType, trigger string) (*models.Job, error) {
	ok, err := w.lock.TryLock()
	if err != nil {
		return nil, errors.Wrapf(err, "failed to acquire %s", w.lock.Path())
	}
	if !ok {
		return nil, errors.Wrap(ErrLocked, w.lock.Path())
	}
	defer func() {
		if err := w.lock.Unlock(); err != nil {
			w.log.Err(err).Warn("failed to release lock")
		}
	}()

	if jobType == models.JobTypeSweep {
		return w.RunSweep(ctx)
	}
	return w.RunPass(ctx, trigger)
}

func (w *Worker) runJob(ctx context.Context, jobType string, fn func(context.Context, *joblogs.JobLogger) interface{}, initial interface{}) (*models.Job, error) {
	if !w.running.TryAcquire(1) {
		return nil, ErrPassRunning
	}
	defer w.running.Release(1)

	// Prep the context to be passed down to the process function.
	id, err := uuid.NewRandom()
	if err != nil {
		return nil, errors.WithStack(err)
	}
	log := w.log.ID(id.String()).Root(logger.Data{"type": jobType, "process_id": processID})
	ctx = log.WithContext(ctx)

	job := &models.Job{
		Type:       jobType,
		Status:     models.JobStatusInProgress,
		ProcessID:  &processID,
		DataParsed: initial,
	}
	if err := w.jobService.CreateJob(ctx, job); err != nil {
		return nil, err
	}
	log = log.Data(logger.Data{"job_id": job.ID})
	ctx = log.WithContext(ctx)

	jobLog := w.jobLogService.NewJobLogger(ctx, job.ID, log)
	job.DataParsed = fn(ctx, jobLog)

	// Update job to be completed so that it's not picked up anymore.
	job.Status = models.JobStatusCompleted
	err = w.jobService.UpdateJob(ctx, job, jobs.UpdateJobOptions{
		Columns: []string{"status", "data"},
	})
	if err != nil {
		return job, err
	}
	return job, nil
}

func (w *Worker) Shutdown() {
	close(w.shutdown)
	if w.watcher != nil {
		if err := w.watcher.Close(); err != nil {
			w.log.Err(err).Warn("failed to close watcher")
		}
	}
	w.wg.Wait()

	if err := w.lock.Unlock(); err != nil {
		w.log.Err(err).Warn("failed to release lock")
	}
}

const letterBytes = "abcdef0123456789"

func randStringBytes(n int) string {
	b := make([]byte, n)
	for i := range b {
		b[i] = letterBytes[rand.Intn(len(letterBytes))]
	}
	return string(b)
}
