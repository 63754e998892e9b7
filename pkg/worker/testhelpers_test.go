package worker

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/bookferry/bookferry/internal/testdb"
	"github.com/bookferry/bookferry/pkg/backends"
	"github.com/bookferry/bookferry/pkg/config"
	"github.com/bookferry/bookferry/pkg/jobs"
	"github.com/bookferry/bookferry/pkg/models"
	"github.com/bookferry/bookferry/pkg/notify"
	"github.com/bookferry/bookferry/pkg/postprocess"
	"github.com/bookferry/bookferry/pkg/requests"
	"github.com/robinjoseph08/golib/logger"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
)

// testContext holds all the dependencies needed for testing the worker.
type testContext struct {
	t              *testing.T
	ctx            context.Context
	cfg            *config.Config
	db             *bun.DB
	worker         *Worker
	jobService     *jobs.Service
	requestService *requests.Service
}

func newTestContext(t *testing.T, mutate ...func(*config.Config)) *testContext {
	t.Helper()

	dir := t.TempDir()
	cfg := config.NewForTest(dir)
	cfg.LockFilePath = filepath.Join(dir, "bookferry.lock")
	cfg.PassInterval = time.Hour
	for _, m := range mutate {
		m(cfg)
	}
	require.NoError(t, os.MkdirAll(cfg.DownloadDirs[0], 0o755))

	db := testdb.New(t)
	registry, err := backends.NewRegistry(cfg)
	require.NoError(t, err)
	processor := postprocess.New(cfg, db, registry, notify.Noop{}, nil)

	return &testContext{
		t:              t,
		ctx:            logger.New().WithContext(context.Background()),
		cfg:            cfg,
		db:             db,
		worker:         New(cfg, db, processor),
		jobService:     jobs.NewService(db),
		requestService: requests.NewService(db),
	}
}

func (tc *testContext) start() {
	tc.t.Helper()
	require.NoError(tc.t, tc.worker.Start())
	tc.t.Cleanup(tc.worker.Shutdown)
}

func (tc *testContext) snatch(itemID string) {
	tc.t.Helper()
	require.NoError(tc.t, tc.requestService.CreateRequest(tc.ctx, &models.Request{
		ItemID:      itemID,
		Title:       "The Great Escape",
		MediaKind:   models.MediaKindEBook,
		DownloadURL: "https://tracker.example/" + itemID,
	}))
}

func (tc *testContext) jobsOfType(jobType string) []*models.Job {
	tc.t.Helper()
	list, err := tc.jobService.ListJobs(tc.ctx, jobs.ListJobsOptions{Type: &jobType})
	require.NoError(tc.t, err)
	return list
}
