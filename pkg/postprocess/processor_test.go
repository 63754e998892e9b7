package postprocess

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/bookferry/bookferry/internal/testdb"
	"github.com/bookferry/bookferry/internal/testgen"
	"github.com/bookferry/bookferry/pkg/backends"
	"github.com/bookferry/bookferry/pkg/books"
	"github.com/bookferry/bookferry/pkg/config"
	"github.com/bookferry/bookferry/pkg/downloads"
	"github.com/bookferry/bookferry/pkg/joblogs"
	"github.com/bookferry/bookferry/pkg/jobs"
	"github.com/bookferry/bookferry/pkg/magazines"
	"github.com/bookferry/bookferry/pkg/models"
	"github.com/bookferry/bookferry/pkg/requests"
	"github.com/pkg/errors"
	"github.com/robinjoseph08/golib/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
)

type fakeAdapter struct {
	mu      sync.Mutex
	names   map[string]string
	removed []string
	purged  []string
}

func (a *fakeAdapter) ObservedName(_ context.Context, handle string) (string, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	name, ok := a.names[handle]
	return name, ok
}

func (a *fakeAdapter) RemoveTask(_ context.Context, handle string, purge bool) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if purge {
		a.purged = append(a.purged, handle)
	} else {
		a.removed = append(a.removed, handle)
	}
	return true
}

type fakeNotifier struct {
	messages []string
}

func (n *fakeNotifier) Notify(_ context.Context, _, message string) error {
	n.messages = append(n.messages, message)
	return nil
}

type fixture struct {
	cfg       *config.Config
	db        *bun.DB
	downloads string
	adapter   *fakeAdapter
	notifier  *fakeNotifier
	requests  *requests.Service
	books     *books.Service
	jobLog    *joblogs.JobLogger
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	dir := t.TempDir()
	cfg := config.NewForTest(dir)
	require.NoError(t, os.MkdirAll(cfg.DownloadDirs[0], 0o755))

	db := testdb.New(t)
	ctx := context.Background()
	job := &models.Job{Type: models.JobTypePass, Status: models.JobStatusInProgress}
	require.NoError(t, jobs.NewService(db).CreateJob(ctx, job))

	return &fixture{
		cfg:       cfg,
		db:        db,
		downloads: cfg.DownloadDirs[0],
		adapter:   &fakeAdapter{names: map[string]string{}},
		notifier:  &fakeNotifier{},
		requests:  requests.NewService(db),
		books:     books.NewService(db),
		jobLog:    joblogs.NewService(db).NewJobLogger(ctx, job.ID, logger.New()),
	}
}

func (f *fixture) processor(t *testing.T) *Processor {
	t.Helper()
	registry, err := backends.NewRegistry(f.cfg)
	require.NoError(t, err)
	registry.Register("client", f.adapter)
	return New(f.cfg, f.db, registry, f.notifier, nil)
}

func (f *fixture) book(t *testing.T, id, title string) *models.Book {
	t.Helper()
	ctx := context.Background()
	author, err := f.books.FindOrCreateAuthor(ctx, "Paul Brickhill")
	require.NoError(t, err)
	book := &models.Book{ID: id, AuthorID: author.ID, Title: title, Status: models.BookStatusSnatched}
	require.NoError(t, f.books.CreateBook(ctx, book))
	return book
}

func (f *fixture) request(t *testing.T, itemID, title string, mutate ...func(*models.Request)) *models.Request {
	t.Helper()
	handle := "hash-" + itemID
	req := &models.Request{
		ItemID:      itemID,
		Title:       title,
		MediaKind:   models.MediaKindEBook,
		Provider:    "tracker",
		Backend:     "client",
		Mode:        models.ModeNZB,
		Handle:      &handle,
		DownloadURL: "https://tracker.example/" + itemID,
	}
	for _, m := range mutate {
		m(req)
	}
	require.NoError(t, f.requests.CreateRequest(context.Background(), req))
	return req
}

func (f *fixture) reload(t *testing.T, req *models.Request) *models.Request {
	t.Helper()
	got, err := f.requests.RetrieveRequest(context.Background(), requests.RetrieveRequestOptions{ID: &req.ID})
	require.NoError(t, err)
	return got
}

func (f *fixture) reloadBook(t *testing.T, id string) *models.Book {
	t.Helper()
	got, err := f.books.RetrieveBook(context.Background(), books.RetrieveBookOptions{ID: &id})
	require.NoError(t, err)
	return got
}

func greatEscapePath(f *fixture, ext string) string {
	return filepath.Join(f.cfg.EBookDir, "Paul Brickhill", "The Great Escape", "The Great Escape - Paul Brickhill"+ext)
}

func TestPass_GreatEscape(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.book(t, "1", "The Great Escape")
	req := f.request(t, "1", "The Great Escape")
	testgen.WriteFile(t, f.downloads, "The_Great_Escape.epub", []byte("epub"))

	data := f.processor(t).Pass(ctx, f.jobLog, models.TriggerManual)

	assert.Equal(t, 1, data.Processed)
	assert.Equal(t, 0, data.Failed)
	assert.Equal(t, models.RequestStatusProcessed, f.reload(t, req).Status)

	dest := greatEscapePath(f, ".epub")
	assert.True(t, testgen.Exists(dest))
	assert.True(t, testgen.Exists(greatEscapePath(f, ".opf")))

	book := f.reloadBook(t, "1")
	assert.Equal(t, models.BookStatusOpen, book.Status)
	require.NotNil(t, book.BookFile)
	assert.Equal(t, dest, *book.BookFile)
	require.NotNil(t, book.Author)
	assert.Equal(t, 1, book.Author.HaveBooks)

	// The file was moved into its own folder, committed and cleaned up.
	assert.Empty(t, testgen.ListNames(t, f.downloads))
	assert.Equal(t, []string{"hash-1"}, f.adapter.removed)
	assert.Empty(t, f.adapter.purged)

	require.Len(t, f.notifier.messages, 1)
	assert.Contains(t, f.notifier.messages[0], "eBook The Great Escape - Paul Brickhill from tracker at ")

	counts, err := downloads.NewService(f.db).ListCounts(ctx)
	require.NoError(t, err)
	require.Len(t, counts, 1)
	assert.Equal(t, "tracker", counts[0].Provider)
	assert.Equal(t, 1, counts[0].Count)
}

func TestPass_AutoAdd(t *testing.T) {
	tests := []struct {
		name     string
		bookOnly bool
		want     []string
	}{
		{"with sidecar", false, []string{"The Great Escape - Paul Brickhill.epub", "The Great Escape - Paul Brickhill.opf"}},
		{"book only", true, []string{"The Great Escape - Paul Brickhill.epub"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			f.cfg.BookOnly = tt.bookOnly
			autoAdd := testgen.CreateSubDir(t, filepath.Dir(f.downloads), "autoadd")
			f.cfg.AutoAddDirs = []string{autoAdd}
			f.book(t, "1", "The Great Escape")
			f.request(t, "1", "The Great Escape")
			testgen.WriteFile(t, f.downloads, "The Great Escape.epub", []byte("epub"))

			data := f.processor(t).Pass(context.Background(), f.jobLog, models.TriggerManual)

			assert.Equal(t, 1, data.Processed)
			assert.ElementsMatch(t, tt.want, testgen.ListNames(t, autoAdd))
			assert.True(t, testgen.Exists(greatEscapePath(f, ".epub")))
		})
	}
}

func TestPass_RootFileLeavesSimilarlyNamedRelease(t *testing.T) {
	f := newFixture(t)
	f.book(t, "1", "Dune")
	req := f.request(t, "1", "Dune")
	testgen.WriteFile(t, f.downloads, "Dune.epub", []byte("dune"))
	testgen.WriteFile(t, f.downloads, "Dune.sequel.epub", []byte("messiah"))

	data := f.processor(t).Pass(context.Background(), f.jobLog, models.TriggerManual)

	assert.Equal(t, 1, data.Processed)
	assert.Equal(t, models.RequestStatusProcessed, f.reload(t, req).Status)
	content, err := os.ReadFile(filepath.Join(f.cfg.EBookDir, "Paul Brickhill", "Dune", "Dune - Paul Brickhill.epub"))
	require.NoError(t, err)
	assert.Equal(t, "dune", string(content))
	assert.Equal(t, []string{"Dune.sequel.epub"}, testgen.ListNames(t, f.downloads))
}

func TestPass_Idempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.cfg.KeepOriginalFiles = true
	f.book(t, "1", "The Great Escape")
	f.request(t, "1", "The Great Escape")
	dir := testgen.CreateSubDir(t, f.downloads, "The Great Escape [epub]")
	testgen.WriteFile(t, dir, "book.epub", []byte("epub"))

	p := f.processor(t)
	first := p.Pass(ctx, f.jobLog, models.TriggerManual)
	require.Equal(t, 1, first.Processed)
	info, err := os.Stat(greatEscapePath(f, ".epub"))
	require.NoError(t, err)

	second := p.Pass(ctx, f.jobLog, models.TriggerManual)
	assert.Equal(t, 0, second.Processed)
	assert.Equal(t, 0, second.Failed)
	assert.Equal(t, 0, second.Imported)

	again, err := os.Stat(greatEscapePath(f, ".epub"))
	require.NoError(t, err)
	assert.Equal(t, info.ModTime(), again.ModTime())
	// keep_original_files leaves the download where it was.
	assert.True(t, testgen.Exists(filepath.Join(dir, "book.epub")))
	assert.Len(t, f.notifier.messages, 1)
}

func TestPass_ArchiveInRoot(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.book(t, "1", "The Great Escape")
	req := f.request(t, "1", "mybook")
	testgen.GenerateZip(t, f.downloads, "mybook.zip", []testgen.ArchiveEntry{
		{Name: "book.epub", Content: []byte("epub")},
		{Name: "readme.txt", Content: []byte("hello")},
	})

	data := f.processor(t).Pass(ctx, f.jobLog, models.TriggerManual)

	assert.Equal(t, 1, data.Processed)
	assert.Equal(t, models.RequestStatusProcessed, f.reload(t, req).Status)
	assert.True(t, testgen.Exists(greatEscapePath(f, ".epub")))
	assert.False(t, testgen.Exists(greatEscapePath(f, ".txt")))
	// The unpacked folder is scratch space and always goes.
	assert.Equal(t, []string{"mybook.zip"}, testgen.ListNames(t, f.downloads))
}

func TestPass_CommitFailureQuarantines(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	// A file where the library should be makes every commit fail.
	require.NoError(t, os.MkdirAll(filepath.Dir(f.cfg.EBookDir), 0o755))
	require.NoError(t, os.WriteFile(f.cfg.EBookDir, []byte("not a dir"), 0o644))

	f.book(t, "1", "The Great Escape")
	req := f.request(t, "1", "The Great Escape")
	dir := testgen.CreateSubDir(t, f.downloads, "The Great Escape")
	testgen.WriteFile(t, dir, "book.epub", []byte("epub"))

	data := f.processor(t).Pass(ctx, f.jobLog, models.TriggerManual)

	assert.Equal(t, 0, data.Processed)
	assert.Equal(t, 1, data.Failed)

	got := f.reload(t, req)
	assert.Equal(t, models.RequestStatusFailed, got.Status)
	require.NotNil(t, got.FailReason)
	assert.Contains(t, *got.FailReason, "unable to create directory")
	assert.Equal(t, models.BookStatusWanted, f.reloadBook(t, "1").Status)

	assert.Equal(t, []string{"The Great Escape.fail"}, testgen.ListNames(t, f.downloads))
	assert.Empty(t, f.adapter.removed)
	assert.Empty(t, f.notifier.messages)
}

func TestPass_KeepSeedingLeavesTorrent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.cfg.KeepSeeding = true
	f.book(t, "1", "The Great Escape")
	f.request(t, "1", "The Great Escape", func(r *models.Request) { r.Mode = models.ModeTorrent })
	testgen.WriteFile(t, f.downloads, "The Great Escape.epub", []byte("epub"))

	data := f.processor(t).Pass(ctx, f.jobLog, models.TriggerManual)

	assert.Equal(t, 1, data.Processed)
	assert.True(t, testgen.Exists(greatEscapePath(f, ".epub")))
	assert.Equal(t, []string{"The Great Escape.epub"}, testgen.ListNames(t, f.downloads))
	assert.Empty(t, f.adapter.removed)
}

func TestPass_RefreshesTitleFromBackend(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.book(t, "1", "The Great Escape")
	req := f.request(t, "1", "magnet placeholder")
	f.adapter.names["hash-1"] = "The Great Escape (1950) retail"
	dir := testgen.CreateSubDir(t, f.downloads, "The Great Escape (1950) retail")
	testgen.WriteFile(t, dir, "book.epub", []byte("epub"))

	data := f.processor(t).Pass(ctx, f.jobLog, models.TriggerManual)

	assert.Equal(t, 1, data.Processed)
	got := f.reload(t, req)
	assert.Equal(t, "The Great Escape (1950) retail", got.Title)
	assert.Equal(t, models.RequestStatusProcessed, got.Status)
}

func TestPass_NoMatchLeavesEverything(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.book(t, "1", "The Great Escape")
	req := f.request(t, "1", "The Great Escape")
	testgen.WriteFile(t, f.downloads, "Completely Different Book.epub", []byte("epub"))

	data := f.processor(t).Pass(ctx, f.jobLog, models.TriggerManual)

	assert.Equal(t, 0, data.Processed)
	assert.Equal(t, 0, data.Failed)
	assert.Equal(t, models.RequestStatusSnatched, f.reload(t, req).Status)
	assert.Equal(t, []string{"Completely Different Book.epub"}, testgen.ListNames(t, f.downloads))
}

func TestPass_IncompleteDownloadIsSkipped(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.book(t, "1", "The Great Escape")
	req := f.request(t, "1", "The Great Escape")
	dir := testgen.CreateSubDir(t, f.downloads, "The Great Escape")
	testgen.WriteFile(t, dir, "book.epub", []byte("epub"))
	testgen.WriteFile(t, dir, "sync.bts", []byte{})

	data := f.processor(t).Pass(ctx, f.jobLog, models.TriggerManual)

	assert.Equal(t, 0, data.Processed)
	assert.Equal(t, models.RequestStatusSnatched, f.reload(t, req).Status)
	assert.True(t, testgen.Exists(filepath.Join(dir, "book.epub")))
}

func TestPass_MissingItemIsNotRecognised(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	req := f.request(t, "404", "The Great Escape")
	testgen.WriteFile(t, f.downloads, "The Great Escape.epub", []byte("epub"))

	data := f.processor(t).Pass(ctx, f.jobLog, models.TriggerManual)

	assert.Equal(t, 1, data.Failed)
	got := f.reload(t, req)
	assert.Equal(t, models.RequestStatusFailed, got.Status)
	require.NotNil(t, got.FailReason)
	assert.Equal(t, "not recognised", *got.FailReason)
	// Nothing was touched on disk.
	assert.Equal(t, []string{"The Great Escape.epub"}, testgen.ListNames(t, f.downloads))
}

func TestPass_Magazine(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	mags := magazines.NewService(f.db)
	require.NoError(t, mags.CreateMagazine(ctx, &models.Magazine{Title: "Wired"}))
	issueDate := "2024-03-01"
	req := f.request(t, "Wired", "Wired March 2024", func(r *models.Request) {
		r.MediaKind = models.MediaKindMagazine
		r.AuxInfo = &issueDate
	})
	dir := testgen.CreateSubDir(t, f.downloads, "Wired March 2024")
	testgen.WriteFile(t, dir, "wired.pdf", []byte("%PDF"))

	data := f.processor(t).Pass(ctx, f.jobLog, models.TriggerManual)

	assert.Equal(t, 1, data.Processed)
	assert.Equal(t, models.RequestStatusProcessed, f.reload(t, req).Status)

	dest := filepath.Join(f.cfg.EBookDir, "_Magazines", "Wired", issueDate, issueDate+" - Wired.pdf")
	assert.True(t, testgen.Exists(dest))
	assert.True(t, testgen.Exists(filepath.Join(filepath.Dir(dest), issueDate+" - Wired.opf")))

	issue, err := mags.RetrieveIssue(ctx, "Wired", issueDate)
	require.NoError(t, err)
	assert.Equal(t, dest, issue.IssueFile)

	mag, err := mags.RetrieveMagazine(ctx, "Wired")
	require.NoError(t, err)
	require.NotNil(t, mag.IssueDate)
	assert.Equal(t, issueDate, *mag.IssueDate)
}

func TestPass_SweepsStaleRequestsLast(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.cfg.StaleAfter = time.Hour
	old := func(r *models.Request) { r.SnatchedAt = time.Now().Add(-2 * time.Hour) }
	f.book(t, "1", "The Great Escape")
	f.book(t, "2", "Reach for the Sky")
	landed := f.request(t, "1", "The Great Escape", old)
	missing := f.request(t, "2", "Reach for the Sky", old)
	testgen.WriteFile(t, f.downloads, "The Great Escape.epub", []byte("epub"))

	data := f.processor(t).Pass(ctx, f.jobLog, models.TriggerSchedule)

	assert.Equal(t, 1, data.Processed)
	assert.Equal(t, 1, data.Stale)
	assert.Equal(t, models.RequestStatusProcessed, f.reload(t, landed).Status)
	assert.True(t, testgen.Exists(greatEscapePath(f, ".epub")))

	got := f.reload(t, missing)
	assert.Equal(t, models.RequestStatusFailed, got.Status)
	require.NotNil(t, got.FailReason)
	assert.Equal(t, ErrStaleRequest.Error(), *got.FailReason)
	assert.Equal(t, []string{"hash-2"}, f.adapter.purged)
	assert.Equal(t, []string{"hash-1"}, f.adapter.removed)
}

func TestProcessRequest_SettledElsewhereSkipsBookkeeping(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.book(t, "1", "The Great Escape")
	req := f.request(t, "1", "The Great Escape")
	testgen.WriteFile(t, f.downloads, "The Great Escape.epub", []byte("epub"))

	// Another process settles the row after this pass listed it.
	other := f.reload(t, req)
	ok, err := f.requests.MarkProcessed(ctx, other)
	require.NoError(t, err)
	require.True(t, ok)

	p := f.processor(t)
	err = p.processRequest(ctx, f.jobLog, f.downloads, req)
	assert.True(t, errors.Is(err, ErrAlreadySettled))

	data := &models.JobPassData{}
	p.record(f.jobLog, req, err, data)
	assert.Equal(t, 0, data.Processed)
	assert.Equal(t, 1, data.Failed)

	assert.Equal(t, models.RequestStatusProcessed, f.reload(t, req).Status)
	assert.Equal(t, models.BookStatusSnatched, f.reloadBook(t, "1").Status)
	assert.Empty(t, f.notifier.messages)
	assert.Empty(t, f.adapter.removed)
	counts, err := downloads.NewService(f.db).ListCounts(ctx)
	require.NoError(t, err)
	assert.Empty(t, counts)
}

func TestPass_MissingDownloadDirDoesNotAbort(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.cfg.DownloadDirs = append([]string{filepath.Join(t.TempDir(), "gone")}, f.cfg.DownloadDirs...)
	f.book(t, "1", "The Great Escape")
	f.request(t, "1", "The Great Escape")
	testgen.WriteFile(t, f.downloads, "The Great Escape.epub", []byte("epub"))

	data := f.processor(t).Pass(ctx, f.jobLog, models.TriggerManual)

	assert.Equal(t, 1, data.Processed)
}

func TestGuard_RecoversPanics(t *testing.T) {
	f := newFixture(t)
	p := f.processor(t)

	err := p.guard(f.jobLog, func() error {
		panic("boom")
	})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "boom")
}
