package quarantine

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/bookferry/bookferry/internal/testdb"
	"github.com/bookferry/bookferry/pkg/books"
	"github.com/bookferry/bookferry/pkg/config"
	"github.com/bookferry/bookferry/pkg/models"
	"github.com/bookferry/bookferry/pkg/requests"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingRemover struct {
	removed []int
	ok      bool
}

func (r *recordingRemover) RemoveTask(_ context.Context, req *models.Request, purge bool) bool {
	if purge {
		r.removed = append(r.removed, req.ID)
	}
	return r.ok
}

type fixture struct {
	cfg      *config.Config
	requests *requests.Service
	books    *books.Service
	remover  *recordingRemover
	manager  *Manager
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	dir := t.TempDir()
	cfg := config.NewForTest(dir)
	require.NoError(t, os.MkdirAll(cfg.DownloadDirs[0], 0o755))

	db := testdb.New(t)
	f := &fixture{
		cfg:      cfg,
		requests: requests.NewService(db),
		books:    books.NewService(db),
		remover:  &recordingRemover{ok: true},
	}
	f.manager = New(cfg, f.requests, f.books, f.remover)
	return f
}

func (f *fixture) book(t *testing.T, id, status string) {
	t.Helper()
	ctx := context.Background()
	author, err := f.books.FindOrCreateAuthor(ctx, "Paul Brickhill")
	require.NoError(t, err)
	require.NoError(t, f.books.CreateBook(ctx, &models.Book{ID: id, AuthorID: author.ID, Title: "The Great Escape", Status: status}))
}

func (f *fixture) request(t *testing.T, itemID, url string, snatchedAt time.Time) *models.Request {
	t.Helper()
	req := &models.Request{
		ItemID:      itemID,
		Title:       "The Great Escape",
		MediaKind:   models.MediaKindEBook,
		Provider:    "tracker",
		Backend:     "deluge",
		Mode:        models.ModeTorrent,
		DownloadURL: url,
		SnatchedAt:  snatchedAt,
	}
	require.NoError(t, f.requests.CreateRequest(context.Background(), req))
	return req
}

func (f *fixture) bookStatus(t *testing.T, id string) string {
	t.Helper()
	b, err := f.books.RetrieveBook(context.Background(), books.RetrieveBookOptions{ID: &id})
	require.NoError(t, err)
	return b.Status
}

func TestFail_RevertsAndQuarantines(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.book(t, "1", models.BookStatusSnatched)
	req := f.request(t, "1", "u1", time.Now())

	src := filepath.Join(f.cfg.DownloadDirs[0], "Brickhill - Escape")
	require.NoError(t, os.MkdirAll(src, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(src, "notes.txt"), []byte("x"), 0o644))

	require.NoError(t, f.manager.Fail(ctx, req, src, "no ebook file found"))

	got, err := f.requests.RetrieveRequest(ctx, requests.RetrieveRequestOptions{ID: &req.ID})
	require.NoError(t, err)
	assert.Equal(t, models.RequestStatusFailed, got.Status)
	require.NotNil(t, got.FailReason)
	assert.Equal(t, "no ebook file found", *got.FailReason)
	assert.NotNil(t, got.FailedAt)

	assert.Equal(t, models.BookStatusWanted, f.bookStatus(t, "1"))

	assert.NoDirExists(t, src)
	assert.FileExists(t, filepath.Join(src+".fail", "notes.txt"))
}

func TestFail_ReplacesEarlierQuarantine(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.book(t, "1", models.BookStatusSnatched)
	req := f.request(t, "1", "u1", time.Now())

	src := filepath.Join(f.cfg.DownloadDirs[0], "Escape")
	require.NoError(t, os.MkdirAll(src+".fail", 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(src+".fail", "old.txt"), []byte("old"), 0o644))
	require.NoError(t, os.MkdirAll(src, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(src, "new.txt"), []byte("new"), 0o644))

	require.NoError(t, f.manager.Fail(ctx, req, src, "corrupt"))

	assert.NoFileExists(t, filepath.Join(src+".fail", "old.txt"))
	assert.FileExists(t, filepath.Join(src+".fail", "new.txt"))
}

func TestFail_KeepsStatusWhenAnotherRequestDelivered(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.book(t, "1", models.BookStatusOpen)

	winner := f.request(t, "1", "u1", time.Now())
	ok, err := f.requests.MarkProcessed(ctx, winner)
	require.NoError(t, err)
	require.True(t, ok)

	loser := f.request(t, "1", "u2", time.Now())
	require.NoError(t, f.manager.Fail(ctx, loser, "", "duplicate"))

	assert.Equal(t, models.BookStatusOpen, f.bookStatus(t, "1"))
}

func TestFail_NeverRenamesDownloadRoot(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.book(t, "1", models.BookStatusSnatched)
	req := f.request(t, "1", "u1", time.Now())

	root := f.cfg.DownloadDirs[0]
	require.NoError(t, f.manager.Fail(ctx, req, root+"/", "no ebook file found"))

	assert.DirExists(t, root)
	assert.NoDirExists(t, root+".fail")
}

func TestFailPath_Distinct(t *testing.T) {
	assert.Equal(t, "/dl/a.fail", FailPath("/dl/a"))
	assert.Equal(t, "/dl/a.fail", FailPath("/dl/a/"))
	assert.NotEqual(t, FailPath("/dl/a"), FailPath("/dl/b"))
}

func TestSweepStale(t *testing.T) {
	f := newFixture(t)
	f.cfg.StaleAfter = 24 * time.Hour
	ctx := context.Background()
	now := time.Now()

	f.book(t, "1", models.BookStatusSnatched)
	f.book(t, "2", models.BookStatusSnatched)
	old := f.request(t, "1", "u1", now.Add(-48*time.Hour))
	fresh := f.request(t, "2", "u2", now.Add(-time.Hour))

	n, err := f.manager.SweepStale(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, []int{old.ID}, f.remover.removed)

	got, err := f.requests.RetrieveRequest(ctx, requests.RetrieveRequestOptions{ID: &old.ID})
	require.NoError(t, err)
	assert.Equal(t, models.RequestStatusFailed, got.Status)
	require.NotNil(t, got.FailReason)
	assert.Equal(t, ReasonStale, *got.FailReason)
	assert.Equal(t, models.BookStatusWanted, f.bookStatus(t, "1"))

	got, err = f.requests.RetrieveRequest(ctx, requests.RetrieveRequestOptions{ID: &fresh.ID})
	require.NoError(t, err)
	assert.Equal(t, models.RequestStatusSnatched, got.Status)
	assert.Equal(t, models.BookStatusSnatched, f.bookStatus(t, "2"))
}

func TestSweepStale_LeavesHeldBooks(t *testing.T) {
	f := newFixture(t)
	f.cfg.StaleAfter = time.Hour
	f.remover.ok = false
	ctx := context.Background()
	now := time.Now()

	f.book(t, "1", models.BookStatusOpen)
	f.request(t, "1", "u1", now.Add(-2*time.Hour))

	n, err := f.manager.SweepStale(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, models.BookStatusOpen, f.bookStatus(t, "1"))
}

func TestSweepStale_Disabled(t *testing.T) {
	f := newFixture(t)
	f.cfg.StaleAfter = 0
	f.book(t, "1", models.BookStatusSnatched)
	f.request(t, "1", "u1", time.Now().Add(-1000*time.Hour))

	n, err := f.manager.SweepStale(context.Background(), time.Now())
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Empty(t, f.remover.removed)
}
