package requests

import (
	"context"
	"testing"
	"time"

	"github.com/bookferry/bookferry/internal/testdb"
	"github.com/bookferry/bookferry/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRequest(itemID, kind, url string) *models.Request {
	return &models.Request{
		ItemID:      itemID,
		Title:       "The Great Escape",
		MediaKind:   kind,
		Provider:    "tracker",
		Backend:     "deluge",
		Mode:        models.ModeTorrent,
		DownloadURL: url,
	}
}

func TestCreateRequest_Defaults(t *testing.T) {
	svc := NewService(testdb.New(t))
	ctx := context.Background()

	req := newRequest("1", models.MediaKindEBook, "magnet:?xt=1")
	require.NoError(t, svc.CreateRequest(ctx, req))

	assert.NotZero(t, req.ID)
	assert.Equal(t, models.RequestStatusSnatched, req.Status)
	assert.False(t, req.SnatchedAt.IsZero())

	n, err := svc.CountSnatched(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestCreateRequest_UpsertsOnDownloadURL(t *testing.T) {
	svc := NewService(testdb.New(t))
	ctx := context.Background()

	first := newRequest("1", models.MediaKindEBook, "http://x/1.torrent")
	require.NoError(t, svc.CreateRequest(ctx, first))
	ok, err := svc.MarkFailed(ctx, first, "no ebook file found")
	require.NoError(t, err)
	require.True(t, ok)

	again := newRequest("1", models.MediaKindEBook, "http://x/1.torrent")
	again.Title = "The Great Escape (Retail)"
	require.NoError(t, svc.CreateRequest(ctx, again))

	assert.Equal(t, first.ID, again.ID)
	assert.Equal(t, models.RequestStatusSnatched, again.Status)
	assert.Nil(t, again.FailReason)
	assert.Equal(t, "The Great Escape (Retail)", again.Title)

	list, err := svc.ListRequests(ctx, ListRequestsOptions{})
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestCreateRequest_KeepsProcessedRow(t *testing.T) {
	svc := NewService(testdb.New(t))
	ctx := context.Background()

	first := newRequest("1", models.MediaKindEBook, "http://x/1.torrent")
	require.NoError(t, svc.CreateRequest(ctx, first))
	ok, err := svc.MarkProcessed(ctx, first)
	require.NoError(t, err)
	require.True(t, ok)

	again := newRequest("1", models.MediaKindEBook, "http://x/1.torrent")
	require.NoError(t, svc.CreateRequest(ctx, again))

	assert.Equal(t, first.ID, again.ID)
	assert.Equal(t, models.RequestStatusProcessed, again.Status)

	n, err := svc.CountSnatched(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestMarkProcessed_OnlyOnce(t *testing.T) {
	svc := NewService(testdb.New(t))
	ctx := context.Background()

	req := newRequest("1", models.MediaKindEBook, "http://x/1.torrent")
	require.NoError(t, svc.CreateRequest(ctx, req))

	ok, err := svc.MarkProcessed(ctx, req)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, models.RequestStatusProcessed, req.Status)

	ok, err = svc.MarkProcessed(ctx, req)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = svc.MarkFailed(ctx, req, "late failure")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMarkFailed_RetainsReason(t *testing.T) {
	svc := NewService(testdb.New(t))
	ctx := context.Background()

	req := newRequest("1", models.MediaKindEBook, "u1")
	require.NoError(t, svc.CreateRequest(ctx, req))

	ok, err := svc.MarkFailed(ctx, req, "no ebook file found")
	require.NoError(t, err)
	assert.True(t, ok)

	got, err := svc.RetrieveRequest(ctx, RetrieveRequestOptions{ID: &req.ID})
	require.NoError(t, err)
	assert.Equal(t, models.RequestStatusFailed, got.Status)
	require.NotNil(t, got.FailReason)
	assert.Equal(t, "no ebook file found", *got.FailReason)
	assert.NotNil(t, got.FailedAt)

	ok, err = svc.MarkFailed(ctx, req, "again")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestHasCompetingProcessed_IsScopedToMediaKind(t *testing.T) {
	svc := NewService(testdb.New(t))
	ctx := context.Background()

	ebook := newRequest("7", models.MediaKindEBook, "u-ebook")
	audio := newRequest("7", models.MediaKindAudioBook, "u-audio")
	retry := newRequest("7", models.MediaKindEBook, "u-ebook-2")
	for _, r := range []*models.Request{ebook, audio, retry} {
		require.NoError(t, svc.CreateRequest(ctx, r))
	}

	_, err := svc.MarkProcessed(ctx, audio)
	require.NoError(t, err)

	competing, err := svc.HasCompetingProcessed(ctx, retry)
	require.NoError(t, err)
	assert.False(t, competing, "a processed audiobook must not block the ebook")

	_, err = svc.MarkProcessed(ctx, ebook)
	require.NoError(t, err)

	competing, err = svc.HasCompetingProcessed(ctx, retry)
	require.NoError(t, err)
	assert.True(t, competing)
}

func TestListRequests_Filters(t *testing.T) {
	svc := NewService(testdb.New(t))
	ctx := context.Background()

	old := newRequest("1", models.MediaKindEBook, "u1")
	old.SnatchedAt = time.Now().Add(-72 * time.Hour)
	fresh := newRequest("2", models.MediaKindMagazine, "u2")
	require.NoError(t, svc.CreateRequest(ctx, fresh))
	require.NoError(t, svc.CreateRequest(ctx, old))

	snatched, err := svc.ListSnatched(ctx)
	require.NoError(t, err)
	require.Len(t, snatched, 2)
	assert.Equal(t, old.ID, snatched[0].ID, "oldest snatch comes first")

	cutoff := time.Now().Add(-24 * time.Hour)
	stale, err := svc.ListRequests(ctx, ListRequestsOptions{
		Statuses:       []string{models.RequestStatusSnatched},
		SnatchedBefore: &cutoff,
	})
	require.NoError(t, err)
	require.Len(t, stale, 1)
	assert.Equal(t, old.ID, stale[0].ID)

	kind := models.MediaKindMagazine
	mags, total, err := svc.ListRequestsWithTotal(ctx, ListRequestsOptions{MediaKind: &kind})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	assert.Equal(t, fresh.ID, mags[0].ID)
}

func TestUpdateTitle(t *testing.T) {
	svc := NewService(testdb.New(t))
	ctx := context.Background()

	req := newRequest("1", models.MediaKindEBook, "u1")
	require.NoError(t, svc.CreateRequest(ctx, req))
	require.NoError(t, svc.UpdateTitle(ctx, req, "The.Great.Escape.Retail"))

	got, err := svc.RetrieveRequest(ctx, RetrieveRequestOptions{ID: &req.ID})
	require.NoError(t, err)
	assert.Equal(t, "The.Great.Escape.Retail", got.Title)
}
