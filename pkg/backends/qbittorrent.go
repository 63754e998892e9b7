package backends

import (
	"context"
	"strings"
	"sync"

	qbt "github.com/autobrr/go-qbittorrent"
	"github.com/bookferry/bookferry/pkg/config"
	"github.com/robinjoseph08/golib/logger"
)

// QBittorrent drives the qBittorrent Web API.
type QBittorrent struct {
	client *qbt.Client

	mu       sync.Mutex
	loggedIn bool
}

func NewQBittorrent(bc config.BackendConfig) *QBittorrent {
	return &QBittorrent{
		client: qbt.NewClient(qbt.Config{
			Host:     baseURL(bc),
			Username: bc.Username,
			Password: bc.Password,
			Timeout:  int(bc.Timeout.Seconds()),
		}),
	}
}

func (q *QBittorrent) login(ctx context.Context) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.loggedIn {
		return nil
	}
	if err := q.client.LoginCtx(ctx); err != nil {
		return err
	}
	q.loggedIn = true
	return nil
}

func (q *QBittorrent) forget() {
	q.mu.Lock()
	q.loggedIn = false
	q.mu.Unlock()
}

func (q *QBittorrent) ObservedName(ctx context.Context, handle string) (string, bool) {
	log := logger.FromContext(ctx)
	if err := q.login(ctx); err != nil {
		log.Err(err).Warn("qbittorrent: login failed")
		return "", false
	}
	torrents, err := q.client.GetTorrentsCtx(ctx, qbt.TorrentFilterOptions{Hashes: []string{strings.ToLower(handle)}})
	if err != nil {
		q.forget()
		log.Err(err).Warn("qbittorrent: failed to list torrent")
		return "", false
	}
	if len(torrents) == 0 || torrents[0].Name == "" {
		return "", false
	}
	return torrents[0].Name, true
}

func (q *QBittorrent) RemoveTask(ctx context.Context, handle string, purge bool) bool {
	log := logger.FromContext(ctx)
	if err := q.login(ctx); err != nil {
		log.Err(err).Warn("qbittorrent: login failed")
		return false
	}
	if err := q.client.DeleteTorrentsCtx(ctx, []string{strings.ToLower(handle)}, purge); err != nil {
		q.forget()
		log.Err(err).Warn("qbittorrent: failed to delete torrent")
		return false
	}
	return true
}
