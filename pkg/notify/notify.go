// Package notify announces completed downloads.
package notify

import (
	"context"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/bookferry/bookferry/pkg/config"
	"github.com/pkg/errors"
)

type Notifier interface {
	Notify(ctx context.Context, title, message string) error
}

// New returns an ntfy notifier, or a no-op one when no server is configured.
func New(cfg config.NotifyConfig) Notifier {
	if cfg.NtfyURL == "" || cfg.Topic == "" {
		return Noop{}
	}
	return NewNtfy(cfg)
}

type Noop struct{}

func (Noop) Notify(context.Context, string, string) error { return nil }

// Ntfy publishes to a topic on an ntfy server.
type Ntfy struct {
	url    string
	token  string
	client *http.Client
}

func NewNtfy(cfg config.NotifyConfig) *Ntfy {
	return &Ntfy{
		url:    strings.TrimRight(cfg.NtfyURL, "/") + "/" + cfg.Topic,
		token:  cfg.Token,
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

func (n *Ntfy) Notify(ctx context.Context, title, message string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, strings.NewReader(message))
	if err != nil {
		return errors.WithStack(err)
	}
	req.Header.Set("Title", title)
	req.Header.Set("Tags", "books")
	if n.token != "" {
		req.Header.Set("Authorization", "Bearer "+n.token)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return errors.Wrap(err, "ntfy: publish failed")
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= http.StatusBadRequest {
		return errors.Errorf("ntfy: publish returned http %d", resp.StatusCode)
	}
	return nil
}

// DownloadMessage is the text sent when title finishes downloading.
func DownloadMessage(title string, at time.Time) string {
	return title + " at " + at.Format("2006-01-02 15:04:05")
}
