package backends

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/cookiejar"
	"sync"

	"github.com/bookferry/bookferry/pkg/config"
	"github.com/pkg/errors"
	"github.com/robinjoseph08/golib/logger"
	"github.com/segmentio/encoding/json"
	"golang.org/x/net/publicsuffix"
)

type webRequest struct {
	Method string `json:"method"`
	Params []any  `json:"params"`
	ID     int    `json:"id"`
}

type webResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *webError       `json:"error"`
	ID     int             `json:"id"`
}

type webError struct {
	Message string `json:"message"`
	Code    int    `json:"code"`
}

func (e *webError) Error() string {
	return "deluge-web: " + e.Message
}

// DelugeWeb speaks JSON-RPC to the Deluge web UI. The session cookie lives in
// the adapter's cookie jar and is re-established on the first call after a
// failure.
type DelugeWeb struct {
	cfg    config.BackendConfig
	url    string
	client *http.Client

	mu     sync.Mutex
	authed bool
	nextID int
}

func NewDelugeWeb(bc config.BackendConfig) (*DelugeWeb, error) {
	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return nil, errors.WithStack(err)
	}
	return &DelugeWeb{
		cfg:    bc,
		url:    baseURL(bc) + "/json",
		client: &http.Client{Timeout: bc.Timeout, Jar: jar},
	}, nil
}

func (w *DelugeWeb) post(ctx context.Context, method string, params ...any) (json.RawMessage, error) {
	if params == nil {
		params = []any{}
	}
	w.nextID++
	body, err := json.Marshal(webRequest{Method: method, Params: params, ID: w.nextID})
	if err != nil {
		return nil, errors.WithStack(err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return nil, errors.WithStack(err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		return nil, errors.Wrapf(err, "deluge-web: %s", method)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, errors.Errorf("deluge-web: %s returned http %d", method, resp.StatusCode)
	}

	var out webResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, errors.Wrapf(err, "deluge-web: %s returned invalid json", method)
	}
	if out.Error != nil {
		return nil, out.Error
	}
	return out.Result, nil
}

func (w *DelugeWeb) connected(ctx context.Context) (bool, error) {
	raw, err := w.post(ctx, "web.connected")
	if err != nil {
		return false, err
	}
	var ok bool
	err = json.Unmarshal(raw, &ok)
	return ok, errors.WithStack(err)
}

// login authenticates and makes sure the web UI is attached to a daemon,
// connecting it to the first known host when it is not.
func (w *DelugeWeb) login(ctx context.Context) error {
	raw, err := w.post(ctx, "auth.login", w.cfg.Password)
	if err != nil {
		return err
	}
	var ok bool
	if err := json.Unmarshal(raw, &ok); err != nil || !ok {
		return errors.New("deluge-web: auth.login was rejected")
	}

	connected, err := w.connected(ctx)
	if err != nil {
		return err
	}
	if connected {
		return nil
	}

	raw, err = w.post(ctx, "web.get_hosts")
	if err != nil {
		return err
	}
	var hosts [][]any
	if err := json.Unmarshal(raw, &hosts); err != nil {
		return errors.Wrap(err, "deluge-web: unexpected web.get_hosts result")
	}
	if len(hosts) == 0 || len(hosts[0]) == 0 {
		return errors.New("deluge-web: web UI knows no daemons")
	}
	if _, err := w.post(ctx, "web.connect", hosts[0][0]); err != nil {
		return err
	}

	connected, err = w.connected(ctx)
	if err != nil {
		return err
	}
	if !connected {
		return errors.New("deluge-web: web UI could not connect to daemon")
	}
	return nil
}

// Call runs method with a live session, logging in first when needed. A
// failed call drops the session and is retried once after a fresh login.
func (w *DelugeWeb) Call(ctx context.Context, method string, params ...any) (json.RawMessage, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	for attempt := 0; ; attempt++ {
		if !w.authed {
			if err := w.login(ctx); err != nil {
				return nil, err
			}
			w.authed = true
		}
		raw, err := w.post(ctx, method, params...)
		if err == nil {
			return raw, nil
		}
		w.authed = false
		if attempt > 0 || ctx.Err() != nil {
			return nil, err
		}
		logger.FromContext(ctx).Err(err).Debug("deluge-web: call failed, logging in again")
	}
}

func (w *DelugeWeb) ObservedName(ctx context.Context, handle string) (string, bool) {
	raw, err := w.Call(ctx, "web.get_torrent_status", handle, []string{"name"})
	if err != nil {
		logger.FromContext(ctx).Err(err).Warn("deluge-web: failed to get torrent status")
		return "", false
	}
	var status struct {
		Name string `json:"name"`
	}
	if err := json.Unmarshal(raw, &status); err != nil {
		return "", false
	}
	return status.Name, status.Name != ""
}

func (w *DelugeWeb) RemoveTask(ctx context.Context, handle string, purge bool) bool {
	raw, err := w.Call(ctx, "core.remove_torrent", handle, purge)
	if err != nil {
		logger.FromContext(ctx).Err(err).Warn("deluge-web: failed to remove torrent")
		return false
	}
	var removed bool
	_ = json.Unmarshal(raw, &removed)
	return removed
}
