package backends

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/bookferry/bookferry/pkg/config"
	"github.com/segmentio/encoding/json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeWebUI emulates the deluge web UI JSON endpoint.
type fakeWebUI struct {
	mu        sync.Mutex
	methods   []string
	sessions  int
	attached  bool
	expireOne bool
}

func (f *fakeWebUI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var req webRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.methods = append(f.methods, req.Method)

	reply := func(result any) {
		_ = json.NewEncoder(w).Encode(map[string]any{"result": result, "error": nil, "id": req.ID})
	}
	fail := func(msg string) {
		_ = json.NewEncoder(w).Encode(map[string]any{"result": nil, "error": map[string]any{"message": msg, "code": 1}, "id": req.ID})
	}

	if req.Method == "auth.login" {
		if req.Params[0] != "deluge" {
			reply(false)
			return
		}
		f.sessions++
		http.SetCookie(w, &http.Cookie{Name: "_session_id", Value: "s1", Path: "/"})
		reply(true)
		return
	}
	if c, err := r.Cookie("_session_id"); err != nil || c.Value != "s1" {
		fail("Not authenticated")
		return
	}
	if f.expireOne && req.Method == "web.get_torrent_status" {
		f.expireOne = false
		fail("Not authenticated")
		return
	}

	switch req.Method {
	case "web.connected":
		reply(f.attached)
	case "web.get_hosts":
		reply([]any{[]any{"host-1", "127.0.0.1", 58846, "Offline"}})
	case "web.connect":
		if req.Params[0] == "host-1" {
			f.attached = true
		}
		reply(nil)
	case "web.get_torrent_status":
		reply(map[string]any{"name": "The Great Escape"})
	case "core.remove_torrent":
		reply(true)
	default:
		fail("unknown method")
	}
}

func newTestDelugeWeb(t *testing.T, f *fakeWebUI) *DelugeWeb {
	t.Helper()
	srv := httptest.NewServer(f)
	t.Cleanup(srv.Close)

	w, err := NewDelugeWeb(config.BackendConfig{
		Kind:     config.BackendDelugeWeb,
		Host:     srv.URL,
		Password: "deluge",
		Timeout:  5 * time.Second,
	})
	require.NoError(t, err)
	return w
}

func TestDelugeWeb_ConnectsDaemonBeforeFirstCall(t *testing.T) {
	f := &fakeWebUI{}
	w := newTestDelugeWeb(t, f)
	ctx := context.Background()

	name, ok := w.ObservedName(ctx, "abc")
	require.True(t, ok)
	assert.Equal(t, "The Great Escape", name)

	assert.True(t, w.RemoveTask(ctx, "abc", true))

	assert.Equal(t, []string{
		"auth.login",
		"web.connected",
		"web.get_hosts",
		"web.connect",
		"web.connected",
		"web.get_torrent_status",
		"core.remove_torrent",
	}, f.methods)
	assert.Equal(t, 1, f.sessions)
}

func TestDelugeWeb_ReestablishesExpiredSession(t *testing.T) {
	f := &fakeWebUI{attached: true}
	w := newTestDelugeWeb(t, f)
	ctx := context.Background()

	_, ok := w.ObservedName(ctx, "abc")
	require.True(t, ok)

	f.mu.Lock()
	f.expireOne = true
	f.mu.Unlock()

	name, ok := w.ObservedName(ctx, "abc")
	require.True(t, ok)
	assert.Equal(t, "The Great Escape", name)
	assert.Equal(t, 2, f.sessions)
}

func TestDelugeWeb_BadPassword(t *testing.T) {
	f := &fakeWebUI{attached: true}
	w := newTestDelugeWeb(t, f)
	w.cfg.Password = "wrong"

	_, ok := w.ObservedName(context.Background(), "abc")
	assert.False(t, ok)
	assert.False(t, w.RemoveTask(context.Background(), "abc", false))
	assert.Zero(t, f.sessions)
}
