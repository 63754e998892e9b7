package backends

import (
	"context"
	"testing"

	"github.com/bookferry/bookferry/pkg/config"
	"github.com/bookferry/bookferry/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubAdapter struct {
	name    string
	removed []string
}

func (s *stubAdapter) ObservedName(_ context.Context, handle string) (string, bool) {
	return s.name + ":" + handle, true
}

func (s *stubAdapter) RemoveTask(_ context.Context, handle string, _ bool) bool {
	s.removed = append(s.removed, handle)
	return true
}

func request(backend, handle string) *models.Request {
	req := &models.Request{ID: 1, Backend: backend}
	if handle != "" {
		req.Handle = &handle
	}
	return req
}

func TestRegistry_RoutesByTag(t *testing.T) {
	r, err := NewRegistry(&config.Config{})
	require.NoError(t, err)
	stub := &stubAdapter{name: "stub"}
	r.Register("Deluge", stub)
	ctx := context.Background()

	name, ok := r.ObservedName(ctx, request("deluge", "abc"))
	require.True(t, ok)
	assert.Equal(t, "stub:abc", name)

	assert.True(t, r.RemoveTask(ctx, request("DELUGE", "abc"), true))
	assert.Equal(t, []string{"abc"}, stub.removed)
}

func TestRegistry_NoHandle(t *testing.T) {
	r, err := NewRegistry(&config.Config{})
	require.NoError(t, err)
	ctx := context.Background()

	_, ok := r.ObservedName(ctx, request("deluge", ""))
	assert.False(t, ok)
	assert.True(t, r.RemoveTask(ctx, request("deluge", ""), true))
}

func TestRegistry_UnknownTag(t *testing.T) {
	r, err := NewRegistry(&config.Config{})
	require.NoError(t, err)
	ctx := context.Background()

	_, ok := r.ObservedName(ctx, request("nope", "abc"))
	assert.False(t, ok)
	assert.False(t, r.RemoveTask(ctx, request("nope", "abc"), true))
}

func TestNewRegistry_BuildsConfiguredBackends(t *testing.T) {
	r, err := NewRegistry(&config.Config{Backends: []config.BackendConfig{
		{Tag: "deluge", Kind: config.BackendDeluge, Host: "localhost", Port: 58846},
		{Tag: "web", Kind: config.BackendDelugeWeb, Host: "localhost", Port: 8112},
		{Tag: "qbit", Kind: config.BackendQBittorrent, Host: "localhost", Port: 8080},
		{Tag: "sab", Kind: config.BackendSABnzbd, Host: "localhost", Port: 8085},
		{Tag: "direct", Kind: config.BackendDirect},
		{Tag: "blackhole", Kind: config.BackendBlackhole},
	}})
	require.NoError(t, err)

	a, ok := r.Adapter("deluge")
	require.True(t, ok)
	assert.IsType(t, &Deluge{}, a)
	a, ok = r.Adapter("web")
	require.True(t, ok)
	assert.IsType(t, &DelugeWeb{}, a)
	a, ok = r.Adapter("qbit")
	require.True(t, ok)
	assert.IsType(t, &QBittorrent{}, a)
	a, ok = r.Adapter("sab")
	require.True(t, ok)
	assert.IsType(t, &SABnzbd{}, a)
	a, ok = r.Adapter("blackhole")
	require.True(t, ok)
	assert.IsType(t, NoRemote{}, a)

	_, err = NewRegistry(&config.Config{Backends: []config.BackendConfig{{Tag: "x", Kind: "rtorrent"}}})
	assert.Error(t, err)
}

func TestNoRemote(t *testing.T) {
	_, ok := NoRemote{}.ObservedName(context.Background(), "x")
	assert.False(t, ok)
	assert.True(t, NoRemote{}.RemoveTask(context.Background(), "x", true))
}

func TestBaseURL(t *testing.T) {
	tests := []struct {
		name string
		in   config.BackendConfig
		want string
	}{
		{"bare host", config.BackendConfig{Host: "nas", Port: 8112}, "http://nas:8112"},
		{"tls", config.BackendConfig{Host: "nas", Port: 8112, UseTLS: true}, "https://nas:8112"},
		{"scheme kept", config.BackendConfig{Host: "https://nas/", Port: 443}, "https://nas:443"},
		{"url base", config.BackendConfig{Host: "nas", Port: 8080, URLBase: "/sabnzbd/"}, "http://nas:8080/sabnzbd"},
		{"no port", config.BackendConfig{Host: "http://127.0.0.1:5000"}, "http://127.0.0.1:5000"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, baseURL(tt.in))
		})
	}
}
