// Package backends talks to the download clients that fetched a request, to
// learn the name a download was saved under and to remove finished tasks.
package backends

import (
	"context"
	"fmt"
	"strings"

	"github.com/bookferry/bookferry/pkg/config"
	"github.com/bookferry/bookferry/pkg/models"
	"github.com/pkg/errors"
	"github.com/robinjoseph08/golib/logger"
)

// Adapter is implemented by every supported download client. Neither method
// returns an error: failures are logged by the adapter and reported as false.
type Adapter interface {
	// ObservedName returns the name the client currently reports for the
	// task identified by handle.
	ObservedName(ctx context.Context, handle string) (string, bool)
	// RemoveTask deletes the task, and its data when purge is set.
	RemoveTask(ctx context.Context, handle string, purge bool) bool
}

// New builds the adapter for a configured backend.
func New(bc config.BackendConfig) (Adapter, error) {
	switch bc.Kind {
	case config.BackendDeluge:
		return NewDeluge(bc), nil
	case config.BackendDelugeWeb:
		return NewDelugeWeb(bc)
	case config.BackendQBittorrent:
		return NewQBittorrent(bc), nil
	case config.BackendSABnzbd:
		return NewSABnzbd(bc), nil
	case config.BackendDirect, config.BackendBlackhole:
		return NoRemote{}, nil
	}
	return nil, errors.Errorf("unknown backend kind %q", bc.Kind)
}

// Registry selects an adapter by the backend tag recorded on a request.
type Registry struct {
	adapters map[string]Adapter
}

func NewRegistry(cfg *config.Config) (*Registry, error) {
	r := &Registry{adapters: map[string]Adapter{}}
	for _, bc := range cfg.Backends {
		a, err := New(bc)
		if err != nil {
			return nil, errors.Wrapf(err, "backend %s", bc.Tag)
		}
		r.Register(bc.Tag, a)
	}
	return r, nil
}

// Register adds or replaces the adapter for tag.
func (r *Registry) Register(tag string, a Adapter) {
	r.adapters[strings.ToLower(tag)] = a
}

func (r *Registry) Adapter(tag string) (Adapter, bool) {
	a, ok := r.adapters[strings.ToLower(tag)]
	return a, ok
}

func (r *Registry) lookup(ctx context.Context, req *models.Request) (Adapter, string, bool) {
	handle := req.HandleOrEmpty()
	if handle == "" {
		return nil, "", false
	}
	a, ok := r.Adapter(req.Backend)
	if !ok {
		logger.FromContext(ctx).Warn("no backend configured for request", logger.Data{"request_id": req.ID, "backend": req.Backend})
		return nil, "", false
	}
	return a, handle, true
}

// ObservedName asks the request's backend for the current task name.
func (r *Registry) ObservedName(ctx context.Context, req *models.Request) (string, bool) {
	a, handle, ok := r.lookup(ctx, req)
	if !ok {
		return "", false
	}
	return a.ObservedName(ctx, handle)
}

// RemoveTask removes the request's task from its backend. Requests without a
// remote task report success.
func (r *Registry) RemoveTask(ctx context.Context, req *models.Request, purge bool) bool {
	if req.HandleOrEmpty() == "" {
		return true
	}
	a, handle, ok := r.lookup(ctx, req)
	if !ok {
		return false
	}
	return a.RemoveTask(ctx, handle, purge)
}

// NoRemote is used for direct downloads and blackhole drops, which leave no
// task behind in any client.
type NoRemote struct{}

func (NoRemote) ObservedName(context.Context, string) (string, bool) { return "", false }

func (NoRemote) RemoveTask(context.Context, string, bool) bool { return true }

// baseURL joins host, port and url base into an http(s) URL without a
// trailing slash.
func baseURL(bc config.BackendConfig) string {
	host := strings.TrimRight(bc.Host, "/")
	if !strings.HasPrefix(host, "http://") && !strings.HasPrefix(host, "https://") {
		scheme := "http"
		if bc.UseTLS {
			scheme = "https"
		}
		host = scheme + "://" + host
	}
	if bc.Port > 0 {
		host = fmt.Sprintf("%s:%d", host, bc.Port)
	}
	base := strings.Trim(bc.URLBase, "/")
	if base != "" {
		host += "/" + base
	}
	return host
}
