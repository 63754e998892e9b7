package backends

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"path/filepath"

	"github.com/bookferry/bookferry/pkg/config"
	"github.com/pkg/errors"
	"github.com/robinjoseph08/golib/logger"
	"github.com/segmentio/encoding/json"
)

type sabSlot struct {
	NzoID    string `json:"nzo_id"`
	Name     string `json:"name"`
	Filename string `json:"filename"`
	Storage  string `json:"storage"`
}

type sabResponse struct {
	Status *bool  `json:"status"`
	Error  string `json:"error"`
	Queue  *struct {
		Slots []sabSlot `json:"slots"`
	} `json:"queue"`
	History *struct {
		Slots []sabSlot `json:"slots"`
	} `json:"history"`
}

// SABnzbd talks to the SABnzbd HTTP API. Handles are nzo ids.
type SABnzbd struct {
	cfg    config.BackendConfig
	url    string
	client *http.Client
}

func NewSABnzbd(bc config.BackendConfig) *SABnzbd {
	return &SABnzbd{
		cfg:    bc,
		url:    baseURL(bc) + "/api",
		client: &http.Client{Timeout: bc.Timeout},
	}
}

func (s *SABnzbd) get(ctx context.Context, params url.Values) (*sabResponse, error) {
	params.Set("output", "json")
	params.Set("apikey", s.cfg.APIKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url+"?"+params.Encode(), nil)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, errors.Wrapf(err, "sabnzbd: mode=%s", params.Get("mode"))
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, errors.Errorf("sabnzbd: mode=%s returned http %d", params.Get("mode"), resp.StatusCode)
	}
	var out sabResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, errors.Wrap(err, "sabnzbd: invalid json")
	}
	if out.Error != "" {
		return nil, errors.Errorf("sabnzbd: %s", out.Error)
	}
	return &out, nil
}

// ObservedName looks the job up in the history first, where finished jobs
// report the folder they were unpacked to, then in the queue.
func (s *SABnzbd) ObservedName(ctx context.Context, handle string) (string, bool) {
	log := logger.FromContext(ctx)

	history, err := s.get(ctx, url.Values{"mode": {"history"}, "nzo_ids": {handle}})
	if err != nil {
		log.Err(err).Warn("sabnzbd: failed to read history")
		return "", false
	}
	if history.History != nil {
		for _, slot := range history.History.Slots {
			if slot.NzoID != handle {
				continue
			}
			if slot.Storage != "" {
				return filepath.Base(slot.Storage), true
			}
			if slot.Name != "" {
				return slot.Name, true
			}
		}
	}

	queue, err := s.get(ctx, url.Values{"mode": {"queue"}, "nzo_ids": {handle}})
	if err != nil {
		log.Err(err).Warn("sabnzbd: failed to read queue")
		return "", false
	}
	if queue.Queue != nil {
		for _, slot := range queue.Queue.Slots {
			if slot.NzoID == handle && slot.Filename != "" {
				return slot.Filename, true
			}
		}
	}
	return "", false
}

// RemoveTask deletes the job from both the history and the queue. It reports
// success when either held it.
func (s *SABnzbd) RemoveTask(ctx context.Context, handle string, purge bool) bool {
	delFiles := "0"
	if purge {
		delFiles = "1"
	}
	removed := false
	for _, mode := range []string{"history", "queue"} {
		out, err := s.get(ctx, url.Values{
			"mode":      {mode},
			"name":      {"delete"},
			"value":     {handle},
			"del_files": {delFiles},
		})
		if err != nil {
			logger.FromContext(ctx).Err(err).Warn("sabnzbd: delete failed", logger.Data{"mode": mode})
			continue
		}
		if out.Status != nil && *out.Status {
			removed = true
		}
	}
	return removed
}
