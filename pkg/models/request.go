package models

import (
	"time"

	"github.com/uptrace/bun"
)

const (
	RequestStatusWanted    = "Wanted"
	RequestStatusSnatched  = "Snatched"
	RequestStatusProcessed = "Processed"
	RequestStatusFailed    = "Failed"
)

const (
	MediaKindEBook     = "ebook"
	MediaKindAudioBook = "audiobook"
	MediaKindMagazine  = "magazine"
)

// Download modes reported by the search layer when a request is snatched.
const (
	ModeTorrent = "torrent"
	ModeMagnet  = "magnet"
	ModeTorznab = "torznab"
	ModeNZB     = "nzb"
	ModeDirect  = "direct"
)

type Request struct {
	bun.BaseModel `bun:"table:requests,alias:r"`

	ID          int        `bun:",pk,nullzero" json:"id"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	ItemID      string     `bun:",nullzero" json:"item_id"`
	Title       string     `bun:",nullzero" json:"title"`
	MediaKind   string     `bun:",nullzero" json:"media_kind"`
	Provider    string     `bun:",nullzero" json:"provider"`
	Backend     string     `bun:",nullzero" json:"backend"`
	Mode        string     `bun:",nullzero" json:"mode"`
	Handle      *string    `json:"handle,omitempty"`
	DownloadURL string     `bun:",nullzero" json:"download_url"`
	Status      string     `bun:",nullzero" json:"status"`
	AuxInfo     *string    `json:"aux_info,omitempty"`
	SnatchedAt  time.Time  `json:"snatched_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	FailedAt    *time.Time `json:"failed_at,omitempty"`
	FailReason  *string    `json:"fail_reason,omitempty"`
}

// IsTorrent reports whether the download is seeded by a torrent client.
func (r *Request) IsTorrent() bool {
	switch r.Mode {
	case ModeTorrent, ModeMagnet, ModeTorznab:
		return true
	}
	return false
}

func (r *Request) HandleOrEmpty() string {
	if r.Handle == nil {
		return ""
	}
	return *r.Handle
}
