package requests

type CreateRequestPayload struct {
	ItemID      string  `json:"item_id" mod:"trim" validate:"required"`
	Title       string  `json:"title" mod:"trim" validate:"required"`
	MediaKind   string  `json:"media_kind" validate:"required,oneof=ebook audiobook magazine"`
	Provider    string  `json:"provider" mod:"trim" validate:"required"`
	Backend     string  `json:"backend" mod:"trim" validate:"required"`
	Mode        string  `json:"mode" validate:"omitempty,oneof=torrent magnet torznab nzb direct"`
	Handle      *string `json:"handle,omitempty" mod:"trim"`
	DownloadURL string  `json:"download_url" mod:"trim" validate:"required,download_url"`
	AuxInfo     *string `json:"aux_info,omitempty"`
}

type ListRequestsQuery struct {
	Limit     int      `query:"limit" json:"limit,omitempty" default:"25" validate:"min=1,max=100"`
	Offset    int      `query:"offset" json:"offset,omitempty" validate:"min=0"`
	Status    []string `query:"status" json:"status,omitempty" validate:"dive,oneof=Wanted Snatched Processed Failed"`
	MediaKind *string  `query:"media_kind" json:"media_kind,omitempty" validate:"omitempty,oneof=ebook audiobook magazine"`
	ItemID    *string  `query:"item_id" json:"item_id,omitempty"`
}
