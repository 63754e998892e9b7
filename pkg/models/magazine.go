package models

import (
	"time"

	"github.com/uptrace/bun"
)

const (
	MagazineStatusActive = "Active"
	MagazineStatusPaused = "Paused"
)

type Magazine struct {
	bun.BaseModel `bun:"table:magazines,alias:m"`

	Title        string     `bun:",pk" json:"title"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
	Status       string     `bun:",nullzero" json:"status"`
	IssueStatus  string     `bun:",nullzero" json:"issue_status"`
	IssueDate    *string    `json:"issue_date,omitempty"`
	LastAcquired *time.Time `json:"last_acquired,omitempty"`
	LatestCover  *string    `json:"latest_cover,omitempty"`
	Language     *string    `json:"language,omitempty"`
}

// Issue is unique on (title, issue_date).
type Issue struct {
	bun.BaseModel `bun:"table:issues,alias:i"`

	ID        int       `bun:",pk,nullzero" json:"id"`
	IssueID   string    `bun:",nullzero" json:"issue_id"`
	Title     string    `bun:",nullzero" json:"title"`
	IssueDate string    `bun:",nullzero" json:"issue_date"`
	Acquired  time.Time `json:"acquired"`
	IssueFile string    `bun:",nullzero" json:"issue_file"`
}

// DownloadCount tracks how many successful downloads each provider produced.
type DownloadCount struct {
	bun.BaseModel `bun:"table:downloads,alias:d"`

	Provider string `bun:",pk" json:"provider"`
	Count    int    `json:"count"`
}
