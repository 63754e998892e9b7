package models

import (
	"time"

	"github.com/pkg/errors"
	"github.com/segmentio/encoding/json"
	"github.com/uptrace/bun"
)

const (
	JobStatusPending    = "pending"
	JobStatusInProgress = "in_progress"
	JobStatusCompleted  = "completed"
	JobStatusFailed     = "failed"
)

const (
	JobTypePass  = "pass"
	JobTypeSweep = "sweep"
)

// Reasons a pass was started.
const (
	TriggerSchedule = "schedule"
	TriggerManual   = "manual"
	TriggerSnatch   = "snatch"
	TriggerWatch    = "watch"
)

type Job struct {
	bun.BaseModel `bun:"table:jobs,alias:j"`

	ID         int         `bun:",pk,nullzero" json:"id"`
	CreatedAt  time.Time   `json:"created_at"`
	UpdatedAt  time.Time   `json:"updated_at"`
	Type       string      `bun:",nullzero" json:"type"`
	Status     string      `bun:",nullzero" json:"status"`
	Data       string      `bun:",nullzero" json:"-"`
	DataParsed interface{} `bun:"-" json:"data"`
	ProcessID  *string     `json:"process_id,omitempty"`
}

// MarshalData serializes DataParsed into Data unless Data is already set.
func (job *Job) MarshalData() error {
	if job.Data != "" || job.DataParsed == nil {
		return nil
	}
	data, err := json.Marshal(job.DataParsed)
	if err != nil {
		return errors.WithStack(err)
	}
	job.Data = string(data)
	return nil
}

func (job *Job) UnmarshalData() error {
	switch job.Type {
	case JobTypePass:
		job.DataParsed = &JobPassData{}
	case JobTypeSweep:
		job.DataParsed = &JobSweepData{}
	default:
		return nil
	}

	err := json.Unmarshal([]byte(job.Data), job.DataParsed)
	if err != nil {
		return errors.WithStack(err)
	}

	return nil
}

type JobPassData struct {
	Trigger   string `json:"trigger"`
	Processed int    `json:"processed"`
	Failed    int    `json:"failed"`
	Stale     int    `json:"stale"`
	Imported  int    `json:"imported"`
}

type JobSweepData struct {
	Stale int `json:"stale"`
}
