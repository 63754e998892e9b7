package joblogs

import (
	"context"
	"time"

	"github.com/bookferry/bookferry/pkg/models"
	"github.com/pkg/errors"
	"github.com/uptrace/bun"
)

// ListJobLogsOptions filters log rows. At least one of JobID and RequestID
// should be set; rows come back oldest first.
type ListJobLogsOptions struct {
	JobID     *int
	RequestID *int
	AfterID   *int
	Levels    []string
	Limit     *int
}

type Service struct {
	db *bun.DB
}

func NewService(db *bun.DB) *Service {
	return &Service{db}
}

func (svc *Service) CreateJobLog(ctx context.Context, row *models.JobLog) error {
	if row.CreatedAt.IsZero() {
		row.CreatedAt = time.Now()
	}

	_, err := svc.db.NewInsert().Model(row).Returning("*").Exec(ctx)
	return errors.WithStack(err)
}

func (svc *Service) ListJobLogs(ctx context.Context, opts ListJobLogsOptions) ([]*models.JobLog, error) {
	rows := []*models.JobLog{}

	q := svc.db.NewSelect().Model(&rows).Order("jl.id ASC")
	if opts.JobID != nil {
		q = q.Where("jl.job_id = ?", *opts.JobID)
	}
	if opts.RequestID != nil {
		q = q.Where("jl.request_id = ?", *opts.RequestID)
	}
	if opts.AfterID != nil {
		q = q.Where("jl.id > ?", *opts.AfterID)
	}
	if len(opts.Levels) > 0 {
		q = q.Where("jl.level IN (?)", bun.In(opts.Levels))
	}
	if opts.Limit != nil {
		q = q.Limit(*opts.Limit)
	}

	if err := q.Scan(ctx); err != nil {
		return nil, errors.WithStack(err)
	}
	return rows, nil
}
