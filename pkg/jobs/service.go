package jobs

import (
	"context"
	"database/sql"
	"time"

	"github.com/bookferry/bookferry/pkg/errcodes"
	"github.com/bookferry/bookferry/pkg/models"
	"github.com/pkg/errors"
	"github.com/uptrace/bun"
)

type RetrieveJobOptions struct {
	ID *int
}

type ListJobsOptions struct {
	Limit    *int
	Offset   *int
	Statuses []string
	Type     *string

	includeTotal bool
}

type UpdateJobOptions struct {
	Columns []string
}

type Service struct {
	db *bun.DB
}

func NewService(db *bun.DB) *Service {
	return &Service{db}
}

func (svc *Service) CreateJob(ctx context.Context, job *models.Job) error {
	now := time.Now()
	if job.CreatedAt.IsZero() {
		job.CreatedAt = now
	}
	job.UpdatedAt = job.CreatedAt

	if err := job.MarshalData(); err != nil {
		return err
	}

	_, err := svc.db.
		NewInsert().
		Model(job).
		Returning("*").
		Exec(ctx)
	if err != nil {
		return errors.WithStack(err)
	}

	return nil
}

func (svc *Service) RetrieveJob(ctx context.Context, opts RetrieveJobOptions) (*models.Job, error) {
	job := &models.Job{}

	q := svc.db.
		NewSelect().
		Model(job)

	if opts.ID != nil {
		q = q.Where("j.id = ?", *opts.ID)
	}

	err := q.Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errcodes.NotFound("Job")
		}
		return nil, errors.WithStack(err)
	}

	if job.Data != "" {
		if err := job.UnmarshalData(); err != nil {
			return nil, errors.WithStack(err)
		}
	}

	return job, nil
}

func (svc *Service) ListJobs(ctx context.Context, opts ListJobsOptions) ([]*models.Job, error) {
	j, _, err := svc.listJobsWithTotal(ctx, opts)
	return j, errors.WithStack(err)
}

func (svc *Service) ListJobsWithTotal(ctx context.Context, opts ListJobsOptions) ([]*models.Job, int, error) {
	opts.includeTotal = true
	return svc.listJobsWithTotal(ctx, opts)
}

func (svc *Service) listJobsWithTotal(ctx context.Context, opts ListJobsOptions) ([]*models.Job, int, error) {
	jobs := []*models.Job{}
	var total int
	var err error

	q := svc.db.
		NewSelect().
		Model(&jobs).
		Order("j.created_at DESC", "j.id DESC")

	if opts.Limit != nil {
		q = q.Limit(*opts.Limit)
	}
	if opts.Offset != nil {
		q = q.Offset(*opts.Offset)
	}
	if len(opts.Statuses) > 0 {
		q = q.Where("j.status IN (?)", bun.In(opts.Statuses))
	}
	if opts.Type != nil {
		q = q.Where("j.type = ?", *opts.Type)
	}

	if opts.includeTotal {
		total, err = q.ScanAndCount(ctx)
	} else {
		err = q.Scan(ctx)
	}
	if err != nil {
		return nil, 0, errors.WithStack(err)
	}

	for _, job := range jobs {
		if job.Data == "" {
			continue
		}
		if err := job.UnmarshalData(); err != nil {
			return nil, 0, errors.WithStack(err)
		}
	}

	return jobs, total, nil
}

// HasActiveJobByType checks if there's a pending or in-progress job of the given type.
func (svc *Service) HasActiveJobByType(ctx context.Context, jobType string) (bool, error) {
	count, err := svc.db.NewSelect().
		Model((*models.Job)(nil)).
		Where("type = ?", jobType).
		Where("status IN (?)", bun.In([]string{models.JobStatusPending, models.JobStatusInProgress})).
		Count(ctx)
	if err != nil {
		return false, errors.WithStack(err)
	}
	return count > 0, nil
}

// FailOrphanedJobs marks in-progress jobs owned by other processes as failed.
// Those processes died mid-pass, so their jobs will never complete.
func (svc *Service) FailOrphanedJobs(ctx context.Context, processID string) (int, error) {
	res, err := svc.db.NewUpdate().
		Model((*models.Job)(nil)).
		Set("status = ?", models.JobStatusFailed).
		Set("updated_at = ?", time.Now()).
		Where("status = ?", models.JobStatusInProgress).
		Where("process_id IS NULL OR process_id != ?", processID).
		Exec(ctx)
	if err != nil {
		return 0, errors.WithStack(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, errors.WithStack(err)
	}
	return int(n), nil
}

func (svc *Service) UpdateJob(ctx context.Context, job *models.Job, opts UpdateJobOptions) error {
	if len(opts.Columns) == 0 {
		return nil
	}

	job.UpdatedAt = time.Now()
	columns := append(opts.Columns, "updated_at")

	for _, c := range columns {
		if c == "data" {
			job.Data = ""
			if err := job.MarshalData(); err != nil {
				return err
			}
			break
		}
	}

	_, err := svc.db.
		NewUpdate().
		Model(job).
		Column(columns...).
		WherePK().
		Exec(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return errcodes.NotFound("Job")
		}
		return errors.WithStack(err)
	}

	return nil
}
