package requests

import (
	"context"
	"database/sql"
	"time"

	"github.com/bookferry/bookferry/pkg/errcodes"
	"github.com/bookferry/bookferry/pkg/models"
	"github.com/pkg/errors"
	"github.com/uptrace/bun"
)

type RetrieveRequestOptions struct {
	ID *int
}

type ListRequestsOptions struct {
	Limit          *int
	Offset         *int
	Statuses       []string
	MediaKind      *string
	ItemID         *string
	SnatchedBefore *time.Time

	includeTotal bool
}

type Service struct {
	db *bun.DB
}

func NewService(db *bun.DB) *Service {
	return &Service{db}
}

// CreateRequest records a snatch, keyed on its download URL. Snatching a URL
// again refreshes the existing row and puts it back to Snatched, unless that
// row was already processed, in which case req is filled from it untouched.
func (svc *Service) CreateRequest(ctx context.Context, req *models.Request) error {
	now := time.Now()
	if req.CreatedAt.IsZero() {
		req.CreatedAt = now
	}
	req.UpdatedAt = req.CreatedAt
	if req.Status == "" {
		req.Status = models.RequestStatusSnatched
	}
	if req.SnatchedAt.IsZero() {
		req.SnatchedAt = now
	}
	if req.Mode == "" {
		req.Mode = models.ModeDirect
	}

	return svc.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		existing := &models.Request{}
		err := tx.NewSelect().
			Model(existing).
			Where("r.download_url = ?", req.DownloadURL).
			Scan(ctx)
		if err == nil && existing.Status == models.RequestStatusProcessed {
			*req = *existing
			return nil
		}
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return errors.WithStack(err)
		}

		_, err = tx.NewInsert().
			Model(req).
			On("CONFLICT (download_url) DO UPDATE").
			Set("updated_at = EXCLUDED.updated_at").
			Set("item_id = EXCLUDED.item_id").
			Set("title = EXCLUDED.title").
			Set("media_kind = EXCLUDED.media_kind").
			Set("provider = EXCLUDED.provider").
			Set("backend = EXCLUDED.backend").
			Set("mode = EXCLUDED.mode").
			Set("handle = EXCLUDED.handle").
			Set("aux_info = EXCLUDED.aux_info").
			Set("status = EXCLUDED.status").
			Set("snatched_at = EXCLUDED.snatched_at").
			Set("completed_at = NULL").
			Set("failed_at = NULL").
			Set("fail_reason = NULL").
			Returning("*").
			Exec(ctx)
		return errors.WithStack(err)
	})
}

func (svc *Service) RetrieveRequest(ctx context.Context, opts RetrieveRequestOptions) (*models.Request, error) {
	req := &models.Request{}

	q := svc.db.
		NewSelect().
		Model(req)

	if opts.ID != nil {
		q = q.Where("r.id = ?", *opts.ID)
	}

	err := q.Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errcodes.NotFound("Request")
		}
		return nil, errors.WithStack(err)
	}

	return req, nil
}

func (svc *Service) ListRequests(ctx context.Context, opts ListRequestsOptions) ([]*models.Request, error) {
	r, _, err := svc.listRequestsWithTotal(ctx, opts)
	return r, errors.WithStack(err)
}

func (svc *Service) ListRequestsWithTotal(ctx context.Context, opts ListRequestsOptions) ([]*models.Request, int, error) {
	opts.includeTotal = true
	return svc.listRequestsWithTotal(ctx, opts)
}

func (svc *Service) listRequestsWithTotal(ctx context.Context, opts ListRequestsOptions) ([]*models.Request, int, error) {
	reqs := []*models.Request{}
	var total int
	var err error

	// Snatch order, so a pass handles the oldest downloads first.
	q := svc.db.
		NewSelect().
		Model(&reqs).
		Order("r.snatched_at ASC", "r.id ASC")

	if opts.Limit != nil {
		q = q.Limit(*opts.Limit)
	}
	if opts.Offset != nil {
		q = q.Offset(*opts.Offset)
	}
	if len(opts.Statuses) > 0 {
		q = q.Where("r.status IN (?)", bun.In(opts.Statuses))
	}
	if opts.MediaKind != nil {
		q = q.Where("r.media_kind = ?", *opts.MediaKind)
	}
	if opts.ItemID != nil {
		q = q.Where("r.item_id = ?", *opts.ItemID)
	}
	if opts.SnatchedBefore != nil {
		q = q.Where("r.snatched_at < ?", *opts.SnatchedBefore)
	}

	if opts.includeTotal {
		total, err = q.ScanAndCount(ctx)
	} else {
		err = q.Scan(ctx)
	}
	if err != nil {
		return nil, 0, errors.WithStack(err)
	}

	return reqs, total, nil
}

// ListSnatched returns every request still waiting on a download.
func (svc *Service) ListSnatched(ctx context.Context) ([]*models.Request, error) {
	return svc.ListRequests(ctx, ListRequestsOptions{
		Statuses: []string{models.RequestStatusSnatched},
	})
}

func (svc *Service) CountSnatched(ctx context.Context) (int, error) {
	n, err := svc.db.NewSelect().
		Model((*models.Request)(nil)).
		Where("status = ?", models.RequestStatusSnatched).
		Count(ctx)
	return n, errors.WithStack(err)
}

// UpdateTitle stores the name a backend currently reports for the download.
func (svc *Service) UpdateTitle(ctx context.Context, req *models.Request, title string) error {
	req.Title = title
	req.UpdatedAt = time.Now()
	_, err := svc.db.NewUpdate().
		Model(req).
		Column("title", "updated_at").
		WherePK().
		Exec(ctx)
	return errors.WithStack(err)
}

// MarkProcessed moves req from Snatched to Processed. It reports false when
// the row already left Snatched.
func (svc *Service) MarkProcessed(ctx context.Context, req *models.Request) (bool, error) {
	now := time.Now()
	res, err := svc.db.NewUpdate().
		Model((*models.Request)(nil)).
		Set("status = ?", models.RequestStatusProcessed).
		Set("completed_at = ?", now).
		Set("updated_at = ?", now).
		Where("id = ?", req.ID).
		Where("status = ?", models.RequestStatusSnatched).
		Exec(ctx)
	if err != nil {
		return false, errors.WithStack(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, errors.WithStack(err)
	}
	if n == 0 {
		return false, nil
	}

	req.Status = models.RequestStatusProcessed
	req.CompletedAt = &now
	req.UpdatedAt = now
	return true, nil
}

// MarkFailed moves req from Snatched to Failed, retaining reason. It reports
// false when the row already left Snatched.
func (svc *Service) MarkFailed(ctx context.Context, req *models.Request, reason string) (bool, error) {
	now := time.Now()
	res, err := svc.db.NewUpdate().
		Model((*models.Request)(nil)).
		Set("status = ?", models.RequestStatusFailed).
		Set("failed_at = ?", now).
		Set("fail_reason = ?", reason).
		Set("updated_at = ?", now).
		Where("id = ?", req.ID).
		Where("status = ?", models.RequestStatusSnatched).
		Exec(ctx)
	if err != nil {
		return false, errors.WithStack(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, errors.WithStack(err)
	}
	if n == 0 {
		return false, nil
	}

	req.Status = models.RequestStatusFailed
	req.FailedAt = &now
	req.FailReason = &reason
	req.UpdatedAt = now
	return true, nil
}

// HasCompetingProcessed reports whether a request other than req, for the
// same item and media kind, has already been processed.
func (svc *Service) HasCompetingProcessed(ctx context.Context, req *models.Request) (bool, error) {
	n, err := svc.db.NewSelect().
		Model((*models.Request)(nil)).
		Where("item_id = ?", req.ItemID).
		Where("media_kind = ?", req.MediaKind).
		Where("status = ?", models.RequestStatusProcessed).
		Where("id != ?", req.ID).
		Count(ctx)
	if err != nil {
		return false, errors.WithStack(err)
	}
	return n > 0, nil
}
