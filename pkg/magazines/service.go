package magazines

import (
	"context"
	"database/sql"
	"strconv"
	"time"

	"github.com/bookferry/bookferry/pkg/errcodes"
	"github.com/bookferry/bookferry/pkg/models"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/uptrace/bun"
)

const issueDateLayout = "2006-01-02"

// issueNamespace seeds deterministic issue ids, so re-recording the same issue
// yields the same id.
var issueNamespace = uuid.MustParse("8e0c6c1a-3b9e-4a55-9d0e-6f2f2b7c1a10")

type RecordIssueOptions struct {
	Title     string
	IssueDate string
	File      string
	Cover     *string
}

type Service struct {
	db *bun.DB
}

func NewService(db *bun.DB) *Service {
	return &Service{db}
}

func (svc *Service) CreateMagazine(ctx context.Context, mag *models.Magazine) error {
	now := time.Now()
	if mag.CreatedAt.IsZero() {
		mag.CreatedAt = now
	}
	mag.UpdatedAt = mag.CreatedAt
	if mag.Status == "" {
		mag.Status = models.MagazineStatusActive
	}
	if mag.IssueStatus == "" {
		mag.IssueStatus = models.BookStatusSkipped
	}

	_, err := svc.db.NewInsert().
		Model(mag).
		Returning("*").
		Exec(ctx)
	return errors.WithStack(err)
}

func (svc *Service) RetrieveMagazine(ctx context.Context, title string) (*models.Magazine, error) {
	mag := &models.Magazine{}
	err := svc.db.NewSelect().
		Model(mag).
		Where("m.title = ?", title).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errcodes.NotFound("Magazine")
		}
		return nil, errors.WithStack(err)
	}
	return mag, nil
}

func (svc *Service) RetrieveIssue(ctx context.Context, title, issueDate string) (*models.Issue, error) {
	issue := &models.Issue{}
	err := svc.db.NewSelect().
		Model(issue).
		Where("i.title = ?", title).
		Where("i.issue_date = ?", issueDate).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errcodes.NotFound("Issue")
		}
		return nil, errors.WithStack(err)
	}
	return issue, nil
}

func IssueID(title, issueDate string) string {
	return uuid.NewSHA1(issueNamespace, []byte(title+" "+issueDate)).String()
}

// RecordIssue upserts the issue keyed on (title, issue date) and folds it into
// the magazine. An issue older than the newest one held only refreshes the
// acquisition time and fills a missing cover; it never replaces the newest
// issue date or cover.
func (svc *Service) RecordIssue(ctx context.Context, opts RecordIssueOptions) (*models.Issue, error) {
	now := time.Now()
	issue := &models.Issue{
		IssueID:   IssueID(opts.Title, opts.IssueDate),
		Title:     opts.Title,
		IssueDate: opts.IssueDate,
		Acquired:  now,
		IssueFile: opts.File,
	}

	err := svc.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		_, err := tx.NewInsert().
			Model(issue).
			On("CONFLICT (title, issue_date) DO UPDATE").
			Set("acquired = EXCLUDED.acquired").
			Set("issue_file = EXCLUDED.issue_file").
			Returning("*").
			Exec(ctx)
		if err != nil {
			return errors.WithStack(err)
		}

		mag := &models.Magazine{}
		err = tx.NewSelect().Model(mag).Where("m.title = ?", opts.Title).Scan(ctx)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return errcodes.NotFound("Magazine")
			}
			return errors.WithStack(err)
		}

		mag.LastAcquired = &now
		mag.IssueStatus = models.BookStatusOpen
		mag.UpdatedAt = now
		cols := []string{"last_acquired", "issue_status", "updated_at"}

		if mag.IssueDate == nil || !issueBefore(opts.IssueDate, *mag.IssueDate) {
			date := opts.IssueDate
			mag.IssueDate = &date
			cols = append(cols, "issue_date")
			if opts.Cover != nil {
				mag.LatestCover = opts.Cover
				cols = append(cols, "latest_cover")
			}
		} else if mag.LatestCover == nil && opts.Cover != nil {
			mag.LatestCover = opts.Cover
			cols = append(cols, "latest_cover")
		}

		_, err = tx.NewUpdate().
			Model(mag).
			Column(cols...).
			WherePK().
			Exec(ctx)
		return errors.WithStack(err)
	})
	if err != nil {
		return nil, err
	}

	return issue, nil
}

// issueBefore reports whether issue a is older than issue b. Dates compare as
// dates and issue numbers as numbers. Tags that cannot be compared are never
// older, so the issue just recorded becomes the latest.
func issueBefore(a, b string) bool {
	if da, err := time.Parse(issueDateLayout, a); err == nil {
		if db, err := time.Parse(issueDateLayout, b); err == nil {
			return da.Before(db)
		}
		return false
	}
	if na, err := strconv.Atoi(a); err == nil {
		if nb, err := strconv.Atoi(b); err == nil {
			return na < nb
		}
	}
	return false
}
