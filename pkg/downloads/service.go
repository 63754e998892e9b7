package downloads

import (
	"context"

	"github.com/bookferry/bookferry/pkg/models"
	"github.com/pkg/errors"
	"github.com/uptrace/bun"
)

type Service struct {
	db *bun.DB
}

func NewService(db *bun.DB) *Service {
	return &Service{db}
}

// Increment adds one successful download to provider's counter.
func (svc *Service) Increment(ctx context.Context, provider string) error {
	if provider == "" {
		provider = "unknown"
	}
	_, err := svc.db.NewInsert().
		Model(&models.DownloadCount{Provider: provider, Count: 1}).
		On("CONFLICT (provider) DO UPDATE").
		Set("count = count + 1").
		Exec(ctx)
	return errors.WithStack(err)
}

func (svc *Service) ListCounts(ctx context.Context) ([]*models.DownloadCount, error) {
	counts := []*models.DownloadCount{}
	err := svc.db.NewSelect().
		Model(&counts).
		Order("d.count DESC", "d.provider ASC").
		Scan(ctx)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	return counts, nil
}
