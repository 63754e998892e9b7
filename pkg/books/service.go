package books

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/bookferry/bookferry/pkg/errcodes"
	"github.com/bookferry/bookferry/pkg/models"
	"github.com/pkg/errors"
	"github.com/uptrace/bun"
)

type RetrieveBookOptions struct {
	ID *string
}

type ListBooksOptions struct {
	Limit    *int
	Offset   *int
	AuthorID *int
	Statuses []string

	includeTotal bool
}

type UpdateBookOptions struct {
	Columns []string
}

type Service struct {
	db *bun.DB
}

func NewService(db *bun.DB) *Service {
	return &Service{db}
}

func (svc *Service) CreateBook(ctx context.Context, book *models.Book) error {
	now := time.Now()
	if book.CreatedAt.IsZero() {
		book.CreatedAt = now
	}
	book.UpdatedAt = book.CreatedAt
	if book.Status == "" {
		book.Status = models.BookStatusSkipped
	}
	if book.AudioStatus == "" {
		book.AudioStatus = models.BookStatusSkipped
	}

	_, err := svc.db.
		NewInsert().
		Model(book).
		Returning("*").
		Exec(ctx)
	if err != nil {
		return errors.WithStack(err)
	}

	return nil
}

func (svc *Service) RetrieveBook(ctx context.Context, opts RetrieveBookOptions) (*models.Book, error) {
	book := &models.Book{}

	q := svc.db.
		NewSelect().
		Model(book).
		Relation("Author").
		Relation("Series")

	if opts.ID != nil {
		q = q.Where("b.id = ?", *opts.ID)
	}

	err := q.Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errcodes.NotFound("Book")
		}
		return nil, errors.WithStack(err)
	}

	return book, nil
}

func (svc *Service) ListBooks(ctx context.Context, opts ListBooksOptions) ([]*models.Book, error) {
	b, _, err := svc.listBooksWithTotal(ctx, opts)
	return b, errors.WithStack(err)
}

func (svc *Service) ListBooksWithTotal(ctx context.Context, opts ListBooksOptions) ([]*models.Book, int, error) {
	opts.includeTotal = true
	return svc.listBooksWithTotal(ctx, opts)
}

func (svc *Service) listBooksWithTotal(ctx context.Context, opts ListBooksOptions) ([]*models.Book, int, error) {
	books := []*models.Book{}
	var total int
	var err error

	q := svc.db.
		NewSelect().
		Model(&books).
		Relation("Author").
		Relation("Series").
		Order("b.title ASC")

	if opts.Limit != nil {
		q = q.Limit(*opts.Limit)
	}
	if opts.Offset != nil {
		q = q.Offset(*opts.Offset)
	}
	if opts.AuthorID != nil {
		q = q.Where("b.author_id = ?", *opts.AuthorID)
	}
	if len(opts.Statuses) > 0 {
		q = q.Where("b.status IN (?)", bun.In(opts.Statuses))
	}

	if opts.includeTotal {
		total, err = q.ScanAndCount(ctx)
	} else {
		err = q.Scan(ctx)
	}
	if err != nil {
		return nil, 0, errors.WithStack(err)
	}

	return books, total, nil
}

func (svc *Service) UpdateBook(ctx context.Context, book *models.Book, opts UpdateBookOptions) error {
	if len(opts.Columns) == 0 {
		return nil
	}

	book.UpdatedAt = time.Now()
	columns := append(opts.Columns, "updated_at")

	_, err := svc.db.
		NewUpdate().
		Model(book).
		Column(columns...).
		WherePK().
		Exec(ctx)
	if err != nil {
		return errors.WithStack(err)
	}

	return nil
}

// FindOrCreateAuthor returns the author with the given name, creating it when
// absent. Names compare case-insensitively.
func (svc *Service) FindOrCreateAuthor(ctx context.Context, name string) (*models.Author, error) {
	name = strings.TrimSpace(name)
	author := &models.Author{}
	err := svc.db.NewSelect().
		Model(author).
		Where("a.name = ? COLLATE NOCASE", name).
		Scan(ctx)
	if err == nil {
		return author, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, errors.WithStack(err)
	}

	now := time.Now()
	author = &models.Author{CreatedAt: now, UpdatedAt: now, Name: name}
	_, err = svc.db.NewInsert().
		Model(author).
		Returning("*").
		Exec(ctx)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	return author, nil
}

// FindOrCreateSeries returns the series with the given name, creating it
// when absent.
func (svc *Service) FindOrCreateSeries(ctx context.Context, name string) (*models.Series, error) {
	series := &models.Series{}
	err := svc.db.NewSelect().
		Model(series).
		Where("s.name = ?", name).
		Limit(1).
		Scan(ctx)
	if err == nil {
		return series, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, errors.WithStack(err)
	}

	series = &models.Series{CreatedAt: time.Now(), Name: name}
	_, err = svc.db.NewInsert().
		Model(series).
		Returning("*").
		Exec(ctx)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	return series, nil
}

func statusColumn(kind string) string {
	if kind == models.MediaKindAudioBook {
		return "audio_status"
	}
	return "status"
}

// RevertToWanted sets the book's status for kind back to Wanted. With
// onlyFrom given, the update only applies while the current status is one of
// those values. It reports whether a row changed.
func (svc *Service) RevertToWanted(ctx context.Context, bookID, kind string, onlyFrom ...string) (bool, error) {
	col := statusColumn(kind)
	q := svc.db.NewUpdate().
		Model((*models.Book)(nil)).
		Set("? = ?", bun.Ident(col), models.BookStatusWanted).
		Set("updated_at = ?", time.Now()).
		Where("id = ?", bookID)
	if len(onlyFrom) > 0 {
		q = q.Where("? IN (?)", bun.Ident(col), bun.In(onlyFrom))
	}

	res, err := q.Exec(ctx)
	if err != nil {
		return false, errors.WithStack(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, errors.WithStack(err)
	}
	return n > 0, nil
}

// RecordFile marks the book's media kind as held at path.
func (svc *Service) RecordFile(ctx context.Context, book *models.Book, kind, path string) error {
	now := time.Now()
	cols := []string{}
	if kind == models.MediaKindAudioBook {
		book.AudioStatus = models.BookStatusOpen
		book.AudioFile = &path
		book.AudioLibrary = &now
		cols = append(cols, "audio_status", "audio_file", "audio_library")
	} else {
		book.Status = models.BookStatusOpen
		book.BookFile = &path
		book.BookLibrary = &now
		cols = append(cols, "status", "book_file", "book_library")
	}
	return svc.UpdateBook(ctx, book, UpdateBookOptions{Columns: cols})
}

// RefreshAuthorTotals recounts the books held and tracked for an author.
func (svc *Service) RefreshAuthorTotals(ctx context.Context, authorID int) error {
	held := []string{models.BookStatusOpen, models.BookStatusHave}

	have, err := svc.db.NewSelect().
		Model((*models.Book)(nil)).
		Where("author_id = ?", authorID).
		WhereGroup(" AND ", func(q *bun.SelectQuery) *bun.SelectQuery {
			return q.Where("status IN (?)", bun.In(held)).
				WhereOr("audio_status IN (?)", bun.In(held))
		}).
		Count(ctx)
	if err != nil {
		return errors.WithStack(err)
	}

	total, err := svc.db.NewSelect().
		Model((*models.Book)(nil)).
		Where("author_id = ?", authorID).
		Where("status != ?", models.BookStatusIgnored).
		Count(ctx)
	if err != nil {
		return errors.WithStack(err)
	}

	now := time.Now()
	_, err = svc.db.NewUpdate().
		Model((*models.Author)(nil)).
		Set("have_books = ?", have).
		Set("total_books = ?", total).
		Set("last_book_at = ?", now).
		Set("updated_at = ?", now).
		Where("id = ?", authorID).
		Exec(ctx)
	return errors.WithStack(err)
}
