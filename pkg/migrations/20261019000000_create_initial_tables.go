package migrations

import (
	"context"

	"github.com/pkg/errors"
	"github.com/uptrace/bun"
)

func init() {
	up := func(_ context.Context, db *bun.DB) error {
		_, err := db.Exec(`
			CREATE TABLE jobs (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
				updated_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
				type TEXT NOT NULL,
				status TEXT NOT NULL,
				data TEXT,
				process_id TEXT
			)
		`)
		if err != nil {
			return errors.WithStack(err)
		}
		_, err = db.Exec(`CREATE INDEX ix_jobs_status_created_at ON jobs(status, created_at)`)
		if err != nil {
			return errors.WithStack(err)
		}

		_, err = db.Exec(`
			CREATE TABLE authors (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
				updated_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
				name TEXT NOT NULL,
				have_books INTEGER NOT NULL DEFAULT 0,
				total_books INTEGER NOT NULL DEFAULT 0,
				last_book_at TIMESTAMPTZ
			)
		`)
		if err != nil {
			return errors.WithStack(err)
		}
		_, err = db.Exec(`CREATE UNIQUE INDEX ux_authors_name ON authors(name COLLATE NOCASE)`)
		if err != nil {
			return errors.WithStack(err)
		}

		_, err = db.Exec(`
			CREATE TABLE series (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
				name TEXT NOT NULL
			)
		`)
		if err != nil {
			return errors.WithStack(err)
		}

		_, err = db.Exec(`
			CREATE TABLE books (
				id TEXT PRIMARY KEY,
				created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
				updated_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
				author_id INTEGER NOT NULL REFERENCES authors(id) ON DELETE CASCADE,
				title TEXT NOT NULL,
				series_id INTEGER REFERENCES series(id) ON DELETE SET NULL,
				series_number TEXT,
				isbn TEXT,
				publisher TEXT,
				published_date TEXT,
				description TEXT,
				language TEXT,
				cover_path TEXT,
				status TEXT NOT NULL DEFAULT 'Skipped',
				audio_status TEXT NOT NULL DEFAULT 'Skipped',
				book_file TEXT,
				audio_file TEXT,
				book_library TIMESTAMPTZ,
				audio_library TIMESTAMPTZ
			)
		`)
		if err != nil {
			return errors.WithStack(err)
		}
		_, err = db.Exec(`CREATE INDEX ix_books_author_id ON books(author_id)`)
		if err != nil {
			return errors.WithStack(err)
		}

		_, err = db.Exec(`
			CREATE TABLE magazines (
				title TEXT PRIMARY KEY,
				created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
				updated_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
				status TEXT NOT NULL DEFAULT 'Active',
				issue_status TEXT NOT NULL DEFAULT 'Skipped',
				issue_date TEXT,
				last_acquired TIMESTAMPTZ,
				latest_cover TEXT,
				language TEXT
			)
		`)
		if err != nil {
			return errors.WithStack(err)
		}

		_, err = db.Exec(`
			CREATE TABLE issues (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				issue_id TEXT NOT NULL,
				title TEXT NOT NULL REFERENCES magazines(title) ON DELETE CASCADE,
				issue_date TEXT NOT NULL,
				acquired TIMESTAMPTZ NOT NULL,
				issue_file TEXT NOT NULL
			)
		`)
		if err != nil {
			return errors.WithStack(err)
		}
		_, err = db.Exec(`CREATE UNIQUE INDEX ux_issues_title_issue_date ON issues(title, issue_date)`)
		if err != nil {
			return errors.WithStack(err)
		}

		_, err = db.Exec(`
			CREATE TABLE requests (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
				updated_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
				item_id TEXT NOT NULL,
				title TEXT NOT NULL,
				media_kind TEXT NOT NULL,
				provider TEXT NOT NULL,
				backend TEXT NOT NULL,
				mode TEXT NOT NULL DEFAULT 'direct',
				handle TEXT,
				download_url TEXT NOT NULL,
				status TEXT NOT NULL,
				aux_info TEXT,
				snatched_at TIMESTAMPTZ NOT NULL,
				completed_at TIMESTAMPTZ,
				failed_at TIMESTAMPTZ,
				fail_reason TEXT
			)
		`)
		if err != nil {
			return errors.WithStack(err)
		}
		_, err = db.Exec(`CREATE INDEX ix_requests_status_snatched_at ON requests(status, snatched_at)`)
		if err != nil {
			return errors.WithStack(err)
		}
		_, err = db.Exec(`CREATE UNIQUE INDEX ux_requests_download_url ON requests(download_url)`)
		if err != nil {
			return errors.WithStack(err)
		}
		_, err = db.Exec(`CREATE INDEX ix_requests_item_id_media_kind ON requests(item_id, media_kind)`)
		if err != nil {
			return errors.WithStack(err)
		}

		_, err = db.Exec(`
			CREATE TABLE downloads (
				provider TEXT PRIMARY KEY,
				count INTEGER NOT NULL DEFAULT 0
			)
		`)
		if err != nil {
			return errors.WithStack(err)
		}

		return nil
	}

	down := func(_ context.Context, db *bun.DB) error {
		for _, table := range []string{"downloads", "requests", "issues", "magazines", "books", "series", "authors", "jobs"} {
			_, err := db.Exec(`DROP TABLE IF EXISTS ` + table)
			if err != nil {
				return errors.WithStack(err)
			}
		}
		return nil
	}

	Migrations.MustRegister(up, down)
}
