package postprocess

import (
	"github.com/bookferry/bookferry/pkg/quarantine"
	"github.com/pkg/errors"
)

var (
	// ErrAdapterUnavailable means the backend could not report the current
	// task name. The pass carries on with the stored title.
	ErrAdapterUnavailable = errors.New("download backend unavailable")
	// ErrNoMatch means nothing in the download directory scored above the
	// match threshold.
	ErrNoMatch = errors.New("no matching download")
	// ErrNotReady means a match was found but holds no usable payload yet.
	ErrNotReady = errors.New("download not ready")
	// ErrArchiveExtraction is retried on the next pass.
	ErrArchiveExtraction = errors.New("archive extraction failed")
	// ErrNotRecognised fails requests whose book or magazine is gone.
	ErrNotRecognised = errors.New("not recognised")
	// ErrAlreadySettled means the request left Snatched while its files were
	// being committed.
	ErrAlreadySettled = errors.New("duplicate download")
	// ErrStaleRequest is the reason stored on requests failed by the sweep.
	ErrStaleRequest = errors.New(quarantine.ReasonStale)
)
