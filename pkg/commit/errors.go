package commit

import (
	"fmt"

	"github.com/pkg/errors"
)

// Kind classifies why a commit failed. Every kind leads to quarantine.
type Kind int

const (
	KindNotFound Kind = iota + 1
	KindCommitIO
	KindDuplicate
)

func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "not_found"
	case KindCommitIO:
		return "commit_io_failure"
	case KindDuplicate:
		return "duplicate_rejected"
	}
	return "unknown"
}

// Error is a commit failure carrying its Kind and a human readable reason.
type Error struct {
	Kind   Kind
	Reason string
	Err    error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Reason + ": " + e.Err.Error()
	}
	return e.Reason
}

func (e *Error) Unwrap() error {
	return e.Err
}

func newError(kind Kind, err error, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Reason: fmt.Sprintf(format, args...), Err: err}
}

// KindOf returns the Kind of err if it is, or wraps, a commit Error.
func KindOf(err error) (Kind, bool) {
	var cerr *Error
	if errors.As(err, &cerr) {
		return cerr.Kind, true
	}
	return 0, false
}
