// Package errcodes holds the errors the HTTP API reports to clients.
package errcodes

import (
	"fmt"
	"net/http"
)

// Error is an error with a stable machine-readable code and the HTTP status
// it is served with.
type Error struct {
	HTTPCode int
	Message  string
	Code     string
}

func (err *Error) Error() string {
	return err.Message
}

// Is matches any *Error with the same code, so callers can test for a kind
// of error with errors.Is(err, errcodes.NotFound("")).
func (err *Error) Is(target error) bool {
	te, ok := target.(*Error)
	if !ok {
		return false
	}
	return te.Code == err.Code
}

func newError(status int, code, msg string) error {
	return &Error{HTTPCode: status, Message: msg, Code: code}
}

// NotFound reports that resource does not exist.
func NotFound(resource string) error {
	return newError(http.StatusNotFound, "not_found", resource+" not found.")
}

// Conflict reports that the request clashes with work already under way.
func Conflict(msg string) error {
	return newError(http.StatusConflict, "conflict", msg)
}

func UnsupportedMediaType() error {
	return newError(http.StatusUnsupportedMediaType, "unsupported_media_type", "Unsupported Media Type")
}

func UnknownParameter(param string) error {
	return newError(http.StatusUnprocessableEntity, "unknown_parameter", fmt.Sprintf("Unknown Parameter %q", param))
}

func ValidationTypeError(msg string) error {
	return newError(http.StatusUnprocessableEntity, "validation_type_error", msg)
}

func ValidationError(msg string) error {
	return newError(http.StatusUnprocessableEntity, "validation_error", msg)
}

func MalformedPayload() error {
	return newError(http.StatusBadRequest, "malformed_payload", "Malformed Payload")
}

func EmptyRequestBody() error {
	return newError(http.StatusBadRequest, "empty_request_body", "Request body can't be empty.")
}
