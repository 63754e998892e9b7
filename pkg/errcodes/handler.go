package errcodes

import (
	"fmt"
	"net/http"

	"github.com/iancoleman/strcase"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
	"github.com/robinjoseph08/golib/echo/v4/middleware/logger"
	"github.com/robinjoseph08/golib/errutils"
)

type Handler struct{}

func NewHandler() *Handler {
	return &Handler{}
}

// Handle is an echo.HTTPErrorHandler. *Error and *echo.HTTPError keep their
// status; anything else is logged and served as a 500.
func (h *Handler) Handle(err error, c echo.Context) {
	log := logger.FromEchoContext(c)
	if errutils.IsIgnorableErr(err) {
		log.Err(err).Warn("broken pipe")
		return
	}
	if c.Response().Committed {
		log.Err(err).Warn("error after response was written")
		return
	}

	e := classify(err)
	if e.HTTPCode == http.StatusInternalServerError {
		log.Err(err).Error("server error")
	}

	payload := map[string]interface{}{
		"error": map[string]interface{}{
			"code":        e.Code,
			"message":     e.Message,
			"status_code": e.HTTPCode,
		},
	}
	if err := c.JSON(e.HTTPCode, payload); err != nil {
		log.Err(errors.WithStack(err)).Error("error handler json error")
	}
}

func classify(err error) *Error {
	var e *Error
	if errors.As(err, &e) {
		return e
	}

	var he *echo.HTTPError
	if errors.As(err, &he) && he.Code != http.StatusInternalServerError {
		msg := http.StatusText(he.Code)
		if s, ok := he.Message.(string); ok {
			msg = s
		} else if he.Message != nil {
			msg = fmt.Sprint(he.Message)
		}
		return &Error{HTTPCode: he.Code, Message: msg, Code: strcase.ToSnake(msg)}
	}

	return &Error{
		HTTPCode: http.StatusInternalServerError,
		Message:  "Internal Server Error",
		Code:     "internal_server_error",
	}
}
