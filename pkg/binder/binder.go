package binder

import (
	"net/http"
	"net/url"
	"reflect"
	"regexp"
	"strings"

	"github.com/bookferry/bookferry/pkg/errcodes"
	"github.com/creasty/defaults"
	"github.com/go-playground/mold/v4"
	"github.com/go-playground/mold/v4/modifiers"
	"github.com/go-playground/validator/v10"
	"github.com/gorilla/schema"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
	"github.com/robinjoseph08/golib/echo/v4/middleware/logger"
	"github.com/segmentio/encoding/json"
)

var unknownFieldsRE = regexp.MustCompile(`unknown field "(.*)"`)

// Binder implements echo.Binder. JSON bodies and query strings are decoded
// into the target, cleaned with mold, filled from `default` tags and then
// validated.
type Binder struct {
	queryDecoder *schema.Decoder
	conform      *mold.Transformer
	validate     *validator.Validate
}

func New() (*Binder, error) {
	queryDecoder := schema.NewDecoder()
	queryDecoder.SetAliasTag("query")

	validate := validator.New()
	validate.RegisterTagNameFunc(jsonName)
	if err := validate.RegisterValidation(date, dateValidator); err != nil {
		return nil, errors.WithStack(err)
	}
	if err := validate.RegisterValidation(downloadURL, downloadURLValidator); err != nil {
		return nil, errors.WithStack(err)
	}

	return &Binder{
		queryDecoder: queryDecoder,
		conform:      modifiers.New(),
		validate:     validate,
	}, nil
}

// jsonName reports fields by their JSON name so messages match the payload.
func jsonName(fld reflect.StructField) string {
	name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
	if name == "-" {
		return ""
	}
	return name
}

func (b *Binder) Bind(i interface{}, c echo.Context) error {
	req := c.Request()

	switch {
	case req.ContentLength > 0:
		if err := b.decodeBody(i, c); err != nil {
			return err
		}
	case req.Method == http.MethodGet || req.Method == http.MethodDelete:
		if err := b.decodeQuery(i, c.QueryParams()); err != nil {
			return err
		}
	default:
		return errcodes.EmptyRequestBody()
	}

	if err := b.conform.Struct(req.Context(), i); err != nil {
		return errors.WithStack(err)
	}
	if err := defaults.Set(i); err != nil {
		return errors.WithStack(err)
	}
	if err := b.validate.Struct(i); err != nil {
		var errs validator.ValidationErrors
		if errors.As(err, &errs) && len(errs) > 0 {
			return errcodes.ValidationError(formatValidationError(errs[0]))
		}
		return errors.WithStack(err)
	}
	return nil
}

func (b *Binder) decodeBody(i interface{}, c echo.Context) error {
	req := c.Request()
	if !strings.HasPrefix(req.Header.Get(echo.HeaderContentType), echo.MIMEApplicationJSON) {
		return errcodes.UnsupportedMediaType()
	}
	defer req.Body.Close()

	dec := json.NewDecoder(req.Body)
	dec.DisallowUnknownFields()
	err := dec.Decode(i)
	if err == nil {
		return nil
	}

	if m := unknownFieldsRE.FindStringSubmatch(err.Error()); len(m) > 1 {
		return errcodes.UnknownParameter(m[1])
	}
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) {
		return errcodes.ValidationTypeError(formatUnmarshalTypeError(typeErr))
	}
	logger.FromEchoContext(c).Err(err).Warn("undecodable json payload")
	return errcodes.MalformedPayload()
}

func (b *Binder) decodeQuery(i interface{}, params url.Values) error {
	err := b.queryDecoder.Decode(i, params)
	if err == nil {
		return nil
	}

	var multi schema.MultiError
	if !errors.As(err, &multi) {
		return errors.WithStack(err)
	}
	for _, e := range multi {
		var conv schema.ConversionError
		if errors.As(e, &conv) {
			return errcodes.ValidationTypeError(formatSchemaConversionError(conv))
		}
		var unknown schema.UnknownKeyError
		if errors.As(e, &unknown) {
			return errcodes.UnknownParameter(unknown.Key)
		}
		return errors.WithStack(e)
	}
	return errors.WithStack(err)
}
