package binder

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/schema"
	"github.com/segmentio/encoding/json"
)

const (
	date        = "date"
	downloadURL = "download_url"
	mx          = "max"
	mn          = "min"
	oneof       = "oneof"
	required    = "required"
	urlTag      = "url"
)

func formatUnmarshalTypeError(err *json.UnmarshalTypeError) string {
	return fmt.Sprintf("%q should be of type %s", strings.Trim(err.Field, "."), err.Type)
}

func formatSchemaConversionError(err schema.ConversionError) string {
	return fmt.Sprintf("%q should be of type %s", err.Key, err.Type)
}

func formatValidationError(err validator.FieldError) string {
	field := err.Field()

	switch err.Tag() {
	case date:
		return fmt.Sprintf("%q should be in the format of YYYY-MM-DD", field)
	case downloadURL:
		return fmt.Sprintf("%q must be a magnet link, an http(s) URL or an absolute path", field)
	case urlTag:
		return fmt.Sprintf("%q must be a URL", field)
	case mx:
		return bound(err, "less")
	case mn:
		return bound(err, "greater")
	case oneof:
		valids := []string{}
		for _, p := range strings.Fields(err.Param()) {
			valids = append(valids, fmt.Sprintf("%q", p))
		}
		return fmt.Sprintf("%q must be one of the following: %s", field, strings.Join(valids, ", "))
	case required:
		return fmt.Sprintf("%q is required", field)
	}
	if err.Param() != "" {
		return fmt.Sprintf("%q fails %s=%s", field, err.Tag(), err.Param())
	}
	return fmt.Sprintf("%q fails %s", field, err.Tag())
}

// bound formats min and max, which compare values for numbers and lengths
// for everything else.
func bound(err validator.FieldError, direction string) string {
	field, param := err.Field(), err.Param()

	//exhaustive:ignore
	switch err.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return fmt.Sprintf("%q must be %s than or equal to %s", field, direction, param)
	}

	unit := "character"
	if err.Kind() == reflect.Slice {
		unit = "element"
	}
	if param != "1" {
		unit += "s"
	}
	return fmt.Sprintf("%q length must be %s than or equal to %s %s", field, direction, param, unit)
}
